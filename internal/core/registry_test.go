package core

import (
	"errors"
	"testing"
)

func TestRegistry(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	b := UploadConfig{Key: "b", Columns: []ColumnConfig{{FieldName: "x"}}}
	a := UploadConfig{Key: "a", Columns: []ColumnConfig{{FieldName: "y"}}}
	Register(b)
	Register(a)

	if ConfigCount() != 2 {
		t.Fatalf("ConfigCount() = %d, want 2", ConfigCount())
	}
	all := All()
	if all[0].Key != "a" || all[1].Key != "b" {
		t.Errorf("All() not sorted by key: %s, %s", all[0].Key, all[1].Key)
	}

	if _, ok := Get("a"); !ok {
		t.Error("Get(a) not found")
	}
	if _, err := Lookup("missing"); !errors.Is(err, ErrUnknownConfig) {
		t.Errorf("Lookup(missing) = %v, want ErrUnknownConfig", err)
	}
	if err := Add(a); !errors.Is(err, ErrDuplicateConfig) {
		t.Errorf("Add(duplicate) = %v, want ErrDuplicateConfig", err)
	}
	if err := Add(UploadConfig{Key: "bad"}); err == nil {
		t.Error("Add(invalid) = nil, want error")
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	Clear()
	t.Cleanup(Clear)

	cfg := UploadConfig{Key: "dup", Columns: []ColumnConfig{{FieldName: "x"}}}
	Register(cfg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	Register(cfg)
}
