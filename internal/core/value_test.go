package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestValue_IsEmpty(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"zero", Value{}, true},
		{"empty string", StringValue(""), true},
		{"blank string", StringValue(" \t"), true},
		{"text", StringValue("x"), false},
		{"zero number", NumberValue(0), false},
		{"false", BoolValue(false), false},
		{"date", DateValue(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.IsEmpty(); got != tt.want {
				t.Errorf("IsEmpty() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValue_Text(t *testing.T) {
	tests := []struct {
		v    Value
		want string
	}{
		{StringValue("abc"), "abc"},
		{NumberValue(12.5), "12.5"},
		{NumberValue(3), "3"},
		{BoolValue(true), "true"},
		{DateValue(time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)), "2024-03-09"},
		{EmptyValue(), ""},
	}
	for _, tt := range tests {
		if got := tt.v.Text(); got != tt.want {
			t.Errorf("Text() = %q, want %q", got, tt.want)
		}
	}
}

func TestValueOf(t *testing.T) {
	if got := ValueOf(42); got.Kind() != KindNumber || got.Text() != "42" {
		t.Errorf("ValueOf(42) = %v (%v)", got, got.Kind())
	}
	if got := ValueOf(nil); got.Kind() != KindEmpty {
		t.Errorf("ValueOf(nil) kind = %v", got.Kind())
	}
	if got := ValueOf(struct{}{}); got.Kind() != KindEmpty {
		t.Errorf("ValueOf(struct) kind = %v", got.Kind())
	}
}

func TestRow_PreservesOrder(t *testing.T) {
	r := RowOf("b", 1, "a", "x", "c", true)
	r.Set("a", StringValue("y"))

	if diff := cmp.Diff([]string{"b", "a", "c"}, r.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if v, _ := r.Get("a"); v.Text() != "y" {
		t.Errorf("Get(a) = %q, want overwritten value", v.Text())
	}
}

func TestRow_JSON(t *testing.T) {
	r := RowOf("zeta", "z", "alpha", 1.5, "mid", nil, "flag", false)

	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := `{"zeta":"z","alpha":1.5,"mid":null,"flag":false}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}

	var back Row
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(r.Keys(), back.Keys()); diff != "" {
		t.Errorf("key order lost (-want +got):\n%s", diff)
	}
	if v, _ := back.Get("alpha"); v.Kind() != KindNumber {
		t.Errorf("alpha kind = %v, want number", v.Kind())
	}

	if err := json.Unmarshal([]byte(`[1,2]`), &back); err == nil {
		t.Error("Unmarshal of array should fail")
	}
}

func TestUploadError_NullValue(t *testing.T) {
	data, err := json.Marshal(UploadError{Row: 3, Column: "email", Error: MsgRequired})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"row":3,"column":"email","error":"Field is required","value":null}`
	if string(data) != want {
		t.Errorf("Marshal = %s, want %s", data, want)
	}
}
