package schemas

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

const contactsYAML = `key: yaml_contacts
label: Contacts
acceptedFileTypes: [".csv"]
maxFileSizeMB: 1
enableMapping: true
mappingThreshold: 0.7
keyColumns: [email]
columnsConfig:
  - fieldName: email
    displayName: Email
    validationRules:
      type: email
      required: true
  - fieldName: state
    displayName: State
    validationRules:
      customValidator: us_state
  - fieldName: age
    displayName: Age
    validationRules:
      type: number
      min: 18
`

const twoDocsYAML = `key: yaml_a
columnsConfig:
  - fieldName: a
---
key: yaml_b
columnsConfig:
  - fieldName: b
    validationRules:
      maxLength: 3
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecode(t *testing.T) {
	cfgs, err := Decode(strings.NewReader(contactsYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(cfgs) != 1 {
		t.Fatalf("got %d configs, want 1", len(cfgs))
	}
	cfg := cfgs[0]

	if diff := cmp.Diff([]string{"email", "state", "age"}, cfg.FieldNames()); diff != "" {
		t.Errorf("field names mismatch (-want +got):\n%s", diff)
	}
	if cfg.MappingThreshold != 0.7 || !cfg.EnableMapping || cfg.MaxFileSizeMB != 1 {
		t.Errorf("scalar fields not decoded: %+v", cfg)
	}
	if r := cfg.Columns[1].Rules; r == nil || r.Custom != USState {
		t.Errorf("customValidator not decoded: %+v", r)
	}
	if r := cfg.Columns[2].Rules; r == nil || r.Min == nil || *r.Min != 18 {
		t.Errorf("min not decoded: %+v", r)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("decoded config invalid: %v", err)
	}
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("key: x\ncolumns: []\n"))
	if err == nil {
		t.Fatal("Decode accepted an unknown field")
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.yml", twoDocsYAML)
	writeFile(t, dir, "a.yaml", contactsYAML)
	writeFile(t, dir, "readme.txt", "not yaml")
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	cfgs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	var keys []string
	for _, c := range cfgs {
		keys = append(keys, c.Key)
	}
	if diff := cmp.Diff([]string{"yaml_contacts", "yaml_a", "yaml_b"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDir_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "key: [unterminated\n")

	_, err := LoadDir(dir)
	if err == nil || !strings.Contains(err.Error(), "broken.yaml") {
		t.Errorf("LoadDir error = %v, want it to name the file", err)
	}
}

func TestRegisterDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", twoDocsYAML)
	writeFile(t, dir, "b.yaml", "key: trips\ncolumnsConfig:\n  - fieldName: x\n")

	added, err := RegisterDir(dir)
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	if !errors.Is(err, core.ErrDuplicateConfig) {
		t.Errorf("err = %v, want ErrDuplicateConfig for trips", err)
	}
	if _, ok := core.Get("yaml_b"); !ok {
		t.Error("yaml_b not registered")
	}
}
