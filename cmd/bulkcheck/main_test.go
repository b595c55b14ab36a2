package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

const driversCSV = `Email,First Name,Last Name,CDL
ann@example.com,Ann,Lee,yes
bad-email,Bob,Ray,no
ann@example.com,Ann,Lee,yes
,Cy,Doe,true
`

// run executes the root command with fresh flag values.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	schemaDir, logLevel, jsonOut = "", "error", false
	configKey, errorsOut, maxErrors = "", "", 20
	strict, noMapping, threshold = false, false, 0

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSchemas(t *testing.T) {
	out, err := run(t, "schemas")
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	for _, key := range []string{"drivers", "trips", "work_orders"} {
		if !strings.Contains(out, key) {
			t.Errorf("output missing %q:\n%s", key, out)
		}
	}
}

func TestValidate_JSON(t *testing.T) {
	csvPath := writeFile(t, "drivers.csv", driversCSV)

	out, err := run(t, "validate", "drivers", csvPath, "--json")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}

	var res struct {
		File    core.BulkUploadFile `json:"file"`
		Summary struct {
			TotalRows      int `json:"totalRows"`
			SuccessCount   int `json:"successCount"`
			ErrorCount     int `json:"errorCount"`
			DuplicateCount int `json:"duplicateCount"`
			Errors         []struct {
				Row    int    `json:"row"`
				Column string `json:"column"`
				Error  string `json:"error"`
			} `json:"errors"`
		} `json:"summary"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}

	if res.File.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", res.File.Status)
	}
	s := res.Summary
	if s.TotalRows != 4 || s.SuccessCount != 1 || s.ErrorCount != 2 || s.DuplicateCount != 1 {
		t.Errorf("summary = %+v, want 4 rows, 1 kept, 2 errors, 1 duplicate", s)
	}

	type fieldErr struct {
		Row          int
		Column, Text string
	}
	var got []fieldErr
	for _, e := range s.Errors {
		got = append(got, fieldErr{e.Row, e.Column, e.Error})
	}
	want := []fieldErr{
		{2, "email", "Invalid email"},
		{4, "email", "Field is required"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_StrictAndErrorsFile(t *testing.T) {
	csvPath := writeFile(t, "drivers.csv", driversCSV)
	errPath := filepath.Join(t.TempDir(), "errors.csv")

	out, err := run(t, "validate", "drivers", csvPath, "--strict", "--errors-out", errPath, "--max-errors", "1")
	if !errors.Is(err, errRejected) {
		t.Fatalf("err = %v, want errRejected", err)
	}
	if exitCode(err) != 2 {
		t.Errorf("exit code = %d, want 2", exitCode(err))
	}
	if !strings.Contains(out, "... 1 more") {
		t.Errorf("output not truncated:\n%s", out)
	}

	data, err := os.ReadFile(errPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{
		"row,line,column,error,value",
		"2,3,email,Invalid email,bad-email",
		"4,5,email,Field is required,",
	}
	if diff := cmp.Diff(want, lines); diff != "" {
		t.Errorf("errors file mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate_YAMLConfig(t *testing.T) {
	cfgPath := writeFile(t, "parts.yaml", `key: parts
label: Parts
columnsConfig:
  - fieldName: sku
    displayName: SKU
    validationRules:
      required: true
  - fieldName: qty
    displayName: Quantity
    validationRules:
      type: number
      min: 1
`)
	csvPath := writeFile(t, "parts.csv", "SKU,Quantity\nA-1,3\nA-2,0\n")

	out, err := run(t, "validate", cfgPath, csvPath)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, want := range []string{"parts.csv (parts): completed", "kept:       1", "Must be at least 1"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestValidate_UnknownConfig(t *testing.T) {
	csvPath := writeFile(t, "x.csv", "a\n1\n")
	_, err := run(t, "validate", "nope", csvPath)
	if !errors.Is(err, core.ErrUnknownConfig) {
		t.Errorf("err = %v, want ErrUnknownConfig", err)
	}
	if exitCode(err) != 1 {
		t.Errorf("exit code = %d, want 1", exitCode(err))
	}
}

func TestValidate_RejectedFileType(t *testing.T) {
	path := writeFile(t, "drivers.xlsx", driversCSV)
	_, err := run(t, "validate", "drivers", path)
	if !errors.Is(err, core.ErrFileType) {
		t.Errorf("err = %v, want ErrFileType", err)
	}
}

func TestMap(t *testing.T) {
	csvPath := writeFile(t, "drivers.csv", "E-mail Address,first name,Surname\nann@example.com,Ann,Lee\n")

	out, err := run(t, "map", "drivers", csvPath, "--json")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	var res mapResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}

	targets := map[string]string{}
	for _, m := range res.Mapping {
		targets[m.SourceColumn] = m.TargetColumn
	}
	if targets["first name"] != "firstName" {
		t.Errorf("first name mapped to %q, want firstName", targets["first name"])
	}
	for _, col := range []string{"phone", "licenseState", "cdl"} {
		if !contains(res.Unmapped, col) {
			t.Errorf("unmapped %v missing %q", res.Unmapped, col)
		}
	}
}

func TestMap_NoMappingIsExact(t *testing.T) {
	csvPath := writeFile(t, "drivers.csv", "email,first name\nann@example.com,Ann\n")

	out, err := run(t, "map", "drivers", csvPath, "--no-mapping", "--json")
	if err != nil {
		t.Fatalf("map: %v", err)
	}
	var res mapResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode output: %v", err)
	}
	want := []core.ColumnMapping{{SourceColumn: "email", TargetColumn: "email", Confidence: 1}}
	if diff := cmp.Diff(want, res.Mapping); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("candidates = %v, want none", res.Candidates)
	}
}

func TestTemplate(t *testing.T) {
	out, err := run(t, "template", "drivers")
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	first, _, _ := strings.Cut(out, "\n")
	if !strings.HasPrefix(first, "Email,First Name,Last Name") {
		t.Errorf("header = %q", first)
	}
}

func TestSchemaDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "loads.yml"), []byte(`key: cli-loads
label: Loads
columnsConfig:
  - fieldName: loadId
    displayName: Load ID
`), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		all := core.All()
		core.Clear()
		for _, c := range all {
			if c.Key != "cli-loads" {
				core.Register(c)
			}
		}
	})

	out, err := run(t, "schemas", "--schema-dir", dir)
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	if !strings.Contains(out, "cli-loads") {
		t.Errorf("output missing cli-loads:\n%s", out)
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
