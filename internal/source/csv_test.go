package source

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

func rowsAsText(records []core.Record) []map[string]string {
	out := make([]map[string]string, len(records))
	for i, rec := range records {
		m := make(map[string]string)
		for _, k := range rec.Row.Keys() {
			v, _ := rec.Row.Get(k)
			m[k] = v.Text()
		}
		out[i] = m
	}
	return out
}

func TestRead(t *testing.T) {
	input := "\xEF\xBB\xBFEmail,Name\r\na@b.com,Ann\r\n,,\r\n=\"c@d.com\", Bob \r\n"

	records, err := Read(context.Background(), strings.NewReader(input), int64(len(input)), Options{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	want := []map[string]string{
		{"Email": "a@b.com", "Name": "Ann"},
		{"Email": "c@d.com", "Name": "Bob"},
	}
	if diff := cmp.Diff(want, rowsAsText(records)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	if records[0].Index != 1 || records[1].Index != 2 {
		t.Errorf("indexes = %d, %d; want 1, 2", records[0].Index, records[1].Index)
	}
	if records[0].Line != 2 || records[1].Line != 4 {
		t.Errorf("lines = %d, %d; want 2, 4", records[0].Line, records[1].Line)
	}
	if diff := cmp.Diff([]string{"Email", "Name"}, records[0].Row.Keys()); diff != "" {
		t.Errorf("header order mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_HeaderSearch(t *testing.T) {
	input := "Trip export,,\nGenerated 2025-01-01,,\nTrip ID,Driver Email,Weight\nAB-1234,a@b.com,100\n"
	opts := Options{HeaderHints: []string{"tripId", "Driver Email"}}

	records, err := Read(context.Background(), strings.NewReader(input), 0, opts, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if v, _ := records[0].Row.Get("Trip ID"); v.Text() != "AB-1234" {
		t.Errorf("Trip ID = %q", v.Text())
	}
}

func TestRead_Lines(t *testing.T) {
	input := "Report\n\nEmail\na@b.com\n\n\"multi\nline\"\nc@d.com\n"
	opts := Options{HeaderHints: []string{"email"}}

	records, err := Read(context.Background(), strings.NewReader(input), 0, opts, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	type pos struct{ Index, Line int }
	var got []pos
	for _, rec := range records {
		got = append(got, pos{rec.Index, rec.Line})
	}
	want := []pos{{1, 4}, {2, 6}, {3, 8}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("positions mismatch (-want +got):\n%s", diff)
	}
}

func TestRead_HeaderFallback(t *testing.T) {
	hints := Options{HeaderHints: []string{"email", "Email Address", "name", "Full Name"}}
	tooDeep := strings.Repeat("junk\n", MaxHeaderSearchRows) + "email\na@b.com\n"

	tests := []struct {
		name        string
		input       string
		wantHeaders []string
		wantRecords int
		wantLine    int
	}{
		{
			name:        "fuzzy header below preamble",
			input:       "Contacts export\nE-mail Addr,Full Nme\na@b.com,Ann\n",
			wantHeaders: []string{"E-mail Addr", "Full Nme"},
			wantRecords: 1,
			wantLine:    3,
		},
		{
			name:        "nothing resembles a hint",
			input:       "WrongName\na@b.com\nc@d.com\n",
			wantHeaders: []string{"WrongName"},
			wantRecords: 2,
			wantLine:    2,
		},
		{
			name:        "exact header beyond search window",
			input:       tooDeep,
			wantHeaders: []string{"junk"},
			wantRecords: MaxHeaderSearchRows + 1,
			wantLine:    2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Read(context.Background(), strings.NewReader(tt.input), 0, hints, nil)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if len(records) != tt.wantRecords {
				t.Fatalf("got %d records, want %d", len(records), tt.wantRecords)
			}
			if diff := cmp.Diff(tt.wantHeaders, core.HeadersOf(records)); diff != "" {
				t.Errorf("headers mismatch (-want +got):\n%s", diff)
			}
			if records[0].Index != 1 || records[0].Line != tt.wantLine {
				t.Errorf("first record = row %d line %d, want row 1 line %d",
					records[0].Index, records[0].Line, tt.wantLine)
			}
		})
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		opts    Options
		wantErr error
	}{
		{"empty", "", Options{}, ErrEmptyFile},
		{"blank lines only", "\n , \n", Options{}, ErrEmptyFile},
		{"blank lines with hints", "\n\n", Options{HeaderHints: []string{"email"}}, ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(context.Background(), strings.NewReader(tt.input), 0, tt.opts, nil)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRead_ReaderError(t *testing.T) {
	_, err := Read(context.Background(), iotest.ErrReader(errors.New("connection reset")), 0, Options{}, nil)
	if err == nil || !strings.Contains(err.Error(), "parse csv") {
		t.Errorf("err = %v, want parse csv error", err)
	}
	if got := core.MapError(err).Code; got != "FILE003" {
		t.Errorf("MapError code = %s, want FILE003", got)
	}
}

func TestRead_HeaderOnly(t *testing.T) {
	records, err := Read(context.Background(), strings.NewReader("email,name\n"), 0, Options{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("got %d records, want 0", len(records))
	}
}

func TestRead_ShortAndDuplicateColumns(t *testing.T) {
	input := "Name,Name,,Extra\nAnn,Annie\n"
	records, err := Read(context.Background(), strings.NewReader(input), 0, Options{}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if diff := cmp.Diff([]string{"Name", "Name (2)"}, records[0].Row.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if _, ok := records[0].Row.Get("Extra"); ok {
		t.Error("missing trailing cell should be absent from the row")
	}
}

func TestRead_Semicolon(t *testing.T) {
	records, err := Read(context.Background(), strings.NewReader("a;b\n1;2\n"), 0, Options{Comma: ';'}, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if v, _ := records[0].Row.Get("b"); v.Text() != "2" {
		t.Errorf("b = %q, want 2", v.Text())
	}
}

func TestRead_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Read(ctx, strings.NewReader("a\n1\n"), 0, Options{}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestUploader(t *testing.T) {
	cfg := core.UploadConfig{
		Key:           "contacts",
		EnableMapping: true,
		Columns: []core.ColumnConfig{
			{FieldName: "email", DisplayName: "Email", Rules: &core.ValidationRule{Type: core.TypeEmail, Required: true}},
		},
	}
	data := Bytes("E-mail\na@b.com\nbad\n")

	var progress []core.UploadProgress
	o, err := core.NewOrchestrator(cfg,
		core.WithUploader(Uploader(OptionsFor(cfg))),
		core.WithProgress(func(p core.UploadProgress) { progress = append(progress, p) }),
	)
	if err != nil {
		t.Fatal(err)
	}

	f := o.NewFile("contacts.csv", int64(len(data)), "text/csv", data)
	summary, err := o.Process(context.Background(), f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if summary.TotalRows != 2 || summary.SuccessCount != 1 || summary.ErrorCount != 1 {
		t.Errorf("summary = %+v", summary)
	}

	sawUpload := false
	for _, p := range progress {
		if p.Status == core.StatusUploading && p.Progress > 0 {
			sawUpload = true
		}
	}
	if !sawUpload {
		t.Error("no upload progress reported from the byte counter")
	}
}

func TestUploader_FuzzyHeader(t *testing.T) {
	cfg := core.UploadConfig{
		Key:           "contacts",
		EnableMapping: true,
		Columns: []core.ColumnConfig{
			{FieldName: "email", DisplayName: "Email Address", Rules: &core.ValidationRule{Type: core.TypeEmail, Required: true}},
		},
	}
	data := Bytes("E-mail Addr\na@b.com\nbad\n")

	o, err := core.NewOrchestrator(cfg, core.WithUploader(Uploader(OptionsFor(cfg))))
	if err != nil {
		t.Fatal(err)
	}
	f := o.NewFile("contacts.csv", int64(len(data)), "text/csv", data)
	summary, err := o.Process(context.Background(), f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if snap, _ := o.File(f.ID); snap.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if summary.TotalRows != 2 || summary.SuccessCount != 1 || summary.ErrorCount != 1 {
		t.Errorf("summary = %+v", summary)
	}
	want := []core.UploadError{{Row: 2, Line: 3, Column: "email", Error: "Invalid email", Value: core.StringValue("bad")}}
	if diff := cmp.Diff(want, summary.Errors, cmp.Comparer(sameText)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestUploader_UnmatchedHeaderWithoutMapping(t *testing.T) {
	cfg := core.UploadConfig{
		Key: "contacts",
		Columns: []core.ColumnConfig{
			{FieldName: "email", DisplayName: "Email", Rules: &core.ValidationRule{Type: core.TypeEmail, Required: true}},
		},
	}
	data := Bytes("WrongName\na@b.com\nc@d.com\n")

	o, err := core.NewOrchestrator(cfg, core.WithUploader(Uploader(OptionsFor(cfg))))
	if err != nil {
		t.Fatal(err)
	}
	f := o.NewFile("contacts.csv", int64(len(data)), "text/csv", data)
	summary, err := o.Process(context.Background(), f)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if snap, _ := o.File(f.ID); snap.Status != core.StatusCompleted {
		t.Errorf("status = %s, want completed", snap.Status)
	}
	if summary.TotalRows != 2 || summary.SuccessCount != 0 || summary.ErrorCount != 2 {
		t.Errorf("summary = %+v, want 2 rows all rejected", summary)
	}
	want := []core.UploadError{
		{Row: 1, Line: 2, Column: "email", Error: core.MsgRequired, Value: core.EmptyValue()},
		{Row: 2, Line: 3, Column: "email", Error: core.MsgRequired, Value: core.EmptyValue()},
	}
	if diff := cmp.Diff(want, summary.Errors, cmp.Comparer(sameText)); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func sameText(a, b core.Value) bool { return a.Text() == b.Text() }

func TestUploader_NoSource(t *testing.T) {
	up := Uploader(Options{})
	_, err := up(context.Background(), &core.BulkUploadFile{Name: "x.csv"}, nil)
	if !errors.Is(err, ErrNoFile) {
		t.Errorf("err = %v, want ErrNoFile", err)
	}
}

func TestWriteTemplate(t *testing.T) {
	cfg := core.UploadConfig{Columns: []core.ColumnConfig{
		{FieldName: "email", DisplayName: "Email, work"},
		{FieldName: "age"},
	}}
	var buf bytes.Buffer
	if err := WriteTemplate(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	if got, want := buf.String(), "\"Email, work\",age\n"; got != want {
		t.Errorf("template = %q, want %q", got, want)
	}
}

func TestWriteErrors(t *testing.T) {
	var buf bytes.Buffer
	errs := []core.UploadError{
		{Row: 2, Line: 4, Column: "email", Error: "Invalid email", Value: core.StringValue("bad")},
		{Row: 3, Column: "email", Error: core.MsgRequired},
	}
	if err := WriteErrors(&buf, errs); err != nil {
		t.Fatal(err)
	}
	want := "row,line,column,error,value\n2,4,email,Invalid email,bad\n3,,email,Field is required,\n"
	if buf.String() != want {
		t.Errorf("errors csv = %q, want %q", buf.String(), want)
	}
}
