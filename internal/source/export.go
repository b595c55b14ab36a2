package source

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// WriteTemplate writes a header-only CSV with the display names of cfg.
// Columns without a display name use their field name.
func WriteTemplate(w io.Writer, cfg core.UploadConfig) error {
	header := make([]string, len(cfg.Columns))
	for i, col := range cfg.Columns {
		header[i] = col.DisplayName
		if header[i] == "" {
			header[i] = col.FieldName
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteErrors writes one CSV line per UploadError so users can fix their
// file offline. The row column counts data rows after the header; the line
// column is the line in the uploaded file, blank when unknown.
func WriteErrors(w io.Writer, errs []core.UploadError) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"row", "line", "column", "error", "value"}); err != nil {
		return err
	}
	for _, e := range errs {
		line := ""
		if e.Line > 0 {
			line = strconv.Itoa(e.Line)
		}
		rec := []string{strconv.Itoa(e.Row), line, e.Column, e.Error, e.Value.Text()}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteRecords writes records as CSV with the given headers, in record order.
func WriteRecords(w io.Writer, headers []string, records []core.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"row"}, headers...)); err != nil {
		return err
	}
	line := make([]string, len(headers)+1)
	for _, rec := range records {
		line[0] = strconv.Itoa(rec.Index)
		for i, h := range headers {
			v, _ := rec.Row.Get(h)
			line[i+1] = v.Text()
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
