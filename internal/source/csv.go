// Package source turns uploaded files into records for the core pipeline.
package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// MaxHeaderSearchRows limits how many non-empty rows are searched for the header.
const MaxHeaderSearchRows = 10

// cancelCheckRows is how often the reader checks for cancellation.
const cancelCheckRows = 1000

var (
	ErrEmptyFile = errors.New("empty file")
	ErrNoFile    = errors.New("no file provided")
)

// Options control CSV decoding.
type Options struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune

	// HeaderHints are names expected in the header row. When set, the first
	// row within MaxHeaderSearchRows containing any hint is the header, and
	// rows above it are dropped. When no row matches, the row most similar
	// to the hints is used, falling back to the first non-empty row.
	HeaderHints []string
}

// OptionsFor builds Options whose hints are the field and display names of cfg.
func OptionsFor(cfg core.UploadConfig) Options {
	return Options{HeaderHints: append(cfg.FieldNames(), cfg.DisplayNames()...)}
}

// Opener is a file handle stored in BulkUploadFile.Source.
type Opener interface {
	Open() (io.ReadCloser, error)
}

// Bytes is an in-memory upload.
type Bytes []byte

// Open implements Opener.
func (b Bytes) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Path is an upload spooled to disk.
type Path string

// Open implements Opener.
func (p Path) Open() (io.ReadCloser, error) {
	return os.Open(string(p))
}

// Uploader returns a core.UploadFunc that reads CSV from the file's Opener.
func Uploader(opts Options) core.UploadFunc {
	return func(ctx context.Context, f *core.BulkUploadFile, report core.ReportFunc) ([]core.Record, error) {
		src, ok := f.Source.(Opener)
		if !ok || src == nil {
			return nil, ErrNoFile
		}
		rc, err := src.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", f.Name, err)
		}
		defer rc.Close()

		return Read(ctx, rc, f.Size, opts, report)
	}
}

// Read decodes CSV from r. Rows are numbered from 1 starting after the
// header; blank rows are skipped and not numbered. Each record also carries
// the physical line it starts on, which is what a spreadsheet shows. Cells
// are cleaned of spreadsheet artifacts and kept as text for the rule
// evaluator to coerce. A file with a header and no data rows yields no
// records and no error.
func Read(ctx context.Context, r io.Reader, size int64, opts Options, report core.ReportFunc) ([]core.Record, error) {
	counter := NewCountingReader(r, size, report)

	cr := csv.NewReader(Decode(counter))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}

	var (
		headers []string
		pending []sourceLine
		records []core.Record
	)

	add := func(l sourceLine) error {
		if len(records)%cancelCheckRows == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		records = append(records, core.Record{
			Index: len(records) + 1,
			Line:  l.line,
			Row:   buildRow(headers, l.cells),
		})
		return nil
	}

	// settle picks a header from the buffered rows; the rest become data.
	settle := func() error {
		h := pickHeader(pending, opts.HeaderHints)
		headers = uniqueHeaders(pending[h].cells)
		rest := pending[h+1:]
		pending = nil
		for _, l := range rest {
			if err := add(l); err != nil {
				return err
			}
		}
		return nil
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		if isEmptyRow(row) {
			continue
		}
		line, _ := cr.FieldPos(0)

		if headers == nil {
			if isHeaderRow(row, opts.HeaderHints) {
				headers = uniqueHeaders(row)
				pending = nil
				continue
			}
			pending = append(pending, sourceLine{cells: row, line: line})
			if len(pending) >= MaxHeaderSearchRows {
				if err := settle(); err != nil {
					return nil, err
				}
			}
			continue
		}

		if err := add(sourceLine{cells: row, line: line}); err != nil {
			return nil, err
		}
	}

	if headers == nil {
		if len(pending) == 0 {
			return nil, ErrEmptyFile
		}
		if err := settle(); err != nil {
			return nil, err
		}
	}
	if report != nil {
		report(100)
	}
	return records, nil
}

// sourceLine is a raw CSV row and the line it starts on.
type sourceLine struct {
	cells []string
	line  int
}

// pickHeader chooses the header among rows that matched no hint exactly.
// Each row scores the summed similarity of cells that resemble a hint at
// the default mapping threshold. The best row wins, the earliest on ties;
// when nothing resembles a hint the first row is the header. Mapping the
// chosen headers to columns is left to the orchestrator.
func pickHeader(rows []sourceLine, hints []string) int {
	if len(hints) == 0 {
		return 0
	}
	best, bestScore := 0, 0.0
	for i, l := range rows {
		var score float64
		for _, cell := range l.cells {
			score += hintScore(core.CleanCell(cell), hints)
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// hintScore is the best similarity of cell to any hint, or 0 below threshold.
func hintScore(cell string, hints []string) float64 {
	if cell == "" {
		return 0
	}
	var best float64
	for _, h := range hints {
		if s := core.Similarity(cell, h); s > best {
			best = s
		}
	}
	if best < core.DefaultMappingThreshold {
		return 0
	}
	return best
}

func buildRow(headers, cells []string) core.Row {
	row := core.NewRow(len(headers))
	for i, h := range headers {
		if i >= len(cells) {
			break
		}
		cell := core.CleanCell(cells[i])
		if cell == "" {
			row.Set(h, core.EmptyValue())
			continue
		}
		row.Set(h, core.StringValue(cell))
	}
	return row
}

// isHeaderRow reports whether row contains any hint after normalization.
// Without hints every non-empty row qualifies.
func isHeaderRow(row []string, hints []string) bool {
	if len(hints) == 0 {
		return true
	}
	want := make(map[string]bool, len(hints))
	for _, h := range hints {
		if n := core.NormalizeHeader(h); n != "" {
			want[n] = true
		}
	}
	for _, cell := range row {
		if want[core.NormalizeHeader(core.CleanCell(cell))] {
			return true
		}
	}
	return false
}

// uniqueHeaders cleans header cells, names blank ones by position and
// suffixes repeats so that every header is a distinct row key.
func uniqueHeaders(row []string) []string {
	out := make([]string, len(row))
	seen := make(map[string]int, len(row))
	for i, cell := range row {
		h := core.CleanCell(cell)
		if h == "" {
			h = fmt.Sprintf("Column %d", i+1)
		}
		seen[h]++
		if n := seen[h]; n > 1 {
			h = fmt.Sprintf("%s (%d)", h, n)
		}
		out[i] = h
	}
	return out
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
