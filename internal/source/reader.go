package source

// reader.go prepares raw upload bytes for CSV parsing.
//
// Uploaded spreadsheets come from Excel, Google Sheets and hand-edited
// files. Decode strips a UTF-8 BOM, honors UTF-16 BOMs from Excel's
// "Unicode Text" export and replaces invalid UTF-8 with U+FFFD, all while
// streaming. CountingReader sits below decoding so progress is measured in
// bytes of the original file.

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode wraps r so that it yields valid UTF-8 without a byte order mark.
func Decode(r io.Reader) io.Reader {
	return transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
}

// CountingReader tracks bytes read and reports whole-percent progress
// whenever it changes.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
	Total     int64 // 0 if unknown

	report func(percent int)
	last   int
}

// NewCountingReader creates a counting reader. report may be nil.
func NewCountingReader(r io.Reader, total int64, report func(percent int)) *CountingReader {
	return &CountingReader{
		reader: r,
		Total:  total,
		report: report,
		last:   -1,
	}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)

	if r.report != nil {
		if pct := r.Progress(); pct != r.last {
			r.last = pct
			r.report(pct)
		}
	}
	return n, err
}

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (r *CountingReader) Progress() int {
	if r.Total <= 0 {
		return 0
	}
	return int(min(r.BytesRead*100/r.Total, 100))
}
