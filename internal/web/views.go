package web

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/logging"
	"github.com/JonMunkholm/bulkupload/internal/store"
	"github.com/a-h/templ"
)

var esc = templ.EscapeString

// render writes c as the response body and logs a failed write.
func render(w http.ResponseWriter, r *http.Request, c templ.Component) {
	if err := c.Render(r.Context(), w); err != nil {
		logging.FromContext(r.Context()).Error("render failed", "path", r.URL.Path, "error", err)
	}
}

// htmxSrc is served by the CDN; pages work without it as plain forms.
const htmxSrc = "https://unpkg.com/htmx.org@2.0.4"

// layout wraps body in the common page shell.
func layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`+
			`<title>%s</title><script src="%s"></script></head><body><main>`,
			esc(title), htmxSrc)
		if err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err = io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func errorAlert(msg core.UserMessage) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="alert alert-error" role="alert"><strong>%s</strong>`,
			esc(msg.Message))
		if err != nil {
			return err
		}
		if msg.Action != "" {
			if _, err := fmt.Fprintf(w, `<p>%s</p>`, esc(msg.Action)); err != nil {
				return err
			}
		}
		_, err = fmt.Fprintf(w, `<small>Code: %s</small></div>`, esc(msg.Code))
		return err
	})
}

func dashboardView(configs []core.UploadConfig) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<h1>Bulk uploads</h1><ul class="configs">`); err != nil {
			return err
		}
		for _, c := range configs {
			label := c.Label
			if label == "" {
				label = c.Key
			}
			_, err := fmt.Fprintf(w, `<li><a href="/configs/%s">%s</a> <small>%d columns</small></li>`,
				esc(c.Key), esc(label), len(c.Columns))
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}

func configView(c core.UploadConfig) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<h1>%s</h1><p><a href="/api/configs/%s/template">Download template</a></p>`,
			esc(c.Label), esc(c.Key))
		if err != nil {
			return err
		}
		if _, err := io.WriteString(w, `<table><thead><tr><th>Column</th><th>Type</th><th>Required</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, col := range c.Columns {
			typ, required := "", false
			if col.Rules != nil {
				typ, required = string(col.Rules.Type), col.Rules.Required
			}
			_, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%t</td></tr>`,
				esc(col.DisplayName), esc(typ), required)
			if err != nil {
				return err
			}
		}
		multiple := ""
		if c.AllowMultipleFiles {
			multiple = " multiple"
		}
		_, err = fmt.Fprintf(w, `</tbody></table>`+
			`<form hx-post="/api/configs/%s/uploads" hx-encoding="multipart/form-data" hx-target="#uploads">`+
			`<input type="file" name="file" accept="%s"%s><button type="submit">Upload</button></form>`+
			`<div id="uploads"></div>`,
			esc(c.Key), esc(strings.Join(c.AcceptedFileTypes, ",")), multiple)
		return err
	})
}

func uploadRefsView(refs []uploadRef) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		for _, ref := range refs {
			_, err := fmt.Fprintf(w, `<div class="upload" hx-ext="sse" sse-connect="%s" sse-swap="complete">`+
				`<a href="/uploads/%s">%s</a> <span class="status">%s</span></div>`,
				esc(ref.EventsURL), esc(ref.ID), esc(ref.Name), esc(string(ref.Status)))
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func uploadResultView(v sessionView) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		f := v.File
		_, err := fmt.Fprintf(w, `<section class="upload-result"><h2>%s</h2><p>Status: %s (%d%%)</p>`,
			esc(f.Name), esc(string(f.Status)), f.Progress)
		if err != nil {
			return err
		}
		if f.Message != "" {
			if _, err := fmt.Fprintf(w, `<p class="error">%s</p>`, esc(f.Message)); err != nil {
				return err
			}
		}
		if s := v.Summary; s != nil {
			_, err := fmt.Fprintf(w, `<dl><dt>Rows</dt><dd>%d</dd><dt>Imported</dt><dd>%d</dd>`+
				`<dt>Errors</dt><dd>%d</dd><dt>Duplicates</dt><dd>%d</dd></dl>`+
				`<p><a href="/api/uploads/%s/data.csv">Clean rows</a> · <a href="/api/uploads/%s/errors.csv">Errors</a></p>`,
				s.TotalRows, s.SuccessCount, s.ErrorCount, s.DuplicateCount, esc(f.ID), esc(f.ID))
			if err != nil {
				return err
			}
			if err := errorTable(s.Errors).Render(ctx, w); err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, `</section>`)
		return err
	})
}

func lineText(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}

func errorTable(errs []core.UploadError) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(errs) == 0 {
			return nil
		}
		if _, err := io.WriteString(w, `<table class="errors"><thead><tr><th>Row</th><th>Line</th><th>Column</th><th>Error</th><th>Value</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, e := range errs {
			_, err := fmt.Fprintf(w, `<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				e.Row, lineText(e.Line), esc(e.Column), esc(e.Error), esc(e.Value.Text()))
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}

func historyView(uploads []store.Upload) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if len(uploads) == 0 {
			_, err := io.WriteString(w, `<p class="empty">No uploads yet.</p>`)
			return err
		}
		if _, err := io.WriteString(w, `<table class="history"><thead><tr><th>File</th><th>Config</th><th>Status</th>`+
			`<th>Rows</th><th>Imported</th><th>Errors</th><th>Duplicates</th><th>Finished</th></tr></thead><tbody>`); err != nil {
			return err
		}
		for _, u := range uploads {
			_, err := fmt.Fprintf(w, `<tr><td>%s</td><td>%s</td><td>%s</td><td>%d</td><td>%d</td><td>%d</td><td>%d</td><td>%s</td></tr>`,
				esc(u.FileName), esc(u.ConfigKey), esc(string(u.Status)),
				u.TotalRows, u.SuccessCount, u.ErrorCount, u.DuplicateCount,
				esc(u.FinishedAt.Format("2006-01-02 15:04")))
			if err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</tbody></table>`)
		return err
	})
}

