package web

import (
	"net/http"
	"strconv"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/logging"
	"github.com/JonMunkholm/bulkupload/internal/source"
	"github.com/JonMunkholm/bulkupload/internal/store"
	"github.com/go-chi/chi/v5"
)

// configInfo is the JSON listing entry of an upload config.
type configInfo struct {
	Key                string   `json:"key"`
	Label              string   `json:"label"`
	Columns            int      `json:"columns"`
	AcceptedFileTypes  []string `json:"acceptedFileTypes"`
	MaxFileSizeMB      int      `json:"maxFileSizeMB"`
	AllowMultipleFiles bool     `json:"allowMultipleFiles"`
	EnableMapping      bool     `json:"enableMapping"`
}

// configs returns every registered config with server defaults applied.
func (s *Server) configs() []core.UploadConfig {
	all := core.All()
	for i := range all {
		all[i] = s.effective(all[i])
	}
	return all
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	render(w, r, layout("Bulk uploads", dashboardView(s.configs())))
}

func (s *Server) handleConfigPage(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(chi.URLParam(r, "configKey"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	cfg := orch.Config()
	render(w, r, layout(cfg.Label, configView(cfg)))
}

func (s *Server) handleUploadPage(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "uploadID"))
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	v := sess.view()
	render(w, r, layout(v.File.Name, uploadResultView(v)))
}

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	all := s.configs()
	out := make([]configInfo, len(all))
	for i, c := range all {
		out[i] = configInfo{
			Key:                c.Key,
			Label:              c.Label,
			Columns:            len(c.Columns),
			AcceptedFileTypes:  c.AcceptedFileTypes,
			MaxFileSizeMB:      c.MaxFileSizeMB,
			AllowMultipleFiles: c.AllowMultipleFiles,
			EnableMapping:      c.EnableMapping,
		}
	}
	writeJSON(w, out)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(chi.URLParam(r, "configKey"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, orch.Config())
}

// handleDownloadTemplate serves a header-only CSV of the config's columns.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(chi.URLParam(r, "configKey"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	cfg := orch.Config()

	setAttachment(w, cfg.Key+"_template.csv")
	if err := source.WriteTemplate(w, cfg); err != nil {
		logging.FromContext(r.Context()).Error("template export failed", "config", cfg.Key, "error", err)
	}
}

// handleListHistory returns recorded uploads, newest first.
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errHistoryDisabled, statusFor(errHistoryDisabled))
		return
	}

	q := r.URL.Query()
	uploads, err := s.history.ListUploads(r.Context(), store.ListFilter{
		ConfigKey: q.Get("config"),
		Limit:     queryInt(r, "limit", store.DefaultPageSize),
		Offset:    queryInt(r, "offset", 0),
	})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		render(w, r, historyView(uploads))
		return
	}
	writeJSON(w, uploads)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errHistoryDisabled, statusFor(errHistoryDisabled))
		return
	}
	u, err := s.history.GetUpload(r.Context(), chi.URLParam(r, "uploadID"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	writeJSON(w, u)
}

func (s *Server) handleHistoryErrors(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, r, errHistoryDisabled, statusFor(errHistoryDisabled))
		return
	}
	id := chi.URLParam(r, "uploadID")
	if _, err := s.history.GetUpload(r.Context(), id); err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	errs, err := s.history.GetErrors(r.Context(), id,
		queryInt(r, "limit", store.DefaultPageSize), queryInt(r, "offset", 0))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		setAttachment(w, "errors_"+id+".csv")
		if err := source.WriteErrors(w, errs); err != nil {
			logging.FromContext(r.Context()).Error("error export failed", "upload_id", id, "error", err)
		}
		return
	}
	writeJSON(w, errs)
}

// queryInt parses a non-negative integer query parameter.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil || i < 0 {
		return def
	}
	return i
}
