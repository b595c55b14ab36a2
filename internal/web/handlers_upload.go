package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/logging"
	"github.com/JonMunkholm/bulkupload/internal/source"
	"github.com/go-chi/chi/v5"
)

const (
	// multipartMemory is kept in memory by ParseMultipartForm; the rest spills to disk.
	multipartMemory = 32 << 20

	// maxBatchFiles caps one multi-file request.
	maxBatchFiles = 20

	previewErrorLimit = 50
	heartbeatInterval = 15 * time.Second
)

var errStreaming = errors.New("streaming not supported")

// uploadRef points a client at a newly accepted file.
type uploadRef struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Status    core.FileStatus `json:"status"`
	EventsURL string          `json:"eventsUrl"`
	ResultURL string          `json:"resultUrl"`
}

func refFor(f *core.BulkUploadFile) uploadRef {
	return uploadRef{
		ID:        f.ID,
		Name:      f.Name,
		Status:    f.Status,
		EventsURL: "/api/uploads/" + f.ID + "/events",
		ResultURL: "/api/uploads/" + f.ID,
	}
}

// parseFiles limits the request body and returns the multipart file headers.
func (s *Server) parseFiles(w http.ResponseWriter, r *http.Request, cfg core.UploadConfig) ([]*multipart.FileHeader, error) {
	maxFiles := int64(1)
	if cfg.AllowMultipleFiles {
		maxFiles = maxBatchFiles
	}
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxFileSizeBytes()*maxFiles+multipartMemory)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, fmt.Errorf("%w: request exceeds %d bytes", core.ErrFileTooLarge, tooBig.Limit)
		}
		return nil, fmt.Errorf("invalid form: %w", err)
	}

	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		return nil, source.ErrNoFile
	}
	if len(files) > 1 && !cfg.AllowMultipleFiles {
		return nil, fmt.Errorf("%w: got %d files", core.ErrMultipleFiles, len(files))
	}
	if int64(len(files)) > maxFiles {
		return nil, fmt.Errorf("%w: at most %d files per request", core.ErrMultipleFiles, maxFiles)
	}
	return files, nil
}

// readFile buffers one uploaded part. Anything past limit is not read; the
// declared size still fails the orchestrator's size check.
func readFile(fh *multipart.FileHeader, limit int64) (source.Bytes, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
	}
	return source.Bytes(data), nil
}

// handleUpload accepts one or more CSV files and processes them in the
// background. Progress is available from the events stream of each file.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "configKey")
	orch, err := s.orchestrator(key)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	cfg := orch.Config()

	parts, err := s.parseFiles(w, r, cfg)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	files := make([]*core.BulkUploadFile, 0, len(parts))
	refs := make([]uploadRef, 0, len(parts))
	for _, fh := range parts {
		data, err := readFile(fh, cfg.MaxFileSizeBytes())
		if err != nil {
			respondError(w, r, err, http.StatusBadRequest)
			return
		}
		f := orch.NewFile(fh.Filename, fh.Size, fh.Header.Get("Content-Type"), data)
		files = append(files, f)
		refs = append(refs, refFor(f))
	}

	s.start(orch, files)

	meta := requestMeta(r)
	logging.WithFields(r.Context(), "config", key, "files", len(files),
		"ip", meta.IP, "user_agent", meta.UserAgent).Info("upload accepted")

	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusAccepted)
		render(w, r, uploadRefsView(refs))
		return
	}
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"uploads": refs})
}

// previewResponse describes what an upload would produce without running it.
type previewResponse struct {
	Headers     []string                `json:"headers"`
	Mapping     []core.ColumnMapping    `json:"mapping"`
	Candidates  []core.MappingCandidate `json:"candidates"`
	Summary     core.UploadSummary      `json:"summary"`
	ErrorsShown int                     `json:"errorsShown"`
}

// handlePreview maps and validates one file synchronously. Nothing is
// tracked or recorded.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	orch, err := s.orchestrator(chi.URLParam(r, "configKey"))
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	cfg := orch.Config()

	parts, err := s.parseFiles(w, r, core.UploadConfig{MaxFileSizeMB: cfg.MaxFileSizeMB})
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}
	fh := parts[0]
	if limit := cfg.MaxFileSizeBytes(); fh.Size > limit {
		err := fmt.Errorf("%w: %d bytes", core.ErrFileTooLarge, fh.Size)
		respondError(w, r, err, statusFor(err))
		return
	}
	if !cfg.Accepts(fh.Filename, fh.Header.Get("Content-Type")) {
		err := fmt.Errorf("%w: %s", core.ErrFileType, fh.Filename)
		respondError(w, r, err, statusFor(err))
		return
	}

	data, err := readFile(fh, cfg.MaxFileSizeBytes())
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}
	records, err := source.Read(r.Context(), bytes.NewReader(data), fh.Size, source.OptionsFor(cfg), nil)
	if err != nil {
		respondError(w, r, err, statusFor(err))
		return
	}

	headers := core.HeadersOf(records)
	summary, mapping := orch.Summarize(records)
	resp := previewResponse{
		Headers:    headers,
		Mapping:    mapping,
		Candidates: orch.Mapper().Candidates(headers, cfg.Columns),
		Summary:    summary,
	}
	if len(resp.Summary.Errors) > previewErrorLimit {
		resp.Summary.Errors = resp.Summary.Errors[:previewErrorLimit]
	}
	resp.ErrorsShown = len(resp.Summary.Errors)

	writeJSON(w, resp)
}

// handleUploadEvents streams progress via Server-Sent Events. The event ID
// is a per-upload sequence number; a reconnecting client sends it back in
// Last-Event-ID (or lastEventId) and only newer state is replayed.
func (s *Server) handleUploadEvents(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "uploadID"))
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errStreaming, http.StatusInternalServerError)
		return
	}

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("lastEventId")
	}
	sent, _ := strconv.Atoi(lastID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		ev, seq, done, changed := sess.watch()
		if seq > sent {
			data, _ := json.Marshal(ev)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", seq, data)
			sent = seq
			flusher.Flush()
		}
		if done {
			data, _ := json.Marshal(sess.view())
			fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
			flusher.Flush()
			return
		}

		select {
		case <-changed:
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// handleUploadResult returns the current state and, once completed, the summary.
func (s *Server) handleUploadResult(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessions.get(chi.URLParam(r, "uploadID"))
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	if isHTMX(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		render(w, r, uploadResultView(sess.view()))
		return
	}
	writeJSON(w, sess.view())
}

// handleDiscard drops an upload. In-flight work is cancelled and the
// upload disappears from every endpoint.
func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	sess, ok := s.sessions.get(id)
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	sess.orch.Discard(id)
	sess.close()
	s.sessions.remove(id)

	logging.WithFields(r.Context(), "upload_id", id).Info("upload discarded by client")
	w.WriteHeader(http.StatusNoContent)
}

// handleRetry starts a fresh upload from the contents of a failed one.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	sess, ok := s.sessions.get(id)
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	f, ok := sess.orch.File(id)
	if !ok {
		respondError(w, r, fmt.Errorf("%w: %s expired", core.ErrUploadNotFound, id), http.StatusNotFound)
		return
	}
	switch f.Status {
	case core.StatusError, core.StatusPending:
	case core.StatusCompleted:
		err := fmt.Errorf("%w: %s", core.ErrTerminalState, id)
		respondError(w, r, err, http.StatusConflict)
		return
	default:
		err := fmt.Errorf("%w: %s", core.ErrAlreadyStarted, id)
		respondError(w, r, err, http.StatusConflict)
		return
	}

	next := sess.orch.Retry(&f)
	s.start(sess.orch, []*core.BulkUploadFile{next})

	logging.WithFields(r.Context(), "upload_id", id, "retry_id", next.ID).Info("upload retried")
	writeJSONStatus(w, http.StatusAccepted, map[string]any{"uploads": []uploadRef{refFor(next)}})
}

// handleExportErrors downloads the field errors of a completed upload as CSV.
func (s *Server) handleExportErrors(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	sess, ok := s.sessions.get(id)
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	errs, ok := sess.errors()
	if !ok {
		respondError(w, r, errNotCompleted, http.StatusConflict)
		return
	}

	setAttachment(w, "errors_"+id+".csv")
	if err := source.WriteErrors(w, errs); err != nil {
		logging.FromContext(r.Context()).Error("error export failed", "upload_id", id, "error", err)
	}
}

// handleExportData downloads the rows that passed validation and
// deduplication, with their original headers.
func (s *Server) handleExportData(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "uploadID")
	sess, ok := s.sessions.get(id)
	if !ok {
		respondError(w, r, core.ErrUploadNotFound, http.StatusNotFound)
		return
	}
	headers, records, ok := sess.records()
	if !ok {
		respondError(w, r, errNotCompleted, http.StatusConflict)
		return
	}

	setAttachment(w, "data_"+id+".csv")
	if err := source.WriteRecords(w, headers, records); err != nil {
		logging.FromContext(r.Context()).Error("data export failed", "upload_id", id, "error", err)
	}
}

func setAttachment(w http.ResponseWriter, filename string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
}
