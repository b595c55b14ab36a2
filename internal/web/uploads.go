package web

import (
	"context"
	"errors"
	"time"

	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/source"
	"github.com/JonMunkholm/bulkupload/internal/store"
)

// historyWriteTimeout bounds one SaveSummary call.
const historyWriteTimeout = 10 * time.Second

// effective fills the gaps of an upload config with server defaults.
func (s *Server) effective(cfg core.UploadConfig) core.UploadConfig {
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = s.cfg.Upload.MaxFileSizeMB
	}
	if len(cfg.AcceptedFileTypes) == 0 {
		cfg.AcceptedFileTypes = s.cfg.Upload.AcceptedFileTypes
	}
	if cfg.MappingThreshold == 0 {
		cfg.MappingThreshold = s.cfg.Mapping.Threshold
	}
	if !s.cfg.Mapping.Enabled {
		cfg.EnableMapping = false
	}
	return cfg
}

// orchestrator returns the cached orchestrator for an upload config key.
func (s *Server) orchestrator(key string) (*core.Orchestrator, error) {
	s.orchMu.Lock()
	defer s.orchMu.Unlock()

	if o, ok := s.orchs[key]; ok {
		return o, nil
	}

	cfg, err := core.Lookup(key)
	if err != nil {
		return nil, err
	}
	cfg = s.effective(cfg)

	o, err := core.NewOrchestrator(cfg,
		core.WithUploader(s.uploader(source.OptionsFor(cfg))),
		core.WithLimiter(s.limiter),
		core.WithLogger(s.logger.With("config", key)),
		core.WithProgressStep(s.cfg.Upload.ProgressStep),
		core.WithRetention(s.cfg.Upload.Retention),
		core.WithProgress(s.sessions.publish),
	)
	if err != nil {
		return nil, err
	}
	s.orchs[key] = o
	return o, nil
}

// uploader reads CSV and remembers the source headers on the session, so
// the mapping can be reported even when no row survives validation.
func (s *Server) uploader(opts source.Options) core.UploadFunc {
	read := source.Uploader(opts)
	return func(ctx context.Context, f *core.BulkUploadFile, report core.ReportFunc) ([]core.Record, error) {
		records, err := read(ctx, f, report)
		if err == nil {
			if sess, ok := s.sessions.get(f.ID); ok {
				sess.setHeaders(core.HeadersOf(records))
			}
		}
		return records, err
	}
}

// start registers sessions for files and processes them in the background.
func (s *Server) start(o *core.Orchestrator, files []*core.BulkUploadFile) {
	key := o.Config().Key
	for _, f := range files {
		s.sessions.add(newSession(o, key, *f))
	}

	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()

		ctx, cancel := context.WithTimeout(s.baseCtx, s.cfg.Upload.Timeout)
		defer cancel()

		results, err := o.ProcessAll(ctx, files)
		if err != nil {
			s.logger.Error("batch rejected", "config", key, "error", err)
			for _, f := range files {
				s.finish(key, core.FileResult{File: *f, Err: err})
			}
			return
		}
		for _, res := range results {
			s.finish(key, res)
		}
	}()
}

// finish closes the session of one processed file and records it.
func (s *Server) finish(key string, res core.FileResult) {
	if errors.Is(res.Err, core.ErrDiscarded) {
		return
	}

	sess, ok := s.sessions.get(res.File.ID)
	if !ok {
		return
	}
	sess.finish(res.File, res.Summary)
	if res.Err != nil && !res.File.Status.Terminal() {
		// Never started, e.g. no upload slot was free.
		ev := core.UploadProgress{
			UploadID: res.File.ID,
			FileName: res.File.Name,
			Status:   res.File.Status,
			Message:  core.MapError(res.Err).Message,
		}
		sess.publish(ev)
	}
	sess.close()
	s.sessions.expire(res.File.ID)

	if res.File.Status.Terminal() {
		s.record(key, sess, res)
	}
}

// record writes a terminal file to the history store.
func (s *Server) record(key string, sess *session, res core.FileResult) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(s.baseCtx), historyWriteTimeout)
	defer cancel()

	entry := store.Entry{
		ConfigKey: key,
		File:      res.File,
		Summary:   res.Summary,
		Mapping:   sess.view().Mapping,
	}
	if err := s.history.SaveSummary(ctx, entry); err != nil {
		s.logger.Error("failed to record upload", "upload_id", res.File.ID, "error", err)
	}
}
