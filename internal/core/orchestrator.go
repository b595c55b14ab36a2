package core

// orchestrator.go drives each BulkUploadFile through its lifecycle:
//
//	pending -> uploading -> processing -> completed
//	   \___________\____________\______-> error
//
// uploading covers the external UploadFunc that turns the file into records.
// processing covers mapping, validation, duplicate detection and the summary.
// Only transport failures lead to error; row failures end up inside a
// completed summary.
//
// Files never share mutable state. Each one is tracked separately, so a
// failing or discarded file cannot affect the summary of another.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Progress checkpoints.
const (
	// DefaultUploadCheckpoint is the progress value reached when records are obtained.
	DefaultUploadCheckpoint = 30

	// DefaultProgressStep is how many rows are validated between progress events.
	DefaultProgressStep = 100

	// validationCeiling is the progress value reached when every row is validated.
	validationCeiling = 95
)

// ErrAlreadyStarted is returned when Process is called twice for the same file.
var ErrAlreadyStarted = errors.New("upload already started")

// ReportFunc lets an UploadFunc report transport progress as 0-100.
type ReportFunc func(percent int)

// UploadFunc obtains the raw records of a file. It is called once per file.
// Records must be numbered from 1 in input order.
type UploadFunc func(ctx context.Context, file *BulkUploadFile, report ReportFunc) ([]Record, error)

// ValidateFunc replaces the built-in row validation when supplied.
type ValidateFunc func(records []Record, columns []ColumnConfig) ValidationResult

// CompletionFunc is called exactly once for every file reaching completed.
type CompletionFunc func(file BulkUploadFile, summary UploadSummary)

// ProgressFunc observes every status or progress change.
// It must not call Discard for the same file.
type ProgressFunc func(UploadProgress)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithUploader sets the function that turns files into records.
func WithUploader(fn UploadFunc) Option { return func(o *Orchestrator) { o.upload = fn } }

// WithValidateFunc replaces the built-in validator.
func WithValidateFunc(fn ValidateFunc) Option { return func(o *Orchestrator) { o.validate = fn } }

// WithCompletion sets the completion callback.
func WithCompletion(fn CompletionFunc) Option { return func(o *Orchestrator) { o.onComplete = fn } }

// WithProgress sets the progress callback.
func WithProgress(fn ProgressFunc) Option { return func(o *Orchestrator) { o.onProgress = fn } }

// WithLimiter bounds how many files are processed concurrently.
func WithLimiter(l *UploadLimiter) Option { return func(o *Orchestrator) { o.limiter = l } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.now = now } }

// WithProgressStep sets how many rows are validated between progress events.
func WithProgressStep(rows int) Option {
	return func(o *Orchestrator) {
		if rows > 0 {
			o.progressStep = rows
		}
	}
}

// WithRetention forgets terminal files after d. Zero keeps them until Discard.
func WithRetention(d time.Duration) Option { return func(o *Orchestrator) { o.retention = d } }

// Orchestrator runs uploads for one UploadConfig.
type Orchestrator struct {
	cfg          UploadConfig
	mapper       *Mapper
	upload       UploadFunc
	validate     ValidateFunc
	onComplete   CompletionFunc
	onProgress   ProgressFunc
	limiter      *UploadLimiter
	logger       *slog.Logger
	now          func() time.Time
	progressStep int
	retention    time.Duration

	mu    sync.RWMutex
	files map[string]*trackedFile
}

// trackedFile guards one BulkUploadFile. emitMu serializes callbacks with
// Discard so that nothing is emitted once Discard returns.
type trackedFile struct {
	mu     sync.Mutex
	file   *BulkUploadFile
	cancel context.CancelFunc

	emitMu    sync.Mutex
	discarded atomic.Bool
}

// FileResult is the outcome of one file in ProcessAll.
type FileResult struct {
	File    BulkUploadFile `json:"file"`
	Summary *UploadSummary `json:"summary,omitempty"`
	Err     error          `json:"-"`
}

// NewOrchestrator validates cfg and returns an orchestrator for it.
func NewOrchestrator(cfg UploadConfig, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid upload config %q: %w", cfg.Key, err)
	}

	o := &Orchestrator{
		cfg:          cfg,
		mapper:       NewMapper(cfg.MappingThreshold),
		logger:       slog.Default(),
		now:          time.Now,
		progressStep: DefaultProgressStep,
		files:        make(map[string]*trackedFile),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("config", cfg.Key)
	return o, nil
}

// Config returns the configuration this orchestrator was built with.
func (o *Orchestrator) Config() UploadConfig { return o.cfg }

// Mapper returns the column mapper used for automatic mapping.
func (o *Orchestrator) Mapper() *Mapper { return o.mapper }

// NewFile registers a pending file and returns it.
func (o *Orchestrator) NewFile(name string, size int64, mimeType string, source any) *BulkUploadFile {
	f := &BulkUploadFile{
		ID:         uuid.NewString(),
		Name:       name,
		Size:       size,
		Type:       mimeType,
		UploadDate: o.now(),
		Status:     StatusPending,
		Source:     source,
	}

	o.mu.Lock()
	o.files[f.ID] = &trackedFile{file: f}
	o.mu.Unlock()

	return f
}

// Retry registers a fresh pending file with the same contents as f.
// The old file keeps its terminal state.
func (o *Orchestrator) Retry(f *BulkUploadFile) *BulkUploadFile {
	return o.NewFile(f.Name, f.Size, f.Type, f.Source)
}

// File returns a snapshot of a tracked file.
func (o *Orchestrator) File(id string) (BulkUploadFile, bool) {
	t := o.lookup(id)
	if t == nil {
		return BulkUploadFile{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.file, true
}

// Discard drops a file. In-flight work for it is cancelled and no further
// progress, summary or completion is emitted for its id. Unknown ids and
// repeated calls are no-ops.
func (o *Orchestrator) Discard(id string) {
	o.mu.Lock()
	t, ok := o.files[id]
	delete(o.files, id)
	o.mu.Unlock()

	if !ok {
		return
	}

	t.emitMu.Lock()
	t.discarded.Store(true)
	t.emitMu.Unlock()

	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	o.logger.Info("upload discarded", "upload_id", id)
}

// Process runs one file to a terminal state and returns its summary.
// A transport failure returns the error and leaves the file in error.
func (o *Orchestrator) Process(ctx context.Context, f *BulkUploadFile) (*UploadSummary, error) {
	t := o.lookup(f.ID)
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, f.ID)
	}
	if t.discarded.Load() {
		return nil, ErrDiscarded
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	t.mu.Lock()
	if t.file.Status.Terminal() {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrTerminalState, f.ID)
	}
	if t.file.Status != StatusPending || t.cancel != nil {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrAlreadyStarted, f.ID)
	}
	t.cancel = cancel
	t.mu.Unlock()

	logger := o.logger.With("upload_id", f.ID, "file", f.Name)

	if err := o.checkFile(f); err != nil {
		return nil, o.fail(t, logger, err)
	}

	if o.limiter != nil {
		if err := o.limiter.Acquire(ctx); err != nil {
			t.mu.Lock()
			t.cancel = nil
			t.mu.Unlock()
			return nil, err
		}
		defer o.limiter.Release()
	}

	summary, err := o.run(ctx, t, logger)
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// ProcessAll runs several files concurrently. Each file's result is
// independent of the others. More than one file requires AllowMultipleFiles.
func (o *Orchestrator) ProcessAll(ctx context.Context, files []*BulkUploadFile) ([]FileResult, error) {
	if len(files) > 1 && !o.cfg.AllowMultipleFiles {
		return nil, fmt.Errorf("%w: got %d files", ErrMultipleFiles, len(files))
	}

	limit := DefaultMaxConcurrentUploads
	if o.limiter != nil {
		limit = o.limiter.MaxConcurrent()
	}

	results := make([]FileResult, len(files))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			summary, err := o.Process(ctx, f)
			snap, ok := o.File(f.ID)
			if !ok {
				snap = BulkUploadFile{ID: f.ID, Name: f.Name}
			}
			results[i] = FileResult{File: snap, Summary: summary, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (o *Orchestrator) run(ctx context.Context, t *trackedFile, logger *slog.Logger) (*UploadSummary, error) {
	if o.upload == nil {
		return nil, o.fail(t, logger, ErrNoUploader)
	}

	if err := o.transition(t, StatusUploading, 0, 0); err != nil {
		return nil, err
	}
	logger.Info("upload started", "size", t.file.Size)

	report := func(percent int) {
		percent = min(max(percent, 0), 100)
		_ = o.transition(t, StatusUploading, percent*DefaultUploadCheckpoint/100, 0)
	}

	start := o.now()
	records, err := o.upload(ctx, t.snapshotPtr(), report)
	if t.discarded.Load() {
		return nil, ErrDiscarded
	}
	if err != nil {
		return nil, o.fail(t, logger, err)
	}

	if err := o.transition(t, StatusProcessing, DefaultUploadCheckpoint, len(records)); err != nil {
		return nil, err
	}

	summary, unique := o.summarize(records, func(processed int) {
		if processed%o.progressStep != 0 && processed != len(records) {
			return
		}
		span := validationCeiling - DefaultUploadCheckpoint
		p := DefaultUploadCheckpoint + processed*span/max(len(records), 1)
		_ = o.transition(t, StatusProcessing, p, len(records))
	})

	if err := o.complete(t, summary, unique); err != nil {
		return nil, err
	}

	logger.Info("upload completed",
		"total_rows", summary.TotalRows,
		"success", summary.SuccessCount,
		"errors", summary.ErrorCount,
		"duplicates", summary.DuplicateCount,
		"duration_ms", o.now().Sub(start).Milliseconds(),
	)
	return &summary, nil
}

// Summarize maps, validates and deduplicates records without any lifecycle.
func (o *Orchestrator) Summarize(records []Record) (UploadSummary, []ColumnMapping) {
	mapping := o.Mapping(HeadersOf(records))
	summary, _ := o.summarizeWith(records, mapping, nil)
	return summary, mapping
}

// Mapping returns the column mapping used for the given headers.
func (o *Orchestrator) Mapping(headers []string) []ColumnMapping {
	if !o.cfg.EnableMapping {
		return ExactMapping(headers, o.cfg.Columns)
	}
	return o.mapper.Map(headers, o.cfg.Columns)
}

func (o *Orchestrator) summarize(records []Record, onRow RowFunc) (UploadSummary, []Record) {
	return o.summarizeWith(records, o.Mapping(HeadersOf(records)), onRow)
}

func (o *Orchestrator) summarizeWith(records []Record, mapping []ColumnMapping, onRow RowFunc) (UploadSummary, []Record) {
	var result ValidationResult
	if o.validate != nil {
		result = o.validate(records, o.cfg.Columns)
		if onRow != nil {
			onRow(len(records))
		}
	} else {
		v := NewValidator(o.cfg.Columns, mapping)
		if onRow != nil {
			result = v.Validate(records, onRow)
		} else {
			result = v.Validate(records)
		}
	}

	dups := DetectDuplicates(result.ValidRows, o.cfg.KeyColumns, o.cfg.Columns, mapping)

	errs := result.Errors
	if errs == nil {
		errs = []UploadError{}
	}
	return UploadSummary{
		TotalRows:      len(records),
		SuccessCount:   len(dups.UniqueRows),
		ErrorCount:     len(errs),
		DuplicateCount: dups.DuplicateCount,
		Errors:         errs,
	}, dups.UniqueRows
}

func (o *Orchestrator) checkFile(f *BulkUploadFile) error {
	if limit := o.cfg.MaxFileSizeBytes(); limit > 0 && f.Size > limit {
		return fmt.Errorf("%w: %d bytes exceeds %dMB", ErrFileTooLarge, f.Size, o.cfg.MaxFileSizeMB)
	}
	if !o.cfg.Accepts(f.Name, f.Type) {
		return fmt.Errorf("%w: %s", ErrFileType, f.Name)
	}
	return nil
}

// transition moves t to status with the given progress. Progress never
// decreases within a lifecycle; staying in the same status only updates it.
func (o *Orchestrator) transition(t *trackedFile, status FileStatus, progress, rows int) error {
	t.mu.Lock()
	f := t.file
	if f.Status != status {
		if err := checkTransition(f.Status, status); err != nil {
			t.mu.Unlock()
			return err
		}
		f.Status = status
	} else if progress <= f.Progress {
		t.mu.Unlock()
		return nil
	}
	if progress > f.Progress {
		f.Progress = min(progress, 100)
	}
	ev := UploadProgress{
		UploadID: f.ID,
		FileName: f.Name,
		Status:   f.Status,
		Progress: f.Progress,
		Rows:     rows,
		Message:  f.Message,
	}
	t.mu.Unlock()

	o.emit(t, ev)
	return nil
}

func (o *Orchestrator) fail(t *trackedFile, logger *slog.Logger, cause error) error {
	t.mu.Lock()
	f := t.file
	if err := checkTransition(f.Status, StatusError); err != nil {
		t.mu.Unlock()
		return err
	}
	f.Status = StatusError
	f.Message = MapError(cause).Message
	t.cancel = nil
	ev := UploadProgress{
		UploadID: f.ID,
		FileName: f.Name,
		Status:   f.Status,
		Progress: f.Progress,
		Message:  f.Message,
	}
	t.mu.Unlock()

	if t.discarded.Load() {
		return ErrDiscarded
	}
	logger.Warn("upload failed", "error", cause)
	o.emit(t, ev)
	o.scheduleForget(f.ID)
	return cause
}

func (o *Orchestrator) complete(t *trackedFile, summary UploadSummary, unique []Record) error {
	t.mu.Lock()
	f := t.file
	if err := checkTransition(f.Status, StatusCompleted); err != nil {
		t.mu.Unlock()
		return err
	}
	f.Status = StatusCompleted
	f.Progress = 100
	f.Data = unique
	f.Errors = summary.Errors
	t.cancel = nil
	snap := *f
	ev := UploadProgress{
		UploadID: f.ID,
		FileName: f.Name,
		Status:   f.Status,
		Progress: f.Progress,
		Rows:     summary.TotalRows,
	}
	t.mu.Unlock()

	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if t.discarded.Load() {
		return ErrDiscarded
	}
	if o.onProgress != nil {
		o.onProgress(ev)
	}
	if o.onComplete != nil {
		o.onComplete(snap, summary)
	}
	o.scheduleForget(f.ID)
	return nil
}

func (o *Orchestrator) emit(t *trackedFile, ev UploadProgress) {
	if o.onProgress == nil {
		return
	}
	t.emitMu.Lock()
	defer t.emitMu.Unlock()
	if t.discarded.Load() {
		return
	}
	o.onProgress(ev)
}

func (o *Orchestrator) scheduleForget(id string) {
	if o.retention <= 0 {
		return
	}
	time.AfterFunc(o.retention, func() {
		o.mu.Lock()
		delete(o.files, id)
		o.mu.Unlock()
	})
}

func (o *Orchestrator) lookup(id string) *trackedFile {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.files[id]
}

// snapshotPtr returns a copy of the file for the UploadFunc so that it
// never races with lifecycle updates.
func (t *trackedFile) snapshotPtr() *BulkUploadFile {
	t.mu.Lock()
	defer t.mu.Unlock()
	cp := *t.file
	return &cp
}
