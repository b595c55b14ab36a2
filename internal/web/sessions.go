package web

import (
	"sync"
	"time"

	"github.com/JonMunkholm/bulkupload/internal/core"
)

// session tracks one uploaded file for the HTTP layer: its latest progress
// event, its outcome, and the orchestrator that owns it.
type session struct {
	id        string
	configKey string
	orch      *core.Orchestrator

	mu      sync.Mutex
	seq     int
	latest  core.UploadProgress
	changed chan struct{}
	closed  bool

	headers []string
	file    core.BulkUploadFile
	summary *core.UploadSummary
	mapping []core.ColumnMapping
}

func newSession(orch *core.Orchestrator, configKey string, f core.BulkUploadFile) *session {
	return &session{
		id:        f.ID,
		configKey: configKey,
		orch:      orch,
		changed:   make(chan struct{}),
		file:      f,
		latest: core.UploadProgress{
			UploadID: f.ID,
			FileName: f.Name,
			Status:   f.Status,
		},
	}
}

// publish records ev as the latest event and wakes every watcher.
func (s *session) publish(ev core.UploadProgress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.seq++
	s.latest = ev
	close(s.changed)
	s.changed = make(chan struct{})
}

// watch returns the latest event, its sequence number, whether the session
// is closed, and a channel closed on the next change. A session closes only
// after its outcome is stored.
func (s *session) watch() (core.UploadProgress, int, bool, <-chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, s.seq, s.closed, s.changed
}

// close ends every watcher. Later events are dropped.
func (s *session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.changed)
}

func (s *session) setHeaders(h []string) {
	s.mu.Lock()
	s.headers = h
	s.mu.Unlock()
}

// finish stores the outcome of the file.
func (s *session) finish(f core.BulkUploadFile, summary *core.UploadSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.file = f
	if summary != nil {
		s.summary = summary
		s.mapping = s.orch.Mapping(s.headers)
	}
}

// sessionView is the JSON shape of a session.
type sessionView struct {
	File    core.BulkUploadFile  `json:"file"`
	Summary *core.UploadSummary  `json:"summary,omitempty"`
	Mapping []core.ColumnMapping `json:"mapping,omitempty"`
	Config  string               `json:"config"`
}

// view returns the current state. Live files are read from the
// orchestrator; row data is left out.
func (s *session) view() sessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.file
	if live, ok := s.orch.File(s.id); ok {
		f = live
	}
	f.Data = nil
	return sessionView{File: f, Summary: s.summary, Mapping: s.mapping, Config: s.configKey}
}

// records returns the source headers and kept rows of a completed file.
func (s *session) records() ([]string, []core.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil, nil, false
	}
	return s.headers, s.file.Data, true
}

func (s *session) errors() ([]core.UploadError, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.summary == nil {
		return nil, false
	}
	return s.summary.Errors, true
}

// sessions indexes sessions by upload ID. Finished sessions are dropped
// after retention.
type sessions struct {
	mu        sync.RWMutex
	m         map[string]*session
	retention time.Duration
}

func newSessions(retention time.Duration) *sessions {
	return &sessions{m: make(map[string]*session), retention: retention}
}

func (ss *sessions) add(s *session) {
	ss.mu.Lock()
	ss.m[s.id] = s
	ss.mu.Unlock()
}

func (ss *sessions) get(id string) (*session, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	s, ok := ss.m[id]
	return s, ok
}

func (ss *sessions) remove(id string) {
	ss.mu.Lock()
	delete(ss.m, id)
	ss.mu.Unlock()
}

// expire schedules removal of a finished session.
func (ss *sessions) expire(id string) {
	if ss.retention <= 0 {
		return
	}
	time.AfterFunc(ss.retention, func() { ss.remove(id) })
}

// publish routes an orchestrator event to its session.
func (ss *sessions) publish(ev core.UploadProgress) {
	if s, ok := ss.get(ev.UploadID); ok {
		s.publish(ev)
	}
}
