// Package web serves the bulk-upload API and a small HTML front end.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/JonMunkholm/bulkupload/internal/config"
	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/store"
	mw "github.com/JonMunkholm/bulkupload/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// History is the upload history the server records to and reads from.
// *store.Store implements it.
type History interface {
	SaveSummary(ctx context.Context, e store.Entry) error
	ListUploads(ctx context.Context, f store.ListFilter) ([]store.Upload, error)
	GetUpload(ctx context.Context, id string) (store.Upload, error)
	GetErrors(ctx context.Context, id string, limit, offset int) ([]core.UploadError, error)
}

var _ History = (*store.Store)(nil)

// Deps are the optional collaborators of a Server.
type Deps struct {
	// History is nil when no database is configured.
	History History
	Limiter *core.UploadLimiter
	Logger  *slog.Logger
}

// Server is the HTTP server for bulk uploads.
type Server struct {
	cfg     *config.Config
	history History
	limiter *core.UploadLimiter
	logger  *slog.Logger

	router *chi.Mux
	server *http.Server

	// baseCtx outlives requests; background processing derives from it.
	baseCtx    context.Context
	cancelBase context.CancelFunc
	jobs       sync.WaitGroup

	orchMu sync.Mutex
	orchs  map[string]*core.Orchestrator

	sessions *sessions
	limits   []*rateLimiter
}

// NewServer creates a Server and wires its routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:        cfg,
		history:    deps.History,
		limiter:    limiter,
		logger:     logger,
		router:     chi.NewRouter(),
		baseCtx:    ctx,
		cancelBase: cancel,
		orchs:      make(map[string]*core.Orchestrator),
		sessions:   newSessions(cfg.Upload.Retention),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute, time.Minute).middleware)
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	// Pages
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))
		r.Get("/", s.handleDashboard)
		r.Get("/configs/{configKey}", s.handleConfigPage)
		r.Get("/uploads/{uploadID}", s.handleUploadPage)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))

		// Progress streams are long-lived and must not hit the request timeout.
		r.Get("/uploads/{uploadID}/events", s.handleUploadEvents)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.Server.RequestTimeout))

			r.Get("/configs", s.handleListConfigs)
			r.Get("/configs/{configKey}", s.handleGetConfig)
			r.Get("/configs/{configKey}/template", s.handleDownloadTemplate)
			r.Post("/configs/{configKey}/preview", s.handlePreview)

			r.Group(func(r chi.Router) {
				if s.cfg.Rate.Enabled {
					r.Use(s.newRateLimiter(s.cfg.Rate.UploadLimit, time.Minute).middleware)
				}
				r.Post("/configs/{configKey}/uploads", s.handleUpload)
				r.Post("/uploads/{uploadID}/retry", s.handleRetry)
			})

			r.Get("/uploads/{uploadID}", s.handleUploadResult)
			r.Delete("/uploads/{uploadID}", s.handleDiscard)
			r.Get("/uploads/{uploadID}/errors.csv", s.handleExportErrors)
			r.Get("/uploads/{uploadID}/data.csv", s.handleExportData)
			r.Get("/limiter", s.handleLimiterStatus)

			r.Get("/history", s.handleListHistory)
			r.Get("/history/{uploadID}", s.handleGetHistory)
			r.Get("/history/{uploadID}/errors", s.handleHistoryErrors)
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.logger.Info("server starting", "addr", s.server.Addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, then waits for background uploads.
// Uploads still running when ctx expires are cancelled.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("uploads did not finish before shutdown", "active", s.limiter.ActiveCount())
		s.cancelBase()
		<-done
	}
	s.cancelBase()

	for _, rl := range s.limits {
		rl.Close()
	}
	return err
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "ok",
		"configs": core.ConfigCount(),
		"history": s.history != nil,
	})
}

func (s *Server) handleLimiterStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.limiter.Status())
}

// securityHeaders adds hardening headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				h.Set("Content-Security-Policy", "default-src 'self'; script-src 'self' https://unpkg.com; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeJSON encodes v as JSON. Encoding errors are logged since headers
// are already sent.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}
