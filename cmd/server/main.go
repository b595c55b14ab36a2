package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/bulkupload/internal/config"
	"github.com/JonMunkholm/bulkupload/internal/core"
	"github.com/JonMunkholm/bulkupload/internal/core/schemas" // Registers built-in configs
	"github.com/JonMunkholm/bulkupload/internal/logging"
	"github.com/JonMunkholm/bulkupload/internal/store"
	"github.com/JonMunkholm/bulkupload/internal/web"
)

func main() {
	// Overload so a local .env wins over the shell environment
	if loaded, err := config.LoadDotEnv(); err != nil {
		slog.Error("failed to read .env file", "error", err)
		os.Exit(1)
	} else if loaded {
		slog.Info("loaded .env file (overwriting existing env vars)")
	} else {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	logger.Info("configuration loaded",
		"port", cfg.Server.Port,
		"history_enabled", cfg.Database.Enabled(),
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"mapping_enabled", cfg.Mapping.Enabled,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if cfg.Schema.Dir != "" {
		n, err := schemas.RegisterDir(cfg.Schema.Dir)
		if err != nil {
			logger.Error("failed to register upload configs", "dir", cfg.Schema.Dir, "error", err)
			os.Exit(1)
		}
		logger.Info("upload configs loaded", "dir", cfg.Schema.Dir, "count", n)
	}
	logger.Info("upload configs registered", "count", core.ConfigCount())
	for _, c := range core.All() {
		logger.Debug("upload config", "key", c.Key, "columns", len(c.Columns))
	}

	// Background jobs run until shutdown
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	deps := web.Deps{Logger: logger}

	if cfg.Database.Enabled() {
		pool, err := store.Connect(jobCtx, cfg.Database.URL, store.PoolConfig{
			MaxConns:        int32(cfg.Database.MaxConns),
			MinConns:        int32(cfg.Database.MinConns),
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if u, err := url.Parse(cfg.Database.URL); err == nil {
			logger.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
		} else {
			logger.Info("connected to database")
		}

		st := store.New(pool)
		if err := st.EnsureSchema(jobCtx); err != nil {
			logger.Error("failed to prepare history schema", "error", err)
			os.Exit(1)
		}
		deps.History = st

		go store.RunRetention(jobCtx, st, store.RetentionConfig{
			RetentionDays: cfg.History.RetentionDays,
			CheckInterval: cfg.History.CheckInterval,
		}, logger)
	} else {
		logger.Warn("DATABASE_URL not set, upload history disabled")
	}

	limiter := core.NewUploadLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	deps.Limiter = limiter

	server := web.NewServer(cfg, deps)

	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if status := limiter.Status(); status.Active > 0 {
			logger.Info("waiting for uploads to complete", "active", status.Active)
			if err := limiter.WaitForDrain(shutdownCtx); err != nil {
				logger.Warn("uploads did not complete in time", "error", err)
			} else {
				logger.Info("all uploads completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}

		// History writes finish inside Shutdown, so retention can stop now
		cancelJobs()
	}()

	if err := server.Start(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
}
