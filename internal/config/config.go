// Package config loads the bulk-upload server settings from environment
// variables (optionally seeded from a .env file), applies defaults and
// validates everything on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Mapping  MappingConfig
	Schema   SchemaConfig
	History  HistoryConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	RequestTimeout  time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the upload history database settings.
// An empty URL runs the server without history.
type DatabaseConfig struct {
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns int `env:"DB_MAX_CONNS" default:"10"`
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a history database is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// UploadConfig holds defaults applied to upload configs that leave them unset,
// plus server-wide processing limits.
type UploadConfig struct {
	// MaxFileSizeMB is used when an upload config has no maxFileSize.
	MaxFileSizeMB int `env:"UPLOAD_MAX_FILE_SIZE_MB" default:"100"`

	// AcceptedFileTypes is used when an upload config lists none.
	AcceptedFileTypes []string `env:"UPLOAD_ACCEPTED_FILE_TYPES" default:".csv,text/csv"`

	MaxConcurrent int           `env:"UPLOAD_MAX_CONCURRENT" default:"5"`
	MaxWaitTime   time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`
	Timeout       time.Duration `env:"UPLOAD_TIMEOUT" default:"10m"`

	// ProgressStep is the number of rows between progress events.
	ProgressStep int `env:"UPLOAD_PROGRESS_STEP" default:"100"`

	// Retention is how long finished uploads stay queryable in memory.
	Retention time.Duration `env:"UPLOAD_RETENTION" default:"15m"`
}

// MaxFileSizeBytes converts MaxFileSizeMB to bytes.
func (c UploadConfig) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// MappingConfig holds column mapping defaults.
type MappingConfig struct {
	Enabled   bool    `env:"MAPPING_ENABLED" default:"true"`
	Threshold float64 `env:"MAPPING_THRESHOLD" default:"0.6"`
}

// SchemaConfig points at additional YAML upload configs.
type SchemaConfig struct {
	// Dir is scanned non-recursively for *.yaml and *.yml files. Empty skips it.
	Dir string `env:"SCHEMA_DIR"`
}

// HistoryConfig holds upload history retention settings.
type HistoryConfig struct {
	RetentionDays int           `env:"HISTORY_RETENTION_DAYS" default:"90"`
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// RateLimitConfig holds per-IP rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit applies to the upload endpoint only.
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	RequireAPIKey bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys       []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
