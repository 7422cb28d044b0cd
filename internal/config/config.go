// Package config provides centralized configuration management for the
// upload server and CLI. It loads configuration from environment variables
// with defaults and validates all settings on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Upload   UploadConfig
	Adapter  AdapterConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
	History  HistoryConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 5m for large files)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"5m"`

	// WriteTimeout is the maximum duration for writing a response (default: 0 for websockets)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including draining uploads (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// MaxRequestBody caps multipart request bodies in bytes (default: 256MB)
	MaxRequestBody int64 `env:"SERVER_MAX_REQUEST_BODY" default:"268435456"`
}

// DatabaseConfig holds database connection settings. Without a URL the
// server runs without upload history.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (c *DatabaseConfig) Enabled() bool {
	return c.URL != ""
}

// UploadConfig holds the per-session upload policy.
type UploadConfig struct {
	// AutoUpload starts admitted files immediately (default: true)
	AutoUpload bool `env:"UPLOAD_AUTO" default:"true"`

	// MaxConcurrent is the window size of "upload all" (default: 3)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"3"`

	// MaxFiles caps accepted files per session, 0 for no limit (default: 5)
	MaxFiles int `env:"UPLOAD_MAX_FILES" default:"5"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 25MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"26214400"`

	// MinFileSize is the minimum allowed file size in bytes (default: 0)
	MinFileSize int64 `env:"UPLOAD_MIN_FILE_SIZE" default:"0"`

	// AcceptFile is a YAML file with the accept list; empty uses pdf, csv and zip
	AcceptFile string `env:"UPLOAD_ACCEPT_FILE"`

	// Metadata is a comma-separated key=value list attached to every upload
	Metadata []string `env:"UPLOAD_METADATA"`

	// SessionTTL expires idle sessions (default: 30m)
	SessionTTL time.Duration `env:"UPLOAD_SESSION_TTL" default:"30m"`
}

// AdapterConfig selects the transport.
type AdapterConfig struct {
	// Kind is mock, http or s3 (default: mock)
	Kind string `env:"UPLOAD_ADAPTER" default:"mock"`

	// MockPreset is normal, fast, slow, interrupted or error (default: normal)
	MockPreset string `env:"UPLOAD_MOCK_PRESET" default:"normal"`

	// Endpoint receives multipart POSTs for the http adapter
	Endpoint string `env:"UPLOAD_ENDPOINT"`

	// DeleteEndpoint receives DELETE {DeleteEndpoint}/{fileID}; defaults to Endpoint
	DeleteEndpoint string `env:"UPLOAD_DELETE_ENDPOINT"`

	// Headers is a comma-separated Name:Value list sent with every request
	Headers []string `env:"UPLOAD_HEADERS"`

	// Timeout bounds one transfer (default: 5m)
	Timeout time.Duration `env:"UPLOAD_TIMEOUT" default:"5m"`

	// GlobalMaxConcurrent caps transfers across all sessions, 0 to disable (default: 8)
	GlobalMaxConcurrent int `env:"UPLOAD_GLOBAL_MAX_CONCURRENT" default:"8"`

	// MaxWait is how long a transfer waits for a global slot (default: 30s)
	MaxWait time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	S3Bucket          string        `env:"S3_BUCKET"`
	S3Region          string        `env:"S3_REGION" envAlt:"AWS_REGION"`
	S3Endpoint        string        `env:"S3_ENDPOINT"`
	S3Prefix          string        `env:"S3_PREFIX" default:"uploads"`
	S3AccessKeyID     string        `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string        `env:"S3_SECRET_ACCESS_KEY"`
	S3PresignTTL      time.Duration `env:"S3_PRESIGN_TTL" default:"0s"`
}

// RateLimitConfig holds rate limiting settings per client IP.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// UploadLimit is requests per minute for file admission endpoints (default: 30)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"30"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey rejects API requests without a valid X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text, json or pretty (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// HistoryConfig holds upload history retention settings.
type HistoryConfig struct {
	// RetentionDays is how long history rows are kept (default: 30)
	RetentionDays int `env:"HISTORY_RETENTION_DAYS" default:"30"`

	// CheckInterval is how often the purge job runs (default: 24h)
	CheckInterval time.Duration `env:"HISTORY_CHECK_INTERVAL" default:"24h"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
