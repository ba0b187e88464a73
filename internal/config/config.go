// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"

	"github.com/JonMunkholm/memcsv/internal/core"
	"github.com/JonMunkholm/memcsv/internal/csvio"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Dialect  DialectConfig
	Audit    AuditConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// MaxBodySize caps request bodies, including inline rows (default: 32MB)
	MaxBodySize int64 `env:"SERVER_MAX_BODY_SIZE" default:"33554432"`
}

// StoreConfig holds table registry and load settings.
type StoreConfig struct {
	// TTL is how long an untouched table stays in memory, e.g. "30s", "10m", "1h" (default: 1h)
	TTL string `env:"CSV_TTL" default:"1h"`

	// SweepInterval is how often idle tables are evicted (default: 1m)
	SweepInterval time.Duration `env:"CSV_SWEEP_INTERVAL" default:"1m"`

	// DataDir is the base directory for relative file paths (default: working directory)
	DataDir string `env:"CSV_DATA_DIR"`

	// MaxConcurrentLoads is the maximum number of parallel file reads (default: 4)
	MaxConcurrentLoads int `env:"LOAD_MAX_CONCURRENT" default:"4"`

	// MaxLoadWait is how long a load waits for a free slot (default: 30s)
	MaxLoadWait time.Duration `env:"LOAD_MAX_WAIT_TIME" default:"30s"`
}

// DialectConfig holds the default file dialect. Requests may override it.
type DialectConfig struct {
	Separator string `env:"CSV_SEPARATOR" default:","`

	// Quote and Escape accept a single character or "none".
	Quote  string `env:"CSV_QUOTE" default:"\""`
	Escape string `env:"CSV_ESCAPE" default:"\""`

	// SkipLines discards leading lines before the header (default: 0)
	SkipLines int `env:"CSV_SKIP_LINES" default:"0"`

	// Charset is any WHATWG encoding label (default: utf-8)
	Charset string `env:"CSV_CHARSET" default:"utf-8"`

	// LineEnd is "lf" or "crlf" (default: lf)
	LineEnd string `env:"CSV_LINE_END" default:"lf"`
}

// AuditConfig holds the optional audit database settings. With no URL the
// audit trail goes to the log only.
type AuditConfig struct {
	// DatabaseURL is the PostgreSQL connection string
	DatabaseURL string `env:"AUDIT_DATABASE_URL" envAlt:"DATABASE_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 4)
	MaxConns int `env:"AUDIT_DB_MAX_CONNS" default:"4"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"AUDIT_DB_MIN_CONNS" default:"1"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"AUDIT_DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// RequireAPIKey enables X-API-Key checks on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// TTLDuration parses TTL. Validate has already rejected bad values.
func (c *StoreConfig) TTLDuration() time.Duration {
	d, err := core.ParseTTL(c.TTL)
	if err != nil {
		return core.DefaultTTL
	}
	return d
}

// Build converts the configured strings into a csvio.Dialect.
func (c *DialectConfig) Build() (csvio.Dialect, error) {
	d := csvio.DefaultDialect()

	var err error
	if d.Separator, err = csvio.ParseChar(c.Separator); err != nil {
		return d, err
	}
	if d.Quote, err = csvio.ParseChar(c.Quote); err != nil {
		return d, err
	}
	if d.Escape, err = csvio.ParseChar(c.Escape); err != nil {
		return d, err
	}
	if d.LineEnd, err = csvio.ParseLineEnd(c.LineEnd); err != nil {
		return d, err
	}
	if err := csvio.ValidateCharset(c.Charset); err != nil {
		return d, err
	}
	d.SkipLines = c.SkipLines
	d.Charset = c.Charset

	return d, d.Validate()
}
