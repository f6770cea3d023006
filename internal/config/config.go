// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Store drivers.
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Upload   UploadConfig
	Goals    GoalsConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8000)
	Port int `env:"SERVER_PORT" envAlt:"PORT" default:"8000"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing response (default: 5m)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"5m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// StoreConfig selects and configures the document store.
type StoreConfig struct {
	// Driver is postgres, mongo or memory (default: mongo)
	Driver string `env:"STORE_DRIVER" default:"mongo"`

	// URL is the PostgreSQL connection string, required for the postgres driver.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MongoURI is the MongoDB connection string (default: mongodb://localhost:27017)
	MongoURI string `env:"MONGODB_URI" envAlt:"MONGO_URI" default:"mongodb://localhost:27017"`

	// MongoDatabase is the MongoDB database name (default: sena_metas)
	MongoDatabase string `env:"MONGODB_DATABASE" default:"sena_metas"`

	// MaxConns is the maximum number of pooled connections (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 2)
	MinConns int `env:"DB_MIN_CONNS" default:"2"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// ConnectTimeout bounds the initial connection and ping (default: 10s)
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" default:"10s"`
}

// UploadConfig holds workbook intake settings.
type UploadConfig struct {
	// Dir holds received workbooks (default: <tmp>/sheetsync_uploads)
	Dir string `env:"UPLOAD_DIR"`

	// OutputDir holds exported JSON files (default: <tmp>/sheetsync_output)
	OutputDir string `env:"OUTPUT_DIR"`

	// MaxFileSize is the maximum allowed file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" default:"104857600"`

	// MaxConcurrent is the maximum number of workbooks processed at once (default: 4)
	MaxConcurrent int `env:"UPLOAD_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long to wait for a processing slot (default: 30s)
	MaxWaitTime time.Duration `env:"UPLOAD_MAX_WAIT_TIME" default:"30s"`

	// SyncTimeout bounds the store sync of one workbook (default: 10m)
	SyncTimeout time.Duration `env:"UPLOAD_SYNC_TIMEOUT" default:"10m"`

	// Retention is how long uploads and exports are kept; 0 keeps them forever
	Retention time.Duration `env:"UPLOAD_RETENTION" default:"0s"`

	// CleanupInterval is how often expired files are swept (default: 1h)
	CleanupInterval time.Duration `env:"UPLOAD_CLEANUP_INTERVAL" default:"1h"`
}

// GoalsConfig holds goal-sheet extraction settings.
type GoalsConfig struct {
	// Period is written to every goal record as PERIODO (default: 2025)
	Period string `env:"GOALS_PERIOD" default:"2025"`

	// ScanRows is how many leading rows are searched for the header (default: 19)
	ScanRows int `env:"GOALS_SCAN_ROWS" default:"19"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// UploadLimit is requests per minute for upload endpoints (default: 10)
	UploadLimit int `env:"RATE_LIMIT_UPLOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// AllowLocalProcessing enables POST /process-local (default: true)
	AllowLocalProcessing bool `env:"ALLOW_LOCAL_PROCESSING" default:"true"`
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
