package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kode4food/cadence/internal/backoff"
	"github.com/kode4food/cadence/pkg/api"
)

type (
	// Config holds configuration settings for the sequencing engine
	Config struct {
		// API Server
		APIHost  string
		APIPort  int
		LogLevel string

		// Agent & Retry
		Agent api.AgentConfig
		Retry api.RetryConfig

		// Stores & Archiving
		Database         DatabaseConfig
		Redis            RedisConfig
		ArchiveBucketURL string
		ArchivePrefix    string

		// Error Reporting
		SentryDSN string

		// Engine
		DispatchInterval  time.Duration
		DispatchBatchSize int
		HealthInterval    time.Duration
		DedupTTL          time.Duration
		StopOnReply       bool
		ShutdownTimeout   time.Duration
	}

	// DatabaseConfig selects the relational store
	DatabaseConfig struct {
		Driver string
		DSN    string
	}

	// RedisConfig locates the Redis ledger used for dedup and daily caps
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
	}
)

const (
	DefaultShutdownTimeout = 10 * time.Second

	DefaultAPIPort = 8080
	DefaultAPIHost = "0.0.0.0"
	MaxTCPPort     = 65535

	DefaultAgentBaseURL     = "https://agent.example.com/api"
	DefaultUserAgent        = "Cadence-Engine/1.0"
	DefaultRequestDelay     = api.DefaultRequestDelay
	DefaultConnectTimeout   = 10 * time.Second
	DefaultRequestTimeout   = 30 * time.Second
	DefaultRateLimitBackoff = 5 * time.Second
	DefaultServerBackoff    = 2 * time.Second
	DefaultMaxBackoff       = 60 * time.Second
	DefaultAgentAttempts    = 3
	DefaultBackoffType      = api.BackoffTypeExponential

	DefaultRetryMaxRetries  = 5
	DefaultRetryInitBackoff = time.Minute
	DefaultRetryMaxBackoff  = time.Hour

	DefaultDatabaseDriver = DriverPostgres
	DefaultDatabaseDSN    = "host=localhost user=cadence dbname=cadence " +
		"sslmode=disable"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisDB       = 0
	DefaultRedisPrefix   = "cadence"
	DefaultArchivePrefix = "webhooks/"

	DefaultDispatchInterval  = time.Minute
	DefaultDispatchBatchSize = 100
	DefaultHealthInterval    = 5 * time.Minute
	DefaultDedupTTL          = 7 * 24 * time.Hour

	MaxAgentAttempts  = 10
	MaxRetryRetries   = 1000
	MaxDispatchBatch  = 10_000
	MaxRequestDelay   = time.Hour
	MaxTimeout        = 10 * time.Minute
	MaxBackoff        = 24 * time.Hour
	MaxInterval       = 24 * time.Hour
	MaxDedupTTL       = 90 * 24 * time.Hour
)

var (
	ErrInvalidAPIPort        = errors.New("invalid API port")
	ErrInvalidAgentBaseURL   = errors.New("agent base URL is required")
	ErrInvalidRequestDelay   = errors.New("request delay must be positive")
	ErrInvalidRequestTimeout = errors.New("request timeout must be positive")
	ErrInvalidAgentAttempts  = errors.New(
		"agent max attempts must be positive",
	)
	ErrInvalidAgentBackoff = errors.New(
		"agent backoff values must be positive",
	)
	ErrAgentMaxBackoffTooSmall = errors.New(
		"agent max backoff must be >= every initial backoff",
	)
	ErrInvalidRetryMaxRetries = errors.New(
		"retry max retries cannot be negative",
	)
	ErrInvalidRetryInitBackoff = errors.New(
		"retry initial backoff must be positive",
	)
	ErrRetryMaxBackoffTooSmall = errors.New(
		"retry max backoff must be >= retry initial backoff",
	)
	ErrInvalidBackoffType     = errors.New("invalid backoff type")
	ErrInvalidDatabaseDriver  = errors.New("invalid database driver")
	ErrInvalidDispatchPeriod  = errors.New("dispatch interval must be positive")
	ErrInvalidHealthInterval  = errors.New("health interval must be positive")
	ErrInvalidDedupTTL        = errors.New("dedup TTL must be positive")
	ErrInvalidDispatchBatch   = errors.New("dispatch batch size must be positive")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
)

// NewDefaultConfig creates a configuration with sensible defaults for the
// agent client, stores, and dispatch behavior
func NewDefaultConfig() *Config {
	return &Config{
		APIPort:  DefaultAPIPort,
		APIHost:  DefaultAPIHost,
		LogLevel: "info",
		Agent: api.AgentConfig{
			BaseURL:          DefaultAgentBaseURL,
			UserAgent:        DefaultUserAgent,
			RequestDelay:     DefaultRequestDelay,
			ConnectTimeout:   DefaultConnectTimeout,
			RequestTimeout:   DefaultRequestTimeout,
			RateLimitBackoff: DefaultRateLimitBackoff,
			ServerBackoff:    DefaultServerBackoff,
			MaxBackoff:       DefaultMaxBackoff,
			BackoffType:      DefaultBackoffType,
			MaxAttempts:      DefaultAgentAttempts,
		},
		Retry: api.RetryConfig{
			BackoffType: DefaultBackoffType,
			InitBackoff: DefaultRetryInitBackoff,
			MaxBackoff:  DefaultRetryMaxBackoff,
			MaxRetries:  DefaultRetryMaxRetries,
		},
		Database: DatabaseConfig{
			Driver: DefaultDatabaseDriver,
			DSN:    DefaultDatabaseDSN,
		},
		Redis: RedisConfig{
			Addr:   DefaultRedisEndpoint,
			DB:     DefaultRedisDB,
			Prefix: DefaultRedisPrefix,
		},
		ArchivePrefix:     DefaultArchivePrefix,
		DispatchInterval:  DefaultDispatchInterval,
		DispatchBatchSize: DefaultDispatchBatchSize,
		HealthInterval:    DefaultHealthInterval,
		DedupTTL:          DefaultDedupTTL,
		StopOnReply:       true,
		ShutdownTimeout:   DefaultShutdownTimeout,
	}
}

// LoadFromEnv populates configuration values from environment variables.
// Returns an error if any env var cannot be parsed.
func (c *Config) LoadFromEnv() error {
	loadEnvString("API_HOST", &c.APIHost)
	loadEnvString("LOG_LEVEL", &c.LogLevel)
	loadEnvString("AGENT_BASE_URL", &c.Agent.BaseURL)
	loadEnvString("AGENT_BACKOFF_TYPE", &c.Agent.BackoffType)
	loadEnvString("RETRY_BACKOFF_TYPE", &c.Retry.BackoffType)
	loadEnvString("DATABASE_DRIVER", &c.Database.Driver)
	loadEnvString("DATABASE_DSN", &c.Database.DSN)
	loadEnvString("ARCHIVE_BUCKET_URL", &c.ArchiveBucketURL)
	loadEnvString("ARCHIVE_PREFIX", &c.ArchivePrefix)
	loadEnvString("SENTRY_DSN", &c.SentryDSN)
	LoadRedisConfigFromEnv(&c.Redis, "REDIS")

	if err := loadEnvBool("STOP_ON_REPLY", &c.StopOnReply); err != nil {
		return err
	}

	ints := []struct {
		key      string
		dst      *int
		min, max int
	}{
		{"API_PORT", &c.APIPort, 0, MaxTCPPort},
		{"AGENT_MAX_ATTEMPTS", &c.Agent.MaxAttempts, 0, MaxAgentAttempts},
		{"RETRY_MAX_RETRIES", &c.Retry.MaxRetries, -1, MaxRetryRetries},
		{"DISPATCH_BATCH_SIZE", &c.DispatchBatchSize, 0, MaxDispatchBatch},
	}
	for _, i := range ints {
		if err := loadEnvInt(i.key, i.dst, i.min, i.max); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
		max time.Duration
	}{
		{"REQUEST_DELAY_MS", &c.Agent.RequestDelay, MaxRequestDelay},
		{"CONNECT_TIMEOUT_MS", &c.Agent.ConnectTimeout, MaxTimeout},
		{"REQUEST_TIMEOUT_MS", &c.Agent.RequestTimeout, MaxTimeout},
		{"RATE_LIMIT_BACKOFF_MS", &c.Agent.RateLimitBackoff, MaxBackoff},
		{"SERVER_BACKOFF_MS", &c.Agent.ServerBackoff, MaxBackoff},
		{"MAX_BACKOFF_MS", &c.Agent.MaxBackoff, MaxBackoff},
		{"RETRY_INITIAL_BACKOFF_MS", &c.Retry.InitBackoff, MaxBackoff},
		{"RETRY_MAX_BACKOFF_MS", &c.Retry.MaxBackoff, MaxBackoff},
		{"DISPATCH_INTERVAL_MS", &c.DispatchInterval, MaxInterval},
		{"HEALTH_INTERVAL_MS", &c.HealthInterval, MaxInterval},
		{"DEDUP_TTL_MS", &c.DedupTTL, MaxDedupTTL},
		{"SHUTDOWN_TIMEOUT_MS", &c.ShutdownTimeout, MaxTimeout},
	}
	for _, d := range durations {
		if err := loadEnvMillis(d.key, d.dst, d.max); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > MaxTCPPort {
		return fmt.Errorf("%w: %d", ErrInvalidAPIPort, c.APIPort)
	}

	if err := c.validateAgent(); err != nil {
		return err
	}

	if err := c.validateRetry(); err != nil {
		return err
	}

	if c.Database.Driver != DriverPostgres && c.Database.Driver != DriverSQLite {
		return fmt.Errorf("%w: %s", ErrInvalidDatabaseDriver, c.Database.Driver)
	}

	if c.DispatchInterval <= 0 {
		return ErrInvalidDispatchPeriod
	}

	if c.DispatchBatchSize <= 0 {
		return ErrInvalidDispatchBatch
	}

	if c.HealthInterval <= 0 {
		return ErrInvalidHealthInterval
	}

	if c.DedupTTL <= 0 {
		return ErrInvalidDedupTTL
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

func (c *Config) validateAgent() error {
	a := &c.Agent
	if a.BaseURL == "" {
		return ErrInvalidAgentBaseURL
	}

	if a.RequestDelay <= 0 {
		return ErrInvalidRequestDelay
	}

	if a.RequestTimeout <= 0 || a.ConnectTimeout <= 0 {
		return ErrInvalidRequestTimeout
	}

	if a.MaxAttempts < 1 {
		return ErrInvalidAgentAttempts
	}

	if a.RateLimitBackoff <= 0 || a.ServerBackoff <= 0 || a.MaxBackoff <= 0 {
		return ErrInvalidAgentBackoff
	}

	if a.MaxBackoff < a.RateLimitBackoff || a.MaxBackoff < a.ServerBackoff {
		return ErrAgentMaxBackoffTooSmall
	}

	if !backoff.IsValidType(a.BackoffType) {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType, a.BackoffType)
	}

	return nil
}

func (c *Config) validateRetry() error {
	r := &c.Retry
	if r.MaxRetries < 0 {
		return ErrInvalidRetryMaxRetries
	}

	if r.InitBackoff <= 0 {
		return ErrInvalidRetryInitBackoff
	}

	if r.MaxBackoff < r.InitBackoff {
		return ErrRetryMaxBackoffTooSmall
	}

	if !backoff.IsValidType(r.BackoffType) {
		return fmt.Errorf("%w: %s", ErrInvalidBackoffType, r.BackoffType)
	}

	return nil
}

// LoadRedisConfigFromEnv loads Redis configuration from environment
// variables with the given prefix (e.g., "REDIS")
func LoadRedisConfigFromEnv(r *RedisConfig, prefix string) {
	if addr := os.Getenv(prefix + "_ADDR"); addr != "" {
		r.Addr = addr
	}
	if password := os.Getenv(prefix + "_PASSWORD"); password != "" {
		r.Password = password
	}
	if dbStr := os.Getenv(prefix + "_DB"); dbStr != "" {
		db, err := strconv.Atoi(dbStr)
		if err == nil && db >= 0 {
			r.DB = db
		}
	}
	if envPrefix := os.Getenv(prefix + "_PREFIX"); envPrefix != "" {
		r.Prefix = envPrefix
	}
}

func loadEnvString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func loadEnvBool(key string, dst *bool) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	*dst = v
	return nil
}

// loadEnvInt reads key from the environment, parses it as an integer, and
// sets *dst if the value is in the range (min, max]. Returns an error if
// the value cannot be parsed or falls outside the valid range.
func loadEnvInt[T ~int | ~int64](key string, dst *T, min, max T) error {
	s := os.Getenv(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %q", key, s)
	}
	tv := T(v)
	if tv <= min || tv > max {
		return fmt.Errorf("invalid %s: %d out of range [%d, %d]",
			key, tv, min+1, max)
	}
	*dst = tv
	return nil
}

// loadEnvMillis reads key as a positive number of milliseconds
func loadEnvMillis(key string, dst *time.Duration, max time.Duration) error {
	ms := int64(*dst / time.Millisecond)
	if err := loadEnvInt(key, &ms, 0, max.Milliseconds()); err != nil {
		return err
	}
	*dst = time.Duration(ms) * time.Millisecond
	return nil
}
