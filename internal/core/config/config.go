package config

import (
	"time"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Cache    CacheConfig    `yaml:"cache"`
	Lock     LockConfig     `yaml:"lock"`
	Poller   PollerConfig   `yaml:"poller"`
	Retry    RetryConfig    `yaml:"retry"`
	OCR      OCRConfig      `yaml:"ocr"`
	LLM      LLMConfig      `yaml:"llm"`
}

// ServerConfig holds health/metrics HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PipelineConfig holds worker and stage tuning.
type PipelineConfig struct {
	Workers      int           `yaml:"workers"`
	PollInterval time.Duration `yaml:"poll_interval"` // queue poll interval
	ChunkSize    int           `yaml:"chunk_size"`
	ChunkOverlap int           `yaml:"chunk_overlap"`
}

// CacheConfig holds cache store and circuit breaker settings.
type CacheConfig struct {
	TTL              time.Duration `yaml:"ttl"`
	MaxEntryBytes    int           `yaml:"max_entry_bytes"`
	BreakerThreshold int           `yaml:"breaker_threshold"`
	BreakerOpenFor   time.Duration `yaml:"breaker_open_for"`
}

// LockConfig holds document lease settings.
type LockConfig struct {
	Lease         time.Duration `yaml:"lease"`
	RenewInterval time.Duration `yaml:"renew_interval"`
}

// PollerConfig holds async job polling settings.
type PollerConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	GrowthFactor    float64       `yaml:"growth_factor"`
	MaxWait         time.Duration `yaml:"max_wait"`
	HandleTTL       time.Duration `yaml:"handle_ttl"`
}

// RetryConfig holds stage retry settings.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// OCRConfig holds OCR collaborator settings.
type OCRConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// LLMConfig holds entity extraction/resolution model settings.
type LLMConfig struct {
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}
