package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 4
	}
	if cfg.Pipeline.PollInterval == 0 {
		cfg.Pipeline.PollInterval = 500 * time.Millisecond
	}
	if cfg.Pipeline.ChunkSize == 0 {
		cfg.Pipeline.ChunkSize = 1200
	}
	if cfg.Pipeline.ChunkOverlap == 0 {
		cfg.Pipeline.ChunkOverlap = 150
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = 24 * time.Hour
	}
	if cfg.Cache.MaxEntryBytes == 0 {
		cfg.Cache.MaxEntryBytes = 1 << 20 // 1 MiB
	}
	if cfg.Cache.BreakerThreshold == 0 {
		cfg.Cache.BreakerThreshold = 5
	}
	if cfg.Cache.BreakerOpenFor == 0 {
		cfg.Cache.BreakerOpenFor = 5 * time.Minute
	}
	if cfg.Lock.Lease == 0 {
		cfg.Lock.Lease = 90 * time.Second
	}
	if cfg.Lock.RenewInterval == 0 {
		cfg.Lock.RenewInterval = 30 * time.Second
	}
	if cfg.Poller.InitialInterval == 0 {
		cfg.Poller.InitialInterval = 5 * time.Second
	}
	if cfg.Poller.MaxInterval == 0 {
		cfg.Poller.MaxInterval = 60 * time.Second
	}
	if cfg.Poller.GrowthFactor == 0 {
		cfg.Poller.GrowthFactor = 1.5
	}
	if cfg.Poller.MaxWait == 0 {
		cfg.Poller.MaxWait = 15 * time.Minute
	}
	if cfg.Poller.HandleTTL == 0 {
		cfg.Poller.HandleTTL = time.Hour
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.InitialDelay == 0 {
		cfg.Retry.InitialDelay = 2 * time.Second
	}
	if cfg.Retry.MaxDelay == 0 {
		cfg.Retry.MaxDelay = 60 * time.Second
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = 30 * time.Second
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gpt-4o-mini"
	}
}
