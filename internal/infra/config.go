package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"metals_go/internal/domain"
)

// Provider names recognized by the aggregator. StoreOnly is a pseudo-provider
// that disables all network calls.
const (
	ProviderGoldAPI   = "goldapi"
	ProviderMetalsDev = "metalsdev"
	StoreOnly         = "store-only"
)

// ProviderConfig is static per-provider connection info. Immutable after load.
type ProviderConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	TimeoutSec int    `yaml:"timeout_sec"`
	MaxRPM     int    `yaml:"max_rpm"`
}

// Timeout returns the per-call timeout for this provider.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(p.TimeoutSec) * time.Second
}

// Config holds the full application configuration. Loaded from YAML, then
// sensitive fields are overridden from environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Providers struct {
		GoldAPI   ProviderConfig `yaml:"goldapi"`
		MetalsDev ProviderConfig `yaml:"metalsdev"`
	} `yaml:"providers"`

	Aggregator struct {
		Primary          string `yaml:"primary"`
		Fallback         string `yaml:"fallback"`
		RetryAttempts    int    `yaml:"retry_attempts"`
		RetryBaseDelayMS int    `yaml:"retry_base_delay_ms"`
		CacheTTLSec      int    `yaml:"cache_ttl_sec"`
	} `yaml:"aggregator"`

	Sync struct {
		Schedule             string `yaml:"schedule"` // cron expression
		Provider             string `yaml:"provider"`
		Currency             string `yaml:"currency"`
		FreshnessHorizonHrs  int    `yaml:"freshness_horizon_hours"`
		RetentionDays        int    `yaml:"retention_days"`
		PerInstrumentRetries int    `yaml:"per_instrument_retries"`
	} `yaml:"sync"`

	Broadcast struct {
		IntervalSec         int             `yaml:"interval_sec"`
		ChangeThresholdPct  decimal.Decimal `yaml:"change_threshold_pct"`
		HeartbeatTimeoutSec int             `yaml:"heartbeat_timeout_sec"`
		MaxConnections      int             `yaml:"max_connections"`
		Currency            string          `yaml:"currency"`
	} `yaml:"broadcast"`

	Storage struct {
		Path string `yaml:"path"`
	} `yaml:"storage"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides sensitive values from environment variables.
func overrideWithEnv(cfg *Config) {
	if key := os.Getenv("METALS_GOLDAPI_KEY"); key != "" {
		cfg.Providers.GoldAPI.APIKey = key
	}
	if key := os.Getenv("METALS_METALSDEV_KEY"); key != "" {
		cfg.Providers.MetalsDev.APIKey = key
	}
	if addr := os.Getenv("METALS_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if p := os.Getenv("METALS_PRIMARY_PROVIDER"); p != "" {
		cfg.Aggregator.Primary = p
	}
	if p := os.Getenv("METALS_FALLBACK_PROVIDER"); p != "" {
		cfg.Aggregator.Fallback = p
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Aggregator.Primary == "" {
		cfg.Aggregator.Primary = ProviderGoldAPI
	}
	if cfg.Aggregator.Fallback == "" {
		cfg.Aggregator.Fallback = ProviderMetalsDev
	}
	if cfg.Aggregator.RetryAttempts <= 0 {
		cfg.Aggregator.RetryAttempts = 3
	}
	if cfg.Aggregator.RetryBaseDelayMS <= 0 {
		cfg.Aggregator.RetryBaseDelayMS = 500
	}
	if cfg.Aggregator.CacheTTLSec <= 0 {
		cfg.Aggregator.CacheTTLSec = 300
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "0 6 * * *" // daily
	}
	if cfg.Sync.Provider == "" {
		cfg.Sync.Provider = ProviderMetalsDev
	}
	if cfg.Sync.Currency == "" {
		cfg.Sync.Currency = "USD"
	}
	if cfg.Sync.FreshnessHorizonHrs <= 0 {
		cfg.Sync.FreshnessHorizonHrs = 24
	}
	if cfg.Sync.RetentionDays <= 0 {
		cfg.Sync.RetentionDays = 365
	}
	if cfg.Sync.PerInstrumentRetries <= 0 {
		cfg.Sync.PerInstrumentRetries = 3
	}
	if cfg.Broadcast.IntervalSec <= 0 {
		cfg.Broadcast.IntervalSec = 60
	}
	if cfg.Broadcast.ChangeThresholdPct.IsZero() {
		cfg.Broadcast.ChangeThresholdPct = decimal.NewFromFloat(0.01)
	}
	if cfg.Broadcast.HeartbeatTimeoutSec <= 0 {
		cfg.Broadcast.HeartbeatTimeoutSec = 90
	}
	if cfg.Broadcast.MaxConnections <= 0 {
		cfg.Broadcast.MaxConnections = 256
	}
	if cfg.Broadcast.Currency == "" {
		cfg.Broadcast.Currency = cfg.Sync.Currency
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "data/metals.db"
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = "logs"
	}
}

// KnownProvider reports whether name refers to a configured provider or the
// store-only pseudo-provider.
func KnownProvider(name string) bool {
	switch name {
	case ProviderGoldAPI, ProviderMetalsDev, StoreOnly:
		return true
	}
	return false
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Providers.GoldAPI.BaseURL == "" {
		return &domain.ConfigurationError{Name: "goldapi base_url missing"}
	}
	if c.Providers.MetalsDev.BaseURL == "" {
		return &domain.ConfigurationError{Name: "metalsdev base_url missing"}
	}
	if !KnownProvider(c.Aggregator.Primary) {
		return &domain.ConfigurationError{Name: c.Aggregator.Primary}
	}
	if !KnownProvider(c.Aggregator.Fallback) {
		return &domain.ConfigurationError{Name: c.Aggregator.Fallback}
	}
	if c.Sync.Provider == StoreOnly || !KnownProvider(c.Sync.Provider) {
		return &domain.ConfigurationError{Name: c.Sync.Provider}
	}
	if c.Broadcast.ChangeThresholdPct.IsNegative() {
		return fmt.Errorf("broadcast change threshold must not be negative")
	}
	if _, err := domain.NormalizeCurrency(c.Sync.Currency); err != nil {
		return err
	}
	return nil
}
