// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/plexcord/connstatus/internal/pkg/security"
)

// Config holds all application configuration.
type Config struct {
	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Backend request configuration
	Backend BackendConfig `yaml:"backend"`

	// Auto-reconnect configuration
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Error catalog cache configuration
	Catalog CatalogConfig `yaml:"catalog"`

	// Discord connection defaults
	Discord DiscordConfig `yaml:"discord"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"CONNSTATUS_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"CONNSTATUS_LOG_FORMAT" yaml:"format"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"CONNSTATUS_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"CONNSTATUS_KAFKA_BROKERS" yaml:"kafka_brokers"`
	KafkaGroup   string `envconfig:"CONNSTATUS_KAFKA_GROUP" yaml:"kafka_group"`
	// EventLog is the path of the JSONL event journal. Empty disables it.
	EventLog string `envconfig:"CONNSTATUS_EVENT_LOG" yaml:"event_log"`
}

// BackendConfig holds settings for queries and commands sent to the backend.
type BackendConfig struct {
	RequestTimeout time.Duration `envconfig:"CONNSTATUS_REQUEST_TIMEOUT" yaml:"request_timeout"`
	// RateLimit is the outbound request rate per second. 0 disables limiting.
	RateLimit float64 `envconfig:"CONNSTATUS_RATE_LIMIT" yaml:"rate_limit"`
	RateBurst int     `envconfig:"CONNSTATUS_RATE_BURST" yaml:"rate_burst"`
}

// ReconnectConfig holds auto-reconnect settings.
type ReconnectConfig struct {
	Enabled     bool          `envconfig:"CONNSTATUS_RECONNECT_ENABLED" yaml:"enabled"`
	SettleDelay time.Duration `envconfig:"CONNSTATUS_RECONNECT_SETTLE_DELAY" yaml:"settle_delay"`
}

// CatalogConfig holds error catalog cache settings.
type CatalogConfig struct {
	CacheType string        `envconfig:"CONNSTATUS_CATALOG_CACHE" yaml:"cache_type"`
	RedisURL  string        `envconfig:"CONNSTATUS_REDIS_URL" yaml:"redis_url"`
	TTL       time.Duration `envconfig:"CONNSTATUS_CATALOG_TTL" yaml:"ttl"`
}

// DiscordConfig holds presence connection defaults.
type DiscordConfig struct {
	ClientID string `envconfig:"CONNSTATUS_DISCORD_CLIENT_ID" yaml:"client_id"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `envconfig:"CONNSTATUS_METRICS_ENABLED" yaml:"enabled"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

// Default returns the default configuration without consulting the
// environment.
func Default() *Config {
	cfg := &Config{}
	setDefaults(cfg)
	return cfg
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaGroup: "connstatus",
	}

	cfg.Backend = BackendConfig{
		RequestTimeout: 5 * time.Second,
		RateLimit:      20,
		RateBurst:      10,
	}

	cfg.Reconnect = ReconnectConfig{
		Enabled:     true,
		SettleDelay: 500 * time.Millisecond,
	}

	cfg.Catalog = CatalogConfig{
		CacheType: "memory",
		RedisURL:  "redis://localhost:6379",
		TTL:       time.Hour,
	}

	cfg.Metrics = MetricsConfig{
		Enabled: true,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" && strings.TrimSpace(c.Bus.KafkaBrokers) == "" {
		errs = append(errs, "kafka_brokers is required when bus type is kafka")
	}

	// Backend validation
	if c.Backend.RequestTimeout <= 0 {
		errs = append(errs, "request_timeout must be positive")
	}

	if c.Backend.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if c.Backend.RateLimit > 0 && c.Backend.RateBurst < 1 {
		errs = append(errs, "rate_burst must be positive when rate_limit is set")
	}

	// Reconnect validation
	if c.Reconnect.SettleDelay < 0 {
		errs = append(errs, "settle_delay must not be negative")
	}

	// Catalog validation
	validCacheTypes := map[string]bool{"none": true, "memory": true, "redis": true}
	if !validCacheTypes[c.Catalog.CacheType] {
		errs = append(errs, fmt.Sprintf("invalid catalog cache type: %s (must be none, memory, or redis)", c.Catalog.CacheType))
	}

	if c.Catalog.CacheType == "redis" && c.Catalog.RedisURL == "" {
		errs = append(errs, "redis_url is required when catalog cache type is redis")
	}

	// Discord validation
	if err := security.ValidateClientID(c.Discord.ClientID); err != nil {
		errs = append(errs, fmt.Sprintf("invalid discord client_id: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// KafkaBrokerList returns the configured brokers as a slice.
func (c *Config) KafkaBrokerList() []string {
	var brokers []string
	for _, b := range strings.Split(c.Bus.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
