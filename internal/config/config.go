// Package config loads and validates the portal configuration from YAML files
// and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Identity      IdentityConfig      `yaml:"identity"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Capability    CapabilityConfig    `yaml:"capability"`
	Storage       StorageConfig       `yaml:"storage"`
	Idempotency   IdempotencyConfig   `yaml:"idempotency"`
	Events        EventsConfig        `yaml:"events"`
	Search        SearchConfig        `yaml:"search"`
	SLA           SLAConfig           `yaml:"sla"`
	Stock         StockConfig         `yaml:"stock"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	HandlerTimeout  time.Duration `yaml:"handler_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORS            CORSConfig    `yaml:"cors"`
}

// CORSConfig describes Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
	MaxAge         int      `yaml:"max_age"`
}

// IdentityConfig describes how bearer tokens are verified. Tokens are signed
// either with a shared HMAC secret or with keys published at JWKSURL.
type IdentityConfig struct {
	Issuer       string        `yaml:"issuer"`
	Audience     string        `yaml:"audience"`
	Algorithms   []string      `yaml:"algorithms"`
	SecretEnv    string        `yaml:"secret_env"`
	JWKSURL      string        `yaml:"jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`
}

// DefinitionsConfig describes where to find workflow and gate definitions.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// CapabilityConfig describes authorization settings.
type CapabilityConfig struct {
	StaticPolicyFile string      `yaml:"static_policy_file"`
	Cache            CacheConfig `yaml:"cache"`
}

// CacheConfig describes cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// StorageConfig describes persistence settings. Driver is "memory" or
// "postgres".
type StorageConfig struct {
	Driver          string        `yaml:"driver"`
	DSNEnv          string        `yaml:"dsn_env"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	LogQueries      bool          `yaml:"log_queries"`
}

// IdempotencyConfig describes idempotency store settings. Driver is
// "memory" or "redis".
type IdempotencyConfig struct {
	Driver     string        `yaml:"driver"`
	AddrEnv    string        `yaml:"addr_env"`
	DB         int           `yaml:"db"`
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// EventsConfig describes domain event publishing. Driver is "none",
// "memory" or "kafka".
type EventsConfig struct {
	Driver       string        `yaml:"driver"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	Breaker      BreakerConfig `yaml:"breaker"`
}

// BreakerConfig describes when event publishing stops calling a failing
// broker and for how long.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// SearchConfig describes the protocol search index. Driver is "memory" or
// "meilisearch".
type SearchConfig struct {
	Driver    string `yaml:"driver"`
	URL       string `yaml:"url"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// SLAConfig describes deadline tracking settings.
type SLAConfig struct {
	ScanInterval time.Duration `yaml:"scan_interval"`
	NearDueDays  int           `yaml:"near_due_days"`
	Holidays     []string      `yaml:"holidays"`
}

// StockConfig describes medication stock settings.
type StockConfig struct {
	ExpiryScanInterval time.Duration `yaml:"expiry_scan_interval"`
	NearExpiryDays     int           `yaml:"near_expiry_days"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			HandlerTimeout:  25 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			CORS: CORSConfig{
				AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Authorization", "Content-Type",
					"X-Correlation-Id", "X-Idempotency-Key"},
				MaxAge: 86400,
			},
		},
		Identity: IdentityConfig{
			Algorithms:   []string{"RS256"},
			JWKSCacheTTL: 1 * time.Hour,
		},
		Definitions: DefinitionsConfig{
			Directories: []string{"definitions"},
		},
		Capability: CapabilityConfig{
			Cache: CacheConfig{TTL: 5 * time.Minute},
		},
		Storage: StorageConfig{
			Driver:          "memory",
			DSNEnv:          "DATABASE_URL",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Idempotency: IdempotencyConfig{
			Driver:     "memory",
			AddrEnv:    "REDIS_ADDR",
			DefaultTTL: 24 * time.Hour,
		},
		Events: EventsConfig{
			Driver:       "none",
			Topic:        "digiurban.events",
			WriteTimeout: 5 * time.Second,
			Breaker:      BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second},
		},
		Search: SearchConfig{
			Driver:    "memory",
			APIKeyEnv: "MEILI_MASTER_KEY",
		},
		SLA: SLAConfig{
			ScanInterval: 15 * time.Minute,
			NearDueDays:  3,
		},
		Stock: StockConfig{
			ExpiryScanInterval: 6 * time.Hour,
			NearExpiryDays:     30,
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Identity.Issuer == "" {
		errs = append(errs, "identity.issuer is required")
	}
	if c.Identity.Audience == "" {
		errs = append(errs, "identity.audience is required")
	}
	if c.Identity.JWKSURL == "" && c.Identity.SecretEnv == "" {
		errs = append(errs, "identity.jwks_url or identity.secret_env is required")
	}
	if len(c.Definitions.Directories) == 0 {
		errs = append(errs, "definitions.directories must not be empty")
	}

	errs = append(errs, oneOf("storage.driver", c.Storage.Driver, "memory", "postgres")...)
	errs = append(errs, oneOf("idempotency.driver", c.Idempotency.Driver, "memory", "redis")...)
	errs = append(errs, oneOf("events.driver", c.Events.Driver, "none", "memory", "kafka")...)
	errs = append(errs, oneOf("search.driver", c.Search.Driver, "memory", "meilisearch")...)

	if c.Events.Driver == "kafka" && len(c.Events.Brokers) == 0 {
		errs = append(errs, "events.brokers is required for the kafka driver")
	}
	if c.Search.Driver == "meilisearch" && c.Search.URL == "" {
		errs = append(errs, "search.url is required for the meilisearch driver")
	}
	if c.SLA.NearDueDays < 0 {
		errs = append(errs, "sla.near_due_days must not be negative")
	}
	for _, h := range c.SLA.Holidays {
		if _, err := time.Parse(time.DateOnly, h); err != nil {
			errs = append(errs, fmt.Sprintf("sla.holidays: %q is not a YYYY-MM-DD date", h))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func oneOf(field, value string, allowed ...string) []string {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return []string{fmt.Sprintf("%s must be one of %s", field, strings.Join(allowed, ", "))}
}

// applyEnvOverrides reads DIGIURBAN_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DIGIURBAN_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DIGIURBAN_IDENTITY_ISSUER"); v != "" {
		cfg.Identity.Issuer = v
	}
	if v := os.Getenv("DIGIURBAN_IDENTITY_AUDIENCE"); v != "" {
		cfg.Identity.Audience = v
	}
	if v := os.Getenv("DIGIURBAN_IDENTITY_JWKS_URL"); v != "" {
		cfg.Identity.JWKSURL = v
	}
	if v := os.Getenv("DIGIURBAN_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("DIGIURBAN_IDEMPOTENCY_DRIVER"); v != "" {
		cfg.Idempotency.Driver = v
	}
	if v := os.Getenv("DIGIURBAN_EVENTS_DRIVER"); v != "" {
		cfg.Events.Driver = v
	}
	if v := os.Getenv("DIGIURBAN_EVENTS_BROKERS"); v != "" {
		cfg.Events.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DIGIURBAN_SEARCH_DRIVER"); v != "" {
		cfg.Search.Driver = v
	}
	if v := os.Getenv("DIGIURBAN_SEARCH_URL"); v != "" {
		cfg.Search.URL = v
	}
	if v := os.Getenv("DIGIURBAN_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
}
