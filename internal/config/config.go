// Package config provides configuration management for the quote service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"
)

// Defaults applied by Validate when a field is unset.
const (
	defaultAttemptTimeout     = 8 * time.Second
	defaultBatchConcurrency   = 8
	defaultBreakerTimeout     = 30 * time.Second
	defaultBreakerMinRequests = 5
	defaultBreakerRatio       = 0.6
	defaultRiskFreeRate       = 0.045
	defaultFallbackVolatility = 0.30
	defaultPort               = 8080
	defaultRefreshCron        = "0 */5 * * * *"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Providers   ProvidersConfig   `yaml:"providers"`
	Fetch       FetchConfig       `yaml:"fetch"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Server      ServerConfig      `yaml:"server"`
	Refresh     RefreshConfig     `yaml:"refresh"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // live | mock
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// ProvidersConfig lists the upstream feeds in fallback order.
type ProvidersConfig struct {
	Schwab SchwabConfig `yaml:"schwab"`
	CBOE   CBOEConfig   `yaml:"cboe"`
	Yahoo  YahooConfig  `yaml:"yahoo"`
}

// SchwabConfig holds the primary feed settings. Only a ready access token is
// used; obtaining or refreshing it happens outside this service. An empty
// token is filled from SCHWAB_ACCESS_TOKEN, which may come from .env.
type SchwabConfig struct {
	Enabled     bool   `yaml:"enabled"`
	BaseURL     string `yaml:"base_url"`
	StatusURL   string `yaml:"status_url"`
	AccessToken string `yaml:"access_token"`
}

// CBOEConfig configures the delayed-quote feed and its relay.
type CBOEConfig struct {
	BaseURL  string `yaml:"base_url"`
	RelayURL string `yaml:"relay_url"`
}

// YahooConfig configures the tertiary feed. Relays are tried in order.
type YahooConfig struct {
	BaseURL string   `yaml:"base_url"`
	Relays  []string `yaml:"relays"`
}

// FetchConfig bounds individual attempts and batch fan-out.
type FetchConfig struct {
	AttemptTimeout   string               `yaml:"attempt_timeout"`
	BatchConcurrency int                  `yaml:"batch_concurrency"`
	CircuitBreaker   CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig tunes the per-provider breaker.
type CircuitBreakerConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Timeout      string  `yaml:"timeout"`
	MinRequests  uint32  `yaml:"min_requests"`
	FailureRatio float64 `yaml:"failure_ratio"`
}

// PricingConfig defines the synthetic pricing assumptions.
type PricingConfig struct {
	// RiskFreeRate is a pointer so an explicit 0 is kept; nil takes the default.
	RiskFreeRate       *float64 `yaml:"risk_free_rate"`
	FallbackVolatility float64 `yaml:"fallback_volatility"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// RefreshConfig defines the watchlist auto-refresh.
type RefreshConfig struct {
	Enabled bool     `yaml:"enabled"`
	Cron    string   `yaml:"cron"`
	Tickers []string `yaml:"tickers"`
	// StoragePath, when set, persists the last known price of each ticker.
	StoragePath string `yaml:"storage_path"`
}

// Load reads and parses the configuration file from the specified path. A
// .env file next to it is loaded first; it never overrides variables that
// are already set.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applySchwabEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func (c *Config) applySchwabEnv() {
	if c.Providers.Schwab.AccessToken == "" {
		c.Providers.Schwab.AccessToken = os.Getenv("SCHWAB_ACCESS_TOKEN")
	}
}

// Validate checks that all configuration values are valid and fills defaults.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode == "" {
		c.Environment.Mode = "live"
	}
	if c.Environment.Mode != "live" && c.Environment.Mode != "mock" {
		return fmt.Errorf("environment.mode must be 'live' or 'mock'")
	}
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if _, err := logrus.ParseLevel(c.Environment.LogLevel); err != nil {
		return fmt.Errorf("environment.log_level invalid: %w", err)
	}

	// Provider endpoints
	for name, raw := range map[string]string{
		"providers.schwab.base_url":   c.Providers.Schwab.BaseURL,
		"providers.schwab.status_url": c.Providers.Schwab.StatusURL,
		"providers.cboe.base_url":     c.Providers.CBOE.BaseURL,
		"providers.cboe.relay_url":    c.Providers.CBOE.RelayURL,
		"providers.yahoo.base_url":    c.Providers.Yahoo.BaseURL,
	} {
		if err := validateURL(name, raw); err != nil {
			return err
		}
	}
	for i, relay := range c.Providers.Yahoo.Relays {
		if relay == "" {
			continue
		}
		if err := validateURL(fmt.Sprintf("providers.yahoo.relays[%d]", i), relay); err != nil {
			return err
		}
	}

	// Fetch validation
	if c.Fetch.AttemptTimeout == "" {
		c.Fetch.AttemptTimeout = defaultAttemptTimeout.String()
	}
	if d, err := time.ParseDuration(c.Fetch.AttemptTimeout); err != nil || d <= 0 || d > time.Minute {
		return fmt.Errorf("fetch.attempt_timeout must be a duration in (0, 1m]")
	}
	if c.Fetch.BatchConcurrency == 0 {
		c.Fetch.BatchConcurrency = defaultBatchConcurrency
	}
	if c.Fetch.BatchConcurrency < 1 || c.Fetch.BatchConcurrency > 64 {
		return fmt.Errorf("fetch.batch_concurrency must be between 1 and 64")
	}
	c.normalizeBreakerConfig()
	if d, err := time.ParseDuration(c.Fetch.CircuitBreaker.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("fetch.circuit_breaker.timeout must be a positive duration")
	}
	if r := c.Fetch.CircuitBreaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("fetch.circuit_breaker.failure_ratio must be in (0,1]")
	}

	// Pricing validation
	if c.Pricing.RiskFreeRate == nil {
		rate := defaultRiskFreeRate
		c.Pricing.RiskFreeRate = &rate
	}
	if r := *c.Pricing.RiskFreeRate; r < 0 || r > 0.25 {
		return fmt.Errorf("pricing.risk_free_rate must be between 0 and 0.25")
	}
	if c.Pricing.FallbackVolatility == 0 {
		c.Pricing.FallbackVolatility = defaultFallbackVolatility
	}
	if c.Pricing.FallbackVolatility <= 0 || c.Pricing.FallbackVolatility > 5 {
		return fmt.Errorf("pricing.fallback_volatility must be in (0,5] as a decimal")
	}

	// Server validation
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Refresh validation
	for i, t := range c.Refresh.Tickers {
		c.Refresh.Tickers[i] = strings.ToUpper(strings.TrimSpace(t))
		if c.Refresh.Tickers[i] == "" {
			return fmt.Errorf("refresh.tickers[%d] is empty", i)
		}
	}
	if c.Refresh.Enabled {
		if c.Refresh.Cron == "" {
			c.Refresh.Cron = defaultRefreshCron
		}
		if len(c.Refresh.Tickers) == 0 {
			return fmt.Errorf("refresh.tickers is required when refresh is enabled")
		}
	}

	return nil
}

func validateURL(field, raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an absolute http(s) URL", field)
	}
	return nil
}

// normalizeBreakerConfig sets default values for the circuit breaker
func (c *Config) normalizeBreakerConfig() {
	cb := &c.Fetch.CircuitBreaker
	if cb.Timeout == "" {
		cb.Timeout = defaultBreakerTimeout.String()
	}
	if cb.MinRequests == 0 {
		cb.MinRequests = defaultBreakerMinRequests
	}
	if cb.FailureRatio == 0 {
		cb.FailureRatio = defaultBreakerRatio
	}
}

// IsMock returns true if every provider should be replaced by the mock feed.
func (c *Config) IsMock() bool {
	return c.Environment.Mode == "mock"
}

// GetAttemptTimeout returns the per-attempt timeout, falling back to the default.
func (c *Config) GetAttemptTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.AttemptTimeout)
	if err != nil || d <= 0 {
		return defaultAttemptTimeout
	}
	return d
}

// GetBreakerTimeout returns how long an open breaker stays open.
func (c *Config) GetBreakerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Fetch.CircuitBreaker.Timeout)
	if err != nil || d <= 0 {
		return defaultBreakerTimeout
	}
	return d
}

// GetLogLevel returns the parsed log level, defaulting to info.
func (c *Config) GetLogLevel() logrus.Level {
	lvl, err := logrus.ParseLevel(c.Environment.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// GetRiskFreeRate returns the configured rate, or the default before Validate.
func (c *Config) GetRiskFreeRate() float64 {
	if c.Pricing.RiskFreeRate == nil {
		return defaultRiskFreeRate
	}
	return *c.Pricing.RiskFreeRate
}

// SchwabConfigured reports whether the primary feed is enabled and has a token.
func (c *Config) SchwabConfigured() bool {
	return c.Providers.Schwab.Enabled && c.Providers.Schwab.AccessToken != ""
}
