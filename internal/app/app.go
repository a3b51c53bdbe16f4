// Package app builds the provider chain, orchestrator and facade from
// configuration. Both commands share it.
package app

import (
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/config"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/fallback"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
)

// App is the assembled service.
type App struct {
	Config       *config.Config
	Logger       *logrus.Logger
	Orchestrator *fallback.Orchestrator
	Facade       *marketdata.Facade
	// Relay is nil in mock mode.
	Relay *provider.CBOE
}

// NewLogger returns a logger at the configured level writing to stderr.
func NewLogger(cfg *config.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(cfg.GetLogLevel())
	return logger
}

// Build wires providers in fallback order: Schwab, CBOE, Yahoo for prices
// and Schwab, CBOE for chains. A nil client gives each provider its own
// client bounded by the attempt timeout.
func Build(cfg *config.Config, logger *logrus.Logger, client *http.Client) *App {
	if logger == nil {
		logger = NewLogger(cfg)
	}
	a := &App{Config: cfg, Logger: logger}

	var prices []provider.PriceSource
	var chains []provider.ChainSource

	if cfg.IsMock() {
		logger.Info("Mock mode: all providers replaced with synthetic data")
		m := provider.NewMock(nil)
		prices = []provider.PriceSource{m}
		chains = []provider.ChainSource{m}
	} else {
		timeout := cfg.GetAttemptTimeout()
		sc := cfg.Providers.Schwab
		token := ""
		if cfg.SchwabConfigured() {
			token = sc.AccessToken
		}
		schwab := provider.NewSchwab(provider.SchwabConfig{
			BaseURL:     sc.BaseURL,
			AccessToken: token,
			StatusURL:   sc.StatusURL,
			Timeout:     timeout,
		}, client, logger)
		cboe := provider.NewCBOE(provider.CBOEConfig{
			BaseURL:  cfg.Providers.CBOE.BaseURL,
			RelayURL: cfg.Providers.CBOE.RelayURL,
			Timeout:  timeout,
		}, client, logger)
		yahoo := provider.NewYahoo(provider.YahooConfig{
			BaseURL: cfg.Providers.Yahoo.BaseURL,
			Relays:  cfg.Providers.Yahoo.Relays,
			Timeout: timeout,
		}, client, logger)
		// The relay endpoint fetches the CDN directly, never through itself.
		a.Relay = provider.NewCBOE(provider.CBOEConfig{BaseURL: cfg.Providers.CBOE.BaseURL, Timeout: timeout}, client, logger)

		if !schwab.Configured() {
			logger.Info("Schwab not configured, starting with the delayed feed")
		}

		if cfg.Fetch.CircuitBreaker.Enabled {
			settings := breakerSettings(cfg)
			gs := provider.WithBreaker(schwab, settings, logger)
			gc := provider.WithBreaker(cboe, settings, logger)
			gy := provider.WithBreaker(yahoo, settings, logger)
			prices = []provider.PriceSource{gs, gc, gy}
			chains = []provider.ChainSource{gs, gc}
		} else {
			prices = []provider.PriceSource{schwab, cboe, yahoo}
			chains = []provider.ChainSource{schwab, cboe}
		}
	}

	a.Orchestrator = fallback.New(prices, chains, logger)
	a.Facade = marketdata.New(a.Orchestrator, marketdata.Config{
		RiskFreeRate:       cfg.Pricing.RiskFreeRate,
		FallbackVolatility: cfg.Pricing.FallbackVolatility,
		BatchConcurrency:   cfg.Fetch.BatchConcurrency,
	}, logger)
	return a
}

func breakerSettings(cfg *config.Config) provider.BreakerSettings {
	s := provider.DefaultBreakerSettings()
	s.Timeout = cfg.GetBreakerTimeout()
	s.MinRequests = cfg.Fetch.CircuitBreaker.MinRequests
	s.FailureRatio = cfg.Fetch.CircuitBreaker.FailureRatio
	if s.Interval < s.Timeout {
		s.Interval = 2 * s.Timeout
	}
	return s
}

// ShutdownTimeout bounds graceful shutdown of the HTTP server.
const ShutdownTimeout = 10 * time.Second
