// Package marketdata is the public entry point for prices, options chains
// and live option lookups. It validates input, resolves data through the
// provider fallback chain, and synthesizes contracts the chain does not list.
package marketdata

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/fallback"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/matcher"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
)

const (
	// DefaultRiskFreeRate is used for synthetic pricing when unset.
	DefaultRiskFreeRate = 0.045
	// DefaultFallbackVolatility is the volatility assumed for synthetic contracts.
	DefaultFallbackVolatility = 0.30
	// DefaultBatchConcurrency bounds concurrent tickers in a batch.
	DefaultBatchConcurrency = 8

	maxTickerLen = 12
)

// Resolver produces quotes and chains; *fallback.Orchestrator implements it.
type Resolver interface {
	ResolvePrice(ctx context.Context, ticker string) (*models.Quote, error)
	ResolveChain(ctx context.Context, ticker string) (*models.OptionsChain, error)
}

// Config tunes synthetic pricing and batch fan-out.
type Config struct {
	// RiskFreeRate nil means DefaultRiskFreeRate; an explicit 0 is kept.
	RiskFreeRate       *float64
	FallbackVolatility float64
	BatchConcurrency   int
}

// Facade composes the resolver, normalizer output, matcher and pricing
// model. It holds no per-request state.
type Facade struct {
	resolver Resolver
	cfg      Config
	rate     float64
	logger   *logrus.Logger
	now      func() time.Time
}

// New creates a facade. Unset config values take the package defaults.
func New(resolver Resolver, cfg Config, logger *logrus.Logger) *Facade {
	rate := DefaultRiskFreeRate
	if cfg.RiskFreeRate != nil {
		rate = *cfg.RiskFreeRate
	}
	if cfg.FallbackVolatility <= 0 {
		cfg.FallbackVolatility = DefaultFallbackVolatility
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Facade{resolver: resolver, cfg: cfg, rate: rate, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for days-to-expiration.
func (f *Facade) WithClock(now func() time.Time) *Facade {
	f.now = now
	return f
}

// NormalizeTicker upper-cases and validates a ticker symbol.
func NormalizeTicker(ticker string) (string, error) {
	t := strings.ToUpper(strings.TrimSpace(ticker))
	if t == "" {
		return "", fmt.Errorf("%w: empty ticker", provider.ErrInvalidInput)
	}
	if len(t) > maxTickerLen {
		return "", fmt.Errorf("%w: ticker %q too long", provider.ErrInvalidInput, ticker)
	}
	for _, r := range t {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '^', r == '_', r == '/':
		default:
			return "", fmt.Errorf("%w: ticker %q has invalid character %q", provider.ErrInvalidInput, ticker, r)
		}
	}
	return t, nil
}

func (f *Facade) begin(ctx context.Context, op, ticker string) (context.Context, *logrus.Entry) {
	if _, ok := fallback.RequestIDFrom(ctx); !ok {
		ctx = fallback.WithRequestID(ctx, "")
	}
	id, _ := fallback.RequestIDFrom(ctx)
	return ctx, f.logger.WithFields(logrus.Fields{
		"op":         op,
		"ticker":     ticker,
		"request_id": id,
	})
}

// FetchQuote returns the first quote the fallback chain produces.
func (f *Facade) FetchQuote(ctx context.Context, ticker string) (*models.Quote, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	ctx, log := f.begin(ctx, "price", t)
	q, err := f.resolver.ResolvePrice(ctx, t)
	if err != nil {
		log.WithError(err).Info("Price not found")
		return nil, err
	}
	log.WithFields(logrus.Fields{"source": q.Source, "price": q.Price}).Debug("Price resolved")
	return q, nil
}

// FetchStockPrice returns the current price for ticker. Exhaustion of every
// provider is reported as provider.ErrNoDataAvailable.
func (f *Facade) FetchStockPrice(ctx context.Context, ticker string) (float64, error) {
	q, err := f.FetchQuote(ctx, ticker)
	if err != nil {
		return 0, err
	}
	return q.Price, nil
}

// FetchOptionsChain returns the normalized chain for ticker.
func (f *Facade) FetchOptionsChain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	ctx, log := f.begin(ctx, "chain", t)
	c, err := f.resolver.ResolveChain(ctx, t)
	if err != nil {
		log.WithError(err).Info("Chain not found")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"source":      c.Source,
		"calls":       len(c.Calls),
		"puts":        len(c.Puts),
		"expirations": len(c.Expirations),
	}).Debug("Chain resolved")
	return c, nil
}

// FetchStockPricesBatch fetches every ticker concurrently and returns the
// prices that resolved, keyed by normalized ticker. A failing or invalid
// ticker is logged and left out; it never cancels the others.
func (f *Facade) FetchStockPricesBatch(ctx context.Context, tickers []string) map[string]float64 {
	out := make(map[string]float64, len(tickers))
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(f.cfg.BatchConcurrency)

	seen := make(map[string]bool, len(tickers))
	for _, raw := range tickers {
		t, err := NormalizeTicker(raw)
		if err != nil {
			f.logger.WithError(err).Debug("Skipping invalid ticker in batch")
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true

		g.Go(func() error {
			price, err := f.FetchStockPrice(ctx, t)
			if err != nil {
				return nil
			}
			mu.Lock()
			out[t] = price
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// FindOption locates a contract in options using the matcher's fallback
// policy. The expiration may be in any accepted date form; nil means no match
// or an unreadable expiration.
func FindOption(options []models.OptionContract, strike float64, expiration string) *models.OptionContract {
	exp, err := matcher.NormalizeExpiration(expiration)
	if err != nil {
		return nil
	}
	return matcher.FindOption(options, strike, exp)
}

func validateStrike(strike float64) error {
	if math.IsNaN(strike) || math.IsInf(strike, 0) || strike <= 0 {
		return fmt.Errorf("%w: strike %v", provider.ErrInvalidInput, strike)
	}
	return nil
}
