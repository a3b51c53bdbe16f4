package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// BreakerSettings configures the per-provider circuit breaker.
type BreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultBreakerSettings returns the breaker tuning used when config leaves it unset.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		MinRequests:  5,
		FailureRatio: 0.6,
	}
}

// Guarded wraps a provider in a circuit breaker. While the breaker is open,
// calls fail immediately with a *Failure so the fallback chain moves on
// without waiting for a timeout.
type Guarded struct {
	source  Source
	breaker *gobreaker.CircuitBreaker
}

// WithBreaker guards source. Unavailability and caller cancellation do not
// count against the breaker.
func WithBreaker(source Source, settings BreakerSettings, logger *logrus.Logger) *Guarded {
	logger = orDiscard(logger)
	gbSettings := gobreaker.Settings{
		Name:        string(source.Name()),
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsUnavailable(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"provider": name,
				"from":     from.String(),
				"to":       to.String(),
			}).Warn("Circuit breaker state changed")
		},
	}
	return &Guarded{source: source, breaker: gobreaker.NewCircuitBreaker(gbSettings)}
}

// Name identifies the wrapped provider.
func (g *Guarded) Name() models.Source { return g.source.Name() }

// Available delegates to the wrapped provider.
func (g *Guarded) Available(ctx context.Context) bool { return IsAvailable(ctx, g.source) }

// State reports the breaker state for status output.
func (g *Guarded) State() string { return g.breaker.State().String() }

// Quote calls the wrapped provider through the breaker.
func (g *Guarded) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	ps, ok := g.source.(PriceSource)
	if !ok {
		return nil, fail(g.Name(), fmt.Errorf("%s does not serve quotes", g.Name()))
	}
	return execBreaker(g, func() (*models.Quote, error) { return ps.Quote(ctx, ticker) })
}

// Chain calls the wrapped provider through the breaker.
func (g *Guarded) Chain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	cs, ok := g.source.(ChainSource)
	if !ok {
		return nil, fail(g.Name(), fmt.Errorf("%s does not serve chains", g.Name()))
	}
	return execBreaker(g, func() (*models.OptionsChain, error) { return cs.Chain(ctx, ticker) })
}

func execBreaker[T any](g *Guarded, fn func() (T, error)) (T, error) {
	var zero T
	res, err := g.breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fail(g.Name(), err)
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}
