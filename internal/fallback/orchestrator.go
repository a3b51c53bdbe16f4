// Package fallback resolves quotes and chains by folding over an ordered
// list of providers. Each provider gets exactly one attempt per request and
// the first success wins.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
)

// Orchestrator holds the provider order for prices and for chains. It keeps
// no per-request state and is safe for concurrent use.
type Orchestrator struct {
	prices []provider.PriceSource
	chains []provider.ChainSource
	logger *logrus.Logger
}

// ProviderStatus describes one provider for status output.
type ProviderStatus struct {
	Name      models.Source `json:"name"`
	Rank      int           `json:"rank"`
	Available bool          `json:"available"`
	Prices    bool          `json:"prices"`
	Chains    bool          `json:"chains"`
	Breaker   string        `json:"breaker,omitempty"`
}

// New creates an orchestrator. The slices are tried in order.
func New(prices []provider.PriceSource, chains []provider.ChainSource, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Orchestrator{prices: prices, chains: chains, logger: logger}
}

// ResolvePrice returns the first quote any provider produces.
func (o *Orchestrator) ResolvePrice(ctx context.Context, ticker string) (*models.Quote, error) {
	return resolve(ctx, o.entry(ctx, "price", ticker), ticker, o.prices,
		func(s provider.PriceSource) (*models.Quote, error) { return s.Quote(ctx, ticker) })
}

// ResolveChain returns the first normalized chain any provider produces.
func (o *Orchestrator) ResolveChain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	return resolve(ctx, o.entry(ctx, "chain", ticker), ticker, o.chains,
		func(s provider.ChainSource) (*models.OptionsChain, error) { return s.Chain(ctx, ticker) })
}

func (o *Orchestrator) entry(ctx context.Context, op, ticker string) *logrus.Entry {
	e := o.logger.WithFields(logrus.Fields{"op": op, "ticker": ticker})
	if id, ok := RequestIDFrom(ctx); ok {
		e = e.WithField("request_id", id)
	}
	return e
}

// resolve is the fold: unavailable providers are skipped, failures are
// logged and the next provider is tried. Only exhaustion is returned.
func resolve[S provider.Source, T any](
	ctx context.Context,
	log *logrus.Entry,
	ticker string,
	sources []S,
	call func(S) (*T, error),
) (*T, error) {
	var attempts []error
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		plog := log.WithField("provider", src.Name())
		if !provider.IsAvailable(ctx, src) {
			plog.Debug("Provider unavailable, skipping")
			continue
		}

		start := time.Now()
		res, err := call(src)
		if err == nil && res == nil {
			err = fmt.Errorf("provider %s returned no data", src.Name())
		}
		switch {
		case err == nil:
			plog.WithField("elapsed", time.Since(start)).Debug("Provider succeeded")
			return res, nil
		case provider.IsUnavailable(err):
			plog.Debug("Provider unavailable, skipping")
		default:
			plog.WithError(err).WithField("elapsed", time.Since(start)).Warn("Provider failed, trying next")
			attempts = append(attempts, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(attempts) == 0 {
		return nil, fmt.Errorf("%w for %s: no provider available", provider.ErrNoDataAvailable, ticker)
	}
	return nil, fmt.Errorf("%w for %s: %w", provider.ErrNoDataAvailable, ticker, errors.Join(attempts...))
}

// Status reports each distinct provider in price-then-chain order.
func (o *Orchestrator) Status(ctx context.Context) []ProviderStatus {
	var out []ProviderStatus
	index := make(map[models.Source]int)

	add := func(src provider.Source, prices, chains bool) {
		if i, ok := index[src.Name()]; ok {
			out[i].Prices = out[i].Prices || prices
			out[i].Chains = out[i].Chains || chains
			return
		}
		st := ProviderStatus{
			Name:      src.Name(),
			Rank:      len(out) + 1,
			Available: provider.IsAvailable(ctx, src),
			Prices:    prices,
			Chains:    chains,
		}
		if b, ok := src.(interface{ State() string }); ok {
			st.Breaker = b.State()
		}
		index[src.Name()] = len(out)
		out = append(out, st)
	}
	for _, p := range o.prices {
		add(p, true, false)
	}
	for _, c := range o.chains {
		add(c, false, true)
	}
	return out
}
