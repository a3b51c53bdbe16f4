package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/chain"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// DefaultSchwabBaseURL is the Schwab market data API root.
const DefaultSchwabBaseURL = "https://api.schwabapi.com/marketdata/v1"

// SchwabConfig holds the credentials and endpoints for the primary provider.
type SchwabConfig struct {
	BaseURL     string
	AccessToken string
	// StatusURL, when set, is polled before every data call and must report
	// {"authenticated": true}. Without it the provider is available whenever
	// an access token is configured.
	StatusURL string
	Timeout   time.Duration
}

// Schwab is the authenticated real-time provider. Its chains use the
// nested-map payload shape.
type Schwab struct {
	cfg    SchwabConfig
	http   httpJSON
	logger *logrus.Logger
}

type schwabStatus struct {
	Configured    bool `json:"configured"`
	Authenticated bool `json:"authenticated"`
}

type schwabQuoteEntry struct {
	Symbol string `json:"symbol"`
	Quote  struct {
		LastPrice  chain.Float `json:"lastPrice"`
		Mark       chain.Float `json:"mark"`
		ClosePrice chain.Float `json:"closePrice"`
		QuoteTime  int64       `json:"quoteTime"`
	} `json:"quote"`
}

// NewSchwab creates the primary provider. A nil client gets a default one
// bounded by the attempt timeout.
func NewSchwab(cfg SchwabConfig, client *http.Client, logger *logrus.Logger) *Schwab {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultSchwabBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Schwab{
		cfg:    cfg,
		http:   newHTTPJSON(client, cfg.Timeout, logger),
		logger: orDiscard(logger),
	}
}

// Name identifies the provider.
func (s *Schwab) Name() models.Source { return models.SourceSchwab }

// Configured reports whether credentials are present.
func (s *Schwab) Configured() bool {
	return s.cfg.AccessToken != ""
}

// Available reports whether the provider is configured and authenticated.
// It never returns an error; an unreachable status endpoint reads as
// unavailable.
func (s *Schwab) Available(ctx context.Context) bool {
	if !s.Configured() {
		return false
	}
	if s.cfg.StatusURL == "" {
		return true
	}
	var st schwabStatus
	if err := s.http.getJSON(ctx, s.cfg.StatusURL, nil, &st); err != nil {
		s.logger.WithError(err).Debug("Schwab status check failed")
		return false
	}
	return st.Authenticated
}

func (s *Schwab) authHeader() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+s.cfg.AccessToken)
	return h
}

// Quote returns the last trade price, falling back to mark then close.
func (s *Schwab) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	if !s.Configured() {
		return nil, ErrProviderUnavailable
	}
	params := url.Values{}
	params.Set("symbols", ticker)
	params.Set("fields", "quote")

	var resp map[string]schwabQuoteEntry
	if err := s.http.getJSON(ctx, s.cfg.BaseURL+"/quotes?"+params.Encode(), s.authHeader(), &resp); err != nil {
		return nil, fail(s.Name(), err)
	}

	entry, ok := resp[ticker]
	if !ok {
		return nil, fail(s.Name(), malformed("no quote for %s", ticker))
	}
	price := firstPositive(float64(entry.Quote.LastPrice), float64(entry.Quote.Mark), float64(entry.Quote.ClosePrice))
	if price <= 0 {
		return nil, fail(s.Name(), malformed("quote for %s has no price", ticker))
	}

	ts := time.Now().UTC()
	if entry.Quote.QuoteTime > 0 {
		ts = time.UnixMilli(entry.Quote.QuoteTime).UTC()
	}
	return &models.Quote{Timestamp: ts, Ticker: ticker, Source: s.Name(), Price: price}, nil
}

// Chain returns the full options chain with the underlying quote.
func (s *Schwab) Chain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	if !s.Configured() {
		return nil, ErrProviderUnavailable
	}
	params := url.Values{}
	params.Set("symbol", ticker)
	params.Set("contractType", "ALL")
	params.Set("includeUnderlyingQuote", "true")

	var payload chain.SchwabPayload
	if err := s.http.getJSON(ctx, s.cfg.BaseURL+"/chains?"+params.Encode(), s.authHeader(), &payload); err != nil {
		return nil, fail(s.Name(), err)
	}
	if strings.EqualFold(payload.Status, "FAILED") {
		return nil, fail(s.Name(), malformed("chain request for %s reported FAILED", ticker))
	}
	return normalizeChain(s.Name(), ticker, &payload, s.logger)
}

// normalizeChain runs the payload through the normalizer, logs dropped and
// flagged contracts, and rejects chains with no contracts.
func normalizeChain(src models.Source, ticker string, payload chain.Payload, logger *logrus.Logger) (*models.OptionsChain, error) {
	res, err := chain.Normalize(ticker, payload)
	if err != nil {
		return nil, fail(src, err)
	}
	if n := len(res.Skipped); n > 0 {
		logger.WithFields(logrus.Fields{
			"provider": src,
			"ticker":   ticker,
			"skipped":  n,
			"first":    res.Skipped[0].Error(),
		}).Debug("Skipped undecodable contracts")
	}
	if n := len(res.Flagged); n > 0 {
		logger.WithFields(logrus.Fields{
			"provider": src,
			"ticker":   ticker,
			"flagged":  n,
		}).Warn("Contracts with implausible implied volatility")
	}

	c := res.Chain
	if len(c.Calls)+len(c.Puts) == 0 {
		return nil, fail(src, malformed("chain for %s has no contracts", ticker))
	}
	c.Source = src
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	return c, nil
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// IsUnavailable reports whether err means the provider was skipped rather
// than failed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrProviderUnavailable)
}
