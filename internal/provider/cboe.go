package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/chain"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// DefaultCBOEBaseURL serves delayed option quotes as {base}/{SYMBOL}.json.
const DefaultCBOEBaseURL = "https://cdn.cboe.com/api/global/delayed_quotes/options"

// Cash-settled index symbols are published with a leading underscore.
var cboeIndexSymbols = map[string]bool{
	"SPX": true, "XSP": true, "NDX": true, "RUT": true,
	"VIX": true, "DJX": true, "OEX": true, "XEO": true,
}

// CBOEConfig configures the secondary provider. RelayURL is the root of a
// same-origin relay that serves {relay}/api/cboe/{TICKER}; it is tried when
// the CDN cannot be reached directly.
type CBOEConfig struct {
	BaseURL  string
	RelayURL string
	Timeout  time.Duration
}

// CBOE is the delayed-quote provider. Its chains use the flat-list payload
// shape with OCC-encoded symbols.
type CBOE struct {
	cfg    CBOEConfig
	http   httpJSON
	logger *logrus.Logger
}

// NewCBOE creates the secondary provider.
func NewCBOE(cfg CBOEConfig, client *http.Client, logger *logrus.Logger) *CBOE {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCBOEBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.RelayURL = strings.TrimRight(cfg.RelayURL, "/")
	return &CBOE{
		cfg:    cfg,
		http:   newHTTPJSON(client, cfg.Timeout, logger),
		logger: orDiscard(logger),
	}
}

// Name identifies the provider.
func (c *CBOE) Name() models.Source { return models.SourceCBOE }

// CDNSymbol maps a ticker to the file name the CDN publishes it under.
func CDNSymbol(ticker string) string {
	t := strings.ToUpper(strings.TrimPrefix(ticker, "_"))
	if cboeIndexSymbols[t] {
		return "_" + t
	}
	return t
}

func (c *CBOE) directURL(ticker string) string {
	return c.cfg.BaseURL + "/" + url.PathEscape(CDNSymbol(ticker)) + ".json"
}

func (c *CBOE) endpoints(ticker string) []string {
	eps := []string{c.directURL(ticker)}
	if c.cfg.RelayURL != "" {
		eps = append(eps, c.cfg.RelayURL+"/api/cboe/"+url.PathEscape(ticker))
	}
	return eps
}

// payload tries the direct CDN, then the relay. The first structurally
// valid response wins.
func (c *CBOE) payload(ctx context.Context, ticker string) (*chain.CBOEPayload, error) {
	var lastErr error
	for _, ep := range c.endpoints(ticker) {
		var p chain.CBOEPayload
		err := c.http.getJSON(ctx, ep, nil, &p)
		if err == nil && p.SpotPrice() <= 0 && len(p.Data.Options) == 0 {
			err = malformed("empty delayed quote for %s", ticker)
		}
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{
				"ticker":   ticker,
				"endpoint": ep,
			}).Debug("CBOE endpoint failed")
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		return &p, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no CBOE endpoints configured")
	}
	return nil, fail(c.Name(), lastErr)
}

// Quote returns the underlying price published alongside the chain.
func (c *CBOE) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	p, err := c.payload(ctx, ticker)
	if err != nil {
		return nil, err
	}
	price := p.SpotPrice()
	if price <= 0 {
		return nil, fail(c.Name(), malformed("no underlying price for %s", ticker))
	}
	return &models.Quote{Timestamp: time.Now().UTC(), Ticker: ticker, Source: c.Name(), Price: price}, nil
}

// Chain returns the normalized delayed chain.
func (c *CBOE) Chain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	p, err := c.payload(ctx, ticker)
	if err != nil {
		return nil, err
	}
	return normalizeChain(c.Name(), ticker, p, c.logger)
}

// Raw fetches the CDN document for ticker without decoding it. The relay
// handler serves this verbatim, so it never goes through the relay itself.
func (c *CBOE) Raw(ctx context.Context, ticker string) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.http.getJSON(ctx, c.directURL(ticker), nil, &raw); err != nil {
		return nil, fail(c.Name(), err)
	}
	return raw, nil
}
