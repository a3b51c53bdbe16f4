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

// DefaultYahooBaseURL is the chart endpoint the tertiary provider reads.
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"

// DefaultYahooRelays are tried in order. The target URL is query-escaped and
// appended, or substituted for a "{url}" placeholder. An empty entry means a
// direct request.
var DefaultYahooRelays = []string{
	"https://api.allorigins.win/raw?url=",
	"https://corsproxy.io/?url=",
	"https://api.codetabs.com/v1/proxy?quest=",
}

// YahooConfig configures the tertiary, price-only provider.
type YahooConfig struct {
	BaseURL string
	Relays  []string
	Timeout time.Duration
}

// Yahoo reads the last regular-market price from the chart endpoint through
// an ordered list of relays. It serves quotes only.
type Yahoo struct {
	cfg    YahooConfig
	http   httpJSON
	logger *logrus.Logger
}

type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string      `json:"symbol"`
				RegularMarketPrice chain.Float `json:"regularMarketPrice"`
				RegularMarketTime  int64       `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahoo creates the tertiary provider. A nil Relays list uses
// DefaultYahooRelays.
func NewYahoo(cfg YahooConfig, client *http.Client, logger *logrus.Logger) *Yahoo {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultYahooBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Relays == nil {
		cfg.Relays = DefaultYahooRelays
	}
	return &Yahoo{
		cfg:    cfg,
		http:   newHTTPJSON(client, cfg.Timeout, logger),
		logger: orDiscard(logger),
	}
}

// Name identifies the provider.
func (y *Yahoo) Name() models.Source { return models.SourceYahoo }

func (y *Yahoo) target(ticker string) string {
	return y.cfg.BaseURL + "/" + url.PathEscape(ticker) + "?interval=1d&range=1d"
}

// relayURL wraps target for one relay.
func relayURL(relay, target string) string {
	switch {
	case relay == "":
		return target
	case strings.Contains(relay, "{url}"):
		return strings.ReplaceAll(relay, "{url}", url.QueryEscape(target))
	default:
		return relay + url.QueryEscape(target)
	}
}

// Quote tries each relay once, in order. A relay succeeds only when it
// returns a chart with a positive regular-market price.
func (y *Yahoo) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	target := y.target(ticker)
	var lastErr error
	for i, relay := range y.cfg.Relays {
		q, err := y.quoteVia(ctx, relayURL(relay, target), ticker)
		if err == nil {
			return q, nil
		}
		y.logger.WithError(err).WithFields(logrus.Fields{
			"ticker": ticker,
			"relay":  i,
		}).Debug("Yahoo relay failed")
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = errors.New("no Yahoo relays configured")
	}
	return nil, fail(y.Name(), lastErr)
}

func (y *Yahoo) quoteVia(ctx context.Context, endpoint, ticker string) (*models.Quote, error) {
	var chart yahooChart
	if err := y.http.getJSON(ctx, endpoint, nil, &chart); err != nil {
		return nil, err
	}
	if e := chart.Chart.Error; e != nil {
		return nil, malformed("chart error %s: %s", e.Code, e.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return nil, malformed("chart for %s has no result", ticker)
	}
	meta := chart.Chart.Result[0].Meta
	price := float64(meta.RegularMarketPrice)
	if price <= 0 {
		return nil, malformed("chart for %s has no price", ticker)
	}
	ts := time.Now().UTC()
	if meta.RegularMarketTime > 0 {
		ts = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	return &models.Quote{Timestamp: ts, Ticker: ticker, Source: y.Name(), Price: price}, nil
}
