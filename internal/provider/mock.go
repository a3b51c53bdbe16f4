package provider

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/occ"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/pricing"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/util"
)

// Mock generates deterministic quotes and Black-Scholes priced chains for
// offline runs. Unknown tickers get a stable price derived from the symbol.
type Mock struct {
	mu         sync.Mutex
	prices     map[string]float64
	volatility float64
	rate       float64
	months     int
	now        func() time.Time
}

// NewMock creates a mock provider seeded with known prices.
func NewMock(prices map[string]float64) *Mock {
	p := make(map[string]float64, len(prices))
	for k, v := range prices {
		p[strings.ToUpper(k)] = v
	}
	return &Mock{
		prices:     p,
		volatility: 0.30,
		rate:       0.045,
		months:     3,
		now:        time.Now,
	}
}

// WithClock overrides the clock used for expirations.
func (m *Mock) WithClock(now func() time.Time) *Mock {
	m.now = now
	return m
}

// Name identifies the provider.
func (m *Mock) Name() models.Source { return models.SourceMock }

// SetPrice pins the price for ticker.
func (m *Mock) SetPrice(ticker string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(ticker)] = price
}

func (m *Mock) price(ticker string) float64 {
	ticker = strings.ToUpper(ticker)
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.prices[ticker]; ok {
		return p
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(ticker))
	return util.RoundToPenny(20 + float64(h.Sum32()%48000)/100)
}

// Quote returns the seeded or derived price.
func (m *Mock) Quote(ctx context.Context, ticker string) (*models.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(m.Name(), err)
	}
	return &models.Quote{
		Timestamp: m.now().UTC(),
		Ticker:    ticker,
		Source:    m.Name(),
		Price:     m.price(ticker),
	}, nil
}

// Chain builds monthly expirations (third Fridays) with strikes spaced
// around the spot price.
func (m *Mock) Chain(ctx context.Context, ticker string) (*models.OptionsChain, error) {
	if err := ctx.Err(); err != nil {
		return nil, fail(m.Name(), err)
	}
	now := m.now().UTC()
	spot := m.price(ticker)
	step := strikeStep(spot)
	center := math.Round(spot/step) * step

	c := &models.OptionsChain{
		Timestamp:    now,
		Ticker:       ticker,
		Source:       m.Name(),
		CurrentPrice: spot,
	}
	for _, exp := range monthlyExpirations(now, m.months) {
		expiration := exp.Format(models.ExpirationLayout)
		days := math.Max(1, math.Ceil(exp.Sub(now).Hours()/24))
		for i := -10; i <= 10; i++ {
			strike := center + float64(i)*step
			if strike <= 0 {
				continue
			}
			for _, t := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
				contract, err := m.contract(ticker, expiration, t, strike, spot, days)
				if err != nil {
					return nil, fail(m.Name(), err)
				}
				c.Add(contract)
			}
		}
	}
	c.RebuildExpirations()
	return c, nil
}

func (m *Mock) contract(ticker, expiration string, t models.OptionType, strike, spot, days float64) (models.OptionContract, error) {
	in := pricing.Input{
		Spot:         spot,
		Strike:       strike,
		DaysToExpiry: days,
		RiskFreeRate: m.rate,
		Volatility:   m.volatility,
		IsPut:        t == models.OptionTypePut,
	}
	theo, err := pricing.TheoreticalPrice(in)
	if err != nil {
		return models.OptionContract{}, err
	}
	g, err := pricing.ComputeGreeks(in)
	if err != nil {
		return models.OptionContract{}, err
	}
	symbol, err := occ.Encode(ticker, expiration, t, strike, false)
	if err != nil {
		return models.OptionContract{}, fmt.Errorf("encoding mock symbol: %w", err)
	}
	bid := util.FloorAt(util.RoundToPenny(theo-0.05), 0)
	return models.OptionContract{
		Symbol:            symbol,
		Underlying:        ticker,
		Expiration:        expiration,
		Type:              t,
		Strike:            strike,
		Bid:               bid,
		Ask:               util.RoundToPenny(theo + 0.05),
		LastPrice:         util.RoundToPenny(theo),
		Mark:              util.RoundToPenny(theo),
		ImpliedVolatility: m.volatility,
		Delta:             g.Delta,
		Gamma:             g.Gamma,
		Theta:             g.Theta,
		Vega:              g.Vega,
		InTheMoney:        (t == models.OptionTypeCall && spot > strike) || (t == models.OptionTypePut && spot < strike),
	}, nil
}

func strikeStep(spot float64) float64 {
	switch {
	case spot < 25:
		return 0.5
	case spot < 100:
		return 1
	case spot < 250:
		return 2.5
	default:
		return 5
	}
}

// monthlyExpirations returns the next n third Fridays strictly after now.
func monthlyExpirations(now time.Time, n int) []time.Time {
	var out []time.Time
	y, mo := now.Year(), now.Month()
	for len(out) < n {
		first := time.Date(y, mo, 1, 0, 0, 0, 0, time.UTC)
		offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
		third := first.AddDate(0, 0, offset+14)
		if third.After(now) {
			out = append(out, third)
		}
		mo++
		if mo > time.December {
			mo = time.January
			y++
		}
	}
	return out
}
