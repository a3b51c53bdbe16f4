package chain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/occ"
)

// PercentIVThreshold is the raw IV above which a value is read as a
// percentage rather than a decimal fraction.
const PercentIVThreshold = 5.0

// cboeTimestampLayout is the CBOE CDN timestamp format.
const cboeTimestampLayout = "2006-01-02 15:04:05"

// ErrUnsupportedPayload is returned for a nil or unknown payload.
var ErrUnsupportedPayload = errors.New("unsupported chain payload")

// Result is a normalized chain plus what was dropped or looked suspicious
// along the way. Callers decide whether to log them.
type Result struct {
	Chain *models.OptionsChain
	// Skipped holds one error per contract or expiration bucket that could
	// not be converted (typically *occ.DecodeError).
	Skipped []error
	// Flagged lists symbols whose normalized IV is still above
	// PercentIVThreshold, i.e. a pathological >500% volatility.
	Flagged []string
}

// Normalize converts payload into the canonical chain. ticker is used when
// the payload does not name its underlying.
func Normalize(ticker string, payload Payload) (*Result, error) {
	switch p := payload.(type) {
	case *SchwabPayload:
		if p == nil {
			break
		}
		return normalizeNested(ticker, p), nil
	case *CBOEPayload:
		if p == nil {
			break
		}
		return normalizeFlat(ticker, p), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedPayload, payload)
}

// NormalizeIV converts a raw vendor IV to a decimal fraction using the
// percentage heuristic. Negative sentinels (such as -999) become zero.
func NormalizeIV(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	if raw > PercentIVThreshold {
		return raw / 100
	}
	return raw
}

func normalizeNested(ticker string, p *SchwabPayload) *Result {
	c := &models.OptionsChain{
		Ticker:       pickTicker(p.Symbol, ticker),
		Timestamp:    time.Now().UTC(),
		Source:       models.SourceSchwab,
		CurrentPrice: float64(p.UnderlyingPrice),
	}
	if c.CurrentPrice <= 0 && p.Underlying != nil {
		c.CurrentPrice = float64(p.Underlying.Last)
		if c.CurrentPrice <= 0 {
			c.CurrentPrice = float64(p.Underlying.Mark)
		}
	}

	res := &Result{Chain: c}
	walkExpDateMap(res, p.CallExpDateMap, models.OptionTypeCall)
	walkExpDateMap(res, p.PutExpDateMap, models.OptionTypePut)
	finish(c)
	return res
}

func walkExpDateMap(res *Result, m map[string]map[string][]SchwabContract, optType models.OptionType) {
	c := res.Chain
	for compositeKey, strikes := range m {
		expiration := strings.SplitN(compositeKey, ":", 2)[0]
		if _, err := time.Parse(models.ExpirationLayout, expiration); err != nil {
			res.Skipped = append(res.Skipped, fmt.Errorf("expiration key %q: %w", compositeKey, err))
			continue
		}
		for strikeKey, records := range strikes {
			if len(records) == 0 {
				continue
			}
			rec := records[0]

			strike, err := strconv.ParseFloat(strings.TrimSpace(strikeKey), 64)
			if err != nil || strike <= 0 {
				strike = float64(rec.StrikePrice)
			}
			if strike <= 0 {
				res.Skipped = append(res.Skipped, fmt.Errorf("strike key %q under %s: not a price", strikeKey, expiration))
				continue
			}

			contract := models.OptionContract{
				Symbol:            strings.TrimSpace(rec.Symbol),
				Underlying:        c.Ticker,
				Expiration:        expiration,
				Type:              optType,
				Strike:            strike,
				Bid:               float64(rec.Bid),
				Ask:               float64(rec.Ask),
				LastPrice:         float64(rec.Last),
				Mark:              float64(rec.Mark),
				ImpliedVolatility: percentToDecimal(float64(rec.Volatility)),
				Volume:            int64(rec.TotalVolume),
				OpenInterest:      int64(rec.OpenInterest),
				Delta:             float64(rec.Delta),
				Gamma:             float64(rec.Gamma),
				Theta:             float64(rec.Theta),
				Vega:              float64(rec.Vega),
				InTheMoney:        rec.InTheMoney,
			}
			if contract.Symbol == "" {
				if sym, err := occ.Encode(c.Ticker, expiration, optType, strike, false); err == nil {
					contract.Symbol = sym
				}
			}
			addContract(res, contract)
		}
	}
}

// percentToDecimal handles the nested-map vendor, whose volatility is always
// a percentage.
func percentToDecimal(raw float64) float64 {
	if raw <= 0 {
		return 0
	}
	return raw / 100
}

func normalizeFlat(ticker string, p *CBOEPayload) *Result {
	c := &models.OptionsChain{
		Ticker:       pickTicker(strings.TrimPrefix(p.Data.Symbol, "_"), ticker),
		Timestamp:    parseCBOETimestamp(p.Timestamp),
		Source:       models.SourceCBOE,
		CurrentPrice: p.SpotPrice(),
	}

	res := &Result{Chain: c}
	for i := range p.Data.Options {
		rec := &p.Data.Options[i]
		sym, err := occ.Decode(rec.Option)
		if err != nil {
			res.Skipped = append(res.Skipped, err)
			continue
		}

		contract := models.OptionContract{
			Symbol:            strings.TrimSpace(rec.Option),
			Underlying:        sym.Underlying,
			Expiration:        sym.Expiration,
			Type:              sym.Type,
			Strike:            sym.Strike,
			Bid:               float64(rec.Bid),
			Ask:               float64(rec.Ask),
			LastPrice:         float64(rec.LastTradePrice),
			ImpliedVolatility: NormalizeIV(float64(rec.IV)),
			Volume:            int64(rec.Volume),
			OpenInterest:      int64(rec.OpenInterest),
			Delta:             float64(rec.Delta),
			Gamma:             float64(rec.Gamma),
			Theta:             float64(rec.Theta),
			Vega:              float64(rec.Vega),
			InTheMoney:        inTheMoney(sym.Type, sym.Strike, c.CurrentPrice),
		}
		addContract(res, contract)
	}
	finish(c)
	return res
}

func addContract(res *Result, contract models.OptionContract) {
	if contract.Mark <= 0 {
		contract.Mark = contract.MidOrLast()
	}
	if contract.ImpliedVolatility > PercentIVThreshold {
		res.Flagged = append(res.Flagged, contract.Symbol)
	}
	res.Chain.Add(contract)
}

// finish orders both sides by expiration then strike and rebuilds the
// expiration set.
func finish(c *models.OptionsChain) {
	sortContracts(c.Calls)
	sortContracts(c.Puts)
	if c.Calls == nil {
		c.Calls = []models.OptionContract{}
	}
	if c.Puts == nil {
		c.Puts = []models.OptionContract{}
	}
	c.RebuildExpirations()
}

func sortContracts(contracts []models.OptionContract) {
	sort.SliceStable(contracts, func(i, j int) bool {
		if contracts[i].Expiration != contracts[j].Expiration {
			return contracts[i].Expiration < contracts[j].Expiration
		}
		return contracts[i].Strike < contracts[j].Strike
	})
}

func inTheMoney(t models.OptionType, strike, spot float64) bool {
	if spot <= 0 {
		return false
	}
	if t == models.OptionTypeCall {
		return strike < spot
	}
	return strike > spot
}

func pickTicker(fromPayload, fallback string) string {
	if s := strings.ToUpper(strings.TrimSpace(fromPayload)); s != "" {
		return s
	}
	return strings.ToUpper(strings.TrimSpace(fallback))
}

func parseCBOETimestamp(s string) time.Time {
	if t, err := time.Parse(cboeTimestampLayout, strings.TrimSpace(s)); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(s)); err == nil {
		return t.UTC()
	}
	return time.Now().UTC()
}
