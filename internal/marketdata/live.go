package marketdata

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/matcher"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/occ"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/pricing"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/util"
)

// LiveOptionData is the call and put at a requested strike and expiration.
// A side the chain could not supply is priced with Black-Scholes and marked
// synthetic.
type LiveOptionData struct {
	Ticker              string                 `json:"ticker"`
	Spot                float64                `json:"spot"`
	Call                *models.OptionContract `json:"call"`
	Put                 *models.OptionContract `json:"put"`
	ImpliedVolatility   float64                `json:"impliedVolatility"`
	RequestedStrike     float64                `json:"requestedStrike"`
	RequestedExpiration string                 `json:"requestedExpiration"`
	Expiration          string                 `json:"expiration"`
	CallMatch           matcher.MatchKind      `json:"callMatch"`
	PutMatch            matcher.MatchKind      `json:"putMatch"`
	CallSynthetic       bool                   `json:"callSynthetic"`
	PutSynthetic        bool                   `json:"putSynthetic"`
	Source              models.Source          `json:"source"`
}

// Synthetic reports whether any side was priced by the model.
func (d *LiveOptionData) Synthetic() bool {
	return d.CallSynthetic || d.PutSynthetic
}

// FetchLiveOptionData resolves the chain for ticker and matches the call and
// put nearest to (strike, expiration). Expiration may be in any accepted date
// form. The expiration actually used can differ from the one requested.
func (f *Facade) FetchLiveOptionData(ctx context.Context, ticker string, strike float64, expiration string) (*LiveOptionData, error) {
	t, err := NormalizeTicker(ticker)
	if err != nil {
		return nil, err
	}
	if err := validateStrike(strike); err != nil {
		return nil, err
	}
	exp, err := matcher.NormalizeExpiration(expiration)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidInput, err)
	}

	ctx, log := f.begin(ctx, "live", t)
	c, err := f.FetchOptionsChain(ctx, t)
	if err != nil {
		return nil, err
	}

	call := matcher.FindContractOfType(c, models.OptionTypeCall, strike, exp)
	put := matcher.FindContractOfType(c, models.OptionTypePut, strike, exp)

	data := &LiveOptionData{
		Ticker:              t,
		Spot:                c.CurrentPrice,
		RequestedStrike:     strike,
		RequestedExpiration: exp,
		CallMatch:           call.Kind,
		PutMatch:            put.Kind,
		Source:              c.Source,
	}

	// Both sides match against the same target, so a found contract always
	// sits at this date.
	used, ok := matcher.ResolveExpiration(c, exp)
	if !ok {
		used = exp
	}
	data.Expiration = used

	if put.Found() {
		data.Put = put.Contract
	}
	if call.Found() {
		data.Call = call.Contract
	}
	needsSynthetic := data.Put == nil || data.Call == nil

	if data.Spot <= 0 {
		q, err := f.resolver.ResolvePrice(ctx, t)
		switch {
		case err == nil:
			data.Spot = q.Price
		case needsSynthetic:
			return nil, err
		default:
			log.WithError(err).Warn("Chain has no current price and price lookup failed")
		}
	}

	if needsSynthetic {
		if data.Put == nil {
			p, err := f.synthesize(t, models.OptionTypePut, strike, used, data.Spot)
			if err != nil {
				return nil, err
			}
			data.Put, data.PutSynthetic = p, true
		}
		if data.Call == nil {
			cl, err := f.synthesize(t, models.OptionTypeCall, strike, used, data.Spot)
			if err != nil {
				return nil, err
			}
			data.Call, data.CallSynthetic = cl, true
		}
		log.WithFields(logrus.Fields{
			"strike":         strike,
			"expiration":     used,
			"put_synthetic":  data.PutSynthetic,
			"call_synthetic": data.CallSynthetic,
		}).Info("No listed contract, priced synthetically")
	}

	data.ImpliedVolatility = pickIV(data.Put, data.Call, f.cfg.FallbackVolatility)
	return data, nil
}

// pickIV prefers the put's implied volatility, then the call's.
func pickIV(put, call *models.OptionContract, fallback float64) float64 {
	if put != nil && put.ImpliedVolatility > 0 {
		return put.ImpliedVolatility
	}
	if call != nil && call.ImpliedVolatility > 0 {
		return call.ImpliedVolatility
	}
	return fallback
}

func (f *Facade) synthesize(ticker string, optType models.OptionType, strike float64, expiration string, spot float64) (*models.OptionContract, error) {
	days, err := matcher.DaysUntil(expiration, f.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidInput, err)
	}
	in := pricing.Input{
		Spot:         spot,
		Strike:       strike,
		DaysToExpiry: float64(days),
		RiskFreeRate: f.rate,
		Volatility:   f.cfg.FallbackVolatility,
		IsPut:        optType == models.OptionTypePut,
	}
	price, err := pricing.TheoreticalPrice(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidInput, err)
	}
	g, err := pricing.ComputeGreeks(in)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", provider.ErrInvalidInput, err)
	}

	// Strikes beyond the OCC field width leave the symbol empty.
	symbol, _ := occ.Encode(ticker, expiration, optType, strike, false)
	price = util.RoundToPenny(price)
	return &models.OptionContract{
		Symbol:            symbol,
		Underlying:        ticker,
		Expiration:        expiration,
		Type:              optType,
		Strike:            strike,
		LastPrice:         price,
		Mark:              price,
		ImpliedVolatility: f.cfg.FallbackVolatility,
		Delta:             g.Delta,
		Gamma:             g.Gamma,
		Theta:             g.Theta,
		Vega:              g.Vega,
		InTheMoney:        (optType == models.OptionTypeCall && spot > strike) || (optType == models.OptionTypePut && spot < strike),
	}, nil
}
