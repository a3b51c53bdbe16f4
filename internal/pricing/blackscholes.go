// Package pricing provides the closed-form Black-Scholes model used to
// synthesize a theoretical option price when no live quote exists.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/util"
)

// MinPrice is the lowest theoretical price the model will return.
const MinPrice = 0.01

// DaysPerYear converts calendar days to years for T.
const DaysPerYear = 365.0

// ErrInvalidInput is returned when inputs would make the model divide by zero
// or take the log of a non-positive number.
var ErrInvalidInput = errors.New("invalid pricing input")

// Abramowitz-Stegun 7.1.26 coefficients.
const (
	asA1 = 0.254829592
	asA2 = -0.284496736
	asA3 = 1.421413741
	asA4 = -1.453152027
	asA5 = 1.061405429
	asP  = 0.3275911
)

// Input holds the Black-Scholes parameters for a single contract.
type Input struct {
	Spot         float64
	Strike       float64
	DaysToExpiry float64
	RiskFreeRate float64
	Volatility   float64 // decimal fraction
	IsPut        bool
}

// Greeks are the model sensitivities of a synthetic contract. Theta is per
// calendar day and Vega per one volatility point.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
}

// NormCDF approximates the standard normal cumulative distribution with the
// Abramowitz-Stegun rational polynomial (absolute error below 1.5e-7).
func NormCDF(x float64) float64 {
	sign := 1.0
	if x < 0 {
		sign = -1.0
	}
	z := math.Abs(x) / math.Sqrt2
	t := 1.0 / (1.0 + asP*z)
	y := 1.0 - (((((asA5*t+asA4)*t)+asA3)*t+asA2)*t+asA1)*t*math.Exp(-z*z)
	return 0.5 * (1.0 + sign*y)
}

func (in Input) validate() error {
	if !util.Finite(in.Spot) || in.Spot <= 0 {
		return fmt.Errorf("%w: spot %v", ErrInvalidInput, in.Spot)
	}
	if !util.Finite(in.Strike) || in.Strike <= 0 {
		return fmt.Errorf("%w: strike %v", ErrInvalidInput, in.Strike)
	}
	if !util.Finite(in.Volatility) || !util.Finite(in.DaysToExpiry) || !util.Finite(in.RiskFreeRate) {
		return fmt.Errorf("%w: non-finite parameter", ErrInvalidInput)
	}
	if in.Volatility*math.Sqrt(in.years()) <= 0 {
		return fmt.Errorf("%w: volatility %v over %v days", ErrInvalidInput, in.Volatility, in.DaysToExpiry)
	}
	return nil
}

func (in Input) years() float64 {
	if in.DaysToExpiry <= 0 {
		return 0
	}
	return in.DaysToExpiry / DaysPerYear
}

func (in Input) d1d2() (d1, d2 float64) {
	t := in.years()
	volT := in.Volatility * math.Sqrt(t)
	d1 = (math.Log(in.Spot/in.Strike) + (in.RiskFreeRate+0.5*in.Volatility*in.Volatility)*t) / volT
	return d1, d1 - volT
}

// TheoreticalPrice returns the Black-Scholes value of the option, floored at
// MinPrice.
func TheoreticalPrice(in Input) (float64, error) {
	if err := in.validate(); err != nil {
		return 0, err
	}
	t := in.years()
	d1, d2 := in.d1d2()
	discount := in.Strike * math.Exp(-in.RiskFreeRate*t)

	var price float64
	if in.IsPut {
		price = discount*NormCDF(-d2) - in.Spot*NormCDF(-d1)
	} else {
		price = in.Spot*NormCDF(d1) - discount*NormCDF(d2)
	}
	return util.FloorAt(price, MinPrice), nil
}

// Price is the positional form of TheoreticalPrice.
func Price(spot, strike, daysToExpiry, riskFreeRate, volatility float64, isPut bool) (float64, error) {
	return TheoreticalPrice(Input{
		Spot:         spot,
		Strike:       strike,
		DaysToExpiry: daysToExpiry,
		RiskFreeRate: riskFreeRate,
		Volatility:   volatility,
		IsPut:        isPut,
	})
}

// ComputeGreeks returns the model sensitivities for in.
func ComputeGreeks(in Input) (Greeks, error) {
	if err := in.validate(); err != nil {
		return Greeks{}, err
	}
	t := in.years()
	sqrtT := math.Sqrt(t)
	d1, d2 := in.d1d2()
	pdf := distuv.UnitNormal.Prob(d1)
	discount := in.Strike * math.Exp(-in.RiskFreeRate*t)

	g := Greeks{
		Gamma: pdf / (in.Spot * in.Volatility * sqrtT),
		Vega:  in.Spot * pdf * sqrtT / 100,
	}
	decay := -(in.Spot * pdf * in.Volatility) / (2 * sqrtT)
	if in.IsPut {
		g.Delta = NormCDF(d1) - 1
		g.Theta = (decay + in.RiskFreeRate*discount*NormCDF(-d2)) / DaysPerYear
	} else {
		g.Delta = NormCDF(d1)
		g.Theta = (decay - in.RiskFreeRate*discount*NormCDF(d2)) / DaysPerYear
	}
	return g, nil
}
