// Package chain converts vendor option chain payloads into the canonical
// models.OptionsChain. Vendor shapes stop at this package: nothing downstream
// branches on where a chain came from.
package chain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Vendor identifies a payload shape.
type Vendor string

// Supported payload shapes.
const (
	// VendorNestedMap is the per-expiration/per-strike map layout (Schwab).
	VendorNestedMap Vendor = "nested-map"
	// VendorFlatList is the flat list of symbol-encoded contracts (CBOE).
	VendorFlatList Vendor = "flat-list"
)

// Payload is a decoded vendor response. The concrete types are the only
// implementations.
type Payload interface {
	Vendor() Vendor
}

// Float decodes a JSON number that vendors sometimes send as a string, as
// "NaN", or as null. Anything unparseable decodes to zero.
type Float float64

func (f *Float) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			*f = 0
			return nil
		}
		b = []byte(s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*f = 0
		return nil
	}
	*f = Float(v)
	return nil
}

// Int decodes an integer count that may arrive as a float, string, or null.
type Int int64

func (n *Int) UnmarshalJSON(b []byte) error {
	var f Float
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*n = Int(math.Round(float64(f)))
	return nil
}

// SchwabPayload is the nested-map chain layout. Each map key is
// "EXPIRATION:DTE", each inner key a strike string.
type SchwabPayload struct {
	Symbol          string `json:"symbol"`
	Status          string `json:"status"`
	UnderlyingPrice Float  `json:"underlyingPrice"`
	Underlying      *struct {
		Last Float `json:"last"`
		Mark Float `json:"mark"`
	} `json:"underlying"`
	CallExpDateMap map[string]map[string][]SchwabContract `json:"callExpDateMap"`
	PutExpDateMap  map[string]map[string][]SchwabContract `json:"putExpDateMap"`
}

// Vendor implements Payload.
func (*SchwabPayload) Vendor() Vendor { return VendorNestedMap }

// SchwabContract is a single contract record inside the nested map.
type SchwabContract struct {
	PutCall      string `json:"putCall"`
	Symbol       string `json:"symbol"`
	Description  string `json:"description"`
	Bid          Float  `json:"bid"`
	Ask          Float  `json:"ask"`
	Last         Float  `json:"last"`
	Mark         Float  `json:"mark"`
	TotalVolume  Int    `json:"totalVolume"`
	OpenInterest Int    `json:"openInterest"`
	// Volatility is a percentage (28.5 means 28.5%).
	Volatility       Float `json:"volatility"`
	Delta            Float `json:"delta"`
	Gamma            Float `json:"gamma"`
	Theta            Float `json:"theta"`
	Vega             Float `json:"vega"`
	StrikePrice      Float `json:"strikePrice"`
	DaysToExpiration Int   `json:"daysToExpiration"`
	InTheMoney       bool  `json:"inTheMoney"`
}

// CBOEPayload is the flat-list delayed quote layout.
type CBOEPayload struct {
	Timestamp string `json:"timestamp"`
	Data      struct {
		Symbol       string       `json:"symbol"`
		CurrentPrice Float        `json:"current_price"`
		Close        Float        `json:"close"`
		Options      []CBOEOption `json:"options"`
	} `json:"data"`
}

// Vendor implements Payload.
func (*CBOEPayload) Vendor() Vendor { return VendorFlatList }

// SpotPrice returns current_price, falling back to the prior close.
func (p *CBOEPayload) SpotPrice() float64 {
	if p.Data.CurrentPrice > 0 {
		return float64(p.Data.CurrentPrice)
	}
	return float64(p.Data.Close)
}

// CBOEOption is a flat-list contract identified only by its encoded symbol.
type CBOEOption struct {
	Option         string `json:"option"`
	Bid            Float  `json:"bid"`
	Ask            Float  `json:"ask"`
	LastTradePrice Float  `json:"last_trade_price"`
	// IV normally arrives as a decimal fraction.
	IV           Float `json:"iv"`
	Volume       Int   `json:"volume"`
	OpenInterest Int   `json:"open_interest"`
	Delta        Float `json:"delta"`
	Gamma        Float `json:"gamma"`
	Theta        Float `json:"theta"`
	Vega         Float `json:"vega"`
}
