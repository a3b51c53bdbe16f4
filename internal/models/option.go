// Package models defines the canonical market data types shared by every
// provider, the chain normalizer and the contract matcher.
package models

import (
	"sort"
	"time"
)

// ExpirationLayout is the canonical expiration date format.
const ExpirationLayout = "2006-01-02"

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// Source identifies the upstream provider a quote or chain came from.
type Source string

// Provider identifiers, in fallback priority order.
const (
	SourceSchwab    Source = "schwab"
	SourceCBOE      Source = "cboe"
	SourceYahoo     Source = "yahoo"
	SourceMock      Source = "mock"
	SourceSynthetic Source = "synthetic"
)

// Quote is a single spot price observation for an underlying.
type Quote struct {
	Timestamp time.Time `json:"timestamp"`
	Ticker    string    `json:"ticker"`
	Source    Source    `json:"source"`
	Price     float64   `json:"price"`
}

// OptionContract is the canonical unit of an options chain. Numeric fields a
// vendor does not supply are left at zero, never omitted.
type OptionContract struct {
	Symbol     string     `json:"symbol"`
	Underlying string     `json:"underlying"`
	Expiration string     `json:"expiration"`
	Type       OptionType `json:"type"`
	Strike     float64    `json:"strike"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	LastPrice  float64    `json:"lastPrice"`
	Mark       float64    `json:"mark"`
	// ImpliedVolatility is a decimal fraction (0.32), never a percentage.
	ImpliedVolatility float64 `json:"impliedVolatility"`
	Volume            int64   `json:"volume"`
	OpenInterest      int64   `json:"openInterest"`
	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Theta             float64 `json:"theta"`
	Vega              float64 `json:"vega"`
	InTheMoney        bool    `json:"inTheMoney"`
}

// MidOrLast returns the bid/ask midpoint when both sides are quoted, and the
// last trade price otherwise.
func (c *OptionContract) MidOrLast() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.LastPrice
}

// OptionsChain is a normalized snapshot of every listed contract for one
// underlying. Expirations is sorted ascending with no duplicates and contains
// the expiration of every contract in Calls and Puts.
type OptionsChain struct {
	Timestamp    time.Time        `json:"timestamp"`
	Ticker       string           `json:"ticker"`
	Source       Source           `json:"source"`
	Calls        []OptionContract `json:"calls"`
	Puts         []OptionContract `json:"puts"`
	Expirations  []string         `json:"expirations"`
	CurrentPrice float64          `json:"currentPrice"`
}

// Add appends a contract to the side matching its type. Contracts without a
// recognised type are dropped and reported as false.
func (c *OptionsChain) Add(contract OptionContract) bool {
	switch contract.Type {
	case OptionTypeCall:
		c.Calls = append(c.Calls, contract)
	case OptionTypePut:
		c.Puts = append(c.Puts, contract)
	default:
		return false
	}
	return true
}

// Contracts returns calls followed by puts, which is the chain order used for
// tie-breaking.
func (c *OptionsChain) Contracts() []OptionContract {
	out := make([]OptionContract, 0, len(c.Calls)+len(c.Puts))
	out = append(out, c.Calls...)
	return append(out, c.Puts...)
}

// Side returns the contracts of the requested type.
func (c *OptionsChain) Side(t OptionType) []OptionContract {
	if t == OptionTypePut {
		return c.Puts
	}
	return c.Calls
}

// RebuildExpirations recomputes Expirations as the sorted, de-duplicated union
// of every contract expiration.
func (c *OptionsChain) RebuildExpirations() {
	c.Expirations = SortedExpirations(c.Contracts())
}

// SortedExpirations returns the distinct expirations of contracts in ascending
// order. Canonical YYYY-MM-DD strings sort chronologically.
func SortedExpirations(contracts []OptionContract) []string {
	seen := make(map[string]struct{}, len(contracts))
	out := make([]string, 0)
	for i := range contracts {
		exp := contracts[i].Expiration
		if exp == "" {
			continue
		}
		if _, ok := seen[exp]; ok {
			continue
		}
		seen[exp] = struct{}{}
		out = append(out, exp)
	}
	sort.Strings(out)
	return out
}
