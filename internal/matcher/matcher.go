// Package matcher locates a contract inside a normalized chain when the
// requested strike or expiration may not be listed verbatim.
package matcher

import (
	"math"
	"time"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// StrikeTolerance is the maximum strike difference treated as equal.
const StrikeTolerance = 0.01

// MatchKind describes which fallback rule produced a match.
type MatchKind string

// Match kinds, from most to least preferred.
const (
	MatchExact             MatchKind = "exact"
	MatchNearestExpiration MatchKind = "nearest-expiration"
	MatchNearestStrike     MatchKind = "nearest-strike"
	MatchNone              MatchKind = "none"
)

// MatchResult is the outcome of a contract lookup. Contract is nil only when
// Kind is MatchNone.
type MatchResult struct {
	Contract          *models.OptionContract `json:"contract"`
	MatchedExpiration string                 `json:"matchedExpiration"`
	MatchedStrike     float64                `json:"matchedStrike"`
	Kind              MatchKind              `json:"matchKind"`
}

// Found reports whether a contract was located.
func (r MatchResult) Found() bool {
	return r.Contract != nil
}

// FindContract searches calls then puts. expiration must already be in
// YYYY-MM-DD form (see NormalizeExpiration).
//
// Policy: exact (strike within StrikeTolerance, same expiration); else, when
// the expiration is not listed, the closest listed expiration with an exact
// strike; else the closest strike at that expiration. Equidistant candidates
// resolve to the first one scanned: the earlier expiration, and the strike
// that appears first in chain order.
func FindContract(chain *models.OptionsChain, strike float64, expiration string) MatchResult {
	if chain == nil {
		return none()
	}
	return match(chain.Contracts(), chain.Expirations, strike, expiration)
}

// FindContractOfType applies the FindContract policy to one side of the
// chain. The target expiration is resolved against the whole chain, so calls
// and puts looked up with the same request always land on the same date; a
// side with nothing listed at that date yields MatchNone.
func FindContractOfType(chain *models.OptionsChain, optType models.OptionType, strike float64, expiration string) MatchResult {
	if chain == nil {
		return none()
	}
	return match(chain.Side(optType), chainExpirations(chain), strike, expiration)
}

// ResolveExpiration returns the expiration a lookup for requested targets:
// requested itself when the chain lists it, else the nearest listed one.
// It reports false for a chain with no expirations.
func ResolveExpiration(chain *models.OptionsChain, requested string) (string, bool) {
	if chain == nil {
		return "", false
	}
	exps := chainExpirations(chain)
	if contains(exps, requested) {
		return requested, true
	}
	return nearestExpiration(exps, requested)
}

func chainExpirations(chain *models.OptionsChain) []string {
	if len(chain.Expirations) > 0 {
		return chain.Expirations
	}
	return models.SortedExpirations(chain.Contracts())
}

// FindOption applies the FindContract policy to a flat contract list and
// returns the contract, or nil when nothing matches.
func FindOption(options []models.OptionContract, strike float64, expiration string) *models.OptionContract {
	return match(options, models.SortedExpirations(options), strike, expiration).Contract
}

func match(contracts []models.OptionContract, expirations []string, strike float64, expiration string) MatchResult {
	if len(contracts) == 0 {
		return none()
	}

	if c := exactAt(contracts, strike, expiration); c != nil {
		return found(c, MatchExact)
	}

	target := expiration
	if !contains(expirations, expiration) {
		nearest, ok := nearestExpiration(expirations, expiration)
		if !ok {
			return none()
		}
		target = nearest
		if c := exactAt(contracts, strike, target); c != nil {
			return found(c, MatchNearestExpiration)
		}
	}

	if c := nearestStrikeAt(contracts, strike, target); c != nil {
		return found(c, MatchNearestStrike)
	}
	return none()
}

func exactAt(contracts []models.OptionContract, strike float64, expiration string) *models.OptionContract {
	for i := range contracts {
		if contracts[i].Expiration == expiration && math.Abs(contracts[i].Strike-strike) < StrikeTolerance {
			return &contracts[i]
		}
	}
	return nil
}

func nearestStrikeAt(contracts []models.OptionContract, strike float64, expiration string) *models.OptionContract {
	var best *models.OptionContract
	bestDiff := math.Inf(1)
	for i := range contracts {
		if contracts[i].Expiration != expiration {
			continue
		}
		if diff := math.Abs(contracts[i].Strike - strike); diff < bestDiff {
			bestDiff = diff
			best = &contracts[i]
		}
	}
	return best
}

// nearestExpiration scans expirations in ascending order, so a tie keeps the
// earlier date.
func nearestExpiration(expirations []string, requested string) (string, bool) {
	want, err := time.Parse(models.ExpirationLayout, requested)
	if err != nil {
		return "", false
	}
	best := ""
	bestDiff := math.MaxInt
	for _, exp := range expirations {
		t, err := time.Parse(models.ExpirationLayout, exp)
		if err != nil {
			continue
		}
		if diff := dayDistance(t, want); diff < bestDiff {
			bestDiff = diff
			best = exp
		}
	}
	return best, best != ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func found(c *models.OptionContract, kind MatchKind) MatchResult {
	return MatchResult{
		Contract:          c,
		MatchedExpiration: c.Expiration,
		MatchedStrike:     c.Strike,
		Kind:              kind,
	}
}

func none() MatchResult {
	return MatchResult{Kind: MatchNone}
}
