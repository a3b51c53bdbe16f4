package matcher

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

func contract(t models.OptionType, exp string, strike float64) models.OptionContract {
	return models.OptionContract{Type: t, Expiration: exp, Strike: strike, Underlying: "XYZ"}
}

func testChain(contracts ...models.OptionContract) *models.OptionsChain {
	c := &models.OptionsChain{Ticker: "XYZ"}
	for _, k := range contracts {
		c.Add(k)
	}
	c.RebuildExpirations()
	return c
}

func TestFindContract_Exact(t *testing.T) {
	c := testChain(
		contract(models.OptionTypePut, "2026-02-20", 40),
		contract(models.OptionTypePut, "2026-02-20", 45),
		contract(models.OptionTypePut, "2026-03-20", 45),
	)
	res := FindContract(c, 45.004, "2026-03-20")
	require.True(t, res.Found())
	assert.Equal(t, MatchExact, res.Kind)
	assert.Equal(t, "2026-03-20", res.MatchedExpiration)
	assert.Equal(t, 45.0, res.MatchedStrike)
}

func TestFindContract_NearestExpirationScenario(t *testing.T) {
	c := testChain(contract(models.OptionTypePut, "2026-02-20", 45))
	res := FindContract(c, 45, "2026-02-25")
	require.True(t, res.Found())
	assert.Equal(t, MatchNearestExpiration, res.Kind)
	assert.Equal(t, "2026-02-20", res.MatchedExpiration)
	assert.Equal(t, 45.0, res.MatchedStrike)
}

func TestFindContract_NearestStrikeAtRequestedExpiration(t *testing.T) {
	c := testChain(
		contract(models.OptionTypePut, "2026-02-20", 40),
		contract(models.OptionTypePut, "2026-02-20", 45),
		contract(models.OptionTypePut, "2026-03-20", 43),
	)
	res := FindContract(c, 43, "2026-02-20")
	require.True(t, res.Found())
	assert.Equal(t, MatchNearestStrike, res.Kind)
	assert.Equal(t, "2026-02-20", res.MatchedExpiration, "expiration is listed so it is never swapped")
	assert.Equal(t, 45.0, res.MatchedStrike)
}

func TestFindContract_NearestStrikeAtNearestExpiration(t *testing.T) {
	c := testChain(
		contract(models.OptionTypeCall, "2026-02-20", 50),
		contract(models.OptionTypeCall, "2026-02-20", 55),
		contract(models.OptionTypeCall, "2026-06-18", 52),
	)
	res := FindContract(c, 52, "2026-02-27")
	require.True(t, res.Found())
	assert.Equal(t, MatchNearestStrike, res.Kind)
	assert.Equal(t, "2026-02-20", res.MatchedExpiration)
	assert.Equal(t, 50.0, res.MatchedStrike)
}

func TestFindContract_Ties(t *testing.T) {
	t.Run("equidistant expirations keep the earlier date", func(t *testing.T) {
		c := testChain(
			contract(models.OptionTypePut, "2026-02-20", 45),
			contract(models.OptionTypePut, "2026-03-06", 45),
		)
		res := FindContract(c, 45, "2026-02-27")
		assert.Equal(t, MatchNearestExpiration, res.Kind)
		assert.Equal(t, "2026-02-20", res.MatchedExpiration)
	})
	t.Run("equidistant strikes keep chain order", func(t *testing.T) {
		c := testChain(
			contract(models.OptionTypePut, "2026-02-20", 40),
			contract(models.OptionTypePut, "2026-02-20", 50),
		)
		res := FindContract(c, 45, "2026-02-20")
		assert.Equal(t, MatchNearestStrike, res.Kind)
		assert.Equal(t, 40.0, res.MatchedStrike)
	})
}

func TestFindContract_None(t *testing.T) {
	assert.Equal(t, MatchNone, FindContract(nil, 45, "2026-02-20").Kind)

	empty := testChain()
	res := FindContract(empty, 45, "2026-02-20")
	assert.Equal(t, MatchNone, res.Kind)
	assert.Nil(t, res.Contract)

	c := testChain(contract(models.OptionTypePut, "2026-02-20", 45))
	assert.Equal(t, MatchNone, FindContract(c, 45, "garbage").Kind)
}

func TestFindContract_NeverFallsBackWhenExactExists(t *testing.T) {
	strikes := []float64{30, 35, 40, 45, 50}
	exps := []string{"2026-01-16", "2026-02-20", "2026-03-20"}
	var all []models.OptionContract
	for _, e := range exps {
		for _, s := range strikes {
			all = append(all, contract(models.OptionTypeCall, e, s), contract(models.OptionTypePut, e, s))
		}
	}
	c := testChain(all...)
	for _, e := range exps {
		for _, s := range strikes {
			res := FindContract(c, s, e)
			require.Equal(t, MatchExact, res.Kind, "strike %v exp %s", s, e)
			assert.Equal(t, e, res.MatchedExpiration)
			assert.Equal(t, s, res.MatchedStrike)
		}
	}
}

func TestFindContractOfType(t *testing.T) {
	c := testChain(
		contract(models.OptionTypeCall, "2026-02-20", 45),
		contract(models.OptionTypePut, "2026-03-20", 45),
	)
	// 2026-02-20 is listed by the chain, so the put side does not wander
	// off to its own nearest date.
	put := FindContractOfType(c, models.OptionTypePut, 45, "2026-02-20")
	assert.False(t, put.Found())
	assert.Equal(t, MatchNone, put.Kind)

	call := FindContractOfType(c, models.OptionTypeCall, 45, "2026-02-20")
	assert.Equal(t, MatchExact, call.Kind)
	assert.Equal(t, models.OptionTypeCall, call.Contract.Type)

	put = FindContractOfType(c, models.OptionTypePut, 45, "2026-03-20")
	require.True(t, put.Found())
	assert.Equal(t, MatchExact, put.Kind)
}

func TestFindContractOfType_SidesShareTargetExpiration(t *testing.T) {
	c := testChain(
		contract(models.OptionTypeCall, "2026-03-20", 45),
		contract(models.OptionTypePut, "2026-02-20", 45),
	)
	target, ok := ResolveExpiration(c, "2026-03-01")
	require.True(t, ok)
	assert.Equal(t, "2026-02-20", target)

	put := FindContractOfType(c, models.OptionTypePut, 45, "2026-03-01")
	require.True(t, put.Found())
	assert.Equal(t, MatchNearestExpiration, put.Kind)
	assert.Equal(t, "2026-02-20", put.MatchedExpiration)

	call := FindContractOfType(c, models.OptionTypeCall, 45, "2026-03-01")
	assert.False(t, call.Found(), "call has nothing at the shared target date")
}

func TestResolveExpiration(t *testing.T) {
	c := testChain(
		contract(models.OptionTypePut, "2026-02-20", 45),
		contract(models.OptionTypePut, "2026-03-20", 45),
	)
	got, ok := ResolveExpiration(c, "2026-03-20")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-20", got)

	got, ok = ResolveExpiration(c, "2026-03-19")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-20", got)

	_, ok = ResolveExpiration(&models.OptionsChain{}, "2026-03-20")
	assert.False(t, ok)
	_, ok = ResolveExpiration(nil, "2026-03-20")
	assert.False(t, ok)
}

func TestFindOption(t *testing.T) {
	options := []models.OptionContract{
		contract(models.OptionTypePut, "2026-02-20", 45),
		contract(models.OptionTypePut, "2026-02-20", 47.5),
	}
	got := FindOption(options, 47.5, "2026-02-20")
	require.NotNil(t, got)
	assert.Equal(t, 47.5, got.Strike)

	got = FindOption(options, 47, "2026-02-21")
	require.NotNil(t, got)
	assert.Equal(t, 47.5, got.Strike)

	assert.Nil(t, FindOption(nil, 45, "2026-02-20"))
}

func TestNormalizeExpiration(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2026-02-20", "2026-02-20"},
		{"02/20/2026", "2026-02-20"},
		{"2/5/2026", "2026-02-05"},
		{"2026/02/20", "2026-02-20"},
		{"20260220", "2026-02-20"},
		{" 2026-02-20T21:00:00.000+00:00 ", "2026-02-20"},
	}
	for _, tt := range tests {
		got, err := NormalizeExpiration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "next friday", "2026-13-01", "13/45/2026"} {
		_, err := NormalizeExpiration(bad)
		assert.True(t, errors.Is(err, ErrInvalidExpiration), bad)
	}
}

func TestDaysUntil(t *testing.T) {
	now := time.Date(2026, 2, 10, 15, 30, 0, 0, time.UTC)
	d, err := DaysUntil("2026-02-20", now)
	require.NoError(t, err)
	assert.Equal(t, 10, d)

	d, err = DaysUntil("2026-02-10", now)
	require.NoError(t, err)
	assert.Equal(t, 1, d, "expiration day counts as one day")

	d, err = DaysUntil("2026-01-01", now)
	require.NoError(t, err)
	assert.Equal(t, 1, d)

	_, err = DaysUntil("02/20/2026", now)
	assert.ErrorIs(t, err, ErrInvalidExpiration)
}
