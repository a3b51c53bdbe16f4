package chain

import (
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/occ"
)

const schwabFixture = `{
  "symbol": "KO",
  "status": "SUCCESS",
  "underlyingPrice": 47.25,
  "callExpDateMap": {
    "2026-03-20:58": {
      "50.0": [{"putCall":"CALL","symbol":"KO    260320C00050000","bid":0.80,"ask":0.90,"last":0.85,"mark":0.85,"totalVolume":40,"openInterest":1200,"volatility":24.1,"delta":0.31,"gamma":0.07,"theta":-0.01,"vega":0.06,"inTheMoney":false}],
      "45.0": [{"putCall":"CALL","symbol":"KO    260320C00045000","bid":2.90,"ask":3.10,"volatility":"NaN","delta":-999.0,"inTheMoney":true}]
    }
  },
  "putExpDateMap": {
    "2026-02-20:30": {
      "45": [{"bid":1.20,"ask":1.30,"volatility":28.5,"totalVolume":100}]
    },
    "2026-03-20:58": {
      "45.0": [{"putCall":"PUT","symbol":"KO    260320P00045000","bid":1.50,"ask":1.60,"last":1.55,"volatility":26.0,"totalVolume":12,"openInterest":800}]
    }
  }
}`

const cboeFixture = `{
  "timestamp": "2026-01-09 20:15:03",
  "data": {
    "symbol": "AAPL",
    "current_price": 245.10,
    "options": [
      {"option":"AAPL260117C00250000","bid":3.10,"ask":3.25,"last_trade_price":3.20,"iv":0.312,"volume":5400,"open_interest":22000,"delta":0.41,"gamma":0.03,"theta":-0.22,"vega":0.18},
      {"option":"AAPL260117P00240000","bid":2.05,"ask":2.15,"last_trade_price":2.10,"iv":29.5,"volume":3100,"open_interest":15000,"delta":-0.33},
      {"option":"GARBAGE","bid":1,"ask":2},
      {"option":"AAPL260220P00240000","bid":0,"ask":0,"last_trade_price":5.55,"iv":0.28},
      {"option":"AAPL260117C00900000","bid":0.01,"ask":0.02,"iv":7.5,"volume":null}
    ]
  }
}`

func decodeSchwab(t *testing.T, raw string) *SchwabPayload {
	t.Helper()
	var p SchwabPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func decodeCBOE(t *testing.T, raw string) *CBOEPayload {
	t.Helper()
	var p CBOEPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return &p
}

func findContract(contracts []models.OptionContract, exp string, strike float64) *models.OptionContract {
	for i := range contracts {
		if contracts[i].Expiration == exp && contracts[i].Strike == strike {
			return &contracts[i]
		}
	}
	return nil
}

func assertChainInvariants(t *testing.T, c *models.OptionsChain) {
	t.Helper()
	assert.True(t, sort.StringsAreSorted(c.Expirations), "expirations not sorted: %v", c.Expirations)
	set := make(map[string]bool)
	for _, e := range c.Expirations {
		assert.False(t, set[e], "duplicate expiration %s", e)
		set[e] = true
	}
	for _, contract := range c.Contracts() {
		assert.True(t, set[contract.Expiration], "contract expiration %s missing from set", contract.Expiration)
		assert.GreaterOrEqual(t, contract.ImpliedVolatility, 0.0)
	}
}

func TestNormalize_NestedMapScenario(t *testing.T) {
	raw := `{"putExpDateMap": {"2026-02-20:30": {"45": [{"bid":1.20,"ask":1.30,"volatility":28.5,"totalVolume":100}]}}}`
	res, err := Normalize("XYZ", decodeSchwab(t, raw))
	require.NoError(t, err)

	c := res.Chain
	require.Len(t, c.Puts, 1)
	assert.Empty(t, c.Calls)
	put := c.Puts[0]
	assert.Equal(t, 45.0, put.Strike)
	assert.Equal(t, "2026-02-20", put.Expiration)
	assert.InDelta(t, 0.285, put.ImpliedVolatility, 1e-12)
	assert.Equal(t, models.OptionTypePut, put.Type)
	assert.Equal(t, int64(100), put.Volume)
	assert.InDelta(t, 1.25, put.Mark, 1e-12)
	assert.Equal(t, "XYZ", put.Underlying)
	assert.Equal(t, "XYZ260220P00045000", put.Symbol)
	assert.Equal(t, []string{"2026-02-20"}, c.Expirations)
}

func TestNormalize_NestedMap(t *testing.T) {
	res, err := Normalize("ignored", decodeSchwab(t, schwabFixture))
	require.NoError(t, err)
	c := res.Chain

	assert.Equal(t, "KO", c.Ticker)
	assert.Equal(t, models.SourceSchwab, c.Source)
	assert.Equal(t, 47.25, c.CurrentPrice)
	assert.Equal(t, []string{"2026-02-20", "2026-03-20"}, c.Expirations)
	assert.Len(t, c.Calls, 2)
	assert.Len(t, c.Puts, 2)
	assertChainInvariants(t, c)

	// Sorted by expiration then strike.
	assert.Equal(t, 45.0, c.Calls[0].Strike)
	assert.Equal(t, 50.0, c.Calls[1].Strike)
	assert.Equal(t, "2026-02-20", c.Puts[0].Expiration)

	call50 := findContract(c.Calls, "2026-03-20", 50)
	require.NotNil(t, call50)
	assert.InDelta(t, 0.241, call50.ImpliedVolatility, 1e-12)
	assert.Equal(t, int64(1200), call50.OpenInterest)
	assert.Equal(t, "KO    260320C00050000", call50.Symbol)

	call45 := findContract(c.Calls, "2026-03-20", 45)
	require.NotNil(t, call45)
	assert.Equal(t, 0.0, call45.ImpliedVolatility, "NaN volatility defaults to zero")
	assert.True(t, call45.InTheMoney)
	assert.InDelta(t, 3.0, call45.Mark, 1e-12)
	assert.Empty(t, res.Skipped)
}

func TestNormalize_NestedMapUnderlyingFallbackAndBadKeys(t *testing.T) {
	raw := `{
	  "symbol": "ko",
	  "underlying": {"last": 0, "mark": 47.1},
	  "putExpDateMap": {
	    "not-a-date:3": {"45": [{"bid":1}]},
	    "2026-02-20:30": {"abc": [{"bid":1}], "46": [], "47": [{"bid":1,"ask":1.2,"strikePrice":47}]}
	  }
	}`
	res, err := Normalize("", decodeSchwab(t, raw))
	require.NoError(t, err)
	assert.Equal(t, "KO", res.Chain.Ticker)
	assert.Equal(t, 47.1, res.Chain.CurrentPrice)
	require.Len(t, res.Chain.Puts, 1)
	assert.Equal(t, 47.0, res.Chain.Puts[0].Strike)
	assert.Len(t, res.Skipped, 2)
}

func TestNormalize_FlatList(t *testing.T) {
	res, err := Normalize("aapl", decodeCBOE(t, cboeFixture))
	require.NoError(t, err)
	c := res.Chain

	assert.Equal(t, "AAPL", c.Ticker)
	assert.Equal(t, models.SourceCBOE, c.Source)
	assert.Equal(t, 245.10, c.CurrentPrice)
	assert.True(t, time.Date(2026, 1, 9, 20, 15, 3, 0, time.UTC).Equal(c.Timestamp))
	assert.Equal(t, []string{"2026-01-17", "2026-02-20"}, c.Expirations)
	assertChainInvariants(t, c)

	require.Len(t, res.Skipped, 1)
	var decErr *occ.DecodeError
	assert.True(t, errors.As(res.Skipped[0], &decErr))

	call := findContract(c.Calls, "2026-01-17", 250)
	require.NotNil(t, call)
	assert.InDelta(t, 0.312, call.ImpliedVolatility, 1e-12)
	assert.False(t, call.InTheMoney)
	assert.Equal(t, int64(22000), call.OpenInterest)
	assert.InDelta(t, 3.175, call.Mark, 1e-12)

	put := findContract(c.Puts, "2026-01-17", 240)
	require.NotNil(t, put)
	assert.InDelta(t, 0.295, put.ImpliedVolatility, 1e-12, "percentage IV is reconciled")
	assert.False(t, put.InTheMoney)

	later := findContract(c.Puts, "2026-02-20", 240)
	require.NotNil(t, later)
	assert.InDelta(t, 5.55, later.Mark, 1e-12, "mark falls back to last when no bid/ask")

	far := findContract(c.Calls, "2026-01-17", 900)
	require.NotNil(t, far)
	assert.InDelta(t, 0.075, far.ImpliedVolatility, 1e-12)
	assert.Equal(t, int64(0), far.Volume)
	assert.Empty(t, res.Flagged)
}

func TestNormalize_IVBounds(t *testing.T) {
	for _, p := range []Payload{decodeSchwab(t, schwabFixture), decodeCBOE(t, cboeFixture)} {
		res, err := Normalize("T", p)
		require.NoError(t, err)
		for _, contract := range res.Chain.Contracts() {
			assert.GreaterOrEqual(t, contract.ImpliedVolatility, 0.0)
			assert.LessOrEqual(t, contract.ImpliedVolatility, PercentIVThreshold, contract.Symbol)
		}
	}
}

func TestNormalize_FlagsPathologicalIV(t *testing.T) {
	raw := `{"putExpDateMap": {"2026-02-20:30": {"5": [{"symbol":"MEME260220P00005000","bid":1,"ask":2,"volatility":750}]}}}`
	res, err := Normalize("MEME", decodeSchwab(t, raw))
	require.NoError(t, err)
	assert.Equal(t, []string{"MEME260220P00005000"}, res.Flagged)
	assert.InDelta(t, 7.5, res.Chain.Puts[0].ImpliedVolatility, 1e-12)
}

func TestNormalize_Unsupported(t *testing.T) {
	_, err := Normalize("X", nil)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)

	var nilSchwab *SchwabPayload
	_, err = Normalize("X", nilSchwab)
	assert.ErrorIs(t, err, ErrUnsupportedPayload)
}

func TestNormalize_EmptyPayloadHasEmptySides(t *testing.T) {
	res, err := Normalize("X", &CBOEPayload{})
	require.NoError(t, err)
	assert.NotNil(t, res.Chain.Calls)
	assert.NotNil(t, res.Chain.Puts)
	assert.Empty(t, res.Chain.Expirations)
}

func TestNormalizeIV(t *testing.T) {
	tests := []struct {
		raw, want float64
	}{
		{0.32, 0.32},
		{32, 0.32},
		{5, 5},
		{5.01, 0.0501},
		{0, 0},
		{-999, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NormalizeIV(tt.raw), 1e-12, "raw=%v", tt.raw)
	}
}

func TestFloat_UnmarshalJSON(t *testing.T) {
	var v struct {
		A Float `json:"a"`
		B Float `json:"b"`
		C Float `json:"c"`
		D Float `json:"d"`
		E Int   `json:"e"`
		F Int   `json:"f"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":1.5,"b":"2.25","c":"NaN","d":null,"e":"12","f":3.0}`), &v))
	assert.Equal(t, Float(1.5), v.A)
	assert.Equal(t, Float(2.25), v.B)
	assert.Equal(t, Float(0), v.C)
	assert.Equal(t, Float(0), v.D)
	assert.Equal(t, Int(12), v.E)
	assert.Equal(t, Int(3), v.F)
}
