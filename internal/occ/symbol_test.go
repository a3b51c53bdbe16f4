package occ

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Symbol
	}{
		{
			name: "compact call",
			in:   "AAPL260117C00250000",
			want: Symbol{
				Underlying:        "AAPL",
				ExpirationYYMMDD:  "260117",
				Expiration:        "2026-01-17",
				Type:              models.OptionTypeCall,
				StrikeThousandths: 250000,
				Strike:            250,
			},
		},
		{
			name: "compact put",
			in:   "TSLA260320P00700000",
			want: Symbol{
				Underlying:        "TSLA",
				ExpirationYYMMDD:  "260320",
				Expiration:        "2026-03-20",
				Type:              models.OptionTypePut,
				StrikeThousandths: 700000,
				Strike:            700,
			},
		},
		{
			name: "space padded streaming form",
			in:   "AAPL  260221P00200000",
			want: Symbol{
				Underlying:        "AAPL",
				ExpirationYYMMDD:  "260221",
				Expiration:        "2026-02-21",
				Type:              models.OptionTypePut,
				StrikeThousandths: 200000,
				Strike:            200,
			},
		},
		{
			name: "fractional strike and lowercase",
			in:   " nvda260117c00150500 ",
			want: Symbol{
				Underlying:        "NVDA",
				ExpirationYYMMDD:  "260117",
				Expiration:        "2026-01-17",
				Type:              models.OptionTypeCall,
				StrikeThousandths: 150500,
				Strike:            150.5,
			},
		},
		{
			name: "single letter root",
			in:   "F261218C00012500",
			want: Symbol{
				Underlying:        "F",
				ExpirationYYMMDD:  "261218",
				Expiration:        "2026-12-18",
				Type:              models.OptionTypeCall,
				StrikeThousandths: 12500,
				Strike:            12.5,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"suffix only", "260117C00250000"},
		{"bad type char", "AAPL260117X00250000"},
		{"short strike", "AAPL260117C0025000"},
		{"letters in date", "AAPL26O117C00250000"},
		{"impossible date", "AAPL261332C00250000"},
		{"february 30", "AAPL260230C00250000"},
		{"plain ticker", "AAPL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.in)
			require.Error(t, err)
			var decErr *DecodeError
			assert.True(t, errors.As(err, &decErr), "expected *DecodeError, got %T", err)
		})
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		name       string
		underlying string
		expiration string
		optType    models.OptionType
		strike     float64
		padded     bool
		want       string
	}{
		{"padded put", "AAPL", "2026-02-21", models.OptionTypePut, 200, true, "AAPL  260221P00200000"},
		{"padded call", "PLTR", "2026-03-21", models.OptionTypeCall, 85, true, "PLTR  260321C00085000"},
		{"fractional strike", "NVDA", "2026-01-17", models.OptionTypePut, 150.5, false, "NVDA260117P00150500"},
		{"lowercase ticker", "spy", "2026-06-19", models.OptionTypeCall, 600, false, "SPY260619C00600000"},
		{"long root not padded", "GOOGL1", "2026-06-19", models.OptionTypeCall, 10, true, "GOOGL1260619C00010000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.underlying, tt.expiration, tt.optType, tt.strike, tt.padded)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEncode_Invalid(t *testing.T) {
	_, err := Encode("", "2026-01-17", models.OptionTypeCall, 100, false)
	assert.Error(t, err)
	_, err = Encode("AAPL", "01/17/2026", models.OptionTypeCall, 100, false)
	assert.Error(t, err)
	_, err = Encode("AAPL", "2026-01-17", models.OptionType("straddle"), 100, false)
	assert.Error(t, err)
	_, err = Encode("AAPL", "2026-01-17", models.OptionTypeCall, 0, false)
	assert.Error(t, err)
	_, err = Encode("AAPL", "2026-01-17", models.OptionTypeCall, 100000, false)
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	strikes := []float64{0.5, 1, 2.5, 45, 150.5, 699.99, 1234.125}
	expirations := []string{"2026-01-02", "2030-12-31", "2099-06-30"}
	for _, strike := range strikes {
		for _, exp := range expirations {
			for _, typ := range []models.OptionType{models.OptionTypeCall, models.OptionTypePut} {
				for _, padded := range []bool{true, false} {
					sym, err := Encode("TSLA", exp, typ, strike, padded)
					require.NoError(t, err)
					got, err := Decode(sym)
					require.NoError(t, err, sym)
					assert.Equal(t, "TSLA", got.Underlying)
					assert.Equal(t, exp, got.Expiration)
					assert.Equal(t, typ, got.Type)
					assert.InDelta(t, strike, got.Strike, 1e-9)
				}
			}
		}
	}
}

func TestParseOptionType(t *testing.T) {
	tests := map[string]models.OptionType{
		"put":          models.OptionTypePut,
		"short_put":    models.OptionTypePut,
		"Put_Spread":   models.OptionTypePut,
		"call":         models.OptionTypeCall,
		"covered_call": models.OptionTypeCall,
	}
	for in, want := range tests {
		got, err := ParseOptionType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseOptionType("stock")
	assert.Error(t, err)
}
