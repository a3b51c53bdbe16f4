// Package occ encodes and decodes OCC/OSI option symbols such as
// AAPL260117C00250000 or the space-padded AAPL  260117C00250000.
package occ

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// suffixLen is YYMMDD + C/P + 8-digit strike.
const suffixLen = 15

// paddedRootLen is the width of the space-padded underlying in the standard form.
const paddedRootLen = 6

// maxThousandths is the largest strike representable in eight digits.
const maxThousandths = 99999999

var thousand = decimal.NewFromInt(1000)

// DecodeError is returned when a symbol does not follow the fixed-width
// UNDERLYING + YYMMDD + C|P + 8-digit layout.
type DecodeError struct {
	Symbol string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode option symbol %q: %s", e.Symbol, e.Reason)
}

// Symbol is a decoded option identifier.
type Symbol struct {
	Underlying string
	// ExpirationYYMMDD is the raw six-digit date field.
	ExpirationYYMMDD string
	// Expiration is the canonical YYYY-MM-DD date.
	Expiration        string
	Type              models.OptionType
	StrikeThousandths int64
	Strike            float64
}

// Decode parses raw into its components. Leading and trailing whitespace is
// ignored, as is the padding between underlying and date.
func Decode(raw string) (Symbol, error) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) <= suffixLen {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: "too short"}
	}

	split := len(s) - suffixLen
	underlying := strings.TrimSpace(s[:split])
	if underlying == "" || strings.ContainsAny(underlying, " \t") {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: "missing or malformed underlying"}
	}

	datePart := s[split : split+6]
	typeChar := s[split+6]
	strikePart := s[split+7:]

	if !isSixDigits(datePart) {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: "expiration is not six digits"}
	}
	if !isEightDigits(strikePart) {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: "strike is not eight digits"}
	}
	var optType models.OptionType
	switch typeChar {
	case 'C':
		optType = models.OptionTypeCall
	case 'P':
		optType = models.OptionTypePut
	default:
		return Symbol{}, &DecodeError{Symbol: raw, Reason: fmt.Sprintf("unknown option type %q", typeChar)}
	}

	expiration, err := expandDate(datePart)
	if err != nil {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: err.Error()}
	}

	thousandths, err := strconv.ParseInt(strikePart, 10, 64)
	if err != nil {
		return Symbol{}, &DecodeError{Symbol: raw, Reason: "strike is not numeric"}
	}
	strike, _ := decimal.NewFromInt(thousandths).Div(thousand).Float64()

	return Symbol{
		Underlying:        underlying,
		ExpirationYYMMDD:  datePart,
		Expiration:        expiration,
		Type:              optType,
		StrikeThousandths: thousandths,
		Strike:            strike,
	}, nil
}

// expandDate converts YYMMDD to YYYY-MM-DD. The century is always 20.
func expandDate(yymmdd string) (string, error) {
	year, _ := strconv.Atoi(yymmdd[0:2])
	month, _ := strconv.Atoi(yymmdd[2:4])
	day, _ := strconv.Atoi(yymmdd[4:6])
	year += 2000

	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Year() != year || int(t.Month()) != month || t.Day() != day {
		return "", fmt.Errorf("invalid expiration date %s", yymmdd)
	}
	return t.Format(models.ExpirationLayout), nil
}

// Encode builds an option symbol. With padded set the underlying is
// left-justified to six characters as in the streaming OCC form.
func Encode(underlying, expiration string, optType models.OptionType, strike float64, padded bool) (string, error) {
	root := strings.ToUpper(strings.TrimSpace(underlying))
	if root == "" {
		return "", fmt.Errorf("encode option symbol: empty underlying")
	}

	exp, err := time.Parse(models.ExpirationLayout, expiration)
	if err != nil {
		return "", fmt.Errorf("encode option symbol: invalid expiration %q, expected YYYY-MM-DD", expiration)
	}
	if exp.Year() < 2000 || exp.Year() > 2099 {
		return "", fmt.Errorf("encode option symbol: expiration year %d out of range", exp.Year())
	}

	var pc byte
	switch optType {
	case models.OptionTypeCall:
		pc = 'C'
	case models.OptionTypePut:
		pc = 'P'
	default:
		return "", fmt.Errorf("encode option symbol: unknown option type %q", optType)
	}

	thousandths := decimal.NewFromFloat(strike).Mul(thousand).Round(0).IntPart()
	if thousandths <= 0 || thousandths > maxThousandths {
		return "", fmt.Errorf("encode option symbol: strike %v out of range", strike)
	}

	if padded && len(root) < paddedRootLen {
		root += strings.Repeat(" ", paddedRootLen-len(root))
	}
	return fmt.Sprintf("%s%s%c%08d", root, exp.Format("060102"), pc, thousandths), nil
}

// ParseOptionType maps free-form position types such as "short_put" or
// "covered_call" to an option type.
func ParseOptionType(s string) (models.OptionType, error) {
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "put"):
		return models.OptionTypePut, nil
	case strings.Contains(lower, "call"):
		return models.OptionTypeCall, nil
	}
	return "", fmt.Errorf("cannot determine put/call from type %q", s)
}

// isSixDigits checks if a string consists of exactly 6 digits
func isSixDigits(s string) bool {
	return len(s) == 6 && allDigits(s)
}

// isEightDigits checks if a string consists of exactly 8 digits
func isEightDigits(s string) bool {
	return len(s) == 8 && allDigits(s)
}

func allDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
