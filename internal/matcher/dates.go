package matcher

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// ErrInvalidExpiration is returned when an expiration cannot be read as a date.
var ErrInvalidExpiration = errors.New("invalid expiration date")

// Accepted input layouts, canonical first.
var expirationLayouts = []string{
	models.ExpirationLayout,
	"01/02/2006",
	"1/2/2006",
	"2006/01/02",
	"20060102",
}

// NormalizeExpiration coerces an expiration such as "02/20/2026" or
// "2026-02-20T21:00:00Z" to the canonical YYYY-MM-DD form.
func NormalizeExpiration(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidExpiration)
	}
	if len(s) > len(models.ExpirationLayout) && s[len(models.ExpirationLayout)] == 'T' {
		s = s[:len(models.ExpirationLayout)]
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(models.ExpirationLayout), nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidExpiration, s)
}

// DaysUntil returns the whole calendar days from now until expiration, with
// a minimum of one.
func DaysUntil(expiration string, now time.Time) (int, error) {
	exp, err := time.Parse(models.ExpirationLayout, expiration)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidExpiration, expiration)
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	days := int(exp.Sub(today).Hours() / 24)
	if days < 1 {
		days = 1
	}
	return days, nil
}

func dayDistance(a, b time.Time) int {
	d := int(a.Sub(b).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}
