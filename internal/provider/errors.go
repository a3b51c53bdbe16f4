package provider

import (
	"errors"
	"fmt"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

var (
	// ErrProviderUnavailable means a provider is not configured or not
	// authenticated. It is expected and never logged as an error.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoDataAvailable is returned once every provider in the fallback
	// chain has failed.
	ErrNoDataAvailable = errors.New("no data available from any provider")

	// ErrInvalidInput is returned for malformed tickers, strikes or
	// expirations before any network call is made.
	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformedPayload is wrapped by failures whose response decoded but
	// did not have the expected structure.
	ErrMalformedPayload = errors.New("malformed payload")
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Failure is a configured provider that returned an error status, a
// malformed payload, or timed out. The fallback orchestrator always recovers
// from it by moving to the next provider.
type Failure struct {
	Provider models.Source
	Err      error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provider %s failed: %v", f.Provider, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(p models.Source, err error) error {
	var existing *Failure
	if errors.As(err, &existing) {
		return err
	}
	return &Failure{Provider: p, Err: err}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedPayload, fmt.Sprintf(format, args...))
}
