// Package provider holds the upstream market data clients: the authenticated
// Schwab feed, the CBOE delayed-quote CDN (direct or through the local
// relay), and Yahoo Finance through public CORS relays.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
)

// DefaultAttemptTimeout bounds a single provider or relay call.
const DefaultAttemptTimeout = 8 * time.Second

// maxBodyBytes caps a response body; large index chains run to tens of MB.
const maxBodyBytes = 64 << 20

const userAgent = "wheelhouse-quotes/1.0"

// Source is anything the fallback orchestrator can try.
type Source interface {
	Name() models.Source
}

// PriceSource returns a spot quote for a ticker.
type PriceSource interface {
	Source
	Quote(ctx context.Context, ticker string) (*models.Quote, error)
}

// ChainSource returns a normalized options chain for a ticker.
type ChainSource interface {
	Source
	Chain(ctx context.Context, ticker string) (*models.OptionsChain, error)
}

// AvailabilityChecker is implemented by sources that must be configured or
// authenticated before use. A false result skips the source without counting
// it as a failure.
type AvailabilityChecker interface {
	Available(ctx context.Context) bool
}

// IsAvailable reports whether s can be tried. Sources without an
// availability check are always available.
func IsAvailable(ctx context.Context, s Source) bool {
	if a, ok := s.(AvailabilityChecker); ok {
		return a.Available(ctx)
	}
	return true
}

// httpJSON performs GET requests with a per-attempt timeout and decodes JSON.
type httpJSON struct {
	client  *http.Client
	timeout time.Duration
	logger  *logrus.Logger
}

func newHTTPJSON(client *http.Client, timeout time.Duration, logger *logrus.Logger) httpJSON {
	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return httpJSON{client: client, timeout: timeout, logger: orDiscard(logger)}
}

// getJSON fetches endpoint and decodes the body into response. Any status
// outside 2xx is an *APIError; a body that is not JSON is a decode error.
func (h httpJSON) getJSON(ctx context.Context, endpoint string, headers http.Header, response interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			h.logger.WithError(err).Debug("Failed to close response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", endpoint)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", endpoint, string(body))}
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes))
	if err := dec.Decode(response); err != nil {
		return fmt.Errorf("decoding %s: %w", endpoint, err)
	}
	return nil
}

func orDiscard(logger *logrus.Logger) *logrus.Logger {
	if logger != nil {
		return logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
