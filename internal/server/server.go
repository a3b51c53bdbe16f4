// Package server exposes the market data facade over HTTP and hosts the
// same-origin CBOE relay used by the secondary provider.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/wheelhouse_quotes/internal/fallback"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/marketdata"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/models"
	"github.com/eddiefleurent/wheelhouse_quotes/internal/provider"
)

// MaxBatchTickers caps /api/prices.
const MaxBatchTickers = 50

// MarketData is the subset of the facade the API serves.
type MarketData interface {
	FetchQuote(ctx context.Context, ticker string) (*models.Quote, error)
	FetchOptionsChain(ctx context.Context, ticker string) (*models.OptionsChain, error)
	FetchStockPricesBatch(ctx context.Context, tickers []string) map[string]float64
	FetchLiveOptionData(ctx context.Context, ticker string, strike float64, expiration string) (*marketdata.LiveOptionData, error)
}

// StatusReporter lists provider availability.
type StatusReporter interface {
	Status(ctx context.Context) []fallback.ProviderStatus
}

// RelaySource fetches the raw CBOE document for the relay endpoint.
type RelaySource interface {
	Raw(ctx context.Context, ticker string) (json.RawMessage, error)
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	data      MarketData
	status    StatusReporter
	relay     RelaySource
	logger    *logrus.Logger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes. status and relay may be nil, which disables
// their endpoints.
func NewServer(cfg Config, data MarketData, status StatusReporter, relay RelaySource, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		data:      data,
		status:    status,
		relay:     relay,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/price/{ticker}", s.handlePrice)
	s.router.Get("/api/prices", s.handlePrices)
	s.router.Get("/api/chain/{ticker}", s.handleChain)
	s.router.Get("/api/option/{ticker}", s.handleOption)
	if s.status != nil {
		s.router.Get("/api/status", s.handleStatus)
	}
	if s.relay != nil {
		s.router.Get("/api/cboe/{ticker}", s.handleCBOERelay)
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := fallback.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		id, _ := fallback.RequestIDFrom(ctx)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware guards the API. Health and the relay stay open so the
// secondary provider can reach the relay without credentials.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/api/cboe/") {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeError maps the error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"
	switch {
	case errors.Is(err, provider.ErrInvalidInput):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, provider.ErrNoDataAvailable):
		status, msg = http.StatusNotFound, "price not found, check ticker"
	case errors.Is(err, context.DeadlineExceeded):
		status, msg = http.StatusGatewayTimeout, "upstream timeout"
	case errors.Is(err, context.Canceled):
		return
	default:
		s.logger.WithError(err).WithField("path", r.URL.Path).Error("Request failed")
	}
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.data.FetchQuote(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, q)
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var tickers []string
	for _, t := range strings.Split(r.URL.Query().Get("tickers"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			tickers = append(tickers, t)
		}
	}
	if len(tickers) == 0 {
		s.writeError(w, r, fmt.Errorf("%w: tickers query parameter is required", provider.ErrInvalidInput))
		return
	}
	if len(tickers) > MaxBatchTickers {
		s.writeError(w, r, fmt.Errorf("%w: at most %d tickers per request", provider.ErrInvalidInput, MaxBatchTickers))
		return
	}
	s.writeJSON(w, http.StatusOK, s.data.FetchStockPricesBatch(r.Context(), tickers))
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	c, err := s.data.FetchOptionsChain(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleOption(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	strike, err := strconv.ParseFloat(q.Get("strike"), 64)
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: strike %q", provider.ErrInvalidInput, q.Get("strike")))
		return
	}
	d, err := s.data.FetchLiveOptionData(r.Context(), chi.URLParam(r, "ticker"), strike, q.Get("expiration"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"providers": s.status.Status(r.Context()),
		"timestamp": time.Now().Unix(),
	})
}

// handleCBOERelay serves the CDN document verbatim. Upstream failures map to
// 502 so the caller's fallback treats them as a provider failure.
func (s *Server) handleCBOERelay(w http.ResponseWriter, r *http.Request) {
	ticker, err := marketdata.NormalizeTicker(chi.URLParam(r, "ticker"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	raw, err := s.relay.Raw(r.Context(), ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("CBOE relay fetch failed")
		s.writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream unavailable"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if _, err := w.Write(raw); err != nil {
		s.logger.WithError(err).Error("Failed to write relay response")
	}
}
