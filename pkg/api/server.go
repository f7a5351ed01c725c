// Package api exposes the ledger over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"balance-ledger/pkg/dispatch"
	"balance-ledger/pkg/history"
	"balance-ledger/pkg/ledger"
	"balance-ledger/pkg/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ledger is the write and account boundary the server needs.
type Ledger interface {
	Submit(ctx context.Context, req ledger.SubmitRequest) (*ledger.Result, error)
	OpenAccount(ctx context.Context, account ledger.NewAccount) (*ledger.Account, error)
	DeleteAccount(ctx context.Context, accountID string) error
	Account(ctx context.Context, accountID string) (*ledger.Account, error)
	ResolvePrincipal(ctx context.Context, principal string) (string, error)
}

// Reports is the read boundary the server needs.
type Reports interface {
	History(ctx context.Context, accountID string, limit int) ([]history.Entry, error)
	Statistics(ctx context.Context, accountID string) (*history.Statistics, error)
	Trend(ctx context.Context, accountID string, days int) (*history.Trend, error)
	MonthlySummary(ctx context.Context, accountID string, year int) (*history.MonthlySummary, error)
	Operations(ctx context.Context, accountID string, filter ledger.Filter) (ledger.Page, error)
	Range(ctx context.Context, accountID string, start, end time.Time) ([]ledger.Operation, error)
	Recent(ctx context.Context, accountID string, limit int) ([]ledger.Operation, error)
	TopAccounts(ctx context.Context, limit int) ([]ledger.Account, error)
}

// Enqueuer accepts operations for asynchronous application.
type Enqueuer interface {
	Submit(ctx context.Context, req ledger.SubmitRequest) (dispatch.Job, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (default: ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Registry receives the HTTP metrics and is served on /metrics. A private
	// registry is created when nil.
	Registry *prometheus.Registry

	// Namespace prefixes the HTTP metric names (default: "ledger")
	Namespace string

	// HealthChecks are run by /health, keyed by dependency name
	HealthChecks map[string]HealthCheck
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		Namespace:    "ledger",
	}
}

// Server routes HTTP requests to the ledger, the reporter and the dispatcher.
type Server struct {
	ledger  Ledger
	reports Reports
	jobs    Enqueuer
	config  ServerConfig
	router  *mux.Router
	server  *http.Server
	logger  *logging.Logger
}

// NewServer builds the router. jobs may be nil, in which case asynchronous
// submission answers 503.
func NewServer(l Ledger, reports Reports, jobs Enqueuer, config ServerConfig) (*Server, error) {
	if config.Address == "" {
		config.Address = ":8080"
	}
	if config.Namespace == "" {
		config.Namespace = "ledger"
	}
	if config.Registry == nil {
		config.Registry = prometheus.NewRegistry()
	}

	httpMetrics := newHTTPMetrics(config.Namespace)
	if err := httpMetrics.register(config.Registry); err != nil {
		return nil, err
	}

	s := &Server{
		ledger:  l,
		reports: reports,
		jobs:    jobs,
		config:  config,
		router:  mux.NewRouter(),
		logger:  logging.Global().Named("api"),
	}

	r := s.router
	r.Use(httpMetrics.middleware)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(config.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/accounts", s.handleCreateAccount).Methods(http.MethodPost)
	r.HandleFunc("/accounts/top", s.handleTopAccounts).Methods(http.MethodGet)
	r.HandleFunc("/accounts/lookup", s.handleLookup).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}", s.handleDeleteAccount).Methods(http.MethodDelete)

	r.HandleFunc("/accounts/{id}/operations", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/operations/async", s.handleEnqueue).Methods(http.MethodPost)
	r.HandleFunc("/accounts/{id}/operations", s.handleOperations).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/operations/recent", s.handleRecent).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/operations/range", s.handleRange).Methods(http.MethodGet)

	r.HandleFunc("/accounts/{id}/history", s.handleHistory).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/statistics", s.handleStatistics).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/monthly-summary", s.handleMonthlySummary).Methods(http.MethodGet)
	r.HandleFunc("/accounts/{id}/trend", s.handleTrend).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      r,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("address", s.config.Address))
		errc <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
