// Package api serves the ledger over HTTP. Every response body is an
// Envelope.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"cheque-ledger/pkg/ledger"
	"cheque-ledger/pkg/logging"
	"cheque-ledger/pkg/metrics"
	"cheque-ledger/pkg/validation"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Ledger is the part of *ledger.Ledger the handlers use.
type Ledger interface {
	Account(ctx context.Context) (*ledger.Account, error)
	Transactions(ctx context.Context) ([]ledger.Transaction, error)
	Transaction(ctx context.Context, id int64) (*ledger.Transaction, error)
	CreateTransaction(ctx context.Context, in ledger.Input) (*ledger.Transaction, error)
	UpdateTransaction(ctx context.Context, id int64, in ledger.Input) error
	DeleteTransaction(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	// Address to listen on (e.g., ":8080")
	Address string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultServerConfig returns a default configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Address:      ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Options are the optional collaborators of a Server.
type Options struct {
	Logger *logging.Logger

	// Collector receives validation failures.
	Collector metrics.Collector

	// HTTPMetrics instruments routed requests when set.
	HTTPMetrics *HTTPMetrics

	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// Server is the HTTP front of the ledger.
type Server struct {
	ledger  Ledger
	gate    *validation.Gate
	logger  *logging.Logger
	handler http.Handler
	server  *http.Server
	config  ServerConfig
}

// NewServer wires the routes and middleware.
func NewServer(l Ledger, config ServerConfig, opts Options) *Server {
	s := &Server{
		ledger: l,
		gate:   validation.NewGate(opts.Collector),
		logger: logging.OrNop(opts.Logger).Named("api"),
		config: config,
	}

	metricsHandler := opts.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	if opts.HTTPMetrics != nil {
		r.Use(opts.HTTPMetrics.Middleware())
	}

	r.HandleFunc("/", s.handleAccount).Methods(http.MethodGet)
	r.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)

	for _, path := range []string{"/transactions", "/transactions/"} {
		r.HandleFunc(path, s.handleListTransactions).Methods(http.MethodGet)
		r.HandleFunc(path, s.handleCreateTransaction).Methods(http.MethodPost)
	}

	r.HandleFunc("/transactions/{id:[0-9]+}", s.handleGetTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id:[0-9]+}", s.handleUpdateTransaction).Methods(http.MethodPut)
	r.HandleFunc("/transactions/{id:[0-9]+}", s.handleDeleteTransaction).Methods(http.MethodDelete)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	var h http.Handler = r
	h = accessLogMiddleware(s.logger)(h)
	h = recoveryMiddleware(s.logger)(h)
	h = requestIDMiddleware(h)
	s.handler = h

	s.server = &http.Server{
		Addr:         config.Address,
		Handler:      h,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in a goroutine. Bind errors
// are returned; later serve errors are logged.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return err
	}

	s.logger.Info("server listening", zap.String("address", ln.Addr().String()))

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
