package http

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"Jarvis_RAG/backend/go/pkg/httpmiddleware"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Middleware defines a function to wrap an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server is a custom HTTP server that wraps the standard http.Server
// and applies the configured middleware around a handler.
type Server struct {
	httpServer *http.Server
	onBreaker  func(name string, from, to circuitbreaker.State)
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithBreakerObserver is called on every circuit breaker transition.
func WithBreakerObserver(fn func(name string, from, to circuitbreaker.State)) ServerOption {
	return func(s *Server) {
		s.onBreaker = fn
	}
}

// WithLogger sets the logger for server lifecycle messages.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates a Server for handler based on the provided AppConfig and options.
// The circuit breaker middleware is applied when enabled in the config.
// Rate limiting is per user and lives in the router, after authentication.
func NewServer(cfg *config.AppConfig, handler http.Handler, opts ...ServerOption) (*Server, error) {
	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.App.HTTPAddress,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger.Discard(),
	}

	// Apply all the options
	for _, opt := range opts {
		opt(srv)
	}

	var middlewares []Middleware

	// Add Circuit Breaker middleware if enabled
	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := createCircuitBreaker("http", cfg.Middleware.CircuitBreaker, srv.onBreaker, httpmiddleware.IgnoreClientGone)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		srv.log.WithField("failureThreshold", cfg.Middleware.CircuitBreaker.FailureThreshold).Info("Enabling circuit breaker middleware")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
	}

	// Apply all middlewares in reverse order
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler

	// Set a default address if none was provided
	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}

	return srv, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	if s.httpServer.Addr == "" {
		return fmt.Errorf("server address is not set")
	}
	s.log.WithField("address", s.httpServer.Addr).Info("Starting server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// createCircuitBreaker initializes a circuit breaker based on the configuration.
func createCircuitBreaker(name string, cfg config.CircuitBreakerConfig, onChange func(string, circuitbreaker.State, circuitbreaker.State), isSuccessful func(error) bool) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	return circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		Name:             name,
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          timeout,
		OnStateChange:    onChange,
		IsSuccessful:     isSuccessful,
	}), nil
}
