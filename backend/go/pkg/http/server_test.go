package http

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"Jarvis_RAG/backend/go/pkg/logger"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// helper function to create a mock config for testing
func newTestConfig() *config.AppConfig {
	return &config.AppConfig{
		Middleware: config.MiddlewareConfig{
			CircuitBreaker: config.CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 2, // Open after 2 consecutive failures
				SuccessThreshold: 2,
				Timeout:          "10s",
			},
		},
	}
}

func TestNewServer_WithAddress(t *testing.T) {
	cfg := newTestConfig()
	addr := ":9999"

	srv, err := NewServer(cfg, http.NotFoundHandler(), WithAddress(addr))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	if srv.httpServer.Addr != addr {
		t.Errorf("Expected server address to be %s, but got %s", addr, srv.httpServer.Addr)
	}
}

func TestNewServer_AddressFromConfig(t *testing.T) {
	cfg := newTestConfig()
	cfg.App.HTTPAddress = ":7070"

	srv, err := NewServer(cfg, http.NotFoundHandler())
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if srv.httpServer.Addr != ":7070" {
		t.Errorf("Expected :7070, got %s", srv.httpServer.Addr)
	}
}

func TestNewServer_BadTimeout(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.CircuitBreaker.Timeout = "soon"

	if _, err := NewServer(cfg, http.NotFoundHandler()); err == nil {
		t.Fatal("expected an error for an invalid timeout")
	}
}

func TestCircuitBreakerMiddleware(t *testing.T) {
	cfg := newTestConfig()

	var (
		mu          sync.Mutex
		transitions []string
	)
	// This handler will always fail, to trip the breaker
	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	})
	srv, err := NewServer(cfg, failing, WithBreakerObserver(func(name string, from, to circuitbreaker.State) {
		mu.Lock()
		transitions = append(transitions, name+":"+to.String())
		mu.Unlock()
	}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}

	testServer := httptest.NewServer(srv.Handler())
	defer testServer.Close()

	// First 2 requests should fail and trip the circuit
	for i := 0; i < 2; i++ {
		resp, err := http.Get(testServer.URL + "/fail")
		if err != nil {
			t.Fatalf("Request %d failed: %v", i+1, err)
		}
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("Expected status InternalServerError on request %d, got %d", i+1, resp.StatusCode)
		}
		resp.Body.Close()
	}

	// The 3rd request should be blocked by the open circuit breaker
	resp, err := http.Get(testServer.URL + "/fail")
	if err != nil {
		t.Fatalf("Request 3 failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected status ServiceUnavailable on request 3, got %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"kind":"UNAVAILABLE"`) {
		t.Errorf("Expected a JSON UNAVAILABLE body, got '%s'", string(body))
	}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 1 || transitions[0] != "http:Open" {
		t.Errorf("Expected one transition to Open, got %v", transitions)
	}
}

func TestNewServer_LogsBreaker(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewServer(newTestConfig(), http.NotFoundHandler(), WithLogger(logger.NewWithOutput("test", &buf))); err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	if !strings.Contains(buf.String(), "Enabling circuit breaker middleware") {
		t.Errorf("expected a breaker log line, got %q", buf.String())
	}
}

func TestServer_Shutdown(t *testing.T) {
	cfg := newTestConfig()
	cfg.Middleware.CircuitBreaker.Enabled = false
	srv, err := NewServer(cfg, http.NotFoundHandler(), WithAddress("127.0.0.1:0"))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		t.Errorf("expected http.ErrServerClosed, got %v", err)
	}
}
