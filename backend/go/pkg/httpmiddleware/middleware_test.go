package httpmiddleware

import (
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"Jarvis_RAG/backend/go/pkg/logger"
	"Jarvis_RAG/backend/go/pkg/ratelimiter"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func init() { gin.SetMode(gin.TestMode) }

func sign(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func authedEngine() *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(secret, "email"))
	r.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, UserEmail(c)) })
	return r
}

func get(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTAuth_SetsNormalisedEmail(t *testing.T) {
	token := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"email": " Alice@Corp.com "})
	w := get(authedEngine(), "/me", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@corp.com", w.Body.String())
}

func TestJWTAuth_Rejects(t *testing.T) {
	r := authedEngine()
	cases := map[string]string{
		"missing header": "",
		"not bearer":     "Token abc",
		"garbage":        "Bearer not-a-jwt",
		"wrong secret":   "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"email": "a@b.c"}),
		"no email":       "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": 1}),
		"expired": "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{
			"email": "a@b.c",
			"exp":   time.Now().Add(-time.Hour).Unix(),
		}),
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, get(r, "/me", header).Code)
		})
	}
}

func TestRateLimitByUser(t *testing.T) {
	limiter, err := ratelimiter.NewKeyed(0.001, 1, 0, 0)
	require.NoError(t, err)
	r := gin.New()
	r.Use(JWTAuth(secret, "email"), RateLimitByUser(limiter))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	alice := "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"email": "alice@corp.com"})
	bob := "Bearer " + sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"email": "bob@corp.com"})

	assert.Equal(t, http.StatusNoContent, get(r, "/x", alice).Code)
	limited := get(r, "/x", alice)
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Equal(t, "1000", limited.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusNoContent, get(r, "/x", bob).Code)
}

type recordingObserver struct {
	route  string
	status int
}

func (r *recordingObserver) ObserveHTTP(_, path string, status int, _ time.Duration) {
	r.route, r.status = path, status
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}
	r := gin.New()
	r.Use(RequestLogger(logger.NewWithOutput("test", &buf), obs))
	r.GET("/items/:id", func(c *gin.Context) { c.String(http.StatusOK, TraceID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/items/7", nil)
	req.Header.Set(HeaderTraceID, "trace-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "trace-42", w.Body.String())
	assert.Equal(t, "trace-42", w.Header().Get(HeaderTraceID))
	assert.Equal(t, "/items/:id", obs.route)
	assert.Equal(t, http.StatusOK, obs.status)
	assert.Contains(t, buf.String(), `"trace_id":"trace-42"`)
	assert.Contains(t, buf.String(), `"status":200`)

	w = get(r, "/nope", "")
	assert.NotEmpty(t, w.Header().Get(HeaderTraceID))
	assert.Equal(t, "unmatched", obs.route)
	assert.Equal(t, http.StatusNotFound, obs.status)
}

func TestCircuitBreak_OpensOnServerErrors(t *testing.T) {
	cb := circuitbreaker.New(2, 1, time.Hour)
	h := CircuitBreak(cb)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"error":"circuit breaker is open","kind":"UNAVAILABLE"}`, w.Body.String())
}

func TestCircuitBreak_ClientGoneIsNotAFailure(t *testing.T) {
	cb := circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsSuccessful:     IgnoreClientGone,
	})
	h := CircuitBreak(cb)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(ctx))
	assert.Equal(t, circuitbreaker.Closed, cb.State())
}

func TestCircuitBreak_ImplicitOK(t *testing.T) {
	cb := circuitbreaker.New(1, 1, time.Hour)
	h := CircuitBreak(cb)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, circuitbreaker.Closed, cb.State())
}

func TestStatusRecorder_Flushes(t *testing.T) {
	rec := httptest.NewRecorder()
	var w http.ResponseWriter = &statusRecorder{ResponseWriter: rec}
	f, ok := w.(http.Flusher)
	require.True(t, ok)
	f.Flush()
	assert.True(t, rec.Flushed)
}
