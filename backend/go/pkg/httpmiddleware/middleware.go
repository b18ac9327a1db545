package httpmiddleware

import (
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// statusRecorder 记录下游写出的状态码；未显式 WriteHeader 时视为 200。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rw *statusRecorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Flush 保证 SSE 流在包装之后仍能逐条推送。
func (rw *statusRecorder) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 找到底层 writer。
func (rw *statusRecorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

var errClientGone = errors.New("client went away")

// CircuitBreak 以熔断器包住整个 handler：5xx 计为失败；
// 客户端中途断开（例如关闭了 SSE 流）不计入熔断统计。
// 熔断打开时直接返回 503 JSON，不再进入 handler。
func CircuitBreak(breaker circuitbreaker.CircuitBreaker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rw := &statusRecorder{ResponseWriter: w}

			_, err := breaker.Execute(func() (interface{}, error) {
				next.ServeHTTP(rw, r)
				if r.Context().Err() != nil {
					return nil, errClientGone
				}
				if rw.status >= http.StatusInternalServerError {
					return nil, fmt.Errorf("server error: status code %d", rw.status)
				}
				return nil, nil
			})
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"error": "circuit breaker is open",
					"kind":  "UNAVAILABLE",
				})
			}
			// 其余错误的响应体已由 handler 写出。
		})
	}
}

// IgnoreClientGone 供熔断器的 IsSuccessful 使用。
func IgnoreClientGone(err error) bool {
	return errors.Is(err, errClientGone)
}
