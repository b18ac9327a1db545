package http

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody 错误响应体最多读取的字节数。
const maxErrorBody = 512

// StatusError 下游返回 5xx 时的错误，带上响应体的开头部分便于排查。
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server error: received status code %d", e.Code)
	}
	return fmt.Sprintf("server error: received status code %d: %s", e.Code, e.Body)
}

// Client 在标准 http.Client 外面加一层熔断。
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient 按配置创建熔断器；timeout 为 0 表示不设整体超时，流式响应需要这样。
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration) (*Client, error) {
	if !cfg.Enabled {
		return NewClientWithBreaker(nil, timeout), nil
	}
	breaker, err := createCircuitBreaker("client", cfg, nil, nil)
	if err != nil {
		return nil, err
	}
	return NewClientWithBreaker(breaker, timeout), nil
}

// NewClientWithBreaker breaker 为 nil 时不做熔断。
func NewClientWithBreaker(breaker circuitbreaker.CircuitBreaker, timeout time.Duration) *Client {
	return &Client{httpClient: &http.Client{Timeout: timeout}, breaker: breaker}
}

// Do 发送请求。5xx 计为熔断失败并以 *StatusError 返回，响应体已关闭；
// 其它状态码原样返回，由调用方关闭 Body。
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= http.StatusInternalServerError {
			defer r.Body.Close()
			body, _ := io.ReadAll(io.LimitReader(r.Body, maxErrorBody))
			return nil, &StatusError{Code: r.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		resp = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
