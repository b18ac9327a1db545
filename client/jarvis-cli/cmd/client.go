package cmd

import (
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	jhttp "Jarvis_RAG/backend/go/pkg/http"
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type askRequest struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"sessionId,omitempty"`
	IsDeepThink bool     `json:"isDeepThink,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// apiClient talks to the service's /api/v1 routes.
type apiClient struct {
	base  string
	token string
	http  *jhttp.Client
}

func newAPIClient(base, token string) (*apiClient, error) {
	if base == "" {
		return nil, errors.New("server URL is empty")
	}
	// Streaming answers have no overall deadline; repeated 5xx fail fast instead.
	breaker := circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		Name:             "jarvis-cli",
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          30 * time.Second,
	})
	c := jhttp.NewClientWithBreaker(breaker, 0)
	return &apiClient{base: strings.TrimRight(base, "/"), token: token, http: c}, nil
}

func (c *apiClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		if e.Error != "" {
			return nil, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return nil, fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	return resp, nil
}

// Ask streams the answer to onToken. It returns nil on a done event and an
// error carrying the server's kind on an error event.
func (c *apiClient) Ask(ctx context.Context, req askRequest, onToken func(string)) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/chat", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	errDone := errors.New("done")
	err = readSSE(resp.Body, func(event, data string) error {
		switch event {
		case "token":
			var t struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal([]byte(data), &t); err != nil {
				return fmt.Errorf("bad token event: %w", err)
			}
			onToken(t.Text)
		case "done":
			return errDone
		case "error":
			var e struct {
				Error string `json:"error"`
				Kind  string `json:"kind"`
			}
			_ = json.Unmarshal([]byte(data), &e)
			return fmt.Errorf("%s: %s", e.Kind, e.Error)
		}
		return nil
	})
	switch {
	case errors.Is(err, errDone):
		return nil
	case err != nil:
		return err
	default:
		return errors.New("stream ended without a done event")
	}
}

// Paths lists the caller's browsable paths.
func (c *apiClient) Paths(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/paths", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	return body.Paths, nil
}

// readSSE calls fn once per event until the body ends or fn returns an error.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	var event string
	var data []string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if event != "" || len(data) > 0 {
				if err := fn(event, strings.Join(data, "\n")); err != nil {
					return err
				}
			}
			event, data = "", nil
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimPrefix(strings.TrimPrefix(line, "event:"), " ")
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if event != "" || len(data) > 0 {
		return fn(event, strings.Join(data, "\n"))
	}
	return nil
}
