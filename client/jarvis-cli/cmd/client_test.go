package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseServer(t *testing.T, body string, seen *askRequest) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"error":"missing token"}`)
			return
		}
		switch r.URL.Path {
		case "/api/v1/chat":
			if seen != nil {
				_ = json.NewDecoder(r.Body).Decode(seen)
			}
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, body)
		case "/api/v1/paths":
			fmt.Fprint(w, `{"paths":["eng/runbooks","hr/policies"]}`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestAsk_StreamsUntilDone(t *testing.T) {
	var seen askRequest
	ts := sseServer(t, "event:token\ndata:{\"text\":\"How \"}\n\nevent:token\ndata:{\"text\":\"now\"}\n\nevent:done\ndata:{}\n\n", &seen)
	defer ts.Close()

	c, err := newAPIClient(ts.URL+"/", "secret")
	require.NoError(t, err)

	var sb strings.Builder
	err = c.Ask(context.Background(), askRequest{Message: "How do I request vacation?", SessionID: "s1", Keywords: []string{"pto"}}, func(s string) {
		sb.WriteString(s)
	})
	require.NoError(t, err)
	assert.Equal(t, "How now", sb.String())
	assert.Equal(t, "How do I request vacation?", seen.Message)
	assert.Equal(t, "s1", seen.SessionID)
	assert.Equal(t, []string{"pto"}, seen.Keywords)
}

func TestAsk_ErrorEvent(t *testing.T) {
	ts := sseServer(t, "event:token\ndata:{\"text\":\"partial\"}\n\nevent:error\ndata:{\"error\":\"model went away\",\"kind\":\"llm_stream\"}\n\n", nil)
	defer ts.Close()

	c, err := newAPIClient(ts.URL, "secret")
	require.NoError(t, err)
	err = c.Ask(context.Background(), askRequest{Message: "q"}, func(string) {})
	require.Error(t, err)
	assert.Equal(t, "llm_stream: model went away", err.Error())
}

func TestAsk_TruncatedStream(t *testing.T) {
	ts := sseServer(t, "event:token\ndata:{\"text\":\"partial\"}\n\n", nil)
	defer ts.Close()

	c, err := newAPIClient(ts.URL, "secret")
	require.NoError(t, err)
	err = c.Ask(context.Background(), askRequest{Message: "q"}, func(string) {})
	assert.ErrorContains(t, err, "without a done event")
}

func TestAsk_Unauthorized(t *testing.T) {
	ts := sseServer(t, "", nil)
	defer ts.Close()

	c, err := newAPIClient(ts.URL, "")
	require.NoError(t, err)
	err = c.Ask(context.Background(), askRequest{Message: "q"}, func(string) {})
	assert.ErrorContains(t, err, "401 missing token")
}

func TestPaths(t *testing.T) {
	ts := sseServer(t, "", nil)
	defer ts.Close()

	c, err := newAPIClient(ts.URL, "secret")
	require.NoError(t, err)
	paths, err := c.Paths(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"eng/runbooks", "hr/policies"}, paths)
}

func TestReadSSE(t *testing.T) {
	var got []string
	err := readSSE(strings.NewReader(": comment\nevent: token\ndata: {\"a\":1}\ndata: more\n\nevent:done\ndata:{}"), func(event, data string) error {
		got = append(got, event+"|"+data)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"token|{\"a\":1}\nmore", "done|{}"}, got)
}

func TestNewAPIClient_EmptyServer(t *testing.T) {
	_, err := newAPIClient("", "t")
	assert.Error(t, err)
}
