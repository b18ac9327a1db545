package llm

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, ch <-chan interfaces.StreamChunk) (string, error) {
	t.Helper()
	var sb strings.Builder
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return sb.String(), nil
			}
			if c.Err != nil {
				return sb.String(), c.Err
			}
			sb.WriteString(c.Text)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}

func TestEcho_StreamsQuestion(t *testing.T) {
	ch, err := NewEcho().StreamCompletion(context.Background(), "Context:\nfoo\n\nQuestion: how are you")
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "how are you ", text)
}

func TestEcho_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := NewEcho().StreamCompletion(ctx, "one two three four")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "one ", first.Text)
	cancel()

	// 取消后通道最终关闭。
	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient(context.Background(), config.ProviderConfig{Provider: "echo"})
	require.NoError(t, err)
	assert.IsType(t, &Echo{}, c)

	c, err = NewClient(context.Background(), config.ProviderConfig{Provider: "ollama", Model: "llama3"})
	require.NoError(t, err)
	assert.IsType(t, &Ollama{}, c)

	_, err = NewClient(context.Background(), config.ProviderConfig{Provider: "huggingface"})
	assert.Error(t, err)
}

func TestOpenAI_StreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, tok := range []string{"Submit ", "the ", "form."} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", tok)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewOpenAI("m", "key", srv.URL+"/v1")
	require.NoError(t, err)
	ch, err := c.StreamCompletion(context.Background(), "prompt")
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Submit the form.", text)
}

func TestOpenAI_HTTPErrorIsLlmStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"down","type":"server_error"}}`)
	}))
	defer srv.Close()

	c, _ := NewOpenAI("m", "key", srv.URL+"/v1")
	_, err := c.StreamCompletion(context.Background(), "prompt")
	assert.ErrorIs(t, err, schema.ErrLlmStream)
}

func TestOllama_StreamCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		msgs, _ := req["messages"].([]any)
		assert.Len(t, msgs, 1)
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":"Hello"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":" world"},"done":false}`)
		fmt.Fprintln(w, `{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`)
	}))
	defer srv.Close()

	c, err := NewOllama("llama3", srv.URL)
	require.NoError(t, err)
	ch, err := c.StreamCompletion(context.Background(), "hi")
	require.NoError(t, err)
	text, err := collect(t, ch)
	require.NoError(t, err)
	assert.Equal(t, "Hello world", text)
}

func TestOllama_ServerErrorEndsWithSingleError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"model not loaded"}`)
	}))
	defer srv.Close()

	c, _ := NewOllama("llama3", srv.URL)
	ch, err := c.StreamCompletion(context.Background(), "hi")
	require.NoError(t, err)
	_, err = collect(t, ch)
	assert.ErrorIs(t, err, schema.ErrLlmStream)
}
