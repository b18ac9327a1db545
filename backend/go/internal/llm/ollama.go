package llm

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"context"
	"fmt"
	"net/http"
	"net/url"

	olla "github.com/ollama/ollama/api"
)

// Ollama 通过 /api/chat 流式生成回答。
type Ollama struct {
	client *olla.Client
	model  string
}

// NewOllama baseURL 为空时连接本机默认端口。
// http.Client 不设超时，生成时长由调用方的 ctx 控制。
func NewOllama(model, baseURL string) (*Ollama, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", baseURL, err)
	}
	return &Ollama{client: olla.NewClient(u, &http.Client{}), model: model}, nil
}

// StreamCompletion 把整段 prompt 作为一条 user 消息发送。
func (o *Ollama) StreamCompletion(ctx context.Context, prompt string) (<-chan interfaces.StreamChunk, error) {
	ch := make(chan interfaces.StreamChunk)
	stream := true
	req := &olla.ChatRequest{
		Model:    o.model,
		Messages: []olla.Message{{Role: "user", Content: prompt}},
		Stream:   &stream,
	}

	go func() {
		defer close(ch)
		err := o.client.Chat(ctx, req, func(resp olla.ChatResponse) error {
			if resp.Message.Content == "" {
				return nil
			}
			if !send(ctx, ch, interfaces.StreamChunk{Text: resp.Message.Content}) {
				return ctx.Err()
			}
			return nil
		})
		if err != nil && ctx.Err() == nil {
			fail(ctx, ch, "ollama.chat", err)
		}
	}()
	return ch, nil
}
