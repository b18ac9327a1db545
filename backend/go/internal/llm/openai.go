package llm

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"errors"
	"io"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAI 是一个用于 OpenAI 兼容 API 的流式 LLM 客户端。
type OpenAI struct {
	client *openai.Client // OpenAI 客户端实例。
	model  string         // 要使用的模型名称。
}

// NewOpenAI 创建一个新的 OpenAI 客户端。baseURL 为空时使用官方地址。
func NewOpenAI(model, apiKey, baseURL string) (*OpenAI, error) {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// StreamCompletion 使用 Chat Completions 流式接口，提示词作为单条 user 消息发送。
func (o *OpenAI) StreamCompletion(ctx context.Context, prompt string) (<-chan interfaces.StreamChunk, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Stream: true,
	})
	if err != nil {
		return nil, schema.LlmStreamError("openai.stream", err)
	}

	ch := make(chan interfaces.StreamChunk)
	go func() {
		defer close(ch)
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				fail(ctx, ch, "openai.stream", err)
				return
			}
			for _, choice := range resp.Choices {
				if choice.Delta.Content == "" {
					continue
				}
				if !send(ctx, ch, interfaces.StreamChunk{Text: choice.Delta.Content}) {
					return
				}
			}
		}
	}()
	return ch, nil
}
