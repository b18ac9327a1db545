package llm

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
)

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个流式 LLM 客户端。
func NewClient(ctx context.Context, cfg config.ProviderConfig) (interfaces.LLM, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGemini(ctx, cfg.Model, cfg.APIKey)
	case "openai":
		return NewOpenAI(cfg.Model, cfg.APIKey, cfg.BaseURL)
	case "ollama":
		return NewOllama(cfg.Model, cfg.BaseURL)
	case "echo", "":
		return NewEcho(), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// send 把一个片段写入通道；ctx 取消时放弃并返回 false。
func send(ctx context.Context, ch chan<- interfaces.StreamChunk, chunk interfaces.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// fail 发送唯一的错误片段。调用方随后必须关闭通道。
func fail(ctx context.Context, ch chan<- interfaces.StreamChunk, op string, err error) {
	send(ctx, ch, interfaces.StreamChunk{Err: schema.LlmStreamError(op, err)})
}
