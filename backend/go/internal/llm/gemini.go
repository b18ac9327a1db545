package llm

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"errors"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// Gemini 通过 Gemini API 流式生成回答。
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel // Gemini 生成模型实例。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, schema.LlmStreamError("gemini.new_client", err)
	}
	return &Gemini{client: client, model: client.GenerativeModel(model)}, nil
}

// StreamCompletion 启动流式生成。ctx 取消后迭代器返回错误，goroutine 随之退出。
func (g *Gemini) StreamCompletion(ctx context.Context, prompt string) (<-chan interfaces.StreamChunk, error) {
	iter := g.model.GenerateContentStream(ctx, genai.Text(prompt))
	ch := make(chan interfaces.StreamChunk)

	go func() {
		defer close(ch) // 确保在 goroutine 退出时关闭通道。
		for {
			resp, err := iter.Next()
			if errors.Is(err, iterator.Done) {
				return // 流结束。
			}
			if err != nil {
				fail(ctx, ch, "gemini.stream", err)
				return
			}
			for _, text := range textParts(resp) {
				if !send(ctx, ch, interfaces.StreamChunk{Text: text}) {
					return
				}
			}
		}
	}()
	return ch, nil
}

// Close 释放底层客户端。
func (g *Gemini) Close() error {
	return g.client.Close()
}

// textParts 取出响应中所有候选的文本片段。
func textParts(resp *genai.GenerateContentResponse) []string {
	var out []string
	if resp == nil {
		return out
	}
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok && t != "" {
				out = append(out, string(t))
			}
		}
	}
	return out
}
