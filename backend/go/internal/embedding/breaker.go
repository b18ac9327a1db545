package embedding

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"context"
)

// BreakerModel 用熔断器保护远程 Embedding 服务，熔断期间快速失败。
type BreakerModel struct {
	next Embedding
	cb   circuitbreaker.CircuitBreaker
}

// NewBreakerModel 包装 next。
func NewBreakerModel(next Embedding, cb circuitbreaker.CircuitBreaker) *BreakerModel {
	return &BreakerModel{next: next, cb: cb}
}

// Embed 为单个文本生成嵌入向量。
func (m *BreakerModel) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.next.Embed(ctx, text)
	})
	if err != nil {
		return nil, schema.EmbeddingError("embed", err)
	}
	return res.([]float32), nil
}

// EmbedBatch 为一批文本生成嵌入向量。
func (m *BreakerModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	res, err := m.cb.Execute(func() (interface{}, error) {
		return m.next.EmbedBatch(ctx, texts)
	})
	if err != nil {
		return nil, schema.EmbeddingError("embed_batch", err)
	}
	return res.([][]float32), nil
}
