package storages

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
)

// IgnoreCancellation 让调用方取消不计入熔断失败。
func IgnoreCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// BreakerBackend 用熔断器保护检索后端，熔断期间直接返回 SearchBackend 错误。
type BreakerBackend struct {
	next interfaces.SearchBackend
	cb   circuitbreaker.CircuitBreaker
}

// NewBreakerBackend 包装 next。
func NewBreakerBackend(next interfaces.SearchBackend, cb circuitbreaker.CircuitBreaker) *BreakerBackend {
	return &BreakerBackend{next: next, cb: cb}
}

func (b *BreakerBackend) LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.LexicalQuery(ctx, field, text, topK)
	})
	return hitsOf(res), wrapBreaker("lexical", err)
}

func (b *BreakerBackend) VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.VectorQuery(ctx, field, vector, topK)
	})
	return hitsOf(res), wrapBreaker("vector", err)
}

type scanPage struct {
	hits []schema.Hit
	next string
}

func (b *BreakerBackend) ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		hits, next, err := b.next.ScanAll(ctx, filter, pageToken)
		if err != nil {
			return nil, err
		}
		return scanPage{hits: hits, next: next}, nil
	})
	if err != nil {
		return nil, "", wrapBreaker("scan", err)
	}
	p := res.(scanPage)
	return p.hits, p.next, nil
}

func hitsOf(res interface{}) []schema.Hit {
	hits, _ := res.([]schema.Hit)
	return hits
}

func wrapBreaker(op string, err error) error {
	if err == nil {
		return nil
	}
	return schema.SearchBackendError("breaker."+op, err)
}

var _ interfaces.SearchBackend = (*BreakerBackend)(nil)
