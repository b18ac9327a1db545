package embedding

import (
	"Jarvis_RAG/backend/go/pkg/util"
	"context"
	"time"
)

// CachedModel 在 Embed 上加一层 LRU，用于重复出现的查询文本。
// EmbedBatch 只对未命中的文本调用底层模型。
type CachedModel struct {
	next  Embedding
	cache *util.LRUCache[string, []float32]
}

// NewCachedModel 创建带缓存的模型；capacity <= 0 时直接返回 next。
func NewCachedModel(next Embedding, capacity int, ttl time.Duration) Embedding {
	if capacity <= 0 {
		return next
	}
	cache, err := util.NewWithConfig(util.CacheConfig[string, []float32]{Capacity: capacity, TTL: ttl})
	if err != nil {
		return next
	}
	return &CachedModel{next: next, cache: cache}
}

// Embed 命中缓存时不调用底层模型。
func (m *CachedModel) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.cache.GetOrLoad(text, func() ([]float32, int, error) {
		v, err := m.next.Embed(ctx, text)
		return v, 1, err
	})
}

// EmbedBatch 合并缓存命中与一次批量调用的结果，保持输入顺序。
func (m *CachedModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, t := range texts {
		if v, ok := m.cache.Get(t); ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := m.next.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range vecs {
		out[missingIdx[j]] = v
		m.cache.Put(missing[j], v, 1)
	}
	return out, nil
}

// Stats 暴露缓存统计。
func (m *CachedModel) Stats() util.Stats { return m.cache.Stats() }
