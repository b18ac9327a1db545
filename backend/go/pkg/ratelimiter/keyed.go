package ratelimiter

import (
	"Jarvis_RAG/backend/go/pkg/util"
	"time"
)

// DefaultMaxKeys 内存中最多保留的桶数量。
const DefaultMaxKeys = 10000

// Keyed 为每个 key（通常是用户邮箱）维护一个令牌桶。
// 桶保存在 LRU 中，空闲或被挤出的 key 下次会得到一个满桶。
type Keyed struct {
	rate     float64
	capacity int
	now      func() time.Time
	buckets  *util.LRUCache[string, *TokenBucket]
}

// NewKeyed maxKeys <= 0 使用 DefaultMaxKeys；idle <= 0 表示桶永不过期。
func NewKeyed(rate float64, capacity, maxKeys int, idle time.Duration) (*Keyed, error) {
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}
	cache, err := util.NewWithConfig(util.CacheConfig[string, *TokenBucket]{Capacity: maxKeys, TTL: idle})
	if err != nil {
		return nil, err
	}
	return &Keyed{rate: rate, capacity: capacity, now: time.Now, buckets: cache}, nil
}

// Allow 判断 key 的请求能否通过。
func (k *Keyed) Allow(key string) bool {
	ok, _ := k.Take(key)
	return ok
}

// Take 同 TokenBucket.Take，按 key 分桶。
func (k *Keyed) Take(key string) (bool, time.Duration) {
	bucket, _ := k.buckets.GetOrLoad(key, func() (*TokenBucket, int, error) {
		return newTokenBucket(k.rate, k.capacity, k.now), 1, nil
	})
	return bucket.Take()
}

// Keys 当前跟踪的 key 数量。
func (k *Keyed) Keys() int { return k.buckets.Len() }
