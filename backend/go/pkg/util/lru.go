package util

import (
	"container/list"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// CacheConfig LRU 的淘汰条件，Capacity 与 MaxWeight 至少设置一个。
type CacheConfig[K comparable, V any] struct {
	Capacity  int           // 最大条目数，0 表示不限
	MaxWeight int           // 权重总和上限，0 表示不限
	TTL       time.Duration // 0 表示永不过期
	// Now 测试时注入时钟，nil 使用 time.Now。
	Now func() time.Time
}

type item[K comparable, V any] struct {
	key     K
	value   V
	weight  int
	expires time.Time
}

// LRUCache 并发安全的泛型 LRU，支持条目数、权重和 TTL 三种淘汰方式。
// 过期条目在访问时才被移除。
type LRUCache[K comparable, V any] struct {
	cfg    CacheConfig[K, V]
	mu     sync.RWMutex
	order  *list.List // 头部为最近使用
	index  map[K]*list.Element
	weight int
	hits   uint64
	misses uint64
	loads  singleflight.Group
}

// Stats 命中统计快照。
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
	Weight int
}

// NewWithConfig 创建缓存。
func NewWithConfig[K comparable, V any](cfg CacheConfig[K, V]) (*LRUCache[K, V], error) {
	if cfg.Capacity <= 0 && cfg.MaxWeight <= 0 {
		return nil, errors.New("必须设置 Capacity 或 MaxWeight 中的至少一个")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &LRUCache[K, V]{
		cfg:   cfg,
		order: list.New(),
		index: make(map[K]*list.Element),
	}, nil
}

// Get 命中时把条目移到队首。
func (c *LRUCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lookup(key)
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return v, ok
}

// lookup 不计入统计。调用方持有写锁。
func (c *LRUCache[K, V]) lookup(key K) (V, bool) {
	var zero V
	el, ok := c.index[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(*item[K, V])
	if c.expired(it) {
		c.unlink(el)
		return zero, false
	}
	c.order.MoveToFront(el)
	return it.value, true
}

func (c *LRUCache[K, V]) expired(it *item[K, V]) bool {
	return c.cfg.TTL > 0 && c.cfg.Now().After(it.expires)
}

// GetOrLoad 未命中时调用 load 并缓存成功结果，失败不缓存。
// 同一 key 的并发加载只执行一次，其余调用方共享结果。
func (c *LRUCache[K, V]) GetOrLoad(key K, load func() (V, int, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	res, err, _ := c.loads.Do(flightKey(key), func() (interface{}, error) {
		c.mu.Lock()
		v, ok := c.lookup(key)
		c.mu.Unlock()
		if ok {
			return v, nil
		}
		v, weight, err := load()
		if err != nil {
			return nil, err
		}
		c.Put(key, v, weight)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func flightKey[K comparable](key K) string {
	if s, ok := any(key).(string); ok {
		return s
	}
	return fmt.Sprintf("%#v", key)
}

// Put 写入或覆盖，weight <= 0 按 1 计。写入后按需从队尾淘汰。
func (c *LRUCache[K, V]) Put(key K, value V, weight int) {
	if weight <= 0 {
		weight = 1
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var expires time.Time
	if c.cfg.TTL > 0 {
		expires = c.cfg.Now().Add(c.cfg.TTL)
	}
	if el, ok := c.index[key]; ok {
		it := el.Value.(*item[K, V])
		c.weight += weight - it.weight
		it.value, it.weight, it.expires = value, weight, expires
		c.order.MoveToFront(el)
	} else {
		c.index[key] = c.order.PushFront(&item[K, V]{key: key, value: value, weight: weight, expires: expires})
		c.weight += weight
	}
	for c.overLimit() {
		c.unlink(c.order.Back())
	}
}

func (c *LRUCache[K, V]) overLimit() bool {
	return (c.cfg.Capacity > 0 && c.order.Len() > c.cfg.Capacity) ||
		(c.cfg.MaxWeight > 0 && c.weight > c.cfg.MaxWeight)
}

func (c *LRUCache[K, V]) unlink(el *list.Element) {
	it := c.order.Remove(el).(*item[K, V])
	delete(c.index, it.key)
	c.weight -= it.weight
}

// Remove 返回 key 是否存在过。
func (c *LRUCache[K, V]) Remove(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.index[key]
	if ok {
		c.unlink(el)
	}
	return ok
}

func (c *LRUCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{Hits: c.hits, Misses: c.misses, Len: c.order.Len(), Weight: c.weight}
}

func (c *LRUCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

func (c *LRUCache[K, V]) Weight() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.weight
}
