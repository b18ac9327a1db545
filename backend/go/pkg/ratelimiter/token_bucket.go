package ratelimiter

import (
	"math"
	"sync"
	"time"
)

// Limiter 是单个令牌桶对外暴露的能力。
type Limiter interface {
	Allow() bool
	Take() (bool, time.Duration)
}

// TokenBucket 令牌桶：按 rate 匀速补充，最多攒 capacity 个，允许突发。
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64 // 每秒补充的令牌数
	capacity float64
	tokens   float64
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket 创建一个满桶。
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return newTokenBucket(rate, capacity, time.Now)
}

func newTokenBucket(rate float64, capacity int, now func() time.Time) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		last:     now(),
		now:      now,
	}
}

// Allow 尝试取一个令牌。
func (tb *TokenBucket) Allow() bool {
	ok, _ := tb.Take()
	return ok
}

// Take 尝试取一个令牌；取不到时返回下一个令牌到达前需要等待的时间。
// rate 为 0 时桶不会再补充，等待时间为 math.MaxInt64。
func (tb *TokenBucket) Take() (bool, time.Duration) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	if elapsed := now.Sub(tb.last); elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed.Seconds()*tb.rate)
		tb.last = now
	}
	if tb.tokens >= 1 {
		tb.tokens--
		return true, 0
	}
	if tb.rate <= 0 {
		return false, time.Duration(math.MaxInt64)
	}
	missing := 1 - tb.tokens
	return false, time.Duration(missing / tb.rate * float64(time.Second))
}

var _ Limiter = (*TokenBucket)(nil)
