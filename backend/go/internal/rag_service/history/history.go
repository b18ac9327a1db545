package history

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "chat:session:"

// Store 读写会话的问答历史。
type Store interface {
	Load(ctx context.Context, sessionID string, turns int) ([]schema.ChatTurn, error)
	Append(ctx context.Context, sessionID string, turn schema.ChatTurn) error
}

// RedisHistory 把每个会话保存为一个 Redis 列表，按时间顺序追加。
type RedisHistory struct {
	rdb      *redis.Client
	maxTurns int
	ttl      time.Duration
	log      *logger.Logger
}

// NewRedisHistory 创建历史存储；maxTurns 限制列表长度，ttl 在每次写入时刷新。
func NewRedisHistory(rdb *redis.Client, maxTurns int, ttl time.Duration, log *logger.Logger) *RedisHistory {
	if maxTurns <= 0 {
		maxTurns = 6
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisHistory{rdb: rdb, maxTurns: maxTurns, ttl: ttl, log: log}
}

func key(sessionID string) string { return keyPrefix + sessionID }

// Load 返回最近的 turns 轮对话（旧的在前）。没有会话 ID 时返回空。
func (h *RedisHistory) Load(ctx context.Context, sessionID string, turns int) ([]schema.ChatTurn, error) {
	if sessionID == "" || turns <= 0 {
		return nil, nil
	}
	raw, err := h.rdb.LRange(ctx, key(sessionID), int64(-turns), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("读取会话历史失败: %w", err)
	}
	out := make([]schema.ChatTurn, 0, len(raw))
	for _, item := range raw {
		var t schema.ChatTurn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			// 单条损坏不影响其余记录
			h.log.WithField("session", sessionID).Warn(fmt.Sprintf("跳过无法解析的历史记录: %v", err))
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// Append 追加一轮对话并裁剪到 maxTurns。
func (h *RedisHistory) Append(ctx context.Context, sessionID string, turn schema.ChatTurn) error {
	if sessionID == "" {
		return nil
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("序列化会话历史失败: %w", err)
	}
	k := key(sessionID)
	pipe := h.rdb.TxPipeline()
	pipe.RPush(ctx, k, data)
	pipe.LTrim(ctx, k, int64(-h.maxTurns), -1)
	pipe.Expire(ctx, k, h.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("写入会话历史失败: %w", err)
	}
	return nil
}

// Nop 是不保存任何历史的实现，用于离线模式。
type Nop struct{}

func (Nop) Load(context.Context, string, int) ([]schema.ChatTurn, error) { return nil, nil }
func (Nop) Append(context.Context, string, schema.ChatTurn) error        { return nil }

var (
	_ Store = (*RedisHistory)(nil)
	_ Store = Nop{}
)
