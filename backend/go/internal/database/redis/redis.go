package redis

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	mu     sync.Mutex
	client *redis.Client
)

// Options 把配置转换为 go-redis 的连接参数。
func Options(cfg *config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
}

// GetClient 返回进程内共享的 Redis 客户端。
// 首次成功 Ping 后缓存实例；连接失败不缓存，下次调用会重试。
func GetClient(ctx context.Context, cfg *config.RedisConfig, log *logger.Logger) (*redis.Client, error) {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		return client, nil
	}

	rdb := redis.NewClient(Options(cfg))
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("无法连接到 Redis %s: %w", cfg.Address, err)
	}
	log.WithField("address", cfg.Address).Info("成功连接到 Redis")
	client = rdb
	return client, nil
}

// Close 关闭共享连接，之后的 GetClient 会重新建立连接。
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}

// HealthCheck 检查 Redis 连接的健康状况。
func HealthCheck(ctx context.Context) error {
	mu.Lock()
	c := client
	mu.Unlock()
	if c == nil {
		return errors.New("Redis 客户端未初始化")
	}
	return c.Ping(ctx).Err()
}
