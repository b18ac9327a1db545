package minio

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	mu     sync.Mutex
	client *minio.Client
	bucket string
)

// NewClient 创建一个 MinIO 客户端，不做任何网络请求。
// 设置了 Region 时预签名也无需查询存储桶位置。
func NewClient(cfg *config.MinIOConfig) (*minio.Client, error) {
	c, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("无法创建 MinIO 客户端: %w", err)
	}
	return c, nil
}

// GetClient 返回共享的 MinIO 客户端。首次调用确认原始文档存储桶存在；
// 失败不缓存，下次调用会重试。
func GetClient(ctx context.Context, cfg *config.MinIOConfig, log *logger.Logger) (*minio.Client, error) {
	mu.Lock()
	defer mu.Unlock()
	if client != nil {
		return client, nil
	}

	c, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	ok, err := c.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("MinIO 初始化健康检查失败: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("MinIO 存储桶 %q 不存在", cfg.Bucket)
	}

	log.WithField("endpoint", cfg.Endpoint).WithField("bucket", cfg.Bucket).Info("成功连接到 MinIO")
	client, bucket = c, cfg.Bucket
	return client, nil
}

// HealthCheck 只检查文档存储桶，预签名账号通常没有 ListBuckets 权限。
func HealthCheck(ctx context.Context) error {
	mu.Lock()
	c, b := client, bucket
	mu.Unlock()
	if c == nil {
		return errors.New("MinIO 客户端未初始化")
	}
	if _, err := c.BucketExists(ctx, b); err != nil {
		return fmt.Errorf("MinIO 健康检查失败: %w", err)
	}
	return nil
}

// Close 丢弃共享客户端。minio-go 没有需要显式释放的连接。
func Close() {
	mu.Lock()
	client, bucket = nil, ""
	mu.Unlock()
}
