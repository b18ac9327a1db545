package milvus

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 每个集合的字段名。
const (
	FieldID        = "id"
	FieldEmbedding = "embedding"
	FieldKBID      = "knowledge_base_id"

	maxIDLength = 128
)

var (
	mu       sync.Mutex
	instance *MilvusClient
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
	log    *logger.Logger
}

// GetClient 返回共享的 Milvus 客户端；连接失败不缓存，下次调用会重试。
func GetClient(ctx context.Context, cfg *config.MilvusConfig, log *logger.Logger) (*MilvusClient, error) {
	mu.Lock()
	defer mu.Unlock()
	if instance != nil {
		return instance, nil
	}
	c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
	if err != nil {
		return nil, fmt.Errorf("无法连接到 Milvus: %w", err)
	}
	log.WithField("address", cfg.Address).Info("成功连接到 Milvus")
	instance = &MilvusClient{Client: c, Config: cfg, log: log}
	return instance, nil
}

// CollectionName 返回字段族对应的集合名: <prefix>_<field>。
func (c *MilvusClient) CollectionName(field string) string {
	return CollectionName(c.Config.CollectionPrefix, field)
}

// CollectionName 返回字段族对应的集合名。
func CollectionName(prefix, field string) string {
	return prefix + "_" + field
}

// Close 关闭连接，之后的 GetClient 会重新连接。
func (c *MilvusClient) Close() {
	mu.Lock()
	if instance == c {
		instance = nil
	}
	mu.Unlock()
	if c.Client != nil {
		c.Client.Close()
		c.log.Info("已安全关闭 Milvus 连接")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// Flush 将内存中的数据写入磁盘，使新写入的向量可被检索。
func (c *MilvusClient) Flush(ctx context.Context, collections ...string) error {
	for _, coll := range collections {
		if err := c.Client.Flush(ctx, coll, false); err != nil {
			return fmt.Errorf("刷新集合 '%s' 失败: %w", coll, err)
		}
	}
	return nil
}

// EnsureCollections 确保每个字段族的集合存在、已建索引并已加载。
func (c *MilvusClient) EnsureCollections(ctx context.Context, fields []string) error {
	for _, f := range fields {
		if err := c.ensureCollection(ctx, c.CollectionName(f)); err != nil {
			return err
		}
	}
	return nil
}

func (c *MilvusClient) ensureCollection(ctx context.Context, collName string) error {
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		sch := CollectionSchema(collName, c.Config.Dim)
		if err := c.Client.CreateCollection(ctx, sch, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合 '%s' 失败: %w", collName, err)
		}
		idx, err := BuildIndex(c.Config)
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("为集合 '%s' 创建索引失败: %w", collName, err)
		}
		c.log.WithField("collection", collName).Info("已创建 Milvus 集合")
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}
	return nil
}

// CollectionSchema 返回分块向量集合的 Schema: 主键为分块 ID。
func CollectionSchema(collName string, dim int) *entity.Schema {
	return entity.NewSchema().
		WithName(collName).
		WithDescription("chunk embeddings for one search field").
		WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLength).WithIsPrimaryKey(true)).
		WithField(entity.NewField().WithName(FieldKBID).WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(maxIDLength)).
		WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(dim)))
}

// MetricType 返回配置的度量类型，默认 COSINE。
func MetricType(cfg *config.MilvusConfig) entity.MetricType {
	if cfg.MetricType == "" {
		return entity.COSINE
	}
	return entity.MetricType(cfg.MetricType)
}

// BuildIndex 从配置构建索引实体。
func BuildIndex(cfg *config.MilvusConfig) (entity.Index, error) {
	metricType := MetricType(cfg)

	switch cfg.IndexType {
	case "IVF_FLAT":
		return entity.NewIndexIvfFlat(metricType, intParam(cfg.Params, "nlist", 128))
	case "HNSW", "":
		return entity.NewIndexHNSW(metricType, intParam(cfg.Params, "M", 8), intParam(cfg.Params, "efConstruction", 96))
	case "IVF_SQ8":
		return entity.NewIndexIvfSQ8(metricType, intParam(cfg.Params, "nlist", 128))
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", cfg.IndexType)
	}
}

// SearchParam 返回与索引类型匹配的检索参数。
func SearchParam(cfg *config.MilvusConfig) (entity.SearchParam, error) {
	switch cfg.IndexType {
	case "HNSW", "":
		return entity.NewIndexHNSWSearchParam(intParam(cfg.Params, "ef", 64))
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEXSearchParam(1)
	default:
		return entity.NewIndexIvfFlatSearchParam(intParam(cfg.Params, "nprobe", 10))
	}
}

// intParam 读取整数参数；YAML 解码得到的数字是 int。
func intParam(params map[string]interface{}, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
