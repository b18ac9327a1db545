package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MilvusConfig 定义了 Milvus 数据库的连接和集合配置。
// 每个检索字段族 (title/content/path/keyword) 使用一个独立的集合: <collectionPrefix>_<field>。
type MilvusConfig struct {
	Address          string                 `yaml:"address"`          // Milvus 服务地址
	CollectionPrefix string                 `yaml:"collectionPrefix"` // 集合名前缀
	Dim              int                    `yaml:"dim"`              // 向量维度
	IndexType        string                 `yaml:"indexType"`        // 索引类型 (例如: "HNSW", "IVF_FLAT", "AUTOINDEX")
	MetricType       string                 `yaml:"metricType"`       // 相似度度量类型 (默认 "COSINE")
	Params           map[string]interface{} `yaml:"params"`           // 索引参数 (例如: {"nlist": 128})
}

// MeiliConfig 定义了 Meilisearch 全文索引的连接配置。
type MeiliConfig struct {
	URL    string `yaml:"url"`    // Meilisearch 服务地址
	APIKey string `yaml:"apiKey"` // API 密钥
	Index  string `yaml:"index"`  // 分块索引名称
}

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// MinIOConfig 定义了 MinIO 对象存储的连接配置。
type MinIOConfig struct {
	Endpoint   string `yaml:"endpoint"`   // MinIO 服务端点
	AccessKey  string `yaml:"accessKey"`  // 访问密钥
	SecretKey  string `yaml:"secretKey"`  // Secret 密钥
	Bucket     string `yaml:"bucket"`     // 原始文档所在的存储桶
	Region     string `yaml:"region"`     // 区域，设置后预签名无需额外请求
	Secure     bool   `yaml:"secure"`     // 是否使用HTTPS
	PresignTTL string `yaml:"presignTTL"` // 下载链接有效期 (例如: "15m")
}

// KafkaConfig 定义了 Kafka 消息队列的连接配置。
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`    // Kafka Broker 地址列表
	AuditTopic string   `yaml:"auditTopic"` // 问答审计事件主题
}

// EtcdConfig 定义了 Etcd 服务发现的连接配置。
type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"` // Etcd 节点地址列表，为空时不注册
	LeaseTTL  int64    `yaml:"leaseTTL"`  // 注册租约秒数
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Milvus      MilvusConfig `yaml:"milvus"`      // Milvus 向量库配置
	Meilisearch MeiliConfig  `yaml:"meilisearch"` // Meilisearch 全文索引配置
	Redis       RedisConfig  `yaml:"redis"`       // Redis 数据库配置
	MySQL       MySQLConfig  `yaml:"mysql"`       // MySQL 数据库配置
	MinIO       MinIOConfig  `yaml:"minio"`       // MinIO 对象存储配置
	Kafka       KafkaConfig  `yaml:"kafka"`       // Kafka 消息队列配置
	Etcd        EtcdConfig   `yaml:"etcd"`        // Etcd 服务发现配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
	HTTPAddress string `yaml:"httpAddress"` // HTTP 监听地址
	// AdvertiseAddress 是注册到 etcd 的对外地址，为空时使用 HTTPAddress。
	AdvertiseAddress string `yaml:"advertiseAddress"`
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AuthConfig 用于配置 JWT 认证。
type AuthConfig struct {
	JwtSecret  string `yaml:"jwtSecret"`  // JWT 密钥
	EmailClaim string `yaml:"emailClaim"` // 承载用户邮箱的 claim 名称
}

// ProviderConfig 描述一个模型提供商 (LLM 或 Embedding)。
type ProviderConfig struct {
	Provider string `yaml:"provider"` // 提供商 ("gemini", "openai", "ollama", "hash")
	Model    string `yaml:"model"`    // 模型名称
	APIKey   string `yaml:"apiKey"`   // API 密钥
	BaseURL  string `yaml:"baseURL"`  // 服务地址 (ollama 等)
}

// EmbeddingConfig 包含 Embedding 提供商及查询向量缓存配置。
type EmbeddingConfig struct {
	ProviderConfig `yaml:",inline"`
	Dim            int    `yaml:"dim"`           // hash 提供商的向量维度
	CacheCapacity  int    `yaml:"cacheCapacity"` // 查询向量 LRU 容量, 0 表示不缓存
	CacheTTL       string `yaml:"cacheTTL"`      // 缓存有效期
}

// FieldWeights 是单个检索字段的线性融合权重，不要求两者之和为 1。
type FieldWeights struct {
	Lexical float64 `yaml:"lexical"`
	Vector  float64 `yaml:"vector"`
}

// SearchConfig 定义了检索相关参数。
type SearchConfig struct {
	TopK     int                     `yaml:"topK"`     // 融合后的最大结果数
	PageSize int                     `yaml:"pageSize"` // 路径枚举分页大小
	Backend  string                  `yaml:"backend"`  // "hybrid" (meili+milvus) 或 "memory"
	Weights  map[string]FieldWeights `yaml:"weights"`  // 按字段 (title/content/path/keyword) 配置的权重
}

// RecursiveConfig 是递归字符分块参数。
type RecursiveConfig struct {
	ChunkSize             int `yaml:"chunkSize"`
	ChunkOverlap          int `yaml:"chunkOverlap"`
	MinChunkLengthToEmbed int `yaml:"minChunkLengthToEmbed"`
	MaxNumChunks          int `yaml:"maxNumChunks"`
}

// SemanticConfig 是语义分块参数。
type SemanticConfig struct {
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
	MaxChunkSize        int     `yaml:"maxChunkSize"`
}

// SentenceWindowConfig 是句子窗口分块参数。
type SentenceWindowConfig struct {
	WindowSize int `yaml:"windowSize"`
}

// ChunkingConfig 定义分块策略，可以按知识库或文档类型覆盖默认策略。
type ChunkingConfig struct {
	Default         string               `yaml:"default"`         // "recursive", "semantic", "sentence_window"
	ByKnowledgeBase map[string]string    `yaml:"byKnowledgeBase"` // 知识库ID -> 策略
	ByDocumentType  map[string]string    `yaml:"byDocumentType"`  // 文档类型 -> 策略
	Recursive       RecursiveConfig      `yaml:"recursive"`
	Semantic        SemanticConfig       `yaml:"semantic"`
	SentenceWindow  SentenceWindowConfig `yaml:"sentenceWindow"`
}

// PipelineConfig 定义了对话流水线参数。
type PipelineConfig struct {
	MaxPassages     int    `yaml:"maxPassages"`     // 上下文中最多保留的段落数
	MaxContextChars int    `yaml:"maxContextChars"` // 上下文字符预算
	HistoryTurns    int    `yaml:"historyTurns"`    // 读取的历史轮数
	HistoryTTL      string `yaml:"historyTTL"`      // 会话历史过期时间
	ScopeCacheTTL   string `yaml:"scopeCacheTTL"`   // 权限范围缓存时间
}

// StreamConfig 定义了输出 token 流的缓冲与背压策略。
type StreamConfig struct {
	BufferSize   int    `yaml:"bufferSize"`   // 每个订阅者的缓冲大小
	Backpressure string `yaml:"backpressure"` // "block" 或 "drop_oldest"
}

// MiddlewareConfig 包含所有中间件的配置。
type MiddlewareConfig struct {
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"`
}

// RateLimiterConfig 定义了按用户的令牌桶限流配置。
type RateLimiterConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Rate     float64 `yaml:"rate"` // 每秒速率
	Capacity int     `yaml:"capacity"`
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	Enabled          bool   `yaml:"enabled"`
	FailureThreshold uint32 `yaml:"failureThreshold"`
	SuccessThreshold uint32 `yaml:"successThreshold"`
	Timeout          string `yaml:"timeout"` // 例如: "30s"
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App        AppInfo          `yaml:"app"`
	Logger     LoggerConfig     `yaml:"logger"`
	Auth       AuthConfig       `yaml:"auth"`
	LLM        ProviderConfig   `yaml:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Search     SearchConfig     `yaml:"search"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Stream     StreamConfig     `yaml:"stream"`
	Databases  DatabaseConfigs  `yaml:"databases"`
	Middleware MiddlewareConfig `yaml:"middleware"`
}

// 检索字段族名称，同时作为权重配置的键。
var SearchFields = []string{"title", "content", "path", "keyword"}

// 可用的分块策略。
const (
	ChunkingRecursive      = "recursive"
	ChunkingSemantic       = "semantic"
	ChunkingSentenceWindow = "sentence_window"
)

// ApplyDefaults 为未配置的字段填充默认值。
func (c *AppConfig) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "RAGService"
	}
	if c.App.HTTPAddress == "" {
		c.App.HTTPAddress = ":8080"
	}
	if c.Auth.EmailClaim == "" {
		c.Auth.EmailClaim = "email"
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "hash"
	}
	if c.Embedding.Dim <= 0 {
		c.Embedding.Dim = 256
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 50
	}
	if c.Search.PageSize <= 0 {
		c.Search.PageSize = 200
	}
	if c.Search.Backend == "" {
		c.Search.Backend = "hybrid"
	}
	if c.Search.Weights == nil {
		c.Search.Weights = make(map[string]FieldWeights)
	}
	for _, f := range SearchFields {
		if _, ok := c.Search.Weights[f]; !ok {
			c.Search.Weights[f] = FieldWeights{Lexical: 1, Vector: 1}
		}
	}
	if c.Chunking.Default == "" {
		c.Chunking.Default = ChunkingRecursive
	}
	if c.Chunking.Recursive.ChunkSize <= 0 {
		c.Chunking.Recursive.ChunkSize = 1000
		if c.Chunking.Recursive.ChunkOverlap == 0 {
			c.Chunking.Recursive.ChunkOverlap = 200
		}
	}
	if c.Chunking.Recursive.ChunkOverlap < 0 {
		c.Chunking.Recursive.ChunkOverlap = 0
	}
	if c.Chunking.Semantic.SimilarityThreshold == 0 {
		c.Chunking.Semantic.SimilarityThreshold = 0.75
	}
	if c.Chunking.Semantic.MaxChunkSize <= 0 {
		c.Chunking.Semantic.MaxChunkSize = 1500
	}
	if c.Chunking.SentenceWindow.WindowSize <= 0 {
		c.Chunking.SentenceWindow.WindowSize = 2
	}
	if c.Pipeline.MaxPassages <= 0 {
		c.Pipeline.MaxPassages = 8
	}
	if c.Pipeline.MaxContextChars <= 0 {
		c.Pipeline.MaxContextChars = 6000
	}
	if c.Pipeline.HistoryTurns <= 0 {
		c.Pipeline.HistoryTurns = 6
	}
	if c.Pipeline.HistoryTTL == "" {
		c.Pipeline.HistoryTTL = "24h"
	}
	if c.Pipeline.ScopeCacheTTL == "" {
		c.Pipeline.ScopeCacheTTL = "5m"
	}
	if c.Stream.BufferSize <= 0 {
		c.Stream.BufferSize = 64
	}
	if c.Stream.Backpressure == "" {
		c.Stream.Backpressure = "block"
	}
	if c.Databases.Milvus.CollectionPrefix == "" {
		c.Databases.Milvus.CollectionPrefix = "kb_chunks"
	}
	if c.Databases.Milvus.MetricType == "" {
		c.Databases.Milvus.MetricType = "COSINE"
	}
	if c.Databases.Milvus.IndexType == "" {
		c.Databases.Milvus.IndexType = "HNSW"
	}
	if c.Databases.Milvus.Dim <= 0 {
		c.Databases.Milvus.Dim = c.Embedding.Dim
	}
	if c.Databases.Meilisearch.Index == "" {
		c.Databases.Meilisearch.Index = "kb_chunks"
	}
	if c.Databases.Kafka.AuditTopic == "" {
		c.Databases.Kafka.AuditTopic = "rag_audit"
	}
	if c.Databases.Etcd.LeaseTTL <= 0 {
		c.Databases.Etcd.LeaseTTL = 10
	}
	if c.App.AdvertiseAddress == "" {
		c.App.AdvertiseAddress = c.App.HTTPAddress
	}
	if c.Databases.MinIO.PresignTTL == "" {
		c.Databases.MinIO.PresignTTL = "15m"
	}
	if c.Middleware.CircuitBreaker.Timeout == "" {
		c.Middleware.CircuitBreaker.Timeout = "30s"
	}
	if c.Middleware.CircuitBreaker.FailureThreshold == 0 {
		c.Middleware.CircuitBreaker.FailureThreshold = 5
	}
	if c.Middleware.CircuitBreaker.SuccessThreshold == 0 {
		c.Middleware.CircuitBreaker.SuccessThreshold = 1
	}
}

// Validate 检查配置中无法通过默认值修复的错误。
func (c *AppConfig) Validate() error {
	for field, w := range c.Search.Weights {
		if w.Lexical < 0 || w.Vector < 0 {
			return fmt.Errorf("字段 '%s' 的权重不能为负数", field)
		}
	}
	rc := c.Chunking.Recursive
	if rc.ChunkOverlap >= rc.ChunkSize {
		return fmt.Errorf("chunkOverlap (%d) 必须小于 chunkSize (%d)", rc.ChunkOverlap, rc.ChunkSize)
	}
	strategies := []string{c.Chunking.Default}
	for _, s := range c.Chunking.ByKnowledgeBase {
		strategies = append(strategies, s)
	}
	for _, s := range c.Chunking.ByDocumentType {
		strategies = append(strategies, s)
	}
	for _, s := range strategies {
		switch s {
		case ChunkingRecursive, ChunkingSemantic, ChunkingSentenceWindow:
		default:
			return fmt.Errorf("不支持的分块策略: %s", s)
		}
	}
	switch c.Stream.Backpressure {
	case "block", "drop_oldest":
	default:
		return fmt.Errorf("不支持的背压策略: %s", c.Stream.Backpressure)
	}
	for name, v := range map[string]string{
		"embedding.cacheTTL":                c.Embedding.CacheTTL,
		"pipeline.historyTTL":               c.Pipeline.HistoryTTL,
		"pipeline.scopeCacheTTL":            c.Pipeline.ScopeCacheTTL,
		"databases.minio.presignTTL":        c.Databases.MinIO.PresignTTL,
		"middleware.circuitBreaker.timeout": c.Middleware.CircuitBreaker.Timeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s 不是合法的时长: %q", name, v)
		}
	}
	switch c.Search.Backend {
	case "hybrid", "memory":
	default:
		return fmt.Errorf("不支持的检索后端: %s", c.Search.Backend)
	}
	return nil
}

// applyEnv 使用环境变量覆盖密钥类配置。
func (c *AppConfig) applyEnv() {
	if v := os.Getenv("JARVIS_JWT_SECRET"); v != "" {
		c.Auth.JwtSecret = v
	}
	if v := os.Getenv("JARVIS_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("JARVIS_EMBEDDING_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
}

// Parse 解析 YAML 内容，填充默认值并校验。
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	cfg.applyEnv()
	cfg.ApplyDefaults()
	cfg.Chunking.Default = strings.ToLower(cfg.Chunking.Default)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	return &cfg, nil
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
func LoadConfig(path string) (*AppConfig, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	return Parse(yamlFile)
}

// Duration 解析形如 "30s" 的时长字符串，为空或非法时返回 def。
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
