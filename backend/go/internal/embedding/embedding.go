package embedding

import (
	"Jarvis_RAG/backend/go/internal/config"
	"context"
	"errors"
	"fmt"
	"strings"
)

// Embedding 把文本映射为向量。查询和索引必须使用同一个模型，维度才一致。
// 失败时返回的错误均可通过 errors.Is(err, schema.ErrEmbedding) 判断。
type Embedding interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// EmbedBatch 的结果与输入一一对应。
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType 对应配置里的 embedding.provider。
type ModelType string

const (
	OpenAI ModelType = "openai"
	Google ModelType = "gemini"
	Ollama ModelType = "ollama"
	// Hash 本地特征哈希，无需外部服务，离线开发和测试用。
	Hash ModelType = "hash"
)

var errEmptyInput = errors.New("empty input text")

// checkInput 拒绝空白文本，所有提供商共用。
func checkInput(text string) error {
	if strings.TrimSpace(text) == "" {
		return errEmptyInput
	}
	return nil
}

// NewEmdModel 根据配置创建 Embedding 模型实例。
//
// 参数:
//
//	ctx: 用于初始化需要网络握手的客户端 (gemini)。
//	cfg: Embedding 配置，Provider 取值 "gemini", "openai", "ollama", "hash"。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewEmdModel(ctx context.Context, cfg config.EmbeddingConfig) (Embedding, error) {
	switch ModelType(cfg.Provider) {
	case Google:
		return NewGoogleModel(ctx, cfg.APIKey, cfg.Model)
	case OpenAI:
		return NewOpenAIModel(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case Ollama:
		return NewOllamaModel(cfg.Model, cfg.BaseURL)
	case Hash:
		return NewHashModel(cfg.Dim), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider) // 如果提供商不支持，返回错误。
	}
}
