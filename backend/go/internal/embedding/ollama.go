package embedding

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	ollama "github.com/ollama/ollama/api"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	// ollamaBatch 单次 /api/embed 请求的最大文本数，索引大文档时分批发送。
	ollamaBatch = 32
)

// OllamaModel 通过本地 Ollama 的 /api/embed 生成向量。
type OllamaModel struct {
	client *ollama.Client
	model  string
}

// NewOllamaModel baseURL 为空时连接本机默认端口。
func NewOllamaModel(model, baseURL string) (*OllamaModel, error) {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base URL %q: %w", baseURL, err)
	}
	return &OllamaModel{
		client: ollama.NewClient(u, &http.Client{Timeout: 2 * time.Minute}),
		model:  model,
	}, nil
}

func (m *OllamaModel) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch 超长文本由服务端截断，不报错。
func (m *OllamaModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if err := checkInput(text); err != nil {
			return nil, schema.EmbeddingError("ollama.embed", err)
		}
	}
	truncate := true
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += ollamaBatch {
		end := min(start+ollamaBatch, len(texts))
		resp, err := m.client.Embed(ctx, &ollama.EmbedRequest{
			Model:    m.model,
			Input:    texts[start:end],
			Truncate: &truncate,
		})
		if err != nil {
			return nil, schema.EmbeddingError("ollama.embed", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, schema.EmbeddingError("ollama.embed",
				fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), end-start))
		}
		out = append(out, resp.Embeddings...)
	}
	return out, nil
}
