package embedding

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// geminiBatch BatchEmbedContents 单次请求的上限。
const geminiBatch = 100

// GoogleModel 调用 Gemini embedding API。
// 查询和文档使用不同的 TaskType，两者仍落在同一个向量空间。
type GoogleModel struct {
	client *genai.Client
	query  *genai.EmbeddingModel
	docs   *genai.EmbeddingModel
}

func NewGoogleModel(ctx context.Context, apiKey string, modelName string) (*GoogleModel, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, schema.EmbeddingError("gemini.new_client", err)
	}
	query := client.EmbeddingModel(modelName)
	query.TaskType = genai.TaskTypeRetrievalQuery
	docs := client.EmbeddingModel(modelName)
	docs.TaskType = genai.TaskTypeRetrievalDocument
	return &GoogleModel{client: client, query: query, docs: docs}, nil
}

// Embed 用于检索时的查询文本。
func (m *GoogleModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkInput(text); err != nil {
		return nil, schema.EmbeddingError("gemini.embed", err)
	}
	res, err := m.query.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, schema.EmbeddingError("gemini.embed", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, schema.EmbeddingError("gemini.embed", fmt.Errorf("empty embedding returned"))
	}
	return res.Embedding.Values, nil
}

// EmbedBatch 用于索引时的文档分块，按 API 上限分批请求。
func (m *GoogleModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, text := range texts {
		if err := checkInput(text); err != nil {
			return nil, schema.EmbeddingError("gemini.embed_batch", err)
		}
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += geminiBatch {
		end := min(start+geminiBatch, len(texts))
		batch := m.docs.NewBatch()
		for _, text := range texts[start:end] {
			batch.AddContent(genai.Text(text))
		}
		res, err := m.docs.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, schema.EmbeddingError("gemini.embed_batch", err)
		}
		if len(res.Embeddings) != end-start {
			return nil, schema.EmbeddingError("gemini.embed_batch",
				fmt.Errorf("got %d embeddings for %d texts", len(res.Embeddings), end-start))
		}
		for _, emb := range res.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (m *GoogleModel) Close() error {
	return m.client.Close()
}
