package embedding

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultHashDim = 256

// HashModel 使用特征哈希把词映射到固定维度的向量。
// 结果是确定性的且经过 L2 归一化，同词集合的文本余弦相似度更高。
type HashModel struct {
	dim int
}

// NewHashModel 创建 HashModel，dim <= 0 时使用 256。
func NewHashModel(dim int) *HashModel {
	if dim <= 0 {
		dim = defaultHashDim
	}
	return &HashModel{dim: dim}
}

// Dim 返回向量维度。
func (m *HashModel) Dim() int { return m.dim }

// Embed 为单个文本生成嵌入向量。
func (m *HashModel) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.EmbeddingError("hash.embed", err)
	}
	if err := checkInput(text); err != nil {
		return nil, schema.EmbeddingError("hash.embed", err)
	}
	vec := make([]float32, m.dim)
	for _, tok := range Tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum32()
		sign := float32(1)
		if sum&0x80000000 != 0 {
			sign = -1
		}
		vec[int(sum%uint32(m.dim))] += sign
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch 逐条调用 Embed。
func (m *HashModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Tokenize 把文本切成小写的字母数字词。
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= n
	}
}
