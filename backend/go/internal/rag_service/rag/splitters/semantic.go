package splitters

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// SemanticSplitter groups adjacent sentences while neighbouring sentence embeddings stay similar.
// A new chunk starts when cosine(i-1, i) < SimilarityThreshold or when appending sentence i
// would bring the chunk to MaxChunkSize characters or more.
type SemanticSplitter struct {
	SimilarityThreshold float64
	MaxChunkSize        int
	embedder            interfaces.EmbeddingModel
}

// NewSemanticSplitter creates a new SemanticSplitter.
func NewSemanticSplitter(embedder interfaces.EmbeddingModel, similarityThreshold float64, maxChunkSize int) (*SemanticSplitter, error) {
	if embedder == nil {
		return nil, fmt.Errorf("semantic splitter needs an embedding model")
	}
	if maxChunkSize <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSize)
	}
	return &SemanticSplitter{
		SimilarityThreshold: similarityThreshold,
		MaxChunkSize:        maxChunkSize,
		embedder:            embedder,
	}, nil
}

// Name returns the strategy name.
func (s *SemanticSplitter) Name() string { return StrategySemantic }

// Chunk embeds every sentence of the document and groups them.
func (s *SemanticSplitter) Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Document, error) {
	sentences := SplitSentences(doc.Text)
	if len(sentences) == 0 {
		return nil, nil
	}

	vectors, err := s.embedder.EmbedBatch(ctx, sentences)
	if err != nil {
		return nil, schema.EmbeddingError("semantic.embed_sentences", err)
	}
	if len(vectors) != len(sentences) {
		return nil, schema.EmbeddingError("semantic.embed_sentences",
			fmt.Errorf("got %d embeddings for %d sentences", len(vectors), len(sentences)))
	}

	groups, err := s.group(sentences, vectors)
	if err != nil {
		return nil, err
	}
	return buildChunks(doc, StrategySemantic, groups, nil), nil
}

func (s *SemanticSplitter) group(sentences []string, vectors [][]float32) ([]string, error) {
	var groups []string
	current := []string{sentences[0]}
	length := utf8.RuneCountInString(sentences[0])

	for i := 1; i < len(sentences); i++ {
		sim, err := CosineSimilarity(vectors[i-1], vectors[i])
		if err != nil {
			return nil, fmt.Errorf("sentence %d: %w", i, err)
		}
		next := length + 1 + utf8.RuneCountInString(sentences[i])
		similar := sim >= s.SimilarityThreshold && !isZero(vectors[i-1]) && !isZero(vectors[i])
		if similar && next < s.MaxChunkSize {
			current = append(current, sentences[i])
			length = next
			continue
		}
		groups = append(groups, strings.Join(current, " "))
		current = []string{sentences[i]}
		length = utf8.RuneCountInString(sentences[i])
	}
	return append(groups, strings.Join(current, " ")), nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// compile-time check to ensure SemanticSplitter implements the Chunker interface
var _ interfaces.Chunker = (*SemanticSplitter)(nil)
