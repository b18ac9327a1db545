package splitters

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Strategy names recorded in chunk metadata.
const (
	StrategyRecursive      = "recursive"
	StrategySemantic       = "semantic"
	StrategySentenceWindow = "sentence_window"
)

// ErrDimensionMismatch is returned when two vectors of different length are compared.
var ErrDimensionMismatch = errors.New("vector dimensions differ")

var sentenceBoundary = regexp.MustCompile(`[.!?]\s+`)

// SplitSentences splits text after '.', '!' or '?' followed by whitespace.
// The terminal punctuation stays with its sentence; blank sentences are dropped.
func SplitSentences(text string) []string {
	var sentences []string
	prev := 0
	for _, m := range sentenceBoundary.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[prev : m[0]+1]); s != "" {
			sentences = append(sentences, s)
		}
		prev = m[1]
	}
	if s := strings.TrimSpace(text[prev:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// CosineSimilarity compares two equal-length vectors. A zero vector has similarity 0 with anything.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), nil
}

// chunkID is stable for (document, strategy, index).
func chunkID(docID, strategy string, index int) string {
	name := fmt.Sprintf("%s#%s#%d", docID, strategy, index)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// buildChunks turns the texts into chunk documents carrying the parent's metadata.
// extra, when non-nil, supplies per-chunk metadata.
func buildChunks(doc *schema.Document, strategy string, texts []string, extra func(i int) map[string]interface{}) []*schema.Document {
	chunks := make([]*schema.Document, 0, len(texts))
	for i, text := range texts {
		md := schema.CopyMetadata(doc.Metadata)
		md[schema.MetadataKeyDocumentID] = doc.ID
		md[schema.MetadataKeyChunkIndex] = i
		md[schema.MetadataKeyTotalChunks] = len(texts)
		md[schema.MetadataKeyChunkingStrategy] = strategy
		if extra != nil {
			for k, v := range extra(i) {
				md[k] = v
			}
		}
		chunks = append(chunks, &schema.Document{
			ID:       chunkID(doc.ID, strategy, i),
			Text:     text,
			Metadata: md,
		})
	}
	return chunks
}
