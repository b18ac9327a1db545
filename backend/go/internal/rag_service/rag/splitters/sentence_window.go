package splitters

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"strings"
)

// SentenceWindowSplitter emits one chunk per sentence. The chunk text is what gets embedded;
// the windowContext metadata (the sentence and WindowSize neighbours on each side) is what
// gets shown to the model.
type SentenceWindowSplitter struct {
	WindowSize int
}

// NewSentenceWindowSplitter creates a new SentenceWindowSplitter.
func NewSentenceWindowSplitter(windowSize int) (*SentenceWindowSplitter, error) {
	if windowSize < 0 {
		return nil, fmt.Errorf("window size must not be negative, got %d", windowSize)
	}
	return &SentenceWindowSplitter{WindowSize: windowSize}, nil
}

// Name returns the strategy name.
func (s *SentenceWindowSplitter) Name() string { return StrategySentenceWindow }

// Chunk splits the document into sentences.
func (s *SentenceWindowSplitter) Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Document, error) {
	sentences := SplitSentences(doc.Text)
	if len(sentences) == 0 {
		return nil, nil
	}
	return buildChunks(doc, StrategySentenceWindow, sentences, func(i int) map[string]interface{} {
		lo := i - s.WindowSize
		if lo < 0 {
			lo = 0
		}
		hi := i + s.WindowSize + 1
		if hi > len(sentences) {
			hi = len(sentences)
		}
		return map[string]interface{}{
			schema.MetadataKeyWindowContext: strings.Join(sentences[lo:hi], " "),
		}
	}), nil
}

// compile-time check to ensure SentenceWindowSplitter implements the Chunker interface
var _ interfaces.Chunker = (*SentenceWindowSplitter)(nil)
