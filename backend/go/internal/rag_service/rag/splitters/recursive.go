package splitters

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"strings"
)

// defaultSeparators are tried in order; the first one found inside the cut window wins.
var defaultSeparators = []string{"\n\n", "\n", ". ", " "}

// RecursiveSplitter cuts text into windows of at most ChunkSize characters.
// Each window after the first starts with the last ChunkOverlap characters of the previous one,
// so dropping the first ChunkOverlap characters of every chunk but the first rebuilds the text.
type RecursiveSplitter struct {
	ChunkSize             int
	ChunkOverlap          int
	MinChunkLengthToEmbed int
	MaxNumChunks          int
	separators            [][]rune
}

// NewRecursiveSplitter creates a new RecursiveSplitter.
func NewRecursiveSplitter(chunkSize, chunkOverlap, minChunkLengthToEmbed, maxNumChunks int) (*RecursiveSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	seps := make([][]rune, len(defaultSeparators))
	for i, s := range defaultSeparators {
		seps[i] = []rune(s)
	}
	return &RecursiveSplitter{
		ChunkSize:             chunkSize,
		ChunkOverlap:          chunkOverlap,
		MinChunkLengthToEmbed: minChunkLengthToEmbed,
		MaxNumChunks:          maxNumChunks,
		separators:            seps,
	}, nil
}

// Name returns the strategy name.
func (s *RecursiveSplitter) Name() string { return StrategyRecursive }

// Chunk splits the document. Text shorter than MinChunkLengthToEmbed (or blank) yields no chunks.
func (s *RecursiveSplitter) Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Document, error) {
	texts := s.SplitText(doc.Text)
	return buildChunks(doc, StrategyRecursive, texts, nil), nil
}

// SplitText returns the chunk texts for text.
func (s *RecursiveSplitter) SplitText(text string) []string {
	runes := []rune(text)
	n := len(runes)
	if strings.TrimSpace(text) == "" || n < s.MinChunkLengthToEmbed {
		return nil
	}
	if n <= s.ChunkSize {
		return []string{text}
	}

	var out []string
	start := 0
	for {
		end := start + s.ChunkSize
		if end >= n {
			end = n
		} else if cut := s.bestCut(runes, s.minCut(start), end); cut > 0 {
			end = cut
		}
		out = append(out, string(runes[start:end]))
		if end == n {
			break
		}
		if s.MaxNumChunks > 0 && len(out) >= s.MaxNumChunks {
			break
		}
		start = end - s.ChunkOverlap
	}
	return out
}

// minCut keeps separator cuts in the second half of the window and past the overlap,
// so every window advances.
func (s *RecursiveSplitter) minCut(start int) int {
	lo := start + s.ChunkSize/2
	if o := start + s.ChunkOverlap; o > lo {
		lo = o
	}
	return lo
}

// bestCut finds the position just after the highest-priority separator with lo < cut <= hi.
// It returns -1 when no separator fits, which means a hard cut at hi.
func (s *RecursiveSplitter) bestCut(runes []rune, lo, hi int) int {
	for _, sep := range s.separators {
		for i := hi - len(sep); i >= 0 && i+len(sep) > lo; i-- {
			if hasPrefixAt(runes, i, sep) {
				return i + len(sep)
			}
		}
	}
	return -1
}

func hasPrefixAt(runes []rune, i int, sep []rune) bool {
	if i+len(sep) > len(runes) {
		return false
	}
	for j, r := range sep {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}

// compile-time check to ensure RecursiveSplitter implements the Chunker interface
var _ interfaces.Chunker = (*RecursiveSplitter)(nil)
