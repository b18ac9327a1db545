package docstore

import (
	"Jarvis_RAG/backend/go/internal/embedding"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"sync"
)

// InMemoryDocStore is a thread-safe, in-memory chunk index.
// Lexical scores are the fraction of distinct query terms found in the field;
// vector scores are cosine similarity against the stored field embedding.
type InMemoryDocStore struct {
	mu    sync.RWMutex
	docs  map[string]*schema.Document
	order []string // ids in insertion order, for stable scans
}

// NewInMemoryDocStore creates a new instance of InMemoryDocStore.
func NewInMemoryDocStore() *InMemoryDocStore {
	return &InMemoryDocStore{
		docs: make(map[string]*schema.Document),
	}
}

// Upsert adds chunks, replacing any with the same id.
func (s *InMemoryDocStore) Upsert(ctx context.Context, chunks []*schema.Document) error {
	if err := ctx.Err(); err != nil {
		return schema.SearchBackendError("memory.upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, doc := range chunks {
		if doc == nil || doc.ID == "" {
			return schema.SearchBackendError("memory.upsert", fmt.Errorf("chunk without id"))
		}
		if _, ok := s.docs[doc.ID]; !ok {
			s.order = append(s.order, doc.ID)
		}
		s.docs[doc.ID] = doc
	}
	return nil
}

// DeleteDocuments drops every chunk cut from one of documentIDs.
func (s *InMemoryDocStore) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	if err := ctx.Err(); err != nil {
		return schema.SearchBackendError("memory.delete", err)
	}
	if len(documentIDs) == 0 {
		return nil
	}
	parents := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		parents[id] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if parents[s.docs[id].String(schema.MetadataKeyDocumentID)] {
			delete(s.docs, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

// Len returns the number of stored chunks.
func (s *InMemoryDocStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// LexicalQuery scores every chunk by query-term coverage of the field text.
func (s *InMemoryDocStore) LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.SearchBackendError("memory.lexical", err)
	}
	terms := distinct(embedding.Tokenize(text))
	if len(terms) == 0 || topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []schema.Hit
	for _, id := range s.order {
		doc := s.docs[id]
		have := make(map[string]bool)
		for _, tok := range embedding.Tokenize(doc.FieldText(field)) {
			have[tok] = true
		}
		matched := 0
		for _, t := range terms {
			if have[t] {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, schema.Hit{Document: doc, Score: float64(matched) / float64(len(terms))})
	}
	return top(hits, topK), nil
}

// VectorQuery ranks chunks by cosine similarity of their field embedding.
// Chunks without an embedding for the field are skipped.
func (s *InMemoryDocStore) VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error) {
	if err := ctx.Err(); err != nil {
		return nil, schema.SearchBackendError("memory.vector", err)
	}
	if len(vector) == 0 || topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []schema.Hit
	for _, id := range s.order {
		doc := s.docs[id]
		v := doc.Embeddings[field]
		if len(v) == 0 {
			continue
		}
		if len(v) != len(vector) {
			return nil, schema.SearchBackendError("memory.vector",
				fmt.Errorf("dimension mismatch: index %d, query %d", len(v), len(vector)))
		}
		score := cosine(v, vector)
		if score <= 0 {
			continue
		}
		hits = append(hits, schema.Hit{Document: doc, Score: score})
	}
	return top(hits, topK), nil
}

// ScanAll pages through chunks in insertion order. The page token is the offset.
func (s *InMemoryDocStore) ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", schema.SearchBackendError("memory.scan", err)
	}
	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, "", schema.SearchBackendError("memory.scan", fmt.Errorf("bad page token %q", pageToken))
		}
		offset = n
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	var allowed map[string]bool
	if filter.KnowledgeBaseIDs != nil {
		allowed = make(map[string]bool, len(filter.KnowledgeBaseIDs))
		for _, id := range filter.KnowledgeBaseIDs {
			allowed[id] = true
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var matching []*schema.Document
	for _, id := range s.order {
		doc := s.docs[id]
		if allowed != nil && !allowed[doc.String(schema.MetadataKeyKnowledgeBaseID)] {
			continue
		}
		matching = append(matching, doc)
	}
	if offset >= len(matching) {
		return nil, "", nil
	}
	end := offset + limit
	next := strconv.Itoa(end)
	if end >= len(matching) {
		end = len(matching)
		next = ""
	}
	page := make([]schema.Hit, 0, end-offset)
	for _, doc := range matching[offset:end] {
		page = append(page, schema.Hit{Document: doc})
	}
	return page, next, nil
}

func distinct(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// top sorts by score desc then id asc and keeps k.
func top(hits []schema.Hit, k int) []schema.Hit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Document.ID < hits[j].Document.ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// compile-time checks
var (
	_ interfaces.SearchBackend   = (*InMemoryDocStore)(nil)
	_ interfaces.DocumentIndexer = (*InMemoryDocStore)(nil)
)
