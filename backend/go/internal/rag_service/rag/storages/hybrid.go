package storages

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/vectorstore"
	"context"
)

// LexicalIndex stores full chunks and answers keyword queries.
type LexicalIndex interface {
	interfaces.DocumentIndexer
	ChunkIDs(ctx context.Context, documentIDs []string) ([]string, error)
	LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error)
	ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error)
	Documents(ctx context.Context, ids []string) (map[string]*schema.Document, error)
}

// VectorIndex stores per-field vectors keyed by chunk id.
type VectorIndex interface {
	Upsert(ctx context.Context, chunks []*schema.Document) error
	Delete(ctx context.Context, chunkIDs []string) error
	Query(ctx context.Context, field schema.Field, vector []float32, topK int) ([]vectorstore.IDHit, error)
}

// Hybrid answers lexical queries and scans from the lexical index and
// vector queries from the vector index, loading chunk bodies by id.
type Hybrid struct {
	lexical LexicalIndex
	vectors VectorIndex
}

// NewHybrid composes the two indexes.
func NewHybrid(lexical LexicalIndex, vectors VectorIndex) *Hybrid {
	return &Hybrid{lexical: lexical, vectors: vectors}
}

func (h *Hybrid) LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error) {
	return h.lexical.LexicalQuery(ctx, field, text, topK)
}

// VectorQuery keeps the vector index order; ids missing from the lexical index are dropped.
func (h *Hybrid) VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error) {
	idHits, err := h.vectors.Query(ctx, field, vector, topK)
	if err != nil {
		return nil, schema.SearchBackendError("hybrid.vector", err)
	}
	if len(idHits) == 0 {
		return nil, nil
	}
	ids := make([]string, len(idHits))
	for i, hit := range idHits {
		ids[i] = hit.ID
	}
	docs, err := h.lexical.Documents(ctx, ids)
	if err != nil {
		return nil, schema.SearchBackendError("hybrid.vector", err)
	}
	hits := make([]schema.Hit, 0, len(idHits))
	for _, hit := range idHits {
		if doc, ok := docs[hit.ID]; ok {
			hits = append(hits, schema.Hit{Document: doc, Score: hit.Score})
		}
	}
	return hits, nil
}

func (h *Hybrid) ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error) {
	return h.lexical.ScanAll(ctx, filter, pageToken)
}

// Upsert writes bodies first so a vector hit can always be loaded.
func (h *Hybrid) Upsert(ctx context.Context, chunks []*schema.Document) error {
	if err := h.lexical.Upsert(ctx, chunks); err != nil {
		return schema.SearchBackendError("hybrid.upsert", err)
	}
	if err := h.vectors.Upsert(ctx, chunks); err != nil {
		return schema.SearchBackendError("hybrid.upsert", err)
	}
	return nil
}

// DeleteDocuments drops the vectors of the documents' chunks, then the chunk bodies.
func (h *Hybrid) DeleteDocuments(ctx context.Context, documentIDs []string) error {
	if len(documentIDs) == 0 {
		return nil
	}
	ids, err := h.lexical.ChunkIDs(ctx, documentIDs)
	if err != nil {
		return schema.SearchBackendError("hybrid.delete", err)
	}
	if err := h.vectors.Delete(ctx, ids); err != nil {
		return schema.SearchBackendError("hybrid.delete", err)
	}
	if err := h.lexical.DeleteDocuments(ctx, documentIDs); err != nil {
		return schema.SearchBackendError("hybrid.delete", err)
	}
	return nil
}

var (
	_ interfaces.SearchBackend   = (*Hybrid)(nil)
	_ interfaces.DocumentIndexer = (*Hybrid)(nil)
)
