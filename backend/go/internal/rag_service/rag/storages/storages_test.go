package storages

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/docstore"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/storages/vectorstore"
	"Jarvis_RAG/backend/go/pkg/circuitbreaker"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memLexical adapts the in-memory store to LexicalIndex.
type memLexical struct {
	*docstore.InMemoryDocStore
	upsertErr error
}

func (m *memLexical) all(ctx context.Context) []*schema.Document {
	page, _, _ := m.ScanAll(ctx, schema.ScanFilter{Limit: 1000}, "")
	docs := make([]*schema.Document, 0, len(page))
	for _, h := range page {
		docs = append(docs, h.Document)
	}
	return docs
}

func (m *memLexical) Documents(ctx context.Context, ids []string) (map[string]*schema.Document, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	out := make(map[string]*schema.Document)
	for _, doc := range m.all(ctx) {
		if want[doc.ID] {
			out[doc.ID] = doc
		}
	}
	return out, nil
}

func (m *memLexical) ChunkIDs(ctx context.Context, documentIDs []string) ([]string, error) {
	parents := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		parents[id] = true
	}
	var ids []string
	for _, doc := range m.all(ctx) {
		if parents[doc.String(schema.MetadataKeyDocumentID)] {
			ids = append(ids, doc.ID)
		}
	}
	return ids, nil
}

func (m *memLexical) Upsert(ctx context.Context, chunks []*schema.Document) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	return m.InMemoryDocStore.Upsert(ctx, chunks)
}

type fakeVectors struct {
	hits     []vectorstore.IDHit
	err      error
	upserted int
	deleted  []string
}

func (f *fakeVectors) Query(ctx context.Context, field schema.Field, vector []float32, topK int) ([]vectorstore.IDHit, error) {
	return f.hits, f.err
}

func (f *fakeVectors) Upsert(ctx context.Context, chunks []*schema.Document) error {
	f.upserted += len(chunks)
	return f.err
}

func (f *fakeVectors) Delete(ctx context.Context, chunkIDs []string) error {
	f.deleted = append(f.deleted, chunkIDs...)
	return f.err
}

func newHybrid(t *testing.T, vec *fakeVectors) (*Hybrid, *memLexical) {
	t.Helper()
	lex := &memLexical{InMemoryDocStore: docstore.NewInMemoryDocStore()}
	require.NoError(t, lex.InMemoryDocStore.Upsert(context.Background(), []*schema.Document{
		{ID: "a", Text: "vacation policy", Metadata: map[string]interface{}{schema.MetadataKeyDocumentID: "vac"}},
		{ID: "b", Text: "payroll", Metadata: map[string]interface{}{schema.MetadataKeyDocumentID: "pay"}},
	}))
	return NewHybrid(lex, vec), lex
}

func TestHybrid_VectorQueryLoadsBodiesInOrder(t *testing.T) {
	h, _ := newHybrid(t, &fakeVectors{hits: []vectorstore.IDHit{
		{ID: "b", Score: 0.9}, {ID: "gone", Score: 0.8}, {ID: "a", Score: 0.4},
	}})

	hits, err := h.VectorQuery(context.Background(), schema.FieldContent, []float32{1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].Document.ID)
	assert.Equal(t, 0.9, hits[0].Score)
	assert.Equal(t, "a", hits[1].Document.ID)
}

func TestHybrid_VectorErrorIsBackendError(t *testing.T) {
	h, _ := newHybrid(t, &fakeVectors{err: errors.New("milvus down")})
	_, err := h.VectorQuery(context.Background(), schema.FieldContent, []float32{1}, 3)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)
}

func TestHybrid_LexicalAndScanDelegate(t *testing.T) {
	h, _ := newHybrid(t, &fakeVectors{})
	hits, err := h.LexicalQuery(context.Background(), schema.FieldContent, "vacation", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Document.ID)

	page, next, err := h.ScanAll(context.Background(), schema.ScanFilter{}, "")
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Empty(t, next)
}

func TestHybrid_UpsertStopsOnLexicalFailure(t *testing.T) {
	vec := &fakeVectors{}
	h, lex := newHybrid(t, vec)
	docs := []*schema.Document{{ID: "c", Text: "new"}}

	require.NoError(t, h.Upsert(context.Background(), docs))
	assert.Equal(t, 1, vec.upserted)

	lex.upsertErr = errors.New("meili down")
	err := h.Upsert(context.Background(), docs)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)
	assert.Equal(t, 1, vec.upserted)
}

func TestHybrid_DeleteDocumentsClearsBothIndexes(t *testing.T) {
	vec := &fakeVectors{}
	h, lex := newHybrid(t, vec)

	require.NoError(t, h.DeleteDocuments(context.Background(), []string{"vac"}))
	assert.Equal(t, []string{"a"}, vec.deleted)
	assert.Equal(t, 1, lex.Len())

	vec.err = errors.New("milvus down")
	err := h.DeleteDocuments(context.Background(), []string{"pay"})
	assert.ErrorIs(t, err, schema.ErrSearchBackend)
	assert.Equal(t, 1, lex.Len())
}

func TestBreakerBackend_OpensAfterFailures(t *testing.T) {
	h, _ := newHybrid(t, &fakeVectors{err: errors.New("milvus down")})
	b := NewBreakerBackend(h, circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsSuccessful:     IgnoreCancellation,
	}))

	_, err := b.VectorQuery(context.Background(), schema.FieldContent, []float32{1}, 3)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)

	_, err = b.LexicalQuery(context.Background(), schema.FieldContent, "vacation", 5)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)

	_, _, err = b.ScanAll(context.Background(), schema.ScanFilter{}, "")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
}

func TestBreakerBackend_PassesThroughAndIgnoresCancel(t *testing.T) {
	h, _ := newHybrid(t, &fakeVectors{})
	cb := circuitbreaker.NewWithSettings(circuitbreaker.Settings{
		FailureThreshold: 1,
		Timeout:          time.Hour,
		IsSuccessful:     IgnoreCancellation,
	})
	b := NewBreakerBackend(h, cb)

	page, _, err := b.ScanAll(context.Background(), schema.ScanFilter{Limit: 1}, "")
	require.NoError(t, err)
	assert.Len(t, page, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.LexicalQuery(ctx, schema.FieldContent, "vacation", 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, circuitbreaker.Closed, cb.State())
}
