package interfaces

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
)

// Chunker splits one document into ordered chunks.
// Implementations are pure functions of the document and their configuration.
type Chunker interface {
	Name() string
	Chunk(ctx context.Context, doc *schema.Document) ([]*schema.Document, error)
}

// EmbeddingModel turns text into a fixed-length vector.
// Failures are reported as schema.ErrEmbedding.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchBackend executes queries against the chunk index.
// Failures are reported as schema.ErrSearchBackend.
type SearchBackend interface {
	// LexicalQuery runs a keyword query restricted to one field family.
	LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error)
	// VectorQuery runs a nearest-neighbour query against the field's embeddings.
	VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error)
	// ScanAll pages through every stored chunk. An empty next token means the scan is over.
	ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error)
}

// DocumentIndexer writes chunks to an index.
type DocumentIndexer interface {
	Upsert(ctx context.Context, chunks []*schema.Document) error
	// DeleteDocuments removes every chunk whose source document is in documentIDs.
	DeleteDocuments(ctx context.Context, documentIDs []string) error
}

// PermissionFilter narrows results to what a user may see.
type PermissionFilter interface {
	AllowedScope(ctx context.Context, userEmail string) (schema.AllowedScope, error)
	Filter(ctx context.Context, results []schema.SearchResult, userEmail string) ([]schema.SearchResult, error)
}

// StreamChunk is one piece of a streamed completion. A non-nil Err ends the stream.
type StreamChunk struct {
	Text string
	Err  error
}

// LLM streams a completion for a prompt. Cancelling ctx stops production.
// The returned channel is closed when generation ends.
type LLM interface {
	StreamCompletion(ctx context.Context, prompt string) (<-chan StreamChunk, error)
}

// LinkResolver produces a download URL for a stored source object.
type LinkResolver interface {
	DownloadURL(ctx context.Context, objectKey string) (string, error)
}
