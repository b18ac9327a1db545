package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultEmbedBatchSize bounds one EmbedBatch call during indexing.
const DefaultEmbedBatchSize = 64

// ChunkerSelector picks the chunking strategy of a document.
type ChunkerSelector interface {
	For(doc *schema.Document) interfaces.Chunker
}

// Progress is one indexing progress update.
type Progress struct {
	Message  string
	Progress int
}

// IndexResult summarises one indexing run.
type IndexResult struct {
	Documents int
	Chunks    int
}

// IndexingPipeline orchestrates the process of splitting, embedding and storing documents.
type IndexingPipeline struct {
	chunkers  ChunkerSelector
	embedder  interfaces.EmbeddingModel
	index     interfaces.DocumentIndexer
	log       *logger.Logger
	batchSize int
}

// NewIndexingPipeline creates a new IndexingPipeline.
func NewIndexingPipeline(
	chunkers ChunkerSelector,
	embedder interfaces.EmbeddingModel,
	index interfaces.DocumentIndexer,
	log *logger.Logger,
) *IndexingPipeline {
	return &IndexingPipeline{
		chunkers:  chunkers,
		embedder:  embedder,
		index:     index,
		log:       log,
		batchSize: DefaultEmbedBatchSize,
	}
}

// Run chunks, embeds and stores docs under knowledgeBaseID.
// The new chunks of a document replace all of its previously indexed chunks.
// progress may be nil; when set it is closed before Run returns.
func (p *IndexingPipeline) Run(ctx context.Context, knowledgeBaseID string, docs []*schema.Document, progress chan<- Progress) (IndexResult, error) {
	if progress != nil {
		defer close(progress)
	}
	report := func(msg string, pct int) {
		if progress == nil {
			return
		}
		select {
		case progress <- Progress{Message: msg, Progress: pct}:
		case <-ctx.Done():
		}
	}
	if strings.TrimSpace(knowledgeBaseID) == "" {
		return IndexResult{}, errors.New("knowledge base id is required")
	}

	p.log.Info(fmt.Sprintf("Starting indexing of %d documents into knowledge base %s", len(docs), knowledgeBaseID))
	report(fmt.Sprintf("Starting indexing of %d documents", len(docs)), 0)

	// 1. Split documents into chunks
	var chunks []*schema.Document
	documentIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		doc = prepare(doc, knowledgeBaseID)
		documentIDs = append(documentIDs, doc.ID)
		chunker := p.chunkers.For(doc)
		parts, err := chunker.Chunk(ctx, doc)
		if err != nil {
			p.log.WithError(err).WithField("document_id", doc.ID).Error("Failed to split document")
			return IndexResult{}, fmt.Errorf("chunk %s with %s: %w", doc.ID, chunker.Name(), err)
		}
		chunks = append(chunks, parts...)
	}
	report(fmt.Sprintf("Split into %d chunks", len(chunks)), 25)

	// 2. Embed every field family concurrently
	if len(chunks) > 0 {
		if err := p.embedFields(ctx, chunks); err != nil {
			p.log.WithError(err).Error("Failed to embed chunks")
			return IndexResult{}, err
		}
		report("Successfully embedded all chunks", 60)
	}

	// 3. Drop every chunk of earlier ingestions, then store the new ones
	if err := p.index.DeleteDocuments(ctx, documentIDs); err != nil {
		p.log.WithError(err).Error("Failed to remove superseded chunks")
		return IndexResult{}, err
	}
	if len(chunks) == 0 {
		p.log.Warn("No chunks produced, nothing to index")
		report("Nothing to index", 100)
		return IndexResult{Documents: len(docs)}, nil
	}
	if err := p.index.Upsert(ctx, chunks); err != nil {
		p.log.WithError(err).Error("Failed to store chunks")
		return IndexResult{}, err
	}

	res := IndexResult{Documents: len(docs), Chunks: len(chunks)}
	p.log.Info(fmt.Sprintf("Successfully indexed %d documents as %d chunks", res.Documents, res.Chunks))
	report(fmt.Sprintf("Indexed %d chunks", res.Chunks), 100)
	return res, nil
}

// prepare copies doc with the knowledge base set and a stable id.
func prepare(doc *schema.Document, knowledgeBaseID string) *schema.Document {
	out := &schema.Document{ID: doc.ID, Text: doc.Text, Metadata: schema.CopyMetadata(doc.Metadata)}
	out.Metadata[schema.MetadataKeyKnowledgeBaseID] = knowledgeBaseID
	if out.ID == "" {
		name := knowledgeBaseID + "/" + out.String(schema.MetadataKeyPath) + "/" + out.String(schema.MetadataKeyTitle)
		out.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
	}
	return out
}

// embedFields sets one vector per non-blank field text on every chunk.
// Identical texts (titles, paths) are embedded once.
func (p *IndexingPipeline) embedFields(ctx context.Context, chunks []*schema.Document) error {
	vectors := make([]map[string][]float32, len(schema.Fields))
	g, gctx := errgroup.WithContext(ctx)
	for i, field := range schema.Fields {
		i, field := i, field
		g.Go(func() error {
			var texts []string
			seen := make(map[string]bool)
			for _, c := range chunks {
				t := strings.TrimSpace(c.FieldText(field))
				if t != "" && !seen[t] {
					seen[t] = true
					texts = append(texts, t)
				}
			}
			byText := make(map[string][]float32, len(texts))
			for start := 0; start < len(texts); start += p.batchSize {
				end := start + p.batchSize
				if end > len(texts) {
					end = len(texts)
				}
				vecs, err := p.embedder.EmbedBatch(gctx, texts[start:end])
				if err != nil {
					return schema.EmbeddingError("index.embed."+string(field), err)
				}
				if len(vecs) != end-start {
					return schema.EmbeddingError("index.embed."+string(field),
						fmt.Errorf("got %d vectors for %d texts", len(vecs), end-start))
				}
				for j, v := range vecs {
					byText[texts[start+j]] = v
				}
			}
			vectors[i] = byText
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, c := range chunks {
		c.Embeddings = make(map[schema.Field][]float32, len(schema.Fields))
		for i, field := range schema.Fields {
			if v, ok := vectors[i][strings.TrimSpace(c.FieldText(field))]; ok {
				c.Embeddings[field] = v
			}
		}
	}
	return nil
}
