package splitters

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"fmt"
)

// Factory picks a chunking strategy per document: a knowledge-base override wins over a
// document-type override, which wins over the default.
type Factory struct {
	def        interfaces.Chunker
	byKB       map[string]interfaces.Chunker
	byDocType  map[string]interfaces.Chunker
	strategies map[string]interfaces.Chunker
}

// NewFactory builds every strategy named in cfg. The embedder is only needed when a
// semantic strategy is configured.
func NewFactory(cfg config.ChunkingConfig, embedder interfaces.EmbeddingModel) (*Factory, error) {
	f := &Factory{
		byKB:       make(map[string]interfaces.Chunker),
		byDocType:  make(map[string]interfaces.Chunker),
		strategies: make(map[string]interfaces.Chunker),
	}

	var err error
	if f.def, err = f.strategy(cfg, cfg.Default, embedder); err != nil {
		return nil, err
	}
	for kb, name := range cfg.ByKnowledgeBase {
		if f.byKB[kb], err = f.strategy(cfg, name, embedder); err != nil {
			return nil, fmt.Errorf("knowledge base %s: %w", kb, err)
		}
	}
	for docType, name := range cfg.ByDocumentType {
		if f.byDocType[docType], err = f.strategy(cfg, name, embedder); err != nil {
			return nil, fmt.Errorf("document type %s: %w", docType, err)
		}
	}
	return f, nil
}

func (f *Factory) strategy(cfg config.ChunkingConfig, name string, embedder interfaces.EmbeddingModel) (interfaces.Chunker, error) {
	if c, ok := f.strategies[name]; ok {
		return c, nil
	}
	var (
		c   interfaces.Chunker
		err error
	)
	switch name {
	case config.ChunkingRecursive:
		rc := cfg.Recursive
		c, err = NewRecursiveSplitter(rc.ChunkSize, rc.ChunkOverlap, rc.MinChunkLengthToEmbed, rc.MaxNumChunks)
	case config.ChunkingSemantic:
		c, err = NewSemanticSplitter(embedder, cfg.Semantic.SimilarityThreshold, cfg.Semantic.MaxChunkSize)
	case config.ChunkingSentenceWindow:
		c, err = NewSentenceWindowSplitter(cfg.SentenceWindow.WindowSize)
	default:
		return nil, fmt.Errorf("unsupported chunking strategy: %s", name)
	}
	if err != nil {
		return nil, err
	}
	f.strategies[name] = c
	return c, nil
}

// For returns the chunker to use for doc.
func (f *Factory) For(doc *schema.Document) interfaces.Chunker {
	if c, ok := f.byKB[doc.String(schema.MetadataKeyKnowledgeBaseID)]; ok {
		return c
	}
	if c, ok := f.byDocType[doc.String(schema.MetadataKeyType)]; ok {
		return c
	}
	return f.def
}
