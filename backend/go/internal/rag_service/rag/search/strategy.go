package search

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Strategy searches one field family for one kind of criteria.
type Strategy interface {
	Kind() schema.CriteriaKind
	Search(ctx context.Context, criteria schema.SearchCriteria, topK int) ([]schema.SearchResult, error)
}

// Weights blend the lexical and vector scores of a field. They are not normalised.
type Weights struct {
	Lexical float64
	Vector  float64
}

// FieldStrategy is the shared hybrid algorithm, parameterised by field and weights.
type FieldStrategy struct {
	kind     schema.CriteriaKind
	weights  Weights
	embedder interfaces.EmbeddingModel
	backend  interfaces.SearchBackend
}

// NewFieldStrategy builds the strategy for kind. Negative weights are rejected.
func NewFieldStrategy(kind schema.CriteriaKind, w Weights, embedder interfaces.EmbeddingModel, backend interfaces.SearchBackend) (*FieldStrategy, error) {
	if w.Lexical < 0 || w.Vector < 0 {
		return nil, fmt.Errorf("%s: weights must be non-negative, got lexical=%v vector=%v", kind, w.Lexical, w.Vector)
	}
	return &FieldStrategy{kind: kind, weights: w, embedder: embedder, backend: backend}, nil
}

// NewTitleStrategy searches document titles.
func NewTitleStrategy(w Weights, e interfaces.EmbeddingModel, b interfaces.SearchBackend) (*FieldStrategy, error) {
	return NewFieldStrategy(schema.CriteriaTitles, w, e, b)
}

// NewContentStrategy searches chunk bodies.
func NewContentStrategy(w Weights, e interfaces.EmbeddingModel, b interfaces.SearchBackend) (*FieldStrategy, error) {
	return NewFieldStrategy(schema.CriteriaContents, w, e, b)
}

// NewPathStrategy searches document paths.
func NewPathStrategy(w Weights, e interfaces.EmbeddingModel, b interfaces.SearchBackend) (*FieldStrategy, error) {
	return NewFieldStrategy(schema.CriteriaPaths, w, e, b)
}

// NewKeywordStrategy searches the keyword field with the joined keyword list.
func NewKeywordStrategy(w Weights, e interfaces.EmbeddingModel, b interfaces.SearchBackend) (*FieldStrategy, error) {
	return NewFieldStrategy(schema.CriteriaKeywords, w, e, b)
}

// NewStrategies builds the four field strategies from config. Missing weights default to 1/1.
func NewStrategies(cfg config.SearchConfig, e interfaces.EmbeddingModel, b interfaces.SearchBackend) ([]Strategy, error) {
	kinds := map[string]schema.CriteriaKind{
		"title":   schema.CriteriaTitles,
		"content": schema.CriteriaContents,
		"path":    schema.CriteriaPaths,
		"keyword": schema.CriteriaKeywords,
	}
	out := make([]Strategy, 0, len(config.SearchFields))
	for _, name := range config.SearchFields {
		w := Weights{Lexical: 1, Vector: 1}
		if fw, ok := cfg.Weights[name]; ok {
			w = Weights{Lexical: fw.Lexical, Vector: fw.Vector}
		}
		s, err := NewFieldStrategy(kinds[name], w, e, b)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (s *FieldStrategy) Kind() schema.CriteriaKind { return s.kind }

// Search runs one lexical and one vector query concurrently and blends them by id:
// score = lexical weight * lexical score + vector weight * vector score,
// with a missing side counting as zero.
func (s *FieldStrategy) Search(ctx context.Context, criteria schema.SearchCriteria, topK int) ([]schema.SearchResult, error) {
	if criteria.Kind() != s.kind {
		return nil, schema.PipelineStepError("search."+s.kind.String(),
			fmt.Errorf("criteria of kind %s sent to %s strategy", criteria.Kind(), s.kind))
	}
	if criteria.Empty() || topK <= 0 {
		return []schema.SearchResult{}, nil
	}
	field := s.kind.Field()
	text := criteria.Text()

	var lexical, vector []schema.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := s.backend.LexicalQuery(gctx, field, text, topK)
		if err != nil {
			return schema.SearchBackendError("search.lexical."+string(field), err)
		}
		lexical = hits
		return nil
	})
	g.Go(func() error {
		vec, err := s.embedder.Embed(gctx, text)
		if err != nil {
			return schema.EmbeddingError("search.embed."+string(field), err)
		}
		hits, err := s.backend.VectorQuery(gctx, field, vec, topK)
		if err != nil {
			return schema.SearchBackendError("search.vector."+string(field), err)
		}
		vector = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.blend(lexical, vector, topK), nil
}

func (s *FieldStrategy) blend(lexical, vector []schema.Hit, topK int) []schema.SearchResult {
	type acc struct {
		doc   *schema.Document
		score float64
	}
	byID := make(map[string]*acc, len(lexical)+len(vector))
	add := func(hits []schema.Hit, weight float64) {
		for _, h := range hits {
			if h.Document == nil {
				continue
			}
			a, ok := byID[h.Document.ID]
			if !ok {
				a = &acc{doc: h.Document}
				byID[h.Document.ID] = a
			}
			a.score += weight * h.Score
		}
	}
	add(lexical, s.weights.Lexical)
	add(vector, s.weights.Vector)

	typ := s.kind.SearchType()
	results := make([]schema.SearchResult, 0, len(byID))
	for _, a := range byID {
		results = append(results, schema.NewSearchResult(a.doc, a.score, typ))
	}
	SortResults(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// SortResults orders by descending score, ties by ascending id.
func SortResults(results []schema.SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
