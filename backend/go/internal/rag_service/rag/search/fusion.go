package search

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// DefaultTopK bounds fused results when the caller passes no limit.
const DefaultTopK = 50

// Fusion fans a request out to one strategy per criteria and merges the results.
type Fusion struct {
	strategies map[schema.CriteriaKind]Strategy
}

// NewFusion registers strategies by kind. A later strategy of the same kind replaces an earlier one.
func NewFusion(strategies ...Strategy) *Fusion {
	m := make(map[schema.CriteriaKind]Strategy, len(strategies))
	for _, s := range strategies {
		m[s.Kind()] = s
	}
	return &Fusion{strategies: m}
}

// Search runs every criteria concurrently with the same topK, keeps the highest
// score per id along with the type that produced it, sorts by score desc then id asc
// and truncates to topK (DefaultTopK when topK <= 0).
// The first strategy error cancels the rest and is returned.
func (f *Fusion) Search(ctx context.Context, criteria []schema.SearchCriteria, topK int) ([]schema.SearchResult, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if len(criteria) == 0 {
		return []schema.SearchResult{}, nil
	}
	for _, c := range criteria {
		if _, ok := f.strategies[c.Kind()]; !ok {
			return nil, schema.PipelineStepError("fusion", fmt.Errorf("no strategy for %s criteria", c.Kind()))
		}
	}

	// 每个 criteria 写自己的槽位，合并在全部完成后按固定顺序进行。
	slots := make([][]schema.SearchResult, len(criteria))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range criteria {
		i, c := i, c
		strategy := f.strategies[c.Kind()]
		g.Go(func() error {
			res, err := strategy.Search(gctx, c, topK)
			if err != nil {
				return err
			}
			slots[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return Merge(topK, slots...), nil
}

// Merge keeps the max score per id. On an exact tie the type that precedes wins,
// so the outcome does not depend on slot order.
func Merge(topK int, lists ...[]schema.SearchResult) []schema.SearchResult {
	best := make(map[string]schema.SearchResult)
	for _, list := range lists {
		for _, r := range list {
			cur, ok := best[r.ID]
			if !ok || r.Score > cur.Score || (r.Score == cur.Score && r.Type.Precedes(cur.Type)) {
				best[r.ID] = r
			}
		}
	}
	out := make([]schema.SearchResult, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	SortResults(out)
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}
