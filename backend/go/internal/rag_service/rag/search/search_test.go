package search

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(id, path string) *schema.Document {
	return &schema.Document{ID: id, Text: "text " + id, Metadata: map[string]interface{}{
		schema.MetadataKeyPath:            path,
		schema.MetadataKeyKnowledgeBaseID: "kb",
	}}
}

type fakeEmbedder struct{ err error }

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

func (f fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("not used")
}

type fakeBackend struct {
	mu        sync.Mutex
	lexical   map[schema.Field][]schema.Hit
	vector    map[schema.Field][]schema.Hit
	lexErr    error
	vecErr    error
	pages     [][]schema.Hit
	scanErr   error
	scanCalls []schema.ScanFilter
	texts     []string
}

func (f *fakeBackend) LexicalQuery(ctx context.Context, field schema.Field, text string, topK int) ([]schema.Hit, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	return f.lexical[field], f.lexErr
}

func (f *fakeBackend) VectorQuery(ctx context.Context, field schema.Field, vector []float32, topK int) ([]schema.Hit, error) {
	return f.vector[field], f.vecErr
}

func (f *fakeBackend) ScanAll(ctx context.Context, filter schema.ScanFilter, pageToken string) ([]schema.Hit, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls = append(f.scanCalls, filter)
	if f.scanErr != nil {
		return nil, "", f.scanErr
	}
	i := 0
	if pageToken != "" {
		i, _ = strconv.Atoi(pageToken)
	}
	if i >= len(f.pages) {
		return nil, "", nil
	}
	next := ""
	if i+1 < len(f.pages) {
		next = strconv.Itoa(i + 1)
	}
	return f.pages[i], next, nil
}

func TestFieldStrategy_BlendsUnnormalisedWeights(t *testing.T) {
	b := &fakeBackend{
		lexical: map[schema.Field][]schema.Hit{schema.FieldContent: {
			{Document: doc("a", "HR/A"), Score: 0.5},
			{Document: doc("b", "HR/B"), Score: 0.2},
		}},
		vector: map[schema.Field][]schema.Hit{schema.FieldContent: {
			{Document: doc("a", "HR/A"), Score: 0.4},
			{Document: doc("c", "HR/C"), Score: 0.9},
		}},
	}
	s, err := NewContentStrategy(Weights{Lexical: 2, Vector: 1}, fakeEmbedder{}, b)
	require.NoError(t, err)

	res, err := s.Search(context.Background(), schema.Contents("vacation"), 10)
	require.NoError(t, err)
	require.Len(t, res, 3)
	assert.Equal(t, "a", res[0].ID)
	assert.InDelta(t, 1.4, res[0].Score, 1e-9)
	assert.Equal(t, "c", res[1].ID)
	assert.InDelta(t, 0.9, res[1].Score, 1e-9)
	assert.Equal(t, "b", res[2].ID)
	assert.InDelta(t, 0.4, res[2].Score, 1e-9)
	for _, r := range res {
		assert.Equal(t, schema.SearchTypeContent, r.Type)
	}

	res, err = s.Search(context.Background(), schema.Contents("vacation"), 1)
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestFieldStrategy_EmptyAndErrors(t *testing.T) {
	b := &fakeBackend{}
	s, _ := NewTitleStrategy(Weights{Lexical: 1, Vector: 1}, fakeEmbedder{}, b)

	res, err := s.Search(context.Background(), schema.Titles("nothing"), 10)
	require.NoError(t, err)
	assert.Empty(t, res)

	res, err = s.Search(context.Background(), schema.Titles("   "), 10)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = s.Search(context.Background(), schema.Paths("x"), 10)
	assert.ErrorIs(t, err, schema.ErrPipelineStep)

	b.lexErr = errors.New("meili down")
	_, err = s.Search(context.Background(), schema.Titles("vacation"), 10)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)

	b.lexErr = nil
	s2, _ := NewTitleStrategy(Weights{Lexical: 1, Vector: 1}, fakeEmbedder{err: errors.New("quota")}, b)
	_, err = s2.Search(context.Background(), schema.Titles("vacation"), 10)
	assert.ErrorIs(t, err, schema.ErrEmbedding)

	_, err = NewPathStrategy(Weights{Lexical: -1}, fakeEmbedder{}, b)
	assert.Error(t, err)
}

func TestKeywordStrategy_UsesJoinedKeywords(t *testing.T) {
	b := &fakeBackend{}
	s, _ := NewKeywordStrategy(Weights{Lexical: 1, Vector: 1}, fakeEmbedder{}, b)
	_, err := s.Search(context.Background(), schema.Keywords([]string{"Vacation", "request", "vacation"}), 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"vacation request"}, b.texts)
}

func TestNewStrategies_FromConfig(t *testing.T) {
	ss, err := NewStrategies(config.SearchConfig{Weights: map[string]config.FieldWeights{
		"title": {Lexical: 3, Vector: 0},
	}}, fakeEmbedder{}, &fakeBackend{})
	require.NoError(t, err)
	require.Len(t, ss, 4)
	assert.Equal(t, schema.CriteriaTitles, ss[0].Kind())
	assert.Equal(t, Weights{Lexical: 3, Vector: 0}, ss[0].(*FieldStrategy).weights)
	assert.Equal(t, Weights{Lexical: 1, Vector: 1}, ss[1].(*FieldStrategy).weights)
	assert.Equal(t, schema.CriteriaKeywords, ss[3].Kind())
}

// stubStrategy returns canned results after a delay.
type stubStrategy struct {
	kind    schema.CriteriaKind
	results []schema.SearchResult
	delay   time.Duration
	err     error
	calls   int
	mu      sync.Mutex
}

func (s *stubStrategy) Kind() schema.CriteriaKind { return s.kind }

func (s *stubStrategy) Search(ctx context.Context, c schema.SearchCriteria, topK int) ([]schema.SearchResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	out := append([]schema.SearchResult(nil), s.results...)
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func result(id string, score float64, typ schema.SearchType) schema.SearchResult {
	return schema.SearchResult{ID: id, Score: score, Type: typ}
}

func TestFusion_MaxWins(t *testing.T) {
	f := NewFusion(
		&stubStrategy{kind: schema.CriteriaTitles, results: []schema.SearchResult{result("x", 0.4, schema.SearchTypeTitle)}},
		&stubStrategy{kind: schema.CriteriaContents, results: []schema.SearchResult{result("x", 0.9, schema.SearchTypeContent)}},
	)
	res, err := f.Search(context.Background(), []schema.SearchCriteria{schema.Titles("q"), schema.Contents("q")}, 0)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 0.9, res[0].Score)
	assert.Equal(t, schema.SearchTypeContent, res[0].Type)
}

func TestFusion_DeterministicUnderCompletionOrder(t *testing.T) {
	build := func(delays [4]time.Duration) *Fusion {
		return NewFusion(
			&stubStrategy{kind: schema.CriteriaTitles, delay: delays[0], results: []schema.SearchResult{
				result("a", 0.5, schema.SearchTypeTitle), result("b", 0.7, schema.SearchTypeTitle)}},
			&stubStrategy{kind: schema.CriteriaContents, delay: delays[1], results: []schema.SearchResult{
				result("a", 0.5, schema.SearchTypeContent), result("c", 0.7, schema.SearchTypeContent)}},
			&stubStrategy{kind: schema.CriteriaPaths, delay: delays[2], results: []schema.SearchResult{
				result("d", 0.1, schema.SearchTypePath), result("b", 0.7, schema.SearchTypePath)}},
			&stubStrategy{kind: schema.CriteriaKeywords, delay: delays[3], results: []schema.SearchResult{
				result("e", 0.7, schema.SearchTypeKeyword)}},
		)
	}
	criteria := []schema.SearchCriteria{
		schema.Titles("q"), schema.Contents("q"), schema.Paths("q"), schema.Keywords([]string{"q"}),
	}
	ms := time.Millisecond
	orders := [][4]time.Duration{
		{0, 5 * ms, 10 * ms, 15 * ms},
		{15 * ms, 10 * ms, 5 * ms, 0},
		{5 * ms, 15 * ms, 0, 10 * ms},
		{10 * ms, 0, 15 * ms, 5 * ms},
	}

	var first []schema.SearchResult
	for i, o := range orders {
		res, err := build(o).Search(context.Background(), criteria, 10)
		require.NoError(t, err)
		if i == 0 {
			first = res
			continue
		}
		assert.Equal(t, first, res, "order %d", i)
	}

	ids := make([]string, len(first))
	for i, r := range first {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"b", "c", "e", "a", "d"}, ids)
	// b ties between TITLE and PATH; a ties between TITLE and CONTENT.
	assert.Equal(t, schema.SearchTypeTitle, first[0].Type)
	assert.Equal(t, schema.SearchTypeContent, first[3].Type)
}

func TestFusion_TopKBound(t *testing.T) {
	var strategies []Strategy
	kinds := []schema.CriteriaKind{schema.CriteriaTitles, schema.CriteriaContents, schema.CriteriaPaths, schema.CriteriaKeywords}
	for k, kind := range kinds {
		var rs []schema.SearchResult
		for i := 0; i < 50; i++ {
			rs = append(rs, result(fmt.Sprintf("%d-%02d", k, i), float64(i)/50, kind.SearchType()))
		}
		strategies = append(strategies, &stubStrategy{kind: kind, results: rs})
	}
	f := NewFusion(strategies...)
	criteria := []schema.SearchCriteria{
		schema.Titles("q"), schema.Contents("q"), schema.Contents("r"), schema.Paths("q"), schema.Keywords([]string{"q"}),
	}

	res, err := f.Search(context.Background(), criteria, 0)
	require.NoError(t, err)
	assert.Len(t, res, DefaultTopK)
	for i := 1; i < len(res); i++ {
		assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score)
	}

	res, err = f.Search(context.Background(), criteria, 7)
	require.NoError(t, err)
	assert.Len(t, res, 7)
}

func TestFusion_FailFast(t *testing.T) {
	slow := &stubStrategy{kind: schema.CriteriaTitles, delay: 5 * time.Second}
	boom := schema.SearchBackendError("lexical", errors.New("down"))
	f := NewFusion(slow, &stubStrategy{kind: schema.CriteriaContents, err: boom})

	start := time.Now()
	_, err := f.Search(context.Background(), []schema.SearchCriteria{schema.Titles("q"), schema.Contents("q")}, 10)
	assert.ErrorIs(t, err, schema.ErrSearchBackend)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestFusion_EmptyAndUnknown(t *testing.T) {
	f := NewFusion(&stubStrategy{kind: schema.CriteriaTitles})
	res, err := f.Search(context.Background(), nil, 10)
	require.NoError(t, err)
	assert.Empty(t, res)

	_, err = f.Search(context.Background(), []schema.SearchCriteria{schema.Paths("q")}, 10)
	assert.ErrorIs(t, err, schema.ErrPipelineStep)
}

type recordingObserver struct {
	kinds []string
	errs  []error
}

func (r *recordingObserver) ObserveStrategy(kind string, elapsed time.Duration, results int, err error) {
	r.kinds = append(r.kinds, kind)
	r.errs = append(r.errs, err)
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	obs := &recordingObserver{}
	s := WithLogging(&stubStrategy{kind: schema.CriteriaPaths, results: []schema.SearchResult{result("a", 1, schema.SearchTypePath)}},
		logger.NewWithOutput("test", &buf), obs)

	assert.Equal(t, schema.CriteriaPaths, s.Kind())
	res, err := s.Search(context.Background(), schema.Paths("HR"), 5)
	require.NoError(t, err)
	assert.Len(t, res, 1)
	assert.Contains(t, buf.String(), "strategy search returned 1 results")
	assert.Contains(t, buf.String(), `"strategy":"paths"`)

	failing := WithLogging(&stubStrategy{kind: schema.CriteriaPaths, err: errors.New("x")}, logger.NewWithOutput("test", &buf), obs)
	_, err = failing.Search(context.Background(), schema.Paths("HR"), 5)
	assert.Error(t, err)
	assert.Contains(t, buf.String(), "strategy search failed")
	assert.Equal(t, []string{"paths", "paths"}, obs.kinds)
	assert.Nil(t, obs.errs[0])
	assert.Error(t, obs.errs[1])
}

func pageOf(n int, prefix string) []schema.Hit {
	hits := make([]schema.Hit, n)
	for i := range hits {
		hits[i] = schema.Hit{Document: doc(fmt.Sprintf("%s%d", prefix, i), fmt.Sprintf("%s/%d", prefix, i%3))}
	}
	return hits
}

func TestPaths_PaginatesUntilShortPage(t *testing.T) {
	b := &fakeBackend{pages: [][]schema.Hit{pageOf(200, "HR"), pageOf(200, "ENG"), append(pageOf(5, "OPS"), schema.Hit{Document: doc("blank", "  ")})}}
	p := NewPathEnumerator(b, logger.Discard(), 0)

	paths := p.Paths(context.Background(), schema.ScopeAll())
	assert.Equal(t, []string{"ENG/0", "ENG/1", "ENG/2", "HR/0", "HR/1", "HR/2", "OPS/0", "OPS/1", "OPS/2"}, paths)
	require.Len(t, b.scanCalls, 3)
	assert.Nil(t, b.scanCalls[0].KnowledgeBaseIDs)
	assert.Equal(t, DefaultPageSize, b.scanCalls[0].Limit)
}

func TestPaths_SubsetFiltersAndEmptyScope(t *testing.T) {
	b := &fakeBackend{pages: [][]schema.Hit{pageOf(3, "HR")}}
	p := NewPathEnumerator(b, logger.Discard(), 200)

	paths := p.Paths(context.Background(), schema.ScopeSubset("hr", "finance"))
	assert.Len(t, paths, 3)
	assert.Equal(t, []string{"finance", "hr"}, b.scanCalls[0].KnowledgeBaseIDs)

	paths = p.Paths(context.Background(), schema.ScopeSubset())
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
	assert.Len(t, b.scanCalls, 1)
}

func TestPaths_BackendErrorYieldsEmpty(t *testing.T) {
	var buf bytes.Buffer
	b := &fakeBackend{scanErr: errors.New("meili down")}
	p := NewPathEnumerator(b, logger.NewWithOutput("test", &buf), 200)

	paths := p.Paths(context.Background(), schema.ScopeAll())
	assert.NotNil(t, paths)
	assert.Empty(t, paths)
	assert.Contains(t, buf.String(), "path enumeration failed")
}

func TestLocations_KeepKnowledgeBasePerPath(t *testing.T) {
	inKB := func(id, kb, path string) schema.Hit {
		d := doc(id, path)
		d.Metadata[schema.MetadataKeyKnowledgeBaseID] = kb
		return schema.Hit{Document: d}
	}
	b := &fakeBackend{pages: [][]schema.Hit{{
		inKB("1", "hr", "Shared/Handbook"),
		inKB("2", "eng", "Shared/Handbook"),
		inKB("3", "hr", "HR/Vacation"),
		inKB("4", "hr", "HR/Vacation"),
	}}}
	p := NewPathEnumerator(b, logger.Discard(), 200)

	locs := p.Locations(context.Background(), schema.ScopeAll())
	assert.Equal(t, []Location{
		{KnowledgeBaseID: "hr", Path: "HR/Vacation"},
		{KnowledgeBaseID: "eng", Path: "Shared/Handbook"},
		{KnowledgeBaseID: "hr", Path: "Shared/Handbook"},
	}, locs)
	assert.Equal(t, []string{"HR/Vacation", "Shared/Handbook"}, p.Paths(context.Background(), schema.ScopeAll()))
}
