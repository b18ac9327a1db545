package permissions

import (
	"Jarvis_RAG/backend/go/internal/models"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	grants []Grant
	err    error
	calls  int
}

func (s *countingSource) GrantsFor(_ context.Context, _ string) ([]Grant, error) {
	s.calls++
	return s.grants, s.err
}

type fakeLister struct {
	rows []*models.KBPermissionGrant
}

func (f fakeLister) ListGrantsByEmail(_ context.Context, _ string) ([]*models.KBPermissionGrant, error) {
	return f.rows, nil
}

func results() []schema.SearchResult {
	return []schema.SearchResult{
		{ID: "1", KnowledgeBaseID: "hr", Path: "HR/Policies/Vacation"},
		{ID: "2", KnowledgeBaseID: "hr", Path: "HR/Payroll/Salaries"},
		{ID: "3", KnowledgeBaseID: "eng", Path: "Engineering/Onboarding"},
	}
}

func ids(rs []schema.SearchResult) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func TestAllowedScope(t *testing.T) {
	src := StaticSource{
		"alice@corp.com":  {{KnowledgeBaseID: "hr"}, {KnowledgeBaseID: "eng", PathPattern: "Engineering/**"}},
		"root@corp.com":   {{KnowledgeBaseID: "*"}},
		"nobody@corp.com": {},
	}
	f := NewFilter(src, logger.Discard())
	ctx := context.Background()

	scope, err := f.AllowedScope(ctx, "Alice@Corp.com ")
	require.NoError(t, err)
	assert.Equal(t, []string{"eng", "hr"}, scope.IDs())

	scope, err = f.AllowedScope(ctx, "root@corp.com")
	require.NoError(t, err)
	assert.True(t, scope.IsAll())

	scope, err = f.AllowedScope(ctx, "nobody@corp.com")
	require.NoError(t, err)
	assert.True(t, scope.IsEmpty())

	scope, err = f.AllowedScope(ctx, "")
	require.NoError(t, err)
	assert.True(t, scope.IsEmpty())
	assert.False(t, scope.IsAll())
}

func TestFilter_KnowledgeBaseAndPathPatterns(t *testing.T) {
	src := StaticSource{
		"alice@corp.com": {{KnowledgeBaseID: "hr", PathPattern: "HR/Policies/**"}},
		"bob@corp.com":   {{KnowledgeBaseID: "hr"}, {KnowledgeBaseID: "eng", PathPattern: "Engineering/*"}},
		"*":              {{KnowledgeBaseID: "*", PathPattern: "Engineering/**"}},
	}
	f := NewFilter(src, logger.Discard())
	ctx := context.Background()

	out, err := f.Filter(ctx, results(), "alice@corp.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(out))

	out, err = f.Filter(ctx, results(), "bob@corp.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, ids(out))

	out, err = f.Filter(ctx, results(), "guest@corp.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, ids(out))

	out, err = f.Filter(ctx, results(), "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFilter_SourceErrorIsPermissionError(t *testing.T) {
	f := NewFilter(&countingSource{err: errors.New("db down")}, logger.Discard())

	_, err := f.Filter(context.Background(), results(), "a@b.c")
	assert.ErrorIs(t, err, schema.ErrPermission)

	scope, err := f.AllowedScope(context.Background(), "a@b.c")
	assert.ErrorIs(t, err, schema.ErrPermission)
	assert.True(t, scope.IsEmpty())
}

func TestStoreSource(t *testing.T) {
	src := NewStoreSource(fakeLister{rows: []*models.KBPermissionGrant{
		{Email: "a@b.c", KnowledgeBaseID: "hr", PathPattern: "HR/**"},
	}})
	grants, err := src.GrantsFor(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, []Grant{{KnowledgeBaseID: "hr", PathPattern: "HR/**"}}, grants)
}

func TestCachedSource(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	next := &countingSource{grants: []Grant{{KnowledgeBaseID: "hr"}}}
	c := NewCachedSource(next, rdb, time.Minute, logger.Discard())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		grants, err := c.GrantsFor(ctx, "a@b.c")
		require.NoError(t, err)
		assert.Equal(t, []Grant{{KnowledgeBaseID: "hr"}}, grants)
	}
	assert.Equal(t, 1, next.calls)
	assert.True(t, mr.Exists(grantKeyPrefix+"a@b.c"))

	mr.FastForward(2 * time.Minute)
	_, err := c.GrantsFor(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	require.NoError(t, c.Invalidate(ctx, "A@B.C"))
	_, err = c.GrantsFor(ctx, "a@b.c")
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCachedSource_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	next := &countingSource{grants: []Grant{{KnowledgeBaseID: "hr"}}}
	c := NewCachedSource(next, rdb, time.Minute, logger.Discard())
	grants, err := c.GrantsFor(context.Background(), "a@b.c")
	require.NoError(t, err)
	assert.Len(t, grants, 1)
	assert.Equal(t, 1, next.calls)
}
