package history

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistory(t *testing.T, maxTurns int) (*RedisHistory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisHistory(rdb, maxTurns, time.Hour, logger.Discard()), mr
}

func TestRedisHistory_AppendAndLoad(t *testing.T) {
	h, _ := newHistory(t, 3)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		require.NoError(t, h.Append(ctx, "s1", schema.ChatTurn{
			Question: fmt.Sprintf("q%d", i),
			Answer:   fmt.Sprintf("a%d", i),
		}))
	}

	all, err := h.Load(ctx, "s1", 10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "q2", all[0].Question)
	assert.Equal(t, "a4", all[2].Answer)

	last, err := h.Load(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "q4", last[0].Question)
}

func TestRedisHistory_ExpiresAndSkipsBadRecords(t *testing.T) {
	h, mr := newHistory(t, 5)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "s1", schema.ChatTurn{Question: "q", Answer: "a"}))
	assert.Equal(t, time.Hour, mr.TTL(key("s1")))

	_, err := mr.RPush(key("s1"), "{not json")
	require.NoError(t, err)
	turns, err := h.Load(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Len(t, turns, 1)

	mr.FastForward(2 * time.Hour)
	turns, err = h.Load(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestRedisHistory_NoSession(t *testing.T) {
	h, mr := newHistory(t, 5)
	ctx := context.Background()

	require.NoError(t, h.Append(ctx, "", schema.ChatTurn{Question: "q"}))
	assert.Empty(t, mr.Keys())
	turns, err := h.Load(ctx, "", 5)
	require.NoError(t, err)
	assert.Nil(t, turns)
}

func TestRedisHistory_DownReturnsError(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	h := NewRedisHistory(rdb, 5, time.Hour, logger.Discard())
	mr.Close()

	_, err := h.Load(context.Background(), "s1", 5)
	assert.Error(t, err)
	assert.Error(t, h.Append(context.Background(), "s1", schema.ChatTurn{Question: "q"}))
}
