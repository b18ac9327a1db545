package stream

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s *Subscription) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-s.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatalf("stream did not end, got %d events", len(out))
			return out
		}
	}
}

func texts(events []Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == Token {
			out = append(out, ev.Text)
		}
	}
	return out
}

func TestParsePolicy(t *testing.T) {
	p, err := ParsePolicy("drop_oldest")
	require.NoError(t, err)
	assert.Equal(t, DropOldest, p)
	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, Block, p)
	_, err = ParsePolicy("latest")
	assert.Error(t, err)
}

func TestBroadcaster_FanOutInOrder(t *testing.T) {
	b := New(4, Block)
	ctx := context.Background()
	s1 := b.Subscribe(ctx)
	s2 := b.Subscribe(ctx)
	assert.Equal(t, 2, b.Subscribers())

	go func() {
		for i := 0; i < 10; i++ {
			_ = b.Publish(ctx, fmt.Sprintf("t%d", i))
		}
		b.Finish()
	}()

	want := []string{"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"}
	for _, s := range []*Subscription{s1, s2} {
		events := collect(t, s)
		assert.Equal(t, want, texts(events))
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, Done, last.Kind)
		assert.True(t, last.Terminal())
	}
	assert.Equal(t, uint64(0), b.Dropped())
}

func TestBroadcaster_DropOldestKeepsNewest(t *testing.T) {
	b := New(2, DropOldest)
	s := b.Subscribe(context.Background())

	for i := 1; i <= 5; i++ {
		require.NoError(t, b.Publish(context.Background(), fmt.Sprintf("t%d", i)))
	}
	b.Finish()

	events := collect(t, s)
	got := texts(events)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 3)
	assert.Equal(t, "t5", got[len(got)-1])
	assert.Equal(t, uint64(5-len(got)), b.Dropped())
	assert.Equal(t, Done, events[len(events)-1].Kind)
}

func TestBroadcaster_BlockWaitsForSlowSubscriber(t *testing.T) {
	b := New(1, Block)
	s := b.Subscribe(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var err error
	for i := 0; i < 4 && err == nil; i++ {
		err = b.Publish(ctx, "x")
	}
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, uint64(0), b.Dropped())
	s.Cancel()
}

func TestBroadcaster_CancelledSubscriberReleasesProducer(t *testing.T) {
	b := New(1, Block)
	ctx, cancel := context.WithCancel(context.Background())
	s := b.Subscribe(ctx)
	live := b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 20; i++ {
			_ = b.Publish(context.Background(), "x")
		}
		b.Finish()
	}()

	cancel()
	events := collect(t, live)
	assert.Len(t, texts(events), 20)
	<-done

	_, open := <-s.Events()
	assert.False(t, open)
	assert.Eventually(t, func() bool { return b.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestBroadcaster_SingleTerminalError(t *testing.T) {
	b := New(4, Block)
	s := b.Subscribe(context.Background())

	require.NoError(t, b.Publish(context.Background(), "partial"))
	boom := errors.New("llm failed")
	b.Fail(boom)
	b.Finish()
	b.Fail(errors.New("second"))

	assert.ErrorIs(t, b.Publish(context.Background(), "late"), ErrClosed)

	events := collect(t, s)
	require.Len(t, events, 2)
	assert.Equal(t, Token, events[0].Kind)
	assert.Equal(t, Error, events[1].Kind)
	assert.Equal(t, boom, events[1].Err)
}

func TestBroadcaster_LateSubscriberGetsTerminal(t *testing.T) {
	b := New(4, Block)
	b.Finish()
	events := collect(t, b.Subscribe(context.Background()))
	require.Len(t, events, 1)
	assert.Equal(t, Done, events[0].Kind)
}
