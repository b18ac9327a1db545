package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// EventKind tags an Event.
type EventKind int

const (
	// Token is one piece of generated text.
	Token EventKind = iota
	// Done marks a successful end of the stream.
	Done
	// Error ends the stream with a failure; it is sent at most once.
	Error
)

func (k EventKind) String() string {
	switch k {
	case Token:
		return "token"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one item of the outbound stream.
type Event struct {
	Kind EventKind
	Text string
	Err  error
}

// Terminal reports whether the event ends the stream.
func (e Event) Terminal() bool { return e.Kind != Token }

// Policy decides what a producer does when a subscriber buffer is full.
type Policy int

const (
	// Block waits until the subscriber reads or goes away.
	Block Policy = iota
	// DropOldest discards the oldest buffered token.
	DropOldest
)

// ParsePolicy maps the config names "block" and "drop_oldest".
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "block":
		return Block, nil
	case "drop_oldest":
		return DropOldest, nil
	default:
		return Block, fmt.Errorf("unknown backpressure policy %q", s)
	}
}

func (p Policy) String() string {
	if p == DropOldest {
		return "drop_oldest"
	}
	return "block"
}

// ErrClosed is returned by Publish after the terminal event.
var ErrClosed = errors.New("stream closed")

// Broadcaster fans one producer out to many subscribers, each with its own
// bounded buffer. Tokens obey the policy; the terminal event is always delivered.
type Broadcaster struct {
	size    int
	policy  Policy
	dropped atomic.Uint64

	mu    sync.Mutex
	subs  map[*Subscription]struct{}
	final *Event
}

// New creates a broadcaster; bufferSize <= 0 means 1.
func New(bufferSize int, policy Policy) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &Broadcaster{size: bufferSize, policy: policy, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a consumer. Cancelling ctx removes it.
// A subscriber that joins after the end only receives the terminal event.
func (b *Broadcaster) Subscribe(ctx context.Context) *Subscription {
	s := &Subscription{
		b:     b,
		size:  b.size,
		out:   make(chan Event),
		ready: make(chan struct{}, 1),
		space: make(chan struct{}, 1),
		gone:  make(chan struct{}),
	}
	b.mu.Lock()
	if b.final != nil {
		ev := *b.final
		s.terminal = &ev
	} else {
		b.subs[s] = struct{}{}
	}
	b.mu.Unlock()

	stop := context.AfterFunc(ctx, s.Cancel)
	go func() {
		s.pump()
		stop()
		b.remove(s)
	}()
	return s
}

// Publish sends a token to every current subscriber. Under Block it returns
// early only when ctx is done.
func (b *Broadcaster) Publish(ctx context.Context, text string) error {
	b.mu.Lock()
	if b.final != nil {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	ev := Event{Kind: Token, Text: text}
	for _, s := range subs {
		if err := s.push(ctx, ev, b.policy); err != nil {
			return err
		}
	}
	return nil
}

// Finish ends the stream with Done. Only the first terminal event counts.
func (b *Broadcaster) Finish() {
	b.close(Event{Kind: Done})
}

// Fail ends the stream with a single Error event.
func (b *Broadcaster) Fail(err error) {
	b.close(Event{Kind: Error, Err: err})
}

func (b *Broadcaster) close(ev Event) {
	b.mu.Lock()
	if b.final != nil {
		b.mu.Unlock()
		return
	}
	b.final = &ev
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.end(ev)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns how many tokens were discarded under DropOldest.
func (b *Broadcaster) Dropped() uint64 { return b.dropped.Load() }

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one consumer's view of the stream.
type Subscription struct {
	b    *Broadcaster
	size int
	out  chan Event

	mu       sync.Mutex
	queue    []Event
	terminal *Event
	ready    chan struct{}
	space    chan struct{}
	gone     chan struct{}
	once     sync.Once
}

// Events yields tokens in order followed by exactly one terminal event,
// then the channel is closed. It is closed early if the subscription is cancelled.
func (s *Subscription) Events() <-chan Event { return s.out }

// Cancel stops delivery and releases a producer blocked on this subscriber.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.mu.Lock()
		s.queue = nil
		close(s.gone)
		s.mu.Unlock()
		s.b.remove(s)
	})
}

func (s *Subscription) push(ctx context.Context, ev Event, policy Policy) error {
	for {
		s.mu.Lock()
		select {
		case <-s.gone:
			s.mu.Unlock()
			return nil
		default:
		}
		if len(s.queue) < s.size {
			s.queue = append(s.queue, ev)
			s.mu.Unlock()
			signal(s.ready)
			return nil
		}
		if policy == DropOldest {
			copy(s.queue, s.queue[1:])
			s.queue[len(s.queue)-1] = ev
			s.mu.Unlock()
			s.b.dropped.Add(1)
			signal(s.ready)
			return nil
		}
		s.mu.Unlock()

		select {
		case <-s.space:
		case <-s.gone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *Subscription) end(ev Event) {
	s.mu.Lock()
	if s.terminal == nil {
		s.terminal = &ev
	}
	s.mu.Unlock()
	signal(s.ready)
}

// pump moves buffered events to the consumer channel.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			ev := s.queue[0]
			copy(s.queue, s.queue[1:])
			s.queue = s.queue[:len(s.queue)-1]
			s.mu.Unlock()
			signal(s.space)
			if !s.deliver(ev) {
				return
			}
			continue
		}
		if s.terminal != nil {
			ev := *s.terminal
			s.mu.Unlock()
			s.deliver(ev)
			return
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.gone:
			return
		}
	}
}

func (s *Subscription) deliver(ev Event) bool {
	select {
	case s.out <- ev:
		return true
	case <-s.gone:
		return false
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
