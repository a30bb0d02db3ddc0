//nolint:revive // exported
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/the-dev-tools/recordsync/pkg/eventstream"
)

// DefaultBuffer is the per-subscriber channel capacity. Change consumers
// coalesce bursts, so a modest buffer is enough.
const DefaultBuffer = 64

type subscriber[Topic any, Payload any] struct {
	filter eventstream.TopicFilter[Topic]
	ch     chan eventstream.Event[Topic, Payload]
	closed atomic.Bool
}

func (s *subscriber[Topic, Payload]) close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}

type Streamer[Topic any, Payload any] struct {
	mu     sync.RWMutex
	subs   map[*subscriber[Topic, Payload]]struct{}
	buffer int
	closed atomic.Bool
}

type Option func(*options)

type options struct {
	buffer int
}

func WithBuffer(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.buffer = n
		}
	}
}

// NewStreamer creates an in-memory streamer.
func NewStreamer[Topic any, Payload any](opts ...Option) *Streamer[Topic, Payload] {
	o := options{buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(&o)
	}
	return &Streamer[Topic, Payload]{
		subs:   make(map[*subscriber[Topic, Payload]]struct{}),
		buffer: o.buffer,
	}
}

var _ eventstream.SyncStreamer[string, int] = (*Streamer[string, int])(nil)

func (s *Streamer[Topic, Payload]) Subscribe(
	ctx context.Context,
	filter eventstream.TopicFilter[Topic],
) (<-chan eventstream.Event[Topic, Payload], error) {
	sub := &subscriber[Topic, Payload]{
		filter: filter,
		ch:     make(chan eventstream.Event[Topic, Payload], s.buffer),
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil, eventstream.ErrStreamerClosed
	}
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.remove(sub)
	}()

	return sub.ch, nil
}

func (s *Streamer[Topic, Payload]) Publish(topic Topic, payloads ...Payload) {
	if len(payloads) == 0 || s.closed.Load() {
		return
	}

	// Sends happen under the read lock so remove/Shutdown cannot close a
	// channel mid-send.
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sub := range s.subs {
		if sub.closed.Load() {
			continue
		}
		if sub.filter != nil && !sub.filter(topic) {
			continue
		}
		for _, p := range payloads {
			select {
			case sub.ch <- eventstream.Event[Topic, Payload]{Topic: topic, Payload: p}:
			default:
			}
		}
	}
}

func (s *Streamer[Topic, Payload]) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subs {
		sub.close()
	}
	s.subs = nil
}

// Subscribers returns the number of live subscriptions.
func (s *Streamer[Topic, Payload]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

func (s *Streamer[Topic, Payload]) remove(sub *subscriber[Topic, Payload]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subs == nil {
		return
	}
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	sub.close()
}
