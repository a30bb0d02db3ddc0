// Package livequery defines the Live Query Source every backend provides: a
// filtered, sorted view over one local collection that reports its current
// snapshot and calls back whenever the collection changes.
package livequery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/the-dev-tools/recordsync/pkg/eventstream"
)

var (
	ErrAlreadySubscribed = errors.New("livequery: change callback already registered")
	ErrClosed            = errors.New("livequery: source closed")
)

// Source is a live query over one collection.
type Source[R any] interface {
	// Snapshot returns the current local result set. It never touches the
	// network.
	Snapshot(ctx context.Context) ([]R, error)

	// OnChange registers the single change callback. The callback may run on
	// any goroutine; bursts of changes may be coalesced into one call. Changes
	// seen since the source was created trigger one call right after
	// registration.
	OnChange(fn func()) error

	// Close stops observation and releases the subscription. A callback that
	// is already running may still complete; no new callback starts after
	// Close returns.
	Close() error
}

// FetchFunc reads the unfiltered, unsorted records of a collection.
type FetchFunc[R any] func(ctx context.Context) ([]R, error)

type source[R Record, Topic any, Payload any] struct {
	fetch   FetchFunc[R]
	matcher *Matcher
	query   Query
	cancel  context.CancelFunc
	kick    chan struct{}

	// pending latches changes seen before OnChange so the first callback
	// covers writes that raced the initial snapshot.
	mu      sync.Mutex
	fn      func()
	pending bool
	closed  atomic.Bool
}

// New builds a Source from a fetch function and the change stream of its
// backend. topics selects the change events that concern this query. The
// source observes the stream from creation, before any Snapshot.
func New[R Record, Topic any, Payload any](
	fetch FetchFunc[R],
	streamer eventstream.SyncStreamer[Topic, Payload],
	topics eventstream.TopicFilter[Topic],
	q Query,
) (Source[R], error) {
	m, err := Compile(q.Filter)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	events, err := streamer.Subscribe(ctx, topics)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("livequery: subscribe: %w", err)
	}
	s := &source[R, Topic, Payload]{
		fetch:   fetch,
		matcher: m,
		query:   q,
		cancel:  cancel,
		kick:    make(chan struct{}, 1),
	}
	go s.loop(events)
	return s, nil
}

func (s *source[R, Topic, Payload]) Snapshot(ctx context.Context) ([]R, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	records, err := s.fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("livequery: fetch: %w", err)
	}
	return Apply(records, s.matcher, s.query)
}

func (s *source[R, Topic, Payload]) OnChange(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return ErrClosed
	}
	if s.fn != nil {
		return ErrAlreadySubscribed
	}
	s.fn = fn
	if s.pending {
		s.pending = false
		select {
		case s.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

func (s *source[R, Topic, Payload]) loop(events <-chan eventstream.Event[Topic, Payload]) {
	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			// Everything already queued is covered by the refetch fn triggers.
		drain:
			for {
				select {
				case _, ok := <-events:
					if !ok {
						return
					}
				default:
					break drain
				}
			}
		case <-s.kick:
		}
		if s.closed.Load() {
			return
		}

		s.mu.Lock()
		fn := s.fn
		if fn == nil {
			s.pending = true
		}
		s.mu.Unlock()
		if fn != nil {
			fn()
		}
	}
}

func (s *source[R, Topic, Payload]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	return nil
}
