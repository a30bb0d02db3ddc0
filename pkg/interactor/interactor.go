// Package interactor turns live queries into published, translated sections
// of domain entities. Every publish runs on a serialdispatch.Dispatcher, the
// single owner of an interactor's state; the delegate is called from there.
package interactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/serialdispatch"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

var (
	ErrNotLoaded = errors.New("interactor: not loaded")
	ErrReadOnly  = errmap.New(errmap.CodeInvalidInput, "interactor: shared records are read-only", nil)
	ErrClosed    = errors.New("interactor: closed")
)

// Delegate receives every published result. It runs on the dispatcher and
// must not call back into the interactor's blocking methods.
type Delegate[E any] func(sections [][]E)

// SharePredicate reports whether the owner has shared a company.
type SharePredicate func(rec store.CompanyRecord) bool

type Option func(*options)

type options struct {
	logger     *slog.Logger
	dispatcher *serialdispatch.Dispatcher
	keyKind    idwrap.Kind
	query      livequery.Query
	partition  string
	isShared   SharePredicate
}

func defaultOptions() options {
	return options{
		logger:    slog.New(slog.DiscardHandler),
		keyKind:   idwrap.KindString,
		partition: store.OwnedPartition,
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithDispatcher shares one owner context between interactors. The caller
// keeps ownership and closes it.
func WithDispatcher(d *serialdispatch.Dispatcher) Option {
	return func(o *options) {
		o.dispatcher = d
	}
}

// WithKeyKind selects the identifier kind generated by Insert.
func WithKeyKind(kind idwrap.Kind) Option {
	return func(o *options) {
		if kind != idwrap.KindNone {
			o.keyKind = kind
		}
	}
}

// WithQuery sets the filter and sort of the underlying live query.
func WithQuery(q livequery.Query) Option {
	return func(o *options) {
		o.query = q
	}
}

func WithPartition(partition string) Option {
	return func(o *options) {
		if partition != "" {
			o.partition = partition
		}
	}
}

// WithSharePredicate marks owned companies the predicate accepts as shared by
// the owner. It runs once per record per publish.
func WithSharePredicate(fn SharePredicate) Option {
	return func(o *options) {
		o.isShared = fn
	}
}

// single observes one collection and publishes it as one section.
type single[R store.Record, E any] struct {
	collection store.Collection[R]
	query      livequery.Query
	translate  func([]R) []E
	delegate   Delegate[E]
	logger     *slog.Logger

	dispatcher    *serialdispatch.Dispatcher
	ownDispatcher bool

	// Written only on the dispatcher; mu lets other goroutines read.
	mu         sync.RWMutex
	source     livequery.Source[R]
	subscribed bool
	closed     bool
	records    []R
	entities   []E
}

func newSingle[R store.Record, E any](
	collection store.Collection[R],
	translate func([]R) []E,
	delegate Delegate[E],
	o options,
) *single[R, E] {
	s := &single[R, E]{
		collection: collection,
		query:      o.query,
		translate:  translate,
		delegate:   delegate,
		logger:     o.logger,
		dispatcher: o.dispatcher,
	}
	if s.dispatcher == nil {
		s.dispatcher = serialdispatch.New(64)
		s.ownDispatcher = true
	}
	return s
}

// Load opens the query, publishes the first snapshot, and only then starts
// observing changes. Calling it again republishes without subscribing twice.
func (s *single[R, E]) Load(ctx context.Context) error {
	return s.dispatcher.Dispatch(func() error {
		s.mu.RLock()
		closed, src, subscribed := s.closed, s.source, s.subscribed
		s.mu.RUnlock()
		if closed {
			return ErrClosed
		}

		if src == nil {
			var err error
			src, err = s.collection.Query(ctx, s.query)
			if err != nil {
				s.logger.Error("interactor: open query", "error", err)
				return fmt.Errorf("interactor: open query: %w", err)
			}
			s.mu.Lock()
			s.source = src
			s.mu.Unlock()
		}

		if err := s.publish(ctx, src); err != nil {
			return err
		}

		if !subscribed {
			if err := src.OnChange(s.changed); err != nil {
				s.logger.Error("interactor: observe query", "error", err)
				return fmt.Errorf("interactor: observe query: %w", err)
			}
			s.mu.Lock()
			s.subscribed = true
			s.mu.Unlock()
		}
		return nil
	})
}

// Refresh re-reads and republishes without waiting for a change notification.
func (s *single[R, E]) Refresh(ctx context.Context) error {
	return s.dispatcher.Dispatch(func() error {
		s.mu.RLock()
		closed, src := s.closed, s.source
		s.mu.RUnlock()
		if closed {
			return ErrClosed
		}
		if src == nil {
			return ErrNotLoaded
		}
		return s.publish(ctx, src)
	})
}

// Entities returns the most recently published section.
func (s *single[R, E]) Entities() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entities)
}

// recordByID returns the backing record of the entity with id, as of the last
// publish.
func (s *single[R, E]) recordByID(id idwrap.Identifier) (R, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.RecordID() == id {
			return rec, true
		}
	}
	var zero R
	return zero, false
}

// Close stops observing and, when the dispatcher is private, stops it too.
func (s *single[R, E]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	src := s.source
	s.source = nil
	s.mu.Unlock()

	var err error
	if src != nil {
		err = src.Close()
	}
	if s.ownDispatcher {
		s.dispatcher.Close()
	}
	return err
}

// publish must run on the dispatcher. The snapshot is read inside the task so
// the last publish always reflects the newest store state.
func (s *single[R, E]) publish(ctx context.Context, src livequery.Source[R]) error {
	records, err := src.Snapshot(ctx)
	if err != nil {
		s.logger.Error("interactor: read snapshot", "error", err)
		return fmt.Errorf("interactor: read snapshot: %w", err)
	}
	entities := s.translate(records)

	s.mu.Lock()
	s.records = records
	s.entities = entities
	s.mu.Unlock()

	if s.delegate != nil {
		s.delegate([][]E{slices.Clone(entities)})
	}
	return nil
}

// changed runs on the source's goroutine and hops onto the dispatcher.
func (s *single[R, E]) changed() {
	err := s.dispatcher.Post(func() {
		s.mu.RLock()
		closed, src := s.closed, s.source
		s.mu.RUnlock()
		if closed || src == nil {
			return
		}
		_ = s.publish(context.Background(), src)
	})
	if err != nil && !errors.Is(err, serialdispatch.ErrClosed) {
		s.logger.Error("interactor: schedule publish", "error", err)
	}
}

// deleteRecord treats a missing record as already deleted.
func deleteRecord[R store.Record](ctx context.Context, logger *slog.Logger, col store.Collection[R], id idwrap.Identifier) error {
	err := col.Delete(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("interactor: delete of missing record ignored", "id", id.String())
		return nil
	}
	if err != nil {
		logger.Error("interactor: delete", "id", id.String(), "error", err)
		return err
	}
	return nil
}

// updateRecord treats a missing record as nothing to update.
func updateRecord[R store.Record](ctx context.Context, logger *slog.Logger, col store.Collection[R], r R, op string) error {
	err := col.Update(ctx, r)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("interactor: update of missing record ignored", "op", op, "id", r.RecordID().String())
		return nil
	}
	if err != nil {
		logger.Error("interactor: "+op, "error", err)
		return fmt.Errorf("interactor: %s: %w", op, err)
	}
	return nil
}
