package interactor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/multisource"
	"github.com/the-dev-tools/recordsync/pkg/serialdispatch"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/translate/tcompany"
)

// Shared publishes the companies other users shared with the owner, one
// section per shared partition. Shared companies cannot be inserted or
// deleted locally.
type Shared struct {
	agg      *multisource.Aggregator[store.CompanyRecord]
	delegate Delegate[mcompany.Company]
	logger   *slog.Logger

	dispatcher    *serialdispatch.Dispatcher
	ownDispatcher bool

	mu         sync.RWMutex
	partitions []string
	sections   [][]mcompany.Company
	loaded     bool
	closed     bool
}

func NewShared(backend store.Backend, delegate Delegate[mcompany.Company], opts ...Option) *Shared {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.query.NilName == "" {
		o.query.NilName = mcompany.NilName
	}
	q := o.query
	open := func(ctx context.Context, partition string) (livequery.Source[store.CompanyRecord], error) {
		return backend.Companies(partition).Query(ctx, q)
	}

	s := &Shared{
		agg:        multisource.New(backend, open, multisource.WithLogger(o.logger)),
		delegate:   delegate,
		logger:     o.logger,
		dispatcher: o.dispatcher,
	}
	if s.dispatcher == nil {
		s.dispatcher = serialdispatch.New(64)
		s.ownDispatcher = true
	}
	s.agg.OnAnySourceChanged(s.changed)
	s.agg.OnPartitionSetChanged(s.changed)
	return s
}

// Load starts the aggregator on first use and publishes its result.
func (s *Shared) Load(ctx context.Context) error {
	return s.dispatcher.Dispatch(func() error {
		s.mu.RLock()
		closed, loaded := s.closed, s.loaded
		s.mu.RUnlock()
		if closed {
			return ErrClosed
		}
		if !loaded {
			if err := s.agg.Start(ctx); err != nil {
				s.logger.Error("interactor: start shared aggregator", "error", err)
				return fmt.Errorf("interactor: load shared: %w", err)
			}
			s.mu.Lock()
			s.loaded = true
			s.mu.Unlock()
		}
		s.publish()
		return nil
	})
}

func (s *Shared) Refresh(ctx context.Context) error {
	return s.dispatcher.Dispatch(func() error {
		s.mu.RLock()
		closed, loaded := s.closed, s.loaded
		s.mu.RUnlock()
		if closed {
			return ErrClosed
		}
		if !loaded {
			return ErrNotLoaded
		}
		if err := s.agg.Reload(ctx); err != nil {
			return fmt.Errorf("interactor: refresh shared: %w", err)
		}
		s.publish()
		return nil
	})
}

func (s *Shared) Insert(context.Context, string) error {
	return ErrReadOnly
}

func (s *Shared) Delete(context.Context, mcompany.Company) error {
	return ErrReadOnly
}

// Entities returns the last published sections.
func (s *Shared) Entities() [][]mcompany.Company {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sections)
}

// Partitions names the partition behind each published section.
func (s *Shared) Partitions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.partitions)
}

// Record returns the stored record behind company and its partition.
func (s *Shared) Record(company mcompany.Company) (store.CompanyRecord, string, bool) {
	return s.agg.Lookup(company.ID)
}

func (s *Shared) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.agg.Close()
	if s.ownDispatcher {
		s.dispatcher.Close()
	}
	return err
}

// publish must run on the dispatcher.
func (s *Shared) publish() {
	partitions, results := s.agg.Sections()
	sections := make([][]mcompany.Company, 0, len(results))
	for _, recs := range results {
		sections = append(sections, tcompany.SerializeRecordsToModels(recs, func(store.CompanyRecord) mcompany.ShareState {
			return mcompany.ShareStateSharedWithMe
		}))
	}

	s.mu.Lock()
	s.partitions = partitions
	s.sections = sections
	s.mu.Unlock()

	if s.delegate != nil {
		s.delegate(slices.Clone(sections))
	}
}

func (s *Shared) changed() {
	err := s.dispatcher.Post(func() {
		s.mu.RLock()
		closed, loaded := s.closed, s.loaded
		s.mu.RUnlock()
		if closed || !loaded {
			return
		}
		s.publish()
	})
	if err != nil && !errors.Is(err, serialdispatch.ErrClosed) {
		s.logger.Error("interactor: schedule shared publish", "error", err)
	}
}
