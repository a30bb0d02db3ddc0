// Package memstore is an in-memory backend. Collections are copy-on-write
// maps: writers build a new map and swap it in, readers keep whatever map they
// picked up.
package memstore

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/the-dev-tools/recordsync/pkg/eventstream/memory"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/streamregistry"
)

type Store struct {
	mu         sync.RWMutex
	companies  map[string]map[idwrap.Identifier]store.CompanyRecord
	employees  map[string]map[idwrap.Identifier]store.EmployeeRecord
	partitions []string
	shares     map[string][]byte

	// Injected failures for tests.
	writeErr     error
	partitionErr error

	streamer *memory.Streamer[store.Topic, mutation.Event]
	registry *streamregistry.Registry
	closed   atomic.Bool
}

var _ store.Backend = (*Store)(nil)

func New() *Store {
	streamer := memory.NewStreamer[store.Topic, mutation.Event]()
	return &Store{
		companies: make(map[string]map[idwrap.Identifier]store.CompanyRecord),
		employees: make(map[string]map[idwrap.Identifier]store.EmployeeRecord),
		shares:    make(map[string][]byte),
		streamer:  streamer,
		registry:  store.NewRegistry(streamer),
	}
}

// FailWrites makes every following write return err; nil restores normal
// operation.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	s.writeErr = err
	s.mu.Unlock()
}

// FailPartitions makes Partitions return err; nil restores normal operation.
func (s *Store) FailPartitions(err error) {
	s.mu.Lock()
	s.partitionErr = err
	s.mu.Unlock()
}

func (s *Store) Companies(partition string) store.Collection[store.CompanyRecord] {
	return &companies{s: s, partition: partition}
}

func (s *Store) Employees(partition string) store.Collection[store.EmployeeRecord] {
	return &employees{s: s, partition: partition}
}

func (s *Store) Shares() store.ShareStore {
	return &shares{s: s}
}

func (s *Store) Partitions(context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.partitionErr != nil {
		return nil, s.partitionErr
	}
	return slices.Clone(s.partitions), nil
}

func (s *Store) WatchPartitions(ctx context.Context, fn func()) error {
	return store.Watch(ctx, s.streamer, store.PartitionTopics, fn)
}

func (s *Store) CreatePartition(ctx context.Context, key string) error {
	if err := validateShared(key); err != nil {
		return err
	}
	return s.write(ctx, func(mc *mutation.Context) error {
		s.ensurePartition(mc, key)
		return nil
	})
}

func (s *Store) DropPartition(ctx context.Context, key string) error {
	if err := validateShared(key); err != nil {
		return err
	}
	return s.write(ctx, func(mc *mutation.Context) error {
		i := slices.Index(s.partitions, key)
		if i < 0 {
			return fmt.Errorf("%w: partition %q", store.ErrNotFound, key)
		}
		s.partitions = slices.Delete(slices.Clone(s.partitions), i, i+1)
		delete(s.companies, key)
		delete(s.employees, key)
		mc.Track(mutation.Event{Entity: mutation.EntityPartition, Op: mutation.OpDelete, Partition: key})
		return nil
	})
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.streamer.Shutdown()
	return nil
}

func validateShared(key string) error {
	if err := store.ValidatePartition(key); err != nil {
		return err
	}
	if key == store.OwnedPartition {
		return fmt.Errorf("%w: %q is reserved", store.ErrInvalidPartition, key)
	}
	return nil
}

// write applies fn under the write lock and publishes its events once the
// lock is released.
func (s *Store) write(ctx context.Context, fn func(mc *mutation.Context) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	return mutation.Run(ctx, nil, func(mc *mutation.Context) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.writeErr != nil {
			return s.writeErr
		}
		return fn(mc)
	}, mutation.WithoutTX(), mutation.WithPublisher(s.registry))
}

// ensurePartition must run under the write lock.
func (s *Store) ensurePartition(mc *mutation.Context, key string) {
	if key == store.OwnedPartition || slices.Contains(s.partitions, key) {
		return
	}
	s.partitions = append(slices.Clone(s.partitions), key)
	mc.Track(mutation.Event{Entity: mutation.EntityPartition, Op: mutation.OpInsert, Partition: key})
}

func cloneOrNew[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return make(map[K]V)
	}
	return maps.Clone(m)
}

func cloneName(name *string) *string {
	if name == nil {
		return nil
	}
	v := *name
	return &v
}
