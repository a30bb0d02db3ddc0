// Package multisource merges one live query per partition into a single
// sectioned result. Sections keep the order in which their partitions were
// discovered: new partitions append, removed ones drop out without moving the
// rest.
package multisource

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
)

var ErrClosed = errors.New("multisource: aggregator closed")

// PartitionProvider enumerates partitions and reports when the set changes.
type PartitionProvider interface {
	Partitions(ctx context.Context) ([]string, error)
	WatchPartitions(ctx context.Context, fn func()) error
}

// SourceFactory opens the live query of one partition.
type SourceFactory[R livequery.Record] func(ctx context.Context, partition string) (livequery.Source[R], error)

type Aggregator[R livequery.Record] struct {
	provider PartitionProvider
	open     SourceFactory[R]
	logger   *slog.Logger

	// opMu serializes state transitions; mu guards the state readers see.
	// order lists every open partition in discovery order; visible holds the
	// subset whose last read succeeded, aligned with sections.
	opMu     sync.Mutex
	mu       sync.RWMutex
	order    []string
	sources  map[string]livequery.Source[R]
	visible  []string
	sections [][]R

	cbMu           sync.RWMutex
	onPartitionSet func()
	onAnySource    func()

	cancel  context.CancelFunc
	started bool
	closed  bool
}

type Option func(*options)

type options struct {
	logger *slog.Logger
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func New[R livequery.Record](provider PartitionProvider, open SourceFactory[R], opts ...Option) *Aggregator[R] {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return &Aggregator[R]{
		provider: provider,
		open:     open,
		logger:   o.logger,
		sources:  make(map[string]livequery.Source[R]),
	}
}

// OnPartitionSetChanged registers the callback fired after the partition set
// changed and the results were rebuilt.
func (a *Aggregator[R]) OnPartitionSetChanged(fn func()) {
	a.cbMu.Lock()
	a.onPartitionSet = fn
	a.cbMu.Unlock()
}

// OnAnySourceChanged registers the callback fired after any partition's
// records changed and every section was re-read.
func (a *Aggregator[R]) OnAnySourceChanged(fn func()) {
	a.cbMu.Lock()
	a.onAnySource = fn
	a.cbMu.Unlock()
}

// Start opens one source per partition, reads every section, and begins
// watching the partition set. An enumeration failure leaves zero sections
// and is not fatal; the next partition change retries.
func (a *Aggregator[R]) Start(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if a.closed {
		return ErrClosed
	}
	if a.started {
		return nil
	}

	// Watch before listing so a partition created in between is not missed;
	// the watcher blocks on opMu until Start is done.
	watchCtx, cancel := context.WithCancel(context.Background())
	if err := a.provider.WatchPartitions(watchCtx, a.partitionsChanged); err != nil {
		cancel()
		return err
	}
	a.cancel = cancel
	a.started = true

	keys, err := a.provider.Partitions(ctx)
	if err != nil {
		a.logger.Error("multisource: enumerate partitions", "error", err)
		keys = nil
	}

	opened := a.openAll(ctx, keys)
	order := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, ok := opened[key]; ok {
			order = append(order, key)
		}
	}
	visible, sections := a.readAll(ctx, order, opened)

	a.mu.Lock()
	a.order, a.sources = order, opened
	a.visible, a.sections = visible, sections
	a.mu.Unlock()
	return nil
}

// Results returns one section per live partition in discovery order.
func (a *Aggregator[R]) Results() [][]R {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.sections)
}

// Partitions returns the partition key of each section.
func (a *Aggregator[R]) Partitions() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.visible)
}

// Sections returns partitions and results from the same state.
func (a *Aggregator[R]) Sections() ([]string, [][]R) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.visible), slices.Clone(a.sections)
}

// Lookup scans every section for id.
func (a *Aggregator[R]) Lookup(id idwrap.Identifier) (R, string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for i, section := range a.sections {
		for _, rec := range section {
			if rec.RecordID() == id {
				return rec, a.visible[i], true
			}
		}
	}
	var zero R
	return zero, "", false
}

// Reload re-reads every section without a change notification.
func (a *Aggregator[R]) Reload(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.rereadLocked(ctx)
	return nil
}

// Reconcile brings the sources in line with the current partition set.
func (a *Aggregator[R]) Reconcile(ctx context.Context) error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if a.closed {
		return ErrClosed
	}
	a.reconcileLocked(ctx)
	return nil
}

func (a *Aggregator[R]) Close() error {
	a.opMu.Lock()
	defer a.opMu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.cancel != nil {
		a.cancel()
	}

	a.mu.Lock()
	sources := a.sources
	a.order, a.sources = nil, make(map[string]livequery.Source[R])
	a.visible, a.sections = nil, nil
	a.mu.Unlock()

	a.closeSources(sources)
	return nil
}

func (a *Aggregator[R]) partitionsChanged() {
	a.opMu.Lock()
	if a.closed {
		a.opMu.Unlock()
		return
	}
	a.reconcileLocked(context.Background())
	a.opMu.Unlock()

	a.cbMu.RLock()
	fn := a.onPartitionSet
	a.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (a *Aggregator[R]) sourceChanged() {
	a.opMu.Lock()
	if a.closed {
		a.opMu.Unlock()
		return
	}
	a.rereadLocked(context.Background())
	a.opMu.Unlock()

	a.cbMu.RLock()
	fn := a.onAnySource
	a.cbMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (a *Aggregator[R]) rereadLocked(ctx context.Context) {
	a.mu.RLock()
	order := slices.Clone(a.order)
	sources := a.sources
	a.mu.RUnlock()

	visible, sections := a.readAll(ctx, order, sources)

	a.mu.Lock()
	a.visible, a.sections = visible, sections
	a.mu.Unlock()
}

// reconcileLocked diffs the partition set, opens added partitions, swaps the
// complete state in one step, and only then closes removed sources.
func (a *Aggregator[R]) reconcileLocked(ctx context.Context) {
	a.mu.RLock()
	current := a.sources
	oldOrder := slices.Clone(a.order)
	a.mu.RUnlock()

	keys, err := a.provider.Partitions(ctx)
	if err != nil {
		a.logger.Error("multisource: enumerate partitions", "error", err)
		a.mu.Lock()
		a.order, a.sources = nil, make(map[string]livequery.Source[R])
		a.visible, a.sections = nil, nil
		a.mu.Unlock()
		a.closeSources(current)
		return
	}

	live := make(map[string]struct{}, len(keys))
	var added []string
	for _, key := range keys {
		live[key] = struct{}{}
		if _, ok := current[key]; !ok {
			added = append(added, key)
		}
	}

	removed := make(map[string]livequery.Source[R])
	next := make(map[string]livequery.Source[R], len(keys))
	order := make([]string, 0, len(keys))
	for _, key := range oldOrder {
		if _, ok := live[key]; ok {
			next[key] = current[key]
			order = append(order, key)
		} else {
			removed[key] = current[key]
		}
	}
	opened := a.openAll(ctx, added)
	for _, key := range added {
		if src, ok := opened[key]; ok {
			next[key] = src
			order = append(order, key)
		}
	}

	visible, sections := a.readAll(ctx, order, next)

	a.mu.Lock()
	a.order, a.sources = order, next
	a.visible, a.sections = visible, sections
	a.mu.Unlock()

	a.closeSources(removed)
	if len(added) > 0 || len(removed) > 0 {
		a.logger.Debug("multisource: partitions reconciled", "added", len(added), "removed", len(removed))
	}
}

// openAll opens and subscribes the given partitions concurrently. Partitions
// that fail are logged and left out.
func (a *Aggregator[R]) openAll(ctx context.Context, keys []string) map[string]livequery.Source[R] {
	results := make([]livequery.Source[R], len(keys))
	var g errgroup.Group
	for i, key := range keys {
		g.Go(func() error {
			src, err := a.open(ctx, key)
			if err != nil {
				a.logger.Error("multisource: open partition", "partition", key, "error", err)
				return nil
			}
			if err := src.OnChange(a.sourceChanged); err != nil {
				a.logger.Error("multisource: observe partition", "partition", key, "error", err)
				_ = src.Close()
				return nil
			}
			results[i] = src
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]livequery.Source[R], len(keys))
	for i, key := range keys {
		if results[i] != nil {
			out[key] = results[i]
		}
	}
	return out
}

// readAll snapshots every partition in order. A partition whose read fails
// is left out of this pass rather than shown as empty; its source stays open
// and the next change re-reads it.
func (a *Aggregator[R]) readAll(ctx context.Context, order []string, sources map[string]livequery.Source[R]) ([]string, [][]R) {
	visible := make([]string, 0, len(order))
	sections := make([][]R, 0, len(order))
	for _, key := range order {
		rows, err := sources[key].Snapshot(ctx)
		if err != nil {
			a.logger.Error("multisource: read partition", "partition", key, "error", err)
			continue
		}
		if rows == nil {
			rows = []R{}
		}
		visible = append(visible, key)
		sections = append(sections, rows)
	}
	return visible, sections
}

func (a *Aggregator[R]) closeSources(sources map[string]livequery.Source[R]) {
	for key, src := range sources {
		if err := src.Close(); err != nil {
			a.logger.Warn("multisource: close partition", "partition", key, "error", err)
		}
	}
}
