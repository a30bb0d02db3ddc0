package multisource_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/multisource"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/store/memstore"
)

func ptr(s string) *string { return &s }

func companySources(b store.Backend) multisource.SourceFactory[store.CompanyRecord] {
	return func(ctx context.Context, partition string) (livequery.Source[store.CompanyRecord], error) {
		return b.Companies(partition).Query(ctx, livequery.Query{})
	}
}

func seed(t *testing.T, b store.Backend, partition string, names ...string) []idwrap.Identifier {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, b.CreatePartition(ctx, partition))
	ids := make([]idwrap.Identifier, 0, len(names))
	for _, name := range names {
		id := idwrap.NewUUID()
		require.NoError(t, b.Companies(partition).Insert(ctx, store.CompanyRecord{ID: id, Name: ptr(name)}))
		ids = append(ids, id)
	}
	return ids
}

func sectionNames(sections [][]store.CompanyRecord) [][]string {
	out := make([][]string, 0, len(sections))
	for _, section := range sections {
		names := make([]string, 0, len(section))
		for _, rec := range section {
			names = append(names, *rec.Name)
		}
		out = append(out, names)
	}
	return out
}

func TestInitialSectionsFollowDiscoveryOrder(t *testing.T) {
	t.Parallel()

	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "Beta", "Alpha")
	seed(t, b, "zone-b", "Gamma")
	// Owned records never appear in the aggregate.
	require.NoError(t, b.Companies(store.OwnedPartition).Insert(context.Background(), store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("Mine")}))

	agg := multisource.New(b, companySources(b))
	defer agg.Close()
	require.NoError(t, agg.Start(context.Background()))

	assert.Equal(t, []string{"zone-a", "zone-b"}, agg.Partitions())
	assert.Equal(t, [][]string{{"Alpha", "Beta"}, {"Gamma"}}, sectionNames(agg.Results()))
}

func TestPartitionAddAppendsAndRemoveKeepsOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")
	seed(t, b, "zone-b", "B")

	agg := multisource.New(b, companySources(b))
	defer agg.Close()
	var setChanges atomic.Int32
	agg.OnPartitionSetChanged(func() { setChanges.Add(1) })
	require.NoError(t, agg.Start(ctx))

	seed(t, b, "zone-c", "C")
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"zone-a", "zone-b", "zone-c"}, agg.Partitions())
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([][]string{{"A"}, {"B"}, {"C"}}, sectionNames(agg.Results()))
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, b.DropPartition(ctx, "zone-a"))
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([][]string{{"B"}, {"C"}}, sectionNames(agg.Results()))
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"zone-b", "zone-c"}, agg.Partitions())
	assert.Positive(t, setChanges.Load())
}

func TestAnySourceChangeRereadsEverything(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")
	seed(t, b, "zone-b")

	agg := multisource.New(b, companySources(b))
	defer agg.Close()
	var changes atomic.Int32
	agg.OnAnySourceChanged(func() { changes.Add(1) })
	require.NoError(t, agg.Start(ctx))
	assert.Equal(t, [][]string{{"A"}, {}}, sectionNames(agg.Results()))

	require.NoError(t, b.Companies("zone-b").Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("B")}))
	require.Eventually(t, func() bool { return changes.Load() > 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, sectionNames(agg.Results()))
}

func TestEnumerationFailureYieldsZeroSections(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")

	b.FailPartitions(errors.New("offline"))
	agg := multisource.New(b, companySources(b))
	defer agg.Close()
	require.NoError(t, agg.Start(ctx))
	assert.Empty(t, agg.Results())

	b.FailPartitions(nil)
	require.NoError(t, agg.Reconcile(ctx))
	assert.Equal(t, [][]string{{"A"}}, sectionNames(agg.Results()))

	b.FailPartitions(errors.New("offline again"))
	require.NoError(t, agg.Reconcile(ctx))
	assert.Empty(t, agg.Results())
	assert.Empty(t, agg.Partitions())
}

func TestPartitionThatFailsToOpenIsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")
	seed(t, b, "broken", "X")
	seed(t, b, "zone-c", "C")

	open := companySources(b)
	agg := multisource.New(b, func(ctx context.Context, partition string) (livequery.Source[store.CompanyRecord], error) {
		if partition == "broken" {
			return nil, errors.New("cannot open")
		}
		return open(ctx, partition)
	})
	defer agg.Close()
	require.NoError(t, agg.Start(ctx))

	assert.Equal(t, []string{"zone-a", "zone-c"}, agg.Partitions())
	assert.Equal(t, [][]string{{"A"}, {"C"}}, sectionNames(agg.Results()))
}

type flakySource struct {
	livequery.Source[store.CompanyRecord]
	fail *atomic.Bool
}

func (s flakySource) Snapshot(ctx context.Context) ([]store.CompanyRecord, error) {
	if s.fail.Load() {
		return nil, errors.New("read failed")
	}
	return s.Source.Snapshot(ctx)
}

func TestPartitionThatFailsToReadIsAbsent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")
	seed(t, b, "flaky", "F")
	seed(t, b, "zone-c", "C")

	fail := &atomic.Bool{}
	fail.Store(true)
	open := companySources(b)
	agg := multisource.New(b, func(ctx context.Context, partition string) (livequery.Source[store.CompanyRecord], error) {
		src, err := open(ctx, partition)
		if err != nil || partition != "flaky" {
			return src, err
		}
		return flakySource{Source: src, fail: fail}, nil
	})
	defer agg.Close()
	require.NoError(t, agg.Start(ctx))

	partitions, sections := agg.Sections()
	assert.Equal(t, []string{"zone-a", "zone-c"}, partitions)
	assert.Equal(t, [][]string{{"A"}, {"C"}}, sectionNames(sections))
	_, _, ok := agg.Lookup(idwrap.NewUUID())
	assert.False(t, ok)

	fail.Store(false)
	require.NoError(t, agg.Reload(ctx))
	assert.Equal(t, []string{"zone-a", "flaky", "zone-c"}, agg.Partitions())
	assert.Equal(t, [][]string{{"A"}, {"F"}, {"C"}}, sectionNames(agg.Results()))
}

func TestLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")
	ids := seed(t, b, "zone-b", "B")

	agg := multisource.New(b, companySources(b))
	defer agg.Close()
	require.NoError(t, agg.Start(ctx))

	rec, partition, ok := agg.Lookup(ids[0])
	require.True(t, ok)
	assert.Equal(t, "B", *rec.Name)
	assert.Equal(t, "zone-b", partition)

	_, _, ok = agg.Lookup(idwrap.NewUUID())
	assert.False(t, ok)
}

func TestCloseReleasesSources(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()
	seed(t, b, "zone-a", "A")

	agg := multisource.New(b, companySources(b))
	require.NoError(t, agg.Start(ctx))
	require.NoError(t, agg.Close())
	require.NoError(t, agg.Close())

	assert.Empty(t, agg.Results())
	assert.ErrorIs(t, agg.Start(ctx), multisource.ErrClosed)
	assert.ErrorIs(t, agg.Reload(ctx), multisource.ErrClosed)
}
