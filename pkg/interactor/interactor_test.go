package interactor_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/interactor"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/logger/mocklogger"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/serialdispatch"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/store/memstore"
	"github.com/the-dev-tools/recordsync/pkg/store/sqlitestore"
	"github.com/the-dev-tools/recordsync/pkg/testutil"
)

const waitFor = 2 * time.Second

func ptr(s string) *string { return &s }

var backends = map[string]func(t *testing.T) store.Backend{
	"memory": func(*testing.T) store.Backend { return memstore.New() },
	"sqlite": func(t *testing.T) store.Backend {
		s, err := sqlitestore.OpenMemory(context.Background())
		require.NoError(t, err)
		return s
	},
}

func companyNames(sections [][]mcompany.Company) []string {
	var out []string
	for _, section := range sections {
		for _, c := range section {
			out = append(out, c.DisplayName())
		}
	}
	return out
}

func lastNames(rec *testutil.Recorder[mcompany.Company]) []string {
	sections, _ := rec.Last()
	return companyNames(sections)
}

func TestCompanyScenario(t *testing.T) {
	t.Parallel()

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			b := newBackend(t)
			defer b.Close()

			rec := testutil.NewRecorder[mcompany.Company]()
			companies := interactor.NewCompany(b, rec.Delegate)
			defer companies.Close()

			id, err := companies.Insert(ctx, "Acme")
			require.NoError(t, err)
			assert.Equal(t, idwrap.KindString, id.Kind())

			require.NoError(t, companies.Load(ctx))
			sections, ok := rec.Last()
			require.True(t, ok)
			require.Len(t, sections, 1)
			require.Len(t, sections[0], 1)
			assert.Equal(t, "Acme", sections[0][0].DisplayName())
			assert.Equal(t, id, sections[0][0].ID)

			require.NoError(t, companies.Delete(ctx, sections[0][0]))
			require.Eventually(t, func() bool {
				last, _ := rec.Last()
				return len(last) == 1 && len(last[0]) == 0
			}, waitFor, 5*time.Millisecond)

			result := testutil.RunConcurrent(ctx, t, testutil.ConcurrencyTestConfig{NumGoroutines: 2},
				func(i int) string { return []string{"B", "A"}[i] },
				func(ctx context.Context, name string) error {
					_, err := companies.Insert(ctx, name)
					return err
				})
			require.Equal(t, 2, result.SuccessCount)
			require.Zero(t, result.TimeoutCount)

			require.Eventually(t, func() bool {
				return assert.ObjectsAreEqual([]string{"A", "B"}, lastNames(rec))
			}, waitFor, 5*time.Millisecond)
			assert.Equal(t, []string{"A", "B"}, companyNames([][]mcompany.Company{companies.Entities()}))
		})
	}
}

func TestInsertDoesNotPublishSynchronously(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	// Block the dispatcher so change notifications cannot be handled yet.
	d := serialdispatch.New(8)
	defer d.Close()

	rec := testutil.NewRecorder[mcompany.Company]()
	companies := interactor.NewCompany(b, rec.Delegate, interactor.WithDispatcher(d))
	defer companies.Close()
	require.NoError(t, companies.Load(ctx))

	release := make(chan struct{})
	require.NoError(t, d.Post(func() { <-release }))

	_, err := companies.Insert(ctx, "Acme")
	require.NoError(t, err)
	assert.Empty(t, companies.Entities())

	close(release)
	require.Eventually(t, func() bool { return len(companies.Entities()) == 1 }, waitFor, 5*time.Millisecond)
}

func TestRefreshMatchesBackend(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	rec := testutil.NewRecorder[mcompany.Company]()
	companies := interactor.NewCompany(b, rec.Delegate, interactor.WithKeyKind(idwrap.KindInt))
	defer companies.Close()

	require.ErrorIs(t, companies.Refresh(ctx), interactor.ErrNotLoaded)
	require.NoError(t, companies.Load(ctx))

	var ids []idwrap.Identifier
	for _, name := range []string{"delta", "alpha", "charlie", "bravo"} {
		id, err := companies.Insert(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, idwrap.KindInt, id.Kind())
		ids = append(ids, id)
	}
	require.NoError(t, companies.Delete(ctx, mcompany.Company{ID: ids[2]}))
	require.NoError(t, companies.Rename(ctx, mcompany.Company{ID: ids[0]}, ptr("echo")))
	require.NoError(t, companies.Rename(ctx, mcompany.Company{ID: ids[3]}, nil))

	require.NoError(t, companies.Refresh(ctx))
	assert.Equal(t, []string{"alpha", "echo", mcompany.NilName}, lastNames(rec))

	for _, c := range companies.Entities() {
		r, ok := companies.Record(c)
		require.True(t, ok)
		assert.Equal(t, c.ID, r.ID)
		assert.False(t, c.IsShared())
	}
}

func TestReloadSubscribesOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	rec := testutil.NewRecorder[mcompany.Company]()
	companies := interactor.NewCompany(b, rec.Delegate)
	defer companies.Close()

	require.NoError(t, companies.Load(ctx))
	require.NoError(t, companies.Load(ctx))
	assert.Equal(t, 2, rec.Count())

	_, err := companies.Insert(ctx, "Acme")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.Count() >= 3 }, waitFor, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 3, rec.Count())
}

func TestDeleteMissingIsNoop(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	companies := interactor.NewCompany(b, nil)
	defer companies.Close()
	require.NoError(t, companies.Delete(ctx, mcompany.Company{ID: idwrap.NewUUID()}))
}

func TestUpdateMissingIsNoop(t *testing.T) {
	t.Parallel()

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			b := newBackend(t)
			defer b.Close()

			logger, handler := mocklogger.NewMockLogger()
			companies := interactor.NewCompany(b, nil, interactor.WithLogger(logger))
			defer companies.Close()
			require.NoError(t, companies.Rename(ctx, mcompany.Company{ID: idwrap.NewString("gone")}, ptr("Ghost")))

			companyID, err := companies.Insert(ctx, "Acme")
			require.NoError(t, err)
			employees := interactor.NewEmployee(b, companyID, nil, interactor.WithLogger(logger))
			defer employees.Close()
			require.NoError(t, employees.Update(ctx, memployee.Employee{ID: idwrap.NewString("gone")}, nil, nil))

			assert.Empty(t, handler.Messages(slog.LevelError))
			_, err = b.Companies(store.OwnedPartition).Get(ctx, idwrap.NewString("gone"))
			assert.ErrorIs(t, err, store.ErrNotFound)
		})
	}
}

// racingBackend hands out sources that insert a company right after the
// first snapshot is read, before the interactor registers for changes.
type racingBackend struct {
	store.Backend
}

func (b racingBackend) Companies(partition string) store.Collection[store.CompanyRecord] {
	return racingCollection{Collection: b.Backend.Companies(partition)}
}

type racingCollection struct {
	store.Collection[store.CompanyRecord]
}

func (c racingCollection) Query(ctx context.Context, q livequery.Query) (livequery.Source[store.CompanyRecord], error) {
	src, err := c.Collection.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return &racingSource{Source: src, col: c.Collection}, nil
}

type racingSource struct {
	livequery.Source[store.CompanyRecord]
	col  store.Collection[store.CompanyRecord]
	once sync.Once
}

func (s *racingSource) Snapshot(ctx context.Context) ([]store.CompanyRecord, error) {
	recs, err := s.Source.Snapshot(ctx)
	s.once.Do(func() {
		_ = s.col.Insert(ctx, store.CompanyRecord{ID: idwrap.NewString("late"), Partition: store.OwnedPartition, Name: ptr("Late")})
	})
	return recs, err
}

func TestWriteBetweenSnapshotAndSubscribeIsPublished(t *testing.T) {
	t.Parallel()

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			b := newBackend(t)
			defer b.Close()

			rec := testutil.NewRecorder[mcompany.Company]()
			companies := interactor.NewCompany(racingBackend{Backend: b}, rec.Delegate)
			defer companies.Close()

			require.NoError(t, companies.Load(ctx))
			require.Eventually(t, func() bool {
				return assert.ObjectsAreEqual([]string{"Late"}, lastNames(rec))
			}, waitFor, 5*time.Millisecond)
		})
	}
}

func TestStoreErrorsAreReturnedAndLogged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	logger, handler := mocklogger.NewMockLogger()
	companies := interactor.NewCompany(b, nil, interactor.WithLogger(logger))
	defer companies.Close()

	boom := errors.New("disk full")
	b.FailWrites(boom)
	_, err := companies.Insert(ctx, "Acme")
	require.ErrorIs(t, err, boom)
	assert.True(t, handler.Contains("interactor: insert company"))
	assert.NotEmpty(t, handler.Messages(slog.LevelError))
}

func TestSharePredicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	var mu sync.Mutex
	sharedName := "Globex"
	calls := 0
	predicate := func(r store.CompanyRecord) bool {
		mu.Lock()
		defer mu.Unlock()
		calls++
		return r.Name != nil && *r.Name == sharedName
	}

	rec := testutil.NewRecorder[mcompany.Company]()
	companies := interactor.NewCompany(b, rec.Delegate, interactor.WithSharePredicate(predicate))
	defer companies.Close()

	for _, name := range []string{"Acme", "Globex"} {
		_, err := companies.Insert(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, companies.Load(ctx))

	entities := companies.Entities()
	require.Len(t, entities, 2)
	assert.False(t, entities[0].IsSharing())
	assert.True(t, entities[1].IsSharing())
	for _, c := range entities {
		assert.False(t, c.IsShared())
	}
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestDeleteAll(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	rec := testutil.NewRecorder[mcompany.Company]()
	companies := interactor.NewCompany(b, rec.Delegate)
	defer companies.Close()
	for _, name := range []string{"a", "b", "c"} {
		_, err := companies.Insert(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, companies.Load(ctx))
	require.NoError(t, companies.DeleteAll(ctx))
	require.NoError(t, companies.Refresh(ctx))
	assert.Empty(t, companies.Entities())
}

func TestEmployeeUpdateAndCascade(t *testing.T) {
	t.Parallel()

	for name, newBackend := range backends {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			b := newBackend(t)
			defer b.Close()

			companies := interactor.NewCompany(b, nil)
			defer companies.Close()
			companyID, err := companies.Insert(ctx, "Acme")
			require.NoError(t, err)

			rec := testutil.NewRecorder[memployee.Employee]()
			staff := interactor.NewEmployee(b, companyID, rec.Delegate)
			defer staff.Close()
			require.NoError(t, staff.Load(ctx))

			_, err = staff.Insert(ctx, "Ann")
			require.NoError(t, err)
			require.Eventually(t, func() bool { return len(staff.Entities()) == 1 }, waitFor, 5*time.Millisecond)

			ann := staff.Entities()[0]
			require.NoError(t, staff.Update(ctx, ann, nil, []byte("jpeg")))
			require.Eventually(t, func() bool {
				es := staff.Entities()
				return len(es) == 1 && es[0].DisplayName() == memployee.NilName
			}, waitFor, 5*time.Millisecond)
			assert.Equal(t, []byte("jpeg"), staff.Entities()[0].Photo)

			r, ok := staff.Record(ann)
			require.True(t, ok)
			assert.Equal(t, companyID, r.CompanyID)

			require.NoError(t, companies.Delete(ctx, mcompany.Company{ID: companyID}))
			require.Eventually(t, func() bool { return len(staff.Entities()) == 0 }, waitFor, 5*time.Millisecond)
		})
	}
}

func TestSharedInteractor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	require.NoError(t, b.Companies("zone-a").Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("Alpha")}))

	rec := testutil.NewRecorder[mcompany.Company]()
	shared := interactor.NewShared(b, rec.Delegate)
	defer shared.Close()

	require.ErrorIs(t, shared.Refresh(ctx), interactor.ErrNotLoaded)
	require.NoError(t, shared.Load(ctx))
	sections, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, []string{"Alpha"}, companyNames(sections))

	require.NoError(t, b.Companies("zone-b").Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("Beta")}))
	require.Eventually(t, func() bool {
		last, _ := rec.Last()
		return len(last) == 2 && assert.ObjectsAreEqual([]string{"Alpha", "Beta"}, companyNames(last))
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{"zone-a", "zone-b"}, shared.Partitions())

	for _, section := range shared.Entities() {
		for _, c := range section {
			assert.True(t, c.IsShared())
			assert.False(t, c.IsSharing())
			r, partition, ok := shared.Record(c)
			require.True(t, ok)
			assert.Equal(t, c.ID, r.ID)
			assert.NotEqual(t, store.OwnedPartition, partition)
		}
	}

	assert.ErrorIs(t, shared.Insert(ctx, "nope"), interactor.ErrReadOnly)
	assert.ErrorIs(t, shared.Delete(ctx, shared.Entities()[0][0]), interactor.ErrReadOnly)

	require.NoError(t, b.DropPartition(ctx, "zone-a"))
	require.Eventually(t, func() bool {
		last, _ := rec.Last()
		return assert.ObjectsAreEqual([]string{"Beta"}, companyNames(last))
	}, waitFor, 5*time.Millisecond)
}

func TestClosedInteractor(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := memstore.New()
	defer b.Close()

	companies := interactor.NewCompany(b, nil)
	require.NoError(t, companies.Load(ctx))
	require.NoError(t, companies.Close())
	require.NoError(t, companies.Close())
	assert.Error(t, companies.Load(ctx))
}
