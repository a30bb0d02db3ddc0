// Package storetest holds the conformance suite every store.Backend must pass.
package storetest

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

// Factory returns a fresh, empty backend. The suite closes it.
type Factory func(t *testing.T) store.Backend

func ptr(s string) *string { return &s }

// Run exercises the backend contract.
func Run(t *testing.T, newBackend Factory) {
	t.Run("CompanyCRUD", func(t *testing.T) { testCompanyCRUD(t, newBackend(t)) })
	t.Run("IdentifierKindsStayDistinct", func(t *testing.T) { testIdentifierKinds(t, newBackend(t)) })
	t.Run("EmployeesBelongToCompany", func(t *testing.T) { testEmployees(t, newBackend(t)) })
	t.Run("CompanyDeleteCascades", func(t *testing.T) { testCascade(t, newBackend(t)) })
	t.Run("LiveQueryNotifies", func(t *testing.T) { testLiveQuery(t, newBackend(t)) })
	t.Run("Partitions", func(t *testing.T) { testPartitions(t, newBackend(t)) })
	t.Run("Shares", func(t *testing.T) { testShares(t, newBackend(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newBackend(t)) })
}

func testCompanyCRUD(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	col := b.Companies(store.OwnedPartition)

	id := idwrap.NewUUID()
	require.NoError(t, col.Insert(ctx, store.CompanyRecord{ID: id, Name: ptr("Acme")}))
	require.ErrorIs(t, col.Insert(ctx, store.CompanyRecord{ID: id, Name: ptr("Again")}), store.ErrConflict)
	require.ErrorIs(t, col.Insert(ctx, store.CompanyRecord{Name: ptr("No id")}), store.ErrInvalidRecord)

	got, err := col.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Name)
	assert.Equal(t, "Acme", *got.Name)
	assert.Equal(t, store.OwnedPartition, got.Partition)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, col.Update(ctx, store.CompanyRecord{ID: id}))
	got, err = col.Get(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, got.Name)

	require.ErrorIs(t, col.Update(ctx, store.CompanyRecord{ID: idwrap.NewUUID()}), store.ErrNotFound)

	require.NoError(t, col.Delete(ctx, id))
	require.ErrorIs(t, col.Delete(ctx, id), store.ErrNotFound)
	_, err = col.Get(ctx, id)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testIdentifierKinds(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	col := b.Companies(store.OwnedPartition)

	require.NoError(t, col.Insert(ctx, store.CompanyRecord{ID: idwrap.NewString("1"), Name: ptr("text")}))
	require.NoError(t, col.Insert(ctx, store.CompanyRecord{ID: idwrap.NewInt(1), Name: ptr("number")}))

	got, err := col.Get(ctx, idwrap.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "number", *got.Name)
	assert.Equal(t, idwrap.KindInt, got.ID.Kind())

	got, err = col.Get(ctx, idwrap.NewString("1"))
	require.NoError(t, err)
	assert.Equal(t, "text", *got.Name)
	assert.Equal(t, idwrap.KindString, got.ID.Kind())
}

func testEmployees(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	companies := b.Companies(store.OwnedPartition)
	staff := b.Employees(store.OwnedPartition)

	acme, globex := idwrap.NewRandomInt(), idwrap.NewRandomInt()
	require.NoError(t, companies.Insert(ctx, store.CompanyRecord{ID: acme, Name: ptr("Acme")}))
	require.NoError(t, companies.Insert(ctx, store.CompanyRecord{ID: globex, Name: ptr("Globex")}))

	require.ErrorIs(t,
		staff.Insert(ctx, store.EmployeeRecord{ID: idwrap.NewUUID(), CompanyID: idwrap.NewUUID()}),
		store.ErrNotFound)

	ann := idwrap.NewUUID()
	require.NoError(t, staff.Insert(ctx, store.EmployeeRecord{ID: ann, CompanyID: acme, Name: ptr("Ann"), Photo: []byte{1, 2}}))
	require.NoError(t, staff.Insert(ctx, store.EmployeeRecord{ID: idwrap.NewUUID(), CompanyID: globex, Name: ptr("Bob")}))

	src, err := staff.Query(ctx, livequery.Query{Filter: livequery.Filter{ParentID: acme}})
	require.NoError(t, err)
	defer src.Close()
	rows, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ann, rows[0].ID)
	assert.Equal(t, acme, rows[0].CompanyID)
	assert.Equal(t, []byte{1, 2}, rows[0].Photo)

	require.NoError(t, staff.Update(ctx, store.EmployeeRecord{ID: ann, Photo: []byte{9}}))
	got, err := staff.Get(ctx, ann)
	require.NoError(t, err)
	assert.Nil(t, got.Name)
	assert.Equal(t, []byte{9}, got.Photo)
	assert.Equal(t, acme, got.CompanyID)

	require.NoError(t, staff.Delete(ctx, ann))
	require.ErrorIs(t, staff.Delete(ctx, ann), store.ErrNotFound)
}

func testCascade(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	companies := b.Companies(store.OwnedPartition)
	staff := b.Employees(store.OwnedPartition)

	acme, globex := idwrap.NewUUID(), idwrap.NewUUID()
	require.NoError(t, companies.Insert(ctx, store.CompanyRecord{ID: acme, Name: ptr("Acme")}))
	require.NoError(t, companies.Insert(ctx, store.CompanyRecord{ID: globex, Name: ptr("Globex")}))
	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, staff.Insert(ctx, store.EmployeeRecord{ID: idwrap.NewUUID(), CompanyID: acme, Name: ptr(name)}))
	}
	keep := idwrap.NewUUID()
	require.NoError(t, staff.Insert(ctx, store.EmployeeRecord{ID: keep, CompanyID: globex, Name: ptr("d")}))

	require.NoError(t, companies.Delete(ctx, acme))

	src, err := staff.Query(ctx, livequery.Query{})
	require.NoError(t, err)
	defer src.Close()
	rows, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, keep, rows[0].ID)
}

func testLiveQuery(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	col := b.Companies(store.OwnedPartition)

	src, err := col.Query(ctx, livequery.Query{})
	require.NoError(t, err)
	defer src.Close()

	var calls atomic.Int32
	require.NoError(t, src.OnChange(func() { calls.Add(1) }))
	require.ErrorIs(t, src.OnChange(func() {}), livequery.ErrAlreadySubscribed)

	// Writes to another partition stay invisible.
	require.NoError(t, b.Companies("zone-x").Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("Other")}))
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, col.Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("B")}))
	require.NoError(t, col.Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("A")}))
	require.Eventually(t, func() bool { return calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	rows, err := src.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", *rows[0].Name)
	assert.Equal(t, "B", *rows[1].Name)
}

func testPartitions(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()

	keys, err := b.Partitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, keys)

	var changes atomic.Int32
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	require.NoError(t, b.WatchPartitions(watchCtx, func() { changes.Add(1) }))

	require.NoError(t, b.CreatePartition(ctx, "zone-a"))
	require.NoError(t, b.CreatePartition(ctx, "zone-a"))
	require.NoError(t, b.Companies("zone-b").Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID(), Name: ptr("Shared")}))
	require.ErrorIs(t, b.CreatePartition(ctx, store.OwnedPartition), store.ErrInvalidPartition)
	require.ErrorIs(t, b.CreatePartition(ctx, ""), store.ErrInvalidPartition)

	keys, err = b.Partitions(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"zone-a", "zone-b"}, keys)
	require.Eventually(t, func() bool { return changes.Load() > 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.DropPartition(ctx, "zone-b"))
	require.ErrorIs(t, b.DropPartition(ctx, "zone-b"), store.ErrNotFound)
	keys, err = b.Partitions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"zone-a"}, keys)

	src, err := b.Companies("zone-b").Query(ctx, livequery.Query{})
	require.NoError(t, err)
	defer src.Close()
	rows, err := src.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func testShares(t *testing.T, b store.Backend) {
	defer b.Close()
	ctx := context.Background()
	sh := b.Shares()

	_, err := sh.GetShare(ctx, "s:x")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, sh.PutShare(ctx, "s:x", []byte(`{"id":"1"}`)))
	require.NoError(t, sh.PutShare(ctx, "s:x", []byte(`{"id":"2"}`)))
	data, err := sh.GetShare(ctx, "s:x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"2"}`, string(data))

	all, err := sh.ListShares(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, sh.DeleteShare(ctx, "s:x"))
	require.ErrorIs(t, sh.DeleteShare(ctx, "s:x"), store.ErrNotFound)
}

func testClosed(t *testing.T, b store.Backend) {
	ctx := context.Background()
	src, err := b.Companies(store.OwnedPartition).Query(ctx, livequery.Query{})
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err = src.Snapshot(ctx)
	assert.Error(t, err)
	assert.ErrorIs(t, b.Companies(store.OwnedPartition).Insert(ctx, store.CompanyRecord{ID: idwrap.NewUUID()}), store.ErrClosed)
	_, err = b.Partitions(ctx)
	assert.ErrorIs(t, err, store.ErrClosed)
}
