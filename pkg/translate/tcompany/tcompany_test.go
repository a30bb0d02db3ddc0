package tcompany

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

func TestSerializeRecordToModel(t *testing.T) {
	name := "Acme"
	rec := store.CompanyRecord{ID: idwrap.NewInt(3), Name: &name, Partition: store.OwnedPartition}

	c := SerializeRecordToModel(rec, mcompany.ShareStateSharedByMe)
	require.NotNil(t, c.Name)
	assert.Equal(t, "Acme", *c.Name)
	assert.Equal(t, idwrap.NewInt(3), c.ID)
	assert.True(t, c.IsSharing())
	assert.False(t, c.IsShared())

	name = "changed"
	assert.Equal(t, "Acme", *c.Name)
}

func TestNilNameBecomesSentinel(t *testing.T) {
	c := SerializeRecordToModel(store.CompanyRecord{ID: idwrap.NewString("x")}, mcompany.ShareStateOwned)
	require.NotNil(t, c.Name)
	assert.Equal(t, mcompany.NilName, *c.Name)
	assert.Equal(t, mcompany.NilName, c.DisplayName())
}

func TestSerializeRecordsToModels(t *testing.T) {
	a, b := "a", "b"
	recs := []store.CompanyRecord{
		{ID: idwrap.NewInt(1), Name: &a},
		{ID: idwrap.NewInt(2), Name: &b},
	}

	owned := SerializeRecordsToModels(recs, nil)
	require.Len(t, owned, 2)
	for _, c := range owned {
		assert.False(t, c.IsSharing())
		assert.False(t, c.IsShared())
	}

	calls := 0
	shared := SerializeRecordsToModels(recs, func(r store.CompanyRecord) mcompany.ShareState {
		calls++
		if r.ID == idwrap.NewInt(2) {
			return mcompany.ShareStateSharedByMe
		}
		return mcompany.ShareStateOwned
	})
	assert.Equal(t, 2, calls)
	assert.False(t, shared[0].IsSharing())
	assert.True(t, shared[1].IsSharing())
}

func TestRoundTripToRecord(t *testing.T) {
	name := "Initech"
	c := mcompany.Company{Name: &name, ID: idwrap.NewUUID()}
	rec := SerializeModelToRecord(c, "zone")
	assert.Equal(t, c.ID, rec.ID)
	assert.Equal(t, "zone", rec.Partition)
	assert.Equal(t, "Initech", *rec.Name)
}
