package temployee

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

func TestSerializeRecordToModel(t *testing.T) {
	name := "Ann"
	e := SerializeRecordToModel(store.EmployeeRecord{ID: idwrap.NewInt(1), Name: &name, Photo: []byte{1}})
	assert.Equal(t, "Ann", e.DisplayName())
	assert.Equal(t, []byte{1}, e.Photo)

	e = SerializeRecordToModel(store.EmployeeRecord{ID: idwrap.NewInt(2), Photo: []byte{2}})
	require.NotNil(t, e.Name)
	assert.Equal(t, memployee.NilName, *e.Name)
}

func TestSerializeModelToRecord(t *testing.T) {
	company := idwrap.NewUUID()
	e := memployee.Employee{ID: idwrap.NewInt(5)}
	rec := SerializeModelToRecord(e, company, store.OwnedPartition)
	assert.Equal(t, company, rec.CompanyID)
	assert.Nil(t, rec.Name)
	assert.Len(t, SerializeRecordsToModels([]store.EmployeeRecord{rec, rec}), 2)
}
