package temployee

import (
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

func SerializeRecordToModel(rec store.EmployeeRecord) memployee.Employee {
	name := memployee.NilName
	if rec.Name != nil {
		name = *rec.Name
	}
	return memployee.Employee{
		Name:  &name,
		ID:    rec.ID,
		Photo: rec.Photo,
	}
}

func SerializeRecordsToModels(recs []store.EmployeeRecord) []memployee.Employee {
	out := make([]memployee.Employee, 0, len(recs))
	for _, rec := range recs {
		out = append(out, SerializeRecordToModel(rec))
	}
	return out
}

func SerializeModelToRecord(e memployee.Employee, companyID idwrap.Identifier, partition string) store.EmployeeRecord {
	return store.EmployeeRecord{
		ID:        e.ID,
		CompanyID: companyID,
		Partition: partition,
		Name:      e.Name,
		Photo:     e.Photo,
	}
}
