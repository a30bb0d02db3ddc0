package tcompany

import (
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

// SerializeRecordToModel translates a stored company. A missing name becomes
// mcompany.NilName so the entity always has something to display.
func SerializeRecordToModel(rec store.CompanyRecord, sharing mcompany.ShareState) mcompany.Company {
	name := mcompany.NilName
	if rec.Name != nil {
		name = *rec.Name
	}
	return mcompany.Company{
		Name:    &name,
		ID:      rec.ID,
		Sharing: sharing,
	}
}

func SerializeRecordsToModels(recs []store.CompanyRecord, sharing func(store.CompanyRecord) mcompany.ShareState) []mcompany.Company {
	out := make([]mcompany.Company, 0, len(recs))
	for _, rec := range recs {
		state := mcompany.ShareStateOwned
		if sharing != nil {
			state = sharing(rec)
		}
		out = append(out, SerializeRecordToModel(rec, state))
	}
	return out
}

func SerializeModelToRecord(c mcompany.Company, partition string) store.CompanyRecord {
	return store.CompanyRecord{
		ID:        c.ID,
		Partition: partition,
		Name:      c.Name,
	}
}
