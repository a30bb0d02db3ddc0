package interactor

import (
	"context"
	"errors"
	"fmt"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/model/mcompany"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/translate/tcompany"
)

// Company publishes the companies of one partition, the owned one unless
// WithPartition says otherwise.
type Company struct {
	*single[store.CompanyRecord, mcompany.Company]
	collection store.Collection[store.CompanyRecord]
	partition  string
	keyKind    idwrap.Kind
}

func NewCompany(backend store.Backend, delegate Delegate[mcompany.Company], opts ...Option) *Company {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.query.NilName == "" {
		o.query.NilName = mcompany.NilName
	}
	col := backend.Companies(o.partition)

	isShared := o.isShared
	translate := func(recs []store.CompanyRecord) []mcompany.Company {
		if isShared == nil {
			return tcompany.SerializeRecordsToModels(recs, nil)
		}
		return tcompany.SerializeRecordsToModels(recs, func(rec store.CompanyRecord) mcompany.ShareState {
			if isShared(rec) {
				return mcompany.ShareStateSharedByMe
			}
			return mcompany.ShareStateOwned
		})
	}

	return &Company{
		single:     newSingle(col, translate, delegate, o),
		collection: col,
		partition:  o.partition,
		keyKind:    o.keyKind,
	}
}

// Insert stores a new company and returns its identifier. The published
// entities pick it up through the change notification, not synchronously.
func (c *Company) Insert(ctx context.Context, name string) (idwrap.Identifier, error) {
	id := idwrap.NewOfKind(c.keyKind)
	err := c.collection.Insert(ctx, store.CompanyRecord{ID: id, Partition: c.partition, Name: &name})
	if err != nil {
		c.logger.Error("interactor: insert company", "error", err)
		return idwrap.Identifier{}, fmt.Errorf("interactor: insert company: %w", err)
	}
	return id, nil
}

// Delete removes the company and its employees. A company that is already
// gone is not an error.
func (c *Company) Delete(ctx context.Context, company mcompany.Company) error {
	return deleteRecord(ctx, c.logger, c.collection, company.ID)
}

// Rename overwrites the company name; nil clears it. Renaming a company that
// is already gone does nothing.
func (c *Company) Rename(ctx context.Context, company mcompany.Company, name *string) error {
	return updateRecord(ctx, c.logger, c.collection, store.CompanyRecord{ID: company.ID, Partition: c.partition, Name: name}, "rename company")
}

// DeleteAll removes every company of the partition.
func (c *Company) DeleteAll(ctx context.Context) error {
	src, err := c.collection.Query(ctx, livequery.Query{Sort: livequery.SortNone})
	if err != nil {
		return fmt.Errorf("interactor: delete all: %w", err)
	}
	defer src.Close()

	recs, err := src.Snapshot(ctx)
	if err != nil {
		c.logger.Error("interactor: delete all", "error", err)
		return fmt.Errorf("interactor: delete all: %w", err)
	}
	var errs []error
	for _, rec := range recs {
		if err := deleteRecord(ctx, c.logger, c.collection, rec.ID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Record returns the stored record behind company.
func (c *Company) Record(company mcompany.Company) (store.CompanyRecord, bool) {
	return c.recordByID(company.ID)
}
