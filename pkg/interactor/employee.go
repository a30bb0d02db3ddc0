package interactor

import (
	"context"
	"fmt"

	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/model/memployee"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/translate/temployee"
)

// Employee publishes the employees of one company.
type Employee struct {
	*single[store.EmployeeRecord, memployee.Employee]
	collection store.Collection[store.EmployeeRecord]
	companyID  idwrap.Identifier
	partition  string
	keyKind    idwrap.Kind
}

func NewEmployee(backend store.Backend, companyID idwrap.Identifier, delegate Delegate[memployee.Employee], opts ...Option) *Employee {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.query.NilName == "" {
		o.query.NilName = memployee.NilName
	}
	o.query.Filter.ParentID = companyID
	col := backend.Employees(o.partition)

	return &Employee{
		single:     newSingle(col, temployee.SerializeRecordsToModels, delegate, o),
		collection: col,
		companyID:  companyID,
		partition:  o.partition,
		keyKind:    o.keyKind,
	}
}

func (e *Employee) Insert(ctx context.Context, name string) (idwrap.Identifier, error) {
	id := idwrap.NewOfKind(e.keyKind)
	err := e.collection.Insert(ctx, store.EmployeeRecord{
		ID:        id,
		CompanyID: e.companyID,
		Partition: e.partition,
		Name:      &name,
	})
	if err != nil {
		e.logger.Error("interactor: insert employee", "error", err)
		return idwrap.Identifier{}, fmt.Errorf("interactor: insert employee: %w", err)
	}
	return id, nil
}

func (e *Employee) Delete(ctx context.Context, employee memployee.Employee) error {
	return deleteRecord(ctx, e.logger, e.collection, employee.ID)
}

// Update overwrites name and photo. Concurrent updates resolve last write
// wins; a nil name is published as memployee.NilName. Updating an employee
// that is already gone does nothing.
func (e *Employee) Update(ctx context.Context, employee memployee.Employee, name *string, photo []byte) error {
	return updateRecord(ctx, e.logger, e.collection, store.EmployeeRecord{
		ID:        employee.ID,
		CompanyID: e.companyID,
		Partition: e.partition,
		Name:      name,
		Photo:     photo,
	}, "update employee")
}

func (e *Employee) Record(employee memployee.Employee) (store.EmployeeRecord, bool) {
	return e.recordByID(employee.ID)
}
