package memstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/the-dev-tools/recordsync/pkg/dbtime"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

type companies struct {
	s         *Store
	partition string
}

func (c *companies) list(context.Context) ([]store.CompanyRecord, error) {
	if c.s.closed.Load() {
		return nil, store.ErrClosed
	}
	c.s.mu.RLock()
	m := c.s.companies[c.partition]
	c.s.mu.RUnlock()

	out := make([]store.CompanyRecord, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	return out, nil
}

func (c *companies) Query(_ context.Context, q livequery.Query) (livequery.Source[store.CompanyRecord], error) {
	if c.s.closed.Load() {
		return nil, store.ErrClosed
	}
	return livequery.New(c.list, c.s.streamer, store.EntityTopics(c.partition, mutation.EntityCompany), q)
}

func (c *companies) Get(_ context.Context, id idwrap.Identifier) (store.CompanyRecord, error) {
	c.s.mu.RLock()
	rec, ok := c.s.companies[c.partition][id]
	c.s.mu.RUnlock()
	if !ok {
		return store.CompanyRecord{}, fmt.Errorf("%w: company %s", store.ErrNotFound, id)
	}
	return rec, nil
}

func (c *companies) Insert(ctx context.Context, rec store.CompanyRecord) error {
	if rec.ID.IsZero() {
		return fmt.Errorf("%w: company without identifier", store.ErrInvalidRecord)
	}
	if err := store.ValidatePartition(c.partition); err != nil {
		return err
	}
	now := dbtime.DBNow()
	rec.Partition = c.partition
	rec.Name = cloneName(rec.Name)
	rec.CreatedAt, rec.UpdatedAt = now, now

	return c.s.write(ctx, func(mc *mutation.Context) error {
		if _, ok := c.s.companies[c.partition][rec.ID]; ok {
			return fmt.Errorf("%w: company %s", store.ErrConflict, rec.ID)
		}
		c.s.ensurePartition(mc, c.partition)
		next := cloneOrNew(c.s.companies[c.partition])
		next[rec.ID] = rec
		c.s.companies[c.partition] = next
		mc.Track(mutation.Event{
			Entity: mutation.EntityCompany, Op: mutation.OpInsert,
			ID: rec.ID, Partition: c.partition, Payload: rec,
		})
		return nil
	})
}

func (c *companies) Update(ctx context.Context, rec store.CompanyRecord) error {
	return c.s.write(ctx, func(mc *mutation.Context) error {
		old, ok := c.s.companies[c.partition][rec.ID]
		if !ok {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, rec.ID)
		}
		old.Name = cloneName(rec.Name)
		old.UpdatedAt = dbtime.DBNow()
		next := cloneOrNew(c.s.companies[c.partition])
		next[rec.ID] = old
		c.s.companies[c.partition] = next
		mc.Track(mutation.Event{
			Entity: mutation.EntityCompany, Op: mutation.OpUpdate,
			ID: rec.ID, Partition: c.partition, Payload: old,
		})
		return nil
	})
}

// Delete removes the company and its employees in one step.
func (c *companies) Delete(ctx context.Context, id idwrap.Identifier) error {
	return c.s.write(ctx, func(mc *mutation.Context) error {
		if _, ok := c.s.companies[c.partition][id]; !ok {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, id)
		}
		next := cloneOrNew(c.s.companies[c.partition])
		delete(next, id)
		c.s.companies[c.partition] = next

		var removed []idwrap.Identifier
		staff := cloneOrNew(c.s.employees[c.partition])
		for eid, emp := range staff {
			if emp.CompanyID == id {
				delete(staff, eid)
				removed = append(removed, eid)
			}
		}
		c.s.employees[c.partition] = staff
		slices.SortFunc(removed, idwrap.Identifier.Compare)

		for _, eid := range removed {
			mc.Track(mutation.Event{
				Entity: mutation.EntityEmployee, Op: mutation.OpDelete,
				ID: eid, Partition: c.partition, ParentID: id,
			})
		}
		mc.Track(mutation.Event{
			Entity: mutation.EntityCompany, Op: mutation.OpDelete,
			ID: id, Partition: c.partition,
		})
		return nil
	})
}

type employees struct {
	s         *Store
	partition string
}

func (e *employees) list(parent idwrap.Identifier) ([]store.EmployeeRecord, error) {
	if e.s.closed.Load() {
		return nil, store.ErrClosed
	}
	e.s.mu.RLock()
	m := e.s.employees[e.partition]
	e.s.mu.RUnlock()

	out := make([]store.EmployeeRecord, 0, len(m))
	for _, rec := range m {
		if !parent.IsZero() && rec.CompanyID != parent {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (e *employees) Query(_ context.Context, q livequery.Query) (livequery.Source[store.EmployeeRecord], error) {
	if e.s.closed.Load() {
		return nil, store.ErrClosed
	}
	parent := q.Filter.ParentID
	fetch := func(context.Context) ([]store.EmployeeRecord, error) {
		return e.list(parent)
	}
	return livequery.New(fetch, e.s.streamer, store.EntityTopics(e.partition, mutation.EntityEmployee), q)
}

func (e *employees) Get(_ context.Context, id idwrap.Identifier) (store.EmployeeRecord, error) {
	e.s.mu.RLock()
	rec, ok := e.s.employees[e.partition][id]
	e.s.mu.RUnlock()
	if !ok {
		return store.EmployeeRecord{}, fmt.Errorf("%w: employee %s", store.ErrNotFound, id)
	}
	return rec, nil
}

func (e *employees) Insert(ctx context.Context, rec store.EmployeeRecord) error {
	if rec.ID.IsZero() || rec.CompanyID.IsZero() {
		return fmt.Errorf("%w: employee needs an identifier and a company", store.ErrInvalidRecord)
	}
	now := dbtime.DBNow()
	rec.Partition = e.partition
	rec.Name = cloneName(rec.Name)
	rec.Photo = slices.Clone(rec.Photo)
	rec.CreatedAt, rec.UpdatedAt = now, now

	return e.s.write(ctx, func(mc *mutation.Context) error {
		if _, ok := e.s.companies[e.partition][rec.CompanyID]; !ok {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, rec.CompanyID)
		}
		if _, ok := e.s.employees[e.partition][rec.ID]; ok {
			return fmt.Errorf("%w: employee %s", store.ErrConflict, rec.ID)
		}
		next := cloneOrNew(e.s.employees[e.partition])
		next[rec.ID] = rec
		e.s.employees[e.partition] = next
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpInsert,
			ID: rec.ID, Partition: e.partition, ParentID: rec.CompanyID, Payload: rec,
		})
		return nil
	})
}

func (e *employees) Update(ctx context.Context, rec store.EmployeeRecord) error {
	return e.s.write(ctx, func(mc *mutation.Context) error {
		old, ok := e.s.employees[e.partition][rec.ID]
		if !ok {
			return fmt.Errorf("%w: employee %s", store.ErrNotFound, rec.ID)
		}
		old.Name = cloneName(rec.Name)
		old.Photo = slices.Clone(rec.Photo)
		old.UpdatedAt = dbtime.DBNow()
		next := cloneOrNew(e.s.employees[e.partition])
		next[rec.ID] = old
		e.s.employees[e.partition] = next
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpUpdate,
			ID: rec.ID, Partition: e.partition, ParentID: old.CompanyID, Payload: old,
		})
		return nil
	})
}

func (e *employees) Delete(ctx context.Context, id idwrap.Identifier) error {
	return e.s.write(ctx, func(mc *mutation.Context) error {
		old, ok := e.s.employees[e.partition][id]
		if !ok {
			return fmt.Errorf("%w: employee %s", store.ErrNotFound, id)
		}
		next := cloneOrNew(e.s.employees[e.partition])
		delete(next, id)
		e.s.employees[e.partition] = next
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpDelete,
			ID: id, Partition: e.partition, ParentID: old.CompanyID,
		})
		return nil
	})
}

type shares struct {
	s *Store
}

func (sh *shares) GetShare(_ context.Context, key string) ([]byte, error) {
	sh.s.mu.RLock()
	data, ok := sh.s.shares[key]
	sh.s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: share %s", store.ErrNotFound, key)
	}
	return slices.Clone(data), nil
}

func (sh *shares) PutShare(ctx context.Context, key string, data []byte) error {
	data = slices.Clone(data)
	return sh.s.write(ctx, func(mc *mutation.Context) error {
		next := cloneOrNew(sh.s.shares)
		next[key] = data
		sh.s.shares = next
		mc.Track(mutation.Event{Entity: mutation.EntityShare, Op: mutation.OpUpdate, Partition: store.OwnedPartition, Payload: key})
		return nil
	})
}

func (sh *shares) DeleteShare(ctx context.Context, key string) error {
	return sh.s.write(ctx, func(mc *mutation.Context) error {
		if _, ok := sh.s.shares[key]; !ok {
			return fmt.Errorf("%w: share %s", store.ErrNotFound, key)
		}
		next := cloneOrNew(sh.s.shares)
		delete(next, key)
		sh.s.shares = next
		mc.Track(mutation.Event{Entity: mutation.EntityShare, Op: mutation.OpDelete, Partition: store.OwnedPartition, Payload: key})
		return nil
	})
}

func (sh *shares) ListShares(context.Context) (map[string][]byte, error) {
	sh.s.mu.RLock()
	defer sh.s.mu.RUnlock()
	out := make(map[string][]byte, len(sh.s.shares))
	for k, v := range sh.s.shares {
		out[k] = slices.Clone(v)
	}
	return out, nil
}
