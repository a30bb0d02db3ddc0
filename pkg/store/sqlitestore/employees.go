package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/the-dev-tools/recordsync/pkg/dbtime"
	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/idwrap"
	"github.com/the-dev-tools/recordsync/pkg/livequery"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

const employeeColumns = `id, partition, company_id, name, photo, created_at, updated_at`

type employees struct {
	s         *Store
	partition string
}

func scanEmployee(row rowScanner) (store.EmployeeRecord, error) {
	var (
		rec              store.EmployeeRecord
		name             sql.NullString
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.Partition, &rec.CompanyID, &name, &rec.Photo, &created, &updated); err != nil {
		return store.EmployeeRecord{}, err
	}
	if name.Valid {
		rec.Name = &name.String
	}
	rec.CreatedAt = dbtime.FromUnixMilli(created)
	rec.UpdatedAt = dbtime.FromUnixMilli(updated)
	return rec, nil
}

func (e *employees) list(ctx context.Context, companyID idwrap.Identifier) ([]store.EmployeeRecord, error) {
	if e.s.closed.Load() {
		return nil, store.ErrClosed
	}
	query := `SELECT ` + employeeColumns + ` FROM employees WHERE partition = ?`
	args := []any{e.partition}
	if !companyID.IsZero() {
		query += ` AND company_id = ?`
		args = append(args, companyID)
	}
	rows, err := e.s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list employees", err)
	}
	defer rows.Close()

	var out []store.EmployeeRecord
	for rows.Next() {
		rec, err := scanEmployee(rows)
		if err != nil {
			return nil, errmap.Wrap(errmap.CodeLocalStore, "list employees", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list employees", err)
	}
	return out, nil
}

// Query pushes Filter.ParentID down as the owning company.
func (e *employees) Query(_ context.Context, q livequery.Query) (livequery.Source[store.EmployeeRecord], error) {
	if e.s.closed.Load() {
		return nil, store.ErrClosed
	}
	parent := q.Filter.ParentID
	fetch := func(ctx context.Context) ([]store.EmployeeRecord, error) {
		return e.list(ctx, parent)
	}
	return livequery.New(fetch, e.s.streamer, store.EntityTopics(e.partition, mutation.EntityEmployee), q)
}

func (e *employees) Get(ctx context.Context, id idwrap.Identifier) (store.EmployeeRecord, error) {
	row := e.s.db.QueryRowContext(ctx,
		`SELECT `+employeeColumns+` FROM employees WHERE partition = ? AND id = ?`, e.partition, id)
	rec, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.EmployeeRecord{}, fmt.Errorf("%w: employee %s", store.ErrNotFound, id)
	}
	if err != nil {
		return store.EmployeeRecord{}, errmap.Wrap(errmap.CodeLocalStore, "get employee", err)
	}
	return rec, nil
}

// Insert requires the owning company to exist in the same partition.
func (e *employees) Insert(ctx context.Context, rec store.EmployeeRecord) error {
	if rec.ID.IsZero() || rec.CompanyID.IsZero() {
		return fmt.Errorf("%w: employee needs an identifier and a company", store.ErrInvalidRecord)
	}
	now := dbtime.DBNow()
	rec.Partition = e.partition
	rec.CreatedAt, rec.UpdatedAt = now, now

	return e.s.write(ctx, "insert employee", func(mc *mutation.Context) error {
		if err := ensurePartition(ctx, mc, e.partition); err != nil {
			return err
		}
		tx := mc.TX()
		var one int
		err := tx.QueryRowContext(ctx,
			`SELECT 1 FROM companies WHERE partition = ? AND id = ?`, e.partition, rec.CompanyID).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, rec.CompanyID)
		}
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO employees (`+employeeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT (partition, id) DO NOTHING`,
			rec.ID, rec.Partition, rec.CompanyID, rec.Name, rec.Photo, dbtime.UnixMilli(now), dbtime.UnixMilli(now))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: employee %s", store.ErrConflict, rec.ID)
		}
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpInsert,
			ID: rec.ID, Partition: e.partition, ParentID: rec.CompanyID, Payload: rec,
		})
		return nil
	})
}

// Update overwrites name and photo; the owning company never changes.
func (e *employees) Update(ctx context.Context, rec store.EmployeeRecord) error {
	now := dbtime.DBNow()
	return e.s.write(ctx, "update employee", func(mc *mutation.Context) error {
		tx := mc.TX()
		var companyID idwrap.Identifier
		err := tx.QueryRowContext(ctx,
			`UPDATE employees SET name = ?, photo = ?, updated_at = ? WHERE partition = ? AND id = ? RETURNING company_id`,
			rec.Name, rec.Photo, dbtime.UnixMilli(now), e.partition, rec.ID).Scan(&companyID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: employee %s", store.ErrNotFound, rec.ID)
		}
		if err != nil {
			return err
		}
		rec.Partition = e.partition
		rec.CompanyID = companyID
		rec.UpdatedAt = now
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpUpdate,
			ID: rec.ID, Partition: e.partition, ParentID: companyID, Payload: rec,
		})
		return nil
	})
}

func (e *employees) Delete(ctx context.Context, id idwrap.Identifier) error {
	return e.s.write(ctx, "delete employee", func(mc *mutation.Context) error {
		var companyID idwrap.Identifier
		err := mc.TX().QueryRowContext(ctx,
			`DELETE FROM employees WHERE partition = ? AND id = ? RETURNING company_id`, e.partition, id).Scan(&companyID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: employee %s", store.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		mc.Track(mutation.Event{
			Entity: mutation.EntityEmployee, Op: mutation.OpDelete,
			ID: id, Partition: e.partition, ParentID: companyID,
		})
		return nil
	})
}
