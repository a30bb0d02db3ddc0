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

type companies struct {
	s         *Store
	partition string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCompany(row rowScanner) (store.CompanyRecord, error) {
	var (
		rec              store.CompanyRecord
		name             sql.NullString
		created, updated int64
	)
	if err := row.Scan(&rec.ID, &rec.Partition, &name, &created, &updated); err != nil {
		return store.CompanyRecord{}, err
	}
	if name.Valid {
		rec.Name = &name.String
	}
	rec.CreatedAt = dbtime.FromUnixMilli(created)
	rec.UpdatedAt = dbtime.FromUnixMilli(updated)
	return rec, nil
}

func (c *companies) list(ctx context.Context) ([]store.CompanyRecord, error) {
	if c.s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := c.s.db.QueryContext(ctx,
		`SELECT id, partition, name, created_at, updated_at FROM companies WHERE partition = ?`, c.partition)
	if err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list companies", err)
	}
	defer rows.Close()

	var out []store.CompanyRecord
	for rows.Next() {
		rec, err := scanCompany(rows)
		if err != nil {
			return nil, errmap.Wrap(errmap.CodeLocalStore, "list companies", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list companies", err)
	}
	return out, nil
}

func (c *companies) Query(_ context.Context, q livequery.Query) (livequery.Source[store.CompanyRecord], error) {
	if c.s.closed.Load() {
		return nil, store.ErrClosed
	}
	return livequery.New(c.list, c.s.streamer, store.EntityTopics(c.partition, mutation.EntityCompany), q)
}

func (c *companies) Get(ctx context.Context, id idwrap.Identifier) (store.CompanyRecord, error) {
	row := c.s.db.QueryRowContext(ctx,
		`SELECT id, partition, name, created_at, updated_at FROM companies WHERE partition = ? AND id = ?`,
		c.partition, id)
	rec, err := scanCompany(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.CompanyRecord{}, fmt.Errorf("%w: company %s", store.ErrNotFound, id)
	}
	if err != nil {
		return store.CompanyRecord{}, errmap.Wrap(errmap.CodeLocalStore, "get company", err)
	}
	return rec, nil
}

func (c *companies) Insert(ctx context.Context, rec store.CompanyRecord) error {
	if rec.ID.IsZero() {
		return fmt.Errorf("%w: company without identifier", store.ErrInvalidRecord)
	}
	now := dbtime.DBNow()
	rec.Partition = c.partition
	rec.CreatedAt, rec.UpdatedAt = now, now

	return c.s.write(ctx, "insert company", func(mc *mutation.Context) error {
		if err := ensurePartition(ctx, mc, c.partition); err != nil {
			return err
		}
		res, err := mc.TX().ExecContext(ctx,
			`INSERT INTO companies (id, partition, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (partition, id) DO NOTHING`,
			rec.ID, rec.Partition, rec.Name, dbtime.UnixMilli(now), dbtime.UnixMilli(now))
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: company %s", store.ErrConflict, rec.ID)
		}
		mc.Track(mutation.Event{
			Entity: mutation.EntityCompany, Op: mutation.OpInsert,
			ID: rec.ID, Partition: c.partition, Payload: rec,
		})
		return nil
	})
}

func (c *companies) Update(ctx context.Context, rec store.CompanyRecord) error {
	now := dbtime.DBNow()
	return c.s.write(ctx, "update company", func(mc *mutation.Context) error {
		res, err := mc.TX().ExecContext(ctx,
			`UPDATE companies SET name = ?, updated_at = ? WHERE partition = ? AND id = ?`,
			rec.Name, dbtime.UnixMilli(now), c.partition, rec.ID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, rec.ID)
		}
		rec.Partition = c.partition
		rec.UpdatedAt = now
		mc.Track(mutation.Event{
			Entity: mutation.EntityCompany, Op: mutation.OpUpdate,
			ID: rec.ID, Partition: c.partition, Payload: rec,
		})
		return nil
	})
}

// Delete removes the company and, in the same transaction, its employees.
func (c *companies) Delete(ctx context.Context, id idwrap.Identifier) error {
	return c.s.write(ctx, "delete company", func(mc *mutation.Context) error {
		tx := mc.TX()
		res, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE partition = ? AND id = ?`, c.partition, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: company %s", store.ErrNotFound, id)
		}

		rows, err := tx.QueryContext(ctx,
			`DELETE FROM employees WHERE partition = ? AND company_id = ? RETURNING id`, c.partition, id)
		if err != nil {
			return err
		}
		var removed []idwrap.Identifier
		for rows.Next() {
			var eid idwrap.Identifier
			if err := rows.Scan(&eid); err != nil {
				rows.Close()
				return err
			}
			removed = append(removed, eid)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if err := rows.Err(); err != nil {
			return err
		}

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

// ensurePartition registers a shared partition the first time a record lands
// in it.
func ensurePartition(ctx context.Context, mc *mutation.Context, partition string) error {
	if partition == store.OwnedPartition {
		return nil
	}
	if err := store.ValidatePartition(partition); err != nil {
		return err
	}
	res, err := mc.TX().ExecContext(ctx,
		`INSERT INTO partitions (key, created_at) VALUES (?, ?) ON CONFLICT (key) DO NOTHING`,
		partition, dbtime.UnixMilli(dbtime.DBNow()))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		mc.Track(mutation.Event{Entity: mutation.EntityPartition, Op: mutation.OpInsert, Partition: partition})
	}
	return nil
}
