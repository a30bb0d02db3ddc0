package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/the-dev-tools/recordsync/pkg/dbtime"
	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/store"
)

type shares struct {
	s *Store
}

func (sh *shares) GetShare(ctx context.Context, key string) ([]byte, error) {
	var data string
	err := sh.s.db.QueryRowContext(ctx, `SELECT data FROM shares WHERE record_key = ?`, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: share %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "get share", err)
	}
	return []byte(data), nil
}

func (sh *shares) PutShare(ctx context.Context, key string, data []byte) error {
	return sh.s.write(ctx, "put share", func(mc *mutation.Context) error {
		_, err := mc.TX().ExecContext(ctx,
			`INSERT INTO shares (record_key, data, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT (record_key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
			key, string(data), dbtime.UnixMilli(dbtime.DBNow()))
		if err != nil {
			return err
		}
		mc.Track(mutation.Event{Entity: mutation.EntityShare, Op: mutation.OpUpdate, Partition: store.OwnedPartition, Payload: key})
		return nil
	})
}

func (sh *shares) DeleteShare(ctx context.Context, key string) error {
	return sh.s.write(ctx, "delete share", func(mc *mutation.Context) error {
		res, err := mc.TX().ExecContext(ctx, `DELETE FROM shares WHERE record_key = ?`, key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: share %s", store.ErrNotFound, key)
		}
		mc.Track(mutation.Event{Entity: mutation.EntityShare, Op: mutation.OpDelete, Partition: store.OwnedPartition, Payload: key})
		return nil
	})
}

func (sh *shares) ListShares(ctx context.Context) (map[string][]byte, error) {
	rows, err := sh.s.db.QueryContext(ctx, `SELECT record_key, data FROM shares`)
	if err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list shares", err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var key, data string
		if err := rows.Scan(&key, &data); err != nil {
			return nil, errmap.Wrap(errmap.CodeLocalStore, "list shares", err)
		}
		out[key] = []byte(data)
	}
	if err := rows.Err(); err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list shares", err)
	}
	return out, nil
}
