// Package sqlitestore is the SQLite backend. Every write runs in its own
// transaction through mutation.Context; change events reach live queries only
// after commit.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
	"github.com/pingcap/log"
	_ "modernc.org/sqlite"

	"github.com/the-dev-tools/recordsync/pkg/errmap"
	"github.com/the-dev-tools/recordsync/pkg/eventstream/memory"
	"github.com/the-dev-tools/recordsync/pkg/mutation"
	"github.com/the-dev-tools/recordsync/pkg/store"
	"github.com/the-dev-tools/recordsync/pkg/streamregistry"
)

var ErrDBPathNotFound = errors.New("sqlitestore: db path not found")

type Store struct {
	db       *sql.DB
	streamer *memory.Streamer[store.Topic, mutation.Event]
	registry *streamregistry.Registry
	logger   *slog.Logger
	closed   atomic.Bool
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

var _ store.Backend = (*Store)(nil)

// Open opens (creating if needed) the database file at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, ErrDBPathNotFound
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create directory: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?mode=rwc&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	return New(ctx, db, opts...)
}

// OpenMemory opens a private in-memory database.
func OpenMemory(ctx context.Context, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:recordsync_%s?mode=memory&cache=shared", ulid.Make().String())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open database: %w", err)
	}
	return New(ctx, db, opts...)
}

// New wraps an open database and creates the tables. The store owns db from
// here on.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlitestore: ping database: %w", err)
	}
	if err := CreateTables(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	streamer := memory.NewStreamer[store.Topic, mutation.Event]()
	s := &Store{
		db:       db,
		streamer: streamer,
		registry: store.NewRegistry(streamer),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Companies(partition string) store.Collection[store.CompanyRecord] {
	return &companies{s: s, partition: partition}
}

func (s *Store) Employees(partition string) store.Collection[store.EmployeeRecord] {
	return &employees{s: s, partition: partition}
}

func (s *Store) Shares() store.ShareStore {
	return &shares{s: s}
}

func (s *Store) Partitions(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM partitions ORDER BY created_at, key`)
	if err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list partitions", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errmap.Wrap(errmap.CodeLocalStore, "list partitions", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, errmap.Wrap(errmap.CodeLocalStore, "list partitions", err)
	}
	return keys, nil
}

func (s *Store) WatchPartitions(ctx context.Context, fn func()) error {
	return store.Watch(ctx, s.streamer, store.PartitionTopics, fn)
}

// CreatePartition is a no-op for an existing key.
func (s *Store) CreatePartition(ctx context.Context, key string) error {
	if err := validateShared(key); err != nil {
		return err
	}
	return s.write(ctx, "create partition", func(mc *mutation.Context) error {
		return ensurePartition(ctx, mc, key)
	})
}

func (s *Store) DropPartition(ctx context.Context, key string) error {
	if err := validateShared(key); err != nil {
		return err
	}
	return s.write(ctx, "drop partition", func(mc *mutation.Context) error {
		tx := mc.TX()
		res, err := tx.ExecContext(ctx, `DELETE FROM partitions WHERE key = ?`, key)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: partition %q", store.ErrNotFound, key)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM employees WHERE partition = ?`, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM companies WHERE partition = ?`, key); err != nil {
			return err
		}
		mc.Track(mutation.Event{Entity: mutation.EntityPartition, Op: mutation.OpDelete, Partition: key})
		return nil
	})
}

// Close shuts down every live subscription and the database.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.streamer.Shutdown()
	return s.db.Close()
}

// DB exposes the underlying handle for tests and tooling.
func (s *Store) DB() *sql.DB {
	return s.db
}

func validateShared(key string) error {
	if err := store.ValidatePartition(key); err != nil {
		return err
	}
	if key == store.OwnedPartition {
		return fmt.Errorf("%w: %q is reserved", store.ErrInvalidPartition, key)
	}
	return nil
}

// write runs fn in one transaction and publishes its events after commit.
func (s *Store) write(ctx context.Context, op string, fn func(mc *mutation.Context) error) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	mc := mutation.New(s.db, mutation.WithPublisher(s.registry))
	if err := mc.Begin(ctx); err != nil {
		return errmap.Wrap(errmap.CodeLocalStore, op, err)
	}
	defer TxnRollback(mc)

	if err := fn(mc); err != nil {
		var mapped *errmap.Error
		if errors.As(err, &mapped) {
			return err
		}
		s.logger.Error("sqlitestore: write failed", "op", op, "error", err)
		return errmap.Wrap(errmap.CodeLocalStore, op, err)
	}
	if err := mc.Commit(ctx); err != nil {
		s.logger.Error("sqlitestore: commit failed", "op", op, "error", err)
		return errmap.Wrap(errmap.CodeLocalStore, op, err)
	}
	return nil
}

// TxnRollback is meant to be deferred: it rolls back anything not committed
// and logs unexpected failures even after the caller has returned.
func TxnRollback(mc *mutation.Context) {
	if err := mc.Rollback(); err != nil {
		log.Error(err.Error())
	}
}
