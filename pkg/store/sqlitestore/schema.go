package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
)

// Identifier columns carry no declared type so SQLite keeps TEXT and INTEGER
// storage classes apart.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS partitions (
		key TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS companies (
		id NOT NULL,
		partition TEXT NOT NULL,
		name TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (partition, id)
	)`,
	`CREATE TABLE IF NOT EXISTS employees (
		id NOT NULL,
		partition TEXT NOT NULL,
		company_id NOT NULL,
		name TEXT,
		photo BLOB,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (partition, id)
	)`,
	`CREATE INDEX IF NOT EXISTS employees_company ON employees (partition, company_id)`,
	`CREATE TABLE IF NOT EXISTS shares (
		record_key TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

func CreateTables(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlitestore: create tables: %w", err)
		}
	}
	return nil
}
