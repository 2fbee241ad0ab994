package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLiteTier implements DurableTier backed by a SQLite table.
//
// Rows are only ever replaced, never expired: a row older than its
// category TTL is invisible to Get but still serves GetStale, which makes
// every row its own stale shadow.
type SQLiteTier struct {
	db *sql.DB
}

// NewSQLiteTier creates the cache table if needed and returns the tier.
// The *sql.DB is shared with the subscription store; the tier owns only
// its own table.
func NewSQLiteTier(db *sql.DB) (*SQLiteTier, error) {
	const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    category    TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       TEXT NOT NULL,
    inserted_at INTEGER NOT NULL,
    PRIMARY KEY (category, key)
)`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create cache table: %w", err)
	}
	return &SQLiteTier{db: db}, nil
}

// Get implements DurableTier.
func (t *SQLiteTier) Get(ctx context.Context, category, key string) (string, time.Time, bool, error) {
	const query = `
SELECT value, inserted_at
FROM cache_entries
WHERE category = ? AND key = ?
LIMIT 1`
	var value string
	var insertedUnix int64
	err := t.db.QueryRowContext(ctx, query, category, key).Scan(&value, &insertedUnix)
	if err == sql.ErrNoRows {
		return "", time.Time{}, false, nil
	}
	if err != nil {
		return "", time.Time{}, false, fmt.Errorf("Get: QueryRowContext: %w", err)
	}
	return value, time.Unix(insertedUnix, 0), true, nil
}

// GetStale implements DurableTier.
func (t *SQLiteTier) GetStale(ctx context.Context, category, key string) (string, bool, error) {
	const query = `
SELECT value
FROM cache_entries
WHERE category = ? AND key = ?
LIMIT 1`
	var value string
	err := t.db.QueryRowContext(ctx, query, category, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("GetStale: QueryRowContext: %w", err)
	}
	return value, true, nil
}

// Set implements DurableTier.
func (t *SQLiteTier) Set(ctx context.Context, category, key, value string, insertedAt time.Time) error {
	const query = `
INSERT INTO cache_entries (category, key, value, inserted_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (category, key) DO UPDATE SET
    value = excluded.value,
    inserted_at = excluded.inserted_at`
	if _, err := t.db.ExecContext(ctx, query, category, key, value, insertedAt.Unix()); err != nil {
		return fmt.Errorf("Set: ExecContext: %w", err)
	}
	return nil
}

// Delete implements DurableTier.
func (t *SQLiteTier) Delete(ctx context.Context, category, key string) error {
	const query = `DELETE FROM cache_entries WHERE category = ? AND key = ?`
	if _, err := t.db.ExecContext(ctx, query, category, key); err != nil {
		return fmt.Errorf("Delete: ExecContext: %w", err)
	}
	return nil
}
