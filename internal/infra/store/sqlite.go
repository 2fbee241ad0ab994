// Package store persists per-recipient subscription records in SQLite.
//
// The record shape per recipient is {subscribed bool, tags []string}; the
// keyword list is stored as a JSON array. Recipients are never hard-deleted:
// unsubscribing clears the flag and keeps the keyword history.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedrelay/internal/domain/entity"
)

// SQLite implements the subscription store backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// Open opens (or creates) the SQLite database at dsn, enables WAL mode,
// and bootstraps the schema.
func Open(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
    recipient_id TEXT PRIMARY KEY,
    subscribed   INTEGER NOT NULL DEFAULT 1,
    tags         TEXT NOT NULL DEFAULT '[]',
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL
)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create subscribers table: %w", err)
	}

	return &SQLite{db: db}, nil
}

// DB exposes the underlying handle so other single-table owners (the
// durable cache tier) can share the same database file.
func (s *SQLite) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListAll returns every subscriber record keyed by recipient ID.
// An empty store yields an empty map and no error; only real store
// failures return an error.
func (s *SQLite) ListAll(ctx context.Context) (map[string]entity.Subscriber, error) {
	const query = `
SELECT recipient_id, subscribed, tags
FROM subscribers
ORDER BY recipient_id ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ListAll: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	subscribers := make(map[string]entity.Subscriber)
	for rows.Next() {
		var (
			recipientID string
			subscribed  int
			tagsJSON    string
		)
		if err := rows.Scan(&recipientID, &subscribed, &tagsJSON); err != nil {
			return nil, fmt.Errorf("ListAll: Scan: %w", err)
		}

		var tags []string
		if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
			// One corrupt row must not freeze the whole listing; skip it
			// and keep the rest deliverable.
			slog.Warn("skipping subscriber with malformed tags",
				slog.String("recipient_id", recipientID),
				slog.Any("error", err))
			continue
		}

		subscribers[recipientID] = entity.Subscriber{
			RecipientID: recipientID,
			Subscribed:  subscribed != 0,
			Keywords:    entity.NormalizeKeywords(tags),
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAll: rows.Err: %w", err)
	}
	return subscribers, nil
}

// Upsert creates or updates a recipient's record. Keywords are normalized
// before writing so the stored set never contains empty or duplicate terms.
func (s *SQLite) Upsert(ctx context.Context, recipientID string, subscribed bool, keywords []string) error {
	normalized := entity.NormalizeKeywords(keywords)
	tagsJSON, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("Upsert: marshal tags: %w", err)
	}

	now := time.Now().UTC().Unix()
	const query = `
INSERT INTO subscribers (recipient_id, subscribed, tags, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (recipient_id) DO UPDATE SET
    subscribed = excluded.subscribed,
    tags = excluded.tags,
    updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, recipientID, boolToInt(subscribed), string(tagsJSON), now, now); err != nil {
		return fmt.Errorf("Upsert: ExecContext: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
