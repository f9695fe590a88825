// Package sqlite implements the durable seen store on an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// The composite primary key is the store's entire contract: one row per
// (channel, identity key), created once and never touched again.
const schema = `
CREATE TABLE IF NOT EXISTS seen (
    channel TEXT NOT NULL,
    key     TEXT NOT NULL,
    PRIMARY KEY (channel, key)
);`

// Store is a SQLite-backed seen store. It satisfies domain.SeenStore.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at the given path and applies the
// schema. The caller should call Close when done.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Exists reports whether the (channel, key) pair has been recorded.
func (s *Store) Exists(ctx context.Context, channel, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen WHERE channel = ? AND key = ?`, channel, key,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return true, nil
}

// InsertIfAbsent records the pair unless it already exists and reports
// whether a row was created. The uniqueness constraint makes the
// check-and-insert atomic under concurrent writers; a conflict is simply
// "already existed".
func (s *Store) InsertIfAbsent(ctx context.Context, channel, key string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO seen (channel, key)
		VALUES (?, ?)
		ON CONFLICT (channel, key) DO NOTHING`,
		channel, key,
	)
	if err != nil {
		return false, fmt.Errorf("insert seen: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Keys returns every identity key recorded for a channel, ordered.
func (s *Store) Keys(ctx context.Context, channel string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM seen WHERE channel = ? ORDER BY key`, channel,
	)
	if err != nil {
		return nil, fmt.Errorf("query keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// ChannelCount is the number of recorded identities in one channel.
type ChannelCount struct {
	Channel string
	Count   int64
}

// Counts returns per-channel record counts, ordered by channel.
func (s *Store) Counts(ctx context.Context) ([]ChannelCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT channel, COUNT(*) FROM seen GROUP BY channel ORDER BY channel`,
	)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	var counts []ChannelCount
	for rows.Next() {
		var cc ChannelCount
		if err := rows.Scan(&cc.Channel, &cc.Count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts = append(counts, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}
