package cachestore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteBackend stores cache entries in a SQLite database shared between
// process instances on the same host. It plays the "distributed store" role:
// coherency is eventual with bounded staleness, which is all the cache needs.
type SQLiteBackend struct {
	db *sql.DB
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	stored_at INTEGER NOT NULL,
	ttl_seconds INTEGER NOT NULL,
	swr_seconds INTEGER NOT NULL
);
`

func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) (*Entry, bool, error) {
	var value []byte
	var storedUnix, ttlSecs, swrSecs int64

	err := b.db.QueryRowContext(ctx,
		`SELECT value, stored_at, ttl_seconds, swr_seconds FROM cache_entries WHERE key = ?`,
		key,
	).Scan(&value, &storedUnix, &ttlSecs, &swrSecs)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	return &Entry{
		Value:    value,
		StoredAt: time.Unix(storedUnix, 0),
		TTL:      time.Duration(ttlSecs) * time.Second,
		SWR:      time.Duration(swrSecs) * time.Second,
	}, true, nil
}

func (b *SQLiteBackend) Set(ctx context.Context, key string, e *Entry) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, value, stored_at, ttl_seconds, swr_seconds)
		 VALUES (?, ?, ?, ?, ?)`,
		key, e.Value, e.StoredAt.Unix(), int64(e.TTL.Seconds()), int64(e.SWR.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) Delete(ctx context.Context, key string) error {
	if _, err := b.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

func (b *SQLiteBackend) HealthCheck(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// Purge removes entries whose stale window has fully elapsed.
func (b *SQLiteBackend) Purge(ctx context.Context) (int64, error) {
	res, err := b.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE stored_at + ttl_seconds + swr_seconds < ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
