package quota

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCounter keeps usage counters in a SQLite database shared between
// process instances. The conditional upsert makes increment-below-limit a
// single atomic statement, so concurrent callers never push a window past
// its limit.
type SQLiteCounter struct {
	db *sql.DB
}

const createCountersTable = `
CREATE TABLE IF NOT EXISTS usage_counters (
	key TEXT PRIMARY KEY,
	count INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);
`

func NewSQLiteCounter(dbPath string) (*SQLiteCounter, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open counter db: %w", err)
	}
	if _, err := db.Exec(createCountersTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate counter db: %w", err)
	}
	return &SQLiteCounter{db: db}, nil
}

func (c *SQLiteCounter) Increment(ctx context.Context, key string, limit int64, expiry time.Duration) (int64, bool, error) {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO usage_counters (key, count, expires_at) VALUES (?, 1, ?)
		 ON CONFLICT(key) DO UPDATE SET count = count + 1 WHERE usage_counters.count < ?`,
		key, time.Now().Add(expiry).Unix(), limit,
	)
	if err != nil {
		return 0, false, fmt.Errorf("counter increment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("counter increment result: %w", err)
	}

	count, err := c.Count(ctx, key)
	if err != nil {
		return 0, false, err
	}
	return count, affected > 0, nil
}

func (c *SQLiteCounter) Count(ctx context.Context, key string) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT count FROM usage_counters WHERE key = ?`, key).Scan(&count)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("counter read: %w", err)
	}
	return count, nil
}

func (c *SQLiteCounter) Reset(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM usage_counters WHERE key = ?`, key); err != nil {
		return fmt.Errorf("counter reset: %w", err)
	}
	return nil
}

func (c *SQLiteCounter) HealthCheck(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Purge removes counters for windows that have fully expired.
func (c *SQLiteCounter) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM usage_counters WHERE expires_at < ?`, time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("counter purge: %w", err)
	}
	return res.RowsAffected()
}

func (c *SQLiteCounter) Close() error {
	return c.db.Close()
}
