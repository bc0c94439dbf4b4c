package alert

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteRepository persists alerts in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

const createAlertsTable = `
CREATE TABLE IF NOT EXISTS price_alerts (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	origin TEXT NOT NULL,
	destination TEXT NOT NULL,
	target_price REAL NOT NULL,
	current_price REAL,
	active INTEGER NOT NULL DEFAULT 1,
	triggered INTEGER NOT NULL DEFAULT 0,
	triggered_at DATETIME,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_active ON price_alerts(active, triggered);
`

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open alerts db: %w", err)
	}
	if _, err := db.Exec(createAlertsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate alerts db: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// Create inserts a new active alert and returns its ID.
func (r *SQLiteRepository) Create(ctx context.Context, userID, origin, destination string, targetPrice float64) (string, error) {
	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO price_alerts (id, user_id, origin, destination, target_price, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, userID, origin, destination, targetPrice, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("create alert: %w", err)
	}
	return id, nil
}

// ListActive returns alerts still being watched: active and not yet triggered.
func (r *SQLiteRepository) ListActive(ctx context.Context) ([]PriceAlert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, origin, destination, target_price, current_price, active, triggered, triggered_at, created_at
		 FROM price_alerts WHERE active = 1 AND triggered = 0 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("list active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []PriceAlert
	for rows.Next() {
		var a PriceAlert
		var current sql.NullFloat64
		var triggeredAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.UserID, &a.Origin, &a.Destination, &a.TargetPrice,
			&current, &a.Active, &a.Triggered, &triggeredAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		if current.Valid {
			v := current.Float64
			a.CurrentPrice = &v
		}
		if triggeredAt.Valid {
			ts := triggeredAt.Time
			a.TriggeredAt = &ts
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkTriggered transitions an alert to its terminal state. A triggered alert
// is no longer active, so it drops out of ListActive permanently.
func (r *SQLiteRepository) MarkTriggered(ctx context.Context, id string, price float64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE price_alerts SET triggered = 1, active = 0, current_price = ?, triggered_at = ?
		 WHERE id = ? AND triggered = 0`,
		price, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark triggered result: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("alert %s not found or already triggered", id)
	}
	return nil
}

// UpdateCurrentPrice records the latest observed price on a watched alert.
func (r *SQLiteRepository) UpdateCurrentPrice(ctx context.Context, id string, price float64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE price_alerts SET current_price = ? WHERE id = ?`, price, id,
	); err != nil {
		return fmt.Errorf("update current price: %w", err)
	}
	return nil
}

// Get fetches a single alert by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*PriceAlert, error) {
	var a PriceAlert
	var current sql.NullFloat64
	var triggeredAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, origin, destination, target_price, current_price, active, triggered, triggered_at, created_at
		 FROM price_alerts WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &a.Origin, &a.Destination, &a.TargetPrice,
		&current, &a.Active, &a.Triggered, &triggeredAt, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("alert %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if current.Valid {
		v := current.Float64
		a.CurrentPrice = &v
	}
	if triggeredAt.Valid {
		ts := triggeredAt.Time
		a.TriggeredAt = &ts
	}
	return &a, nil
}

// Deactivate stops watching an alert without triggering it.
func (r *SQLiteRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE price_alerts SET active = 0 WHERE id = ?`, id,
	); err != nil {
		return fmt.Errorf("deactivate alert: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
