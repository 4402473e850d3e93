// Package sqlite persists the order journal in a local SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alanyoungcy/wheelbot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS orders (
	id              TEXT PRIMARY KEY,
	broker          TEXT NOT NULL,
	symbol          TEXT NOT NULL,
	option_symbol   TEXT NOT NULL,
	action          TEXT NOT NULL,
	order_type      TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	limit_price     TEXT,
	broker_order_id TEXT NOT NULL DEFAULT '',
	reason          TEXT NOT NULL DEFAULT '',
	dry_run         INTEGER NOT NULL DEFAULT 0,
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders (created_at DESC);
`

// Journal is a SQLite-backed order journal.
type Journal struct {
	db *sql.DB
}

var _ domain.OrderJournal = (*Journal)(nil)

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// The driver is in-process; a single connection avoids write locking
	// surprises.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record appends one order record. A zero ID or CreatedAt is filled in.
func (j *Journal) Record(ctx context.Context, rec domain.OrderRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var limitPrice any
	if rec.LimitPrice != nil {
		limitPrice = rec.LimitPrice.String()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO orders (id, broker, symbol, option_symbol, action, order_type,
			quantity, limit_price, broker_order_id, reason, dry_run, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Broker, rec.Symbol, rec.OptionSymbol, string(rec.Action),
		string(rec.Type), rec.Quantity, limitPrice, rec.BrokerOrderID,
		rec.Reason, rec.DryRun, rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("sqlite: record order: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (j *Journal) ListRecent(ctx context.Context, limit int) ([]domain.OrderRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, broker, symbol, option_symbol, action, order_type,
			quantity, limit_price, broker_order_id, reason, dry_run, created_at
		FROM orders ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	defer rows.Close()

	var records []domain.OrderRecord
	for rows.Next() {
		var (
			rec        domain.OrderRecord
			action     string
			orderType  string
			limitPrice sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&rec.ID, &rec.Broker, &rec.Symbol, &rec.OptionSymbol,
			&action, &orderType, &rec.Quantity, &limitPrice, &rec.BrokerOrderID,
			&rec.Reason, &rec.DryRun, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scan order: %w", err)
		}
		rec.Action = domain.OrderAction(action)
		rec.Type = domain.OrderType(orderType)
		if limitPrice.Valid {
			price, err := decimal.NewFromString(limitPrice.String)
			if err != nil {
				return nil, fmt.Errorf("sqlite: parse limit price %q: %w", limitPrice.String, err)
			}
			rec.LimitPrice = &price
		}
		if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: parse created_at %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list orders: %w", err)
	}
	return records, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
