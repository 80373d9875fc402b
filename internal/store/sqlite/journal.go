// Package sqlite persists the relay's trade log: every order placement
// forwarded to the broker, for analysis and audit.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"traderelay/internal/model"
)

// Journal is a single-writer SQLite order journal.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) the journal database with WAL mode.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS orders (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		side        TEXT NOT NULL,
		type        TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		status      TEXT NOT NULL,
		placed_at   DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);
	CREATE INDEX IF NOT EXISTS idx_orders_placed_at ON orders(placed_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	slog.Info("order journal opened", slog.String("path", dbPath))
	return &Journal{db: db}, nil
}

// RecordOrder persists one forwarded order placement.
func (j *Journal) RecordOrder(rec model.OrderRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO orders (order_id, symbol, side, type, qty, price, status, placed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID,
		rec.Symbol,
		rec.Side,
		rec.Type,
		rec.Qty,
		rec.Price,
		rec.Status,
		rec.PlacedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// RecentOrders returns the last N journaled orders, newest first.
func (j *Journal) RecentOrders(limit int) ([]model.OrderRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, order_id, symbol, side, type, qty, price, status, placed_at
		 FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.OrderRecord
	for rows.Next() {
		var rec model.OrderRecord
		var placedAt string
		if err := rows.Scan(&rec.ID, &rec.OrderID, &rec.Symbol, &rec.Side, &rec.Type,
			&rec.Qty, &rec.Price, &rec.Status, &placedAt); err != nil {
			continue
		}
		rec.PlacedAt, _ = time.Parse(time.RFC3339, placedAt)
		orders = append(orders, rec)
	}
	return orders, rows.Err()
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Close closes the journal database.
func (j *Journal) Close() error { return j.db.Close() }
