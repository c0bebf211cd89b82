// Package remote is the gateway to the server-side source of truth.
// The sync engine only reads from it (FetchAll); the queue drain worker
// applies mutations through it.
package remote

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"qistsync/pkg/logger"
)

// Error marks a transport or query failure against the remote store.
// Callers fall back to local data when they see one.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Gateway wraps the Postgres connection to the remote store.
type Gateway struct {
	db *sql.DB
}

// Connect opens the connection pool to the remote store.
func Connect(ctx context.Context, databaseURL string, poolSize int) (*Gateway, error) {
	if databaseURL == "" {
		return nil, &Error{Op: "connect", Err: fmt.Errorf("REMOTE_DATABASE_URL is not set")}
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, &Error{Op: "connect", Err: err}
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize / 2)
	logger.Info(ctx, "Remote store pool initialized", "max_open", poolSize)
	return &Gateway{db: db}, nil
}

// Healthy reports whether the remote store answers a ping within the
// given timeout. Used as the engine's connectivity probe.
func (g *Gateway) Healthy(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return g.db.PingContext(ctx) == nil
}

// Migrate creates the remote tables if they do not exist.
func (g *Gateway) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS installments (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL,
			creditor_name    TEXT NOT NULL DEFAULT '',
			item_description TEXT NOT NULL DEFAULT '',
			notes            TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_installments_user_created
			ON installments (user_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS installment_payments (
			id             TEXT PRIMARY KEY,
			installment_id TEXT NOT NULL REFERENCES installments (id) ON DELETE CASCADE,
			due_date       TEXT NOT NULL,
			amount         NUMERIC(14,2) NOT NULL DEFAULT 0,
			is_paid        BOOLEAN NOT NULL DEFAULT FALSE,
			paid_date      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_payments_installment
			ON installment_payments (installment_id, due_date)`,
	}
	for _, stmt := range stmts {
		if _, err := g.db.ExecContext(ctx, stmt); err != nil {
			return &Error{Op: "migrate", Err: err}
		}
	}
	return nil
}

// Close shuts down the connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}
