// Package database holds the Postgres queries behind the optional audit trail.
// The layout follows sqlc output: a DBTX interface satisfied by
// *pgxpool.Pool, and a Queries value wrapping it.
package database

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

const schema = `
CREATE TABLE IF NOT EXISTS table_audit_log (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    action        TEXT NOT NULL,
    severity      TEXT NOT NULL,
    table_id      UUID NOT NULL,
    file_path     TEXT,
    line_number   INTEGER,
    rows_affected INTEGER,
    ip_address    TEXT,
    user_agent    TEXT,
    detail        TEXT,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS table_audit_log_table_id_idx
    ON table_audit_log (table_id, created_at DESC);
`

// EnsureSchema creates the audit table if it does not exist.
func EnsureSchema(ctx context.Context, db DBTX) error {
	_, err := db.Exec(ctx, schema)
	return err
}
