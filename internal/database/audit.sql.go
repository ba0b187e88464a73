package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type TableAuditLog struct {
	ID           pgtype.UUID
	Action       string
	Severity     string
	TableID      pgtype.UUID
	FilePath     pgtype.Text
	LineNumber   pgtype.Int4
	RowsAffected pgtype.Int4
	IpAddress    pgtype.Text
	UserAgent    pgtype.Text
	Detail       pgtype.Text
	CreatedAt    pgtype.Timestamptz
}

const insertAuditLog = `-- name: InsertAuditLog :one
INSERT INTO table_audit_log (
    action, severity, table_id, file_path, line_number,
    rows_affected, ip_address, user_agent, detail
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, action, severity, table_id, file_path, line_number, rows_affected, ip_address, user_agent, detail, created_at
`

type InsertAuditLogParams struct {
	Action       string
	Severity     string
	TableID      pgtype.UUID
	FilePath     pgtype.Text
	LineNumber   pgtype.Int4
	RowsAffected pgtype.Int4
	IpAddress    pgtype.Text
	UserAgent    pgtype.Text
	Detail       pgtype.Text
}

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (TableAuditLog, error) {
	row := q.db.QueryRow(ctx, insertAuditLog,
		arg.Action,
		arg.Severity,
		arg.TableID,
		arg.FilePath,
		arg.LineNumber,
		arg.RowsAffected,
		arg.IpAddress,
		arg.UserAgent,
		arg.Detail,
	)
	var i TableAuditLog
	err := row.Scan(
		&i.ID,
		&i.Action,
		&i.Severity,
		&i.TableID,
		&i.FilePath,
		&i.LineNumber,
		&i.RowsAffected,
		&i.IpAddress,
		&i.UserAgent,
		&i.Detail,
		&i.CreatedAt,
	)
	return i, err
}

const listAuditLogByTable = `-- name: ListAuditLogByTable :many
SELECT id, action, severity, table_id, file_path, line_number, rows_affected, ip_address, user_agent, detail, created_at
FROM table_audit_log
WHERE table_id = $1
ORDER BY created_at DESC
LIMIT $2
`

type ListAuditLogByTableParams struct {
	TableID pgtype.UUID
	Limit   int32
}

func (q *Queries) ListAuditLogByTable(ctx context.Context, arg ListAuditLogByTableParams) ([]TableAuditLog, error) {
	rows, err := q.db.Query(ctx, listAuditLogByTable, arg.TableID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []TableAuditLog
	for rows.Next() {
		var i TableAuditLog
		if err := rows.Scan(
			&i.ID,
			&i.Action,
			&i.Severity,
			&i.TableID,
			&i.FilePath,
			&i.LineNumber,
			&i.RowsAffected,
			&i.IpAddress,
			&i.UserAgent,
			&i.Detail,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
