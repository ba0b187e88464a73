package core

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	db "github.com/JonMunkholm/memcsv/internal/database"
)

// AuditAction represents the type of action being audited.
type AuditAction string

const (
	ActionLoad    AuditAction = "load"
	ActionReload  AuditAction = "reload"
	ActionInsert  AuditAction = "insert"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionWrite   AuditAction = "write"
	ActionRelease AuditAction = "release"
	ActionEvict   AuditAction = "evict"
)

// AuditSeverity represents the severity level of an audit entry.
type AuditSeverity string

const (
	SeverityLow    AuditSeverity = "low"
	SeverityMedium AuditSeverity = "medium"
	SeverityHigh   AuditSeverity = "high"
)

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID           string        `json:"id,omitempty"`
	Action       AuditAction   `json:"action"`
	Severity     AuditSeverity `json:"severity"`
	TableID      string        `json:"tableId"`
	Path         string        `json:"path,omitempty"`
	LineNumber   int           `json:"line,omitempty"`
	RowsAffected int           `json:"rowsAffected,omitempty"`
	IPAddress    string        `json:"ipAddress,omitempty"`
	UserAgent    string        `json:"userAgent,omitempty"`
	Detail       string        `json:"detail,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// determineSeverity returns the appropriate severity for an action.
func determineSeverity(action AuditAction) AuditSeverity {
	switch action {
	case ActionLoad, ActionReload, ActionWrite, ActionDelete:
		return SeverityHigh
	case ActionRelease, ActionEvict:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// AuditRecorder persists audit entries. Recording failures are logged by the
// service and never fail the operation being audited.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// AuditReader is implemented by recorders that can list past entries.
type AuditReader interface {
	List(ctx context.Context, tableID string, limit int) ([]AuditEntry, error)
}

// LogAuditRecorder writes audit entries to slog. It is the recorder used when
// no audit database is configured.
type LogAuditRecorder struct {
	Logger *slog.Logger
}

func (r LogAuditRecorder) Record(ctx context.Context, e AuditEntry) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "audit",
		"action", e.Action,
		"severity", e.Severity,
		"table_id", e.TableID,
		"path", e.Path,
		"line", e.LineNumber,
		"rows_affected", e.RowsAffected,
		"ip", e.IPAddress,
		"detail", e.Detail,
	)
	return nil
}

// DBAuditRecorder stores audit entries in Postgres.
type DBAuditRecorder struct {
	queries *db.Queries
}

// NewDBAuditRecorder returns a recorder writing through conn, typically a
// *pgxpool.Pool.
func NewDBAuditRecorder(conn db.DBTX) *DBAuditRecorder {
	return &DBAuditRecorder{queries: db.New(conn)}
}

func (r *DBAuditRecorder) Record(ctx context.Context, e AuditEntry) error {
	_, err := r.queries.InsertAuditLog(ctx, db.InsertAuditLogParams{
		Action:       string(e.Action),
		Severity:     string(e.Severity),
		TableID:      toPgUUID(e.TableID),
		FilePath:     toPgText(e.Path),
		LineNumber:   toPgInt4(e.LineNumber),
		RowsAffected: toPgInt4(e.RowsAffected),
		IpAddress:    toPgText(e.IPAddress),
		UserAgent:    toPgText(e.UserAgent),
		Detail:       toPgText(e.Detail),
	})
	return err
}

func (r *DBAuditRecorder) List(ctx context.Context, tableID string, limit int) ([]AuditEntry, error) {
	rows, err := r.queries.ListAuditLogByTable(ctx, db.ListAuditLogByTableParams{
		TableID: toPgUUID(tableID),
		Limit:   int32(limit),
	})
	if err != nil {
		return nil, err
	}

	entries := make([]AuditEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, dbAuditLogToEntry(row))
	}
	return entries, nil
}

// audit stamps and records an entry, pulling request metadata from ctx.
func (s *Service) audit(ctx context.Context, e AuditEntry) {
	e.Severity = determineSeverity(e.Action)
	e.CreatedAt = s.now()
	if e.IPAddress == "" {
		e.IPAddress = GetIPAddressFromContext(ctx)
	}
	if e.UserAgent == "" {
		e.UserAgent = GetUserAgentFromContext(ctx)
	}

	if err := s.recorder.Record(ctx, e); err != nil {
		s.logger.Warn("audit record failed",
			"action", e.Action,
			"table_id", e.TableID,
			"error", err,
		)
	}
}

func toPgText(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

func toPgInt4(i int) pgtype.Int4 {
	if i == 0 {
		return pgtype.Int4{Valid: false}
	}
	return pgtype.Int4{Int32: int32(i), Valid: true}
}

func toPgUUID(s string) pgtype.UUID {
	if s == "" {
		return pgtype.UUID{Valid: false}
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return pgtype.UUID{Valid: false}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func uuidToString(u pgtype.UUID) string {
	if !u.Valid {
		return ""
	}
	return uuid.UUID(u.Bytes).String()
}

func dbAuditLogToEntry(row db.TableAuditLog) AuditEntry {
	entry := AuditEntry{
		ID:        uuidToString(row.ID),
		Action:    AuditAction(row.Action),
		Severity:  AuditSeverity(row.Severity),
		TableID:   uuidToString(row.TableID),
		CreatedAt: row.CreatedAt.Time,
	}
	if row.FilePath.Valid {
		entry.Path = row.FilePath.String
	}
	if row.LineNumber.Valid {
		entry.LineNumber = int(row.LineNumber.Int32)
	}
	if row.RowsAffected.Valid {
		entry.RowsAffected = int(row.RowsAffected.Int32)
	}
	if row.IpAddress.Valid {
		entry.IPAddress = row.IpAddress.String
	}
	if row.UserAgent.Valid {
		entry.UserAgent = row.UserAgent.String
	}
	if row.Detail.Valid {
		entry.Detail = row.Detail.String
	}
	return entry
}
