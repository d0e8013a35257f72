// Package audit provides access to the audit_logs table: the history of
// changes to farms, devices and rules.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity types recorded in the audit log.
const (
	EntityFarm   = "farm"
	EntityDevice = "device"
	EntityRule   = "rule"
)

// Actions recorded in the audit log.
const (
	ActionCreate  = "create"
	ActionUpdate  = "update"
	ActionDelete  = "delete"
	ActionToggle  = "toggle"
	ActionCommand = "command"
)

// Page size limits for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// AuditLog represents a single audit trail entry.
type AuditLog struct { //nolint:revive // audit.AuditLog is clearer than audit.Log in calling code
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects audit logs. OwnerID is always applied; the rest are
// optional.
type Filter struct {
	OwnerID    string
	Action     string
	EntityType string
	EntityID   string
	Since      time.Time // entries created at or after
	Limit      int       // default 50, max 200
	Offset     int
}

// where builds the WHERE clause and its arguments.
func (f Filter) where() (string, []any) {
	conds := []string{"owner_id = ?"}
	args := []any{f.OwnerID}
	for _, c := range []struct {
		column, value string
	}{
		{"action", f.Action},
		{"entity_type", f.EntityType},
		{"entity_id", f.EntityID},
	} {
		if c.value != "" {
			conds = append(conds, c.column+" = ?")
			args = append(args, c.value)
		}
	}
	if !f.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.Since.UTC().Format(timeLayout))
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// page clamps Limit and Offset.
func (f Filter) page() (limit, offset int) {
	limit, offset = f.Limit, f.Offset
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return limit, max(offset, 0)
}

// ListResult contains the paginated audit log results.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository defines the interface for audit log operations.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores audit logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new audit log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// ErrInvalidEntry is returned by Create for an entry without an owner,
// action or entity type.
var ErrInvalidEntry = errors.New("audit: invalid entry")

const selectColumns = "id, action, entity_type, entity_id, owner_id, source, details, created_at"

// Create inserts an entry, filling in ID, Source and CreatedAt when empty.
func (r *SQLiteRepository) Create(ctx context.Context, entry *AuditLog) error {
	if entry.OwnerID == "" || entry.Action == "" || entry.EntityType == "" {
		return fmt.Errorf("%w: owner, action and entity type are required", ErrInvalidEntry)
	}
	if entry.ID == "" {
		entry.ID = "aud-" + uuid.NewString()[:8]
	}
	if entry.Source == "" {
		entry.Source = "api"
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshalling audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	entityID := sql.NullString{String: entry.EntityID, Valid: entry.EntityID != ""}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_logs (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Action, entry.EntityType, entityID, entry.OwnerID,
		entry.Source, details, entry.CreatedAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("inserting audit log: %w", err)
	}
	return nil
}

// List returns one page of the owner's audit logs, newest first, with the
// total number of matches.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	where, args := filter.where()
	limit, offset := filter.page()

	var total int
	//nolint:gosec // where holds placeholders only
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs "+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}

	//nolint:gosec // where holds placeholders only
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM audit_logs "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, limit, offset)...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	result := &ListResult{Logs: []AuditLog{}, Total: total, Limit: limit, Offset: offset}
	for rows.Next() {
		entry, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		result.Logs = append(result.Logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return result, nil
}

func scanLog(rows *sql.Rows) (AuditLog, error) {
	var (
		entry            AuditLog
		entityID, detail sql.NullString
		createdAt        string
	)
	if err := rows.Scan(&entry.ID, &entry.Action, &entry.EntityType,
		&entityID, &entry.OwnerID, &entry.Source, &detail, &createdAt); err != nil {
		return AuditLog{}, fmt.Errorf("scanning audit log: %w", err)
	}
	entry.EntityID = entityID.String

	// Details are informational; an unreadable blob is left out.
	if detail.Valid {
		_ = json.Unmarshal([]byte(detail.String), &entry.Details) //nolint:errcheck // see above
	}

	t, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return AuditLog{}, fmt.Errorf("parsing audit log timestamp %q: %w", createdAt, err)
	}
	entry.CreatedAt = t
	return entry, nil
}
