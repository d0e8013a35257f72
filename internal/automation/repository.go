package automation

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RuleRepository persists rules.
// This abstraction allows different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type RuleRepository interface {
	List(ctx context.Context) ([]Rule, error)
	Create(ctx context.Context, r *Rule) error
	Update(ctx context.Context, r *Rule) error
	Delete(ctx context.Context, id string) error
}

// ActionFilter narrows ActionRepository.List.
type ActionFilter struct {
	DeviceID string
	Limit    int
}

// ActionRepository persists triggered actions. It is append-only.
type ActionRepository interface {
	ActionSink
	List(ctx context.Context, ownerID string, filter ActionFilter) ([]TriggeredAction, error)
}

// Action list limits.
const (
	DefaultActionLimit = 50
	MaxActionLimit     = 200
)

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// ruleColumns is the SELECT column list for rule queries.
const ruleColumns = `id, owner_id, device_id, condition_type, threshold, action, enabled,
			time_of_day, days, created_at, updated_at`

// SQLiteRuleRepository implements RuleRepository using SQLite.
type SQLiteRuleRepository struct {
	db *sql.DB
}

// NewSQLiteRuleRepository creates a new SQLite-backed rule repository.
func NewSQLiteRuleRepository(db *sql.DB) *SQLiteRuleRepository {
	return &SQLiteRuleRepository{db: db}
}

// List returns every rule in creation order, which is the order the
// evaluator sees them in.
func (r *SQLiteRuleRepository) List(ctx context.Context) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM rules ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning rule row: %w", err)
		}
		rules = append(rules, *rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rule rows: %w", err)
	}
	return rules, nil
}

// Create inserts a new rule.
func (r *SQLiteRuleRepository) Create(ctx context.Context, rule *Rule) error {
	days, err := marshalDays(rule.Days)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rules (
			id, owner_id, device_id, condition_type, threshold, action, enabled,
			time_of_day, days, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID,
		rule.OwnerID,
		rule.DeviceID,
		string(rule.ConditionType),
		rule.Threshold,
		rule.Action,
		boolToInt(rule.Enabled),
		nullableString(rule.TimeOfDay),
		days,
		rule.CreatedAt.Format(timeLayout),
		rule.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrRuleExists
		}
		if isForeignKeyError(err) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("inserting rule: %w", err)
	}
	return nil
}

// Update writes every mutable field of a rule, including Enabled.
func (r *SQLiteRuleRepository) Update(ctx context.Context, rule *Rule) error {
	days, err := marshalDays(rule.Days)
	if err != nil {
		return err
	}
	rule.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE rules SET
			device_id = ?, condition_type = ?, threshold = ?, action = ?, enabled = ?,
			time_of_day = ?, days = ?, updated_at = ?
		WHERE id = ?`,
		rule.DeviceID,
		string(rule.ConditionType),
		rule.Threshold,
		rule.Action,
		boolToInt(rule.Enabled),
		nullableString(rule.TimeOfDay),
		days,
		rule.UpdatedAt.Format(timeLayout),
		rule.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("updating rule: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete removes a rule. Its triggered actions are kept.
func (r *SQLiteRuleRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting rule: %w", err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(s rowScanner) (*Rule, error) {
	var rule Rule
	var conditionType string
	var enabled int
	var timeOfDay, days sql.NullString
	var createdAt, updatedAt string

	if err := s.Scan(&rule.ID, &rule.OwnerID, &rule.DeviceID, &conditionType, &rule.Threshold,
		&rule.Action, &enabled, &timeOfDay, &days, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	rule.ConditionType = ConditionType(conditionType)
	rule.Enabled = enabled != 0
	rule.TimeOfDay = timeOfDay.String
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &rule.Days); err != nil {
			return nil, fmt.Errorf("unmarshalling days: %w", err)
		}
	}
	rule.CreatedAt = parseTime(createdAt)
	rule.UpdatedAt = parseTime(updatedAt)
	return &rule, nil
}

// SQLiteActionRepository implements ActionRepository using SQLite.
type SQLiteActionRepository struct {
	db *sql.DB
}

// NewSQLiteActionRepository creates a new SQLite-backed action log.
func NewSQLiteActionRepository(db *sql.DB) *SQLiteActionRepository {
	return &SQLiteActionRepository{db: db}
}

const actionColumns = `id, owner_id, device_id, rule_id, reading_id, source, action,
			condition_type, threshold, observed_value, fired_at`

// Append inserts a triggered action. A second record for the same reading
// and rule returns ErrDuplicateAction.
func (r *SQLiteActionRepository) Append(ctx context.Context, a *TriggeredAction) error {
	if a.ID == "" {
		a.ID = GenerateActionID()
	}
	if a.FiredAt.IsZero() {
		a.FiredAt = time.Now()
	}
	a.FiredAt = a.FiredAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO triggered_actions (`+actionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.OwnerID,
		a.DeviceID,
		nullableString(a.RuleID),
		nullableString(a.ReadingID),
		string(a.Source),
		a.Action,
		nullableString(string(a.ConditionType)),
		nullFloat(a.Threshold),
		nullFloat(a.ObservedValue),
		a.FiredAt.Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDuplicateAction
		}
		return fmt.Errorf("inserting triggered action: %w", err)
	}
	return nil
}

// List returns the owner's triggered actions, newest first.
func (r *SQLiteActionRepository) List(ctx context.Context, ownerID string, filter ActionFilter) ([]TriggeredAction, error) {
	limit := filter.Limit
	switch {
	case limit <= 0:
		limit = DefaultActionLimit
	case limit > MaxActionLimit:
		limit = MaxActionLimit
	}

	query := `SELECT ` + actionColumns + ` FROM triggered_actions WHERE owner_id = ?`
	args := []any{ownerID}
	if filter.DeviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, filter.DeviceID)
	}
	query += ` ORDER BY fired_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying triggered actions: %w", err)
	}
	defer rows.Close()

	actions := []TriggeredAction{}
	for rows.Next() {
		var a TriggeredAction
		var ruleID, readingID, conditionType sql.NullString
		var threshold, observed sql.NullFloat64
		var source, firedAt string
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.DeviceID, &ruleID, &readingID, &source, &a.Action,
			&conditionType, &threshold, &observed, &firedAt); err != nil {
			return nil, fmt.Errorf("scanning triggered action row: %w", err)
		}
		a.RuleID = ruleID.String
		a.ReadingID = readingID.String
		a.Source = Source(source)
		a.ConditionType = ConditionType(conditionType.String)
		a.Threshold = floatPtr(threshold)
		a.ObservedValue = floatPtr(observed)
		a.FiredAt = parseTime(firedAt)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating triggered action rows: %w", err)
	}
	return actions, nil
}

// ─── Helpers ───────────────────────────────────────────────────────

func marshalDays(days []string) (sql.NullString, error) {
	if len(days) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(days)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshalling days: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
