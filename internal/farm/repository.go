package farm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Repository persists farms. All reads and writes are scoped by owner.
type Repository interface {
	Create(ctx context.Context, f *Farm) error
	Get(ctx context.Context, ownerID, id string) (*Farm, error)
	List(ctx context.Context, ownerID string) ([]Farm, error)
	Update(ctx context.Context, f *Farm) error
	Delete(ctx context.Context, ownerID, id string) error
	Count(ctx context.Context, ownerID string) (int, error)
}

// SQLiteRepository implements Repository on the farms table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a farm repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const farmColumns = `id, owner_id, name, location, latitude, longitude, area_ha, description, created_at, updated_at`

// Create validates and inserts f. ID and timestamps are assigned when empty.
func (r *SQLiteRepository) Create(ctx context.Context, f *Farm) error {
	f.Name = strings.TrimSpace(f.Name)
	if err := Validate(f); err != nil {
		return err
	}
	if f.ID == "" {
		f.ID = "farm-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO farms (`+farmColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.OwnerID, f.Name, nullableString(f.Location),
		nullFloat(f.Latitude), nullFloat(f.Longitude), nullFloat(f.AreaHa),
		nullableString(f.Description),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting farm: %w", err)
	}
	return nil
}

// Get returns the owner's farm by id.
func (r *SQLiteRepository) Get(ctx context.Context, ownerID, id string) (*Farm, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+farmColumns+` FROM farms WHERE id = ? AND owner_id = ?`, id, ownerID)
	f, err := scanFarm(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFarmNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting farm %s: %w", id, err)
	}
	return f, nil
}

// List returns the owner's farms ordered by name.
func (r *SQLiteRepository) List(ctx context.Context, ownerID string) ([]Farm, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+farmColumns+` FROM farms WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying farms: %w", err)
	}
	defer rows.Close()

	farms := []Farm{}
	for rows.Next() {
		f, err := scanFarm(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning farm row: %w", err)
		}
		farms = append(farms, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating farm rows: %w", err)
	}
	return farms, nil
}

// Update replaces the mutable fields of an existing farm.
func (r *SQLiteRepository) Update(ctx context.Context, f *Farm) error {
	f.Name = strings.TrimSpace(f.Name)
	if err := Validate(f); err != nil {
		return err
	}
	f.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE farms SET name = ?, location = ?, latitude = ?, longitude = ?, area_ha = ?,
			description = ?, updated_at = ?
		 WHERE id = ? AND owner_id = ?`,
		f.Name, nullableString(f.Location),
		nullFloat(f.Latitude), nullFloat(f.Longitude), nullFloat(f.AreaHa),
		nullableString(f.Description), f.UpdatedAt.Format(timeLayout),
		f.ID, f.OwnerID,
	)
	if err != nil {
		return fmt.Errorf("updating farm %s: %w", f.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrFarmNotFound
	}
	return nil
}

// Delete removes the owner's farm. Fails with ErrFarmHasDevices while any
// device still references it.
func (r *SQLiteRepository) Delete(ctx context.Context, ownerID, id string) error {
	if _, err := r.Get(ctx, ownerID, id); err != nil {
		return err
	}

	var devices int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM devices WHERE farm_id = ?`, id).Scan(&devices); err != nil {
		return fmt.Errorf("counting farm devices: %w", err)
	}
	if devices > 0 {
		return ErrFarmHasDevices
	}

	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM farms WHERE id = ? AND owner_id = ?`, id, ownerID); err != nil {
		return fmt.Errorf("deleting farm %s: %w", id, err)
	}
	return nil
}

// Count returns how many farms the owner has.
func (r *SQLiteRepository) Count(ctx context.Context, ownerID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM farms WHERE owner_id = ?`, ownerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting farms: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFarm(s scanner) (*Farm, error) {
	var f Farm
	var location, description sql.NullString
	var lat, lon, area sql.NullFloat64
	var createdAt, updatedAt string

	if err := s.Scan(&f.ID, &f.OwnerID, &f.Name, &location, &lat, &lon, &area,
		&description, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	f.Location = location.String
	f.Description = description.String
	f.Latitude = floatPtr(lat)
	f.Longitude = floatPtr(lon)
	f.AreaHa = floatPtr(area)
	f.CreatedAt = parseTime(createdAt)
	f.UpdatedAt = parseTime(updatedAt)
	return &f, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
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

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
