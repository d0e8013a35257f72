package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists devices.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Device, error)
	Create(ctx context.Context, d *Device) error
	Update(ctx context.Context, d *Device) error
	Delete(ctx context.Context, id string) error
	UpdateStatus(ctx context.Context, id, status string, at time.Time) error
}

// SQLiteRepository implements Repository on the devices table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const deviceColumns = `id, owner_id, farm_id, name, type, topic, description, status, status_updated_at, created_at, updated_at`

// GetByID returns one device regardless of owner.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return d, nil
}

// List returns every device, for warming the registry cache.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY name, id`)
}

// ListByOwner returns the owner's devices ordered by name.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string) ([]Device, error) {
	return r.query(ctx, `SELECT `+deviceColumns+` FROM devices WHERE owner_id = ? ORDER BY name, id`, ownerID)
}

// Create inserts d. Timestamps are set here.
func (r *SQLiteRepository) Create(ctx context.Context, d *Device) error {
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	if d.Status == "" {
		d.Status = StatusOff
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (`+deviceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.OwnerID, nullableString(d.FarmID), d.Name, string(d.Type), d.Topic,
		nullableText(d.Description), d.Status, nullableTime(d.StatusUpdatedAt),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrDeviceExists
		}
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: farm does not exist", ErrInvalidDevice)
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// Update writes the descriptive fields of d. Status is left alone; it only
// changes through UpdateStatus.
func (r *SQLiteRepository) Update(ctx context.Context, d *Device) error {
	d.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET farm_id = ?, name = ?, type = ?, topic = ?, description = ?, updated_at = ?
		 WHERE id = ?`,
		nullableString(d.FarmID), d.Name, string(d.Type), d.Topic, nullableText(d.Description),
		d.UpdatedAt.Format(timeLayout), d.ID,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return fmt.Errorf("%w: farm does not exist", ErrInvalidDevice)
		}
		return fmt.Errorf("updating device %s: %w", d.ID, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device. Its rules go with it (ON DELETE CASCADE); its
// readings and triggered actions are history and stay.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting device %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateStatus records the last command sent to a device.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id, status string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET status = ?, status_updated_at = ? WHERE id = ?`,
		status, at.UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("updating device status %s: %w", id, err)
	}
	n, _ := result.RowsAffected() //nolint:errcheck // SQLite always supports RowsAffected
	if n == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	devices := []Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device row: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device rows: %w", err)
	}
	return devices, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(s rowScanner) (*Device, error) {
	var d Device
	var deviceType, createdAt, updatedAt string
	var farmID, description, statusAt sql.NullString

	if err := s.Scan(&d.ID, &d.OwnerID, &farmID, &d.Name, &deviceType, &d.Topic,
		&description, &d.Status, &statusAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	d.Type = Type(deviceType)
	d.Description = description.String
	if farmID.Valid {
		d.FarmID = &farmID.String
	}
	if statusAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, statusAt.String); err == nil {
			d.StatusUpdatedAt = &t
		}
	}
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // written by Create
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt) //nolint:errcheck // written by Create/Update
	return &d, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableText(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
