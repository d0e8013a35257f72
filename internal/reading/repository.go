package reading

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Repository persists sensor readings.
type Repository interface {
	// Append stores r. ID and ObservedAt are filled in when empty.
	Append(ctx context.Context, r *Reading) error

	// ListByDevice returns the device's newest readings first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Reading, error)

	// ListByOwner returns the owner's newest readings first.
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]Reading, error)

	// ListByOwnerDay returns every reading the owner received on the UTC
	// day containing day, newest first.
	ListByOwnerDay(ctx context.Context, ownerID string, day time.Time) ([]Reading, error)

	// LatestByOwner returns the most recent reading of each of the owner's
	// devices.
	LatestByOwner(ctx context.Context, ownerID string) ([]Reading, error)
}

// SQLiteRepository implements Repository on the sensor_readings table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a reading repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const readingColumns = `id, device_id, owner_id, temperature, humidity, moisture, observed_at`

// Append implements Repository.
func (r *SQLiteRepository) Append(ctx context.Context, rd *Reading) error {
	if rd.ID == "" {
		rd.ID = GenerateID()
	}
	if rd.ObservedAt.IsZero() {
		rd.ObservedAt = time.Now()
	}
	rd.ObservedAt = rd.ObservedAt.UTC()

	if err := Validate(rd); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_readings (`+readingColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rd.ID, rd.DeviceID, rd.OwnerID,
		nullFloat(rd.Temperature), nullFloat(rd.Humidity), nullFloat(rd.Moisture),
		rd.ObservedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// ListByDevice implements Repository.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	return r.query(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings
		 WHERE device_id = ? ORDER BY observed_at DESC, id DESC LIMIT ?`,
		deviceID, ClampLimit(limit))
}

// ListByOwner implements Repository.
func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string, limit int) ([]Reading, error) {
	return r.query(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings
		 WHERE owner_id = ? ORDER BY observed_at DESC, id DESC LIMIT ?`,
		ownerID, ClampLimit(limit))
}

// ListByOwnerDay implements Repository.
func (r *SQLiteRepository) ListByOwnerDay(ctx context.Context, ownerID string, day time.Time) ([]Reading, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)
	return r.query(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings
		 WHERE owner_id = ? AND observed_at >= ? AND observed_at < ?
		 ORDER BY observed_at DESC, id DESC`,
		ownerID, start.Format(timeLayout), end.Format(timeLayout))
}

// LatestByOwner implements Repository.
func (r *SQLiteRepository) LatestByOwner(ctx context.Context, ownerID string) ([]Reading, error) {
	return r.query(ctx,
		`SELECT `+readingColumns+` FROM sensor_readings AS s
		 WHERE owner_id = ? AND id = (
		     SELECT id FROM sensor_readings
		     WHERE device_id = s.device_id
		     ORDER BY observed_at DESC, id DESC LIMIT 1)
		 ORDER BY device_id`,
		ownerID)
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]Reading, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	readings := []Reading{}
	for rows.Next() {
		var rd Reading
		var temp, hum, moist sql.NullFloat64
		var observedAt string
		if err := rows.Scan(&rd.ID, &rd.DeviceID, &rd.OwnerID, &temp, &hum, &moist, &observedAt); err != nil {
			return nil, fmt.Errorf("scanning reading row: %w", err)
		}
		rd.Temperature = floatPtr(temp)
		rd.Humidity = floatPtr(hum)
		rd.Moisture = floatPtr(moist)
		rd.ObservedAt = parseTime(observedAt)
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reading rows: %w", err)
	}
	return readings, nil
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
