package camera

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
)

// Repository persists cameras and their analytics results.
type Repository interface {
	Create(ctx context.Context, c *Camera) error
	Get(ctx context.Context, id string) (*Camera, error)
	List(ctx context.Context) ([]Camera, error)
	AppendResult(ctx context.Context, r *Result) error
	LatestResult(ctx context.Context, cameraID string) (*Result, error)
}

// SQLiteRepository implements Repository on the cameras and camera_results
// tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a camera repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

const resultColumns = `id, camera_id, total_car, total_motorcycle, total_bus, total_truck,
	average_speed, filename_result, processed_at`

// Create validates and inserts c.
func (r *SQLiteRepository) Create(ctx context.Context, c *Camera) error {
	c.LocationName = strings.TrimSpace(c.LocationName)
	if err := ValidateCamera(c); err != nil {
		return err
	}
	c.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cameras (id, location_name, created_at) VALUES (?, ?, ?)`,
		c.ID, c.LocationName, c.CreatedAt.Format(timeLayout))
	if isPrimaryKeyViolation(err) {
		return fmt.Errorf("%w: %s", ErrCameraExists, c.ID)
	}
	if err != nil {
		return fmt.Errorf("inserting camera: %w", err)
	}
	return nil
}

// Get returns one camera.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Camera, error) {
	var (
		c         Camera
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, location_name, created_at FROM cameras WHERE id = ?`, id,
	).Scan(&c.ID, &c.LocationName, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCameraNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting camera %s: %w", id, err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // written by Create
	return &c, nil
}

// List returns every camera ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]Camera, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, location_name, created_at FROM cameras ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying cameras: %w", err)
	}
	defer rows.Close()

	cameras := []Camera{}
	for rows.Next() {
		var (
			c         Camera
			createdAt string
		)
		if err := rows.Scan(&c.ID, &c.LocationName, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning camera row: %w", err)
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt) //nolint:errcheck // written by Create
		cameras = append(cameras, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating camera rows: %w", err)
	}
	return cameras, nil
}

// AppendResult validates and stores a result for an existing camera. ID and
// ProcessedAt are assigned when empty.
func (r *SQLiteRepository) AppendResult(ctx context.Context, res *Result) error {
	if err := ValidateResult(res); err != nil {
		return err
	}
	if _, err := r.Get(ctx, res.CameraID); err != nil {
		return err
	}
	if res.ID == "" {
		res.ID = "res-" + uuid.NewString()[:8]
	}
	if res.ProcessedAt.IsZero() {
		res.ProcessedAt = time.Now()
	}
	res.ProcessedAt = res.ProcessedAt.UTC()
	res.ProcessedTime = res.ProcessedAt.Format(ProcessedTimeLayout)

	filename := sql.NullString{String: res.FilenameResult, Valid: res.FilenameResult != ""}
	if _, err := r.db.ExecContext(ctx,
		`INSERT INTO camera_results (`+resultColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.CameraID, res.TotalCar, res.TotalMotorcycle, res.TotalBus, res.TotalTruck,
		res.AverageSpeed, filename, res.ProcessedAt.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("inserting camera result: %w", err)
	}
	return nil
}

// LatestResult returns the camera's most recently processed result, or
// ErrNoResult.
func (r *SQLiteRepository) LatestResult(ctx context.Context, cameraID string) (*Result, error) {
	var (
		res         Result
		filename    sql.NullString
		processedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM camera_results
		 WHERE camera_id = ? ORDER BY processed_at DESC, id DESC LIMIT 1`, cameraID,
	).Scan(&res.ID, &res.CameraID, &res.TotalCar, &res.TotalMotorcycle, &res.TotalBus,
		&res.TotalTruck, &res.AverageSpeed, &filename, &processedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoResult
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest result for camera %s: %w", cameraID, err)
	}

	res.FilenameResult = filename.String
	if res.ProcessedAt, err = time.Parse(time.RFC3339Nano, processedAt); err != nil {
		return nil, fmt.Errorf("parsing processed_at %q: %w", processedAt, err)
	}
	res.ProcessedTime = res.ProcessedAt.Format(ProcessedTimeLayout)
	return &res, nil
}

func isPrimaryKeyViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
