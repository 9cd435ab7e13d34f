package device

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

// Repository defines the interface for device persistence.
type Repository interface {
	Create(ctx context.Context, device *Device) error
	GetByID(ctx context.Context, id string) (*Device, error)
	List(ctx context.Context) ([]Device, error)
	ListByRoom(ctx context.Context, room string) ([]Device, error)
	Update(ctx context.Context, device *Device) error
	Delete(ctx context.Context, id string) error

	// UpdateState replaces the last reported state payload. Optimised for
	// frequent writes from the MQTT ingest path.
	UpdateState(ctx context.Context, id string, state json.RawMessage) error

	// UpdateStatus flips the connectivity status (online/offline).
	UpdateStatus(ctx context.Context, id string, status Status) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed device repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const deviceColumns = "id, name, type, room, last_state, status, is_active, created_at, updated_at"

// Create inserts a new device. The ID is generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = "dev-" + uuid.NewString()[:8]
	}
	if device.Status == "" {
		device.Status = StatusOffline
	}

	now := time.Now().UTC().Format(time.RFC3339)
	device.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled
	device.UpdatedAt = device.CreatedAt

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO devices (id, name, type, room, last_state, status, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		device.ID, device.Name, device.Type, nullString(device.Room),
		rawToNull(device.LastState), string(device.Status),
		boolToInt(device.IsActive), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDeviceExists
		}
		return fmt.Errorf("creating device: %w", err)
	}
	return nil
}

// GetByID retrieves a device by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx,
		"SELECT "+deviceColumns+" FROM devices WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	return d, nil
}

// List returns all devices ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.list(ctx, "SELECT "+deviceColumns+" FROM devices ORDER BY name ASC")
}

// ListByRoom returns devices in the given room, ordered by name.
func (r *SQLiteRepository) ListByRoom(ctx context.Context, room string) ([]Device, error) {
	return r.list(ctx, "SELECT "+deviceColumns+" FROM devices WHERE room = ? ORDER BY name ASC", room)
}

// Update modifies a device's name, type, room, and active flag.
func (r *SQLiteRepository) Update(ctx context.Context, device *Device) error {
	now := time.Now().UTC().Format(time.RFC3339)
	device.UpdatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	result, err := r.db.ExecContext(ctx,
		`UPDATE devices SET name = ?, type = ?, room = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		device.Name, device.Type, nullString(device.Room),
		boolToInt(device.IsActive), now, device.ID,
	)
	if err != nil {
		return fmt.Errorf("updating device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Delete removes a device. Sensor snapshots are removed by cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM devices WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting device: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateState replaces the last reported state payload.
func (r *SQLiteRepository) UpdateState(ctx context.Context, id string, state json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET last_state = ?, updated_at = ? WHERE id = ?",
		rawToNull(state), now, id)
	if err != nil {
		return fmt.Errorf("updating device state: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// UpdateStatus flips the connectivity status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"UPDATE devices SET status = ?, updated_at = ? WHERE id = ?",
		string(status), now, id)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func (r *SQLiteRepository) list(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}

	if devices == nil {
		devices = []Device{}
	}
	return devices, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDevice(s scanner) (*Device, error) {
	var d Device
	var room, lastState sql.NullString
	var status string
	var isActive int
	var createdAt, updatedAt string

	err := s.Scan(&d.ID, &d.Name, &d.Type, &room, &lastState,
		&status, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("scanning device: %w", err)
	}

	d.Room = room.String
	if lastState.Valid {
		d.LastState = json.RawMessage(lastState.String)
	}
	d.Status = Status(status)
	d.IsActive = isActive != 0
	d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	d.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &d, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func rawToNull(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
