// Package sensor stores recent sensor readings in SQLite so the API can
// answer "latest value" queries without a round trip to the time-series
// store. Long-term history lives in InfluxDB.
package sensor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a single sensor reading.
type Snapshot struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Metric     string    `json:"metric"`
	Value      float64   `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ErrSnapshotNotFound is returned when a device has no reading for a metric.
var ErrSnapshotNotFound = errors.New("sensor snapshot not found")

// Repository defines the interface for snapshot persistence.
type Repository interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Latest(ctx context.Context, deviceID, metric string) (*Snapshot, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Snapshot, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed snapshot repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts a reading. The ID and timestamp are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, snapshot *Snapshot) error {
	if snapshot.ID == "" {
		snapshot.ID = "snp-" + uuid.NewString()[:8]
	}
	if snapshot.RecordedAt.IsZero() {
		snapshot.RecordedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sensor_snapshots (id, device_id, metric, value, recorded_at)
		 VALUES (?, ?, ?, ?, ?)`,
		snapshot.ID, snapshot.DeviceID, snapshot.Metric, snapshot.Value,
		snapshot.RecordedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("recording snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent reading of a metric for a device.
func (r *SQLiteRepository) Latest(ctx context.Context, deviceID, metric string) (*Snapshot, error) {
	var s Snapshot
	var recordedAt string

	err := r.db.QueryRowContext(ctx,
		`SELECT id, device_id, metric, value, recorded_at FROM sensor_snapshots
		 WHERE device_id = ? AND metric = ?
		 ORDER BY recorded_at DESC LIMIT 1`,
		deviceID, metric,
	).Scan(&s.ID, &s.DeviceID, &s.Metric, &s.Value, &recordedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("getting latest snapshot: %w", err)
	}

	s.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt) //nolint:errcheck // format is controlled
	return &s, nil
}

// ListByDevice returns recent readings for a device, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, metric, value, recorded_at FROM sensor_snapshots
		 WHERE device_id = ?
		 ORDER BY recorded_at DESC LIMIT ?`,
		deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []Snapshot
	for rows.Next() {
		var s Snapshot
		var recordedAt string
		if err := rows.Scan(&s.ID, &s.DeviceID, &s.Metric, &s.Value, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		s.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt) //nolint:errcheck // format is controlled
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating snapshots: %w", err)
	}

	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	return snapshots, nil
}

// DeleteOlderThan removes readings recorded before the cutoff.
// Returns the number of deleted rows.
func (r *SQLiteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_snapshots WHERE recorded_at < ?",
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting old snapshots: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
