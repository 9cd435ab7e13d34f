// Package audit records and queries security events: logins, token
// rotations, revocations, and permission bypasses.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumina-home/lumina-core/internal/infrastructure/logging"
)

// Event represents a single security event.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Target     string    `json:"target,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Success    bool      `json:"success"`
}

// Filter controls which events to return.
type Filter struct {
	Actor  string // optional: filter by actor
	Action string // optional: filter by action (login, refresh, logout, ...)
	Limit  int    // default 50, max 200
	Offset int    // pagination offset
}

// ListResult contains the paginated event results.
type ListResult struct {
	Events []Event `json:"events"`
	Total  int     `json:"total"`
	Limit  int     `json:"limit"`
	Offset int     `json:"offset"`
}

// Repository defines the interface for security event persistence.
type Repository interface {
	Record(ctx context.Context, event *Event) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores security events in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new security event repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts an event. The ID and timestamp are generated if empty.
func (r *SQLiteRepository) Record(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = "evt-" + uuid.NewString()[:8]
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, occurred_at, actor, action, target, ip_address, detail, success)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID, event.OccurredAt.Format(time.RFC3339),
		event.Actor, event.Action,
		nullableString(event.Target), nullableString(event.IPAddress),
		nullableString(event.Detail), boolToInt(event.Success),
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// List returns events matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Limit > 200 { //nolint:mnd // max page size for event queries
		filter.Limit = 200
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Actor != "" {
		conditions = append(conditions, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_events %s", where) //nolint:gosec // WHERE built from parameterised conditions, not user input
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting audit events: %w", err)
	}

	query := fmt.Sprintf( //nolint:gosec // WHERE built from parameterised conditions, not user input
		"SELECT id, occurred_at, actor, action, target, ip_address, detail, success FROM audit_events %s ORDER BY occurred_at DESC LIMIT ? OFFSET ?",
		where,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var target, ipAddress, detail sql.NullString
		var success int
		var occurredAt string

		if err := rows.Scan(&event.ID, &occurredAt, &event.Actor, &event.Action,
			&target, &ipAddress, &detail, &success); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}

		event.Target = target.String
		event.IPAddress = ipAddress.String
		event.Detail = detail.String
		event.Success = success != 0
		event.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt) //nolint:errcheck // format is controlled

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit events: %w", err)
	}

	if events == nil {
		events = []Event{}
	}

	return &ListResult{
		Events: events,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	}, nil
}

// Recorder adapts a Repository into the fire-and-forget interface the auth
// service expects. Write failures are logged, never propagated.
type Recorder struct {
	repo   Repository
	logger *logging.Logger
}

// NewRecorder creates a best-effort event recorder.
func NewRecorder(repo Repository, logger *logging.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordSecurityEvent writes an event, logging failures instead of
// returning them.
func (r *Recorder) RecordSecurityEvent(ctx context.Context, actor, action, ipAddress string, success bool, detail string) {
	err := r.repo.Record(ctx, &Event{
		Actor:     actor,
		Action:    action,
		IPAddress: ipAddress,
		Detail:    detail,
		Success:   success,
	})
	if err != nil {
		r.logger.Warn("recording security event failed", "action", action, "error", err)
	}
}

// nullableString returns nil for empty strings. Used for nullable TEXT
// columns in SQLite.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
