// Package activitylog provides the append-only audit trail for inspection
// transitions. Entries are written once per transition and never mutated.
package activitylog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Entry is one audit record for an inspection transition.
type Entry struct {
	ID           uuid.UUID      `json:"id"`
	InspectionID uuid.UUID      `json:"inspectionId"`
	PropertyID   uuid.UUID      `json:"propertyId"`
	ActorID      uuid.UUID      `json:"actorId"`
	ActorRole    string         `json:"actorRole"`
	Message      string         `json:"message"`
	Status       string         `json:"status"`
	Stage        string         `json:"stage"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Repository persists activity log entries.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new activity log repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry. Entries are immutable once written.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO inspection_activity_logs (
			id, inspection_id, property_id, actor_id, actor_role,
			message, status, stage, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())`,
		e.ID, e.InspectionID, e.PropertyID, e.ActorID, e.ActorRole,
		e.Message, e.Status, e.Stage, e.Metadata,
	)
	if err != nil {
		return fmt.Errorf("insert activity log entry: %w", err)
	}
	return nil
}

// ListByInspection returns the trail for one booking, oldest first.
func (r *Repository) ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, inspection_id, property_id, actor_id, actor_role,
			message, status, stage, metadata, created_at
		FROM inspection_activity_logs
		WHERE inspection_id = $1
		ORDER BY created_at ASC`, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("list activity log entries: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(
			&e.ID, &e.InspectionID, &e.PropertyID, &e.ActorID, &e.ActorRole,
			&e.Message, &e.Status, &e.Stage, &e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan activity log entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
