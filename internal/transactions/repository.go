// Package transactions persists payment transaction records. Each
// transaction links back to exactly one domain entity; the link is fixed at
// creation time and drives the payment-effect dispatcher.
package transactions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EntityType tags the domain entity a transaction pays for.
type EntityType string

const (
	EntityInspection           EntityType = "inspection"
	EntitySubscription         EntityType = "subscription"
	EntityDocumentVerification EntityType = "document_verification"
)

// Status of a transaction at the gateway.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Transaction is one payment attempt. AmountKobo is in currency minor units.
type Transaction struct {
	ID         uuid.UUID      `json:"id"`
	Reference  string         `json:"reference"`
	AmountKobo int64          `json:"amountKobo"`
	Status     Status         `json:"status"`
	EntityType EntityType     `json:"entityType"`
	EntityID   uuid.UUID      `json:"entityId"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Repository persists transactions.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new transaction repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a pending transaction for an entity.
func (r *Repository) Create(ctx context.Context, t Transaction) (uuid.UUID, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO transactions (
			id, reference, amount_kobo, status, entity_type, entity_id,
			metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		t.ID, t.Reference, t.AmountKobo, StatusPending, t.EntityType, t.EntityID, t.Metadata,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create transaction: %w", err)
	}
	return t.ID, nil
}

// GetByReference loads a transaction by its gateway reference.
func (r *Repository) GetByReference(ctx context.Context, reference string) (*Transaction, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, reference, amount_kobo, status, entity_type, entity_id,
			metadata, created_at, updated_at
		FROM transactions
		WHERE reference = $1`, reference)

	var t Transaction
	err := row.Scan(
		&t.ID, &t.Reference, &t.AmountKobo, &t.Status, &t.EntityType, &t.EntityID,
		&t.Metadata, &t.CreatedAt, &t.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("transaction not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by reference: %w", err)
	}
	return &t, nil
}

// MarkStatus moves a transaction out of pending. Returns false without
// error when the transaction already left pending, so webhook re-deliveries
// become no-ops.
func (r *Repository) MarkStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE transactions
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		status, id, StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("mark transaction status: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasOpenForEntity reports whether the entity already has a pending
// transaction. A booking may hold at most one open transaction.
func (r *Repository) HasOpenForEntity(ctx context.Context, entityType EntityType, entityID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE entity_type = $1 AND entity_id = $2 AND status = $3
		)`, entityType, entityID, StatusPending).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check open transaction: %w", err)
	}
	return exists, nil
}
