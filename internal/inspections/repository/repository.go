// Package repository provides Postgres persistence for inspection bookings.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// BookingDetail is a booking snapshot joined with the contact data the
// service layer needs to build notifications without extra reads.
type BookingDetail struct {
	domain.Booking
	PropertyTitle string
	BuyerName     string
	BuyerEmail    string
	BuyerPhone    string
	SellerName    string
	SellerEmail   string
}

// CreateParams holds the fields for a new inspection request.
type CreateParams struct {
	PropertyID        uuid.UUID
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	BuyerPhone        string
	InspectionType    domain.InspectionType
	InspectionMode    string
	InspectionDate    string
	InspectionTime    string
	NegotiationPrice  int64
	LetterOfIntention string
}

// Repository persists inspection bookings.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new inspection repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const bookingColumns = `
	b.id, b.property_id, b.buyer_id, b.seller_id, b.inspection_type,
	b.status, b.stage, b.pending_response_from, b.is_negotiating,
	b.negotiation_price, b.seller_counter_offer, b.letter_of_intention,
	b.inspection_date, b.inspection_time, b.inspection_mode,
	b.created_at, b.updated_at`

// Create inserts a new booking in pending_approval. A buyer phone submitted
// with the request becomes the buyer's contact number.
func (r *Repository) Create(ctx context.Context, p CreateParams) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin create booking: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO inspection_bookings (
			id, property_id, buyer_id, seller_id, inspection_type,
			status, stage, pending_response_from, is_negotiating,
			negotiation_price, seller_counter_offer, letter_of_intention,
			inspection_date, inspection_time, inspection_mode,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, false, $9, 0, $10, $11, $12, $13, now(), now())`,
		id, p.PropertyID, p.BuyerID, p.SellerID, p.InspectionType,
		domain.StatusPendingApproval, domain.StageInspection, domain.PartySeller,
		p.NegotiationPrice, p.LetterOfIntention,
		p.InspectionDate, p.InspectionTime, p.InspectionMode,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create inspection booking: %w", err)
	}

	if p.BuyerPhone != "" {
		_, err = tx.Exec(ctx,
			`UPDATE users SET phone = $2 WHERE id = $1`,
			p.BuyerID, p.BuyerPhone)
		if err != nil {
			return uuid.Nil, fmt.Errorf("update buyer phone: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit create booking: %w", err)
	}
	return id, nil
}

// GetByID loads a booking joined with property and party contact data.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*BookingDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`,
			p.title,
			buyer.full_name, buyer.email, COALESCE(buyer.phone, ''),
			seller.full_name, seller.email
		FROM inspection_bookings b
		JOIN properties p ON p.id = b.property_id
		JOIN users buyer ON buyer.id = b.buyer_id
		JOIN users seller ON seller.id = b.seller_id
		WHERE b.id = $1`, id)

	var d BookingDetail
	err := row.Scan(
		&d.ID, &d.PropertyID, &d.BuyerID, &d.SellerID, &d.InspectionType,
		&d.Status, &d.Stage, &d.PendingResponseFrom, &d.IsNegotiating,
		&d.NegotiationPrice, &d.SellerCounterOffer, &d.LetterOfIntention,
		&d.InspectionDate, &d.InspectionTime, &d.InspectionMode,
		&d.CreatedAt, &d.UpdatedAt,
		&d.PropertyTitle,
		&d.BuyerName, &d.BuyerEmail, &d.BuyerPhone,
		&d.SellerName, &d.SellerEmail,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("inspection booking not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get inspection booking: %w", err)
	}
	return &d, nil
}

// ApplyTransition persists a resolved transition as one conditional write.
// The WHERE clause re-validates the status the snapshot was read with, so
// the loser of a concurrent race fails with a Conflict instead of
// overwriting the winner.
func (r *Repository) ApplyTransition(ctx context.Context, id uuid.UUID, expected domain.Status, tr domain.Transition) error {
	set := []string{
		"status = $3",
		"stage = $4",
		"pending_response_from = $5",
		"is_negotiating = $6",
		"updated_at = now()",
	}
	args := []any{id, expected, tr.NextStatus, tr.NextStage, tr.NextPendingResponse, tr.IsNegotiating}

	appendUpdate := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if tr.Updates.NegotiationPrice != nil {
		appendUpdate("negotiation_price", *tr.Updates.NegotiationPrice)
	}
	if tr.Updates.SellerCounterOffer != nil {
		appendUpdate("seller_counter_offer", *tr.Updates.SellerCounterOffer)
	}
	if tr.Updates.LetterOfIntention != nil {
		appendUpdate("letter_of_intention", *tr.Updates.LetterOfIntention)
	}
	if tr.Updates.InspectionDate != nil {
		appendUpdate("inspection_date", *tr.Updates.InspectionDate)
	}
	if tr.Updates.InspectionTime != nil {
		appendUpdate("inspection_time", *tr.Updates.InspectionTime)
	}
	if tr.Updates.Reason != nil {
		appendUpdate("closing_reason", *tr.Updates.Reason)
	}

	query := fmt.Sprintf(
		"UPDATE inspection_bookings SET %s WHERE id = $1 AND status = $2",
		strings.Join(set, ", "),
	)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("apply booking transition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("booking changed concurrently or is already closed")
	}
	return nil
}

// SetAgentRejected moves a fresh request to the terminal agent_rejected state.
func (r *Repository) SetAgentRejected(ctx context.Context, id uuid.UUID, note string) error {
	return r.conditionalStatusUpdate(ctx, `
		UPDATE inspection_bookings
		SET status = $1, stage = $2, pending_response_from = $3,
			is_negotiating = false, closing_reason = $4, updated_at = now()
		WHERE id = $5 AND status = $6`,
		domain.StatusAgentRejected, domain.StageCancelled, domain.PartyNone,
		note, id, domain.StatusPendingApproval,
	)
}

// SetInspectionApproved approves a fresh request in no-fee mode.
func (r *Repository) SetInspectionApproved(ctx context.Context, id uuid.UUID) error {
	return r.conditionalStatusUpdate(ctx, `
		UPDATE inspection_bookings
		SET status = $1, pending_response_from = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.StatusInspectionApproved, domain.PartyBuyer,
		id, domain.StatusPendingApproval,
	)
}

// SetPendingTransaction parks an approved request awaiting the buyer's
// inspection fee payment.
func (r *Repository) SetPendingTransaction(ctx context.Context, id uuid.UUID) error {
	return r.conditionalStatusUpdate(ctx, `
		UPDATE inspection_bookings
		SET status = $1, pending_response_from = $2, updated_at = now()
		WHERE id = $3 AND status = $4`,
		domain.StatusPendingTransaction, domain.PartyBuyer,
		id, domain.StatusPendingApproval,
	)
}

func (r *Repository) conditionalStatusUpdate(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update booking status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.Conflict("booking is no longer awaiting this response")
	}
	return nil
}

// ApplyPaymentSuccess moves a booking from pending_transaction into the
// negotiation family. Returns false without error when another delivery of
// the same verification already applied the effect.
func (r *Repository) ApplyPaymentSuccess(ctx context.Context, id uuid.UUID, status domain.Status, stage domain.Stage, isNegotiating bool) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inspection_bookings
		SET status = $1, stage = $2, pending_response_from = $3,
			is_negotiating = $4, updated_at = now()
		WHERE id = $5 AND status = $6`,
		status, stage, domain.PartySeller, isNegotiating,
		id, domain.StatusPendingTransaction,
	)
	if err != nil {
		return false, fmt.Errorf("apply inspection payment success: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ApplyPaymentFailure moves a booking from pending_transaction to the
// terminal transaction_failed state. Returns false when already applied.
func (r *Repository) ApplyPaymentFailure(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE inspection_bookings
		SET status = $1, stage = $2, pending_response_from = $3,
			is_negotiating = false, updated_at = now()
		WHERE id = $4 AND status = $5`,
		domain.StatusTransactionFailed, domain.StageCancelled, domain.PartyNone,
		id, domain.StatusPendingTransaction,
	)
	if err != nil {
		return false, fmt.Errorf("apply inspection payment failure: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteStalePending removes bookings stuck in pending_transaction longer
// than ttl, together with their open transactions. Coarse cleanup, driven by
// the scheduler.
func (r *Repository) DeleteStalePending(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl)
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM inspection_bookings
		WHERE status = $1 AND updated_at < $2`,
		domain.StatusPendingTransaction, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale pending bookings: %w", err)
	}
	return tag.RowsAffected(), nil
}
