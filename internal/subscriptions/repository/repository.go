// Package repository provides PostgreSQL persistence for subscriptions.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the subscription lifecycle status.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Plan is a purchasable subscription plan.
type Plan struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	PriceKobo      int64     `json:"priceKobo"`
	DurationInDays int       `json:"durationInDays"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Subscription is one user's subscription to a plan.
type Subscription struct {
	ID                   uuid.UUID  `json:"id"`
	UserID               uuid.UUID  `json:"userId"`
	PlanID               uuid.UUID  `json:"planId"`
	Status               Status     `json:"status"`
	AutoRenew            bool       `json:"autoRenew"`
	AuthorizationCode    string     `json:"-"`
	StartDate            *time.Time `json:"startDate,omitempty"`
	EndDate              *time.Time `json:"endDate,omitempty"`
	PublicListingURL     string     `json:"publicListingUrl,omitempty"`
	LastRenewalReference string     `json:"-"`
	RenewalAttemptedAt   *time.Time `json:"-"`
	ExpiryWarnedAt       *time.Time `json:"-"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Detail is a subscription joined with its plan and owner.
type Detail struct {
	Subscription
	PlanName       string `json:"planName"`
	PlanPriceKobo  int64  `json:"planPriceKobo"`
	DurationInDays int    `json:"durationInDays"`
	UserName       string `json:"userName"`
	UserEmail      string `json:"userEmail"`
}

// Repository provides subscription persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new subscriptions repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const detailColumns = `
	s.id, s.user_id, s.plan_id, s.status, s.auto_renew,
	COALESCE(s.authorization_code, ''), s.start_date, s.end_date,
	COALESCE(s.public_listing_url, ''), COALESCE(s.last_renewal_reference, ''),
	s.renewal_attempted_at, s.expiry_warned_at, s.created_at, s.updated_at,
	p.name, p.price_kobo, p.duration_in_days,
	u.full_name, u.email`

const detailFrom = `
	FROM subscriptions s
	JOIN subscription_plans p ON p.id = s.plan_id
	JOIN users u ON u.id = s.user_id`

func scanDetail(row pgx.Row) (*Detail, error) {
	var d Detail
	err := row.Scan(
		&d.ID, &d.UserID, &d.PlanID, &d.Status, &d.AutoRenew,
		&d.AuthorizationCode, &d.StartDate, &d.EndDate,
		&d.PublicListingURL, &d.LastRenewalReference,
		&d.RenewalAttemptedAt, &d.ExpiryWarnedAt, &d.CreatedAt, &d.UpdatedAt,
		&d.PlanName, &d.PlanPriceKobo, &d.DurationInDays,
		&d.UserName, &d.UserEmail,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetPlan loads one active plan.
func (r *Repository) GetPlan(ctx context.Context, planID uuid.UUID) (*Plan, error) {
	var p Plan
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, price_kobo, duration_in_days, is_active, created_at
		FROM subscription_plans WHERE id = $1`, planID,
	).Scan(&p.ID, &p.Name, &p.PriceKobo, &p.DurationInDays, &p.IsActive, &p.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("subscription plan not found")
		}
		return nil, fmt.Errorf("get plan: %w", err)
	}
	return &p, nil
}

// ListPlans returns all active plans.
func (r *Repository) ListPlans(ctx context.Context) ([]Plan, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, price_kobo, duration_in_days, is_active, created_at
		FROM subscription_plans WHERE is_active ORDER BY price_kobo`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceKobo, &p.DurationInDays, &p.IsActive, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// CreatePending inserts a new pending subscription and returns its ID.
func (r *Repository) CreatePending(ctx context.Context, userID, planID uuid.UUID, autoRenew bool) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, status, auto_renew, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())`,
		id, userID, planID, StatusPending, autoRenew)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create subscription: %w", err)
	}
	return id, nil
}

// GetByID loads one subscription with plan and owner details.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Detail, error) {
	d, err := scanDetail(r.pool.QueryRow(ctx,
		"SELECT"+detailColumns+detailFrom+" WHERE s.id = $1", id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("subscription not found")
		}
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return d, nil
}

// ActivatePending flips a pending subscription to active. Returns false when
// the subscription already left pending, so duplicate payment deliveries are
// no-ops.
func (r *Repository) ActivatePending(ctx context.Context, id uuid.UUID, endDate time.Time, authorizationCode, publicListingURL string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET status = $3, start_date = now(), end_date = $4,
		    authorization_code = NULLIF($5, ''), public_listing_url = NULLIF($6, ''),
		    updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusPending, StatusActive, endDate, authorizationCode, publicListingURL)
	if err != nil {
		return false, fmt.Errorf("activate subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelPending flips a pending subscription to cancelled on payment failure.
func (r *Repository) CancelPending(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusPending, StatusCancelled)
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClaimRenewal stamps one renewal attempt on an active subscription. The
// reference guard makes each sweep cycle claim the subscription at most once:
// a claim stays open until the charge settles or the retry window passes.
func (r *Repository) ClaimRenewal(ctx context.Context, id uuid.UUID, reference string, retryAfter time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET last_renewal_reference = $3, renewal_attempted_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2
		  AND (renewal_attempted_at IS NULL OR renewal_attempted_at < $4)`,
		id, StatusActive, reference, retryAfter)
	if err != nil {
		return false, fmt.Errorf("claim renewal: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// RenewActive extends an active subscription after a successful renewal
// charge. The reference guard clears on apply, so re-delivery of the same
// payment result is a no-op.
func (r *Repository) RenewActive(ctx context.Context, id uuid.UUID, reference string, newEndDate time.Time, authorizationCode string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET end_date = $4, last_renewal_reference = NULL, expiry_warned_at = NULL,
		    authorization_code = COALESCE(NULLIF($5, ''), authorization_code),
		    updated_at = now()
		WHERE id = $1 AND status = $2 AND last_renewal_reference = $3`,
		id, StatusActive, reference, newEndDate, authorizationCode)
	if err != nil {
		return false, fmt.Errorf("renew subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearRenewalClaim releases a claimed renewal after a definitive charge
// failure so the failure email is sent exactly once.
func (r *Repository) ClearRenewalClaim(ctx context.Context, id uuid.UUID, reference string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions
		SET last_renewal_reference = NULL, auto_renew = FALSE, updated_at = now()
		WHERE id = $1 AND last_renewal_reference = $2`,
		id, reference)
	if err != nil {
		return false, fmt.Errorf("clear renewal claim: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListExpiringSoon returns active subscriptions ending within the window
// that have not been warned yet.
func (r *Repository) ListExpiringSoon(ctx context.Context, within time.Duration) ([]Detail, error) {
	return r.listDetails(ctx, `
		WHERE s.status = $1 AND s.expiry_warned_at IS NULL
		  AND s.end_date > now() AND s.end_date <= now() + $2`,
		StatusActive, within)
}

// MarkWarned records that the expiry warning for this subscription went out.
func (r *Repository) MarkWarned(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET expiry_warned_at = now(), updated_at = now()
		WHERE id = $1 AND status = $2 AND expiry_warned_at IS NULL`,
		id, StatusActive)
	if err != nil {
		return false, fmt.Errorf("mark warned: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListRenewalDue returns active auto-renew subscriptions past their end date
// that hold a stored authorization and are not inside an open claim window.
func (r *Repository) ListRenewalDue(ctx context.Context, retryAfter time.Time) ([]Detail, error) {
	return r.listDetails(ctx, `
		WHERE s.status = $1 AND s.auto_renew AND s.end_date <= now()
		  AND COALESCE(s.authorization_code, '') <> ''
		  AND (s.renewal_attempted_at IS NULL OR s.renewal_attempted_at < $2)`,
		StatusActive, retryAfter)
}

// ListExpireDue returns active subscriptions past their end date that cannot
// renew (no auto-renew, or no stored authorization).
func (r *Repository) ListExpireDue(ctx context.Context, graceUntil time.Time) ([]Detail, error) {
	return r.listDetails(ctx, `
		WHERE s.status = $1 AND s.end_date <= $2
		  AND (NOT s.auto_renew OR COALESCE(s.authorization_code, '') = '')`,
		StatusActive, graceUntil)
}

// Expire flips an active subscription to expired.
func (r *Repository) Expire(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE subscriptions SET status = $3, public_listing_url = NULL, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, StatusActive, StatusExpired)
	if err != nil {
		return false, fmt.Errorf("expire subscription: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HasOtherActive reports whether the user holds another active subscription.
// Used as the grace check before revoking public listing visibility.
func (r *Repository) HasOtherActive(ctx context.Context, userID, excludeID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM subscriptions
			WHERE user_id = $1 AND id <> $2 AND status = $3 AND end_date > now()
		)`, userID, excludeID, StatusActive).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check other active subscription: %w", err)
	}
	return exists, nil
}

// ListByUser returns all of a user's subscriptions, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Detail, error) {
	return r.listDetails(ctx, "WHERE s.user_id = $1 ORDER BY s.created_at DESC", userID)
}

func (r *Repository) listDetails(ctx context.Context, where string, args ...any) ([]Detail, error) {
	rows, err := r.pool.Query(ctx, "SELECT"+detailColumns+detailFrom+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()

	var details []Detail
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		details = append(details, *d)
	}
	return details, rows.Err()
}
