// Package transport defines the request and response shapes for the
// subscriptions HTTP API.
package transport

import (
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/repository"

	"github.com/google/uuid"
)

// SubscribeRequest starts a subscription purchase.
type SubscribeRequest struct {
	PlanID    uuid.UUID `json:"planId" validate:"required"`
	Email     string    `json:"email" validate:"required,email"`
	AutoRenew bool      `json:"autoRenew"`
}

// SubscribeResponse is returned after payment initialization.
type SubscribeResponse struct {
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	Reference      string    `json:"reference"`
	PaymentURL     string    `json:"paymentUrl"`
	AmountKobo     int64     `json:"amountKobo"`
}

// SubscriptionResponse is the API view of a subscription.
type SubscriptionResponse struct {
	ID               uuid.UUID  `json:"id"`
	PlanID           uuid.UUID  `json:"planId"`
	PlanName         string     `json:"planName"`
	Status           string     `json:"status"`
	AutoRenew        bool       `json:"autoRenew"`
	StartDate        *time.Time `json:"startDate,omitempty"`
	EndDate          *time.Time `json:"endDate,omitempty"`
	PublicListingURL string     `json:"publicListingUrl,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// ToSubscriptionResponse maps a subscription detail row to its API shape.
func ToSubscriptionResponse(d *repository.Detail) SubscriptionResponse {
	return SubscriptionResponse{
		ID:               d.ID,
		PlanID:           d.PlanID,
		PlanName:         d.PlanName,
		Status:           string(d.Status),
		AutoRenew:        d.AutoRenew,
		StartDate:        d.StartDate,
		EndDate:          d.EndDate,
		PublicListingURL: d.PublicListingURL,
		CreatedAt:        d.CreatedAt,
	}
}
