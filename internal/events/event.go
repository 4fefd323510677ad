// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"github.com/KHABI-TEQ/Backend-sub001/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Inspection Domain Events
// =============================================================================

// InspectionRequested is published when a buyer submits a new inspection request.
type InspectionRequested struct {
	BaseEvent
	BookingID      uuid.UUID `json:"bookingId"`
	PropertyID     uuid.UUID `json:"propertyId"`
	PropertyTitle  string    `json:"propertyTitle"`
	InspectionType string    `json:"inspectionType"`
	BuyerName      string    `json:"buyerName"`
	BuyerEmail     string    `json:"buyerEmail"`
	SellerID       uuid.UUID `json:"sellerId"`
	SellerName     string    `json:"sellerName"`
	SellerEmail    string    `json:"sellerEmail"`
	InspectionDate string    `json:"inspectionDate"`
	InspectionTime string    `json:"inspectionTime"`
}

func (e InspectionRequested) EventName() string { return "inspections.requested" }

// InspectionAgentResponded is published when the owning agent accepts or
// rejects a brand-new inspection request.
type InspectionAgentResponded struct {
	BaseEvent
	BookingID      uuid.UUID `json:"bookingId"`
	PropertyTitle  string    `json:"propertyTitle"`
	Approved       bool      `json:"approved"`
	Note           string    `json:"note,omitempty"`
	FeeKobo        int64     `json:"feeKobo,omitempty"`
	PaymentLink    string    `json:"paymentLink,omitempty"`
	BuyerID        uuid.UUID `json:"buyerId"`
	BuyerName      string    `json:"buyerName"`
	BuyerEmail     string    `json:"buyerEmail"`
	InspectionDate string    `json:"inspectionDate"`
	InspectionTime string    `json:"inspectionTime"`
}

func (e InspectionAgentResponded) EventName() string { return "inspections.agent.responded" }

// NegotiationActioned is published after a negotiation transition has been
// persisted. It carries everything the notification module needs to compose
// the counterparty email and, for terminal actions, the initiator confirmation.
type NegotiationActioned struct {
	BaseEvent
	BookingID        uuid.UUID `json:"bookingId"`
	PropertyTitle    string    `json:"propertyTitle"`
	Action           string    `json:"action"`
	ActorRole        string    `json:"actorRole"`
	ActorID          uuid.UUID `json:"actorId"`
	NewStatus        string    `json:"newStatus"`
	NewStage         string    `json:"newStage"`
	CounterPriceKobo int64     `json:"counterPriceKobo,omitempty"`
	DocumentURL      string    `json:"documentUrl,omitempty"`
	Reason           string    `json:"reason,omitempty"`
	InspectionDate   string    `json:"inspectionDate"`
	InspectionTime   string    `json:"inspectionTime"`
	DateTimeChanged  bool      `json:"dateTimeChanged"`
	BuyerID          uuid.UUID `json:"buyerId"`
	BuyerName        string    `json:"buyerName"`
	BuyerEmail       string    `json:"buyerEmail"`
	SellerID         uuid.UUID `json:"sellerId"`
	SellerName       string    `json:"sellerName"`
	SellerEmail      string    `json:"sellerEmail"`
}

func (e NegotiationActioned) EventName() string { return "inspections.negotiation.actioned" }

// InspectionPaymentSucceeded is published when a confirmed payment moves a
// booking out of pending_transaction into the negotiation family.
type InspectionPaymentSucceeded struct {
	BaseEvent
	BookingID      uuid.UUID `json:"bookingId"`
	PropertyTitle  string    `json:"propertyTitle"`
	Reference      string    `json:"reference"`
	NewStatus      string    `json:"newStatus"`
	NewStage       string    `json:"newStage"`
	AmountKobo     int64     `json:"amountKobo"`
	BuyerID        uuid.UUID `json:"buyerId"`
	BuyerName      string    `json:"buyerName"`
	BuyerEmail     string    `json:"buyerEmail"`
	SellerID       uuid.UUID `json:"sellerId"`
	SellerName     string    `json:"sellerName"`
	SellerEmail    string    `json:"sellerEmail"`
	InspectionDate string    `json:"inspectionDate"`
	InspectionTime string    `json:"inspectionTime"`
}

func (e InspectionPaymentSucceeded) EventName() string { return "inspections.payment.succeeded" }

// InspectionPaymentFailed is published when the gateway reports an explicit
// failure for an inspection fee transaction.
type InspectionPaymentFailed struct {
	BaseEvent
	BookingID     uuid.UUID `json:"bookingId"`
	PropertyTitle string    `json:"propertyTitle"`
	Reference     string    `json:"reference"`
	Reason        string    `json:"reason,omitempty"`
	BuyerID       uuid.UUID `json:"buyerId"`
	BuyerName     string    `json:"buyerName"`
	BuyerEmail    string    `json:"buyerEmail"`
}

func (e InspectionPaymentFailed) EventName() string { return "inspections.payment.failed" }

// =============================================================================
// Subscription Domain Events
// =============================================================================

// SubscriptionActivated is published when a pending subscription is activated
// by a confirmed payment (initial purchase or auto-renew).
type SubscriptionActivated struct {
	BaseEvent
	SubscriptionID   uuid.UUID `json:"subscriptionId"`
	UserID           uuid.UUID `json:"userId"`
	UserName         string    `json:"userName"`
	UserEmail        string    `json:"userEmail"`
	PlanName         string    `json:"planName"`
	EndDate          string    `json:"endDate"`
	PublicListingURL string    `json:"publicListingUrl,omitempty"`
	Renewal          bool      `json:"renewal"`
}

func (e SubscriptionActivated) EventName() string { return "subscriptions.activated" }

// SubscriptionActivationFailed is published when a subscription payment fails.
type SubscriptionActivationFailed struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	UserID         uuid.UUID `json:"userId"`
	UserName       string    `json:"userName"`
	UserEmail      string    `json:"userEmail"`
	PlanName       string    `json:"planName"`
	Reason         string    `json:"reason,omitempty"`
	RetryLink      string    `json:"retryLink,omitempty"`
}

func (e SubscriptionActivationFailed) EventName() string { return "subscriptions.activation.failed" }

// SubscriptionExpiryWarningDue is published by the sweep N days before a
// subscription's end date.
type SubscriptionExpiryWarningDue struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	UserID         uuid.UUID `json:"userId"`
	UserName       string    `json:"userName"`
	UserEmail      string    `json:"userEmail"`
	PlanName       string    `json:"planName"`
	EndDate        string    `json:"endDate"`
	DaysLeft       int       `json:"daysLeft"`
}

func (e SubscriptionExpiryWarningDue) EventName() string { return "subscriptions.expiry.warning" }

// SubscriptionExpired is published when the sweep expires a subscription past
// its end date.
type SubscriptionExpired struct {
	BaseEvent
	SubscriptionID    uuid.UUID `json:"subscriptionId"`
	UserID            uuid.UUID `json:"userId"`
	UserName          string    `json:"userName"`
	UserEmail         string    `json:"userEmail"`
	PlanName          string    `json:"planName"`
	VisibilityRevoked bool      `json:"visibilityRevoked"`
}

func (e SubscriptionExpired) EventName() string { return "subscriptions.expired" }

// SubscriptionAutoRenewFailed is published when an auto-renew charge attempt
// fails for a given subscription cycle.
type SubscriptionAutoRenewFailed struct {
	BaseEvent
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	UserID         uuid.UUID `json:"userId"`
	UserName       string    `json:"userName"`
	UserEmail      string    `json:"userEmail"`
	PlanName       string    `json:"planName"`
	Reason         string    `json:"reason,omitempty"`
	RetryLink      string    `json:"retryLink,omitempty"`
}

func (e SubscriptionAutoRenewFailed) EventName() string { return "subscriptions.autorenew.failed" }

// =============================================================================
// Document Verification Domain Events
// =============================================================================

// DocumentVerificationPaid is published per document in a paid verification
// batch, after the access code has been persisted.
type DocumentVerificationPaid struct {
	BaseEvent
	DocumentID     uuid.UUID `json:"documentId"`
	BatchID        uuid.UUID `json:"batchId"`
	DocumentType   string    `json:"documentType"`
	DocumentURL    string    `json:"documentUrl"`
	AccessCode     string    `json:"accessCode"`
	SubmitterName  string    `json:"submitterName"`
	SubmitterEmail string    `json:"submitterEmail"`
	VerifierEmail  string    `json:"verifierEmail"`
}

func (e DocumentVerificationPaid) EventName() string { return "docverify.document.paid" }

// DocumentVerificationPaymentFailed is published when a verification batch
// payment fails.
type DocumentVerificationPaymentFailed struct {
	BaseEvent
	BatchID        uuid.UUID `json:"batchId"`
	SubmitterName  string    `json:"submitterName"`
	SubmitterEmail string    `json:"submitterEmail"`
	Reason         string    `json:"reason,omitempty"`
}

func (e DocumentVerificationPaymentFailed) EventName() string { return "docverify.payment.failed" }

// =============================================================================
// Notification Outbox Events
// =============================================================================

// NotificationOutboxDue is published by the scheduler when outbox rows are
// ready for delivery.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
	Kind     string    `json:"kind"`
}

func (e NotificationOutboxDue) EventName() string { return "notifications.outbox.due" }
