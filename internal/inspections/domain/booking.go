// Package domain holds the pure negotiation state machine for inspection
// bookings. No I/O lives here; the service layer applies the transitions
// this package computes.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status is the fine-grained negotiation state of a booking.
type Status string

const (
	StatusPendingApproval      Status = "pending_approval"
	StatusAgentRejected        Status = "agent_rejected"
	StatusInspectionApproved   Status = "inspection_approved"
	StatusPendingTransaction   Status = "pending_transaction"
	StatusTransactionFailed    Status = "transaction_failed"
	StatusActiveNegotiation    Status = "active_negotiation"
	StatusNegotiationCountered Status = "negotiation_countered"
	StatusNegotiationAccepted  Status = "negotiation_accepted"
	StatusNegotiationRejected  Status = "negotiation_rejected"
	StatusCompleted            Status = "completed"
	StatusCancelled            Status = "cancelled"
)

// Stage is the coarse phase, always derivable from status but persisted for
// query efficiency.
type Stage string

const (
	StageInspection  Stage = "inspection"
	StageNegotiation Stage = "negotiation"
	StageLOI         Stage = "loi"
	StageCompleted   Stage = "completed"
	StageCancelled   Stage = "cancelled"
)

// Party identifies whose turn it is to act on a booking.
type Party string

const (
	PartyBuyer  Party = "buyer"
	PartySeller Party = "seller"
	PartyAdmin  Party = "admin"
	PartyNone   Party = "none"
)

// Other returns the counterparty for buyer/seller. Admin and none map to none.
func (p Party) Other() Party {
	switch p {
	case PartyBuyer:
		return PartySeller
	case PartySeller:
		return PartyBuyer
	default:
		return PartyNone
	}
}

// InspectionType distinguishes numeric price negotiation from Letter of
// Intention (document) negotiation. Immutable after creation.
type InspectionType string

const (
	TypePrice InspectionType = "price"
	TypeLOI   InspectionType = "loi"
)

// Action is a negotiation action taken by a buyer or seller.
type Action string

const (
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionCounter        Action = "counter"
	ActionRequestChanges Action = "request_changes"
)

// Booking is an immutable snapshot of an inspection booking, the input to
// Resolve. Money amounts are in kobo.
type Booking struct {
	ID                  uuid.UUID
	PropertyID          uuid.UUID
	BuyerID             uuid.UUID
	SellerID            uuid.UUID
	InspectionType      InspectionType
	Status              Status
	Stage               Stage
	PendingResponseFrom Party
	IsNegotiating       bool
	NegotiationPrice    int64
	SellerCounterOffer  int64
	LetterOfIntention   string
	InspectionDate      string
	InspectionTime      string
	InspectionMode      string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsTerminal reports whether the booking accepts no further transitions.
func (b Booking) IsTerminal() bool {
	switch b.Status {
	case StatusCompleted, StatusCancelled, StatusAgentRejected,
		StatusNegotiationRejected, StatusTransactionFailed:
		return true
	}
	return b.Stage == StageCompleted || b.Stage == StageCancelled
}

// PartyOf maps a user ID to its role on this booking.
func (b Booking) PartyOf(userID uuid.UUID) Party {
	switch userID {
	case b.BuyerID:
		return PartyBuyer
	case b.SellerID:
		return PartySeller
	default:
		return PartyNone
	}
}
