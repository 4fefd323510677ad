// Package transport defines the request and response shapes for the
// inspections HTTP API.
package transport

import (
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/repository"

	"github.com/google/uuid"
)

// ── Requests ──────────────────────────────────────────────────────────────────

// SubmitRequest is the public inspection submission body.
type SubmitRequest struct {
	PropertyID       uuid.UUID `json:"propertyId" validate:"required"`
	BuyerID          uuid.UUID `json:"buyerId" validate:"required"`
	SellerID         uuid.UUID `json:"sellerId" validate:"required"`
	BuyerPhone       string    `json:"buyerPhone" validate:"omitempty,max=20"`
	InspectionType   string    `json:"inspectionType" validate:"required,oneof=price loi"`
	InspectionMode   string    `json:"inspectionMode" validate:"omitempty,oneof=in_person virtual"`
	InspectionDate   string    `json:"inspectionDate" validate:"required,datetime=2006-01-02"`
	InspectionTime   string    `json:"inspectionTime" validate:"required,max=10"`
	NegotiationPrice int64     `json:"negotiationPrice" validate:"min=0"`
	// Either an external URL or a file key issued by the LOI upload endpoint.
	LetterOfIntention string `json:"letterOfIntention" validate:"omitempty,max=2000"`
}

// RespondRequest is the agent's accept/reject body for a new request.
type RespondRequest struct {
	Accept        bool   `json:"accept"`
	Note          string `json:"note" validate:"max=2000"`
	InspectionFee int64  `json:"inspectionFee" validate:"min=0"`
}

// ActionRequest is a negotiation action from either party.
type ActionRequest struct {
	Action         string `json:"action" validate:"required,oneof=accept reject counter request_changes"`
	CounterPrice   int64  `json:"counterPrice" validate:"min=0"`
	DocumentURL    string `json:"documentUrl" validate:"omitempty,url,max=2000"`
	Reason         string `json:"reason" validate:"max=2000"`
	InspectionDate string `json:"inspectionDate" validate:"omitempty,datetime=2006-01-02"`
	InspectionTime string `json:"inspectionTime" validate:"omitempty,max=10"`
}

// ── Responses ─────────────────────────────────────────────────────────────────

// BookingResponse is the API view of an inspection booking.
type BookingResponse struct {
	ID                  uuid.UUID `json:"id"`
	PropertyID          uuid.UUID `json:"propertyId"`
	PropertyTitle       string    `json:"propertyTitle"`
	BuyerID             uuid.UUID `json:"buyerId"`
	BuyerName           string    `json:"buyerName"`
	SellerID            uuid.UUID `json:"sellerId"`
	SellerName          string    `json:"sellerName"`
	InspectionType      string    `json:"inspectionType"`
	Status              string    `json:"status"`
	Stage               string    `json:"stage"`
	PendingResponseFrom string    `json:"pendingResponseFrom"`
	IsNegotiating       bool      `json:"isNegotiating"`
	NegotiationPrice    int64     `json:"negotiationPrice"`
	SellerCounterOffer  int64     `json:"sellerCounterOffer"`
	LetterOfIntention   string    `json:"letterOfIntention,omitempty"`
	InspectionDate      string    `json:"inspectionDate"`
	InspectionTime      string    `json:"inspectionTime"`
	InspectionMode      string    `json:"inspectionMode"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// RespondResponse is the outcome of the agent's accept/reject.
type RespondResponse struct {
	Status     string `json:"status"`
	PaymentURL string `json:"paymentUrl,omitempty"`
	FeeKobo    int64  `json:"feeKobo,omitempty"`
}

// ActionResponse is the outcome of a negotiation action.
type ActionResponse struct {
	Booking     BookingResponse `json:"booking"`
	SideEffects []string        `json:"sideEffects"`
}

// ToBookingResponse maps a booking detail row to its API shape.
func ToBookingResponse(d *repository.BookingDetail) BookingResponse {
	return BookingResponse{
		ID:                  d.ID,
		PropertyID:          d.PropertyID,
		PropertyTitle:       d.PropertyTitle,
		BuyerID:             d.BuyerID,
		BuyerName:           d.BuyerName,
		SellerID:            d.SellerID,
		SellerName:          d.SellerName,
		InspectionType:      string(d.InspectionType),
		Status:              string(d.Status),
		Stage:               string(d.Stage),
		PendingResponseFrom: string(d.PendingResponseFrom),
		IsNegotiating:       d.IsNegotiating,
		NegotiationPrice:    d.NegotiationPrice,
		SellerCounterOffer:  d.SellerCounterOffer,
		LetterOfIntention:   d.LetterOfIntention,
		InspectionDate:      d.InspectionDate,
		InspectionTime:      d.InspectionTime,
		InspectionMode:      d.InspectionMode,
		CreatedAt:           d.CreatedAt,
		UpdatedAt:           d.UpdatedAt,
	}
}

// ToActionInput maps the request body to the domain action input.
func (r ActionRequest) ToActionInput() domain.ActionInput {
	return domain.ActionInput{
		CounterPrice:   r.CounterPrice,
		DocumentURL:    r.DocumentURL,
		Reason:         r.Reason,
		InspectionDate: r.InspectionDate,
		InspectionTime: r.InspectionTime,
	}
}

// LOIUploadRequest asks for a presigned PUT URL for a letter of intention.
type LOIUploadRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,gt=0"`
}
