// Package handler exposes the inspections HTTP endpoints.
package handler

import (
	"net/http"
	"strings"

	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/transport"
	"github.com/KHABI-TEQ/Backend-sub001/internal/storage"
	"github.com/KHABI-TEQ/Backend-sub001/platform/httpkit"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request body"
	msgValidationFailed = "validation failed"
	msgInvalidBookingID = "invalid booking ID"
)

// Handler handles HTTP requests for inspection bookings.
type Handler struct {
	svc *service.Service
	val *validator.Validator
	loi storage.DocumentStore // nil when object storage is not configured
}

// New creates a new inspections handler.
func New(svc *service.Service, val *validator.Validator, loi storage.DocumentStore) *Handler {
	return &Handler{svc: svc, val: val, loi: loi}
}

// HandleSubmit accepts a new inspection request from a buyer.
// POST /api/v1/inspections (public, rate limited)
func (h *Handler) HandleSubmit(c *gin.Context) {
	var req transport.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	// Clients send both "loi" and "LOI"; the domain spells it lowercase.
	req.InspectionType = strings.ToLower(req.InspectionType)
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	detail, err := h.svc.SubmitRequest(c.Request.Context(), service.SubmitParams{
		PropertyID:        req.PropertyID,
		BuyerID:           req.BuyerID,
		SellerID:          req.SellerID,
		BuyerPhone:        req.BuyerPhone,
		InspectionType:    domain.InspectionType(req.InspectionType),
		InspectionMode:    req.InspectionMode,
		InspectionDate:    req.InspectionDate,
		InspectionTime:    req.InspectionTime,
		NegotiationPrice:  req.NegotiationPrice,
		LetterOfIntention: req.LetterOfIntention,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, transport.ToBookingResponse(detail))
}

// HandleRespond records the agent's accept/reject on a pending request.
// POST /api/v1/inspections/:bookingId/respond (authenticated, seller only)
func (h *Handler) HandleRespond(c *gin.Context) {
	bookingID, ok := h.bookingID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.RespondToRequest(c.Request.Context(), bookingID, identity.UserID(), req.Accept, req.Note, req.InspectionFee)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RespondResponse{
		Status:     string(result.Status),
		PaymentURL: result.PaymentURL,
		FeeKobo:    result.FeeKobo,
	})
}

// HandleAction applies a negotiation action from either party.
// POST /api/v1/inspections/:bookingId/actions (authenticated)
func (h *Handler) HandleAction(c *gin.Context) {
	bookingID, ok := h.bookingID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.ActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Act(c.Request.Context(), bookingID, identity.UserID(), domain.Action(req.Action), req.ToActionInput())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ActionResponse{
		Booking:     transport.ToBookingResponse(result.Booking),
		SideEffects: result.SideEffects,
	})
}

// HandleGet returns one booking, visible only to its parties.
// GET /api/v1/inspections/:bookingId (authenticated)
func (h *Handler) HandleGet(c *gin.Context) {
	bookingID, ok := h.bookingID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	detail, err := h.svc.GetBooking(c.Request.Context(), bookingID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToBookingResponse(detail))
}

// HandleListActivity returns the booking's audit trail in insertion order.
// GET /api/v1/inspections/:bookingId/activity (authenticated)
func (h *Handler) HandleListActivity(c *gin.Context) {
	bookingID, ok := h.bookingID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	entries, err := h.svc.ListActivity(c.Request.Context(), bookingID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, gin.H{"entries": entries})
}

// HandleLOIUploadURL issues a presigned PUT URL for a letter of intention.
// The buyer uploads the document first, then submits the returned fileKey
// as the letterOfIntention value.
// POST /api/v1/inspections/loi/upload-url (public, rate limited)
func (h *Handler) HandleLOIUploadURL(c *gin.Context) {
	if h.loi == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "document storage is not configured", nil)
		return
	}

	var req transport.LOIUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	presigned, err := h.loi.PresignUpload(c.Request.Context(), req.FileName, req.ContentType, req.SizeBytes)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, presigned)
}

// HandleLOIDownloadURL returns a time-limited link to the booking's letter
// of intention. Letters referencing an external URL are returned verbatim.
// GET /api/v1/inspections/:bookingId/loi-url (authenticated)
func (h *Handler) HandleLOIDownloadURL(c *gin.Context) {
	bookingID, ok := h.bookingID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	detail, err := h.svc.GetBooking(c.Request.Context(), bookingID, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}
	if detail.LetterOfIntention == "" {
		httpkit.Error(c, http.StatusNotFound, "booking has no letter of intention", nil)
		return
	}
	if strings.HasPrefix(detail.LetterOfIntention, "http://") || strings.HasPrefix(detail.LetterOfIntention, "https://") {
		httpkit.OK(c, gin.H{"url": detail.LetterOfIntention})
		return
	}
	if h.loi == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "document storage is not configured", nil)
		return
	}

	presigned, err := h.loi.PresignDownload(c.Request.Context(), detail.LetterOfIntention)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, presigned)
}

func (h *Handler) bookingID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("bookingId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBookingID, nil)
		return uuid.Nil, false
	}
	return id, true
}
