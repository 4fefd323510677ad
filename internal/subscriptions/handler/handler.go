// Package handler exposes the subscriptions HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/transport"
	"github.com/KHABI-TEQ/Backend-sub001/platform/httpkit"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest        = "invalid request body"
	msgValidationFailed      = "validation failed"
	msgInvalidSubscriptionID = "invalid subscription ID"
)

// Handler handles HTTP requests for subscriptions.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new subscriptions handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleListPlans returns the purchasable plans.
// GET /api/v1/subscriptions/plans (public)
func (h *Handler) HandleListPlans(c *gin.Context) {
	plans, err := h.svc.ListPlans(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"plans": plans})
}

// HandleSubscribe starts a subscription purchase.
// POST /api/v1/subscriptions (authenticated)
func (h *Handler) HandleSubscribe(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	var req transport.SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.svc.Subscribe(c.Request.Context(), identity.UserID(), req.PlanID, req.Email, req.AutoRenew)
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, transport.SubscribeResponse{
		SubscriptionID: result.SubscriptionID,
		Reference:      result.Reference,
		PaymentURL:     result.PaymentURL,
		AmountKobo:     result.AmountKobo,
	})
}

// HandleListMine returns the requester's subscriptions.
// GET /api/v1/subscriptions (authenticated)
func (h *Handler) HandleListMine(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	details, err := h.svc.ListMine(c.Request.Context(), identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	responses := make([]transport.SubscriptionResponse, 0, len(details))
	for i := range details {
		responses = append(responses, transport.ToSubscriptionResponse(&details[i]))
	}
	httpkit.OK(c, gin.H{"subscriptions": responses})
}

// HandleGet returns one subscription, visible only to its owner.
// GET /api/v1/subscriptions/:subscriptionId (authenticated)
func (h *Handler) HandleGet(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	id, err := uuid.Parse(c.Param("subscriptionId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidSubscriptionID, nil)
		return
	}

	detail, err := h.svc.GetSubscription(c.Request.Context(), id, identity.UserID())
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ToSubscriptionResponse(detail))
}
