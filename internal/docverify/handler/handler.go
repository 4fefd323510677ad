// Package handler exposes the document verification HTTP endpoints.
package handler

import (
	"net/http"

	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/service"
	"github.com/KHABI-TEQ/Backend-sub001/platform/httpkit"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest = "invalid request body"
	msgValidation     = "validation failed"
	msgInvalidBatchID = "invalid batch ID"
)

// SubmitDocumentRequest is one document in a submission.
type SubmitDocumentRequest struct {
	DocumentType string `json:"documentType" validate:"required,max=100"`
	DocumentURL  string `json:"documentUrl" validate:"required,url,max=2000"`
}

// SubmitBatchRequest is the public batch submission body.
type SubmitBatchRequest struct {
	SubmitterName  string                  `json:"submitterName" validate:"required,min=2,max=200"`
	SubmitterEmail string                  `json:"submitterEmail" validate:"required,email"`
	SubmitterPhone string                  `json:"submitterPhone" validate:"omitempty,max=20"`
	Documents      []SubmitDocumentRequest `json:"documents" validate:"required,min=1,max=10,dive"`
}

// Handler handles HTTP requests for document verification.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new docverify handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// HandleSubmit accepts a new verification batch.
// POST /api/v1/document-verifications (public, rate limited)
func (h *Handler) HandleSubmit(c *gin.Context) {
	var req SubmitBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidation, err.Error())
		return
	}

	docs := make([]service.SubmitDocument, 0, len(req.Documents))
	for _, d := range req.Documents {
		docs = append(docs, service.SubmitDocument{
			DocumentType: d.DocumentType,
			DocumentURL:  d.DocumentURL,
		})
	}

	result, err := h.svc.Submit(c.Request.Context(), service.SubmitParams{
		SubmitterName:  req.SubmitterName,
		SubmitterEmail: req.SubmitterEmail,
		SubmitterPhone: req.SubmitterPhone,
		Documents:      docs,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"batchId":    result.BatchID,
		"reference":  result.Reference,
		"paymentUrl": result.PaymentURL,
		"amountKobo": result.AmountKobo,
	})
}

// HandleGetBatch returns a batch with its documents.
// GET /api/v1/document-verifications/:batchId (public)
func (h *Handler) HandleGetBatch(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batchId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidBatchID, nil)
		return
	}

	detail, err := h.svc.GetBatch(c.Request.Context(), batchID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, detail)
}

// HandleVerifyCode resolves a document by its one-time access code.
// GET /api/v1/document-verifications/access/:code (public)
func (h *Handler) HandleVerifyCode(c *gin.Context) {
	doc, err := h.svc.VerifyAccessCode(c.Request.Context(), c.Param("code"))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, doc)
}
