// Package handler exposes the payment gateway callback endpoints.
package handler

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/httpkit"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/gin-gonic/gin"
)

const (
	signatureHeader = "X-Paystack-Signature"

	msgInvalidSignature = "invalid webhook signature"
	msgInvalidPayload   = "invalid webhook payload"
	msgMissingReference = "missing transaction reference"
)

// webhookEnvelope is the subset of the Paystack webhook body we act on.
// Everything else in the payload is re-fetched from the verify endpoint,
// so a forged body can never move money state on its own.
type webhookEnvelope struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// Handler handles payment gateway HTTP callbacks.
type Handler struct {
	dispatcher *service.Dispatcher
	cfg        config.PaystackConfig
	log        *logger.Logger
}

// New creates a new payments handler.
func New(dispatcher *service.Dispatcher, cfg config.PaystackConfig, log *logger.Logger) *Handler {
	return &Handler{dispatcher: dispatcher, cfg: cfg, log: log}
}

// HandleWebhook processes a Paystack webhook notification.
// POST /api/v1/payments/webhook
//
// The body is authenticated with an HMAC-SHA512 signature over the raw
// payload. The reference is always re-verified against the gateway before
// any effect is applied, and effects are idempotent, so we return 200 even
// when the transaction was already settled. An ambiguous gateway failure
// returns 502 so Paystack retries the delivery.
func (h *Handler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPayload, nil)
		return
	}

	if !h.validSignature(body, c.GetHeader(signatureHeader)) {
		h.log.PaymentEvent("webhook_rejected", "", false, msgInvalidSignature)
		httpkit.Error(c, http.StatusUnauthorized, msgInvalidSignature, nil)
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidPayload, nil)
		return
	}
	if envelope.Data.Reference == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingReference, nil)
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), envelope.Data.Reference)
	if err != nil {
		// Unknown references are acknowledged so Paystack stops retrying
		// deliveries for transactions we never initiated.
		if apperr.Is(err, apperr.KindNotFound) {
			h.log.PaymentEvent("webhook_unknown_reference", envelope.Data.Reference, false, err.Error())
			httpkit.OK(c, gin.H{"status": "ignored"})
			return
		}
		httpkit.HandleError(c, err)
		return
	}

	httpkit.OK(c, result)
}

// HandleVerify verifies a transaction by reference and applies its effect.
// GET /api/v1/payments/verify/:reference
//
// This is the polling counterpart of the webhook, used by the frontend
// callback page. It is safe to call repeatedly.
func (h *Handler) HandleVerify(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		httpkit.Error(c, http.StatusBadRequest, msgMissingReference, nil)
		return
	}

	result, err := h.dispatcher.Dispatch(c.Request.Context(), reference)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, result)
}

func (h *Handler) validSignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	mac := hmac.New(sha512.New, []byte(h.cfg.GetPaystackSecretKey()))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
