// Package gateway wraps the Paystack HTTP API. Network and HTTP-level
// failures surface as Upstream errors so callers never apply destructive
// effects on an ambiguous answer.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
)

// Client is the payment gateway surface used by the engine.
type Client interface {
	InitializeTransaction(ctx context.Context, p InitParams) (*InitResult, error)
	VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error)
	ChargeAuthorization(ctx context.Context, p ChargeParams) (*VerifyResult, error)
}

// InitParams starts a checkout session. AmountKobo is in minor units.
type InitParams struct {
	Email      string
	AmountKobo int64
	Reference  string
	Metadata   map[string]any
}

// InitResult is the checkout session the buyer is sent to.
type InitResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// ChargeParams charges a stored authorization without user interaction.
type ChargeParams struct {
	Email             string
	AmountKobo        int64
	AuthorizationCode string
	Reference         string
}

// VerifyResult is the gateway's answer for one transaction.
// Verified is true only for an explicit gateway success; an explicit
// "failed"/"abandoned" sets Verified=false with the gateway reason. Anything
// ambiguous never reaches the caller: it becomes an Upstream error instead.
type VerifyResult struct {
	Verified          bool
	Status            string
	AmountKobo        int64
	Reason            string
	AuthorizationCode string
}

// PaystackClient talks to the Paystack REST API.
type PaystackClient struct {
	baseURL     string
	secretKey   string
	callbackURL string
	client      *http.Client
}

// NewPaystackClient creates a gateway client from configuration.
func NewPaystackClient(cfg config.PaystackConfig) *PaystackClient {
	return &PaystackClient{
		baseURL:     cfg.GetPaystackBaseURL(),
		secretKey:   cfg.GetPaystackSecretKey(),
		callbackURL: cfg.GetPaymentCallbackURL(),
		client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackTransactionData struct {
	Status          string `json:"status"`
	Reference       string `json:"reference"`
	Amount          int64  `json:"amount"`
	GatewayResponse string `json:"gateway_response"`
	Authorization   struct {
		AuthorizationCode string `json:"authorization_code"`
		Reusable          bool   `json:"reusable"`
	} `json:"authorization"`
}

// InitializeTransaction starts a checkout session and returns the hosted
// payment page URL.
func (p *PaystackClient) InitializeTransaction(ctx context.Context, params InitParams) (*InitResult, error) {
	body := map[string]any{
		"email":     params.Email,
		"amount":    params.AmountKobo,
		"reference": params.Reference,
		"metadata":  params.Metadata,
	}
	if p.callbackURL != "" {
		body["callback_url"] = p.callbackURL
	}

	env, err := p.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}

	var data paystackInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "gateway returned an unreadable initialize response", err)
	}
	return &InitResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

// VerifyTransaction asks the gateway for the final state of a transaction.
func (p *PaystackClient) VerifyTransaction(ctx context.Context, reference string) (*VerifyResult, error) {
	env, err := p.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	return decodeTransaction(env)
}

// ChargeAuthorization charges a stored card authorization, used by the
// subscription auto-renew sweep.
func (p *PaystackClient) ChargeAuthorization(ctx context.Context, params ChargeParams) (*VerifyResult, error) {
	body := map[string]any{
		"email":              params.Email,
		"amount":             params.AmountKobo,
		"authorization_code": params.AuthorizationCode,
		"reference":          params.Reference,
	}
	env, err := p.do(ctx, http.MethodPost, "/transaction/charge_authorization", body)
	if err != nil {
		return nil, err
	}
	return decodeTransaction(env)
}

func decodeTransaction(env *paystackEnvelope) (*VerifyResult, error) {
	var data paystackTransactionData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "gateway returned an unreadable transaction", err)
	}

	result := &VerifyResult{
		Status:            data.Status,
		AmountKobo:        data.Amount,
		AuthorizationCode: data.Authorization.AuthorizationCode,
	}
	switch data.Status {
	case "success":
		result.Verified = true
	case "failed", "abandoned", "reversed":
		result.Verified = false
		result.Reason = data.GatewayResponse
	default:
		// Still pending at the gateway. Not a failure, not a success.
		return nil, apperr.Upstream(fmt.Sprintf("transaction %s is still %s at the gateway", data.Reference, data.Status))
	}
	return result, nil
}

func (p *PaystackClient) do(ctx context.Context, method, path string, body any) (*paystackEnvelope, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "gateway request failed", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "gateway response could not be read", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Upstream(fmt.Sprintf("gateway returned status %d: %s", resp.StatusCode, string(raw)))
	}

	var env paystackEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindUpstream, "gateway returned invalid JSON", err)
	}
	if !env.Status {
		return nil, apperr.Upstream(fmt.Sprintf("gateway rejected the request: %s", env.Message))
	}
	return &env, nil
}
