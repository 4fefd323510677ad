package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/activitylog"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*repository.BookingDetail
}

func (s *stubRepo) Create(_ context.Context, p repository.CreateParams) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.bookings[id] = &repository.BookingDetail{
		Booking: domain.Booking{
			ID:                  id,
			PropertyID:          p.PropertyID,
			BuyerID:             p.BuyerID,
			SellerID:            p.SellerID,
			InspectionType:      p.InspectionType,
			Status:              domain.StatusPendingApproval,
			Stage:               domain.StageInspection,
			PendingResponseFrom: domain.PartySeller,
			NegotiationPrice:    p.NegotiationPrice,
			LetterOfIntention:   p.LetterOfIntention,
			InspectionDate:      p.InspectionDate,
			InspectionTime:      p.InspectionTime,
		},
		PropertyTitle: "3 Bedroom Flat, Lekki",
		BuyerName:     "Ada",
		BuyerEmail:    "ada@example.com",
		BuyerPhone:    p.BuyerPhone,
		SellerName:    "Tunde",
		SellerEmail:   "tunde@example.com",
	}
	return id, nil
}

func (s *stubRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.BookingDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.bookings[id]
	if !ok {
		return nil, apperr.NotFound("inspection booking not found")
	}
	copied := *d
	return &copied, nil
}

func (s *stubRepo) ApplyTransition(context.Context, uuid.UUID, domain.Status, domain.Transition) error {
	return nil
}
func (s *stubRepo) SetAgentRejected(context.Context, uuid.UUID, string) error { return nil }
func (s *stubRepo) SetInspectionApproved(context.Context, uuid.UUID) error    { return nil }
func (s *stubRepo) SetPendingTransaction(context.Context, uuid.UUID) error    { return nil }
func (s *stubRepo) ApplyPaymentSuccess(context.Context, uuid.UUID, domain.Status, domain.Stage, bool) (bool, error) {
	return false, nil
}
func (s *stubRepo) ApplyPaymentFailure(context.Context, uuid.UUID) (bool, error) { return false, nil }
func (s *stubRepo) DeleteStalePending(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type stubTxns struct{}

func (stubTxns) Create(context.Context, transactions.Transaction) (uuid.UUID, error) {
	return uuid.New(), nil
}
func (stubTxns) HasOpenForEntity(context.Context, transactions.EntityType, uuid.UUID) (bool, error) {
	return false, nil
}

type stubActivity struct{}

func (stubActivity) Insert(context.Context, activitylog.Entry) error { return nil }
func (stubActivity) ListByInspection(context.Context, uuid.UUID) ([]activitylog.Entry, error) {
	return nil, nil
}

type stubGateway struct{}

func (stubGateway) InitializeTransaction(_ context.Context, p gateway.InitParams) (*gateway.InitResult, error) {
	return &gateway.InitResult{AuthorizationURL: "https://checkout.example.com/" + p.Reference, Reference: p.Reference}, nil
}

type stubConfig struct{}

func (stubConfig) GetInspectionFeeMin() int64        { return 1000 }
func (stubConfig) GetInspectionFeeMax() int64        { return 50000 }
func (stubConfig) GetStalePendingTTL() time.Duration { return 48 * time.Hour }
func (stubConfig) IsDealSite() bool                  { return false }

func newSubmitRouter(t *testing.T) (*gin.Engine, *stubRepo) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("development")
	repo := &stubRepo{bookings: make(map[uuid.UUID]*repository.BookingDetail)}
	svc := service.New(repo, stubTxns{}, stubActivity{}, stubGateway{}, events.NewInMemoryBus(log), stubConfig{}, log)
	h := New(svc, validator.New(), nil)

	router := gin.New()
	router.POST("/inspections", h.HandleSubmit)
	return router, repo
}

func submitBody(inspectionType string) map[string]any {
	return map[string]any{
		"propertyId":        uuid.New(),
		"buyerId":           uuid.New(),
		"sellerId":          uuid.New(),
		"inspectionType":    inspectionType,
		"inspectionDate":    "2026-09-01",
		"inspectionTime":    "10:00",
		"letterOfIntention": "loi/offer_ab12cd34.pdf",
	}
}

func postSubmit(t *testing.T, router *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/inspections", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

// The public form spells the type "LOI"; the booking must still land in the
// lowercase domain spelling.
func TestHandleSubmitAcceptsLOIRequests(t *testing.T) {
	for _, spelling := range []string{"loi", "LOI"} {
		t.Run(spelling, func(t *testing.T) {
			router, repo := newSubmitRouter(t)

			rec := postSubmit(t, router, submitBody(spelling))
			require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

			var resp struct {
				ID             uuid.UUID `json:"id"`
				InspectionType string    `json:"inspectionType"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "loi", resp.InspectionType)

			stored, err := repo.GetByID(context.Background(), resp.ID)
			require.NoError(t, err)
			assert.Equal(t, domain.TypeLOI, stored.InspectionType)
		})
	}
}

func TestHandleSubmitRejectsUnknownType(t *testing.T) {
	router, _ := newSubmitRouter(t)

	rec := postSubmit(t, router, submitBody("rental"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
