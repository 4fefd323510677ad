package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/activitylog"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory BookingRepository with the same conditional-write
// semantics as the Postgres implementation.
type fakeRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*repository.BookingDetail
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{bookings: make(map[uuid.UUID]*repository.BookingDetail)}
}

func (f *fakeRepo) put(d repository.BookingDetail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bookings[d.ID] = &d
}

func (f *fakeRepo) Create(_ context.Context, p repository.CreateParams) (uuid.UUID, error) {
	id := uuid.New()
	f.put(repository.BookingDetail{
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
	})
	return id, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.BookingDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.bookings[id]
	if !ok {
		return nil, apperr.NotFound("inspection booking not found")
	}
	copied := *d
	return &copied, nil
}

func (f *fakeRepo) ApplyTransition(_ context.Context, id uuid.UUID, expected domain.Status, tr domain.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.bookings[id]
	if !ok || d.Status != expected {
		return apperr.Conflict("booking changed concurrently or is already closed")
	}
	d.Status = tr.NextStatus
	d.Stage = tr.NextStage
	d.PendingResponseFrom = tr.NextPendingResponse
	d.IsNegotiating = tr.IsNegotiating
	if tr.Updates.NegotiationPrice != nil {
		d.NegotiationPrice = *tr.Updates.NegotiationPrice
	}
	if tr.Updates.SellerCounterOffer != nil {
		d.SellerCounterOffer = *tr.Updates.SellerCounterOffer
	}
	if tr.Updates.LetterOfIntention != nil {
		d.LetterOfIntention = *tr.Updates.LetterOfIntention
	}
	if tr.Updates.InspectionDate != nil {
		d.InspectionDate = *tr.Updates.InspectionDate
	}
	if tr.Updates.InspectionTime != nil {
		d.InspectionTime = *tr.Updates.InspectionTime
	}
	return nil
}

func (f *fakeRepo) conditional(id uuid.UUID, expected, next domain.Status, mutate func(*repository.BookingDetail)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.bookings[id]
	if !ok || d.Status != expected {
		return apperr.Conflict("booking is no longer awaiting this response")
	}
	d.Status = next
	if mutate != nil {
		mutate(d)
	}
	return nil
}

func (f *fakeRepo) SetAgentRejected(_ context.Context, id uuid.UUID, _ string) error {
	return f.conditional(id, domain.StatusPendingApproval, domain.StatusAgentRejected, func(d *repository.BookingDetail) {
		d.Stage = domain.StageCancelled
		d.PendingResponseFrom = domain.PartyNone
	})
}

func (f *fakeRepo) SetInspectionApproved(_ context.Context, id uuid.UUID) error {
	return f.conditional(id, domain.StatusPendingApproval, domain.StatusInspectionApproved, func(d *repository.BookingDetail) {
		d.PendingResponseFrom = domain.PartyBuyer
	})
}

func (f *fakeRepo) SetPendingTransaction(_ context.Context, id uuid.UUID) error {
	return f.conditional(id, domain.StatusPendingApproval, domain.StatusPendingTransaction, func(d *repository.BookingDetail) {
		d.PendingResponseFrom = domain.PartyBuyer
	})
}

func (f *fakeRepo) ApplyPaymentSuccess(_ context.Context, id uuid.UUID, status domain.Status, stage domain.Stage, isNegotiating bool) (bool, error) {
	err := f.conditional(id, domain.StatusPendingTransaction, status, func(d *repository.BookingDetail) {
		d.Stage = stage
		d.PendingResponseFrom = domain.PartySeller
		d.IsNegotiating = isNegotiating
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *fakeRepo) ApplyPaymentFailure(_ context.Context, id uuid.UUID) (bool, error) {
	err := f.conditional(id, domain.StatusPendingTransaction, domain.StatusTransactionFailed, func(d *repository.BookingDetail) {
		d.Stage = domain.StageCancelled
		d.PendingResponseFrom = domain.PartyNone
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (f *fakeRepo) DeleteStalePending(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

type fakeTxnStore struct {
	mu      sync.Mutex
	created []transactions.Transaction
}

func (f *fakeTxnStore) Create(_ context.Context, t transactions.Transaction) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uuid.New()
	f.created = append(f.created, t)
	return t.ID, nil
}

func (f *fakeTxnStore) HasOpenForEntity(_ context.Context, _ transactions.EntityType, entityID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.created {
		if t.EntityID == entityID {
			return true, nil
		}
	}
	return false, nil
}

type fakeActivity struct {
	mu      sync.Mutex
	entries []activitylog.Entry
}

func (f *fakeActivity) Insert(_ context.Context, e activitylog.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeActivity) ListByInspection(_ context.Context, id uuid.UUID) ([]activitylog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []activitylog.Entry
	for _, e := range f.entries {
		if e.InspectionID == id {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeGateway struct {
	initCalls int
	failWith  error
}

func (f *fakeGateway) InitializeTransaction(_ context.Context, p gateway.InitParams) (*gateway.InitResult, error) {
	f.initCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return &gateway.InitResult{
		AuthorizationURL: "https://checkout.example.com/" + p.Reference,
		Reference:        p.Reference,
	}, nil
}

type staticConfig struct {
	feeMin, feeMax int64
	dealSite       bool
}

func (c staticConfig) GetInspectionFeeMin() int64        { return c.feeMin }
func (c staticConfig) GetInspectionFeeMax() int64        { return c.feeMax }
func (c staticConfig) GetStalePendingTTL() time.Duration { return 48 * time.Hour }
func (c staticConfig) IsDealSite() bool                  { return c.dealSite }

type recordingHandler struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingHandler) Handle(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingHandler) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type fixture struct {
	svc      *Service
	repo     *fakeRepo
	txns     *fakeTxnStore
	activity *fakeActivity
	gw       *fakeGateway
	bus      *events.InMemoryBus
	rec      *recordingHandler
}

func newFixture(t *testing.T, cfg staticConfig) *fixture {
	t.Helper()
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	rec := &recordingHandler{}
	for _, name := range []string{
		events.InspectionRequested{}.EventName(),
		events.InspectionAgentResponded{}.EventName(),
		events.NegotiationActioned{}.EventName(),
		events.InspectionPaymentSucceeded{}.EventName(),
		events.InspectionPaymentFailed{}.EventName(),
	} {
		bus.Subscribe(name, rec)
	}

	repo := newFakeRepo()
	txns := &fakeTxnStore{}
	activity := &fakeActivity{}
	gw := &fakeGateway{}
	svc := New(repo, txns, activity, gw, bus, cfg, log)
	return &fixture{svc: svc, repo: repo, txns: txns, activity: activity, gw: gw, bus: bus, rec: rec}
}

func (fx *fixture) negotiatingBooking(pending domain.Party) *repository.BookingDetail {
	d := repository.BookingDetail{
		Booking: domain.Booking{
			ID:                  uuid.New(),
			PropertyID:          uuid.New(),
			BuyerID:             uuid.New(),
			SellerID:            uuid.New(),
			InspectionType:      domain.TypePrice,
			Status:              domain.StatusActiveNegotiation,
			Stage:               domain.StageNegotiation,
			PendingResponseFrom: pending,
			IsNegotiating:       true,
			NegotiationPrice:    40000000,
			InspectionDate:      "2026-09-01",
			InspectionTime:      "10:00",
		},
		PropertyTitle: "3 Bedroom Flat, Lekki",
		BuyerName:     "Ada",
		BuyerEmail:    "ada@example.com",
		SellerName:    "Tunde",
		SellerEmail:   "tunde@example.com",
	}
	fx.repo.put(d)
	return &d
}

func TestSubmitRequestNormalizesBuyerPhone(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})

	detail, err := fx.svc.SubmitRequest(context.Background(), SubmitParams{
		PropertyID:       uuid.New(),
		BuyerID:          uuid.New(),
		SellerID:         uuid.New(),
		BuyerPhone:       "0801 234 5678",
		InspectionType:   domain.TypePrice,
		InspectionDate:   "2026-09-01",
		InspectionTime:   "10:00",
		NegotiationPrice: 40000000,
	})
	require.NoError(t, err)
	assert.Equal(t, "+2348012345678", detail.BuyerPhone)
}

func TestSubmitRequestLOIRequiresDocument(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})

	_, err := fx.svc.SubmitRequest(context.Background(), SubmitParams{
		PropertyID:     uuid.New(),
		BuyerID:        uuid.New(),
		SellerID:       uuid.New(),
		InspectionType: domain.TypeLOI,
		InspectionDate: "2026-09-01",
		InspectionTime: "10:00",
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestActRejectsNonParties(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	b := fx.negotiatingBooking(domain.PartySeller)

	_, err := fx.svc.Act(context.Background(), b.ID, uuid.New(), domain.ActionAccept, domain.ActionInput{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestActEnforcesTurnOrder(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	b := fx.negotiatingBooking(domain.PartySeller)

	// It is the seller's turn; the buyer must wait.
	_, err := fx.svc.Act(context.Background(), b.ID, b.BuyerID, domain.ActionCounter, domain.ActionInput{CounterPrice: 100})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestActPersistsBeforeNotifying(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	b := fx.negotiatingBooking(domain.PartySeller)

	res, err := fx.svc.Act(context.Background(), b.ID, b.SellerID, domain.ActionCounter, domain.ActionInput{CounterPrice: 45000000})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusNegotiationCountered, res.Booking.Status)
	assert.Equal(t, domain.PartyBuyer, res.Booking.PendingResponseFrom)
	assert.Equal(t, int64(45000000), res.Booking.SellerCounterOffer)
	assert.Contains(t, res.SideEffects, "activity_log")
	assert.Contains(t, res.SideEffects, "counterparty_email")

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.count())
	require.Len(t, fx.activity.entries, 1)
	assert.Equal(t, string(domain.StatusNegotiationCountered), fx.activity.entries[0].Status)
}

func TestActRacePropertyExactlyOneWins(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	b := fx.negotiatingBooking(domain.PartySeller)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	actions := []struct {
		action domain.Action
		input  domain.ActionInput
	}{
		{domain.ActionAccept, domain.ActionInput{}},
		{domain.ActionCounter, domain.ActionInput{CounterPrice: 45000000}},
	}
	for i, a := range actions {
		wg.Add(1)
		go func(i int, action domain.Action, input domain.ActionInput) {
			defer wg.Done()
			_, errs[i] = fx.svc.Act(context.Background(), b.ID, b.SellerID, action, input)
		}(i, a.action, a.input)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.True(t, apperr.Is(err, apperr.KindConflict), "loser must get a conflict, got %v", err)
		}
	}
	assert.Equal(t, 1, winners, "exactly one concurrent action may succeed")
}

func TestRespondRejectIsTerminal(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	id, err := fx.repo.Create(context.Background(), repository.CreateParams{
		PropertyID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(),
		InspectionType: domain.TypePrice,
	})
	require.NoError(t, err)
	b, _ := fx.repo.GetByID(context.Background(), id)

	res, err := fx.svc.RespondToRequest(context.Background(), id, b.SellerID, false, "property unavailable", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAgentRejected, res.Status)

	// Terminal: a second response conflicts.
	_, err = fx.svc.RespondToRequest(context.Background(), id, b.SellerID, true, "", 5000)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestRespondAcceptFeeModeInitializesPayment(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	id, err := fx.repo.Create(context.Background(), repository.CreateParams{
		PropertyID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(),
		InspectionType: domain.TypePrice,
	})
	require.NoError(t, err)
	b, _ := fx.repo.GetByID(context.Background(), id)

	res, err := fx.svc.RespondToRequest(context.Background(), id, b.SellerID, true, "", 5000)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingTransaction, res.Status)
	assert.NotEmpty(t, res.PaymentURL)
	assert.Equal(t, int64(500000), res.FeeKobo)
	require.Len(t, fx.txns.created, 1)
	assert.Equal(t, transactions.EntityInspection, fx.txns.created[0].EntityType)
	assert.Equal(t, id, fx.txns.created[0].EntityID)
}

func TestRespondAcceptDealSiteSkipsPayment(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000, dealSite: true})
	id, err := fx.repo.Create(context.Background(), repository.CreateParams{
		PropertyID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(),
		InspectionType: domain.TypePrice,
	})
	require.NoError(t, err)
	b, _ := fx.repo.GetByID(context.Background(), id)

	res, err := fx.svc.RespondToRequest(context.Background(), id, b.SellerID, true, "", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInspectionApproved, res.Status)
	assert.Empty(t, res.PaymentURL)
	assert.Zero(t, fx.gw.initCalls)
}

func TestRespondUpstreamFailureLeavesBookingUntouched(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	fx.gw.failWith = apperr.Upstream("gateway request failed")
	id, err := fx.repo.Create(context.Background(), repository.CreateParams{
		PropertyID: uuid.New(), BuyerID: uuid.New(), SellerID: uuid.New(),
		InspectionType: domain.TypePrice,
	})
	require.NoError(t, err)
	b, _ := fx.repo.GetByID(context.Background(), id)

	_, err = fx.svc.RespondToRequest(context.Background(), id, b.SellerID, true, "", 5000)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))

	after, _ := fx.repo.GetByID(context.Background(), id)
	assert.Equal(t, domain.StatusPendingApproval, after.Status)
	assert.Empty(t, fx.txns.created)
}

func TestClampFee(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	tests := []struct {
		in, want int64
	}{
		{0, 1000},
		{999, 1000},
		{1000, 1000},
		{5000, 5000},
		{50000, 50000},
		{50001, 50000},
		{1000000, 50000},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("fee=%d", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, fx.svc.ClampFee(tt.in))
		})
	}
}

func TestApplyPaymentSuccessIsIdempotent(t *testing.T) {
	fx := newFixture(t, staticConfig{feeMin: 1000, feeMax: 50000})
	b := fx.negotiatingBooking(domain.PartyBuyer)
	fx.repo.mu.Lock()
	fx.repo.bookings[b.ID].Status = domain.StatusPendingTransaction
	fx.repo.bookings[b.ID].NegotiationPrice = 0
	fx.repo.mu.Unlock()

	applied, err := fx.svc.ApplyPaymentSuccess(context.Background(), b.ID, "INSP-ref", 500000)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = fx.svc.ApplyPaymentSuccess(context.Background(), b.ID, "INSP-ref", 500000)
	require.NoError(t, err)
	assert.False(t, applied, "second delivery must be a no-op")

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.count(), "only one event pair may be published")

	after, _ := fx.repo.GetByID(context.Background(), b.ID)
	assert.Equal(t, domain.StatusActiveNegotiation, after.Status)
	assert.Equal(t, domain.StageInspection, after.Stage)
	assert.Equal(t, domain.PartySeller, after.PendingResponseFrom)
}
