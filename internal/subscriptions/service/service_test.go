package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	paysvc "github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRepo is an in-memory SubscriptionRepository with the same
// conditional-write semantics as the Postgres implementation.
type fakeRepo struct {
	mu    sync.Mutex
	plans map[uuid.UUID]repository.Plan
	subs  map[uuid.UUID]*repository.Detail
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		plans: make(map[uuid.UUID]repository.Plan),
		subs:  make(map[uuid.UUID]*repository.Detail),
	}
}

func (f *fakeRepo) putPlan(p repository.Plan) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.plans[p.ID] = p
}

func (f *fakeRepo) put(d repository.Detail) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[d.ID] = &d
}

func (f *fakeRepo) GetPlan(_ context.Context, planID uuid.UUID) (*repository.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[planID]
	if !ok {
		return nil, apperr.NotFound("subscription plan not found")
	}
	return &p, nil
}

func (f *fakeRepo) ListPlans(context.Context) ([]repository.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Plan
	for _, p := range f.plans {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) CreatePending(_ context.Context, userID, planID uuid.UUID, autoRenew bool) (uuid.UUID, error) {
	plan, err := f.GetPlan(context.Background(), planID)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	f.put(repository.Detail{
		Subscription: repository.Subscription{
			ID:        id,
			UserID:    userID,
			PlanID:    planID,
			Status:    repository.StatusPending,
			AutoRenew: autoRenew,
		},
		PlanName:       plan.Name,
		PlanPriceKobo:  plan.PriceKobo,
		DurationInDays: plan.DurationInDays,
		UserName:       "Ngozi",
		UserEmail:      "ngozi@example.com",
	})
	return id, nil
}

func (f *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*repository.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok {
		return nil, apperr.NotFound("subscription not found")
	}
	copied := *d
	return &copied, nil
}

func (f *fakeRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]repository.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Detail
	for _, d := range f.subs {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRepo) ActivatePending(_ context.Context, id uuid.UUID, endDate time.Time, authCode, listingURL string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusPending {
		return false, nil
	}
	now := time.Now()
	d.Status = repository.StatusActive
	d.StartDate = &now
	d.EndDate = &endDate
	d.AuthorizationCode = authCode
	d.PublicListingURL = listingURL
	return true, nil
}

func (f *fakeRepo) CancelPending(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusPending {
		return false, nil
	}
	d.Status = repository.StatusCancelled
	return true, nil
}

func (f *fakeRepo) ClaimRenewal(_ context.Context, id uuid.UUID, reference string, retryAfter time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusActive {
		return false, nil
	}
	if d.RenewalAttemptedAt != nil && !d.RenewalAttemptedAt.Before(retryAfter) {
		return false, nil
	}
	now := time.Now()
	d.LastRenewalReference = reference
	d.RenewalAttemptedAt = &now
	return true, nil
}

func (f *fakeRepo) RenewActive(_ context.Context, id uuid.UUID, reference string, newEnd time.Time, authCode string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusActive || d.LastRenewalReference != reference {
		return false, nil
	}
	d.EndDate = &newEnd
	d.LastRenewalReference = ""
	d.ExpiryWarnedAt = nil
	if authCode != "" {
		d.AuthorizationCode = authCode
	}
	return true, nil
}

func (f *fakeRepo) ClearRenewalClaim(_ context.Context, id uuid.UUID, reference string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.LastRenewalReference != reference {
		return false, nil
	}
	d.LastRenewalReference = ""
	d.AutoRenew = false
	return true, nil
}

func (f *fakeRepo) ListExpiringSoon(_ context.Context, within time.Duration) ([]repository.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(within)
	var out []repository.Detail
	for _, d := range f.subs {
		if d.Status == repository.StatusActive && d.ExpiryWarnedAt == nil &&
			d.EndDate != nil && d.EndDate.After(time.Now()) && !d.EndDate.After(cutoff) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRepo) MarkWarned(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusActive || d.ExpiryWarnedAt != nil {
		return false, nil
	}
	now := time.Now()
	d.ExpiryWarnedAt = &now
	return true, nil
}

func (f *fakeRepo) ListRenewalDue(_ context.Context, retryAfter time.Time) ([]repository.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Detail
	for _, d := range f.subs {
		if d.Status != repository.StatusActive || !d.AutoRenew || d.AuthorizationCode == "" {
			continue
		}
		if d.EndDate == nil || d.EndDate.After(time.Now()) {
			continue
		}
		if d.RenewalAttemptedAt != nil && !d.RenewalAttemptedAt.Before(retryAfter) {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeRepo) ListExpireDue(_ context.Context, graceUntil time.Time) ([]repository.Detail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Detail
	for _, d := range f.subs {
		if d.Status != repository.StatusActive || d.EndDate == nil || d.EndDate.After(graceUntil) {
			continue
		}
		if d.AutoRenew && d.AuthorizationCode != "" {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (f *fakeRepo) Expire(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.subs[id]
	if !ok || d.Status != repository.StatusActive {
		return false, nil
	}
	d.Status = repository.StatusExpired
	d.PublicListingURL = ""
	return true, nil
}

func (f *fakeRepo) HasOtherActive(_ context.Context, userID, excludeID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.subs {
		if d.UserID == userID && d.ID != excludeID && d.Status == repository.StatusActive {
			return true, nil
		}
	}
	return false, nil
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

func (f *fakeTxnStore) HasOpenForEntity(context.Context, transactions.EntityType, uuid.UUID) (bool, error) {
	return false, nil
}

func (f *fakeTxnStore) entityFor(reference string) (uuid.UUID, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.created {
		if t.Reference == reference {
			return t.EntityID, true
		}
	}
	return uuid.Nil, false
}

type fakeGateway struct {
	mu           sync.Mutex
	initCalls    int
	chargeCalls  int
	chargeResult *gateway.VerifyResult
	chargeErr    error
}

func (f *fakeGateway) InitializeTransaction(_ context.Context, p gateway.InitParams) (*gateway.InitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return &gateway.InitResult{
		AuthorizationURL: "https://checkout.example.com/" + p.Reference,
		Reference:        p.Reference,
	}, nil
}

func (f *fakeGateway) ChargeAuthorization(_ context.Context, _ gateway.ChargeParams) (*gateway.VerifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargeCalls++
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return f.chargeResult, nil
}

// passthroughDispatcher routes a verified charge straight back into the
// service, mirroring what the payment dispatcher does for the
// subscription entity type.
type passthroughDispatcher struct {
	svc  *Service
	txns *fakeTxnStore
}

func (p *passthroughDispatcher) DispatchVerified(ctx context.Context, reference string, verify *gateway.VerifyResult) (*paysvc.Result, error) {
	entityID, ok := p.txns.entityFor(reference)
	if !ok {
		return nil, apperr.NotFound("no transaction with this reference")
	}
	var applied bool
	var err error
	if verify.Verified {
		applied, err = p.svc.ApplyPaymentSuccess(ctx, entityID, reference, verify.AuthorizationCode)
	} else {
		applied, err = p.svc.ApplyPaymentFailure(ctx, entityID, reference, verify.Reason)
	}
	if err != nil {
		return nil, err
	}
	return &paysvc.Result{Reference: reference, Verified: verify.Verified, Applied: applied}, nil
}

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

func (r *recordingHandler) countOf(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventName() == name {
			n++
		}
	}
	return n
}

func (r *recordingHandler) firstOf(name string) events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.EventName() == name {
			return e
		}
	}
	return nil
}

type staticConfig struct {
	warnDays int
	baseURL  string
}

func (c staticConfig) GetExpiryWarningDays() int       { return c.warnDays }
func (c staticConfig) GetPublicListingBaseURL() string { return c.baseURL }
func (c staticConfig) GetAppBaseURL() string           { return "https://app.khabiteqrealty.com" }

type fixture struct {
	svc  *Service
	repo *fakeRepo
	txns *fakeTxnStore
	gw   *fakeGateway
	bus  *events.InMemoryBus
	rec  *recordingHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	rec := &recordingHandler{}
	for _, name := range []string{
		events.SubscriptionActivated{}.EventName(),
		events.SubscriptionActivationFailed{}.EventName(),
		events.SubscriptionExpiryWarningDue{}.EventName(),
		events.SubscriptionExpired{}.EventName(),
		events.SubscriptionAutoRenewFailed{}.EventName(),
	} {
		bus.Subscribe(name, rec)
	}

	repo := newFakeRepo()
	txns := &fakeTxnStore{}
	gw := &fakeGateway{}
	svc := New(repo, txns, gw, bus, staticConfig{warnDays: 3, baseURL: "https://khabiteqrealty.com"}, log)
	svc.SetDispatcher(&passthroughDispatcher{svc: svc, txns: txns})
	return &fixture{svc: svc, repo: repo, txns: txns, gw: gw, bus: bus, rec: rec}
}

func (fx *fixture) plan() repository.Plan {
	p := repository.Plan{
		ID:             uuid.New(),
		Name:           "Agent Pro",
		PriceKobo:      1_500_000,
		DurationInDays: 30,
		IsActive:       true,
	}
	fx.repo.putPlan(p)
	return p
}

func (fx *fixture) activeSub(plan repository.Plan, endsIn time.Duration, autoRenew bool, authCode string) uuid.UUID {
	start := time.Now().Add(-30 * 24 * time.Hour)
	end := time.Now().Add(endsIn)
	id := uuid.New()
	fx.repo.put(repository.Detail{
		Subscription: repository.Subscription{
			ID:                id,
			UserID:            uuid.New(),
			PlanID:            plan.ID,
			Status:            repository.StatusActive,
			AutoRenew:         autoRenew,
			AuthorizationCode: authCode,
			StartDate:         &start,
			EndDate:           &end,
		},
		PlanName:       plan.Name,
		PlanPriceKobo:  plan.PriceKobo,
		DurationInDays: plan.DurationInDays,
		UserName:       "Ngozi",
		UserEmail:      "ngozi@example.com",
	})
	return id
}

func TestSubscribeInitializesPayment(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	userID := uuid.New()

	result, err := fx.svc.Subscribe(context.Background(), userID, plan.ID, "ngozi@example.com", true)
	require.NoError(t, err)

	assert.Equal(t, plan.PriceKobo, result.AmountKobo)
	assert.Contains(t, result.PaymentURL, result.Reference)
	assert.Equal(t, 1, fx.gw.initCalls)

	detail, err := fx.repo.GetByID(context.Background(), result.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusPending, detail.Status)
}

func TestActivationIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	result, err := fx.svc.Subscribe(context.Background(), uuid.New(), plan.ID, "ngozi@example.com", true)
	require.NoError(t, err)

	applied, err := fx.svc.ApplyPaymentSuccess(context.Background(), result.SubscriptionID, result.Reference, "AUTH_xyz")
	require.NoError(t, err)
	assert.True(t, applied)

	detail, err := fx.repo.GetByID(context.Background(), result.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusActive, detail.Status)
	require.NotNil(t, detail.EndDate)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), *detail.EndDate, time.Minute)
	assert.Equal(t, "AUTH_xyz", detail.AuthorizationCode)
	assert.Contains(t, detail.PublicListingURL, "/agents/")

	// Re-delivered webhook: no second activation, no second email.
	applied, err = fx.svc.ApplyPaymentSuccess(context.Background(), result.SubscriptionID, result.Reference, "AUTH_xyz")
	require.NoError(t, err)
	assert.False(t, applied)

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionActivated{}.EventName()))
}

func TestActivationFailureCancelsPending(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	result, err := fx.svc.Subscribe(context.Background(), uuid.New(), plan.ID, "ngozi@example.com", false)
	require.NoError(t, err)

	applied, err := fx.svc.ApplyPaymentFailure(context.Background(), result.SubscriptionID, result.Reference, "declined")
	require.NoError(t, err)
	assert.True(t, applied)

	detail, err := fx.repo.GetByID(context.Background(), result.SubscriptionID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusCancelled, detail.Status)

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionActivationFailed{}.EventName()))
	failed, ok := fx.rec.firstOf(events.SubscriptionActivationFailed{}.EventName()).(events.SubscriptionActivationFailed)
	require.True(t, ok)
	assert.Equal(t, "https://app.khabiteqrealty.com/subscriptions/plans", failed.RetryLink)
}

func TestSweepWarnsOnceBeforeExpiry(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	fx.activeSub(plan, 2*24*time.Hour, false, "")

	stats, err := fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Warned)

	// Second cycle is a no-op: the warning was already recorded.
	stats, err = fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Warned)

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionExpiryWarningDue{}.EventName()))
}

func TestSweepAutoRenewExtendsSubscription(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	subID := fx.activeSub(plan, -2*time.Hour, true, "AUTH_stored")
	fx.gw.chargeResult = &gateway.VerifyResult{Verified: true, Status: "success", AuthorizationCode: "AUTH_stored"}

	stats, err := fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Renewed)
	assert.Equal(t, 0, stats.Expired)

	detail, err := fx.repo.GetByID(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusActive, detail.Status)
	require.NotNil(t, detail.EndDate)
	assert.True(t, detail.EndDate.After(time.Now().Add(29*24*time.Hour)))

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionActivated{}.EventName()))
}

// A declined auto-renew charge sends exactly one failure email: the claim is
// released with auto-renew disabled, so the next sweep expires the
// subscription instead of retrying the card.
func TestSweepAutoRenewFailureEmailsOnce(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	subID := fx.activeSub(plan, -2*time.Hour, true, "AUTH_stored")
	fx.gw.chargeResult = &gateway.VerifyResult{Verified: false, Status: "failed", Reason: "insufficient funds"}

	stats, err := fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Renewed)
	// The declined renewal must not also expire the subscription this cycle.
	assert.Equal(t, 0, stats.Expired)
	assert.Equal(t, 1, fx.gw.chargeCalls)

	detail, err := fx.repo.GetByID(context.Background(), subID)
	require.NoError(t, err)
	assert.False(t, detail.AutoRenew)

	// Second pass: no further charge attempt, the subscription expires.
	stats, err = fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.gw.chargeCalls)
	assert.Equal(t, 1, stats.Expired)

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionAutoRenewFailed{}.EventName()))
	assert.Equal(t, 1, fx.rec.countOf(events.SubscriptionExpired{}.EventName()))
	renewFailed, ok := fx.rec.firstOf(events.SubscriptionAutoRenewFailed{}.EventName()).(events.SubscriptionAutoRenewFailed)
	require.True(t, ok)
	assert.NotEmpty(t, renewFailed.RetryLink)
}

// An ambiguous gateway failure leaves the claim open: the subscription is
// skipped until the retry window passes, and no failure email goes out.
func TestSweepAmbiguousChargeFailureDefersRetry(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()
	subID := fx.activeSub(plan, -2*time.Hour, true, "AUTH_stored")
	fx.gw.chargeErr = apperr.Upstream("gateway timeout")

	_, err := fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.gw.chargeCalls)

	// Immediate second sweep must not charge again inside the claim window.
	_, err = fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fx.gw.chargeCalls)

	detail, err := fx.repo.GetByID(context.Background(), subID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusActive, detail.Status)
	assert.True(t, detail.AutoRenew)

	fx.bus.Wait()
	assert.Equal(t, 0, fx.rec.countOf(events.SubscriptionAutoRenewFailed{}.EventName()))
}

func TestExpiredVisibilityGraceCheck(t *testing.T) {
	fx := newFixture(t)
	plan := fx.plan()

	// Same user holds a second, still-active subscription.
	subID := fx.activeSub(plan, -time.Hour, false, "")
	detail, err := fx.repo.GetByID(context.Background(), subID)
	require.NoError(t, err)
	other := fx.activeSub(plan, 10*24*time.Hour, false, "")
	otherDetail, err := fx.repo.GetByID(context.Background(), other)
	require.NoError(t, err)
	otherDetail.UserID = detail.UserID
	fx.repo.put(*otherDetail)

	_, err = fx.svc.SweepExpiry(context.Background())
	require.NoError(t, err)

	fx.bus.Wait()
	fx.rec.mu.Lock()
	defer fx.rec.mu.Unlock()
	var expiredEvents []events.SubscriptionExpired
	for _, e := range fx.rec.events {
		if expired, ok := e.(events.SubscriptionExpired); ok {
			expiredEvents = append(expiredEvents, expired)
		}
	}
	require.Len(t, expiredEvents, 1)
	assert.False(t, expiredEvents[0].VisibilityRevoked)
}
