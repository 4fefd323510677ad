package service

import (
	"context"
	"sync"
	"testing"

	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memTxnStore struct {
	mu   sync.Mutex
	txns map[string]*transactions.Transaction
}

func newMemTxnStore(list ...transactions.Transaction) *memTxnStore {
	s := &memTxnStore{txns: make(map[string]*transactions.Transaction)}
	for i := range list {
		t := list[i]
		s.txns[t.Reference] = &t
	}
	return s
}

func (s *memTxnStore) GetByReference(_ context.Context, reference string) (*transactions.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txns[reference]
	if !ok {
		return nil, apperr.NotFound("transaction not found")
	}
	copied := *t
	return &copied, nil
}

func (s *memTxnStore) MarkStatus(_ context.Context, id uuid.UUID, status transactions.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.txns {
		if t.ID == id {
			if t.Status != transactions.StatusPending {
				return false, nil
			}
			t.Status = status
			return true, nil
		}
	}
	return false, nil
}

type stubVerifier struct {
	result *gateway.VerifyResult
	err    error
	calls  int
}

func (v *stubVerifier) VerifyTransaction(context.Context, string) (*gateway.VerifyResult, error) {
	v.calls++
	return v.result, v.err
}

// guardedApplier mimics the status-guarded entity updates: the first success
// or failure applies, every later one reports already-processed.
type guardedApplier struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	applied   bool
}

func (a *guardedApplier) ApplyPaymentSuccess(context.Context, uuid.UUID, string, int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.succeeded++
	if a.applied {
		return false, nil
	}
	a.applied = true
	return true, nil
}

func (a *guardedApplier) ApplyPaymentFailure(context.Context, uuid.UUID, string, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
	if a.applied {
		return false, nil
	}
	a.applied = true
	return true, nil
}

type subApplier struct {
	guardedApplier
	lastAuthCode string
}

func (a *subApplier) ApplyPaymentSuccess(_ context.Context, _ uuid.UUID, _ string, authCode string) (bool, error) {
	a.mu.Lock()
	a.lastAuthCode = authCode
	a.mu.Unlock()
	return a.guardedApplier.ApplyPaymentSuccess(context.Background(), uuid.Nil, "", 0)
}

func (a *subApplier) ApplyPaymentFailure(_ context.Context, _ uuid.UUID, reference, reason string) (bool, error) {
	return a.guardedApplier.ApplyPaymentFailure(context.Background(), uuid.Nil, reference, reason)
}

type docApplier struct {
	mu      sync.Mutex
	pending int
	failed  int
}

func (a *docApplier) ApplyPaymentSuccess(context.Context, uuid.UUID, string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	granted := a.pending
	a.pending = 0
	return granted, nil
}

func (a *docApplier) ApplyPaymentFailure(context.Context, uuid.UUID, string, string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.failed++
	return a.failed == 1, nil
}

func inspectionTxn(reference string) transactions.Transaction {
	return transactions.Transaction{
		ID:         uuid.New(),
		Reference:  reference,
		AmountKobo: 500000,
		Status:     transactions.StatusPending,
		EntityType: transactions.EntityInspection,
		EntityID:   uuid.New(),
	}
}

func TestDispatchSuccessAppliesInspectionEffectOnce(t *testing.T) {
	store := newMemTxnStore(inspectionTxn("INSP-1"))
	verifier := &stubVerifier{result: &gateway.VerifyResult{Verified: true, Status: "success"}}
	insp := &guardedApplier{}
	d := NewDispatcher(store, verifier, insp, &subApplier{}, &docApplier{}, logger.New("development"))

	first, err := d.Dispatch(context.Background(), "INSP-1")
	require.NoError(t, err)
	assert.True(t, first.Verified)
	assert.True(t, first.Applied)

	second, err := d.Dispatch(context.Background(), "INSP-1")
	require.NoError(t, err)
	assert.True(t, second.Verified)
	assert.False(t, second.Applied, "re-delivery must be a no-op")
	assert.Equal(t, 2, insp.succeeded)
	assert.Zero(t, insp.failed)
}

func TestDispatchFailureRoutesToFailureEffect(t *testing.T) {
	store := newMemTxnStore(inspectionTxn("INSP-2"))
	verifier := &stubVerifier{result: &gateway.VerifyResult{Status: "failed", Reason: "insufficient funds"}}
	insp := &guardedApplier{}
	d := NewDispatcher(store, verifier, insp, &subApplier{}, &docApplier{}, logger.New("development"))

	res, err := d.Dispatch(context.Background(), "INSP-2")
	require.NoError(t, err)
	assert.False(t, res.Verified)
	assert.True(t, res.Applied)
	assert.Equal(t, "insufficient funds", res.Reason)
	assert.Equal(t, 1, insp.failed)
	assert.Zero(t, insp.succeeded)
}

func TestDispatchAmbiguousGatewayFailureTouchesNothing(t *testing.T) {
	txn := inspectionTxn("INSP-3")
	store := newMemTxnStore(txn)
	verifier := &stubVerifier{err: apperr.Upstream("gateway request failed")}
	insp := &guardedApplier{}
	d := NewDispatcher(store, verifier, insp, &subApplier{}, &docApplier{}, logger.New("development"))

	_, err := d.Dispatch(context.Background(), "INSP-3")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindUpstream))
	assert.Zero(t, insp.succeeded)
	assert.Zero(t, insp.failed)

	stored, _ := store.GetByReference(context.Background(), "INSP-3")
	assert.Equal(t, transactions.StatusPending, stored.Status, "transaction must stay pending")
}

func TestDispatchSubscriptionCarriesAuthorizationCode(t *testing.T) {
	txn := transactions.Transaction{
		ID: uuid.New(), Reference: "SUB-1", AmountKobo: 1500000,
		Status: transactions.StatusPending, EntityType: transactions.EntitySubscription, EntityID: uuid.New(),
	}
	store := newMemTxnStore(txn)
	verifier := &stubVerifier{result: &gateway.VerifyResult{Verified: true, Status: "success", AuthorizationCode: "AUTH_xyz"}}
	sub := &subApplier{}
	d := NewDispatcher(store, verifier, &guardedApplier{}, sub, &docApplier{}, logger.New("development"))

	res, err := d.Dispatch(context.Background(), "SUB-1")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, "AUTH_xyz", sub.lastAuthCode)
}

func TestDispatchDocumentBatchProcessedOnce(t *testing.T) {
	txn := transactions.Transaction{
		ID: uuid.New(), Reference: "DOC-1", AmountKobo: 2000000,
		Status: transactions.StatusPending, EntityType: transactions.EntityDocumentVerification, EntityID: uuid.New(),
	}
	store := newMemTxnStore(txn)
	verifier := &stubVerifier{result: &gateway.VerifyResult{Verified: true, Status: "success"}}
	docs := &docApplier{pending: 3}
	d := NewDispatcher(store, verifier, &guardedApplier{}, &subApplier{}, docs, logger.New("development"))

	first, err := d.Dispatch(context.Background(), "DOC-1")
	require.NoError(t, err)
	assert.True(t, first.Applied, "three pending documents granted codes")

	second, err := d.Dispatch(context.Background(), "DOC-1")
	require.NoError(t, err)
	assert.False(t, second.Applied, "batch already processed")
}

func TestDispatchUnknownReference(t *testing.T) {
	d := NewDispatcher(newMemTxnStore(), &stubVerifier{}, &guardedApplier{}, &subApplier{}, &docApplier{}, logger.New("development"))
	_, err := d.Dispatch(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
