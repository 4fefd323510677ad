package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBatchRepo struct {
	mu      sync.Mutex
	batches map[uuid.UUID]repository.Batch
	docs    []*repository.Document
}

func newFakeBatchRepo() *fakeBatchRepo {
	return &fakeBatchRepo{batches: make(map[uuid.UUID]repository.Batch)}
}

func (r *fakeBatchRepo) CreateBatch(_ context.Context, batch repository.Batch, docs []repository.CreateDocumentParams) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch.ID = uuid.New()
	r.batches[batch.ID] = batch
	for _, d := range docs {
		r.docs = append(r.docs, &repository.Document{
			ID:           uuid.New(),
			BatchID:      batch.ID,
			DocumentType: d.DocumentType,
			DocumentURL:  d.DocumentURL,
			Status:       repository.DocumentPending,
		})
	}
	return batch.ID, nil
}

func (r *fakeBatchRepo) GetBatch(_ context.Context, batchID uuid.UUID) (*repository.BatchDetail, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[batchID]
	if !ok {
		return nil, apperr.NotFound("verification batch not found")
	}
	detail := &repository.BatchDetail{Batch: batch}
	for _, d := range r.docs {
		if d.BatchID == batchID {
			detail.Documents = append(detail.Documents, *d)
		}
	}
	return detail, nil
}

func (r *fakeBatchRepo) GrantAccess(_ context.Context, documentID uuid.UUID, accessCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.docs {
		if d.ID == documentID {
			if d.Status != repository.DocumentPending {
				return false, nil
			}
			d.Status = repository.DocumentAccessGranted
			d.AccessCode = accessCode
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBatchRepo) MarkBatchPaymentFailed(_ context.Context, batchID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var changed int64
	for _, d := range r.docs {
		if d.BatchID == batchID && d.Status == repository.DocumentPending {
			d.Status = repository.DocumentPaymentFailed
			changed++
		}
	}
	return changed, nil
}

func (r *fakeBatchRepo) FindByAccessCode(_ context.Context, accessCode string) (*repository.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.docs {
		if d.AccessCode == accessCode && accessCode != "" {
			doc := *d
			return &doc, nil
		}
	}
	return nil, apperr.NotFound("access code not found")
}

type fakeTxnStore struct {
	mu   sync.Mutex
	txns []transactions.Transaction
}

func (s *fakeTxnStore) Create(_ context.Context, t transactions.Transaction) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = uuid.New()
	s.txns = append(s.txns, t)
	return t.ID, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	initCalls []gateway.InitParams
	initErr   error
}

func (g *fakeGateway) InitializeTransaction(_ context.Context, params gateway.InitParams) (*gateway.InitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.initCalls = append(g.initCalls, params)
	if g.initErr != nil {
		return nil, g.initErr
	}
	return &gateway.InitResult{
		AuthorizationURL: "https://checkout.paystack.com/" + params.Reference,
		Reference:        params.Reference,
	}, nil
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

type staticConfig struct{}

func (staticConfig) GetAppBaseURL() string    { return "https://app.khabiteqrealty.com" }
func (staticConfig) GetPublicBaseURL() string { return "https://khabiteqrealty.com" }
func (staticConfig) GetVerifierMailbox(documentType string) string {
	switch documentType {
	case "certificate-of-occupancy":
		return "occupancy@khabiteqrealty.com"
	case "deed-of-assignment":
		return "deeds@khabiteqrealty.com"
	}
	return ""
}

type fixture struct {
	svc  *Service
	repo *fakeBatchRepo
	txns *fakeTxnStore
	gw   *fakeGateway
	bus  *events.InMemoryBus
	rec  *recordingHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := logger.New("development")
	repo := newFakeBatchRepo()
	txns := &fakeTxnStore{}
	gw := &fakeGateway{}
	bus := events.NewInMemoryBus(log)
	rec := &recordingHandler{}
	bus.Subscribe(events.DocumentVerificationPaid{}.EventName(), rec)
	bus.Subscribe(events.DocumentVerificationPaymentFailed{}.EventName(), rec)

	svc := New(repo, txns, gw, bus, staticConfig{}, log)
	return &fixture{svc: svc, repo: repo, txns: txns, gw: gw, bus: bus, rec: rec}
}

func submitParams(docTypes ...string) SubmitParams {
	p := SubmitParams{
		SubmitterName:  "Ngozi Okafor",
		SubmitterEmail: "ngozi@example.com",
		SubmitterPhone: "+2348012345678",
	}
	for _, dt := range docTypes {
		p.Documents = append(p.Documents, SubmitDocument{
			DocumentType: dt,
			DocumentURL:  "https://docs.example.com/" + dt + ".pdf",
		})
	}
	return p
}

func TestSubmitInitializesCoveringPayment(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Submit(context.Background(), submitParams("certificate-of-occupancy", "deed-of-assignment"))
	require.NoError(t, err)

	assert.Equal(t, int64(2*20_000_00), result.AmountKobo)
	assert.True(t, strings.HasPrefix(result.Reference, "DOCV-"))
	assert.NotEmpty(t, result.PaymentURL)

	require.Len(t, fx.gw.initCalls, 1)
	assert.Equal(t, result.AmountKobo, fx.gw.initCalls[0].AmountKobo)

	require.Len(t, fx.txns.txns, 1)
	assert.Equal(t, transactions.EntityDocumentVerification, fx.txns.txns[0].EntityType)
	assert.Equal(t, result.BatchID, fx.txns.txns[0].EntityID)
}

func TestSubmitNormalizesSubmitterPhone(t *testing.T) {
	fx := newFixture(t)

	p := submitParams("deed-of-assignment")
	p.SubmitterPhone = "0801 234 5678"
	result, err := fx.svc.Submit(context.Background(), p)
	require.NoError(t, err)

	batch, ok := fx.repo.batches[result.BatchID]
	require.True(t, ok)
	assert.Equal(t, "+2348012345678", batch.SubmitterPhone)
}

func TestSubmitRejectsUnknownDocumentType(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Submit(context.Background(), submitParams("survey-plan"))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Empty(t, fx.gw.initCalls)
}

func TestSubmitRejectsOversizedBatch(t *testing.T) {
	fx := newFixture(t)

	types := make([]string, 11)
	for i := range types {
		types[i] = "deed-of-assignment"
	}
	_, err := fx.svc.Submit(context.Background(), submitParams(types...))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestSubmitClosesBatchWhenInitFails(t *testing.T) {
	fx := newFixture(t)
	fx.gw.initErr = apperr.Upstream("paystack unreachable")

	_, err := fx.svc.Submit(context.Background(), submitParams("deed-of-assignment"))
	require.Error(t, err)

	require.Len(t, fx.repo.docs, 1)
	assert.Equal(t, repository.DocumentPaymentFailed, fx.repo.docs[0].Status)
	assert.Empty(t, fx.txns.txns)
}

func TestPaymentSuccessGrantsAccessCodesOnce(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Submit(context.Background(), submitParams("certificate-of-occupancy", "deed-of-assignment"))
	require.NoError(t, err)

	granted, err := fx.svc.ApplyPaymentSuccess(context.Background(), result.BatchID, result.Reference)
	require.NoError(t, err)
	assert.Equal(t, 2, granted)

	for _, d := range fx.repo.docs {
		assert.Equal(t, repository.DocumentAccessGranted, d.Status)
		assert.True(t, strings.HasPrefix(d.AccessCode, "DV-"))
		assert.Len(t, d.AccessCode, 13)
	}

	// A re-delivered verification must not rotate issued codes.
	firstCodes := []string{fx.repo.docs[0].AccessCode, fx.repo.docs[1].AccessCode}
	granted, err = fx.svc.ApplyPaymentSuccess(context.Background(), result.BatchID, result.Reference)
	require.NoError(t, err)
	assert.Equal(t, 0, granted)
	assert.Equal(t, firstCodes[0], fx.repo.docs[0].AccessCode)
	assert.Equal(t, firstCodes[1], fx.repo.docs[1].AccessCode)

	fx.bus.Wait()
	assert.Equal(t, 2, fx.rec.countOf(events.DocumentVerificationPaid{}.EventName()))
}

func TestPaymentFailureClosesBatchOnce(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Submit(context.Background(), submitParams("deed-of-assignment"))
	require.NoError(t, err)

	applied, err := fx.svc.ApplyPaymentFailure(context.Background(), result.BatchID, result.Reference, "declined")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = fx.svc.ApplyPaymentFailure(context.Background(), result.BatchID, result.Reference, "declined")
	require.NoError(t, err)
	assert.False(t, applied)

	fx.bus.Wait()
	assert.Equal(t, 1, fx.rec.countOf(events.DocumentVerificationPaymentFailed{}.EventName()))
}

func TestVerifyAccessCode(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Submit(context.Background(), submitParams("deed-of-assignment"))
	require.NoError(t, err)
	_, err = fx.svc.ApplyPaymentSuccess(context.Background(), result.BatchID, result.Reference)
	require.NoError(t, err)

	code := fx.repo.docs[0].AccessCode

	doc, err := fx.svc.VerifyAccessCode(context.Background(), "  "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, fx.repo.docs[0].ID, doc.ID)

	_, err = fx.svc.VerifyAccessCode(context.Background(), "DV-DEADBEEF00")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
