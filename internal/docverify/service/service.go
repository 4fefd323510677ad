// Package service implements document verification: batch submission, the
// payment effect that issues access codes, and verifier routing.
package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/KHABI-TEQ/Backend-sub001/internal/docverify/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/phone"

	"github.com/google/uuid"
)

// feePerDocumentKobo is the flat verification fee per document.
const feePerDocumentKobo = 20_000_00

// maxDocumentsPerBatch bounds one submission.
const maxDocumentsPerBatch = 10

// BatchRepository is the persistence the service needs.
type BatchRepository interface {
	CreateBatch(ctx context.Context, batch repository.Batch, docs []repository.CreateDocumentParams) (uuid.UUID, error)
	GetBatch(ctx context.Context, batchID uuid.UUID) (*repository.BatchDetail, error)
	GrantAccess(ctx context.Context, documentID uuid.UUID, accessCode string) (bool, error)
	MarkBatchPaymentFailed(ctx context.Context, batchID uuid.UUID) (int64, error)
	FindByAccessCode(ctx context.Context, accessCode string) (*repository.Document, error)
}

// TransactionStore is the transaction persistence the service needs.
type TransactionStore interface {
	Create(ctx context.Context, t transactions.Transaction) (uuid.UUID, error)
}

// PaymentInitializer is the slice of the gateway the service uses.
type PaymentInitializer interface {
	InitializeTransaction(ctx context.Context, params gateway.InitParams) (*gateway.InitResult, error)
}

// Service implements the document verification workflow.
type Service struct {
	repo BatchRepository
	txns TransactionStore
	pay  PaymentInitializer
	bus  events.Bus
	cfg  config.NotificationConfig
	log  *logger.Logger
}

// New creates the docverify service.
func New(repo BatchRepository, txns TransactionStore, pay PaymentInitializer, bus events.Bus, cfg config.NotificationConfig, log *logger.Logger) *Service {
	return &Service{repo: repo, txns: txns, pay: pay, bus: bus, cfg: cfg, log: log}
}

// SubmitDocument is one document in a submission.
type SubmitDocument struct {
	DocumentType string
	DocumentURL  string
}

// SubmitParams describes a batch submission.
type SubmitParams struct {
	SubmitterName  string
	SubmitterEmail string
	SubmitterPhone string
	Documents      []SubmitDocument
}

// SubmitResult is the outcome of a batch submission.
type SubmitResult struct {
	BatchID    uuid.UUID
	Reference  string
	PaymentURL string
	AmountKobo int64
}

// Submit creates a verification batch and initializes the covering payment.
func (s *Service) Submit(ctx context.Context, p SubmitParams) (*SubmitResult, error) {
	if len(p.Documents) == 0 {
		return nil, apperr.Validation("at least one document is required")
	}
	if len(p.Documents) > maxDocumentsPerBatch {
		return nil, apperr.Validation(fmt.Sprintf("at most %d documents per submission", maxDocumentsPerBatch))
	}
	for _, doc := range p.Documents {
		if s.cfg.GetVerifierMailbox(doc.DocumentType) == "" {
			return nil, apperr.Validation(fmt.Sprintf("unsupported document type %q", doc.DocumentType))
		}
	}

	p.SubmitterPhone = phone.NormalizeE164(p.SubmitterPhone)

	amount := int64(len(p.Documents)) * feePerDocumentKobo
	docs := make([]repository.CreateDocumentParams, 0, len(p.Documents))
	for _, doc := range p.Documents {
		docs = append(docs, repository.CreateDocumentParams{
			DocumentType: doc.DocumentType,
			DocumentURL:  doc.DocumentURL,
		})
	}

	batchID, err := s.repo.CreateBatch(ctx, repository.Batch{
		SubmitterName:  p.SubmitterName,
		SubmitterEmail: p.SubmitterEmail,
		SubmitterPhone: p.SubmitterPhone,
		AmountKobo:     amount,
	}, docs)
	if err != nil {
		return nil, err
	}

	reference := "DOCV-" + uuid.NewString()
	init, err := s.pay.InitializeTransaction(ctx, gateway.InitParams{
		Email:      p.SubmitterEmail,
		AmountKobo: amount,
		Reference:  reference,
		Metadata: map[string]any{
			"entityType": string(transactions.EntityDocumentVerification),
			"entityId":   batchID.String(),
			"documents":  len(p.Documents),
		},
	})
	if err != nil {
		if _, failErr := s.repo.MarkBatchPaymentFailed(ctx, batchID); failErr != nil {
			s.log.Error("failed to close batch after init failure", "batchId", batchID, "error", failErr)
		}
		return nil, err
	}

	if _, err := s.txns.Create(ctx, transactions.Transaction{
		Reference:  reference,
		AmountKobo: amount,
		EntityType: transactions.EntityDocumentVerification,
		EntityID:   batchID,
	}); err != nil {
		return nil, err
	}

	return &SubmitResult{
		BatchID:    batchID,
		Reference:  reference,
		PaymentURL: init.AuthorizationURL,
		AmountKobo: amount,
	}, nil
}

// GetBatch returns a batch with its documents. Access codes are never
// included in the struct's JSON form.
func (s *Service) GetBatch(ctx context.Context, batchID uuid.UUID) (*repository.BatchDetail, error) {
	return s.repo.GetBatch(ctx, batchID)
}

// VerifyAccessCode resolves a document by its one-time access code.
func (s *Service) VerifyAccessCode(ctx context.Context, code string) (*repository.Document, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	if code == "" {
		return nil, apperr.Validation("access code is required")
	}
	doc, err := s.repo.FindByAccessCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if doc.Status != repository.DocumentAccessGranted {
		return nil, apperr.Gone("access code is no longer valid")
	}
	return doc, nil
}

// ApplyPaymentSuccess issues an access code for every still-pending document
// in the batch and routes each to its verifier mailbox. Returns how many
// documents were granted; zero means the batch was already processed.
func (s *Service) ApplyPaymentSuccess(ctx context.Context, batchID uuid.UUID, reference string) (int, error) {
	detail, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return 0, err
	}

	granted := 0
	for _, doc := range detail.Documents {
		if doc.Status != repository.DocumentPending {
			continue
		}
		code, err := newAccessCode()
		if err != nil {
			return granted, err
		}
		applied, err := s.repo.GrantAccess(ctx, doc.ID, code)
		if err != nil {
			return granted, err
		}
		if !applied {
			continue
		}
		granted++

		s.bus.Publish(ctx, events.DocumentVerificationPaid{
			BaseEvent:      events.NewBaseEvent(),
			DocumentID:     doc.ID,
			BatchID:        batchID,
			DocumentType:   doc.DocumentType,
			DocumentURL:    doc.DocumentURL,
			AccessCode:     code,
			SubmitterName:  detail.SubmitterName,
			SubmitterEmail: detail.SubmitterEmail,
			VerifierEmail:  s.cfg.GetVerifierMailbox(doc.DocumentType),
		})
	}

	if granted > 0 {
		s.log.PaymentEvent("docverify_access_granted", reference, true, "")
	}
	return granted, nil
}

// ApplyPaymentFailure closes every still-pending document in the batch.
func (s *Service) ApplyPaymentFailure(ctx context.Context, batchID uuid.UUID, reference, reason string) (bool, error) {
	changed, err := s.repo.MarkBatchPaymentFailed(ctx, batchID)
	if err != nil {
		return false, err
	}
	if changed == 0 {
		return false, nil
	}

	detail, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return true, err
	}
	s.log.PaymentEvent("docverify_payment_failed", reference, false, reason)
	s.bus.Publish(ctx, events.DocumentVerificationPaymentFailed{
		BaseEvent:      events.NewBaseEvent(),
		BatchID:        batchID,
		SubmitterName:  detail.SubmitterName,
		SubmitterEmail: detail.SubmitterEmail,
		Reason:         reason,
	})
	return true, nil
}

// newAccessCode returns a one-time code like "DV-5F3A0C91D2".
func newAccessCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate access code: %w", err)
	}
	return "DV-" + strings.ToUpper(hex.EncodeToString(buf)), nil
}
