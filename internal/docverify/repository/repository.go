// Package repository provides PostgreSQL persistence for document
// verification batches.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentStatus is the per-document verification status.
type DocumentStatus string

const (
	DocumentPending       DocumentStatus = "pending"
	DocumentAccessGranted DocumentStatus = "verified-access-granted"
	DocumentPaymentFailed DocumentStatus = "payment-failed"
)

// Document is one document inside a verification batch.
type Document struct {
	ID           uuid.UUID      `json:"id"`
	BatchID      uuid.UUID      `json:"batchId"`
	DocumentType string         `json:"documentType"`
	DocumentURL  string         `json:"documentUrl"`
	Status       DocumentStatus `json:"status"`
	AccessCode   string         `json:"-"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Batch is one paid-for group of documents submitted together.
type Batch struct {
	ID             uuid.UUID `json:"id"`
	SubmitterName  string    `json:"submitterName"`
	SubmitterEmail string    `json:"submitterEmail"`
	SubmitterPhone string    `json:"submitterPhone,omitempty"`
	AmountKobo     int64     `json:"amountKobo"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BatchDetail is a batch with its documents.
type BatchDetail struct {
	Batch
	Documents []Document `json:"documents"`
}

// CreateDocumentParams describes one document at batch submission.
type CreateDocumentParams struct {
	DocumentType string
	DocumentURL  string
}

// Repository provides document verification persistence backed by pgx.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new docverify repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateBatch inserts a batch and its documents in one transaction.
func (r *Repository) CreateBatch(ctx context.Context, batch Batch, docs []CreateDocumentParams) (uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("begin create batch: %w", err)
	}
	defer tx.Rollback(ctx)

	batchID := uuid.New()
	_, err = tx.Exec(ctx, `
		INSERT INTO verification_batches (id, submitter_name, submitter_email, submitter_phone, amount_kobo, created_at)
		VALUES ($1, $2, $3, $4, $5, now())`,
		batchID, batch.SubmitterName, batch.SubmitterEmail, batch.SubmitterPhone, batch.AmountKobo)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert batch: %w", err)
	}

	for _, doc := range docs {
		_, err = tx.Exec(ctx, `
			INSERT INTO verification_documents (id, batch_id, document_type, document_url, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())`,
			uuid.New(), batchID, doc.DocumentType, doc.DocumentURL, DocumentPending)
		if err != nil {
			return uuid.Nil, fmt.Errorf("insert document: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("commit create batch: %w", err)
	}
	return batchID, nil
}

// GetBatch loads a batch with all its documents.
func (r *Repository) GetBatch(ctx context.Context, batchID uuid.UUID) (*BatchDetail, error) {
	var detail BatchDetail
	err := r.pool.QueryRow(ctx, `
		SELECT id, submitter_name, submitter_email, COALESCE(submitter_phone, ''), amount_kobo, created_at
		FROM verification_batches WHERE id = $1`, batchID,
	).Scan(&detail.ID, &detail.SubmitterName, &detail.SubmitterEmail, &detail.SubmitterPhone, &detail.AmountKobo, &detail.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("verification batch not found")
		}
		return nil, fmt.Errorf("get batch: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, document_type, document_url, status, COALESCE(access_code, ''), created_at, updated_at
		FROM verification_documents WHERE batch_id = $1 ORDER BY created_at`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list batch documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.BatchID, &d.DocumentType, &d.DocumentURL, &d.Status, &d.AccessCode, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		detail.Documents = append(detail.Documents, d)
	}
	return &detail, rows.Err()
}

// GrantAccess stamps an access code on one pending document. Returns false
// when the document already left pending, so a re-delivered payment cannot
// rotate an issued code.
func (r *Repository) GrantAccess(ctx context.Context, documentID uuid.UUID, accessCode string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE verification_documents
		SET status = $3, access_code = $4, updated_at = now()
		WHERE id = $1 AND status = $2`,
		documentID, DocumentPending, DocumentAccessGranted, accessCode)
	if err != nil {
		return false, fmt.Errorf("grant document access: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkBatchPaymentFailed flips every still-pending document in the batch to
// payment-failed. Returns how many documents changed.
func (r *Repository) MarkBatchPaymentFailed(ctx context.Context, batchID uuid.UUID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE verification_documents
		SET status = $3, updated_at = now()
		WHERE batch_id = $1 AND status = $2`,
		batchID, DocumentPending, DocumentPaymentFailed)
	if err != nil {
		return 0, fmt.Errorf("mark batch payment failed: %w", err)
	}
	return tag.RowsAffected(), nil
}

// FindByAccessCode resolves one document by its one-time access code.
func (r *Repository) FindByAccessCode(ctx context.Context, accessCode string) (*Document, error) {
	var d Document
	err := r.pool.QueryRow(ctx, `
		SELECT id, batch_id, document_type, document_url, status, COALESCE(access_code, ''), created_at, updated_at
		FROM verification_documents WHERE access_code = $1`, accessCode,
	).Scan(&d.ID, &d.BatchID, &d.DocumentType, &d.DocumentURL, &d.Status, &d.AccessCode, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.NotFound("no document for this access code")
		}
		return nil, fmt.Errorf("find by access code: %w", err)
	}
	return &d, nil
}
