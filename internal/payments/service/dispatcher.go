// Package service turns gateway verification results into exactly-once
// domain effects. Each effect is guarded by the owning entity's expected
// prior status, so webhook retries and duplicate polling are no-ops.
package service

import (
	"context"
	"fmt"

	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
)

// TransactionStore is the transaction persistence the dispatcher needs.
type TransactionStore interface {
	GetByReference(ctx context.Context, reference string) (*transactions.Transaction, error)
	MarkStatus(ctx context.Context, id uuid.UUID, status transactions.Status) (bool, error)
}

// Verifier is the slice of the gateway the dispatcher uses.
type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*gateway.VerifyResult, error)
}

// InspectionApplier applies the inspection payment effect. Applied=false
// means the booking already left pending_transaction.
type InspectionApplier interface {
	ApplyPaymentSuccess(ctx context.Context, bookingID uuid.UUID, reference string, amountKobo int64) (bool, error)
	ApplyPaymentFailure(ctx context.Context, bookingID uuid.UUID, reference, reason string) (bool, error)
}

// SubscriptionApplier applies the subscription payment effect.
type SubscriptionApplier interface {
	ApplyPaymentSuccess(ctx context.Context, subscriptionID uuid.UUID, reference, authorizationCode string) (bool, error)
	ApplyPaymentFailure(ctx context.Context, subscriptionID uuid.UUID, reference, reason string) (bool, error)
}

// DocumentApplier applies the document-verification payment effect for a
// batch. The success path returns how many pending documents were granted
// access codes; zero means the batch was already processed.
type DocumentApplier interface {
	ApplyPaymentSuccess(ctx context.Context, batchID uuid.UUID, reference string) (int, error)
	ApplyPaymentFailure(ctx context.Context, batchID uuid.UUID, reference, reason string) (bool, error)
}

// Result reports what one dispatch did.
type Result struct {
	Reference  string                  `json:"reference"`
	Verified   bool                    `json:"verified"`
	Applied    bool                    `json:"applied"`
	EntityType transactions.EntityType `json:"entityType"`
	Reason     string                  `json:"reason,omitempty"`
}

// Dispatcher routes a verified transaction to the effect for its entity.
type Dispatcher struct {
	txns          TransactionStore
	verifier      Verifier
	inspections   InspectionApplier
	subscriptions SubscriptionApplier
	documents     DocumentApplier
	log           *logger.Logger
}

// NewDispatcher creates a payment-effect dispatcher.
func NewDispatcher(txns TransactionStore, verifier Verifier, inspections InspectionApplier, subscriptions SubscriptionApplier, documents DocumentApplier, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		txns:          txns,
		verifier:      verifier,
		inspections:   inspections,
		subscriptions: subscriptions,
		documents:     documents,
		log:           log,
	}
}

// Dispatch verifies a reference with the gateway and applies its effect
// exactly once. An ambiguous gateway failure returns an Upstream error and
// leaves every entity untouched.
func (d *Dispatcher) Dispatch(ctx context.Context, reference string) (*Result, error) {
	txn, err := d.txns.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	verify, err := d.verifier.VerifyTransaction(ctx, reference)
	if err != nil {
		// No destructive effect on an ambiguous answer.
		return nil, err
	}

	if verify.Verified {
		return d.applySuccess(ctx, txn, verify)
	}
	return d.applyFailure(ctx, txn, verify.Reason)
}

// DispatchVerified applies an already-obtained verification result, used by
// flows that charge directly (auto-renew) instead of re-polling the gateway.
func (d *Dispatcher) DispatchVerified(ctx context.Context, reference string, verify *gateway.VerifyResult) (*Result, error) {
	txn, err := d.txns.GetByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if verify.Verified {
		return d.applySuccess(ctx, txn, verify)
	}
	return d.applyFailure(ctx, txn, verify.Reason)
}

func (d *Dispatcher) applySuccess(ctx context.Context, txn *transactions.Transaction, verify *gateway.VerifyResult) (*Result, error) {
	if _, err := d.txns.MarkStatus(ctx, txn.ID, transactions.StatusSuccess); err != nil {
		return nil, err
	}

	var (
		applied bool
		err     error
	)
	switch txn.EntityType {
	case transactions.EntityInspection:
		applied, err = d.inspections.ApplyPaymentSuccess(ctx, txn.EntityID, txn.Reference, txn.AmountKobo)
	case transactions.EntitySubscription:
		applied, err = d.subscriptions.ApplyPaymentSuccess(ctx, txn.EntityID, txn.Reference, verify.AuthorizationCode)
	case transactions.EntityDocumentVerification:
		var granted int
		granted, err = d.documents.ApplyPaymentSuccess(ctx, txn.EntityID, txn.Reference)
		applied = granted > 0
	default:
		return nil, apperr.Internal(fmt.Sprintf("transaction %s has unknown entity type %q", txn.Reference, txn.EntityType))
	}
	if err != nil {
		return nil, err
	}

	if applied {
		d.log.PaymentEvent("effect_applied", txn.Reference, true, "")
	} else {
		d.log.PaymentEvent("effect_skipped_duplicate", txn.Reference, true, "entity already processed")
	}
	return &Result{
		Reference:  txn.Reference,
		Verified:   true,
		Applied:    applied,
		EntityType: txn.EntityType,
	}, nil
}

func (d *Dispatcher) applyFailure(ctx context.Context, txn *transactions.Transaction, reason string) (*Result, error) {
	if _, err := d.txns.MarkStatus(ctx, txn.ID, transactions.StatusFailed); err != nil {
		return nil, err
	}

	var (
		applied bool
		err     error
	)
	switch txn.EntityType {
	case transactions.EntityInspection:
		applied, err = d.inspections.ApplyPaymentFailure(ctx, txn.EntityID, txn.Reference, reason)
	case transactions.EntitySubscription:
		applied, err = d.subscriptions.ApplyPaymentFailure(ctx, txn.EntityID, txn.Reference, reason)
	case transactions.EntityDocumentVerification:
		applied, err = d.documents.ApplyPaymentFailure(ctx, txn.EntityID, txn.Reference, reason)
	default:
		return nil, apperr.Internal(fmt.Sprintf("transaction %s has unknown entity type %q", txn.Reference, txn.EntityType))
	}
	if err != nil {
		return nil, err
	}

	d.log.PaymentEvent("effect_failed_payment", txn.Reference, false, reason)
	return &Result{
		Reference:  txn.Reference,
		Verified:   false,
		Applied:    applied,
		EntityType: txn.EntityType,
		Reason:     reason,
	}, nil
}
