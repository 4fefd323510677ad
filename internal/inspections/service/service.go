// Package service implements the inspection workflow controller: it
// authorizes actors, applies transitions computed by the domain resolver,
// and fans out logging and notifications after state is committed.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/activitylog"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"
	"github.com/KHABI-TEQ/Backend-sub001/platform/phone"

	"github.com/google/uuid"
)

// BookingRepository is the persistence surface the workflow needs.
type BookingRepository interface {
	Create(ctx context.Context, p repository.CreateParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.BookingDetail, error)
	ApplyTransition(ctx context.Context, id uuid.UUID, expected domain.Status, tr domain.Transition) error
	SetAgentRejected(ctx context.Context, id uuid.UUID, note string) error
	SetInspectionApproved(ctx context.Context, id uuid.UUID) error
	SetPendingTransaction(ctx context.Context, id uuid.UUID) error
	ApplyPaymentSuccess(ctx context.Context, id uuid.UUID, status domain.Status, stage domain.Stage, isNegotiating bool) (bool, error)
	ApplyPaymentFailure(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteStalePending(ctx context.Context, ttl time.Duration) (int64, error)
}

// TransactionStore creates and guards payment transactions for bookings.
type TransactionStore interface {
	Create(ctx context.Context, t transactions.Transaction) (uuid.UUID, error)
	HasOpenForEntity(ctx context.Context, entityType transactions.EntityType, entityID uuid.UUID) (bool, error)
}

// ActivityWriter appends audit entries.
type ActivityWriter interface {
	Insert(ctx context.Context, e activitylog.Entry) error
	ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]activitylog.Entry, error)
}

// PaymentInitializer is the slice of the gateway the workflow uses.
type PaymentInitializer interface {
	InitializeTransaction(ctx context.Context, p gateway.InitParams) (*gateway.InitResult, error)
}

// Service is the inspection workflow controller.
type Service struct {
	repo     BookingRepository
	txns     TransactionStore
	activity ActivityWriter
	pay      PaymentInitializer
	bus      events.Bus
	cfg      config.InspectionConfig
	log      *logger.Logger
}

// New creates the workflow controller.
func New(repo BookingRepository, txns TransactionStore, activity ActivityWriter, pay PaymentInitializer, bus events.Bus, cfg config.InspectionConfig, log *logger.Logger) *Service {
	return &Service{
		repo:     repo,
		txns:     txns,
		activity: activity,
		pay:      pay,
		bus:      bus,
		cfg:      cfg,
		log:      log,
	}
}

// SubmitParams is a buyer's new inspection request.
type SubmitParams struct {
	PropertyID        uuid.UUID
	BuyerID           uuid.UUID
	SellerID          uuid.UUID
	BuyerPhone        string
	InspectionType    domain.InspectionType
	InspectionMode    string
	InspectionDate    string
	InspectionTime    string
	NegotiationPrice  int64
	LetterOfIntention string
}

// SubmitRequest creates a booking in pending_approval and notifies the agent.
func (s *Service) SubmitRequest(ctx context.Context, p SubmitParams) (*repository.BookingDetail, error) {
	if p.InspectionType != domain.TypePrice && p.InspectionType != domain.TypeLOI {
		return nil, apperr.Validation(fmt.Sprintf("unknown inspection type %q", p.InspectionType))
	}
	if p.InspectionType == domain.TypeLOI && p.LetterOfIntention == "" {
		return nil, apperr.Validation("a letter of intention document is required for an LOI inspection")
	}

	id, err := s.repo.Create(ctx, repository.CreateParams{
		PropertyID:        p.PropertyID,
		BuyerID:           p.BuyerID,
		SellerID:          p.SellerID,
		BuyerPhone:        phone.NormalizeE164(p.BuyerPhone),
		InspectionType:    p.InspectionType,
		InspectionMode:    p.InspectionMode,
		InspectionDate:    p.InspectionDate,
		InspectionTime:    p.InspectionTime,
		NegotiationPrice:  p.NegotiationPrice,
		LetterOfIntention: p.LetterOfIntention,
	})
	if err != nil {
		return nil, err
	}

	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, events.InspectionRequested{
		BaseEvent:      events.NewBaseEvent(),
		BookingID:      detail.ID,
		PropertyID:     detail.PropertyID,
		PropertyTitle:  detail.PropertyTitle,
		InspectionType: string(detail.InspectionType),
		BuyerName:      detail.BuyerName,
		BuyerEmail:     detail.BuyerEmail,
		SellerID:       detail.SellerID,
		SellerName:     detail.SellerName,
		SellerEmail:    detail.SellerEmail,
		InspectionDate: detail.InspectionDate,
		InspectionTime: detail.InspectionTime,
	})
	return detail, nil
}

// RespondResult is the outcome of the agent's accept/reject response.
type RespondResult struct {
	Status     domain.Status
	PaymentURL string
	FeeKobo    int64
}

// ClampFee bounds a submitted inspection fee (naira) to the configured band.
func (s *Service) ClampFee(fee int64) int64 {
	if fee < s.cfg.GetInspectionFeeMin() {
		return s.cfg.GetInspectionFeeMin()
	}
	if fee > s.cfg.GetInspectionFeeMax() {
		return s.cfg.GetInspectionFeeMax()
	}
	return fee
}

// RespondToRequest is the agent's accept/reject on a brand-new request, the
// two-branch sub-machine that feeds the negotiation machine once payment
// clears.
func (s *Service) RespondToRequest(ctx context.Context, bookingID, agentID uuid.UUID, accept bool, note string, fee int64) (*RespondResult, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.SellerID != agentID {
		return nil, apperr.Forbidden("only the owning agent may respond to this request")
	}
	if detail.Status != domain.StatusPendingApproval {
		return nil, apperr.Conflict(fmt.Sprintf("booking is %s, not awaiting agent approval", detail.Status))
	}

	if !accept {
		if err := s.repo.SetAgentRejected(ctx, bookingID, note); err != nil {
			return nil, err
		}
		s.fanOutAgentResponse(ctx, detail, agentID, false, note, 0, "")
		return &RespondResult{Status: domain.StatusAgentRejected}, nil
	}

	if s.cfg.IsDealSite() {
		if err := s.repo.SetInspectionApproved(ctx, bookingID); err != nil {
			return nil, err
		}
		s.fanOutAgentResponse(ctx, detail, agentID, true, note, 0, "")
		return &RespondResult{Status: domain.StatusInspectionApproved}, nil
	}

	feeNaira := s.ClampFee(fee)
	feeKobo := feeNaira * 100

	open, err := s.txns.HasOpenForEntity(ctx, transactions.EntityInspection, bookingID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, apperr.Conflict("booking already has an open transaction")
	}

	reference := fmt.Sprintf("INSP-%s", uuid.NewString())
	init, err := s.pay.InitializeTransaction(ctx, gateway.InitParams{
		Email:      detail.BuyerEmail,
		AmountKobo: feeKobo,
		Reference:  reference,
		Metadata: map[string]any{
			"entityType": string(transactions.EntityInspection),
			"entityId":   bookingID.String(),
		},
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.txns.Create(ctx, transactions.Transaction{
		Reference:  init.Reference,
		AmountKobo: feeKobo,
		EntityType: transactions.EntityInspection,
		EntityID:   bookingID,
	}); err != nil {
		return nil, err
	}
	if err := s.repo.SetPendingTransaction(ctx, bookingID); err != nil {
		return nil, err
	}

	s.fanOutAgentResponse(ctx, detail, agentID, true, note, feeKobo, init.AuthorizationURL)
	return &RespondResult{
		Status:     domain.StatusPendingTransaction,
		PaymentURL: init.AuthorizationURL,
		FeeKobo:    feeKobo,
	}, nil
}

// ActResult is the outcome of a negotiation action: the persisted booking
// plus the side effects that were attempted after the write.
type ActResult struct {
	Booking     *repository.BookingDetail
	SideEffects []string
}

// Act applies one negotiation action. State is persisted before any side
// effect; side-effect failures are logged and never roll the state back.
func (s *Service) Act(ctx context.Context, bookingID, actorID uuid.UUID, action domain.Action, input domain.ActionInput) (*ActResult, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	actor := detail.PartyOf(actorID)
	if actor == domain.PartyNone {
		return nil, apperr.Forbidden("you are not a party to this booking")
	}
	if detail.PendingResponseFrom != actor {
		return nil, apperr.Forbidden(fmt.Sprintf("it is the %s's turn to respond", detail.PendingResponseFrom))
	}

	tr, err := domain.Resolve(action, detail.Booking, actor, input)
	if err != nil {
		return nil, err
	}

	// The conditional write re-validates the status this snapshot was read
	// with; a concurrent transition makes this fail with a Conflict.
	if err := s.repo.ApplyTransition(ctx, bookingID, detail.Status, tr); err != nil {
		return nil, err
	}

	effects := []string{"activity_log", "counterparty_email"}
	if tr.ConfirmInitiator {
		effects = append(effects, "initiator_email")
	}

	if logErr := s.activity.Insert(ctx, activitylog.Entry{
		InspectionID: detail.ID,
		PropertyID:   detail.PropertyID,
		ActorID:      actorID,
		ActorRole:    string(actor),
		Message:      tr.AuditMessage,
		Status:       string(tr.NextStatus),
		Stage:        string(tr.NextStage),
		Metadata: map[string]any{
			"action":          string(action),
			"dateTimeChanged": tr.DateTimeChanged,
		},
	}); logErr != nil {
		s.log.Error("activity log write failed", "bookingId", detail.ID, "error", logErr)
	}

	s.bus.Publish(ctx, events.NegotiationActioned{
		BaseEvent:        events.NewBaseEvent(),
		BookingID:        detail.ID,
		PropertyTitle:    detail.PropertyTitle,
		Action:           string(action),
		ActorRole:        string(actor),
		ActorID:          actorID,
		NewStatus:        string(tr.NextStatus),
		NewStage:         string(tr.NextStage),
		CounterPriceKobo: input.CounterPrice,
		DocumentURL:      input.DocumentURL,
		Reason:           input.Reason,
		InspectionDate:   pick(input.InspectionDate, detail.InspectionDate),
		InspectionTime:   pick(input.InspectionTime, detail.InspectionTime),
		DateTimeChanged:  tr.DateTimeChanged,
		BuyerID:          detail.BuyerID,
		BuyerName:        detail.BuyerName,
		BuyerEmail:       detail.BuyerEmail,
		SellerID:         detail.SellerID,
		SellerName:       detail.SellerName,
		SellerEmail:      detail.SellerEmail,
	})

	updated, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return &ActResult{Booking: updated, SideEffects: effects}, nil
}

// GetBooking returns a booking to one of its parties.
func (s *Service) GetBooking(ctx context.Context, bookingID, requesterID uuid.UUID) (*repository.BookingDetail, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.PartyOf(requesterID) == domain.PartyNone {
		return nil, apperr.Forbidden("you are not a party to this booking")
	}
	return detail, nil
}

// ListActivity returns the audit trail for a booking.
func (s *Service) ListActivity(ctx context.Context, bookingID, requesterID uuid.UUID) ([]activitylog.Entry, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if detail.PartyOf(requesterID) == domain.PartyNone {
		return nil, apperr.Forbidden("you are not a party to this booking")
	}
	return s.activity.ListByInspection(ctx, bookingID)
}

// ApplyPaymentSuccess is the inspection branch of the payment-effect
// dispatcher. It moves a booking out of pending_transaction exactly once;
// a second delivery of the same verification returns applied=false.
func (s *Service) ApplyPaymentSuccess(ctx context.Context, bookingID uuid.UUID, reference string, amountKobo int64) (bool, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}

	status, stage, negotiating := paymentSuccessTarget(detail.Booking)
	applied, err := s.repo.ApplyPaymentSuccess(ctx, bookingID, status, stage, negotiating)
	if err != nil || !applied {
		return applied, err
	}

	if logErr := s.activity.Insert(ctx, activitylog.Entry{
		InspectionID: detail.ID,
		PropertyID:   detail.PropertyID,
		ActorID:      detail.BuyerID,
		ActorRole:    string(domain.PartyBuyer),
		Message:      fmt.Sprintf("inspection fee paid (%s)", reference),
		Status:       string(status),
		Stage:        string(stage),
		Metadata:     map[string]any{"reference": reference, "amountKobo": amountKobo},
	}); logErr != nil {
		s.log.Error("activity log write failed", "bookingId", detail.ID, "error", logErr)
	}

	s.bus.Publish(ctx, events.InspectionPaymentSucceeded{
		BaseEvent:      events.NewBaseEvent(),
		BookingID:      detail.ID,
		PropertyTitle:  detail.PropertyTitle,
		Reference:      reference,
		NewStatus:      string(status),
		NewStage:       string(stage),
		AmountKobo:     amountKobo,
		BuyerID:        detail.BuyerID,
		BuyerName:      detail.BuyerName,
		BuyerEmail:     detail.BuyerEmail,
		SellerID:       detail.SellerID,
		SellerName:     detail.SellerName,
		SellerEmail:    detail.SellerEmail,
		InspectionDate: detail.InspectionDate,
		InspectionTime: detail.InspectionTime,
	})
	return true, nil
}

// ApplyPaymentFailure is the inspection branch for an explicit gateway
// failure: terminal transaction_failed, buyer notified, seller not.
func (s *Service) ApplyPaymentFailure(ctx context.Context, bookingID uuid.UUID, reference, reason string) (bool, error) {
	detail, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return false, err
	}

	applied, err := s.repo.ApplyPaymentFailure(ctx, bookingID)
	if err != nil || !applied {
		return applied, err
	}

	if logErr := s.activity.Insert(ctx, activitylog.Entry{
		InspectionID: detail.ID,
		PropertyID:   detail.PropertyID,
		ActorID:      detail.BuyerID,
		ActorRole:    string(domain.PartyBuyer),
		Message:      fmt.Sprintf("inspection fee payment failed (%s)", reference),
		Status:       string(domain.StatusTransactionFailed),
		Stage:        string(domain.StageCancelled),
		Metadata:     map[string]any{"reference": reference, "reason": reason},
	}); logErr != nil {
		s.log.Error("activity log write failed", "bookingId", detail.ID, "error", logErr)
	}

	s.bus.Publish(ctx, events.InspectionPaymentFailed{
		BaseEvent:     events.NewBaseEvent(),
		BookingID:     detail.ID,
		PropertyTitle: detail.PropertyTitle,
		Reference:     reference,
		Reason:        reason,
		BuyerID:       detail.BuyerID,
		BuyerName:     detail.BuyerName,
		BuyerEmail:    detail.BuyerEmail,
	})
	return true, nil
}

// SweepStalePending removes bookings stuck awaiting payment past the TTL.
func (s *Service) SweepStalePending(ctx context.Context) (int64, error) {
	return s.repo.DeleteStalePending(ctx, s.cfg.GetStalePendingTTL())
}

// paymentSuccessTarget decides where a paid booking lands: straight into
// active negotiation when nothing is on the table yet, or countered when a
// price or LOI document already is.
func paymentSuccessTarget(b domain.Booking) (domain.Status, domain.Stage, bool) {
	switch {
	case b.NegotiationPrice > 0:
		return domain.StatusNegotiationCountered, domain.StageNegotiation, true
	case b.LetterOfIntention != "":
		return domain.StatusNegotiationCountered, domain.StageLOI, true
	default:
		return domain.StatusActiveNegotiation, domain.StageInspection, false
	}
}

func (s *Service) fanOutAgentResponse(ctx context.Context, detail *repository.BookingDetail, agentID uuid.UUID, approved bool, note string, feeKobo int64, paymentLink string) {
	message := "agent rejected the inspection request"
	status, stage := domain.StatusAgentRejected, domain.StageCancelled
	if approved {
		message = "agent accepted the inspection request"
		status, stage = domain.StatusInspectionApproved, detail.Stage
		if paymentLink != "" {
			message = "agent accepted the inspection request, awaiting payment"
			status = domain.StatusPendingTransaction
		}
	}

	if err := s.activity.Insert(ctx, activitylog.Entry{
		InspectionID: detail.ID,
		PropertyID:   detail.PropertyID,
		ActorID:      agentID,
		ActorRole:    string(domain.PartySeller),
		Message:      message,
		Status:       string(status),
		Stage:        string(stage),
		Metadata:     map[string]any{"note": note, "feeKobo": feeKobo},
	}); err != nil {
		s.log.Error("activity log write failed", "bookingId", detail.ID, "error", err)
	}

	s.bus.Publish(ctx, events.InspectionAgentResponded{
		BaseEvent:      events.NewBaseEvent(),
		BookingID:      detail.ID,
		PropertyTitle:  detail.PropertyTitle,
		Approved:       approved,
		Note:           note,
		FeeKobo:        feeKobo,
		PaymentLink:    paymentLink,
		BuyerID:        detail.BuyerID,
		BuyerName:      detail.BuyerName,
		BuyerEmail:     detail.BuyerEmail,
		InspectionDate: detail.InspectionDate,
		InspectionTime: detail.InspectionTime,
	})
}

func pick(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}
