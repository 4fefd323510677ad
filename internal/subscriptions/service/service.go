// Package service implements the subscription lifecycle: purchase, payment
// activation, renewal, and expiry.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	"github.com/KHABI-TEQ/Backend-sub001/internal/payments/gateway"
	paysvc "github.com/KHABI-TEQ/Backend-sub001/internal/payments/service"
	"github.com/KHABI-TEQ/Backend-sub001/internal/subscriptions/repository"
	"github.com/KHABI-TEQ/Backend-sub001/internal/transactions"
	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// renewRetryInterval is how long a renewal claim stays exclusive before the
// sweep may try the subscription again.
const renewRetryInterval = 6 * time.Hour

// maxParallelRenewals bounds concurrent gateway charges during one sweep.
const maxParallelRenewals = 4

// SubscriptionRepository is the persistence the service needs.
type SubscriptionRepository interface {
	GetPlan(ctx context.Context, planID uuid.UUID) (*repository.Plan, error)
	ListPlans(ctx context.Context) ([]repository.Plan, error)
	CreatePending(ctx context.Context, userID, planID uuid.UUID, autoRenew bool) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*repository.Detail, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]repository.Detail, error)
	ActivatePending(ctx context.Context, id uuid.UUID, endDate time.Time, authorizationCode, publicListingURL string) (bool, error)
	CancelPending(ctx context.Context, id uuid.UUID) (bool, error)
	ClaimRenewal(ctx context.Context, id uuid.UUID, reference string, retryAfter time.Time) (bool, error)
	RenewActive(ctx context.Context, id uuid.UUID, reference string, newEndDate time.Time, authorizationCode string) (bool, error)
	ClearRenewalClaim(ctx context.Context, id uuid.UUID, reference string) (bool, error)
	ListExpiringSoon(ctx context.Context, within time.Duration) ([]repository.Detail, error)
	MarkWarned(ctx context.Context, id uuid.UUID) (bool, error)
	ListRenewalDue(ctx context.Context, retryAfter time.Time) ([]repository.Detail, error)
	ListExpireDue(ctx context.Context, graceUntil time.Time) ([]repository.Detail, error)
	Expire(ctx context.Context, id uuid.UUID) (bool, error)
	HasOtherActive(ctx context.Context, userID, excludeID uuid.UUID) (bool, error)
}

// TransactionStore is the transaction persistence the service needs.
type TransactionStore interface {
	Create(ctx context.Context, t transactions.Transaction) (uuid.UUID, error)
	HasOpenForEntity(ctx context.Context, entityType transactions.EntityType, entityID uuid.UUID) (bool, error)
}

// PaymentGateway is the slice of the gateway the service uses.
type PaymentGateway interface {
	InitializeTransaction(ctx context.Context, params gateway.InitParams) (*gateway.InitResult, error)
	ChargeAuthorization(ctx context.Context, params gateway.ChargeParams) (*gateway.VerifyResult, error)
}

// EffectDispatcher routes an already-verified charge through the shared
// payment effect branching.
type EffectDispatcher interface {
	DispatchVerified(ctx context.Context, reference string, verify *gateway.VerifyResult) (*paysvc.Result, error)
}

// Service implements the subscription lifecycle.
type Service struct {
	repo       SubscriptionRepository
	txns       TransactionStore
	pay        PaymentGateway
	dispatcher EffectDispatcher
	bus        events.Bus
	cfg        config.SubscriptionConfig
	log        *logger.Logger
}

// New creates the subscriptions service. The effect dispatcher is injected
// later via SetDispatcher because it is constructed from this service.
func New(repo SubscriptionRepository, txns TransactionStore, pay PaymentGateway, bus events.Bus, cfg config.SubscriptionConfig, log *logger.Logger) *Service {
	return &Service{repo: repo, txns: txns, pay: pay, bus: bus, cfg: cfg, log: log}
}

// SetDispatcher injects the payment effect dispatcher for auto-renew charges.
func (s *Service) SetDispatcher(d EffectDispatcher) {
	s.dispatcher = d
}

// SubscribeResult is the outcome of starting a subscription purchase.
type SubscribeResult struct {
	SubscriptionID uuid.UUID
	Reference      string
	PaymentURL     string
	AmountKobo     int64
}

// Subscribe creates a pending subscription and initializes its payment.
func (s *Service) Subscribe(ctx context.Context, userID, planID uuid.UUID, email string, autoRenew bool) (*SubscribeResult, error) {
	plan, err := s.repo.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, apperr.Gone("subscription plan is no longer available")
	}

	subID, err := s.repo.CreatePending(ctx, userID, planID, autoRenew)
	if err != nil {
		return nil, err
	}

	reference := "SUB-" + uuid.NewString()
	init, err := s.pay.InitializeTransaction(ctx, gateway.InitParams{
		Email:      email,
		AmountKobo: plan.PriceKobo,
		Reference:  reference,
		Metadata: map[string]any{
			"entityType": string(transactions.EntitySubscription),
			"entityId":   subID.String(),
			"planName":   plan.Name,
		},
	})
	if err != nil {
		// The pending row has no transaction yet; close it so the user can
		// simply retry.
		if _, cancelErr := s.repo.CancelPending(ctx, subID); cancelErr != nil {
			s.log.Error("failed to cancel pending subscription after init failure", "subscriptionId", subID, "error", cancelErr)
		}
		return nil, err
	}

	if _, err := s.txns.Create(ctx, transactions.Transaction{
		Reference:  reference,
		AmountKobo: plan.PriceKobo,
		EntityType: transactions.EntitySubscription,
		EntityID:   subID,
	}); err != nil {
		return nil, err
	}

	return &SubscribeResult{
		SubscriptionID: subID,
		Reference:      reference,
		PaymentURL:     init.AuthorizationURL,
		AmountKobo:     plan.PriceKobo,
	}, nil
}

// GetSubscription returns one subscription, visible only to its owner.
func (s *Service) GetSubscription(ctx context.Context, id, requesterID uuid.UUID) (*repository.Detail, error) {
	detail, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.UserID != requesterID {
		return nil, apperr.Forbidden("you are not the owner of this subscription")
	}
	return detail, nil
}

// ListMine returns the requester's subscriptions.
func (s *Service) ListMine(ctx context.Context, userID uuid.UUID) ([]repository.Detail, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListPlans returns the purchasable plans.
func (s *Service) ListPlans(ctx context.Context) ([]repository.Plan, error) {
	return s.repo.ListPlans(ctx)
}

// ApplyPaymentSuccess activates a pending subscription or extends an active
// one after a renewal charge. Applied=false means the payment was already
// consumed.
func (s *Service) ApplyPaymentSuccess(ctx context.Context, subscriptionID uuid.UUID, reference, authorizationCode string) (bool, error) {
	detail, err := s.repo.GetByID(ctx, subscriptionID)
	if err != nil {
		return false, err
	}
	duration := time.Duration(detail.DurationInDays) * 24 * time.Hour

	switch {
	case detail.Status == repository.StatusPending:
		endDate := time.Now().Add(duration)
		applied, err := s.repo.ActivatePending(ctx, subscriptionID, endDate, authorizationCode, s.publicListingURL(detail.UserID))
		if err != nil || !applied {
			return applied, err
		}
		s.log.PaymentEvent("subscription_activated", reference, true, "")
		s.publishActivated(ctx, detail, endDate, false)
		return true, nil

	case detail.Status == repository.StatusActive && detail.LastRenewalReference == reference:
		base := time.Now()
		if detail.EndDate != nil && detail.EndDate.After(base) {
			base = *detail.EndDate
		}
		endDate := base.Add(duration)
		applied, err := s.repo.RenewActive(ctx, subscriptionID, reference, endDate, authorizationCode)
		if err != nil || !applied {
			return applied, err
		}
		s.log.PaymentEvent("subscription_renewed", reference, true, "")
		s.publishActivated(ctx, detail, endDate, true)
		return true, nil
	}

	return false, nil
}

// ApplyPaymentFailure cancels a pending subscription or releases a failed
// renewal claim.
func (s *Service) ApplyPaymentFailure(ctx context.Context, subscriptionID uuid.UUID, reference, reason string) (bool, error) {
	detail, err := s.repo.GetByID(ctx, subscriptionID)
	if err != nil {
		return false, err
	}

	switch {
	case detail.Status == repository.StatusPending:
		applied, err := s.repo.CancelPending(ctx, subscriptionID)
		if err != nil || !applied {
			return applied, err
		}
		s.log.PaymentEvent("subscription_payment_failed", reference, false, reason)
		s.bus.Publish(ctx, events.SubscriptionActivationFailed{
			BaseEvent:      events.NewBaseEvent(),
			SubscriptionID: detail.ID,
			UserID:         detail.UserID,
			UserName:       detail.UserName,
			UserEmail:      detail.UserEmail,
			PlanName:       detail.PlanName,
			Reason:         reason,
			RetryLink:      s.retryLink(),
		})
		return true, nil

	case detail.Status == repository.StatusActive && detail.LastRenewalReference == reference:
		applied, err := s.repo.ClearRenewalClaim(ctx, subscriptionID, reference)
		if err != nil || !applied {
			return applied, err
		}
		s.log.PaymentEvent("subscription_autorenew_failed", reference, false, reason)
		s.bus.Publish(ctx, events.SubscriptionAutoRenewFailed{
			BaseEvent:      events.NewBaseEvent(),
			SubscriptionID: detail.ID,
			UserID:         detail.UserID,
			UserName:       detail.UserName,
			UserEmail:      detail.UserEmail,
			PlanName:       detail.PlanName,
			Reason:         reason,
			RetryLink:      s.retryLink(),
		})
		return true, nil
	}

	return false, nil
}

// SweepStats summarizes one expiry sweep cycle.
type SweepStats struct {
	Warned  int
	Renewed int
	Expired int
}

// SweepExpiry runs the periodic subscription maintenance: expiry warnings,
// auto-renew charges, then expirations. Each phase is idempotent, so a crash
// mid-sweep is repaired by the next cycle.
func (s *Service) SweepExpiry(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	warned, err := s.sendExpiryWarnings(ctx)
	if err != nil {
		return stats, err
	}
	stats.Warned = warned

	// The expire-due list is snapshotted before renewals run: a subscription
	// whose renewal is declined this cycle leaves the renewal pool but only
	// expires on the next sweep, so the failure notice and the expiry notice
	// never go out together.
	expireDue, err := s.repo.ListExpireDue(ctx, time.Now())
	if err != nil {
		return stats, err
	}

	renewed, err := s.runAutoRenewals(ctx)
	if err != nil {
		return stats, err
	}
	stats.Renewed = renewed

	stats.Expired = s.expireListed(ctx, expireDue)
	return stats, nil
}

func (s *Service) sendExpiryWarnings(ctx context.Context) (int, error) {
	window := time.Duration(s.cfg.GetExpiryWarningDays()) * 24 * time.Hour
	due, err := s.repo.ListExpiringSoon(ctx, window)
	if err != nil {
		return 0, err
	}

	warned := 0
	for _, d := range due {
		applied, err := s.repo.MarkWarned(ctx, d.ID)
		if err != nil {
			s.log.Error("failed to mark expiry warning", "subscriptionId", d.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}
		daysLeft := 0
		if d.EndDate != nil {
			daysLeft = int(time.Until(*d.EndDate).Hours() / 24)
		}
		s.bus.Publish(ctx, events.SubscriptionExpiryWarningDue{
			BaseEvent:      events.NewBaseEvent(),
			SubscriptionID: d.ID,
			UserID:         d.UserID,
			UserName:       d.UserName,
			UserEmail:      d.UserEmail,
			PlanName:       d.PlanName,
			EndDate:        formatDate(d.EndDate),
			DaysLeft:       daysLeft,
		})
		warned++
	}
	return warned, nil
}

func (s *Service) runAutoRenewals(ctx context.Context) (int, error) {
	if s.dispatcher == nil {
		return 0, nil
	}

	retryAfter := time.Now().Add(-renewRetryInterval)
	due, err := s.repo.ListRenewalDue(ctx, retryAfter)
	if err != nil {
		return 0, err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(maxParallelRenewals)
	results := make(chan bool, len(due))

	for _, d := range due {
		detail := d
		group.Go(func() error {
			ok, err := s.renewOne(groupCtx, detail, retryAfter)
			if err != nil {
				// One stuck gateway must not block the other renewals.
				s.log.Error("auto-renew attempt failed", "subscriptionId", detail.ID, "error", err)
				return nil
			}
			if ok {
				results <- true
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return 0, err
	}
	close(results)
	renewed := 0
	for range results {
		renewed++
	}
	return renewed, nil
}

func (s *Service) renewOne(ctx context.Context, d repository.Detail, retryAfter time.Time) (bool, error) {
	reference := "SUBRN-" + uuid.NewString()
	claimed, err := s.repo.ClaimRenewal(ctx, d.ID, reference, retryAfter)
	if err != nil || !claimed {
		return false, err
	}

	if _, err := s.txns.Create(ctx, transactions.Transaction{
		Reference:  reference,
		AmountKobo: d.PlanPriceKobo,
		EntityType: transactions.EntitySubscription,
		EntityID:   d.ID,
	}); err != nil {
		return false, err
	}

	verify, err := s.pay.ChargeAuthorization(ctx, gateway.ChargeParams{
		Email:             d.UserEmail,
		AmountKobo:        d.PlanPriceKobo,
		AuthorizationCode: d.AuthorizationCode,
		Reference:         reference,
	})
	if err != nil {
		// Ambiguous gateway failure: the claim keeps the subscription out of
		// the sweep until the retry window passes. Nothing destructive here.
		return false, err
	}

	if _, err := s.dispatcher.DispatchVerified(ctx, reference, verify); err != nil {
		return false, err
	}
	return verify.Verified, nil
}

func (s *Service) expireListed(ctx context.Context, due []repository.Detail) int {
	expired := 0
	for _, d := range due {
		applied, err := s.repo.Expire(ctx, d.ID)
		if err != nil {
			s.log.Error("failed to expire subscription", "subscriptionId", d.ID, "error", err)
			continue
		}
		if !applied {
			continue
		}

		// Visibility survives when the user still holds another active
		// subscription.
		otherActive, err := s.repo.HasOtherActive(ctx, d.UserID, d.ID)
		if err != nil {
			s.log.Error("failed grace check for expired subscription", "subscriptionId", d.ID, "error", err)
			otherActive = false
		}
		s.bus.Publish(ctx, events.SubscriptionExpired{
			BaseEvent:         events.NewBaseEvent(),
			SubscriptionID:    d.ID,
			UserID:            d.UserID,
			UserName:          d.UserName,
			UserEmail:         d.UserEmail,
			PlanName:          d.PlanName,
			VisibilityRevoked: !otherActive,
		})
		expired++
	}
	return expired
}

func (s *Service) publishActivated(ctx context.Context, d *repository.Detail, endDate time.Time, renewal bool) {
	s.bus.Publish(ctx, events.SubscriptionActivated{
		BaseEvent:        events.NewBaseEvent(),
		SubscriptionID:   d.ID,
		UserID:           d.UserID,
		UserName:         d.UserName,
		UserEmail:        d.UserEmail,
		PlanName:         d.PlanName,
		EndDate:          endDate.Format("2006-01-02"),
		PublicListingURL: s.publicListingURL(d.UserID),
		Renewal:          renewal,
	})
}

// retryLink is the checkout page the failure emails point the user back to.
func (s *Service) retryLink() string {
	base := s.cfg.GetAppBaseURL()
	if base == "" {
		return ""
	}
	return base + "/subscriptions/plans"
}

func (s *Service) publicListingURL(userID uuid.UUID) string {
	base := s.cfg.GetPublicListingBaseURL()
	if base == "" {
		return ""
	}
	return fmt.Sprintf("%s/agents/%s", base, userID)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
