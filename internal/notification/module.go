// Package notification delivers emails and in-app notifications in response
// to domain events. Domain modules publish what happened; this module decides
// who hears about it and how.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KHABI-TEQ/Backend-sub001/internal/email"
	"github.com/KHABI-TEQ/Backend-sub001/internal/events"
	apphttp "github.com/KHABI-TEQ/Backend-sub001/internal/http"
	"github.com/KHABI-TEQ/Backend-sub001/internal/inspections/domain"
	notifhandler "github.com/KHABI-TEQ/Backend-sub001/internal/notification/handler"
	"github.com/KHABI-TEQ/Backend-sub001/internal/notification/inapp"
	"github.com/KHABI-TEQ/Backend-sub001/internal/notification/outbox"
	"github.com/KHABI-TEQ/Backend-sub001/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	qrcode "github.com/skip2/go-qrcode"
)

// retryDelay is how long a failed delivery waits in the outbox before the
// next attempt.
const retryDelay = 2 * time.Minute

// Module is the notification bounded context module implementing http.Module.
type Module struct {
	sender  email.Sender
	inApp   *inapp.Service
	outbox  *outbox.Repository
	handler *notifhandler.Handler
	log     *logger.Logger
}

// NewModule creates and initializes the notification module.
func NewModule(pool *pgxpool.Pool, sender email.Sender, log *logger.Logger) *Module {
	inAppSvc := inapp.NewService(inapp.NewRepository(pool), log)
	return &Module{
		sender:  sender,
		inApp:   inAppSvc,
		outbox:  outbox.New(pool),
		handler: notifhandler.New(inAppSvc),
		log:     log,
	}
}

// Outbox exposes the outbox repository for the scheduler's dispatch loop.
func (m *Module) Outbox() *outbox.Repository {
	return m.outbox
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes mounts the in-app notification routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Protected.Group("/notifications")
	group.GET("", m.handler.HandleList)
	group.GET("/unread-count", m.handler.HandleUnreadCount)
	group.POST("/read-all", m.handler.HandleMarkAllRead)
	group.POST("/:notificationId/read", m.handler.HandleMarkRead)
	group.DELETE("/:notificationId", m.handler.HandleDelete)
}

// RegisterHandlers subscribes the module to every domain event it delivers.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	for _, name := range []string{
		events.InspectionRequested{}.EventName(),
		events.InspectionAgentResponded{}.EventName(),
		events.NegotiationActioned{}.EventName(),
		events.InspectionPaymentSucceeded{}.EventName(),
		events.InspectionPaymentFailed{}.EventName(),
		events.SubscriptionActivated{}.EventName(),
		events.SubscriptionActivationFailed{}.EventName(),
		events.SubscriptionExpiryWarningDue{}.EventName(),
		events.SubscriptionExpired{}.EventName(),
		events.SubscriptionAutoRenewFailed{}.EventName(),
		events.DocumentVerificationPaid{}.EventName(),
		events.DocumentVerificationPaymentFailed{}.EventName(),
		events.NotificationOutboxDue{}.EventName(),
	} {
		bus.Subscribe(name, m)
	}

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate delivery. Delivery failures land
// in the outbox for a later retry; they never propagate to the publisher.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	// Outbox-due events replay a stored record; the record's own attempt
	// accounting governs retries, so they bypass the enqueue-on-failure path.
	if due, ok := event.(events.NotificationOutboxDue); ok {
		if err := m.ProcessOutboxRecord(ctx, due.OutboxID); err != nil {
			m.log.Error("outbox record processing failed", "outboxId", due.OutboxID, "error", err)
		}
		return nil
	}

	if err := m.deliver(ctx, event); err != nil {
		m.log.Error("notification delivery failed, queued for retry",
			"event", event.EventName(), "error", err)
		m.enqueueRetry(ctx, event)
	}
	return nil
}

func (m *Module) deliver(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.InspectionRequested:
		return m.handleInspectionRequested(ctx, e)
	case events.InspectionAgentResponded:
		return m.handleInspectionAgentResponded(ctx, e)
	case events.NegotiationActioned:
		return m.handleNegotiationActioned(ctx, e)
	case events.InspectionPaymentSucceeded:
		return m.handleInspectionPaymentSucceeded(ctx, e)
	case events.InspectionPaymentFailed:
		return m.handleInspectionPaymentFailed(ctx, e)
	case events.SubscriptionActivated:
		return m.handleSubscriptionActivated(ctx, e)
	case events.SubscriptionActivationFailed:
		return m.handleSubscriptionActivationFailed(ctx, e)
	case events.SubscriptionExpiryWarningDue:
		return m.handleSubscriptionExpiryWarning(ctx, e)
	case events.SubscriptionExpired:
		return m.handleSubscriptionExpired(ctx, e)
	case events.SubscriptionAutoRenewFailed:
		return m.handleSubscriptionAutoRenewFailed(ctx, e)
	case events.DocumentVerificationPaid:
		return m.handleDocumentVerificationPaid(ctx, e)
	case events.DocumentVerificationPaymentFailed:
		return m.handleDocumentVerificationPaymentFailed(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// ---- Inspection events ----

func (m *Module) handleInspectionRequested(ctx context.Context, e events.InspectionRequested) error {
	m.notifyUser(ctx, e.SellerID, e.BookingID, "inspection",
		"New inspection request",
		fmt.Sprintf("%s requested an inspection of %s on %s at %s.", e.BuyerName, e.PropertyTitle, e.InspectionDate, e.InspectionTime))

	return m.sender.SendInspectionRequestedEmail(ctx, e.SellerEmail, e.SellerName, e.BuyerName, e.PropertyTitle, e.InspectionDate, e.InspectionTime)
}

func (m *Module) handleInspectionAgentResponded(ctx context.Context, e events.InspectionAgentResponded) error {
	if !e.Approved {
		m.notifyUser(ctx, e.BuyerID, e.BookingID, "inspection",
			"Inspection request declined",
			fmt.Sprintf("The agent declined your inspection request for %s.", e.PropertyTitle))
		return m.sender.SendInspectionRejectedEmail(ctx, e.BuyerEmail, e.BuyerName, e.PropertyTitle, e.Note)
	}

	if e.PaymentLink == "" {
		m.notifyUser(ctx, e.BuyerID, e.BookingID, "inspection",
			"Inspection approved",
			fmt.Sprintf("Your inspection of %s is confirmed for %s at %s.", e.PropertyTitle, e.InspectionDate, e.InspectionTime))
		return m.sender.SendInspectionApprovedEmail(ctx, e.BuyerEmail, e.BuyerName, e.PropertyTitle, e.InspectionDate, e.InspectionTime)
	}

	m.notifyUser(ctx, e.BuyerID, e.BookingID, "inspection",
		"Inspection fee due",
		fmt.Sprintf("Complete the %s fee to confirm your inspection of %s.", domain.FormatNaira(e.FeeKobo), e.PropertyTitle))

	// A QR code for the checkout page makes the link usable from a printed
	// or forwarded email.
	var attachments []email.Attachment
	if png, err := qrcode.Encode(e.PaymentLink, qrcode.Medium, 256); err == nil {
		attachments = append(attachments, email.Attachment{
			Content:  png,
			FileName: "payment-link-qr.png",
			MIMEType: "image/png",
		})
	} else {
		m.log.Warn("failed to encode payment link QR code", "error", err)
	}

	return m.sender.SendPaymentLinkEmail(ctx, e.BuyerEmail, e.BuyerName, e.PropertyTitle, e.FeeKobo, e.PaymentLink, attachments...)
}

func (m *Module) handleNegotiationActioned(ctx context.Context, e events.NegotiationActioned) error {
	recipientName, recipientEmail := e.BuyerName, e.BuyerEmail
	recipientID := e.BuyerID
	actorName := e.SellerName
	if e.ActorRole == string(domain.PartyBuyer) {
		recipientName, recipientEmail = e.SellerName, e.SellerEmail
		recipientID = e.SellerID
		actorName = e.BuyerName
	}

	summary, detail := negotiationSummary(e, actorName)

	m.notifyUser(ctx, recipientID, e.BookingID, "negotiation", summary, detail)

	if err := m.sender.SendNegotiationActionEmail(ctx, recipientEmail, recipientName, actorName, e.PropertyTitle,
		summary, detail, e.DateTimeChanged, e.InspectionDate, e.InspectionTime); err != nil {
		return err
	}

	// Terminal actions also confirm back to the initiator.
	if e.Action == string(domain.ActionAccept) || e.Action == string(domain.ActionReject) {
		initiatorName, initiatorEmail := e.BuyerName, e.BuyerEmail
		if e.ActorRole == string(domain.PartySeller) {
			initiatorName, initiatorEmail = e.SellerName, e.SellerEmail
		}
		return m.sender.SendNegotiationConfirmationEmail(ctx, initiatorEmail, initiatorName, e.PropertyTitle, summary)
	}
	return nil
}

func negotiationSummary(e events.NegotiationActioned, actorName string) (string, string) {
	switch e.Action {
	case string(domain.ActionAccept):
		return "Offer accepted",
			fmt.Sprintf("%s accepted the current terms for %s.", actorName, e.PropertyTitle)
	case string(domain.ActionReject):
		return "Offer rejected",
			fmt.Sprintf("%s rejected the current terms for %s. The negotiation is closed.", actorName, e.PropertyTitle)
	case string(domain.ActionCounter):
		if e.CounterPriceKobo > 0 {
			return "New counter offer",
				fmt.Sprintf("%s countered with %s for %s.", actorName, domain.FormatNaira(e.CounterPriceKobo), e.PropertyTitle)
		}
		return "Updated letter of intention",
			fmt.Sprintf("%s submitted a revised letter of intention for %s.", actorName, e.PropertyTitle)
	case string(domain.ActionRequestChanges):
		return "Changes requested",
			fmt.Sprintf("%s requested changes to the letter of intention for %s: %s", actorName, e.PropertyTitle, e.Reason)
	default:
		return "Negotiation update",
			fmt.Sprintf("%s updated the negotiation for %s.", actorName, e.PropertyTitle)
	}
}

func (m *Module) handleInspectionPaymentSucceeded(ctx context.Context, e events.InspectionPaymentSucceeded) error {
	m.notifyUser(ctx, e.BuyerID, e.BookingID, "payment",
		"Payment confirmed",
		fmt.Sprintf("Your inspection fee for %s is confirmed.", e.PropertyTitle))
	m.notifyUser(ctx, e.SellerID, e.BookingID, "payment",
		"Inspection fee paid",
		fmt.Sprintf("%s paid the inspection fee for %s.", e.BuyerName, e.PropertyTitle))

	if err := m.sender.SendInspectionPaymentConfirmedEmail(ctx, e.BuyerEmail, e.BuyerName, e.PropertyTitle, e.InspectionDate, e.InspectionTime); err != nil {
		return err
	}
	return m.sender.SendInspectionPaymentConfirmedEmail(ctx, e.SellerEmail, e.SellerName, e.PropertyTitle, e.InspectionDate, e.InspectionTime)
}

func (m *Module) handleInspectionPaymentFailed(ctx context.Context, e events.InspectionPaymentFailed) error {
	m.notifyUser(ctx, e.BuyerID, e.BookingID, "payment",
		"Payment failed",
		fmt.Sprintf("Your inspection fee payment for %s did not go through.", e.PropertyTitle))
	return m.sender.SendInspectionPaymentFailedEmail(ctx, e.BuyerEmail, e.BuyerName, e.PropertyTitle, e.Reason)
}

// ---- Subscription events ----

func (m *Module) handleSubscriptionActivated(ctx context.Context, e events.SubscriptionActivated) error {
	title := "Subscription active"
	if e.Renewal {
		title = "Subscription renewed"
	}
	m.notifyUser(ctx, e.UserID, e.SubscriptionID, "subscription", title,
		fmt.Sprintf("Your %s plan is active until %s.", e.PlanName, e.EndDate))
	return m.sender.SendSubscriptionActiveEmail(ctx, e.UserEmail, e.UserName, e.PlanName, e.EndDate, e.PublicListingURL, e.Renewal)
}

func (m *Module) handleSubscriptionActivationFailed(ctx context.Context, e events.SubscriptionActivationFailed) error {
	m.notifyUser(ctx, e.UserID, e.SubscriptionID, "subscription",
		"Subscription payment failed",
		fmt.Sprintf("The payment for your %s plan did not go through.", e.PlanName))
	return m.sender.SendSubscriptionPaymentFailedEmail(ctx, e.UserEmail, e.UserName, e.PlanName, e.Reason, e.RetryLink)
}

func (m *Module) handleSubscriptionExpiryWarning(ctx context.Context, e events.SubscriptionExpiryWarningDue) error {
	m.notifyUser(ctx, e.UserID, e.SubscriptionID, "subscription",
		"Subscription expiring soon",
		fmt.Sprintf("Your %s plan expires on %s.", e.PlanName, e.EndDate))
	return m.sender.SendSubscriptionExpiryWarningEmail(ctx, e.UserEmail, e.UserName, e.PlanName, e.EndDate, e.DaysLeft)
}

func (m *Module) handleSubscriptionExpired(ctx context.Context, e events.SubscriptionExpired) error {
	content := fmt.Sprintf("Your %s plan has expired.", e.PlanName)
	if e.VisibilityRevoked {
		content += " Your public listings are no longer visible."
	}
	m.notifyUser(ctx, e.UserID, e.SubscriptionID, "subscription", "Subscription expired", content)
	return m.sender.SendSubscriptionExpiredEmail(ctx, e.UserEmail, e.UserName, e.PlanName)
}

func (m *Module) handleSubscriptionAutoRenewFailed(ctx context.Context, e events.SubscriptionAutoRenewFailed) error {
	m.notifyUser(ctx, e.UserID, e.SubscriptionID, "subscription",
		"Auto-renewal failed",
		fmt.Sprintf("We could not renew your %s plan: %s", e.PlanName, e.Reason))
	return m.sender.SendSubscriptionPaymentFailedEmail(ctx, e.UserEmail, e.UserName, e.PlanName, e.Reason, e.RetryLink)
}

// ---- Document verification events ----

func (m *Module) handleDocumentVerificationPaid(ctx context.Context, e events.DocumentVerificationPaid) error {
	if err := m.sender.SendDocumentAccessCodeEmail(ctx, e.SubmitterEmail, e.SubmitterName, e.DocumentType, e.AccessCode); err != nil {
		return err
	}
	if e.VerifierEmail == "" {
		m.log.Warn("no verifier mailbox for document type", "documentType", e.DocumentType)
		return nil
	}
	return m.sender.SendVerifierDocumentEmail(ctx, e.VerifierEmail, e.DocumentType, e.DocumentURL, e.AccessCode)
}

func (m *Module) handleDocumentVerificationPaymentFailed(ctx context.Context, e events.DocumentVerificationPaymentFailed) error {
	return m.sender.SendDocumentPaymentFailedEmail(ctx, e.SubmitterEmail, e.SubmitterName, e.Reason)
}

// ---- Outbox retry path ----

// enqueueRetry stores the whole event so the outbox dispatcher can replay it.
func (m *Module) enqueueRetry(ctx context.Context, event events.Event) {
	_, err := m.outbox.Insert(ctx, outbox.InsertParams{
		Kind:    event.EventName(),
		Payload: event,
		RunAt:   time.Now().Add(retryDelay),
	})
	if err != nil {
		m.log.Error("failed to enqueue notification retry", "event", event.EventName(), "error", err)
	}
}

// ProcessOutbox claims due outbox records and replays their events. Used
// when no task queue is configured and the outbox is drained in-process.
// Returns how many records were delivered.
func (m *Module) ProcessOutbox(ctx context.Context, limit int) (int, error) {
	records, err := m.outbox.ClaimPending(ctx, limit)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, rec := range records {
		if m.processRecord(ctx, rec) {
			delivered++
		}
	}
	return delivered, nil
}

// ProcessOutboxRecord replays a single outbox record by ID. Used by the
// task-queue worker, which receives one task per claimed record.
func (m *Module) ProcessOutboxRecord(ctx context.Context, outboxID uuid.UUID) error {
	rec, err := m.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}
	switch rec.Status {
	case outbox.StatusSucceeded, outbox.StatusFailed:
		// Re-delivered task for a record that is already settled.
		return nil
	}

	m.processRecord(ctx, rec)
	return nil
}

func (m *Module) processRecord(ctx context.Context, rec outbox.Record) bool {
	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		m.log.Error("failed to mark outbox record processing", "outboxId", rec.ID, "error", err)
		return false
	}

	event, err := decodeEvent(rec.Kind, rec.Payload)
	if err != nil {
		m.log.Error("undeliverable outbox record", "outboxId", rec.ID, "kind", rec.Kind, "error", err)
		if markErr := m.outbox.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
			m.log.Error("failed to mark outbox record failed", "outboxId", rec.ID, "error", markErr)
		}
		return false
	}

	if err := m.deliver(ctx, event); err != nil {
		if markErr := m.outbox.MarkRetry(ctx, rec.ID, err.Error(), time.Now().Add(retryDelay)); markErr != nil {
			m.log.Error("failed to schedule outbox retry", "outboxId", rec.ID, "error", markErr)
		}
		return false
	}

	if err := m.outbox.MarkSucceeded(ctx, rec.ID); err != nil {
		m.log.Error("failed to mark outbox record succeeded", "outboxId", rec.ID, "error", err)
		return false
	}
	return true
}

// decodeEvent rebuilds a typed event from an outbox record.
func decodeEvent(kind string, payload json.RawMessage) (events.Event, error) {
	var event events.Event
	switch kind {
	case events.InspectionRequested{}.EventName():
		event = &events.InspectionRequested{}
	case events.InspectionAgentResponded{}.EventName():
		event = &events.InspectionAgentResponded{}
	case events.NegotiationActioned{}.EventName():
		event = &events.NegotiationActioned{}
	case events.InspectionPaymentSucceeded{}.EventName():
		event = &events.InspectionPaymentSucceeded{}
	case events.InspectionPaymentFailed{}.EventName():
		event = &events.InspectionPaymentFailed{}
	case events.SubscriptionActivated{}.EventName():
		event = &events.SubscriptionActivated{}
	case events.SubscriptionActivationFailed{}.EventName():
		event = &events.SubscriptionActivationFailed{}
	case events.SubscriptionExpiryWarningDue{}.EventName():
		event = &events.SubscriptionExpiryWarningDue{}
	case events.SubscriptionExpired{}.EventName():
		event = &events.SubscriptionExpired{}
	case events.SubscriptionAutoRenewFailed{}.EventName():
		event = &events.SubscriptionAutoRenewFailed{}
	case events.DocumentVerificationPaid{}.EventName():
		event = &events.DocumentVerificationPaid{}
	case events.DocumentVerificationPaymentFailed{}.EventName():
		event = &events.DocumentVerificationPaymentFailed{}
	default:
		return nil, fmt.Errorf("unknown outbox event kind %q", kind)
	}

	if err := json.Unmarshal(payload, event); err != nil {
		return nil, fmt.Errorf("unmarshal outbox payload: %w", err)
	}
	return derefEvent(event), nil
}

// derefEvent returns the value the pointer unmarshalled into, so the
// delivery switch sees the same concrete types the bus delivers.
func derefEvent(event events.Event) events.Event {
	switch e := event.(type) {
	case *events.InspectionRequested:
		return *e
	case *events.InspectionAgentResponded:
		return *e
	case *events.NegotiationActioned:
		return *e
	case *events.InspectionPaymentSucceeded:
		return *e
	case *events.InspectionPaymentFailed:
		return *e
	case *events.SubscriptionActivated:
		return *e
	case *events.SubscriptionActivationFailed:
		return *e
	case *events.SubscriptionExpired:
		return *e
	case *events.SubscriptionExpiryWarningDue:
		return *e
	case *events.SubscriptionAutoRenewFailed:
		return *e
	case *events.DocumentVerificationPaid:
		return *e
	case *events.DocumentVerificationPaymentFailed:
		return *e
	default:
		return event
	}
}

// notifyUser writes one in-app notification. Best effort.
func (m *Module) notifyUser(ctx context.Context, userID, resourceID uuid.UUID, resourceType, title, content string) {
	if userID == uuid.Nil {
		return
	}
	m.inApp.Send(ctx, inapp.SendParams{
		UserID:       userID,
		Title:        title,
		Content:      content,
		ResourceID:   &resourceID,
		ResourceType: resourceType,
	})
}

// Compile-time checks.
var (
	_ apphttp.Module = (*Module)(nil)
	_ events.Handler = (*Module)(nil)
)
