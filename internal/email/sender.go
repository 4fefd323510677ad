// Package email sends transactional emails for the inspection and
// subscription flows. Rendering is shared; delivery goes through either the
// Brevo HTTP API or a direct SMTP connection.
package email

import (
	"context"
	"fmt"

	"github.com/KHABI-TEQ/Backend-sub001/platform/config"
)

// Attachment represents a file attachment for an email.
type Attachment struct {
	Content  []byte // raw file bytes (base64-encoded for Brevo)
	FileName string // e.g. "payment-link-qr.png"
	MIMEType string // e.g. "image/png"
}

// Sender is the outbound email surface used by the notification module.
type Sender interface {
	SendInspectionRequestedEmail(ctx context.Context, toEmail, sellerName, buyerName, propertyTitle, inspectionDate, inspectionTime string) error
	SendInspectionRejectedEmail(ctx context.Context, toEmail, buyerName, propertyTitle, note string) error
	SendInspectionApprovedEmail(ctx context.Context, toEmail, buyerName, propertyTitle, inspectionDate, inspectionTime string) error
	SendPaymentLinkEmail(ctx context.Context, toEmail, buyerName, propertyTitle string, amountKobo int64, paymentURL string, attachments ...Attachment) error
	SendNegotiationActionEmail(ctx context.Context, toEmail, recipientName, counterpartName, propertyTitle, actionSummary, detail string, dateTimeChanged bool, inspectionDate, inspectionTime string) error
	SendNegotiationConfirmationEmail(ctx context.Context, toEmail, recipientName, propertyTitle, actionSummary string) error
	SendInspectionPaymentConfirmedEmail(ctx context.Context, toEmail, recipientName, propertyTitle, inspectionDate, inspectionTime string) error
	SendInspectionPaymentFailedEmail(ctx context.Context, toEmail, recipientName, propertyTitle, reason string) error
	SendSubscriptionActiveEmail(ctx context.Context, toEmail, userName, planName, endDate, publicListingURL string, renewal bool) error
	SendSubscriptionPaymentFailedEmail(ctx context.Context, toEmail, userName, planName, reason, retryURL string) error
	SendSubscriptionExpiryWarningEmail(ctx context.Context, toEmail, userName, planName, endDate string, daysLeft int) error
	SendSubscriptionExpiredEmail(ctx context.Context, toEmail, userName, planName string) error
	SendDocumentAccessCodeEmail(ctx context.Context, toEmail, submitterName, documentType, accessCode string) error
	SendVerifierDocumentEmail(ctx context.Context, toEmail, documentType, documentURL, accessCode string) error
	SendDocumentPaymentFailedEmail(ctx context.Context, toEmail, submitterName, reason string) error
	SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error
}

// transport delivers an already-rendered email.
type transport interface {
	send(ctx context.Context, toEmail, subject, htmlContent string, attachments ...Attachment) error
}

// NewSender creates the configured Sender. When email is disabled it returns
// a NoopSender so callers never need to nil-check.
func NewSender(cfg config.EmailConfig) (Sender, error) {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}, nil
	}
	return &sender{t: newBrevoTransport(cfg)}, nil
}

// NewSMTPSender creates a Sender that delivers via a direct SMTP connection.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) Sender {
	return &sender{t: newSMTPTransport(host, port, username, password, fromEmail, fromName)}
}

// sender renders templates and hands the result to its transport.
type sender struct {
	t transport
}

func (s *sender) SendInspectionRequestedEmail(ctx context.Context, toEmail, sellerName, buyerName, propertyTitle, inspectionDate, inspectionTime string) error {
	subject := fmt.Sprintf(subjectInspectionRequestedFmt, propertyTitle)
	content, err := renderEmailTemplate("inspection_requested.html", inspectionRequestedEmailData{
		baseEmailData: baseEmailData{
			Title:   "New inspection request",
			Heading: "New inspection request",
		},
		SellerName:     sellerName,
		BuyerName:      buyerName,
		PropertyTitle:  propertyTitle,
		InspectionDate: inspectionDate,
		InspectionTime: inspectionTime,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendInspectionRejectedEmail(ctx context.Context, toEmail, buyerName, propertyTitle, note string) error {
	subject := fmt.Sprintf(subjectInspectionRejectedFmt, propertyTitle)
	content, err := renderEmailTemplate("inspection_rejected.html", inspectionRejectedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Inspection request declined",
			Heading: "Inspection request declined",
		},
		BuyerName:     buyerName,
		PropertyTitle: propertyTitle,
		Note:          note,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendInspectionApprovedEmail(ctx context.Context, toEmail, buyerName, propertyTitle, inspectionDate, inspectionTime string) error {
	subject := fmt.Sprintf(subjectInspectionApprovedFmt, propertyTitle)
	content, err := renderEmailTemplate("inspection_approved.html", inspectionApprovedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Inspection approved",
			Heading: "Inspection approved",
		},
		BuyerName:      buyerName,
		PropertyTitle:  propertyTitle,
		InspectionDate: inspectionDate,
		InspectionTime: inspectionTime,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendPaymentLinkEmail(ctx context.Context, toEmail, buyerName, propertyTitle string, amountKobo int64, paymentURL string, attachments ...Attachment) error {
	subject := fmt.Sprintf(subjectPaymentLinkFmt, propertyTitle)
	content, err := renderEmailTemplate("payment_link.html", paymentLinkEmailData{
		baseEmailData: baseEmailData{
			Title:    "Complete your payment",
			Heading:  "Complete your inspection payment",
			CTALabel: "Pay inspection fee",
			CTAURL:   paymentURL,
		},
		BuyerName:       buyerName,
		PropertyTitle:   propertyTitle,
		AmountFormatted: formatNaira(amountKobo),
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content, attachments...)
}

func (s *sender) SendNegotiationActionEmail(ctx context.Context, toEmail, recipientName, counterpartName, propertyTitle, actionSummary, detail string, dateTimeChanged bool, inspectionDate, inspectionTime string) error {
	subject := fmt.Sprintf(subjectNegotiationActionFmt, propertyTitle)
	if dateTimeChanged {
		subject = fmt.Sprintf(subjectNegotiationRescheduleFmt, propertyTitle)
	}
	content, err := renderEmailTemplate("negotiation_action.html", negotiationActionEmailData{
		baseEmailData: baseEmailData{
			Title:   "Negotiation update",
			Heading: "Negotiation update",
		},
		RecipientName:   recipientName,
		CounterpartName: counterpartName,
		PropertyTitle:   propertyTitle,
		ActionSummary:   actionSummary,
		Detail:          detail,
		DateTimeChanged: dateTimeChanged,
		InspectionDate:  inspectionDate,
		InspectionTime:  inspectionTime,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendNegotiationConfirmationEmail(ctx context.Context, toEmail, recipientName, propertyTitle, actionSummary string) error {
	subject := fmt.Sprintf(subjectNegotiationConfirmFmt, actionSummary)
	content, err := renderEmailTemplate("negotiation_confirmation.html", negotiationConfirmationEmailData{
		baseEmailData: baseEmailData{
			Title:   "Action recorded",
			Heading: "Your response has been recorded",
		},
		RecipientName: recipientName,
		PropertyTitle: propertyTitle,
		ActionSummary: actionSummary,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendInspectionPaymentConfirmedEmail(ctx context.Context, toEmail, recipientName, propertyTitle, inspectionDate, inspectionTime string) error {
	subject := fmt.Sprintf(subjectPaymentConfirmedFmt, propertyTitle)
	content, err := renderEmailTemplate("payment_confirmed.html", paymentConfirmedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Payment confirmed",
			Heading: "Inspection payment confirmed",
		},
		RecipientName:  recipientName,
		PropertyTitle:  propertyTitle,
		InspectionDate: inspectionDate,
		InspectionTime: inspectionTime,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendInspectionPaymentFailedEmail(ctx context.Context, toEmail, recipientName, propertyTitle, reason string) error {
	subject := fmt.Sprintf(subjectPaymentFailedFmt, propertyTitle)
	content, err := renderEmailTemplate("payment_failed.html", paymentFailedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Payment failed",
			Heading: "Inspection payment failed",
		},
		RecipientName: recipientName,
		PropertyTitle: propertyTitle,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendSubscriptionActiveEmail(ctx context.Context, toEmail, userName, planName, endDate, publicListingURL string, renewal bool) error {
	subject := subjectSubscriptionActive
	if renewal {
		subject = subjectSubscriptionRenewed
	}
	content, err := renderEmailTemplate("subscription_active.html", subscriptionActiveEmailData{
		baseEmailData: baseEmailData{
			Title:    "Subscription active",
			Heading:  "Your subscription is active",
			CTALabel: "View your public listing",
			CTAURL:   publicListingURL,
		},
		UserName:         userName,
		PlanName:         planName,
		EndDate:          endDate,
		PublicListingURL: publicListingURL,
		Renewal:          renewal,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendSubscriptionPaymentFailedEmail(ctx context.Context, toEmail, userName, planName, reason, retryURL string) error {
	content, err := renderEmailTemplate("subscription_payment_failed.html", subscriptionPaymentFailedEmailData{
		baseEmailData: baseEmailData{
			Title:    "Subscription payment failed",
			Heading:  "Subscription payment failed",
			CTALabel: "Retry payment",
			CTAURL:   retryURL,
		},
		UserName: userName,
		PlanName: planName,
		Reason:   reason,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subjectSubscriptionPayFailed, content)
}

func (s *sender) SendSubscriptionExpiryWarningEmail(ctx context.Context, toEmail, userName, planName, endDate string, daysLeft int) error {
	subject := fmt.Sprintf(subjectSubscriptionWarningFmt, daysLeft)
	content, err := renderEmailTemplate("subscription_expiry_warning.html", subscriptionExpiryWarningEmailData{
		baseEmailData: baseEmailData{
			Title:   "Subscription expiring soon",
			Heading: "Your subscription is expiring soon",
		},
		UserName: userName,
		PlanName: planName,
		EndDate:  endDate,
		DaysLeft: daysLeft,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendSubscriptionExpiredEmail(ctx context.Context, toEmail, userName, planName string) error {
	content, err := renderEmailTemplate("subscription_expired.html", subscriptionExpiredEmailData{
		baseEmailData: baseEmailData{
			Title:   "Subscription expired",
			Heading: "Your subscription has expired",
		},
		UserName: userName,
		PlanName: planName,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subjectSubscriptionExpired, content)
}

func (s *sender) SendDocumentAccessCodeEmail(ctx context.Context, toEmail, submitterName, documentType, accessCode string) error {
	content, err := renderEmailTemplate("document_access_code.html", documentAccessCodeEmailData{
		baseEmailData: baseEmailData{
			Title:   "Verification access code",
			Heading: "Your document verification access code",
		},
		SubmitterName: submitterName,
		DocumentType:  documentType,
		AccessCode:    accessCode,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subjectDocumentAccessCode, content)
}

func (s *sender) SendVerifierDocumentEmail(ctx context.Context, toEmail, documentType, documentURL, accessCode string) error {
	subject := fmt.Sprintf(subjectVerifierDocumentFmt, documentType)
	content, err := renderEmailTemplate("verifier_document.html", verifierDocumentEmailData{
		baseEmailData: baseEmailData{
			Title:    "Document for verification",
			Heading:  "A document awaits verification",
			CTALabel: "Open document",
			CTAURL:   documentURL,
		},
		DocumentType: documentType,
		DocumentURL:  documentURL,
		AccessCode:   accessCode,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subject, content)
}

func (s *sender) SendDocumentPaymentFailedEmail(ctx context.Context, toEmail, submitterName, reason string) error {
	content, err := renderEmailTemplate("document_payment_failed.html", documentPaymentFailedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Payment failed",
			Heading: "Document verification payment failed",
		},
		SubmitterName: submitterName,
		Reason:        reason,
	})
	if err != nil {
		return err
	}
	return s.t.send(ctx, toEmail, subjectDocumentPayFailed, content)
}

func (s *sender) SendCustomEmail(ctx context.Context, toEmail, subject, htmlContent string) error {
	return s.t.send(ctx, toEmail, subject, htmlContent)
}

// NoopSender drops every email. Used when email is disabled.
type NoopSender struct{}

func (NoopSender) SendInspectionRequestedEmail(context.Context, string, string, string, string, string, string) error {
	return nil
}

func (NoopSender) SendInspectionRejectedEmail(context.Context, string, string, string, string) error {
	return nil
}

func (NoopSender) SendInspectionApprovedEmail(context.Context, string, string, string, string, string) error {
	return nil
}

func (NoopSender) SendPaymentLinkEmail(context.Context, string, string, string, int64, string, ...Attachment) error {
	return nil
}

func (NoopSender) SendNegotiationActionEmail(context.Context, string, string, string, string, string, string, bool, string, string) error {
	return nil
}

func (NoopSender) SendNegotiationConfirmationEmail(context.Context, string, string, string, string) error {
	return nil
}

func (NoopSender) SendInspectionPaymentConfirmedEmail(context.Context, string, string, string, string, string) error {
	return nil
}

func (NoopSender) SendInspectionPaymentFailedEmail(context.Context, string, string, string, string) error {
	return nil
}

func (NoopSender) SendSubscriptionActiveEmail(context.Context, string, string, string, string, string, bool) error {
	return nil
}

func (NoopSender) SendSubscriptionPaymentFailedEmail(context.Context, string, string, string, string, string) error {
	return nil
}

func (NoopSender) SendSubscriptionExpiryWarningEmail(context.Context, string, string, string, string, int) error {
	return nil
}

func (NoopSender) SendSubscriptionExpiredEmail(context.Context, string, string, string) error {
	return nil
}

func (NoopSender) SendDocumentAccessCodeEmail(context.Context, string, string, string, string) error {
	return nil
}

func (NoopSender) SendVerifierDocumentEmail(context.Context, string, string, string, string) error {
	return nil
}

func (NoopSender) SendDocumentPaymentFailedEmail(context.Context, string, string, string) error {
	return nil
}

func (NoopSender) SendCustomEmail(context.Context, string, string, string) error {
	return nil
}
