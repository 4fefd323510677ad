package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type inspectionRequestedEmailData struct {
	baseEmailData
	SellerName     string
	BuyerName      string
	PropertyTitle  string
	InspectionDate string
	InspectionTime string
}

type inspectionRejectedEmailData struct {
	baseEmailData
	BuyerName     string
	PropertyTitle string
	Note          string
}

type inspectionApprovedEmailData struct {
	baseEmailData
	BuyerName      string
	PropertyTitle  string
	InspectionDate string
	InspectionTime string
}

type paymentLinkEmailData struct {
	baseEmailData
	BuyerName       string
	PropertyTitle   string
	AmountFormatted string
}

type negotiationActionEmailData struct {
	baseEmailData
	RecipientName   string
	CounterpartName string
	PropertyTitle   string
	ActionSummary   string
	Detail          string
	DateTimeChanged bool
	InspectionDate  string
	InspectionTime  string
}

type negotiationConfirmationEmailData struct {
	baseEmailData
	RecipientName string
	PropertyTitle string
	ActionSummary string
}

type paymentConfirmedEmailData struct {
	baseEmailData
	RecipientName  string
	PropertyTitle  string
	InspectionDate string
	InspectionTime string
}

type paymentFailedEmailData struct {
	baseEmailData
	RecipientName string
	PropertyTitle string
	Reason        string
}

type subscriptionActiveEmailData struct {
	baseEmailData
	UserName         string
	PlanName         string
	EndDate          string
	PublicListingURL string
	Renewal          bool
}

type subscriptionPaymentFailedEmailData struct {
	baseEmailData
	UserName string
	PlanName string
	Reason   string
}

type subscriptionExpiryWarningEmailData struct {
	baseEmailData
	UserName string
	PlanName string
	EndDate  string
	DaysLeft int
}

type subscriptionExpiredEmailData struct {
	baseEmailData
	UserName string
	PlanName string
}

type documentAccessCodeEmailData struct {
	baseEmailData
	SubmitterName string
	DocumentType  string
	AccessCode    string
}

type verifierDocumentEmailData struct {
	baseEmailData
	DocumentType string
	DocumentURL  string
	AccessCode   string
}

type documentPaymentFailedEmailData struct {
	baseEmailData
	SubmitterName string
	Reason        string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatNaira(kobo int64) string {
	return fmt.Sprintf("₦%.2f", float64(kobo)/100)
}
