package email

const (
	subjectInspectionRequestedFmt   = "New inspection request for %s"
	subjectInspectionRejectedFmt    = "Your inspection request for %s was declined"
	subjectInspectionApprovedFmt    = "Your inspection for %s is approved"
	subjectPaymentLinkFmt           = "Complete your inspection payment for %s"
	subjectNegotiationActionFmt     = "Negotiation update on %s"
	subjectNegotiationRescheduleFmt = "New inspection date proposed for %s"
	subjectNegotiationConfirmFmt    = "Confirmation: your %s has been recorded"
	subjectPaymentConfirmedFmt      = "Inspection payment confirmed for %s"
	subjectPaymentFailedFmt         = "Inspection payment failed for %s"
	subjectSubscriptionActive       = "Your subscription is active"
	subjectSubscriptionRenewed      = "Your subscription has been renewed"
	subjectSubscriptionPayFailed    = "Subscription payment failed"
	subjectSubscriptionWarningFmt   = "Your subscription expires in %d day(s)"
	subjectSubscriptionExpired      = "Your subscription has expired"
	subjectDocumentAccessCode       = "Your document verification access code"
	subjectVerifierDocumentFmt      = "Document submitted for verification: %s"
	subjectDocumentPayFailed        = "Document verification payment failed"
)
