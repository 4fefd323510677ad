package domain

import (
	"fmt"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"
)

// ActionInput carries the optional fields of a negotiation action.
// CounterPrice is in kobo.
type ActionInput struct {
	CounterPrice   int64
	DocumentURL    string
	Reason         string
	InspectionDate string
	InspectionTime string
}

// FieldUpdates lists booking fields a transition overwrites. Nil pointers
// mean "leave unchanged"; persistence applies the whole set atomically.
type FieldUpdates struct {
	NegotiationPrice   *int64
	SellerCounterOffer *int64
	LetterOfIntention  *string
	InspectionDate     *string
	InspectionTime     *string
	Reason             *string
}

// Transition is the complete next-state descriptor returned by Resolve.
// The caller persists it as one conditional write keyed on the status the
// snapshot was read with.
type Transition struct {
	NextStatus          Status
	NextStage           Stage
	NextPendingResponse Party
	IsNegotiating       bool
	DateTimeChanged     bool
	Updates             FieldUpdates
	AuditMessage        string

	// NotifyCounterparty is the party owed the primary transition email.
	// ConfirmInitiator is set for accept/reject, which also send a
	// confirmation back to the acting party.
	NotifyCounterparty Party
	ConfirmInitiator   bool
}

// Resolve computes the transition for an action against a booking snapshot.
// It is pure: it never mutates the snapshot and performs no I/O. A non-nil
// error means no state change may occur.
func Resolve(action Action, b Booking, actor Party, input ActionInput) (Transition, error) {
	if actor != PartyBuyer && actor != PartySeller {
		return Transition{}, apperr.Forbidden("only the buyer or seller may act on a booking")
	}
	if b.IsTerminal() {
		return Transition{}, apperr.Conflict(fmt.Sprintf("booking is already %s; no further actions are accepted", b.Status))
	}

	switch action {
	case ActionAccept:
		return resolveAccept(b, actor, input), nil
	case ActionReject:
		return resolveReject(b, actor, input), nil
	case ActionCounter:
		return resolveCounter(b, actor, input)
	case ActionRequestChanges:
		return resolveRequestChanges(b, actor, input)
	default:
		return Transition{}, apperr.Validation(fmt.Sprintf("unknown action %q", action))
	}
}

func resolveAccept(b Booking, actor Party, input ActionInput) Transition {
	tr := Transition{
		NextStatus:          StatusNegotiationAccepted,
		NextPendingResponse: PartyNone,
		IsNegotiating:       false,
		DateTimeChanged:     dateTimeChanged(b, input),
		AuditMessage:        fmt.Sprintf("%s accepted the %s offer", actor, b.InspectionType),
		NotifyCounterparty:  actor.Other(),
		ConfirmInitiator:    true,
	}

	// Once a date/time has been locked (stage=inspection), a second accept
	// always completes the booking; it cannot re-open scheduling.
	if b.Stage == StageInspection {
		tr.NextStage = StageCompleted
		return tr
	}

	if input.InspectionDate == "" && input.InspectionTime == "" {
		tr.NextStage = StageCompleted
		return tr
	}

	tr.NextStage = StageInspection
	if input.InspectionDate != "" {
		tr.Updates.InspectionDate = &input.InspectionDate
	}
	if input.InspectionTime != "" {
		tr.Updates.InspectionTime = &input.InspectionTime
	}
	return tr
}

func resolveReject(b Booking, actor Party, input ActionInput) Transition {
	tr := Transition{
		NextStatus:          StatusNegotiationRejected,
		NextStage:           StageCancelled,
		NextPendingResponse: PartyNone,
		IsNegotiating:       false,
		AuditMessage:        fmt.Sprintf("%s rejected the %s offer", actor, b.InspectionType),
		NotifyCounterparty:  actor.Other(),
		ConfirmInitiator:    true,
	}
	if input.Reason != "" {
		tr.Updates.Reason = &input.Reason
	}
	return tr
}

func resolveCounter(b Booking, actor Party, input ActionInput) (Transition, error) {
	tr := Transition{
		NextStatus:          StatusNegotiationCountered,
		NextStage:           StageNegotiation,
		NextPendingResponse: actor.Other(),
		IsNegotiating:       true,
		DateTimeChanged:     dateTimeChanged(b, input),
		NotifyCounterparty:  actor.Other(),
	}

	switch b.InspectionType {
	case TypePrice:
		if input.CounterPrice <= 0 {
			return Transition{}, apperr.Validation("counterPrice must be a positive amount for a price negotiation")
		}
		if actor == PartySeller {
			tr.Updates.SellerCounterOffer = &input.CounterPrice
		} else {
			tr.Updates.NegotiationPrice = &input.CounterPrice
		}
		tr.AuditMessage = fmt.Sprintf("%s countered with %s", actor, FormatNaira(input.CounterPrice))
	case TypeLOI:
		if input.DocumentURL == "" {
			return Transition{}, apperr.Validation("documentUrl is required to counter a letter of intention")
		}
		tr.Updates.LetterOfIntention = &input.DocumentURL
		tr.AuditMessage = fmt.Sprintf("%s submitted a revised letter of intention", actor)
	default:
		return Transition{}, apperr.Validation(fmt.Sprintf("unknown inspection type %q", b.InspectionType))
	}

	if input.InspectionDate != "" {
		tr.Updates.InspectionDate = &input.InspectionDate
	}
	if input.InspectionTime != "" {
		tr.Updates.InspectionTime = &input.InspectionTime
	}
	return tr, nil
}

func resolveRequestChanges(b Booking, actor Party, input ActionInput) (Transition, error) {
	if b.InspectionType != TypeLOI {
		return Transition{}, apperr.Validation("request_changes is only valid for letter-of-intention negotiations")
	}
	if input.Reason == "" {
		return Transition{}, apperr.Validation("reason is required to request changes")
	}

	return Transition{
		NextStatus:          StatusNegotiationCountered,
		NextStage:           StageNegotiation,
		NextPendingResponse: PartyBuyer,
		IsNegotiating:       false,
		Updates:             FieldUpdates{Reason: &input.Reason},
		AuditMessage:        fmt.Sprintf("%s requested changes to the letter of intention: %s", actor, input.Reason),
		NotifyCounterparty:  actor.Other(),
	}, nil
}

func dateTimeChanged(b Booking, input ActionInput) bool {
	if input.InspectionDate != "" && input.InspectionDate != b.InspectionDate {
		return true
	}
	if input.InspectionTime != "" && input.InspectionTime != b.InspectionTime {
		return true
	}
	return false
}

// FormatNaira renders a kobo amount as a naira string for audit messages
// and email payloads.
func FormatNaira(kobo int64) string {
	return fmt.Sprintf("₦%.2f", float64(kobo)/100)
}
