package domain

import (
	"testing"

	"github.com/KHABI-TEQ/Backend-sub001/platform/apperr"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func priceBooking() Booking {
	return Booking{
		ID:                  uuid.New(),
		PropertyID:          uuid.New(),
		BuyerID:             uuid.New(),
		SellerID:            uuid.New(),
		InspectionType:      TypePrice,
		Status:              StatusActiveNegotiation,
		Stage:               StageNegotiation,
		PendingResponseFrom: PartySeller,
		IsNegotiating:       true,
		NegotiationPrice:    40000000,
		InspectionDate:      "2026-09-01",
		InspectionTime:      "10:00",
	}
}

func loiBooking() Booking {
	b := priceBooking()
	b.InspectionType = TypeLOI
	b.Stage = StageLOI
	b.NegotiationPrice = 0
	b.LetterOfIntention = "https://docs.example.com/loi-v1.pdf"
	return b
}

func TestResolveTransitionTable(t *testing.T) {
	tests := []struct {
		name        string
		booking     Booking
		action      Action
		actor       Party
		input       ActionInput
		wantStatus  Status
		wantStage   Stage
		wantPending Party
		wantNegot   bool
	}{
		{
			name:        "accept without date fields completes",
			booking:     priceBooking(),
			action:      ActionAccept,
			actor:       PartySeller,
			wantStatus:  StatusNegotiationAccepted,
			wantStage:   StageCompleted,
			wantPending: PartyNone,
		},
		{
			name:        "accept with new date moves to inspection stage",
			booking:     priceBooking(),
			action:      ActionAccept,
			actor:       PartySeller,
			input:       ActionInput{InspectionDate: "2026-09-05", InspectionTime: "14:00"},
			wantStatus:  StatusNegotiationAccepted,
			wantStage:   StageInspection,
			wantPending: PartyNone,
		},
		{
			name:        "reject cancels",
			booking:     priceBooking(),
			action:      ActionReject,
			actor:       PartyBuyer,
			input:       ActionInput{Reason: "price too high"},
			wantStatus:  StatusNegotiationRejected,
			wantStage:   StageCancelled,
			wantPending: PartyNone,
		},
		{
			name:        "seller counter flips turn to buyer",
			booking:     priceBooking(),
			action:      ActionCounter,
			actor:       PartySeller,
			input:       ActionInput{CounterPrice: 45000000},
			wantStatus:  StatusNegotiationCountered,
			wantStage:   StageNegotiation,
			wantPending: PartyBuyer,
			wantNegot:   true,
		},
		{
			name:        "buyer counter flips turn to seller",
			booking:     priceBooking(),
			action:      ActionCounter,
			actor:       PartyBuyer,
			input:       ActionInput{CounterPrice: 42000000},
			wantStatus:  StatusNegotiationCountered,
			wantStage:   StageNegotiation,
			wantPending: PartySeller,
			wantNegot:   true,
		},
		{
			name:        "request changes on loi awaits buyer",
			booking:     loiBooking(),
			action:      ActionRequestChanges,
			actor:       PartySeller,
			input:       ActionInput{Reason: "missing signature page"},
			wantStatus:  StatusNegotiationCountered,
			wantStage:   StageNegotiation,
			wantPending: PartyBuyer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := Resolve(tt.action, tt.booking, tt.actor, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, tr.NextStatus)
			assert.Equal(t, tt.wantStage, tr.NextStage)
			assert.Equal(t, tt.wantPending, tr.NextPendingResponse)
			assert.Equal(t, tt.wantNegot, tr.IsNegotiating)
		})
	}
}

func TestResolveTerminalBookingsRejectAllActions(t *testing.T) {
	terminal := []Status{
		StatusCompleted, StatusCancelled, StatusAgentRejected,
		StatusNegotiationRejected, StatusTransactionFailed,
	}
	actions := []Action{ActionAccept, ActionReject, ActionCounter, ActionRequestChanges}

	for _, status := range terminal {
		for _, action := range actions {
			b := priceBooking()
			b.Status = status
			_, err := Resolve(action, b, PartyBuyer, ActionInput{CounterPrice: 1, Reason: "x"})
			require.Error(t, err, "status %s action %s", status, action)
			assert.True(t, apperr.Is(err, apperr.KindConflict), "status %s action %s: got %v", status, action, err)
		}
	}
}

func TestResolveTerminalStageRejectsActions(t *testing.T) {
	b := priceBooking()
	b.Status = StatusNegotiationAccepted
	b.Stage = StageCompleted

	_, err := Resolve(ActionCounter, b, PartyBuyer, ActionInput{CounterPrice: 100})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
}

func TestResolvePreconditions(t *testing.T) {
	tests := []struct {
		name    string
		booking Booking
		action  Action
		input   ActionInput
	}{
		{"counter price without amount", priceBooking(), ActionCounter, ActionInput{}},
		{"counter price with negative amount", priceBooking(), ActionCounter, ActionInput{CounterPrice: -5}},
		{"counter loi without document", loiBooking(), ActionCounter, ActionInput{}},
		{"request changes on price type", priceBooking(), ActionRequestChanges, ActionInput{Reason: "x"}},
		{"request changes without reason", loiBooking(), ActionRequestChanges, ActionInput{}},
		{"unknown action", priceBooking(), Action("escalate"), ActionInput{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(tt.action, tt.booking, PartyBuyer, tt.input)
			require.Error(t, err)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}
}

func TestResolveActorMustBeBuyerOrSeller(t *testing.T) {
	_, err := Resolve(ActionAccept, priceBooking(), PartyAdmin, ActionInput{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestResolveAcceptInInspectionStageAlwaysCompletes(t *testing.T) {
	b := priceBooking()
	b.Stage = StageInspection

	// Even with new date fields, a locked schedule cannot be re-opened.
	tr, err := Resolve(ActionAccept, b, PartyBuyer, ActionInput{InspectionDate: "2026-10-01"})
	require.NoError(t, err)
	assert.Equal(t, StageCompleted, tr.NextStage)
	assert.Nil(t, tr.Updates.InspectionDate)
}

func TestResolveCounterUpdatesTheRightPriceField(t *testing.T) {
	sellerTr, err := Resolve(ActionCounter, priceBooking(), PartySeller, ActionInput{CounterPrice: 45000000})
	require.NoError(t, err)
	require.NotNil(t, sellerTr.Updates.SellerCounterOffer)
	assert.Equal(t, int64(45000000), *sellerTr.Updates.SellerCounterOffer)
	assert.Nil(t, sellerTr.Updates.NegotiationPrice)

	buyerTr, err := Resolve(ActionCounter, priceBooking(), PartyBuyer, ActionInput{CounterPrice: 42000000})
	require.NoError(t, err)
	require.NotNil(t, buyerTr.Updates.NegotiationPrice)
	assert.Equal(t, int64(42000000), *buyerTr.Updates.NegotiationPrice)
	assert.Nil(t, buyerTr.Updates.SellerCounterOffer)
}

func TestResolveDateTimeChangedFlag(t *testing.T) {
	b := priceBooking()

	tr, err := Resolve(ActionCounter, b, PartySeller, ActionInput{CounterPrice: 100, InspectionDate: b.InspectionDate})
	require.NoError(t, err)
	assert.False(t, tr.DateTimeChanged)

	tr, err = Resolve(ActionCounter, b, PartySeller, ActionInput{CounterPrice: 100, InspectionDate: "2026-12-24"})
	require.NoError(t, err)
	assert.True(t, tr.DateTimeChanged)
}

func TestResolveNeverMutatesTheSnapshot(t *testing.T) {
	b := priceBooking()
	before := b

	_, err := Resolve(ActionCounter, b, PartySeller, ActionInput{CounterPrice: 45000000})
	require.NoError(t, err)
	assert.Equal(t, before, b)
}
