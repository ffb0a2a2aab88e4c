package order

import (
	"errors"
	"testing"
)

func TestNextAllowedTransitions(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
		to   State
	}{
		{StateSelectingMethod, EventMethodAdmin, StateAwaitingProof},
		{StateSelectingMethod, EventMethodOnline, StateAwaitingProvider},
		{StateAwaitingProof, EventProofSubmitted, StateAwaitingDecision},
		{StateAwaitingDecision, EventAdminApproved, StateFulfilled},
		{StateAwaitingDecision, EventAdminRejected, StateRejected},
		{StateAwaitingProvider, EventPaymentSuccess, StateFulfilled},
	}
	for _, tc := range cases {
		got, err := Next(tc.from, tc.ev)
		if err != nil {
			t.Fatalf("Next(%s, %s): unexpected error %v", tc.from, tc.ev, err)
		}
		if got != tc.to {
			t.Fatalf("Next(%s, %s) = %s, want %s", tc.from, tc.ev, got, tc.to)
		}
	}
}

func TestNextRejectsInvalidPairs(t *testing.T) {
	cases := []struct {
		from State
		ev   Event
	}{
		{StateSelectingMethod, EventProofSubmitted},
		{StateSelectingMethod, EventAdminApproved},
		{StateAwaitingProof, EventMethodAdmin},
		{StateAwaitingProof, EventPaymentSuccess},
		{StateAwaitingDecision, EventPaymentSuccess},
		{StateAwaitingProvider, EventAdminApproved},
		{StateAwaitingProvider, EventProofSubmitted},
		{StateFulfilled, EventAdminApproved},
		{StateRejected, EventAdminRejected},
	}
	for _, tc := range cases {
		if _, err := Next(tc.from, tc.ev); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("Next(%s, %s): expected ErrInvalidTransition, got %v", tc.from, tc.ev, err)
		}
	}
}

func TestApplyAdvancesState(t *testing.T) {
	o := PendingOrder{State: StateSelectingMethod}
	if err := o.Apply(EventMethodAdmin); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if o.State != StateAwaitingProof {
		t.Fatalf("state = %s, want %s", o.State, StateAwaitingProof)
	}
	if o.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set on transition")
	}

	if err := o.Apply(EventAdminApproved); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if o.State != StateAwaitingProof {
		t.Fatalf("state mutated by rejected transition: %s", o.State)
	}
}

func TestTerminalStates(t *testing.T) {
	for _, s := range []State{StateSelectingMethod, StateAwaitingProof, StateAwaitingDecision, StateAwaitingProvider} {
		if s.Terminal() {
			t.Fatalf("%s must not be terminal", s)
		}
	}
	for _, s := range []State{StateFulfilled, StateRejected} {
		if !s.Terminal() {
			t.Fatalf("%s must be terminal", s)
		}
	}
}

func TestExpirableStates(t *testing.T) {
	for _, s := range []State{StateSelectingMethod, StateAwaitingProof} {
		if !s.Expirable() {
			t.Fatalf("%s must be expirable", s)
		}
	}
	for _, s := range []State{StateAwaitingDecision, StateAwaitingProvider, StateFulfilled, StateRejected} {
		if s.Expirable() {
			t.Fatalf("%s must not be expirable", s)
		}
	}
}

func TestPaymentMethodEvent(t *testing.T) {
	if ev, err := MethodAdmin.Event(); err != nil || ev != EventMethodAdmin {
		t.Fatalf("MethodAdmin.Event() = %s, %v", ev, err)
	}
	if ev, err := MethodOnline.Event(); err != nil || ev != EventMethodOnline {
		t.Fatalf("MethodOnline.Event() = %s, %v", ev, err)
	}
	if _, err := PaymentMethod("cash").Event(); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestPriceMinor(t *testing.T) {
	o := PendingOrder{Price: 199.99}
	if got := o.PriceMinor(); got != 19999 {
		t.Fatalf("PriceMinor() = %d, want 19999", got)
	}
	o.Price = 0.1
	if got := o.PriceMinor(); got != 10 {
		t.Fatalf("PriceMinor() = %d, want 10", got)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	o := PendingOrder{BuyerID: 42, ProductID: 7}
	payload := EncodePayload(o)
	buyerID, productID, err := DecodePayload(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if buyerID != 42 || productID != 7 {
		t.Fatalf("decoded (%d, %d), want (42, 7)", buyerID, productID)
	}
}

func TestDecodePayloadMalformed(t *testing.T) {
	for _, payload := range []string{"", "order", "order:42", "order:x:7", "order:42:y", "cart:42:7", "order:42:7:9"} {
		if _, _, err := DecodePayload(payload); err == nil {
			t.Fatalf("expected error for payload %q", payload)
		}
	}
}

func TestWrapIndex(t *testing.T) {
	if got := wrapIndex(-1, 5); got != 4 {
		t.Fatalf("wrapIndex(-1, 5) = %d, want 4", got)
	}
	if got := wrapIndex(5, 5); got != 0 {
		t.Fatalf("wrapIndex(5, 5) = %d, want 0", got)
	}
	if got := wrapIndex(7, 5); got != 2 {
		t.Fatalf("wrapIndex(7, 5) = %d, want 2", got)
	}
}
