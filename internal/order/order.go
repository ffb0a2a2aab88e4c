// Package order implements the purchase lifecycle: the per-buyer pending
// order store, the payment state machine, and the flow that drives an order
// from selection to a terminal outcome.
package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/m3rciful/storebot/internal/model"
)

// State identifies a step of the payment lifecycle. Idle is represented by
// the absence of a pending order rather than an explicit tag.
type State string

const (
	// StateSelectingMethod: order created, buyer picks a payment method.
	StateSelectingMethod State = "selecting_method"
	// StateAwaitingProof: admin path, buyer must upload proof of payment.
	StateAwaitingProof State = "awaiting_proof"
	// StateAwaitingDecision: proof broadcast, waiting for an admin verdict.
	StateAwaitingDecision State = "awaiting_decision"
	// StateAwaitingProvider: invoice issued, waiting for provider callbacks.
	StateAwaitingProvider State = "awaiting_provider"
	// StateFulfilled and StateRejected are terminal; the order record is
	// deleted once either is reached.
	StateFulfilled State = "fulfilled"
	StateRejected  State = "rejected"
)

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	return s == StateFulfilled || s == StateRejected
}

// Expirable reports whether an abandoned order in this state may be evicted
// by the stale-order sweep. Once an invoice is out or proof is in front of
// the admins the buyer may already have paid, so those orders only leave the
// store through a verdict or a provider callback.
func (s State) Expirable() bool {
	return s == StateSelectingMethod || s == StateAwaitingProof
}

// Event is an input to the state machine.
type Event string

const (
	EventMethodAdmin    Event = "method_admin"
	EventMethodOnline   Event = "method_online"
	EventProofSubmitted Event = "proof_submitted"
	EventAdminApproved  Event = "admin_approved"
	EventAdminRejected  Event = "admin_rejected"
	EventPaymentSuccess Event = "payment_success"
)

// ErrInvalidTransition is returned for a (state, event) pair the lifecycle
// does not allow.
var ErrInvalidTransition = errors.New("order: invalid state transition")

var transitions = map[State]map[Event]State{
	StateSelectingMethod: {
		EventMethodAdmin:  StateAwaitingProof,
		EventMethodOnline: StateAwaitingProvider,
	},
	StateAwaitingProof: {
		EventProofSubmitted: StateAwaitingDecision,
	},
	StateAwaitingDecision: {
		EventAdminApproved: StateFulfilled,
		EventAdminRejected: StateRejected,
	},
	StateAwaitingProvider: {
		EventPaymentSuccess: StateFulfilled,
	},
}

// Next resolves the target state for an event, or ErrInvalidTransition.
func Next(from State, ev Event) (State, error) {
	if allowed, ok := transitions[from]; ok {
		if to, ok := allowed[ev]; ok {
			return to, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, from)
}

// Allows reports whether the event is valid in the given state.
func Allows(from State, ev Event) bool {
	_, err := Next(from, ev)
	return err == nil
}

// PaymentMethod selects the confirmation path for an order.
type PaymentMethod string

const (
	// MethodAdmin settles through manual admin confirmation.
	MethodAdmin PaymentMethod = "admin"
	// MethodOnline settles through a provider invoice and checkout callback.
	MethodOnline PaymentMethod = "online"
)

// Event returns the state machine event corresponding to choosing the method.
func (m PaymentMethod) Event() (Event, error) {
	switch m {
	case MethodAdmin:
		return EventMethodAdmin, nil
	case MethodOnline:
		return EventMethodOnline, nil
	}
	return "", fmt.Errorf("order: unknown payment method %q", m)
}

// PendingOrder is the transient record of a buyer's in-flight purchase.
// The product fields are a snapshot taken at buy time; later catalog edits
// do not affect an order already in flight.
type PendingOrder struct {
	BuyerID       int64
	ProductID     int64
	ProductName   string
	Price         float64
	BuyerUsername string
	BuyerFullName string
	ProofFileID   string
	State         State
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Apply advances the order through the state machine, rejecting invalid
// (state, event) pairs.
func (o *PendingOrder) Apply(ev Event) error {
	next, err := Next(o.State, ev)
	if err != nil {
		return err
	}
	o.State = next
	o.UpdatedAt = time.Now()
	return nil
}

// PriceMinor returns the order amount in minor currency units.
func (o *PendingOrder) PriceMinor() int {
	return model.MinorUnits(o.Price)
}
