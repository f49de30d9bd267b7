// Package vault implements staged settlement of withdrawn funds.
//
// A withdrawal registers a Pending payment that a vault operator later
// confirms (funds leave the ledger) or cancels (funds return to the owning
// project). A payment leaves Pending exactly once.
package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
)

type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCanceled  State = "canceled"
)

// Final reports whether no further transition is possible.
func (s State) Final() bool {
	return s == StateConfirmed || s == StateCanceled
}

// ErrInvalidTransition is returned when a payment is moved out of a final
// state or into a state it cannot reach.
var ErrInvalidTransition = errors.New("vault: invalid state transition")

type Payment struct {
	types.Entity
	ID        id.PaymentID  `json:"id"`
	NoteID    note.ID       `json:"note_id"`
	Owner     manager.ID    `json:"owner"`
	Address   types.Address `json:"address"`
	Amount    types.Money   `json:"amount"`
	State     State         `json:"state"`
	PaidNote  note.ID       `json:"paid_note,omitempty"`
	SettledAt *time.Time    `json:"settled_at,omitempty"`
}

// Transition moves p from Pending to the target state at the given time.
func (p *Payment) Transition(to State, at time.Time) error {
	if p.State != StatePending || !to.Final() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.State, to)
	}
	p.State = to
	p.SettledAt = &at
	p.Touch(at)
	return nil
}

// Clone returns a copy that shares no memory with p.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.SettledAt != nil {
		at := *p.SettledAt
		c.SettledAt = &at
	}
	return &c
}

type ListOpts struct {
	State  State
	Owner  manager.ID
	Limit  int
	Offset int
}

func (o ListOpts) Match(p *Payment) bool {
	if o.State != "" && p.State != o.State {
		return false
	}
	if o.Owner != manager.None && p.Owner != o.Owner {
		return false
	}
	return true
}
