// Package note defines the unit of pooled funds tracked by the ledger.
//
// A note carries an amount, an owner, a chain of delegates that may move it
// on the owner's behalf and an optional proposed project that takes
// ownership once its commit time has passed. Notes are created by donation
// or by splitting an existing note and are never deleted.
package note

import (
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/types"
)

// ID addresses a note. Ids are dense, start at 1 and are never reused.
type ID uint64

// None is the absent note reference.
const None ID = 0

func (i ID) IsNone() bool { return i == None }

func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// ParseID reads a decimal note id. Zero is rejected.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return None, fmt.Errorf("note: parse id %q: %w", s, err)
	}
	if v == 0 {
		return None, fmt.Errorf("note: parse id %q: zero is not a note", s)
	}
	return ID(v), nil
}

type PaymentState string

const (
	NotPaid PaymentState = "not_paid"
	Paying  PaymentState = "paying"
	Paid    PaymentState = "paid"
)

type Note struct {
	types.Entity
	ID              ID           `json:"id"`
	Amount          types.Money  `json:"amount"`
	Owner           manager.ID   `json:"owner"`
	Delegates       []manager.ID `json:"delegates"`
	ProposedProject manager.ID   `json:"proposed_project"`
	CommitTime      time.Time    `json:"commit_time"`
	OldNote         ID           `json:"old_note"`
	PaymentState    PaymentState `json:"payment_state"`
}

// HasProposal reports whether a project has been proposed and not yet
// committed.
func (n *Note) HasProposal() bool { return n.ProposedProject != manager.None }

// Locked reports whether a pending proposal is still inside its time-lock.
func (n *Note) Locked(now time.Time) bool {
	return n.HasProposal() && now.Before(n.CommitTime)
}

// DelegateIndex returns the position of m in the delegation chain, or -1.
func (n *Note) DelegateIndex(m manager.ID) int {
	return slices.Index(n.Delegates, m)
}

// ClearProposal drops any pending proposal.
func (n *Note) ClearProposal() {
	n.ProposedProject = manager.None
	n.CommitTime = time.Time{}
}

// Normalize finalizes a proposal whose commit time has been reached: the
// proposed project becomes the owner and the chain is cleared. It reports
// whether n changed. Calling it again with the same or a later time is a
// no-op.
func Normalize(n *Note, now time.Time) bool {
	if !n.HasProposal() || now.Before(n.CommitTime) {
		return false
	}
	n.Owner = n.ProposedProject
	n.Delegates = nil
	n.ClearProposal()
	return true
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	c.Delegates = slices.Clone(n.Delegates)
	return &c
}

type ListOpts struct {
	Owner        manager.ID
	PaymentState PaymentState
	Limit        int
	Offset       int
}

// Match reports whether n satisfies the filters in opts.
func (o ListOpts) Match(n *Note) bool {
	if o.Owner != manager.None && n.Owner != o.Owner {
		return false
	}
	if o.PaymentState != "" && n.PaymentState != o.PaymentState {
		return false
	}
	return true
}
