package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/vault"
)

// Store is the unified storage interface for all Pledge entities.
//
// Reads are per entity. Every write goes through Commit so that one ledger
// operation lands as one unit.
type Store interface {
	// Manager methods
	GetManager(ctx context.Context, managerID manager.ID) (*manager.Manager, error)
	ListManagers(ctx context.Context, opts manager.ListOpts) ([]*manager.Manager, error)
	CountManagers(ctx context.Context) (uint64, error)

	// Note methods
	GetNote(ctx context.Context, noteID note.ID) (*note.Note, error)
	ListNotes(ctx context.Context, opts note.ListOpts) ([]*note.Note, error)
	CountNotes(ctx context.Context) (uint64, error)

	// Payment methods
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*vault.Payment, error)
	ListPayments(ctx context.Context, opts vault.ListOpts) ([]*vault.Payment, error)

	// Commit applies a changeset. Created managers and notes must carry the
	// ids directly following the current counts, in order.
	Commit(ctx context.Context, cs *Changeset) error

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Errors raised by the store layer itself. The root package re-exports them.
var (
	ErrConflict = errors.New("pledge: changeset conflicts with stored state")
	ErrClosed   = errors.New("pledge: store is closed")
)

// Changeset is the set of writes produced by one ledger operation.
type Changeset struct {
	CreatedManagers []*manager.Manager
	UpdatedManagers []*manager.Manager
	CreatedNotes    []*note.Note
	UpdatedNotes    []*note.Note
	CreatedPayments []*vault.Payment
	UpdatedPayments []*vault.Payment
}

// Empty reports whether the changeset holds no writes.
func (cs *Changeset) Empty() bool {
	return cs == nil || len(cs.CreatedManagers)+len(cs.UpdatedManagers)+
		len(cs.CreatedNotes)+len(cs.UpdatedNotes)+
		len(cs.CreatedPayments)+len(cs.UpdatedPayments) == 0
}

// Len returns the number of records in the changeset.
func (cs *Changeset) Len() int {
	if cs == nil {
		return 0
	}
	return len(cs.CreatedManagers) + len(cs.UpdatedManagers) +
		len(cs.CreatedNotes) + len(cs.UpdatedNotes) +
		len(cs.CreatedPayments) + len(cs.UpdatedPayments)
}

// CreatesPayment reports whether cs creates the payment with the given id.
func (cs *Changeset) CreatesPayment(paymentID id.PaymentID) bool {
	for _, p := range cs.CreatedPayments {
		if p.ID.String() == paymentID.String() {
			return true
		}
	}
	return false
}

// CheckSequence verifies that created managers and notes continue the dense
// id sequences after the given counts.
func (cs *Changeset) CheckSequence(managers, notes uint64) error {
	for i, m := range cs.CreatedManagers {
		if want := manager.ID(managers + uint64(i) + 1); m.ID != want {
			return fmt.Errorf("%w: manager id %d, expected %d", ErrConflict, m.ID, want)
		}
	}
	for i, n := range cs.CreatedNotes {
		if want := note.ID(notes + uint64(i) + 1); n.ID != want {
			return fmt.Errorf("%w: note id %d, expected %d", ErrConflict, n.ID, want)
		}
	}
	return nil
}

// Window applies offset and limit to a slice of n items and returns the
// bounds to keep. A non-positive limit keeps everything after offset.
func Window(n, offset, limit int) (lo, hi int) {
	lo = min(max(offset, 0), n)
	hi = n
	if limit > 0 && lo+limit < n {
		hi = lo + limit
	}
	return lo, hi
}
