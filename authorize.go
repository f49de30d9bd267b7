package pledge

import (
	"fmt"
	"slices"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
)

// Role is the standing a manager has over a note.
type Role int

const (
	// RoleNone means the manager may not move the note.
	RoleNone Role = iota
	// RoleOwner means the manager owns the note.
	RoleOwner
	// RoleDelegate means the manager is in the note's delegation chain.
	RoleDelegate
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleDelegate:
		return "delegate"
	default:
		return "none"
	}
}

// RoleOf resolves the standing of m over an already normalized note. For a
// delegate it also returns the chain position. Ownership wins over a chain
// entry for the same manager.
func RoleOf(n *note.Note, m manager.ID) (Role, int) {
	if n.Owner == m {
		return RoleOwner, -1
	}
	if i := n.DelegateIndex(m); i >= 0 {
		return RoleDelegate, i
	}
	return RoleNone, -1
}

// actingAs checks that caller controls m.
func actingAs(caller types.Address, m *manager.Manager) error {
	if !caller.Is(m.Address) {
		return fmt.Errorf("%w: %q does not act for manager %d", ErrUnauthorized, caller, m.ID)
	}
	return nil
}

// canReview checks that caller is the reviewer of project.
func canReview(caller types.Address, project *manager.Manager) error {
	if !project.IsProject() {
		return fmt.Errorf("%w: manager %d is a %s, not a project", ErrInvalidTarget, project.ID, project.Kind)
	}
	if !caller.Is(project.Reviewer) {
		return fmt.Errorf("%w: %q is not the reviewer of project %d", ErrUnauthorized, caller, project.ID)
	}
	return nil
}

// canWithdraw checks that m may withdraw from n: m must own the note and be
// a live project.
func canWithdraw(m *manager.Manager, n *note.Note) error {
	if n.Owner != m.ID {
		return fmt.Errorf("%w: note %d is owned by manager %d", ErrNotOwner, n.ID, n.Owner)
	}
	if !m.IsProject() {
		return fmt.Errorf("%w: only projects withdraw, manager %d is a %s", ErrNotOwner, m.ID, m.Kind)
	}
	if m.Canceled {
		return fmt.Errorf("%w: project %d", ErrProjectCanceled, m.ID)
	}
	return nil
}

// canSettle checks that caller may confirm or cancel vault payments.
func (l *Ledger) canSettle(caller types.Address) error {
	if len(l.operators) == 0 {
		return nil
	}
	if slices.ContainsFunc(l.operators, caller.Is) {
		return nil
	}
	return fmt.Errorf("%w: %q is not a vault operator", ErrUnauthorized, caller)
}
