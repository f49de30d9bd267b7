package pledge

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/types"
)

// ──────────────────────────────────────────────────
// Manager Registration
// ──────────────────────────────────────────────────

// AddDonor registers the caller as a donor. commitTime is the time-lock
// applied to proposals the donor's notes receive.
func (l *Ledger) AddDonor(ctx context.Context, caller types.Address, name string, commitTime time.Duration) (manager.ID, error) {
	return l.addManager(ctx, &manager.Manager{
		Kind:       manager.KindDonor,
		Address:    caller,
		Name:       name,
		CommitTime: commitTime,
	})
}

// AddDelegate registers the caller as a delegate.
func (l *Ledger) AddDelegate(ctx context.Context, caller types.Address, name string) (manager.ID, error) {
	return l.addManager(ctx, &manager.Manager{
		Kind:    manager.KindDelegate,
		Address: caller,
		Name:    name,
	})
}

// AddProject registers the caller as the admin of a new project. reviewer is
// the address allowed to cancel it; commitTime is the time-lock a delegate's
// proposal to this project has to wait out.
func (l *Ledger) AddProject(ctx context.Context, caller types.Address, name string, reviewer types.Address, commitTime time.Duration) (manager.ID, error) {
	if reviewer.IsZero() {
		return manager.None, ValidationError{Field: "reviewer", Message: "a project needs a reviewer"}
	}
	return l.addManager(ctx, &manager.Manager{
		Kind:       manager.KindProject,
		Address:    caller,
		Name:       name,
		CommitTime: commitTime,
		Reviewer:   reviewer,
	})
}

func (l *Ledger) addManager(ctx context.Context, m *manager.Manager) (manager.ID, error) {
	if m.Address.IsZero() {
		return manager.None, ValidationError{Field: "address", Message: "caller address is required"}
	}
	if m.CommitTime < 0 {
		return manager.None, ValidationError{Field: "commit_time", Message: "must not be negative"}
	}

	err := l.exec(ctx, "add_"+string(m.Kind), func(tx *txn) error {
		m.Entity = types.NewEntity(tx.now)
		tx.addManager(m)

		added := m.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitManagerAdded(ctx, added)
		})
		return nil
	})
	if err != nil {
		return manager.None, err
	}
	return m.ID, nil
}

// ──────────────────────────────────────────────────
// Project Cancellation
// ──────────────────────────────────────────────────

// CancelProject marks a project canceled. Only the project's reviewer may do
// this and it cannot be undone. Notes are left as they are; withdrawals and
// confirmations check the flag when they run.
func (l *Ledger) CancelProject(ctx context.Context, caller types.Address, projectID manager.ID) error {
	return l.exec(ctx, "cancel_project", func(tx *txn) error {
		project, err := tx.manager(projectID)
		if err != nil {
			return err
		}
		if err := canReview(caller, project); err != nil {
			return err
		}
		if project.Canceled {
			return fmt.Errorf("%w: project %d is already canceled", ErrProjectCanceled, project.ID)
		}

		project.Canceled = true
		tx.touchManager(project)

		canceled := project.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitProjectCanceled(ctx, canceled)
		})
		return nil
	})
}

// ──────────────────────────────────────────────────
// Manager Queries
// ──────────────────────────────────────────────────

// GetManager retrieves a manager by id.
func (l *Ledger) GetManager(ctx context.Context, managerID manager.ID) (*manager.Manager, error) {
	return l.store.GetManager(ctx, managerID)
}

// ListManagers lists managers in id order.
func (l *Ledger) ListManagers(ctx context.Context, opts manager.ListOpts) ([]*manager.Manager, error) {
	return l.store.ListManagers(ctx, opts)
}

// NumberOfManagers returns how many managers have been registered. Manager
// ids run from 1 to this number.
func (l *Ledger) NumberOfManagers(ctx context.Context) (uint64, error) {
	return l.store.CountManagers(ctx)
}
