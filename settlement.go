package pledge

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// ──────────────────────────────────────────────────
// Vault Settlement
// ──────────────────────────────────────────────────

// ConfirmPayment releases a Pending payment: the amount is credited to the
// address recorded at withdrawal, the Paying note's amount moves onto a new
// Paid note and the payment becomes Confirmed. It fails with
// ErrProjectCanceled when the owning project was canceled in the meantime,
// and with ErrSinkFailed when the sink refuses the credit. The Paid note id
// is returned.
func (l *Ledger) ConfirmPayment(ctx context.Context, caller types.Address, paymentID id.PaymentID) (note.ID, error) {
	if err := l.canSettle(caller); err != nil {
		return note.None, err
	}

	var result note.ID
	err := l.exec(ctx, "confirm_payment", func(tx *txn) error {
		p, paying, err := tx.pendingPayment(paymentID)
		if err != nil {
			return err
		}

		owner, err := tx.manager(paying.Owner)
		if err != nil {
			return err
		}
		if owner.Canceled {
			return fmt.Errorf("%w: project %d, payment %s", ErrProjectCanceled, owner.ID, p.ID)
		}

		paid := &note.Note{
			Entity:       types.NewEntity(tx.now),
			Amount:       paying.Amount,
			Owner:        paying.Owner,
			OldNote:      paying.ID,
			PaymentState: note.Paid,
		}
		paying.Amount = types.Zero(paying.Amount.Currency)
		paying.PaymentState = note.Paid
		tx.touchNote(paying)
		tx.addNote(paid)

		p.PaidNote = paid.ID
		if err := tx.settle(p, vault.StateConfirmed); err != nil {
			return err
		}

		// Credit last: after it only the commit can fail.
		if err := l.sink.Credit(ctx, p.Address, p.Amount); err != nil {
			return fmt.Errorf("%w: payment %s: %w", ErrSinkFailed, p.ID, err)
		}

		confirmed := p.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitPaymentConfirmed(ctx, confirmed)
		})

		result = paid.ID
		return nil
	})
	if err != nil {
		return note.None, err
	}
	return result, nil
}

// CancelPayment reverses a Pending payment. The Paying note returns to
// NotPaid under the same project with its amount intact, ready to be
// withdrawn again or moved on. Canceling works even if the project has since
// been canceled.
func (l *Ledger) CancelPayment(ctx context.Context, caller types.Address, paymentID id.PaymentID) error {
	if err := l.canSettle(caller); err != nil {
		return err
	}

	return l.exec(ctx, "cancel_payment", func(tx *txn) error {
		p, paying, err := tx.pendingPayment(paymentID)
		if err != nil {
			return err
		}

		paying.PaymentState = note.NotPaid
		tx.touchNote(paying)

		if err := tx.settle(p, vault.StateCanceled); err != nil {
			return err
		}

		canceled := p.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitPaymentCanceled(ctx, canceled)
		})
		return nil
	})
}

// MultiConfirm confirms payments one after the other. Each confirmation
// stands on its own: a failing id is reported in the returned MultiError and
// the others still go through. The ids that were confirmed are returned in
// order.
func (l *Ledger) MultiConfirm(ctx context.Context, caller types.Address, paymentIDs []id.PaymentID) ([]id.PaymentID, error) {
	var (
		confirmed []id.PaymentID
		errs      MultiError
	)

	for _, paymentID := range paymentIDs {
		if _, err := l.ConfirmPayment(ctx, caller, paymentID); err != nil {
			errs.Add(PaymentError{PaymentID: paymentID, Err: err})
			continue
		}
		confirmed = append(confirmed, paymentID)
	}

	if errs.HasErrors() {
		l.logger.Warn("pledge multi-confirm incomplete",
			"requested", len(paymentIDs),
			"confirmed", len(confirmed),
			"failed", len(errs.Errors),
		)
	}
	return confirmed, errs.ErrOrNil()
}

// pendingPayment loads a Pending payment together with its Paying note.
func (tx *txn) pendingPayment(paymentID id.PaymentID) (*vault.Payment, *note.Note, error) {
	p, err := tx.payment(paymentID)
	if err != nil {
		return nil, nil, err
	}
	if p.State != vault.StatePending {
		return nil, nil, fmt.Errorf("%w: payment %s is %s", ErrInvalidState, p.ID, p.State)
	}

	paying, err := tx.note(p.NoteID)
	if err != nil {
		return nil, nil, err
	}
	if paying.PaymentState != note.Paying {
		return nil, nil, fmt.Errorf("%w: note %d of payment %s is %s", ErrInvalidState, paying.ID, p.ID, paying.PaymentState)
	}
	return p, paying, nil
}

// settle moves p to a final state.
func (tx *txn) settle(p *vault.Payment, to vault.State) error {
	if err := p.Transition(to, tx.now); err != nil {
		if errors.Is(err, vault.ErrInvalidTransition) {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return err
	}
	tx.touchPayment(p)
	return nil
}

// ──────────────────────────────────────────────────
// Payment Queries
// ──────────────────────────────────────────────────

// GetPayment retrieves a vault payment by id.
func (l *Ledger) GetPayment(ctx context.Context, paymentID id.PaymentID) (*vault.Payment, error) {
	return l.store.GetPayment(ctx, paymentID)
}

// ListPayments lists vault payments in the order they were authorized.
func (l *Ledger) ListPayments(ctx context.Context, opts vault.ListOpts) ([]*vault.Payment, error) {
	return l.store.ListPayments(ctx, opts)
}
