package pledge

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// WithdrawResult identifies what a withdrawal produced.
type WithdrawResult struct {
	// Retained is the source note, holding whatever was not withdrawn.
	Retained note.ID `json:"retained"`
	// Paying is the new note that carries the withdrawn amount.
	Paying note.ID `json:"paying"`
	// Payment is the Pending vault authorization for the Paying note.
	Payment id.PaymentID `json:"payment"`
}

// Withdraw asks the vault to release amount from a note owned by the
// calling project. The amount is split onto a Paying note and a Pending
// payment is registered for it; funds leave only when the payment is
// confirmed.
func (l *Ledger) Withdraw(ctx context.Context, caller types.Address, callerID manager.ID, noteID note.ID, amount types.Money) (WithdrawResult, error) {
	if err := l.checkAmount(amount); err != nil {
		return WithdrawResult{}, err
	}

	var res WithdrawResult
	err := l.exec(ctx, "withdraw", func(tx *txn) error {
		project, err := tx.manager(callerID)
		if err != nil {
			return err
		}
		if err := actingAs(caller, project); err != nil {
			return err
		}
		src, err := tx.note(noteID)
		if err != nil {
			return err
		}
		// A project waiting on its own proposal is told to wait, not that it
		// does not own the note.
		locked := src.Locked(tx.now)
		if locked && src.ProposedProject == project.ID {
			return fmt.Errorf("%w: note %d until %s", ErrTimeLocked, src.ID, src.CommitTime.Format(time.RFC3339))
		}
		if err := canWithdraw(project, src); err != nil {
			return err
		}
		if locked {
			return fmt.Errorf("%w: note %d until %s", ErrTimeLocked, src.ID, src.CommitTime.Format(time.RFC3339))
		}
		if src.PaymentState != note.NotPaid {
			return fmt.Errorf("%w: note %d is %s", ErrInvalidState, src.ID, src.PaymentState)
		}
		if !amount.SameCurrency(src.Amount) {
			return fmt.Errorf("%w: note %d holds %s", ErrInvalidAmount, src.ID, src.Amount.Currency)
		}
		if amount.GreaterThan(src.Amount) {
			return fmt.Errorf("%w: note %d holds %s, requested %s", ErrInsufficientAmount, src.ID, src.Amount, amount)
		}

		paying := &note.Note{
			Entity:       types.NewEntity(tx.now),
			Amount:       amount,
			Owner:        project.ID,
			OldNote:      src.ID,
			PaymentState: note.Paying,
		}
		src.Amount = src.Amount.Subtract(amount)
		tx.touchNote(src)
		tx.addNote(paying)

		payment := &vault.Payment{
			Entity:  types.NewEntity(tx.now),
			ID:      id.NewPaymentID(),
			NoteID:  paying.ID,
			Owner:   project.ID,
			Address: project.Address,
			Amount:  amount,
			State:   vault.StatePending,
		}
		tx.addPayment(payment)

		authorized := payment.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitPaymentAuthorized(ctx, authorized)
		})

		res = WithdrawResult{
			Retained: src.ID,
			Paying:   paying.ID,
			Payment:  payment.ID,
		}
		return nil
	})
	if err != nil {
		return WithdrawResult{}, err
	}
	return res, nil
}
