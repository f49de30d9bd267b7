package pledge

import (
	"context"
	"fmt"
	"slices"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/types"
)

// ──────────────────────────────────────────────────
// Donations
// ──────────────────────────────────────────────────

// Donate pledges amount from a donor. The genesis note is owned by the
// donor; when targetID names another manager the funds move on to it in the
// same operation, following the same rules as Transfer. It returns the note
// that ends up holding the donation.
func (l *Ledger) Donate(ctx context.Context, caller types.Address, donorID, targetID manager.ID, amount types.Money) (note.ID, error) {
	if err := l.checkAmount(amount); err != nil {
		return note.None, err
	}

	var result note.ID
	err := l.exec(ctx, "donate", func(tx *txn) error {
		donor, err := tx.manager(donorID)
		if err != nil {
			return err
		}
		if err := actingAs(caller, donor); err != nil {
			return err
		}
		if !donor.IsDonor() {
			return fmt.Errorf("%w: manager %d is a %s, only donors donate", ErrUnauthorized, donor.ID, donor.Kind)
		}
		target, err := tx.target(targetID)
		if err != nil {
			return err
		}

		genesis := &note.Note{
			Entity:       types.NewEntity(tx.now),
			Amount:       amount,
			Owner:        donor.ID,
			PaymentState: note.NotPaid,
		}
		tx.addNote(genesis)

		donated := genesis.Clone()
		tx.emit(func(ctx context.Context) {
			l.plugins.EmitDonation(ctx, donated)
		})

		result = genesis.ID
		if target.ID == donor.ID {
			return nil
		}

		moved, err := tx.transfer(donor, genesis, amount, target)
		if err != nil {
			return err
		}
		result = moved.ID
		return nil
	})
	if err != nil {
		return note.None, err
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

// Transfer moves amount out of a note on behalf of callerID, which the
// caller address must control. The caller has to own the note or sit in its
// delegation chain. What happens depends on who calls and where the funds go:
//
//   - The owner may return funds to another donor (donor owners only), add a
//     delegate to the chain, or hand the funds to a project outright. An
//     owner's move discards any pending proposal.
//   - A delegate may pass the funds to a further delegate or propose a
//     project, which takes ownership once its commit time has passed.
//     Delegates after the caller in the chain are dropped.
//
// The moved amount always lands on a new note; the source keeps its context
// and shrinks by amount. The new note id is returned.
func (l *Ledger) Transfer(ctx context.Context, caller types.Address, callerID manager.ID, noteID note.ID, amount types.Money, targetID manager.ID) (note.ID, error) {
	if err := l.checkAmount(amount); err != nil {
		return note.None, err
	}

	var result note.ID
	err := l.exec(ctx, "transfer", func(tx *txn) error {
		from, err := tx.manager(callerID)
		if err != nil {
			return err
		}
		if err := actingAs(caller, from); err != nil {
			return err
		}
		src, err := tx.note(noteID)
		if err != nil {
			return err
		}
		target, err := tx.target(targetID)
		if err != nil {
			return err
		}

		moved, err := tx.transfer(from, src, amount, target)
		if err != nil {
			return err
		}
		result = moved.ID
		return nil
	})
	if err != nil {
		return note.None, err
	}
	return result, nil
}

// target loads the manager funds are directed to.
func (tx *txn) target(targetID manager.ID) (*manager.Manager, error) {
	m, err := tx.manager(targetID)
	if IsNotFound(err) {
		return nil, fmt.Errorf("%w: manager %d does not exist", ErrInvalidTarget, targetID)
	}
	return m, err
}

// transfer splits amount off src into a new note whose context follows from
// the standing of from over src and the kind of to.
func (tx *txn) transfer(from *manager.Manager, src *note.Note, amount types.Money, to *manager.Manager) (*note.Note, error) {
	if src.PaymentState != note.NotPaid {
		return nil, fmt.Errorf("%w: note %d is %s", ErrInvalidState, src.ID, src.PaymentState)
	}
	if !amount.SameCurrency(src.Amount) {
		return nil, fmt.Errorf("%w: note %d holds %s", ErrInvalidAmount, src.ID, src.Amount.Currency)
	}
	if amount.GreaterThan(src.Amount) {
		return nil, fmt.Errorf("%w: note %d holds %s, requested %s", ErrInsufficientAmount, src.ID, src.Amount, amount)
	}
	if to.IsCanceledProject() {
		return nil, fmt.Errorf("%w: project %d is canceled", ErrInvalidTarget, to.ID)
	}

	// A canceled owner may still move its notes. Withdrawal and confirmation
	// enforce the cancellation.
	owner, err := tx.manager(src.Owner)
	if err != nil {
		return nil, err
	}

	next := &note.Note{
		Entity:       types.NewEntity(tx.now),
		Amount:       amount,
		Owner:        src.Owner,
		OldNote:      src.ID,
		PaymentState: note.NotPaid,
	}

	switch role, i := RoleOf(src, from.ID); role {
	case RoleOwner:
		err = ownerMove(owner, src, to, next)
	case RoleDelegate:
		err = delegateMove(tx, src, i, to, next)
	default:
		err = fmt.Errorf("%w: manager %d neither owns nor is delegated note %d", ErrUnauthorized, from.ID, src.ID)
	}
	if err != nil {
		return nil, err
	}

	src.Amount = src.Amount.Subtract(amount)
	tx.touchNote(src)
	tx.addNote(next)
	tx.emitTransfer(from, to, src, next)
	return next, nil
}

// ownerMove fills in next for a transfer made by the note's owner.
func ownerMove(owner *manager.Manager, src *note.Note, to *manager.Manager, next *note.Note) error {
	switch to.Kind {
	case manager.KindDonor:
		if !owner.IsDonor() {
			return fmt.Errorf("%w: only a donor may send funds to a donor", ErrUnauthorized)
		}
		if to.ID == owner.ID {
			return fmt.Errorf("%w: note %d already belongs to donor %d", ErrInvalidTarget, src.ID, to.ID)
		}
		next.Owner = to.ID

	case manager.KindDelegate:
		if src.DelegateIndex(to.ID) >= 0 {
			return fmt.Errorf("%w: delegate %d is already in the chain of note %d", ErrInvalidTarget, to.ID, src.ID)
		}
		next.Delegates = append(slices.Clone(src.Delegates), to.ID)

	case manager.KindProject:
		if to.ID == owner.ID {
			return fmt.Errorf("%w: note %d already belongs to project %d", ErrInvalidTarget, src.ID, to.ID)
		}
		next.Owner = to.ID

	default:
		return fmt.Errorf("%w: manager %d has unknown kind %q", ErrInvalidTarget, to.ID, to.Kind)
	}
	return nil
}

// delegateMove fills in next for a transfer made by the delegate at
// position i of the chain of src.
func delegateMove(tx *txn, src *note.Note, i int, to *manager.Manager, next *note.Note) error {
	chain := slices.Clone(src.Delegates[:i+1])

	switch to.Kind {
	case manager.KindDonor:
		return fmt.Errorf("%w: a delegate may not send funds to a donor", ErrUnauthorized)

	case manager.KindDelegate:
		if slices.Contains(chain, to.ID) {
			return fmt.Errorf("%w: delegate %d is already in the chain of note %d", ErrInvalidTarget, to.ID, src.ID)
		}
		next.Delegates = append(chain, to.ID)

	case manager.KindProject:
		if to.ID == src.Owner {
			return fmt.Errorf("%w: note %d already belongs to project %d", ErrInvalidTarget, src.ID, to.ID)
		}
		next.Delegates = chain
		next.ProposedProject = to.ID
		next.CommitTime = tx.now.Add(to.CommitTime)

	default:
		return fmt.Errorf("%w: manager %d has unknown kind %q", ErrInvalidTarget, to.ID, to.Kind)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Note Queries
// ──────────────────────────────────────────────────

// GetNote retrieves a note as it stands now: a proposal whose commit time
// has passed is shown as committed even if no operation has persisted that
// yet.
func (l *Ledger) GetNote(ctx context.Context, noteID note.ID) (*note.Note, error) {
	n, err := l.store.GetNote(ctx, noteID)
	if err != nil {
		return nil, err
	}
	note.Normalize(n, l.clock.Now().UTC())
	return n, nil
}

// ListNotes lists notes in id order. Filters apply to the notes as they
// stand now, like GetNote.
func (l *Ledger) ListNotes(ctx context.Context, opts note.ListOpts) ([]*note.Note, error) {
	all, err := l.store.ListNotes(ctx, note.ListOpts{PaymentState: opts.PaymentState})
	if err != nil {
		return nil, err
	}

	now := l.clock.Now().UTC()
	out := all[:0]
	for _, n := range all {
		note.Normalize(n, now)
		if opts.Match(n) {
			out = append(out, n)
		}
	}

	lo, hi := store.Window(len(out), opts.Offset, opts.Limit)
	return out[lo:hi], nil
}

// NumberOfNotes returns how many notes exist. Note ids run from 1 to this
// number.
func (l *Ledger) NumberOfNotes(ctx context.Context) (uint64, error) {
	return l.store.CountNotes(ctx)
}

// Lineage returns the note followed by the notes it was split from, nearest
// first. It is bookkeeping only; ownership never derives from ancestors.
func (l *Ledger) Lineage(ctx context.Context, noteID note.ID) ([]*note.Note, error) {
	now := l.clock.Now().UTC()

	var out []*note.Note
	for cur := noteID; cur != note.None; {
		n, err := l.store.GetNote(ctx, cur)
		if err != nil {
			return nil, err
		}
		note.Normalize(n, now)
		out = append(out, n)

		if n.OldNote >= cur {
			return nil, fmt.Errorf("pledge: note %d links forward to %d", cur, n.OldNote)
		}
		cur = n.OldNote
	}
	return out, nil
}
