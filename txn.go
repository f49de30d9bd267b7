package pledge

import (
	"context"
	"fmt"
	"time"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/vault"
)

// txn stages the reads and writes of one ledger operation. Records are read
// through from the store once and then served from the overlay, so an
// operation always sees its own writes. Nothing reaches the store until the
// changeset is committed.
type txn struct {
	ctx context.Context
	l   *Ledger
	now time.Time

	// counts at the start of the transaction
	baseManagers uint64
	baseNotes    uint64

	managers map[manager.ID]*manager.Manager
	notes    map[note.ID]*note.Note
	payments map[string]*vault.Payment

	createdManagers []*manager.Manager
	createdNotes    []*note.Note
	createdPayments []*vault.Payment

	dirtyManagers []manager.ID
	dirtyNotes    []note.ID
	dirtyPayments []string
	dirty         map[string]bool

	events []func(context.Context)
}

func (l *Ledger) begin(ctx context.Context) (*txn, error) {
	managers, err := l.store.CountManagers(ctx)
	if err != nil {
		return nil, fmt.Errorf("pledge: count managers: %w", err)
	}
	notes, err := l.store.CountNotes(ctx)
	if err != nil {
		return nil, fmt.Errorf("pledge: count notes: %w", err)
	}

	return &txn{
		ctx:          ctx,
		l:            l,
		now:          l.clock.Now().UTC(),
		baseManagers: managers,
		baseNotes:    notes,
		managers:     make(map[manager.ID]*manager.Manager),
		notes:        make(map[note.ID]*note.Note),
		payments:     make(map[string]*vault.Payment),
		dirty:        make(map[string]bool),
	}, nil
}

// manager returns the staged copy of a manager.
func (tx *txn) manager(managerID manager.ID) (*manager.Manager, error) {
	if m, ok := tx.managers[managerID]; ok {
		return m, nil
	}
	if managerID == manager.None {
		return nil, fmt.Errorf("%w: %d", ErrManagerNotFound, managerID)
	}

	m, err := tx.l.store.GetManager(tx.ctx, managerID)
	if err != nil {
		return nil, err
	}
	tx.managers[managerID] = m
	return m, nil
}

// note returns the staged copy of a note, normalized at the transaction
// time. A note whose proposal is finalized here is written back with the
// rest of the changeset.
func (tx *txn) note(noteID note.ID) (*note.Note, error) {
	if n, ok := tx.notes[noteID]; ok {
		return n, nil
	}
	if noteID == note.None {
		return nil, fmt.Errorf("%w: %d", ErrNoteNotFound, noteID)
	}

	n, err := tx.l.store.GetNote(tx.ctx, noteID)
	if err != nil {
		return nil, err
	}
	tx.notes[noteID] = n

	if note.Normalize(n, tx.now) {
		tx.touchNote(n)
		committed := n.Clone()
		tx.emit(func(ctx context.Context) {
			tx.l.plugins.EmitProposalCommitted(ctx, committed)
		})
	}
	return n, nil
}

// payment returns the staged copy of a payment.
func (tx *txn) payment(paymentID id.PaymentID) (*vault.Payment, error) {
	key := paymentID.String()
	if p, ok := tx.payments[key]; ok {
		return p, nil
	}

	p, err := tx.l.store.GetPayment(tx.ctx, paymentID)
	if err != nil {
		return nil, err
	}
	tx.payments[key] = p
	return p, nil
}

// addManager assigns the next manager id to m and stages it.
func (tx *txn) addManager(m *manager.Manager) {
	m.ID = manager.ID(tx.baseManagers + uint64(len(tx.createdManagers)) + 1)
	tx.createdManagers = append(tx.createdManagers, m)
	tx.managers[m.ID] = m
}

// addNote assigns the next note id to n and stages it.
func (tx *txn) addNote(n *note.Note) {
	n.ID = note.ID(tx.baseNotes + uint64(len(tx.createdNotes)) + 1)
	tx.createdNotes = append(tx.createdNotes, n)
	tx.notes[n.ID] = n
}

func (tx *txn) addPayment(p *vault.Payment) {
	key := p.ID.String()
	tx.createdPayments = append(tx.createdPayments, p)
	tx.payments[key] = p
	tx.dirty["p/"+key] = true
}

// touchManager marks a loaded manager as modified.
func (tx *txn) touchManager(m *manager.Manager) {
	m.Touch(tx.now)
	if uint64(m.ID) > tx.baseManagers {
		return
	}
	if key := "m/" + m.ID.String(); !tx.dirty[key] {
		tx.dirty[key] = true
		tx.dirtyManagers = append(tx.dirtyManagers, m.ID)
	}
}

// touchNote marks a loaded note as modified.
func (tx *txn) touchNote(n *note.Note) {
	n.Touch(tx.now)
	if uint64(n.ID) > tx.baseNotes {
		return
	}
	if key := "n/" + n.ID.String(); !tx.dirty[key] {
		tx.dirty[key] = true
		tx.dirtyNotes = append(tx.dirtyNotes, n.ID)
	}
}

// touchPayment marks a loaded payment as modified.
func (tx *txn) touchPayment(p *vault.Payment) {
	key := p.ID.String()
	if !tx.dirty["p/"+key] {
		tx.dirty["p/"+key] = true
		tx.dirtyPayments = append(tx.dirtyPayments, key)
	}
}

// emit queues a plugin notification for delivery after commit.
func (tx *txn) emit(fn func(ctx context.Context)) {
	tx.events = append(tx.events, fn)
}

// emitTransfer queues a transfer notification with snapshots taken now.
func (tx *txn) emitTransfer(caller, target *manager.Manager, source, result *note.Note) {
	ev := &plugin.TransferEvent{
		Caller: caller.ID,
		Target: target.ID,
		Source: source.Clone(),
		Result: result.Clone(),
		Amount: result.Amount,
	}
	tx.emit(func(ctx context.Context) {
		tx.l.plugins.EmitNoteTransferred(ctx, ev)
	})
}

// changeset collects everything the transaction staged.
func (tx *txn) changeset() *store.Changeset {
	cs := &store.Changeset{
		CreatedManagers: tx.createdManagers,
		CreatedNotes:    tx.createdNotes,
		CreatedPayments: tx.createdPayments,
	}
	for _, managerID := range tx.dirtyManagers {
		cs.UpdatedManagers = append(cs.UpdatedManagers, tx.managers[managerID])
	}
	for _, noteID := range tx.dirtyNotes {
		cs.UpdatedNotes = append(cs.UpdatedNotes, tx.notes[noteID])
	}
	for _, key := range tx.dirtyPayments {
		cs.UpdatedPayments = append(cs.UpdatedPayments, tx.payments[key])
	}
	return cs
}
