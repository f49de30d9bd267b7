package pledge

import (
	"context"
	"time"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// State is a full dump of the ledger at one instant.
type State struct {
	At       time.Time          `json:"at"`
	Currency string             `json:"currency"`
	Managers []*manager.Manager `json:"managers"`
	Notes    []*note.Note       `json:"notes"`
	Payments []*vault.Payment   `json:"payments"`
}

// Total returns the sum of all note amounts in the given payment state.
func (s *State) Total(state note.PaymentState) types.Money {
	total := types.Zero(s.Currency)
	for _, n := range s.Notes {
		if n.PaymentState == state {
			total = total.Add(n.Amount)
		}
	}
	return total
}

// State dumps every manager, note and payment. Notes are shown as they
// stand now, like GetNote. The dump is taken under the ledger lock so it
// never reflects half an operation.
func (l *Ledger) State(ctx context.Context) (*State, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now().UTC()
	st := &State{At: now, Currency: l.currency}

	var err error
	if st.Managers, err = l.store.ListManagers(ctx, manager.ListOpts{}); err != nil {
		return nil, err
	}
	if st.Notes, err = l.store.ListNotes(ctx, note.ListOpts{}); err != nil {
		return nil, err
	}
	for _, n := range st.Notes {
		note.Normalize(n, now)
	}
	if st.Payments, err = l.store.ListPayments(ctx, vault.ListOpts{}); err != nil {
		return nil, err
	}
	return st, nil
}
