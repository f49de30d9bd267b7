package vault

import (
	"context"
	"sort"

	"github.com/sasha-s/go-deadlock"

	"github.com/xraph/pledge/types"
)

// Sink receives funds released by a confirmed payment. A Credit error aborts
// the confirmation and leaves the payment Pending.
type Sink interface {
	Credit(ctx context.Context, to types.Address, amount types.Money) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, to types.Address, amount types.Money) error

func (f SinkFunc) Credit(ctx context.Context, to types.Address, amount types.Money) error {
	return f(ctx, to, amount)
}

// Discard is a Sink that accepts every credit and keeps nothing.
var Discard Sink = SinkFunc(func(context.Context, types.Address, types.Money) error { return nil })

// Wallet is an in-memory Sink that accumulates credited balances per
// address.
type Wallet struct {
	mu       deadlock.RWMutex
	currency string
	balances map[types.Address]types.Money
}

func NewWallet(currency string) *Wallet {
	return &Wallet{
		currency: currency,
		balances: make(map[types.Address]types.Money),
	}
}

func (w *Wallet) Credit(_ context.Context, to types.Address, amount types.Money) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	key := to.Canonical()
	bal, ok := w.balances[key]
	if !ok {
		bal = types.Zero(amount.Currency)
	}
	if !bal.SameCurrency(amount) {
		return types.ErrCurrencyMismatch
	}
	w.balances[key] = bal.Add(amount)
	return nil
}

// Balance returns the total credited to addr.
func (w *Wallet) Balance(addr types.Address) types.Money {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if bal, ok := w.balances[addr.Canonical()]; ok {
		return bal
	}
	return types.Zero(w.currency)
}

// Addresses returns every credited address in lexical order.
func (w *Wallet) Addresses() []types.Address {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]types.Address, 0, len(w.balances))
	for a := range w.balances {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
