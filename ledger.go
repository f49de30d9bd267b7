package pledge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"github.com/sasha-s/go-deadlock"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// DefaultCurrency is the asset a ledger accounts in unless WithCurrency says
// otherwise. Amounts are kept in wei.
const DefaultCurrency = "eth"

// Ledger is the fund-accounting engine.
//
// Every mutating operation runs alone: it stages its reads and writes on a
// transaction, commits them to the store as one changeset and only then
// notifies plugins. A failed operation leaves no trace.
type Ledger struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   clock.Clock
	sink    vault.Sink

	mu deadlock.Mutex

	// Configuration
	currency  string
	operators []types.Address
}

// New creates a new Ledger instance.
func New(s store.Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:    s,
		plugins:  plugin.NewRegistry(),
		logger:   slog.Default(),
		clock:    clock.New(),
		sink:     vault.Discard,
		currency: DefaultCurrency,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// Option configures a Ledger instance.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
		l.plugins.WithLogger(logger)
	}
}

// WithClock sets the time source used for commit times and timestamps.
func WithClock(c clock.Clock) Option {
	return func(l *Ledger) {
		l.clock = c
	}
}

// WithSink sets where confirmed payments are credited.
func WithSink(s vault.Sink) Option {
	return func(l *Ledger) {
		l.sink = s
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(l *Ledger) {
		_ = l.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithVaultOperators restricts payment confirmation and cancellation to the
// given addresses. Without operators any caller may settle.
func WithVaultOperators(addrs ...types.Address) Option {
	return func(l *Ledger) {
		l.operators = append(l.operators, addrs...)
	}
}

// WithCurrency sets the asset code every amount must be expressed in.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		l.currency = types.Zero(currency).Currency
	}
}

// Currency returns the asset code of the ledger.
func (l *Ledger) Currency() string { return l.currency }

// Clock returns the time source of the ledger.
func (l *Ledger) Clock() clock.Clock { return l.clock }

// Plugins returns the plugin registry.
func (l *Ledger) Plugins() *plugin.Registry { return l.plugins }

// Start migrates the store and initializes plugins.
func (l *Ledger) Start(ctx context.Context) error {
	if err := l.store.Migrate(ctx); err != nil {
		return fmt.Errorf("pledge: migrate: %w", err)
	}

	l.plugins.EmitInit(ctx, l)

	l.logger.Info("pledge ledger started",
		"currency", l.currency,
		"plugins", l.plugins.Count(),
		"vault_operators", len(l.operators),
	)

	return nil
}

// Stop shuts down plugins and closes the store.
func (l *Ledger) Stop() error {
	l.plugins.EmitShutdown(context.Background())

	// Wait for the operation in flight, if any.
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Info("pledge ledger stopped")

	return l.store.Close()
}

// exec runs fn on a fresh transaction while holding the ledger lock, commits
// what it staged and then delivers the staged plugin events.
func (l *Ledger) exec(ctx context.Context, op string, fn func(tx *txn) error) error {
	events, err := l.execLocked(ctx, op, fn)
	if err != nil {
		return err
	}

	// Plugins may call back into the ledger, so the lock is released first.
	for _, emit := range events {
		emit(ctx)
	}
	return nil
}

func (l *Ledger) execLocked(ctx context.Context, op string, fn func(tx *txn) error) ([]func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.begin(ctx)
	if err != nil {
		return nil, err
	}

	if err := fn(tx); err != nil {
		l.logger.Debug("pledge operation aborted",
			"op", op,
			"error", err,
		)
		return nil, err
	}

	cs := tx.changeset()
	opID := id.NewOperationID()
	if err := l.store.Commit(ctx, cs); err != nil {
		l.logger.Error("pledge commit failed",
			"op", op,
			"op_id", opID,
			"records", cs.Len(),
			"error", err,
		)
		return nil, fmt.Errorf("pledge: %s: commit: %w", op, err)
	}

	l.logger.Debug("pledge operation committed",
		"op", op,
		"op_id", opID,
		"managers", len(cs.CreatedManagers)+len(cs.UpdatedManagers),
		"notes", len(cs.CreatedNotes)+len(cs.UpdatedNotes),
		"payments", len(cs.CreatedPayments)+len(cs.UpdatedPayments),
	)

	return tx.events, nil
}

// checkAmount validates an amount supplied by a caller.
func (l *Ledger) checkAmount(amount types.Money) error {
	if amount.Currency != l.currency {
		return fmt.Errorf("%w: got %s, ledger accounts in %s", ErrInvalidAmount, amount.Currency, l.currency)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s is not positive", ErrInvalidAmount, amount)
	}
	return nil
}
