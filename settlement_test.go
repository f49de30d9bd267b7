package pledge_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// funded registers a donor and a project and gives the project 1 ETH.
func funded(t *testing.T, opts ...pledge.Option) (*fixture, manager.ID, note.ID) {
	f := newFixture(t, opts...)
	d := f.donor(donor1, "Donor1")
	p := f.project(adminProject1, "Project1")
	n := f.donate(donor1, d, p, "1")
	return f, p, n
}

func TestWithdrawRules(t *testing.T) {
	f, p, n := funded(t)
	g := f.delegate(delegate1, "Delegate1")
	other := f.project(adminProject2, "Project2")
	donated := f.donate(donor1, 1, 1, "1")

	tests := []struct {
		name    string
		caller  types.Address
		project manager.ID
		note    note.ID
		amount  string
		wantErr error
	}{
		{"WrongAddress", stranger, p, n, "0.1", pledge.ErrUnauthorized},
		{"NotTheOwner", adminProject2, other, n, "0.1", pledge.ErrNotOwner},
		{"DonorCannotWithdraw", donor1, 1, donated, "0.1", pledge.ErrNotOwner},
		{"DelegateCannotWithdraw", delegate1, g, n, "0.1", pledge.ErrNotOwner},
		{"TooMuch", adminProject1, p, n, "1.5", pledge.ErrInsufficientAmount},
		{"UnknownNote", adminProject1, p, 99, "0.1", pledge.ErrNoteNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.Withdraw(f.ctx, tt.caller, tt.project, tt.note, eth(tt.amount))
			require.ErrorIs(t, err, tt.wantErr)

			payments, err := f.l.ListPayments(f.ctx, vault.ListOpts{})
			require.NoError(t, err)
			assert.Empty(t, payments)
		})
	}
}

func TestWithdrawFullAmount(t *testing.T) {
	f, p, n := funded(t)

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("1"))
	require.NoError(t, err)
	assert.True(t, f.note(n).Amount.IsZero())
	assert.Equal(t, eth("1"), f.note(res.Paying).Amount)

	// A Paying note cannot be moved or withdrawn again.
	_, err = f.l.Withdraw(f.ctx, adminProject1, p, res.Paying, eth("0.5"))
	require.ErrorIs(t, err, pledge.ErrInvalidState)
	g := f.delegate(delegate1, "Delegate1")
	_, err = f.l.Transfer(f.ctx, adminProject1, p, res.Paying, eth("0.5"), g)
	require.ErrorIs(t, err, pledge.ErrInvalidState)
}

func TestPaymentStateIsMonotonic(t *testing.T) {
	f, p, n := funded(t)

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.4"))
	require.NoError(t, err)
	assert.Equal(t, note.Paying, f.note(res.Paying).PaymentState)

	paid, err := f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.NoError(t, err)

	paying := f.note(res.Paying)
	assert.Equal(t, note.Paid, paying.PaymentState)
	assert.True(t, paying.Amount.IsZero())
	assert.Equal(t, note.Paid, f.note(paid).PaymentState)

	// Paid is final.
	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.ErrorIs(t, err, pledge.ErrInvalidState)
	err = f.l.CancelPayment(f.ctx, operator, res.Payment)
	require.ErrorIs(t, err, pledge.ErrInvalidState)
	_, err = f.l.Transfer(f.ctx, adminProject1, p, paid, eth("0.1"), p)
	require.ErrorIs(t, err, pledge.ErrInvalidState)

	pay, err := f.l.GetPayment(f.ctx, res.Payment)
	require.NoError(t, err)
	assert.Equal(t, vault.StateConfirmed, pay.State)
	assert.Equal(t, paid, pay.PaidNote)
	require.NotNil(t, pay.SettledAt)
	assert.Equal(t, f.clock.Now().UTC(), *pay.SettledAt)

	assert.Equal(t, eth("1"), f.total())
	assert.Equal(t, eth("0.4"), f.wallet.Balance(adminProject1))
}

func TestCancelPaymentRestoresNote(t *testing.T) {
	f, p, n := funded(t)

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.25"))
	require.NoError(t, err)
	require.NoError(t, f.l.CancelPayment(f.ctx, operator, res.Payment))

	got := f.note(res.Paying)
	assert.Equal(t, note.NotPaid, got.PaymentState)
	assert.Equal(t, p, got.Owner)
	assert.Equal(t, eth("0.25"), got.Amount)

	pay, err := f.l.GetPayment(f.ctx, res.Payment)
	require.NoError(t, err)
	assert.Equal(t, vault.StateCanceled, pay.State)

	// The funds can be withdrawn again.
	again, err := f.l.Withdraw(f.ctx, adminProject1, p, res.Paying, eth("0.25"))
	require.NoError(t, err)
	_, err = f.l.ConfirmPayment(f.ctx, operator, again.Payment)
	require.NoError(t, err)
	assert.Equal(t, eth("0.25"), f.wallet.Balance(adminProject1))

	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.ErrorIs(t, err, pledge.ErrInvalidState)
}

func TestLargeAmountsSettle(t *testing.T) {
	f := newFixture(t)
	d := f.donor(donor1, "Donor1")
	p := f.project(adminProject1, "Project1")

	var payments []id.PaymentID
	for range 2 {
		n := f.donate(donor1, d, p, "9")
		res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("9"))
		require.NoError(t, err)
		payments = append(payments, res.Payment)
	}

	confirmed, err := f.l.MultiConfirm(f.ctx, operator, payments)
	require.NoError(t, err)
	assert.Equal(t, payments, confirmed)

	assert.Equal(t, eth("18"), f.wallet.Balance(adminProject1))
	assert.Equal(t, eth("18"), f.total())
	st, err := f.l.State(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("18"), st.Total(note.Paid))
	assert.True(t, st.Total(note.NotPaid).IsZero())
}

func TestCancellationLock(t *testing.T) {
	f, p, n := funded(t)

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.3"))
	require.NoError(t, err)

	err = f.l.CancelProject(f.ctx, stranger, p)
	require.ErrorIs(t, err, pledge.ErrUnauthorized)
	err = f.l.CancelProject(f.ctx, adminProject1, p)
	require.ErrorIs(t, err, pledge.ErrUnauthorized)

	require.NoError(t, f.l.CancelProject(f.ctx, reviewer, p))
	err = f.l.CancelProject(f.ctx, reviewer, p)
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)

	// The authorization predates the cancellation and still cannot be
	// confirmed.
	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)
	assert.True(t, f.wallet.Balance(adminProject1).IsZero())

	_, err = f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.1"))
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)

	require.NoError(t, f.l.CancelPayment(f.ctx, operator, res.Payment))
	got := f.note(res.Paying)
	assert.Equal(t, note.NotPaid, got.PaymentState)
	assert.Equal(t, p, got.Owner)
}

func TestCanceledProjectRedelegates(t *testing.T) {
	tests := []struct {
		name    string
		caller  types.Address
		target  func(f *fixture) manager.ID
		amount  string
		wantErr error
	}{
		{"ToDelegate", adminProject1, func(f *fixture) manager.ID { return f.delegate(delegate1, "Delegate1") }, "0.3", nil},
		{"ToLiveProject", adminProject1, func(f *fixture) manager.ID { return f.project(adminProject2, "Project2") }, "0.1", nil},
		{"NotTheAdmin", stranger, func(f *fixture) manager.ID { return f.delegate(delegate1, "Delegate1") }, "0.1", pledge.ErrUnauthorized},
		{"TooMuch", adminProject1, func(f *fixture) manager.ID { return f.delegate(delegate1, "Delegate1") }, "0.5", pledge.ErrInsufficientAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, p, n := funded(t)
			res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.3"))
			require.NoError(t, err)
			require.NoError(t, f.l.CancelProject(f.ctx, reviewer, p))
			require.NoError(t, f.l.CancelPayment(f.ctx, operator, res.Payment))
			target := tt.target(f)

			moved, err := f.l.Transfer(f.ctx, tt.caller, p, res.Paying, eth(tt.amount), target)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, eth("0.3"), f.note(res.Paying).Amount)
				return
			}
			require.NoError(t, err)

			assert.Equal(t, eth("0.3").Subtract(eth(tt.amount)), f.note(res.Paying).Amount)
			assert.Equal(t, eth(tt.amount), f.note(moved).Amount)
			assert.Equal(t, eth("1"), f.total())

			// The canceled project still cannot take the funds out.
			_, err = f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.1"))
			require.ErrorIs(t, err, pledge.ErrProjectCanceled)
		})
	}
}

func TestCancelProjectRequiresProject(t *testing.T) {
	f := newFixture(t)
	d := f.donor(donor1, "Donor1")

	err := f.l.CancelProject(f.ctx, reviewer, d)
	require.ErrorIs(t, err, pledge.ErrInvalidTarget)

	err = f.l.CancelProject(f.ctx, reviewer, 42)
	require.ErrorIs(t, err, pledge.ErrManagerNotFound)
}

func TestVaultOperators(t *testing.T) {
	f, p, n := funded(t, pledge.WithVaultOperators(operator))

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.5"))
	require.NoError(t, err)

	_, err = f.l.ConfirmPayment(f.ctx, adminProject1, res.Payment)
	require.ErrorIs(t, err, pledge.ErrUnauthorized)
	assert.True(t, pledge.IsAuthorizationError(err))
	err = f.l.CancelPayment(f.ctx, stranger, res.Payment)
	require.ErrorIs(t, err, pledge.ErrUnauthorized)

	// Operator addresses compare case-insensitively.
	_, err = f.l.ConfirmPayment(f.ctx, "0X0PE4A704", res.Payment)
	require.NoError(t, err)
}

func TestSinkFailureAbortsConfirmation(t *testing.T) {
	refuse := true
	sink := vault.SinkFunc(func(context.Context, types.Address, types.Money) error {
		if refuse {
			return errors.New("node unreachable")
		}
		return nil
	})
	f, p, n := funded(t, pledge.WithSink(sink))

	res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.5"))
	require.NoError(t, err)
	_, notes := f.counts()

	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.ErrorIs(t, err, pledge.ErrSinkFailed)
	assert.True(t, pledge.IsRetryable(err))

	pay, err := f.l.GetPayment(f.ctx, res.Payment)
	require.NoError(t, err)
	assert.Equal(t, vault.StatePending, pay.State)
	assert.Equal(t, note.Paying, f.note(res.Paying).PaymentState)
	assert.Equal(t, eth("0.5"), f.note(res.Paying).Amount)
	_, after := f.counts()
	assert.Equal(t, notes, after)

	refuse = false
	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.NoError(t, err)
}

func TestMultiConfirm(t *testing.T) {
	f, p, n := funded(t)

	var payments []id.PaymentID
	for range 3 {
		res, err := f.l.Withdraw(f.ctx, adminProject1, p, n, eth("0.1"))
		require.NoError(t, err)
		payments = append(payments, res.Payment)
	}
	require.NoError(t, f.l.CancelPayment(f.ctx, operator, payments[1]))
	unknown := id.NewPaymentID()

	confirmed, err := f.l.MultiConfirm(f.ctx, operator, []id.PaymentID{payments[0], payments[1], unknown, payments[2]})
	assert.Equal(t, []id.PaymentID{payments[0], payments[2]}, confirmed)

	var merr pledge.MultiError
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
	require.ErrorIs(t, merr.Errors[0], pledge.ErrInvalidState)
	require.ErrorIs(t, merr.Errors[1], pledge.ErrPaymentNotFound)

	assert.Equal(t, eth("0.2"), f.wallet.Balance(adminProject1))

	confirmed, err = f.l.MultiConfirm(f.ctx, operator, nil)
	require.NoError(t, err)
	assert.Empty(t, confirmed)

	pending, err := f.l.ListPayments(f.ctx, vault.ListOpts{State: vault.StatePending})
	require.NoError(t, err)
	assert.Empty(t, pending)
	all, err := f.l.ListPayments(f.ctx, vault.ListOpts{Owner: p})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// eventLog records plugin notifications.
type eventLog struct {
	mu     sync.Mutex
	events []string
	l      *pledge.Ledger
}

func (e *eventLog) Name() string { return "event-log" }

func (e *eventLog) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, s)
}

func (e *eventLog) OnInit(_ context.Context, l any) error {
	e.l = l.(*pledge.Ledger)
	return nil
}

func (e *eventLog) OnManagerAdded(_ context.Context, m *manager.Manager) error {
	e.add("manager " + m.Name)
	return nil
}

func (e *eventLog) OnDonation(_ context.Context, n *note.Note) error {
	e.add("donation " + n.Amount.String())
	return nil
}

func (e *eventLog) OnNoteTransferred(_ context.Context, ev *plugin.TransferEvent) error {
	e.add("transfer " + ev.Amount.String() + " to " + ev.Target.String())
	return nil
}

func (e *eventLog) OnProposalCommitted(_ context.Context, n *note.Note) error {
	e.add("committed " + n.ID.String())
	return nil
}

func (e *eventLog) OnPaymentAuthorized(ctx context.Context, p *vault.Payment) error {
	// Hooks run outside the ledger lock and may read the ledger.
	pay, err := e.l.GetPayment(ctx, p.ID)
	if err != nil {
		return err
	}
	e.add("authorized " + string(pay.State))
	return nil
}

func (e *eventLog) OnPaymentConfirmed(_ context.Context, p *vault.Payment) error {
	e.add("confirmed " + p.Amount.String())
	return nil
}

func (e *eventLog) OnProjectCanceled(_ context.Context, m *manager.Manager) error {
	e.add("canceled " + m.Name)
	return nil
}

func TestPluginEvents(t *testing.T) {
	log := &eventLog{}
	f := newFixture(t, pledge.WithPlugin(log))

	d := f.donor(donor1, "Donor1")
	g := f.delegate(delegate1, "Delegate1")
	p := f.project(adminProject1, "Project1")
	n := f.donate(donor1, d, g, "1")
	proposed := f.transfer(delegate1, g, n, "0.5", p)

	// Failed operations notify nobody.
	_, err := f.l.Transfer(f.ctx, stranger, g, n, eth("0.1"), p)
	require.Error(t, err)

	f.clock.Add(day)
	res, err := f.l.Withdraw(f.ctx, adminProject1, p, proposed, eth("0.5"))
	require.NoError(t, err)
	_, err = f.l.ConfirmPayment(f.ctx, operator, res.Payment)
	require.NoError(t, err)
	require.NoError(t, f.l.CancelProject(f.ctx, reviewer, p))

	assert.Equal(t, []string{
		"manager Donor1",
		"manager Delegate1",
		"manager Project1",
		"donation 1.00 ETH",
		"transfer 1.00 ETH to 2",
		"transfer 0.50 ETH to 3",
		"committed 3",
		"authorized pending",
		"confirmed 0.50 ETH",
		"canceled Project1",
	}, log.events)
}
