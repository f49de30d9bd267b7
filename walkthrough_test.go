package pledge_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/vault"
)

// TestNormalOperation follows funds from one donation through delegation,
// proposals, a donor override, withdrawals, project cancellation and batch
// settlement, checking the ledger after every step.
func TestNormalOperation(t *testing.T) {
	f := newFixture(t, pledge.WithVaultOperators(operator))
	ctx := f.ctx

	// Donor1 donates 1 ETH to itself.
	d1 := f.donor(donor1, "Donor1")
	n1 := f.donate(donor1, d1, d1, "1")
	require.Equal(t, note.ID(1), n1)
	assert.Equal(t, eth("1"), f.note(n1).Amount)
	assert.Equal(t, d1, f.note(n1).Owner)

	// Donor1 delegates half to Delegate1.
	g1 := f.delegate(delegate1, "Delegate1")
	n2 := f.transfer(donor1, d1, n1, "0.5", g1)
	require.Equal(t, note.ID(2), n2)
	assert.Equal(t, eth("0.5"), f.note(n1).Amount)
	got := f.note(n2)
	assert.Equal(t, eth("0.5"), got.Amount)
	assert.Equal(t, d1, got.Owner)
	assert.Equal(t, []manager.ID{g1}, got.Delegates)
	assert.Equal(t, n1, got.OldNote)

	// Two projects.
	p1 := f.project(adminProject1, "Project1")
	p2 := f.project(adminProject2, "Project2")
	require.Equal(t, manager.ID(3), p1)
	require.Equal(t, manager.ID(4), p2)

	// Delegate1 proposes 0.2 to Project1.
	n3 := f.transfer(delegate1, g1, n2, "0.2", p1)
	require.Equal(t, note.ID(3), n3)
	got = f.note(n3)
	assert.Equal(t, eth("0.2"), got.Amount)
	assert.Equal(t, d1, got.Owner)
	assert.Equal(t, []manager.ID{g1}, got.Delegates)
	assert.Equal(t, p1, got.ProposedProject)
	assert.Equal(t, f.clock.Now().UTC().Add(day), got.CommitTime)
	assert.Equal(t, note.NotPaid, got.PaymentState)
	assert.Equal(t, eth("0.3"), f.note(n2).Amount)

	// Donor1 changes its mind about half of it and sends it to Project2.
	n4 := f.transfer(donor1, d1, n3, "0.1", p2)
	require.Equal(t, note.ID(4), n4)
	assert.Equal(t, eth("0.1"), f.note(n3).Amount)
	got = f.note(n4)
	assert.Equal(t, p2, got.Owner)
	assert.Empty(t, got.Delegates)
	assert.False(t, got.HasProposal())
	assert.True(t, got.CommitTime.IsZero())
	assert.Equal(t, n3, got.OldNote)

	// Project1 cannot spend before the commit time.
	_, err := f.l.Withdraw(ctx, adminProject1, p1, n3, eth("0.05"))
	require.ErrorIs(t, err, pledge.ErrTimeLocked)

	// After the commit time Project1 spends part of it.
	f.clock.Add(day + time.Second)
	res, err := f.l.Withdraw(ctx, adminProject1, p1, n3, eth("0.05"))
	require.NoError(t, err)
	assert.Equal(t, n3, res.Retained)
	assert.Equal(t, note.ID(5), res.Paying)

	got = f.note(n3)
	assert.Equal(t, eth("0.05"), got.Amount)
	assert.Equal(t, p1, got.Owner)
	assert.Empty(t, got.Delegates)
	assert.False(t, got.HasProposal())
	assert.Equal(t, note.NotPaid, got.PaymentState)

	got = f.note(res.Paying)
	assert.Equal(t, eth("0.05"), got.Amount)
	assert.Equal(t, p1, got.Owner)
	assert.Equal(t, n3, got.OldNote)
	assert.Equal(t, note.Paying, got.PaymentState)

	pay1 := res.Payment
	pay, err := f.l.GetPayment(ctx, pay1)
	require.NoError(t, err)
	assert.Equal(t, vault.StatePending, pay.State)
	assert.Equal(t, adminProject1, pay.Address)

	// The vault releases the Ether.
	paid, err := f.l.ConfirmPayment(ctx, operator, pay1)
	require.NoError(t, err)
	assert.Equal(t, note.ID(6), paid)
	assert.Equal(t, eth("0.05"), f.wallet.Balance(adminProject1))

	got = f.note(paid)
	assert.Equal(t, eth("0.05"), got.Amount)
	assert.Equal(t, p1, got.Owner)
	assert.Equal(t, res.Paying, got.OldNote)
	assert.Equal(t, note.Paid, got.PaymentState)

	// The reviewer cancels Project1.
	require.NoError(t, f.l.CancelProject(ctx, reviewer, p1))
	assert.True(t, f.manager(p1).Canceled)

	// A canceled project cannot withdraw. Delegate1 lost its standing over
	// n3 when the proposal was accepted.
	_, err = f.l.Withdraw(ctx, adminProject1, p1, n3, eth("0.01"))
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)
	_, err = f.l.Transfer(ctx, delegate1, g1, n3, eth("0.01"), p2)
	require.ErrorIs(t, err, pledge.ErrUnauthorized)

	// Delegate1 proposes part of what it still holds to Project2, and Donor1
	// overrides the proposal by sending it there outright.
	n7 := f.transfer(delegate1, g1, n2, "0.03", p2)
	got = f.note(n7)
	assert.Equal(t, d1, got.Owner)
	assert.Equal(t, []manager.ID{g1}, got.Delegates)
	assert.Equal(t, p2, got.ProposedProject)

	n8 := f.transfer(donor1, d1, n7, "0.03", p2)
	assert.True(t, f.note(n7).Amount.IsZero())
	got = f.note(n8)
	assert.Equal(t, p2, got.Owner)
	assert.False(t, got.HasProposal())

	// A sub-project and a second delegate.
	p3 := f.project(adminProject3, "Project2a")
	g2 := f.delegate(delegate2, "Delegate2")
	managers, _ := f.counts()
	assert.Equal(t, uint64(6), managers)

	// Project2 delegates part of its funds to Delegate2, who proposes
	// Project2a.
	n9 := f.transfer(adminProject2, p2, n4, "0.02", g2)
	assert.Equal(t, eth("0.08"), f.note(n4).Amount)
	got = f.note(n9)
	assert.Equal(t, p2, got.Owner)
	assert.Equal(t, []manager.ID{g2}, got.Delegates)

	n10 := f.transfer(delegate2, g2, n9, "0.01", p3)
	assert.Equal(t, eth("0.01"), f.note(n9).Amount)
	assert.Equal(t, eth("0.01"), f.note(n10).Amount)

	// Project2a withdraws after its commit time.
	f.clock.Add(3 * day)
	res2, err := f.l.Withdraw(ctx, adminProject3, p3, n10, eth("0.005"))
	require.NoError(t, err)
	assert.Equal(t, eth("0.005"), f.note(n10).Amount)
	assert.Equal(t, p3, f.note(n10).Owner)
	assert.Equal(t, eth("0.005"), f.note(res2.Paying).Amount)

	// Project2 withdraws what Donor1 sent it.
	res3, err := f.l.Withdraw(ctx, adminProject2, p2, n8, eth("0.03"))
	require.NoError(t, err)
	assert.True(t, f.note(n8).Amount.IsZero())

	// Project2a is canceled before its payment is confirmed.
	require.NoError(t, f.l.CancelProject(ctx, reviewer, p3))
	_, err = f.l.ConfirmPayment(ctx, operator, res2.Payment)
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)
	assert.Equal(t, note.Paying, f.note(res2.Paying).PaymentState)

	_, err = f.l.Withdraw(ctx, adminProject3, p3, n10, eth("0.005"))
	require.ErrorIs(t, err, pledge.ErrProjectCanceled)

	// Canceling the payment returns the funds to Project2a.
	require.NoError(t, f.l.CancelPayment(ctx, operator, res2.Payment))
	got = f.note(res2.Paying)
	assert.Equal(t, note.NotPaid, got.PaymentState)
	assert.Equal(t, p3, got.Owner)
	assert.Equal(t, eth("0.005"), got.Amount)

	// Project2 withdraws the rest of its original note, then the vault
	// confirms a batch that includes the canceled payment.
	res4, err := f.l.Withdraw(ctx, adminProject2, p2, n4, eth("0.08"))
	require.NoError(t, err)

	confirmed, err := f.l.MultiConfirm(ctx, operator, []id.PaymentID{res3.Payment, res2.Payment, res4.Payment})
	require.Error(t, err)
	require.ErrorIs(t, err, pledge.ErrInvalidState)
	assert.Equal(t, []id.PaymentID{res3.Payment, res4.Payment}, confirmed)

	var perr pledge.PaymentError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, res2.Payment.String(), perr.PaymentID.String())

	assert.Equal(t, eth("0.11"), f.wallet.Balance(adminProject2))
	assert.Equal(t, eth("0.05"), f.wallet.Balance(adminProject1))

	// Nothing was created or destroyed along the way.
	_, notes := f.counts()
	assert.Equal(t, uint64(15), notes)
	assert.Equal(t, eth("1"), f.total())

	st, err := f.l.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, eth("0.16"), st.Total(note.Paid))
	assert.True(t, st.Total(note.Paying).IsZero())
	require.Len(t, st.Payments, 4)
	assert.Equal(t, vault.StateConfirmed, st.Payments[0].State)
	assert.Equal(t, vault.StateCanceled, st.Payments[1].State)
}
