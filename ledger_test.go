package pledge_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store/memory"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

const day = 24 * time.Hour

// Addresses of the parties used across the tests.
const (
	donor1        types.Address = "0xD0N0R1"
	donor2        types.Address = "0xd0n0r2"
	delegate1     types.Address = "0xde1e6a7e1"
	delegate2     types.Address = "0xde1e6a7e2"
	adminProject1 types.Address = "0xa0000001"
	adminProject2 types.Address = "0xa0000002"
	adminProject3 types.Address = "0xa0000003"
	reviewer      types.Address = "0x4e71e3e4"
	operator      types.Address = "0x0pe4a704"
	stranger      types.Address = "0x5742a6e4"
)

func eth(s string) types.Money { return types.MustParse(s, "eth") }

type fixture struct {
	t      *testing.T
	ctx    context.Context
	l      *pledge.Ledger
	clock  *clock.Mock
	wallet *vault.Wallet
}

func newFixture(t *testing.T, opts ...pledge.Option) *fixture {
	t.Helper()

	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		clock:  clock.NewMock(),
		wallet: vault.NewWallet("eth"),
	}
	f.clock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	base := []pledge.Option{
		pledge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pledge.WithClock(f.clock),
		pledge.WithSink(f.wallet),
	}
	f.l = pledge.New(memory.New(), append(base, opts...)...)
	require.NoError(t, f.l.Start(f.ctx))
	t.Cleanup(func() { _ = f.l.Stop() })
	return f
}

func (f *fixture) donor(addr types.Address, name string) manager.ID {
	f.t.Helper()
	m, err := f.l.AddDonor(f.ctx, addr, name, day)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) delegate(addr types.Address, name string) manager.ID {
	f.t.Helper()
	m, err := f.l.AddDelegate(f.ctx, addr, name)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) project(addr types.Address, name string) manager.ID {
	f.t.Helper()
	m, err := f.l.AddProject(f.ctx, addr, name, reviewer, day)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) donate(addr types.Address, donor, target manager.ID, amount string) note.ID {
	f.t.Helper()
	n, err := f.l.Donate(f.ctx, addr, donor, target, eth(amount))
	require.NoError(f.t, err)
	return n
}

func (f *fixture) transfer(addr types.Address, from manager.ID, src note.ID, amount string, to manager.ID) note.ID {
	f.t.Helper()
	n, err := f.l.Transfer(f.ctx, addr, from, src, eth(amount), to)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) note(noteID note.ID) *note.Note {
	f.t.Helper()
	n, err := f.l.GetNote(f.ctx, noteID)
	require.NoError(f.t, err)
	return n
}

func (f *fixture) manager(managerID manager.ID) *manager.Manager {
	f.t.Helper()
	m, err := f.l.GetManager(f.ctx, managerID)
	require.NoError(f.t, err)
	return m
}

func (f *fixture) counts() (managers, notes uint64) {
	f.t.Helper()
	managers, err := f.l.NumberOfManagers(f.ctx)
	require.NoError(f.t, err)
	notes, err = f.l.NumberOfNotes(f.ctx)
	require.NoError(f.t, err)
	return managers, notes
}

// total sums every note in the ledger, whatever its payment state.
func (f *fixture) total() types.Money {
	f.t.Helper()
	st, err := f.l.State(f.ctx)
	require.NoError(f.t, err)
	return st.Total(note.NotPaid).Add(st.Total(note.Paying)).Add(st.Total(note.Paid))
}

func TestAddManagers(t *testing.T) {
	f := newFixture(t)

	d := f.donor(donor1, "Donor1")
	g := f.delegate(delegate1, "Delegate1")
	p := f.project(adminProject1, "Project1")

	assert.Equal(t, manager.ID(1), d)
	assert.Equal(t, manager.ID(2), g)
	assert.Equal(t, manager.ID(3), p)

	managers, notes := f.counts()
	assert.Equal(t, uint64(3), managers)
	assert.Zero(t, notes)

	got := f.manager(d)
	assert.Equal(t, manager.KindDonor, got.Kind)
	assert.Equal(t, donor1, got.Address)
	assert.Equal(t, "Donor1", got.Name)
	assert.Equal(t, day, got.CommitTime)
	assert.Equal(t, f.clock.Now().UTC(), got.CreatedAt)

	got = f.manager(p)
	assert.Equal(t, manager.KindProject, got.Kind)
	assert.Equal(t, reviewer, got.Reviewer)
	assert.False(t, got.Canceled)

	list, err := f.l.ListManagers(f.ctx, manager.ListOpts{Kind: manager.KindDelegate})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, g, list[0].ID)
}

func TestAddManagerValidation(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.AddDonor(f.ctx, "", "Nobody", day)
	require.ErrorIs(t, err, pledge.ErrInvalidInput)

	_, err = f.l.AddDonor(f.ctx, donor1, "Donor1", -time.Second)
	require.ErrorIs(t, err, pledge.ErrInvalidInput)

	_, err = f.l.AddProject(f.ctx, adminProject1, "Project1", "", day)
	var verr pledge.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "reviewer", verr.Field)

	managers, _ := f.counts()
	assert.Zero(t, managers)
}

func TestGetManagerNotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.l.GetManager(f.ctx, 42)
	require.ErrorIs(t, err, pledge.ErrManagerNotFound)
	assert.True(t, pledge.IsNotFound(err))

	_, err = f.l.GetNote(f.ctx, 1)
	require.ErrorIs(t, err, pledge.ErrNoteNotFound)
}

func TestStopClosesStore(t *testing.T) {
	l := pledge.New(memory.New(), pledge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx := context.Background()
	require.NoError(t, l.Start(ctx))
	require.NoError(t, l.Stop())

	_, err := l.AddDonor(ctx, donor1, "Donor1", day)
	require.ErrorIs(t, err, pledge.ErrStoreClosed)
}

func TestCurrency(t *testing.T) {
	f := newFixture(t, pledge.WithCurrency("USD"))
	assert.Equal(t, "usd", f.l.Currency())

	d := f.donor(donor1, "Donor1")
	_, err := f.l.Donate(f.ctx, donor1, d, d, eth("1"))
	require.ErrorIs(t, err, pledge.ErrInvalidAmount)

	n, err := f.l.Donate(f.ctx, donor1, d, d, types.New(4900, "usd"))
	require.NoError(t, err)
	assert.Equal(t, "49.00 USD", f.note(n).Amount.String())
}

func TestInvalidAmountMessages(t *testing.T) {
	f := newFixture(t)
	d := f.donor(donor1, "Donor1")

	tests := []struct {
		name   string
		amount types.Money
		detail string
	}{
		{"WrongCurrency", types.New(10, "usd"), "got usd, ledger accounts in eth"},
		{"Zero", types.Zero("eth"), "0.00 ETH is not positive"},
		{"Negative", eth("-1"), "-1.00 ETH is not positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.l.Donate(f.ctx, donor1, d, d, tt.amount)
			require.ErrorIs(t, err, pledge.ErrInvalidAmount)
			assert.Equal(t, "pledge: invalid amount: "+tt.detail, err.Error())
		})
	}
}
