package vault_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

func pending() *vault.Payment {
	return &vault.Payment{
		ID:      id.NewPaymentID(),
		NoteID:  7,
		Owner:   3,
		Address: "0xproject",
		Amount:  types.New(50, "eth"),
		State:   vault.StatePending,
	}
}

func TestTransition(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    vault.State
		to      vault.State
		wantErr bool
	}{
		{"pending to confirmed", vault.StatePending, vault.StateConfirmed, false},
		{"pending to canceled", vault.StatePending, vault.StateCanceled, false},
		{"pending to pending", vault.StatePending, vault.StatePending, true},
		{"confirmed to canceled", vault.StateConfirmed, vault.StateCanceled, true},
		{"confirmed to confirmed", vault.StateConfirmed, vault.StateConfirmed, true},
		{"canceled to confirmed", vault.StateCanceled, vault.StateConfirmed, true},
		{"canceled to pending", vault.StateCanceled, vault.StatePending, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := pending()
			p.State = tt.from

			err := p.Transition(tt.to, at)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, vault.ErrInvalidTransition))
				assert.Equal(t, tt.from, p.State)
				assert.Nil(t, p.SettledAt)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, p.State)
			require.NotNil(t, p.SettledAt)
			assert.Equal(t, at, *p.SettledAt)
		})
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	p := pending()
	require.NoError(t, p.Transition(vault.StateConfirmed, time.Unix(100, 0)))

	c := p.Clone()
	*c.SettledAt = time.Unix(200, 0)
	assert.Equal(t, time.Unix(100, 0), *p.SettledAt)
}

func TestListOptsMatch(t *testing.T) {
	p := pending()
	assert.True(t, vault.ListOpts{}.Match(p))
	assert.True(t, vault.ListOpts{State: vault.StatePending, Owner: 3}.Match(p))
	assert.False(t, vault.ListOpts{State: vault.StateConfirmed}.Match(p))
	assert.False(t, vault.ListOpts{Owner: 4}.Match(p))
}

func TestWallet(t *testing.T) {
	ctx := context.Background()
	w := vault.NewWallet("eth")

	assert.True(t, w.Balance("0xa").IsZero())

	require.NoError(t, w.Credit(ctx, "0xA", types.New(30, "eth")))
	require.NoError(t, w.Credit(ctx, "0xa", types.New(20, "eth")))
	require.NoError(t, w.Credit(ctx, "0xb", types.New(5, "eth")))

	assert.Equal(t, types.New(50, "eth"), w.Balance("0xa"))
	assert.Equal(t, types.New(50, "eth"), w.Balance(" 0xA "))
	assert.Equal(t, []types.Address{"0xa", "0xb"}, w.Addresses())

	err := w.Credit(ctx, "0xa", types.New(1, "usd"))
	assert.ErrorIs(t, err, types.ErrCurrencyMismatch)
	assert.Equal(t, types.New(50, "eth"), w.Balance("0xa"))
}

func TestSinkFunc(t *testing.T) {
	var got types.Money
	sink := vault.SinkFunc(func(_ context.Context, _ types.Address, amount types.Money) error {
		got = amount
		return nil
	})
	require.NoError(t, sink.Credit(context.Background(), "0xa", types.New(9, "eth")))
	assert.Equal(t, types.New(9, "eth"), got)
	assert.NoError(t, vault.Discard.Credit(context.Background(), "0xa", types.New(1, "eth")))
}
