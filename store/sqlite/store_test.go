package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/store/sqlite"
	"github.com/xraph/pledge/store/storetest"
	"github.com/xraph/pledge/types"
)

// open returns a migrated store on a fresh database file.
func open(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	drv := sqlitedriver.New()
	require.NoError(t, drv.Open(ctx, path))
	db, err := grove.Open(drv)
	require.NoError(t, err)

	s := sqlite.New(db)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s := open(t, filepath.Join(t.TempDir(), "pledge.db"))
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "pledge.db"))
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
}

func TestReopenPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pledge.db")
	amount := types.MustParse("123.000000000000000001", "eth")

	s := open(t, path)
	require.NoError(t, s.Commit(ctx, &store.Changeset{
		CreatedManagers: []*manager.Manager{{ID: 1, Kind: manager.KindDonor, Address: "0xa"}},
		CreatedNotes: []*note.Note{{
			ID: 1, Owner: 1, Amount: amount, PaymentState: note.NotPaid,
		}},
	}))
	require.NoError(t, s.Close())

	s = open(t, path)
	t.Cleanup(func() { _ = s.Close() })

	n, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, amount, n.Amount)
	assert.Equal(t, "123000000000000000001", n.Amount.Units())

	notes, err := s.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), notes)
}
