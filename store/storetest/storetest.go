// Package storetest holds a conformance suite run against every Store
// backend that can be opened without external services.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Run exercises s through the Store contract. newStore must return an
// empty, migrated store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("EmptyCounts", func(t *testing.T) { testEmptyCounts(t, newStore(t)) })
	t.Run("CommitAndRead", func(t *testing.T) { testCommitAndRead(t, newStore(t)) })
	t.Run("SequenceConflict", func(t *testing.T) { testSequenceConflict(t, newStore(t)) })
	t.Run("Updates", func(t *testing.T) { testUpdates(t, newStore(t)) })
	t.Run("Payments", func(t *testing.T) { testPayments(t, newStore(t)) })
	t.Run("AtomicCommit", func(t *testing.T) { testAtomicCommit(t, newStore(t)) })
	t.Run("ListFilters", func(t *testing.T) { testListFilters(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
}

func donor(i manager.ID) *manager.Manager {
	return &manager.Manager{
		Entity:  types.NewEntity(epoch),
		ID:      i,
		Kind:    manager.KindDonor,
		Address: types.Address("0xdonor" + i.String()),
		Name:    "Donor " + i.String(),
	}
}

func project(i manager.ID) *manager.Manager {
	return &manager.Manager{
		Entity:     types.NewEntity(epoch),
		ID:         i,
		Kind:       manager.KindProject,
		Address:    types.Address("0xproject" + i.String()),
		Name:       "Project " + i.String(),
		CommitTime: 3 * time.Hour,
		Reviewer:   "0xreviewer",
	}
}

func genesis(i note.ID, owner manager.ID, amount int64) *note.Note {
	return &note.Note{
		Entity:       types.NewEntity(epoch),
		ID:           i,
		Amount:       types.New(amount, "eth"),
		Owner:        owner,
		PaymentState: note.NotPaid,
	}
}

func seed(t *testing.T, s store.Store) {
	t.Helper()
	err := s.Commit(context.Background(), &store.Changeset{
		CreatedManagers: []*manager.Manager{donor(1), project(2)},
		CreatedNotes:    []*note.Note{genesis(1, 1, 1000)},
	})
	require.NoError(t, err)
}

func testEmptyCounts(t *testing.T, s store.Store) {
	ctx := context.Background()

	managers, err := s.CountManagers(ctx)
	require.NoError(t, err)
	assert.Zero(t, managers)

	notes, err := s.CountNotes(ctx)
	require.NoError(t, err)
	assert.Zero(t, notes)

	require.NoError(t, s.Commit(ctx, &store.Changeset{}))
	require.NoError(t, s.Ping(ctx))
}

func testCommitAndRead(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	managers, err := s.CountManagers(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), managers)

	m, err := s.GetManager(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, manager.KindProject, m.Kind)
	assert.Equal(t, 3*time.Hour, m.CommitTime)
	assert.Equal(t, types.Address("0xreviewer"), m.Reviewer)

	n, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.New(1000, "eth"), n.Amount)
	assert.Equal(t, manager.ID(1), n.Owner)
	assert.Empty(t, n.Delegates)
	assert.Equal(t, note.NotPaid, n.PaymentState)

	// Returned records must not alias stored state.
	n.Amount = types.New(1, "eth")
	again, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.New(1000, "eth"), again.Amount)
}

func testSequenceConflict(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	err := s.Commit(ctx, &store.Changeset{
		CreatedNotes: []*note.Note{genesis(5, 1, 10)},
	})
	require.ErrorIs(t, err, pledge.ErrConflict)

	err = s.Commit(ctx, &store.Changeset{
		CreatedManagers: []*manager.Manager{donor(2)},
	})
	require.ErrorIs(t, err, pledge.ErrConflict)

	notes, err := s.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), notes)
}

func testUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	src, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	src.Amount = types.New(600, "eth")
	src.Touch(epoch.Add(time.Minute))

	split := genesis(2, 1, 400)
	split.Delegates = []manager.ID{3, 4}
	split.ProposedProject = 2
	split.CommitTime = epoch.Add(3 * time.Hour)
	split.OldNote = 1

	proj, err := s.GetManager(ctx, 2)
	require.NoError(t, err)
	proj.Canceled = true

	require.NoError(t, s.Commit(ctx, &store.Changeset{
		UpdatedNotes:    []*note.Note{src},
		CreatedNotes:    []*note.Note{split},
		UpdatedManagers: []*manager.Manager{proj},
	}))

	got, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.New(600, "eth"), got.Amount)

	got, err = s.GetNote(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []manager.ID{3, 4}, got.Delegates)
	assert.Equal(t, manager.ID(2), got.ProposedProject)
	assert.True(t, got.CommitTime.Equal(epoch.Add(3*time.Hour)))
	assert.Equal(t, note.ID(1), got.OldNote)

	m, err := s.GetManager(ctx, 2)
	require.NoError(t, err)
	assert.True(t, m.Canceled)
}

func testPayments(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	p := &vault.Payment{
		Entity:  types.NewEntity(epoch),
		ID:      id.NewPaymentID(),
		NoteID:  1,
		Owner:   2,
		Address: "0xproject2",
		Amount:  types.New(250, "eth"),
		State:   vault.StatePending,
	}
	require.NoError(t, s.Commit(ctx, &store.Changeset{CreatedPayments: []*vault.Payment{p}}))

	got, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, vault.StatePending, got.State)
	assert.Equal(t, types.New(250, "eth"), got.Amount)
	assert.Nil(t, got.SettledAt)

	require.NoError(t, got.Transition(vault.StateConfirmed, epoch.Add(time.Hour)))
	got.PaidNote = 1
	require.NoError(t, s.Commit(ctx, &store.Changeset{UpdatedPayments: []*vault.Payment{got}}))

	settled, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, vault.StateConfirmed, settled.State)
	assert.Equal(t, note.ID(1), settled.PaidNote)
	require.NotNil(t, settled.SettledAt)
	assert.True(t, settled.SettledAt.Equal(epoch.Add(time.Hour)))

	err = s.Commit(ctx, &store.Changeset{CreatedPayments: []*vault.Payment{p}})
	require.Error(t, err)
}

func testAtomicCommit(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	p := &vault.Payment{
		Entity:  types.NewEntity(epoch),
		ID:      id.NewPaymentID(),
		NoteID:  1,
		Owner:   2,
		Address: "0xproject2",
		Amount:  types.New(100, "eth"),
		State:   vault.StatePending,
	}
	require.NoError(t, s.Commit(ctx, &store.Changeset{CreatedPayments: []*vault.Payment{p}}))

	src, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	src.Amount = types.New(400, "eth")

	// The duplicate payment is written last and must undo everything before it.
	err = s.Commit(ctx, &store.Changeset{
		CreatedNotes:    []*note.Note{genesis(2, 2, 600)},
		UpdatedNotes:    []*note.Note{src},
		CreatedPayments: []*vault.Payment{p},
	})
	require.ErrorIs(t, err, pledge.ErrConflict)

	notes, err := s.CountNotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), notes)

	got, err := s.GetNote(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, types.New(1000, "eth"), got.Amount)

	payments, err := s.ListPayments(ctx, vault.ListOpts{})
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func testListFilters(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s)

	paying := genesis(2, 2, 100)
	paying.PaymentState = note.Paying
	require.NoError(t, s.Commit(ctx, &store.Changeset{
		CreatedNotes: []*note.Note{paying, genesis(3, 1, 5)},
	}))

	all, err := s.ListNotes(ctx, note.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, note.ID(1), all[0].ID)
	assert.Equal(t, note.ID(3), all[2].ID)

	byOwner, err := s.ListNotes(ctx, note.ListOpts{Owner: 1})
	require.NoError(t, err)
	assert.Len(t, byOwner, 2)

	byState, err := s.ListNotes(ctx, note.ListOpts{PaymentState: note.Paying})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, note.ID(2), byState[0].ID)

	page, err := s.ListNotes(ctx, note.ListOpts{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, note.ID(2), page[0].ID)

	projects, err := s.ListManagers(ctx, manager.ListOpts{Kind: manager.KindProject})
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, manager.ID(2), projects[0].ID)

	pending, err := s.ListPayments(ctx, vault.ListOpts{State: vault.StatePending})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.GetManager(ctx, 1)
	assert.True(t, pledge.IsNotFound(err), "GetManager: %v", err)

	_, err = s.GetNote(ctx, 1)
	assert.True(t, pledge.IsNotFound(err), "GetNote: %v", err)

	_, err = s.GetNote(ctx, note.None)
	assert.True(t, pledge.IsNotFound(err), "GetNote(None): %v", err)

	_, err = s.GetPayment(ctx, id.NewPaymentID())
	assert.True(t, pledge.IsNotFound(err), "GetPayment: %v", err)
}
