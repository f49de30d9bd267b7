package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/store/memory"
	"github.com/xraph/pledge/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}

func TestCommitAfterClose(t *testing.T) {
	s := memory.New()
	require.NoError(t, s.Close())

	err := s.Commit(context.Background(), &store.Changeset{
		CreatedManagers: []*manager.Manager{{ID: 1, Kind: manager.KindDonor}},
	})
	require.ErrorIs(t, err, pledge.ErrStoreClosed)
	require.ErrorIs(t, s.Ping(context.Background()), pledge.ErrStoreClosed)
}
