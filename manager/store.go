package manager

import "context"

// Store is the read side of manager persistence. Writes go through the
// changeset commit of the unified store.
type Store interface {
	GetManager(ctx context.Context, managerID ID) (*Manager, error)
	ListManagers(ctx context.Context, opts ListOpts) ([]*Manager, error)
	CountManagers(ctx context.Context) (uint64, error)
}
