package note

import "context"

// Store is the read side of note persistence. Notes are only written through
// the changeset commit of the unified store.
type Store interface {
	GetNote(ctx context.Context, noteID ID) (*Note, error)
	ListNotes(ctx context.Context, opts ListOpts) ([]*Note, error)
	CountNotes(ctx context.Context) (uint64, error)
}
