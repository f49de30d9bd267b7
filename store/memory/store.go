// Package memory provides an in-process Store backed by growable slices.
// It is the reference backend for tests and the CLI.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/vault"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Entity arenas, indexed by id-1
	managers []*manager.Manager
	notes    []*note.Note

	// Payment storage, in authorization order
	payments     map[string]*vault.Payment
	paymentOrder []string

	closed bool
}

func New() *Store {
	return &Store{
		managers: make([]*manager.Manager, 0),
		notes:    make([]*note.Note, 0),
		payments: make(map[string]*vault.Payment),
	}
}

// Manager Store implementation
func (s *Store) GetManager(_ context.Context, managerID manager.ID) (*manager.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if managerID == manager.None || uint64(managerID) > uint64(len(s.managers)) {
		return nil, fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, managerID)
	}
	return s.managers[managerID-1].Clone(), nil
}

func (s *Store) ListManagers(_ context.Context, opts manager.ListOpts) ([]*manager.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*manager.Manager, 0)
	for _, m := range s.managers {
		if opts.Match(m) {
			result = append(result, m.Clone())
		}
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

func (s *Store) CountManagers(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.managers)), nil
}

// Note Store implementation
func (s *Store) GetNote(_ context.Context, noteID note.ID) (*note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if noteID == note.None || uint64(noteID) > uint64(len(s.notes)) {
		return nil, fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, noteID)
	}
	return s.notes[noteID-1].Clone(), nil
}

func (s *Store) ListNotes(_ context.Context, opts note.ListOpts) ([]*note.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*note.Note, 0)
	for _, n := range s.notes {
		if opts.Match(n) {
			result = append(result, n.Clone())
		}
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

func (s *Store) CountNotes(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.notes)), nil
}

// Payment Store implementation
func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*vault.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, paymentID)
}

func (s *Store) ListPayments(_ context.Context, opts vault.ListOpts) ([]*vault.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*vault.Payment, 0)
	for _, key := range s.paymentOrder {
		if p := s.payments[key]; opts.Match(p) {
			result = append(result, p.Clone())
		}
	}

	lo, hi := store.Window(len(result), opts.Offset, opts.Limit)
	return result[lo:hi], nil
}

// Commit validates the whole changeset before applying any of it, so a
// rejected changeset leaves the store untouched.
func (s *Store) Commit(_ context.Context, cs *store.Changeset) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return pledge.ErrStoreClosed
	}
	if err := cs.CheckSequence(uint64(len(s.managers)), uint64(len(s.notes))); err != nil {
		return err
	}

	managerCount := uint64(len(s.managers) + len(cs.CreatedManagers))
	noteCount := uint64(len(s.notes) + len(cs.CreatedNotes))
	for _, m := range cs.UpdatedManagers {
		if m.ID == manager.None || uint64(m.ID) > managerCount {
			return fmt.Errorf("%w: %d", pledge.ErrManagerNotFound, m.ID)
		}
	}
	for _, n := range cs.UpdatedNotes {
		if n.ID == note.None || uint64(n.ID) > noteCount {
			return fmt.Errorf("%w: %d", pledge.ErrNoteNotFound, n.ID)
		}
	}
	for _, p := range cs.CreatedPayments {
		if _, exists := s.payments[p.ID.String()]; exists {
			return fmt.Errorf("%w: payment %s exists", pledge.ErrConflict, p.ID)
		}
	}
	for _, p := range cs.UpdatedPayments {
		if _, exists := s.payments[p.ID.String()]; !exists && !cs.CreatesPayment(p.ID) {
			return fmt.Errorf("%w: %s", pledge.ErrPaymentNotFound, p.ID)
		}
	}

	for _, m := range cs.CreatedManagers {
		s.managers = append(s.managers, m.Clone())
	}
	for _, m := range cs.UpdatedManagers {
		s.managers[m.ID-1] = m.Clone()
	}
	for _, n := range cs.CreatedNotes {
		s.notes = append(s.notes, n.Clone())
	}
	for _, n := range cs.UpdatedNotes {
		s.notes[n.ID-1] = n.Clone()
	}
	for _, p := range cs.CreatedPayments {
		s.payments[p.ID.String()] = p.Clone()
		s.paymentOrder = append(s.paymentOrder, p.ID.String())
	}
	for _, p := range cs.UpdatedPayments {
		s.payments[p.ID.String()] = p.Clone()
	}

	return nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error {
	return nil
}

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return pledge.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
