// Package manager defines the parties that may own or control notes.
package manager

import (
	"fmt"
	"strconv"
	"time"

	"github.com/xraph/pledge/types"
)

// ID addresses a manager. Ids are dense and start at 1.
type ID uint64

// None is the absent manager reference.
const None ID = 0

func (i ID) IsNone() bool { return i == None }

func (i ID) String() string { return strconv.FormatUint(uint64(i), 10) }

// ParseID reads a decimal manager id. Zero is rejected.
func ParseID(s string) (ID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return None, fmt.Errorf("manager: parse id %q: %w", s, err)
	}
	if v == 0 {
		return None, fmt.Errorf("manager: parse id %q: zero is not a manager", s)
	}
	return ID(v), nil
}

type Kind string

const (
	KindDonor    Kind = "donor"
	KindDelegate Kind = "delegate"
	KindProject  Kind = "project"
)

func (k Kind) Valid() bool {
	switch k {
	case KindDonor, KindDelegate, KindProject:
		return true
	}
	return false
}

type Manager struct {
	types.Entity
	ID         ID            `json:"id"`
	Kind       Kind          `json:"kind"`
	Address    types.Address `json:"address"`
	Name       string        `json:"name"`
	CommitTime time.Duration `json:"commit_time"`
	Reviewer   types.Address `json:"reviewer,omitempty"`
	Canceled   bool          `json:"canceled"`
}

func (m *Manager) IsDonor() bool    { return m.Kind == KindDonor }
func (m *Manager) IsDelegate() bool { return m.Kind == KindDelegate }
func (m *Manager) IsProject() bool  { return m.Kind == KindProject }

// IsCanceledProject reports whether m is a project whose reviewer has
// canceled it.
func (m *Manager) IsCanceledProject() bool {
	return m.Kind == KindProject && m.Canceled
}

// Clone returns a copy that shares no memory with m.
func (m *Manager) Clone() *Manager {
	if m == nil {
		return nil
	}
	c := *m
	return &c
}

type ListOpts struct {
	Kind   Kind
	Limit  int
	Offset int
}

func (o ListOpts) Match(m *Manager) bool {
	return o.Kind == "" || m.Kind == o.Kind
}
