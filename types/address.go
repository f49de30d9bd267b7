package types

import "strings"

// Address is the external identity of a caller. It is opaque to the ledger:
// two addresses are the same identity when their canonical forms are equal.
type Address string

// NoAddress is the zero Address.
const NoAddress Address = ""

// Canonical returns the address trimmed and lower-cased so that hex
// addresses compare case-insensitively.
func (a Address) Canonical() Address {
	return Address(strings.ToLower(strings.TrimSpace(string(a))))
}

// Is reports whether a and other denote the same identity.
func (a Address) Is(other Address) bool {
	c := a.Canonical()
	return c != NoAddress && c == other.Canonical()
}

// IsZero reports whether the address is empty.
func (a Address) IsZero() bool { return a.Canonical() == NoAddress }

func (a Address) String() string { return string(a) }
