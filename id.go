package pledge

import (
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
)

// PaymentID identifies a vault payment.
type PaymentID = id.PaymentID

// ManagerID identifies a donor, delegate or project.
type ManagerID = manager.ID

// NoteID identifies a note.
type NoteID = note.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix

// ParsePaymentID parses a "pay_" TypeID string.
var ParsePaymentID = id.ParsePaymentID
