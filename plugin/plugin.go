// Package plugin provides an extensible plugin system for Pledge.
// Plugins can hook into ledger lifecycle events to extend functionality.
// Hooks run after the operation has been committed; a failing hook is
// logged and never rolls the operation back.
package plugin

import (
	"context"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// TransferEvent describes one committed note movement.
type TransferEvent struct {
	Caller manager.ID  // manager the caller acted as
	Target manager.ID  // manager the funds were directed to
	Source *note.Note  // source note after the split
	Result *note.Note  // note created by the split
	Amount types.Money // amount moved
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, l any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Manager hooks
// ──────────────────────────────────────────────────

// OnManagerAdded is called when a donor, delegate or project is registered.
type OnManagerAdded interface {
	Plugin
	OnManagerAdded(ctx context.Context, m *manager.Manager) error
}

// OnProjectCanceled is called when a reviewer cancels a project.
type OnProjectCanceled interface {
	Plugin
	OnProjectCanceled(ctx context.Context, project *manager.Manager) error
}

// ──────────────────────────────────────────────────
// Note hooks
// ──────────────────────────────────────────────────

// OnDonation is called with the genesis note of a donation.
type OnDonation interface {
	Plugin
	OnDonation(ctx context.Context, n *note.Note) error
}

// OnNoteTransferred is called for every split, whether it moved ownership,
// extended a delegation chain or proposed a project.
type OnNoteTransferred interface {
	Plugin
	OnNoteTransferred(ctx context.Context, ev *TransferEvent) error
}

// OnProposalCommitted is called when an operation persists a note whose
// proposal was finalized because its commit time had passed.
type OnProposalCommitted interface {
	Plugin
	OnProposalCommitted(ctx context.Context, n *note.Note) error
}

// ──────────────────────────────────────────────────
// Vault hooks
// ──────────────────────────────────────────────────

// OnPaymentAuthorized is called when a withdrawal registers a Pending payment.
type OnPaymentAuthorized interface {
	Plugin
	OnPaymentAuthorized(ctx context.Context, p *vault.Payment) error
}

// OnPaymentConfirmed is called when a payment is confirmed and funds leave
// the ledger.
type OnPaymentConfirmed interface {
	Plugin
	OnPaymentConfirmed(ctx context.Context, p *vault.Payment) error
}

// OnPaymentCanceled is called when a payment is canceled and its note
// returns to the project.
type OnPaymentCanceled interface {
	Plugin
	OnPaymentCanceled(ctx context.Context, p *vault.Payment) error
}
