// Package audithook bridges Pledge lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// Chronicle directly. Callers inject a RecorderFunc adapter that bridges
// to Chronicle at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/vault"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin              = (*Extension)(nil)
	_ plugin.OnManagerAdded      = (*Extension)(nil)
	_ plugin.OnProjectCanceled   = (*Extension)(nil)
	_ plugin.OnDonation          = (*Extension)(nil)
	_ plugin.OnNoteTransferred   = (*Extension)(nil)
	_ plugin.OnProposalCommitted = (*Extension)(nil)
	_ plugin.OnPaymentAuthorized = (*Extension)(nil)
	_ plugin.OnPaymentConfirmed  = (*Extension)(nil)
	_ plugin.OnPaymentCanceled   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It matches chronicle.Emitter; callers inject the concrete backend at
// wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Pledge lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Manager lifecycle hooks
// ──────────────────────────────────────────────────

// OnManagerAdded implements plugin.OnManagerAdded.
func (e *Extension) OnManagerAdded(ctx context.Context, m *manager.Manager) error {
	return e.record(ctx, ActionManagerAdded, SeverityInfo, OutcomeSuccess,
		ResourceManager, m.ID.String(), CategoryGovernance, nil,
		"kind", string(m.Kind),
		"name", m.Name,
		"address", m.Address.String(),
	)
}

// OnProjectCanceled implements plugin.OnProjectCanceled.
func (e *Extension) OnProjectCanceled(ctx context.Context, project *manager.Manager) error {
	return e.record(ctx, ActionProjectCanceled, SeverityWarning, OutcomeSuccess,
		ResourceManager, project.ID.String(), CategoryGovernance, nil,
		"name", project.Name,
		"reviewer", project.Reviewer.String(),
	)
}

// ──────────────────────────────────────────────────
// Note lifecycle hooks
// ──────────────────────────────────────────────────

// OnDonation implements plugin.OnDonation.
func (e *Extension) OnDonation(ctx context.Context, n *note.Note) error {
	return e.record(ctx, ActionNoteDonated, SeverityInfo, OutcomeSuccess,
		ResourceNote, n.ID.String(), CategoryCustody, nil,
		"donor", n.Owner.String(),
		"amount", n.Amount.Units(),
		"currency", n.Amount.Currency,
	)
}

// OnNoteTransferred implements plugin.OnNoteTransferred. The action tells
// apart ownership changes, delegation and proposals.
func (e *Extension) OnNoteTransferred(ctx context.Context, ev *plugin.TransferEvent) error {
	action := ActionNoteTransferred
	switch {
	case ev.Result.HasProposal():
		action = ActionProjectProposed
	case ev.Result.Owner == ev.Source.Owner:
		action = ActionNoteDelegated
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceNote, ev.Result.ID.String(), CategoryCustody, nil,
		"source_note", ev.Source.ID.String(),
		"caller", ev.Caller.String(),
		"target", ev.Target.String(),
		"owner", ev.Result.Owner.String(),
		"delegates", len(ev.Result.Delegates),
		"amount", ev.Amount.Units(),
		"currency", ev.Amount.Currency,
	)
}

// OnProposalCommitted implements plugin.OnProposalCommitted.
func (e *Extension) OnProposalCommitted(ctx context.Context, n *note.Note) error {
	return e.record(ctx, ActionProposalCommitted, SeverityInfo, OutcomeSuccess,
		ResourceNote, n.ID.String(), CategoryCustody, nil,
		"owner", n.Owner.String(),
	)
}

// ──────────────────────────────────────────────────
// Vault lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentAuthorized implements plugin.OnPaymentAuthorized.
func (e *Extension) OnPaymentAuthorized(ctx context.Context, p *vault.Payment) error {
	return e.recordPayment(ctx, ActionPaymentAuthorized, SeverityInfo, p)
}

// OnPaymentConfirmed implements plugin.OnPaymentConfirmed.
func (e *Extension) OnPaymentConfirmed(ctx context.Context, p *vault.Payment) error {
	return e.recordPayment(ctx, ActionPaymentConfirmed, SeverityInfo, p)
}

// OnPaymentCanceled implements plugin.OnPaymentCanceled.
func (e *Extension) OnPaymentCanceled(ctx context.Context, p *vault.Payment) error {
	return e.recordPayment(ctx, ActionPaymentCanceled, SeverityWarning, p)
}

func (e *Extension) recordPayment(ctx context.Context, action, severity string, p *vault.Payment) error {
	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategorySettlement, nil,
		"note_id", p.NoteID.String(),
		"project", p.Owner.String(),
		"address", p.Address.String(),
		"amount", p.Amount.Units(),
		"currency", p.Amount.Currency,
		"state", string(p.State),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
