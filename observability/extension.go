// Package observability provides a metrics extension for Pledge that records
// ledger event counts through a caller-supplied MetricFactory.
package observability

import (
	"context"
	"strconv"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin              = (*MetricsExtension)(nil)
	_ plugin.OnManagerAdded      = (*MetricsExtension)(nil)
	_ plugin.OnProjectCanceled   = (*MetricsExtension)(nil)
	_ plugin.OnDonation          = (*MetricsExtension)(nil)
	_ plugin.OnNoteTransferred   = (*MetricsExtension)(nil)
	_ plugin.OnProposalCommitted = (*MetricsExtension)(nil)
	_ plugin.OnPaymentAuthorized = (*MetricsExtension)(nil)
	_ plugin.OnPaymentConfirmed  = (*MetricsExtension)(nil)
	_ plugin.OnPaymentCanceled   = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records ledger-wide event metrics.
// Amount histograms observe major units (ether for the default currency).
type MetricsExtension struct {
	// Manager metrics
	DonorsAdded      Counter
	DelegatesAdded   Counter
	ProjectsAdded    Counter
	ProjectsCanceled Counter

	// Note metrics
	Donations          Counter
	DonatedAmount      Histogram
	Transfers          Counter
	Delegations        Counter
	Proposals          Counter
	TransferredAmount  Histogram
	ProposalsCommitted Counter

	// Vault metrics
	PaymentsAuthorized Counter
	PaymentsConfirmed  Counter
	PaymentsCanceled   Counter
	PaidAmount         Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		DonorsAdded:      factory.Counter("pledge.manager.donor.added"),
		DelegatesAdded:   factory.Counter("pledge.manager.delegate.added"),
		ProjectsAdded:    factory.Counter("pledge.manager.project.added"),
		ProjectsCanceled: factory.Counter("pledge.manager.project.canceled"),

		Donations:          factory.Counter("pledge.note.donations"),
		DonatedAmount:      factory.Histogram("pledge.note.donated_amount"),
		Transfers:          factory.Counter("pledge.note.transfers"),
		Delegations:        factory.Counter("pledge.note.delegations"),
		Proposals:          factory.Counter("pledge.note.proposals"),
		TransferredAmount:  factory.Histogram("pledge.note.transferred_amount"),
		ProposalsCommitted: factory.Counter("pledge.note.proposals.committed"),

		PaymentsAuthorized: factory.Counter("pledge.vault.payments.authorized"),
		PaymentsConfirmed:  factory.Counter("pledge.vault.payments.confirmed"),
		PaymentsCanceled:   factory.Counter("pledge.vault.payments.canceled"),
		PaidAmount:         factory.Histogram("pledge.vault.paid_amount"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Manager hooks
// ──────────────────────────────────────────────────

// OnManagerAdded implements plugin.OnManagerAdded.
func (m *MetricsExtension) OnManagerAdded(_ context.Context, mgr *manager.Manager) error {
	switch mgr.Kind {
	case manager.KindDonor:
		m.DonorsAdded.Inc()
	case manager.KindDelegate:
		m.DelegatesAdded.Inc()
	case manager.KindProject:
		m.ProjectsAdded.Inc()
	}
	return nil
}

// OnProjectCanceled implements plugin.OnProjectCanceled.
func (m *MetricsExtension) OnProjectCanceled(_ context.Context, _ *manager.Manager) error {
	m.ProjectsCanceled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Note hooks
// ──────────────────────────────────────────────────

// OnDonation implements plugin.OnDonation.
func (m *MetricsExtension) OnDonation(_ context.Context, n *note.Note) error {
	m.Donations.Inc()
	m.DonatedAmount.Observe(major(n.Amount))
	return nil
}

// OnNoteTransferred implements plugin.OnNoteTransferred.
func (m *MetricsExtension) OnNoteTransferred(_ context.Context, ev *plugin.TransferEvent) error {
	switch {
	case ev.Result.HasProposal():
		m.Proposals.Inc()
	case ev.Result.Owner == ev.Source.Owner:
		m.Delegations.Inc()
	default:
		m.Transfers.Inc()
	}
	m.TransferredAmount.Observe(major(ev.Amount))
	return nil
}

// OnProposalCommitted implements plugin.OnProposalCommitted.
func (m *MetricsExtension) OnProposalCommitted(_ context.Context, _ *note.Note) error {
	m.ProposalsCommitted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Vault hooks
// ──────────────────────────────────────────────────

// OnPaymentAuthorized implements plugin.OnPaymentAuthorized.
func (m *MetricsExtension) OnPaymentAuthorized(_ context.Context, _ *vault.Payment) error {
	m.PaymentsAuthorized.Inc()
	return nil
}

// OnPaymentConfirmed implements plugin.OnPaymentConfirmed.
func (m *MetricsExtension) OnPaymentConfirmed(_ context.Context, p *vault.Payment) error {
	m.PaymentsConfirmed.Inc()
	m.PaidAmount.Observe(major(p.Amount))
	return nil
}

// OnPaymentCanceled implements plugin.OnPaymentCanceled.
func (m *MetricsExtension) OnPaymentCanceled(_ context.Context, _ *vault.Payment) error {
	m.PaymentsCanceled.Inc()
	return nil
}

func major(m types.Money) float64 {
	v, _ := strconv.ParseFloat(m.FormatMajor(), 64) //nolint:errcheck // FormatMajor is always a decimal
	return v
}
