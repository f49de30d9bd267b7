package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/vault"
)

// hookTimeout bounds a single hook invocation.
const hookTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit              []OnInit
	onShutdown          []OnShutdown
	onManagerAdded      []OnManagerAdded
	onProjectCanceled   []OnProjectCanceled
	onDonation          []OnDonation
	onNoteTransferred   []OnNoteTransferred
	onProposalCommitted []OnProposalCommitted
	onPaymentAuthorized []OnPaymentAuthorized
	onPaymentConfirmed  []OnPaymentConfirmed
	onPaymentCanceled   []OnPaymentCanceled
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Check for duplicate
	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnManagerAdded); ok {
		r.onManagerAdded = append(r.onManagerAdded, v)
	}
	if v, ok := p.(OnProjectCanceled); ok {
		r.onProjectCanceled = append(r.onProjectCanceled, v)
	}
	if v, ok := p.(OnDonation); ok {
		r.onDonation = append(r.onDonation, v)
	}
	if v, ok := p.(OnNoteTransferred); ok {
		r.onNoteTransferred = append(r.onNoteTransferred, v)
	}
	if v, ok := p.(OnProposalCommitted); ok {
		r.onProposalCommitted = append(r.onProposalCommitted, v)
	}
	if v, ok := p.(OnPaymentAuthorized); ok {
		r.onPaymentAuthorized = append(r.onPaymentAuthorized, v)
	}
	if v, ok := p.(OnPaymentConfirmed); ok {
		r.onPaymentConfirmed = append(r.onPaymentConfirmed, v)
	}
	if v, ok := p.(OnPaymentCanceled); ok {
		r.onPaymentCanceled = append(r.onPaymentCanceled, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", implementedInterfaces(p),
	)

	return nil
}

// implementedInterfaces returns the hook interfaces implemented by p.
func implementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnManagerAdded)(nil)).Elem(), "OnManagerAdded")
	checkInterface(reflect.TypeOf((*OnProjectCanceled)(nil)).Elem(), "OnProjectCanceled")
	checkInterface(reflect.TypeOf((*OnDonation)(nil)).Elem(), "OnDonation")
	checkInterface(reflect.TypeOf((*OnNoteTransferred)(nil)).Elem(), "OnNoteTransferred")
	checkInterface(reflect.TypeOf((*OnProposalCommitted)(nil)).Elem(), "OnProposalCommitted")
	checkInterface(reflect.TypeOf((*OnPaymentAuthorized)(nil)).Elem(), "OnPaymentAuthorized")
	checkInterface(reflect.TypeOf((*OnPaymentConfirmed)(nil)).Elem(), "OnPaymentConfirmed")
	checkInterface(reflect.TypeOf((*OnPaymentCanceled)(nil)).Elem(), "OnPaymentCanceled")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit runs call for every plugin in list, logging failures under hook.
func emit[P Plugin](ctx context.Context, r *Registry, list func() []P, hook string, call func(P) error) {
	r.mu.RLock()
	plugins := list()
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return call(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, l any) {
	emit(ctx, r, func() []OnInit { return r.onInit }, "OnInit",
		func(p OnInit) error { return p.OnInit(ctx, l) })
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, func() []OnShutdown { return r.onShutdown }, "OnShutdown",
		func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

// EmitManagerAdded emits a manager added event.
func (r *Registry) EmitManagerAdded(ctx context.Context, m *manager.Manager) {
	emit(ctx, r, func() []OnManagerAdded { return r.onManagerAdded }, "OnManagerAdded",
		func(p OnManagerAdded) error { return p.OnManagerAdded(ctx, m) })
}

// EmitProjectCanceled emits a project canceled event.
func (r *Registry) EmitProjectCanceled(ctx context.Context, project *manager.Manager) {
	emit(ctx, r, func() []OnProjectCanceled { return r.onProjectCanceled }, "OnProjectCanceled",
		func(p OnProjectCanceled) error { return p.OnProjectCanceled(ctx, project) })
}

// EmitDonation emits a donation event.
func (r *Registry) EmitDonation(ctx context.Context, n *note.Note) {
	emit(ctx, r, func() []OnDonation { return r.onDonation }, "OnDonation",
		func(p OnDonation) error { return p.OnDonation(ctx, n) })
}

// EmitNoteTransferred emits a note transferred event.
func (r *Registry) EmitNoteTransferred(ctx context.Context, ev *TransferEvent) {
	emit(ctx, r, func() []OnNoteTransferred { return r.onNoteTransferred }, "OnNoteTransferred",
		func(p OnNoteTransferred) error { return p.OnNoteTransferred(ctx, ev) })
}

// EmitProposalCommitted emits a proposal committed event.
func (r *Registry) EmitProposalCommitted(ctx context.Context, n *note.Note) {
	emit(ctx, r, func() []OnProposalCommitted { return r.onProposalCommitted }, "OnProposalCommitted",
		func(p OnProposalCommitted) error { return p.OnProposalCommitted(ctx, n) })
}

// EmitPaymentAuthorized emits a payment authorized event.
func (r *Registry) EmitPaymentAuthorized(ctx context.Context, pay *vault.Payment) {
	emit(ctx, r, func() []OnPaymentAuthorized { return r.onPaymentAuthorized }, "OnPaymentAuthorized",
		func(p OnPaymentAuthorized) error { return p.OnPaymentAuthorized(ctx, pay) })
}

// EmitPaymentConfirmed emits a payment confirmed event.
func (r *Registry) EmitPaymentConfirmed(ctx context.Context, pay *vault.Payment) {
	emit(ctx, r, func() []OnPaymentConfirmed { return r.onPaymentConfirmed }, "OnPaymentConfirmed",
		func(p OnPaymentConfirmed) error { return p.OnPaymentConfirmed(ctx, pay) })
}

// EmitPaymentCanceled emits a payment canceled event.
func (r *Registry) EmitPaymentCanceled(ctx context.Context, pay *vault.Payment) {
	emit(ctx, r, func() []OnPaymentCanceled { return r.onPaymentCanceled }, "OnPaymentCanceled",
		func(p OnPaymentCanceled) error { return p.OnPaymentCanceled(ctx, pay) })
}

// callWithTimeout calls fn with a timeout to prevent slow plugins from blocking.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(hookTimeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
