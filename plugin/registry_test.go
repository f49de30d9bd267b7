package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/vault"
)

type recorder struct {
	name   string
	events []string
	fail   bool
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnManagerAdded(_ context.Context, m *manager.Manager) error {
	r.events = append(r.events, "manager:"+m.Name)
	return nil
}

func (r *recorder) OnNoteTransferred(_ context.Context, ev *plugin.TransferEvent) error {
	r.events = append(r.events, "transfer:"+ev.Result.ID.String())
	if r.fail {
		return errors.New("boom")
	}
	return nil
}

type nameOnly struct{ name string }

func (n nameOnly) Name() string { return n.name }

func TestRegisterDuplicate(t *testing.T) {
	r := plugin.NewRegistry()
	if err := r.Register(nameOnly{"a"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(nameOnly{"a"}); err == nil {
		t.Error("expected duplicate registration error")
	}
	if r.Count() != 1 {
		t.Errorf("Count: got %d, want 1", r.Count())
	}
	if r.Get("a") == nil || r.Get("b") != nil {
		t.Error("Get returned unexpected plugins")
	}
}

func TestDispatchOnlyToImplementers(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	rec := &recorder{name: "rec"}
	if err := r.Register(rec); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(nameOnly{"quiet"}); err != nil {
		t.Fatal(err)
	}

	r.EmitManagerAdded(ctx, &manager.Manager{Name: "Giver1"})
	r.EmitNoteTransferred(ctx, &plugin.TransferEvent{Result: &note.Note{ID: 3}})
	r.EmitPaymentConfirmed(ctx, &vault.Payment{})

	want := []string{"manager:Giver1", "transfer:3"}
	if len(rec.events) != len(want) {
		t.Fatalf("events: got %v, want %v", rec.events, want)
	}
	for i := range want {
		if rec.events[i] != want[i] {
			t.Errorf("event %d: got %q, want %q", i, rec.events[i], want[i])
		}
	}
}

func TestFailingHookDoesNotStopDispatch(t *testing.T) {
	ctx := context.Background()
	r := plugin.NewRegistry()
	first := &recorder{name: "first", fail: true}
	second := &recorder{name: "second"}
	_ = r.Register(first)
	_ = r.Register(second)

	r.EmitNoteTransferred(ctx, &plugin.TransferEvent{Result: &note.Note{ID: 9}})

	if len(first.events) != 1 || len(second.events) != 1 {
		t.Errorf("expected both plugins to be called, got %v and %v", first.events, second.events)
	}
}

func TestList(t *testing.T) {
	r := plugin.NewRegistry()
	_ = r.Register(nameOnly{"a"})
	_ = r.Register(nameOnly{"b"})

	list := r.List()
	if len(list) != 2 || list[0].Name() != "a" || list[1].Name() != "b" {
		t.Errorf("List: got %v", list)
	}
}
