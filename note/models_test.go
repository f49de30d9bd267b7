package note

import (
	"testing"
	"time"

	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/types"
)

var t0 = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func proposed() *Note {
	return &Note{
		ID:              4,
		Amount:          types.New(100, "eth"),
		Owner:           1,
		Delegates:       []manager.ID{2, 3},
		ProposedProject: 5,
		CommitTime:      t0.Add(time.Hour),
		PaymentState:    NotPaid,
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name      string
		now       time.Time
		changed   bool
		wantOwner manager.ID
	}{
		{"before commit time", t0, false, 1},
		{"at commit time", t0.Add(time.Hour), true, 5},
		{"after commit time", t0.Add(2 * time.Hour), true, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := proposed()
			if got := Normalize(n, tt.now); got != tt.changed {
				t.Fatalf("Normalize: got %v, want %v", got, tt.changed)
			}
			if n.Owner != tt.wantOwner {
				t.Errorf("Owner: got %d, want %d", n.Owner, tt.wantOwner)
			}
			if tt.changed {
				if len(n.Delegates) != 0 || n.HasProposal() || !n.CommitTime.IsZero() {
					t.Errorf("expected cleared chain and proposal, got %+v", n)
				}
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := proposed()
	now := t0.Add(3 * time.Hour)
	Normalize(n, now)
	first := *n.Clone()

	if Normalize(n, now) {
		t.Error("second Normalize reported a change")
	}
	if n.Owner != first.Owner || len(n.Delegates) != len(first.Delegates) || n.ProposedProject != first.ProposedProject {
		t.Errorf("second Normalize changed note: %+v != %+v", n, first)
	}
}

func TestNormalizeWithoutProposal(t *testing.T) {
	n := &Note{ID: 1, Owner: 1, Delegates: []manager.ID{2}}
	if Normalize(n, t0) {
		t.Error("Normalize changed a note without a proposal")
	}
	if n.DelegateIndex(2) != 0 {
		t.Error("chain was modified")
	}
}

func TestLocked(t *testing.T) {
	n := proposed()
	if !n.Locked(t0) {
		t.Error("expected locked before commit time")
	}
	if n.Locked(t0.Add(time.Hour)) {
		t.Error("expected unlocked at commit time")
	}
	n.ClearProposal()
	if n.Locked(t0) {
		t.Error("note without proposal is never locked")
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	n := proposed()
	c := n.Clone()
	c.Delegates[0] = 99
	if n.Delegates[0] != 2 {
		t.Error("Clone shares the delegation chain")
	}
}

func TestListOptsMatch(t *testing.T) {
	n := proposed()
	tests := []struct {
		name string
		opts ListOpts
		want bool
	}{
		{"no filter", ListOpts{}, true},
		{"owner match", ListOpts{Owner: 1}, true},
		{"owner mismatch", ListOpts{Owner: 2}, false},
		{"state match", ListOpts{PaymentState: NotPaid}, true},
		{"state mismatch", ListOpts{PaymentState: Paid}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.Match(n); got != tt.want {
				t.Errorf("Match: got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID("12"); err != nil || id != 12 {
		t.Errorf("ParseID(12): got (%d, %v)", id, err)
	}
	for _, bad := range []string{"", "0", "-1", "x"} {
		if _, err := ParseID(bad); err == nil {
			t.Errorf("ParseID(%q): expected error", bad)
		}
	}
}
