package audithook_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/xraph/pledge/audit_hook"
	"github.com/xraph/pledge/id"
	"github.com/xraph/pledge/manager"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/plugin"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

func collect() (*[]*audithook.AuditEvent, audithook.Recorder) {
	var events []*audithook.AuditEvent
	return &events, audithook.RecorderFunc(func(_ context.Context, ev *audithook.AuditEvent) error {
		events = append(events, ev)
		return nil
	})
}

func TestTransferActions(t *testing.T) {
	ctx := context.Background()
	events, rec := collect()
	ext := audithook.New(rec)

	src := &note.Note{ID: 1, Owner: 1}
	amount := types.New(5, "eth")

	tests := []struct {
		name   string
		result *note.Note
		want   string
	}{
		{"OwnerChange", &note.Note{ID: 2, Owner: 3}, audithook.ActionNoteTransferred},
		{"Delegation", &note.Note{ID: 2, Owner: 1, Delegates: []manager.ID{2}}, audithook.ActionNoteDelegated},
		{"Proposal", &note.Note{ID: 2, Owner: 1, Delegates: []manager.ID{2}, ProposedProject: 3}, audithook.ActionProjectProposed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			*events = nil
			err := ext.OnNoteTransferred(ctx, &plugin.TransferEvent{
				Caller: 1, Target: 3, Source: src, Result: tt.result, Amount: amount,
			})
			require.NoError(t, err)
			require.Len(t, *events, 1)

			ev := (*events)[0]
			assert.Equal(t, tt.want, ev.Action)
			assert.Equal(t, audithook.ResourceNote, ev.Resource)
			assert.Equal(t, "2", ev.ResourceID)
			assert.Equal(t, "5", ev.Metadata["amount"])
			assert.Equal(t, "1", ev.Metadata["source_note"])
		})
	}
}

func TestPaymentEvents(t *testing.T) {
	ctx := context.Background()
	events, rec := collect()
	ext := audithook.New(rec)

	p := &vault.Payment{
		ID:      id.NewPaymentID(),
		NoteID:  7,
		Owner:   3,
		Address: "0xa1",
		Amount:  types.New(50, "eth"),
		State:   vault.StateCanceled,
	}
	require.NoError(t, ext.OnPaymentCanceled(ctx, p))
	require.Len(t, *events, 1)

	ev := (*events)[0]
	assert.Equal(t, audithook.ActionPaymentCanceled, ev.Action)
	assert.Equal(t, audithook.SeverityWarning, ev.Severity)
	assert.Equal(t, audithook.CategorySettlement, ev.Category)
	assert.Equal(t, p.ID.String(), ev.ResourceID)
	assert.Equal(t, "canceled", ev.Metadata["state"])
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	m := &manager.Manager{ID: 4, Kind: manager.KindProject, Name: "Project1"}

	events, rec := collect()
	ext := audithook.New(rec, audithook.WithEnabledActions(audithook.ActionProjectCanceled))
	require.NoError(t, ext.OnManagerAdded(ctx, m))
	require.NoError(t, ext.OnProjectCanceled(ctx, m))
	require.Len(t, *events, 1)
	assert.Equal(t, audithook.ActionProjectCanceled, (*events)[0].Action)

	events, rec = collect()
	ext = audithook.New(rec, audithook.WithDisabledActions(audithook.ActionManagerAdded))
	require.NoError(t, ext.OnManagerAdded(ctx, m))
	require.NoError(t, ext.OnProjectCanceled(ctx, m))
	require.Len(t, *events, 1)
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	ext := audithook.New(audithook.RecorderFunc(func(context.Context, *audithook.AuditEvent) error {
		return errors.New("backend down")
	}))
	err := ext.OnDonation(context.Background(), &note.Note{ID: 1, Owner: 1, Amount: types.New(1, "eth")})
	assert.NoError(t, err)
}
