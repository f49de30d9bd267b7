package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/note"
	"github.com/xraph/pledge/store/memory"
	"github.com/xraph/pledge/types"
	"github.com/xraph/pledge/vault"
)

func replay(t *testing.T, script *Script) (*Runner, *pledge.Ledger, error) {
	t.Helper()

	mock := clock.NewMock()
	mock.Set(script.Start)
	wallet := vault.NewWallet("eth")

	opts := []pledge.Option{
		pledge.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		pledge.WithClock(mock),
		pledge.WithSink(wallet),
	}
	for _, op := range script.Operators {
		opts = append(opts, pledge.WithVaultOperators(types.Address(op)))
	}
	l := pledge.New(memory.New(), opts...)
	require.NoError(t, l.Start(context.Background()))
	t.Cleanup(func() { _ = l.Stop() })

	r := NewRunner(l, mock, wallet, &bytes.Buffer{})
	return r, l, r.Run(context.Background(), script.Steps)
}

func TestWalkthroughScript(t *testing.T) {
	data, err := os.ReadFile("../../examples/walkthrough.yaml")
	require.NoError(t, err)
	script, err := ParseScript(data)
	require.NoError(t, err)

	r, l, err := replay(t, script)
	require.NoError(t, err)

	st, err := l.State(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Notes, 15)
	assert.Equal(t, types.MustParse("0.16", "eth"), st.Total(note.Paid))

	total := st.Total(note.NotPaid).Add(st.Total(note.Paying)).Add(st.Total(note.Paid))
	assert.Equal(t, types.MustParse("1", "eth"), total)
	assert.Equal(t, "3", r.Var("n3"))
}

func TestScriptExpectations(t *testing.T) {
	script, err := ParseScript([]byte(`
start: 2026-03-01T12:00:00Z
steps:
  - {op: add_donor, caller: "0xd1", name: Donor, save: d}
  - {op: donate, caller: "0xd2", donor: $d, amount: "1", expect: unauthorized}
`))
	require.NoError(t, err)
	_, _, err = replay(t, script)
	require.NoError(t, err)

	script, err = ParseScript([]byte(`
steps:
  - {op: add_donor, caller: "0xd1", name: Donor, save: d}
  - {op: donate, caller: "0xd1", donor: $d, amount: "1", expect: unauthorized}
`))
	require.NoError(t, err)
	_, _, err = replay(t, script)
	require.ErrorContains(t, err, "expected unauthorized")
}

func TestParseScriptRejects(t *testing.T) {
	_, err := ParseScript([]byte("steps:\n  - {caller: '0x1'}\n"))
	require.ErrorContains(t, err, "missing op")

	_, err = ParseScript([]byte("steps:\n  - {op: donate, expect: broke}\n"))
	require.ErrorContains(t, err, "unknown expectation")
}

func TestUnboundReference(t *testing.T) {
	script, err := ParseScript([]byte("steps:\n  - {op: check, note: $nope}\n"))
	require.NoError(t, err)
	_, _, err = replay(t, script)
	require.ErrorContains(t, err, "unbound reference $nope")
}
