package extension

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/store/leveldb"
	"github.com/xraph/pledge/store/memory"
)

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{Currency: "usd", Driver: DriverLevelDB}
	prog := Config{
		DisableMigrate: true,
		Currency:       "eth",
		BasePath:       "/funds",
		VaultOperators: []string{"0xop"},
	}

	got := mergeConfigurations(yaml, prog)
	assert.True(t, got.DisableMigrate)
	assert.Equal(t, "usd", got.Currency)
	assert.Equal(t, DriverLevelDB, got.Driver)
	assert.Equal(t, "/funds", got.BasePath)
	assert.Equal(t, []string{"0xop"}, got.VaultOperators)
	assert.Equal(t, "pledge.db", got.LevelDBPath)
}

func TestMergeWithDefaults(t *testing.T) {
	got := mergeWithDefaults(Config{})
	assert.Equal(t, DefaultConfig(), got)
}

func TestOpenStore(t *testing.T) {
	s, err := openStore(Config{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	dir := filepath.Join(t.TempDir(), "ledger")
	s, err = openStore(Config{Driver: "LevelDB", LevelDBPath: dir}, nil)
	require.NoError(t, err)
	assert.IsType(t, &leveldb.Store{}, s)
	require.NoError(t, s.Close())

	_, err = openStore(Config{Driver: DriverPostgres}, nil)
	require.ErrorContains(t, err, "WithGroveDB")

	_, err = openStore(Config{Driver: "redis"}, nil)
	require.ErrorContains(t, err, "unknown store driver")
}

func TestBuildLedgerOpts(t *testing.T) {
	e := New(WithConfig(Config{Currency: "USD", VaultOperators: []string{"0xOP"}}))
	l := pledge.New(memory.New(), e.buildLedgerOpts()...)
	assert.Equal(t, "usd", l.Currency())
}
