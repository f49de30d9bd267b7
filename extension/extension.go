// Package extension provides the Forge extension adapter for Pledge.
//
// It implements the forge.Extension interface to integrate the ledger
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.pledge" or "pledge" keys.
package extension

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/pledge"
	"github.com/xraph/pledge/api"
	"github.com/xraph/pledge/store"
	"github.com/xraph/pledge/store/leveldb"
	"github.com/xraph/pledge/store/memory"
	"github.com/xraph/pledge/store/mongo"
	"github.com/xraph/pledge/store/postgres"
	"github.com/xraph/pledge/store/sqlite"
	"github.com/xraph/pledge/types"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "pledge"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Custodial fund-accounting ledger with delegated spending"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Pledge as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *pledge.Ledger
	handler    *api.Handler
	store      store.Store
	groveDB    *grove.DB
	ledgerOpts []pledge.Option
}

// New creates a new Pledge Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Ledger instance.
// This is nil until Register is called.
func (e *Extension) Engine() *pledge.Ledger { return e.engine }

// Handler returns the HTTP handler serving the ledger, or nil when routes
// are disabled.
func (e *Extension) Handler() *api.Handler { return e.handler }

// Register implements [forge.Extension]. It loads configuration,
// initializes the ledger engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := openStore(e.config, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = pledge.New(e.store, e.buildLedgerOpts()...)

	if err := vessel.Provide(fapp.Container(), func() (*pledge.Ledger, error) {
		return e.engine, nil
	}); err != nil {
		return err
	}

	if e.config.DisableRoutes {
		return nil
	}
	e.handler = api.New(e.engine, api.WithBasePath(e.config.BasePath))
	return vessel.Provide(fapp.Container(), func() (*api.Handler, error) {
		return e.handler, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("pledge: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("pledge: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildLedgerOpts constructs pledge.Option values from the resolved config.
func (e *Extension) buildLedgerOpts() []pledge.Option {
	opts := make([]pledge.Option, 0, len(e.ledgerOpts)+2)

	opts = append(opts, pledge.WithCurrency(e.config.Currency))

	if len(e.config.VaultOperators) > 0 {
		addrs := make([]types.Address, len(e.config.VaultOperators))
		for i, a := range e.config.VaultOperators {
			addrs[i] = types.Address(a)
		}
		opts = append(opts, pledge.WithVaultOperators(addrs...))
	}

	// Pass-through options come last so they win.
	opts = append(opts, e.ledgerOpts...)

	return opts
}

// openStore builds the store backend named by cfg.Driver.
func openStore(cfg Config, db *grove.DB) (store.Store, error) {
	driver := strings.ToLower(cfg.Driver)
	switch driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverLevelDB:
		return leveldb.New(cfg.LevelDBPath, leveldb.WithCache(cfg.LevelDBCache))
	case DriverPostgres, DriverSQLite, DriverMongo:
		if db == nil {
			return nil, fmt.Errorf("pledge: driver %q requires a grove database; use WithGroveDB", driver)
		}
	default:
		return nil, fmt.Errorf("pledge: unknown store driver %q", cfg.Driver)
	}

	switch driver {
	case DriverPostgres:
		return postgres.New(db), nil
	case DriverSQLite:
		return sqlite.New(db), nil
	default:
		return mongo.New(db), nil
	}
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("pledge: configuration is required but not found in config files; " +
				"ensure 'extensions.pledge' or 'pledge' key exists in your config")
		}
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("pledge: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("currency", e.config.Currency),
		forge.F("driver", e.config.Driver),
		forge.F("vault_operators", len(e.config.VaultOperators)),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()

	for _, key := range []string{"extensions.pledge", "pledge"} {
		if !cm.IsSet(key) {
			continue
		}
		var cfg Config
		if err := cm.Bind(key, &cfg); err != nil {
			e.Logger().Warn("pledge: failed to bind config",
				forge.F("key", key),
				forge.F("error", err.Error()),
			)
			continue
		}
		e.Logger().Debug("pledge: loaded config from file", forge.F("key", key))
		return cfg, true
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.LevelDBPath == "" {
		cfg.LevelDBPath = defaults.LevelDBPath
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.BasePath == "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.Driver == "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.LevelDBPath == "" {
		yamlConfig.LevelDBPath = programmaticConfig.LevelDBPath
	}
	if yamlConfig.LevelDBCache == 0 {
		yamlConfig.LevelDBCache = programmaticConfig.LevelDBCache
	}
	if len(yamlConfig.VaultOperators) == 0 {
		yamlConfig.VaultOperators = programmaticConfig.VaultOperators
	}

	return mergeWithDefaults(yamlConfig)
}
