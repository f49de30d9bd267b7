package extension

// Store drivers understood by the extension.
const (
	DriverMemory   = "memory"
	DriverLevelDB  = "leveldb"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the Pledge extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.pledge" or "pledge" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for pledge routes (default: "/pledge").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// Currency is the asset every amount is expressed in (default: "eth").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// VaultOperators lists the addresses allowed to confirm and cancel
	// payments. Empty means anyone.
	VaultOperators []string `json:"vault_operators" mapstructure:"vault_operators" yaml:"vault_operators"`

	// Driver selects the store backend: memory, leveldb, postgres, sqlite
	// or mongo (default: memory). The grove drivers need WithGroveDB.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// LevelDBPath is the database directory for the leveldb driver.
	LevelDBPath string `json:"leveldb_path" mapstructure:"leveldb_path" yaml:"leveldb_path"`

	// LevelDBCache is the leveldb cache size in megabytes.
	LevelDBCache int `json:"leveldb_cache" mapstructure:"leveldb_cache" yaml:"leveldb_cache"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:    "/pledge",
		Currency:    "eth",
		Driver:      DriverMemory,
		LevelDBPath: "pledge.db",
	}
}
