package types

import "errors"

// Config holds backend selection and connection parameters for the
// connection manager.
type Config struct {
	Backend   string `json:"backend" yaml:"backend"`
	DataDir   string `json:"data_dir" yaml:"data_dir"`
	DBFile    string `json:"db_file" yaml:"db_file"`
	BackupDir string `json:"backup_dir" yaml:"backup_dir"`
	SchemaDir string `json:"schema_dir" yaml:"schema_dir"`
	// Version is the application version patches are compared against.
	Version string `json:"version" yaml:"version"`
	// User is stamped into createdBy/modifiedBy.
	User string `json:"user" yaml:"user"`
	// Dev attaches stack traces to user-visible errors and switches the
	// logger to development output.
	Dev bool `json:"dev" yaml:"dev"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// Defaults applied by Validate callers.
const (
	DefaultDBFile  = "folio.db"
	DefaultUser    = "Admin"
	DefaultVersion = "v0.1.0"
)

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrVersionEmpty   = errors.New("version must not be empty")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.Version == "" {
		return ErrVersionEmpty
	}
	return nil
}

// WithDefaults returns a copy of c with empty optional values filled in.
func (c Config) WithDefaults() Config {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.DBFile == "" {
		c.DBFile = DefaultDBFile
	}
	if c.User == "" {
		c.User = DefaultUser
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	return c
}
