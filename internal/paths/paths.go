// Package paths resolves where folio keeps its configuration, schema
// definitions, databases and backups.
//
// Every directory is picked from a precedence chain. Command-line flags
// always win. Environment variables come next, except for the data
// directory, where a data_dir written to config.yaml by init is preferred
// over FOLIO_DATA_DIR. The last link of each chain is a default derived
// from the platform or from another resolved directory.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultDataDirName is the data directory created in the working
// directory when nothing else is configured.
const DefaultDataDirName = ".folio-db"

// Names of the directories folio derives from others.
const (
	appDirName    = "folio"
	SchemaDirName = "schemas"
	BackupDirName = "backups"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "FOLIO_CONFIG_DIR"
	EnvDataDir   = "FOLIO_DATA_DIR"
	EnvSchemaDir = "FOLIO_SCHEMA_DIR"
	EnvBackupDir = "FOLIO_BACKUP_DIR"
)

// platformDir holds platform-detection functions that can be overridden in tests.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
	getwd         func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
	getwd:         os.Getwd,
}

// platformRoot is an XDG base directory on linux. Other platforms use the
// user config dir for both roots.
type platformRoot struct {
	xdgEnv   string
	fallback []string // below $HOME
}

var (
	configRoot = platformRoot{xdgEnv: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataRoot   = platformRoot{xdgEnv: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

func (r platformRoot) appDir() (string, error) {
	if runtime.GOOS != "linux" {
		dir, err := platformDir.userConfigDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, appDirName), nil
	}
	if xdg := os.Getenv(r.xdgEnv); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append(append([]string{home}, r.fallback...), appDirName)...), nil
}

// DefaultConfigDir returns the platform-specific default configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/folio (fallback ~/.config/folio)
// macOS:   ~/Library/Application Support/folio
// Windows: %APPDATA%/folio
func DefaultConfigDir() (string, error) { return configRoot.appDir() }

// DefaultDataDir returns the platform-specific shared data directory. It is
// not part of the data dir chain; init --shared writes it to config.yaml
// for databases used from several working directories.
//
// Linux:   $XDG_DATA_HOME/folio (fallback ~/.local/share/folio)
// macOS and Windows: same as DefaultConfigDir
func DefaultDataDir() (string, error) { return dataRoot.appDir() }

// candidate is one link of a precedence chain. A relative value is joined
// to base, or made absolute against the working directory when base is
// empty.
type candidate struct {
	value string
	base  string
}

func fromEnv(name string) candidate { return candidate{value: os.Getenv(name)} }

// pick returns the first non-empty candidate as an absolute path, or ok
// false when every candidate is empty.
func pick(chain ...candidate) (dir string, ok bool, err error) {
	for _, c := range chain {
		if c.value == "" {
			continue
		}
		if filepath.IsAbs(c.value) {
			return filepath.Clean(c.value), true, nil
		}
		if c.base != "" {
			return filepath.Join(c.base, c.value), true, nil
		}
		dir, err := filepath.Abs(c.value)
		return dir, true, err
	}
	return "", false, nil
}

// ResolveConfigDir picks flag > FOLIO_CONFIG_DIR > DefaultConfigDir().
func ResolveConfigDir(flag string) (string, error) {
	dir, ok, err := pick(candidate{value: flag}, fromEnv(EnvConfigDir))
	if ok || err != nil {
		return dir, err
	}
	return DefaultConfigDir()
}

// ResolveDataDir picks flag > configYAMLValue > FOLIO_DATA_DIR >
// $(CWD)/.folio-db.
func ResolveDataDir(flag, configYAMLValue string) (string, error) {
	dir, ok, err := pick(candidate{value: flag}, candidate{value: configYAMLValue}, fromEnv(EnvDataDir))
	if ok || err != nil {
		return dir, err
	}
	cwd, err := platformDir.getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}

// ResolveSchemaDir picks flag > FOLIO_SCHEMA_DIR > configYAMLValue >
// <configDir>/schemas. A relative config.yaml value is taken from configDir.
func ResolveSchemaDir(flag, configYAMLValue, configDir string) (string, error) {
	dir, ok, err := pick(
		candidate{value: flag},
		fromEnv(EnvSchemaDir),
		candidate{value: configYAMLValue, base: configDir},
	)
	if ok || err != nil {
		return dir, err
	}
	return filepath.Join(configDir, SchemaDirName), nil
}

// ResolveBackupDir picks flag > FOLIO_BACKUP_DIR > configYAMLValue >
// <dataDir>/backups. A relative config.yaml value is taken from dataDir.
func ResolveBackupDir(flag, configYAMLValue, dataDir string) (string, error) {
	dir, ok, err := pick(
		candidate{value: flag},
		fromEnv(EnvBackupDir),
		candidate{value: configYAMLValue, base: dataDir},
	)
	if ok || err != nil {
		return dir, err
	}
	return filepath.Join(dataDir, BackupDirName), nil
}

// Flags are directory overrides given on the command line.
type Flags struct {
	DataDir   string
	SchemaDir string
	BackupDir string
}

// FileValues are the directory settings read from config.yaml.
type FileValues struct {
	DataDir   string
	SchemaDir string
	BackupDir string
}

// Layout is the resolved set of directories for one invocation.
type Layout struct {
	Config  string
	Data    string
	Schemas string
	Backups string
}

// ResolveLayout resolves the data, schema and backup directories below an
// already resolved configuration directory.
func ResolveLayout(configDir string, flags Flags, file FileValues) (Layout, error) {
	l := Layout{Config: configDir}
	var err error
	if l.Data, err = ResolveDataDir(flags.DataDir, file.DataDir); err != nil {
		return Layout{}, err
	}
	if l.Schemas, err = ResolveSchemaDir(flags.SchemaDir, file.SchemaDir, configDir); err != nil {
		return Layout{}, err
	}
	if l.Backups, err = ResolveBackupDir(flags.BackupDir, file.BackupDir, l.Data); err != nil {
		return Layout{}, err
	}
	return l, nil
}
