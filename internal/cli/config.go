package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/folio/internal/paths"
	"github.com/mesh-intelligence/folio/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"
	envPrefix      = "FOLIO"

	cfgKeyBackend   = "backend"
	cfgKeyDataDir   = "data_dir"
	cfgKeyDBFile    = "db_file"
	cfgKeyBackupDir = "backup_dir"
	cfgKeySchemaDir = "schema_dir"
	cfgKeyVersion   = "version"
	cfgKeyUser      = "user"
	cfgKeyDev       = "dev"

	schemaDirName = paths.SchemaDirName
)

// envKeys are the config keys FOLIO_<KEY> environment variables override.
// Directories are not bound here; package paths reads their variables.
var envKeys = []string{cfgKeyDBFile, cfgKeyVersion, cfgKeyUser, cfgKeyDev}

// configFile holds the structure written to config.yaml.
type configFile struct {
	Backend   string `yaml:"backend"`
	DataDir   string `yaml:"data_dir,omitempty"`
	DBFile    string `yaml:"db_file"`
	SchemaDir string `yaml:"schema_dir,omitempty"`
	User      string `yaml:"user"`
}

// loadConfig reads config.yaml from configDir using Viper. A missing file is
// not an error; the defaults apply.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyDBFile, types.DefaultDBFile)
	v.SetDefault(cfgKeyUser, types.DefaultUser)
	v.SetDefault(cfgKeyVersion, version)
	v.SetEnvPrefix(envPrefix)
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// config assembles the connection config from flags, config.yaml and the
// environment.
func (a *app) config() (types.Config, error) {
	layout, err := paths.ResolveLayout(a.configDir,
		paths.Flags{
			DataDir:   a.flags.dataDir,
			SchemaDir: a.flags.schemaDir,
			BackupDir: a.flags.backupDir,
		},
		paths.FileValues{
			DataDir:   a.v.GetString(cfgKeyDataDir),
			SchemaDir: a.v.GetString(cfgKeySchemaDir),
			BackupDir: a.v.GetString(cfgKeyBackupDir),
		})
	if err != nil {
		return types.Config{}, fmt.Errorf("resolve directories: %w", err)
	}

	return types.Config{
		Backend:   a.v.GetString(cfgKeyBackend),
		DataDir:   layout.Data,
		DBFile:    firstNonEmpty(a.flags.dbFile, a.v.GetString(cfgKeyDBFile)),
		BackupDir: layout.Backups,
		SchemaDir: layout.Schemas,
		Version:   a.v.GetString(cfgKeyVersion),
		User:      a.v.GetString(cfgKeyUser),
		Dev:       a.flags.dev || a.v.GetBool(cfgKeyDev),
	}, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. An existing file is left alone.
func writeConfigIfMissing(path, dataDir string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := configFile{
		Backend: types.BackendSQLite,
		DataDir: dataDir,
		DBFile:  types.DefaultDBFile,
		User:    types.DefaultUser,
	}
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return false, fmt.Errorf("write config: %w", err)
	}
	return true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
