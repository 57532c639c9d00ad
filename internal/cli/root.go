// Package cli implements the folio command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/folio/internal/catalogue"
	"github.com/mesh-intelligence/folio/internal/dbmanager"
	"github.com/mesh-intelligence/folio/internal/document"
	"github.com/mesh-intelligence/folio/internal/paths"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	schemaDir string
	backupDir string
	dbFile    string
	dev       bool
}

// app is the state shared by the commands of one invocation.
type app struct {
	flags     rootFlags
	configDir string
	v         *viper.Viper
	log       *zap.SugaredLogger
}

// NewRootCmd creates the top-level "folio" command with global flags and all
// subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{log: zap.NewNop().Sugar()}
	root := &cobra.Command{
		Use:     "folio",
		Short:   "A schema-driven record store",
		Long:    "Folio stores records of declaratively defined schemas in SQLite and\nruns them through a document lifecycle of naming, validation and submission.",
		Version: version,
		// Do not print usage on errors returned by subcommands.
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = a.log.Sync()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&a.flags.dataDir, "data-dir", "", "data directory (default: $(CWD)/.folio-db)")
	pf.StringVar(&a.flags.schemaDir, "schema-dir", "", "schema definition directory (default: <config-dir>/schemas)")
	pf.StringVar(&a.flags.backupDir, "backup-dir", "", "backup directory (default: <data-dir>/backups)")
	pf.StringVar(&a.flags.dbFile, "db", "", "database file name inside the data directory")
	pf.BoolVar(&a.flags.dev, "dev", false, "development logging and stack traces on errors")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(a),
		newMigrateCmd(a),
		newGetCmd(a),
		newListCmd(a),
		newInsertCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newCallCmd(a),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "folio:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps storage and filesystem failures to exitSysError and
// everything the user can fix to exitUserError.
func exitCode(err error) int {
	var pathErr *os.PathError
	switch {
	case types.KindOf(err) == types.KindDatabase, errors.As(err, &pathErr):
		return exitSysError
	}
	return exitUserError
}

// setup resolves the configuration directory, loads config.yaml and builds
// the logger.
func (a *app) setup() error {
	configDir, err := paths.ResolveConfigDir(a.flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	v, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	a.configDir, a.v = configDir, v

	log, err := newLogger(a.flags.dev || v.GetBool(cfgKeyDev))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	a.log = log
	return nil
}

// session is an open database with its document cache.
type session struct {
	mgr   *dbmanager.Manager
	cache *document.Cache
}

func (s *session) Close() error {
	return s.mgr.Close()
}

// open connects to the configured database, migrating and patching it.
// With fresh set, an existing database file is replaced.
func (a *app) open(ctx context.Context, fresh bool) (*session, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	schemas, err := loadSchemas(cfg.SchemaDir)
	if err != nil {
		return nil, err
	}
	mgr, err := dbmanager.New(cfg, schemas, dbmanager.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	connect := mgr.ConnectToDatabase
	if fresh {
		connect = mgr.CreateNewDatabase
	}
	if err := connect(ctx, mgr.DefaultPath()); err != nil {
		return nil, err
	}
	cache := document.NewCache(mgr.Store(),
		document.WithLogger(a.log),
		document.WithUser(cfg.User),
		document.WithDev(cfg.Dev),
	)
	return &session{mgr: mgr, cache: cache}, nil
}

// loadSchemas builds the catalogue from dir. A missing directory yields the
// core schemas only.
func loadSchemas(dir string) (types.SchemaMap, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return catalogue.Build(nil)
	}
	schemas, err := catalogue.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load schemas: %w", err)
	}
	return schemas, nil
}
