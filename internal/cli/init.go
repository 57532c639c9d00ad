package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/paths"
)

func newInitCmd(a *app) *cobra.Command {
	var force, shared bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize folio configuration and storage",
		Long: `Create the configuration, schema and data directories, write a default
config.yaml when none exists, then create and migrate the database.

An existing database is kept and migrated unless --force is given. With
--shared and no --data-dir, config.yaml points at the platform data
directory instead of the working directory.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(a.configDir, 0o755); err != nil {
				return fmt.Errorf("create config directory: %w", err)
			}
			configPath := filepath.Join(a.configDir, configFileExt)
			dataDir := a.flags.dataDir
			if shared && dataDir == "" {
				dir, err := paths.DefaultDataDir()
				if err != nil {
					return fmt.Errorf("resolve shared data dir: %w", err)
				}
				dataDir = dir
			}
			written, err := writeConfigIfMissing(configPath, dataDir)
			if err != nil {
				return err
			}
			if written {
				// Pick up the values just written.
				if err := a.setup(); err != nil {
					return err
				}
			}

			cfg, err := a.config()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.SchemaDir, 0o755); err != nil {
				return fmt.Errorf("create schema directory: %w", err)
			}

			s, err := a.open(cmd.Context(), force)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Folio initialized at %s\n", s.mgr.DefaultPath())
			if written {
				fmt.Fprintf(out, "Wrote %s\n", configPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing database")
	cmd.Flags().BoolVar(&shared, "shared", false, "keep databases in the platform data directory")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run due patches and migrate the database to the schema catalogue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			out := cmd.OutOrStdout()
			for _, b := range s.mgr.Backups() {
				fmt.Fprintf(out, "Backup written to %s\n", b)
			}
			fmt.Fprintf(out, "Database %s is up to date\n", s.mgr.DefaultPath())
			return nil
		},
	}
}
