package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <schema> <file>",
		Short: "Write the records of a schema to a JSONL file",
		Long: `Export writes one JSON object per record, ordered by name, with child
rows embedded. An existing file is replaced.

Example:
  folio export Party party.jsonl`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.mgr.Store().Export(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d %s records to %s\n", n, args[0], args[1])
			return nil
		},
	}
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <schema> <file>",
		Short: "Insert records from a JSONL file",
		Long: `Import inserts the records of a JSONL file as written by export. Records
whose name is already stored are skipped, as are lines that are not JSON
objects. Values are stored as given; formulas and validations do not run.

Example:
  folio import Party party.jsonl`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			res, err := s.mgr.Store().Import(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d %s records (%d existing, %d malformed)\n",
				res.Inserted, args[0], res.Skipped, res.Malformed)
			return nil
		},
	}
}
