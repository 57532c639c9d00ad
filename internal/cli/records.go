package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func newGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get <schema> [name]",
		Short: "Print one record with its child rows",
		Long: `Get loads a record through the document layer and prints it as JSON.
Single schemas take no name.

Example:
  folio get Party ACME
  folio get Settings`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			name := ""
			if len(args) == 2 {
				name = args[1]
			}
			d, err := s.cache.Get(cmd.Context(), args[0], name)
			if err != nil {
				return err
			}
			raw, err := convert.New(s.cache.Schemas()).ToRawRecord(args[0], d.Record())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), raw)
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	var (
		fields  []string
		orderBy string
		asc     bool
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list <schema> [field=value...]",
		Short: "List records with optional filters",
		Long: `List queries the records of a schema. Filters are field=value pairs and
are ANDed together. JSON lists and objects are decoded, so
'qty=[">", 2]' selects rows with qty greater than 2.

Example:
  folio list Invoice
  folio list Invoice party=ACME --fields name,party,total
  folio list Invoice 'total=[">=", 100]' --order-by total --limit 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filters, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			opts := types.QueryOptions{
				Fields:  fields,
				Filters: types.Filters(filters),
				OrderBy: orderBy,
				Limit:   limit,
			}
			if asc {
				opts.Order = types.OrderAsc
			}
			recs, err := s.mgr.Store().GetAll(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if recs == nil {
				recs = []types.Record{}
			}
			return writeJSON(cmd.OutOrStdout(), recs)
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to return (default: name)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "field to sort by (default: created)")
	cmd.Flags().BoolVar(&asc, "asc", false, "sort ascending")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of records")
	return cmd
}

func newInsertCmd(a *app) *cobra.Command {
	var (
		data   string
		submit bool
	)
	cmd := &cobra.Command{
		Use:   "insert <schema> [field=value...]",
		Short: "Create a record through the document lifecycle",
		Long: `Insert builds a new document, applies defaults and formulas, validates
it, assigns a name by the schema's naming rule and saves it. Values come
from field=value pairs or from a JSON object given with --data; pairs
override the object. Child rows are given as a JSON list.

Example:
  folio insert Party name=ACME partyName="Acme Ltd"
  folio insert Invoice party=ACME 'items=[{"item":"Apple","qty":2}]' --submit`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := types.Record{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &values); err != nil {
					return types.NewValueError("invalid --data: %v", err)
				}
			}
			pairs, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			for k, v := range pairs {
				values[k] = v
			}

			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.cache.New(args[0], values)
			if err != nil {
				return err
			}
			if err := d.Sync(cmd.Context()); err != nil {
				return err
			}
			if submit {
				if err := d.Submit(cmd.Context()); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), d.Name())
			return nil
		},
	}
	cmd.Flags().StringVar(&data, "data", "", "record values as a JSON object")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit the record after saving it")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var cancel bool
	cmd := &cobra.Command{
		Use:   "delete <schema> <name>",
		Short: "Delete a record and its child rows",
		Long: `Delete removes a record. Submitted records must be cancelled first;
--cancel does that in the same call.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer s.Close()

			d, err := s.cache.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if cancel {
				if err := d.Cancel(cmd.Context()); err != nil {
					return err
				}
			}
			if err := d.Delete(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().BoolVar(&cancel, "cancel", false, "cancel a submitted record before deleting it")
	return cmd
}

// parseAssignments turns field=value arguments into a map. JSON lists and
// objects are decoded; scalars stay strings and are converted by field type
// downstream.
func parseAssignments(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, types.NewValueError("invalid assignment %q (expected field=value)", arg)
		}
		out[key] = value
		if trimmed := strings.TrimSpace(value); strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
				return nil, types.NewValueError("invalid JSON for %s: %v", key, err)
			}
			out[key] = parsed
		}
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
