package cli

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/folio/internal/dbmanager"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func newCallCmd(a *app) *cobra.Command {
	var (
		request  string
		readOnly bool
	)
	cmd := &cobra.Command{
		Use:   "call <method>",
		Short: "Invoke a storage method directly",
		Long: `Call sends one request to the storage engine, bypassing the document
layer, and prints the result as JSON. The request is a JSON object with
the arguments the method reads (schema, name, newName, values, fields,
options, filters, keys, query, args); "-" reads it from stdin.

Methods: insert, get, getAll, update, delete, deleteAll, rename, exists,
getSingleValues, getSchemaMap, bespoke.

Example:
  folio call exists --request '{"schema":"Party","name":"ACME"}'
  folio call bespoke --request '{"query":"sumField","args":{"schema":"Invoice","field":"total"}}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			method, err := dbmanager.ParseMethod(args[0])
			if err != nil {
				return err
			}
			req, err := readRequest(cmd.InOrStdin(), request)
			if err != nil {
				return err
			}
			req.Method = method

			cfg, err := a.config()
			if err != nil {
				return err
			}
			schemas, err := loadSchemas(cfg.SchemaDir)
			if err != nil {
				return err
			}
			var opts []dbmanager.Option
			opts = append(opts, dbmanager.WithLogger(a.log))
			if readOnly {
				opts = append(opts, dbmanager.WithAllowedMethods(dbmanager.ReadOnlyMethods...))
			}
			mgr, err := dbmanager.New(cfg, schemas, opts...)
			if err != nil {
				return err
			}
			if err := mgr.ConnectToDatabase(cmd.Context(), mgr.DefaultPath()); err != nil {
				return err
			}
			defer mgr.Close()

			result, err := mgr.Call(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"result": result})
		},
	}
	cmd.Flags().StringVar(&request, "request", "{}", `request as a JSON object, or "-" for stdin`)
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "reject methods that write")
	return cmd
}

func readRequest(stdin io.Reader, src string) (dbmanager.Request, error) {
	var req dbmanager.Request
	var r io.Reader = strings.NewReader(src)
	if src == "-" {
		r = stdin
	}
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return req, types.NewValueError("invalid request: %v", err)
	}
	if req.Query != "" && req.Args.Schema == "" {
		req.Args.Schema = req.Schema
	}
	return req, nil
}
