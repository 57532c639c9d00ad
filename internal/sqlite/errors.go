package sqlite

import (
	"errors"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// dbError classifies a driver error into a *types.Error of kind
// DatabaseError. Constraint failures carry a code, and the schema and field
// named by the engine message, in Detail. Errors that are already
// *types.Error pass through.
func dbError(err error, schemaName, op string) error {
	if err == nil {
		return nil
	}
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}

	e := types.NewDatabaseError(err, "%s %s: %v", op, schemaName, err).
		WithDetail("schemaName", schemaName)
	code, table, field := classify(err)
	if code != "" {
		e.WithDetail("code", code)
	}
	if table != "" {
		e.WithDetail("schemaName", table)
	}
	if field != "" {
		e.WithDetail("fieldname", field)
	}
	return e
}

// classify returns the storage error code and, for constraint failures on a
// single column, the table and column named by the engine.
func classify(err error) (code, table, field string) {
	msg := err.Error()

	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			table, field = constraintColumn(msg)
			return types.DBCodeUnique, table, field
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return types.DBCodeForeignKey, "", ""
		case sqlite3.SQLITE_CONSTRAINT_NOTNULL:
			table, field = constraintColumn(msg)
			return types.DBCodeNotNull, table, field
		}
	}

	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		table, field = constraintColumn(msg)
		return types.DBCodeUnique, table, field
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return types.DBCodeForeignKey, "", ""
	case strings.Contains(msg, "NOT NULL constraint failed"):
		table, field = constraintColumn(msg)
		return types.DBCodeNotNull, table, field
	case strings.Contains(msg, "no such table"):
		return types.DBCodeNoTable, "", ""
	}
	return "", "", ""
}

// constraintColumn extracts table and column from
// "... constraint failed: Table.column (code)". Multi-column constraints
// yield empty strings.
func constraintColumn(msg string) (table, column string) {
	const marker = "constraint failed: "
	i := strings.LastIndex(msg, marker)
	if i < 0 {
		return "", ""
	}
	rest := strings.TrimSpace(msg[i+len(marker):])
	if strings.Contains(rest, ",") {
		return "", ""
	}
	if i := strings.IndexAny(rest, " )("); i >= 0 {
		rest = rest[:i]
	}
	table, column, ok := strings.Cut(rest, ".")
	if !ok {
		return "", ""
	}
	return table, column
}

// isNoTable reports whether err is "no such table".
func isNoTable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, types.ErrTableNotFound) {
		return true
	}
	return strings.Contains(err.Error(), "no such table")
}
