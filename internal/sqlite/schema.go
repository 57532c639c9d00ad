package sqlite

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

const datetimeLayout = convert.DatetimeLayout

// rebuildPrefix names the replacement table used while rebuilding a table to
// add foreign keys.
const rebuildPrefix = "__"

// quote returns a quoted SQL identifier.
func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// columnType maps a fieldtype to its SQLite column type. Date and Datetime
// are TEXT so the driver returns the stored ISO strings unchanged.
func columnType(ft types.FieldType) string {
	switch ft {
	case types.FieldInt, types.FieldCheck:
		return "INTEGER"
	case types.FieldFloat:
		return "REAL"
	}
	return "TEXT"
}

// columnDef renders one column definition. notNull is dropped when the
// column is added to an existing table without a default.
func columnDef(f *types.Field, forAlter bool) string {
	var b strings.Builder
	b.WriteString(quote(f.Fieldname))
	b.WriteByte(' ')
	b.WriteString(columnType(f.Fieldtype))

	if f.Fieldname == types.FieldName {
		b.WriteString(" PRIMARY KEY NOT NULL")
		return b.String()
	}

	def, hasDefault := defaultLiteral(f)
	if f.Required && (!forAlter || hasDefault) {
		b.WriteString(" NOT NULL")
	}
	if hasDefault {
		b.WriteString(" DEFAULT ")
		b.WriteString(def)
	}
	return b.String()
}

// defaultLiteral renders the schema default of f as an SQL literal.
func defaultLiteral(f *types.Field) (string, bool) {
	if f.Default == nil {
		return "", false
	}
	raw, err := convert.ToRawValue(f.Default, f)
	if err != nil || raw == nil {
		return "", false
	}
	return literal(raw), true
}

func literal(v any) string {
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	}
	return "'" + strings.ReplaceAll(fmt.Sprint(v), "'", "''") + "'"
}

// foreignKeyDef renders the constraint for a Link field, or "" when the
// target has no table of its own.
func foreignKeyDef(f *types.Field, schemas types.SchemaMap) string {
	if f.Fieldtype != types.FieldLink || f.Computed {
		return ""
	}
	target, ok := schemas[f.Target]
	if !ok || !target.HasTable() {
		return ""
	}
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON UPDATE CASCADE ON DELETE RESTRICT",
		quote(f.Fieldname), quote(target.Name), quote(types.FieldName))
}

// foreignKeyFields returns the column fields that carry a foreign key.
func foreignKeyFields(s *types.Schema, schemas types.SchemaMap) []*types.Field {
	var out []*types.Field
	for _, f := range s.ColumnFields() {
		if foreignKeyDef(f, schemas) != "" {
			out = append(out, f)
		}
	}
	return out
}

// createTableSQL renders CREATE TABLE for schema s under tableName.
func createTableSQL(s *types.Schema, tableName string, schemas types.SchemaMap) string {
	var defs []string
	for _, f := range s.ColumnFields() {
		defs = append(defs, columnDef(f, false))
	}
	for _, f := range s.ColumnFields() {
		if fk := foreignKeyDef(f, schemas); fk != "" {
			defs = append(defs, fk)
		}
	}
	return fmt.Sprintf("CREATE TABLE %s (\n    %s\n)", quote(tableName), strings.Join(defs, ",\n    "))
}

// indexSQL renders the secondary indexes of s.
func indexSQL(s *types.Schema) []string {
	switch {
	case s.Name == types.SchemaSingleValue:
		return []string{fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s, %s)",
			quote("idx_"+s.Name+"_parent_fieldname"), quote(s.Name),
			quote(types.FieldParent), quote("fieldname"))}
	case s.IsChild:
		return []string{fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s, %s, %s)",
			quote("idx_"+s.Name+"_parent"), quote(s.Name),
			quote(types.FieldParent), quote(types.FieldParentSchema), quote(types.FieldParentFieldname))}
	}
	return nil
}

func addColumnSQL(table string, f *types.Field) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", quote(table), columnDef(f, true))
}

func dropColumnSQL(table, column string) string {
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", quote(table), quote(column))
}

func columnList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quote(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
