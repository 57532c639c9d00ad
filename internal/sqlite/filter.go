package sqlite

import (
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// condition is one flattened (field, operator, value) filter triple.
type condition struct {
	field string
	op    string
	value any
}

var operators = map[string]bool{
	"=": true, "!=": true, "<": true, ">": true, "<=": true, ">=": true,
	"like": true, "not like": true, "in": true, "not in": true,
	"includes": true, "is": true,
}

// flattenFilters turns a filter map into ordered conditions. Keys are
// visited in sorted order so the generated SQL is stable.
func flattenFilters(filters types.Filters) ([]condition, error) {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var conds []condition
	for _, field := range keys {
		value := filters[field]
		arr, ok := value.([]any)
		if !ok {
			conds = append(conds, condition{field: field, op: "=", value: value})
			continue
		}
		switch len(arr) {
		case 2, 4:
			for i := 0; i < len(arr); i += 2 {
				op, ok := arr[i].(string)
				if !ok || !operators[strings.ToLower(op)] {
					return nil, types.NewValueError("invalid filter operator %v for %s", arr[i], field)
				}
				conds = append(conds, condition{field: field, op: strings.ToLower(op), value: arr[i+1]})
			}
		default:
			return nil, types.NewValueError("filter for %s must be a value, [op, value] or [op, value, op, value]", field)
		}
	}
	return conds, nil
}

// whereClause compiles filters for schema s into " WHERE ..." (or "") and
// its arguments. Field names must belong to s.
func whereClause(s *types.Schema, filters types.Filters) (string, []any, error) {
	conds, err := flattenFilters(filters)
	if err != nil {
		return "", nil, err
	}
	if len(conds) == 0 {
		return "", nil, nil
	}

	var clauses []string
	var args []any
	for _, c := range conds {
		f := s.Field(c.field)
		if f == nil || !f.HasColumn() {
			return "", nil, types.NewValueError("%s has no column %s to filter on", s.Name, c.field)
		}
		clause, cargs, err := compileCondition(f, c)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, clause)
		args = append(args, cargs...)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func compileCondition(f *types.Field, c condition) (string, []any, error) {
	col := quote(c.field)
	switch c.op {
	case "is":
		switch strings.ToLower(fmt.Sprint(c.value)) {
		case "null", "<nil>":
			return col + " IS NULL", nil, nil
		case "not null":
			return col + " IS NOT NULL", nil, nil
		}
		return "", nil, types.NewValueError("operator is expects null or not null for %s", c.field)

	case "in", "not in":
		return compileIn(f, c)

	case "includes", "like", "not like":
		if c.value == nil {
			return "", nil, types.NewValueError("operator %s needs a value for %s", c.op, c.field)
		}
	}

	switch c.op {
	case "includes":
		s := fmt.Sprint(c.value)
		if !strings.Contains(s, "%") {
			s = "%" + s + "%"
		}
		return col + " LIKE ?", []any{s}, nil

	case "like", "not like":
		return col + " " + strings.ToUpper(c.op) + " ?", []any{fmt.Sprint(c.value)}, nil
	}

	if c.value == nil {
		switch c.op {
		case "=":
			return col + " IS NULL", nil, nil
		case "!=":
			return col + " IS NOT NULL", nil, nil
		}
	}

	v, err := rawArg(f, c.value)
	if err != nil {
		return "", nil, err
	}
	if f.Fieldtype == types.FieldCurrency && c.op != "=" && c.op != "!=" {
		return fmt.Sprintf("CAST(%s AS REAL) %s CAST(? AS REAL)", col, c.op), []any{v}, nil
	}
	return fmt.Sprintf("%s %s ?", col, c.op), []any{v}, nil
}

// compileIn splits null members out of an in-list: SQL "x IN (NULL)" never
// matches, so null becomes an explicit IS NULL branch.
func compileIn(f *types.Field, c condition) (string, []any, error) {
	members, err := toSlice(c.value)
	if err != nil {
		return "", nil, types.NewValueError("operator %s expects a list for %s", c.op, c.field)
	}

	var args []any
	hasNull := false
	for _, m := range members {
		if m == nil {
			hasNull = true
			continue
		}
		v, err := rawArg(f, m)
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
	}

	col := quote(c.field)
	negate := c.op == "not in"
	var parts []string
	if len(args) > 0 {
		if negate {
			parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", col, placeholders(len(args))))
		} else {
			parts = append(parts, fmt.Sprintf("%s IN (%s)", col, placeholders(len(args))))
		}
	}
	switch {
	case hasNull && negate:
		parts = append(parts, col+" IS NOT NULL")
		return "(" + strings.Join(parts, " AND ") + ")", args, nil
	case hasNull:
		parts = append(parts, col+" IS NULL")
		return "(" + strings.Join(parts, " OR ") + ")", args, nil
	case len(parts) == 0 && negate:
		return "1 = 1", nil, nil
	case len(parts) == 0:
		return "1 = 0", nil, nil
	}
	return parts[0], args, nil
}

func toSlice(v any) ([]any, error) {
	if arr, ok := v.([]any); ok {
		return arr, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("not a list: %T", v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

// rawArg converts typed values (money, times, booleans) to the
// raw form stored in the column. Raw scalars pass through.
func rawArg(f *types.Field, v any) (any, error) {
	switch v.(type) {
	case string, int64, float64, int, nil:
		if f.Fieldtype == types.FieldCheck {
			return convert.ToRawValue(v, f)
		}
		return v, nil
	}
	return convert.ToRawValue(v, f)
}
