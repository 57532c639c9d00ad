package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/mesh-intelligence/folio/pkg/types"
)

var singleValueTable = quote(types.SchemaSingleValue)

// upsertSingleValues stores every column field of single s present in values.
func (b *Backend) upsertSingleValues(ctx context.Context, ex execer, s *types.Schema, values types.Record) error {
	for _, f := range s.ColumnFields() {
		v, ok := values[f.Fieldname]
		if !ok {
			continue
		}
		text, err := singleText(f, v)
		if err != nil {
			return err
		}
		if err := b.upsertSingleValue(ctx, ex, s.Name, f.Fieldname, text); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backend) upsertSingleValue(ctx context.Context, ex execer, parent, fieldname string, value any) error {
	now := b.now()
	res, err := ex.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ?, %s = ?, %s = ? WHERE %s = ? AND %s = ?", singleValueTable,
			quote("value"), quote(types.FieldModified), quote(types.FieldModifiedBy),
			quote(types.FieldParent), quote("fieldname")),
		value, now, b.user, parent, fieldname)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	return b.insertSingleValue(ctx, ex, parent, fieldname, value)
}

func (b *Backend) insertSingleValue(ctx context.Context, ex execer, parent, fieldname string, value any) error {
	now := b.now()
	cols := []string{types.FieldName, types.FieldParent, "fieldname", "value",
		types.FieldCreated, types.FieldModified, types.FieldCreatedBy, types.FieldModifiedBy}
	_, err := ex.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", singleValueTable, columnList(cols), placeholders(len(cols))),
		generateName(), parent, fieldname, value, now, now, b.user, b.user)
	return err
}

// singleText renders a value for the text column of SingleValue.
func singleText(f *types.Field, v any) (any, error) {
	raw, err := rawArg(f, v)
	if err != nil || raw == nil {
		return nil, err
	}
	switch x := raw.(type) {
	case string:
		return x, nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	}
	return fmt.Sprint(raw), nil
}

// getSingle returns the stored values of single s keyed by fieldname. A
// missing SingleValue table reads as no values.
func (b *Backend) getSingle(ctx context.Context, ex execer, s *types.Schema) (types.Record, error) {
	recs, err := queryRecords(ctx, ex,
		fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s = ?", quote("fieldname"), quote("value"),
			singleValueTable, quote(types.FieldParent)),
		s.Name)
	if isNoTable(err) {
		return types.Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(types.Record, len(recs))
	for _, r := range recs {
		out[r.String("fieldname")] = r["value"]
	}
	return out, nil
}

// GetSingleValues returns the stored single values matching any of keys. A
// key with an empty Parent matches the fieldname under every single. With no
// keys every stored value is returned.
func (b *Backend) GetSingleValues(ctx context.Context, keys ...types.SingleValueKey) ([]types.SingleValue, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrNotConnected
	}

	var clauses []string
	var args []any
	for _, k := range keys {
		if k.Parent == "" {
			clauses = append(clauses, fmt.Sprintf("%s = ?", quote("fieldname")))
			args = append(args, k.Fieldname)
			continue
		}
		clauses = append(clauses, fmt.Sprintf("(%s = ? AND %s = ?)", quote("fieldname"), quote(types.FieldParent)))
		args = append(args, k.Fieldname, k.Parent)
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columnList([]string{types.FieldName, types.FieldParent, "fieldname", "value"}), singleValueTable)
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " OR ")
	}
	query += fmt.Sprintf(" ORDER BY %s, %s", quote(types.FieldParent), quote("fieldname"))

	recs, err := queryRecords(ctx, b.db, query, args...)
	if err != nil {
		return nil, dbError(err, types.SchemaSingleValue, "getSingleValues")
	}
	out := make([]types.SingleValue, len(recs))
	for i, r := range recs {
		out[i] = types.SingleValue{
			Name:      r.String(types.FieldName),
			Parent:    r.String(types.FieldParent),
			Fieldname: r.String("fieldname"),
			Value:     r["value"],
		}
	}
	return out, nil
}

// seedSingles stores the default of every single field that has no stored
// value yet. Existing values are never touched.
func (b *Backend) seedSingles(ctx context.Context, ex execer) (int, error) {
	seeded := 0
	for _, name := range b.schemas.Names() {
		s := b.schemas[name]
		if !s.IsSingle {
			continue
		}
		stored, err := queryStrings(ctx, ex,
			fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", quote("fieldname"), singleValueTable, quote(types.FieldParent)),
			s.Name)
		if err != nil {
			return seeded, err
		}
		have := make(map[string]bool, len(stored))
		for _, fn := range stored {
			have[fn] = true
		}
		for _, f := range s.ColumnFields() {
			if f.Default == nil || have[f.Fieldname] {
				continue
			}
			text, err := singleText(f, f.Default)
			if err != nil {
				return seeded, err
			}
			if err := b.insertSingleValue(ctx, ex, s.Name, f.Fieldname, text); err != nil {
				return seeded, err
			}
			seeded++
		}
	}
	return seeded, nil
}
