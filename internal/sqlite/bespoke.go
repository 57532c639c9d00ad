package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// Bespoke runs one of the read-only reporting queries:
//
//	lastInserted  int64             highest integer name of Schema (0 when empty)
//	countRows     int64             rows of Schema matching Filters
//	sumField      *apd.Decimal      exact sum of Field over matching rows
//	groupCount    map[string]int64  matching rows per value of Field
func (b *Backend) Bespoke(ctx context.Context, query types.BespokeQuery, args types.BespokeArgs) (any, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, err := b.schema(args.Schema)
	if err != nil {
		return nil, err
	}
	if !s.HasTable() {
		return nil, types.NewValueError("%s has no table to query", s.Name)
	}

	var field *types.Field
	if query == types.BespokeSumField || query == types.BespokeGroupCount {
		field = s.Field(args.Field)
		if field == nil || !field.HasColumn() {
			return nil, types.NewValueError("%s has no column %q", s.Name, args.Field)
		}
	}

	where, wargs, err := whereClause(s, args.Filters)
	if err != nil {
		return nil, err
	}

	switch query {
	case types.BespokeLastInserted:
		var n sql.NullInt64
		err := b.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT MAX(CAST(%s AS INTEGER)) FROM %s", quote(types.FieldName), quote(s.Name))).Scan(&n)
		if err != nil {
			return nil, dbError(err, s.Name, string(query))
		}
		return n.Int64, nil

	case types.BespokeCountRows:
		var n int64
		err := b.db.QueryRowContext(ctx,
			fmt.Sprintf("SELECT count(*) FROM %s%s", quote(s.Name), where), wargs...).Scan(&n)
		if err != nil {
			return nil, dbError(err, s.Name, string(query))
		}
		return n, nil

	case types.BespokeSumField:
		recs, err := queryRecords(ctx, b.db,
			fmt.Sprintf("SELECT %s FROM %s%s", quote(field.Fieldname), quote(s.Name), where), wargs...)
		if err != nil {
			return nil, dbError(err, s.Name, string(query))
		}
		money := &types.Field{Fieldname: field.Fieldname, Fieldtype: types.FieldCurrency}
		total := convert.Zero()
		for _, r := range recs {
			v, err := convert.ToDocValue(r[field.Fieldname], money)
			if err != nil {
				return nil, err
			}
			total = convert.AddMoney(total, v.(*apd.Decimal))
		}
		return total, nil

	case types.BespokeGroupCount:
		rows, err := b.db.QueryContext(ctx,
			fmt.Sprintf("SELECT %s, count(*) FROM %s%s GROUP BY %s", quote(field.Fieldname), quote(s.Name), where, quote(field.Fieldname)),
			wargs...)
		if err != nil {
			return nil, dbError(err, s.Name, string(query))
		}
		defer rows.Close()
		out := make(map[string]int64)
		for rows.Next() {
			var key sql.NullString
			var n int64
			if err := rows.Scan(&key, &n); err != nil {
				return nil, dbError(err, s.Name, string(query))
			}
			out[key.String] += n
		}
		return out, dbError(rows.Err(), s.Name, string(query))
	}
	return nil, types.NewValueError("unknown bespoke query %q", query)
}
