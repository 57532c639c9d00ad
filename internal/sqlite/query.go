package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// execer is the subset of *sql.DB and *sql.Tx the engine issues statements
// through, so the same helpers run inside and outside transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queryRecords runs query and scans every row into a Record keyed by column
// name.
func queryRecords(ctx context.Context, ex execer, query string, args ...any) ([]types.Record, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []types.Record
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(types.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalizeScanned(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// normalizeScanned maps driver values onto the raw value set the converter
// accepts.
func normalizeScanned(v any) any {
	switch x := v.(type) {
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(datetimeLayout)
	case int:
		return int64(x)
	}
	return v
}

// queryStrings returns the first column of every row as a string.
func queryStrings(ctx context.Context, ex execer, query string, args ...any) ([]string, error) {
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s sql.NullString
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s.String)
	}
	return out, rows.Err()
}

func tableExists(ctx context.Context, ex execer, name string) (bool, error) {
	var n int
	err := ex.QueryRowContext(ctx,
		`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
