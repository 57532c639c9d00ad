package sqlite

import (
	"context"
	"fmt"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// syncChildren writes the rows of every table field present in parent. Each
// row is stamped with its parent keys and its position as idx, then updated
// when update is set and the row exists, else inserted. In update mode the
// stored rows of the field that were not written are deleted. The stamped
// rows replace the field's value in parent.
func (b *Backend) syncChildren(ctx context.Context, ex execer, s *types.Schema, parent types.Record, update bool) error {
	name := parent.String(types.FieldName)
	for _, tf := range s.TableFields() {
		if _, ok := parent[tf.Fieldname]; !ok {
			continue
		}
		child, err := b.schemas.Get(tf.Target)
		if err != nil {
			return err
		}

		rows := parent.Rows(tf.Fieldname)
		stamped := make([]types.Record, len(rows))
		written := make([]string, 0, len(rows))
		for i, row := range rows {
			row = row.Clone()
			row[types.FieldParent] = name
			row[types.FieldParentSchema] = s.Name
			row[types.FieldParentFieldname] = tf.Fieldname
			row[types.FieldIdx] = int64(i)
			if row.String(types.FieldName) == "" {
				row[types.FieldName] = generateName()
			}

			exists := false
			if update {
				exists, err = rowExists(ctx, ex, child.Name, row.String(types.FieldName))
				if err != nil {
					return err
				}
			}
			if exists {
				err = updateRow(ctx, ex, child, row)
			} else {
				err = insertRow(ctx, ex, child, row)
			}
			if err != nil {
				return err
			}
			stamped[i] = row
			written = append(written, row.String(types.FieldName))
		}
		parent[tf.Fieldname] = stamped

		if update {
			if err := deleteChildren(ctx, ex, s, tf, name, written); err != nil {
				return err
			}
		}
	}
	return nil
}

// deleteChildren deletes the rows of table field tf owned by parent, keeping
// those named in keep.
func deleteChildren(ctx context.Context, ex execer, s *types.Schema, tf *types.Field, parent string, keep []string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s = ?",
		quote(tf.Target), quote(types.FieldParent), quote(types.FieldParentSchema), quote(types.FieldParentFieldname))
	args := []any{parent, s.Name, tf.Fieldname}
	if len(keep) > 0 {
		query += fmt.Sprintf(" AND %s NOT IN (%s)", quote(types.FieldName), placeholders(len(keep)))
		for _, k := range keep {
			args = append(args, k)
		}
	}
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// getChildren loads the rows of table field tf owned by parent, ordered by
// idx.
func (b *Backend) getChildren(ctx context.Context, ex execer, s *types.Schema, tf *types.Field, parent string) ([]types.Record, error) {
	child, err := b.schemas.Get(tf.Target)
	if err != nil {
		return nil, err
	}
	var cols []string
	for _, f := range child.ColumnFields() {
		cols = append(cols, f.Fieldname)
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? AND %s = ? AND %s = ? ORDER BY %s ASC",
		columnList(cols), quote(child.Name),
		quote(types.FieldParent), quote(types.FieldParentSchema), quote(types.FieldParentFieldname),
		quote(types.FieldIdx))
	rows, err := queryRecords(ctx, ex, query, parent, s.Name, tf.Fieldname)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []types.Record{}
	}
	return rows, nil
}

func rowExists(ctx context.Context, ex execer, table, name string) (bool, error) {
	var n int
	err := ex.QueryRowContext(ctx,
		fmt.Sprintf("SELECT count(*) FROM %s WHERE %s = ?", quote(table), quote(types.FieldName)), name).Scan(&n)
	return n > 0, err
}
