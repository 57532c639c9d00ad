package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Exists reports whether a record exists. For a single schema it reports
// whether any value of the single is stored; for other schemas an empty name
// matches any row. A missing table reads as false.
func (b *Backend) Exists(ctx context.Context, schemaName, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return false, err
	}

	var query string
	var args []any
	switch {
	case s.IsSingle:
		query = fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", quote(types.SchemaSingleValue), quote(types.FieldParent))
		args = []any{s.Name}
	case name == "":
		query = fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", quote(s.Name))
	default:
		query = fmt.Sprintf("SELECT 1 FROM %s WHERE %s = ? LIMIT 1", quote(s.Name), quote(types.FieldName))
		args = []any{name}
	}

	var one int
	err = b.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case err == sql.ErrNoRows:
		return false, nil
	case isNoTable(err):
		return false, nil
	case err != nil:
		return false, dbError(err, schemaName, "exists")
	}
	return true, nil
}

// Insert stores values as a new record and returns the values as written:
// the generated name and stamped child rows included. Keys that are not
// stored columns of the schema are not written.
func (b *Backend) Insert(ctx context.Context, schemaName string, values types.Record) (types.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return nil, err
	}
	out := values.Clone()

	if s.IsSingle {
		err := b.withTx(ctx, func(tx *sql.Tx) error {
			return b.upsertSingleValues(ctx, tx, s, out)
		})
		if err != nil {
			return nil, dbError(err, schemaName, "insert")
		}
		return out, nil
	}

	if out.String(types.FieldName) == "" {
		out[types.FieldName] = generateName()
	}
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := insertRow(ctx, tx, s, out); err != nil {
			return err
		}
		return b.syncChildren(ctx, tx, s, out, false)
	})
	if err != nil {
		return nil, dbError(err, schemaName, "insert")
	}
	return out, nil
}

// Get returns one record. Single schemas return every stored value whatever
// fields are requested. With no fields, all columns and table fields are
// loaded; table rows come back ordered by idx.
func (b *Backend) Get(ctx context.Context, schemaName, name string, fields ...string) (types.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return nil, err
	}
	if s.IsSingle {
		rec, err := b.getSingle(ctx, b.db, s)
		return rec, dbError(err, schemaName, "get")
	}
	if name == "" {
		return nil, types.NewValueError("name is required to get a %s", schemaName)
	}

	if len(fields) == 0 {
		for _, f := range s.Fields {
			fields = append(fields, f.Fieldname)
		}
	}
	cols := []string{types.FieldName}
	var tables []*types.Field
	for _, fn := range fields {
		f := s.Field(fn)
		switch {
		case f == nil:
			return nil, types.NewValueError("%s has no field %s", schemaName, fn)
		case f.Fieldtype == types.FieldTable:
			tables = append(tables, f)
		case f.HasColumn() && fn != types.FieldName:
			cols = append(cols, fn)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ?", columnList(cols), quote(s.Name), quote(types.FieldName))
	recs, err := queryRecords(ctx, b.db, query, name)
	if err != nil {
		return nil, dbError(err, schemaName, "get")
	}
	if len(recs) == 0 {
		return nil, types.NewNotFoundError("%s %s not found", schemaName, name).
			WithDetail("schemaName", schemaName).
			WithDetail("name", name)
	}
	rec := recs[0]
	for _, tf := range tables {
		rows, err := b.getChildren(ctx, b.db, s, tf, name)
		if err != nil {
			return nil, dbError(err, tf.Target, "get")
		}
		rec[tf.Fieldname] = rows
	}
	return rec, nil
}

// GetAll returns the rows matching opts. Fields default to name; the order
// defaults to created descending when the schema has a created field.
func (b *Backend) GetAll(ctx context.Context, schemaName string, opts types.QueryOptions) ([]types.Record, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return nil, err
	}
	if s.IsSingle {
		return nil, types.NewValueError("%s is a single and has no rows", schemaName)
	}

	fields := opts.Fields
	if len(fields) == 0 {
		fields = []string{types.FieldName}
	}
	for _, fn := range fields {
		if f := s.Field(fn); f == nil || !f.HasColumn() {
			return nil, types.NewValueError("%s has no column %s", schemaName, fn)
		}
	}

	where, args, err := whereClause(s, opts.Filters)
	if err != nil {
		return nil, err
	}

	var q strings.Builder
	fmt.Fprintf(&q, "SELECT %s FROM %s%s", columnList(fields), quote(s.Name), where)

	if len(opts.GroupBy) > 0 {
		for _, fn := range opts.GroupBy {
			if !s.HasField(fn) {
				return nil, types.NewValueError("%s has no column %s to group by", schemaName, fn)
			}
		}
		fmt.Fprintf(&q, " GROUP BY %s", columnList(opts.GroupBy))
	}

	orderBy := opts.OrderBy
	if orderBy == "" && s.HasField(types.FieldCreated) {
		orderBy = types.FieldCreated
	}
	if orderBy != "" {
		if !s.HasField(orderBy) {
			return nil, types.NewValueError("%s has no column %s to order by", schemaName, orderBy)
		}
		order := "DESC"
		if strings.EqualFold(opts.Order, types.OrderAsc) {
			order = "ASC"
		}
		fmt.Fprintf(&q, " ORDER BY %s %s", quote(orderBy), order)
	}

	if opts.Limit > 0 || opts.Offset > 0 {
		limit := opts.Limit
		if limit <= 0 {
			limit = -1
		}
		q.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, limit, opts.Offset)
	}

	recs, err := queryRecords(ctx, b.db, q.String(), args...)
	if err != nil {
		return nil, dbError(err, schemaName, "getAll")
	}
	return recs, nil
}

// Update writes the stored columns present in values to the record named by
// values["name"]. Table fields present in values are reconciled: rows not
// written are deleted. Table fields absent from values are left untouched.
func (b *Backend) Update(ctx context.Context, schemaName string, values types.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return err
	}
	rec := values.Clone()

	if s.IsSingle {
		err := b.withTx(ctx, func(tx *sql.Tx) error {
			return b.upsertSingleValues(ctx, tx, s, rec)
		})
		return dbError(err, schemaName, "update")
	}

	if rec.String(types.FieldName) == "" {
		return types.NewValueError("name is required to update a %s", schemaName)
	}
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		if err := updateRow(ctx, tx, s, rec); err != nil {
			return err
		}
		return b.syncChildren(ctx, tx, s, rec, true)
	})
	return dbError(err, schemaName, "update")
}

// Delete removes a record and the rows of its table fields. For a single
// schema name is a fieldname and that one value is removed.
func (b *Backend) Delete(ctx context.Context, schemaName, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return err
	}

	if s.IsSingle {
		_, err := b.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
				quote(types.SchemaSingleValue), quote(types.FieldParent), quote("fieldname")),
			s.Name, name)
		return dbError(err, schemaName, "delete")
	}

	err = b.withTx(ctx, func(tx *sql.Tx) error {
		for _, tf := range s.TableFields() {
			if err := deleteChildren(ctx, tx, s, tf, name, nil); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(s.Name), quote(types.FieldName)), name)
		return err
	})
	return dbError(err, schemaName, "delete")
}

// DeleteAll removes every record matching filters, with their child rows,
// and returns the number of records removed. For a single schema every
// stored value is removed.
func (b *Backend) DeleteAll(ctx context.Context, schemaName string, filters types.Filters) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return 0, err
	}

	if s.IsSingle {
		res, err := b.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(types.SchemaSingleValue), quote(types.FieldParent)),
			s.Name)
		if err != nil {
			return 0, dbError(err, schemaName, "deleteAll")
		}
		return res.RowsAffected()
	}

	where, args, err := whereClause(s, filters)
	if err != nil {
		return 0, err
	}

	var n int64
	err = b.withTx(ctx, func(tx *sql.Tx) error {
		parents := fmt.Sprintf("SELECT %s FROM %s%s", quote(types.FieldName), quote(s.Name), where)
		for _, tf := range s.TableFields() {
			query := fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ? AND %s IN (%s)",
				quote(tf.Target), quote(types.FieldParentSchema), quote(types.FieldParentFieldname),
				quote(types.FieldParent), parents)
			if _, err := tx.ExecContext(ctx, query, append([]any{s.Name, tf.Fieldname}, args...)...); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s%s", quote(s.Name), where), args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, dbError(err, schemaName, "deleteAll")
	}
	return n, nil
}

// Rename changes the primary key of one record. It does not cascade: links
// to the record and the parent column of its child rows keep the old name,
// so the rename is rejected whenever RenameBlockers reports anything.
func (b *Backend) Rename(ctx context.Context, schemaName, oldName, newName string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, err := b.schema(schemaName)
	if err != nil {
		return err
	}
	if s.IsSingle || s.IsChild {
		return types.NewValueError("%s records cannot be renamed", schemaName)
	}
	if oldName == "" || newName == "" {
		return types.NewValueError("rename of %s needs the old and the new name", schemaName)
	}
	if blockers := renameBlockers(s, b.schemas); len(blockers) > 0 {
		return types.NewValidationError("cannot rename %s %s: referenced by %s",
			schemaName, oldName, strings.Join(blockers, ", ")).
			WithDetail("blockers", blockers)
	}

	res, err := b.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET %s = ? WHERE %s = ?", quote(s.Name), quote(types.FieldName), quote(types.FieldName)),
		newName, oldName)
	if err != nil {
		return dbError(err, schemaName, "rename")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return types.NewNotFoundError("%s %s not found", schemaName, oldName)
	}
	return nil
}

// RenameBlockers lists what keeps records of schemaName from being renamed:
// Link fields of any schema targeting it ("Schema.field") and its own table
// fields ("Schema.field (rows)").
func (b *Backend) RenameBlockers(schemaName string) []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.schemas[schemaName]
	if !ok {
		return nil
	}
	return renameBlockers(s, b.schemas)
}

func renameBlockers(s *types.Schema, schemas types.SchemaMap) []string {
	blockers := schemas.LinksTo(s.Name)
	for _, tf := range s.TableFields() {
		blockers = append(blockers, s.Name+"."+tf.Fieldname+" (rows)")
	}
	return blockers
}

// insertRow inserts the stored columns of s present in rec.
func insertRow(ctx context.Context, ex execer, s *types.Schema, rec types.Record) error {
	var cols []string
	var args []any
	for _, f := range s.ColumnFields() {
		v, ok := rec[f.Fieldname]
		if !ok {
			continue
		}
		raw, err := rawArg(f, v)
		if err != nil {
			return err
		}
		cols = append(cols, f.Fieldname)
		args = append(args, raw)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(s.Name), columnList(cols), placeholders(len(cols)))
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}

// updateRow sets the stored columns of s present in rec, name excluded. It
// is a no-op when nothing remains to set.
func updateRow(ctx context.Context, ex execer, s *types.Schema, rec types.Record) error {
	var sets []string
	var args []any
	for _, f := range s.ColumnFields() {
		if f.Fieldname == types.FieldName {
			continue
		}
		v, ok := rec[f.Fieldname]
		if !ok {
			continue
		}
		raw, err := rawArg(f, v)
		if err != nil {
			return err
		}
		sets = append(sets, quote(f.Fieldname)+" = ?")
		args = append(args, raw)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, rec.String(types.FieldName))
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", quote(s.Name), strings.Join(sets, ", "), quote(types.FieldName))
	_, err := ex.ExecContext(ctx, query, args...)
	return err
}
