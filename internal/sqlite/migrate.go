package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// copyBatchSize is the number of rows copied per statement during a rebuild.
const copyBatchSize = 1000

// tablePlan is the work migration found for one schema.
type tablePlan struct {
	schema *types.Schema
	create bool
	add    []*types.Field
	drop   []string
	// rebuild is set when foreign keys must be added, or a column carrying
	// one dropped, which SQLite cannot do in place.
	rebuild bool
	// existing holds the current columns of a table that is not created.
	existing []string
}

// planMigration diffs the schema map against the database. The caller holds
// mu.
func (b *Backend) planMigration(ctx context.Context) ([]tablePlan, error) {
	var plans []tablePlan
	for _, name := range b.schemas.Names() {
		s := b.schemas[name]
		if !s.HasTable() {
			continue
		}
		exists, err := tableExists(ctx, b.db, s.Name)
		if err != nil {
			return nil, err
		}
		if !exists {
			plans = append(plans, tablePlan{schema: s, create: true})
			continue
		}

		cols, err := b.tableColumns(ctx, s.Name)
		if err != nil {
			return nil, err
		}
		fks, err := b.foreignKeyColumns(ctx, s.Name)
		if err != nil {
			return nil, err
		}

		p := tablePlan{schema: s, existing: cols}
		for _, f := range s.ColumnFields() {
			if !slices.Contains(cols, f.Fieldname) {
				p.add = append(p.add, f)
			}
		}
		for _, c := range cols {
			if c == types.FieldName {
				continue
			}
			if f := s.Field(c); f == nil || !f.HasColumn() {
				p.drop = append(p.drop, c)
				if slices.Contains(fks, c) {
					p.rebuild = true
				}
			}
		}
		for _, f := range foreignKeyFields(s, b.schemas) {
			if !slices.Contains(fks, f.Fieldname) {
				p.rebuild = true
			}
		}
		if p.rebuild || len(p.add) > 0 || len(p.drop) > 0 {
			plans = append(plans, p)
		}
	}
	return plans, nil
}

func (b *Backend) tableColumns(ctx context.Context, table string) ([]string, error) {
	recs, err := queryRecords(ctx, b.db, fmt.Sprintf("PRAGMA table_info(%s)", quote(table)))
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(recs))
	for i, r := range recs {
		cols[i] = r.String("name")
	}
	return cols, nil
}

func (b *Backend) foreignKeyColumns(ctx context.Context, table string) ([]string, error) {
	recs, err := queryRecords(ctx, b.db, fmt.Sprintf("PRAGMA foreign_key_list(%s)", quote(table)))
	if err != nil {
		return nil, err
	}
	cols := make([]string, len(recs))
	for i, r := range recs {
		cols[i] = r.String("from")
	}
	return cols, nil
}

// statements renders the DDL the plan executes.
func (p tablePlan) statements(schemas types.SchemaMap) []string {
	s := p.schema
	switch {
	case p.create:
		return append([]string{createTableSQL(s, s.Name, schemas)}, indexSQL(s)...)
	case p.rebuild:
		tmp := rebuildPrefix + s.Name
		cols := copyColumns(s, p.existing)
		stmts := []string{
			createTableSQL(s, tmp, schemas),
			fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", quote(tmp), columnList(cols), columnList(cols), quote(s.Name)),
			fmt.Sprintf("DROP TABLE %s", quote(s.Name)),
			fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(tmp), quote(s.Name)),
		}
		return append(stmts, indexSQL(s)...)
	}
	var stmts []string
	for _, f := range p.add {
		stmts = append(stmts, addColumnSQL(s.Name, f))
	}
	for _, c := range p.drop {
		stmts = append(stmts, dropColumnSQL(s.Name, c))
	}
	return stmts
}

// copyColumns returns the columns a rebuild carries over: those in both the
// new shape and the existing table.
func copyColumns(s *types.Schema, existing []string) []string {
	var cols []string
	for _, f := range s.ColumnFields() {
		if slices.Contains(existing, f.Fieldname) {
			cols = append(cols, f.Fieldname)
		}
	}
	return cols
}

// PendingDDL returns the DDL Migrate would run now. It is empty once the
// database matches the schema map.
func (b *Backend) PendingDDL(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.attached {
		return nil, types.ErrNotConnected
	}
	plans, err := b.planMigration(ctx)
	if err != nil {
		return nil, dbError(err, "", "migrate")
	}
	var stmts []string
	for _, p := range plans {
		stmts = append(stmts, p.statements(b.schemas)...)
	}
	return stmts, nil
}

// Migrate brings the database in line with the schema map: it creates
// missing tables, adds and drops columns, rebuilds tables that need new
// foreign keys and seeds single defaults. cfg.Pre and cfg.Post run around
// the DDL only when there is DDL to run.
func (b *Backend) Migrate(ctx context.Context, cfg types.MigrateConfig) error {
	b.mu.RLock()
	if !b.attached {
		b.mu.RUnlock()
		return types.ErrNotConnected
	}
	plans, err := b.planMigration(ctx)
	b.mu.RUnlock()
	if err != nil {
		return dbError(err, "", "migrate")
	}

	if len(plans) > 0 && cfg.Pre != nil {
		if err := cfg.Pre(ctx); err != nil {
			return fmt.Errorf("pre-migrate: %w", err)
		}
	}

	if err := b.runMigration(ctx); err != nil {
		return err
	}

	if len(plans) > 0 && cfg.Post != nil {
		if err := cfg.Post(ctx); err != nil {
			return fmt.Errorf("post-migrate: %w", err)
		}
	}
	return nil
}

func (b *Backend) runMigration(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	plans, err := b.planMigration(ctx)
	if err != nil {
		return dbError(err, "", "migrate")
	}

	var created, altered, rebuilt []string
	for _, p := range plans {
		name := p.schema.Name
		switch {
		case p.create:
			err = b.execAll(ctx, p.statements(b.schemas))
			created = append(created, name)
		case p.rebuild:
			err = b.rebuildTable(ctx, p)
			rebuilt = append(rebuilt, name)
		default:
			err = b.execAll(ctx, p.statements(b.schemas))
			altered = append(altered, name)
		}
		if err != nil {
			return dbError(err, name, "migrate")
		}
	}
	if len(plans) > 0 {
		b.log.Infow("migrated", "created", created, "altered", altered, "rebuilt", rebuilt)
	}

	seeded, err := b.seedSingles(ctx, b.db)
	if err != nil {
		return dbError(err, types.SchemaSingleValue, "migrate")
	}
	if seeded > 0 {
		b.log.Infow("seeded single values", "count", seeded)
	}
	return nil
}

func (b *Backend) execAll(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// rebuildTable replaces a table with one of the schema's current shape.
// Foreign key enforcement is off for the duration; rows that would violate a
// new foreign key abort the rebuild and leave the table as it was.
func (b *Backend) rebuildTable(ctx context.Context, p tablePlan) error {
	s := p.schema
	tmp := rebuildPrefix + s.Name
	cols := columnList(copyColumns(s, p.existing))

	if _, err := b.db.ExecContext(ctx, "PRAGMA foreign_keys = OFF"); err != nil {
		return err
	}
	defer func() {
		if _, err := b.db.ExecContext(context.Background(), "PRAGMA foreign_keys = ON"); err != nil {
			b.log.Errorw("re-enabling foreign keys", "error", err)
		}
	}()

	return b.withTx(ctx, func(tx *sql.Tx) error {
		// A crash during an earlier rebuild can leave the replacement behind.
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", quote(tmp))); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, createTableSQL(s, tmp, b.schemas)); err != nil {
			return err
		}

		copySQL := fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ORDER BY rowid LIMIT ? OFFSET ?",
			quote(tmp), cols, cols, quote(s.Name))
		for offset := 0; ; offset += copyBatchSize {
			res, err := tx.ExecContext(ctx, copySQL, copyBatchSize, offset)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n < copyBatchSize {
				break
			}
		}

		violations, err := queryRecords(ctx, tx, fmt.Sprintf("PRAGMA foreign_key_check(%s)", quote(tmp)))
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			return types.NewDatabaseError(nil,
				"cannot add foreign keys to %s: %d existing rows reference missing records", s.Name, len(violations)).
				WithDetail("code", types.DBCodeForeignKey).
				WithDetail("schemaName", s.Name).
				WithDetail("violations", len(violations))
		}

		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DROP TABLE %s", quote(s.Name))); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s RENAME TO %s", quote(tmp), quote(s.Name))); err != nil {
			return err
		}
		for _, stmt := range indexSQL(s) {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
		return nil
	})
}
