package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/catalogue"
	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func TestBackend_AttachDetach(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "folio.db")

	b := NewBackend()
	require.NoError(t, b.Attach(ctx, path))

	_, err := os.Stat(path)
	require.NoError(t, err, "database file not created")

	assert.ErrorIs(t, b.Attach(ctx, path), types.ErrAlreadyConnected)

	require.NoError(t, b.Detach())
	require.NoError(t, b.Detach(), "second Detach should not error")

	_, err = b.Exists(ctx, "Party", "x")
	assert.ErrorIs(t, err, types.ErrNotConnected)
	assert.ErrorIs(t, b.Migrate(ctx, types.MigrateConfig{}), types.ErrNotConnected)
}

func TestBackend_CreateTableDDL(t *testing.T) {
	schemas := catalogue.MustBuild(testDefs()...)

	var stmts []string
	for _, name := range []string{"Party", "Invoice", "InvoiceItem"} {
		s := schemas[name]
		stmts = append(stmts, createTableSQL(s, s.Name, schemas))
		stmts = append(stmts, indexSQL(s)...)
	}

	g := goldie.New(t)
	g.Assert(t, "store_ddl", []byte(strings.Join(stmts, ";\n\n")+";\n"))
}

func TestBackend_MigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, testDefs())

	pending, err := b.PendingDDL(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, pending)

	var pre, post int
	cfg := types.MigrateConfig{
		Pre:  func(context.Context) error { pre++; return nil },
		Post: func(context.Context) error { post++; return nil },
	}
	require.NoError(t, b.Migrate(ctx, cfg))
	assert.Equal(t, 1, pre)
	assert.Equal(t, 1, post)

	for _, table := range []string{"Party", "Invoice", "InvoiceItem", "Note", "SingleValue", "PatchRun", "NumberSeries"} {
		ok, err := b.TableExists(ctx, table)
		require.NoError(t, err)
		assert.True(t, ok, "table %s", table)
	}
	ok, err := b.TableExists(ctx, "Settings")
	require.NoError(t, err)
	assert.False(t, ok, "single schemas have no table")

	pending, err = b.PendingDDL(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, b.Migrate(ctx, cfg))
	assert.Equal(t, 1, pre, "no DDL, no pre hook")
	assert.Equal(t, 1, post, "no DDL, no post hook")
}

func TestBackend_MigratePreHookErrorAborts(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, testDefs())

	boom := errors.New("backup failed")
	err := b.Migrate(ctx, types.MigrateConfig{Pre: func(context.Context) error { return boom }})
	assert.ErrorIs(t, err, boom)

	ok, err := b.TableExists(ctx, "Party")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBackend_MigrateAddsAndDropsColumns(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, withoutField(testDefs(), "Party", "status"))
	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))
	_, err := b.Insert(ctx, "Party", types.Record{"name": "P1", "partyName": "One", "creditLimit": "100"})
	require.NoError(t, err)

	v2 := withoutField(testDefs(), "Party", "creditLimit")
	b.SetSchemaMap(catalogue.MustBuild(v2...))

	pending, err := b.PendingDDL(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`ALTER TABLE "Party" ADD COLUMN "status" TEXT`,
		`ALTER TABLE "Party" DROP COLUMN "creditLimit"`,
	}, pending)

	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))
	cols, err := b.tableColumns(ctx, "Party")
	require.NoError(t, err)
	assert.Contains(t, cols, "status")
	assert.NotContains(t, cols, "creditLimit")

	rec, err := b.Get(ctx, "Party", "P1")
	require.NoError(t, err)
	assert.Equal(t, "One", rec["partyName"])
	assert.Nil(t, rec["status"])
}

// linkAsData returns the definitions with Invoice.party stored as plain data,
// as it was before the link was introduced.
func linkAsData() []*types.Schema {
	defs := withoutField(testDefs(), "Invoice", "party")
	return withField(defs, "Invoice", &types.Field{Fieldname: "party", Fieldtype: types.FieldData})
}

func TestBackend_MigrateRebuildsForForeignKey(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, linkAsData())
	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))

	insertParty(t, b, "P1", "")
	_, err := b.Insert(ctx, "Invoice", types.Record{
		"name":  "INV-1",
		"party": "P1",
		"items": []types.Record{{"item": "A"}},
	})
	require.NoError(t, err)

	b.SetSchemaMap(catalogue.MustBuild(testDefs()...))
	pending, err := b.PendingDDL(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, pending)
	assert.Contains(t, pending[0], `CREATE TABLE "__Invoice"`)

	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))

	fks, err := b.foreignKeyColumns(ctx, "Invoice")
	require.NoError(t, err)
	assert.Equal(t, []string{"party"}, fks)

	rec, err := b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "P1", rec["party"])
	assert.Len(t, rec.Rows("items"), 1)

	pending, err = b.PendingDDL(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// The new constraint is enforced.
	_, err = b.Insert(ctx, "Invoice", types.Record{"name": "INV-2", "party": "nobody"})
	require.Error(t, err)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.DBCodeForeignKey, te.Code())
}

func TestBackend_MigrateRefusesForeignKeyOverBadRows(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBackend(t, linkAsData())
	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))
	_, err := b.Insert(ctx, "Invoice", types.Record{"name": "INV-1", "party": "ghost"})
	require.NoError(t, err)

	b.SetSchemaMap(catalogue.MustBuild(testDefs()...))
	err = b.Migrate(ctx, types.MigrateConfig{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrDatabase)
	assert.Equal(t, types.KindDatabase, types.KindOf(err))
	assert.Contains(t, err.Error(), "Invoice")

	// Nothing was lost and no replacement table is left behind.
	rec, err := b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "ghost", rec["party"])
	ok, err := b.TableExists(ctx, "__Invoice")
	require.NoError(t, err)
	assert.False(t, ok)

	fks, err := b.foreignKeyColumns(ctx, "Invoice")
	require.NoError(t, err)
	assert.Empty(t, fks)
}

func TestBackend_InsertGet(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)
	insertParty(t, b, "P1", "Open")

	out, err := b.Insert(ctx, "Invoice", types.Record{
		"name":    "INV-1",
		"party":   "P1",
		"date":    "2024-05-01",
		"total":   "30.00",
		"unknown": "dropped",
		"items": []types.Record{
			{"name": "row-a", "item": "A", "qty": 1.0, "rate": "10.00"},
			{"item": "B", "qty": 2.0, "rate": "10.00"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "dropped", out["unknown"], "insert echoes its input")
	rows := out.Rows("items")
	require.Len(t, rows, 2)
	assert.NotEmpty(t, rows[1]["name"], "child names are generated")
	assert.Equal(t, int64(1), rows[1]["idx"])

	rec, err := b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	_, stored := rec["unknown"]
	assert.False(t, stored)
	assert.Equal(t, "30.00", rec["total"])
	assert.Equal(t, "2024-05-01", rec["date"])
	assert.Equal(t, int64(0), rec["submitted"])

	got := rec.Rows("items")
	require.Len(t, got, 2)
	want := []types.Record{
		{
			"name": "row-a", "item": "A", "qty": 1.0, "rate": "10.00",
			"parent": "INV-1", "parentSchemaName": "Invoice", "parentFieldname": "items", "idx": int64(0),
		},
		{
			"name": rows[1]["name"], "item": "B", "qty": 2.0, "rate": "10.00",
			"parent": "INV-1", "parentSchemaName": "Invoice", "parentFieldname": "items", "idx": int64(1),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("child rows mismatch (-want +got):\n%s", diff)
	}

	partial, err := b.Get(ctx, "Invoice", "INV-1", "total")
	require.NoError(t, err)
	assert.Equal(t, types.Record{"name": "INV-1", "total": "30.00"}, partial)

	_, err = b.Get(ctx, "Invoice", "")
	assert.ErrorIs(t, err, types.ErrValue)
	_, err = b.Get(ctx, "Invoice", "INV-404")
	assert.ErrorIs(t, err, types.ErrNotFound)
	_, err = b.Get(ctx, "Nope", "x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestBackend_InsertClassifiesConstraintErrors(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)
	insertParty(t, b, "P1", "")

	_, err := b.Insert(ctx, "Party", types.Record{"name": "P1", "partyName": "again"})
	require.Error(t, err)
	var te *types.Error
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.KindDatabase, te.Kind)
	assert.Equal(t, types.DBCodeUnique, te.Code())
	assert.Equal(t, "name", te.Detail["fieldname"])
	assert.Equal(t, "Party", te.Detail["schemaName"])

	_, err = b.Insert(ctx, "Party", types.Record{"name": "P2"})
	require.ErrorAs(t, err, &te)
	assert.Equal(t, types.DBCodeNotNull, te.Code())
	assert.Equal(t, "partyName", te.Detail["fieldname"])
}

// Updating a parent with one original child row plus one new row leaves
// exactly two stored rows; the omitted original is deleted.
func TestBackend_UpdateReconcilesChildRows(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)

	_, err := b.Insert(ctx, "Invoice", types.Record{
		"name":  "INV-1",
		"items": []types.Record{{"name": "r1", "item": "A"}, {"name": "r2", "item": "B"}},
	})
	require.NoError(t, err)

	err = b.Update(ctx, "Invoice", types.Record{
		"name":  "INV-1",
		"total": "5",
		"items": []types.Record{{"name": "r2", "item": "B2"}, {"item": "C"}},
	})
	require.NoError(t, err)

	rec, err := b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.Equal(t, "5", rec["total"])
	rows := rec.Rows("items")
	require.Len(t, rows, 2)
	assert.Equal(t, "r2", rows[0]["name"])
	assert.Equal(t, "B2", rows[0]["item"])
	assert.Equal(t, int64(0), rows[0]["idx"])
	assert.Equal(t, "C", rows[1]["item"])
	assert.Equal(t, int64(1), rows[1]["idx"])

	n, err := b.Bespoke(ctx, types.BespokeCountRows, types.BespokeArgs{Schema: "InvoiceItem"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	exists, err := b.Exists(ctx, "InvoiceItem", "r1")
	require.NoError(t, err)
	assert.False(t, exists)

	// An update without the table key leaves the rows alone.
	require.NoError(t, b.Update(ctx, "Invoice", types.Record{"name": "INV-1", "total": "6"}))
	rec, err = b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.Len(t, rec.Rows("items"), 2)

	// An empty list clears them.
	require.NoError(t, b.Update(ctx, "Invoice", types.Record{"name": "INV-1", "items": []types.Record{}}))
	rec, err = b.Get(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.Empty(t, rec.Rows("items"))

	assert.ErrorIs(t, b.Update(ctx, "Invoice", types.Record{"total": "1"}), types.ErrValue)
}

func TestBackend_GetAll(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)
	insertParty(t, b, "P1", "Open")
	insertParty(t, b, "P2", "Closed")
	insertParty(t, b, "P3", "")

	rows, err := b.GetAll(ctx, "Party", types.QueryOptions{
		Filters: types.Filters{"status": []any{"in", []any{"Open", nil}}},
		OrderBy: "name",
		Order:   types.OrderAsc,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{"name": "P1"}, {"name": "P3"}}, rows)

	rows, err = b.GetAll(ctx, "Party", types.QueryOptions{
		Fields:  []string{"name", "status"},
		OrderBy: "name",
		Limit:   1,
		Offset:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, []types.Record{{"name": "P2", "status": "Closed"}}, rows)

	_, err = b.GetAll(ctx, "Party", types.QueryOptions{Fields: []string{"nope"}})
	assert.ErrorIs(t, err, types.ErrValue)
	_, err = b.GetAll(ctx, "Settings", types.QueryOptions{})
	assert.ErrorIs(t, err, types.ErrValue)
}

func TestBackend_DeleteCascadesToChildRows(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)

	for _, name := range []string{"INV-1", "INV-2"} {
		_, err := b.Insert(ctx, "Invoice", types.Record{
			"name":  name,
			"total": "10",
			"items": []types.Record{{"item": "A"}, {"item": "B"}},
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Delete(ctx, "Invoice", "INV-1"))
	exists, err := b.Exists(ctx, "Invoice", "INV-1")
	require.NoError(t, err)
	assert.False(t, exists)
	n, err := b.Bespoke(ctx, types.BespokeCountRows, types.BespokeArgs{Schema: "InvoiceItem"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	deleted, err := b.DeleteAll(ctx, "Invoice", types.Filters{"total": "10"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	n, err = b.Bespoke(ctx, types.BespokeCountRows, types.BespokeArgs{Schema: "InvoiceItem"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBackend_ExistsOnMissingTable(t *testing.T) {
	b, _ := newTestBackend(t, testDefs())

	exists, err := b.Exists(context.Background(), "Party", "P1")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = b.Exists(context.Background(), "Settings", "")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackend_Rename(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)
	_, err := b.Insert(ctx, "Note", types.Record{"name": "old", "body": "hello"})
	require.NoError(t, err)

	require.NoError(t, b.Rename(ctx, "Note", "old", "new"))
	rec, err := b.Get(ctx, "Note", "new")
	require.NoError(t, err)
	assert.Equal(t, "hello", rec["body"])

	assert.ErrorIs(t, b.Rename(ctx, "Note", "missing", "x"), types.ErrNotFound)

	assert.Equal(t, []string{"Invoice.party"}, b.RenameBlockers("Party"))
	assert.Equal(t, []string{"Invoice.items (rows)"}, b.RenameBlockers("Invoice"))
	assert.Empty(t, b.RenameBlockers("Note"))

	insertParty(t, b, "P1", "")
	err = b.Rename(ctx, "Party", "P1", "P9")
	assert.ErrorIs(t, err, types.ErrValidation)
	exists, err := b.Exists(ctx, "Party", "P1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBackend_Singles(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)

	rec, err := b.Get(ctx, "Settings", "")
	require.NoError(t, err)
	assert.Equal(t, types.Record{"companyName": "Acme", "fiscalYearStart": "4"}, rec)

	exists, err := b.Exists(ctx, "Settings", "")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, b.Update(ctx, "Settings", types.Record{
		"companyName": "Globex",
		"currency":    "EUR",
		"notAField":   "ignored",
	}))

	// A field added later is backfilled; stored values are kept.
	v2 := withField(testDefs(), "Settings", &types.Field{Fieldname: "country", Fieldtype: types.FieldData, Default: "KE"})
	b.SetSchemaMap(catalogue.MustBuild(v2...))
	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))

	rec, err = b.Get(ctx, "Settings", "", "companyName")
	require.NoError(t, err)
	assert.Equal(t, types.Record{
		"companyName":     "Globex",
		"fiscalYearStart": "4",
		"currency":        "EUR",
		"country":         "KE",
	}, rec)

	require.NoError(t, b.Delete(ctx, "Settings", "currency"))
	values, err := b.GetSingleValues(ctx,
		types.SingleValueKey{Fieldname: "companyName", Parent: "Settings"},
		types.SingleValueKey{Fieldname: "currency"},
	)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, "Settings", values[0].Parent)
	assert.Equal(t, "Globex", values[0].Value)

	all, err := b.GetSingleValues(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	n, err := b.DeleteAll(ctx, "Settings", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestBackend_Bespoke(t *testing.T) {
	ctx := context.Background()
	b := newMigratedBackend(t)

	last, err := b.Bespoke(ctx, types.BespokeLastInserted, types.BespokeArgs{Schema: "Note"})
	require.NoError(t, err)
	assert.Equal(t, int64(0), last)

	for _, name := range []string{"000000001", "000000009", "000000010"} {
		_, err := b.Insert(ctx, "Note", types.Record{"name": name})
		require.NoError(t, err)
	}
	last, err = b.Bespoke(ctx, types.BespokeLastInserted, types.BespokeArgs{Schema: "Note"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), last)

	for i, total := range []string{"0.10", "0.20", "1.70"} {
		_, err := b.Insert(ctx, "Invoice", types.Record{
			"name":  []string{"A", "B", "C"}[i],
			"total": total,
		})
		require.NoError(t, err)
	}
	sum, err := b.Bespoke(ctx, types.BespokeSumField, types.BespokeArgs{Schema: "Invoice", Field: "total"})
	require.NoError(t, err)
	assert.True(t, convert.Equal(convert.Money("2"), sum), "sum %v", sum)

	insertParty(t, b, "P1", "Open")
	insertParty(t, b, "P2", "Open")
	insertParty(t, b, "P3", "Closed")
	groups, err := b.Bespoke(ctx, types.BespokeGroupCount, types.BespokeArgs{Schema: "Party", Field: "status"})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"Open": 2, "Closed": 1}, groups)

	_, err = b.Bespoke(ctx, types.BespokeSumField, types.BespokeArgs{Schema: "Invoice", Field: "items"})
	assert.ErrorIs(t, err, types.ErrValue)
	_, err = b.Bespoke(ctx, "dropTables", types.BespokeArgs{Schema: "Invoice"})
	assert.ErrorIs(t, err, types.ErrValue)
}
