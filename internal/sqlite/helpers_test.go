package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/catalogue"
	"github.com/mesh-intelligence/folio/pkg/types"
)

var testClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

// testDefs returns the schemas most tests run against. Options tweak the
// definitions before they are built, to simulate schema changes.
func testDefs() []*types.Schema {
	return []*types.Schema{
		{
			Name:   "Party",
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "partyName", Fieldtype: types.FieldData, Required: true},
				{Fieldname: "status", Fieldtype: types.FieldData},
				{Fieldname: "creditLimit", Fieldtype: types.FieldCurrency},
			},
		},
		{
			Name:          "Invoice",
			Naming:        types.NamingManual,
			IsSubmittable: true,
			Fields: []*types.Field{
				{Fieldname: "party", Fieldtype: types.FieldLink, Target: "Party"},
				{Fieldname: "date", Fieldtype: types.FieldDate},
				{Fieldname: "total", Fieldtype: types.FieldCurrency},
				{Fieldname: "items", Fieldtype: types.FieldTable, Target: "InvoiceItem"},
			},
		},
		{
			Name:    "InvoiceItem",
			IsChild: true,
			Fields: []*types.Field{
				{Fieldname: "item", Fieldtype: types.FieldData, Required: true},
				{Fieldname: "qty", Fieldtype: types.FieldFloat, Default: 1.0},
				{Fieldname: "rate", Fieldtype: types.FieldCurrency},
			},
		},
		{
			Name:     "Settings",
			IsSingle: true,
			Fields: []*types.Field{
				{Fieldname: "companyName", Fieldtype: types.FieldData, Default: "Acme"},
				{Fieldname: "fiscalYearStart", Fieldtype: types.FieldInt, Default: int64(4)},
				{Fieldname: "currency", Fieldtype: types.FieldData},
			},
		},
		{
			Name:   "Note",
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "body", Fieldtype: types.FieldText},
			},
		},
	}
}

// withoutField removes fieldname from the named schema definition.
func withoutField(defs []*types.Schema, schema, fieldname string) []*types.Schema {
	for _, d := range defs {
		if d.Name != schema {
			continue
		}
		var kept []*types.Field
		for _, f := range d.Fields {
			if f.Fieldname != fieldname {
				kept = append(kept, f)
			}
		}
		d.Fields = kept
	}
	return defs
}

// withField appends f to the named schema definition.
func withField(defs []*types.Schema, schema string, f *types.Field) []*types.Schema {
	for _, d := range defs {
		if d.Name == schema {
			d.Fields = append(d.Fields, f)
		}
	}
	return defs
}

// newTestBackend attaches a backend to a fresh database file and installs
// the built schemas without migrating.
func newTestBackend(t *testing.T, defs []*types.Schema) (*Backend, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	b := NewBackend(WithClock(testClock), WithUser("tester"))
	require.NoError(t, b.Attach(context.Background(), path))
	t.Cleanup(func() { b.Detach() })

	schemas, err := catalogue.Build(defs)
	require.NoError(t, err)
	b.SetSchemaMap(schemas)
	return b, path
}

// newMigratedBackend is newTestBackend followed by a migration.
func newMigratedBackend(t *testing.T) *Backend {
	t.Helper()
	b, _ := newTestBackend(t, testDefs())
	require.NoError(t, b.Migrate(context.Background(), types.MigrateConfig{}))
	return b
}

func insertParty(t *testing.T, b *Backend, name, status string) {
	t.Helper()
	rec := types.Record{"name": name, "partyName": "Party " + name}
	if status != "" {
		rec["status"] = status
	}
	_, err := b.Insert(context.Background(), "Party", rec)
	require.NoError(t, err)
}
