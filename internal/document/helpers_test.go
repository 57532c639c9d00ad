package document

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/internal/catalogue"
	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/internal/sqlite"
	"github.com/mesh-intelligence/folio/pkg/types"
)

func testDefs() []*types.Schema {
	return []*types.Schema{
		{
			Name:   "Party",
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "partyName", Fieldtype: types.FieldData, Required: true},
				{Fieldname: "status", Fieldtype: types.FieldSelect, Options: []string{"Open", "Closed"}, Default: "Open"},
			},
		},
		{
			Name:          "Invoice",
			Naming:        types.NamingAutoincrement,
			IsSubmittable: true,
			Fields: []*types.Field{
				{Fieldname: "party", Fieldtype: types.FieldLink, Target: "Party", Required: true},
				{Fieldname: "date", Fieldtype: types.FieldDate},
				{Fieldname: "items", Fieldtype: types.FieldTable, Target: "InvoiceItem"},
				{Fieldname: "total", Fieldtype: types.FieldCurrency, ReadOnly: true},
			},
		},
		{
			Name:    "InvoiceItem",
			IsChild: true,
			Fields: []*types.Field{
				{Fieldname: "item", Fieldtype: types.FieldData, Required: true},
				{Fieldname: "qty", Fieldtype: types.FieldInt, Default: int64(1)},
				{Fieldname: "rate", Fieldtype: types.FieldCurrency},
				{Fieldname: "amount", Fieldtype: types.FieldCurrency, ReadOnly: true},
			},
		},
		{
			Name:   "Payment",
			Naming: types.NamingNumberSeries,
			Fields: []*types.Field{
				{Fieldname: "amount", Fieldtype: types.FieldCurrency},
			},
		},
		{
			Name:   "Counter",
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "qty", Fieldtype: types.FieldInt},
				{Fieldname: "price", Fieldtype: types.FieldCurrency},
				{Fieldname: "note", Fieldtype: types.FieldData},
				{Fieldname: "amount", Fieldtype: types.FieldCurrency},
			},
		},
		{
			Name:     "Settings",
			IsSingle: true,
			Fields: []*types.Field{
				{Fieldname: "companyName", Fieldtype: types.FieldData, Default: "Acme"},
				{Fieldname: "fiscalYearStart", Fieldtype: types.FieldInt, Default: int64(4)},
			},
		},
		{
			Name:   "Note",
			Naming: types.NamingRandom,
			Fields: []*types.Field{
				{Fieldname: "body", Fieldtype: types.FieldText},
			},
		},
	}
}

func invoiceItemBehavior() *Behavior {
	return &Behavior{
		Formulas: map[string]Formula{
			"amount": {
				DependsOn: []string{"qty", "rate"},
				Compute: func(d *Doc) (any, error) {
					return convert.MulMoney(d.Money("rate"), convert.MoneyFromInt(d.Int("qty"))), nil
				},
			},
		},
	}
}

func invoiceBehavior() *Behavior {
	return &Behavior{
		Formulas: map[string]Formula{
			"total": {
				DependsOn: []string{"items"},
				Compute: func(d *Doc) (any, error) {
					total := convert.Zero()
					for _, row := range d.Rows("items") {
						total = convert.AddMoney(total, row.Money("amount"))
					}
					return total, nil
				},
			},
		},
	}
}

func paymentBehavior() *Behavior {
	return &Behavior{
		Defaults: map[string]func(*Doc) any{
			types.FieldNumberSeries: func(*Doc) any { return "PAY-" },
		},
	}
}

// steppingClock advances one second per reading so every write gets a
// distinct modified timestamp.
func steppingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

type fixture struct {
	store *sqlite.Backend
	clock func() time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	b := sqlite.NewBackend()
	require.NoError(t, b.Attach(ctx, filepath.Join(t.TempDir(), "docs.db")))
	t.Cleanup(func() { b.Detach() })
	b.SetSchemaMap(catalogue.MustBuild(testDefs()...))
	require.NoError(t, b.Migrate(ctx, types.MigrateConfig{}))
	return &fixture{store: b, clock: steppingClock()}
}

func (f *fixture) cache(opts ...Option) *Cache {
	base := []Option{
		WithClock(f.clock),
		WithUser("tester"),
		WithBehavior("Invoice", invoiceBehavior()),
		WithBehavior("InvoiceItem", invoiceItemBehavior()),
		WithBehavior("Payment", paymentBehavior()),
	}
	return NewCache(f.store, append(base, opts...)...)
}

func insertParty(t *testing.T, c *Cache, name string) *Doc {
	t.Helper()
	p, err := c.New("Party", types.Record{"name": name, "partyName": name + " Ltd"})
	require.NoError(t, err)
	require.NoError(t, p.Sync(context.Background()))
	return p
}

func newInvoice(t *testing.T, c *Cache, party string, items ...types.Record) *Doc {
	t.Helper()
	inv, err := c.New("Invoice", types.Record{"party": party, "date": "2024-05-01", "items": items})
	require.NoError(t, err)
	return inv
}

func assertMoney(t *testing.T, want string, got *apd.Decimal) {
	t.Helper()
	assert.Zero(t, convert.Money(want).Cmp(got), "want %s, got %s", want, convert.FormatMoney(got))
}

func rowNames(rows []*Doc) []string {
	var out []string
	for _, r := range rows {
		out = append(out, r.Name())
	}
	return out
}
