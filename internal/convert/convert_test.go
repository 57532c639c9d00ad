package convert

import (
	"math"
	"testing"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/folio/pkg/types"
)

func field(ft types.FieldType) *types.Field {
	return &types.Field{Fieldname: "f", Fieldtype: ft}
}

func TestToDocValue(t *testing.T) {
	tests := []struct {
		name string
		ft   types.FieldType
		in   any
		want any
	}{
		{"int from empty string", types.FieldInt, "", int64(0)},
		{"int from bool", types.FieldInt, true, int64(1)},
		{"int truncates toward zero", types.FieldInt, -3.7, int64(-3)},
		{"int from numeric prefix", types.FieldInt, "12abc", int64(12)},
		{"int from garbage", types.FieldInt, "abc", int64(0)},
		{"int nil stays nil", types.FieldInt, nil, nil},
		{"int64 beyond float precision", types.FieldInt, int64(9007199254740993), int64(9007199254740993)},
		{"int string beyond float precision", types.FieldInt, "9007199254740993", int64(9007199254740993)},
		{"int string with sign", types.FieldInt, " -42 ", int64(-42)},
		{"int prefix beyond float precision", types.FieldInt, "9007199254740993 units", int64(9007199254740993)},
		{"int max", types.FieldInt, "9223372036854775807", int64(math.MaxInt64)},
		{"int from decimal string", types.FieldInt, "-7.9", int64(-7)},
		{"float from string", types.FieldFloat, "2.5", 2.5},
		{"float from false", types.FieldFloat, false, 0.0},
		{"check from int", types.FieldCheck, int64(1), true},
		{"check from zero", types.FieldCheck, int64(0), false},
		{"check from string", types.FieldCheck, "0", false},
		{"check from numeric string", types.FieldCheck, "2", true},
		{"check from bool", types.FieldCheck, true, true},
		{"date empty", types.FieldDate, "", nil},
		{"date nil", types.FieldDate, nil, nil},
		{"date string", types.FieldDate, "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"datetime string", types.FieldDatetime, "2024-03-01T10:20:30.123Z", time.Date(2024, 3, 1, 10, 20, 30, 123e6, time.UTC)},
		{"data passes through", types.FieldData, "x", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToDocValue(tt.in, field(tt.ft))
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "want %v, got %v", tt.want, got)
		})
	}
}

func TestToDocValueCurrency(t *testing.T) {
	f := field(types.FieldCurrency)
	for _, in := range []any{nil, "", false} {
		got, err := ToDocValue(in, f)
		require.NoError(t, err)
		assert.True(t, Equal(Zero(), got), "input %v", in)
	}

	got, err := ToDocValue("12.50", f)
	require.NoError(t, err)
	assert.True(t, Equal(Money("12.5"), got))

	got, err = ToDocValue(0.1, f)
	require.NoError(t, err)
	assert.Equal(t, "0.1", FormatMoney(got.(*apd.Decimal)))
}

func TestToDocValueErrors(t *testing.T) {
	tests := []struct {
		name string
		ft   types.FieldType
		in   any
	}{
		{"currency from slice", types.FieldCurrency, []int{1}},
		{"currency from text", types.FieldCurrency, "twelve"},
		{"currency NaN", types.FieldCurrency, "NaN"},
		{"currency infinity", types.FieldCurrency, "Infinity"},
		{"currency negative infinity", types.FieldCurrency, "-Inf"},
		{"currency float infinity", types.FieldCurrency, math.Inf(1)},
		{"currency float NaN", types.FieldCurrency, math.NaN()},
		{"int float overflow", types.FieldInt, 1e300},
		{"int float negative overflow", types.FieldInt, -1e19},
		{"int NaN", types.FieldInt, math.NaN()},
		{"int string overflow", types.FieldInt, "99999999999999999999"},
		{"date from garbage", types.FieldDate, "not a date"},
		{"date out of calendar", types.FieldDate, "2023-02-30"},
		{"attachment malformed", types.FieldAttachment, "{nope"},
		{"attachment missing data", types.FieldAttachment, `{"name":"a.png","type":"image/png"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ToDocValue(tt.in, field(tt.ft))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrValue)
		})
	}
}

func TestToRawValueLink(t *testing.T) {
	f := field(types.FieldLink)

	got, err := ToRawValue("", f)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = ToRawValue("CUST-1", f)
	require.NoError(t, err)
	assert.Equal(t, "CUST-1", got)

	_, err = ToRawValue(42, f)
	assert.ErrorIs(t, err, types.ErrValue)
}

func TestToRawValue(t *testing.T) {
	tests := []struct {
		name string
		ft   types.FieldType
		in   any
		want any
	}{
		{"currency", types.FieldCurrency, Money("12.50"), "12.50"},
		{"currency nil", types.FieldCurrency, nil, "0"},
		{"date drops time", types.FieldDate, time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC), "2024-03-01"},
		{"datetime keeps ms", types.FieldDatetime, time.Date(2024, 3, 1, 10, 20, 30, 123456789, time.UTC), "2024-03-01T10:20:30.123Z"},
		{"check true", types.FieldCheck, true, int64(1)},
		{"check false", types.FieldCheck, false, int64(0)},
		{"attachment", types.FieldAttachment, &types.Attachment{Name: "a.png", Type: "image/png", Data: "AAA="},
			`{"name":"a.png","type":"image/png","data":"AAA="}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToRawValue(tt.in, field(tt.ft))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Round trips: toRaw(toDoc(x)) == toRaw(x) for raw values, and
// toDoc(toRaw(y)) == toDoc(y) for document values.
func TestRoundTrip(t *testing.T) {
	raw := []struct {
		ft types.FieldType
		v  any
	}{
		{types.FieldCurrency, "1999.95"},
		{types.FieldCurrency, ""},
		{types.FieldDate, "2024-12-31"},
		{types.FieldDatetime, "2024-12-31T23:59:59.999Z"},
		{types.FieldInt, int64(42)},
		{types.FieldInt, "7"},
		{types.FieldInt, int64(9007199254740993)},
		{types.FieldInt, "9223372036854775807"},
		{types.FieldFloat, 3.25},
		{types.FieldCheck, int64(1)},
		{types.FieldCheck, int64(0)},
		{types.FieldAttachment, `{"name":"n","type":"t","data":"d"}`},
		{types.FieldData, "plain"},
		{types.FieldLink, "Party-1"},
	}
	for _, r := range raw {
		f := field(r.ft)
		doc, err := ToDocValue(r.v, f)
		require.NoError(t, err)
		a, err := ToRawValue(doc, f)
		require.NoError(t, err)
		b, err := ToRawValue(r.v, f)
		require.NoError(t, err)
		assert.Equal(t, b, a, "%s %v", r.ft, r.v)

		docAgain, err := ToDocValue(a, f)
		require.NoError(t, err)
		assert.True(t, Equal(doc, docAgain), "%s %v", r.ft, r.v)
	}
}

func TestConverterRecursesIntoTables(t *testing.T) {
	schemas := types.SchemaMap{
		"Invoice": {Name: "Invoice", Fields: []*types.Field{
			{Fieldname: "name", Fieldtype: types.FieldData},
			{Fieldname: "total", Fieldtype: types.FieldCurrency},
			{Fieldname: "items", Fieldtype: types.FieldTable, Target: "Item"},
		}},
		"Item": {Name: "Item", IsChild: true, Fields: []*types.Field{
			{Fieldname: "rate", Fieldtype: types.FieldCurrency},
			{Fieldname: "idx", Fieldtype: types.FieldInt},
		}},
	}
	c := New(schemas)

	doc, err := c.ToDocRecord("Invoice", types.Record{
		"name":  "INV-1",
		"total": "30",
		"extra": "kept",
		"items": []types.Record{{"rate": "10", "idx": int64(0)}, {"rate": "20", "idx": int64(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, "kept", doc["extra"])
	rows := doc.Rows("items")
	require.Len(t, rows, 2)
	assert.True(t, Equal(Money("20"), rows[1]["rate"]))

	raw, err := c.ToRawRecord("Invoice", doc)
	require.NoError(t, err)
	want := types.Record{
		"name":  "INV-1",
		"total": "30",
		"extra": "kept",
		"items": []types.Record{{"rate": "10", "idx": int64(0)}, {"rate": "20", "idx": int64(1)}},
	}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("raw record mismatch (-want +got):\n%s", diff)
	}

	_, err = c.ToDocRecord("Missing", types.Record{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(nil, nil))
	assert.True(t, Equal(int64(2), 2.0))
	assert.True(t, Equal(2, int64(2)))
	assert.False(t, Equal(int64(9007199254740993), int64(9007199254740992)))
	assert.True(t, Equal(Money("1.0"), Money("1")))
	assert.False(t, Equal(Money("1.01"), Money("1")))
	assert.False(t, Equal(nil, ""))
	assert.False(t, Equal("1", int64(1)))
	assert.True(t, Equal(
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 1, 0, 0, 0, time.FixedZone("x", 3600)),
	))
}

func TestMoneyArithmetic(t *testing.T) {
	sum := AddMoney(Money("0.1"), Money("0.2"))
	assert.Equal(t, "0.3", FormatMoney(sum))
	assert.Equal(t, "2.50", FormatMoney(MulMoney(Money("1.25"), MoneyFromInt(2))))
	assert.Equal(t, "-1", FormatMoney(SubMoney(nil, MoneyFromInt(1))))
}

func TestToRawValueRejectsNonFiniteMoney(t *testing.T) {
	for _, in := range []any{"NaN", "Infinity", "sNaN"} {
		raw, err := ToRawValue(in, field(types.FieldCurrency))
		assert.ErrorIs(t, err, types.ErrValue, "input %v", in)
		assert.Nil(t, raw)
	}
}
