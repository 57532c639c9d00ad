package convert

import (
	"reflect"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Converter converts whole records of a schema map. Keys that are not fields
// of the schema pass through unchanged.
type Converter struct {
	schemas types.SchemaMap
}

// New returns a Converter over schemas.
func New(schemas types.SchemaMap) *Converter {
	return &Converter{schemas: schemas}
}

// ToDocRecord converts a raw record of schemaName, recursing into the rows of
// its table fields.
func (c *Converter) ToDocRecord(schemaName string, raw types.Record) (types.Record, error) {
	return c.convert(schemaName, raw, ToDocValue)
}

// ToRawRecord converts a document record of schemaName to raw form, recursing
// into the rows of its table fields.
func (c *Converter) ToRawRecord(schemaName string, doc types.Record) (types.Record, error) {
	return c.convert(schemaName, doc, ToRawValue)
}

func (c *Converter) convert(schemaName string, in types.Record, fn func(any, *types.Field) (any, error)) (types.Record, error) {
	schema, err := c.schemas.Get(schemaName)
	if err != nil {
		return nil, err
	}
	out := make(types.Record, len(in))
	for key, value := range in {
		field := schema.Field(key)
		if field == nil {
			out[key] = value
			continue
		}
		if field.Fieldtype == types.FieldTable {
			rows := in.Rows(key)
			conv := make([]types.Record, 0, len(rows))
			for _, row := range rows {
				r, err := c.convert(field.Target, row, fn)
				if err != nil {
					return nil, err
				}
				conv = append(conv, r)
			}
			out[key] = conv
			continue
		}
		v, err := fn(value, field)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// Equal reports whether two document values are the same, comparing money
// by value, times by instant, and numbers across int and float types.
func Equal(a, b any) bool {
	if isNil(a) || isNil(b) {
		return isNil(a) && isNil(b)
	}
	switch x := a.(type) {
	case *apd.Decimal:
		y, ok := b.(*apd.Decimal)
		return ok && x.Cmp(y) == 0
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case *types.Attachment:
		y, ok := b.(*types.Attachment)
		return ok && *x == *y
	case int, int64, float64:
		if xi, ok := exactInt(a); ok {
			if yi, ok := exactInt(b); ok {
				return xi == yi
			}
		}
		switch b.(type) {
		case int, int64, float64:
			return toFloat(a) == toFloat(b)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func exactInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return rv.IsNil()
	}
	return false
}
