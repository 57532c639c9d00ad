// Package convert maps values between their raw storage form (strings,
// int64, float64, nil) and the typed values documents work with
// (*apd.Decimal money, time.Time, bool, *types.Attachment).
package convert

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Raw layouts written to the store.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// parseLayouts are tried in order when a date string is converted.
var parseLayouts = []string{
	DatetimeLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	DateLayout,
}

var numericPrefix = regexp.MustCompile(`^[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?`)

// ToDocValue converts a raw value of field to its document value.
func ToDocValue(value any, field *types.Field) (any, error) {
	switch field.Fieldtype {
	case types.FieldCurrency:
		return toMoney(value, field)
	case types.FieldDate, types.FieldDatetime:
		return toTime(value, field)
	case types.FieldInt:
		if value == nil {
			return nil, nil
		}
		n, err := toInt(value, field)
		if err != nil {
			return nil, err
		}
		return n, nil
	case types.FieldFloat:
		if value == nil {
			return nil, nil
		}
		return toFloat(value), nil
	case types.FieldCheck:
		return toBool(value), nil
	case types.FieldAttachment, types.FieldAttachImage:
		return toAttachment(value, field)
	}
	return value, nil
}

// ToRawValue converts a document value of field to the form written to the
// store. Raw input is accepted too and normalized the same way.
func ToRawValue(value any, field *types.Field) (any, error) {
	switch field.Fieldtype {
	case types.FieldCurrency:
		d, err := toMoney(value, field)
		if err != nil {
			return nil, err
		}
		return FormatMoney(d), nil
	case types.FieldDate, types.FieldDatetime:
		v, err := toTime(value, field)
		if err != nil || v == nil {
			return nil, err
		}
		t := v.(time.Time)
		if field.Fieldtype == types.FieldDate {
			return t.Format(DateLayout), nil
		}
		return t.UTC().Format(DatetimeLayout), nil
	case types.FieldInt, types.FieldFloat:
		return ToDocValue(value, field)
	case types.FieldCheck:
		if toBool(value) {
			return int64(1), nil
		}
		return int64(0), nil
	case types.FieldAttachment, types.FieldAttachImage:
		v, err := toAttachment(value, field)
		if err != nil || v == nil {
			return nil, err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, types.NewValueError("%s: %v", field.Fieldname, err)
		}
		return string(b), nil
	case types.FieldLink, types.FieldDynamicLink:
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			if v == "" {
				return nil, nil
			}
			return v, nil
		default:
			return nil, types.NewValueError("invalid value %v (%T) for link field %s", value, value, field.Fieldname).
				WithDetail("fieldname", field.Fieldname)
		}
	}
	return value, nil
}

func toMoney(value any, field *types.Field) (*apd.Decimal, error) {
	switch v := value.(type) {
	case nil:
		return Zero(), nil
	case *apd.Decimal:
		if v == nil {
			return Zero(), nil
		}
		return new(apd.Decimal).Set(v), nil
	case apd.Decimal:
		return new(apd.Decimal).Set(&v), nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return Zero(), nil
		}
		d, _, err := apd.NewFromString(s)
		if err != nil || d.Form != apd.Finite {
			return nil, types.NewValueError("invalid money value %q for %s", v, field.Fieldname).
				WithDetail("fieldname", field.Fieldname)
		}
		return d, nil
	case bool:
		if v {
			return MoneyFromInt(1), nil
		}
		return Zero(), nil
	case int:
		return MoneyFromInt(int64(v)), nil
	case int64:
		return MoneyFromInt(v), nil
	case float64:
		d := new(apd.Decimal)
		if _, err := d.SetFloat64(v); err != nil || d.Form != apd.Finite {
			return nil, types.NewValueError("invalid money value %v for %s", v, field.Fieldname).
				WithDetail("fieldname", field.Fieldname)
		}
		return d, nil
	}
	return nil, types.NewValueError("invalid value %v (%T) for currency field %s", value, value, field.Fieldname).
		WithDetail("fieldname", field.Fieldname)
}

// toTime returns nil or a time.Time wrapped in any.
func toTime(value any, field *types.Field) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return normalizeTime(v, field), nil
	case *time.Time:
		if v == nil || v.IsZero() {
			return nil, nil
		}
		return normalizeTime(*v, field), nil
	case []byte:
		return toTime(string(v), field)
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return nil, nil
		}
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return normalizeTime(t, field), nil
			}
		}
		return nil, types.NewValueError("invalid date %q for %s", v, field.Fieldname).
			WithDetail("fieldname", field.Fieldname)
	}
	return nil, types.NewValueError("invalid value %v (%T) for date field %s", value, value, field.Fieldname).
		WithDetail("fieldname", field.Fieldname)
}

func normalizeTime(t time.Time, field *types.Field) time.Time {
	if field.Fieldtype == types.FieldDate {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return t.UTC().Truncate(time.Millisecond)
}

// toInt keeps integers exact. Strings parse as integers when their numeric
// prefix is one; anything else truncates the lenient float parse toward
// zero. Values outside the int64 range are rejected.
func toInt(value any, field *types.Field) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case []byte:
		return toInt(string(v), field)
	case string:
		m := numericPrefix.FindString(strings.TrimSpace(v))
		if n, err := strconv.ParseInt(m, 10, 64); err == nil {
			return n, nil
		}
	}
	f := toFloat(value)
	if math.IsNaN(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, types.NewValueError("value %v out of range for int field %s", value, field.Fieldname).
			WithDetail("fieldname", field.Fieldname)
	}
	return int64(math.Trunc(f)), nil
}

// toFloat is the lenient numeric parse shared by Int, Float and Check.
func toFloat(value any) float64 {
	switch v := value.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 1
		}
		return 0
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case int32:
		return float64(v)
	case float32:
		return float64(v)
	case float64:
		return v
	case *apd.Decimal:
		if v == nil {
			return 0
		}
		f, _ := v.Float64()
		return f
	case []byte:
		return toFloat(string(v))
	case string:
		m := numericPrefix.FindString(strings.TrimSpace(v))
		if m == "" {
			return 0
		}
		f, err := strconv.ParseFloat(m, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func toBool(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case nil:
		return false
	case string, []byte, int, int64, int32, float32, float64:
		return toFloat(v) != 0
	}
	return false
}

func toAttachment(value any, field *types.Field) (any, error) {
	var a types.Attachment
	switch v := value.(type) {
	case nil:
		return nil, nil
	case *types.Attachment:
		if v == nil {
			return nil, nil
		}
		a = *v
	case types.Attachment:
		a = v
	case map[string]any:
		a = types.Attachment{Name: str(v["name"]), Type: str(v["type"]), Data: str(v["data"])}
	case string:
		if strings.TrimSpace(v) == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, types.NewValueError("malformed attachment for %s: %v", field.Fieldname, err).
				WithDetail("fieldname", field.Fieldname)
		}
	default:
		return nil, types.NewValueError("invalid value %v (%T) for attachment field %s", value, value, field.Fieldname).
			WithDetail("fieldname", field.Fieldname)
	}
	if a.Name == "" || a.Type == "" || a.Data == "" {
		return nil, types.NewValueError("attachment for %s needs name, type and data", field.Fieldname).
			WithDetail("fieldname", field.Fieldname)
	}
	return &a, nil
}

func str(v any) string {
	s, _ := v.(string)
	return s
}
