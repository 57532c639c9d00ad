package document

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// autoincrementWidth is the zero-padded width of autoincrement names.
const autoincrementWidth = 9

// assignName gives an unnamed document its primary key according to the
// naming strategy of its schema. It reports whether a name was generated.
func (d *Doc) assignName(ctx context.Context) (bool, error) {
	if d.schema.IsSingle {
		d.values[types.FieldName] = d.schema.Name
		return false, nil
	}
	if d.Name() != "" {
		return false, nil
	}

	var name string
	switch d.schema.Naming {
	case types.NamingManual:
		return false, types.NewMandatoryError("%s name is required", d.schema.Label).
			WithDetail("schemaName", d.schema.Name).
			WithDetail("missing", []string{types.FieldName})
	case types.NamingAutoincrement:
		last, err := d.cache.store.Bespoke(ctx, types.BespokeLastInserted, types.BespokeArgs{Schema: d.schema.Name})
		if err != nil {
			return false, fmt.Errorf("next name of %s: %w", d.schema.Name, err)
		}
		n, _ := last.(int64)
		name = fmt.Sprintf("%0*d", autoincrementWidth, n+1)
	case types.NamingNumberSeries:
		series := d.String(types.FieldNumberSeries)
		if series == "" {
			return false, types.NewMandatoryError("%s needs a number series to be named", d.schema.Label).
				WithDetail("schemaName", d.schema.Name).
				WithDetail("missing", []string{types.FieldNumberSeries})
		}
		next, err := d.cache.nextInSeries(ctx, series, d.schema.Name)
		if err != nil {
			return false, err
		}
		name = next
	default:
		name = randomName()
	}
	d.values[types.FieldName] = name
	return true, nil
}

// nextInSeries advances the named number series and returns the formatted
// name. A missing series is created with the schema defaults.
func (c *Cache) nextInSeries(ctx context.Context, series, referenceType string) (string, error) {
	ns, err := c.Get(ctx, types.SchemaNumberSeries, series)
	if errors.Is(err, types.ErrNotFound) {
		ns, err = c.New(types.SchemaNumberSeries, types.Record{
			types.FieldName: series,
			"referenceType": referenceType,
		})
		if err == nil {
			err = ns.Sync(ctx)
		}
	}
	if err != nil {
		return "", fmt.Errorf("number series %s: %w", series, err)
	}

	current := max(ns.Int("current"), ns.Int("start")-1) + 1
	if err := ns.Set("current", current); err != nil {
		return "", err
	}
	if err := ns.Sync(ctx); err != nil {
		return "", fmt.Errorf("number series %s: %w", series, err)
	}
	return fmt.Sprintf("%s%0*d", series, int(ns.Int("padZeros")), current), nil
}

func randomName() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
