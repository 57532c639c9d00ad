package document

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// CodeLinkValidation marks ValidationErrors raised for links to records that
// do not exist.
const CodeLinkValidation = "LinkValidation"

// translate turns classified storage failures into domain errors. rec holds
// the raw values that were being written. Other errors are returned
// unchanged.
func (d *Doc) translate(ctx context.Context, err error, op string, rec types.Record) error {
	var te *types.Error
	if !errors.As(err, &te) || te.Kind != types.KindDatabase {
		return err
	}

	switch te.Code() {
	case types.DBCodeUnique:
		return d.duplicateEntry(te, rec)
	case types.DBCodeForeignKey:
		if op == opDelete {
			e := types.NewValidationError("cannot delete %s %s, other records link to it", d.schema.Label, d.Name()).
				WithDetail("code", CodeLinkValidation).
				WithDetail("schemaName", d.schema.Name).
				WithDetail("name", d.Name())
			e.Err = te
			return e
		}
		if e := d.findMissingLink(ctx); e != nil {
			e.Err = te
			return e
		}
		e := types.NewValidationError("cannot %s %s %s, a linked record does not exist", op, d.schema.Label, d.Name()).
			WithDetail("code", CodeLinkValidation).
			WithDetail("schemaName", d.schema.Name)
		e.Err = te
		return e
	}
	return err
}

func (d *Doc) duplicateEntry(te *types.Error, rec types.Record) error {
	schemaName, _ := te.Detail["schemaName"].(string)
	field, _ := te.Detail["fieldname"].(string)
	if schemaName == "" {
		schemaName = d.schema.Name
	}
	label := schemaName
	if s := d.cache.schemas[schemaName]; s != nil {
		label = s.Label
	}

	var value any
	if schemaName == d.schema.Name && field != "" {
		value = rec[field]
	}

	var e *types.Error
	switch {
	case field == types.FieldName && value != nil:
		e = types.NewDuplicateEntryError("%s %v already exists", label, value)
	case field != "" && value != nil:
		e = types.NewDuplicateEntryError("%s with %s %v already exists", label, field, value)
	default:
		e = types.NewDuplicateEntryError("duplicate %s entry", label)
	}
	e.WithDetail("schemaName", schemaName)
	if field != "" {
		e.WithDetail("fieldname", field)
	}
	if value != nil {
		e.WithDetail("value", value)
	}
	e.Err = te
	return e
}

// findMissingLink walks the link fields of d and of its rows and returns an
// error naming the first link whose target record does not exist.
func (d *Doc) findMissingLink(ctx context.Context) *types.Error {
	for _, f := range d.schema.Fields {
		switch f.Fieldtype {
		case types.FieldTable:
			for _, child := range d.rows(f.Fieldname) {
				if e := child.findMissingLink(ctx); e != nil {
					return e
				}
			}
			continue
		case types.FieldLink, types.FieldDynamicLink:
		default:
			continue
		}

		value := d.String(f.Fieldname)
		if value == "" {
			continue
		}
		target := f.Target
		if f.Fieldtype == types.FieldDynamicLink {
			target = d.String(f.References)
		}
		if target == "" {
			continue
		}
		if s, ok := d.cache.schemas[target]; ok && !s.HasTable() {
			continue
		}
		exists, err := d.cache.store.Exists(ctx, target, value)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			continue
		}
		if exists {
			continue
		}
		return types.NewValidationError("%s %s linked in %s.%s does not exist", target, value, d.schema.Name, f.Fieldname).
			WithDetail("code", CodeLinkValidation).
			WithDetail("schemaName", d.schema.Name).
			WithDetail("fieldname", f.Fieldname).
			WithDetail("target", target).
			WithDetail("value", value)
	}
	return nil
}

// surface attaches a stack trace to structured errors in dev mode.
func (c *Cache) surface(err error) error {
	if err == nil || !c.dev {
		return err
	}
	var te *types.Error
	if errors.As(err, &te) && te.Stack == "" {
		te.Stack = string(debug.Stack())
	}
	return err
}

func hookError(name EventName, schemaName string, err error) error {
	return fmt.Errorf("%s hook of %s: %w", name, schemaName, err)
}
