package document

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// validate runs before every insert and update: one aggregated mandatory
// check over the document and its rows, then the field validators.
func (d *Doc) validate() error {
	labels, paths := d.missing("")
	if len(labels) > 0 {
		return types.NewMandatoryError("Value missing for %s", strings.Join(labels, ", ")).
			WithDetail("schemaName", d.schema.Name).
			WithDetail("missing", paths)
	}
	return d.validateFields()
}

// missing lists the labels and paths of required fields without a value.
func (d *Doc) missing(prefix string) (labels, paths []string) {
	var own []string
	for _, f := range d.schema.Fields {
		if !f.Required || f.Meta || f.Fieldname == types.FieldName {
			continue
		}
		empty := isEmpty(d.values[f.Fieldname])
		if f.Fieldtype == types.FieldTable {
			empty = len(d.rows(f.Fieldname)) == 0
		}
		if empty {
			own = append(own, f.Label)
			paths = append(paths, prefix+f.Fieldname)
		}
	}
	if len(own) > 0 {
		label := strings.Join(own, ", ")
		if d.schema.IsChild {
			label = fmt.Sprintf("%s Row %d: %s", d.schema.Label, d.Idx()+1, label)
		}
		labels = append(labels, label)
	}

	for _, tf := range d.schema.TableFields() {
		for i, child := range d.rows(tf.Fieldname) {
			l, p := child.missing(fmt.Sprintf("%s%s[%d].", prefix, tf.Fieldname, i))
			labels = append(labels, l...)
			paths = append(paths, p...)
		}
	}
	return labels, paths
}

func (d *Doc) validateFields() error {
	for _, f := range d.schema.Fields {
		if f.Fieldtype == types.FieldTable {
			for _, child := range d.rows(f.Fieldname) {
				if err := child.validateFields(); err != nil {
					return err
				}
			}
			continue
		}
		if err := d.validateField(f, d.values[f.Fieldname]); err != nil {
			return err
		}
	}
	return nil
}

// validateField checks option membership and the custom validator of f.
// Empty values pass; missing required values are reported by validate.
func (d *Doc) validateField(f *types.Field, value any) error {
	if isEmpty(value) {
		return nil
	}
	if f.Fieldtype.HasOptions() && len(f.Options) > 0 {
		s := fmt.Sprint(value)
		if !slices.Contains(f.Options, s) {
			return types.NewValidationError("%s: %q is not a valid option, expected one of %s",
				f.Label, s, strings.Join(f.Options, ", ")).
				WithDetail("schemaName", d.schema.Name).
				WithDetail("fieldname", f.Fieldname).
				WithDetail("value", s)
		}
	}
	if validator := d.behavior.validator(f.Fieldname); validator != nil {
		if err := validator(d, value); err != nil {
			var te *types.Error
			if errors.As(err, &te) {
				return err
			}
			return types.NewValidationError("%s: %v", f.Label, err).
				WithDetail("schemaName", d.schema.Name).
				WithDetail("fieldname", f.Fieldname)
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	}
	return false
}
