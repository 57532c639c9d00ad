package document

import (
	"slices"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// applyFormulas recomputes the formulas that depend on field, or every
// formula when field is empty. Child rows are recomputed before the parent.
// With retrigger, a pass that changed anything is repeated once so parent
// values computed from rows can feed back into the rows.
func (d *Doc) applyFormulas(field string, retrigger bool) bool {
	changed := d.applyChildFormulas(field)
	changed = d.applyOwnFormulas(field) || changed
	if changed && retrigger {
		d.applyChildFormulas(field)
		d.applyOwnFormulas(field)
	}
	return changed
}

func (d *Doc) applyChildFormulas(field string) bool {
	changed := false
	for _, tf := range d.schema.TableFields() {
		for _, child := range d.rows(tf.Fieldname) {
			if child.applyFormulas(field, false) {
				changed = true
			}
		}
	}
	return changed
}

// applyOwnFormulas evaluates formulas in field declaration order.
func (d *Doc) applyOwnFormulas(field string) bool {
	changed := false
	for _, f := range d.schema.Fields {
		fm, ok := d.behavior.formula(f.Fieldname)
		if !ok || f.Fieldtype == types.FieldTable {
			continue
		}
		if field != "" && !slices.Contains(fm.DependsOn, field) {
			continue
		}
		v, ok := d.compute(f, fm)
		if !ok || convert.Equal(d.values[f.Fieldname], v) {
			continue
		}
		d.values[f.Fieldname] = v
		d.dirty = true
		changed = true
	}
	return changed
}

// compute evaluates one formula. Failures yield no value.
func (d *Doc) compute(f *types.Field, fm Formula) (v any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.cache.log.Debugw("formula panicked", "schema", d.schema.Name, "field", f.Fieldname, "panic", r)
			v, ok = nil, false
		}
	}()
	raw, err := fm.Compute(d)
	if err != nil {
		d.cache.log.Debugw("formula failed", "schema", d.schema.Name, "field", f.Fieldname, "error", err)
		return nil, false
	}
	v, err = convert.ToDocValue(raw, f)
	if err != nil {
		return nil, false
	}
	return v, true
}
