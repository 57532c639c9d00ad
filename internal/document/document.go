// Package document implements the stateful record runtime on top of a
// types.Store: defaults, dirty tracking, formulas, validation, naming, child
// rows and the insert/update/submit/cancel/delete/rename lifecycle.
//
// Documents are created and loaded through a Cache, which is also their
// identity map. A Doc is not safe for concurrent use; the store assumes a
// single writer.
package document

import (
	"slices"
	"time"

	"github.com/cockroachdb/apd/v3"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

// State is the lifecycle position of a document. Dirtiness is tracked
// separately.
type State string

// Document states.
const (
	StateDraft     State = "Draft"
	StateSaved     State = "Saved"
	StateSubmitted State = "Submitted"
	StateCancelled State = "Cancelled"
)

// Doc is one record of a schema held in memory. Table fields hold child Docs;
// a child refers to its parent by key and finds it through the Cache.
type Doc struct {
	cache    *Cache
	schema   *types.Schema
	behavior *Behavior
	values   map[string]any
	events   emitter

	tempName    string
	dirty       bool
	notInserted bool
	syncing     bool
}

// newDoc builds an unsaved document carrying the defaults of s.
func (c *Cache) newDoc(s *types.Schema) *Doc {
	d := &Doc{
		cache:       c,
		schema:      s,
		behavior:    c.behavior(s.Name),
		values:      make(map[string]any, len(s.Fields)),
		tempName:    "new-" + uuid.NewString(),
		dirty:       true,
		notInserted: true,
	}
	for _, f := range s.Fields {
		if f.Fieldtype == types.FieldTable {
			d.values[f.Fieldname] = []*Doc{}
			continue
		}
		var v any
		if fn := d.behavior.defaultFunc(f.Fieldname); fn != nil {
			v = fn(d)
		} else if f.Default != nil {
			v = f.Default
		} else {
			continue
		}
		dv, err := convert.ToDocValue(v, f)
		if err != nil {
			c.log.Warnw("ignoring invalid default", "schema", s.Name, "field", f.Fieldname, "error", err)
			continue
		}
		d.values[f.Fieldname] = dv
	}
	if s.IsSingle {
		d.values[types.FieldName] = s.Name
	}
	return d
}

// Schema returns the document's schema.
func (d *Doc) Schema() *types.Schema { return d.schema }

// SchemaName returns the name of the document's schema.
func (d *Doc) SchemaName() string { return d.schema.Name }

// Name returns the primary key, or "" before one is assigned.
func (d *Doc) Name() string {
	if d.schema.IsSingle {
		return d.schema.Name
	}
	return d.String(types.FieldName)
}

// key is the identity of the document in the cache: the temporary name
// until the document is inserted.
func (d *Doc) key() string {
	if d.schema.IsSingle {
		return d.schema.Name
	}
	if d.notInserted {
		return d.tempName
	}
	return d.Name()
}

// Key returns the name the cache knows the document by.
func (d *Doc) Key() string { return d.key() }

// Get returns the document value of field.
func (d *Doc) Get(field string) any { return d.values[field] }

// String returns the value of field if it is a string.
func (d *Doc) String(field string) string {
	s, _ := d.values[field].(string)
	return s
}

// Int returns the value of field as an integer.
func (d *Doc) Int(field string) int64 {
	switch v := d.values[field].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Float returns the value of field as a float.
func (d *Doc) Float(field string) float64 {
	switch v := d.values[field].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns the value of a Check field.
func (d *Doc) Bool(field string) bool {
	b, _ := d.values[field].(bool)
	return b
}

// Money returns the value of a Currency field; unset reads as zero.
func (d *Doc) Money(field string) *apd.Decimal {
	if m, ok := d.values[field].(*apd.Decimal); ok && m != nil {
		return m
	}
	return convert.Zero()
}

// Time returns the value of a Date or Datetime field.
func (d *Doc) Time(field string) time.Time {
	t, _ := d.values[field].(time.Time)
	return t
}

// Rows returns the child rows of a table field in idx order.
func (d *Doc) Rows(field string) []*Doc {
	return slices.Clone(d.rows(field))
}

func (d *Doc) rows(field string) []*Doc {
	rows, _ := d.values[field].([]*Doc)
	return rows
}

// Idx returns the position of a child row within its parent's table field.
func (d *Doc) Idx() int { return int(d.Int(types.FieldIdx)) }

// Parent returns the parent of a child row, looked up through the cache.
func (d *Doc) Parent() *Doc {
	if !d.schema.IsChild {
		return nil
	}
	return d.cache.Peek(d.String(types.FieldParentSchema), d.String(types.FieldParent))
}

// Dirty reports unsaved changes on the document or any of its child rows.
func (d *Doc) Dirty() bool {
	if d.dirty {
		return true
	}
	for _, tf := range d.schema.TableFields() {
		for _, child := range d.rows(tf.Fieldname) {
			if child.Dirty() {
				return true
			}
		}
	}
	return false
}

// Inserted reports whether the document has been stored.
func (d *Doc) Inserted() bool { return !d.notInserted }

// State returns the lifecycle state.
func (d *Doc) State() State {
	switch {
	case d.notInserted:
		return StateDraft
	case d.schema.IsSubmittable && d.Bool(types.FieldCancelled):
		return StateCancelled
	case d.schema.IsSubmittable && d.Bool(types.FieldSubmitted):
		return StateSubmitted
	}
	return StateSaved
}

// Record returns a snapshot of the document values with child rows as
// nested records.
func (d *Doc) Record() types.Record {
	out := make(types.Record, len(d.values))
	for k, v := range d.values {
		if rows, ok := v.([]*Doc); ok {
			recs := make([]types.Record, len(rows))
			for i, row := range rows {
				recs[i] = row.Record()
			}
			out[k] = recs
			continue
		}
		out[k] = v
	}
	return out
}

// On registers h for events of this document.
func (d *Doc) On(name EventName, h Handler) {
	d.events.on(name, h)
}

// Trigger delivers an event to the handlers of the document and then to the
// aggregate handlers of the cache.
func (d *Doc) Trigger(name EventName, field string, value any) {
	ev := Event{Name: name, Doc: d, Field: field, Value: value}
	d.events.trigger(ev)
	d.cache.events.trigger(ev)
}

// SetOption modifies a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	retrigger bool
}

// Retrigger repeats formula propagation through child rows once more when
// the first pass changed anything.
func Retrigger() SetOption {
	return func(o *setOptions) { o.retrigger = true }
}

// Set assigns value to field. Unknown fields and unchanged values are
// ignored. The value is converted to its document type and validated before
// it is stored; dependent formulas are recomputed and a change event fires.
// Table fields accept a slice of records and replace every row.
func (d *Doc) Set(field string, value any, opts ...SetOption) error {
	f := d.schema.Field(field)
	if f == nil {
		return nil
	}
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	if f.Fieldtype == types.FieldTable {
		return d.setRows(f, value, o)
	}
	if field == types.FieldName && !d.notInserted && !d.schema.IsChild {
		if s, ok := value.(string); ok && s == d.Name() {
			return nil
		}
		return types.NewValueError("%s %s is saved, rename it instead of setting its name", d.schema.Name, d.Name())
	}

	v, err := convert.ToDocValue(value, f)
	if err != nil {
		return err
	}
	if convert.Equal(d.values[field], v) {
		return nil
	}
	if err := d.validateField(f, v); err != nil {
		return err
	}
	d.values[field] = v
	d.dirty = true
	d.applyChange(field, o.retrigger)
	return nil
}

// applyChange recomputes what depends on field, notifies observers and
// propagates the change to the parent of a child row.
func (d *Doc) applyChange(field string, retrigger bool) {
	d.applyFormulas(field, retrigger)
	d.Trigger(EventChange, field, d.values[field])
	if parent := d.Parent(); parent != nil {
		parent.applyChange(d.String(types.FieldParentFieldname), retrigger)
	}
}

func (d *Doc) tableField(field string) (*types.Field, error) {
	f := d.schema.Field(field)
	if f == nil || f.Fieldtype != types.FieldTable {
		return nil, types.NewValueError("%s has no table field %s", d.schema.Name, field)
	}
	return f, nil
}

// Append adds a child row built from values to a table field and returns it.
func (d *Doc) Append(field string, values types.Record) (*Doc, error) {
	f, err := d.tableField(field)
	if err != nil {
		return nil, err
	}
	child, err := d.appendRow(f, values)
	if err != nil {
		return nil, err
	}
	d.dirty = true
	d.applyChange(field, false)
	return child, nil
}

// Remove drops child from a table field and renumbers the remaining rows.
func (d *Doc) Remove(field string, child *Doc) error {
	f, err := d.tableField(field)
	if err != nil {
		return err
	}
	rows := d.rows(f.Fieldname)
	i := slices.Index(rows, child)
	if i < 0 {
		return types.NewNotFoundError("row not found in %s.%s", d.schema.Name, field)
	}
	d.values[f.Fieldname] = slices.Delete(slices.Clone(rows), i, i+1)
	d.reindex(f)
	d.dirty = true
	d.applyChange(field, false)
	return nil
}

func (d *Doc) setRows(f *types.Field, value any, o setOptions) error {
	var recs []types.Record
	switch v := value.(type) {
	case nil:
	case []*Doc:
		for _, child := range v {
			recs = append(recs, child.Record())
		}
	default:
		recs = types.Record{f.Fieldname: value}.Rows(f.Fieldname)
		if recs == nil {
			return types.NewValueError("invalid rows %T for table field %s", value, f.Fieldname)
		}
	}

	d.values[f.Fieldname] = []*Doc{}
	for _, rec := range recs {
		if _, err := d.appendRow(f, rec); err != nil {
			return err
		}
	}
	d.dirty = true
	d.applyChange(f.Fieldname, o.retrigger)
	return nil
}

// appendRow creates the child row without propagating the change.
func (d *Doc) appendRow(f *types.Field, values types.Record) (*Doc, error) {
	target, err := d.cache.schemas.Get(f.Target)
	if err != nil {
		return nil, err
	}
	rows := d.rows(f.Fieldname)
	child := d.cache.newDoc(target)
	child.values[types.FieldParent] = d.key()
	child.values[types.FieldParentSchema] = d.schema.Name
	child.values[types.FieldParentFieldname] = f.Fieldname
	child.values[types.FieldIdx] = int64(len(rows))
	d.values[f.Fieldname] = append(rows, child)

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		switch k {
		case types.FieldParent, types.FieldParentSchema, types.FieldParentFieldname, types.FieldIdx:
			continue
		}
		if err := child.Set(k, values[k]); err != nil {
			d.values[f.Fieldname] = rows
			return nil, err
		}
	}
	return child, nil
}

func (d *Doc) reindex(f *types.Field) {
	for i, child := range d.rows(f.Fieldname) {
		child.values[types.FieldIdx] = int64(i)
	}
}

// stampChildren re-parents and re-indexes every child row and names new
// rows, so the names written are known to the document.
func (d *Doc) stampChildren() {
	for _, tf := range d.schema.TableFields() {
		for i, child := range d.rows(tf.Fieldname) {
			child.values[types.FieldParent] = d.key()
			child.values[types.FieldParentSchema] = d.schema.Name
			child.values[types.FieldParentFieldname] = tf.Fieldname
			child.values[types.FieldIdx] = int64(i)
			if child.Name() == "" {
				child.values[types.FieldName] = randomName()
			}
		}
	}
}

// absorb copies a document record into d. Child rows are matched by
// position so existing child Docs keep their identity.
func (d *Doc) absorb(rec types.Record) {
	for k, v := range rec {
		f := d.schema.Field(k)
		if f == nil {
			continue
		}
		if f.Fieldtype != types.FieldTable {
			d.values[k] = v
			continue
		}
		target := d.cache.schemas[f.Target]
		if target == nil {
			continue
		}
		existing := d.rows(k)
		rows := rec.Rows(k)
		next := make([]*Doc, len(rows))
		for i, row := range rows {
			var child *Doc
			if i < len(existing) {
				child = existing[i]
			} else {
				child = d.cache.newDoc(target)
			}
			child.absorb(row)
			next[i] = child
		}
		d.values[k] = next
	}
}

// markClean marks d and its rows as stored and unchanged.
func (d *Doc) markClean() {
	d.dirty = false
	d.notInserted = false
	for _, tf := range d.schema.TableFields() {
		for _, child := range d.rows(tf.Fieldname) {
			child.markClean()
		}
	}
}
