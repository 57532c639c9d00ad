package document

import (
	"context"

	"github.com/mesh-intelligence/folio/internal/convert"
	"github.com/mesh-intelligence/folio/pkg/types"
)

const (
	opInsert = "insert"
	opUpdate = "update"
	opDelete = "delete"
	opRename = "rename"
)

// runHook calls the behavior hook for name and, when it succeeds, notifies
// observers.
func (d *Doc) runHook(ctx context.Context, name EventName) error {
	if hook := d.behavior.hook(name); hook != nil {
		if err := hook(ctx, d); err != nil {
			return hookError(name, d.schema.Name, err)
		}
	}
	d.Trigger(name, "", nil)
	return nil
}

// Sync persists the document: inserted the first time, updated afterwards.
// Child rows are written with their parent. A second Sync while one is in
// progress on the same document fails with types.ErrSyncInProgress.
func (d *Doc) Sync(ctx context.Context) error {
	if d.schema.IsChild {
		return types.NewValueError("%s rows are saved with their parent", d.schema.Name)
	}
	if d.syncing {
		return types.ErrSyncInProgress
	}
	d.syncing = true
	defer func() { d.syncing = false }()
	return d.cache.surface(d.sync(ctx))
}

func (d *Doc) sync(ctx context.Context) error {
	if err := d.runHook(ctx, EventBeforeSync); err != nil {
		return err
	}
	var err error
	if d.notInserted {
		err = d.insert(ctx)
	} else {
		err = d.update(ctx)
	}
	if err != nil {
		return err
	}
	return d.runHook(ctx, EventAfterSync)
}

func (d *Doc) insert(ctx context.Context) error {
	d.setBaseMeta()
	if err := d.prepare(); err != nil {
		return err
	}
	generated, err := d.assignName(ctx)
	if err != nil {
		return err
	}
	if err := d.runHook(ctx, EventBeforeInsert); err != nil {
		d.unname(generated)
		return err
	}

	raw, err := d.cache.conv.ToRawRecord(d.schema.Name, d.Record())
	if err != nil {
		d.unname(generated)
		return err
	}
	out, err := d.cache.store.Insert(ctx, d.schema.Name, raw)
	if err != nil {
		d.unname(generated)
		return d.translate(ctx, err, opInsert, raw)
	}
	rec, err := d.cache.conv.ToDocRecord(d.schema.Name, out)
	if err != nil {
		return err
	}

	oldKey := d.key()
	d.absorb(rec)
	d.markClean()
	d.cache.rekey(d, oldKey)
	d.cache.log.Debugw("document inserted", "schema", d.schema.Name, "name", d.Name())
	return d.runHook(ctx, EventAfterInsert)
}

func (d *Doc) update(ctx context.Context) error {
	if err := d.checkNotModified(ctx); err != nil {
		return err
	}

	prevModified, prevModifiedBy := d.values[types.FieldModified], d.values[types.FieldModifiedBy]
	restore := func() {
		if d.schema.HasField(types.FieldModified) {
			d.values[types.FieldModified] = prevModified
			d.values[types.FieldModifiedBy] = prevModifiedBy
		}
	}
	d.setModifiedMeta()
	if err := d.prepare(); err != nil {
		restore()
		return err
	}
	if err := d.runHook(ctx, EventBeforeUpdate); err != nil {
		restore()
		return err
	}

	raw, err := d.cache.conv.ToRawRecord(d.schema.Name, d.Record())
	if err != nil {
		restore()
		return err
	}
	if err := d.cache.store.Update(ctx, d.schema.Name, raw); err != nil {
		restore()
		return d.translate(ctx, err, opUpdate, raw)
	}
	rec, err := d.cache.conv.ToDocRecord(d.schema.Name, raw)
	if err != nil {
		return err
	}
	d.absorb(rec)
	d.markClean()
	d.cache.log.Debugw("document updated", "schema", d.schema.Name, "name", d.Name())
	return d.runHook(ctx, EventAfterUpdate)
}

// prepare runs the steps shared by insert and update.
func (d *Doc) prepare() error {
	d.stampChildren()
	d.applyFormulas("", false)
	return d.validate()
}

func (d *Doc) unname(generated bool) {
	if generated {
		delete(d.values, types.FieldName)
	}
}

// checkNotModified compares the stored modified timestamp with the one
// loaded. A difference means another writer updated the record.
func (d *Doc) checkNotModified(ctx context.Context) error {
	f := d.schema.Field(types.FieldModified)
	if d.schema.IsSingle || d.notInserted || f == nil {
		return nil
	}
	stored, err := d.cache.store.Get(ctx, d.schema.Name, d.Name(), types.FieldModified)
	if err != nil {
		return err
	}
	modified, err := convert.ToDocValue(stored[types.FieldModified], f)
	if err != nil {
		return err
	}
	if !convert.Equal(modified, d.values[types.FieldModified]) {
		return types.NewConflictError(d.schema.Name, d.Name())
	}
	return nil
}

// setBaseMeta fills the bookkeeping values of a record about to be
// inserted.
func (d *Doc) setBaseMeta() {
	now, user := d.cache.now(), d.cache.user
	if d.schema.IsSubmittable {
		for _, flag := range []string{types.FieldSubmitted, types.FieldCancelled} {
			if d.values[flag] == nil {
				d.values[flag] = false
			}
		}
	}
	if d.schema.HasField(types.FieldCreatedBy) && d.String(types.FieldCreatedBy) == "" {
		d.values[types.FieldCreatedBy] = user
	}
	if d.schema.HasField(types.FieldCreated) && d.values[types.FieldCreated] == nil {
		d.values[types.FieldCreated] = now
	}
	if d.schema.HasField(types.FieldModifiedBy) && d.String(types.FieldModifiedBy) == "" {
		d.values[types.FieldModifiedBy] = user
	}
	if d.schema.HasField(types.FieldModified) && d.values[types.FieldModified] == nil {
		d.values[types.FieldModified] = now
	}
}

func (d *Doc) setModifiedMeta() {
	if d.schema.HasField(types.FieldModified) {
		d.values[types.FieldModified] = d.cache.now()
		d.values[types.FieldModifiedBy] = d.cache.user
	}
}

// Load replaces the values of an inserted document with the stored ones,
// discarding unsaved changes.
func (d *Doc) Load(ctx context.Context) error {
	if d.notInserted && !d.schema.IsSingle {
		return types.NewValueError("%s has not been saved", d.schema.Name)
	}
	return d.cache.surface(d.load(ctx, d.Name()))
}

func (d *Doc) load(ctx context.Context, name string) error {
	raw, err := d.cache.store.Get(ctx, d.schema.Name, name)
	if err != nil {
		return err
	}
	rec, err := d.cache.conv.ToDocRecord(d.schema.Name, raw)
	if err != nil {
		return err
	}
	d.absorb(rec)
	d.markClean()
	return nil
}

// Submit marks a saved or new submittable document as submitted and syncs
// it. Documents that are not submittable, or already submitted, are left
// alone.
func (d *Doc) Submit(ctx context.Context) error {
	if !d.schema.IsSubmittable || d.Bool(types.FieldSubmitted) || d.Bool(types.FieldCancelled) {
		return nil
	}
	return d.transition(ctx, types.FieldSubmitted, EventBeforeSubmit, EventAfterSubmit)
}

// Cancel marks a submitted document as cancelled and syncs it. Other
// documents are left alone.
func (d *Doc) Cancel(ctx context.Context) error {
	if !d.schema.IsSubmittable || !d.Bool(types.FieldSubmitted) || d.Bool(types.FieldCancelled) {
		return nil
	}
	return d.transition(ctx, types.FieldCancelled, EventBeforeCancel, EventAfterCancel)
}

// transition sets one lifecycle flag and syncs, undoing the flag if the
// sync fails.
func (d *Doc) transition(ctx context.Context, flag string, before, after EventName) error {
	if d.syncing {
		return types.ErrSyncInProgress
	}
	if err := d.runHook(ctx, before); err != nil {
		return d.cache.surface(err)
	}
	if err := d.Set(flag, true); err != nil {
		return err
	}
	if err := d.Sync(ctx); err != nil {
		d.values[flag] = false
		return err
	}
	return d.cache.surface(d.runHook(ctx, after))
}

// CanDelete reports whether Delete is allowed: the document is stored, is
// neither a single nor a child row, and is not submitted unless cancelled.
func (d *Doc) CanDelete() bool {
	if d.notInserted || d.schema.IsSingle || d.schema.IsChild {
		return false
	}
	if d.schema.IsSubmittable && d.Bool(types.FieldSubmitted) && !d.Bool(types.FieldCancelled) {
		return false
	}
	return true
}

// Delete removes the document and its rows from the store and from the
// cache.
func (d *Doc) Delete(ctx context.Context) error {
	if !d.CanDelete() {
		return d.cache.surface(types.NewValidationError("%s %s cannot be deleted while %s",
			d.schema.Label, d.key(), d.State()).
			WithDetail("schemaName", d.schema.Name).
			WithDetail("state", string(d.State())))
	}
	if d.syncing {
		return types.ErrSyncInProgress
	}
	if err := d.runHook(ctx, EventBeforeDelete); err != nil {
		return d.cache.surface(err)
	}
	if err := d.cache.store.Delete(ctx, d.schema.Name, d.Name()); err != nil {
		return d.cache.surface(d.translate(ctx, err, opDelete, nil))
	}
	d.cache.evict(d)
	d.cache.log.Debugw("document deleted", "schema", d.schema.Name, "name", d.Name())
	return d.cache.surface(d.runHook(ctx, EventAfterDelete))
}

// CanRename reports whether the stored record may change its name. Renames
// do not cascade, so schemas that other records link to, or that own child
// rows, cannot be renamed.
func (d *Doc) CanRename() bool {
	if d.schema.IsSingle || d.schema.IsChild {
		return false
	}
	return len(d.cache.store.RenameBlockers(d.schema.Name)) == 0
}

// Rename changes the primary key of the document. An unsaved document simply
// takes the new name.
func (d *Doc) Rename(ctx context.Context, newName string) error {
	if d.schema.IsSingle || d.schema.IsChild {
		return types.NewValueError("%s records cannot be renamed", d.schema.Name)
	}
	if newName == "" {
		return types.NewValueError("new name of %s is empty", d.schema.Name)
	}
	if d.notInserted {
		return d.Set(types.FieldName, newName)
	}
	oldName := d.Name()
	if newName == oldName {
		return nil
	}
	if blockers := d.cache.store.RenameBlockers(d.schema.Name); len(blockers) > 0 {
		return d.cache.surface(types.NewValidationError("%s records cannot be renamed, referenced by %v",
			d.schema.Label, blockers).
			WithDetail("schemaName", d.schema.Name).
			WithDetail("blockers", blockers))
	}
	if d.syncing {
		return types.ErrSyncInProgress
	}
	if err := d.runHook(ctx, EventBeforeRename); err != nil {
		return d.cache.surface(err)
	}
	if err := d.cache.store.Rename(ctx, d.schema.Name, oldName, newName); err != nil {
		return d.cache.surface(d.translate(ctx, err, opRename, types.Record{types.FieldName: newName}))
	}
	d.values[types.FieldName] = newName
	d.cache.rekey(d, oldName)
	d.cache.log.Debugw("document renamed", "schema", d.schema.Name, "from", oldName, "to", newName)
	return d.cache.surface(d.runHook(ctx, EventAfterRename))
}
