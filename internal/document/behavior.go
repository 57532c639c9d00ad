package document

import "context"

// Formula computes the value of one field from the rest of the document.
type Formula struct {
	// DependsOn lists the fields whose change recomputes the formula. A
	// formula without dependencies is only evaluated on full passes, before
	// every sync.
	DependsOn []string
	// Compute returns the new value. An error means "no new value".
	Compute func(d *Doc) (any, error)
}

// Validator checks a non-empty value of a field.
type Validator func(d *Doc, value any) error

// Hook runs at a lifecycle point. An error from a before-hook aborts the
// operation.
type Hook func(ctx context.Context, d *Doc) error

// Behavior is the per-schema logic the generic document engine invokes. Any
// member may be nil.
type Behavior struct {
	// Defaults override the schema default of a field when a document is
	// created.
	Defaults   map[string]func(d *Doc) any
	Formulas   map[string]Formula
	Validators map[string]Validator
	Hooks      map[EventName]Hook
}

func (b *Behavior) formula(field string) (Formula, bool) {
	if b == nil || b.Formulas == nil {
		return Formula{}, false
	}
	f, ok := b.Formulas[field]
	return f, ok && f.Compute != nil
}

func (b *Behavior) validator(field string) Validator {
	if b == nil || b.Validators == nil {
		return nil
	}
	return b.Validators[field]
}

func (b *Behavior) hook(name EventName) Hook {
	if b == nil || b.Hooks == nil {
		return nil
	}
	return b.Hooks[name]
}

func (b *Behavior) defaultFunc(field string) func(d *Doc) any {
	if b == nil || b.Defaults == nil {
		return nil
	}
	return b.Defaults[field]
}
