// Package catalogue loads declarative schema definitions and freezes them
// into a types.SchemaMap: it resolves abstract bases, injects meta fields,
// assigns default labels, merges the core schemas, and validates references.
package catalogue

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/mesh-intelligence/folio/pkg/types"
)

// Build validates defs and returns the frozen schema map. The inputs are not
// modified. Core schemas (SingleValue, PatchRun, NumberSeries) are added
// unless defs already define them.
func Build(defs []*types.Schema) (types.SchemaMap, error) {
	raw := make(map[string]*types.Schema, len(defs)+3)
	for _, d := range defs {
		if d == nil {
			continue
		}
		if d.Name == "" {
			return nil, types.NewValueError("schema without a name")
		}
		if _, dup := raw[d.Name]; dup {
			return nil, types.NewValueError("schema %s defined twice", d.Name)
		}
		raw[d.Name] = cloneSchema(d)
	}
	for _, core := range CoreSchemas() {
		if _, ok := raw[core.Name]; !ok {
			raw[core.Name] = core
		}
	}

	for _, s := range raw {
		if err := resolveExtends(s, raw); err != nil {
			return nil, err
		}
	}

	m := make(types.SchemaMap, len(raw))
	for name, s := range raw {
		if err := checkFields(s); err != nil {
			return nil, err
		}
		injectMetaFields(s)
		assignLabels(s)
		m[name] = s
	}

	for _, name := range m.Names() {
		if err := checkReferences(m[name], m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// CoreSchemas returns fresh copies of the schemas the storage layer relies on.
func CoreSchemas() []*types.Schema {
	return []*types.Schema{
		{
			Name:   types.SchemaSingleValue,
			Naming: types.NamingRandom,
			Fields: []*types.Field{
				{Fieldname: types.FieldParent, Fieldtype: types.FieldData, Required: true},
				{Fieldname: "fieldname", Fieldtype: types.FieldData, Required: true},
				{Fieldname: "value", Fieldtype: types.FieldText},
			},
		},
		{
			Name:   types.SchemaPatchRun,
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "version", Fieldtype: types.FieldData},
				{Fieldname: "failed", Fieldtype: types.FieldCheck, Default: false},
			},
		},
		{
			Name:   types.SchemaNumberSeries,
			Naming: types.NamingManual,
			Fields: []*types.Field{
				{Fieldname: "start", Fieldtype: types.FieldInt, Required: true, Default: int64(1001)},
				{Fieldname: "padZeros", Fieldtype: types.FieldInt, Required: true, Default: int64(4)},
				{Fieldname: "referenceType", Fieldtype: types.FieldData},
				{Fieldname: "current", Fieldtype: types.FieldInt, Default: int64(0)},
			},
		},
	}
}

func cloneSchema(s *types.Schema) *types.Schema {
	cp := *s
	cp.Fields = make([]*types.Field, len(s.Fields))
	for i, f := range s.Fields {
		cp.Fields[i] = cloneField(f)
	}
	return &cp
}

func cloneField(f *types.Field) *types.Field {
	cp := *f
	if f.Options != nil {
		cp.Options = append([]string(nil), f.Options...)
	}
	return &cp
}

// resolveExtends prepends the abstract base's fields that s does not
// override. Only one level of inheritance is supported.
func resolveExtends(s *types.Schema, raw map[string]*types.Schema) error {
	if s.Extends == "" {
		return nil
	}
	base, ok := raw[s.Extends]
	if !ok {
		return types.NewNotFoundError("schema %s extends unknown schema %s", s.Name, s.Extends)
	}
	if !base.IsAbstract {
		return types.NewValueError("schema %s extends %s which is not abstract", s.Name, s.Extends)
	}
	if base.Extends != "" {
		return types.NewValueError("schema %s: abstract base %s may not extend another schema", s.Name, base.Name)
	}

	fields := make([]*types.Field, 0, len(base.Fields)+len(s.Fields))
	for _, bf := range base.Fields {
		if own := s.Field(bf.Fieldname); own != nil {
			fields = append(fields, own)
			continue
		}
		fields = append(fields, cloneField(bf))
	}
	for _, f := range s.Fields {
		if !base.HasField(f.Fieldname) {
			fields = append(fields, f)
		}
	}
	s.Fields = fields
	if s.Naming == "" {
		s.Naming = base.Naming
	}
	s.Extends = ""
	return nil
}

func checkFields(s *types.Schema) error {
	seen := make(map[string]bool, len(s.Fields))
	for _, f := range s.Fields {
		if f.Fieldname == "" {
			return types.NewValueError("schema %s has a field without a fieldname", s.Name)
		}
		if seen[f.Fieldname] {
			return types.NewValueError("schema %s declares field %s twice", s.Name, f.Fieldname)
		}
		seen[f.Fieldname] = true
		if !f.Fieldtype.IsValid() {
			return types.NewValueError("schema %s field %s has unknown fieldtype %q", s.Name, f.Fieldname, f.Fieldtype)
		}
		if f.Fieldtype == types.FieldSelect && len(f.Options) == 0 {
			return types.NewValueError("schema %s select field %s has no options", s.Name, f.Fieldname)
		}
	}
	if s.IsSingle && s.IsChild {
		return types.NewValueError("schema %s cannot be both single and child", s.Name)
	}
	if s.Naming == "" {
		s.Naming = types.NamingRandom
	}
	return nil
}

func metaField(name string, ft types.FieldType) *types.Field {
	return &types.Field{Fieldname: name, Fieldtype: ft, Meta: true, ReadOnly: true}
}

// injectMetaFields adds the bookkeeping fields every stored record carries.
func injectMetaFields(s *types.Schema) {
	if s.IsSingle || s.IsAbstract {
		return
	}
	add := func(f *types.Field) {
		if !s.HasField(f.Fieldname) {
			s.Fields = append(s.Fields, f)
		}
	}

	if !s.HasField(types.FieldName) {
		s.Fields = append([]*types.Field{metaField(types.FieldName, types.FieldData)}, s.Fields...)
	}

	if s.IsChild {
		add(metaField(types.FieldParent, types.FieldData))
		add(metaField(types.FieldParentSchema, types.FieldData))
		add(metaField(types.FieldParentFieldname, types.FieldData))
		add(metaField(types.FieldIdx, types.FieldInt))
		return
	}

	add(metaField(types.FieldCreatedBy, types.FieldData))
	add(metaField(types.FieldModifiedBy, types.FieldData))
	add(metaField(types.FieldCreated, types.FieldDatetime))
	add(metaField(types.FieldModified, types.FieldDatetime))

	if s.IsSubmittable {
		submitted := metaField(types.FieldSubmitted, types.FieldCheck)
		submitted.Default = false
		cancelled := metaField(types.FieldCancelled, types.FieldCheck)
		cancelled.Default = false
		add(submitted)
		add(cancelled)
	}
	if s.IsTree {
		add(metaField(types.FieldLft, types.FieldInt))
		add(metaField(types.FieldRgt, types.FieldInt))
	}
	if s.Naming == types.NamingNumberSeries && !s.HasField(types.FieldNumberSeries) {
		f := &types.Field{
			Fieldname: types.FieldNumberSeries,
			Fieldtype: types.FieldLink,
			Target:    types.SchemaNumberSeries,
			Required:  true,
		}
		s.Fields = append(s.Fields, f)
	}
}

var titleCaser = cases.Title(language.English)

// assignLabels fills empty labels from the camelCase names.
func assignLabels(s *types.Schema) {
	if s.Label == "" {
		s.Label = Label(s.Name)
	}
	for _, f := range s.Fields {
		if f.Label == "" {
			f.Label = Label(f.Fieldname)
		}
	}
}

// Label turns a camelCase identifier into a title-cased label:
// "parentSchemaName" becomes "Parent Schema Name".
func Label(ident string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range ident {
		if r == '_' || r == '-' {
			b.WriteRune(' ')
			prevLower = false
			continue
		}
		if unicode.IsUpper(r) && prevLower {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
		prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
	}
	return titleCaser.String(b.String())
}

func checkReferences(s *types.Schema, m types.SchemaMap) error {
	for _, f := range s.Fields {
		switch f.Fieldtype {
		case types.FieldLink:
			target, ok := m[f.Target]
			if !ok {
				return types.NewNotFoundError("%s.%s links to unknown schema %q", s.Name, f.Fieldname, f.Target)
			}
			if target.IsChild {
				return types.NewValueError("%s.%s links to child schema %s", s.Name, f.Fieldname, f.Target)
			}
		case types.FieldTable:
			target, ok := m[f.Target]
			if !ok {
				return types.NewNotFoundError("%s.%s table uses unknown schema %q", s.Name, f.Fieldname, f.Target)
			}
			if !target.IsChild {
				return types.NewValueError("%s.%s table target %s is not a child schema", s.Name, f.Fieldname, f.Target)
			}
		case types.FieldDynamicLink:
			ref := s.Field(f.References)
			if ref == nil || ref.Fieldname == f.Fieldname {
				return types.NewValueError("%s.%s references missing sibling field %q", s.Name, f.Fieldname, f.References)
			}
		}
	}
	return nil
}

// MustBuild is Build for tests and static catalogues; it panics on error.
func MustBuild(defs ...*types.Schema) types.SchemaMap {
	m, err := Build(defs)
	if err != nil {
		panic(fmt.Sprintf("catalogue: %v", err))
	}
	return m
}
