package types

import "slices"

// Naming selects how a new record of a schema receives its primary key.
type Naming string

// Naming strategies.
const (
	NamingManual        Naming = "manual"
	NamingAutoincrement Naming = "autoincrement"
	NamingRandom        Naming = "random"
	NamingNumberSeries  Naming = "numberSeries"
)

// Reserved fieldnames. Meta fields are injected by the catalogue builder.
const (
	FieldName            = "name"
	FieldCreated         = "created"
	FieldModified        = "modified"
	FieldCreatedBy       = "createdBy"
	FieldModifiedBy      = "modifiedBy"
	FieldSubmitted       = "submitted"
	FieldCancelled       = "cancelled"
	FieldParent          = "parent"
	FieldParentSchema    = "parentSchemaName"
	FieldParentFieldname = "parentFieldname"
	FieldIdx             = "idx"
	FieldLft             = "lft"
	FieldRgt             = "rgt"
	FieldNumberSeries    = "numberSeries"
)

// Core schema names owned by the storage layer itself.
const (
	SchemaSingleValue  = "SingleValue"
	SchemaPatchRun     = "PatchRun"
	SchemaNumberSeries = "NumberSeries"
)

// Field describes one attribute of a schema.
type Field struct {
	Fieldname  string    `json:"fieldname" yaml:"fieldname"`
	Label      string    `json:"label,omitempty" yaml:"label,omitempty"`
	Fieldtype  FieldType `json:"fieldtype" yaml:"fieldtype"`
	Required   bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Default    any       `json:"default,omitempty" yaml:"default,omitempty"`
	Computed   bool      `json:"computed,omitempty" yaml:"computed,omitempty"`
	Target     string    `json:"target,omitempty" yaml:"target,omitempty"`
	References string    `json:"references,omitempty" yaml:"references,omitempty"`
	Options    []string  `json:"options,omitempty" yaml:"options,omitempty"`
	ReadOnly   bool      `json:"readOnly,omitempty" yaml:"readOnly,omitempty"`
	Meta       bool      `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// HasColumn reports whether the field is stored in its owner's table.
func (f *Field) HasColumn() bool {
	return !f.Computed && f.Fieldtype.HasColumn()
}

// Schema is the frozen definition of a record type.
type Schema struct {
	Name          string   `json:"name" yaml:"name"`
	Label         string   `json:"label,omitempty" yaml:"label,omitempty"`
	Fields        []*Field `json:"fields" yaml:"fields"`
	IsSingle      bool     `json:"isSingle,omitempty" yaml:"isSingle,omitempty"`
	IsChild       bool     `json:"isChild,omitempty" yaml:"isChild,omitempty"`
	IsSubmittable bool     `json:"isSubmittable,omitempty" yaml:"isSubmittable,omitempty"`
	IsTree        bool     `json:"isTree,omitempty" yaml:"isTree,omitempty"`
	IsAbstract    bool     `json:"isAbstract,omitempty" yaml:"isAbstract,omitempty"`
	Extends       string   `json:"extends,omitempty" yaml:"extends,omitempty"`
	Naming        Naming   `json:"naming,omitempty" yaml:"naming,omitempty"`
}

// Field returns the field with the given name, or nil.
func (s *Schema) Field(fieldname string) *Field {
	for _, f := range s.Fields {
		if f.Fieldname == fieldname {
			return f
		}
	}
	return nil
}

// HasField reports whether the schema declares fieldname.
func (s *Schema) HasField(fieldname string) bool {
	return s.Field(fieldname) != nil
}

// TableFields returns the Table-typed fields in declaration order.
func (s *Schema) TableFields() []*Field {
	var out []*Field
	for _, f := range s.Fields {
		if f.Fieldtype == FieldTable {
			out = append(out, f)
		}
	}
	return out
}

// LinkFields returns the Link-typed fields in declaration order.
func (s *Schema) LinkFields() []*Field {
	var out []*Field
	for _, f := range s.Fields {
		if f.Fieldtype == FieldLink {
			out = append(out, f)
		}
	}
	return out
}

// ColumnFields returns the fields stored as columns of the schema's table.
func (s *Schema) ColumnFields() []*Field {
	var out []*Field
	for _, f := range s.Fields {
		if f.HasColumn() {
			out = append(out, f)
		}
	}
	return out
}

// HasTable reports whether records of the schema live in a table of their own.
func (s *Schema) HasTable() bool {
	return !s.IsSingle && !s.IsAbstract
}

// SchemaMap maps schema names to their definitions.
type SchemaMap map[string]*Schema

// Get returns the schema or a NotFound error.
func (m SchemaMap) Get(name string) (*Schema, error) {
	s, ok := m[name]
	if !ok {
		return nil, NewNotFoundError("schema %s not found", name)
	}
	return s, nil
}

// Field returns the field of a schema, or nil when either is absent.
func (m SchemaMap) Field(schemaName, fieldname string) *Field {
	s, ok := m[schemaName]
	if !ok {
		return nil
	}
	return s.Field(fieldname)
}

// Names returns the schema names in sorted order.
func (m SchemaMap) Names() []string {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LinksTo returns "Schema.field" for every Link field in the map whose
// target is schemaName.
func (m SchemaMap) LinksTo(schemaName string) []string {
	var out []string
	for _, name := range m.Names() {
		for _, f := range m[name].LinkFields() {
			if f.Target == schemaName {
				out = append(out, name+"."+f.Fieldname)
			}
		}
	}
	return out
}
