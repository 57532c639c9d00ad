package types

// FieldType names the kind of value a field holds. It decides the column
// type in storage and the conversion rules between raw and document values.
type FieldType string

// Supported field types.
const (
	FieldData         FieldType = "Data"
	FieldText         FieldType = "Text"
	FieldInt          FieldType = "Int"
	FieldFloat        FieldType = "Float"
	FieldCurrency     FieldType = "Currency"
	FieldCheck        FieldType = "Check"
	FieldDate         FieldType = "Date"
	FieldDatetime     FieldType = "Datetime"
	FieldSelect       FieldType = "Select"
	FieldAutoComplete FieldType = "AutoComplete"
	FieldLink         FieldType = "Link"
	FieldDynamicLink  FieldType = "DynamicLink"
	FieldTable        FieldType = "Table"
	FieldAttachment   FieldType = "Attachment"
	FieldAttachImage  FieldType = "AttachImage"
	FieldColor        FieldType = "Color"
	FieldButton       FieldType = "Button"
)

// validFieldTypes is the set of recognized field types.
var validFieldTypes = map[FieldType]bool{
	FieldData:         true,
	FieldText:         true,
	FieldInt:          true,
	FieldFloat:        true,
	FieldCurrency:     true,
	FieldCheck:        true,
	FieldDate:         true,
	FieldDatetime:     true,
	FieldSelect:       true,
	FieldAutoComplete: true,
	FieldLink:         true,
	FieldDynamicLink:  true,
	FieldTable:        true,
	FieldAttachment:   true,
	FieldAttachImage:  true,
	FieldColor:        true,
	FieldButton:       true,
}

// IsValid reports whether ft is a recognized field type.
func (ft FieldType) IsValid() bool {
	return validFieldTypes[ft]
}

// HasColumn reports whether values of this type are stored in a column of
// the owning table. Table fields live in the child table; buttons are not
// stored at all.
func (ft FieldType) HasColumn() bool {
	return ft != FieldTable && ft != FieldButton
}

// IsNumeric reports whether the type holds a number.
func (ft FieldType) IsNumeric() bool {
	return ft == FieldInt || ft == FieldFloat || ft == FieldCurrency
}

// IsLink reports whether the type references another record.
func (ft FieldType) IsLink() bool {
	return ft == FieldLink || ft == FieldDynamicLink
}

// HasOptions reports whether the type constrains values to a list of options.
func (ft FieldType) HasOptions() bool {
	return ft == FieldSelect || ft == FieldAutoComplete
}
