// Package types defines the schema model, the Store interface, record values,
// configuration, and the error taxonomy shared by every folio package.
//
// Schemas describe record types declaratively (fields, types, relations,
// constraints). The storage engine persists records of those schemas; the
// document layer adds defaults, formulas, validation, naming, and lifecycle.
package types
