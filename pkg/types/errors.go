package types

import (
	"errors"
	"fmt"
)

// Kind classifies an Error.
type Kind string

// Error kinds.
const (
	KindValue          Kind = "ValueError"
	KindNotFound       Kind = "NotFoundError"
	KindValidation     Kind = "ValidationError"
	KindMandatory      Kind = "MandatoryError"
	KindConflict       Kind = "ConflictError"
	KindDuplicateEntry Kind = "DuplicateEntryError"
	KindDatabase       Kind = "DatabaseError"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrValue          = errors.New("invalid value")
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation failed")
	ErrMandatory      = errors.New("mandatory value missing")
	ErrConflict       = errors.New("record modified concurrently")
	ErrDuplicateEntry = errors.New("duplicate entry")
	ErrDatabase       = errors.New("database error")
)

// Store lifecycle errors.
var (
	ErrNotConnected     = errors.New("store is not connected")
	ErrAlreadyConnected = errors.New("store is already connected")
	ErrTableNotFound    = errors.New("table not found")
	ErrSyncInProgress   = errors.New("document sync already in progress")
)

// Storage error codes carried in Error.Detail["code"] by DatabaseErrors the
// storage engine could classify.
const (
	DBCodeUnique     = "unique"
	DBCodeForeignKey = "foreignKey"
	DBCodeNotNull    = "notNull"
	DBCodeNoTable    = "noTable"
)

var kindSentinels = map[Kind]error{
	KindValue:          ErrValue,
	KindNotFound:       ErrNotFound,
	KindValidation:     ErrValidation,
	KindMandatory:      ErrMandatory,
	KindConflict:       ErrConflict,
	KindDuplicateEntry: ErrDuplicateEntry,
	KindDatabase:       ErrDatabase,
}

// Error is the structured error surfaced to collaborators: a kind, a
// human-readable message and optional machine-readable detail.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]any
	// Stack is only populated in development mode.
	Stack string
	Err   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's kind. MandatoryError is also a
// ValidationError, and a DatabaseError for a missing table matches
// ErrTableNotFound.
func (e *Error) Is(target error) bool {
	if target == kindSentinels[e.Kind] {
		return true
	}
	switch target {
	case ErrValidation:
		return e.Kind == KindMandatory
	case ErrTableNotFound:
		return e.Kind == KindDatabase && e.Code() == DBCodeNoTable
	}
	return false
}

// Code returns the storage error code in Detail, or "".
func (e *Error) Code() string {
	code, _ := e.Detail["code"].(string)
	return code
}

// WithDetail sets a detail key and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// NewValueError reports a bad or missing argument.
func NewValueError(format string, args ...any) *Error {
	return newError(KindValue, format, args...)
}

// NewNotFoundError reports an absent schema or record.
func NewNotFoundError(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// NewValidationError reports a domain rule violation.
func NewValidationError(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// NewMandatoryError reports missing required values.
func NewMandatoryError(format string, args ...any) *Error {
	return newError(KindMandatory, format, args...)
}

// NewConflictError reports an optimistic-concurrency mismatch.
func NewConflictError(schemaName, name string) *Error {
	return newError(KindConflict, "%s %s has been modified after loading, reload and try again", schemaName, name).
		WithDetail("schemaName", schemaName).
		WithDetail("name", name)
}

// NewDuplicateEntryError reports a unique-constraint violation.
func NewDuplicateEntryError(format string, args ...any) *Error {
	return newError(KindDuplicateEntry, format, args...)
}

// NewDatabaseError wraps an unclassified storage failure.
func NewDatabaseError(err error, format string, args ...any) *Error {
	e := newError(KindDatabase, format, args...)
	e.Err = err
	return e
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
