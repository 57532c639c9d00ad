package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKindSentinel(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"value", NewValueError("bad"), ErrValue, true},
		{"not found", NewNotFoundError("gone"), ErrNotFound, true},
		{"validation", NewValidationError("no"), ErrValidation, true},
		{"mandatory is mandatory", NewMandatoryError("missing"), ErrMandatory, true},
		{"mandatory is validation", NewMandatoryError("missing"), ErrValidation, true},
		{"conflict", NewConflictError("Invoice", "INV-1"), ErrConflict, true},
		{"duplicate", NewDuplicateEntryError("dup"), ErrDuplicateEntry, true},
		{"database", NewDatabaseError(errors.New("boom"), "db"), ErrDatabase, true},
		{"validation is not conflict", NewValidationError("no"), ErrConflict, false},
		{"missing table", NewDatabaseError(errors.New("no such table: X"), "db").WithDetail("code", DBCodeNoTable), ErrTableNotFound, true},
		{"other database error is not missing table", NewDatabaseError(errors.New("boom"), "db"), ErrTableNotFound, false},
		{"wrapped", fmt.Errorf("sync: %w", NewConflictError("A", "b")), ErrConflict, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestConflictErrorDetail(t *testing.T) {
	err := NewConflictError("Invoice", "INV-1")
	assert.Equal(t, KindConflict, err.Kind)
	assert.Equal(t, "Invoice", err.Detail["schemaName"])
	assert.Equal(t, "INV-1", err.Detail["name"])
	assert.Contains(t, err.Error(), "Invoice INV-1")
}

func TestDatabaseErrorUnwraps(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := NewDatabaseError(cause, "insert into %s", "Item")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindDatabase, KindOf(fmt.Errorf("ctx: %w", err)))
	assert.Equal(t, Kind(""), KindOf(cause))
}
