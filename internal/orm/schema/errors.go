package schema

import (
	"errors"
	"fmt"
)

var (
	// ErrTypeMismatch is returned when a value cannot be coerced to a field's type
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownType is returned when a type name is not registered
	ErrUnknownType = errors.New("unknown document type")

	// ErrUnknownField is returned when a field name is not declared on a type
	ErrUnknownField = errors.New("unknown field")

	// ErrRegistrySealed is returned when registering after Seal
	ErrRegistrySealed = errors.New("registry is sealed")

	// ErrDuplicateField is the sentinel matched by DuplicateFieldError
	ErrDuplicateField = errors.New("duplicate field")
)

// DuplicateFieldError is returned when a type declares a name twice, or
// redeclares a name it inherits.
type DuplicateFieldError struct {
	Type string
	Name string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s: field %q is already declared", e.Type, e.Name)
}

func (e *DuplicateFieldError) Unwrap() error {
	return ErrDuplicateField
}

// TypeMismatchError is returned when an assigned value is incompatible with
// the declared field type.
type TypeMismatchError struct {
	Field    string
	Expected FieldType
	Value    interface{}
}

func (e *TypeMismatchError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cannot use %v (%T) as %s", e.Value, e.Value, e.Expected)
	}
	return fmt.Sprintf("field %s: cannot use %v (%T) as %s", e.Field, e.Value, e.Value, e.Expected)
}

func (e *TypeMismatchError) Unwrap() error {
	return ErrTypeMismatch
}
