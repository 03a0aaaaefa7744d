package attributes

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
)

var (
	// ErrProtectedAttribute is returned in strict mode when bulk input names
	// a protected field or relation
	ErrProtectedAttribute = errors.New("protected attribute")

	// ErrUnknownAttribute is returned when bulk input names nothing the type declares
	ErrUnknownAttribute = document.ErrUnknownAttribute

	// ErrNestedNotAccepted is returned for <relation>_attributes on a relation
	// that does not accept nested attributes
	ErrNestedNotAccepted = errors.New("relation does not accept nested attributes")

	// ErrMalformedNested is returned when nested input is not a mapping or a
	// list of mappings
	ErrMalformedNested = errors.New("malformed nested attributes")

	// ErrMultiParameter is returned when multi-parameter parts cannot form a date
	ErrMultiParameter = errors.New("invalid multi-parameter attribute")

	// ErrNestedLimitExceeded is matched by NestedAttributeLimitExceededError
	ErrNestedLimitExceeded = errors.New("nested attribute limit exceeded")

	// ErrNestedCreateNotAllowed is matched by NestedCreateNotAllowedError
	ErrNestedCreateNotAllowed = errors.New("nested create not allowed")
)

// NestedAttributeLimitExceededError is returned when a nested assignment
// carries more entries than the relation allows. Nothing was changed.
type NestedAttributeLimitExceededError struct {
	Relation string
	Limit    int
	Count    int
}

func (e *NestedAttributeLimitExceededError) Error() string {
	return fmt.Sprintf("nested attributes for %s: %d entries exceed the limit of %d", e.Relation, e.Count, e.Limit)
}

func (e *NestedAttributeLimitExceededError) Unwrap() error {
	return ErrNestedLimitExceeded
}

// NestedCreateNotAllowedError is returned when an update-only relation has
// no child to update
type NestedCreateNotAllowedError struct {
	Relation string
}

func (e *NestedCreateNotAllowedError) Error() string {
	return fmt.Sprintf("nested attributes for %s: update only, no existing child", e.Relation)
}

func (e *NestedCreateNotAllowedError) Unwrap() error {
	return ErrNestedCreateNotAllowed
}
