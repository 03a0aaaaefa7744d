package relationships

import "errors"

var (
	// ErrMaxDepthExceeded is returned when the maximum relationship depth is exceeded
	ErrMaxDepthExceeded = errors.New("maximum relationship depth exceeded")

	// ErrUnknownRelationship is returned when a relationship is not found
	ErrUnknownRelationship = errors.New("unknown relationship")

	// ErrUnknownOperation is returned when a helper does not expose an operation
	ErrUnknownOperation = errors.New("unknown relation operation")

	// ErrNotSingular is returned when a check runs against a collection relation
	ErrNotSingular = errors.New("relation is not singular")

	// ErrInvalidRelationType is returned when an operation does not apply to a relation kind
	ErrInvalidRelationType = errors.New("invalid relationship type")
)
