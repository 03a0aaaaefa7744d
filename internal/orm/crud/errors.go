package crud

import (
	"errors"

	"github.com/conduit-lang/conduit-odm/internal/orm/attributes"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
	"github.com/conduit-lang/conduit-odm/internal/orm/validation"
)

var (
	// ErrDestroyed is returned when saving a document that has been deleted
	ErrDestroyed = errors.New("document has been destroyed")

	// ErrEmbeddedNotFound is returned when removing an embedded child that is not there
	ErrEmbeddedNotFound = errors.New("embedded document not found")
)

// IsNotFound returns true if the error is a storage not-found error
func IsNotFound(err error) bool {
	return storage.IsNotFound(err)
}

// IsUniqueViolation returns true if the error is a unique constraint violation
func IsUniqueViolation(err error) bool {
	return storage.IsUniqueViolation(err)
}

// IsValidationFailed returns true if the error is a validation error
func IsValidationFailed(err error) bool {
	if errors.Is(err, validation.ErrValidationFailed) {
		return true
	}
	var valErr *validation.ValidationFailedError
	return errors.As(err, &valErr)
}

// IsNestedLimitExceeded returns true if a nested assignment exceeded its limit
func IsNestedLimitExceeded(err error) bool {
	return errors.Is(err, attributes.ErrNestedLimitExceeded)
}
