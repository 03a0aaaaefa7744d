// Package validation checks document content constraints before a save.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrValidationFailed is the sentinel matched by ValidationFailedError
var ErrValidationFailed = errors.New("validation failed")

// ValidationErrors contains the failed constraints of a document by field
type ValidationErrors struct {
	Fields map[string][]string `json:"fields"`
}

// NewValidationErrors creates a new ValidationErrors instance
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Fields: make(map[string][]string),
	}
}

// Add adds a validation error for a specific field
func (ve *ValidationErrors) Add(field, message string) {
	if ve.Fields == nil {
		ve.Fields = make(map[string][]string)
	}
	ve.Fields[field] = append(ve.Fields[field], message)
}

// HasErrors returns true if there are any validation errors
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Fields) > 0
}

// Count returns the total number of validation errors across all fields
func (ve *ValidationErrors) Count() int {
	count := 0
	for _, messages := range ve.Fields {
		count += len(messages)
	}
	return count
}

// On returns the messages recorded for a field
func (ve *ValidationErrors) On(field string) []string {
	return ve.Fields[field]
}

// Error implements the error interface
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "validation failed"
	}

	fields := make([]string, 0, len(ve.Fields))
	for field := range ve.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var messages []string
	for _, field := range fields {
		for _, msg := range ve.Fields[field] {
			messages = append(messages, fmt.Sprintf("  - %s: %s", field, msg))
		}
	}

	if len(messages) == 1 {
		return fmt.Sprintf("validation failed: %s", strings.TrimPrefix(messages[0], "  - "))
	}

	return fmt.Sprintf("validation failed:\n%s", strings.Join(messages, "\n"))
}

// MarshalJSON implements json.Marshaler for custom JSON serialization
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string              `json:"error"`
		Fields map[string][]string `json:"fields"`
	}{
		Error:  "validation_failed",
		Fields: ve.Fields,
	})
}

// ValidationFailedError is returned when a save is blocked by failed
// constraints. Nothing was persisted.
type ValidationFailedError struct {
	Type   string
	ID     string
	Errors *ValidationErrors
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Type, e.ID, e.Errors.Error())
}

func (e *ValidationFailedError) Unwrap() error {
	return ErrValidationFailed
}
