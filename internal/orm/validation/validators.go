package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Validator defines the interface for field validators
type Validator interface {
	Validate(value interface{}) error
}

// PatternValidator requires string values to match a pattern
type PatternValidator struct {
	Pattern *regexp.Regexp
	Message string
}

// Validate implements the Validator interface
func (v *PatternValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern validation requires string value")
	}

	if !v.Pattern.MatchString(strVal) {
		return fmt.Errorf("%s", message(v.Message, "does not match required pattern"))
	}

	return nil
}

// ExclusionValidator rejects string values that match a pattern
type ExclusionValidator struct {
	Pattern *regexp.Regexp
	Message string
}

// Validate implements the Validator interface
func (v *ExclusionValidator) Validate(value interface{}) error {
	if value == nil {
		return nil
	}

	strVal, ok := value.(string)
	if !ok {
		return fmt.Errorf("pattern validation requires string value")
	}

	if v.Pattern.MatchString(strVal) {
		return fmt.Errorf("%s", message(v.Message, "is invalid"))
	}

	return nil
}

// PresenceValidator rejects nil, blank strings and empty collections
type PresenceValidator struct {
	Message string
}

// Validate implements the Validator interface
func (v *PresenceValidator) Validate(value interface{}) error {
	if isBlank(value) {
		return fmt.Errorf("%s", message(v.Message, "can't be blank"))
	}
	return nil
}

func isBlank(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

func message(custom, fallback string) string {
	if custom != "" {
		return custom
	}
	return fallback
}

// ForConstraint returns the validator enforcing a declared constraint
func ForConstraint(c schema.Constraint) Validator {
	switch c.Type {
	case schema.ConstraintFormat:
		return &PatternValidator{Pattern: c.Pattern, Message: c.Message}
	case schema.ConstraintWithout:
		return &ExclusionValidator{Pattern: c.Pattern, Message: c.Message}
	default:
		return &PresenceValidator{Message: c.Message}
	}
}
