package schema

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

// DeclarationError describes an invalid declaration with context
type DeclarationError struct {
	Type    string
	Name    string
	Message string
	Hint    string
}

// Error implements the error interface
func (e *DeclarationError) Error() string {
	var b strings.Builder

	b.WriteString(e.Type)
	if e.Name != "" {
		b.WriteString(".")
		b.WriteString(e.Name)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)

	if e.Hint != "" {
		b.WriteString("\n  hint: ")
		b.WriteString(e.Hint)
	}

	return b.String()
}

// IsReserved returns true for attribute names the engine manages itself
func IsReserved(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	switch name {
	case KeyVersion, KeyCreatedAt, KeyUpdatedAt:
		return true
	}
	return false
}

// DeclarationValidator checks a flattened document type for structural
// problems. Cross-type checks live on the RelationshipGraph.
type DeclarationValidator struct {
	errors []error
}

// NewDeclarationValidator creates a new declaration validator
func NewDeclarationValidator() *DeclarationValidator {
	return &DeclarationValidator{}
}

// Validate returns every structural problem found in t, combined
func (v *DeclarationValidator) Validate(t *DocumentType) error {
	v.errors = nil

	if t.Name == "" {
		v.fail(t, "", "type name is empty", "")
	}
	v.validateFields(t)
	v.validateRelations(t)
	v.validateIndexes(t)

	return multierr.Combine(v.errors...)
}

func (v *DeclarationValidator) fail(t *DocumentType, name, message, hint string) {
	v.errors = append(v.errors, &DeclarationError{Type: t.Name, Name: name, Message: message, Hint: hint})
}

func (v *DeclarationValidator) validateName(t *DocumentType, name string) {
	switch {
	case name == "":
		v.fail(t, name, "attribute name is empty", "")
	case IsReserved(name):
		v.fail(t, name, "attribute name is reserved", "names starting with _ and version, created_at, updated_at are managed by the engine")
	}
}

func (v *DeclarationValidator) validateFields(t *DocumentType) {
	for _, f := range t.Fields {
		v.validateName(t, f.Name)
		if f.Default != nil {
			if _, err := Coerce(f.Type, f.Default); err != nil {
				v.fail(t, f.Name, fmt.Sprintf("default %v is not a valid %s", f.Default, f.Type), "")
			}
		}
		for _, c := range f.Constraints {
			if c.Type != ConstraintPresence && c.Pattern == nil {
				v.fail(t, f.Name, fmt.Sprintf("%s constraint has no pattern", c.Type), "")
			}
		}
	}
	for _, virtual := range t.Virtuals {
		v.validateName(t, virtual.Name)
	}
}

func (v *DeclarationValidator) validateRelations(t *DocumentType) {
	for _, rel := range t.Relations {
		v.validateName(t, rel.Name)
		if rel.Target == "" {
			v.fail(t, rel.Name, "relation has no target type", "")
		}
		if rel.Kind.IsEmbedded() && rel.Cascade != CascadeNone {
			v.fail(t, rel.Name, fmt.Sprintf("embedded relation cannot declare dependent %s", rel.Cascade),
				"embedded children are removed with their parent")
		}
		if rel.Kind.IsEmbedded() && rel.Autosave {
			v.fail(t, rel.Name, "embedded relation cannot autosave", "embedded children are saved with their parent")
		}
		if rel.Nested == nil {
			continue
		}
		if rel.Nested.UpdateOnly && rel.Kind.IsMany() {
			v.fail(t, rel.Name, "update_only applies to singular relations only", "")
		}
		if rel.Nested.Limit < 0 {
			v.fail(t, rel.Name, "nested attribute limit must not be negative", "")
		}
		if rel.Nested.Limit > 0 && !rel.Kind.IsMany() {
			v.fail(t, rel.Name, "nested attribute limit applies to collections only", "")
		}
	}
}

func (v *DeclarationValidator) validateIndexes(t *DocumentType) {
	for _, index := range t.Indexes {
		if len(index.Keys) == 0 {
			v.fail(t, "", "index has no keys", "")
			continue
		}
		for _, key := range index.Keys {
			root := key.Field
			if i := strings.Index(root, "."); i >= 0 {
				root = root[:i]
			}
			if !t.HasField(root) && !t.HasRelation(root) {
				v.fail(t, key.Field, "index references an undeclared field", "declare the field before indexing it")
			}
			if key.Direction != Ascending && key.Direction != Descending {
				v.fail(t, key.Field, fmt.Sprintf("invalid index direction %d", key.Direction), "")
			}
		}
	}
}
