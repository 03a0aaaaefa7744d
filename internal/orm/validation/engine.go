package validation

import (
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Engine validates documents against their declared field constraints
type Engine struct{}

// NewEngine creates a new validation engine
func NewEngine() *Engine {
	return &Engine{}
}

// Validate checks the document and its embedded children. It returns a
// *ValidationFailedError listing every failed constraint, or nil.
func (e *Engine) Validate(doc *document.Document) error {
	errs := NewValidationErrors()
	e.validate(doc, "", errs)

	if errs.HasErrors() {
		return &ValidationFailedError{
			Type:   doc.TypeName(),
			ID:     doc.ID(),
			Errors: errs,
		}
	}
	return nil
}

func (e *Engine) validate(doc *document.Document, prefix string, errs *ValidationErrors) {
	typ := doc.Type()

	for _, field := range typ.Fields {
		value, _ := doc.Attribute(field.Name)
		for _, constraint := range field.Constraints {
			if err := ForConstraint(constraint).Validate(value); err != nil {
				errs.Add(prefix+field.Name, err.Error())
			}
		}
	}

	for _, rel := range typ.Relations {
		if !rel.Kind.IsEmbedded() {
			continue
		}
		children := doc.Embedded(rel.Name)
		for i, child := range children {
			path := prefix + rel.Name + "."
			if rel.Kind == schema.EmbedsMany {
				path = fmt.Sprintf("%s%s[%d].", prefix, rel.Name, i)
			}
			e.validate(child, path, errs)
		}
	}
}

// ValidateField checks a single value against a field's constraints
func (e *Engine) ValidateField(field *schema.FieldDefinition, value interface{}) []string {
	var messages []string
	for _, constraint := range field.Constraints {
		if err := ForConstraint(constraint).Validate(value); err != nil {
			messages = append(messages, err.Error())
		}
	}
	return messages
}
