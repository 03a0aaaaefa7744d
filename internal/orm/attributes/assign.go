// Package attributes governs bulk assignment of attributes to documents:
// protection, nested attributes for relations and multi-parameter dates.
package attributes

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

const nestedSuffix = "_attributes"

// Assigner applies bulk input to documents
type Assigner struct {
	resolver document.Resolver
	strict   bool
	logger   *zap.Logger
}

// Option configures an Assigner
type Option func(*Assigner)

// WithStrictProtection makes protected keys in bulk input fail with
// ErrProtectedAttribute instead of being skipped
func WithStrictProtection() Option {
	return func(a *Assigner) {
		a.strict = true
	}
}

// WithLogger sets the assigner's logger
func WithLogger(logger *zap.Logger) Option {
	return func(a *Assigner) {
		a.logger = logger
	}
}

// NewAssigner creates an assigner resolving relation targets through resolver
func NewAssigner(resolver document.Resolver, opts ...Option) *Assigner {
	a := &Assigner{
		resolver: resolver,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

type targetKind int

const (
	targetSkip targetKind = iota
	targetField
	targetVirtual
	targetRelation
	targetNested
)

type assignment struct {
	key      string
	kind     targetKind
	relation *schema.RelationDefinition
	value    interface{}
}

// BulkAssign applies attrs to doc. Protected fields and relations are
// skipped (or rejected in strict mode), <relation>_attributes keys go
// through nested assignment and multi-parameter keys such as dob(1i) are
// combined when the type declares the capability. Every key is checked
// before anything is assigned, and the assignments are staged on a copy
// of doc that is adopted only when all of them succeeded.
func (a *Assigner) BulkAssign(doc *document.Document, attrs map[string]interface{}) error {
	typ := doc.Type()

	plain, multi, err := splitMultiParameter(typ, attrs)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(plain))
	for key := range plain {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	plan := make([]assignment, 0, len(keys))
	for _, key := range keys {
		step, err := a.classify(typ, key)
		if err != nil {
			return err
		}
		step.value = plain[key]
		plan = append(plan, step)
	}

	fields := make([]string, 0, len(multi))
	for name := range multi {
		fields = append(fields, name)
	}
	sort.Strings(fields)
	for _, name := range fields {
		step, err := a.classify(typ, name)
		if err != nil {
			return err
		}
		if step.kind == targetSkip {
			continue
		}
		value, err := combine(typ, name, multi[name])
		if err != nil {
			return err
		}
		step.value = value
		plan = append(plan, step)
	}

	staged := doc.Clone()
	for _, step := range plan {
		if err := a.apply(staged, step); err != nil {
			return err
		}
	}
	return doc.Adopt(staged)
}

func (a *Assigner) classify(typ *schema.DocumentType, key string) (assignment, error) {
	step := assignment{key: key}

	if key == schema.KeyID || key == schema.KeyType {
		return a.protected(typ, step)
	}
	if field, ok := typ.Field(key); ok {
		if field.Protected {
			return a.protected(typ, step)
		}
		step.kind = targetField
		return step, nil
	}
	if _, ok := typ.Virtual(key); ok {
		step.kind = targetVirtual
		return step, nil
	}
	if rel, ok := typ.Relation(key); ok {
		if rel.Protected {
			return a.protected(typ, step)
		}
		step.kind = targetRelation
		step.relation = rel
		return step, nil
	}
	if name, ok := strings.CutSuffix(key, nestedSuffix); ok {
		if rel, ok := typ.Relation(name); ok {
			if rel.Nested == nil {
				return step, fmt.Errorf("%s.%s: %w", typ.Name, name, ErrNestedNotAccepted)
			}
			if rel.Protected {
				return a.protected(typ, step)
			}
			step.kind = targetNested
			step.relation = rel
			return step, nil
		}
	}
	return step, fmt.Errorf("%s.%s: %w", typ.Name, key, ErrUnknownAttribute)
}

func (a *Assigner) protected(typ *schema.DocumentType, step assignment) (assignment, error) {
	if a.strict {
		return step, fmt.Errorf("%s.%s: %w", typ.Name, step.key, ErrProtectedAttribute)
	}
	a.logger.Debug("skipped protected attribute",
		zap.String("type", typ.Name),
		zap.String("attribute", step.key))
	step.kind = targetSkip
	return step, nil
}

func (a *Assigner) apply(doc *document.Document, step assignment) error {
	switch step.kind {
	case targetField, targetVirtual:
		return doc.Set(step.key, step.value)
	case targetRelation:
		return a.assignRelation(doc, step.relation, step.value)
	case targetNested:
		return a.AssignNested(doc, step.relation.Name, step.value)
	default:
		return nil
	}
}

// assignRelation replaces a relation's children with documents given
// directly in bulk input
func (a *Assigner) assignRelation(doc *document.Document, rel *schema.RelationDefinition, value interface{}) error {
	var children []*document.Document
	switch v := value.(type) {
	case nil:
	case *document.Document:
		children = []*document.Document{v}
	case []*document.Document:
		children = v
	default:
		return fmt.Errorf("%s.%s: expected documents, got %T: %w", doc.TypeName(), rel.Name, value, schema.ErrTypeMismatch)
	}

	if rel.Kind.IsEmbedded() {
		return doc.ReplaceEmbedded(rel.Name, children)
	}

	doc.SetRelated(rel.Name, nil)
	for _, child := range children {
		if err := relationships.Link(doc, rel, child); err != nil {
			return err
		}
	}
	return nil
}
