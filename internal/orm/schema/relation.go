package schema

import (
	"fmt"
	"sort"

	inflect "github.com/conduit-lang/conduit-odm/internal/util/strings"
)

// RelationKind represents the kind of relation between document types
type RelationKind int

const (
	EmbedsMany RelationKind = iota
	EmbedsOne
	HasOne
	HasMany
	HasAndBelongsToMany
)

// String returns the string representation of the relation kind
func (k RelationKind) String() string {
	switch k {
	case EmbedsMany:
		return "embeds_many"
	case EmbedsOne:
		return "embeds_one"
	case HasOne:
		return "has_one"
	case HasMany:
		return "has_many"
	case HasAndBelongsToMany:
		return "has_and_belongs_to_many"
	default:
		return "unknown"
	}
}

// IsEmbedded returns true if children are stored inside the parent document
func (k RelationKind) IsEmbedded() bool {
	return k == EmbedsMany || k == EmbedsOne
}

// IsMany returns true if the relation holds a collection
func (k RelationKind) IsMany() bool {
	return k == EmbedsMany || k == HasMany || k == HasAndBelongsToMany
}

// CascadeAction is applied to referenced children when the parent is deleted
type CascadeAction int

const (
	CascadeNone CascadeAction = iota
	// CascadeDelete removes children without running their own cascades
	CascadeDelete
	// CascadeDestroy removes children and runs their cascades and hooks
	CascadeDestroy
	// CascadeNullify clears the children's back-reference instead
	CascadeNullify
)

// String returns the string representation of the cascade action
func (c CascadeAction) String() string {
	switch c {
	case CascadeNone:
		return "none"
	case CascadeDelete:
		return "delete"
	case CascadeDestroy:
		return "destroy"
	case CascadeNullify:
		return "nullify"
	default:
		return "unknown"
	}
}

// ParseCascadeAction converts a string to a CascadeAction
func ParseCascadeAction(s string) (CascadeAction, error) {
	switch s {
	case "none", "":
		return CascadeNone, nil
	case "delete":
		return CascadeDelete, nil
	case "destroy":
		return CascadeDestroy, nil
	case "nullify":
		return CascadeNullify, nil
	default:
		return 0, fmt.Errorf("unknown cascade action: %s", s)
	}
}

// OrderKey is one sort key applied when materializing a relation
type OrderKey struct {
	Field     string
	Direction Direction
}

// NestedOptions governs nested attribute assignment through a relation
type NestedOptions struct {
	AllowDestroy bool
	// Limit caps the number of entries in one call; zero means unlimited
	Limit int
	// UpdateOnly forbids creating a singular child through nested attributes
	UpdateOnly bool
}

// CheckFunc is a boolean query over a materialized child's attributes
type CheckFunc func(attrs map[string]interface{}) bool

// Helper is the fixed capability set a relation may expose on its
// materialized children.
type Helper struct {
	// Values are named constants (extension -> "Testing")
	Values map[string]interface{}
	// Finders map a finder name to the attribute it filters on
	Finders map[string]string
	// Checks are named predicates over a singular child
	Checks map[string]CheckFunc
}

// Operations lists every operation the helper exposes, sorted
func (h *Helper) Operations() []string {
	if h == nil {
		return nil
	}
	ops := make([]string, 0, len(h.Values)+len(h.Finders)+len(h.Checks))
	for name := range h.Values {
		ops = append(ops, name)
	}
	for name := range h.Finders {
		ops = append(ops, name)
	}
	for name := range h.Checks {
		ops = append(ops, name)
	}
	sort.Strings(ops)
	return ops
}

func (h *Helper) clone() *Helper {
	if h == nil {
		return nil
	}
	c := &Helper{
		Values:  make(map[string]interface{}, len(h.Values)),
		Finders: make(map[string]string, len(h.Finders)),
		Checks:  make(map[string]CheckFunc, len(h.Checks)),
	}
	for k, v := range h.Values {
		c.Values[k] = v
	}
	for k, v := range h.Finders {
		c.Finders[k] = v
	}
	for k, v := range h.Checks {
		c.Checks[k] = v
	}
	return c
}

// RelationDefinition describes an embedded or referenced relation
type RelationDefinition struct {
	Name   string
	Kind   RelationKind
	Target string
	// Owner is the type that declared the relation; subtypes inherit it unchanged
	Owner string

	Cascade    CascadeAction
	Order      []OrderKey
	Inverse    string
	Autosave   bool
	Role       string
	ForeignKey string
	Indexed    bool
	Protected  bool
	Helper     *Helper
	Nested     *NestedOptions
}

// OrderBy appends a sort key used when materializing children
func (r *RelationDefinition) OrderBy(field string, direction Direction) *RelationDefinition {
	r.Order = append(r.Order, OrderKey{Field: field, Direction: direction})
	return r
}

// InverseOf names the relation on the target pointing back at the owner
func (r *RelationDefinition) InverseOf(name string) *RelationDefinition {
	r.Inverse = name
	return r
}

// Dependent sets the cascade applied to children on parent deletion
func (r *RelationDefinition) Dependent(action CascadeAction) *RelationDefinition {
	r.Cascade = action
	return r
}

// WithAutosave saves referenced children whenever the parent is saved
func (r *RelationDefinition) WithAutosave() *RelationDefinition {
	r.Autosave = true
	return r
}

// As makes the relation polymorphic under the given role name
func (r *RelationDefinition) As(role string) *RelationDefinition {
	r.Role = role
	return r
}

// KeyedBy overrides the derived foreign key name
func (r *RelationDefinition) KeyedBy(foreignKey string) *RelationDefinition {
	r.ForeignKey = foreignKey
	return r
}

// WithIndex requests an index on the relation's key
func (r *RelationDefinition) WithIndex() *RelationDefinition {
	r.Indexed = true
	return r
}

// WithHelper attaches helper operations to the materialized relation
func (r *RelationDefinition) WithHelper(helper *Helper) *RelationDefinition {
	r.Helper = helper
	return r
}

// AcceptsNested enables nested attribute assignment through the relation
func (r *RelationDefinition) AcceptsNested(opts NestedOptions) *RelationDefinition {
	r.Nested = &opts
	return r
}

// Protect excludes the relation from bulk assignment
func (r *RelationDefinition) Protect() *RelationDefinition {
	r.Protected = true
	return r
}

// ChildKey returns the attribute on referenced children that points back at
// the owner: person_id, or addressable_id for a role. Many-to-many children
// hold an id array instead (see InverseKey).
func (r *RelationDefinition) ChildKey() string {
	switch {
	case r.Kind == HasAndBelongsToMany:
		return r.InverseKey()
	case r.ForeignKey != "":
		return r.ForeignKey
	case r.Role != "":
		return r.Role + "_id"
	default:
		return inflect.ToSnakeCase(r.Owner) + "_id"
	}
}

// IDsKey returns the id array held by the owner of a many-to-many relation
func (r *RelationDefinition) IDsKey() string {
	if r.ForeignKey != "" {
		return r.ForeignKey
	}
	return inflect.Singularize(r.Name) + "_ids"
}

// InverseKey returns the id array held by many-to-many children
func (r *RelationDefinition) InverseKey() string {
	if r.Inverse != "" {
		return inflect.Singularize(r.Inverse) + "_ids"
	}
	return inflect.ToSnakeCase(r.Owner) + "_ids"
}

func (r *RelationDefinition) clone() *RelationDefinition {
	c := *r
	c.Order = append([]OrderKey(nil), r.Order...)
	c.Helper = r.Helper.clone()
	if r.Nested != nil {
		nested := *r.Nested
		c.Nested = &nested
	}
	return &c
}
