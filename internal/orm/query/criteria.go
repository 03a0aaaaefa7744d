package query

import (
	"sort"
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Sort is one ordering key of a criteria
type Sort struct {
	Field     string
	Direction schema.Direction
}

// Criteria is an immutable query description for one document type. Every
// builder method returns a new value, so a base criteria can be extended in
// several directions without interference.
type Criteria struct {
	typ        *schema.DocumentType
	scopes     *ScopeRegistry
	conditions []Condition
	sorts      []Sort
	limit      int
	skip       int
}

// New creates an empty criteria for typ. scopes may be nil when no named
// scopes are needed.
func New(typ *schema.DocumentType, scopes *ScopeRegistry) *Criteria {
	return &Criteria{typ: typ, scopes: scopes}
}

func (c *Criteria) clone() *Criteria {
	next := *c
	next.conditions = append([]Condition(nil), c.conditions...)
	next.sorts = append([]Sort(nil), c.sorts...)
	return &next
}

// Type returns the document type the criteria selects
func (c *Criteria) Type() *schema.DocumentType {
	return c.typ
}

// TypeName returns the name of the selected document type
func (c *Criteria) TypeName() string {
	if c.typ == nil {
		return ""
	}
	return c.typ.Name
}

// Where adds an equality condition
func (c *Criteria) Where(field string, value interface{}) *Criteria {
	return c.WhereOp(field, OpEqual, value)
}

// WhereOp adds a condition with an explicit operator. Conditions are a set:
// adding one already present is a no-op.
func (c *Criteria) WhereOp(field string, op Operator, value interface{}) *Criteria {
	cond := Condition{Field: field, Operator: op, Value: schema.CopyValue(value)}
	next := c.clone()
	key := cond.String()
	for _, existing := range next.conditions {
		if existing.String() == key {
			return next
		}
	}
	next.conditions = append(next.conditions, cond)
	return next
}

// Without requires field to be absent or empty
func (c *Criteria) Without(field string) *Criteria {
	return c.WhereOp(field, OpExists, false)
}

// And conjoins the conditions of other. Sorting and windowing of c win;
// other's are used where c has none.
func (c *Criteria) And(other *Criteria) *Criteria {
	next := c
	for _, cond := range other.conditions {
		next = next.WhereOp(cond.Field, cond.Operator, cond.Value)
	}
	next = next.clone()
	if len(next.sorts) == 0 {
		next.sorts = append([]Sort(nil), other.sorts...)
	}
	if next.limit == 0 {
		next.limit = other.limit
	}
	if next.skip == 0 {
		next.skip = other.skip
	}
	return next
}

// OrderBy appends a sort key
func (c *Criteria) OrderBy(field string, direction schema.Direction) *Criteria {
	next := c.clone()
	next.sorts = append(next.sorts, Sort{Field: field, Direction: direction})
	return next
}

// Limit caps the number of results; zero means unlimited
func (c *Criteria) Limit(n int) *Criteria {
	next := c.clone()
	next.limit = n
	return next
}

// Skip drops the first n results
func (c *Criteria) Skip(n int) *Criteria {
	next := c.clone()
	next.skip = n
	return next
}

// Apply conjoins the named scope, looked up on the criteria's type and its
// ancestors.
func (c *Criteria) Apply(name string, args ...interface{}) (*Criteria, error) {
	scope, err := c.scopes.Lookup(c.typ, name)
	if err != nil {
		return nil, err
	}
	return scope.apply(c, args)
}

// MustApply is like Apply but panics on error
func (c *Criteria) MustApply(name string, args ...interface{}) *Criteria {
	next, err := c.Apply(name, args...)
	if err != nil {
		panic(err)
	}
	return next
}

// Conditions returns the conjunction's conditions in insertion order
func (c *Criteria) Conditions() []Condition {
	return append([]Condition(nil), c.conditions...)
}

// Sorts returns the sort keys
func (c *Criteria) Sorts() []Sort {
	return append([]Sort(nil), c.sorts...)
}

// LimitValue returns the result cap; zero means unlimited
func (c *Criteria) LimitValue() int {
	return c.limit
}

// SkipValue returns the number of skipped results
func (c *Criteria) SkipValue() int {
	return c.skip
}

func (c *Criteria) conditionKeys() []string {
	keys := make([]string, len(c.conditions))
	for i, cond := range c.conditions {
		keys[i] = cond.String()
	}
	sort.Strings(keys)
	return keys
}

// Equivalent returns true if both criteria select the same documents in the
// same order. Condition order does not matter.
func (c *Criteria) Equivalent(other *Criteria) bool {
	if other == nil || c.TypeName() != other.TypeName() {
		return false
	}
	if c.limit != other.limit || c.skip != other.skip || len(c.sorts) != len(other.sorts) {
		return false
	}
	for i := range c.sorts {
		if c.sorts[i] != other.sorts[i] {
			return false
		}
	}
	return strings.Join(c.conditionKeys(), "\n") == strings.Join(other.conditionKeys(), "\n")
}

// BSON renders the conditions as a filter document. Fields with a single
// condition render flat; repeated fields and blank checks that need their own
// $or fall back to $and.
func (c *Criteria) BSON() bson.D {
	elements := make([]bson.E, len(c.conditions))
	seen := make(map[string]bool)
	flat := true
	for i, cond := range c.conditions {
		elements[i] = conditionElement(cond)
		if seen[elements[i].Key] {
			flat = false
		}
		seen[elements[i].Key] = true
	}

	if !flat {
		clauses := make(bson.A, len(elements))
		for i, e := range elements {
			clauses[i] = bson.D{e}
		}
		return bson.D{{Key: "$and", Value: clauses}}
	}
	return bson.D(elements)
}

func conditionElement(cond Condition) bson.E {
	switch cond.Operator {
	case OpEqual:
		return bson.E{Key: cond.Field, Value: cond.Value}
	case OpExists:
		if want, _ := cond.Value.(bool); want {
			return bson.E{Key: cond.Field, Value: bson.D{
				{Key: "$exists", Value: true},
				{Key: "$nin", Value: bson.A{nil, ""}},
				{Key: "$not", Value: bson.D{{Key: "$size", Value: 0}}},
				{Key: "$ne", Value: bson.D{}},
			}}
		}
		return bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: cond.Field, Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: cond.Field, Value: bson.D{{Key: "$in", Value: bson.A{nil, ""}}}}},
			bson.D{{Key: cond.Field, Value: bson.D{{Key: "$size", Value: 0}}}},
			bson.D{{Key: cond.Field, Value: bson.D{}}},
		}}
	}
	return bson.E{Key: cond.Field, Value: bson.D{{Key: cond.Operator.BSONKey(), Value: cond.Value}}}
}

// SortBSON renders the sort keys as a sort document
func (c *Criteria) SortBSON() bson.D {
	out := bson.D{}
	for _, s := range c.sorts {
		out = append(out, bson.E{Key: s.Field, Value: int(s.Direction)})
	}
	return out
}

// Matches returns true if attrs satisfy every condition
func (c *Criteria) Matches(attrs map[string]interface{}) bool {
	for _, cond := range c.conditions {
		if !cond.Matches(attrs) {
			return false
		}
	}
	return true
}

// Window orders items by the sort keys and applies skip and limit. The sort
// is stable so ties keep their incoming order.
func (c *Criteria) Window(items []map[string]interface{}) []map[string]interface{} {
	out := append([]map[string]interface{}(nil), items...)
	if len(c.sorts) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, s := range c.sorts {
				a, _ := resolve(out[i], s.Field)
				b, _ := resolve(out[j], s.Field)
				cmp := Compare(first(a), first(b))
				if cmp == 0 {
					continue
				}
				if s.Direction == schema.Descending {
					return cmp > 0
				}
				return cmp < 0
			}
			return false
		})
	}
	if c.skip > 0 {
		if c.skip >= len(out) {
			return nil
		}
		out = out[c.skip:]
	}
	if c.limit > 0 && c.limit < len(out) {
		out = out[:c.limit]
	}
	return out
}

func first(values []interface{}) interface{} {
	if len(values) == 0 {
		return nil
	}
	return values[0]
}

// String renders the criteria for logs
func (c *Criteria) String() string {
	parts := make([]string, len(c.conditions))
	for i, cond := range c.conditions {
		parts[i] = cond.String()
	}
	return c.TypeName() + "{" + strings.Join(parts, " AND ") + "}"
}
