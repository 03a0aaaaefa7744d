// Package relationships materializes, links and loads the children of a
// document's relations.
package relationships

import (
	"fmt"
	"sort"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Collection is a materialized relation: its children in relation order,
// plus the operations of the relation's helper.
type Collection struct {
	relation *schema.RelationDefinition
	items    []*document.Document
}

// Materialize orders docs by the relation's order keys. The sort is stable,
// so ties keep their insertion order.
func Materialize(rel *schema.RelationDefinition, docs []*document.Document) *Collection {
	return &Collection{relation: rel, items: Sort(rel, docs)}
}

// Of materializes the named relation of a document from its embedded or
// loaded children. Loaded children marked destroyed are left out.
func Of(doc *document.Document, name string) (*Collection, error) {
	rel, ok := doc.Type().Relation(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, doc.TypeName(), name)
	}
	if rel.Kind.IsEmbedded() {
		return Materialize(rel, doc.Embedded(name)), nil
	}
	var live []*document.Document
	for _, related := range doc.Related(name) {
		if !related.Destroyed() {
			live = append(live, related)
		}
	}
	return Materialize(rel, live), nil
}

// Sort returns a copy of docs ordered by the relation's order keys
func Sort(rel *schema.RelationDefinition, docs []*document.Document) []*document.Document {
	out := append([]*document.Document(nil), docs...)
	if len(rel.Order) == 0 {
		return out
	}
	sort.SliceStable(out, func(i, j int) bool {
		for _, key := range rel.Order {
			cmp := query.Compare(out[i].Get(key.Field), out[j].Get(key.Field))
			if cmp == 0 {
				continue
			}
			if key.Direction == schema.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
	return out
}

// Relation returns the relation definition
func (c *Collection) Relation() *schema.RelationDefinition {
	return c.relation
}

// Items returns the ordered children
func (c *Collection) Items() []*document.Document {
	return append([]*document.Document(nil), c.items...)
}

// Len returns the number of children
func (c *Collection) Len() int {
	return len(c.items)
}

// First returns the first child, or nil
func (c *Collection) First() *document.Document {
	if len(c.items) == 0 {
		return nil
	}
	return c.items[0]
}

// IDs returns the identities of the children in order
func (c *Collection) IDs() []string {
	ids := make([]string, len(c.items))
	for i, item := range c.items {
		ids[i] = item.ID()
	}
	return ids
}

// Operations lists the helper operations available on the relation
func (c *Collection) Operations() []string {
	return c.relation.Helper.Operations()
}

// Value returns a named constant of the relation's helper
func (c *Collection) Value(name string) (interface{}, error) {
	if h := c.relation.Helper; h != nil {
		if v, ok := h.Values[name]; ok {
			return v, nil
		}
	}
	return nil, c.unknown(name)
}

// FindBy runs a named finder, returning the children whose finder
// attribute equals value
func (c *Collection) FindBy(name string, value interface{}) ([]*document.Document, error) {
	h := c.relation.Helper
	if h == nil {
		return nil, c.unknown(name)
	}
	attr, ok := h.Finders[name]
	if !ok {
		return nil, c.unknown(name)
	}

	var found []*document.Document
	for _, item := range c.items {
		if query.Compare(item.Get(attr), value) == 0 {
			found = append(found, item)
		}
	}
	return found, nil
}

// Check runs a named predicate against the single child of a singular
// relation. An empty relation checks false.
func (c *Collection) Check(name string) (bool, error) {
	if c.relation.Kind.IsMany() {
		return false, fmt.Errorf("%w: %s", ErrNotSingular, c.relation.Name)
	}
	h := c.relation.Helper
	if h == nil {
		return false, c.unknown(name)
	}
	check, ok := h.Checks[name]
	if !ok {
		return false, c.unknown(name)
	}
	child := c.First()
	if child == nil {
		return false, nil
	}
	return check(child.Attributes()), nil
}

func (c *Collection) unknown(name string) error {
	return fmt.Errorf("%w: %s.%s has no %s", ErrUnknownOperation, c.relation.Owner, c.relation.Name, name)
}
