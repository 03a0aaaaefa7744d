package attributes

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

const destroyKey = "_destroy"

// AssignNested creates, updates or destroys the children of a relation
// from nested input. Input is a list of mappings, a mapping keyed by
// position, or a single mapping for singular relations. Entries carrying
// an id update the matching child; entries without one create a child.
//
// The call is all-or-nothing: the limit is checked before anything else,
// and the changes are staged on a copy of doc that is adopted only when
// every entry succeeded.
func (a *Assigner) AssignNested(doc *document.Document, name string, input interface{}) error {
	rel, ok := doc.Type().Relation(name)
	if !ok {
		return fmt.Errorf("%s.%s: %w", doc.TypeName(), name, ErrUnknownAttribute)
	}
	opts := rel.Nested
	if opts == nil {
		return fmt.Errorf("%s.%s: %w", doc.TypeName(), name, ErrNestedNotAccepted)
	}

	entries, err := nestedEntries(rel, input)
	if err != nil {
		return err
	}
	if opts.Limit > 0 && len(entries) > opts.Limit {
		return &NestedAttributeLimitExceededError{Relation: name, Limit: opts.Limit, Count: len(entries)}
	}

	staged := doc.Clone()
	for _, entry := range entries {
		if rel.Kind.IsMany() {
			err = a.nestedMany(staged, rel, entry)
		} else {
			err = a.nestedOne(staged, rel, entry)
		}
		if err != nil {
			return err
		}
	}
	return doc.Adopt(staged)
}

type nestedEntry struct {
	id      string
	destroy bool
	attrs   map[string]interface{}
}

func nestedEntries(rel *schema.RelationDefinition, input interface{}) ([]nestedEntry, error) {
	var raw []map[string]interface{}

	switch v := input.(type) {
	case nil:
	case []map[string]interface{}:
		raw = v
	case []interface{}:
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s: entry %T: %w", rel.Name, item, ErrMalformedNested)
			}
			raw = append(raw, m)
		}
	case map[string]interface{}:
		if !rel.Kind.IsMany() {
			raw = []map[string]interface{}{v}
			break
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sortPositions(keys)
		for _, key := range keys {
			m, ok := v[key].(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%s[%s]: entry %T: %w", rel.Name, key, v[key], ErrMalformedNested)
			}
			raw = append(raw, m)
		}
	default:
		return nil, fmt.Errorf("%s: input %T: %w", rel.Name, input, ErrMalformedNested)
	}

	if !rel.Kind.IsMany() && len(raw) > 1 {
		return nil, fmt.Errorf("%s: %d entries for a singular relation: %w", rel.Name, len(raw), ErrMalformedNested)
	}

	entries := make([]nestedEntry, len(raw))
	for i, m := range raw {
		entry := nestedEntry{attrs: make(map[string]interface{}, len(m))}
		for key, value := range m {
			switch key {
			case "id", schema.KeyID:
				if value != nil {
					entry.id = fmt.Sprint(value)
				}
			case destroyKey:
				entry.destroy = truthy(value)
			default:
				entry.attrs[key] = value
			}
		}
		entries[i] = entry
	}
	return entries, nil
}

// sortPositions orders position keys numerically when they are all
// integers and lexically otherwise
func sortPositions(keys []string) {
	numeric := true
	for _, key := range keys {
		if _, err := strconv.Atoi(key); err != nil {
			numeric = false
			break
		}
	}
	if !numeric {
		sort.Strings(keys)
		return
	}
	sort.Slice(keys, func(i, j int) bool {
		a, _ := strconv.Atoi(keys[i])
		b, _ := strconv.Atoi(keys[j])
		return a < b
	})
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "1" || val == "true"
	case int:
		return val == 1
	default:
		return false
	}
}

func children(owner *document.Document, rel *schema.RelationDefinition) []*document.Document {
	if rel.Kind.IsEmbedded() {
		return owner.Embedded(rel.Name)
	}
	var live []*document.Document
	for _, child := range owner.Related(rel.Name) {
		if !child.Destroyed() {
			live = append(live, child)
		}
	}
	return live
}

func (a *Assigner) nestedMany(owner *document.Document, rel *schema.RelationDefinition, entry nestedEntry) error {
	if entry.id != "" {
		for _, child := range children(owner, rel) {
			if child.ID() != entry.id {
				continue
			}
			if entry.destroy && rel.Nested.AllowDestroy {
				return removeChild(owner, rel, child)
			}
			return a.updateChild(owner, rel, child, entry.attrs)
		}
	}
	if entry.destroy {
		return nil
	}
	return a.createChild(owner, rel, entry)
}

func (a *Assigner) nestedOne(owner *document.Document, rel *schema.RelationDefinition, entry nestedEntry) error {
	var current *document.Document
	if existing := children(owner, rel); len(existing) > 0 {
		current = existing[0]
	}

	if rel.Nested.UpdateOnly {
		if current == nil {
			return &NestedCreateNotAllowedError{Relation: rel.Name}
		}
	} else if current != nil && entry.id != current.ID() {
		current = nil
	}

	if current != nil {
		if entry.destroy && rel.Nested.AllowDestroy {
			return removeChild(owner, rel, current)
		}
		return a.updateChild(owner, rel, current, entry.attrs)
	}
	if entry.destroy {
		return nil
	}
	return a.createChild(owner, rel, entry)
}

func (a *Assigner) createChild(owner *document.Document, rel *schema.RelationDefinition, entry nestedEntry) error {
	target, err := a.resolver.Lookup(rel.Target)
	if err != nil {
		return err
	}
	var child *document.Document
	if entry.id != "" {
		child = document.NewWithID(target, entry.id)
	} else {
		child = document.New(target)
	}
	if err := a.BulkAssign(child, entry.attrs); err != nil {
		return err
	}

	if rel.Kind.IsEmbedded() {
		return owner.Embed(rel.Name, child)
	}
	return relationships.Link(owner, rel, child)
}

// updateChild assigns attrs to an existing child. Embedded children of the
// staged owner are already private copies; a referenced child is copied
// and swapped in so the original stays untouched until adoption.
func (a *Assigner) updateChild(owner *document.Document, rel *schema.RelationDefinition, child *document.Document, attrs map[string]interface{}) error {
	if rel.Kind.IsEmbedded() {
		return a.BulkAssign(child, attrs)
	}

	staged := child.Clone()
	if err := a.BulkAssign(staged, attrs); err != nil {
		return err
	}
	owner.Unrelate(rel.Name, child.ID())
	return owner.Relate(rel.Name, staged)
}

// removeChild drops an embedded child. A referenced child stays loaded but
// marked destroyed, so the next save deletes it.
func removeChild(owner *document.Document, rel *schema.RelationDefinition, child *document.Document) error {
	if rel.Kind.IsEmbedded() {
		owner.Unembed(rel.Name, child.ID())
		return nil
	}

	staged := child.Clone()
	staged.MarkDestroyed()
	owner.Unrelate(rel.Name, child.ID())
	if rel.Kind == schema.HasAndBelongsToMany {
		if err := relationships.RemoveMember(owner, rel, staged); err != nil {
			return err
		}
	}
	return owner.Relate(rel.Name, staged)
}
