package relationships

import (
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Link points a referenced child at its owner: the child's foreign key is
// set to the owner's identity and, for a polymorphic role, <role>_type to
// the owner's type. The child is added to the owner's loaded relation.
func Link(owner *document.Document, rel *schema.RelationDefinition, child *document.Document) error {
	switch rel.Kind {
	case schema.HasOne, schema.HasMany:
	case schema.HasAndBelongsToMany:
		return AddMember(owner, rel, child)
	default:
		return fmt.Errorf("%w: cannot link %s relation %s", ErrInvalidRelationType, rel.Kind, rel.Name)
	}

	if err := write(child, rel.ChildKey(), owner.ID()); err != nil {
		return err
	}
	if rel.Role != "" {
		if err := write(child, rel.Role+"_type", owner.TypeName()); err != nil {
			return err
		}
	}
	return owner.Relate(rel.Name, child)
}

// Unlink clears a referenced child's back-reference to owner. For
// many-to-many relations both id arrays are updated.
func Unlink(owner *document.Document, rel *schema.RelationDefinition, child *document.Document) error {
	switch rel.Kind {
	case schema.HasOne, schema.HasMany:
	case schema.HasAndBelongsToMany:
		return RemoveMember(owner, rel, child)
	default:
		return fmt.Errorf("%w: cannot unlink %s relation %s", ErrInvalidRelationType, rel.Kind, rel.Name)
	}

	if err := write(child, rel.ChildKey(), nil); err != nil {
		return err
	}
	if rel.Role != "" {
		if err := write(child, rel.Role+"_type", nil); err != nil {
			return err
		}
	}
	owner.Unrelate(rel.Name, child.ID())
	return nil
}

// AddMember joins member to owner through a many-to-many relation. The
// owner's id array gains the member; when the relation names an inverse,
// the member's id array gains the owner too.
func AddMember(owner *document.Document, rel *schema.RelationDefinition, member *document.Document) error {
	if rel.Kind != schema.HasAndBelongsToMany {
		return fmt.Errorf("%w: %s is not many-to-many", ErrInvalidRelationType, rel.Name)
	}
	if err := owner.Relate(rel.Name, member); err != nil {
		return err
	}
	if err := write(owner, rel.IDsKey(), withID(owner.Get(rel.IDsKey()), member.ID())); err != nil {
		return err
	}

	if rel.Inverse == "" {
		return nil
	}
	if err := write(member, rel.InverseKey(), withID(member.Get(rel.InverseKey()), owner.ID())); err != nil {
		return err
	}
	if inverse, ok := member.Type().Relation(rel.Inverse); ok && inverse.Kind == schema.HasAndBelongsToMany {
		return member.Relate(rel.Inverse, owner)
	}
	return nil
}

// RemoveMember separates member from owner, updating both id arrays
func RemoveMember(owner *document.Document, rel *schema.RelationDefinition, member *document.Document) error {
	if rel.Kind != schema.HasAndBelongsToMany {
		return fmt.Errorf("%w: %s is not many-to-many", ErrInvalidRelationType, rel.Name)
	}
	owner.Unrelate(rel.Name, member.ID())
	if err := write(owner, rel.IDsKey(), withoutID(owner.Get(rel.IDsKey()), member.ID())); err != nil {
		return err
	}

	if rel.Inverse == "" {
		return nil
	}
	if err := write(member, rel.InverseKey(), withoutID(member.Get(rel.InverseKey()), owner.ID())); err != nil {
		return err
	}
	member.Unrelate(rel.Inverse, owner.ID())
	return nil
}

// MemberIDs returns the identities held in a document's id array
func MemberIDs(doc *document.Document, key string) []string {
	values, _ := doc.Get(key).([]interface{})
	ids := make([]string, 0, len(values))
	for _, v := range values {
		if id, ok := v.(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// write goes through the setter chain for declared fields and stores
// undeclared keys raw
func write(doc *document.Document, key string, value interface{}) error {
	if doc.Type().HasField(key) {
		return doc.Set(key, value)
	}
	doc.WriteAttribute(key, value)
	return nil
}

func withID(current interface{}, id string) []interface{} {
	values, _ := current.([]interface{})
	out := append([]interface{}(nil), values...)
	for _, v := range values {
		if v == id {
			return out
		}
	}
	return append(out, id)
}

func withoutID(current interface{}, id string) []interface{} {
	values, _ := current.([]interface{})
	out := make([]interface{}, 0, len(values))
	for _, v := range values {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
