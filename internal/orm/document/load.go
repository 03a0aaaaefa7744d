package document

import (
	"errors"
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/tracking"
)

// ErrMalformedSnapshot is returned when a stored snapshot cannot be loaded
var ErrMalformedSnapshot = errors.New("malformed snapshot")

// Resolver looks up registered document types
type Resolver interface {
	Lookup(name string) (*schema.DocumentType, error)
}

// Load rebuilds a persisted document from a stored snapshot. The concrete
// type comes from the snapshot's _type discriminator.
func Load(resolver Resolver, snapshot map[string]interface{}) (*Document, error) {
	return load(resolver, snapshot, "")
}

func load(resolver Resolver, snapshot map[string]interface{}, fallback string) (*Document, error) {
	typeName, _ := snapshot[schema.KeyType].(string)
	if typeName == "" {
		typeName = fallback
	}
	if typeName == "" {
		return nil, fmt.Errorf("%w: missing %s", ErrMalformedSnapshot, schema.KeyType)
	}
	typ, err := resolver.Lookup(typeName)
	if err != nil {
		return nil, err
	}

	id, _ := snapshot[schema.KeyID].(string)
	if id == "" {
		return nil, fmt.Errorf("%w: %s without %s", ErrMalformedSnapshot, typeName, schema.KeyID)
	}

	d := blank(typ, id)
	for key, value := range snapshot {
		if key == schema.KeyID || key == schema.KeyType {
			continue
		}
		if rel, ok := typ.Relation(key); ok && rel.Kind.IsEmbedded() {
			if err := d.loadEmbedded(resolver, rel, value); err != nil {
				return nil, err
			}
			continue
		}
		if field, ok := typ.Field(key); ok {
			if coerced, err := field.Coerce(value); err == nil {
				value = coerced
			}
		}
		d.attrs[key] = schema.CopyValue(value)
	}
	// Fields declared after the document was stored
	d.applyDefaults(snapshot)

	d.changes = tracking.NewChangeTracker(d.attrs)
	d.persisted = true
	return d, nil
}

func (d *Document) loadEmbedded(resolver Resolver, rel *schema.RelationDefinition, value interface{}) error {
	var items []interface{}
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		items = []interface{}{v}
	case []interface{}:
		items = v
	default:
		return fmt.Errorf("%w: %s.%s holds %T", ErrMalformedSnapshot, d.typ.Name, rel.Name, value)
	}

	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: %s.%s holds %T", ErrMalformedSnapshot, d.typ.Name, rel.Name, item)
		}
		child, err := load(resolver, m, rel.Target)
		if err != nil {
			return err
		}
		d.embedded[rel.Name] = append(d.embedded[rel.Name], child)
	}
	return nil
}
