package schema

import (
	"sort"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
)

// Reserved attribute keys used in persisted snapshots
const (
	KeyID        = "_id"
	KeyType      = "_type"
	KeyVersion   = "version"
	KeyCreatedAt = "created_at"
	KeyUpdatedAt = "updated_at"
)

// DocumentType is the declaration of a document type. Declarations are built
// with the fluent helpers below and handed to Registry.Register, which keeps
// its own frozen copy.
type DocumentType struct {
	Name         string
	Parent       string
	Capabilities Capability
	Options      map[string]interface{}

	Fields    []*FieldDefinition
	Relations []*RelationDefinition
	Indexes   []*IndexDefinition
	Virtuals  []*VirtualAttribute

	// Populated by the registry
	ancestry      []string
	fieldIndex    map[string]*FieldDefinition
	relationIndex map[string]*RelationDefinition
	virtualIndex  map[string]*VirtualAttribute
	chains        map[string]*hooks.Chain
	registered    bool
}

// NewDocumentType creates a new document type declaration
func NewDocumentType(name string) *DocumentType {
	return &DocumentType{
		Name:    name,
		Options: make(map[string]interface{}),
	}
}

// Extends declares the type as a specialization of parent
func (t *DocumentType) Extends(parent string) *DocumentType {
	t.Parent = parent
	return t
}

// With enables capabilities on the type
func (t *DocumentType) With(caps Capability) *DocumentType {
	t.Capabilities |= caps
	return t
}

// SetOption sets a type-level option; subtypes receive a copy they may override
func (t *DocumentType) SetOption(key string, value interface{}) *DocumentType {
	if t.Options == nil {
		t.Options = make(map[string]interface{})
	}
	t.Options[key] = value
	return t
}

// AddField declares a persisted field
func (t *DocumentType) AddField(name string, typ FieldType) *FieldDefinition {
	field := &FieldDefinition{Name: name, Type: typ}
	t.Fields = append(t.Fields, field)
	return field
}

// Accessor declares a read/write virtual attribute
func (t *DocumentType) Accessor(name string) *VirtualAttribute {
	v := &VirtualAttribute{Name: name}
	t.Virtuals = append(t.Virtuals, v)
	return v
}

// Reader declares a virtual attribute only interceptors may write
func (t *DocumentType) Reader(name string) *VirtualAttribute {
	v := &VirtualAttribute{Name: name, ReadOnly: true}
	t.Virtuals = append(t.Virtuals, v)
	return v
}

// Index declares an index over keys
func (t *DocumentType) Index(keys ...IndexKey) *IndexDefinition {
	index := &IndexDefinition{Keys: keys}
	t.Indexes = append(t.Indexes, index)
	return index
}

// EmbedsMany declares an embedded collection
func (t *DocumentType) EmbedsMany(name, target string) *RelationDefinition {
	return t.relate(name, target, EmbedsMany)
}

// EmbedsOne declares a single embedded child
func (t *DocumentType) EmbedsOne(name, target string) *RelationDefinition {
	return t.relate(name, target, EmbedsOne)
}

// HasOne declares a single referenced child
func (t *DocumentType) HasOne(name, target string) *RelationDefinition {
	return t.relate(name, target, HasOne)
}

// HasMany declares a referenced collection
func (t *DocumentType) HasMany(name, target string) *RelationDefinition {
	return t.relate(name, target, HasMany)
}

// HasAndBelongsToMany declares a many-to-many reference
func (t *DocumentType) HasAndBelongsToMany(name, target string) *RelationDefinition {
	return t.relate(name, target, HasAndBelongsToMany)
}

func (t *DocumentType) relate(name, target string, kind RelationKind) *RelationDefinition {
	rel := &RelationDefinition{Name: name, Kind: kind, Target: target, Owner: t.Name}
	t.Relations = append(t.Relations, rel)
	return rel
}

// Field returns the field with the given name, including inherited fields
func (t *DocumentType) Field(name string) (*FieldDefinition, bool) {
	if t.fieldIndex != nil {
		f, ok := t.fieldIndex[name]
		return f, ok
	}
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// Relation returns the relation with the given name
func (t *DocumentType) Relation(name string) (*RelationDefinition, bool) {
	if t.relationIndex != nil {
		r, ok := t.relationIndex[name]
		return r, ok
	}
	for _, r := range t.Relations {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// Virtual returns the virtual attribute with the given name
func (t *DocumentType) Virtual(name string) (*VirtualAttribute, bool) {
	if t.virtualIndex != nil {
		v, ok := t.virtualIndex[name]
		return v, ok
	}
	for _, v := range t.Virtuals {
		if v.Name == name {
			return v, true
		}
	}
	return nil, false
}

// HasField returns true if the type has a field with the given name
func (t *DocumentType) HasField(name string) bool {
	_, ok := t.Field(name)
	return ok
}

// HasRelation returns true if the type has a relation with the given name
func (t *DocumentType) HasRelation(name string) bool {
	_, ok := t.Relation(name)
	return ok
}

// Chain returns the setter chain composed for a field or virtual attribute
func (t *DocumentType) Chain(name string) *hooks.Chain {
	return t.chains[name]
}

// Has returns true if the type declares every capability in caps
func (t *DocumentType) Has(caps Capability) bool {
	return t.Capabilities&caps == caps
}

// Option returns a type-level option
func (t *DocumentType) Option(key string) (interface{}, bool) {
	v, ok := t.Options[key]
	return v, ok
}

// Ancestry returns the type names from the root type down to this type
func (t *DocumentType) Ancestry() []string {
	if len(t.ancestry) == 0 {
		return []string{t.Name}
	}
	return append([]string(nil), t.ancestry...)
}

// Collection returns the root type name under which instances are stored
func (t *DocumentType) Collection() string {
	if len(t.ancestry) == 0 {
		return t.Name
	}
	return t.ancestry[0]
}

// IsA returns true if the type is name or specializes it
func (t *DocumentType) IsA(name string) bool {
	for _, ancestor := range t.Ancestry() {
		if ancestor == name {
			return true
		}
	}
	return false
}

// UniqueIndexes returns the indexes that constrain stored values
func (t *DocumentType) UniqueIndexes() []*IndexDefinition {
	var unique []*IndexDefinition
	for _, index := range t.Indexes {
		if index.UniqueKeys {
			unique = append(unique, index)
		}
	}
	return unique
}

// FieldNames returns the persisted field names in declaration order
func (t *DocumentType) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i, f := range t.Fields {
		names[i] = f.Name
	}
	return names
}

// Registered returns true for types obtained from a Registry
func (t *DocumentType) Registered() bool {
	return t.registered
}

func (t *DocumentType) clone() *DocumentType {
	c := &DocumentType{
		Name:         t.Name,
		Parent:       t.Parent,
		Capabilities: t.Capabilities,
		Options:      make(map[string]interface{}, len(t.Options)),
	}
	for k, v := range t.Options {
		c.Options[k] = CopyValue(v)
	}
	for _, f := range t.Fields {
		c.Fields = append(c.Fields, f.clone())
	}
	for _, r := range t.Relations {
		c.Relations = append(c.Relations, r.clone())
	}
	for _, i := range t.Indexes {
		c.Indexes = append(c.Indexes, i.clone())
	}
	for _, v := range t.Virtuals {
		c.Virtuals = append(c.Virtuals, v.clone())
	}
	return c
}

func keySet(fields []string) string {
	sorted := append([]string(nil), fields...)
	sort.Strings(sorted)
	key := ""
	for i, f := range sorted {
		if i > 0 {
			key += ","
		}
		key += f
	}
	return key
}
