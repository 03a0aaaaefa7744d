// Package document implements document instances: attribute storage behind
// governed setters, virtual attributes, embedded children and snapshots.
package document

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/tracking"
)

var (
	// ErrUnknownAttribute is returned when assigning a name the type does not declare
	ErrUnknownAttribute = errors.New("unknown attribute")

	// ErrReadOnlyAttribute is returned when directly assigning a read-only virtual attribute
	ErrReadOnlyAttribute = errors.New("read-only attribute")

	// ErrNotEmbedded is returned when a relation is not embedded
	ErrNotEmbedded = errors.New("relation is not embedded")

	// ErrNotReferenced is returned when a relation is not referenced
	ErrNotReferenced = errors.New("relation is not referenced")

	// ErrWrongTarget is returned when a child's type does not match the relation's target
	ErrWrongTarget = errors.New("child type does not match relation target")
)

// Document is an instance of a registered document type. A document is not
// safe for concurrent mutation; distinct documents are independent.
type Document struct {
	typ      *schema.DocumentType
	id       string
	attrs    map[string]interface{}
	virtuals map[string]interface{}
	embedded map[string][]*Document
	related  map[string][]*Document
	changes  *tracking.ChangeTracker

	persisted bool
	destroyed bool
}

// New creates a document of typ with a fresh identity and its defaults
// evaluated for this instance alone.
func New(typ *schema.DocumentType) *Document {
	return NewWithID(typ, uuid.NewString())
}

// NewWithID is like New with a caller-supplied identity
func NewWithID(typ *schema.DocumentType, id string) *Document {
	d := blank(typ, id)
	d.applyDefaults(nil)
	d.changes = tracking.NewChangeTracker(nil)
	for name, value := range d.attrs {
		d.changes.Track(name, value)
	}
	return d
}

func blank(typ *schema.DocumentType, id string) *Document {
	return &Document{
		typ:      typ,
		id:       id,
		attrs:    make(map[string]interface{}),
		virtuals: make(map[string]interface{}),
		embedded: make(map[string][]*Document),
		related:  make(map[string][]*Document),
	}
}

// applyDefaults sets every defaulted field not present in skip
func (d *Document) applyDefaults(skip map[string]interface{}) {
	for _, f := range d.typ.Fields {
		if _, ok := skip[f.Name]; ok {
			continue
		}
		if value, ok := f.ResolveDefault(); ok {
			d.attrs[f.Name] = value
		}
	}
}

// Type returns the document's type
func (d *Document) Type() *schema.DocumentType {
	return d.typ
}

// TypeName returns the name of the document's type
func (d *Document) TypeName() string {
	return d.typ.Name
}

// ID returns the document's identity
func (d *Document) ID() string {
	return d.id
}

// IsNew returns true until the document has been saved or loaded
func (d *Document) IsNew() bool {
	return !d.persisted
}

// Persisted returns true if the document exists in storage
func (d *Document) Persisted() bool {
	return d.persisted && !d.destroyed
}

// Destroyed returns true after the document has been deleted
func (d *Document) Destroyed() bool {
	return d.destroyed
}

// MarkPersisted records a successful save of the document and its embedded
// children, making the current state the new change baseline.
func (d *Document) MarkPersisted() {
	d.persisted = true
	d.changes.Commit(d.attrs)
	for _, children := range d.embedded {
		for _, child := range children {
			child.MarkPersisted()
		}
	}
}

// MarkDestroyed records that the document was deleted
func (d *Document) MarkDestroyed() {
	d.destroyed = true
	for _, children := range d.embedded {
		for _, child := range children {
			child.MarkDestroyed()
		}
	}
}

// Get returns an attribute or virtual attribute value
func (d *Document) Get(name string) interface{} {
	if v, ok := d.attrs[name]; ok {
		return v
	}
	return d.virtuals[name]
}

// Attribute returns a stored attribute and whether it is present
func (d *Document) Attribute(name string) (interface{}, bool) {
	v, ok := d.attrs[name]
	return v, ok
}

// Set assigns a field or virtual attribute through its setter chain. Unlike
// bulk assignment it ignores protection.
func (d *Document) Set(name string, value interface{}) error {
	if field, ok := d.typ.Field(name); ok {
		coerced, err := field.Coerce(value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.typ.Name, err)
		}
		return d.typ.Chain(name).Invoke(d, coerced, func(v interface{}) error {
			stored, err := field.Coerce(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.typ.Name, err)
			}
			d.store(name, stored)
			return nil
		})
	}

	if virtual, ok := d.typ.Virtual(name); ok {
		if virtual.ReadOnly {
			return fmt.Errorf("%s.%s: %w", d.typ.Name, name, ErrReadOnlyAttribute)
		}
		return d.typ.Chain(name).Invoke(d, value, func(v interface{}) error {
			d.virtuals[name] = v
			return nil
		})
	}

	return fmt.Errorf("%s.%s: %w", d.typ.Name, name, ErrUnknownAttribute)
}

// SetVirtual writes a virtual attribute without running its chain; this is
// how interceptors fill read-only attributes.
func (d *Document) SetVirtual(name string, value interface{}) {
	d.virtuals[name] = value
}

// WriteAttribute stores a raw attribute, declared or not, bypassing coercion
// and interceptors. Used for foreign keys and engine-managed values.
func (d *Document) WriteAttribute(name string, value interface{}) {
	d.store(name, value)
}

// RemoveAttribute deletes a raw attribute
func (d *Document) RemoveAttribute(name string) {
	delete(d.attrs, name)
	d.changes.Track(name, nil)
}

func (d *Document) store(name string, value interface{}) {
	d.attrs[name] = value
	d.changes.Track(name, value)
}

// Attributes returns a copy of the stored attributes
func (d *Document) Attributes() map[string]interface{} {
	out := make(map[string]interface{}, len(d.attrs))
	for k, v := range d.attrs {
		out[k] = schema.CopyValue(v)
	}
	return out
}

// Virtuals returns a copy of the virtual attribute values
func (d *Document) Virtuals() map[string]interface{} {
	out := make(map[string]interface{}, len(d.virtuals))
	for k, v := range d.virtuals {
		out[k] = v
	}
	return out
}

// Changed returns true if the attribute changed since the last save
func (d *Document) Changed(name string) bool {
	return d.changes.Changed(name)
}

// ChangedFields returns the attributes changed since the last save
func (d *Document) ChangedFields() []string {
	return d.changes.ChangedFields()
}

// Changes returns the tracked attribute changes
func (d *Document) Changes() map[string]*tracking.FieldChange {
	return d.changes.Changes()
}

// Version returns the version counter; zero before the first save
func (d *Document) Version() int {
	v, _ := d.attrs[schema.KeyVersion].(int)
	return v
}

// SetVersion sets the version counter
func (d *Document) SetVersion(version int) {
	d.store(schema.KeyVersion, version)
}

// CreatedAt returns the first-save timestamp
func (d *Document) CreatedAt() (time.Time, bool) {
	t, ok := d.attrs[schema.KeyCreatedAt].(time.Time)
	return t, ok
}

// UpdatedAt returns the last-save timestamp
func (d *Document) UpdatedAt() (time.Time, bool) {
	t, ok := d.attrs[schema.KeyUpdatedAt].(time.Time)
	return t, ok
}

// SetCreatedAt sets the first-save timestamp
func (d *Document) SetCreatedAt(t time.Time) {
	d.store(schema.KeyCreatedAt, t)
}

// SetUpdatedAt sets the last-save timestamp
func (d *Document) SetUpdatedAt(t time.Time) {
	d.store(schema.KeyUpdatedAt, t)
}

// ClearCreatedAt removes the first-save timestamp
func (d *Document) ClearCreatedAt() {
	d.RemoveAttribute(schema.KeyCreatedAt)
}

// ClearUpdatedAt removes the last-save timestamp
func (d *Document) ClearUpdatedAt() {
	d.RemoveAttribute(schema.KeyUpdatedAt)
}

// Versioning returns the document as Versionable if its type declares versioning
func (d *Document) Versioning() (tracking.Versionable, bool) {
	if !d.typ.Has(schema.CapVersioning) {
		return nil, false
	}
	return d, true
}

// Timestamps returns the document as TimestampCapable if its type declares timestamps
func (d *Document) Timestamps() (tracking.TimestampCapable, bool) {
	if !d.typ.Has(schema.CapTimestamps) {
		return nil, false
	}
	return d, true
}

// Snapshot returns the persisted representation: attributes, identity, type
// discriminator and embedded children inline.
func (d *Document) Snapshot() map[string]interface{} {
	snapshot := d.Attributes()
	snapshot[schema.KeyID] = d.id
	snapshot[schema.KeyType] = d.typ.Name

	for _, rel := range d.typ.Relations {
		if !rel.Kind.IsEmbedded() {
			continue
		}
		children := d.embedded[rel.Name]
		if rel.Kind == schema.EmbedsOne {
			if len(children) == 0 {
				snapshot[rel.Name] = nil
				continue
			}
			snapshot[rel.Name] = children[0].Snapshot()
			continue
		}
		items := make([]interface{}, len(children))
		for i, child := range children {
			items[i] = child.Snapshot()
		}
		snapshot[rel.Name] = items
	}
	return snapshot
}

// Clone returns a deep copy of the document, including embedded children.
// Loaded referenced documents are shared, not copied.
func (d *Document) Clone() *Document {
	c := blank(d.typ, d.id)
	c.attrs = d.Attributes()
	for k, v := range d.virtuals {
		c.virtuals[k] = v
	}
	for name, children := range d.embedded {
		copies := make([]*Document, len(children))
		for i, child := range children {
			copies[i] = child.Clone()
		}
		c.embedded[name] = copies
	}
	for name, docs := range d.related {
		c.related[name] = append([]*Document(nil), docs...)
	}
	c.changes = d.changes.Clone()
	c.persisted = d.persisted
	c.destroyed = d.destroyed
	return c
}

// Adopt replaces the document's state with that of a staged clone of it.
// Changes made on the clone become visible only once adopted.
func (d *Document) Adopt(staged *Document) error {
	if staged.id != d.id || staged.typ != d.typ {
		return fmt.Errorf("%s %s cannot adopt %s %s", d.typ.Name, d.id, staged.typ.Name, staged.id)
	}
	d.attrs = staged.attrs
	d.virtuals = staged.virtuals
	d.embedded = staged.embedded
	d.related = staged.related
	d.changes = staged.changes
	d.persisted = staged.persisted
	d.destroyed = staged.destroyed
	for _, docs := range d.related {
		for _, other := range docs {
			other.repoint(staged, d)
		}
	}
	return nil
}

// repoint replaces loaded references to from with to, so inverse relations
// set up while staging point at the adopting document
func (d *Document) repoint(from, to *Document) {
	for _, docs := range d.related {
		for i, doc := range docs {
			if doc == from {
				docs[i] = to
			}
		}
	}
}

// Relation returns the named relation declared on the document's type
func (d *Document) Relation(name string) (*schema.RelationDefinition, error) {
	rel, ok := d.typ.Relation(name)
	if !ok {
		return nil, fmt.Errorf("%s.%s: %w", d.typ.Name, name, ErrUnknownAttribute)
	}
	return rel, nil
}

func (d *Document) embeddedRelation(name string) (*schema.RelationDefinition, error) {
	rel, err := d.Relation(name)
	if err != nil {
		return nil, err
	}
	if !rel.Kind.IsEmbedded() {
		return nil, fmt.Errorf("%s.%s: %w", d.typ.Name, name, ErrNotEmbedded)
	}
	return rel, nil
}

func checkTarget(rel *schema.RelationDefinition, child *Document) error {
	if !child.typ.IsA(rel.Target) {
		return fmt.Errorf("%s.%s expects %s, got %s: %w", rel.Owner, rel.Name, rel.Target, child.typ.Name, ErrWrongTarget)
	}
	return nil
}

// Embedded returns the embedded children of a relation in insertion order
func (d *Document) Embedded(name string) []*Document {
	return append([]*Document(nil), d.embedded[name]...)
}

// EmbeddedOne returns the single embedded child of an embeds-one relation
func (d *Document) EmbeddedOne(name string) *Document {
	if children := d.embedded[name]; len(children) > 0 {
		return children[0]
	}
	return nil
}

// Embed adds a child to an embedded relation. For embeds-one the child
// replaces any existing one.
func (d *Document) Embed(name string, child *Document) error {
	rel, err := d.embeddedRelation(name)
	if err != nil {
		return err
	}
	if err := checkTarget(rel, child); err != nil {
		return err
	}
	if rel.Kind == schema.EmbedsOne {
		d.embedded[name] = []*Document{child}
		return nil
	}
	d.embedded[name] = append(d.embedded[name], child)
	return nil
}

// ReplaceEmbedded swaps the full set of children of an embedded relation
func (d *Document) ReplaceEmbedded(name string, children []*Document) error {
	rel, err := d.embeddedRelation(name)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := checkTarget(rel, child); err != nil {
			return err
		}
	}
	if len(children) == 0 {
		delete(d.embedded, name)
		return nil
	}
	d.embedded[name] = append([]*Document(nil), children...)
	return nil
}

// Unembed removes the child with the given identity, returning it
func (d *Document) Unembed(name, id string) (*Document, bool) {
	children := d.embedded[name]
	for i, child := range children {
		if child.id == id {
			d.embedded[name] = append(children[:i:i], children[i+1:]...)
			return child, true
		}
	}
	return nil, false
}

// Related returns the loaded documents of a referenced relation
func (d *Document) Related(name string) []*Document {
	return append([]*Document(nil), d.related[name]...)
}

// RelatedOne returns the loaded document of a has-one relation
func (d *Document) RelatedOne(name string) *Document {
	if docs := d.related[name]; len(docs) > 0 {
		return docs[0]
	}
	return nil
}

// Loaded returns true if a referenced relation has loaded documents
func (d *Document) Loaded(name string) bool {
	_, ok := d.related[name]
	return ok
}

// Relate adds a loaded document to a referenced relation. For has-one the
// document replaces any existing one.
func (d *Document) Relate(name string, other *Document) error {
	rel, err := d.Relation(name)
	if err != nil {
		return err
	}
	if rel.Kind.IsEmbedded() {
		return fmt.Errorf("%s.%s: %w", d.typ.Name, name, ErrNotReferenced)
	}
	if err := checkTarget(rel, other); err != nil {
		return err
	}
	if rel.Kind == schema.HasOne {
		d.related[name] = []*Document{other}
		return nil
	}
	for _, existing := range d.related[name] {
		if existing.id == other.id {
			return nil
		}
	}
	d.related[name] = append(d.related[name], other)
	return nil
}

// SetRelated replaces the loaded documents of a referenced relation
func (d *Document) SetRelated(name string, docs []*Document) {
	d.related[name] = append([]*Document{}, docs...)
}

// Unrelate drops a loaded document from a referenced relation
func (d *Document) Unrelate(name, id string) (*Document, bool) {
	docs := d.related[name]
	for i, other := range docs {
		if other.id == id {
			d.related[name] = append(docs[:i:i], docs[i+1:]...)
			return other, true
		}
	}
	return nil, false
}

// LoadedRelations returns the names of referenced relations with loaded
// documents, sorted.
func (d *Document) LoadedRelations() []string {
	names := make([]string, 0, len(d.related))
	for name := range d.related {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ hooks.Record = (*Document)(nil)
