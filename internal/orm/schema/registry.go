package schema

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
)

type registrySnapshot struct {
	types map[string]*DocumentType
	order []string
}

// Registry holds the registered document types. Registration happens at
// startup; reads go to an immutable snapshot and never take a lock.
type Registry struct {
	current   atomic.Pointer[registrySnapshot]
	validator *DeclarationValidator
	sealed    bool
	mu        sync.Mutex
}

// NewRegistry creates a new schema registry
func NewRegistry() *Registry {
	r := &Registry{validator: NewDeclarationValidator()}
	r.current.Store(&registrySnapshot{types: make(map[string]*DocumentType)})
	return r
}

// Register freezes a copy of decl and returns it. Registering a name that is
// already registered returns the existing type unchanged.
func (r *Registry) Register(decl *DocumentType) (*DocumentType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.current.Load()
	if existing, ok := snap.types[decl.Name]; ok {
		return existing, nil
	}
	if r.sealed {
		return nil, fmt.Errorf("register %s: %w", decl.Name, ErrRegistrySealed)
	}

	var parent *DocumentType
	if decl.Parent != "" {
		p, ok := snap.types[decl.Parent]
		if !ok {
			return nil, fmt.Errorf("%s extends %s: %w", decl.Name, decl.Parent, ErrUnknownType)
		}
		parent = p
	}

	t, err := flatten(decl.clone(), parent)
	if err != nil {
		return nil, err
	}
	addImplicitFields(t)
	t.buildIndexes()

	if err := r.validator.Validate(t); err != nil {
		return nil, fmt.Errorf("schema validation failed for %s: %w", t.Name, err)
	}

	t.composeChains()
	t.registered = true

	next := &registrySnapshot{
		types: make(map[string]*DocumentType, len(snap.types)+1),
		order: append(append([]string(nil), snap.order...), t.Name),
	}
	for name, existing := range snap.types {
		next.types[name] = existing
	}
	next.types[t.Name] = t
	r.current.Store(next)

	return t, nil
}

// MustRegister is like Register but panics on error
func (r *Registry) MustRegister(decl *DocumentType) *DocumentType {
	t, err := r.Register(decl)
	if err != nil {
		panic(err)
	}
	return t
}

// flatten merges the parent's declarations into t. Names share one
// namespace across fields, relations and virtual attributes.
func flatten(t, parent *DocumentType) (*DocumentType, error) {
	seen := make(map[string]bool)
	claim := func(name string) error {
		if seen[name] {
			return &DuplicateFieldError{Type: t.Name, Name: name}
		}
		seen[name] = true
		return nil
	}

	var (
		fields    []*FieldDefinition
		relations []*RelationDefinition
		virtuals  []*VirtualAttribute
		indexes   []*IndexDefinition
	)
	options := make(map[string]interface{})

	if parent != nil {
		t.ancestry = append(parent.Ancestry(), t.Name)
		t.Capabilities |= parent.Capabilities
		for k, v := range parent.Options {
			options[k] = CopyValue(v)
		}
		for _, f := range parent.Fields {
			seen[f.Name] = true
			fields = append(fields, f.clone())
		}
		for _, rel := range parent.Relations {
			seen[rel.Name] = true
			relations = append(relations, rel.clone())
		}
		for _, v := range parent.Virtuals {
			seen[v.Name] = true
			virtuals = append(virtuals, v.clone())
		}
		for _, index := range parent.Indexes {
			indexes = append(indexes, index.clone())
		}
	} else {
		t.ancestry = []string{t.Name}
	}

	for _, f := range t.Fields {
		if err := claim(f.Name); err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	for _, rel := range t.Relations {
		if err := claim(rel.Name); err != nil {
			return nil, err
		}
		rel.Owner = t.Name
		relations = append(relations, rel)
	}
	for _, v := range t.Virtuals {
		if err := claim(v.Name); err != nil {
			return nil, err
		}
		virtuals = append(virtuals, v)
	}
	for _, index := range t.Indexes {
		indexes = putIndex(indexes, index)
	}
	for k, v := range t.Options {
		options[k] = v
	}

	t.Fields = fields
	t.Relations = relations
	t.Virtuals = virtuals
	t.Indexes = indexes
	t.Options = options
	return t, nil
}

// putIndex keeps at most one index per key-set; a later definition replaces
// the earlier one in place.
func putIndex(indexes []*IndexDefinition, index *IndexDefinition) []*IndexDefinition {
	for i, existing := range indexes {
		if existing.KeySet() == index.KeySet() {
			indexes[i] = index
			return indexes
		}
	}
	return append(indexes, index)
}

// addImplicitFields declares the id array owners of many-to-many relations
// hold, and indexes it when the relation asks for an index.
func addImplicitFields(t *DocumentType) {
	for _, rel := range t.Relations {
		if rel.Kind != HasAndBelongsToMany {
			continue
		}
		key := rel.IDsKey()
		if !t.HasField(key) {
			t.Fields = append(t.Fields, &FieldDefinition{
				Name:     key,
				Type:     TypeArray,
				Default:  []interface{}{},
				Implicit: true,
			})
		}
		if rel.Indexed {
			t.Indexes = putIndex(t.Indexes, &IndexDefinition{Keys: []IndexKey{Asc(key)}})
		}
	}
}

func (t *DocumentType) buildIndexes() {
	t.fieldIndex = make(map[string]*FieldDefinition, len(t.Fields))
	for _, f := range t.Fields {
		t.fieldIndex[f.Name] = f
	}
	t.relationIndex = make(map[string]*RelationDefinition, len(t.Relations))
	for _, rel := range t.Relations {
		t.relationIndex[rel.Name] = rel
	}
	t.virtualIndex = make(map[string]*VirtualAttribute, len(t.Virtuals))
	for _, v := range t.Virtuals {
		t.virtualIndex[v.Name] = v
	}
}

func (t *DocumentType) composeChains() {
	t.chains = make(map[string]*hooks.Chain)
	for _, f := range t.Fields {
		if len(f.Interceptors) > 0 {
			t.chains[f.Name] = hooks.Compose(f.Name, f.Interceptors...)
		}
	}
	for _, v := range t.Virtuals {
		if len(v.Interceptors) > 0 {
			t.chains[v.Name] = hooks.Compose(v.Name, v.Interceptors...)
		}
	}
}

// Get retrieves a registered type by name
func (r *Registry) Get(name string) (*DocumentType, bool) {
	t, ok := r.current.Load().types[name]
	return t, ok
}

// Lookup is like Get but returns ErrUnknownType for missing names
func (r *Registry) Lookup(name string) (*DocumentType, error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrUnknownType)
	}
	return t, nil
}

// List returns the registered type names in registration order
func (r *Registry) List() []string {
	return append([]string(nil), r.current.Load().order...)
}

// All returns a copy of the registered types keyed by name
func (r *Registry) All() map[string]*DocumentType {
	snap := r.current.Load()
	result := make(map[string]*DocumentType, len(snap.types))
	for k, v := range snap.types {
		result[k] = v
	}
	return result
}

// Descendants returns name and every registered type specializing it, in
// registration order.
func (r *Registry) Descendants(name string) []string {
	snap := r.current.Load()
	var names []string
	for _, candidate := range snap.order {
		if snap.types[candidate].IsA(name) {
			names = append(names, candidate)
		}
	}
	return names
}

// Count returns the number of registered types
func (r *Registry) Count() int {
	return len(r.current.Load().types)
}

// Exists checks if a type is registered
func (r *Registry) Exists(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Seal forbids further registration
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed returns true once Seal has been called
func (r *Registry) Sealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sealed
}

// Graph builds the relationship graph over the registered types
func (r *Registry) Graph() *RelationshipGraph {
	return NewRelationshipGraph(r.current.Load().types)
}

// Validate performs the cross-type checks deferred at registration so types
// may reference each other in any order.
func (r *Registry) Validate() error {
	if err := r.Graph().ValidateGraph(); err != nil {
		return fmt.Errorf("relationship validation failed: %w", err)
	}
	return nil
}

// DependencyOrder returns type names with referenced owners first
func (r *Registry) DependencyOrder() ([]string, error) {
	return r.Graph().TopologicalSort()
}

// Stats summarizes the registry
type RegistryStats struct {
	TotalTypes     int
	TotalFields    int
	TotalRelations int
	TotalIndexes   int
	UniqueIndexes  int
}

// GetStats returns statistics about the registry
func (r *Registry) GetStats() *RegistryStats {
	snap := r.current.Load()
	stats := &RegistryStats{TotalTypes: len(snap.types)}
	for _, t := range snap.types {
		stats.TotalFields += len(t.Fields)
		stats.TotalRelations += len(t.Relations)
		stats.TotalIndexes += len(t.Indexes)
		stats.UniqueIndexes += len(t.UniqueIndexes())
	}
	return stats
}
