package query

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

var (
	// ErrUnknownScope is returned when applying a scope that is not registered
	ErrUnknownScope = errors.New("unknown scope")

	// ErrScopeArity is returned when a scope receives the wrong number of arguments
	ErrScopeArity = errors.New("wrong number of scope arguments")
)

// ScopeFunc extends a criteria with a scope's fragment
type ScopeFunc func(c *Criteria, args []interface{}) (*Criteria, error)

// Scope is a named, reusable predicate fragment
type Scope struct {
	Name   string
	Params int
	Build  ScopeFunc
}

// Static creates a zero-argument scope
func Static(name string, fn func(c *Criteria) *Criteria) *Scope {
	return &Scope{
		Name: name,
		Build: func(c *Criteria, _ []interface{}) (*Criteria, error) {
			return fn(c), nil
		},
	}
}

// Parameterized creates a scope taking params arguments
func Parameterized(name string, params int, fn ScopeFunc) *Scope {
	return &Scope{Name: name, Params: params, Build: fn}
}

func (s *Scope) apply(c *Criteria, args []interface{}) (*Criteria, error) {
	if len(args) != s.Params {
		return nil, fmt.Errorf("scope %s takes %d arguments, got %d: %w", s.Name, s.Params, len(args), ErrScopeArity)
	}
	return s.Build(c, args)
}

// ScopeRegistry holds the scopes declared per document type. Subtypes see
// the scopes of their ancestors.
type ScopeRegistry struct {
	scopes map[string]map[string]*Scope
	mu     sync.RWMutex
}

// NewScopeRegistry creates a new scope registry
func NewScopeRegistry() *ScopeRegistry {
	return &ScopeRegistry{
		scopes: make(map[string]map[string]*Scope),
	}
}

// Register adds a scope to a type, replacing one of the same name
func (sr *ScopeRegistry) Register(typeName string, scope *Scope) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	if sr.scopes[typeName] == nil {
		sr.scopes[typeName] = make(map[string]*Scope)
	}
	sr.scopes[typeName][scope.Name] = scope
}

// Lookup finds a scope on typ or its nearest ancestor declaring it
func (sr *ScopeRegistry) Lookup(typ *schema.DocumentType, name string) (*Scope, error) {
	if sr != nil && typ != nil {
		sr.mu.RLock()
		defer sr.mu.RUnlock()

		ancestry := typ.Ancestry()
		for i := len(ancestry) - 1; i >= 0; i-- {
			if scope, ok := sr.scopes[ancestry[i]][name]; ok {
				return scope, nil
			}
		}
	}
	typeName := ""
	if typ != nil {
		typeName = typ.Name
	}
	return nil, fmt.Errorf("%s.%s: %w", typeName, name, ErrUnknownScope)
}

// Has returns true if the scope is visible from typ
func (sr *ScopeRegistry) Has(typ *schema.DocumentType, name string) bool {
	_, err := sr.Lookup(typ, name)
	return err == nil
}

// List returns the names of the scopes visible from typ, sorted
func (sr *ScopeRegistry) List(typ *schema.DocumentType) []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	seen := make(map[string]bool)
	for _, ancestor := range typ.Ancestry() {
		for name := range sr.scopes[ancestor] {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
