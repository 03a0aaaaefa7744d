package relationships

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
)

// DefaultMaxDepth bounds nested includes such as "posts.comments.author"
const DefaultMaxDepth = 10

// Loader loads referenced children from a store, one query per relation
// for any number of parents
type Loader struct {
	store    storage.Store
	registry *schema.Registry
	logger   *zap.Logger
}

// NewLoader creates a new relationship loader
func NewLoader(store storage.Store, registry *schema.Registry, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		store:    store,
		registry: registry,
		logger:   logger,
	}
}

// LoadContext tracks loading state to prevent circular references
type LoadContext struct {
	visited  map[string]bool
	depth    int
	maxDepth int
	mu       sync.Mutex
}

// NewLoadContext creates a new load context with the given max depth
func NewLoadContext(maxDepth int) *LoadContext {
	return &LoadContext{
		visited:  make(map[string]bool),
		maxDepth: maxDepth,
	}
}

// MarkVisited marks a relation path as being loaded. It returns false if
// the path is already being loaded higher up.
func (lc *LoadContext) MarkVisited(key string) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.visited[key] {
		return false
	}
	lc.visited[key] = true
	return true
}

// Unmark releases a path so sibling branches can load it
func (lc *LoadContext) Unmark(key string) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	delete(lc.visited, key)
}

// IncrementDepth increments the depth counter
func (lc *LoadContext) IncrementDepth() error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.depth++
	if lc.depth > lc.maxDepth {
		return ErrMaxDepthExceeded
	}
	return nil
}

// DecrementDepth decrements the depth counter
func (lc *LoadContext) DecrementDepth() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.depth--
}

// Load loads and materializes one relation of a single parent
func (l *Loader) Load(ctx context.Context, parent *document.Document, name string) (*Collection, error) {
	if err := l.EagerLoad(ctx, []*document.Document{parent}, name); err != nil {
		return nil, err
	}
	return Of(parent, name)
}

// EagerLoad loads the included relations of every parent. Includes may
// be dotted ("posts.comments") to continue into the loaded children.
func (l *Loader) EagerLoad(ctx context.Context, parents []*document.Document, includes ...string) error {
	return l.EagerLoadWithContext(ctx, parents, includes, NewLoadContext(DefaultMaxDepth))
}

// EagerLoadWithContext loads relationships with circular reference prevention
func (l *Loader) EagerLoadWithContext(
	ctx context.Context,
	parents []*document.Document,
	includes []string,
	loadCtx *LoadContext,
) error {
	if len(parents) == 0 {
		return nil
	}

	if err := loadCtx.IncrementDepth(); err != nil {
		return err
	}
	defer loadCtx.DecrementDepth()

	for _, include := range includes {
		name, nested := parseInclude(include)

		rel, ok := parents[0].Type().Relation(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", ErrUnknownRelationship, parents[0].TypeName(), name)
		}

		key := rel.Owner + "." + rel.Name
		if !loadCtx.MarkVisited(key) {
			continue
		}

		children, err := l.loadRelation(ctx, parents, rel)
		if err == nil && nested != "" {
			err = l.EagerLoadWithContext(ctx, children, []string{nested}, loadCtx)
		}
		loadCtx.Unmark(key)
		if err != nil {
			return fmt.Errorf("failed to load relationship %s: %w", name, err)
		}
	}

	return nil
}

// loadRelation attaches the children of rel to every parent and returns the
// distinct children
func (l *Loader) loadRelation(ctx context.Context, parents []*document.Document, rel *schema.RelationDefinition) ([]*document.Document, error) {
	if rel.Kind.IsEmbedded() {
		var children []*document.Document
		for _, parent := range parents {
			children = append(children, parent.Embedded(rel.Name)...)
		}
		return children, nil
	}

	criteria, err := l.ChildCriteria(rel, parents)
	if err != nil {
		return nil, err
	}

	var children []*document.Document
	if criteria != nil {
		children, err = l.Fetch(ctx, rel.Target, criteria)
		if err != nil {
			return nil, err
		}
	}

	for _, parent := range parents {
		var mine []*document.Document
		switch rel.Kind {
		case schema.HasAndBelongsToMany:
			held := make(map[string]bool)
			for _, id := range MemberIDs(parent, rel.IDsKey()) {
				held[id] = true
			}
			for _, child := range children {
				if held[child.ID()] {
					mine = append(mine, child)
				}
			}
		default:
			for _, child := range children {
				if child.Get(rel.ChildKey()) == parent.ID() {
					mine = append(mine, child)
				}
			}
		}

		mine = Sort(rel, mine)
		if rel.Kind == schema.HasOne && len(mine) > 1 {
			mine = mine[:1]
		}
		parent.SetRelated(rel.Name, mine)
	}

	l.logger.Debug("loaded relation",
		zap.String("relation", rel.Owner+"."+rel.Name),
		zap.Int("parents", len(parents)),
		zap.Int("children", len(children)))
	return children, nil
}

// ChildCriteria returns the criteria selecting the stored children of rel
// for all parents. It returns nil when no child can exist, as for
// many-to-many parents holding no ids.
func (l *Loader) ChildCriteria(rel *schema.RelationDefinition, parents []*document.Document) (*query.Criteria, error) {
	target, err := l.registry.Lookup(rel.Target)
	if err != nil {
		return nil, err
	}
	c := query.New(target, nil)

	switch rel.Kind {
	case schema.HasOne, schema.HasMany:
		ids := make([]interface{}, 0, len(parents))
		types := make([]interface{}, 0, 1)
		seenType := make(map[string]bool)
		for _, parent := range parents {
			ids = append(ids, parent.ID())
			if !seenType[parent.TypeName()] {
				seenType[parent.TypeName()] = true
				types = append(types, parent.TypeName())
			}
		}
		c = c.WhereOp(rel.ChildKey(), query.OpIn, ids)
		if rel.Role != "" {
			c = c.WhereOp(rel.Role+"_type", query.OpIn, types)
		}
		return c, nil

	case schema.HasAndBelongsToMany:
		var ids []interface{}
		seen := make(map[string]bool)
		for _, parent := range parents {
			for _, id := range MemberIDs(parent, rel.IDsKey()) {
				if !seen[id] {
					seen[id] = true
					ids = append(ids, id)
				}
			}
		}
		if len(ids) == 0 {
			return nil, nil
		}
		return c.WhereOp(schema.KeyID, query.OpIn, ids), nil

	default:
		return nil, fmt.Errorf("%w: %s is embedded", ErrInvalidRelationType, rel.Name)
	}
}

// Fetch runs criteria against the store and loads every matching document
func (l *Loader) Fetch(ctx context.Context, typeName string, criteria *query.Criteria) ([]*document.Document, error) {
	seq, err := l.store.Query(ctx, typeName, criteria)
	if err != nil {
		return nil, err
	}
	var docs []*document.Document
	for snapshot, err := range seq {
		if err != nil {
			return nil, err
		}
		doc, err := document.Load(l.registry, snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// parseInclude splits "author.posts" into ("author", "posts")
func parseInclude(include string) (string, string) {
	name, nested, _ := strings.Cut(include, ".")
	return name, nested
}
