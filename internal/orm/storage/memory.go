package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

type memoryCollection struct {
	docs   map[string]Snapshot
	order  []string
	unique map[string]map[string]string // index name -> value key -> id
}

func newMemoryCollection() *memoryCollection {
	return &memoryCollection{
		docs:   make(map[string]Snapshot),
		unique: make(map[string]map[string]string),
	}
}

// MemoryStore keeps snapshots in process. It enforces unique indexes the
// same way the SQL store does and is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	registry    *schema.Registry
	collections map[string]*memoryCollection
	logger      *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(registry *schema.Registry, logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{
		registry:    registry,
		collections: make(map[string]*memoryCollection),
		logger:      logger,
	}
}

func (s *MemoryStore) collection(name string) *memoryCollection {
	c, ok := s.collections[name]
	if !ok {
		c = newMemoryCollection()
		s.collections[name] = c
	}
	return c
}

// Persist implements Store
func (s *MemoryStore) Persist(ctx context.Context, typeName string, snapshot Snapshot) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id, err := identity(snapshot)
	if err != nil {
		return "", err
	}
	typ, err := resolveType(s.registry, typeName, snapshot)
	if err != nil {
		return "", err
	}
	keys := uniqueKeys(typ, snapshot)

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(typ.Collection())
	for _, key := range keys {
		owner, taken := coll.unique[key.index.Name()][key.value]
		if taken && owner != id {
			return "", &UniqueConstraintViolation{
				Collection: typ.Collection(),
				Index:      key.index.Name(),
				Fields:     key.index.Fields(),
				Value:      key.value,
				ExistingID: owner,
			}
		}
	}

	coll.releaseKeys(id)
	for _, key := range keys {
		name := key.index.Name()
		if coll.unique[name] == nil {
			coll.unique[name] = make(map[string]string)
		}
		coll.unique[name][key.value] = id
	}

	if _, exists := coll.docs[id]; !exists {
		coll.order = append(coll.order, id)
	}
	coll.docs[id] = copySnapshot(snapshot)

	s.logger.Debug("persisted document",
		zap.String("collection", typ.Collection()),
		zap.String("type", typ.Name),
		zap.String("id", id))
	return id, nil
}

func (c *memoryCollection) releaseKeys(id string) {
	for _, values := range c.unique {
		for value, owner := range values {
			if owner == id {
				delete(values, value)
			}
		}
	}
}

// Remove implements Store
func (s *MemoryStore) Remove(ctx context.Context, typeName, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	typ, err := s.registry.Lookup(typeName)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll := s.collection(typ.Collection())
	if _, ok := coll.docs[id]; !ok {
		return fmt.Errorf("%w: %s %s", ErrNotFound, typeName, id)
	}
	delete(coll.docs, id)
	coll.releaseKeys(id)
	for i, existing := range coll.order {
		if existing == id {
			coll.order = append(coll.order[:i], coll.order[i+1:]...)
			break
		}
	}

	s.logger.Debug("removed document",
		zap.String("collection", typ.Collection()),
		zap.String("id", id))
	return nil
}

// Query implements Store. Matching happens when the sequence is ranged over.
func (s *MemoryStore) Query(ctx context.Context, typeName string, criteria *query.Criteria) (Sequence, error) {
	typ, err := s.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	types := typeFilter(s.registry, typeName)

	return func(yield func(Snapshot, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(nil, err)
			return
		}

		s.mu.RLock()
		coll := s.collections[typ.Collection()]
		var matched []map[string]interface{}
		if coll != nil {
			for _, id := range coll.order {
				doc := coll.docs[id]
				discriminator, _ := doc[schema.KeyType].(string)
				if !types[discriminator] {
					continue
				}
				if criteria != nil && !criteria.Matches(doc) {
					continue
				}
				matched = append(matched, copySnapshot(doc))
			}
		}
		s.mu.RUnlock()

		if criteria != nil {
			matched = criteria.Window(matched)
		}
		for _, doc := range matched {
			if !yield(doc, nil) {
				return
			}
		}
	}, nil
}

// Len returns the number of documents stored for the type's collection
func (s *MemoryStore) Len(typeName string) int {
	typ, err := s.registry.Lookup(typeName)
	if err != nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if coll := s.collections[typ.Collection()]; coll != nil {
		return len(coll.docs)
	}
	return 0
}

func copySnapshot(snapshot Snapshot) Snapshot {
	return schema.CopyValue(snapshot).(map[string]interface{})
}
