package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
)

// Criteria returns an empty criteria for typeName with the engine's scopes
func (e *Engine) Criteria(typeName string) (*query.Criteria, error) {
	typ, err := e.registry.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	return query.New(typ, e.scopes), nil
}

// Scope returns the criteria of a named scope of typeName
func (e *Engine) Scope(typeName, name string, args ...interface{}) (*query.Criteria, error) {
	c, err := e.Criteria(typeName)
	if err != nil {
		return nil, err
	}
	return c.Apply(name, args...)
}

// Find loads every document matching criteria
func (e *Engine) Find(ctx context.Context, criteria *query.Criteria) ([]*document.Document, error) {
	if criteria == nil || criteria.Type() == nil {
		return nil, fmt.Errorf("find: criteria without a document type")
	}
	docs, err := e.loader.Fetch(ctx, criteria.TypeName(), criteria)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", criteria.TypeName(), err)
	}
	return docs, nil
}

// FindOne loads the first document matching criteria
func (e *Engine) FindOne(ctx context.Context, criteria *query.Criteria) (*document.Document, error) {
	if criteria == nil || criteria.Type() == nil {
		return nil, fmt.Errorf("find: criteria without a document type")
	}
	docs, err := e.Find(ctx, criteria.Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("find %s %s: %w", criteria.TypeName(), criteria, storage.ErrNotFound)
	}
	return docs[0], nil
}

// FindByID loads the document of typeName (or a specialization) with the
// given identity
func (e *Engine) FindByID(ctx context.Context, typeName, id string) (*document.Document, error) {
	c, err := e.Criteria(typeName)
	if err != nil {
		return nil, err
	}
	docs, err := e.Find(ctx, c.Where(schema.KeyID, id).Limit(1))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("find %s %s: %w", typeName, id, storage.ErrNotFound)
	}
	return docs[0], nil
}

// Count returns the number of documents matching criteria
func (e *Engine) Count(ctx context.Context, criteria *query.Criteria) (int, error) {
	seq, err := e.store.Query(ctx, criteria.TypeName(), criteria)
	if err != nil {
		return 0, err
	}
	snapshots, err := storage.Collect(seq)
	if err != nil {
		return 0, err
	}
	return len(snapshots), nil
}

// Related returns the ordered children of a relation of doc. Referenced
// relations are loaded from the store unless already loaded.
func (e *Engine) Related(ctx context.Context, doc *document.Document, name string) (*relationships.Collection, error) {
	rel, err := doc.Relation(name)
	if err != nil {
		return nil, err
	}
	if rel.Kind.IsEmbedded() || doc.Loaded(name) {
		return relationships.Of(doc, name)
	}
	return e.loader.Load(ctx, doc, name)
}

// Include eagerly loads relations of docs, one query per relation.
// Includes may be dotted, as in "posts.comments".
func (e *Engine) Include(ctx context.Context, docs []*document.Document, includes ...string) error {
	return e.loader.EagerLoad(ctx, docs, includes...)
}
