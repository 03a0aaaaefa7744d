package crud

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
)

// Delete removes doc from the store, embedded children included, and
// applies the dependent action of each referenced relation to the loaded
// and stored children:
//
//	delete   removes the children without running their hooks or cascades
//	destroy  deletes the children through Delete
//	nullify  clears the children's back-reference and saves them
//
// Cascade failures are aggregated; after_destroy hooks run only when every
// cascade succeeded. Deleting an already deleted document does nothing.
func (e *Engine) Delete(ctx context.Context, doc *document.Document) error {
	if doc.Destroyed() {
		return nil
	}
	return e.destroy(ctx, doc, make(map[string]bool))
}

func (e *Engine) destroy(ctx context.Context, doc *document.Document, visited map[string]bool) error {
	key := identityKey(doc)
	if visited[key] {
		return nil
	}
	visited[key] = true

	typ := doc.Type()
	ancestry := typ.Ancestry()

	if err := e.hooks.Run(ctx, hooks.BeforeDestroy, doc, ancestry...); err != nil {
		return err
	}

	if !doc.IsNew() {
		if err := e.store.Remove(ctx, typ.Name, doc.ID()); err != nil {
			return fmt.Errorf("delete %s %s: %w", typ.Name, doc.ID(), err)
		}
	}

	var errs error
	for _, rel := range typ.Relations {
		if rel.Kind.IsEmbedded() || rel.Cascade == schema.CascadeNone {
			continue
		}
		if err := e.cascade(ctx, doc, rel, visited); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", rel.Name, err))
		}
	}
	doc.MarkDestroyed()

	e.logger.Debug("deleted document",
		zap.String("type", typ.Name),
		zap.String("id", doc.ID()),
		zap.Int("cascade_errors", len(multierr.Errors(errs))))

	if errs != nil {
		return fmt.Errorf("delete %s %s: %w", typ.Name, doc.ID(), errs)
	}
	return e.hooks.Run(ctx, hooks.AfterDestroy, doc, ancestry...)
}

func (e *Engine) cascade(ctx context.Context, owner *document.Document, rel *schema.RelationDefinition, visited map[string]bool) error {
	children, err := e.dependents(ctx, owner, rel)
	if err != nil {
		return err
	}

	var errs error
	for _, child := range children {
		switch rel.Cascade {
		case schema.CascadeDelete:
			errs = multierr.Append(errs, e.removeStored(ctx, child))
		case schema.CascadeDestroy:
			errs = multierr.Append(errs, e.destroy(ctx, child, visited))
		case schema.CascadeNullify:
			errs = multierr.Append(errs, e.nullify(ctx, owner, rel, child))
		}
	}
	return errs
}

// dependents returns the loaded children of rel followed by the stored
// ones that were not loaded
func (e *Engine) dependents(ctx context.Context, owner *document.Document, rel *schema.RelationDefinition) ([]*document.Document, error) {
	children := owner.Related(rel.Name)
	seen := make(map[string]bool, len(children))
	for _, child := range children {
		seen[child.ID()] = true
	}

	criteria, err := e.loader.ChildCriteria(rel, []*document.Document{owner})
	if err != nil || criteria == nil {
		return children, err
	}
	stored, err := e.loader.Fetch(ctx, rel.Target, criteria)
	if err != nil {
		return nil, err
	}
	for _, child := range relationships.Sort(rel, stored) {
		if !seen[child.ID()] {
			children = append(children, child)
		}
	}
	return children, nil
}

// removeStored deletes a child without hooks or cascades. A child already
// gone from the store counts as removed.
func (e *Engine) removeStored(ctx context.Context, doc *document.Document) error {
	if doc.Destroyed() {
		return nil
	}
	if !doc.IsNew() {
		err := e.store.Remove(ctx, doc.TypeName(), doc.ID())
		if err != nil && !storage.IsNotFound(err) {
			return fmt.Errorf("delete %s %s: %w", doc.TypeName(), doc.ID(), err)
		}
	}
	doc.MarkDestroyed()
	return nil
}

func (e *Engine) nullify(ctx context.Context, owner *document.Document, rel *schema.RelationDefinition, child *document.Document) error {
	if child.Destroyed() {
		return nil
	}
	if err := relationships.Unlink(owner, rel, child); err != nil {
		return err
	}
	if child.IsNew() {
		return nil
	}
	if _, err := e.store.Persist(ctx, child.TypeName(), child.Snapshot()); err != nil {
		return fmt.Errorf("nullify %s %s: %w", child.TypeName(), child.ID(), err)
	}
	child.MarkPersisted()
	return nil
}
