package crud

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Create builds a document of typeName from attrs and saves it
func (e *Engine) Create(ctx context.Context, typeName string, attrs map[string]interface{}) (*document.Document, error) {
	doc, err := e.New(typeName)
	if err != nil {
		return nil, err
	}
	if err := e.Assign(doc, attrs); err != nil {
		return nil, err
	}
	if err := e.Save(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Update bulk-assigns attrs to doc and saves it
func (e *Engine) Update(ctx context.Context, doc *document.Document, attrs map[string]interface{}) error {
	if err := e.Assign(doc, attrs); err != nil {
		return err
	}
	return e.Save(ctx, doc)
}

// Save inserts or replaces doc with its embedded children.
//
// Flow: before_save hooks -> link autosaved children -> validate ->
// stamp version and timestamps -> persist -> retain snapshot ->
// after_save hooks -> save autosaved children. A failed persist leaves
// version and timestamps as they were.
func (e *Engine) Save(ctx context.Context, doc *document.Document) error {
	return e.save(ctx, doc, make(map[string]bool))
}

func (e *Engine) save(ctx context.Context, doc *document.Document, visited map[string]bool) error {
	if doc.Destroyed() {
		return fmt.Errorf("save %s %s: %w", doc.TypeName(), doc.ID(), ErrDestroyed)
	}
	key := identityKey(doc)
	if visited[key] {
		return nil
	}
	visited[key] = true

	typ := doc.Type()
	ancestry := typ.Ancestry()

	if err := e.hooks.Run(ctx, hooks.BeforeSave, doc, ancestry...); err != nil {
		return err
	}

	sets, err := linkAutosaved(doc)
	if err != nil {
		return fmt.Errorf("save %s %s: %w", typ.Name, doc.ID(), err)
	}

	if err := e.validator.Validate(doc); err != nil {
		return err
	}

	stamp := e.tracker.Stamp(doc)
	if _, err := e.store.Persist(ctx, typ.Name, doc.Snapshot()); err != nil {
		stamp.Rollback()
		return fmt.Errorf("save %s %s: %w", typ.Name, doc.ID(), err)
	}
	doc.MarkPersisted()

	if err := e.tracker.Retain(ctx, doc); err != nil {
		return err
	}

	e.logger.Debug("saved document",
		zap.String("type", typ.Name),
		zap.String("id", doc.ID()),
		zap.Int("version", doc.Version()))

	if err := e.hooks.Run(ctx, hooks.AfterSave, doc, ancestry...); err != nil {
		return err
	}
	return e.autosave(ctx, doc, sets, visited)
}

type autosaveSet struct {
	relation *schema.RelationDefinition
	children []*document.Document
}

func autosaves(rel *schema.RelationDefinition) bool {
	return !rel.Kind.IsEmbedded() && (rel.Autosave || rel.Nested != nil)
}

// linkAutosaved points every loaded autosaved child at doc, so foreign keys
// and many-to-many ids are in place before anything is persisted
func linkAutosaved(doc *document.Document) ([]autosaveSet, error) {
	var sets []autosaveSet
	for _, rel := range doc.Type().Relations {
		if !autosaves(rel) || !doc.Loaded(rel.Name) {
			continue
		}
		children := doc.Related(rel.Name)
		for _, child := range children {
			if child.Destroyed() {
				continue
			}
			if err := relationships.Link(doc, rel, child); err != nil {
				return nil, fmt.Errorf("%s: %w", rel.Name, err)
			}
		}
		sets = append(sets, autosaveSet{relation: rel, children: children})
	}
	return sets, nil
}

// autosave saves linked children and deletes the ones marked destroyed by
// nested assignment. Failures are collected; doc itself is already saved.
func (e *Engine) autosave(ctx context.Context, doc *document.Document, sets []autosaveSet, visited map[string]bool) error {
	var errs error
	for _, set := range sets {
		for _, child := range set.children {
			if child.Destroyed() {
				if !child.IsNew() {
					errs = multierr.Append(errs, e.destroy(ctx, child, make(map[string]bool)))
				}
				doc.Unrelate(set.relation.Name, child.ID())
				continue
			}
			errs = multierr.Append(errs, e.save(ctx, child, visited))
		}
		if set.relation.Kind == schema.HasOne {
			errs = multierr.Append(errs, e.releaseReplaced(ctx, doc, set.relation))
		}
	}
	if errs != nil {
		return fmt.Errorf("autosave %s %s: %w", doc.TypeName(), doc.ID(), errs)
	}
	return nil
}

// releaseReplaced applies the relation's dependent action to stored has-one
// children other than the one now loaded: destroy and delete remove them,
// anything else clears their back-reference.
func (e *Engine) releaseReplaced(ctx context.Context, owner *document.Document, rel *schema.RelationDefinition) error {
	current := owner.RelatedOne(rel.Name)
	if current == nil || current.Destroyed() {
		return nil
	}

	criteria, err := e.loader.ChildCriteria(rel, []*document.Document{owner})
	if err != nil {
		return err
	}
	stored, err := e.loader.Fetch(ctx, rel.Target, criteria.WhereOp(schema.KeyID, query.OpNotEqual, current.ID()))
	if err != nil {
		return err
	}

	var errs error
	for _, stale := range stored {
		switch rel.Cascade {
		case schema.CascadeDestroy:
			errs = multierr.Append(errs, e.destroy(ctx, stale, make(map[string]bool)))
		case schema.CascadeDelete:
			errs = multierr.Append(errs, e.removeStored(ctx, stale))
		default:
			errs = multierr.Append(errs, e.nullify(ctx, owner, rel, stale))
		}
		e.logger.Debug("released replaced child",
			zap.String("relation", rel.Owner+"."+rel.Name),
			zap.String("id", stale.ID()),
			zap.String("action", rel.Cascade.String()))
	}
	return errs
}
