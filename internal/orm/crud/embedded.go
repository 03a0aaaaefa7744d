package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
)

// RemoveEmbedded removes one embedded child and saves the parent. The
// parent is unchanged if the save fails.
func (e *Engine) RemoveEmbedded(ctx context.Context, doc *document.Document, name, id string) (*document.Document, error) {
	staged := doc.Clone()
	child, ok := staged.Unembed(name, id)
	if !ok {
		return nil, fmt.Errorf("%s.%s %s: %w", doc.TypeName(), name, id, ErrEmbeddedNotFound)
	}

	ancestry := child.Type().Ancestry()
	if err := e.hooks.Run(ctx, hooks.BeforeDestroy, child, ancestry...); err != nil {
		return nil, err
	}
	if err := e.Save(ctx, staged); err != nil {
		return nil, err
	}
	if err := doc.Adopt(staged); err != nil {
		return nil, err
	}

	child.MarkDestroyed()
	if err := e.hooks.Run(ctx, hooks.AfterDestroy, child, ancestry...); err != nil {
		return nil, err
	}
	return child, nil
}
