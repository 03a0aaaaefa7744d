package crud

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/query"
)

// SaveAll saves docs in order, stopping at the first failure
func (e *Engine) SaveAll(ctx context.Context, docs ...*document.Document) error {
	for i, doc := range docs {
		if err := e.Save(ctx, doc); err != nil {
			return fmt.Errorf("save %d of %d: %w", i+1, len(docs), err)
		}
	}
	return nil
}

// DeleteAll deletes every document matching criteria through Delete and
// returns how many were deleted directly. Failures are aggregated.
func (e *Engine) DeleteAll(ctx context.Context, criteria *query.Criteria) (int, error) {
	docs, err := e.Find(ctx, criteria)
	if err != nil {
		return 0, err
	}

	var errs error
	deleted := 0
	for _, doc := range docs {
		if err := e.Delete(ctx, doc); err != nil {
			// removed by the cascade of an earlier match
			if !IsNotFound(err) {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		deleted++
	}
	return deleted, errs
}
