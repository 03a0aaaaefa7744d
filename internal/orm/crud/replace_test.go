package crud

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
)

func badgeEngine(t *testing.T, action schema.CascadeAction) *Engine {
	t.Helper()
	registry := schema.NewRegistry()

	owner := schema.NewDocumentType("Member")
	owner.AddField("name", schema.TypeString)
	owner.HasOne("badge", "Badge").
		Dependent(action).
		AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	registry.MustRegister(owner)

	badge := schema.NewDocumentType("Badge")
	badge.AddField("label", schema.TypeString)
	badge.AddField("member_id", schema.TypeObject)
	registry.MustRegister(badge)

	require.NoError(t, registry.Validate())
	return NewEngine(registry, storage.NewMemoryStore(registry, zap.NewNop()))
}

func TestSave_ReplacedHasOne(t *testing.T) {
	tests := []struct {
		name      string
		action    schema.CascadeAction
		remaining int
		orphaned  bool
	}{
		{"destroy", schema.CascadeDestroy, 1, false},
		{"delete", schema.CascadeDelete, 1, false},
		{"nullify", schema.CascadeNullify, 2, true},
		{"none", schema.CascadeNone, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			engine := badgeEngine(t, tt.action)

			member, err := engine.New("Member")
			require.NoError(t, err)
			require.NoError(t, engine.AssignNested(member, "badge", map[string]interface{}{"label": "bronze"}))
			require.NoError(t, engine.Save(ctx, member))
			old := member.RelatedOne("badge")
			require.NotNil(t, old)

			require.NoError(t, engine.AssignNested(member, "badge", map[string]interface{}{"label": "silver"}))
			require.NoError(t, engine.Save(ctx, member))

			all, err := engine.Criteria("Badge")
			require.NoError(t, err)
			n, err := engine.Count(ctx, all)
			require.NoError(t, err)
			assert.Equal(t, tt.remaining, n)

			reloaded, err := engine.FindByID(ctx, "Member", member.ID())
			require.NoError(t, err)
			badge, err := engine.Related(ctx, reloaded, "badge")
			require.NoError(t, err)
			require.Equal(t, 1, badge.Len())
			assert.Equal(t, "silver", badge.First().Get("label"))

			stored, err := engine.FindByID(ctx, "Badge", old.ID())
			if !tt.orphaned {
				assert.True(t, IsNotFound(err))
				return
			}
			require.NoError(t, err)
			assert.Nil(t, stored.Get("member_id"))
		})
	}
}

func TestSave_ReplacedHasOneAfterReload(t *testing.T) {
	ctx := context.Background()
	engine := badgeEngine(t, schema.CascadeDestroy)

	member, err := engine.New("Member")
	require.NoError(t, err)
	require.NoError(t, engine.AssignNested(member, "badge", map[string]interface{}{"label": "bronze"}))
	require.NoError(t, engine.Save(ctx, member))

	reloaded, err := engine.FindByID(ctx, "Member", member.ID())
	require.NoError(t, err)
	require.NoError(t, engine.AssignNested(reloaded, "badge", map[string]interface{}{"label": "gold"}))
	require.NoError(t, engine.Save(ctx, reloaded))

	all, err := engine.Criteria("Badge")
	require.NoError(t, err)
	docs, err := engine.Find(ctx, all)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "gold", docs[0].Get("label"))
}
