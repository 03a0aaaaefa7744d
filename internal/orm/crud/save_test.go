package crud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/relationships"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
)

func TestSave_VersionAndTimestamps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.newDoc(t, "Person", map[string]interface{}{"title": "Sir"})
	assert.Equal(t, 0, doc.Version())
	require.NoError(t, f.engine.Save(ctx, doc))

	first := f.clock.Now()
	assert.Equal(t, 1, doc.Version())
	created, ok := doc.CreatedAt()
	require.True(t, ok)
	assert.Equal(t, first, created)
	updated, _ := doc.UpdatedAt()
	assert.Equal(t, first, updated)
	assert.False(t, doc.IsNew())
	assert.Empty(t, doc.ChangedFields())

	f.clock.Advance(time.Hour)
	require.NoError(t, doc.Set("title", "Lord"))
	require.NoError(t, f.engine.Save(ctx, doc))

	assert.Equal(t, 2, doc.Version())
	created, _ = doc.CreatedAt()
	assert.Equal(t, first, created, "created_at is set on the first save only")
	updated, _ = doc.UpdatedAt()
	assert.Equal(t, first.Add(time.Hour), updated)

	versions, err := f.snapshots.Versions(ctx, doc.ID())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)
	v1, err := f.snapshots.Get(ctx, doc.ID(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Sir", v1.Attributes["title"])

	loaded, err := f.engine.FindByID(ctx, "Person", doc.ID())
	require.NoError(t, err)
	assert.Equal(t, "Lord", loaded.Get("title"))
	assert.Equal(t, 2, loaded.Version())
}

func TestSave_FailedPersistRollsBack(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, "Person", map[string]interface{}{"ssn": "123-45-6789"})

	dup := f.newDoc(t, "Person", map[string]interface{}{"ssn": "123-45-6789"})
	err := f.engine.Save(ctx, dup)
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	var violation *storage.UniqueConstraintViolation
	require.True(t, errors.As(err, &violation))
	assert.Equal(t, []string{"ssn"}, violation.Fields)

	assert.Equal(t, 0, dup.Version())
	_, ok := dup.CreatedAt()
	assert.False(t, ok)
	_, ok = dup.UpdatedAt()
	assert.False(t, ok)
	assert.True(t, dup.IsNew())
}

func TestSave_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.newDoc(t, "Person", map[string]interface{}{"ssn": "$$$"})
	err := f.engine.Save(ctx, doc)
	assert.True(t, IsValidationFailed(err))
	assert.Equal(t, 0, f.store.Len("Person"))
	assert.Equal(t, 0, doc.Version())

	t.Run("embedded children are validated", func(t *testing.T) {
		doc := f.newDoc(t, "Person", nil)
		require.NoError(t, doc.Embed("addresses", f.newDoc(t, "Address", nil)))
		err := f.engine.Save(ctx, doc)
		assert.True(t, IsValidationFailed(err))
		assert.Contains(t, err.Error(), "addresses[0].street")
	})
}

func TestSave_Hooks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := &recorder{}

	f.hooks.Register("Person", hooks.BeforeSave, rec.hook("Person:before_save"))
	f.hooks.Register("Doctor", hooks.BeforeSave, rec.hook("Doctor:before_save"))
	f.hooks.Register("Person", hooks.AfterSave, rec.hook("Person:after_save"))

	f.create(t, "Doctor", map[string]interface{}{"specialty": "surgery"})
	assert.Equal(t, []string{"Person:before_save", "Doctor:before_save", "Person:after_save"}, rec.calls)

	t.Run("a failing before_save hook aborts", func(t *testing.T) {
		f := newFixture(t)
		errVeto := errors.New("veto")
		f.hooks.Register("Person", hooks.BeforeSave, &hooks.Hook{Fn: func(*hooks.Context, hooks.Record) error {
			return errVeto
		}})

		doc := f.newDoc(t, "Person", nil)
		assert.ErrorIs(t, f.engine.Save(ctx, doc), errVeto)
		assert.Equal(t, 0, f.store.Len("Person"))
		assert.True(t, doc.IsNew())
	})

	t.Run("before_save hooks may change attributes", func(t *testing.T) {
		f := newFixture(t)
		f.hooks.Register("Person", hooks.BeforeSave, &hooks.Hook{Fn: func(_ *hooks.Context, rec hooks.Record) error {
			return rec.Set("title", "Dr")
		}})

		doc := f.create(t, "Person", nil)
		loaded, err := f.engine.FindByID(ctx, "Person", doc.ID())
		require.NoError(t, err)
		assert.Equal(t, "Dr", loaded.Get("title"))
	})
}

func TestSave_Destroyed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc := f.create(t, "Person", nil)
	require.NoError(t, f.engine.Delete(ctx, doc))
	assert.ErrorIs(t, f.engine.Save(ctx, doc), ErrDestroyed)
}

func TestSave_Autosave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("referenced children get the foreign key", func(t *testing.T) {
		person := f.newDoc(t, "Person", nil)
		post := f.newDoc(t, "Post", map[string]interface{}{"title": "hello"})
		person.SetRelated("posts", []*document.Document{post})

		require.NoError(t, f.engine.Save(ctx, person))
		assert.Equal(t, person.ID(), post.Get("person_id"))
		assert.False(t, post.IsNew())

		stored, err := f.engine.FindByID(ctx, "Post", post.ID())
		require.NoError(t, err)
		assert.Equal(t, person.ID(), stored.Get("person_id"))
	})

	t.Run("nested many to many", func(t *testing.T) {
		person := f.newDoc(t, "Person", nil)
		require.NoError(t, f.engine.AssignNested(person, "preferences", []interface{}{
			map[string]interface{}{"value": "tea"},
		}))
		require.NoError(t, f.engine.Save(ctx, person))

		pref := person.Related("preferences")[0]
		stored, err := f.engine.FindByID(ctx, "Preference", pref.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{person.ID()}, relationships.MemberIDs(stored, "person_ids"))

		storedPerson, err := f.engine.FindByID(ctx, "Person", person.ID())
		require.NoError(t, err)
		assert.Equal(t, []string{pref.ID()}, relationships.MemberIDs(storedPerson, "preference_ids"))

		require.NoError(t, f.engine.AssignNested(person, "preferences", []interface{}{
			map[string]interface{}{"id": pref.ID(), "_destroy": "1"},
		}))
		require.NoError(t, f.engine.Save(ctx, person))

		_, err = f.engine.FindByID(ctx, "Preference", pref.ID())
		assert.True(t, IsNotFound(err))
		assert.Empty(t, person.Related("preferences"))

		storedPerson, err = f.engine.FindByID(ctx, "Person", person.ID())
		require.NoError(t, err)
		assert.Empty(t, relationships.MemberIDs(storedPerson, "preference_ids"))
	})
}

func TestCreateAndUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doc, err := f.engine.Create(ctx, "Person", map[string]interface{}{"title": "Sir", "age": "42"})
	require.NoError(t, err)
	assert.Equal(t, 42, doc.Get("age"))
	assert.Equal(t, 1, doc.Version())

	require.NoError(t, f.engine.Update(ctx, doc, map[string]interface{}{"title": "Lord"}))
	assert.Equal(t, 2, doc.Version())

	_, err = f.engine.Create(ctx, "Person", map[string]interface{}{"unknown": 1})
	assert.Error(t, err)
	assert.Equal(t, 1, f.store.Len("Person"))

	_, err = f.engine.Create(ctx, "Nobody", nil)
	assert.Error(t, err)
}
