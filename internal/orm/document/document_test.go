package document

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

func rescoring(rec hooks.Record, value interface{}, next hooks.Next) error {
	if n, ok := value.(int); ok {
		rec.SetVirtual("rescored", n+20)
	}
	return next(value)
}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	person := schema.NewDocumentType("Person").With(schema.CapTimestamps | schema.CapVersioning)
	person.AddField("title", schema.TypeString)
	person.AddField("age", schema.TypeInteger).WithDefault(100)
	person.AddField("aliases", schema.TypeArray).WithDefault([]interface{}{})
	person.AddField("score", schema.TypeInteger).Intercept(rescoring)
	person.AddField("employer_id", schema.TypeObject)
	person.Accessor("mode")
	person.Reader("rescored")
	person.Accessor("employer").Intercept(func(rec hooks.Record, value interface{}, next hooks.Next) error {
		if err := rec.Set("employer_id", value); err != nil {
			return err
		}
		return hooks.ErrSuppressStorage
	})
	person.EmbedsMany("addresses", "Address")
	person.EmbedsOne("name", "Name")
	person.HasMany("posts", "Post")
	registry.MustRegister(person)

	address := schema.NewDocumentType("Address")
	address.AddField("street", schema.TypeString)
	registry.MustRegister(address)

	name := schema.NewDocumentType("Name")
	name.AddField("first_name", schema.TypeString)
	registry.MustRegister(name)

	post := schema.NewDocumentType("Post")
	post.AddField("title", schema.TypeString)
	registry.MustRegister(post)

	doctor := schema.NewDocumentType("Doctor").Extends("Person")
	doctor.AddField("specialty", schema.TypeString)
	registry.MustRegister(doctor)

	return registry
}

func mustType(t *testing.T, registry *schema.Registry, name string) *schema.DocumentType {
	t.Helper()
	typ, err := registry.Lookup(name)
	require.NoError(t, err)
	return typ
}

func TestNew(t *testing.T) {
	registry := testRegistry(t)
	person := mustType(t, registry, "Person")

	t.Run("defaults and identity", func(t *testing.T) {
		doc := New(person)
		assert.NotEmpty(t, doc.ID())
		assert.Equal(t, 100, doc.Get("age"))
		assert.True(t, doc.IsNew())
		assert.False(t, doc.Persisted())
		assert.Equal(t, 0, doc.Version())
	})

	t.Run("defaults are not shared", func(t *testing.T) {
		first := New(person)
		second := New(person)

		aliases := first.Get("aliases").([]interface{})
		require.NoError(t, first.Set("aliases", append(aliases, "Bob")))

		assert.Equal(t, []interface{}{"Bob"}, first.Get("aliases"))
		assert.Equal(t, []interface{}{}, second.Get("aliases"))
		assert.NotEqual(t, first.ID(), second.ID())
	})
}

func TestSet(t *testing.T) {
	registry := testRegistry(t)
	person := mustType(t, registry, "Person")

	t.Run("coerces to the declared type", func(t *testing.T) {
		doc := New(person)
		require.NoError(t, doc.Set("age", "42"))
		assert.Equal(t, 42, doc.Get("age"))
		assert.True(t, doc.Changed("age"))
	})

	t.Run("type mismatch", func(t *testing.T) {
		doc := New(person)
		err := doc.Set("age", "old")
		assert.True(t, errors.Is(err, schema.ErrTypeMismatch))
		assert.Equal(t, 100, doc.Get("age"))
	})

	t.Run("rescoring interceptor", func(t *testing.T) {
		doc := New(person)
		require.NoError(t, doc.Set("score", 5))
		assert.Equal(t, 5, doc.Get("score"))
		assert.Equal(t, 25, doc.Get("rescored"))
	})

	t.Run("virtual accessor", func(t *testing.T) {
		doc := New(person)
		require.NoError(t, doc.Set("mode", "strict"))
		assert.Equal(t, "strict", doc.Get("mode"))
		assert.NotContains(t, doc.Snapshot(), "mode")
	})

	t.Run("read-only virtual", func(t *testing.T) {
		doc := New(person)
		err := doc.Set("rescored", 1)
		assert.True(t, errors.Is(err, ErrReadOnlyAttribute))
	})

	t.Run("setter writing another field", func(t *testing.T) {
		doc := New(person)
		require.NoError(t, doc.Set("employer", "acme"))
		assert.Equal(t, "acme", doc.Get("employer_id"))
		assert.Nil(t, doc.Virtuals()["employer"])
	})

	t.Run("unknown attribute", func(t *testing.T) {
		doc := New(person)
		err := doc.Set("nope", 1)
		assert.True(t, errors.Is(err, ErrUnknownAttribute))
	})
}

func TestCapabilities(t *testing.T) {
	registry := testRegistry(t)

	person := New(mustType(t, registry, "Person"))
	_, ok := person.Versioning()
	assert.True(t, ok)
	_, ok = person.Timestamps()
	assert.True(t, ok)

	address := New(mustType(t, registry, "Address"))
	_, ok = address.Versioning()
	assert.False(t, ok)
	_, ok = address.Timestamps()
	assert.False(t, ok)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	person.SetCreatedAt(now)
	created, ok := person.CreatedAt()
	assert.True(t, ok)
	assert.Equal(t, now, created)
	person.ClearCreatedAt()
	_, ok = person.CreatedAt()
	assert.False(t, ok)
}

func TestEmbedded(t *testing.T) {
	registry := testRegistry(t)
	doc := New(mustType(t, registry, "Person"))
	address := mustType(t, registry, "Address")

	first := New(address)
	require.NoError(t, first.Set("street", "Bond"))
	second := New(address)
	require.NoError(t, doc.Embed("addresses", first))
	require.NoError(t, doc.Embed("addresses", second))

	assert.Len(t, doc.Embedded("addresses"), 2)

	t.Run("wrong target", func(t *testing.T) {
		err := doc.Embed("addresses", New(mustType(t, registry, "Post")))
		assert.True(t, errors.Is(err, ErrWrongTarget))
	})

	t.Run("not embedded", func(t *testing.T) {
		err := doc.Embed("posts", New(mustType(t, registry, "Post")))
		assert.True(t, errors.Is(err, ErrNotEmbedded))
	})

	t.Run("embeds one replaces", func(t *testing.T) {
		name := mustType(t, registry, "Name")
		require.NoError(t, doc.Embed("name", New(name)))
		replacement := New(name)
		require.NoError(t, doc.Embed("name", replacement))
		assert.Equal(t, replacement, doc.EmbeddedOne("name"))
	})

	t.Run("unembed", func(t *testing.T) {
		removed, ok := doc.Unembed("addresses", second.ID())
		assert.True(t, ok)
		assert.Equal(t, second, removed)
		assert.Len(t, doc.Embedded("addresses"), 1)
	})
}

func TestRelated(t *testing.T) {
	registry := testRegistry(t)
	doc := New(mustType(t, registry, "Person"))
	post := New(mustType(t, registry, "Post"))

	assert.False(t, doc.Loaded("posts"))
	require.NoError(t, doc.Relate("posts", post))
	require.NoError(t, doc.Relate("posts", post))
	assert.Len(t, doc.Related("posts"), 1)
	assert.Equal(t, []string{"posts"}, doc.LoadedRelations())

	err := doc.Relate("addresses", post)
	assert.True(t, errors.Is(err, ErrNotReferenced))

	_, ok := doc.Unrelate("posts", post.ID())
	assert.True(t, ok)
	assert.Empty(t, doc.Related("posts"))
}

func TestSnapshotAndLoad(t *testing.T) {
	registry := testRegistry(t)
	doc := New(mustType(t, registry, "Doctor"))
	require.NoError(t, doc.Set("title", "Dr"))
	require.NoError(t, doc.Set("specialty", "surgery"))
	doc.WriteAttribute("owner_id", "someone")

	address := New(mustType(t, registry, "Address"))
	require.NoError(t, address.Set("street", "Bond"))
	require.NoError(t, doc.Embed("addresses", address))
	name := New(mustType(t, registry, "Name"))
	require.NoError(t, name.Set("first_name", "Richard"))
	require.NoError(t, doc.Embed("name", name))

	snapshot := doc.Snapshot()
	assert.Equal(t, doc.ID(), snapshot["_id"])
	assert.Equal(t, "Doctor", snapshot["_type"])
	assert.Equal(t, "someone", snapshot["owner_id"])
	assert.Len(t, snapshot["addresses"], 1)
	assert.Equal(t, "Richard", snapshot["name"].(map[string]interface{})["first_name"])

	loaded, err := Load(registry, snapshot)
	require.NoError(t, err)
	assert.Equal(t, "Doctor", loaded.TypeName())
	assert.Equal(t, doc.ID(), loaded.ID())
	assert.Equal(t, "surgery", loaded.Get("specialty"))
	assert.Equal(t, "someone", loaded.Get("owner_id"))
	assert.True(t, loaded.Persisted())
	assert.False(t, loaded.Changed("title"))
	require.Len(t, loaded.Embedded("addresses"), 1)
	assert.Equal(t, "Bond", loaded.Embedded("addresses")[0].Get("street"))
	assert.Equal(t, address.ID(), loaded.Embedded("addresses")[0].ID())
	assert.Equal(t, "Richard", loaded.EmbeddedOne("name").Get("first_name"))

	t.Run("missing defaults are applied", func(t *testing.T) {
		delete(snapshot, "age")
		loaded, err := Load(registry, snapshot)
		require.NoError(t, err)
		assert.Equal(t, 100, loaded.Get("age"))
	})

	t.Run("missing discriminator", func(t *testing.T) {
		_, err := Load(registry, map[string]interface{}{"_id": "x"})
		assert.True(t, errors.Is(err, ErrMalformedSnapshot))
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Load(registry, map[string]interface{}{"_id": "x", "_type": "Ghost"})
		assert.True(t, errors.Is(err, schema.ErrUnknownType))
	})
}

func TestMarkPersisted(t *testing.T) {
	registry := testRegistry(t)
	doc := New(mustType(t, registry, "Person"))
	address := New(mustType(t, registry, "Address"))
	require.NoError(t, doc.Embed("addresses", address))
	require.NoError(t, doc.Set("title", "Sir"))

	doc.MarkPersisted()
	assert.True(t, doc.Persisted())
	assert.True(t, address.Persisted())
	assert.Empty(t, doc.ChangedFields())

	doc.MarkDestroyed()
	assert.True(t, doc.Destroyed())
	assert.True(t, address.Destroyed())
	assert.False(t, doc.Persisted())
}

func TestClone(t *testing.T) {
	registry := testRegistry(t)
	doc := New(mustType(t, registry, "Person"))
	address := New(mustType(t, registry, "Address"))
	require.NoError(t, doc.Embed("addresses", address))

	clone := doc.Clone()
	require.NoError(t, clone.Set("title", "Dame"))
	require.NoError(t, clone.Embedded("addresses")[0].Set("street", "Elm"))

	assert.Nil(t, doc.Get("title"))
	assert.Nil(t, address.Get("street"))
	assert.Equal(t, doc.ID(), clone.ID())
}

func TestAdopt(t *testing.T) {
	registry := testRegistry(t)
	person := mustType(t, registry, "Person")
	doc := New(person)

	staged := doc.Clone()
	require.NoError(t, staged.Set("title", "Dame"))
	require.NoError(t, staged.Embed("addresses", New(mustType(t, registry, "Address"))))
	assert.Nil(t, doc.Get("title"))

	require.NoError(t, doc.Adopt(staged))
	assert.Equal(t, "Dame", doc.Get("title"))
	assert.Len(t, doc.Embedded("addresses"), 1)
	assert.True(t, doc.Changed("title"))

	assert.Error(t, doc.Adopt(New(person)), "different identity")
}
