package attributes

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	person := schema.NewDocumentType("Person").With(schema.CapMultiParameter)
	person.AddField("title", schema.TypeString)
	person.AddField("age", schema.TypeInteger).WithDefault(100)
	person.AddField("dob", schema.TypeDate)
	person.AddField("lunch_time", schema.TypeTime)
	person.AddField("security_code", schema.TypeString).Protect()
	person.AddField("owner_id", schema.TypeInteger).Protect()
	person.Accessor("mode")
	person.EmbedsMany("favorites", "Favorite").AcceptsNested(schema.NestedOptions{AllowDestroy: true, Limit: 5})
	person.EmbedsMany("addresses", "Address").AcceptsNested(schema.NestedOptions{})
	person.EmbedsMany("videos", "Video").Protect()
	person.EmbedsMany("phone_numbers", "Phone")
	person.EmbedsOne("name", "Name").AcceptsNested(schema.NestedOptions{UpdateOnly: true})
	person.EmbedsOne("pet", "Animal").AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	person.HasMany("posts", "Post").AcceptsNested(schema.NestedOptions{})
	person.HasOne("game", "Game").AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	person.HasAndBelongsToMany("preferences", "Preference").InverseOf("people").AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	registry.MustRegister(person)

	for name, field := range map[string]string{
		"Favorite": "title",
		"Address":  "street",
		"Video":    "title",
		"Phone":    "number",
		"Name":     "first_name",
		"Animal":   "name",
	} {
		decl := schema.NewDocumentType(name)
		decl.AddField(field, schema.TypeString)
		registry.MustRegister(decl)
	}

	post := schema.NewDocumentType("Post")
	post.AddField("title", schema.TypeString)
	post.AddField("person_id", schema.TypeObject)
	registry.MustRegister(post)

	game := schema.NewDocumentType("Game")
	game.AddField("score", schema.TypeInteger)
	game.AddField("person_id", schema.TypeObject)
	registry.MustRegister(game)

	preference := schema.NewDocumentType("Preference")
	preference.AddField("value", schema.TypeString)
	preference.HasAndBelongsToMany("people", "Person").InverseOf("preferences")
	registry.MustRegister(preference)

	plain := schema.NewDocumentType("Plain")
	plain.AddField("dob", schema.TypeDate)
	registry.MustRegister(plain)

	return registry
}

func newDoc(t *testing.T, registry *schema.Registry, typeName string) *document.Document {
	t.Helper()
	typ, err := registry.Lookup(typeName)
	require.NoError(t, err)
	return document.New(typ)
}

func TestBulkAssign_Protection(t *testing.T) {
	registry := testRegistry(t)

	t.Run("protected fields are skipped", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		assigner := NewAssigner(registry)

		err := assigner.BulkAssign(doc, map[string]interface{}{
			"title":         "Sir",
			"security_code": "1234",
			"owner_id":      6,
		})
		require.NoError(t, err)
		assert.Equal(t, "Sir", doc.Get("title"))
		assert.Nil(t, doc.Get("security_code"))
		assert.Nil(t, doc.Get("owner_id"))
	})

	t.Run("direct setter ignores protection", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		require.NoError(t, doc.Set("security_code", "1234"))
		assert.Equal(t, "1234", doc.Get("security_code"))

		require.NoError(t, NewAssigner(registry).BulkAssign(doc, map[string]interface{}{"security_code": "9999"}))
		assert.Equal(t, "1234", doc.Get("security_code"))
	})

	t.Run("strict protection", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		assigner := NewAssigner(registry, WithStrictProtection())

		err := assigner.BulkAssign(doc, map[string]interface{}{"title": "Sir", "owner_id": 6})
		assert.ErrorIs(t, err, ErrProtectedAttribute)
		assert.Nil(t, doc.Get("title"), "nothing assigned when a key is rejected")
	})

	t.Run("protected relations and identity", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		video := newDoc(t, registry, "Video")
		id := doc.ID()

		err := NewAssigner(registry).BulkAssign(doc, map[string]interface{}{
			"videos": []*document.Document{video},
			"_id":    "other",
		})
		require.NoError(t, err)
		assert.Empty(t, doc.Embedded("videos"))
		assert.Equal(t, id, doc.ID())
	})
}

func TestBulkAssign_Keys(t *testing.T) {
	registry := testRegistry(t)
	assigner := NewAssigner(registry)

	t.Run("virtual attributes", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		require.NoError(t, assigner.BulkAssign(doc, map[string]interface{}{"mode": "strict"}))
		assert.Equal(t, "strict", doc.Get("mode"))
	})

	t.Run("unknown attribute", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"title": "Sir", "nickname": "x"})
		assert.ErrorIs(t, err, ErrUnknownAttribute)
		assert.Nil(t, doc.Get("title"))
	})

	t.Run("nested attributes on a relation without them", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"phone_numbers_attributes": []interface{}{}})
		assert.ErrorIs(t, err, ErrNestedNotAccepted)
	})

	t.Run("type mismatch", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"age": "old"})
		assert.ErrorIs(t, err, schema.ErrTypeMismatch)
	})

	t.Run("documents assigned to relations", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		phone := newDoc(t, registry, "Phone")
		post := newDoc(t, registry, "Post")

		err := assigner.BulkAssign(doc, map[string]interface{}{
			"phone_numbers": []*document.Document{phone},
			"posts":         []*document.Document{post},
		})
		require.NoError(t, err)
		assert.Len(t, doc.Embedded("phone_numbers"), 1)
		assert.Len(t, doc.Related("posts"), 1)
		assert.Equal(t, doc.ID(), post.Get("person_id"))
	})

	t.Run("nested routing", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{
			"title": "Sir",
			"addresses_attributes": []interface{}{
				map[string]interface{}{"street": "Bond"},
			},
		})
		require.NoError(t, err)
		require.Len(t, doc.Embedded("addresses"), 1)
		assert.Equal(t, "Bond", doc.Embedded("addresses")[0].Get("street"))
	})
}

func TestBulkAssign_MultiParameter(t *testing.T) {
	registry := testRegistry(t)
	assigner := NewAssigner(registry)

	t.Run("date", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{
			"dob(1i)": "1980",
			"dob(2i)": "7",
			"dob(3i)": 12,
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(1980, 7, 12, 0, 0, 0, 0, time.UTC), doc.Get("dob"))
	})

	t.Run("time", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{
			"lunch_time(1i)": "2024",
			"lunch_time(2i)": "3",
			"lunch_time(3i)": "1",
			"lunch_time(4i)": "12",
			"lunch_time(5i)": "30",
		})
		require.NoError(t, err)
		assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), doc.Get("lunch_time"))
	})

	t.Run("blank parts", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"dob(1i)": "", "dob(2i)": ""})
		require.NoError(t, err)
		assert.Nil(t, doc.Get("dob"))
	})

	t.Run("invalid part", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"dob(1i)": "nineteen"})
		assert.ErrorIs(t, err, ErrMultiParameter)
	})

	t.Run("type without the capability", func(t *testing.T) {
		doc := newDoc(t, registry, "Plain")
		err := assigner.BulkAssign(doc, map[string]interface{}{"dob(1i)": "1980"})
		assert.ErrorIs(t, err, ErrUnknownAttribute)
	})

	t.Run("undeclared field", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{"wedding(1i)": "1980"})
		assert.True(t, errors.Is(err, ErrUnknownAttribute))
	})
}

func TestBulkAssign_AllOrNothing(t *testing.T) {
	registry := testRegistry(t)
	assigner := NewAssigner(registry)

	t.Run("failing nested call", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		require.NoError(t, assigner.BulkAssign(doc, map[string]interface{}{
			"title":                "Mr",
			"addresses_attributes": []interface{}{map[string]interface{}{"street": "Elm"}},
		}))
		before := doc.Snapshot()
		changed := doc.ChangedFields()

		six := make([]interface{}, 6)
		for i := range six {
			six[i] = map[string]interface{}{"title": "book"}
		}
		err := assigner.BulkAssign(doc, map[string]interface{}{
			"addresses_attributes": []interface{}{map[string]interface{}{"street": "Bond"}},
			"age":                  30,
			"favorites_attributes": six,
			"title":                "Sir",
		})

		var limitErr *NestedAttributeLimitExceededError
		require.True(t, errors.As(err, &limitErr))
		assert.Equal(t, before, doc.Snapshot())
		assert.Equal(t, changed, doc.ChangedFields())
		assert.Equal(t, []interface{}{"Elm"}, streets(doc.Embedded("addresses")))
	})

	t.Run("type mismatch after earlier keys", func(t *testing.T) {
		doc := newDoc(t, registry, "Person")
		err := assigner.BulkAssign(doc, map[string]interface{}{
			"age":        30,
			"dob":        "1990-05-01",
			"lunch_time": "noon",
		})
		assert.ErrorIs(t, err, schema.ErrTypeMismatch)
		assert.Equal(t, 100, doc.Get("age"))
		assert.Nil(t, doc.Get("dob"))
		assert.Nil(t, doc.Get("lunch_time"))
	})
}
