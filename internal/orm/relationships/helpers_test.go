package relationships

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	person := schema.NewDocumentType("Person")
	person.AddField("title", schema.TypeString)
	person.EmbedsMany("favorites", "Favorite").OrderBy("title", schema.Descending)
	person.EmbedsMany("addresses", "Address").As("addressable").WithHelper(&schema.Helper{
		Values:  map[string]interface{}{"extension": "Testing"},
		Finders: map[string]string{"find_by_street": "street"},
	})
	person.EmbedsOne("name", "Name").WithHelper(&schema.Helper{
		Values: map[string]interface{}{"extension": "Testing"},
		Checks: map[string]schema.CheckFunc{
			"dawkins?": func(attrs map[string]interface{}) bool {
				return attrs["first_name"] == "Richard" && attrs["last_name"] == "Dawkins"
			},
		},
	})
	person.HasMany("posts", "Post").OrderBy("rating", schema.Descending)
	person.HasOne("game", "Game")
	person.HasMany("notes", "Note").As("notable")
	person.HasAndBelongsToMany("preferences", "Preference").InverseOf("people")
	person.HasAndBelongsToMany("houses", "House")
	registry.MustRegister(person)

	favorite := schema.NewDocumentType("Favorite")
	favorite.AddField("title", schema.TypeString)
	registry.MustRegister(favorite)

	address := schema.NewDocumentType("Address")
	address.AddField("street", schema.TypeString)
	registry.MustRegister(address)

	name := schema.NewDocumentType("Name")
	name.AddField("first_name", schema.TypeString)
	name.AddField("last_name", schema.TypeString)
	registry.MustRegister(name)

	post := schema.NewDocumentType("Post")
	post.AddField("title", schema.TypeString)
	post.AddField("rating", schema.TypeInteger)
	post.AddField("person_id", schema.TypeObject)
	post.HasMany("comments", "Comment")
	registry.MustRegister(post)

	comment := schema.NewDocumentType("Comment")
	comment.AddField("text", schema.TypeString)
	comment.AddField("post_id", schema.TypeObject)
	registry.MustRegister(comment)

	game := schema.NewDocumentType("Game")
	game.AddField("score", schema.TypeInteger)
	game.AddField("person_id", schema.TypeObject)
	registry.MustRegister(game)

	note := schema.NewDocumentType("Note")
	note.AddField("body", schema.TypeString)
	registry.MustRegister(note)

	preference := schema.NewDocumentType("Preference")
	preference.AddField("value", schema.TypeString)
	preference.HasAndBelongsToMany("people", "Person").InverseOf("preferences")
	registry.MustRegister(preference)

	house := schema.NewDocumentType("House")
	house.AddField("name", schema.TypeString)
	registry.MustRegister(house)

	doctor := schema.NewDocumentType("Doctor").Extends("Person")
	registry.MustRegister(doctor)

	return registry
}

func newDoc(t *testing.T, registry *schema.Registry, typeName string, attrs map[string]interface{}) *document.Document {
	t.Helper()
	typ, err := registry.Lookup(typeName)
	require.NoError(t, err)
	doc := document.New(typ)
	for k, v := range attrs {
		require.NoError(t, doc.Set(k, v))
	}
	return doc
}

func relation(t *testing.T, registry *schema.Registry, typeName, name string) *schema.RelationDefinition {
	t.Helper()
	typ, err := registry.Lookup(typeName)
	require.NoError(t, err)
	rel, ok := typ.Relation(name)
	require.True(t, ok)
	return rel
}
