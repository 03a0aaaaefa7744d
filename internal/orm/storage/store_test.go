package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	person := schema.NewDocumentType("Person")
	person.AddField("ssn", schema.TypeString)
	person.AddField("age", schema.TypeInteger)
	person.AddField("title", schema.TypeString)
	person.Index(schema.Asc("ssn")).Unique()
	registry.MustRegister(person)

	doctor := schema.NewDocumentType("Doctor").Extends("Person")
	doctor.AddField("specialty", schema.TypeString)
	registry.MustRegister(doctor)

	return registry
}

func snapshot(id, typ string, attrs map[string]interface{}) Snapshot {
	s := Snapshot{schema.KeyID: id, schema.KeyType: typ}
	for k, v := range attrs {
		s[k] = v
	}
	return s
}

// runStoreContract exercises the behavior every Store must share
func runStoreContract(t *testing.T, newStore func(t *testing.T, registry *schema.Registry) Store) {
	ctx := context.Background()

	t.Run("persist and query", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		id, err := store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"age": 30, "title": "Sir"}))
		require.NoError(t, err)
		assert.Equal(t, "p1", id)

		seq, err := store.Query(ctx, "Person", nil)
		require.NoError(t, err)
		docs, err := Collect(seq)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 30, docs[0]["age"])
		assert.Equal(t, "Sir", docs[0]["title"])
	})

	t.Run("persist replaces by identity", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"age": 30}))
		require.NoError(t, err)
		_, err = store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"age": 31}))
		require.NoError(t, err)

		seq, _ := store.Query(ctx, "Person", nil)
		docs, err := Collect(seq)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, 31, docs[0]["age"])
	})

	t.Run("unique index rejects duplicates until the holder is removed", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"ssn": "123"}))
		require.NoError(t, err)

		_, err = store.Persist(ctx, "Person", snapshot("p2", "Person", map[string]interface{}{"ssn": "123"}))
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUniqueConstraintViolation))
		var violation *UniqueConstraintViolation
		require.True(t, errors.As(err, &violation))
		assert.Equal(t, "ssn_1", violation.Index)
		assert.Equal(t, "p1", violation.ExistingID)

		require.NoError(t, store.Remove(ctx, "Person", "p1"))

		_, err = store.Persist(ctx, "Person", snapshot("p2", "Person", map[string]interface{}{"ssn": "123"}))
		assert.NoError(t, err)
	})

	t.Run("resaving keeps its own key", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"ssn": "123"}))
		require.NoError(t, err)
		_, err = store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"ssn": "123", "age": 5}))
		require.NoError(t, err)

		_, err = store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"ssn": "456"}))
		require.NoError(t, err)
		_, err = store.Persist(ctx, "Person", snapshot("p2", "Person", map[string]interface{}{"ssn": "123"}))
		assert.NoError(t, err, "released key is reusable")
	})

	t.Run("unset unique fields never collide", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", nil))
		require.NoError(t, err)
		_, err = store.Persist(ctx, "Person", snapshot("p2", "Person", map[string]interface{}{"ssn": nil}))
		assert.NoError(t, err)
	})

	t.Run("specialized types share the base collection", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", map[string]interface{}{"ssn": "1"}))
		require.NoError(t, err)
		_, err = store.Persist(ctx, "Doctor", snapshot("d1", "Doctor", map[string]interface{}{"ssn": "2", "specialty": "surgery"}))
		require.NoError(t, err)

		_, err = store.Persist(ctx, "Doctor", snapshot("d2", "Doctor", map[string]interface{}{"ssn": "1"}))
		assert.True(t, IsUniqueViolation(err), "inherited unique index spans the collection")

		seq, _ := store.Query(ctx, "Person", nil)
		people, err := Collect(seq)
		require.NoError(t, err)
		assert.Len(t, people, 2)

		seq, _ = store.Query(ctx, "Doctor", nil)
		doctors, err := Collect(seq)
		require.NoError(t, err)
		require.Len(t, doctors, 1)
		assert.Equal(t, "d1", doctors[0][schema.KeyID])
	})

	t.Run("criteria filter and window", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)
		person, _ := registry.Lookup("Person")

		for _, p := range []struct {
			id  string
			age int
		}{{"a", 40}, {"b", 12}, {"c", 15}, {"d", 70}} {
			_, err := store.Persist(ctx, "Person", snapshot(p.id, "Person", map[string]interface{}{"age": p.age}))
			require.NoError(t, err)
		}

		criteria := query.New(person, nil).
			WhereOp("age", query.OpLessThan, 50).
			OrderBy("age", schema.Descending).
			Limit(2)
		seq, err := store.Query(ctx, "Person", criteria)
		require.NoError(t, err)

		docs, err := Collect(seq)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "a", docs[0][schema.KeyID])
		assert.Equal(t, "c", docs[1][schema.KeyID])
	})

	t.Run("sequences are lazy and restartable", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		seq, err := store.Query(ctx, "Person", nil)
		require.NoError(t, err)

		_, err = store.Persist(ctx, "Person", snapshot("p1", "Person", nil))
		require.NoError(t, err)

		first, err := Collect(seq)
		require.NoError(t, err)
		assert.Len(t, first, 1)

		_, err = store.Persist(ctx, "Person", snapshot("p2", "Person", nil))
		require.NoError(t, err)

		second, err := Collect(seq)
		require.NoError(t, err)
		assert.Len(t, second, 2)
	})

	t.Run("remove missing document", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		err := store.Remove(ctx, "Person", "missing")
		assert.True(t, IsNotFound(err))
	})

	t.Run("snapshot without identity", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Persist(ctx, "Person", Snapshot{"age": 1})
		assert.ErrorIs(t, err, ErrMissingIdentity)
	})

	t.Run("unknown type", func(t *testing.T) {
		registry := testRegistry(t)
		store := newStore(t, registry)

		_, err := store.Query(ctx, "Ghost", nil)
		assert.ErrorIs(t, err, schema.ErrUnknownType)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T, registry *schema.Registry) Store {
		return NewMemoryStore(registry, nil)
	})
}

func TestMemoryStore_Isolation(t *testing.T) {
	ctx := context.Background()
	registry := testRegistry(t)
	store := NewMemoryStore(registry, nil)

	original := snapshot("p1", "Person", map[string]interface{}{"title": "Sir"})
	_, err := store.Persist(ctx, "Person", original)
	require.NoError(t, err)
	original["title"] = "changed"

	seq, _ := store.Query(ctx, "Person", nil)
	doc, err := First(seq)
	require.NoError(t, err)
	assert.Equal(t, "Sir", doc["title"])

	doc["title"] = "mutated"
	seq, _ = store.Query(ctx, "Person", nil)
	again, err := First(seq)
	require.NoError(t, err)
	assert.Equal(t, "Sir", again["title"])
	assert.Equal(t, 1, store.Len("Doctor"))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	registry := testRegistry(t)
	store := NewMemoryStore(registry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Persist(ctx, "Person", snapshot("p1", "Person", nil))
	assert.ErrorIs(t, err, context.Canceled)

	seq, err := store.Query(ctx, "Person", nil)
	require.NoError(t, err)
	_, err = Collect(seq)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFirst_Empty(t *testing.T) {
	registry := testRegistry(t)
	store := NewMemoryStore(registry, nil)

	seq, err := store.Query(context.Background(), "Person", nil)
	require.NoError(t, err)
	_, err = First(seq)
	assert.ErrorIs(t, err, ErrNotFound)
}
