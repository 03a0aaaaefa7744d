package crud

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/orm/document"
	"github.com/conduit-lang/conduit-odm/internal/orm/hooks"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
	"github.com/conduit-lang/conduit-odm/internal/orm/storage"
	"github.com/conduit-lang/conduit-odm/internal/orm/tracking"
)

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	registry := schema.NewRegistry()

	person := schema.NewDocumentType("Person").With(schema.CapTimestamps | schema.CapVersioning)
	person.AddField("title", schema.TypeString)
	person.AddField("ssn", schema.TypeString).Without(regexp.MustCompile(`\$\$\$`), "")
	person.AddField("age", schema.TypeInteger).WithDefault(100)
	person.Index(schema.Asc("ssn")).Unique()
	person.EmbedsMany("addresses", "Address")
	person.HasMany("posts", "Post").Dependent(schema.CascadeDestroy).WithAutosave().OrderBy("title", schema.Ascending)
	person.HasOne("game", "Game").Dependent(schema.CascadeDelete)
	person.HasMany("notes", "Note").As("notable").Dependent(schema.CascadeNullify)
	person.HasAndBelongsToMany("preferences", "Preference").
		InverseOf("people").
		Dependent(schema.CascadeNullify).
		AcceptsNested(schema.NestedOptions{AllowDestroy: true})
	registry.MustRegister(person)

	doctor := schema.NewDocumentType("Doctor").Extends("Person")
	doctor.AddField("specialty", schema.TypeString)
	registry.MustRegister(doctor)

	address := schema.NewDocumentType("Address")
	address.AddField("street", schema.TypeString).Required()
	registry.MustRegister(address)

	post := schema.NewDocumentType("Post")
	post.AddField("title", schema.TypeString)
	post.AddField("person_id", schema.TypeObject)
	post.HasMany("comments", "Comment").Dependent(schema.CascadeDestroy)
	registry.MustRegister(post)

	comment := schema.NewDocumentType("Comment")
	comment.AddField("body", schema.TypeString)
	comment.AddField("post_id", schema.TypeObject)
	registry.MustRegister(comment)

	game := schema.NewDocumentType("Game")
	game.AddField("score", schema.TypeInteger)
	game.AddField("person_id", schema.TypeObject)
	registry.MustRegister(game)

	note := schema.NewDocumentType("Note")
	note.AddField("body", schema.TypeString)
	note.AddField("notable_id", schema.TypeObject)
	note.AddField("notable_type", schema.TypeString)
	registry.MustRegister(note)

	preference := schema.NewDocumentType("Preference")
	preference.AddField("value", schema.TypeString)
	preference.HasAndBelongsToMany("people", "Person").InverseOf("preferences")
	registry.MustRegister(preference)

	require.NoError(t, registry.Validate())
	return registry
}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	registry  *schema.Registry
	store     *storage.MemoryStore
	snapshots *tracking.MemorySnapshotStore
	clock     *clock
	hooks     *hooks.Executor
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registry := testRegistry(t)
	f := &fixture{
		registry:  registry,
		store:     storage.NewMemoryStore(registry, zap.NewNop()),
		snapshots: tracking.NewMemorySnapshotStore(),
		clock:     newClock(),
		hooks:     hooks.NewExecutor(nil, nil, zap.NewNop()),
	}
	tracker := tracking.NewTracker(tracking.WithClock(f.clock.Now), tracking.WithSnapshots(f.snapshots))
	f.engine = NewEngine(registry, f.store, WithTracker(tracker), WithHooks(f.hooks))
	return f
}

func (f *fixture) newDoc(t *testing.T, typeName string, attrs map[string]interface{}) *document.Document {
	t.Helper()
	doc, err := f.engine.New(typeName)
	require.NoError(t, err)
	for name, value := range attrs {
		require.NoError(t, doc.Set(name, value))
	}
	return doc
}

func (f *fixture) create(t *testing.T, typeName string, attrs map[string]interface{}) *document.Document {
	t.Helper()
	doc := f.newDoc(t, typeName, attrs)
	require.NoError(t, f.engine.Save(context.Background(), doc))
	return doc
}

func (f *fixture) relation(t *testing.T, typeName, name string) *schema.RelationDefinition {
	t.Helper()
	typ, err := f.registry.Lookup(typeName)
	require.NoError(t, err)
	rel, ok := typ.Relation(name)
	require.True(t, ok)
	return rel
}

// recorder registers hooks that append "<type>:<hook>" to calls
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hook(label string) *hooks.Hook {
	return &hooks.Hook{Fn: func(ctx *hooks.Context, rec hooks.Record) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, label)
		return nil
	}}
}

// failingStore fails Remove for the listed identities
type failingStore struct {
	*storage.MemoryStore
	failRemove map[string]error
}

func (s *failingStore) Remove(ctx context.Context, typeName, id string) error {
	if err, ok := s.failRemove[id]; ok {
		return err
	}
	return s.MemoryStore.Remove(ctx, typeName, id)
}
