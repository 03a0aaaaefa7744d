// Package storage holds the collaborators that persist document snapshots.
//
// A snapshot is the flat attribute map produced by a document, carrying its
// identity under "_id" and its concrete type under "_type". Stores keep one
// collection per root type, so specialized types share their base's
// collection and are told apart by the discriminator.
package storage

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/conduit-lang/conduit-odm/internal/orm/query"
	"github.com/conduit-lang/conduit-odm/internal/orm/schema"
)

// Snapshot is the persisted form of a document
type Snapshot = map[string]interface{}

// Sequence is a lazy, restartable result set. Ranging over it again runs
// the query again.
type Sequence = iter.Seq2[Snapshot, error]

// Store is the storage collaborator consumed by the engine
type Store interface {
	// Persist inserts or replaces the snapshot and returns its identity.
	// It fails with a unique constraint violation when a unique index key
	// is already used by another stored document.
	Persist(ctx context.Context, typeName string, snapshot Snapshot) (string, error)

	// Remove deletes the document with the given identity
	Remove(ctx context.Context, typeName, id string) error

	// Query returns the documents of typeName (and its specializations)
	// matching criteria. A nil criteria matches everything.
	Query(ctx context.Context, typeName string, criteria *query.Criteria) (Sequence, error)
}

// Collect drains a sequence into a slice
func Collect(seq Sequence) ([]Snapshot, error) {
	var out []Snapshot
	for snapshot, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, nil
}

// First returns the first snapshot of a sequence, or ErrNotFound
func First(seq Sequence) (Snapshot, error) {
	for snapshot, err := range seq {
		if err != nil {
			return nil, err
		}
		return snapshot, nil
	}
	return nil, ErrNotFound
}

func identity(snapshot Snapshot) (string, error) {
	id, ok := snapshot[schema.KeyID].(string)
	if !ok || id == "" {
		return "", ErrMissingIdentity
	}
	return id, nil
}

// resolveType returns the concrete type of a snapshot, falling back to the
// type the caller persisted it as
func resolveType(registry *schema.Registry, typeName string, snapshot Snapshot) (*schema.DocumentType, error) {
	name := typeName
	if discriminator, ok := snapshot[schema.KeyType].(string); ok && discriminator != "" {
		name = discriminator
	}
	typ, err := registry.Lookup(name)
	if err != nil {
		return nil, err
	}
	if !typ.IsA(typeName) {
		return nil, fmt.Errorf("%w: %s is not a %s", schema.ErrTypeMismatch, name, typeName)
	}
	return typ, nil
}

type uniqueKey struct {
	index *schema.IndexDefinition
	value string
}

// uniqueKeys renders the unique index keys of a snapshot. Keys whose fields
// are all unset are skipped, so documents without a value never collide.
func uniqueKeys(typ *schema.DocumentType, snapshot Snapshot) []uniqueKey {
	var keys []uniqueKey
	for _, index := range typ.UniqueIndexes() {
		parts := make([]string, len(index.Keys))
		set := false
		for i, key := range index.Keys {
			value := query.Lookup(snapshot, key.Field)
			if value != nil {
				set = true
			}
			parts[i] = query.Canonical(value)
		}
		if !set {
			continue
		}
		keys = append(keys, uniqueKey{index: index, value: strings.Join(parts, "|")})
	}
	return keys
}

func typeFilter(registry *schema.Registry, typeName string) map[string]bool {
	types := make(map[string]bool)
	for _, name := range registry.Descendants(typeName) {
		types[name] = true
	}
	return types
}
