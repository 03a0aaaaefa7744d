package tracking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrSnapshotExists is returned when a version snapshot is written twice
	ErrSnapshotExists = errors.New("version snapshot already exists")

	// ErrSnapshotNotFound is returned when no snapshot exists for a version
	ErrSnapshotNotFound = errors.New("version snapshot not found")
)

// VersionSnapshot is the retained state of a document at one version
type VersionSnapshot struct {
	ID         string                 `bson:"id"`
	Type       string                 `bson:"type"`
	Version    int                    `bson:"version"`
	Taken      time.Time              `bson:"taken"`
	Attributes map[string]interface{} `bson:"attributes"`
}

// SnapshotStore retains version snapshots keyed by (identity, version).
// Entries are write-once.
type SnapshotStore interface {
	Put(ctx context.Context, snapshot *VersionSnapshot) error
	Get(ctx context.Context, id string, version int) (*VersionSnapshot, error)
	Versions(ctx context.Context, id string) ([]int, error)
}

// MemorySnapshotStore keeps snapshots in process memory
type MemorySnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[string]map[int]*VersionSnapshot
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{
		snapshots: make(map[string]map[int]*VersionSnapshot),
	}
}

// Put stores a snapshot, failing with ErrSnapshotExists if the version is taken
func (s *MemorySnapshotStore) Put(ctx context.Context, snapshot *VersionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	versions := s.snapshots[snapshot.ID]
	if versions == nil {
		versions = make(map[int]*VersionSnapshot)
		s.snapshots[snapshot.ID] = versions
	}
	if _, exists := versions[snapshot.Version]; exists {
		return fmt.Errorf("%s v%d: %w", snapshot.ID, snapshot.Version, ErrSnapshotExists)
	}
	versions[snapshot.Version] = copySnapshot(snapshot)
	return nil
}

// Get returns a copy of the snapshot for a version
func (s *MemorySnapshotStore) Get(ctx context.Context, id string, version int) (*VersionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot, ok := s.snapshots[id][version]
	if !ok {
		return nil, fmt.Errorf("%s v%d: %w", id, version, ErrSnapshotNotFound)
	}
	return copySnapshot(snapshot), nil
}

// Versions returns the retained versions of a document in ascending order
func (s *MemorySnapshotStore) Versions(ctx context.Context, id string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make([]int, 0, len(s.snapshots[id]))
	for v := range s.snapshots[id] {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

func copySnapshot(s *VersionSnapshot) *VersionSnapshot {
	c := *s
	c.Attributes = copyMap(s.Attributes)
	return &c
}
