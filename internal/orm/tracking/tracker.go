package tracking

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Versionable is implemented by documents whose type declares versioning
type Versionable interface {
	Version() int
	SetVersion(version int)
}

// TimestampCapable is implemented by documents whose type declares timestamps
type TimestampCapable interface {
	CreatedAt() (time.Time, bool)
	UpdatedAt() (time.Time, bool)
	SetCreatedAt(t time.Time)
	SetUpdatedAt(t time.Time)
	ClearCreatedAt()
	ClearUpdatedAt()
}

// Capable exposes the capabilities a document's type declared. A type
// without the capability returns false.
type Capable interface {
	Versioning() (Versionable, bool)
	Timestamps() (TimestampCapable, bool)
}

// Snapshotter exposes the state retained for a version
type Snapshotter interface {
	Capable
	ID() string
	TypeName() string
	Snapshot() map[string]interface{}
}

// Clock returns the current time
type Clock func() time.Time

// Tracker stamps versions and timestamps on save
type Tracker struct {
	clock     Clock
	snapshots SnapshotStore
	logger    *zap.Logger
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock replaces the wall clock
func WithClock(clock Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// WithSnapshots enables retention of a snapshot per saved version
func WithSnapshots(store SnapshotStore) Option {
	return func(t *Tracker) {
		t.snapshots = store
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// NewTracker creates a new tracker
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Now returns the tracker's current time at the precision stores keep
func (t *Tracker) Now() time.Time {
	return t.clock().UTC().Truncate(time.Millisecond)
}

// Retaining returns true if snapshots are retained
func (t *Tracker) Retaining() bool {
	return t.snapshots != nil
}

// Snapshots returns the snapshot store, or nil
func (t *Tracker) Snapshots() SnapshotStore {
	return t.snapshots
}

// Stamp records the values a save overwrote so they can be restored
type Stamp struct {
	versions    Versionable
	prevVersion int

	timestamps  TimestampCapable
	prevCreated time.Time
	hadCreated  bool
	prevUpdated time.Time
	hadUpdated  bool
}

// Stamp bumps the version of a Versionable document by one and sets the
// timestamps of a TimestampCapable one. created_at is only set once.
func (t *Tracker) Stamp(doc Capable) *Stamp {
	stamp := &Stamp{}
	now := t.Now()

	if v, ok := doc.Versioning(); ok {
		stamp.versions = v
		stamp.prevVersion = v.Version()
		v.SetVersion(stamp.prevVersion + 1)
	}

	if ts, ok := doc.Timestamps(); ok {
		stamp.timestamps = ts
		stamp.prevCreated, stamp.hadCreated = ts.CreatedAt()
		stamp.prevUpdated, stamp.hadUpdated = ts.UpdatedAt()
		if !stamp.hadCreated {
			ts.SetCreatedAt(now)
		}
		ts.SetUpdatedAt(now)
	}

	return stamp
}

// Rollback restores the values the stamp overwrote
func (s *Stamp) Rollback() {
	if s.versions != nil {
		s.versions.SetVersion(s.prevVersion)
	}
	ts := s.timestamps
	if ts == nil {
		return
	}
	if s.hadCreated {
		ts.SetCreatedAt(s.prevCreated)
	} else {
		ts.ClearCreatedAt()
	}
	if s.hadUpdated {
		ts.SetUpdatedAt(s.prevUpdated)
	} else {
		ts.ClearUpdatedAt()
	}
}

// Retain stores the document's state under its current version
func (t *Tracker) Retain(ctx context.Context, doc Snapshotter) error {
	if t.snapshots == nil {
		return nil
	}
	v, ok := doc.Versioning()
	if !ok {
		return nil
	}

	snapshot := &VersionSnapshot{
		ID:         doc.ID(),
		Type:       doc.TypeName(),
		Version:    v.Version(),
		Taken:      t.Now(),
		Attributes: doc.Snapshot(),
	}
	if err := t.snapshots.Put(ctx, snapshot); err != nil {
		return fmt.Errorf("retain %s %s v%d: %w", snapshot.Type, snapshot.ID, snapshot.Version, err)
	}

	t.logger.Debug("retained version snapshot",
		zap.String("type", snapshot.Type),
		zap.String("id", snapshot.ID),
		zap.Int("version", snapshot.Version))
	return nil
}
