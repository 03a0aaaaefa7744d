package tracking

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/conduit-lang/conduit-odm/internal/orm/codec"
)

// RedisSnapshotStore keeps version snapshots in Redis. Each snapshot is a
// BSON value written with SETNX; a sorted set per document lists versions.
type RedisSnapshotStore struct {
	client *redis.Client
	prefix string
}

// NewRedisSnapshotStore creates a snapshot store on an existing client
func NewRedisSnapshotStore(client *redis.Client, prefix string) *RedisSnapshotStore {
	if prefix == "" {
		prefix = "odm:"
	}
	return &RedisSnapshotStore{client: client, prefix: prefix}
}

func (r *RedisSnapshotStore) snapshotKey(id string, version int) string {
	return r.prefix + "snapshot:" + id + ":" + strconv.Itoa(version)
}

func (r *RedisSnapshotStore) versionsKey(id string) string {
	return r.prefix + "versions:" + id
}

// Put stores a snapshot, failing with ErrSnapshotExists if the version is taken
func (r *RedisSnapshotStore) Put(ctx context.Context, snapshot *VersionSnapshot) error {
	data, err := bson.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	created, err := r.client.SetNX(ctx, r.snapshotKey(snapshot.ID, snapshot.Version), data, 0).Result()
	if err != nil {
		return err
	}
	if !created {
		return fmt.Errorf("%s v%d: %w", snapshot.ID, snapshot.Version, ErrSnapshotExists)
	}

	return r.client.ZAdd(ctx, r.versionsKey(snapshot.ID), redis.Z{
		Score:  float64(snapshot.Version),
		Member: strconv.Itoa(snapshot.Version),
	}).Err()
}

// Get returns the snapshot for a version
func (r *RedisSnapshotStore) Get(ctx context.Context, id string, version int) (*VersionSnapshot, error) {
	data, err := r.client.Get(ctx, r.snapshotKey(id, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s v%d: %w", id, version, ErrSnapshotNotFound)
		}
		return nil, err
	}

	var snapshot VersionSnapshot
	if err := bson.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	snapshot.Taken = snapshot.Taken.UTC()
	attrs, _ := codec.Normalize(snapshot.Attributes).(map[string]interface{})
	snapshot.Attributes = attrs
	return &snapshot, nil
}

// Versions returns the retained versions of a document in ascending order
func (r *RedisSnapshotStore) Versions(ctx context.Context, id string) ([]int, error) {
	members, err := r.client.ZRange(ctx, r.versionsKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	versions := make([]int, 0, len(members))
	for _, member := range members {
		v, err := strconv.Atoi(member)
		if err != nil {
			return nil, fmt.Errorf("corrupt version %q for %s: %w", member, id, err)
		}
		versions = append(versions, v)
	}
	return versions, nil
}
