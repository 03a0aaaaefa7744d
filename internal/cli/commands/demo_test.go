package commands

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/conduit-lang/conduit-odm/internal/cli/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Storage:   config.StorageConfig{Driver: "memory"},
		Snapshots: config.SnapshotConfig{Backend: "memory"},
		Log:       config.LogConfig{Level: "error"},
	}
}

func runDemoWith(t *testing.T, cfg *config.Config) string {
	t.Helper()
	ctx := context.Background()

	rt, err := NewRuntime(ctx, cfg, zap.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	var out bytes.Buffer
	require.NoError(t, runDemo(ctx, &out, rt, true))
	return out.String()
}

func assertDemoOutput(t *testing.T, out string) {
	t.Helper()
	assert.Regexp(t, `rescored:\s+30\n`, out)
	assert.Regexp(t, `rescored:\s+27\n`, out)
	assert.Regexp(t, `age:\s+42\n`, out)
	for _, want := range []string{
		`post "On tea" rating 5`,
		"knight   1",
		"unique constraint violation",
		"Person     0 stored",
		"Post       0 stored",
		"Game       0 stored",
		"Preference 1 stored",
		`preference "Earl Grey" person_ids []`,
		"✓ demo complete",
	} {
		assert.Contains(t, out, want)
	}
}

func TestDemo_Memory(t *testing.T) {
	out := runDemoWith(t, testConfig())
	assertDemoOutput(t, out)
	assert.Contains(t, out, "retained versions: 1, 2")
}

func TestDemo_SQLite(t *testing.T) {
	cfg := testConfig()
	cfg.Storage = config.StorageConfig{Driver: "sqlite3", DSN: ":memory:", MaxOpenConns: 1}
	cfg.Snapshots.Backend = "none"

	out := runDemoWith(t, cfg)
	assertDemoOutput(t, out)
	assert.NotContains(t, out, "retained versions")
}

func TestDemo_RedisSnapshots(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := testConfig()
	cfg.Snapshots = config.SnapshotConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: mr.Addr(), Prefix: "demo:"},
	}

	out := runDemoWith(t, cfg)
	assertDemoOutput(t, out)
	assert.Contains(t, out, "retained versions: 1, 2")

	var snapshots int
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "demo:snapshot:") {
			snapshots++
		}
	}
	assert.Equal(t, 2, snapshots)
}

func TestNewRuntime_Errors(t *testing.T) {
	cfg := testConfig()
	cfg.Snapshots = config.SnapshotConfig{Backend: "redis", Redis: config.RedisConfig{Addr: "127.0.0.1:1"}}
	_, err := NewRuntime(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Storage = config.StorageConfig{Driver: "mysql", DSN: "x"}
	_, err = NewRuntime(context.Background(), cfg, zap.NewNop())
	assert.Error(t, err)
}
