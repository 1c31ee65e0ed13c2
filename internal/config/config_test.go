package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "default", cfg.DefaultStream)
	assert.True(t, cfg.AllowAutoCreateStreams)
	assert.Equal(t, int64(64<<20), cfg.Storage.MaxSegmentBytes)
	mode, err := cfg.FsyncMode()
	require.NoError(t, err)
	assert.Equal(t, pebblestore.FsyncModeAlways, mode)
}

func TestLoadJSON(t *testing.T) {
	file := filepath.Join(t.TempDir(), "seglog.json")
	data := []byte(`{"dataDir":"/srv/seglog","storage":{"fsync":"interval","fsyncInterval":"10ms","maxSegmentBytes":1048576},"retention":{"maxAge":"48h","interval":60000}}`)
	require.NoError(t, os.WriteFile(file, data, 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "/srv/seglog", cfg.DataDir)
	assert.Equal(t, "interval", cfg.Storage.Fsync)
	assert.Equal(t, 10*time.Millisecond, cfg.Storage.FsyncInterval.D())
	assert.Equal(t, int64(1<<20), cfg.Storage.MaxSegmentBytes)
	assert.Equal(t, 48*time.Hour, cfg.Retention.MaxAge.D())
	assert.Equal(t, time.Minute, cfg.Retention.Interval.D())
	// untouched fields keep their defaults
	assert.Equal(t, 1<<20, cfg.Storage.MaxEntryBytes)
}

func TestLoadYAML(t *testing.T) {
	file := filepath.Join(t.TempDir(), "seglog.yaml")
	data := []byte(`
dataDir: /srv/seglog
defaultStream: chat
storage:
  fsync: never
  maxSegmentAge: 1h
  maxSegmentBytes: 2097152
retention:
  maxBytes: 1073741824
  archiveDir: /srv/archive
  throttle: 250
verify:
  interval: 30m
log:
  level: debug
  format: json
`)
	require.NoError(t, os.WriteFile(file, data, 0o644))

	cfg, err := Load(file)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "chat", cfg.DefaultStream)
	assert.Equal(t, time.Hour, cfg.Storage.MaxSegmentAge.D())
	assert.Equal(t, int64(1<<30), cfg.Retention.MaxBytes)
	assert.Equal(t, "/srv/archive", cfg.Retention.ArchiveDir)
	assert.Equal(t, 250*time.Millisecond, cfg.Retention.Throttle.D())
	assert.Equal(t, 30*time.Minute, cfg.Verify.Interval.D())
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	file := filepath.Join(t.TempDir(), "bad.yml")
	require.NoError(t, os.WriteFile(file, []byte("retention:\n  maxAge: soon\n"), 0o644))
	_, err := Load(file)
	require.Error(t, err)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("SEGLOG_DATA_DIR", "/env/data")
	t.Setenv("SEGLOG_ALLOW_AUTO_CREATE_STREAMS", "false")
	t.Setenv("SEGLOG_MAX_SEGMENT_BYTES", "4096")
	t.Setenv("SEGLOG_RETENTION_MAX_AGE", "72h")
	t.Setenv("SEGLOG_FSYNC", "interval")
	t.Setenv("SEGLOG_INDEX_INTERVAL", "not-a-number")
	t.Setenv("SEGLOG_META_CACHE_BYTES", "8388608")
	FromEnv(&cfg)

	assert.Equal(t, "/env/data", cfg.DataDir)
	assert.False(t, cfg.AllowAutoCreateStreams)
	assert.Equal(t, int64(4096), cfg.Storage.MaxSegmentBytes)
	assert.Equal(t, 72*time.Hour, cfg.Retention.MaxAge.D())
	assert.Equal(t, "interval", cfg.Storage.Fsync)
	assert.Equal(t, 64, cfg.Storage.IndexInterval)
	assert.Equal(t, int64(8<<20), cfg.Storage.MetaCacheBytes)
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Fsync = "sometimes"
	cfg.Storage.MaxEntryBytes = int(cfg.Storage.MaxSegmentBytes)
	cfg.Log.Format = "xml"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fsync")
	assert.Contains(t, err.Error(), "maxEntryBytes")
	assert.Contains(t, err.Error(), "xml")
}
