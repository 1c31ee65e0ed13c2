package config

import (
	"os"
	"strconv"
	"time"
)

// FromEnv overlays SEGLOG_* environment variables onto cfg. Malformed values are ignored.
func FromEnv(cfg *Config) {
	str := func(name string, dst *string) {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *Duration) {
		if v := os.Getenv(name); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = Duration(d)
			}
		}
	}
	i64 := func(name string, dst *int64) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	num := func(name string, dst *int) {
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str("SEGLOG_DATA_DIR", &cfg.DataDir)
	str("SEGLOG_DEFAULT_STREAM", &cfg.DefaultStream)
	if v := os.Getenv("SEGLOG_ALLOW_AUTO_CREATE_STREAMS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowAutoCreateStreams = b
		}
	}
	num("SEGLOG_MAX_STREAMS", &cfg.MaxStreams)

	str("SEGLOG_FSYNC", &cfg.Storage.Fsync)
	dur("SEGLOG_FSYNC_INTERVAL", &cfg.Storage.FsyncInterval)
	i64("SEGLOG_MAX_SEGMENT_BYTES", &cfg.Storage.MaxSegmentBytes)
	dur("SEGLOG_MAX_SEGMENT_AGE", &cfg.Storage.MaxSegmentAge)
	num("SEGLOG_MAX_ENTRY_BYTES", &cfg.Storage.MaxEntryBytes)
	num("SEGLOG_INDEX_INTERVAL", &cfg.Storage.IndexInterval)
	i64("SEGLOG_META_CACHE_BYTES", &cfg.Storage.MetaCacheBytes)

	dur("SEGLOG_RETENTION_MAX_AGE", &cfg.Retention.MaxAge)
	i64("SEGLOG_RETENTION_MAX_BYTES", &cfg.Retention.MaxBytes)
	str("SEGLOG_RETENTION_ARCHIVE_DIR", &cfg.Retention.ArchiveDir)
	dur("SEGLOG_RETENTION_INTERVAL", &cfg.Retention.Interval)
	dur("SEGLOG_GROWTH_WINDOW", &cfg.Retention.GrowthWindow)
	dur("SEGLOG_VERIFY_INTERVAL", &cfg.Verify.Interval)

	str("SEGLOG_LOG_LEVEL", &cfg.Log.Level)
	str("SEGLOG_LOG_FORMAT", &cfg.Log.Format)
}
