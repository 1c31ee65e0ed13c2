package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	DataDir                string          `json:"dataDir" yaml:"dataDir"`
	DefaultStream          string          `json:"defaultStream" yaml:"defaultStream"`
	AllowAutoCreateStreams bool            `json:"allowAutoCreateStreams" yaml:"allowAutoCreateStreams"`
	MaxStreams             int             `json:"maxStreams" yaml:"maxStreams"`
	Storage                StorageConfig   `json:"storage" yaml:"storage"`
	Retention              RetentionConfig `json:"retention" yaml:"retention"`
	Verify                 VerifyConfig    `json:"verify" yaml:"verify"`
	Log                    LogConfig       `json:"log" yaml:"log"`
}

// StorageConfig captures segment and durability settings shared by all streams.
type StorageConfig struct {
	Fsync           string   `json:"fsync" yaml:"fsync"`
	FsyncInterval   Duration `json:"fsyncInterval" yaml:"fsyncInterval"`
	MaxSegmentBytes int64    `json:"maxSegmentBytes" yaml:"maxSegmentBytes"`
	MaxSegmentAge   Duration `json:"maxSegmentAge" yaml:"maxSegmentAge"`
	MaxEntryBytes   int      `json:"maxEntryBytes" yaml:"maxEntryBytes"`
	IndexInterval   int      `json:"indexInterval" yaml:"indexInterval"`
	// MetaCacheBytes sizes the metadata store's block cache; zero keeps Pebble's default.
	MetaCacheBytes int64 `json:"metaCacheBytes" yaml:"metaCacheBytes"`
}

// RetentionConfig drives the periodic retention pass.
type RetentionConfig struct {
	MaxAge       Duration `json:"maxAge" yaml:"maxAge"`
	MaxBytes     int64    `json:"maxBytes" yaml:"maxBytes"`
	ArchiveDir   string   `json:"archiveDir" yaml:"archiveDir"`
	Interval     Duration `json:"interval" yaml:"interval"`
	Throttle     Duration `json:"throttle" yaml:"throttle"`
	GrowthWindow Duration `json:"growthWindow" yaml:"growthWindow"`
}

// VerifyConfig drives the periodic integrity pass. A zero interval disables it.
type VerifyConfig struct {
	Interval Duration `json:"interval" yaml:"interval"`
}

// LogConfig selects level and format of process logs.
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultStream:          "default",
		AllowAutoCreateStreams: true,
		Storage: StorageConfig{
			Fsync:           "always",
			FsyncInterval:   Duration(5 * time.Millisecond),
			MaxSegmentBytes: 64 << 20,
			MaxEntryBytes:   1 << 20,
			IndexInterval:   64,
		},
		Retention: RetentionConfig{
			MaxAge:       Duration(7 * 24 * time.Hour),
			Interval:     Duration(5 * time.Minute),
			GrowthWindow: Duration(24 * time.Hour),
		},
		Verify: VerifyConfig{Interval: Duration(time.Hour)},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	return cfg, nil
}

// FsyncMode parses the configured fsync mode.
func (c Config) FsyncMode() (pebblestore.FsyncMode, error) {
	return pebblestore.ParseFsyncMode(c.Storage.Fsync)
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := c.FsyncMode(); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.MaxSegmentBytes < 0 {
		errs = append(errs, errors.New("storage.maxSegmentBytes must not be negative"))
	}
	if c.Storage.MaxEntryBytes < 0 {
		errs = append(errs, errors.New("storage.maxEntryBytes must not be negative"))
	}
	if c.Storage.MaxSegmentBytes > 0 && int64(c.Storage.MaxEntryBytes) >= c.Storage.MaxSegmentBytes {
		errs = append(errs, fmt.Errorf("storage.maxEntryBytes %d must be below maxSegmentBytes %d", c.Storage.MaxEntryBytes, c.Storage.MaxSegmentBytes))
	}
	if c.Storage.MetaCacheBytes < 0 {
		errs = append(errs, errors.New("storage.metaCacheBytes must not be negative"))
	}
	if c.Storage.MaxSegmentAge < 0 || c.Storage.FsyncInterval < 0 {
		errs = append(errs, errors.New("storage durations must not be negative"))
	}
	if c.Retention.MaxAge < 0 || c.Retention.MaxBytes < 0 || c.Retention.Interval < 0 {
		errs = append(errs, errors.New("retention limits must not be negative"))
	}
	if c.Verify.Interval < 0 {
		errs = append(errs, errors.New("verify.interval must not be negative"))
	}
	if _, err := logpkg.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	return errors.Join(errs...)
}
