package logstore

import (
	"errors"
	"time"

	"github.com/rzbill/seglog/internal/segment"
	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

const (
	DefaultMaxSegmentBytes int64 = 64 << 20
	DefaultMaxEntryBytes         = 1 << 20
	DefaultIndexInterval         = 64
	DefaultFsyncInterval         = 5 * time.Millisecond
)

// Options configures a Log.
type Options struct {
	// Dir holds the segment files of this stream. Required.
	Dir string
	// Stream names the log in keys, logs and archiver notifications.
	Stream string
	// MaxSegmentBytes caps the record bytes of one segment (header excluded).
	MaxSegmentBytes int64
	// MaxSegmentAge rotates a non-empty segment once it is this old. Zero disables.
	MaxSegmentAge time.Duration
	// MaxEntryBytes caps a single payload. Clamped so one record always fits a segment.
	MaxEntryBytes int
	// Fsync selects when appends are flushed. Unspecified means always.
	Fsync pebblestore.FsyncMode
	// FsyncInterval is the group-commit window for FsyncModeInterval.
	FsyncInterval time.Duration
	// IndexInterval is the distance, in entries, between sparse index marks.
	IndexInterval int
	// Meta persists index marks, checkpoints and cursors. Optional.
	Meta *pebblestore.DB
	// Archiver is notified of removed segments. Optional.
	Archiver ArchiverHook
	// Logger receives lifecycle and error logs. Optional.
	Logger logpkg.Logger
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (o *Options) setDefaults() error {
	if o.Dir == "" {
		return errors.New("logstore: Options.Dir is required")
	}
	if o.Stream == "" {
		o.Stream = "default"
	}
	if o.MaxSegmentBytes <= 0 {
		o.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if o.MaxSegmentBytes <= segment.RecordOverhead {
		return errors.New("logstore: MaxSegmentBytes too small to hold a record")
	}
	if o.MaxEntryBytes <= 0 {
		o.MaxEntryBytes = DefaultMaxEntryBytes
	}
	if limit := o.MaxSegmentBytes - segment.RecordOverhead; int64(o.MaxEntryBytes) > limit {
		o.MaxEntryBytes = int(limit)
	}
	if o.MaxEntryBytes > segment.MaxPayloadSize {
		o.MaxEntryBytes = segment.MaxPayloadSize
	}
	if o.Fsync == pebblestore.FsyncModeUnspecified {
		o.Fsync = pebblestore.FsyncModeAlways
	}
	if o.Fsync == pebblestore.FsyncModeInterval && o.FsyncInterval <= 0 {
		o.FsyncInterval = DefaultFsyncInterval
	}
	if o.IndexInterval <= 0 {
		o.IndexInterval = DefaultIndexInterval
	}
	if o.Archiver == nil {
		o.Archiver = noopArchiver{}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return nil
}
