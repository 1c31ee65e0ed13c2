package pebblestore

import (
	"fmt"
	"strings"
)

// FsyncMode controls when writes are made durable. It governs both the metadata
// store's WAL and segment appends in the log store.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs before every write returns.
	FsyncModeAlways
	// FsyncModeInterval syncs at most once per interval; writes inside the
	// interval share one sync.
	FsyncModeInterval
	// FsyncModeNever leaves syncing to the operating system.
	FsyncModeNever
)

// String returns the config spelling of the mode.
func (m FsyncMode) String() string {
	switch m {
	case FsyncModeAlways:
		return "always"
	case FsyncModeInterval:
		return "interval"
	case FsyncModeNever:
		return "never"
	default:
		return "unspecified"
	}
}

// ParseFsyncMode parses "always", "interval" or "never". Empty means unspecified.
func ParseFsyncMode(s string) (FsyncMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return FsyncModeUnspecified, nil
	case "always":
		return FsyncModeAlways, nil
	case "interval":
		return FsyncModeInterval, nil
	case "never":
		return FsyncModeNever, nil
	}
	return FsyncModeUnspecified, fmt.Errorf("unknown fsync mode %q", s)
}
