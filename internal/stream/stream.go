// Package stream keeps the registry of log streams and their per-stream limits.
package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
)

// ErrInvalidName is returned for names that cannot be used as a directory name.
var ErrInvalidName = errors.New("stream: invalid name")

// ErrNotFound is returned when a stream is not registered.
var ErrNotFound = errors.New("stream: not found")

var nameRe = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// Meta holds stream metadata and optional limits overriding the global config.
type Meta struct {
	Name            string `json:"name"`
	CreatedAtMs     int64  `json:"createdAtMs"`
	MaxSegmentBytes int64  `json:"maxSegmentBytes,omitempty"`
	MaxEntryBytes   int    `json:"maxEntryBytes,omitempty"`
	// MaxSegmentAgeMs of zero inherits the global setting.
	MaxSegmentAgeMs int64 `json:"maxSegmentAgeMs,omitempty"`
}

// MaxSegmentAge returns the age limit as a duration.
func (m Meta) MaxSegmentAge() time.Duration { return time.Duration(m.MaxSegmentAgeMs) * time.Millisecond }

var metaPrefix = []byte("streammeta/")

func metaKey(name string) []byte {
	k := make([]byte, 0, len(metaPrefix)+len(name))
	k = append(k, metaPrefix...)
	k = append(k, name...)
	return k
}

// ValidateName checks that name is 1-64 characters of [a-z0-9_-].
func ValidateName(name string) error {
	if !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Ensure creates the stream record if absent and returns the effective meta.
// Idempotent: an existing record is returned unchanged and defaults are ignored.
func Ensure(db *pebblestore.DB, name string, defaults Meta) (Meta, error) {
	if err := ValidateName(name); err != nil {
		return Meta{}, err
	}
	key := metaKey(name)
	b, found, err := db.Lookup(key)
	if err != nil {
		return Meta{}, err
	}
	if found && len(b) > 0 {
		var m Meta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
		// undecodable record: rewrite with defaults
	}
	m := defaults
	m.Name = name
	m.CreatedAtMs = time.Now().UnixMilli()
	if b, err = json.Marshal(m); err != nil {
		return Meta{}, err
	}
	if err := db.Set(key, b); err != nil {
		return Meta{}, err
	}
	return m, nil
}

// Get loads a registered stream.
func Get(db *pebblestore.DB, name string) (Meta, error) {
	b, found, err := db.Lookup(metaKey(name))
	if err != nil {
		return Meta{}, err
	}
	if !found {
		return Meta{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, fmt.Errorf("stream %s: decode meta: %w", name, err)
	}
	return m, nil
}

// Delete removes the registry record of a stream. Missing streams report ErrNotFound.
func Delete(db *pebblestore.DB, name string) error {
	if _, err := Get(db, name); err != nil {
		return err
	}
	return db.Delete(metaKey(name))
}

// Unregister stages the removal of a stream's registry record in b, so callers
// can drop it together with the stream's other keys.
func Unregister(b *pebblestore.Batch, name string) error { return b.Remove(metaKey(name)) }

// List returns all registered streams in name order.
func List(db *pebblestore.DB) ([]Meta, error) {
	var out []Meta
	err := db.ScanPrefix(metaPrefix, func(_, value []byte) error {
		var m Meta
		if err := json.Unmarshal(value, &m); err != nil {
			return nil
		}
		out = append(out, m)
		return nil
	})
	return out, err
}
