package logstore

import (
	"encoding/binary"
)

// CommitCursor stores the last processed sequence for a reader group idempotently.
// If seq is lower than the stored one, the commit is ignored.
func (l *Log) CommitCursor(group string, seq uint64) error {
	key := KeyCursor(l.opts.Stream, group)
	cur, ok, err := l.meta.get(key)
	if err != nil {
		return err
	}
	if ok && len(cur) >= 8 {
		if seq <= binary.BigEndian.Uint64(cur[:8]) {
			return nil
		}
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return l.meta.set(key, b[:])
}

// GetCursor loads the committed sequence for a reader group.
func (l *Log) GetCursor(group string) (uint64, bool) {
	cur, ok, err := l.meta.get(KeyCursor(l.opts.Stream, group))
	if err != nil || !ok || len(cur) < 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(cur[:8]), true
}
