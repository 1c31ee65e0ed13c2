package logstore

import (
	"context"
	"encoding/binary"
	"sync"

	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
)

// metaStore holds auxiliary state that can be rebuilt from segments.
type metaStore interface {
	get(key []byte) ([]byte, bool, error)
	set(key, value []byte) error
	del(key []byte) error
}

type pebbleMeta struct{ db *pebblestore.DB }

func (m pebbleMeta) get(key []byte) ([]byte, bool, error) { return m.db.Lookup(key) }
func (m pebbleMeta) set(key, value []byte) error { return m.db.Set(key, value) }
func (m pebbleMeta) del(key []byte) error        { return m.db.Delete(key) }

// memMeta keeps the same state in memory when no Pebble store is configured.
type memMeta struct {
	mu sync.Mutex
	kv map[string][]byte
}

func newMemMeta() *memMeta { return &memMeta{kv: make(map[string][]byte)} }

func (m *memMeta) get(key []byte) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[string(key)]
	return append([]byte(nil), v...), ok, nil
}

func (m *memMeta) set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memMeta) del(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, string(key))
	return nil
}

// Checkpoint loads a named scan checkpoint (0 when absent).
func (l *Log) Checkpoint(name string) (uint64, error) {
	v, ok, err := l.meta.get(KeyCheckpoint(l.opts.Stream, name))
	if err != nil || !ok || len(v) < 8 {
		return 0, err
	}
	return binary.BigEndian.Uint64(v[:8]), nil
}

// SaveCheckpoint stores a named scan checkpoint. Zero clears it.
func (l *Log) SaveCheckpoint(_ context.Context, name string, v uint64) error {
	key := KeyCheckpoint(l.opts.Stream, name)
	if v == 0 {
		return l.meta.del(key)
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return l.meta.set(key, b[:])
}
