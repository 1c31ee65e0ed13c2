package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"

	logpkg "github.com/rzbill/seglog/pkg/log"
)

const defaultGroupCommit = 5 * time.Millisecond

var errEmptyPrefix = errors.New("pebble: empty prefix")

// Options configures the metadata store.
type Options struct {
	// DataDir is the Pebble directory, usually <data dir>/meta.
	DataDir string
	Fsync   FsyncMode
	// FsyncInterval bounds WAL sync latency in FsyncModeInterval. Defaults to 5ms.
	FsyncInterval time.Duration
	// CacheBytes sizes Pebble's block cache. Zero keeps Pebble's default.
	CacheBytes int64
	Metrics    MetricsHook
	// Logger receives Pebble's internal messages at debug and error level.
	Logger logpkg.Logger
}

// MetricsHook observes metadata traffic. Write and Read fire per key; Commit
// fires once per committed batch, including the ones behind Set and Delete.
type MetricsHook interface {
	ObserveWrite(elapsed time.Duration, bytes int)
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveCommit(elapsed time.Duration, ops int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveWrite(time.Duration, int)  {}
func (nopMetrics) ObserveRead(time.Duration, int)   {}
func (nopMetrics) ObserveCommit(time.Duration, int) {}

// pebbleLogger routes Pebble's printf-style logging into logpkg.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// DB is the metadata store handle. It is safe for concurrent use.
type DB struct {
	inner   *pebble.DB
	wo      *pebble.WriteOptions
	metrics MetricsHook
}

// Open creates or opens the store under opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: Options.DataDir is required")
	}
	po := &pebble.Options{}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{l: opts.Logger}
	}
	if opts.CacheBytes > 0 {
		cache := pebble.NewCache(opts.CacheBytes)
		defer cache.Unref()
		po.Cache = cache
	}

	wo := pebble.NoSync
	switch opts.Fsync {
	case FsyncModeAlways:
		wo = pebble.Sync
	case FsyncModeInterval:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultGroupCommit
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	case FsyncModeNever:
	default:
		po.WALMinSyncInterval = func() time.Duration { return defaultGroupCommit }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	return &DB{inner: inner, wo: wo, metrics: metrics}, nil
}

// Close closes the store. Closing a nil or closed DB is a no-op.
func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	err := db.inner.Close()
	db.inner = nil
	return err
}

// Batch collects writes applied atomically by Update.
type Batch struct {
	b *pebble.Batch
}

// Put stages key=value.
func (b *Batch) Put(key, value []byte) error { return b.b.Set(key, value, nil) }

// Remove stages the deletion of key.
func (b *Batch) Remove(key []byte) error { return b.b.Delete(key, nil) }

// DropPrefix stages a range deletion of every key starting with prefix.
func (b *Batch) DropPrefix(prefix []byte) error {
	if len(prefix) == 0 {
		return errEmptyPrefix
	}
	return b.b.DeleteRange(prefix, prefixUpperBound(prefix), nil)
}

// Update runs fn against a fresh batch and commits it with the store's fsync
// mode. Nothing is written when fn or ctx fails.
func (db *DB) Update(ctx context.Context, fn func(*Batch) error) error {
	b := db.inner.NewBatch()
	defer b.Close()
	if err := fn(&Batch{b: b}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops := int(b.Count())
	if err := b.Commit(db.wo); err != nil {
		return err
	}
	db.metrics.ObserveCommit(time.Since(start), ops)
	return nil
}

// Set writes one key.
func (db *DB) Set(key, value []byte) error {
	start := time.Now()
	if err := db.Update(context.Background(), func(b *Batch) error { return b.Put(key, value) }); err != nil {
		return err
	}
	db.metrics.ObserveWrite(time.Since(start), len(key)+len(value))
	return nil
}

// Delete removes one key. Deleting a missing key is not an error.
func (db *DB) Delete(key []byte) error {
	return db.Update(context.Background(), func(b *Batch) error { return b.Remove(key) })
}

// DeletePrefix range-deletes every key under each prefix in a single batch.
func (db *DB) DeletePrefix(ctx context.Context, prefixes ...[]byte) error {
	return db.Update(ctx, func(b *Batch) error {
		for _, p := range prefixes {
			if err := b.DropPrefix(p); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get returns a copy of the value for key, or an error matching IsNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	val, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), val...)
	_ = closer.Close()
	db.metrics.ObserveRead(time.Since(start), len(out))
	return out, nil
}

// Lookup is Get with a found flag in place of the not-found error.
func (db *DB) Lookup(key []byte) ([]byte, bool, error) {
	v, err := db.Get(key)
	switch {
	case err == nil:
		return v, true, nil
	case IsNotFound(err):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Ping checks that the store can serve reads.
func (db *DB) Ping() error {
	if db == nil || db.inner == nil {
		return errors.New("pebble: closed")
	}
	iter, err := db.inner.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	iter.First()
	if err := iter.Error(); err != nil {
		_ = iter.Close()
		return err
	}
	return iter.Close()
}

// ScanPrefix calls fn for every key under prefix in ascending order. key and value
// are only valid during the call; a non-nil error from fn stops the scan.
func (db *DB) ScanPrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := db.inner.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixUpperBound(prefix)})
	if err != nil {
		return err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// CompactPrefix compacts the keys under prefix so earlier range deletions free disk.
func (db *DB) CompactPrefix(prefix []byte) error {
	if len(prefix) == 0 {
		return errEmptyPrefix
	}
	return db.inner.Compact(prefix, prefixUpperBound(prefix), true)
}

// IsNotFound reports whether err is Pebble's not-found error.
func IsNotFound(err error) bool { return errors.Is(err, pebble.ErrNotFound) }

// prefixUpperBound returns the smallest key greater than every key with prefix,
// or nil when prefix is all 0xff.
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
