package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	cfgpkg "github.com/rzbill/seglog/internal/config"
	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/retention"
	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
	"github.com/rzbill/seglog/internal/stream"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// ErrStreamLimit is returned when creating a stream would exceed Config.MaxStreams.
var ErrStreamLimit = errors.New("runtime: stream limit reached")

// Options for building the Runtime.
type Options struct {
	Config cfgpkg.Config
	// Logger defaults to one built from Config.Log.
	Logger logpkg.Logger
	// Archiver is attached to every opened log. Optional.
	Archiver logstore.ArchiverHook
	// Now overrides the clock of logs and retention managers. Optional.
	Now func() time.Time
}

// Runtime wires storage, config, and the per-stream logs of a single node.
type Runtime struct {
	db      *pebblestore.DB
	config  cfgpkg.Config
	dataDir string
	fsync   pebblestore.FsyncMode
	logger  logpkg.Logger
	opts    Options
	metrics *metaMetrics

	mu   sync.Mutex
	logs map[string]*logstore.Log
}

// Open validates the configuration, opens the metadata store and returns a Runtime.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	fsync, _ := cfg.FsyncMode()
	logger := opts.Logger
	if logger == nil {
		l, err := logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return nil, err
		}
		logger = l
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = cfgpkg.DefaultDataDir()
	}
	if err := os.MkdirAll(filepath.Join(dataDir, "streams"), 0o755); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	metrics := &metaMetrics{}
	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       filepath.Join(dataDir, "meta"),
		Fsync:         fsync,
		FsyncInterval: cfg.Storage.FsyncInterval.D(),
		CacheBytes:    cfg.Storage.MetaCacheBytes,
		Metrics:       metrics,
		Logger:        logger.WithComponent("pebble"),
	})
	if err != nil {
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	rt := &Runtime{
		db:      db,
		config:  cfg,
		dataDir: dataDir,
		fsync:   fsync,
		logger:  logger.WithComponent("runtime"),
		opts:    opts,
		metrics: metrics,
		logs:    make(map[string]*logstore.Log),
	}
	rt.logger.Info("runtime opened", logpkg.Str("data_dir", dataDir), logpkg.Str("fsync", fsync.String()))
	return rt, nil
}

// Close closes all opened logs, then the metadata store.
func (r *Runtime) Close() error {
	r.mu.Lock()
	logs := r.logs
	r.logs = make(map[string]*logstore.Log)
	r.mu.Unlock()

	var errs []error
	for name, l := range logs {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream %s: %w", name, err))
		}
	}
	if r.db != nil {
		if err := r.db.Close(); err != nil {
			errs = append(errs, err)
		}
		r.db = nil
	}
	return errors.Join(errs...)
}

// CheckHealth performs a simple health check of the metadata store and data directory.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.db.Ping(); err != nil {
		return fmt.Errorf("metadata store: %w", err)
	}
	if _, err := os.Stat(r.StreamsDir()); err != nil {
		return fmt.Errorf("streams dir: %w", err)
	}
	return nil
}

// EnsureStream registers a stream if absent, applying the configured defaults.
func (r *Runtime) EnsureStream(name string) (stream.Meta, error) {
	return r.CreateStream(name, stream.Meta{})
}

// CreateStream registers a stream with per-stream overrides. An existing stream is
// returned unchanged.
func (r *Runtime) CreateStream(name string, settings stream.Meta) (stream.Meta, error) {
	if m, err := stream.Get(r.db, name); err == nil {
		return m, nil
	}
	if limit := r.config.MaxStreams; limit > 0 {
		existing, err := stream.List(r.db)
		if err != nil {
			return stream.Meta{}, err
		}
		if len(existing) >= limit {
			return stream.Meta{}, fmt.Errorf("%w: %d", ErrStreamLimit, limit)
		}
	}
	return stream.Ensure(r.db, name, settings)
}

// DeleteStream closes a stream's log, removes its segments and drops all of its
// metadata. The segment directory is renamed aside first so a crash never leaves a
// registered stream with a partial directory.
func (r *Runtime) DeleteStream(ctx context.Context, name string) error {
	if _, err := stream.Get(r.db, name); err != nil {
		return err
	}
	r.mu.Lock()
	l := r.logs[name]
	delete(r.logs, name)
	r.mu.Unlock()
	if l != nil {
		if err := l.Close(); err != nil {
			r.logger.Warn("close deleted stream", logpkg.Stream(name), logpkg.Err(err))
		}
	}

	dir := r.StreamDir(name)
	trash := filepath.Join(r.StreamsDir(), fmt.Sprintf(".deleted-%s-%d", name, time.Now().UnixNano()))
	if err := os.Rename(dir, trash); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stream %s: %w", name, err)
	}
	prefixes := logstore.KeyStreamPrefixes(name)
	err := r.db.Update(ctx, func(b *pebblestore.Batch) error {
		for _, p := range prefixes {
			if err := b.DropPrefix(p); err != nil {
				return err
			}
		}
		return stream.Unregister(b, name)
	})
	if err != nil {
		return fmt.Errorf("delete stream %s metadata: %w", name, err)
	}
	if err := os.RemoveAll(trash); err != nil {
		r.logger.Warn("remove deleted segments", logpkg.Str("path", trash), logpkg.Err(err))
	}
	for _, p := range prefixes {
		if err := r.db.CompactPrefix(p); err != nil {
			r.logger.Debug("compact deleted keys", logpkg.Err(err))
		}
	}
	r.logger.Info("stream deleted", logpkg.Stream(name))
	return nil
}

// Streams lists registered streams.
func (r *Runtime) Streams() ([]stream.Meta, error) { return stream.List(r.db) }

// StreamsDir is the parent directory of all stream segment directories.
func (r *Runtime) StreamsDir() string { return filepath.Join(r.dataDir, "streams") }

// StreamDir returns the segment directory of a stream.
func (r *Runtime) StreamDir(name string) string { return filepath.Join(r.StreamsDir(), name) }

// OpenLog returns the log of a stream, opening it on first use. Unknown streams are
// created when AllowAutoCreateStreams is set.
func (r *Runtime) OpenLog(ctx context.Context, name string) (*logstore.Log, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[name]; ok {
		return l, nil
	}
	meta, err := stream.Get(r.db, name)
	if errors.Is(err, stream.ErrNotFound) && r.config.AllowAutoCreateStreams {
		meta, err = r.EnsureStream(name)
	}
	if err != nil {
		return nil, err
	}
	l, err := logstore.Open(ctx, r.logOptions(meta))
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", name, err)
	}
	r.logs[name] = l
	return l, nil
}

func (r *Runtime) logOptions(meta stream.Meta) logstore.Options {
	st := r.config.Storage
	opts := logstore.Options{
		Dir:             r.StreamDir(meta.Name),
		Stream:          meta.Name,
		MaxSegmentBytes: st.MaxSegmentBytes,
		MaxSegmentAge:   st.MaxSegmentAge.D(),
		MaxEntryBytes:   st.MaxEntryBytes,
		Fsync:           r.fsync,
		FsyncInterval:   st.FsyncInterval.D(),
		IndexInterval:   st.IndexInterval,
		Meta:            r.db,
		Archiver:        r.opts.Archiver,
		Logger:          r.logger,
		Now:             r.opts.Now,
	}
	if meta.MaxSegmentBytes > 0 {
		opts.MaxSegmentBytes = meta.MaxSegmentBytes
	}
	if meta.MaxEntryBytes > 0 {
		opts.MaxEntryBytes = meta.MaxEntryBytes
	}
	if meta.MaxSegmentAgeMs > 0 {
		opts.MaxSegmentAge = meta.MaxSegmentAge()
	}
	return opts
}

// RetentionPolicy returns the configured policy for a stream. Archived segments of
// different streams are kept apart.
func (r *Runtime) RetentionPolicy(name string) retention.Policy {
	rc := r.config.Retention
	p := retention.Policy{MaxAge: rc.MaxAge.D(), MaxBytes: rc.MaxBytes}
	if rc.ArchiveDir != "" {
		p.ArchiveDir = filepath.Join(rc.ArchiveDir, name)
	}
	return p
}

// Retention returns a retention manager for the stream's log.
func (r *Runtime) Retention(ctx context.Context, name string) (*retention.Manager, error) {
	l, err := r.OpenLog(ctx, name)
	if err != nil {
		return nil, err
	}
	return retention.NewManager(l, retention.Options{
		Logger:       r.logger,
		Now:          r.opts.Now,
		GrowthWindow: r.config.Retention.GrowthWindow.D(),
		Throttle:     r.config.Retention.Throttle.D(),
	}), nil
}

// DB exposes the metadata store for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the runtime logger.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }
