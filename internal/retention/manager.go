package retention

import (
	"context"
	"path/filepath"
	"time"

	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// CheckpointRetention names the checkpoint recording the last segment removed by a
// pass in progress. It is cleared when a pass completes, so a non-zero value at the
// start of Apply means the previous pass was interrupted. Removal is oldest first, so
// the next pass needs no position to resume from; the value is only reported.
const CheckpointRetention = "retention"

// DefaultGrowthWindow is the lookback window of growth-rate estimates.
const DefaultGrowthWindow = 24 * time.Hour

// Target is the part of a log the manager operates on. *logstore.Log implements it.
type Target interface {
	Stream() string
	Segments() []logstore.SegmentInfo
	RemoveSegment(ctx context.Context, id uint64, archiveDir string) (logstore.SegmentInfo, error)
	Checkpoint(name string) (uint64, error)
	SaveCheckpoint(ctx context.Context, name string, v uint64) error
}

// Options configures a Manager.
type Options struct {
	Logger logpkg.Logger
	Now    func() time.Time
	// GrowthWindow is the lookback window of Usage growth estimates.
	GrowthWindow time.Duration
	// Throttle pauses between removals so a large pass does not monopolize the disk.
	Throttle time.Duration
}

// Manager applies retention policies to one log.
type Manager struct {
	log    Target
	opts   Options
	logger logpkg.Logger
}

// Failure records a segment the pass could not remove.
type Failure struct {
	Segment uint64
	Err     error
}

// Result summarizes one Apply pass.
type Result struct {
	Deleted        []uint64 // removed segment ids, oldest first
	BytesFreed     int64
	EntriesRemoved uint64
	ArchivedTo     []string // archive paths, parallel to Deleted when archiving
	Failed         []Failure
	ResumedAfter   uint64 // last segment removed by an interrupted earlier pass; informational
}

// NewManager returns a manager for log.
func NewManager(log Target, opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logpkg.NewNopLogger()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GrowthWindow <= 0 {
		opts.GrowthWindow = DefaultGrowthWindow
	}
	return &Manager{
		log:    log,
		opts:   opts,
		logger: opts.Logger.With(logpkg.Component("retention"), logpkg.Stream(log.Stream())),
	}
}

// Apply removes eligible sealed segments, oldest first. A segment is eligible when
// its last write is strictly older than the age horizon, or while the log's total
// footprint exceeds MaxBytes. The pass stops at the first segment that is not
// eligible, so the retained range stays contiguous. The open segment is never
// removed. Removal failures are logged and reported in Result.Failed; a cancelled
// context ends the pass with the partial result and ctx.Err().
func (m *Manager) Apply(ctx context.Context, p Policy) (Result, error) {
	var res Result
	if err := p.Validate(); err != nil {
		return res, err
	}
	if !p.Enabled() {
		return res, nil
	}
	if after, err := m.log.Checkpoint(CheckpointRetention); err == nil && after != 0 {
		res.ResumedAfter = after
		m.logger.Info("resuming interrupted retention pass", logpkg.Uint64("after_segment", after))
	}

	segs := m.log.Segments()
	var total int64
	for _, s := range segs {
		total += SegmentBytes(s)
	}
	now := m.opts.Now()
	horizon := now.Add(-p.MaxAge)

	for i, info := range segs {
		if i == len(segs)-1 || !info.Sealed {
			break
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		byAge := p.MaxAge > 0 && info.LastWrite().Before(horizon)
		bySize := p.MaxBytes > 0 && total > p.MaxBytes
		if !byAge && !bySize {
			break
		}
		removed, err := m.log.RemoveSegment(ctx, info.ID, p.ArchiveDir)
		if err != nil {
			// later segments cannot go before this one
			m.logger.Error("remove segment failed", logpkg.Uint64("segment", info.ID), logpkg.Err(err))
			res.Failed = append(res.Failed, Failure{Segment: info.ID, Err: err})
			break
		}
		size := SegmentBytes(removed)
		total -= size
		res.Deleted = append(res.Deleted, removed.ID)
		res.BytesFreed += size
		res.EntriesRemoved += removed.Entries()
		if p.ArchiveDir != "" {
			res.ArchivedTo = append(res.ArchivedTo, filepath.Join(p.ArchiveDir, segment.FileName(removed.ID)))
		}
		if err := m.log.SaveCheckpoint(ctx, CheckpointRetention, removed.ID); err != nil {
			m.logger.Warn("save retention checkpoint", logpkg.Err(err))
		}
		m.logger.Debug("segment retired",
			logpkg.Uint64("segment", removed.ID),
			logpkg.Bool("by_age", byAge),
			logpkg.Bool("by_size", bySize),
			logpkg.Int64("bytes", size))
		if m.opts.Throttle > 0 {
			select {
			case <-ctx.Done():
				return res, ctx.Err()
			case <-time.After(m.opts.Throttle):
			}
		}
	}
	if err := m.log.SaveCheckpoint(ctx, CheckpointRetention, 0); err != nil {
		m.logger.Warn("clear retention checkpoint", logpkg.Err(err))
	}
	if len(res.Deleted) > 0 {
		m.logger.Info("retention applied",
			logpkg.Int("segments", len(res.Deleted)),
			logpkg.Int64("bytes_freed", res.BytesFreed),
			logpkg.Uint64("entries", res.EntriesRemoved))
	}
	return res, nil
}
