package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rzbill/seglog/internal/segment"
	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// Entry is one payload read back from the log.
type Entry struct {
	Seq       uint64
	Timestamp time.Time
	Payload   []byte
}

// Log is an append-only sequence of entries stored as a directory of segment files.
type Log struct {
	opts   Options
	logger logpkg.Logger
	meta   metaStore

	mu       sync.Mutex // writer lock: appends and rotation
	active   *segment.Segment
	nextSeq  uint64
	lastTs   int64
	broken   error
	dirty    bool
	notifyCh chan struct{}
	closed   bool
	stopSync chan struct{}
	syncDone chan struct{}

	segMu sync.RWMutex
	segs  []*SegmentInfo // ascending ids, last is open

	stats statsRecorder
}

// Open opens or creates the log in opts.Dir and recovers its state from the
// segment files. An incomplete record at the end of the open segment is discarded.
func Open(ctx context.Context, opts Options) (*Log, error) {
	if err := opts.setDefaults(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create dir: %w", ErrIO, err)
	}
	l := &Log{
		opts:     opts,
		logger:   opts.Logger.With(logpkg.Component("logstore"), logpkg.Stream(opts.Stream)),
		notifyCh: make(chan struct{}),
	}
	if opts.Meta != nil {
		l.meta = pebbleMeta{db: opts.Meta}
	} else {
		l.meta = newMemMeta()
	}
	if err := l.recover(ctx); err != nil {
		if l.active != nil {
			_ = l.active.Close()
		}
		return nil, err
	}
	if opts.Fsync == pebblestore.FsyncModeInterval {
		l.stopSync = make(chan struct{})
		l.syncDone = make(chan struct{})
		go l.syncLoop()
	}
	return l, nil
}

func (l *Log) recover(ctx context.Context) error {
	ids, err := segment.List(l.opts.Dir)
	if err != nil {
		return fmt.Errorf("%w: list segments: %w", ErrIO, err)
	}
	now := l.opts.Now()
	var expect uint64
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		last := i == len(ids)-1
		s, err := segment.Open(segment.Path(l.opts.Dir, id))
		if err != nil {
			return classify(fmt.Sprintf("open segment %d", id), err)
		}
		if h := s.Header(); h.ID != id {
			_ = s.Close()
			return fmt.Errorf("%w: segment file %d carries id %d", ErrCorruption, id, h.ID)
		}
		if !s.Header().Sealed {
			res, err := s.Recover(expect)
			if err != nil {
				_ = s.Close()
				return classify(fmt.Sprintf("recover segment %d", id), err)
			}
			if res.Truncated > 0 {
				l.logger.Warn("discarded incomplete tail",
					logpkg.Uint64("segment", id),
					logpkg.Int64("bytes", res.Truncated),
					logpkg.Err(res.Cause))
				l.stats.update(func(s *Stats) { s.TruncatedBytes += res.Truncated })
			}
			for _, d := range res.Damaged {
				l.logger.Error("corrupt record kept in place",
					logpkg.Uint64("segment", id),
					logpkg.Uint64("seq", d.Seq),
					logpkg.Int64("offset", d.Offset),
					logpkg.Err(d.Err))
			}
			if !last || len(res.Damaged) > 0 {
				if err := s.Seal(now); err != nil {
					_ = s.Close()
					return fmt.Errorf("%w: seal recovered segment %d: %w", ErrIO, id, err)
				}
				l.logger.Info("sealed segment left open", logpkg.Uint64("segment", id))
			}
		}
		h := s.Header()
		if h.FirstSeq == 0 {
			h.FirstSeq = max(expect, 1)
		}
		if i > 0 && h.FirstSeq != expect {
			_ = s.Close()
			return fmt.Errorf("%w: segment %d starts at seq %d, want %d", ErrCorruption, id, h.FirstSeq, expect)
		}
		if h.Empty() {
			expect = h.FirstSeq
		} else {
			expect = h.LastSeq + 1
		}
		info := infoFromHeader(s.Path(), h)
		if last && !h.Sealed {
			l.active = s
			marks, err := l.buildMarks(info)
			if err != nil {
				return classify(fmt.Sprintf("index segment %d", id), err)
			}
			info.marks = marks
		} else {
			_ = s.Close()
		}
		l.segs = append(l.segs, &info)
		if !h.Empty() {
			l.lastTs = h.LastTs.UnixNano()
		}
	}
	if expect == 0 {
		expect = 1
	}
	l.nextSeq = expect
	if l.active == nil {
		var id uint64 = 1
		if n := len(l.segs); n > 0 {
			id = l.segs[n-1].ID + 1
		}
		s, err := segment.Create(l.opts.Dir, id, expect, now)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
		l.active = s
		info := infoFromHeader(s.Path(), s.Header())
		l.segs = append(l.segs, &info)
	}
	l.stats.update(func(s *Stats) { s.Recovered = now })
	l.logger.Info("log opened",
		logpkg.Int("segments", len(l.segs)),
		logpkg.Uint64("next_seq", l.nextSeq),
		logpkg.Uint64("open_segment", l.active.ID()))
	return nil
}

// classify maps segment-level failures onto the log's error kinds.
func classify(op string, err error) error {
	if segment.IsCorrupt(err) || errors.Is(err, segment.ErrBadHeader) {
		return fmt.Errorf("%w: %s: %w", ErrCorruption, op, err)
	}
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrNotFound, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrIO, op, err)
}

// Append durably stores payload and returns its sequence number. On error the entry
// was not written and no sequence number was consumed.
func (l *Log) Append(ctx context.Context, payload []byte) (uint64, error) {
	if len(payload) > l.opts.MaxEntryBytes {
		l.stats.update(func(s *Stats) { s.AppendsRejected++ })
		return 0, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrPayloadTooLarge, len(payload), l.opts.MaxEntryBytes)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	seq, err := l.appendLocked(payload)
	elapsed := time.Since(start)
	l.stats.update(func(s *Stats) {
		if err != nil {
			s.AppendsFailed++
			return
		}
		s.AppendsOK++
		s.AppendLatency.Observe(elapsed)
	})
	return seq, err
}

// AppendBatch appends payloads in order. Every payload is size-checked before the
// first write. Each entry is atomic on its own; on failure the returned slice holds
// the sequence numbers of the entries that were stored.
func (l *Log) AppendBatch(ctx context.Context, payloads [][]byte) ([]uint64, error) {
	for i, p := range payloads {
		if len(p) > l.opts.MaxEntryBytes {
			l.stats.update(func(s *Stats) { s.AppendsRejected++ })
			return nil, fmt.Errorf("%w: entry %d has %d bytes, limit %d", ErrPayloadTooLarge, i, len(p), l.opts.MaxEntryBytes)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	seqs := make([]uint64, 0, len(payloads))
	for _, p := range payloads {
		if err := ctx.Err(); err != nil {
			return seqs, err
		}
		start := time.Now()
		seq, err := l.appendLocked(p)
		elapsed := time.Since(start)
		l.stats.update(func(s *Stats) {
			if err != nil {
				s.AppendsFailed++
				return
			}
			s.AppendsOK++
			s.AppendLatency.Observe(elapsed)
		})
		if err != nil {
			return seqs, err
		}
		seqs = append(seqs, seq)
	}
	return seqs, nil
}

func (l *Log) appendLocked(payload []byte) (uint64, error) {
	if l.closed {
		return 0, ErrClosed
	}
	if l.broken != nil {
		return 0, fmt.Errorf("%w: log needs reopening: %v", ErrIO, l.broken)
	}
	now := l.opts.Now()
	ts := now.UnixNano()
	if ts < l.lastTs {
		ts = l.lastTs
	}
	rec := segment.Record{Seq: l.nextSeq, TimeNs: ts, Payload: payload}
	if l.rotationDue(int64(rec.Size()), now) {
		if err := l.rotateLocked(now); err != nil {
			return 0, fmt.Errorf("%w: rotate before seq %d: %w", ErrIO, rec.Seq, err)
		}
	}
	syncNow := l.opts.Fsync == pebblestore.FsyncModeAlways
	off, err := l.active.Append(rec, syncNow)
	if err != nil {
		if errors.Is(err, segment.ErrRollback) {
			l.broken = err
			l.logger.Error("segment tail could not be restored", logpkg.Uint64("segment", l.active.ID()), logpkg.Err(err))
		}
		return 0, fmt.Errorf("%w: append seq %d: %w", ErrIO, rec.Seq, err)
	}
	if !syncNow {
		l.dirty = true
	}
	l.nextSeq++
	l.lastTs = ts
	l.publish(rec, off)

	close(l.notifyCh)
	l.notifyCh = make(chan struct{})

	if l.rotationDue(0, now) {
		if err := l.rotateLocked(now); err != nil {
			// the entry is stored; the next append retries the rotation
			l.logger.Warn("rotation failed", logpkg.Uint64("segment", l.active.ID()), logpkg.Err(err))
		}
	}
	return rec.Seq, nil
}

// publish makes a committed record visible to readers.
func (l *Log) publish(rec segment.Record, off int64) {
	ts := time.Unix(0, rec.TimeNs).UTC()
	l.segMu.Lock()
	defer l.segMu.Unlock()
	info := l.segs[len(l.segs)-1]
	if info.Empty() {
		info.FirstSeq = rec.Seq
		info.FirstTs = ts
	}
	info.LastSeq = rec.Seq
	info.LastTs = ts
	info.Size = l.active.Size()
	if l.isMarkSeq(info.FirstSeq, rec.Seq) {
		info.marks = append(info.marks, mark{seq: rec.Seq, off: off})
	}
}

func (l *Log) syncLoop() {
	defer close(l.syncDone)
	t := time.NewTicker(l.opts.FsyncInterval)
	defer t.Stop()
	for {
		select {
		case <-l.stopSync:
			return
		case <-t.C:
			l.mu.Lock()
			if l.dirty && l.active != nil && !l.closed {
				if err := l.active.Sync(); err != nil {
					l.logger.Error("interval fsync failed", logpkg.Err(err))
				} else {
					l.dirty = false
				}
			}
			l.mu.Unlock()
		}
	}
}

// Sync flushes appended entries to stable storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.active.Sync(); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	l.dirty = false
	return nil
}

// NextSeq returns the sequence number the next append will receive.
func (l *Log) NextSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextSeq
}

// Stream returns the stream name the log was opened with.
func (l *Log) Stream() string { return l.opts.Stream }

// Dir returns the segment directory.
func (l *Log) Dir() string { return l.opts.Dir }

// Close flushes and closes the open segment. The segment stays open on disk and is
// recovered by the next Open.
func (l *Log) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	var err error
	if l.broken == nil {
		err = l.active.Sync()
	}
	if cerr := l.active.Close(); err == nil {
		err = cerr
	}
	close(l.notifyCh)
	l.notifyCh = make(chan struct{})
	l.mu.Unlock()
	if l.stopSync != nil {
		close(l.stopSync)
		<-l.syncDone
	}
	if err != nil {
		return fmt.Errorf("%w: close: %w", ErrIO, err)
	}
	return nil
}
