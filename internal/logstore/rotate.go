package logstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// rotationDue reports whether the open segment must be sealed before (incoming > 0)
// or after (incoming == 0) an append. Empty segments are never rotated, so a record
// that alone reaches the size limit still gets a segment.
func (l *Log) rotationDue(incoming int64, now time.Time) bool {
	h := l.active.Header()
	if h.Empty() {
		return false
	}
	if incoming > 0 {
		if h.DataSize+incoming > l.opts.MaxSegmentBytes {
			return true
		}
	} else if h.DataSize >= l.opts.MaxSegmentBytes {
		return true
	}
	return l.opts.MaxSegmentAge > 0 && now.Sub(h.Created) >= l.opts.MaxSegmentAge
}

// rotateLocked creates the next segment, seals the current one and swaps them.
// The new file exists before the old one is sealed, so a crash in between leaves
// at most an empty open segment behind. Callers hold l.mu.
func (l *Log) rotateLocked(now time.Time) error {
	old := l.active
	if old.Header().Empty() {
		return nil
	}
	next, err := segment.Create(l.opts.Dir, old.ID()+1, l.nextSeq, now)
	if err != nil {
		return err
	}
	if err := old.Seal(now); err != nil {
		_ = next.Close()
		_ = os.Remove(next.Path())
		return fmt.Errorf("seal segment %d: %w", old.ID(), err)
	}
	sealed := old.Header()
	if err := old.Close(); err != nil {
		l.logger.Warn("close sealed segment", logpkg.Uint64("segment", sealed.ID), logpkg.Err(err))
	}
	l.active = next
	l.dirty = false

	nextInfo := infoFromHeader(next.Path(), next.Header())
	l.segMu.Lock()
	cur := l.segs[len(l.segs)-1]
	cur.Sealed = true
	cur.SealedAt = sealed.SealedAt
	cur.Size = sealed.DataSize
	marks := cur.marks
	l.segs = append(l.segs, &nextInfo)
	l.segMu.Unlock()

	if err := l.meta.set(KeyIndex(l.opts.Stream, sealed.ID), encodeMarks(marks)); err != nil {
		l.logger.Warn("persist index failed", logpkg.Uint64("segment", sealed.ID), logpkg.Err(err))
	}
	l.stats.update(func(s *Stats) {
		s.Rotations++
		s.LastRotation = now
	})
	l.logger.Info("segment rotated",
		logpkg.Uint64("sealed", sealed.ID),
		logpkg.Uint64("first_seq", sealed.FirstSeq),
		logpkg.Uint64("last_seq", sealed.LastSeq),
		logpkg.Int64("bytes", sealed.DataSize),
		logpkg.Uint64("open", next.ID()))
	return nil
}

// Rotate seals the open segment if it holds any entries.
func (l *Log) Rotate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if l.broken != nil {
		return fmt.Errorf("%w: log needs reopening: %v", ErrIO, l.broken)
	}
	if err := l.rotateLocked(l.opts.Now()); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// RotateIfAged seals the open segment when it exceeded MaxSegmentAge. Maintenance
// loops call it so idle segments are sealed without waiting for the next append.
func (l *Log) RotateIfAged(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed || l.broken != nil || l.opts.MaxSegmentAge <= 0 {
		return false, nil
	}
	now := l.opts.Now()
	if !l.rotationDue(0, now) {
		return false, nil
	}
	if err := l.rotateLocked(now); err != nil {
		return false, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return true, nil
}
