package logstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// RemoveSegment removes the oldest sealed segment. With a non-empty archiveDir the
// file is moved there instead of deleted. The open segment is never removed.
func (l *Log) RemoveSegment(ctx context.Context, id uint64, archiveDir string) (SegmentInfo, error) {
	if err := ctx.Err(); err != nil {
		return SegmentInfo{}, err
	}
	l.segMu.Lock()
	idx := -1
	for i, s := range l.segs {
		if s.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		l.segMu.Unlock()
		return SegmentInfo{}, fmt.Errorf("%w: segment %d", ErrNotFound, id)
	}
	info := *l.segs[idx]
	info.marks = nil
	if idx == len(l.segs)-1 || !info.Sealed {
		l.segMu.Unlock()
		return info, fmt.Errorf("%w: segment %d", ErrOpenSegment, id)
	}
	if idx != 0 {
		l.segMu.Unlock()
		return info, fmt.Errorf("%w: segment %d", ErrNotOldest, id)
	}
	archived, err := l.dispose(info, archiveDir)
	if err != nil {
		l.segMu.Unlock()
		return info, fmt.Errorf("%w: remove segment %d: %w", ErrIO, id, err)
	}
	l.segs[0] = nil
	l.segs = l.segs[1:]
	l.segMu.Unlock()

	if err := segment.SyncDir(l.opts.Dir); err != nil {
		l.logger.Warn("sync dir after removal", logpkg.Err(err))
	}
	if err := l.meta.del(KeyIndex(l.opts.Stream, id)); err != nil {
		l.logger.Warn("delete index marks", logpkg.Uint64("segment", id), logpkg.Err(err))
	}
	l.opts.Archiver.EmitSegmentRemoved(l.opts.Stream, info, archived)
	l.logger.Info("segment removed",
		logpkg.Uint64("segment", id),
		logpkg.Uint64("first_seq", info.FirstSeq),
		logpkg.Uint64("last_seq", info.LastSeq),
		logpkg.Str("archived_to", archived))
	return info, nil
}

func (l *Log) dispose(info SegmentInfo, archiveDir string) (string, error) {
	if archiveDir == "" {
		return "", os.Remove(info.Path)
	}
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", err
	}
	dst := filepath.Join(archiveDir, segment.FileName(info.ID))
	if err := os.Rename(info.Path, dst); err != nil {
		return "", err
	}
	if err := segment.SyncDir(archiveDir); err != nil {
		l.logger.Warn("sync archive dir", logpkg.Str("dir", archiveDir), logpkg.Err(err))
	}
	return dst, nil
}
