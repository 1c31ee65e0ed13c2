package logstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rzbill/seglog/internal/segment"
	pebblestore "github.com/rzbill/seglog/internal/storage/pebble"
)

type recordingArchiver struct {
	mu      sync.Mutex
	removed []uint64
	paths   []string
}

func (a *recordingArchiver) EmitSegmentRemoved(_ string, info SegmentInfo, archivedPath string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removed = append(a.removed, info.ID)
	a.paths = append(a.paths, archivedPath)
}

func TestRemoveSegmentRefusesOpenSegment(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 10)
	_, err := l.RemoveSegment(context.Background(), l.OpenSegmentID(), "")
	require.ErrorIs(t, err, ErrOpenSegment)
	require.Len(t, l.Segments(), 1)
}

func TestRemoveSegmentOldestOnly(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 100)
	ctx := context.Background()

	_, err := l.RemoveSegment(ctx, 2, "")
	require.ErrorIs(t, err, ErrNotOldest)
	_, err = l.RemoveSegment(ctx, 42, "")
	require.ErrorIs(t, err, ErrNotFound)

	info, err := l.RemoveSegment(ctx, 1, "")
	require.NoError(t, err)
	require.Equal(t, uint64(33), info.LastSeq)
	require.Equal(t, uint64(34), l.FirstSeq())
	_, err = os.Stat(segment.Path(l.Dir(), 1))
	require.True(t, os.IsNotExist(err))

	_, err = l.Read(ctx, 33)
	require.ErrorIs(t, err, ErrNotFound)
	seqs := collect(t, l.ReadRange(ctx, 1, 40))
	require.Len(t, seqs, 7)
	require.Equal(t, uint64(34), seqs[0])
}

func TestRemoveSegmentArchives(t *testing.T) {
	arch := &recordingArchiver{}
	archiveDir := filepath.Join(t.TempDir(), "archive")
	l := openTestLog(t, Options{MaxSegmentBytes: 1000, Archiver: arch})
	appendN(t, l, 50)

	_, err := l.RemoveSegment(context.Background(), 1, archiveDir)
	require.NoError(t, err)
	dst := filepath.Join(archiveDir, segment.FileName(1))
	_, err = os.Stat(dst)
	require.NoError(t, err)
	require.Equal(t, []uint64{1}, arch.removed)
	require.Equal(t, []string{dst}, arch.paths)
}

func TestRemoveSegmentDropsIndexMarks(t *testing.T) {
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	l := openTestLog(t, Options{MaxSegmentBytes: 1000, Meta: db, Stream: "s1"})
	appendN(t, l, 50)

	_, err = db.Get(KeyIndex("s1", 1))
	require.NoError(t, err)
	_, err = l.RemoveSegment(context.Background(), 1, "")
	require.NoError(t, err)
	_, err = db.Get(KeyIndex("s1", 1))
	require.True(t, pebblestore.IsNotFound(err))
}

func TestRemovedSegmentsStayGoneAfterReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	l, err := Open(ctx, Options{Dir: dir, MaxSegmentBytes: 1000})
	require.NoError(t, err)
	appendN(t, l, 100)
	_, err = l.RemoveSegment(ctx, 1, "")
	require.NoError(t, err)
	require.NoError(t, l.Close())

	l2 := openTestLog(t, Options{Dir: dir, MaxSegmentBytes: 1000})
	require.Equal(t, uint64(34), l2.FirstSeq())
	require.Equal(t, uint64(100), l2.LastSeq())
	seq, err := l2.Append(ctx, payload(101))
	require.NoError(t, err)
	require.Equal(t, uint64(101), seq)
}
