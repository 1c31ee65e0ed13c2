package logstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it *RangeIterator) []uint64 {
	t.Helper()
	defer it.Close()
	var seqs []uint64
	for it.Next() {
		seqs = append(seqs, it.Entry().Seq)
	}
	require.NoError(t, it.Err())
	return seqs
}

func TestReadRangeInclusive(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 100)
	ctx := context.Background()

	seqs := collect(t, l.ReadRange(ctx, 40, 60))
	require.Len(t, seqs, 21)
	require.Equal(t, uint64(40), seqs[0])
	require.Equal(t, uint64(60), seqs[20])
}

func TestReadRangeClampsBounds(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 10)
	ctx := context.Background()

	require.Len(t, collect(t, l.ReadRange(ctx, 0, 1000)), 10)
	require.Empty(t, collect(t, l.ReadRange(ctx, 11, 20)))
	require.Empty(t, collect(t, l.ReadRange(ctx, 5, 4)))
}

func TestReadRangeEmptyLog(t *testing.T) {
	l := smallLog(t)
	require.Empty(t, collect(t, l.ReadRange(context.Background(), 1, 10)))
}

func TestReadRangeDoesNotFollowLaterAppends(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 5)
	ctx := context.Background()

	it := l.ReadRange(ctx, 1, 100)
	defer it.Close()
	require.True(t, it.Next())
	_, err := l.Append(ctx, payload(6))
	require.NoError(t, err)
	n := 1
	for it.Next() {
		n++
	}
	require.Equal(t, 5, n)
}

func TestReadRangeFilter(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 30)
	even := func(e Entry) bool { return e.Seq%2 == 0 }
	seqs := collect(t, l.ReadRange(context.Background(), 1, 30, WithFilter(even)))
	require.Len(t, seqs, 15)
	for _, s := range seqs {
		require.Zero(t, s%2)
	}
}

func TestReadRangeReset(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 50)
	it := l.ReadRange(context.Background(), 30, 40)
	first := collect(t, it)
	it.Reset()
	require.Equal(t, first, collect(t, it))
}

func TestReadRangeCancelled(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 10)
	ctx, cancel := context.WithCancel(context.Background())
	it := l.ReadRange(ctx, 1, 10)
	defer it.Close()
	require.True(t, it.Next())
	cancel()
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), context.Canceled)
}

func TestReadRangeSkipsCorruptRegion(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 100)
	ctx := context.Background()

	// seq 10 is the 10th 30-byte record of segment 1; damage its payload
	flipByte(t, l.Dir(), 1, 9*30+21)

	it := l.ReadRange(ctx, 1, 100)
	seqs := collect(t, it)
	require.Len(t, seqs, 99)
	require.Equal(t, uint64(9), seqs[8])
	require.Equal(t, uint64(11), seqs[9])

	gaps := it.Gaps()
	require.Len(t, gaps, 1)
	require.Equal(t, Gap{From: 10, To: 10, Segment: 1, Offset: 270, Err: gaps[0].Err}, gaps[0])
	require.ErrorIs(t, gaps[0].Err, ErrCorruption)

	_, err := l.Read(ctx, 10)
	require.ErrorIs(t, err, ErrCorruption)
	for _, seq := range []uint64{9, 11, 33} {
		e, err := l.Read(ctx, seq)
		require.NoError(t, err)
		require.Equal(t, payload(int(seq)), e.Payload)
	}
	require.GreaterOrEqual(t, l.Stats().CorruptReads, uint64(2))
}

func TestReadRangeStartingPastDamagedRecord(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 40)
	ctx := context.Background()

	// seq 3 sits between index marks 1 and 9, which were built before the damage
	flipByte(t, l.Dir(), 1, 2*30+21)

	it := l.ReadRange(ctx, 5, 8)
	require.Equal(t, []uint64{5, 6, 7, 8}, collect(t, it))
	require.Empty(t, it.Gaps())

	it = l.ReadRange(ctx, 2, 5)
	require.Equal(t, []uint64{2, 4, 5}, collect(t, it))
	gaps := it.Gaps()
	require.Len(t, gaps, 1)
	require.Equal(t, Gap{From: 3, To: 3, Segment: 1, Offset: 60, Err: gaps[0].Err}, gaps[0])

	e, err := l.Read(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, payload(5), e.Payload)
	_, err = l.Read(ctx, 3)
	require.ErrorIs(t, err, ErrCorruption)
}

func TestReadNotFound(t *testing.T) {
	l := smallLog(t)
	appendN(t, l, 3)
	ctx := context.Background()
	for _, seq := range []uint64{0, 4, 1000} {
		_, err := l.Read(ctx, seq)
		require.True(t, errors.Is(err, ErrNotFound), "seq %d: %v", seq, err)
	}
}

func TestReadUsesSparseIndex(t *testing.T) {
	l := openTestLog(t, Options{MaxSegmentBytes: 1 << 20, IndexInterval: 4})
	appendN(t, l, 100)
	info := l.snapshot()[0]
	require.Len(t, info.marks, 25)
	require.Equal(t, uint64(97), info.marks[24].seq)
	require.Equal(t, int64(96*30), info.marks[24].off)
	require.Equal(t, int64(96*30), l.offsetFor(info, 99))

	e, err := l.Read(context.Background(), 99)
	require.NoError(t, err)
	require.Equal(t, payload(99), e.Payload)
}

func TestSeekTime(t *testing.T) {
	clock := newFakeClock()
	l := openTestLog(t, Options{MaxSegmentBytes: 1000, Now: clock.Now})
	ctx := context.Background()
	start := clock.Now()
	for i := 1; i <= 60; i++ {
		_, err := l.Append(ctx, payload(i))
		require.NoError(t, err)
		clock.Advance(time.Second)
	}

	seq, err := l.SeekTime(ctx, start.Add(45*time.Second))
	require.NoError(t, err)
	require.Equal(t, uint64(46), seq)

	seq, err = l.SeekTime(ctx, start.Add(-time.Hour))
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)

	_, err = l.SeekTime(ctx, start.Add(time.Hour))
	require.ErrorIs(t, err, ErrNotFound)
	require.True(t, strings.Contains(err.Error(), "no entry"))
}
