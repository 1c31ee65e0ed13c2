package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rzbill/seglog/internal/segment"
)

// Read returns the entry with sequence number seq.
func (l *Log) Read(ctx context.Context, seq uint64) (Entry, error) {
	if err := ctx.Err(); err != nil {
		return Entry{}, err
	}
	start := time.Now()
	e, err := l.read(seq)
	elapsed := time.Since(start)
	l.stats.update(func(s *Stats) {
		s.ReadLatency.Observe(elapsed)
		if errors.Is(err, ErrCorruption) {
			s.CorruptReads++
		}
	})
	return e, err
}

func (l *Log) read(seq uint64) (Entry, error) {
	info, ok := l.locate(seq)
	if !ok {
		return Entry{}, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	}
	r, err := segment.OpenReader(info.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// removed by retention after the lookup
			return Entry{}, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
		}
		return Entry{}, fmt.Errorf("%w: open segment %d: %w", ErrIO, info.ID, err)
	}
	defer r.Close()

	off := l.offsetFor(info, seq)
	var damage error // last damaged frame stepped over on the way to seq
	for off < info.Size {
		rec, n, err := r.ReadAt(off, info.Size)
		if err != nil {
			if !segment.IsCorrupt(err) || n == 0 {
				return Entry{}, readError(info.ID, off, seq, err)
			}
			damage = readError(info.ID, off, seq, err)
			off += int64(n)
			continue
		}
		if rec.Seq == seq {
			return toEntry(rec), nil
		}
		if rec.Seq > seq {
			if damage != nil {
				return Entry{}, damage
			}
			return Entry{}, fmt.Errorf("%w: segment %d offset %d: found seq %d looking for %d", ErrCorruption, info.ID, off, rec.Seq, seq)
		}
		damage = nil
		off += int64(n)
	}
	if damage != nil {
		return Entry{}, damage
	}
	return Entry{}, fmt.Errorf("%w: segment %d ends before seq %d", ErrCorruption, info.ID, seq)
}

func readError(segID uint64, off int64, seq uint64, err error) error {
	if segment.IsCorrupt(err) {
		return fmt.Errorf("%w: segment %d offset %d (seq %d): %w", ErrCorruption, segID, off, seq, err)
	}
	return fmt.Errorf("%w: segment %d offset %d: %w", ErrIO, segID, off, err)
}

func toEntry(rec segment.Record) Entry {
	return Entry{Seq: rec.Seq, Timestamp: time.Unix(0, rec.TimeNs).UTC(), Payload: rec.Payload}
}

// SeekTime returns the sequence number of the first retained entry written at or
// after t. ErrNotFound is returned when every entry is older.
func (l *Log) SeekTime(ctx context.Context, t time.Time) (uint64, error) {
	all := l.snapshot()
	segs := all[:0]
	for _, s := range all {
		if !s.Empty() {
			segs = append(segs, s)
		}
	}
	i := sort.Search(len(segs), func(i int) bool { return !segs[i].LastTs.Before(t) })
	for ; i < len(segs); i++ {
		info := segs[i]
		if !info.FirstTs.Before(t) {
			return info.FirstSeq, nil
		}
		it := l.rangeOver([]SegmentInfo{info}, info.FirstSeq, info.LastSeq)
		for it.Next() {
			if e := it.Entry(); !e.Timestamp.Before(t) {
				_ = it.Close()
				return e.Seq, nil
			}
		}
		err := it.Err()
		_ = it.Close()
		if err != nil {
			return 0, err
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}
	}
	return 0, fmt.Errorf("%w: no entry at or after %s", ErrNotFound, t.UTC().Format(time.RFC3339Nano))
}

// snapshot copies the segment index, including marks, for lock-free scanning.
func (l *Log) snapshot() []SegmentInfo {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	out := make([]SegmentInfo, len(l.segs))
	for i, s := range l.segs {
		out[i] = *s
	}
	return out
}
