package logstore

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// Predicate filters entries during a range scan.
type Predicate func(Entry) bool

// Gap is a range of sequence numbers a scan could not return.
type Gap struct {
	From    uint64
	To      uint64
	Segment uint64
	Offset  int64
	Err     error
}

// RangeOption configures ReadRange.
type RangeOption func(*RangeIterator)

// WithFilter skips entries for which p returns false.
func WithFilter(p Predicate) RangeOption {
	return func(it *RangeIterator) { it.pred = p }
}

// RangeIterator walks entries in ascending sequence order. Corrupted regions are
// reported through Gaps and skipped; other failures end the iteration with Err.
type RangeIterator struct {
	l    *Log
	ctx  context.Context
	from uint64
	to   uint64
	pred Predicate
	segs []SegmentInfo

	next   uint64
	segIdx int
	r      *segment.Reader
	off    int64

	cur    Entry
	err    error
	gaps   []Gap
	damage *Gap // damaged frame stepped over, not yet attributed to seqs
	done   bool
}

// ReadRange iterates entries with from <= seq <= to. Bounds are clamped to the
// retained range at the time of the call; entries appended later are not returned.
func (l *Log) ReadRange(ctx context.Context, from, to uint64, opts ...RangeOption) *RangeIterator {
	it := l.rangeOver(l.snapshot(), from, to)
	it.ctx = ctx
	for _, o := range opts {
		o(it)
	}
	return it
}

func (l *Log) rangeOver(segs []SegmentInfo, from, to uint64) *RangeIterator {
	it := &RangeIterator{l: l, ctx: context.Background(), segs: segs}
	var first, last uint64
	for _, s := range segs {
		if s.Empty() {
			continue
		}
		if first == 0 {
			first = s.FirstSeq
		}
		last = s.LastSeq
	}
	if from < first {
		from = first
	}
	if to > last {
		to = last
	}
	it.from, it.to = from, to
	it.next = from
	if first == 0 || from > to {
		it.done = true
	}
	return it
}

// Next advances to the next entry. It returns false at the end of the range or on error.
func (it *RangeIterator) Next() bool {
	for {
		if it.done || it.err != nil {
			return false
		}
		if err := it.ctx.Err(); err != nil {
			it.err = err
			return false
		}
		if it.next > it.to || it.segIdx >= len(it.segs) {
			it.finish()
			return false
		}
		info := it.segs[it.segIdx]
		if info.Empty() || info.LastSeq < it.next {
			it.advanceSegment()
			continue
		}
		if it.r == nil {
			if info.FirstSeq > it.next {
				it.next = info.FirstSeq
			}
			r, err := segment.OpenReader(info.Path)
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					it.skip(info, 0, fmt.Errorf("%w: segment %d removed", ErrNotFound, info.ID))
					continue
				}
				it.err = fmt.Errorf("%w: open segment %d: %w", ErrIO, info.ID, err)
				return false
			}
			it.r = r
			it.off = it.l.offsetFor(info, it.next)
		}
		if it.off >= info.Size {
			it.skip(info, it.off, fmt.Errorf("%w: segment %d ends before seq %d", ErrCorruption, info.ID, it.next))
			continue
		}
		rec, n, err := it.r.ReadAt(it.off, info.Size)
		if err != nil {
			if segment.IsCorrupt(err) && n > 0 && it.off+int64(n) < info.Size {
				// a whole frame is damaged; the next intact record tells which seqs it hid
				if it.damage == nil {
					it.damage = &Gap{Segment: info.ID, Offset: it.off, Err: readError(info.ID, it.off, it.next, err)}
				}
				it.off += int64(n)
				continue
			}
			it.damage = nil
			if segment.IsCorrupt(err) {
				it.skip(info, it.off, readError(info.ID, it.off, it.next, err))
				continue
			}
			it.err = readError(info.ID, it.off, it.next, err)
			return false
		}
		if d := it.damage; d != nil {
			it.damage = nil
			if rec.Seq > it.next {
				it.gap(info, it.next, rec.Seq-1, d.Offset, d.Err)
				it.next = rec.Seq
			}
		}
		if rec.Seq < it.next {
			it.off += int64(n)
			continue
		}
		if rec.Seq != it.next {
			it.skip(info, it.off, fmt.Errorf("%w: segment %d offset %d: seq %d, want %d", ErrCorruption, info.ID, it.off, rec.Seq, it.next))
			continue
		}
		it.off += int64(n)
		it.next++
		e := toEntry(rec)
		if it.pred != nil && !it.pred(e) {
			continue
		}
		it.cur = e
		return true
	}
}

// skip records the rest of the current segment as a gap and moves on.
func (it *RangeIterator) skip(info SegmentInfo, off int64, err error) {
	it.gap(info, it.next, info.LastSeq, off, err)
	it.next = info.LastSeq + 1
	it.advanceSegment()
}

// gap records [from, to], clamped to the iterator's range.
func (it *RangeIterator) gap(info SegmentInfo, from, to uint64, off int64, err error) {
	if to > it.to {
		to = it.to
	}
	if to < from {
		return
	}
	it.gaps = append(it.gaps, Gap{From: from, To: to, Segment: info.ID, Offset: off, Err: err})
	if errors.Is(err, ErrCorruption) {
		it.l.stats.update(func(s *Stats) { s.CorruptReads++ })
	}
	it.l.logger.Warn("range scan skipped entries",
		logpkg.Uint64("segment", info.ID),
		logpkg.Uint64("from", from),
		logpkg.Uint64("to", to),
		logpkg.Err(err))
}

func (it *RangeIterator) advanceSegment() {
	it.closeReader()
	it.segIdx++
}

func (it *RangeIterator) finish() {
	it.closeReader()
	it.done = true
}

func (it *RangeIterator) closeReader() {
	it.damage = nil
	if it.r != nil {
		_ = it.r.Close()
		it.r = nil
	}
}

// Entry returns the current entry.
func (it *RangeIterator) Entry() Entry { return it.cur }

// Err returns the error that ended the iteration, if any.
func (it *RangeIterator) Err() error { return it.err }

// Gaps returns the ranges skipped so far because of corruption or removal.
func (it *RangeIterator) Gaps() []Gap { return it.gaps }

// Reset rewinds the iterator to the start of its range.
func (it *RangeIterator) Reset() {
	it.closeReader()
	it.next = it.from
	it.segIdx = 0
	it.cur = Entry{}
	it.err = nil
	it.gaps = nil
	it.done = it.from > it.to || it.to == 0
}

// Close releases the iterator's file handle.
func (it *RangeIterator) Close() error {
	it.closeReader()
	it.done = true
	return nil
}
