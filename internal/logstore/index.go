package logstore

import (
	"sort"
	"time"

	"github.com/rzbill/seglog/internal/segment"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// mark is a sparse index point: the record of seq starts at data offset off.
type mark struct {
	seq uint64
	off int64
}

// SegmentInfo describes one segment of the log as seen by the index.
type SegmentInfo struct {
	ID       uint64
	Path     string
	Sealed   bool
	Created  time.Time
	SealedAt time.Time
	FirstSeq uint64
	LastSeq  uint64 // 0 when empty
	Size     int64  // committed record bytes, header excluded
	FirstTs  time.Time
	LastTs   time.Time

	marks []mark
}

// Entries returns the number of entries in the segment.
func (s SegmentInfo) Entries() uint64 {
	if s.LastSeq == 0 || s.LastSeq < s.FirstSeq {
		return 0
	}
	return s.LastSeq - s.FirstSeq + 1
}

// Empty reports whether the segment has no entries.
func (s SegmentInfo) Empty() bool { return s.Entries() == 0 }

// Contains reports whether seq is stored in the segment.
func (s SegmentInfo) Contains(seq uint64) bool {
	return !s.Empty() && seq >= s.FirstSeq && seq <= s.LastSeq
}

// LastWrite returns the time of the newest entry, or the creation time when empty.
func (s SegmentInfo) LastWrite() time.Time {
	if !s.LastTs.IsZero() {
		return s.LastTs
	}
	return s.Created
}

func infoFromHeader(path string, h segment.Header) SegmentInfo {
	return SegmentInfo{
		ID:       h.ID,
		Path:     path,
		Sealed:   h.Sealed,
		Created:  h.Created,
		SealedAt: h.SealedAt,
		FirstSeq: h.FirstSeq,
		LastSeq:  h.LastSeq,
		Size:     h.DataSize,
		FirstTs:  h.FirstTs,
		LastTs:   h.LastTs,
	}
}

// Segments returns a snapshot of all retained segments in ascending id order.
// The last element is the open segment.
func (l *Log) Segments() []SegmentInfo {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	out := make([]SegmentInfo, len(l.segs))
	for i, s := range l.segs {
		out[i] = *s
		out[i].marks = nil
	}
	return out
}

// OpenSegmentID returns the id of the segment currently receiving writes.
func (l *Log) OpenSegmentID() uint64 {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	if len(l.segs) == 0 {
		return 0
	}
	return l.segs[len(l.segs)-1].ID
}

// FirstSeq returns the lowest retained sequence number (0 when the log is empty).
func (l *Log) FirstSeq() uint64 {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	for _, s := range l.segs {
		if !s.Empty() {
			return s.FirstSeq
		}
	}
	return 0
}

// LastSeq returns the highest written sequence number (0 when nothing was written).
func (l *Log) LastSeq() uint64 {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	return l.lastSeqLocked()
}

func (l *Log) lastSeqLocked() uint64 {
	for i := len(l.segs) - 1; i >= 0; i-- {
		if !l.segs[i].Empty() {
			return l.segs[i].LastSeq
		}
	}
	return 0
}

// locate returns a snapshot of the segment holding seq. FirstSeq is non-decreasing
// across segments, empty ones included (an empty segment carries the next seq it
// would hold), so the search key stays monotone.
func (l *Log) locate(seq uint64) (SegmentInfo, bool) {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	i := sort.Search(len(l.segs), func(i int) bool { return l.segs[i].FirstSeq > seq })
	for i--; i >= 0; i-- {
		if s := l.segs[i]; !s.Empty() {
			if !s.Contains(seq) {
				return SegmentInfo{}, false
			}
			return *s, true
		}
	}
	return SegmentInfo{}, false
}

// segmentByID returns a snapshot of segment id.
func (l *Log) segmentByID(id uint64) (SegmentInfo, bool) {
	l.segMu.RLock()
	defer l.segMu.RUnlock()
	for _, s := range l.segs {
		if s.ID == id {
			return *s, true
		}
	}
	return SegmentInfo{}, false
}

// offsetFor returns the data offset from which a forward scan reaches seq.
func (l *Log) offsetFor(info SegmentInfo, seq uint64) int64 {
	marks := info.marks
	if marks == nil && info.Sealed {
		marks = l.ensureMarks(info)
	}
	i := sort.Search(len(marks), func(i int) bool { return marks[i].seq > seq })
	if i == 0 {
		return 0
	}
	return marks[i-1].off
}

// ensureMarks loads or rebuilds the sparse index of a sealed segment.
func (l *Log) ensureMarks(info SegmentInfo) []mark {
	key := KeyIndex(l.opts.Stream, info.ID)
	if v, ok, err := l.meta.get(key); err == nil && ok {
		if marks, ok := decodeMarks(v); ok && validMarks(marks, info) {
			l.setMarks(info.ID, marks)
			return marks
		}
	}
	marks, err := l.buildMarks(info)
	l.setMarks(info.ID, marks)
	if err != nil {
		l.logger.Warn("index rebuilt around damage", logpkg.Uint64("segment", info.ID), logpkg.Err(err))
		return marks
	}
	if err := l.meta.set(key, encodeMarks(marks)); err != nil {
		l.logger.Warn("persist index failed", logpkg.Uint64("segment", info.ID), logpkg.Err(err))
	}
	return marks
}

func validMarks(marks []mark, info SegmentInfo) bool {
	if info.Empty() {
		return len(marks) == 0
	}
	if len(marks) == 0 || marks[0].seq < info.FirstSeq {
		return false
	}
	if marks[0].seq == info.FirstSeq && marks[0].off != 0 {
		return false
	}
	for i, m := range marks {
		if m.seq > info.LastSeq || m.off >= info.Size {
			return false
		}
		if i > 0 && (m.seq <= marks[i-1].seq || m.off <= marks[i-1].off) {
			return false
		}
	}
	return true
}

// buildMarks scans a segment for its sparse index. A record that fails its checksum
// is stepped over and the record after it is always marked, so reads past the
// damage do not have to cross it.
func (l *Log) buildMarks(info SegmentInfo) ([]mark, error) {
	r, err := segment.OpenReader(info.Path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	var (
		marks   []mark
		damaged error
		force   bool
	)
	for off := int64(0); off < info.Size; {
		rec, n, err := r.ReadAt(off, info.Size)
		if err != nil {
			if !segment.IsCorrupt(err) || n == 0 {
				return marks, &segment.ScanError{Offset: off, Err: err}
			}
			if damaged == nil {
				damaged = &segment.ScanError{Offset: off, Err: err}
			}
			force = true
			off += int64(n)
			continue
		}
		if force || l.isMarkSeq(info.FirstSeq, rec.Seq) {
			marks = append(marks, mark{seq: rec.Seq, off: off})
			force = false
		}
		off += int64(n)
	}
	return marks, damaged
}

func (l *Log) isMarkSeq(first, seq uint64) bool {
	return (seq-first)%uint64(l.opts.IndexInterval) == 0
}

func (l *Log) setMarks(id uint64, marks []mark) {
	l.segMu.Lock()
	defer l.segMu.Unlock()
	for _, s := range l.segs {
		if s.ID == id {
			s.marks = marks
			return
		}
	}
}
