package segment

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ErrRollback is returned when a failed append could not be undone. The segment then
// holds bytes past its committed end and must not accept further writes.
var ErrRollback = errors.New("segment: rollback of failed write failed")

// ErrSealed is returned when writing to a sealed segment.
var ErrSealed = errors.New("segment: sealed")

// File is the subset of *os.File used by a writable segment.
type File interface {
	io.ReaderAt
	io.WriterAt
	Truncate(size int64) error
	Sync() error
	Close() error
	Stat() (os.FileInfo, error)
}

// OpenFile opens segment files for writing. Tests replace it to inject I/O failures.
var OpenFile = func(path string, flag int, perm os.FileMode) (File, error) {
	return os.OpenFile(path, flag, perm)
}

// Segment is a writable handle on one segment file.
type Segment struct {
	path string
	f    File
	hdr  Header
	size int64 // committed data bytes, header excluded
}

// ScanError locates a record that could not be decoded.
type ScanError struct {
	Offset int64
	Seq    uint64 // sequence expected at Offset, 0 if unknown
	Err    error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("segment: offset %d (seq %d): %v", e.Offset, e.Seq, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// RecoverResult summarizes the recovery of an open segment.
type RecoverResult struct {
	Entries   uint64
	Truncated int64 // bytes of a torn tail discarded past the last record
	Cause     error // why scanning stopped early, nil for a clean tail
	// Damaged lists checksum-failing records followed by intact ones. They are left
	// in place; the segment must be sealed rather than appended to.
	Damaged []*ScanError
}

// Create makes a new open segment file with the given identity.
func Create(dir string, id, firstSeq uint64, now time.Time) (*Segment, error) {
	path := Path(dir, id)
	f, err := OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", id, err)
	}
	s := &Segment{
		path: path,
		f:    f,
		hdr:  Header{ID: id, Created: now.UTC(), FirstSeq: firstSeq},
	}
	if err := s.writeHeader(); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, err
	}
	if err := SyncDir(dir); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create segment %d: sync dir: %w", id, err)
	}
	return s, nil
}

// Open opens an existing segment file. A sealed segment is ready for use; an open
// segment must be recovered with Recover before appending. A damaged header is treated
// as an open segment whose identity is taken from the file name.
func Open(path string) (*Segment, error) {
	f, err := OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	s := &Segment{path: path, f: f}
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil && !errors.Is(err, io.EOF) {
		_ = f.Close()
		return nil, fmt.Errorf("read header %s: %w", path, err)
	}
	if err := s.hdr.UnmarshalBinary(buf); err != nil {
		id, ok := ParseFileName(filepath.Base(path))
		if !ok {
			_ = f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		s.hdr = Header{ID: id}
		if st, serr := f.Stat(); serr == nil {
			s.hdr.Created = st.ModTime().UTC()
		}
		return s, nil
	}
	if s.hdr.Sealed {
		st, err := f.Stat()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if st.Size() < HeaderSize+s.hdr.DataSize {
			_ = f.Close()
			return nil, fmt.Errorf("%s: sealed size %d exceeds file: %w", path, s.hdr.DataSize, ErrTruncated)
		}
		s.size = s.hdr.DataSize
	}
	return s, nil
}

// Recover scans an open segment, establishes its committed end and truncates a torn
// tail: a last record cut short or failing its checksum, or zero fill left by a crash.
// A damaged record followed by an intact one is kept and reported in Damaged. Damage
// that cannot be stepped over returns a *ScanError and nothing is truncated.
// Sequence numbers must be contiguous starting at FirstSeq (or at expectSeq when the
// header did not survive).
func (s *Segment) Recover(expectSeq uint64) (RecoverResult, error) {
	if s.hdr.Sealed {
		return RecoverResult{Entries: s.hdr.Entries()}, nil
	}
	st, err := s.f.Stat()
	if err != nil {
		return RecoverResult{}, err
	}
	end := st.Size() - HeaderSize
	if end < 0 {
		end = 0
	}
	if s.hdr.FirstSeq == 0 {
		s.hdr.FirstSeq = expectSeq
	}
	var res RecoverResult
	next := s.hdr.FirstSeq
	var off int64
	for off < end {
		rec, n, err := ReadRecordAt(s.f, off, end)
		if err == nil && next != 0 && rec.Seq != next {
			return res, &ScanError{Offset: off, Seq: next, Err: fmt.Errorf("segment: seq %d, want %d: %w", rec.Seq, next, ErrChecksum)}
		}
		if err != nil {
			if !IsCorrupt(err) {
				return res, err
			}
			serr := &ScanError{Offset: off, Seq: next, Err: err}
			torn, terr := s.tornAt(off, end, next, n)
			if terr != nil {
				return res, terr
			}
			if torn {
				res.Cause = serr
				break
			}
			if n == 0 || next == 0 || !s.intactAt(off+int64(n), end, next+1) {
				return res, serr
			}
			// the frame is bad but the log continues after it
			res.Damaged = append(res.Damaged, serr)
			if res.Entries == 0 {
				s.hdr.FirstSeq = next
			}
			s.hdr.LastSeq = next
			res.Entries++
			next++
			off += int64(n)
			continue
		}
		if res.Entries == 0 {
			s.hdr.FirstSeq = rec.Seq
		}
		if s.hdr.FirstTs.IsZero() {
			s.hdr.FirstTs = fromNs(rec.TimeNs)
		}
		s.hdr.LastSeq = rec.Seq
		s.hdr.LastTs = fromNs(rec.TimeNs)
		res.Entries++
		next = rec.Seq + 1
		off += int64(n)
	}
	s.size = off
	if end > off {
		res.Truncated = end - off
		if err := s.f.Truncate(HeaderSize + off); err != nil {
			return res, fmt.Errorf("truncate tail: %w", err)
		}
		if err := s.f.Sync(); err != nil {
			return res, err
		}
	}
	if st.Size() < HeaderSize {
		// header never made it to disk
		if err := s.writeHeader(); err != nil {
			return res, err
		}
	}
	return res, nil
}

// tornAt reports whether the failure at off is the residue of an interrupted write:
// a bad frame that is the last one, nothing but zero bytes up to end, or an unusable
// length prefix with no intact record anywhere behind it.
func (s *Segment) tornAt(off, end int64, seq uint64, n int) (bool, error) {
	if n > 0 && off+int64(n) == end {
		return true, nil
	}
	buf := make([]byte, end-off)
	if _, err := s.f.ReadAt(buf, HeaderSize+off); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	if allZero(buf) {
		return true, nil
	}
	if n > 0 {
		return false, nil
	}
	return !resyncs(buf, seq), nil
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

// resyncs reports whether an intact record following seq starts somewhere in b[1:].
// Records are at least RecordOverhead bytes, which bounds how far its seq can be
// from seq at a given distance.
func resyncs(b []byte, seq uint64) bool {
	for pos := 1; pos+RecordOverhead <= len(b); pos++ {
		rec, err := DecodeRecord(b[pos:])
		if err == nil && rec.Seq > seq && rec.Seq-seq <= uint64(pos/RecordOverhead) {
			return true
		}
	}
	return false
}

// intactAt reports whether a valid record with sequence seq starts at off.
func (s *Segment) intactAt(off, end int64, seq uint64) bool {
	rec, _, err := ReadRecordAt(s.f, off, end)
	return err == nil && rec.Seq == seq
}

// Append writes r at the committed end. The committed end only moves after the write
// (and, when sync is set, the fsync) succeeded; on failure the file is truncated back.
func (s *Segment) Append(r Record, sync bool) (int64, error) {
	if s.hdr.Sealed {
		return 0, ErrSealed
	}
	buf := EncodeRecord(r)
	off := s.size
	if _, err := s.f.WriteAt(buf, HeaderSize+off); err != nil {
		return 0, s.rollback(err)
	}
	if sync {
		if err := s.f.Sync(); err != nil {
			return 0, s.rollback(err)
		}
	}
	s.size += int64(len(buf))
	if s.hdr.Empty() {
		s.hdr.FirstSeq = r.Seq
		s.hdr.FirstTs = fromNs(r.TimeNs)
	}
	s.hdr.LastSeq = r.Seq
	s.hdr.LastTs = fromNs(r.TimeNs)
	return off, nil
}

func (s *Segment) rollback(cause error) error {
	if err := s.f.Truncate(HeaderSize + s.size); err != nil {
		return fmt.Errorf("%w: %w (truncate: %v)", ErrRollback, cause, err)
	}
	return cause
}

// Sync flushes written records to stable storage.
func (s *Segment) Sync() error { return s.f.Sync() }

// Seal records the final header and makes the segment read-only. Sealing always syncs.
func (s *Segment) Seal(now time.Time) error {
	if s.hdr.Sealed {
		return nil
	}
	if err := s.f.Sync(); err != nil {
		return err
	}
	h := s.hdr
	h.Sealed = true
	h.SealedAt = now.UTC()
	h.DataSize = s.size
	prev := s.hdr
	s.hdr = h
	if err := s.writeHeader(); err != nil {
		s.hdr = prev
		return err
	}
	return nil
}

func (s *Segment) writeHeader() error {
	b, _ := s.hdr.MarshalBinary()
	if _, err := s.f.WriteAt(b, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return s.f.Sync()
}

// Header returns the in-memory header, including unsealed progress.
func (s *Segment) Header() Header {
	h := s.hdr
	h.DataSize = s.size
	return h
}

// ID returns the segment id.
func (s *Segment) ID() uint64 { return s.hdr.ID }

// Size returns the committed data size in bytes.
func (s *Segment) Size() int64 { return s.size }

// Path returns the file path.
func (s *Segment) Path() string { return s.path }

// Close releases the file handle.
func (s *Segment) Close() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
