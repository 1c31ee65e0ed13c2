package segment

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestRecordChecksumMismatch(t *testing.T) {
	b := EncodeRecord(Record{Seq: 7, TimeNs: 42, Payload: []byte("hello")})
	if len(b) != RecordOverhead+5 {
		t.Fatalf("encoded size %d", len(b))
	}
	rec, err := DecodeRecord(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.Seq != 7 || rec.TimeNs != 42 || string(rec.Payload) != "hello" {
		t.Fatalf("unexpected record %+v", rec)
	}
	b[RecordPrefixSize] ^= 0xff
	if _, err := DecodeRecord(b); !errors.Is(err, ErrChecksum) {
		t.Fatalf("want ErrChecksum, got %v", err)
	}
	if _, err := DecodeRecord(b[:len(b)-1]); !errors.Is(err, ErrTruncated) {
		t.Fatalf("want ErrTruncated, got %v", err)
	}
}

func TestHeaderRejectsDamage(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	h := Header{ID: 3, Sealed: true, Created: now, SealedAt: now.Add(time.Minute), FirstSeq: 10, LastSeq: 19, DataSize: 300}
	b, _ := h.MarshalBinary()
	var got Header
	if err := got.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.ID != 3 || !got.Sealed || got.Entries() != 10 || !got.SealedAt.Equal(h.SealedAt) {
		t.Fatalf("unexpected header %+v", got)
	}
	b[40] ^= 1
	if err := got.UnmarshalBinary(b); !errors.Is(err, ErrBadHeader) {
		t.Fatalf("want ErrBadHeader, got %v", err)
	}
}

func TestFileNames(t *testing.T) {
	name := FileName(42)
	if name != "000000000000002a.seg" {
		t.Fatalf("unexpected name %q", name)
	}
	id, ok := ParseFileName(name)
	if !ok || id != 42 {
		t.Fatalf("parse: %d %v", id, ok)
	}
	for _, bad := range []string{"2a.seg", "000000000000002a.log", "zzzzzzzzzzzzzzzz.seg", "0000000000000000.seg"} {
		if _, ok := ParseFileName(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}

	dir := t.TempDir()
	for _, n := range []string{FileName(3), FileName(1), "notes.txt", FileName(2)} {
		if err := os.WriteFile(filepath.Join(dir, n), nil, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	ids, err := List(dir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 || ids[0] != 1 || ids[2] != 3 {
		t.Fatalf("unexpected ids %v", ids)
	}
}

func TestAppendSealReopen(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	s, err := Create(dir, 1, 1, now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := uint64(1); i <= 3; i++ {
		if _, err := s.Append(Record{Seq: i, TimeNs: now.UnixNano(), Payload: []byte{byte(i)}}, true); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if s.Size() != 3*int64(RecordOverhead+1) {
		t.Fatalf("size %d", s.Size())
	}
	if err := s.Seal(now); err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := s.Append(Record{Seq: 4}, true); !errors.Is(err, ErrSealed) {
		t.Fatalf("want ErrSealed, got %v", err)
	}
	_ = s.Close()

	s2, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s2.Close()
	h := s2.Header()
	if !h.Sealed || h.FirstSeq != 1 || h.LastSeq != 3 || h.DataSize != s2.Size() {
		t.Fatalf("unexpected header %+v", h)
	}

	r, err := OpenReader(Path(dir, 1))
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	defer r.Close()
	var seqs []uint64
	if err := r.Scan(0, h.DataSize, func(_ int64, rec Record) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seqs) != 3 || seqs[2] != 3 {
		t.Fatalf("unexpected seqs %v", seqs)
	}
}

func TestRecoverTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	s, err := Create(dir, 1, 1, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := uint64(1); i <= 2; i++ {
		if _, err := s.Append(Record{Seq: i, Payload: []byte("abc")}, true); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	good := s.Size()
	_ = s.Close()

	torn := EncodeRecord(Record{Seq: 3, Payload: []byte("partial-write")})
	f, err := os.OpenFile(Path(dir, 1), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.Write(torn[:len(torn)-5]); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = f.Close()

	s2, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s2.Close()
	res, err := s2.Recover(1)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Entries != 2 || res.Truncated != int64(len(torn)-5) {
		t.Fatalf("unexpected recovery %+v", res)
	}
	if s2.Size() != good || s2.Header().LastSeq != 2 {
		t.Fatalf("committed end not restored: size=%d hdr=%+v", s2.Size(), s2.Header())
	}
	st, _ := os.Stat(Path(dir, 1))
	if st.Size() != HeaderSize+good {
		t.Fatalf("file not truncated: %d", st.Size())
	}
}

type failingFile struct {
	File
	failWrites bool
}

func (f *failingFile) WriteAt(b []byte, off int64) (int, error) {
	if f.failWrites {
		// emulate a short write that left bytes behind
		n, _ := f.File.WriteAt(b[:len(b)/2], off)
		return n, errors.New("disk full")
	}
	return f.File.WriteAt(b, off)
}

func TestAppendRollsBackFailedWrite(t *testing.T) {
	var ff *failingFile
	orig := OpenFile
	OpenFile = func(path string, flag int, perm os.FileMode) (File, error) {
		f, err := orig(path, flag, perm)
		if err != nil {
			return nil, err
		}
		ff = &failingFile{File: f}
		return ff, nil
	}
	t.Cleanup(func() { OpenFile = orig })

	dir := t.TempDir()
	s, err := Create(dir, 1, 1, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer s.Close()
	if _, err := s.Append(Record{Seq: 1, Payload: []byte("ok")}, true); err != nil {
		t.Fatalf("append: %v", err)
	}
	size := s.Size()
	ff.failWrites = true
	if _, err := s.Append(Record{Seq: 2, Payload: []byte("lost")}, true); err == nil {
		t.Fatalf("expected write failure")
	}
	if s.Size() != size || s.Header().LastSeq != 1 {
		t.Fatalf("committed state moved after failure")
	}
	st, _ := os.Stat(Path(dir, 1))
	if st.Size() != HeaderSize+size {
		t.Fatalf("partial bytes left behind: %d", st.Size())
	}
}

// writeRecords creates segment 1 holding seqs 1..n with 3-byte payloads (27-byte records).
func writeRecords(t *testing.T, dir string, n int) int64 {
	t.Helper()
	s, err := Create(dir, 1, 1, time.Now())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= n; i++ {
		if _, err := s.Append(Record{Seq: uint64(i), Payload: []byte("abc")}, true); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	size := s.Size()
	_ = s.Close()
	return size
}

func patchFile(t *testing.T, path string, off int64, b []byte) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteAt(b, off); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRecoverKeepsRecordsAfterMidSegmentDamage(t *testing.T) {
	dir := t.TempDir()
	size := writeRecords(t, dir, 5)
	// payload of seq 2
	patchFile(t, Path(dir, 1), HeaderSize+27+RecordPrefixSize, []byte{'X'})

	s, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	res, err := s.Recover(1)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Entries != 5 || res.Truncated != 0 || len(res.Damaged) != 1 {
		t.Fatalf("unexpected recovery %+v", res)
	}
	if d := res.Damaged[0]; d.Seq != 2 || d.Offset != 27 || !errors.Is(d, ErrChecksum) {
		t.Fatalf("damaged: %+v", d)
	}
	if h := s.Header(); h.FirstSeq != 1 || h.LastSeq != 5 || s.Size() != size {
		t.Fatalf("header %+v size %d", h, s.Size())
	}
}

func TestRecoverTruncatesZeroFilledTail(t *testing.T) {
	dir := t.TempDir()
	size := writeRecords(t, dir, 3)
	patchFile(t, Path(dir, 1), HeaderSize+size, make([]byte, 64))

	s, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	res, err := s.Recover(1)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if res.Entries != 3 || res.Truncated != 64 || len(res.Damaged) != 0 {
		t.Fatalf("unexpected recovery %+v", res)
	}
	if s.Header().LastSeq != 3 || s.Size() != size {
		t.Fatalf("committed end not restored: size=%d hdr=%+v", s.Size(), s.Header())
	}
}

func TestRecoverRefusesDamagedLengthMidSegment(t *testing.T) {
	dir := t.TempDir()
	size := writeRecords(t, dir, 5)
	// length prefix of seq 2 now points past the end of the file
	patchFile(t, Path(dir, 1), HeaderSize+27, []byte{0x00, 0x10, 0x00, 0x00})

	s, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	_, err = s.Recover(1)
	var serr *ScanError
	if !errors.As(err, &serr) || serr.Offset != 27 || serr.Seq != 2 {
		t.Fatalf("want scan error at seq 2, got %v", err)
	}
	st, err := os.Stat(Path(dir, 1))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if st.Size() != HeaderSize+size {
		t.Fatalf("file truncated to %d", st.Size())
	}
}

func TestRecoverRefusesUnskippableChecksumFailure(t *testing.T) {
	dir := t.TempDir()
	size := writeRecords(t, dir, 5)
	// damage seq 2 and the seq field of seq 3, so nothing intact follows the bad frame
	patchFile(t, Path(dir, 1), HeaderSize+27+RecordPrefixSize, []byte{'X'})
	patchFile(t, Path(dir, 1), HeaderSize+2*27+4, []byte{0xff})

	s, err := Open(Path(dir, 1))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, err := s.Recover(1); !errors.Is(err, ErrChecksum) {
		t.Fatalf("want checksum error, got %v", err)
	}
	st, _ := os.Stat(Path(dir, 1))
	if st.Size() != HeaderSize+size {
		t.Fatalf("file truncated to %d", st.Size())
	}
}
