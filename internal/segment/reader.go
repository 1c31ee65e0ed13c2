package segment

import (
	"fmt"
	"io"
	"os"
)

// Reader is a read-only handle on a segment file. Readers never share a file offset
// with the writer, so any number of them may run alongside appends.
type Reader struct {
	f *os.File
}

// OpenReader opens path for reading.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f}, nil
}

// ReadHeader decodes the header block.
func (r *Reader) ReadHeader() (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := r.f.ReadAt(buf, 0); err != nil {
		return Header{}, err
	}
	var h Header
	err := h.UnmarshalBinary(buf)
	return h, err
}

// ReadAt reads the record at data offset off, never past end.
func (r *Reader) ReadAt(off, end int64) (Record, int, error) {
	return ReadRecordAt(r.f, off, end)
}

// Close releases the file handle.
func (r *Reader) Close() error { return r.f.Close() }

// Scan calls fn for every record in [start, end). Decoding failures stop the scan with a
// *ScanError; an error from fn stops it and is returned unchanged.
func Scan(r io.ReaderAt, start, end int64, fn func(off int64, rec Record) error) error {
	off := start
	for off < end {
		rec, n, err := ReadRecordAt(r, off, end)
		if err != nil {
			if IsCorrupt(err) {
				return &ScanError{Offset: off, Err: err}
			}
			return fmt.Errorf("read at %d: %w", off, err)
		}
		if err := fn(off, rec); err != nil {
			return err
		}
		off += int64(n)
	}
	return nil
}

// Scan iterates the records of the reader in [start, end).
func (r *Reader) Scan(start, end int64, fn func(off int64, rec Record) error) error {
	return Scan(r.f, start, end, fn)
}
