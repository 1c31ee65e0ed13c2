package segment

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"io"
)

// Record encoding: len(4) | seq(8) | ts_ns(8) | payload | crc32c(len|seq|ts|payload)

const (
	// RecordPrefixSize is the fixed part written before the payload.
	RecordPrefixSize = 4 + 8 + 8
	// RecordOverhead is the number of framing bytes added to every payload.
	RecordOverhead = RecordPrefixSize + 4
	// MaxPayloadSize bounds the length field so a corrupted prefix cannot request huge reads.
	MaxPayloadSize = 64 << 20
)

var (
	// ErrChecksum reports a record whose crc does not match its contents.
	ErrChecksum = errors.New("segment: record checksum mismatch")
	// ErrTruncated reports a record that extends past the readable end of the segment.
	ErrTruncated = errors.New("segment: truncated record")
	// ErrBadLength reports a length prefix outside the permitted range.
	ErrBadLength = errors.New("segment: invalid record length")
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Record is one framed log entry as stored in a segment.
type Record struct {
	Seq     uint64
	TimeNs  int64
	Payload []byte
}

// Size returns the encoded size of r.
func (r Record) Size() int { return RecordOverhead + len(r.Payload) }

// EncodeRecord frames r into a single buffer so it can be written with one call.
func EncodeRecord(r Record) []byte {
	out := make([]byte, RecordPrefixSize, r.Size())
	binary.BigEndian.PutUint32(out[0:4], uint32(len(r.Payload)))
	binary.BigEndian.PutUint64(out[4:12], r.Seq)
	binary.BigEndian.PutUint64(out[12:20], uint64(r.TimeNs))
	out = append(out, r.Payload...)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc32.Checksum(out, castagnoli))
	return append(out, crcb[:]...)
}

// DecodeRecord parses a complete frame. It returns ErrTruncated when b is shorter than the
// frame it announces and ErrChecksum when the crc does not match.
func DecodeRecord(b []byte) (Record, error) {
	if len(b) < RecordOverhead {
		return Record{}, ErrTruncated
	}
	n := binary.BigEndian.Uint32(b[0:4])
	if n > MaxPayloadSize {
		return Record{}, ErrBadLength
	}
	total := RecordOverhead + int(n)
	if len(b) < total {
		return Record{}, ErrTruncated
	}
	body := b[:RecordPrefixSize+int(n)]
	expect := binary.BigEndian.Uint32(b[RecordPrefixSize+int(n) : total])
	if crc32.Checksum(body, castagnoli) != expect {
		return Record{}, ErrChecksum
	}
	return Record{
		Seq:     binary.BigEndian.Uint64(b[4:12]),
		TimeNs:  int64(binary.BigEndian.Uint64(b[12:20])),
		Payload: append([]byte(nil), b[RecordPrefixSize:RecordPrefixSize+int(n)]...),
	}, nil
}

// ReadRecordAt reads the record starting at data offset off. end is the first data offset
// that must not be read (the committed size). The returned int is the frame size; it is
// also set for a frame that lies within end but fails its checksum, so callers can step
// over it.
func ReadRecordAt(r io.ReaderAt, off, end int64) (Record, int, error) {
	if off+RecordPrefixSize > end {
		return Record{}, 0, ErrTruncated
	}
	var prefix [RecordPrefixSize]byte
	if _, err := r.ReadAt(prefix[:], HeaderSize+off); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, 0, ErrTruncated
		}
		return Record{}, 0, err
	}
	n := binary.BigEndian.Uint32(prefix[0:4])
	if n > MaxPayloadSize {
		return Record{}, 0, ErrBadLength
	}
	total := RecordOverhead + int(n)
	if off+int64(total) > end {
		return Record{}, 0, ErrTruncated
	}
	buf := make([]byte, total)
	copy(buf, prefix[:])
	if _, err := r.ReadAt(buf[RecordPrefixSize:], HeaderSize+off+RecordPrefixSize); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, 0, ErrTruncated
		}
		return Record{}, 0, err
	}
	rec, err := DecodeRecord(buf)
	if err != nil {
		return Record{}, total, err
	}
	return rec, total, nil
}

// IsCorrupt reports whether err describes damaged record bytes rather than an I/O failure.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrChecksum) || errors.Is(err, ErrTruncated) || errors.Is(err, ErrBadLength)
}
