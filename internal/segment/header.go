package segment

import (
	"encoding/binary"
	"errors"
	"hash/crc32"
	"time"
)

const (
	// HeaderSize is the fixed size of the header block at the start of every segment file.
	HeaderSize = 80

	headerVersion = 1
	flagSealed    = 1 << 0
)

var headerMagic = [4]byte{'S', 'G', 'L', 'G'}

// ErrBadHeader is returned when a header block fails magic, version or crc checks.
var ErrBadHeader = errors.New("segment: invalid header")

// Header describes a segment. For open segments only ID, Created and FirstSeq are
// authoritative; the rest is maintained in memory and persisted on Seal.
type Header struct {
	ID       uint64
	Sealed   bool
	Created  time.Time
	SealedAt time.Time
	FirstSeq uint64
	LastSeq  uint64 // 0 when the segment holds no entries
	DataSize int64
	FirstTs  time.Time
	LastTs   time.Time
}

// Entries returns the number of entries described by the header.
func (h Header) Entries() uint64 {
	if h.LastSeq == 0 || h.LastSeq < h.FirstSeq {
		return 0
	}
	return h.LastSeq - h.FirstSeq + 1
}

// Empty reports whether the segment holds no entries.
func (h Header) Empty() bool { return h.Entries() == 0 }

// LastWrite returns the best known time of the last write to the segment.
func (h Header) LastWrite() time.Time {
	if !h.LastTs.IsZero() {
		return h.LastTs
	}
	if h.Sealed && !h.SealedAt.IsZero() {
		return h.SealedAt
	}
	return h.Created
}

func unixNs(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNs(ns int64) time.Time {
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns).UTC()
}

// MarshalBinary encodes the header block.
func (h Header) MarshalBinary() ([]byte, error) {
	b := make([]byte, HeaderSize)
	copy(b[0:4], headerMagic[:])
	b[4] = headerVersion
	if h.Sealed {
		b[5] |= flagSealed
	}
	binary.BigEndian.PutUint64(b[8:16], h.ID)
	binary.BigEndian.PutUint64(b[16:24], uint64(unixNs(h.Created)))
	binary.BigEndian.PutUint64(b[24:32], uint64(unixNs(h.SealedAt)))
	binary.BigEndian.PutUint64(b[32:40], h.FirstSeq)
	binary.BigEndian.PutUint64(b[40:48], h.LastSeq)
	binary.BigEndian.PutUint64(b[48:56], uint64(h.DataSize))
	binary.BigEndian.PutUint64(b[56:64], uint64(unixNs(h.FirstTs)))
	binary.BigEndian.PutUint64(b[64:72], uint64(unixNs(h.LastTs)))
	binary.BigEndian.PutUint32(b[76:80], crc32.Checksum(b[:76], castagnoli))
	return b, nil
}

// UnmarshalBinary decodes a header block.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) < HeaderSize {
		return ErrBadHeader
	}
	if [4]byte{b[0], b[1], b[2], b[3]} != headerMagic || b[4] != headerVersion {
		return ErrBadHeader
	}
	if crc32.Checksum(b[:76], castagnoli) != binary.BigEndian.Uint32(b[76:80]) {
		return ErrBadHeader
	}
	*h = Header{
		ID:       binary.BigEndian.Uint64(b[8:16]),
		Sealed:   b[5]&flagSealed != 0,
		Created:  fromNs(int64(binary.BigEndian.Uint64(b[16:24]))),
		SealedAt: fromNs(int64(binary.BigEndian.Uint64(b[24:32]))),
		FirstSeq: binary.BigEndian.Uint64(b[32:40]),
		LastSeq:  binary.BigEndian.Uint64(b[40:48]),
		DataSize: int64(binary.BigEndian.Uint64(b[48:56])),
		FirstTs:  fromNs(int64(binary.BigEndian.Uint64(b[56:64]))),
		LastTs:   fromNs(int64(binary.BigEndian.Uint64(b[64:72]))),
	}
	return nil
}
