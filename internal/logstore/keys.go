package logstore

import (
	"encoding/binary"
)

// Keyspace helpers for the Pebble metadata store.
//
// Layout (byte-wise, lexicographically sortable):
// - idx/{stream}/{seg_be8}        sparse index marks of a sealed segment
// - ckpt/{stream}/{name}          scan checkpoints (verify, retention)
// - cursor/{stream}/{group}       durable reader cursors

var (
	sep          = byte('/')
	idxPrefix    = []byte("idx/")
	ckptPrefix   = []byte("ckpt/")
	cursorPrefix = []byte("cursor/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyIndexPrefix returns the prefix of all index keys of a stream.
func KeyIndexPrefix(stream string) []byte {
	k := make([]byte, 0, len(idxPrefix)+len(stream)+1)
	k = append(k, idxPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	return k
}

// KeyStreamPrefixes returns the prefixes covering every metadata key of a stream.
func KeyStreamPrefixes(stream string) [][]byte {
	out := make([][]byte, 0, 3)
	for _, p := range [][]byte{idxPrefix, ckptPrefix, cursorPrefix} {
		k := make([]byte, 0, len(p)+len(stream)+1)
		k = append(k, p...)
		k = append(k, stream...)
		out = append(out, append(k, sep))
	}
	return out
}

// KeyIndex builds the index key of one segment.
func KeyIndex(stream string, segID uint64) []byte {
	return appendBE8(KeyIndexPrefix(stream), segID)
}

// KeyCheckpoint builds the key of a named scan checkpoint.
func KeyCheckpoint(stream, name string) []byte {
	k := make([]byte, 0, len(ckptPrefix)+len(stream)+len(name)+1)
	k = append(k, ckptPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = append(k, name...)
	return k
}

// KeyCursor builds the durable cursor key of a reader group.
func KeyCursor(stream, group string) []byte {
	k := make([]byte, 0, len(cursorPrefix)+len(stream)+len(group)+1)
	k = append(k, cursorPrefix...)
	k = append(k, stream...)
	k = append(k, sep)
	k = append(k, group...)
	return k
}

func encodeMarks(marks []mark) []byte {
	out := make([]byte, 0, len(marks)*16)
	for _, m := range marks {
		out = appendBE8(out, m.seq)
		out = appendBE8(out, uint64(m.off))
	}
	return out
}

func decodeMarks(b []byte) ([]mark, bool) {
	if len(b)%16 != 0 {
		return nil, false
	}
	marks := make([]mark, 0, len(b)/16)
	for i := 0; i < len(b); i += 16 {
		marks = append(marks, mark{
			seq: binary.BigEndian.Uint64(b[i : i+8]),
			off: int64(binary.BigEndian.Uint64(b[i+8 : i+16])),
		})
	}
	return marks, true
}
