// Package logstore implements a segmented, append-only log for a single stream.
//
// # Overview
//
// A Log owns one directory of segment files (see package segment). Exactly one
// segment is open for writes; all others are sealed and immutable. Appends are
// serialized by a writer lock that also covers rotation, so sequence numbers are
// assigned once per successful append and no entry is ever split between two
// segments. Reads take a snapshot of the segment index and proceed without the
// writer lock, reading the open segment only up to its committed end.
//
// API surface (internal)
//
//	l, _ := logstore.Open(ctx, logstore.Options{Dir: dir, Stream: "chat", MaxSegmentBytes: 64 << 20})
//	defer l.Close()
//
//	seq, _ := l.Append(ctx, []byte("hello"))
//	e, _ := l.Read(ctx, seq)
//
//	it := l.ReadRange(ctx, 40, 60)
//	for it.Next() {
//	    _ = it.Entry()
//	}
//	_ = it.Err()   // I/O or context failure
//	_ = it.Gaps()  // ranges skipped because of corruption
//	_ = it.Close()
//
//	res, _ := l.VerifyIntegrity(ctx, segID)
//	_ = res.OK
//
// # Index
//
// The index maps each segment to its sequence range and keeps sparse
// (seq, offset) marks every IndexInterval entries. Marks of sealed segments are
// cached in Pebble when Options.Meta is set and rebuilt by scanning otherwise;
// segment headers alone are enough to rebuild the range map.
//
// # Retention
//
// RemoveSegment is the only way segments leave the log. It refuses the open
// segment and anything but the oldest retained segment, so the retained range
// always stays contiguous. Policy lives in package retention.
package logstore
