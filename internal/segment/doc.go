// Package segment implements the on-disk format of a single log segment.
//
// # Layout
//
// A segment file is a fixed 80-byte header block followed by a run of records:
//
//	header: magic "SGLG" | version | flags | id | created | sealed | firstSeq | lastSeq |
//	        dataSize | firstTs | lastTs | crc32c(header)
//	record: len(4B BE) | seq(8B BE) | ts_ns(8B BE) | payload | crc32c(len|seq|ts|payload)
//
// Files are named by segment id in fixed-width hex ("000000000000002a.seg") so that a
// lexical directory listing is also the rotation order.
//
// The header of an open segment only carries its identity (id, created, firstSeq). The
// remaining fields are written once, when the segment is sealed. Recovery of an open
// segment therefore scans records and stops at the first incomplete or checksum-failing
// one; everything before that point is the committed content.
//
// Usage
//
//	s, _ := segment.Create(dir, 1, 1, time.Now())
//	_, _ = s.Append(segment.Record{Seq: 1, TimeNs: time.Now().UnixNano(), Payload: p}, true)
//	_ = s.Seal(time.Now(), true)
//	_ = s.Close()
package segment
