// Package retention removes old sealed segments from a log and reports storage usage.
//
// A Manager works on the segment index only. Eligibility is decided from segment
// headers (last write time, byte size) and removal goes through
// logstore.Log.RemoveSegment, which refuses the open segment. Passes run outside
// the writer lock and may be cancelled between segments.
package retention
