package logstore

import "errors"

var (
	// ErrPayloadTooLarge is returned before any write when a payload exceeds MaxEntryBytes.
	ErrPayloadTooLarge = errors.New("logstore: payload too large")
	// ErrIO wraps failures of the underlying storage. The append was not acknowledged.
	ErrIO = errors.New("logstore: storage i/o failure")
	// ErrCorruption reports a checksum or framing mismatch in persisted data.
	ErrCorruption = errors.New("logstore: corruption detected")
	// ErrNotFound is returned for sequence numbers or segments outside the retained range.
	ErrNotFound = errors.New("logstore: not found")
	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("logstore: closed")
	// ErrOpenSegment is returned when removal of the open segment is attempted.
	ErrOpenSegment = errors.New("logstore: segment is open for writes")
	// ErrNotOldest is returned when removal would leave a hole in the retained range.
	ErrNotOldest = errors.New("logstore: only the oldest segment can be removed")
)
