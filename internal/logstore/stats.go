package logstore

import (
	"sync"
	"time"
)

// LatencyStats aggregates observed durations.
type LatencyStats struct {
	Count uint64
	Total time.Duration
	Max   time.Duration
}

// Avg returns the mean latency, zero when nothing was observed.
func (s LatencyStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Observe records one duration.
func (s *LatencyStats) Observe(d time.Duration) {
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

// Stats is a point-in-time copy of the log's counters.
type Stats struct {
	AppendsOK       uint64
	AppendsFailed   uint64 // storage failures
	AppendsRejected uint64 // payload too large
	AppendLatency   LatencyStats
	ReadLatency     LatencyStats
	CorruptReads    uint64
	Rotations       uint64
	LastRotation    time.Time
	Recovered       time.Time
	TruncatedBytes  int64 // discarded from the open segment tail at Open
}

// WriteSuccessRate is the share of attempted storage writes that succeeded.
// Rejected payloads never reach storage and are not counted. Returns 1 when idle.
func (s Stats) WriteSuccessRate() float64 {
	total := s.AppendsOK + s.AppendsFailed
	if total == 0 {
		return 1
	}
	return float64(s.AppendsOK) / float64(total)
}

type statsRecorder struct {
	mu sync.Mutex
	s  Stats
}

func (r *statsRecorder) update(fn func(*Stats)) {
	r.mu.Lock()
	fn(&r.s)
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.s
}

// Stats returns a copy of the log's counters.
func (l *Log) Stats() Stats { return l.stats.snapshot() }
