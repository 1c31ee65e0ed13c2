package runtime

import (
	"sync"
	"time"

	"github.com/rzbill/seglog/internal/logstore"
)

// MetaStats summarizes metadata store traffic (index marks, checkpoints, cursors,
// stream registry) since the runtime opened.
type MetaStats struct {
	Writes       logstore.LatencyStats `json:"writes"`
	Reads        logstore.LatencyStats `json:"reads"`
	Commits      logstore.LatencyStats `json:"commits"`
	BytesWritten int64                 `json:"bytesWritten"`
	BytesRead    int64                 `json:"bytesRead"`
}

// metaMetrics implements pebblestore.MetricsHook.
type metaMetrics struct {
	mu sync.Mutex
	s  MetaStats
}

func (m *metaMetrics) ObserveWrite(elapsed time.Duration, bytes int) {
	m.mu.Lock()
	m.s.Writes.Observe(elapsed)
	m.s.BytesWritten += int64(bytes)
	m.mu.Unlock()
}

func (m *metaMetrics) ObserveRead(elapsed time.Duration, bytes int) {
	m.mu.Lock()
	m.s.Reads.Observe(elapsed)
	m.s.BytesRead += int64(bytes)
	m.mu.Unlock()
}

// ObserveCommit counts commits; Set reports their bytes through ObserveWrite.
func (m *metaMetrics) ObserveCommit(elapsed time.Duration, _ int) {
	m.mu.Lock()
	m.s.Commits.Observe(elapsed)
	m.mu.Unlock()
}

func (m *metaMetrics) snapshot() MetaStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s
}

// MetaStats returns metadata store traffic counters.
func (r *Runtime) MetaStats() MetaStats { return r.metrics.snapshot() }
