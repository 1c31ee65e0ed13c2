package retention

import (
	"context"
	"time"

	"github.com/rzbill/seglog/internal/logstore"
)

// Usage describes the storage footprint of a log.
type Usage struct {
	TotalBytes        int64     `json:"totalBytes"`
	EntryCount        uint64    `json:"entryCount"`
	AvgEntrySize      float64   `json:"avgEntrySize"`
	GrowthBytesPerSec float64   `json:"growthBytesPerSec"`
	DailyGrowthBytes  float64   `json:"dailyGrowthBytes"`
	GrowthWindow      string    `json:"growthWindow"`
	Segments          int       `json:"segments"`
	SealedSegments    int       `json:"sealedSegments"`
	OldestEntry       time.Time `json:"oldestEntry,omitempty"`
	NewestEntry       time.Time `json:"newestEntry,omitempty"`
}

// Usage computes the footprint from segment metadata; no record is read.
// AvgEntrySize counts record bytes including framing.
func (m *Manager) Usage(ctx context.Context) (Usage, error) {
	if err := ctx.Err(); err != nil {
		return Usage{}, err
	}
	segs := m.log.Segments()
	now := m.opts.Now()
	u := Usage{Segments: len(segs), GrowthWindow: m.opts.GrowthWindow.String()}
	var recordBytes int64
	for _, s := range segs {
		u.TotalBytes += SegmentBytes(s)
		if s.Sealed {
			u.SealedSegments++
		}
		if s.Empty() {
			continue
		}
		u.EntryCount += s.Entries()
		recordBytes += s.Size
		if u.OldestEntry.IsZero() || s.FirstTs.Before(u.OldestEntry) {
			u.OldestEntry = s.FirstTs
		}
		if s.LastTs.After(u.NewestEntry) {
			u.NewestEntry = s.LastTs
		}
	}
	if u.EntryCount > 0 {
		u.AvgEntrySize = float64(recordBytes) / float64(u.EntryCount)
	}
	u.GrowthBytesPerSec = growthRate(segs, now, m.opts.GrowthWindow)
	u.DailyGrowthBytes = u.GrowthBytesPerSec * (24 * time.Hour).Seconds()
	return u, nil
}

// growthRate attributes each segment's record bytes to the lookback window in
// proportion to how much of its write interval falls inside it. A log younger than
// the window is measured over its own age.
func growthRate(segs []logstore.SegmentInfo, now time.Time, window time.Duration) float64 {
	start := now.Add(-window)
	var oldest time.Time
	var bytes float64
	for _, s := range segs {
		if s.Empty() {
			continue
		}
		if oldest.IsZero() {
			oldest = s.FirstTs
		}
		bytes += overlap(s, start, now)
	}
	if oldest.IsZero() {
		return 0
	}
	span := window
	if age := now.Sub(oldest); age < span {
		span = age
	}
	if span < time.Second {
		span = time.Second
	}
	return bytes / span.Seconds()
}

func overlap(s logstore.SegmentInfo, from, to time.Time) float64 {
	first, last := s.FirstTs, s.LastTs
	if last.Before(from) || first.After(to) {
		return 0
	}
	d := last.Sub(first)
	if d <= 0 {
		return float64(s.Size)
	}
	lo, hi := first, last
	if lo.Before(from) {
		lo = from
	}
	if hi.After(to) {
		hi = to
	}
	return float64(s.Size) * float64(hi.Sub(lo)) / float64(d)
}
