// Package report assembles the operational storage report of a stream: footprint,
// growth, write success, rotation status, latency and optionally integrity.
package report

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/retention"
	"github.com/rzbill/seglog/internal/runtime"
)

// LogSource is the part of a log a report reads.
type LogSource interface {
	Stream() string
	Stats() logstore.Stats
	Segments() []logstore.SegmentInfo
	VerifyIntegrity(ctx context.Context, id uint64) (logstore.VerifyResult, error)
}

// UsageSource computes storage usage. *retention.Manager implements it.
type UsageSource interface {
	Usage(ctx context.Context) (retention.Usage, error)
}

// MetaSource reports metadata store traffic. *runtime.Runtime implements it.
type MetaSource interface {
	MetaStats() runtime.MetaStats
}

// Options selects optional report sections.
type Options struct {
	// Verify re-checks every segment and fills Integrity.
	Verify bool
	// Meta fills Metadata when set.
	Meta MetaSource
	Now  func() time.Time
}

// Report is the JSON-serializable operational report of one stream.
type Report struct {
	Stream           string     `json:"stream"`
	GeneratedAt      time.Time  `json:"generatedAt"`
	TotalBytes       int64      `json:"totalBytes"`
	EntryCount       uint64     `json:"entryCount"`
	AvgEntrySize     float64    `json:"avgEntrySize"`
	DailyGrowthBytes float64    `json:"dailyGrowthBytes"`
	GrowthWindow     string     `json:"growthWindow"`
	WriteSuccessRate float64    `json:"writeSuccessRate"`
	AppendsOK        uint64     `json:"appendsOk"`
	AppendsFailed    uint64     `json:"appendsFailed"`
	AppendsRejected  uint64     `json:"appendsRejected"`
	Rotation         Rotation   `json:"rotation"`
	Latency          Latency    `json:"latency"`
	Integrity        *Integrity `json:"integrity,omitempty"`
	// Metadata is process-wide, shared by every stream of the data directory.
	Metadata *runtime.MetaStats `json:"metadata,omitempty"`
}

// Rotation describes segment rotation status.
type Rotation struct {
	Segments     int       `json:"segments"`
	Sealed       int       `json:"sealed"`
	OpenSegment  uint64    `json:"openSegment"`
	OpenBytes    int64     `json:"openBytes"`
	Rotations    uint64    `json:"rotations"`
	LastRotation time.Time `json:"lastRotation,omitempty"`
}

// Latency reports append and read latency observed since the log was opened.
type Latency struct {
	AvgWrite time.Duration `json:"avgWriteNs"`
	MaxWrite time.Duration `json:"maxWriteNs"`
	AvgRead  time.Duration `json:"avgReadNs"`
	MaxRead  time.Duration `json:"maxReadNs"`
}

// Integrity summarizes a verification of every segment.
type Integrity struct {
	Checked int                     `json:"checked"`
	Corrupt []logstore.VerifyResult `json:"corrupt,omitempty"`
}

// Build assembles the report.
func Build(ctx context.Context, l LogSource, usage UsageSource, opts Options) (Report, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	u, err := usage.Usage(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("usage: %w", err)
	}
	st := l.Stats()
	segs := l.Segments()
	r := Report{
		Stream:           l.Stream(),
		GeneratedAt:      now().UTC(),
		TotalBytes:       u.TotalBytes,
		EntryCount:       u.EntryCount,
		AvgEntrySize:     u.AvgEntrySize,
		DailyGrowthBytes: u.DailyGrowthBytes,
		GrowthWindow:     u.GrowthWindow,
		WriteSuccessRate: st.WriteSuccessRate(),
		AppendsOK:        st.AppendsOK,
		AppendsFailed:    st.AppendsFailed,
		AppendsRejected:  st.AppendsRejected,
		Rotation: Rotation{
			Segments:     len(segs),
			Sealed:       u.SealedSegments,
			Rotations:    st.Rotations,
			LastRotation: st.LastRotation,
		},
		Latency: Latency{
			AvgWrite: st.AppendLatency.Avg(),
			MaxWrite: st.AppendLatency.Max,
			AvgRead:  st.ReadLatency.Avg(),
			MaxRead:  st.ReadLatency.Max,
		},
	}
	if n := len(segs); n > 0 {
		r.Rotation.OpenSegment = segs[n-1].ID
		r.Rotation.OpenBytes = segs[n-1].Size
	}
	if opts.Meta != nil {
		ms := opts.Meta.MetaStats()
		r.Metadata = &ms
	}
	if !opts.Verify {
		return r, nil
	}
	in := &Integrity{}
	for _, s := range segs {
		res, err := l.VerifyIntegrity(ctx, s.ID)
		if err != nil {
			if ctx.Err() != nil {
				return r, ctx.Err()
			}
			res = logstore.VerifyResult{Segment: s.ID, CorruptAt: -1, Err: err}
		}
		in.Checked++
		if !res.OK {
			in.Corrupt = append(in.Corrupt, res)
		}
	}
	r.Integrity = in
	return r, nil
}

// WriteText renders the report as aligned key/value lines.
func WriteText(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	line := func(k string, v any) { fmt.Fprintf(tw, "%s\t%v\n", k, v) }
	line("stream", r.Stream)
	line("generated", r.GeneratedAt.Format(time.RFC3339))
	line("total storage", humanBytes(float64(r.TotalBytes)))
	line("entries", r.EntryCount)
	line("avg entry size", fmt.Sprintf("%.1f B", r.AvgEntrySize))
	line("daily growth", humanBytes(r.DailyGrowthBytes)+"/day (window "+r.GrowthWindow+")")
	line("write success", fmt.Sprintf("%.4f%% (%d ok, %d failed, %d rejected)", r.WriteSuccessRate*100, r.AppendsOK, r.AppendsFailed, r.AppendsRejected))
	line("segments", fmt.Sprintf("%d (%d sealed), open #%d at %s", r.Rotation.Segments, r.Rotation.Sealed, r.Rotation.OpenSegment, humanBytes(float64(r.Rotation.OpenBytes))))
	last := "never"
	if !r.Rotation.LastRotation.IsZero() {
		last = r.Rotation.LastRotation.Format(time.RFC3339)
	}
	line("rotations", fmt.Sprintf("%d, last %s", r.Rotation.Rotations, last))
	line("write latency", fmt.Sprintf("avg %s, max %s", r.Latency.AvgWrite, r.Latency.MaxWrite))
	line("read latency", fmt.Sprintf("avg %s, max %s", r.Latency.AvgRead, r.Latency.MaxRead))
	if m := r.Metadata; m != nil {
		line("metadata store", fmt.Sprintf("%d writes avg %s, %d reads avg %s, %d commits",
			m.Writes.Count, m.Writes.Avg(), m.Reads.Count, m.Reads.Avg(), m.Commits.Count))
	}
	if r.Integrity != nil {
		status := "ok"
		if len(r.Integrity.Corrupt) > 0 {
			status = fmt.Sprintf("%d corrupt", len(r.Integrity.Corrupt))
		}
		line("integrity", fmt.Sprintf("%d segments checked, %s", r.Integrity.Checked, status))
		for _, c := range r.Integrity.Corrupt {
			line(fmt.Sprintf("  segment %d", c.Segment), fmt.Sprintf("offset %d seq %d: %v", c.CorruptAt, c.CorruptSeq, c.Err))
		}
	}
	return tw.Flush()
}

func humanBytes(b float64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%.0f B", b)
	}
	div, exp := float64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", b/div, "KMGTPE"[exp])
}
