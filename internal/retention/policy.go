package retention

import (
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/segment"
)

// ErrInvalidPolicy is returned for negative limits.
var ErrInvalidPolicy = errors.New("retention: invalid policy")

// Policy selects sealed segments for removal. Zero values disable a rule.
type Policy struct {
	// MaxAge removes segments whose last write is strictly older than now-MaxAge.
	MaxAge time.Duration `json:"maxAge" yaml:"maxAge"`
	// MaxBytes removes the oldest segments while the log's total footprint exceeds it.
	MaxBytes int64 `json:"maxBytes" yaml:"maxBytes"`
	// ArchiveDir, when set, receives removed segment files instead of deleting them.
	ArchiveDir string `json:"archiveDir" yaml:"archiveDir"`
}

// Validate checks the policy limits.
func (p Policy) Validate() error {
	if p.MaxAge < 0 {
		return fmt.Errorf("%w: negative max age %s", ErrInvalidPolicy, p.MaxAge)
	}
	if p.MaxBytes < 0 {
		return fmt.Errorf("%w: negative max bytes %d", ErrInvalidPolicy, p.MaxBytes)
	}
	return nil
}

// Enabled reports whether any rule is active.
func (p Policy) Enabled() bool { return p.MaxAge > 0 || p.MaxBytes > 0 }

// SegmentBytes is the on-disk footprint of a segment: header block plus records.
func SegmentBytes(info logstore.SegmentInfo) int64 {
	return segment.HeaderSize + info.Size
}
