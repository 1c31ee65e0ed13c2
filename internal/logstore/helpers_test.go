package logstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rzbill/seglog/internal/segment"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// payload returns a 6-byte payload, which makes a 30-byte record.
func payload(i int) []byte { return []byte(fmt.Sprintf("%06d", i)) }

func openTestLog(t *testing.T, opts Options) *Log {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	l, err := Open(context.Background(), opts)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func smallLog(t *testing.T) *Log {
	t.Helper()
	return openTestLog(t, Options{MaxSegmentBytes: 1000, IndexInterval: 8})
}

func appendN(t *testing.T, l *Log, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		if _, err := l.Append(ctx, payload(i)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

// flipByte damages one byte at data offset off of segment id.
func flipByte(t *testing.T, dir string, id uint64, off int64) {
	t.Helper()
	f, err := os.OpenFile(segment.Path(dir, id), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open segment file: %v", err)
	}
	defer f.Close()
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, segment.HeaderSize+off); err != nil {
		t.Fatalf("read byte: %v", err)
	}
	b[0] ^= 0xff
	if _, err := f.WriteAt(b, segment.HeaderSize+off); err != nil {
		t.Fatalf("write byte: %v", err)
	}
}
