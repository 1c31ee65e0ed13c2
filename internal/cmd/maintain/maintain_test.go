package maintain

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	cfgpkg "github.com/rzbill/seglog/internal/config"
	"github.com/rzbill/seglog/internal/runtime"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

func newRuntime(t *testing.T, mutate func(*cfgpkg.Config)) *runtime.Runtime {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.MaxSegmentBytes = 1000
	cfg.Storage.MaxEntryBytes = 512
	if mutate != nil {
		mutate(&cfg)
	}
	rt, err := runtime.Open(context.Background(), runtime.Options{Config: cfg, Logger: logpkg.NewNopLogger()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func fill(t *testing.T, rt *runtime.Runtime, stream string, n int) {
	t.Helper()
	ctx := context.Background()
	l, err := rt.OpenLog(ctx, stream)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for i := 0; i < n; i++ {
		if _, err := l.Append(ctx, []byte(fmt.Sprintf("%06d", i))); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
}

func TestRetentionPassAllStreams(t *testing.T) {
	rt := newRuntime(t, func(c *cfgpkg.Config) {
		c.Retention.MaxAge = 0
		c.Retention.MaxBytes = 1
	})
	fill(t, rt, "a", 100)
	fill(t, rt, "b", 10)

	m := New(rt, nil, nil)
	res, err := m.RetentionPass(context.Background())
	if err != nil {
		t.Fatalf("retention pass: %v", err)
	}
	if got := len(res["a"].Deleted); got != 3 {
		t.Fatalf("stream a: deleted %d segments, want 3", got)
	}
	if got := len(res["b"].Deleted); got != 0 {
		t.Fatalf("stream b: open segment must survive, deleted %d", got)
	}

	again, err := m.RetentionPass(context.Background())
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(again["a"].Deleted) != 0 {
		t.Fatalf("second pass deleted %v", again["a"].Deleted)
	}
}

func TestVerifyPass(t *testing.T) {
	rt := newRuntime(t, nil)
	fill(t, rt, "a", 70)
	m := New(rt, []string{"a"}, nil)
	reps, err := m.VerifyPass(context.Background())
	if err != nil {
		t.Fatalf("verify pass: %v", err)
	}
	rep := reps["a"]
	if !rep.Complete || len(rep.Results) != 3 || len(rep.Corrupt()) != 0 {
		t.Fatalf("report: %+v", rep)
	}
}

func TestPassReportsUnknownStream(t *testing.T) {
	rt := newRuntime(t, func(c *cfgpkg.Config) { c.AllowAutoCreateStreams = false })
	m := New(rt, []string{"missing"}, nil)
	if _, err := m.RetentionPass(context.Background()); err == nil {
		t.Fatalf("expected error for unknown stream")
	}
}

func TestEveryRunsImmediatelyAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- every(ctx, 10*time.Millisecond, func(context.Context) error {
			if calls.Add(1) == 3 {
				cancel()
			}
			return nil
		}, logpkg.NewNopLogger())
	}()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("want context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("loop did not stop")
	}
	if calls.Load() < 3 {
		t.Fatalf("calls %d", calls.Load())
	}
}

func TestEveryDisabled(t *testing.T) {
	called := false
	err := every(context.Background(), 0, func(context.Context) error { called = true; return nil }, logpkg.NewNopLogger())
	if err != nil || called {
		t.Fatalf("disabled loop ran: called=%v err=%v", called, err)
	}
}

func TestLoopReturnsNilOnCancel(t *testing.T) {
	rt := newRuntime(t, func(c *cfgpkg.Config) {
		c.Retention.Interval = cfgpkg.Duration(5 * time.Millisecond)
		c.Verify.Interval = cfgpkg.Duration(5 * time.Millisecond)
	})
	fill(t, rt, "a", 5)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := New(rt, nil, nil).Loop(ctx); err != nil {
		t.Fatalf("loop: %v", err)
	}
}
