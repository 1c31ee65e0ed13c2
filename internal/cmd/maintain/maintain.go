package maintain

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	cfgpkg "github.com/rzbill/seglog/internal/config"
	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/retention"
	"github.com/rzbill/seglog/internal/runtime"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

// Options configures Run.
type Options struct {
	Config cfgpkg.Config
	// Streams limits maintenance to these streams. Empty means every registered stream.
	Streams []string
	Logger  logpkg.Logger
	// Once runs a single retention and verify pass and returns.
	Once bool
}

// Run opens the runtime and maintains its streams until ctx is cancelled or a
// termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := runtime.Open(sctx, runtime.Options{Config: opts.Config, Logger: opts.Logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	logger := opts.Logger
	if logger == nil {
		logger = rt.Logger()
	}
	logpkg.RedirectStdLog(logger)
	m := New(rt, opts.Streams, logger)

	cfg := opts.Config
	logger.Info("maintenance started",
		logpkg.Dur("retention_interval", cfg.Retention.Interval.D()),
		logpkg.Dur("verify_interval", cfg.Verify.Interval.D()),
		logpkg.Bool("once", opts.Once))
	if opts.Once {
		_, rerr := m.RetentionPass(sctx)
		_, verr := m.VerifyPass(sctx)
		return errors.Join(rerr, verr)
	}
	return m.Loop(sctx)
}

// Maintainer runs passes over the streams of a runtime.
type Maintainer struct {
	rt      *runtime.Runtime
	streams []string
	logger  logpkg.Logger
}

// New returns a Maintainer. An empty streams list means every registered stream.
func New(rt *runtime.Runtime, streams []string, logger logpkg.Logger) *Maintainer {
	if logger == nil {
		logger = logpkg.NewNopLogger()
	}
	return &Maintainer{rt: rt, streams: streams, logger: logger.WithComponent("maintain")}
}

func (m *Maintainer) targets() ([]string, error) {
	if len(m.streams) > 0 {
		return m.streams, nil
	}
	metas, err := m.rt.Streams()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(metas))
	for _, meta := range metas {
		names = append(names, meta.Name)
	}
	return names, nil
}

// RetentionPass seals aged open segments and applies the configured policy to every
// stream. A failing stream is logged and the pass moves on; the returned error
// joins all per-stream failures.
func (m *Maintainer) RetentionPass(ctx context.Context) (map[string]retention.Result, error) {
	names, err := m.targets()
	if err != nil {
		return nil, err
	}
	out := make(map[string]retention.Result, len(names))
	var errs []error
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := m.retainStream(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			m.logger.Error("retention pass failed", logpkg.Stream(name), logpkg.Err(err))
			errs = append(errs, fmt.Errorf("stream %s: %w", name, err))
			continue
		}
		out[name] = res
	}
	return out, errors.Join(errs...)
}

func (m *Maintainer) retainStream(ctx context.Context, name string) (retention.Result, error) {
	l, err := m.rt.OpenLog(ctx, name)
	if err != nil {
		return retention.Result{}, err
	}
	if _, err := l.RotateIfAged(ctx); err != nil {
		m.logger.Warn("age rotation failed", logpkg.Stream(name), logpkg.Err(err))
	}
	mgr, err := m.rt.Retention(ctx, name)
	if err != nil {
		return retention.Result{}, err
	}
	return mgr.Apply(ctx, m.rt.RetentionPolicy(name))
}

// VerifyPass runs VerifyAll on every stream.
func (m *Maintainer) VerifyPass(ctx context.Context) (map[string]logstore.VerifyReport, error) {
	names, err := m.targets()
	if err != nil {
		return nil, err
	}
	out := make(map[string]logstore.VerifyReport, len(names))
	var errs []error
	for _, name := range names {
		l, err := m.rt.OpenLog(ctx, name)
		if err != nil {
			m.logger.Error("open stream for verify", logpkg.Stream(name), logpkg.Err(err))
			errs = append(errs, fmt.Errorf("stream %s: %w", name, err))
			continue
		}
		rep, err := l.VerifyAll(ctx)
		out[name] = rep
		if err != nil {
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("stream %s: %w", name, err))
			continue
		}
		if bad := rep.Corrupt(); len(bad) > 0 {
			m.logger.Warn("integrity check found corrupt segments", logpkg.Stream(name), logpkg.Int("segments", len(bad)))
		}
	}
	return out, errors.Join(errs...)
}

// Loop runs both passes on their intervals until ctx is done. A zero interval
// disables that pass.
func (m *Maintainer) Loop(ctx context.Context) error {
	cfg := m.rt.Config()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rctx := logpkg.ContextWithFields(gctx, logpkg.Str(logpkg.OperationKey, "retention"))
		return every(rctx, cfg.Retention.Interval.D(), func(ctx context.Context) error {
			_, err := m.RetentionPass(ctx)
			return err
		}, m.logger)
	})
	g.Go(func() error {
		vctx := logpkg.ContextWithFields(gctx, logpkg.Str(logpkg.OperationKey, "verify"))
		return every(vctx, cfg.Verify.Interval.D(), func(ctx context.Context) error {
			_, err := m.VerifyPass(ctx)
			return err
		}, m.logger)
	})
	err := g.Wait()
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

// every runs fn immediately and then at each interval. Pass errors are logged, not fatal.
func every(ctx context.Context, interval time.Duration, fn func(context.Context) error, logger logpkg.Logger) error {
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := fn(ctx); err != nil && ctx.Err() == nil {
			logger.WithContext(ctx).Warn("maintenance pass incomplete", logpkg.Err(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
