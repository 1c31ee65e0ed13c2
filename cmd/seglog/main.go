package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rzbill/seglog/internal/cmd/cli"
	logpkg "github.com/rzbill/seglog/pkg/log"
)

func main() {
	// Process-wide logger for output produced before a command has loaded its
	// config, and for the standard library logger (Pebble's event listeners).
	logger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  os.Getenv("SEGLOG_LOG_LEVEL"),
		Format: os.Getenv("SEGLOG_LOG_FORMAT"),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "seglog: %v; using defaults\n", err)
		logger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}
	logpkg.RedirectStdLog(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := 0
	if err := cli.NewRoot().ExecuteContext(ctx); err != nil {
		code = 1
	}
	stop()
	os.Exit(code)
}
