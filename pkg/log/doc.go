// Package log is seglog's structured logging facade.
//
// Components log through the small Logger interface with typed Field values
// (Str, Uint64, Dur, Err, Stream, Component). Every record passes through a
// log/slog handler that feeds the configured Formatter (text or JSON) and
// Outputs (console, file, null), so slog-based libraries can share the same
// pipeline through NewSlogHandler.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("logstore"), log.Stream("chat"))
//	l.Info("segment sealed", log.Uint64("segment", 7))
//
// Request-scoped fields travel on a context:
//
//	ctx = log.ContextWithFields(ctx, log.Str(log.OperationKey, "retention"))
//	l.WithContext(ctx).Warn("pass incomplete")
//
// ApplyConfig builds a logger from a declarative Config, including key
// redaction and per-message sampling. RedirectStdLog captures libraries that
// write to the standard library logger.
package log
