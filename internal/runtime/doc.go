// Package runtime wires configuration, the Pebble metadata store and the
// per-stream logs of a single seglog node. It exposes Open/Close, a health check,
// the stream registry (create, list, delete), metadata store metrics and helpers
// to open logs and retention managers by stream name.
//
// Layout of the data directory:
//
//	<data>/meta/             Pebble: stream registry, index marks, checkpoints, cursors
//	<data>/streams/<name>/   segment files of one stream
//
// Example:
//
//	rt, _ := runtime.Open(ctx, runtime.Options{Config: config.Default()})
//	defer rt.Close()
//	_ = rt.CheckHealth(ctx)
//	l, _ := rt.OpenLog(ctx, "chat")
//	_, _ = l.Append(ctx, []byte("hello"))
package runtime
