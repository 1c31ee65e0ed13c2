package cli

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	cfgpkg "github.com/rzbill/seglog/internal/config"
	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/runtime"
)

// loadConfig resolves file, environment and flag settings, in that order.
func loadConfig(cmd *cobra.Command) (cfgpkg.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := cfgpkg.Load(path)
	if err != nil {
		return cfgpkg.Config{}, err
	}
	cfgpkg.FromEnv(&cfg)
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		cfg.Log.Format = v
	}
	if v, _ := cmd.Flags().GetString("fsync"); v != "" {
		cfg.Storage.Fsync = v
	}
	return cfg, nil
}

// withRuntime opens the runtime for the duration of fn.
func withRuntime(cmd *cobra.Command, fn func(context.Context, *runtime.Runtime) error) (err error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := runtime.Open(ctx, runtime.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, rt)
}

// withLog opens the runtime and the selected stream's log for the duration of fn.
func withLog(cmd *cobra.Command, fn func(context.Context, *runtime.Runtime, *logstore.Log) error) error {
	return withRuntime(cmd, func(ctx context.Context, rt *runtime.Runtime) error {
		l, err := rt.OpenLog(ctx, streamName(cmd, rt))
		if err != nil {
			return err
		}
		return fn(ctx, rt, l)
	})
}

func streamName(cmd *cobra.Command, rt *runtime.Runtime) string {
	if v, _ := cmd.Flags().GetString("stream"); v != "" {
		return v
	}
	return rt.Config().DefaultStream
}

func parseSeq(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence %q", s)
	}
	return v, nil
}

// parseTime accepts RFC3339 or unix milliseconds.
func parseTime(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q; expected ms or RFC3339", s)
}

func printJSON(w io.Writer, v any) error {
	return json.NewEncoder(w).Encode(v)
}

// decodedEntry returns a map with seq, ts and one of payload_json, payload_text, or payload_b64.
func decodedEntry(e logstore.Entry) map[string]any {
	out := map[string]any{
		"seq": e.Seq,
		"ts":  e.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	payload := e.Payload
	// Try JSON first if it looks like JSON
	if len(payload) > 0 && (payload[0] == '{' || payload[0] == '[') {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			out["payload_json"] = v
			return out
		}
	}
	if utf8.Valid(payload) {
		out["payload_text"] = string(payload)
		return out
	}
	out["payload_b64"] = base64.StdEncoding.EncodeToString(payload)
	return out
}

func gapRecord(g logstore.Gap) map[string]any {
	out := map[string]any{
		"gap_from": g.From,
		"gap_to":   g.To,
		"segment":  g.Segment,
		"offset":   g.Offset,
	}
	if g.Err != nil {
		out["error"] = g.Err.Error()
	}
	return out
}
