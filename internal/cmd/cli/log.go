package cli

import (
	"bufio"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/seglog/internal/filter"
	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/runtime"
)

// newAppendCommand constructs the `append` command. Arguments are appended as one
// batch; without arguments every stdin line becomes an entry.
func newAppendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "append [payload...]",
		Short: "Append entries to a stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			payloads := make([][]byte, 0, len(args))
			for _, a := range args {
				payloads = append(payloads, []byte(a))
			}
			if len(payloads) == 0 {
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Buffer(make([]byte, 64<<10), 16<<20)
				for sc.Scan() {
					payloads = append(payloads, append([]byte(nil), sc.Bytes()...))
				}
				if err := sc.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			if len(payloads) == 0 {
				return fmt.Errorf("nothing to append")
			}
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				seqs, err := l.AppendBatch(ctx, payloads)
				var werr error
				for _, s := range seqs {
					if werr = printJSON(cmd.OutOrStdout(), map[string]any{"seq": s}); werr != nil {
						break
					}
				}
				if err != nil {
					return err
				}
				return werr
			})
		},
	}
	return cmd
}

// newReadCommand constructs the `read` command.
func newReadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read <seq>",
		Short: "Read one entry by sequence number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			seq, err := parseSeq(args[0])
			if err != nil {
				return err
			}
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				e, err := l.Read(ctx, seq)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), decodedEntry(e))
			})
		},
	}
}

// newRangeCommand constructs the `range` command. Corrupt regions are reported on
// stderr and skipped.
func newRangeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "range <from> <to>",
		Short: "Read entries in an inclusive sequence range",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, err := parseSeq(args[0])
			if err != nil {
				return err
			}
			to, err := parseSeq(args[1])
			if err != nil {
				return err
			}
			expr, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			f, err := filter.Compile(expr)
			if err != nil {
				return err
			}
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				var opts []logstore.RangeOption
				if f.Enabled() {
					opts = append(opts, logstore.WithFilter(f.Predicate()))
				}
				it := l.ReadRange(ctx, from, to, opts...)
				defer it.Close()
				n := 0
				for it.Next() {
					if err := printJSON(cmd.OutOrStdout(), decodedEntry(it.Entry())); err != nil {
						return err
					}
					n++
					if limit > 0 && n >= limit {
						break
					}
				}
				var werr error
				for _, g := range it.Gaps() {
					if werr = printJSON(cmd.ErrOrStderr(), gapRecord(g)); werr != nil {
						break
					}
				}
				if err := it.Err(); err != nil {
					return err
				}
				return werr
			})
		},
	}
	cmd.Flags().String("filter", "", "CEL filter over seq, ts_ms, size, text, json")
	cmd.Flags().Int("limit", 0, "Stop after N entries (0 = no limit)")
	return cmd
}

// newSeekCommand constructs the `seek` command.
func newSeekCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seek <time>",
		Short: "Find the first sequence written at or after a time (RFC3339 or ms)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := parseTime(args[0])
			if err != nil {
				return err
			}
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				seq, err := l.SeekTime(ctx, t)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"seq": seq})
			})
		},
	}
}

// newSegmentsCommand constructs the `segments` command.
func newSegmentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "segments",
		Short: "List the segments of a stream, oldest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLog(cmd, func(_ context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				for _, s := range l.Segments() {
					if err := printJSON(cmd.OutOrStdout(), segmentRecord(s)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

func segmentRecord(s logstore.SegmentInfo) map[string]any {
	out := map[string]any{
		"id":        s.ID,
		"path":      s.Path,
		"sealed":    s.Sealed,
		"first_seq": s.FirstSeq,
		"last_seq":  s.LastSeq,
		"entries":   s.Entries(),
		"bytes":     s.Size,
		"created":   s.Created.UTC(),
	}
	if s.Sealed {
		out["sealed_at"] = s.SealedAt.UTC()
	}
	return out
}

// newRotateCommand constructs the `rotate` command.
func newRotateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate",
		Short: "Seal the open segment and start a new one",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				if err := l.Rotate(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"open_segment": l.OpenSegmentID()})
			})
		},
	}
}
