package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/rzbill/seglog/internal/cmd/maintain"
	"github.com/rzbill/seglog/internal/logstore"
	"github.com/rzbill/seglog/internal/report"
	"github.com/rzbill/seglog/internal/retention"
	"github.com/rzbill/seglog/internal/runtime"
)

// newVerifyCommand constructs the `verify` command.
func newVerifyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [segment-id]",
		Short: "Re-check segment checksums",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			if !all && len(args) == 0 {
				return fmt.Errorf("pass a segment id or --all")
			}
			return withLog(cmd, func(ctx context.Context, _ *runtime.Runtime, l *logstore.Log) error {
				if all {
					rep, err := l.VerifyAll(ctx)
					var werr error
					for _, r := range rep.Results {
						if werr = printJSON(cmd.OutOrStdout(), verifyRecord(r)); werr != nil {
							break
						}
					}
					if err != nil {
						return err
					}
					if werr != nil {
						return werr
					}
					if bad := rep.Corrupt(); len(bad) > 0 {
						return fmt.Errorf("%d corrupt segment(s)", len(bad))
					}
					return nil
				}
				id, err := strconv.ParseUint(args[0], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid segment id %q", args[0])
				}
				r, err := l.VerifyIntegrity(ctx, id)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), verifyRecord(r)); err != nil {
					return err
				}
				if !r.OK {
					return fmt.Errorf("segment %d is corrupt", id)
				}
				return nil
			})
		},
	}
	cmd.Flags().Bool("all", false, "Verify every segment, resuming an interrupted pass")
	return cmd
}

func verifyRecord(r logstore.VerifyResult) map[string]any {
	out := map[string]any{
		"segment": r.Segment,
		"sealed":  r.Sealed,
		"ok":      r.OK,
		"entries": r.Entries,
		"bytes":   r.Bytes,
	}
	if !r.OK {
		out["corrupt_at"] = r.CorruptAt
		out["corrupt_seq"] = r.CorruptSeq
		if r.Err != nil {
			out["error"] = r.Err.Error()
		}
	}
	return out
}

// newRetentionCommand constructs the `retention` command. Flags override the
// configured policy for this pass.
func newRetentionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Apply the retention policy to a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLog(cmd, func(ctx context.Context, rt *runtime.Runtime, l *logstore.Log) error {
				p := rt.RetentionPolicy(l.Stream())
				if cmd.Flags().Changed("max-age") {
					p.MaxAge, _ = cmd.Flags().GetDuration("max-age")
				}
				if cmd.Flags().Changed("max-bytes") {
					p.MaxBytes, _ = cmd.Flags().GetInt64("max-bytes")
				}
				if cmd.Flags().Changed("archive-dir") {
					p.ArchiveDir, _ = cmd.Flags().GetString("archive-dir")
				}
				mgr, err := rt.Retention(ctx, l.Stream())
				if err != nil {
					return err
				}
				res, err := mgr.Apply(ctx, p)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), retentionRecord(res))
			})
		},
	}
	cmd.Flags().Duration("max-age", 0, "Remove segments whose last entry is older than this (0 = no age limit)")
	cmd.Flags().Int64("max-bytes", 0, "Remove oldest segments until the stream fits (0 = no size limit)")
	cmd.Flags().String("archive-dir", "", "Move removed segments here instead of deleting them")
	return cmd
}

func retentionRecord(r retention.Result) map[string]any {
	failed := make([]map[string]any, 0, len(r.Failed))
	for _, f := range r.Failed {
		failed = append(failed, map[string]any{"segment": f.Segment, "error": f.Err.Error()})
	}
	deleted := r.Deleted
	if deleted == nil {
		deleted = []uint64{}
	}
	out := map[string]any{
		"deleted":         deleted,
		"bytes_freed":     r.BytesFreed,
		"entries_removed": r.EntriesRemoved,
		"failed":          failed,
	}
	if len(r.ArchivedTo) > 0 {
		out["archived_to"] = r.ArchivedTo
	}
	if r.ResumedAfter > 0 {
		out["resumed_after"] = r.ResumedAfter
	}
	return out
}

// newUsageCommand constructs the `usage` command.
func newUsageCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show storage usage and growth of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLog(cmd, func(ctx context.Context, rt *runtime.Runtime, l *logstore.Log) error {
				mgr, err := rt.Retention(ctx, l.Stream())
				if err != nil {
					return err
				}
				u, err := mgr.Usage(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), u)
			})
		},
	}
}

// newReportCommand constructs the `report` command.
func newReportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the operational report of a stream",
		RunE: func(cmd *cobra.Command, _ []string) error {
			verify, _ := cmd.Flags().GetBool("verify")
			asJSON, _ := cmd.Flags().GetBool("json")
			return withLog(cmd, func(ctx context.Context, rt *runtime.Runtime, l *logstore.Log) error {
				mgr, err := rt.Retention(ctx, l.Stream())
				if err != nil {
					return err
				}
				r, err := report.Build(ctx, l, mgr, report.Options{Verify: verify, Meta: rt})
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(cmd.OutOrStdout(), r)
				}
				return report.WriteText(cmd.OutOrStdout(), r)
			})
		},
	}
	cmd.Flags().Bool("verify", false, "Include an integrity check of every segment")
	cmd.Flags().Bool("json", false, "Print JSON instead of text")
	return cmd
}

// newMaintainCommand constructs the `maintain` command.
func newMaintainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Run periodic retention and integrity passes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			once, _ := cmd.Flags().GetBool("once")
			var streams []string
			if v, _ := cmd.Flags().GetString("stream"); v != "" {
				streams = []string{v}
			}
			if err := maintain.Run(cmd.Context(), maintain.Options{Config: cfg, Streams: streams, Once: once}); err != nil {
				return fmt.Errorf("maintain: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	}
	cmd.Flags().Bool("once", false, "Run a single pass and exit")
	return cmd
}
