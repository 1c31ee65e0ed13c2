package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rzbill/seglog/internal/runtime"
	"github.com/rzbill/seglog/internal/stream"
)

// NewStreamCommand constructs the `stream` command group and subcommands.
func NewStreamCommand() *cobra.Command {
	streamCmd := &cobra.Command{Use: "stream", Short: "Stream registry operations"}
	streamCmd.AddCommand(newStreamCreateCommand(), newStreamListCommand(), newStreamDeleteCommand())
	return streamCmd
}

// newStreamCreateCommand constructs the `stream create` subcommand.
func newStreamCreateCommand() *cobra.Command {
	createCmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Register a stream with optional segment overrides",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			segBytes, _ := cmd.Flags().GetInt64("max-segment-bytes")
			entryBytes, _ := cmd.Flags().GetInt("max-entry-bytes")
			segAge, _ := cmd.Flags().GetDuration("max-segment-age")
			return withRuntime(cmd, func(_ context.Context, rt *runtime.Runtime) error {
				m, err := rt.CreateStream(args[0], stream.Meta{
					MaxSegmentBytes: segBytes,
					MaxEntryBytes:   entryBytes,
					MaxSegmentAgeMs: segAge.Milliseconds(),
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), m)
			})
		},
	}
	createCmd.Flags().Int64("max-segment-bytes", 0, "Segment size cap (0 = config default)")
	createCmd.Flags().Int("max-entry-bytes", 0, "Entry size cap (0 = config default)")
	createCmd.Flags().Duration("max-segment-age", 0, "Seal open segments after this age (0 = config default)")
	return createCmd
}

// newStreamListCommand constructs the `stream list` subcommand.
func newStreamListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, func(_ context.Context, rt *runtime.Runtime) error {
				metas, err := rt.Streams()
				if err != nil {
					return err
				}
				for _, m := range metas {
					if err := printJSON(cmd.OutOrStdout(), m); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
}

// newStreamDeleteCommand constructs the `stream delete` subcommand.
func newStreamDeleteCommand() *cobra.Command {
	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stream with all of its segments and metadata (requires --confirm)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if ok, _ := cmd.Flags().GetBool("confirm"); !ok {
				return fmt.Errorf("refusing to delete stream %s without --confirm", args[0])
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime.Runtime) error {
				if err := rt.DeleteStream(ctx, args[0]); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{"deleted": args[0]})
			})
		},
	}
	deleteCmd.Flags().Bool("confirm", false, "Confirm deletion")
	return deleteCmd
}
