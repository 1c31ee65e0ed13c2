package cli

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs the root Cobra command with every command group registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "seglog",
		Short:         "Segmented append-only log storage",
		Long:          "seglog stores ordered entries in size-bounded segment files and manages their retention.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "Config file (JSON or YAML)")
	pf.String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	pf.StringP("stream", "s", "", "Stream name (default from config)")
	pf.String("log-level", "", "Log level: debug|info|warn|error")
	pf.String("log-format", "", "Log format: text|json")
	pf.String("fsync", "", "Fsync mode: always|interval|never")

	root.AddCommand(
		newAppendCommand(),
		newReadCommand(),
		newRangeCommand(),
		newSeekCommand(),
		newSegmentsCommand(),
		newRotateCommand(),
		newVerifyCommand(),
		newRetentionCommand(),
		newUsageCommand(),
		newReportCommand(),
		newMaintainCommand(),
		NewStreamCommand(),
	)
	return root
}
