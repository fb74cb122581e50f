package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"castspc/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var opts daemonrun.Options

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the collection daemon in the foreground",
		Long: "Run the collection daemon in the foreground.\n\n" +
			"The daemon polls the measurement source, maintains the control chart, " +
			"exports scheduled buffer snapshots and serves the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "Override logging.level")
	cmd.Flags().BoolVarP(&opts.Development, "verbose", "v", false, "Include source locations in log output")
	cmd.Flags().BoolVar(&opts.Diagnostic, "diagnostic", false, "Write a debug-level JSON log alongside the run log")
	return cmd
}
