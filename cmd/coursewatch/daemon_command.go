package main

import (
	"strings"

	"github.com/spf13/cobra"

	"coursewatch/internal/daemonrun"
)

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "daemon",
		Short:        "Run the coursewatch daemon (internal)",
		Hidden:       true,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts := daemonrun.Options{LogLevel: cfg.Logging.Level}
			if ctx.socketFlag != nil {
				opts.SocketPath = strings.TrimSpace(*ctx.socketFlag)
			}
			return daemonrun.Run(cmd.Context(), cfg, opts)
		},
	}
	return cmd
}
