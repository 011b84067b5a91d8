package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"coursewatch/internal/ipc"
)

func newRunOnceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run-once",
		Short: "Trigger a single polling cycle and print its summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.RunOnce()
				if err != nil {
					return fmt.Errorf("run cycle: %w", err)
				}
				if resp == nil {
					return errors.New("missing cycle response")
				}

				stdout := cmd.OutOrStdout()
				duration := time.Duration(resp.DurationMS) * time.Millisecond
				fmt.Fprintf(stdout, "Cycle %s finished: %s (%s, strategy %s)\n",
					resp.CycleID, resp.Result, duration.Round(time.Millisecond), resp.Strategy)
				fmt.Fprintf(stdout, "Courses listed: %d, new: %d, notified: %d\n",
					resp.ItemsListed, resp.ItemsNew, resp.ItemsNotified)
				if resp.Error != "" {
					fmt.Fprintf(stdout, "Error: %s\n", resp.Error)
				}
				if resp.Result != "success" {
					return fmt.Errorf("cycle finished with result %q", resp.Result)
				}
				return nil
			})
		},
	}
}
