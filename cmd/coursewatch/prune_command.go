package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"coursewatch/internal/seen"
)

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove old notified courses from the seen database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThanDays < 1 {
				return fmt.Errorf("--older-than must be at least 1 day, got %d", olderThanDays)
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := seen.Open(cfg)
			if err != nil {
				return fmt.Errorf("open seen store: %w", err)
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), time.Duration(olderThanDays)*24*time.Hour)
			if err != nil {
				return fmt.Errorf("prune seen store: %w", err)
			}

			stdout := cmd.OutOrStdout()
			if removed == 0 {
				fmt.Fprintln(stdout, "Nothing to prune")
				return nil
			}
			fmt.Fprintf(stdout, "Pruned %d notified courses older than %d days\n", removed, olderThanDays)
			return nil
		},
	}

	cmd.Flags().IntVar(&olderThanDays, "older-than", 30, "Remove notified courses last seen more than this many days ago")
	return cmd
}
