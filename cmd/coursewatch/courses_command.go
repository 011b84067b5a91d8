package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"coursewatch/internal/seen"
)

// newCoursesCommand lists recently seen courses straight from the store,
// so it works whether or not the daemon is running.
func newCoursesCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "courses",
		Short: "List recently seen courses",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be zero or positive")
			}

			store, err := seen.Open(ctx.configValue())
			if err != nil {
				return fmt.Errorf("open course database: %w", err)
			}
			defer store.Close()

			records, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(stdout, "No courses tracked yet")
				return nil
			}

			tw := table.NewWriter()
			tw.SetStyle(table.StyleRounded)
			tw.AppendHeader(table.Row{"Course", "First seen", "Last seen", "Digest"})
			for _, record := range records {
				title := strings.TrimSpace(record.Title)
				if title == "" {
					title = record.Identity
				}
				tw.AppendRow(table.Row{
					title,
					formatTimestamp(record.FirstSeenAt),
					formatTimestamp(record.LastSeenAt),
					yesNo(record.Notified),
				})
			}
			fmt.Fprintln(stdout, tw.Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of courses to show (0 shows all)")
	return cmd
}
