package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// renderCounterTable renders the two-column activity table used by the
// status command, with counts right-aligned.
func renderCounterTable(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Counter", "Value"})
	for _, row := range rows {
		name, value := row[0], ""
		if len(row) > 1 {
			value = row[1]
		}
		tw.AppendRow(table.Row{name, value})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}
