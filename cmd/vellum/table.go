package main

import (
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"vellum/internal/manifest"
)

// column describes one table column: its header, whether its values are
// counts (right-aligned), and an optional transform applied to each cell
// before rendering.
type column struct {
	title     string
	numeric   bool
	transform func(string) string
}

var statusColors = map[manifest.Status]*color.Color{
	manifest.StatusPending:      color.New(color.FgWhite),
	manifest.StatusAnalyzed:     color.New(color.FgCyan),
	manifest.StatusIllustrating: color.New(color.FgYellow),
	manifest.StatusIllustrated:  color.New(color.FgGreen),
	manifest.StatusFailed:       color.New(color.FgRed),
}

// statusColumn renders unit lifecycle states, colorized when writing to a
// terminal.
func statusColumn(title string, colorize bool) column {
	return column{title: title, transform: func(value string) string {
		if !colorize {
			return value
		}
		if c, ok := statusColors[manifest.Status(value)]; ok {
			return c.Sprint(value)
		}
		return value
	}}
}

func renderTable(columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.title
		align := text.AlignLeft
		if col.numeric {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i, col := range columns {
			var value string
			if i < len(row) {
				value = row[i]
			}
			if col.transform != nil {
				value = col.transform(value)
			}
			cells[i] = value
		}
		tw.AppendRow(cells)
	}

	return tw.Render()
}
