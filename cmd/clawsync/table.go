package main

import (
	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
)

var (
	purple    = lipgloss.Color("99")
	gray      = lipgloss.Color("245")
	lightGray = lipgloss.Color("241")

	headerStyle  = lipgloss.NewStyle().Foreground(purple).Bold(true).Align(lipgloss.Center).Padding(0, 1)
	oddRowStyle  = lipgloss.NewStyle().Foreground(gray).Padding(0, 1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lightGray).Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(purple)
)

// renderTable draws rows under headers, or empty when there are no rows.
func renderTable(empty string, headers []string, rows [][]string) string {
	if len(rows) == 0 {
		return empty
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return evenRowStyle
			default:
				return oddRowStyle
			}
		}).
		Headers(headers...)

	for _, r := range rows {
		t.Row(r...)
	}
	return t.String()
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
