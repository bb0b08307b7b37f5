package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/example/proctor/internal/report"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	nameStyle  = lipgloss.NewStyle().Bold(true)
	passStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func renderReport(w io.Writer, source string, r report.Report) {
	width := 0
	for _, rec := range r {
		width = max(width, lipgloss.Width(rec.Name))
	}
	column := lipgloss.NewStyle().Width(width + 2)

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  Proctor Verify"))
	fmt.Fprintln(w, dimStyle.Render("  "+source))
	fmt.Fprintln(w)

	passed := 0
	for _, rec := range r {
		icon := failStyle.Render("✗")
		if rec.Success {
			icon = passStyle.Render("✓")
			passed++
		}
		fmt.Fprintf(w, "    %s %s%s\n", icon, column.Render(rec.Name), dimStyle.Render(rec.Details))
	}
	fmt.Fprintln(w)

	if passed == len(r) {
		fmt.Fprintln(w, passStyle.Render(fmt.Sprintf("  All %d checks passed.", len(r))))
	} else {
		fmt.Fprintln(w, failStyle.Render(fmt.Sprintf("  %d/%d checks passed.", passed, len(r))))
	}
	fmt.Fprintln(w)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
