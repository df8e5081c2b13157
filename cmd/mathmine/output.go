package main

import (
	"encoding/json"
	"io"
	"time"

	"mathmine/cmd/mathmine/ui"
)

// renderSummary renders key/value rows as a two-column table.
func renderSummary(title string, rows [][2]string) string {
	table := ui.NewTable(title, "", "")
	for _, r := range rows {
		table.AddRow(styles.Muted.Render(r[0]), r[1])
	}
	return table.View(styles)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func shorten(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
