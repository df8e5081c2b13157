package ui

import (
	"fmt"

	"github.com/charmbracelet/glamour"
)

// RenderMarkdown renders md for the terminal, matching the theme.
func RenderMarkdown(styles Styles, md string, width int) (string, error) {
	if width <= 0 {
		width = 80
	}
	var opts []glamour.TermRendererOption
	if styles.Theme.IsDark {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStylePath("light"))
	}
	opts = append(opts, glamour.WithWordWrap(width))

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	out, err := renderer.Render(md)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return out, nil
}
