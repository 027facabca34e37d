package output

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Adaptive palette for light and dark terminals.
var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMute = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAcct = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

// Status icons.
const (
	iconPass = "✓"
	iconWarn = "⚠"
	iconFail = "✗"
)

// ruleWidth matches the width of report tables.
const ruleWidth = 80

// styles are bound to the renderer of one writer, so color is only emitted
// when that writer is a terminal.
type styles struct {
	title  lipgloss.Style
	label  lipgloss.Style
	pass   lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	muted  lipgloss.Style
	accent lipgloss.Style
	box    lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title:  r.NewStyle().Bold(true).Foreground(colorAcct),
		label:  r.NewStyle().Bold(true),
		pass:   r.NewStyle().Foreground(colorPass),
		warn:   r.NewStyle().Foreground(colorWarn),
		fail:   r.NewStyle().Foreground(colorFail),
		muted:  r.NewStyle().Foreground(colorMute),
		accent: r.NewStyle().Foreground(colorAcct),
		box: r.NewStyle().
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorMute).
			Padding(0, 1),
	}
}
