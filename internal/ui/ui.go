// Package ui centralizes terminal styling for the CLI. Output degrades
// to plain text when stdout is not a terminal, when NO_COLOR is set, or
// when color is disabled by flag.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accent = lipgloss.Color("12") // bright blue
	green  = lipgloss.Color("10")
	yellow = lipgloss.Color("11")
	red    = lipgloss.Color("9")

	accentStyle = lipgloss.NewStyle().Foreground(accent).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(green)
	warnStyle   = lipgloss.NewStyle().Foreground(yellow)
	failStyle   = lipgloss.NewStyle().Foreground(red).Bold(true)
	dimStyle    = lipgloss.NewStyle().Faint(true)
)

var colorEnabled = detectColor()

func detectColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return false
	}
	return termenv.EnvColorProfile() != termenv.Ascii
}

// DisableColor forces plain output regardless of terminal detection.
func DisableColor() { colorEnabled = false }

func render(s lipgloss.Style, text string) string {
	if !colorEnabled {
		return text
	}
	return s.Render(text)
}

// RenderAccent styles headings and progress markers.
func RenderAccent(text string) string { return render(accentStyle, text) }

// RenderPass styles a success marker.
func RenderPass(text string) string { return render(passStyle, text) }

// RenderWarn styles a warning marker.
func RenderWarn(text string) string { return render(warnStyle, text) }

// RenderFail styles an error marker.
func RenderFail(text string) string { return render(failStyle, text) }

// RenderDim styles secondary detail such as unchanged documents.
func RenderDim(text string) string { return render(dimStyle, text) }
