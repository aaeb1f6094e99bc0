package tui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyleColor   = lipgloss.AdaptiveColor{Light: "#071330", Dark: "#F652A0"}
	successStyleColor = lipgloss.AdaptiveColor{Light: "#006600", Dark: "#00FF7F"}
	mutedStyleColor   = lipgloss.AdaptiveColor{Light: "#666666", Dark: "#999999"}
	warningStyleColor = lipgloss.AdaptiveColor{Light: "#FFA500", Dark: "#FFA500"}
	errorStyleColor   = lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5F5F"}
)

func render(style lipgloss.Style, text string) string {
	if !HasTTY {
		return text
	}
	return style.Render(text)
}

func Title(text string) string {
	return render(lipgloss.NewStyle().Bold(true).Foreground(titleStyleColor), text)
}

func Muted(text string) string {
	return render(lipgloss.NewStyle().Foreground(mutedStyleColor), text)
}

func Warning(text string) string {
	return render(lipgloss.NewStyle().Foreground(warningStyleColor), text)
}

// ShowSuccess writes a ✓ prefixed line.
func ShowSuccess(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, render(lipgloss.NewStyle().Foreground(successStyleColor), "✓ "+fmt.Sprintf(msg, args...)))
}

// ShowWarning writes a ! prefixed line.
func ShowWarning(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, Warning("! "+fmt.Sprintf(msg, args...)))
}

// ShowError writes a ✗ prefixed line.
func ShowError(w io.Writer, msg string, args ...any) {
	fmt.Fprintln(w, render(lipgloss.NewStyle().Foreground(errorStyleColor), "✗ "+fmt.Sprintf(msg, args...)))
}
