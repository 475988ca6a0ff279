package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#CA8A04"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")).Italic(true)
	boldStyle    = lipgloss.NewStyle().Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#16A34A"))
	removedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#DC2626"))
)

// FormatError returns a styled multi-line error message.
func FormatError(title, detail, suggestion string) string {
	out := errorStyle.Render("Error: "+title) + "\n"
	if detail != "" {
		out += "  " + detail + "\n"
	}
	if suggestion != "" {
		out += "  " + hintStyle.Render("Hint: "+suggestion) + "\n"
	}
	return out
}

func Success(w io.Writer, msg string) {
	fmt.Fprintln(w, successStyle.Render(msg))
}

func Warn(w io.Writer, msg string) {
	fmt.Fprintln(w, warnStyle.Render("Warning: "+msg))
}

func Bold(s string) string {
	return boldStyle.Render(s)
}

func Hint(s string) string {
	return hintStyle.Render(s)
}

func Dim(s string) string {
	return dimStyle.Render(s)
}

// Decision renders ALLOW in green and anything else in red.
func Decision(d string) string {
	if d == "ALLOW" {
		return successStyle.Bold(true).Render(d)
	}
	return errorStyle.Render(d)
}

// DiffLine colours one line of a unified diff.
func DiffLine(line string) string {
	switch {
	case len(line) >= 3 && (line[:3] == "+++" || line[:3] == "---"):
		return boldStyle.Render(line)
	case len(line) > 0 && line[0] == '+':
		return addedStyle.Render(line)
	case len(line) > 0 && line[0] == '-':
		return removedStyle.Render(line)
	case len(line) >= 2 && line[:2] == "@@":
		return hintStyle.Render(line)
	}
	return line
}
