package ui

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether stdout is a terminal.
func IsTerminal() bool {
	return isTerminalWriter(os.Stdout)
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor decides whether output is colored.
// NO_COLOR and CLICOLOR=0 disable color; CLICOLOR_FORCE enables it even when
// stdout is not a terminal. Otherwise color follows IsTerminal.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if f := os.Getenv("CLICOLOR_FORCE"); f != "" && f != "0" {
		return true
	}
	return IsTerminal()
}

// ConfigureColor applies ShouldUseColor to the default renderer.
func ConfigureColor() {
	applyColor(lipgloss.DefaultRenderer())
}

func applyColor(r *lipgloss.Renderer) {
	if !ShouldUseColor() {
		r.SetColorProfile(termenv.Ascii)
		return
	}
	if r.ColorProfile() == termenv.Ascii {
		// Forced color on a non-terminal: termenv detected no support.
		r.SetColorProfile(termenv.ANSI256)
	}
}
