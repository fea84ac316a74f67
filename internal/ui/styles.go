// Package ui provides terminal styling and progress output for the cleaner.
// Uses the Ayu color theme with adaptive light/dark mode support.
package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Ayu theme color palette
// Dark: https://terminalcolors.com/themes/ayu/dark/
// Light: https://terminalcolors.com/themes/ayu/light/
var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#86b300", // ayu light bright green
		Dark:  "#c2d94c", // ayu dark bright green
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#f2ae49", // ayu light bright yellow
		Dark:  "#ffb454", // ayu dark bright yellow
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#f07171", // ayu light bright red
		Dark:  "#f07178", // ayu dark bright red
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#828c99", // ayu light muted
		Dark:  "#6c7680", // ayu dark muted
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#399ee6", // ayu light bright blue
		Dark:  "#59c2ff", // ayu dark bright blue
	}
)

// Status icons
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
)

// SeparatorLight separates summary blocks.
const SeparatorLight = "──────────────────────────────────────────"

// Styles is a set of semantic styles bound to one renderer.
type Styles struct {
	Pass     lipgloss.Style
	Warn     lipgloss.Style
	Fail     lipgloss.Style
	Muted    lipgloss.Style
	Accent   lipgloss.Style
	Category lipgloss.Style // section headers, bold accent
}

// NewStyles builds the theme for r.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Pass:     r.NewStyle().Foreground(ColorPass),
		Warn:     r.NewStyle().Foreground(ColorWarn),
		Fail:     r.NewStyle().Foreground(ColorFail),
		Muted:    r.NewStyle().Foreground(ColorMuted),
		Accent:   r.NewStyle().Foreground(ColorAccent),
		Category: r.NewStyle().Bold(true).Foreground(ColorAccent),
	}
}

var std = NewStyles(lipgloss.DefaultRenderer())

// RenderFail renders text with fail (red) styling
func RenderFail(s string) string {
	return std.Fail.Render(s)
}
