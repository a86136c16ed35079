// Package ui provides the visual styling for the WormChat terminal client.
// Light and dark palettes share the same semantic colors.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	// Light Mode Colors (Default)
	LightBackground = lipgloss.Color("#f7f5f2")
	LightForeground = lipgloss.Color("#2b2118") // Loam
	LightPrimary    = lipgloss.Color("#6d4c41") // Earth brown
	LightAccent     = lipgloss.Color("#d9777f") // Worm pink
	LightSecondary  = lipgloss.Color("#ece6df")
	LightMuted      = lipgloss.Color("#9e8f82")
	LightBorder     = lipgloss.Color("#ddd3c9")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark Mode Colors
	DarkBackground = lipgloss.Color("#1b1512")
	DarkForeground = lipgloss.Color("#f2ece6")
	DarkPrimary    = lipgloss.Color("#e8959b") // Pink (flipped)
	DarkAccent     = lipgloss.Color("#a1887f")
	DarkSecondary  = lipgloss.Color("#2a211c")
	DarkMuted      = lipgloss.Color("#7d6e63")
	DarkBorder     = lipgloss.Color("#3b302a")
	DarkCard       = lipgloss.Color("#241c18")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e53935")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Info        = lipgloss.Color("#2196F3")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Secondary:  LightSecondary,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Secondary:  DarkSecondary,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// DetectTheme resolves the configured preference ("light", "dark" or "auto").
// In auto mode the terminal background is guessed from COLORFGBG, then
// WORMCHAT_DARK_MODE, falling back to light.
func DetectTheme(pref string) Theme {
	switch strings.ToLower(pref) {
	case "light":
		return LightTheme()
	case "dark":
		return DarkTheme()
	}

	// Format is usually "foreground;background"
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		parts := strings.Split(colorTerm, ";")
		if len(parts) == 2 {
			if bgIdx, err := strconv.Atoi(parts[1]); err == nil {
				// 0-6 and 8 (dark grey) are dark backgrounds
				if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
					return DarkTheme()
				}
			}
		}
	}

	if os.Getenv("WORMCHAT_DARK_MODE") == "1" {
		return DarkTheme()
	}

	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Header lipgloss.Style
	Footer lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Interactive
	Prompt        lipgloss.Style
	UserLabel     lipgloss.Style
	UserInput     lipgloss.Style
	AgentLabel    lipgloss.Style
	AgentResponse lipgloss.Style
	InputBox      lipgloss.Style
	LoginBox      lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner    lipgloss.Style
	Divider    lipgloss.Style
	Badge      lipgloss.Style
	ErrorPanel lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true).
			MarginBottom(1),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		UserInput: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		AgentLabel: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		AgentResponse: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(1).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		InputBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Border).
			Padding(0, 1),

		LoginBox: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(theme.Accent).
			Padding(1, 3),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		ErrorPanel: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Destructive).
			Foreground(Destructive).
			Padding(0, 1),
	}
}

// Logo returns the WormChat wordmark
func Logo(s Styles) string {
	logo := `
 __      __                    ___ _         _
 \ \    / /__ _ _ _ __  ___   / __| |_  __ _| |_
  \ \/\/ / _ \ '_| '  \|___| | (__| ' \/ _` + "`" + ` |  _|
   \_/\_/\___/_| |_|_|_|      \___|_||_\__,_|\__|
`
	return s.Title.Foreground(s.Theme.Primary).Render(logo)
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width < 0 {
		width = 0
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
