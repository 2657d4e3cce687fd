// Package styles provides styling for the explorer.
package styles

import "github.com/charmbracelet/lipgloss"

// Colors used throughout the explorer.
var (
	ColorPrimary   = lipgloss.Color("#7C3AED") // Purple
	ColorSecondary = lipgloss.Color("#10B981") // Green
	ColorMuted     = lipgloss.Color("#6B7280") // Gray
	ColorError     = lipgloss.Color("#EF4444") // Red
	ColorWarning   = lipgloss.Color("#F59E0B") // Yellow
	ColorBorder    = lipgloss.Color("#374151") // Dark gray
)

// App-level styles.
var (
	AppStyle = lipgloss.NewStyle().
			Padding(1, 2)

	TitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			MarginBottom(1)

	SubtitleStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			MarginBottom(1)
)

// Panel styles.
var (
	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorBorder).
			Padding(0, 1)

	FocusedPanelStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(ColorPrimary).
				Padding(0, 1)

	PanelTitleStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true).
			Padding(0, 1)
)

// Sentence input styles.
var (
	InputPromptStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true)

	InputTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	InputPlaceholderStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// Token list styles.
var (
	TokenStyle = lipgloss.NewStyle().
			PaddingLeft(2)

	SelectedTokenStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				PaddingLeft(1).
				BorderLeft(true).
				BorderStyle(lipgloss.ThickBorder()).
				BorderForeground(ColorPrimary)

	MissingTokenStyle = lipgloss.NewStyle().
				Foreground(ColorWarning).
				PaddingLeft(2)

	HintStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)
)

// Vector panel styles.
var (
	VectorTitleStyle = lipgloss.NewStyle().
				Foreground(ColorPrimary).
				Bold(true).
				MarginBottom(1)

	VectorNameStyle = lipgloss.NewStyle().
			Foreground(ColorSecondary).
			Bold(true)

	VectorValuesStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#E5E7EB"))

	VectorMetadataStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)
)

// Status bar styles.
var (
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(ColorMuted).
			Padding(0, 1)

	StatusValueStyle = lipgloss.NewStyle().
				Foreground(ColorMuted)

	StatusErrorStyle = lipgloss.NewStyle().
				Foreground(ColorError)

	StatusSuccessStyle = lipgloss.NewStyle().
				Foreground(ColorSecondary)
)

// Help styles.
var (
	HelpKeyStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Bold(true)

	HelpDescStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	HelpSeparatorStyle = lipgloss.NewStyle().
				Foreground(ColorBorder)
)

// KindBadge returns the badge style for a provider kind.
func KindBadge(kind string) lipgloss.Style {
	colors := map[string]lipgloss.Color{
		"static":     lipgloss.Color("#3B82F6"), // Blue
		"contextual": lipgloss.Color("#10B981"), // Green
		"character":  lipgloss.Color("#F59E0B"), // Yellow
		"stacked":    lipgloss.Color("#8B5CF6"), // Purple
	}

	color, ok := colors[kind]
	if !ok {
		color = ColorMuted
	}

	return lipgloss.NewStyle().
		Foreground(color).
		Bold(true).
		Padding(0, 1)
}
