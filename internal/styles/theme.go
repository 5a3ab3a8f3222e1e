package styles

import "github.com/charmbracelet/lipgloss"

// Theme is the color scheme picked from the terminal background.
type Theme struct {
	Primary   lipgloss.Color
	Secondary lipgloss.Color
	Accent    lipgloss.Color

	TextPrimary lipgloss.Color
	TextMuted   lipgloss.Color

	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
	Info    lipgloss.Color

	Border lipgloss.Color
}

var DarkTheme = Theme{
	Primary:   lipgloss.Color("#818CF8"),
	Secondary: lipgloss.Color("#22D3EE"),
	Accent:    lipgloss.Color("#F472B6"),

	TextPrimary: lipgloss.Color("#F1F5F9"),
	TextMuted:   lipgloss.Color("#64748B"),

	Success: lipgloss.Color("#34D399"),
	Warning: lipgloss.Color("#FBBF24"),
	Error:   lipgloss.Color("#FB7185"),
	Info:    lipgloss.Color("#60A5FA"),

	Border: lipgloss.Color("#27272A"),
}

var LightTheme = Theme{
	Primary:   lipgloss.Color("#4F46E5"),
	Secondary: lipgloss.Color("#0891B2"),
	Accent:    lipgloss.Color("#DB2777"),

	TextPrimary: lipgloss.Color("#18181B"),
	TextMuted:   lipgloss.Color("#A1A1AA"),

	Success: lipgloss.Color("#10B981"),
	Warning: lipgloss.Color("#F59E0B"),
	Error:   lipgloss.Color("#EF4444"),
	Info:    lipgloss.Color("#3B82F6"),

	Border: lipgloss.Color("#E4E4E7"),
}

// CurrentTheme is set by InitTheme before the program starts.
var CurrentTheme = DarkTheme

// StateColor maps a conversation state name onto a badge color.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "streaming":
		return CurrentTheme.Info
	case "closing":
		return CurrentTheme.Warning
	case "errored":
		return CurrentTheme.Error
	case "aborted":
		return CurrentTheme.Accent
	default:
		return CurrentTheme.Success
	}
}

// GlamourStyle is the glamour style name matching the current theme.
func GlamourStyle() string {
	if CurrentTheme == LightTheme {
		return "light"
	}
	return "dark"
}

// InitTheme sets the current theme based on terminal background.
func InitTheme() {
	if lipgloss.HasDarkBackground() {
		CurrentTheme = DarkTheme
	} else {
		CurrentTheme = LightTheme
	}
}
