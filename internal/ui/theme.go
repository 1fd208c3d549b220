package ui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Header       lipgloss.Style
	Status       lipgloss.Style
	PanelTitle   lipgloss.Style
	PanelBorder  lipgloss.Style
	PanelBody    lipgloss.Style
	Overlay      lipgloss.Style
	OverlayTitle lipgloss.Style
	Accent       lipgloss.Style
	Pass         lipgloss.Style
	Fail         lipgloss.Style
	Pending      lipgloss.Style
	Muted        lipgloss.Style
	Info         lipgloss.Style
	User         lipgloss.Style
	Assistant    lipgloss.Style
	Alert        lipgloss.Style
	Locked       lipgloss.Style
}

type palette struct {
	ink, slate, text, muted  string
	accent, ok, bad, warn    string
	border, alertBG, alertFG string
	overlayBorder            lipgloss.Border
}

func DefaultTheme() Theme {
	return ThemeForVariant("modern_arcade")
}

func ThemeForVariant(variant string) Theme {
	switch variant {
	case "cozy_clean":
		return buildTheme(palette{
			ink: "#1E2430", slate: "#30394A", text: "#F4F6FA", muted: "#A3ACC2",
			accent: "#86B6F6", ok: "#80C4A3", bad: "#D17A86", warn: "#F2B872",
			border: "#4A5972", alertBG: "#D17A86", alertFG: "#1E2430",
			overlayBorder: lipgloss.RoundedBorder(),
		})
	case "retro_terminal":
		return buildTheme(palette{
			ink: "#07150A", slate: "#12301A", text: "#C5F7C4", muted: "#73A17A",
			accent: "#9CF5A2", ok: "#9CF5A2", bad: "#FF6B6B", warn: "#E5D47A",
			border: "#1F5C2F", alertBG: "#FF6B6B", alertFG: "#07150A",
			overlayBorder: lipgloss.DoubleBorder(),
		})
	default:
		return buildTheme(palette{
			ink: "#0E1420", slate: "#1B2740", text: "#EAF2FF", muted: "#9CAAC6",
			accent: "#5EEBFF", ok: "#67F0A8", bad: "#FF6F91", warn: "#FFC857",
			border: "#4B5F8A", alertBG: "#FF3860", alertFG: "#FFFFFF",
			overlayBorder: lipgloss.RoundedBorder(),
		})
	}
}

func buildTheme(p palette) Theme {
	c := func(hex string) lipgloss.Color { return lipgloss.Color(hex) }
	return Theme{
		Header:      lipgloss.NewStyle().Background(c(p.ink)).Foreground(c(p.text)).Padding(0, 1),
		Status:      lipgloss.NewStyle().Background(c(p.slate)).Foreground(c(p.text)).Padding(0, 1),
		PanelTitle:  lipgloss.NewStyle().Foreground(c(p.accent)).Bold(true),
		PanelBorder: lipgloss.NewStyle().Foreground(c(p.border)),
		PanelBody:   lipgloss.NewStyle().Foreground(c(p.text)),
		Overlay: lipgloss.NewStyle().
			BorderStyle(p.overlayBorder).
			BorderForeground(c(p.accent)).
			Background(c(p.ink)).
			Foreground(c(p.text)).
			Padding(1, 2),
		OverlayTitle: lipgloss.NewStyle().Foreground(c(p.accent)).Bold(true),
		Accent:       lipgloss.NewStyle().Foreground(c(p.accent)).Bold(true),
		Pass:         lipgloss.NewStyle().Foreground(c(p.ok)).Bold(true),
		Fail:         lipgloss.NewStyle().Foreground(c(p.bad)).Bold(true),
		Pending:      lipgloss.NewStyle().Foreground(c(p.warn)),
		Muted:        lipgloss.NewStyle().Foreground(c(p.muted)),
		Info:         lipgloss.NewStyle().Foreground(c(p.accent)),
		User:         lipgloss.NewStyle().Foreground(c(p.warn)).Bold(true),
		Assistant:    lipgloss.NewStyle().Foreground(c(p.accent)).Bold(true),
		Alert: lipgloss.NewStyle().
			Background(c(p.alertBG)).
			Foreground(c(p.alertFG)).
			Bold(true).
			Padding(0, 1),
		Locked: lipgloss.NewStyle().Foreground(c(p.muted)).Faint(true),
	}
}
