package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/guardrev/internal/model"
)

// Color palette.
var (
	colorRed     = lipgloss.Color("#ff5555")
	colorGreen   = lipgloss.Color("#50fa7b")
	colorYellow  = lipgloss.Color("#f1fa8c")
	colorBlue    = lipgloss.Color("#8be9fd")
	colorPurple  = lipgloss.Color("#bd93f9")
	colorDim     = lipgloss.Color("#6272a4")
	colorBgLight = lipgloss.Color("#343746")
	colorFg      = lipgloss.Color("#f8f8f2")
	colorOrange  = lipgloss.Color("#ffb86c")
	colorBorder  = lipgloss.Color("#44475a")
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	scoreStyles = map[model.RiskBand]lipgloss.Style{
		model.BandLow:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		model.BandMedium: lipgloss.NewStyle().Foreground(colorYellow).Bold(true),
		model.BandHigh:   lipgloss.NewStyle().Foreground(colorRed).Bold(true),
	}

	// Violation cards
	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	cardSelectedStyle = cardStyle.
				BorderForeground(colorPurple)

	severityStyles = map[model.Severity]lipgloss.Style{
		model.SeverityHigh:   lipgloss.NewStyle().Foreground(colorRed).Bold(true),
		model.SeverityMedium: lipgloss.NewStyle().Foreground(colorOrange),
		model.SeverityLow:    lipgloss.NewStyle().Foreground(colorYellow),
	}

	struckStyle = lipgloss.NewStyle().
			Strikethrough(true).
			Faint(true)

	pendingStyle = lipgloss.NewStyle().
			Faint(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorDim).
			Padding(0, 1)

	ruleStyle = lipgloss.NewStyle().
			Foreground(colorBlue)

	detailLabelStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true)

	// Notice panel
	noticeStyle = lipgloss.NewStyle().
			Border(lipgloss.ThickBorder(), false, false, false, true).
			BorderForeground(colorRed).
			Padding(0, 1)

	noticeTitleStyle = lipgloss.NewStyle().
				Foreground(colorRed).
				Bold(true)

	// Diff panes
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1)

	paneHeaderStyle = lipgloss.NewStyle().
			Foreground(colorBlue).
			Bold(true)

	lineNumberStyle = lipgloss.NewStyle().
			Foreground(colorDim).
			Width(4).
			Align(lipgloss.Right)

	flaggedLineStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#5c2a2a"))

	flagMarkStyle = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	// Status bar
	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorFg).
			Background(colorBgLight).
			Padding(0, 1)

	helpBarStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(colorYellow)

	selectedMarkStyle = lipgloss.NewStyle().
				Foreground(colorPurple).
				Bold(true)
)
