package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Action is everything a key can ask the review screen to do.
type Action int

const (
	ActionNone Action = iota
	ActionRunReview
	ActionToggleDiff
	ActionMarkValid
	ActionMarkFalsePositive
	ActionToggleDetails
	ActionNextViolation
	ActionPrevViolation
	ActionExport
	ActionDismiss
	ActionLogin
	ActionHelp
	ActionQuit
)

func (a Action) String() string {
	switch a {
	case ActionRunReview:
		return "run review"
	case ActionToggleDiff:
		return "toggle diff"
	case ActionMarkValid:
		return "mark valid"
	case ActionMarkFalsePositive:
		return "mark false positive"
	case ActionToggleDetails:
		return "details"
	case ActionNextViolation:
		return "next"
	case ActionPrevViolation:
		return "prev"
	case ActionExport:
		return "export pdf"
	case ActionDismiss:
		return "dismiss"
	case ActionLogin:
		return "login"
	case ActionHelp:
		return "help"
	case ActionQuit:
		return "quit"
	default:
		return "none"
	}
}

type binding struct {
	key    key.Binding
	action Action
}

// bindings is matched in order; the first hit wins.
var bindings = []binding{
	{key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "review")), ActionRunReview},
	{key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "diff mode")), ActionToggleDiff},
	{key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "valid")), ActionMarkValid},
	{key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "false positive")), ActionMarkFalsePositive},
	{key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "details")), ActionToggleDetails},
	{key.NewBinding(key.WithKeys("down", "j", "tab"), key.WithHelp("↓/j", "next")), ActionNextViolation},
	{key.NewBinding(key.WithKeys("up", "k", "shift+tab"), key.WithHelp("↑/k", "prev")), ActionPrevViolation},
	{key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "export pdf")), ActionExport},
	{key.NewBinding(key.WithKeys("esc", "x"), key.WithHelp("esc", "dismiss")), ActionDismiss},
	{key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "login help")), ActionLogin},
	{key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")), ActionHelp},
	{key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")), ActionQuit},
}

func actionFor(msg tea.KeyMsg) Action {
	for _, b := range bindings {
		if key.Matches(msg, b.key) {
			return b.action
		}
	}
	return ActionNone
}
