// Package tui implements the Bubble Tea review screen.
package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/guardrev/internal/client"
	"github.com/sprite-ai/guardrev/internal/feedback"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/review"
	"github.com/sprite-ai/guardrev/internal/session"
)

// Exporter renders a result into a PDF report.
type Exporter interface {
	ExportPDF(ctx context.Context, token string, result model.ReviewResult) ([]byte, error)
}

// Config wires the screen to the review machinery.
type Config struct {
	Controller *review.Controller
	Feedback   *feedback.Reconciler
	Exporter   Exporter
	Token      string
	// Avatar is the letter shown for the logged-in user.
	Avatar string

	Filename string
	Request  model.ReviewRequest

	// ExportDir is where PDF reports are written; "" means the working directory.
	ExportDir string
	Now       func() time.Time
	// AutoRun starts a review as soon as the program starts.
	AutoRun bool
}

type reviewDoneMsg struct {
	rep review.Report
	err error
}

type feedbackDoneMsg struct {
	id  string
	typ model.FeedbackType
	out feedback.Outcome
	err error
}

type exportDoneMsg struct {
	path string
	err  error
}

// Model is the top-level Bubble Tea model.
type Model struct {
	cfg  Config
	sess *session.State

	req  model.ReviewRequest
	view session.View

	width  int
	height int

	selected int
	expanded map[string]bool
	inflight int
	running  bool
	showHelp bool
	status   string

	spinner spinner.Model
	summary *Summary
}

// New creates the review screen.
func New(cfg Config) Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(colorPurple)

	m := Model{
		cfg:      cfg,
		sess:     cfg.Controller.Session(),
		req:      cfg.Request,
		expanded: make(map[string]bool),
		spinner:  sp,
		summary:  &Summary{Feedback: make(map[string]model.FeedbackType)},
	}
	m.refresh()
	return m
}

// Summary returns what happened during the session.
func (m Model) Summary() *Summary {
	return m.summary
}

func (m *Model) refresh() {
	m.view = m.sess.Snapshot()
	if m.view.Result == nil {
		m.selected = 0
		return
	}
	if n := len(m.view.Result.Violations); m.selected >= n {
		m.selected = max(n-1, 0)
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	if m.cfg.AutoRun {
		return func() tea.Msg { return autoRunMsg{} }
	}
	return nil
}

type autoRunMsg struct{}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case autoRunMsg:
		cmd := m.dispatch(ActionRunReview)
		return m, cmd

	case tea.KeyMsg:
		if m.showHelp {
			m.showHelp = false
			return m, nil
		}
		cmd := m.dispatch(actionFor(msg))
		return m, cmd

	case reviewDoneMsg:
		m.running = false
		if msg.err != nil {
			m.status = msg.err.Error()
		} else {
			m.summary.Reviews++
			m.summary.Last = msg.rep.Result
			m.status = ""
		}
		m.refresh()
		return m, nil

	case feedbackDoneMsg:
		m.inflight--
		if msg.err != nil {
			m.status = msg.err.Error()
			if msg.out.Notice != nil {
				m.status = msg.out.Notice.Message
			}
		} else {
			m.summary.Feedback[msg.id] = msg.typ
			if msg.out.Rerun != nil {
				m.summary.Reviews++
				m.summary.Last = msg.out.Rerun.Result
			}
			m.status = fmt.Sprintf("Marked %s", msg.typ)
			if msg.out.RerunErr != nil {
				m.status += " (re-run: " + msg.out.RerunErr.Error() + ")"
			}
		}
		m.refresh()
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.status = "Export failed: " + msg.err.Error()
		} else {
			m.summary.Exported = append(m.summary.Exported, msg.path)
			m.status = "Report saved to " + msg.path
		}
		return m, nil

	case spinner.TickMsg:
		if !m.busy() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.refresh()
		return m, cmd
	}

	return m, nil
}

func (m Model) busy() bool {
	return m.running || m.inflight > 0
}

// dispatch runs the handler for a.
func (m *Model) dispatch(a Action) tea.Cmd {
	h, ok := handlers[a]
	if !ok {
		return nil
	}
	return h(m)
}

var handlers = map[Action]func(*Model) tea.Cmd{
	ActionRunReview:         (*Model).runReview,
	ActionToggleDiff:        (*Model).toggleDiff,
	ActionMarkValid:         func(m *Model) tea.Cmd { return m.submit(model.FeedbackValid) },
	ActionMarkFalsePositive: func(m *Model) tea.Cmd { return m.submit(model.FeedbackFalsePositive) },
	ActionToggleDetails:     (*Model).toggleDetails,
	ActionNextViolation:     func(m *Model) tea.Cmd { m.move(1); return nil },
	ActionPrevViolation:     func(m *Model) tea.Cmd { m.move(-1); return nil },
	ActionExport:            (*Model).export,
	ActionDismiss:           (*Model).dismiss,
	ActionLogin:             (*Model).loginHint,
	ActionHelp:              func(m *Model) tea.Cmd { m.showHelp = true; return nil },
	ActionQuit:              func(*Model) tea.Cmd { return tea.Quit },
}

func (m *Model) runReview() tea.Cmd {
	// Disabled while a review is in flight.
	if m.running || m.sess.Loading() {
		return nil
	}
	m.running = true
	m.status = ""
	ctrl, req, token := m.cfg.Controller, m.req, m.cfg.Token
	run := func() tea.Msg {
		rep, err := ctrl.Run(context.Background(), req, token)
		return reviewDoneMsg{rep: rep, err: err}
	}
	return tea.Batch(run, m.spinner.Tick)
}

func (m *Model) toggleDiff() tea.Cmd {
	if m.req.Mode == model.ModeDiff {
		m.req.Mode = model.ModeSingle
		m.status = "Single-file mode"
		return nil
	}
	if m.req.OriginalCode == "" {
		m.status = "No original to compare against (use --original, --against or --patch)"
		return nil
	}
	m.req.Mode = model.ModeDiff
	m.status = "Diff mode"
	return nil
}

func (m *Model) current() (model.Violation, bool) {
	if m.view.Result == nil || len(m.view.Result.Violations) == 0 {
		return model.Violation{}, false
	}
	return m.view.Result.Violations[m.selected], true
}

func (m *Model) move(delta int) {
	if m.view.Result == nil {
		return
	}
	n := len(m.view.Result.Violations)
	if n == 0 {
		return
	}
	m.selected = (m.selected + delta + n) % n
}

func (m *Model) toggleDetails() tea.Cmd {
	if v, ok := m.current(); ok {
		m.expanded[v.ID] = !m.expanded[v.ID]
	}
	return nil
}

func (m *Model) submit(t model.FeedbackType) tea.Cmd {
	v, ok := m.current()
	if !ok || m.cfg.Feedback == nil {
		return nil
	}
	if p, ok := m.view.Presentation[v.ID]; ok && p.Pending {
		return nil
	}
	m.inflight++
	m.status = ""
	rec, token := m.cfg.Feedback, m.cfg.Token
	ev := model.FeedbackEvent{ViolationID: v.ID, RuleID: v.RuleID, Type: t}
	send := func() tea.Msg {
		out, err := rec.Submit(context.Background(), ev, token)
		return feedbackDoneMsg{id: ev.ViolationID, typ: t, out: out, err: err}
	}
	return tea.Batch(send, m.spinner.Tick)
}

func (m *Model) export() tea.Cmd {
	result, ok := m.sess.Result()
	if !ok {
		m.status = "Nothing to export yet"
		return nil
	}
	if m.cfg.Exporter == nil {
		m.status = "Export is not available"
		return nil
	}
	m.status = "Exporting…"
	exp, token, now, dir := m.cfg.Exporter, m.cfg.Token, m.cfg.Now(), m.cfg.ExportDir
	return func() tea.Msg {
		path, err := writeReport(exp, token, result, now, dir)
		return exportDoneMsg{path: path, err: err}
	}
}

func writeReport(exp Exporter, token string, result model.ReviewResult, now time.Time, dir string) (string, error) {
	pdf, err := exp.ExportPDF(context.Background(), token, result)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, client.ReportFileName(now))
	if err := os.WriteFile(path, pdf, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func (m *Model) dismiss() tea.Cmd {
	m.sess.ClearNotice()
	m.status = ""
	m.refresh()
	return nil
}

func (m *Model) loginHint() tea.Cmd {
	m.status = "Run `guardrev login` in another terminal, then press r to review again"
	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}

	width := m.width - 2
	var sections []string
	sections = append(sections, m.renderHeader())

	if m.view.Notice != nil {
		sections = append(sections, renderNotice(*m.view.Notice, width))
	}

	if r := m.view.Result; r != nil && m.view.ResultVisible {
		sections = append(sections, renderScore(*r), renderCount(*r))
		for i, v := range r.Violations {
			sections = append(sections, renderCard(v, m.view.Presentation[v.ID], i == m.selected, m.expanded[v.ID], width))
		}
		if m.view.Mode == model.ModeDiff && m.view.Annotated != nil && m.view.Request != nil {
			sections = append(sections, renderDiffPanes(m.cfg.Filename, m.view.Request.OriginalCode, m.view.Request.Code, *m.view.Annotated, width))
		}
	} else if m.view.Notice == nil && !m.busy() {
		sections = append(sections, subtleStyle.Render("Press r to review "+m.describeTarget()))
	}

	body := lipgloss.JoinVertical(lipgloss.Left, sections...)
	// Keep the status bar on screen by clipping the body.
	lines := strings.Split(body, "\n")
	if limit := m.height - 1; limit > 0 && len(lines) > limit {
		lines = lines[:limit]
	}
	return lipgloss.JoinVertical(lipgloss.Left, strings.Join(lines, "\n"), m.renderStatusBar())
}

func (m Model) describeTarget() string {
	name := m.cfg.Filename
	if name == "" {
		name = "the input"
	}
	if m.req.Mode == model.ModeDiff {
		return name + " against its original"
	}
	return name
}

func (m Model) renderHeader() string {
	left := titleStyle.Render("guardrev") + "  " + m.cfg.Filename
	mode := "single"
	if m.req.Mode == model.ModeDiff {
		mode = "diff"
	}
	right := subtleStyle.Render(mode)
	if m.cfg.Avatar != "" {
		right += "  " + badgeStyle.Render(m.cfg.Avatar)
	}
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m Model) renderStatusBar() string {
	var left string
	switch {
	case m.running:
		left = m.spinner.View() + " Reviewing…"
	case m.inflight > 0:
		left = m.spinner.View() + " Sending feedback…"
	case m.status != "":
		left = m.status
	}
	right := "r review · v/f feedback · e export · ? help"
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return statusBarStyle.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) renderHelp() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("guardrev keyboard shortcuts"))
	b.WriteString("\n\n")
	for _, bd := range bindings {
		h := bd.key.Help()
		b.WriteString(fmt.Sprintf("  %s  %s\n", helpKeyStyle.Width(8).Render(h.Key), bd.action))
	}
	b.WriteString("\n")
	b.WriteString(helpBarStyle.Render("Press any key to close help"))
	return b.String()
}

// Run starts the review screen and returns its summary once the user quits.
func Run(cfg Config, opts ...tea.ProgramOption) (*Summary, error) {
	p := tea.NewProgram(New(cfg), append([]tea.ProgramOption{tea.WithAltScreen()}, opts...)...)
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	m, ok := final.(Model)
	if !ok {
		return nil, errors.New("unexpected model type")
	}
	return m.Summary(), nil
}
