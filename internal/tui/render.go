package tui

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/session"
)

// renderScore is the risk score with its delta, the risk level and the timestamp.
func renderScore(r model.ReviewResult) string {
	style := scoreStyles[model.BandFor(r.RiskScore)]
	score := style.Render(fmt.Sprintf("%d", r.RiskScore))
	if d, ok := r.Delta(); ok {
		score += subtleStyle.Render(fmt.Sprintf(" (%+d)", d))
	}

	parts := []string{"Risk " + score, style.Render(r.RiskLevel)}
	if r.Audit.Timestamp != "" {
		parts = append(parts, subtleStyle.Render(r.Audit.Timestamp))
	}
	return strings.Join(parts, "  ")
}

// renderCount is "N violations" plus lines added in diff mode.
func renderCount(r model.ReviewResult) string {
	s := fmt.Sprintf("%d violation", len(r.Violations))
	if len(r.Violations) != 1 {
		s += "s"
	}
	if r.Audit.DiffMetadata != nil {
		s += subtleStyle.Render(fmt.Sprintf("  +%d lines", r.Audit.DiffMetadata.LinesAdded))
	}
	return s
}

func renderNotice(n session.Notice, width int) string {
	var b strings.Builder
	b.WriteString(noticeTitleStyle.Render(n.Title))
	b.WriteByte('\n')
	b.WriteString(n.Message)
	b.WriteByte('\n')
	if n.Action == session.ActionLogin {
		b.WriteString(helpBarStyle.Render("L login help · esc dismiss"))
	} else {
		b.WriteString(helpBarStyle.Render("esc dismiss"))
	}
	return noticeStyle.Width(width).Render(b.String())
}

func renderCard(v model.Violation, p session.Presentation, selected, expanded bool, width int) string {
	sev := severityStyles[v.Severity].Render(string(v.Severity))
	head := fmt.Sprintf("%s  line %d  %s", sev, v.Line, ruleStyle.Render(v.RuleID))
	if p.Badge {
		head += "  " + badgeStyle.Render("FALSE POSITIVE")
	}

	msg := v.Message
	switch {
	case p.Struck:
		msg = struckStyle.Render(msg)
	case p.Pending:
		msg = pendingStyle.Render(msg)
	}
	body := head + "\n" + msg

	if p.Pending {
		body = pendingStyle.Render(body)
	}
	if expanded {
		body += "\n" + renderDetails(v)
	}

	style := cardStyle
	mark := "  "
	if selected {
		style = cardSelectedStyle
		mark = selectedMarkStyle.Render("▸ ")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, mark, style.Width(width-2).Render(body))
}

func renderDetails(v model.Violation) string {
	fields := []struct{ label, text string }{
		{"Why it matters", v.RiskExplanation},
		{"How it can be exploited", v.ExploitScenario},
		{"Fix", v.FixRecommendation},
		{"Secure example", v.SecureCodeExample},
	}
	var b strings.Builder
	for _, f := range fields {
		if f.text == "" {
			continue
		}
		b.WriteByte('\n')
		b.WriteString(detailLabelStyle.Render(f.label))
		b.WriteByte('\n')
		b.WriteString(f.text)
	}
	if b.Len() == 0 {
		return subtleStyle.Render("No further explanation.")
	}
	return strings.TrimPrefix(b.String(), "\n")
}

// renderDiffPanes shows the original code for reference next to the annotated
// modified code. Flagged lines get a marker and a background; the rest are
// syntax coloured.
func renderDiffPanes(filename, original, modified string, a diff.Annotated, width int) string {
	half := (width - 1) / 2
	inner := half - 4

	origLines := diff.SplitLines(original)
	var left strings.Builder
	left.WriteString(paneHeaderStyle.Render("Original"))
	for i, l := range origLines {
		left.WriteByte('\n')
		left.WriteString(lineNumberStyle.Render(fmt.Sprintf("%d", i+1)) + "   " + truncate(l, inner-8))
	}

	highlighted := diff.HighlightLines(filename, diff.SplitLines(modified))
	var right strings.Builder
	right.WriteString(paneHeaderStyle.Render(fmt.Sprintf("Modified  %d flagged", a.FlaggedCount())))
	for i, l := range a.Lines {
		right.WriteByte('\n')
		num := lineNumberStyle.Render(fmt.Sprintf("%d", l.LineNumber))
		if l.Flagged {
			text := truncate(html.UnescapeString(l.Text), inner-8)
			right.WriteString(num + " " + flagMarkStyle.Render("●") + " " + flaggedLineStyle.Render(text))
			continue
		}
		var hl diff.HighlightedLine
		if i < len(highlighted) {
			hl = highlighted[i]
		}
		right.WriteString(num + "   " + renderTokens(hl, inner-8))
	}

	return lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(half).Render(left.String()),
		" ",
		paneStyle.Width(half).Render(right.String()),
	)
}

func renderTokens(hl diff.HighlightedLine, max int) string {
	if lipgloss.Width(hl.Plain()) > max {
		return truncate(hl.Plain(), max)
	}
	var b strings.Builder
	for _, tok := range hl.Tokens {
		if tok.Color != "" {
			b.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color)).Render(tok.Text))
		} else {
			b.WriteString(tok.Text)
		}
	}
	return b.String()
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
