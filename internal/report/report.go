// Package report renders an adopted review result for non-interactive use.
package report

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/session"
)

// Formats accepted by Write.
var Formats = []string{"text", "json", "markdown", "html"}

// Input is everything a report can show.
type Input struct {
	File      string
	Result    model.ReviewResult
	Annotated *diff.Annotated
	Notice    *session.Notice
	FellBack  bool
	// Patch is set when the reviewed code was produced by applying a patch.
	Patch *Change
}

// Change is the size of a patch in lines.
type Change struct {
	Added   int `json:"added"`
	Deleted int `json:"deleted"`
}

// Write renders in to w in the named format.
func Write(w io.Writer, format string, in Input) error {
	switch format {
	case "json":
		return writeJSON(w, in)
	case "markdown":
		return writeMarkdown(w, in)
	case "html":
		return writeHTML(w, in)
	case "text", "":
		return writeText(w, in)
	default:
		return fmt.Errorf("unknown format %q (want one of %s)", format, strings.Join(Formats, ", "))
	}
}

// Exit codes of `guardrev check`.
const (
	ExitClean    = 0
	ExitFindings = 1
	ExitHighRisk = 2
)

// ExitCode maps a result to the check exit code. False positives do not count.
func ExitCode(r model.ReviewResult) int {
	if model.BandFor(r.RiskScore) == model.BandHigh {
		return ExitHighRisk
	}
	if len(active(r)) > 0 {
		return ExitFindings
	}
	return ExitClean
}

func active(r model.ReviewResult) []model.Violation {
	var out []model.Violation
	for _, v := range r.Violations {
		if v.Status != model.StatusFalsePositive {
			out = append(out, v)
		}
	}
	return out
}

// sorted orders violations by severity, then line.
func sorted(vs []model.Violation) []model.Violation {
	out := append([]model.Violation(nil), vs...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].Line < out[j].Line
	})
	return out
}

func scoreLine(r model.ReviewResult) string {
	s := fmt.Sprintf("%d", r.RiskScore)
	if d, ok := r.Delta(); ok {
		s += fmt.Sprintf(" (%+d)", d)
	}
	return s
}

func countLine(in Input) string {
	r := in.Result
	s := fmt.Sprintf("%d violation(s)", len(r.Violations))
	if r.Audit.DiffMetadata != nil {
		s += fmt.Sprintf(", +%d lines", r.Audit.DiffMetadata.LinesAdded)
	}
	if in.Patch != nil {
		s += fmt.Sprintf(", patch +%d/-%d", in.Patch.Added, in.Patch.Deleted)
	}
	return s
}

func severityIcon(s model.Severity) string {
	switch s {
	case model.SeverityHigh:
		return "! "
	case model.SeverityMedium:
		return "* "
	default:
		return "- "
	}
}

func writeText(w io.Writer, in Input) error {
	r := in.Result
	if in.Notice != nil {
		fmt.Fprintf(w, "%s: %s\n", in.Notice.Title, in.Notice.Message)
	}
	if in.FellBack {
		fmt.Fprintln(w, "(showing local fallback data)")
	}
	if in.File != "" {
		fmt.Fprintf(w, "%s\n", in.File)
	}
	fmt.Fprintf(w, "Risk: %s  %s  [%s]\n", scoreLine(r), r.RiskLevel, model.BandFor(r.RiskScore))
	if r.Audit.Timestamp != "" {
		fmt.Fprintf(w, "Reviewed: %s\n", r.Audit.Timestamp)
	}
	fmt.Fprintf(w, "%s\n\n", countLine(in))

	if len(r.Violations) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}
	for _, v := range sorted(r.Violations) {
		mark := ""
		if v.Status == model.StatusFalsePositive {
			mark = " (false positive)"
		}
		fmt.Fprintf(w, "  %s[%s] line %d %s: %s%s\n", severityIcon(v.Severity), v.Severity, v.Line, v.RuleID, v.Message, mark)
		if v.FixRecommendation != "" {
			fmt.Fprintf(w, "      fix: %s\n", v.FixRecommendation)
		}
	}

	if in.Annotated != nil && in.Annotated.FlaggedCount() > 0 {
		fmt.Fprintln(w, "\nFlagged lines:")
		for _, l := range in.Annotated.Lines {
			if l.Flagged {
				fmt.Fprintf(w, "  %4d | %s\n", l.LineNumber, html.UnescapeString(l.Text))
			}
		}
	}
	return nil
}

type jsonReport struct {
	File     string             `json:"file,omitempty"`
	Band     string             `json:"band"`
	Fallback bool               `json:"fallback"`
	Notice   *session.Notice    `json:"notice,omitempty"`
	Result   model.ReviewResult `json:"result"`
	Flagged  []int              `json:"flagged_lines,omitempty"`
	Patch    *Change            `json:"patch,omitempty"`
	ExitCode int                `json:"exit_code"`
}

func writeJSON(w io.Writer, in Input) error {
	out := jsonReport{
		File:     in.File,
		Band:     model.BandFor(in.Result.RiskScore).String(),
		Fallback: in.FellBack,
		Notice:   in.Notice,
		Result:   in.Result,
		Patch:    in.Patch,
		ExitCode: ExitCode(in.Result),
	}
	if in.Annotated != nil {
		for _, l := range in.Annotated.Lines {
			if l.Flagged {
				out.Flagged = append(out.Flagged, l.LineNumber)
			}
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeMarkdown(w io.Writer, in Input) error {
	r := in.Result
	fmt.Fprintf(w, "## Review Report\n\n")
	if in.Notice != nil {
		fmt.Fprintf(w, "> **%s:** %s\n\n", in.Notice.Title, in.Notice.Message)
	}
	fmt.Fprintf(w, "**Risk:** %s (%s) | **Level:** %s | **Findings:** %s\n\n", scoreLine(r), model.BandFor(r.RiskScore), r.RiskLevel, countLine(in))

	if len(r.Violations) == 0 {
		fmt.Fprintln(w, "No issues found.")
		return nil
	}

	fmt.Fprintln(w, "| Severity | Rule | Line | Message | Status |")
	fmt.Fprintln(w, "|----------|------|------|---------|--------|")
	for _, v := range sorted(r.Violations) {
		msg := strings.ReplaceAll(v.Message, "|", `\|`)
		if v.Status == model.StatusFalsePositive {
			msg = "~~" + msg + "~~"
		}
		fmt.Fprintf(w, "| %s | `%s` | %d | %s | %s |\n", v.Severity, v.RuleID, v.Line, msg, v.Status)
	}
	return nil
}

func writeHTML(w io.Writer, in Input) error {
	r := in.Result
	band := model.BandFor(r.RiskScore)

	fmt.Fprint(w, `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>guardrev Review Report</title>
<style>
  body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 40px auto; padding: 0 20px; background: #282a36; color: #f8f8f2; }
  h1 { color: #bd93f9; }
  .summary { background: #343746; padding: 16px; border-radius: 8px; margin-bottom: 24px; }
  .summary span { margin-right: 24px; }
  .notice { background: #44475a; border-left: 4px solid #ff5555; padding: 12px 16px; margin-bottom: 24px; white-space: pre-wrap; }
  .band-high, .sev-HIGH { color: #ff5555; font-weight: bold; }
  .band-medium, .sev-MEDIUM { color: #f1fa8c; }
  .band-low, .sev-LOW { color: #50fa7b; }
  table { width: 100%; border-collapse: collapse; }
  th { text-align: left; padding: 8px 12px; background: #44475a; color: #f8f8f2; }
  td { padding: 8px 12px; border-bottom: 1px solid #44475a; }
  tr.false-positive { opacity: 0.6; text-decoration: line-through; }
  .badge { background: #6272a4; border-radius: 4px; padding: 1px 6px; font-size: 0.8em; text-decoration: none; }
  .rule { color: #8be9fd; }
  pre.diff { background: #343746; padding: 12px; border-radius: 8px; }
  .flagged { background: rgba(255, 85, 85, 0.2); display: block; }
  .clean { color: #50fa7b; font-size: 1.2em; }
  footer { margin-top: 32px; color: #6272a4; font-size: 0.85em; }
</style>
</head>
<body>
<h1>guardrev Review Report</h1>
`)

	if in.Notice != nil {
		fmt.Fprintf(w, "<div class=\"notice\"><strong>%s</strong>\n%s</div>\n", diff.EscapeHTML(in.Notice.Title), diff.EscapeHTML(in.Notice.Message))
	}

	fmt.Fprintf(w, `<div class="summary">
  <span>Risk: <span class="band-%s">%s</span></span>
  <span>%s</span>
  <span>%s</span>
  <span>%s</span>
</div>
`, band, diff.EscapeHTML(scoreLine(r)), diff.EscapeHTML(r.RiskLevel), diff.EscapeHTML(countLine(in)), diff.EscapeHTML(r.Audit.Timestamp))

	if len(r.Violations) == 0 {
		fmt.Fprintln(w, `<p class="clean">No issues found.</p>`)
	} else {
		fmt.Fprintln(w, `<table>
<thead><tr><th>Severity</th><th>Rule</th><th>Line</th><th>Message</th></tr></thead>
<tbody>`)
		for _, v := range sorted(r.Violations) {
			class, badge := "", ""
			if v.Status == model.StatusFalsePositive {
				class = ` class="false-positive"`
				badge = ` <span class="badge">FALSE POSITIVE</span>`
			}
			fmt.Fprintf(w, "<tr%s><td class=\"sev-%s\">%s</td><td class=\"rule\"><code>%s</code></td><td>%d</td><td>%s%s</td></tr>\n",
				class, v.Severity, v.Severity, diff.EscapeHTML(v.RuleID), v.Line, diff.EscapeHTML(v.Message), badge)
		}
		fmt.Fprintln(w, `</tbody></table>`)
	}

	// Annotated text is already escaped.
	if in.Annotated != nil {
		fmt.Fprintln(w, `<h2>Modified code</h2>
<pre class="diff">`)
		for _, l := range in.Annotated.Lines {
			if l.Flagged {
				fmt.Fprintf(w, "<span class=\"flagged\">%4d  %s</span>", l.LineNumber, l.Text)
			} else {
				fmt.Fprintf(w, "%4d  %s\n", l.LineNumber, l.Text)
			}
		}
		fmt.Fprintln(w, `</pre>`)
	}

	fmt.Fprintln(w, `<footer>Generated by <strong>guardrev</strong></footer>
</body>
</html>`)
	return nil
}
