package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sprite-ai/guardrev/internal/model"
)

// Summary is what happened during an interactive session.
type Summary struct {
	Reviews  int
	Feedback map[string]model.FeedbackType
	Exported []string
	Last     *model.ReviewResult
}

// FalsePositives returns the ids marked FALSE_POSITIVE, sorted.
func (s *Summary) FalsePositives() []string {
	return s.marked(model.FeedbackFalsePositive)
}

// Confirmed returns the ids marked VALID, sorted.
func (s *Summary) Confirmed() []string {
	return s.marked(model.FeedbackValid)
}

func (s *Summary) marked(t model.FeedbackType) []string {
	var ids []string
	for id, ft := range s.Feedback {
		if ft == t {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// String renders the summary printed after the screen closes.
func (s *Summary) String() string {
	if s.Reviews == 0 && len(s.Feedback) == 0 && len(s.Exported) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d review(s) run", s.Reviews)
	if s.Last != nil {
		fmt.Fprintf(&b, ", last risk score %d (%s)", s.Last.RiskScore, model.BandFor(s.Last.RiskScore))
	}
	b.WriteString("\n")

	if fp := s.FalsePositives(); len(fp) > 0 {
		fmt.Fprintf(&b, "\nMarked false positive:\n")
		for _, id := range fp {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	if ok := s.Confirmed(); len(ok) > 0 {
		fmt.Fprintf(&b, "\nConfirmed:\n")
		for _, id := range ok {
			fmt.Fprintf(&b, "  - %s\n", id)
		}
	}
	for _, p := range s.Exported {
		fmt.Fprintf(&b, "\nReport saved to %s\n", p)
	}
	return b.String()
}
