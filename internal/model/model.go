// Package model defines the core data types shared across guardrev.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Mode selects between reviewing a single snapshot and an original/modified pair.
type Mode int

const (
	ModeSingle Mode = iota
	ModeDiff
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeDiff:
		return "diff"
	default:
		return "unknown"
	}
}

// ErrPrecondition is the target for errors.Is on malformed requests.
var ErrPrecondition = errors.New("precondition failed")

// PreconditionError reports a request that was rejected before any network call.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

func (e *PreconditionError) Unwrap() error { return ErrPrecondition }

// ReviewRequest is one submission to the review service. In diff mode Code is the
// modified text.
type ReviewRequest struct {
	Mode         Mode
	Code         string
	OriginalCode string
	Policies     []string
}

// Validate checks the per-mode shape of the request.
func (r ReviewRequest) Validate() error {
	switch r.Mode {
	case ModeSingle:
		if r.Code == "" {
			return &PreconditionError{Field: "code", Reason: "is required"}
		}
	case ModeDiff:
		if r.OriginalCode == "" {
			return &PreconditionError{Field: "original_code", Reason: "is required in diff mode"}
		}
		if r.Code == "" {
			return &PreconditionError{Field: "modified_code", Reason: "is required in diff mode"}
		}
	default:
		return &PreconditionError{Field: "mode", Reason: "is unknown"}
	}
	return nil
}

// NormalizedPolicies returns the policy set sorted and de-duplicated, without blanks.
func (r ReviewRequest) NormalizedPolicies() []string {
	seen := make(map[string]bool, len(r.Policies))
	out := make([]string, 0, len(r.Policies))
	for _, p := range r.Policies {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Severity of a violation as reported by the service.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank orders severities for sorting and exit codes.
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Status is the reviewer's verdict on a violation.
type Status string

const (
	StatusUnreviewed    Status = "UNREVIEWED"
	StatusValid         Status = "VALID"
	StatusFalsePositive Status = "FALSE_POSITIVE"
)

// UnmarshalJSON maps the service's "OPEN" (and absent) status to UNREVIEWED.
func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch strings.ToUpper(raw) {
	case "", "OPEN", string(StatusUnreviewed):
		*s = StatusUnreviewed
	case string(StatusValid):
		*s = StatusValid
	case string(StatusFalsePositive):
		*s = StatusFalsePositive
	default:
		return fmt.Errorf("unknown violation status %q", raw)
	}
	return nil
}

// Violation is a single flagged issue in reviewed code.
type Violation struct {
	ID                string   `json:"id"`
	RuleID            string   `json:"rule_id"`
	Line              int      `json:"line"`
	Severity          Severity `json:"severity"`
	Message           string   `json:"message"`
	Status            Status   `json:"status"`
	RiskExplanation   string   `json:"risk_explanation,omitempty"`
	ExploitScenario   string   `json:"exploit_scenario,omitempty"`
	FixRecommendation string   `json:"fix_recommendation,omitempty"`
	SecureCodeExample string   `json:"secure_code_example,omitempty"`
}

// DiffMetadata summarises what changed between original and modified code.
type DiffMetadata struct {
	LinesAdded    int `json:"lines_added"`
	LinesModified int `json:"lines_modified,omitempty"`
	LinesRemoved  int `json:"lines_removed,omitempty"`
}

// Audit carries opaque metadata about a review run.
type Audit struct {
	Timestamp    string        `json:"timestamp"`
	File         string        `json:"file,omitempty"`
	DiffMetadata *DiffMetadata `json:"diff_metadata,omitempty"`
}

// ReviewResult is the outcome of one review.
type ReviewResult struct {
	RiskScore         int         `json:"risk_score"`
	RiskDelta         *int        `json:"risk_delta,omitempty"`
	RiskLevel         string      `json:"risk_level"`
	OriginalRiskScore *int        `json:"original_risk_score,omitempty"`
	NewRiskScore      *int        `json:"new_risk_score,omitempty"`
	Audit             Audit       `json:"audit"`
	Violations        []Violation `json:"violations"`
}

// Clone returns a deep copy so callers never share violation slices.
func (r ReviewResult) Clone() ReviewResult {
	out := r
	out.RiskDelta = cloneInt(r.RiskDelta)
	out.OriginalRiskScore = cloneInt(r.OriginalRiskScore)
	out.NewRiskScore = cloneInt(r.NewRiskScore)
	if r.Audit.DiffMetadata != nil {
		dm := *r.Audit.DiffMetadata
		out.Audit.DiffMetadata = &dm
	}
	if r.Violations != nil {
		out.Violations = make([]Violation, len(r.Violations))
		copy(out.Violations, r.Violations)
	}
	return out
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// Normalize fills in defaults the service may omit.
func (r *ReviewResult) Normalize() {
	for i := range r.Violations {
		if r.Violations[i].Status == "" {
			r.Violations[i].Status = StatusUnreviewed
		}
	}
	if r.Violations == nil {
		r.Violations = []Violation{}
	}
}

// ViolationLines returns the set of line numbers carrying at least one violation.
func (r ReviewResult) ViolationLines() map[int]bool {
	lines := make(map[int]bool, len(r.Violations))
	for _, v := range r.Violations {
		lines[v.Line] = true
	}
	return lines
}

// Find returns the index of the violation with the given id, or -1.
func (r ReviewResult) Find(id string) int {
	for i, v := range r.Violations {
		if v.ID == id {
			return i
		}
	}
	return -1
}

// MaxSeverity returns the highest severity among violations not marked false positive.
func (r ReviewResult) MaxSeverity() Severity {
	var top Severity
	for _, v := range r.Violations {
		if v.Status == StatusFalsePositive {
			continue
		}
		if v.Severity.Rank() > top.Rank() {
			top = v.Severity
		}
	}
	return top
}

// Delta returns the risk delta and whether a non-zero one is present.
func (r ReviewResult) Delta() (int, bool) {
	if r.RiskDelta == nil || *r.RiskDelta == 0 {
		return 0, false
	}
	return *r.RiskDelta, true
}

// RiskBand is the presentation bucket for a risk score.
type RiskBand int

const (
	BandLow RiskBand = iota
	BandMedium
	BandHigh
)

func (b RiskBand) String() string {
	switch b {
	case BandLow:
		return "low"
	case BandMedium:
		return "medium"
	case BandHigh:
		return "high"
	default:
		return "unknown"
	}
}

// BandFor buckets a risk score: above 70 is high, above 40 is medium.
func BandFor(score int) RiskBand {
	switch {
	case score > 70:
		return BandHigh
	case score > 40:
		return BandMedium
	default:
		return BandLow
	}
}

// FeedbackType is the correction a reviewer applies to a violation.
type FeedbackType string

const (
	FeedbackValid         FeedbackType = "VALID"
	FeedbackFalsePositive FeedbackType = "FALSE_POSITIVE"
)

// Status returns the violation status the feedback commits.
func (t FeedbackType) Status() Status {
	if t == FeedbackFalsePositive {
		return StatusFalsePositive
	}
	return StatusValid
}

// FeedbackEvent is one submission to the feedback service.
type FeedbackEvent struct {
	ViolationID string       `json:"violation_id"`
	RuleID      string       `json:"policy_rule_id"`
	Type        FeedbackType `json:"feedback_type"`
}

// Validate rejects events the feedback service cannot attribute.
func (e FeedbackEvent) Validate() error {
	if e.ViolationID == "" {
		return &PreconditionError{Field: "violation_id", Reason: "is required"}
	}
	if e.Type != FeedbackValid && e.Type != FeedbackFalsePositive {
		return &PreconditionError{Field: "feedback_type", Reason: fmt.Sprintf("must be VALID or FALSE_POSITIVE, got %q", e.Type)}
	}
	return nil
}
