// Package fallback produces the fixed local result shown when the review service
// cannot be reached.
package fallback

import (
	"time"

	"github.com/sprite-ai/guardrev/internal/model"
)

// Score and Level of the fallback result.
const (
	Score = 85
	Level = "High Risk"
)

// TimestampLayout formats the audit timestamp of a fallback result.
const TimestampLayout = "Jan 2, 2006, 3:04:05 PM"

// Generate returns the fallback result stamped with now. Apart from the timestamp
// the result is always the same.
func Generate(now time.Time) model.ReviewResult {
	return model.ReviewResult{
		RiskScore: Score,
		RiskLevel: Level,
		Audit: model.Audit{
			Timestamp: now.Format(TimestampLayout),
			File:      "untitled.py",
		},
		Violations: []model.Violation{
			{
				ID:                "fallback-1",
				RuleID:            "no_secrets",
				Line:              4,
				Severity:          model.SeverityHigh,
				Message:           "Hardcoded secret detected",
				Status:            model.StatusUnreviewed,
				FixRecommendation: "Move secrets to environment variables or a secret management service.",
			},
			{
				ID:                "fallback-2",
				RuleID:            "nested_loops",
				Line:              9,
				Severity:          model.SeverityMedium,
				Message:           "Deeply nested loops detected",
				Status:            model.StatusUnreviewed,
				FixRecommendation: "Refactor nested loops into separate functions or use hash maps.",
			},
			{
				ID:                "fallback-3",
				RuleID:            "blocking_calls",
				Line:              14,
				Severity:          model.SeverityMedium,
				Message:           "Potentially blocking operation",
				Status:            model.StatusUnreviewed,
				FixRecommendation: "Offload blocking calls to a background worker or use async alternatives.",
			},
			{
				ID:                "fallback-4",
				RuleID:            "enforce_logging",
				Line:              20,
				Severity:          model.SeverityLow,
				Message:           "Missing error logging",
				Status:            model.StatusUnreviewed,
				FixRecommendation: "Log errors through the logging module instead of print.",
			},
		},
	}
}
