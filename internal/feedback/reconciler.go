// Package feedback applies user corrections to violations: optimistically, with an
// exact rollback when the feedback service refuses them.
package feedback

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/review"
	"github.com/sprite-ai/guardrev/internal/session"
)

// ErrFeedback wraps every failed submission.
var ErrFeedback = errors.New("feedback submission failed")

// Notice shown when a submission is rolled back.
const (
	ErrorTitle   = "Feedback Error"
	ErrorMessage = "Failed to submit feedback."
)

// Sender delivers a feedback event.
type Sender interface {
	Feedback(ctx context.Context, token string, ev model.FeedbackEvent) error
}

// Rerunner repeats the last review.
type Rerunner interface {
	Rerun(ctx context.Context, token string) (review.Report, error)
}

// Outcome is the result of one submission. Before is the presentation captured
// ahead of the optimistic update; After is what is shown once Submit returns.
type Outcome struct {
	Committed bool
	Before    session.Presentation
	After     session.Presentation
	Notice    *session.Notice
	Rerun     *review.Report
	RerunErr  error
}

// Reconciler submits feedback against the violations of one session.
type Reconciler struct {
	svc   Sender
	sess  *session.State
	rerun Rerunner
	log   zerolog.Logger
}

// New creates a reconciler. rerun may be nil, in which case a successful submission
// does not trigger a new review.
func New(svc Sender, sess *session.State, rerun Rerunner, log zerolog.Logger) *Reconciler {
	return &Reconciler{svc: svc, sess: sess, rerun: rerun, log: log}
}

// Submit sends ev and reconciles the session with the answer.
//
// Submissions for different violations may run concurrently. Two submissions for
// the same violation are not fenced against each other: whichever completes last
// decides the committed status.
func (r *Reconciler) Submit(ctx context.Context, ev model.FeedbackEvent, token string) (Outcome, error) {
	if err := ev.Validate(); err != nil {
		return Outcome{}, err
	}
	before, ok := r.sess.Presentation(ev.ViolationID)
	if !ok {
		return Outcome{}, &model.PreconditionError{Field: "violation_id", Reason: fmt.Sprintf("%q is not part of the current result", ev.ViolationID)}
	}
	if ev.RuleID == "" {
		if v, ok := r.sess.Violation(ev.ViolationID); ok {
			ev.RuleID = v.RuleID
		}
	}

	pending := before
	pending.Pending = true
	r.sess.SetPresentation(ev.ViolationID, pending)

	log := r.log.With().Str("violation", ev.ViolationID).Str("feedback", string(ev.Type)).Logger()

	if err := r.svc.Feedback(ctx, token, ev); err != nil {
		// A result adopted meanwhile owns the presentation, even under the same id.
		after, restored := r.sess.SwapPresentation(ev.ViolationID, pending, before)
		if restored {
			log.Warn().Err(err).Msg("feedback rolled back")
		} else {
			log.Warn().Err(err).Msg("feedback failed, result replaced meanwhile")
		}
		n := session.Notice{Title: ErrorTitle, Message: ErrorMessage}
		return Outcome{Before: before, After: after, Notice: &n}, fmt.Errorf("%w: %w", ErrFeedback, err)
	}

	out := Outcome{Committed: true, Before: before}
	after, ok := r.sess.Commit(ev.ViolationID, ev.Type.Status())
	if !ok {
		// The result was replaced while the request was in flight.
		log.Debug().Msg("violation no longer in session, nothing to commit")
	}
	out.After = after
	log.Info().Msg("feedback committed")

	if r.rerun == nil {
		return out, nil
	}
	rep, err := r.rerun.Rerun(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("re-run after feedback failed")
		out.RerunErr = err
		return out, nil
	}
	out.Rerun = &rep
	return out, nil
}
