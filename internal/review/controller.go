// Package review runs one review request through the service, classifies what came
// back and decides what the session ends up showing.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/fallback"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/outcome"
	"github.com/sprite-ai/guardrev/internal/session"
)

var (
	// ErrBusy is returned when a review is already in flight for the session.
	ErrBusy = errors.New("a review is already running")
	// ErrNoRequest is returned by Rerun before any result has been adopted.
	ErrNoRequest = errors.New("no previous review to re-run")
)

// Notice texts.
const (
	UnauthorizedTitle   = "Unauthorized"
	UnauthorizedMessage = "Your session is not authorized. Please log in or start the server with DISABLE_AUTH=1 for local testing."
	ValidationTitle     = "Validation Error"
	ServerErrorTitle    = "Server Error"
	NetworkErrorTitle   = "Network Error"
	NetworkErrorMessage = "Could not reach backend. Using local fallback."
)

// DefaultFallbackDelay is the simulated wait before fallback data is shown.
const DefaultFallbackDelay = 1500 * time.Millisecond

// State is where the controller is in a review.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateUnauthorized
	StateValidationFailed
	StateServerErrorShown
	StateNetworkErrorShown
	StateFallback
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateUnauthorized:
		return "unauthorized"
	case StateValidationFailed:
		return "validation_failed"
	case StateServerErrorShown:
		return "server_error"
	case StateNetworkErrorShown:
		return "network_error"
	case StateFallback:
		return "fallback"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Observer is notified of every state transition.
type Observer func(State)

// Reviewer sends a review request and returns the raw response.
type Reviewer interface {
	Review(ctx context.Context, token string, req model.ReviewRequest) (*outcome.Response, error)
}

// Report describes how one run ended.
type Report struct {
	Outcome   outcome.Outcome
	Trail     []State
	Notice    *session.Notice
	Result    *model.ReviewResult
	Annotated *diff.Annotated
	FellBack  bool
	// Discarded is set when the session was reset while the review ran; nothing
	// from the run reached the session.
	Discarded bool
}

// Adopted reports whether the run replaced the session's result.
func (r Report) Adopted() bool { return r.Result != nil }

// Controller drives reviews for a single session.
type Controller struct {
	svc   Reviewer
	sess  *session.State
	log   zerolog.Logger
	delay time.Duration
	now   func() time.Time
	sleep func(time.Duration)

	mu        sync.Mutex
	state     State
	observers []Observer
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l zerolog.Logger) Option { return func(c *Controller) { c.log = l } }

// WithFallbackDelay sets the wait before fallback data is adopted.
func WithFallbackDelay(d time.Duration) Option { return func(c *Controller) { c.delay = d } }

func WithClock(now func() time.Time) Option { return func(c *Controller) { c.now = now } }

// WithSleep replaces the function used for the fallback wait.
func WithSleep(sleep func(time.Duration)) Option { return func(c *Controller) { c.sleep = sleep } }

// NewController creates a controller bound to sess.
func NewController(svc Reviewer, sess *session.State, opts ...Option) *Controller {
	c := &Controller{
		svc:   svc,
		sess:  sess,
		log:   zerolog.Nop(),
		delay: DefaultFallbackDelay,
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Session returns the session the controller writes to.
func (c *Controller) Session() *session.State { return c.sess }

// Observe registers fn for state transitions.
func (c *Controller) Observe(fn Observer) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) enter(s State, trail *[]State) {
	c.mu.Lock()
	c.state = s
	obs := append([]Observer(nil), c.observers...)
	c.mu.Unlock()

	*trail = append(*trail, s)
	for _, fn := range obs {
		fn(s)
	}
}

// Run executes one review. Precondition failures and ErrBusy return before any
// network call; every other path returns a nil error and a Report describing what
// the session now shows.
func (c *Controller) Run(ctx context.Context, req model.ReviewRequest, token string) (rep Report, err error) {
	if err := req.Validate(); err != nil {
		return Report{}, err
	}
	gen, ok := c.sess.BeginLoading()
	if !ok {
		return Report{}, ErrBusy
	}

	c.enter(StateLoading, &rep.Trail)
	defer func() {
		c.sess.EndLoading()
		c.enter(StateIdle, &rep.Trail)
	}()

	log := c.log.With().Str("mode", req.Mode.String()).Logger()
	defer func() {
		if rep.Discarded {
			log.Info().Msg("session reset during review, answer discarded")
		}
	}()
	resp, rerr := c.svc.Review(ctx, token, req)
	out := outcome.Classify(resp, rerr)
	rep.Outcome = out
	log.Debug().Str("outcome", out.Kind.String()).Int("status", out.Status).Msg("review classified")

	switch out.Kind {
	case outcome.KindUnauthorized:
		if c.notify(gen, &rep, session.Notice{Title: UnauthorizedTitle, Message: UnauthorizedMessage, Action: session.ActionLogin}) {
			c.enter(StateUnauthorized, &rep.Trail)
		}
		return rep, nil

	case outcome.KindValidationError:
		if c.notify(gen, &rep, session.Notice{Title: ValidationTitle, Message: out.ValidationText()}) {
			c.enter(StateValidationFailed, &rep.Trail)
		}
		return rep, nil

	case outcome.KindServerError:
		if !c.notify(gen, &rep, session.Notice{
			Title:   ServerErrorTitle,
			Message: fmt.Sprintf("Backend returned status %d. %s", out.Status, out.Message),
		}) {
			return rep, nil
		}
		c.enter(StateServerErrorShown, &rep.Trail)
		log.Warn().Int("status", out.Status).Str("detail", out.Message).Msg("review service error, using fallback")
		c.fallback(gen, req, &rep)
		return rep, nil

	case outcome.KindNetworkError:
		if !c.notify(gen, &rep, session.Notice{Title: NetworkErrorTitle, Message: NetworkErrorMessage}) {
			return rep, nil
		}
		c.enter(StateNetworkErrorShown, &rep.Trail)
		log.Warn().Err(out.Err).Msg("review service unreachable, using fallback")
		c.fallback(gen, req, &rep)
		return rep, nil
	}

	c.sess.ClearNoticeAt(gen)
	if !c.adopt(gen, req, out.Result, &rep) {
		return rep, nil
	}
	c.enter(StateSuccess, &rep.Trail)
	log.Info().Int("risk_score", out.Result.RiskScore).Int("violations", len(out.Result.Violations)).Msg("review adopted")
	return rep, nil
}

// Rerun repeats the request behind the currently adopted result.
func (c *Controller) Rerun(ctx context.Context, token string) (Report, error) {
	req, ok := c.sess.LastRequest()
	if !ok {
		return Report{}, ErrNoRequest
	}
	return c.Run(ctx, req, token)
}

func (c *Controller) notify(gen uint64, rep *Report, n session.Notice) bool {
	if !c.sess.SetNoticeAt(gen, n) {
		rep.Discarded = true
		return false
	}
	rep.Notice = &n
	return true
}

func (c *Controller) fallback(gen uint64, req model.ReviewRequest, rep *Report) {
	if c.delay > 0 {
		c.sleep(c.delay)
	}
	if c.adopt(gen, req, fallback.Generate(c.now()), rep) {
		rep.FellBack = true
		c.enter(StateFallback, &rep.Trail)
	}
}

func (c *Controller) adopt(gen uint64, req model.ReviewRequest, result model.ReviewResult, rep *Report) bool {
	var annotated *diff.Annotated
	if req.Mode == model.ModeDiff {
		a := diff.Annotate(req.OriginalCode, req.Code, result.ViolationLines())
		annotated = &a
	}
	if !c.sess.AdoptAt(gen, req, result, annotated) {
		rep.Discarded = true
		return false
	}

	r := result.Clone()
	rep.Result = &r
	rep.Annotated = annotated
	return true
}
