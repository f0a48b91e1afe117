// Package session holds the state of one review session: the adopted result, the
// request that produced it, the displayed notice and per-violation presentation.
//
// A State is created when the application starts and Reset on logout. It is shared
// by the review controller and the feedback reconciler; all access goes through
// its mutex.
package session

import (
	"sync"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
)

// Action is the affordance offered alongside a notice.
type Action int

const (
	ActionDismiss Action = iota
	ActionLogin
)

func (a Action) String() string {
	if a == ActionLogin {
		return "login"
	}
	return "dismiss"
}

// Notice is a user-visible title and message.
type Notice struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Action  Action `json:"-"`
}

// Presentation is how a violation is currently shown. Status mirrors the committed
// status; Pending is the optimistic reduced-emphasis state during feedback.
type Presentation struct {
	Status  model.Status `json:"status"`
	Pending bool         `json:"pending"`
	Struck  bool         `json:"struck"`
	Badge   bool         `json:"badge"`
}

// Dimmed reports whether the violation is shown with reduced emphasis.
func (p Presentation) Dimmed() bool {
	return p.Pending || p.Struck
}

// PresentationFor is the resting presentation of a committed status.
func PresentationFor(s model.Status) Presentation {
	if s == model.StatusFalsePositive {
		return Presentation{Status: s, Struck: true, Badge: true}
	}
	return Presentation{Status: s}
}

// View is a consistent copy of the session for rendering.
type View struct {
	Loading       bool
	Result        *model.ReviewResult
	ResultVisible bool
	Mode          model.Mode
	Request       *model.ReviewRequest
	Annotated     *diff.Annotated
	Notice        *Notice
	Presentation  map[string]Presentation
}

// State is the single active session.
type State struct {
	mu sync.Mutex

	loading       bool
	gen           uint64
	result        *model.ReviewResult
	resultVisible bool
	request       *model.ReviewRequest
	annotated     *diff.Annotated
	notice        *Notice
	presentation  map[string]Presentation
}

// New returns an empty session.
func New() *State {
	return &State{presentation: make(map[string]Presentation)}
}

// Reset discards everything, as on logout. A review in flight keeps the loading
// mark until it ends, but nothing it later writes reaches the session.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.result = nil
	s.resultVisible = false
	s.request = nil
	s.annotated = nil
	s.notice = nil
	s.presentation = make(map[string]Presentation)
}

// BeginLoading marks a review in flight and returns the session generation the
// review belongs to. It returns false if a review already is in flight.
func (s *State) BeginLoading() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loading {
		return 0, false
	}
	s.loading = true
	return s.gen, true
}

// EndLoading clears the in-flight mark.
func (s *State) EndLoading() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}

// Loading reports whether a review is in flight.
func (s *State) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Adopt replaces the session's result, request and diff view in one step.
// Nothing from the previous result survives.
func (s *State) Adopt(req model.ReviewRequest, result model.ReviewResult, annotated *diff.Annotated) {
	s.adopt(nil, req, result, annotated)
}

// AdoptAt is Adopt for a review started in generation gen. It does nothing and
// returns false if the session was reset since.
func (s *State) AdoptAt(gen uint64, req model.ReviewRequest, result model.ReviewResult, annotated *diff.Annotated) bool {
	return s.adopt(&gen, req, result, annotated)
}

func (s *State) adopt(gen *uint64, req model.ReviewRequest, result model.ReviewResult, annotated *diff.Annotated) bool {
	r := result.Clone()
	rq := req
	rq.Policies = append([]string(nil), req.Policies...)

	pres := make(map[string]Presentation, len(r.Violations))
	for _, v := range r.Violations {
		pres[v.ID] = PresentationFor(v.Status)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != nil && *gen != s.gen {
		return false
	}
	s.result = &r
	s.resultVisible = true
	s.request = &rq
	s.annotated = annotated
	s.presentation = pres
	return true
}

// HideResult keeps the last result (export still works) but stops displaying it.
func (s *State) HideResult() {
	s.mu.Lock()
	s.resultVisible = false
	s.mu.Unlock()
}

// Result returns a copy of the last adopted result.
func (s *State) Result() (model.ReviewResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.ReviewResult{}, false
	}
	return s.result.Clone(), true
}

// LastRequest returns the request behind the last adopted result.
func (s *State) LastRequest() (model.ReviewRequest, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.request == nil {
		return model.ReviewRequest{}, false
	}
	rq := *s.request
	rq.Policies = append([]string(nil), s.request.Policies...)
	return rq, true
}

// Annotated returns the diff view of the last adopted diff-mode result.
func (s *State) Annotated() (diff.Annotated, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.annotated == nil {
		return diff.Annotated{}, false
	}
	return *s.annotated, true
}

// SetNotice shows a notice and hides the current result.
func (s *State) SetNotice(n Notice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notice = &n
	s.resultVisible = false
}

// SetNoticeAt is SetNotice for a review started in generation gen.
func (s *State) SetNoticeAt(gen uint64, n Notice) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.notice = &n
	s.resultVisible = false
	return true
}

// ClearNotice dismisses the current notice.
func (s *State) ClearNotice() {
	s.mu.Lock()
	s.notice = nil
	s.mu.Unlock()
}

// ClearNoticeAt is ClearNotice for a review started in generation gen.
func (s *State) ClearNoticeAt(gen uint64) {
	s.mu.Lock()
	if gen == s.gen {
		s.notice = nil
	}
	s.mu.Unlock()
}

// Notice returns the current notice.
func (s *State) Notice() (Notice, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notice == nil {
		return Notice{}, false
	}
	return *s.notice, true
}

// Violation returns the violation with the given id from the adopted result.
func (s *State) Violation(id string) (model.Violation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return model.Violation{}, false
	}
	i := s.result.Find(id)
	if i < 0 {
		return model.Violation{}, false
	}
	return s.result.Violations[i], true
}

// Presentation returns the current presentation of a violation.
func (s *State) Presentation(id string) (Presentation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presentation[id]
	return p, ok
}

// SetPresentation overwrites the presentation of a violation that is part of the
// adopted result. It returns false if the violation is unknown.
func (s *State) SetPresentation(id string, p Presentation) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presentation[id]; !ok {
		return false
	}
	s.presentation[id] = p
	return true
}

// SwapPresentation sets p on violation id only while it still shows old. It
// returns the presentation in place afterwards and whether the swap happened.
func (s *State) SwapPresentation(id string, old, p Presentation) (Presentation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.presentation[id]
	if !ok || cur != old {
		return cur, false
	}
	s.presentation[id] = p
	return p, true
}

// Commit writes a status onto the adopted result and sets the matching presentation.
func (s *State) Commit(id string, status model.Status) (Presentation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return Presentation{}, false
	}
	i := s.result.Find(id)
	if i < 0 {
		return Presentation{}, false
	}
	s.result.Violations[i].Status = status
	p := PresentationFor(status)
	s.presentation[id] = p
	return p, true
}

// Snapshot copies the whole session for rendering.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Loading:       s.loading,
		ResultVisible: s.resultVisible,
		Presentation:  make(map[string]Presentation, len(s.presentation)),
	}
	if s.result != nil {
		r := s.result.Clone()
		v.Result = &r
	}
	if s.request != nil {
		rq := *s.request
		rq.Policies = append([]string(nil), s.request.Policies...)
		v.Request = &rq
		v.Mode = rq.Mode
	}
	if s.annotated != nil {
		a := *s.annotated
		v.Annotated = &a
	}
	if s.notice != nil {
		n := *s.notice
		v.Notice = &n
	}
	for id, p := range s.presentation {
		v.Presentation[id] = p
	}
	return v
}
