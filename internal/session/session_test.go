package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
)

func sampleResult() model.ReviewResult {
	return model.ReviewResult{
		RiskScore: 60,
		RiskLevel: "MEDIUM RISK",
		Violations: []model.Violation{
			{ID: "v1", RuleID: "no_secrets", Line: 2, Severity: model.SeverityHigh, Status: model.StatusUnreviewed},
			{ID: "v2", RuleID: "nested_loops", Line: 5, Severity: model.SeverityMedium, Status: model.StatusFalsePositive},
		},
	}
}

func TestAdoptReplacesWholesale(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a"}, sampleResult(), nil)

	next := model.ReviewResult{RiskScore: 10, Violations: []model.Violation{{ID: "v9", Status: model.StatusUnreviewed}}}
	s.Adopt(model.ReviewRequest{Code: "b"}, next, nil)

	r, ok := s.Result()
	require.True(t, ok)
	assert.Equal(t, 10, r.RiskScore)
	require.Len(t, r.Violations, 1)
	assert.Equal(t, "v9", r.Violations[0].ID)

	_, ok = s.Presentation("v1")
	assert.False(t, ok, "presentation from the previous result survived")

	req, ok := s.LastRequest()
	require.True(t, ok)
	assert.Equal(t, "b", req.Code)
}

func TestAdoptDerivesPresentation(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a"}, sampleResult(), nil)

	p1, _ := s.Presentation("v1")
	assert.Equal(t, Presentation{Status: model.StatusUnreviewed}, p1)
	assert.False(t, p1.Dimmed())

	p2, _ := s.Presentation("v2")
	assert.Equal(t, Presentation{Status: model.StatusFalsePositive, Struck: true, Badge: true}, p2)
	assert.True(t, p2.Dimmed())
}

func TestAdoptCopiesInput(t *testing.T) {
	s := New()
	r := sampleResult()
	s.Adopt(model.ReviewRequest{Code: "a"}, r, nil)
	r.Violations[0].Status = model.StatusValid

	got, _ := s.Result()
	assert.Equal(t, model.StatusUnreviewed, got.Violations[0].Status)
}

func TestNoticeHidesResult(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a"}, sampleResult(), nil)
	assert.True(t, s.Snapshot().ResultVisible)

	s.SetNotice(Notice{Title: "Unauthorized", Action: ActionLogin})
	v := s.Snapshot()
	assert.False(t, v.ResultVisible)
	require.NotNil(t, v.Notice)
	assert.Equal(t, ActionLogin, v.Notice.Action)

	_, ok := s.Result()
	assert.True(t, ok, "hidden result must remain available for export")
}

func TestLoadingIsExclusive(t *testing.T) {
	s := New()
	_, ok := s.BeginLoading()
	require.True(t, ok)
	_, ok = s.BeginLoading()
	assert.False(t, ok)
	assert.True(t, s.Loading())
	s.EndLoading()
	_, ok = s.BeginLoading()
	assert.True(t, ok)
}

func TestResetKeepsReviewInFlight(t *testing.T) {
	s := New()
	gen, ok := s.BeginLoading()
	require.True(t, ok)

	s.Reset()
	assert.True(t, s.Loading(), "reset must not release the running review's slot")
	_, ok = s.BeginLoading()
	assert.False(t, ok)

	assert.False(t, s.SetNoticeAt(gen, Notice{Title: "Server Error"}))
	assert.False(t, s.AdoptAt(gen, model.ReviewRequest{Code: "a"}, sampleResult(), nil))
	s.ClearNoticeAt(gen)
	s.EndLoading()

	v := s.Snapshot()
	assert.False(t, v.Loading)
	assert.Nil(t, v.Result)
	assert.Nil(t, v.Request)
	assert.Nil(t, v.Notice)
	assert.Empty(t, v.Presentation)

	next, ok := s.BeginLoading()
	require.True(t, ok)
	assert.NotEqual(t, gen, next)
	assert.True(t, s.AdoptAt(next, model.ReviewRequest{Code: "b"}, sampleResult(), nil))
	_, ok = s.Result()
	assert.True(t, ok)
}

func TestCommit(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a"}, sampleResult(), nil)

	p, ok := s.Commit("v1", model.StatusFalsePositive)
	require.True(t, ok)
	assert.True(t, p.Struck)
	v, _ := s.Violation("v1")
	assert.Equal(t, model.StatusFalsePositive, v.Status)

	_, ok = s.Commit("missing", model.StatusValid)
	assert.False(t, ok)
}

func TestSetPresentationUnknown(t *testing.T) {
	s := New()
	assert.False(t, s.SetPresentation("v1", Presentation{Pending: true}))
}

func TestSwapPresentation(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a"}, sampleResult(), nil)
	rest, _ := s.Presentation("v1")
	pending := rest
	pending.Pending = true

	_, swapped := s.SwapPresentation("v1", pending, rest)
	assert.False(t, swapped, "nothing pending yet")

	s.SetPresentation("v1", pending)
	got, swapped := s.SwapPresentation("v1", pending, rest)
	assert.True(t, swapped)
	assert.Equal(t, rest, got)

	_, swapped = s.SwapPresentation("missing", pending, rest)
	assert.False(t, swapped)
}

func TestResetClearsEverything(t *testing.T) {
	s := New()
	a := diff.Annotate("a", "b", nil)
	s.Adopt(model.ReviewRequest{Mode: model.ModeDiff, Code: "b", OriginalCode: "a"}, sampleResult(), &a)
	s.SetNotice(Notice{Title: "x"})

	s.Reset()
	v := s.Snapshot()
	assert.Nil(t, v.Result)
	assert.Nil(t, v.Request)
	assert.Nil(t, v.Annotated)
	assert.Nil(t, v.Notice)
	assert.Empty(t, v.Presentation)
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Adopt(model.ReviewRequest{Code: "a", Policies: []string{"p"}}, sampleResult(), nil)
	v := s.Snapshot()
	v.Result.Violations[0].Status = model.StatusValid
	v.Request.Policies[0] = "changed"
	v.Presentation["v1"] = Presentation{Pending: true}

	again := s.Snapshot()
	assert.Equal(t, model.StatusUnreviewed, again.Result.Violations[0].Status)
	assert.Equal(t, "p", again.Request.Policies[0])
	assert.False(t, again.Presentation["v1"].Pending)
}
