package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sprite-ai/guardrev/internal/model"
)

type captured struct {
	method string
	path   string
	auth   string
	reqID  string
	body   map[string]any
}

func newServer(t *testing.T, status int, respBody string, got *captured) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.method = r.Method
		got.path = r.URL.Path
		got.auth = r.Header.Get("Authorization")
		got.reqID = r.Header.Get("X-Request-ID")
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(respBody))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestReviewSingle(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{"risk_score": 30}`, &got)
	c := New(ts.URL+"/", time.Second)

	resp, err := c.Review(context.Background(), "tok", model.ReviewRequest{
		Mode:     model.ModeSingle,
		Code:     "x=1",
		Policies: []string{"no_secrets", "no_secrets"},
	})
	require.NoError(t, err)

	assert.Equal(t, 200, resp.Status)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.JSONEq(t, `{"risk_score": 30}`, string(resp.Body))
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/review", got.path)
	assert.Equal(t, "Bearer tok", got.auth)
	assert.NotEmpty(t, got.reqID)
	assert.Equal(t, "x=1", got.body["code"])
	assert.Equal(t, []any{"no_secrets"}, got.body["policies"])
}

func TestReviewDiff(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{}`, &got)
	c := New(ts.URL, time.Second)

	_, err := c.Review(context.Background(), "tok", model.ReviewRequest{
		Mode:         model.ModeDiff,
		Code:         "a=1\nb=2\n",
		OriginalCode: "a=1\n",
	})
	require.NoError(t, err)

	assert.Equal(t, "/review/diff", got.path)
	assert.Equal(t, "a=1\n", got.body["original_code"])
	assert.Equal(t, "a=1\nb=2\n", got.body["modified_code"])
	assert.Equal(t, []any{}, got.body["policies"])
	_, hasCode := got.body["code"]
	assert.False(t, hasCode)
}

func TestReviewReturnsErrorStatusesUnclassified(t *testing.T) {
	var got captured
	ts := newServer(t, 401, `{"detail":"nope"}`, &got)
	c := New(ts.URL, time.Second)

	resp, err := c.Review(context.Background(), "bad", model.ReviewRequest{Code: "x"})
	require.NoError(t, err)
	assert.Equal(t, 401, resp.Status)
}

func TestReviewTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := New(url, time.Second)
	_, err := c.Review(context.Background(), "tok", model.ReviewRequest{Code: "x"})
	require.Error(t, err)

	var te *TransportError
	assert.True(t, errors.As(err, &te))
}

func TestFeedback(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{"status":"success"}`, &got)
	c := New(ts.URL, time.Second)

	err := c.Feedback(context.Background(), "tok", model.FeedbackEvent{
		ViolationID: "v1",
		RuleID:      "no_secrets",
		Type:        model.FeedbackFalsePositive,
	})
	require.NoError(t, err)
	assert.Equal(t, "/feedback", got.path)
	assert.Equal(t, "v1", got.body["violation_id"])
	assert.Equal(t, "no_secrets", got.body["policy_rule_id"])
	assert.Equal(t, "FALSE_POSITIVE", got.body["feedback_type"])
}

func TestFeedbackFailure(t *testing.T) {
	var got captured
	ts := newServer(t, 500, `{"detail":"db down"}`, &got)
	c := New(ts.URL, time.Second)

	err := c.Feedback(context.Background(), "tok", model.FeedbackEvent{ViolationID: "v1", Type: model.FeedbackValid})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 500, se.Status)
	assert.Equal(t, "db down", se.Body)
}

func TestStats(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{"total_feedback": 5, "false_positives": 2, "valid_reports": 3}`, &got)
	c := New(ts.URL, time.Second)

	stats, err := c.Stats(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, got.method)
	assert.Equal(t, "/feedback/stats", got.path)
	assert.Equal(t, FeedbackStats{TotalFeedback: 5, FalsePositives: 2, ValidReports: 3}, stats)
}

func TestExportPDF(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `%PDF-1.4`, &got)
	c := New(ts.URL, time.Second)

	pdf, err := c.ExportPDF(context.Background(), "tok", model.ReviewResult{RiskScore: 85, RiskLevel: "High Risk"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(pdf))
	assert.Equal(t, "/export/pdf", got.path)
	assert.EqualValues(t, 85, got.body["risk_score"])
}

func TestReportFileName(t *testing.T) {
	now := time.Date(2026, 10, 15, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "audit_report_2026-10-15.pdf", ReportFileName(now))
}

func TestRemediation(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `[{"violation_rule_id":"no_secrets","suggestion":"use env","example_fix":"os.getenv","reason":"leaks"}]`, &got)
	c := New(ts.URL, time.Second)

	out, err := c.Remediation(context.Background(), "tok", []string{"no_secrets"})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "no_secrets", out[0].RuleID)
	assert.Equal(t, "/remediation", got.path)
}

func TestLogin(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{"access_token":"abc","token_type":"bearer"}`, &got)
	c := New(ts.URL, time.Second)

	tok, err := c.Login(context.Background(), "dev@local", "pw")
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)
	assert.Empty(t, got.auth)
	assert.Equal(t, "dev@local", got.body["email"])
}

func TestLoginRejected(t *testing.T) {
	var got captured
	ts := newServer(t, 401, `{"detail":"Incorrect email or password"}`, &got)
	c := New(ts.URL, time.Second)

	_, err := c.Login(context.Background(), "dev@local", "bad")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 401, se.Status)
	assert.Contains(t, se.Error(), "Incorrect email or password")
}

func TestMe(t *testing.T) {
	var got captured
	ts := newServer(t, 200, `{"id":1,"name":"Dev User","email":"dev@local","role":"ADMIN"}`, &got)
	c := New(ts.URL, time.Second)

	u, err := c.Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "dev@local", u.Email)
	assert.Equal(t, "/auth/me", got.path)
}
