package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/diff"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/outcome"
	"github.com/sprite-ai/guardrev/internal/review"
)

const reviewBody = `{
	"risk_score": 55,
	"risk_level": "Medium Risk",
	"violations": [
		{"id": "v1", "rule_id": "no_secrets", "line": 2, "severity": "HIGH", "message": "Hardcoded key"}
	]
}`

type fakeService struct {
	mu          sync.Mutex
	resp        *outcome.Response
	err         error
	feedbackErr error
	tokens      []string
	events      []model.FeedbackEvent

	// When set, Review signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeService) Review(_ context.Context, token string, _ model.ReviewRequest) (*outcome.Response, error) {
	f.mu.Lock()
	f.tokens = append(f.tokens, token)
	resp, err := f.resp, f.err
	entered, release := f.entered, f.release
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
		<-release
	}
	return resp, err
}

func (f *fakeService) reviewCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func (f *fakeService) Feedback(_ context.Context, _ string, ev model.FeedbackEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.feedbackErr
}

func (f *fakeService) ExportPDF(context.Context, string, model.ReviewResult) ([]byte, error) {
	return []byte("%PDF-1.4"), nil
}

func (f *fakeService) lastToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tokens) == 0 {
		return ""
	}
	return f.tokens[len(f.tokens)-1]
}

func ok(body string) *outcome.Response {
	return &outcome.Response{Status: 200, ContentType: "application/json", Body: []byte(body)}
}

func newTestServer(svc *fakeService) *Server {
	return New(":0", Deps{
		Service:  svc,
		Policies: []string{"no_secrets", "nested_loops"},
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC) },
	})
}

func dial(t *testing.T, svc *fakeService, query string, header http.Header) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(newTestServer(svc).Handler())
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, _ := json.Marshal(data)
	if err := conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

// readUntil reads messages until one of type want arrives and returns it along
// with the types seen on the way.
func readUntil(t *testing.T, conn *websocket.Conn, want string) (wsMessage, []string) {
	t.Helper()
	var seen []string
	for {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s (seen %v): %v", want, seen, err)
		}
		seen = append(seen, msg.Type)
		if msg.Type == want {
			return msg, seen
		}
	}
}

func readStates(t *testing.T, conn *websocket.Conn, until string) []string {
	t.Helper()
	var states []string
	for {
		msg, _ := readUntil(t, conn, wsMsgState)
		var st wsStateResponse
		json.Unmarshal(msg.Data, &st)
		states = append(states, st.State)
		if st.State == until {
			return states
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %q", resp["status"])
	}
}

func TestPoliciesEndpoint(t *testing.T) {
	srv := newTestServer(&fakeService{})
	req := httptest.NewRequest(http.MethodGet, "/api/policies", nil)
	w := httptest.NewRecorder()

	srv.Handler().ServeHTTP(w, req)

	var resp policiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if len(resp.Policies) != 2 || resp.Policies[0] != "no_secrets" {
		t.Errorf("unexpected policies %v", resp.Policies)
	}
}

func TestWebSocketReviewSession(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "?token=tok", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "a = 1\nkey = 'x'\n"})

	states := readStates(t, conn, "idle")
	want := []string{"loading", "success", "idle"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Errorf("states = %v, want %v", states, want)
	}

	msg, _ := readUntil(t, conn, wsMsgResult)
	var res wsResultResponse
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Result.RiskScore != 55 || res.Band != "medium" || res.Fallback {
		t.Errorf("unexpected result %+v", res)
	}
	if len(res.Result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(res.Result.Violations))
	}
	if p := res.Presentation["v1"]; p.Status != model.StatusUnreviewed || p.Badge {
		t.Errorf("unexpected presentation %+v", p)
	}
	if svc.lastToken() != "tok" {
		t.Errorf("token = %q, want tok", svc.lastToken())
	}
}

func TestWebSocketAuthorizationHeader(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "?token=ignored", http.Header{"Authorization": {"Bearer from-header"}})

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	readUntil(t, conn, wsMsgResult)

	if svc.lastToken() != "from-header" {
		t.Errorf("token = %q, want from-header", svc.lastToken())
	}
}

func TestWebSocketNetworkFallback(t *testing.T) {
	svc := &fakeService{err: errors.New("connection refused")}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})

	states := readStates(t, conn, "idle")
	want := []string{"loading", "network_error", "fallback", "idle"}
	if strings.Join(states, ",") != strings.Join(want, ",") {
		t.Errorf("states = %v, want %v", states, want)
	}

	msg, _ := readUntil(t, conn, wsMsgNotice)
	var n wsNoticeResponse
	json.Unmarshal(msg.Data, &n)
	if n.Title != review.NetworkErrorTitle || n.Login {
		t.Errorf("unexpected notice %+v", n)
	}

	msg, _ = readUntil(t, conn, wsMsgResult)
	var res wsResultResponse
	json.Unmarshal(msg.Data, &res)
	if !res.Fallback || res.Result.RiskScore != 85 || len(res.Result.Violations) != 4 {
		t.Errorf("expected fallback result, got %+v", res)
	}
}

func TestWebSocketUnauthorized(t *testing.T) {
	svc := &fakeService{resp: &outcome.Response{Status: 401}}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	msg, seen := readUntil(t, conn, wsMsgNotice)

	var n wsNoticeResponse
	json.Unmarshal(msg.Data, &n)
	if n.Title != review.UnauthorizedTitle || !n.Login {
		t.Errorf("unexpected notice %+v", n)
	}
	for _, typ := range seen {
		if typ == wsMsgResult {
			t.Error("no result expected after 401")
		}
	}

	sendMsg(t, conn, wsMsgExport, nil)
	msg, _ = readUntil(t, conn, wsMsgError)
	if !strings.Contains(string(msg.Data), "nothing to export") {
		t.Errorf("unexpected error %s", msg.Data)
	}
}

func TestWebSocketDiffMode(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{
		Mode:         "diff",
		OriginalCode: "a = 1\n",
		Code:         "a = 1\nkey = '<x>'\n",
	})

	msg, _ := readUntil(t, conn, wsMsgDiff)
	var a diff.Annotated
	if err := json.Unmarshal(msg.Data, &a); err != nil {
		t.Fatalf("decode diff: %v", err)
	}
	if len(a.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(a.Lines))
	}
	if a.Lines[0].Flagged || !a.Lines[1].Flagged {
		t.Errorf("expected only line 2 flagged: %+v", a.Lines)
	}
	if a.Lines[1].Text != "key = &#039;&lt;x&gt;&#039;" {
		t.Errorf("expected escaped text, got %q", a.Lines[1].Text)
	}
}

func TestWebSocketFeedback(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	readUntil(t, conn, wsMsgResult)

	sendMsg(t, conn, wsMsgFeedback, model.FeedbackEvent{ViolationID: "v1", Type: model.FeedbackFalsePositive})
	msg, _ := readUntil(t, conn, wsMsgFeedback)

	var fb wsFeedbackResponse
	json.Unmarshal(msg.Data, &fb)
	if !fb.Committed || !fb.Presentation.Badge || fb.Presentation.Status != model.StatusFalsePositive {
		t.Errorf("unexpected feedback %+v", fb)
	}

	// A committed submission re-runs the review.
	readUntil(t, conn, wsMsgResult)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if len(svc.events) != 1 || svc.events[0].RuleID != "no_secrets" {
		t.Errorf("unexpected events %+v", svc.events)
	}
	if len(svc.tokens) != 2 {
		t.Errorf("expected 2 review calls, got %d", len(svc.tokens))
	}
}

func TestWebSocketFeedbackFailure(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody), feedbackErr: errors.New("down")}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	readUntil(t, conn, wsMsgResult)

	sendMsg(t, conn, wsMsgFeedback, model.FeedbackEvent{ViolationID: "v1", Type: model.FeedbackFalsePositive})
	msg, _ := readUntil(t, conn, wsMsgFeedback)

	var fb wsFeedbackResponse
	json.Unmarshal(msg.Data, &fb)
	if fb.Committed || fb.Presentation.Badge || fb.Presentation.Pending {
		t.Errorf("expected rollback, got %+v", fb)
	}

	msg, _ = readUntil(t, conn, wsMsgNotice)
	var n wsNoticeResponse
	json.Unmarshal(msg.Data, &n)
	if n.Title != "Feedback Error" {
		t.Errorf("unexpected notice %+v", n)
	}
}

func TestWebSocketExport(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	readUntil(t, conn, wsMsgResult)

	sendMsg(t, conn, wsMsgExport, nil)
	msg, _ := readUntil(t, conn, wsMsgExported)

	var exp wsExportResponse
	json.Unmarshal(msg.Data, &exp)
	if exp.Filename != "audit_report_2026-10-15.pdf" {
		t.Errorf("filename = %q", exp.Filename)
	}
	if string(exp.PDF) != "%PDF-1.4" {
		t.Errorf("unexpected pdf %q", exp.PDF)
	}
}

func TestWebSocketReset(t *testing.T) {
	svc := &fakeService{resp: ok(reviewBody)}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	readUntil(t, conn, wsMsgResult)

	sendMsg(t, conn, wsMsgReset, nil)
	states := readStates(t, conn, "idle")
	if len(states) != 1 {
		t.Errorf("expected a single idle state, got %v", states)
	}

	sendMsg(t, conn, wsMsgExport, nil)
	readUntil(t, conn, wsMsgError)
}

func TestWebSocketResetDuringReview(t *testing.T) {
	svc := &fakeService{
		resp:    ok(reviewBody),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	conn := dial(t, svc, "", nil)

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "x"})
	<-svc.entered
	sendMsg(t, conn, wsMsgReset, nil)
	if states := readStates(t, conn, "idle"); len(states) != 2 || states[0] != "loading" {
		t.Fatalf("states = %v, want [loading idle]", states)
	}

	sendMsg(t, conn, wsMsgRunReview, wsRunReview{Code: "y"})
	msg, _ := readUntil(t, conn, wsMsgError)
	var e map[string]string
	json.Unmarshal(msg.Data, &e)
	if e["message"] != review.ErrBusy.Error() {
		t.Errorf("second review: got %q, want %q", e["message"], review.ErrBusy.Error())
	}

	close(svc.release)
	readStates(t, conn, "idle")

	sendMsg(t, conn, wsMsgExport, nil)
	_, seen := readUntil(t, conn, wsMsgError)
	for _, typ := range seen {
		if typ == wsMsgResult || typ == wsMsgNotice {
			t.Errorf("answer from before the reset reached the client: %v", seen)
		}
	}
	if n := svc.reviewCount(); n != 1 {
		t.Errorf("review service called %d times, want 1", n)
	}
}

func TestWebSocketErrors(t *testing.T) {
	conn := dial(t, &fakeService{}, "", nil)

	tests := []struct {
		name    string
		send    func()
		message string
	}{
		{"invalid json", func() { conn.WriteMessage(websocket.TextMessage, []byte("not json")) }, "invalid message format"},
		{"unknown type", func() { sendMsg(t, conn, "bogus", nil) }, "unknown message type: bogus"},
		{"unknown mode", func() { sendMsg(t, conn, wsMsgRunReview, wsRunReview{Mode: "triple", Code: "x"}) }, "unknown mode: triple"},
		{"empty code", func() { sendMsg(t, conn, wsMsgRunReview, wsRunReview{}) }, "invalid request"},
		{"feedback without result", func() {
			sendMsg(t, conn, wsMsgFeedback, model.FeedbackEvent{ViolationID: "v9", Type: model.FeedbackValid})
		}, "invalid request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.send()
			msg, _ := readUntil(t, conn, wsMsgError)
			var e map[string]string
			json.Unmarshal(msg.Data, &e)
			if !strings.Contains(e["message"], tt.message) {
				t.Errorf("error = %q, want it to contain %q", e["message"], tt.message)
			}
		})
	}
}

func TestTokenFrom(t *testing.T) {
	tests := []struct {
		header string
		query  string
		want   string
	}{
		{"Bearer abc", "", "abc"},
		{"Bearer abc", "def", "abc"},
		{"", "def", "def"},
		{"", "", ""},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/ws?token="+tt.query, nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		if got := tokenFrom(r); got != tt.want {
			t.Errorf("tokenFrom(%q, %q) = %q, want %q", tt.header, tt.query, got, tt.want)
		}
	}
}

func TestLocalOrigin(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:7788", true},
		{"http://127.0.0.1:3000", true},
		{"https://evil.example.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := localOrigin(r); got != tt.want {
			t.Errorf("localOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
