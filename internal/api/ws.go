package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/client"
	"github.com/sprite-ai/guardrev/internal/feedback"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/review"
	"github.com/sprite-ai/guardrev/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024 * 64,
	WriteBufferSize: 1024 * 64,
	CheckOrigin:     localOrigin,
}

// localOrigin admits non-browser clients and pages served from the loopback host.
func localOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, host := range []string{"://localhost", "://127.0.0.1", "://[::1]"} {
		if strings.Contains(origin, host) {
			return true
		}
	}
	return false
}

// WebSocket message types from client.
const (
	wsMsgRunReview = "run_review"
	wsMsgFeedback  = "feedback"
	wsMsgExport    = "export"
	wsMsgReset     = "reset"
)

// WebSocket message types to client. feedback is answered with a message of the
// same type.
const (
	wsMsgState    = "state"
	wsMsgResult   = "result"
	wsMsgDiff     = "diff"
	wsMsgNotice   = "notice"
	wsMsgExported = "export"
	wsMsgError    = "error"
)

// wsMessage is the envelope for WebSocket messages in both directions.
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// wsRunReview is the payload for "run_review" messages.
type wsRunReview struct {
	Mode         string   `json:"mode"`
	Code         string   `json:"code"`
	OriginalCode string   `json:"original_code,omitempty"`
	Policies     []string `json:"policies,omitempty"`
}

func (m wsRunReview) request(defaults []string) (model.ReviewRequest, error) {
	req := model.ReviewRequest{Code: m.Code, OriginalCode: m.OriginalCode, Policies: m.Policies}
	switch m.Mode {
	case "", "single":
		req.Mode = model.ModeSingle
	case "diff":
		req.Mode = model.ModeDiff
	default:
		return req, errors.New("unknown mode: " + m.Mode)
	}
	if len(req.Policies) == 0 {
		req.Policies = defaults
	}
	return req, nil
}

type wsStateResponse struct {
	State string `json:"state"`
}

type wsResultResponse struct {
	Result       model.ReviewResult              `json:"result"`
	Band         string                          `json:"band"`
	Fallback     bool                            `json:"fallback"`
	Presentation map[string]session.Presentation `json:"presentation"`
}

type wsNoticeResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Login   bool   `json:"login,omitempty"`
}

type wsFeedbackResponse struct {
	ViolationID  string               `json:"violation_id"`
	Committed    bool                 `json:"committed"`
	Presentation session.Presentation `json:"presentation"`
	RerunError   string               `json:"rerun_error,omitempty"`
}

type wsExportResponse struct {
	Filename string `json:"filename"`
	PDF      []byte `json:"pdf"`
}

// bridge is one websocket connection and the review session it owns.
type bridge struct {
	conn  *websocket.Conn
	token string
	deps  Deps
	log   zerolog.Logger

	sess *session.State
	ctrl *review.Controller
	rec  *feedback.Reconciler

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade")
		return
	}
	defer conn.Close()

	b := s.newBridge(conn, token)
	ctx, cancel := context.WithCancel(context.Background())
	defer b.wg.Wait()
	defer cancel()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.log.Warn().Err(err).Msg("websocket read")
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			b.sendError("invalid message format")
			continue
		}

		switch msg.Type {
		case wsMsgRunReview:
			b.spawn(func() { b.runReview(ctx, msg.Data) })
		case wsMsgFeedback:
			b.spawn(func() { b.feedback(ctx, msg.Data) })
		case wsMsgExport:
			b.spawn(func() { b.export(ctx) })
		case wsMsgReset:
			b.reset()
		default:
			b.sendError("unknown message type: " + msg.Type)
		}
	}
}

func (s *Server) newBridge(conn *websocket.Conn, token string) *bridge {
	log := s.log.With().Str("remote", conn.RemoteAddr().String()).Logger()
	sess := session.New()
	ctrl := review.NewController(s.deps.Service, sess,
		review.WithLogger(log),
		review.WithFallbackDelay(s.deps.FallbackDelay),
		review.WithClock(s.deps.Now),
	)
	b := &bridge{
		conn:  conn,
		token: token,
		deps:  s.deps,
		log:   log,
		sess:  sess,
		ctrl:  ctrl,
		rec:   feedback.New(s.deps.Service, sess, ctrl, log),
	}
	ctrl.Observe(func(st review.State) {
		b.send(wsMsgState, wsStateResponse{State: st.String()})
	})
	return b
}

// tokenFrom reads a bearer token from the Authorization header, falling back to
// the token query parameter since browsers cannot set headers on websockets.
func tokenFrom(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}

func (b *bridge) spawn(fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		fn()
	}()
}

func (b *bridge) runReview(ctx context.Context, data json.RawMessage) {
	var m wsRunReview
	if err := json.Unmarshal(data, &m); err != nil {
		b.sendError("invalid run_review data")
		return
	}
	req, err := m.request(b.deps.Policies)
	if err != nil {
		b.sendError(err.Error())
		return
	}

	rep, err := b.ctrl.Run(ctx, req, b.token)
	if err != nil {
		b.sendError(err.Error())
		return
	}
	b.sendReport(rep)
}

// sendReport tells the client what the session shows after a run: the notice
// first, then the adopted result and its annotated diff.
func (b *bridge) sendReport(rep review.Report) {
	if rep.Notice != nil {
		b.sendNotice(*rep.Notice)
	}
	if rep.Result == nil {
		return
	}
	view := b.sess.Snapshot()
	b.send(wsMsgResult, wsResultResponse{
		Result:       *rep.Result,
		Band:         model.BandFor(rep.Result.RiskScore).String(),
		Fallback:     rep.FellBack,
		Presentation: view.Presentation,
	})
	if rep.Annotated != nil {
		b.send(wsMsgDiff, *rep.Annotated)
	}
}

func (b *bridge) sendNotice(n session.Notice) {
	b.send(wsMsgNotice, wsNoticeResponse{
		Title:   n.Title,
		Message: n.Message,
		Login:   n.Action == session.ActionLogin,
	})
}

func (b *bridge) feedback(ctx context.Context, data json.RawMessage) {
	var ev model.FeedbackEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		b.sendError("invalid feedback data")
		return
	}

	out, err := b.rec.Submit(ctx, ev, b.token)
	if err != nil && out.Notice == nil {
		b.sendError(err.Error())
		return
	}

	resp := wsFeedbackResponse{
		ViolationID:  ev.ViolationID,
		Committed:    out.Committed,
		Presentation: out.After,
	}
	if out.RerunErr != nil {
		resp.RerunError = out.RerunErr.Error()
	}
	b.send(wsMsgFeedback, resp)

	if out.Notice != nil {
		b.sendNotice(*out.Notice)
	}
	if out.Rerun != nil {
		b.sendReport(*out.Rerun)
	}
}

func (b *bridge) export(ctx context.Context) {
	result, ok := b.sess.Result()
	if !ok {
		b.sendError("nothing to export")
		return
	}
	pdf, err := b.deps.Service.ExportPDF(ctx, b.token, result)
	if err != nil {
		b.sendError("export failed: " + err.Error())
		return
	}
	b.send(wsMsgExported, wsExportResponse{
		Filename: client.ReportFileName(b.deps.Now()),
		PDF:      pdf,
	})
}

func (b *bridge) reset() {
	b.sess.Reset()
	b.send(wsMsgState, wsStateResponse{State: review.StateIdle.String()})
}

func (b *bridge) send(msgType string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		b.log.Error().Err(err).Str("type", msgType).Msg("ws marshal")
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.WriteJSON(wsMessage{Type: msgType, Data: raw}); err != nil {
		b.log.Debug().Err(err).Str("type", msgType).Msg("ws write")
	}
}

func (b *bridge) sendError(errMsg string) {
	b.send(wsMsgError, map[string]string{"message": errMsg})
}
