// Package api implements the local session bridge: an HTTP server that exposes a
// review session to a browser over a websocket.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sprite-ai/guardrev/internal/feedback"
	"github.com/sprite-ai/guardrev/internal/model"
	"github.com/sprite-ai/guardrev/internal/review"
)

// Service is the remote review service each bridged session talks to.
type Service interface {
	review.Reviewer
	feedback.Sender
	ExportPDF(ctx context.Context, token string, result model.ReviewResult) ([]byte, error)
}

// Deps is what the server needs to build a session per connection.
type Deps struct {
	Service Service
	// Policies are used when a run_review message names none.
	Policies      []string
	FallbackDelay time.Duration
	Log           zerolog.Logger
	Now           func() time.Time
}

// Server is the guardrev session bridge.
type Server struct {
	addr   string
	deps   Deps
	log    zerolog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// New creates a new bridge server.
func New(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{addr: addr, deps: deps, log: deps.Log}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/policies", s.handlePolicies)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.addr).Msg("session bridge listening")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	// The header is already sent; a failed encode can only truncate the body.
	_ = enc.Encode(v)
}
