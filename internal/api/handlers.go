package api

import (
	"net/http"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type policiesResponse struct {
	Policies []string `json:"policies"`
}

// handlePolicies tells the browser which policies a review uses by default.
func (s *Server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	p := s.deps.Policies
	if p == nil {
		p = []string{}
	}
	writeJSON(w, http.StatusOK, policiesResponse{Policies: p})
}
