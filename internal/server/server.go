// Package server exposes the §6.3 status snapshot as the fleet's only
// consumer-facing HTTP/JSON surface.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/ssd-technologies/nocturne-fleet/internal/mesh"
)

// Server is the fleet's HTTP API. It has no persistence of its own — every
// route reads through to a Snapshotter.
type Server struct {
	snapshot mesh.Snapshotter
	hub      *mesh.Hub
	mux      *http.ServeMux
}

// New creates a Server with all routes registered.
func New(snapshot mesh.Snapshotter, hub *mesh.Hub) *Server {
	s := &Server{snapshot: snapshot, hub: hub, mux: http.NewServeMux()}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", methodGuard(http.MethodGet, s.handleHealth))
	s.mux.HandleFunc("/api/status", methodGuard(http.MethodGet, s.handleStatus))
	if s.hub != nil {
		s.mux.HandleFunc("/api/status/stream", methodGuard(http.MethodGet, s.hub.HandleWebSocket))
	}
}

// methodGuard restricts a handler to a single HTTP method, matching the
// behavior of net/http's method-prefixed ServeMux patterns.
func methodGuard(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.Header().Set("Allow", method)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

// handleHealth is a liveness check for the API itself, independent of
// fleet health — a 200 here means the HTTP server is up, nothing more.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "nocturne-fleet",
	})
}

// handleStatus returns the current ClusterStatus snapshot (§6.3). This is a
// point-in-time read, not a stream; repeated polling is the intended usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
