// Package transport exposes the sync engine over HTTP: a websocket endpoint
// carrying the event protocol, and a thin read-only REST surface over the
// store snapshot. All writes ride the websocket; REST never mutates.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ganot/syncboard/internal/engine"
)

// Server wires HTTP handlers around the engine.
type Server struct {
	engine     *engine.Service
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger
}

// Options tunes the transport.
type Options struct {
	// SendBuffer is the per-connection outbound queue size.
	SendBuffer int
}

// NewRouter creates the HTTP router. The logger may be nil in tests.
func NewRouter(eng *engine.Service, opts Options, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	srv := &Server{
		engine: eng,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		sendBuffer: opts.SendBuffer,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(requestLogging(logger))

	r.Get("/ws", srv.handleWS)
	r.Get("/health", srv.handleHealth)

	r.Get("/api/projects", srv.handleListProjects)
	r.Get("/api/projects/{id}", srv.handleGetProject)
	r.Get("/api/tasks", srv.handleListTasks)
	r.Get("/api/tasks/{id}", srv.handleGetTask)
	r.Get("/api/state", srv.handleState)

	return r
}

func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// The websocket endpoint hijacks the connection; snooping its
			// response writer breaks the upgrade.
			if r.URL.Path == "/ws" {
				next.ServeHTTP(w, r)
				return
			}
			m := httpsnoop.CaptureMetrics(next, w, r)
			logger.Debug("handled", "method", r.Method, "url", r.URL.Path, "status", m.Code, "duration", m.Duration)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	projects, tasks := s.engine.Store().Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"lamportTs":   s.engine.ClockValue(),
		"events":      s.engine.LogLen(),
		"connections": s.engine.Connections(),
		"projects":    projects,
		"tasks":       tasks,
	})
}

func (s *Server) handleListProjects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Projects())
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p := s.engine.Store().GetProject(chi.URLParam(r, "id"))
	if p == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "project not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Store().Tasks())
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t := s.engine.Store().GetTask(chi.URLParam(r, "id"))
	if t == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// handleState returns both maps in one response, the projection a fresh
// REST consumer needs.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"projects":  s.engine.Store().Projects(),
		"tasks":     s.engine.Store().Tasks(),
		"lamportTs": s.engine.ClockValue(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
