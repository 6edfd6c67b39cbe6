// Package www is the HTTP surface: health, session inspection, the
// action archive, and the websocket audio endpoint.
package www

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voxjam/session"
	"voxjam/store"
)

type Server struct {
	manager *session.Manager
	archive *store.Store
	ws      http.HandlerFunc
	logger  *log.Logger
}

// New builds the server. archive may be nil when Postgres is not
// configured; the actions endpoint then reports unavailable.
func New(
	manager *session.Manager,
	archive *store.Store,
	ws http.HandlerFunc,
	logger *log.Logger,
) *Server {
	return &Server{manager: manager, archive: archive, ws: ws, logger: logger}
}

func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Delete("/sessions/{id}", s.handleDeleteSession)
		r.Get("/actions", s.handleListActions)
		r.Get("/ws/audio", s.ws)
	})
	return r
}

func (s *Server) Serve(port int) error {
	s.logger.Info("http", "url", fmt.Sprintf("http://localhost:%d", port))
	return http.ListenAndServe(fmt.Sprintf(":%d", port), s.Router())
}

func (s *Server) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respond(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.respond(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.manager.Count(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	snaps := s.manager.Snapshots()
	if snaps == nil {
		snaps = []session.Snapshot{}
	}
	s.respond(w, http.StatusOK, map[string]any{"sessions": snaps})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.manager.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "no such session")
		return
	}
	s.respond(w, http.StatusOK, sess.Snapshot())
}

// handleDeleteSession is the explicit, permanent logout; an ordinary
// disconnect only pauses.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.manager.Remove(id) {
		s.respondError(w, http.StatusNotFound, "no such session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListActions(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.respondError(w, http.StatusServiceUnavailable, "action archive not configured")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondError(w, http.StatusBadRequest, "bad limit")
			return
		}
		limit = n
	}

	var (
		records []store.ActionRecord
		err     error
	)
	if id := r.URL.Query().Get("session_id"); id != "" {
		records, err = s.archive.SessionActions(r.Context(), id)
	} else {
		records, err = s.archive.RecentActions(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error("listing actions", "error", err)
		s.respondError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	if records == nil {
		records = []store.ActionRecord{}
	}
	s.respond(w, http.StatusOK, map[string]any{"actions": records})
}
