package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/repsense/internal/store"
)

// SessionsHandler serves recorded workout history.
type SessionsHandler struct {
	store  *store.Store
	logger *slog.Logger
}

// NewSessionsHandler creates a new SessionsHandler.
func NewSessionsHandler(s *store.Store, logger *slog.Logger) *SessionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionsHandler{store: s, logger: logger}
}

type listSessionsResponse struct {
	Sessions []*store.Session `json:"sessions"`
}

// List handles GET /api/sessions?limit=N
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.store.Sessions().List(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*store.Session{}
	}

	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// Get handles GET /api/sessions/{id}
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Sessions().GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		h.logger.Error("Failed to get session", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return
	}
	if s.Exercises == nil {
		s.Exercises = []store.ExerciseTotal{}
	}

	writeJSON(w, http.StatusOK, s)
}
