package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/exercise"
	"github.com/ayusman/repsense/internal/store"
)

// ExercisesHandler serves the exercise catalog and derived envelopes.
type ExercisesHandler struct {
	catalog func() *exercise.Catalog
	store   *store.Store
	logger  *slog.Logger
}

// NewExercisesHandler creates an ExercisesHandler. catalog is called per
// request so configuration reloads are picked up. s may be nil.
func NewExercisesHandler(catalog func() *exercise.Catalog, s *store.Store, logger *slog.Logger) *ExercisesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExercisesHandler{catalog: catalog, store: s, logger: logger}
}

// Response types

type exerciseResponse struct {
	Name   string `json:"name"`
	Label  string `json:"label"`
	Kind   string `json:"kind"`
	Metric string `json:"metric,omitempty"`
}

type listExercisesResponse struct {
	Exercises []exerciseResponse `json:"exercises"`
}

type envelopeResponse struct {
	Exercise   string            `json:"exercise"`
	Calibrated bool              `json:"calibrated"`
	Frames     int               `json:"frames"`
	Envelope   envelope.Envelope `json:"envelope"`
}

// List handles GET /api/exercises
func (h *ExercisesHandler) List(w http.ResponseWriter, r *http.Request) {
	configs := h.catalog().All()

	response := listExercisesResponse{
		Exercises: make([]exerciseResponse, 0, len(configs)),
	}
	for _, c := range configs {
		e := exerciseResponse{Name: c.Name, Label: c.Label, Kind: string(c.Kind)}
		if c.Hysteresis != nil {
			e.Metric = string(c.Hysteresis.Metric)
		}
		response.Exercises = append(response.Exercises, e)
	}

	writeJSON(w, http.StatusOK, response)
}

// Get handles GET /api/exercises/{name}
func (h *ExercisesHandler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.catalog().Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// Envelope handles GET /api/exercises/{name}/envelope. It rebuilds the
// envelope from stored samples and persists the result; without samples the
// default envelope is returned uncalibrated.
func (h *ExercisesHandler) Envelope(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.catalog().Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return
	}

	response := envelopeResponse{Exercise: cfg.Name, Envelope: envelope.Default()}
	if h.store == nil {
		writeJSON(w, http.StatusOK, response)
		return
	}

	frames, err := h.store.Samples().Samples(r.Context(), cfg.Name)
	if err != nil {
		if !errors.Is(err, envelope.ErrNoSamples) {
			h.logger.Error("Failed to load samples", "exercise", cfg.Name, "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to load samples")
			return
		}
		writeJSON(w, http.StatusOK, response)
		return
	}

	env, ok := envelope.Build(frames)
	if !ok {
		response.Frames = len(frames)
		writeJSON(w, http.StatusOK, response)
		return
	}

	if err := h.store.Envelopes().Save(r.Context(), cfg.Name, env); err != nil {
		h.logger.Error("Failed to save envelope", "exercise", cfg.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save envelope")
		return
	}

	response.Calibrated = true
	response.Frames = len(frames)
	response.Envelope = env
	writeJSON(w, http.StatusOK, response)
}
