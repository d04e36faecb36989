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

// maxSampleBytes bounds an uploaded CSV take.
const maxSampleBytes = 16 << 20

// SamplesHandler handles HTTP requests for recorded sample takes.
type SamplesHandler struct {
	catalog  func() *exercise.Catalog
	store    *store.Store
	onChange func(exercise string)
	logger   *slog.Logger
}

// NewSamplesHandler creates a new SamplesHandler. onChange, if set, is called
// with the exercise name after its samples are added or removed.
func NewSamplesHandler(catalog func() *exercise.Catalog, s *store.Store, onChange func(string), logger *slog.Logger) *SamplesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SamplesHandler{catalog: catalog, store: s, onChange: onChange, logger: logger}
}

// Response types

type sampleResponse struct {
	ID        string `json:"id"`
	Exercise  string `json:"exercise"`
	Frames    int    `json:"frames"`
	CreatedAt string `json:"created_at"`
}

type listSamplesResponse struct {
	Samples []sampleResponse `json:"samples"`
}

type deleteSamplesResponse struct {
	Deleted int64 `json:"deleted"`
}

func toSampleResponse(s store.Sample) sampleResponse {
	return sampleResponse{
		ID:        s.ID,
		Exercise:  s.Exercise,
		Frames:    s.Frames,
		CreatedAt: s.CreatedAt.Format(timeFormat),
	}
}

func (h *SamplesHandler) exercise(w http.ResponseWriter, r *http.Request) (string, bool) {
	cfg, err := h.catalog().Lookup(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Exercise not found")
		return "", false
	}
	return cfg.Name, true
}

// List handles GET /api/exercises/{name}/samples
func (h *SamplesHandler) List(w http.ResponseWriter, r *http.Request) {
	name, ok := h.exercise(w, r)
	if !ok {
		return
	}

	samples, err := h.store.Samples().ListByExercise(r.Context(), name)
	if err != nil {
		h.logger.Error("Failed to list samples", "exercise", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list samples")
		return
	}

	response := listSamplesResponse{
		Samples: make([]sampleResponse, 0, len(samples)),
	}
	for _, s := range samples {
		response.Samples = append(response.Samples, toSampleResponse(s))
	}

	writeJSON(w, http.StatusOK, response)
}

// Create handles POST /api/exercises/{name}/samples. The body is one take in
// the 99-column landmark CSV format.
func (h *SamplesHandler) Create(w http.ResponseWriter, r *http.Request) {
	name, ok := h.exercise(w, r)
	if !ok {
		return
	}

	frames, err := envelope.ReadCSV(http.MaxBytesReader(w, r.Body, maxSampleBytes))
	if err != nil {
		if errors.Is(err, envelope.ErrMalformedSample) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid sample body")
		return
	}
	if len(frames) == 0 {
		writeError(w, http.StatusBadRequest, "At least one frame is required")
		return
	}

	sample, err := h.store.Samples().Create(r.Context(), name, frames)
	if err != nil {
		h.logger.Error("Failed to save sample", "exercise", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to save sample")
		return
	}
	h.changed(r, name)

	writeJSON(w, http.StatusCreated, toSampleResponse(*sample))
}

// Delete handles DELETE /api/exercises/{name}/samples
func (h *SamplesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	name, ok := h.exercise(w, r)
	if !ok {
		return
	}

	n, err := h.store.Samples().DeleteByExercise(r.Context(), name)
	if err != nil {
		h.logger.Error("Failed to delete samples", "exercise", name, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to delete samples")
		return
	}
	h.changed(r, name)

	writeJSON(w, http.StatusOK, deleteSamplesResponse{Deleted: n})
}

// changed drops the stale persisted envelope and notifies listeners.
func (h *SamplesHandler) changed(r *http.Request, name string) {
	if err := h.store.Envelopes().Delete(r.Context(), name); err != nil {
		h.logger.Warn("Failed to drop stale envelope", "exercise", name, "error", err)
	}
	if h.onChange != nil {
		h.onChange(name)
	}
}
