package envelope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ayusman/repsense/internal/pose"
)

// ErrNoSamples is returned when a source holds no recording for an exercise.
var ErrNoSamples = errors.New("no samples")

// SampleSource supplies recorded frames for an exercise.
type SampleSource interface {
	Samples(ctx context.Context, exercise string) ([]pose.Frame, error)
}

// DirSource reads <Dir>/<exercise>.csv files.
type DirSource struct {
	Dir string
}

// Samples loads and parses the exercise's CSV recording.
func (s DirSource) Samples(ctx context.Context, exercise string) ([]pose.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Dir == "" || exercise == "" || strings.ContainsAny(exercise, `/\`) {
		return nil, ErrNoSamples
	}

	f, err := os.Open(filepath.Join(s.Dir, exercise+".csv"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNoSamples
		}
		return nil, fmt.Errorf("open sample: %w", err)
	}
	defer f.Close()

	return ReadCSV(f)
}

// Chain tries each source in order and returns the first recording found.
// Nil entries are skipped.
type Chain []SampleSource

// Samples implements SampleSource. Errors other than ErrNoSamples stop the search.
func (c Chain) Samples(ctx context.Context, exercise string) ([]pose.Frame, error) {
	for _, src := range c {
		if src == nil {
			continue
		}
		frames, err := src.Samples(ctx, exercise)
		if errors.Is(err, ErrNoSamples) {
			continue
		}
		return frames, err
	}
	return nil, ErrNoSamples
}

// Calibrate loads the exercise's samples and builds its envelope. Any failure,
// including a nil source, yields Default() and false; detection continues uncalibrated.
func Calibrate(ctx context.Context, src SampleSource, exercise string, logger *slog.Logger) (Envelope, bool) {
	if logger == nil {
		logger = slog.Default()
	}
	if src == nil {
		return Default(), false
	}

	frames, err := src.Samples(ctx, exercise)
	if err != nil {
		if errors.Is(err, ErrNoSamples) {
			logger.Debug("No sample data, using default envelope", "exercise", exercise)
		} else {
			logger.Warn("Sample data unavailable, using default envelope", "exercise", exercise, "error", err)
		}
		return Default(), false
	}

	env, ok := Build(frames)
	if !ok {
		logger.Warn("Sample too short for envelope, using default", "exercise", exercise, "frames", len(frames))
		return Default(), false
	}

	return env, true
}
