// Package exercise holds the table of supported exercises and how each one is detected.
package exercise

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ayusman/repsense/internal/config"
	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/rep"
)

// ErrUnknownExercise is returned by Lookup for names not in the catalog.
var ErrUnknownExercise = errors.New("unknown exercise")

// FallbackName identifies the generic detector used for unrecognized exercises.
const FallbackName = "generic"

// Kind selects the detection strategy.
type Kind string

const (
	KindHysteresis   Kind = "hysteresis"
	KindStateMachine Kind = "state_machine"
	KindIsometric    Kind = "isometric"
)

// Config describes how one exercise is detected.
type Config struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`

	Hysteresis *rep.HysteresisConfig `json:"hysteresis,omitempty"`
	// FixedRange is the hand-tuned range used when no calibrated envelope exists.
	FixedRange   *envelope.Range         `json:"fixedRange,omitempty"`
	StateMachine *rep.StateMachineConfig `json:"stateMachine,omitempty"`
}

// Range picks the hysteresis range: calibrated envelope, then FixedRange, then the default envelope.
func (c Config) Range(env envelope.Envelope, calibrated bool) envelope.Range {
	if c.Hysteresis == nil {
		return envelope.DefaultRange
	}
	m := c.Hysteresis.Metric
	if calibrated {
		if r, ok := env[m]; ok {
			return r
		}
	}
	if c.FixedRange != nil {
		return *c.FixedRange
	}
	return envelope.Default().Range(m)
}

// NewDetector builds a fresh detector for the exercise. minConfidence <= 0 keeps
// the per-exercise value or the geometry default.
func (c Config) NewDetector(env envelope.Envelope, calibrated bool, minConfidence float64) rep.Detector {
	switch c.Kind {
	case KindIsometric:
		return rep.NewIsometric(minConfidence)

	case KindStateMachine:
		if c.StateMachine == nil {
			break
		}
		sm := *c.StateMachine
		if minConfidence > 0 {
			sm.MinConfidence = minConfidence
		}
		return rep.NewStateMachine(sm)

	case KindHysteresis:
		if c.Hysteresis == nil {
			break
		}
		h := *c.Hysteresis
		if minConfidence > 0 {
			h.MinConfidence = minConfidence
		}
		return rep.NewHysteresis(h, c.Range(env, calibrated))
	}

	return Fallback().NewDetector(envelope.Default(), false, minConfidence)
}

// Fallback is the generic wrist-versus-shoulder detector.
func Fallback() Config {
	rng := envelope.DefaultWristShoulderRange
	return Config{
		Name:  FallbackName,
		Label: "Generic movement",
		Kind:  KindHysteresis,
		Hysteresis: &rep.HysteresisConfig{
			Metric:    envelope.WristShoulderY,
			Direction: rep.Rise,
			StartCue:  "Raise your hands",
			ReturnCue: "Lower your hands",
		},
		FixedRange: &rng,
	}
}

// Catalog maps normalized names to exercise configurations.
type Catalog struct {
	configs map[string]Config
}

// NewCatalog creates a catalog from configs. Later entries replace earlier ones with the same name.
func NewCatalog(configs ...Config) *Catalog {
	c := &Catalog{configs: make(map[string]Config, len(configs))}
	for _, cfg := range configs {
		cfg.Name = Normalize(cfg.Name)
		c.configs[cfg.Name] = cfg
	}
	return c
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return NewCatalog(builtin()...)
}

// Normalize lowercases name and maps spaces and dashes to underscores.
func Normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// Lookup returns the configuration for name.
func (c *Catalog) Lookup(name string) (Config, error) {
	cfg, ok := c.configs[Normalize(name)]
	if !ok {
		return Config{}, fmt.Errorf("%w: %q", ErrUnknownExercise, name)
	}
	return cfg, nil
}

// Names returns the sorted exercise names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.configs))
	for name := range c.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every configuration sorted by name.
func (c *Catalog) All() []Config {
	names := c.Names()
	out := make([]Config, 0, len(names))
	for _, name := range names {
		out = append(out, c.configs[name])
	}
	return out
}

// ApplyOverrides returns a copy of the catalog with tuning overrides applied.
// Unknown names and zero fields are ignored. The receiver is not modified.
func (c *Catalog) ApplyOverrides(overrides map[string]config.ExerciseOverride) *Catalog {
	out := &Catalog{configs: make(map[string]Config, len(c.configs))}
	for name, cfg := range c.configs {
		out.configs[name] = cfg
	}

	for rawName, o := range overrides {
		name := Normalize(rawName)
		cfg, ok := out.configs[name]
		if !ok {
			continue
		}

		switch {
		case cfg.Hysteresis != nil:
			h := *cfg.Hysteresis
			if o.Sensitivity > 0 {
				h.Sensitivity = o.Sensitivity
			}
			if o.DebounceMs > 0 {
				h.DebounceMs = o.DebounceMs
			}
			cfg.Hysteresis = &h
		case cfg.StateMachine != nil && o.DebounceMs > 0:
			sm := *cfg.StateMachine
			sm.DebounceMs = o.DebounceMs
			cfg.StateMachine = &sm
		}
		out.configs[name] = cfg
	}

	return out
}
