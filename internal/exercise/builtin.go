package exercise

import (
	"github.com/ayusman/repsense/internal/envelope"
	"github.com/ayusman/repsense/internal/rep"
)

// movement is one row of the hysteresis table.
type movement struct {
	name, label string
	metric      envelope.Metric
	dir         rep.Direction
	k           float64
	debounceMs  int64
	fixed       *envelope.Range
	start, back string
}

func fixed(min, max float64) *envelope.Range {
	r := envelope.NewRange(min, max)
	return &r
}

var movements = []movement{
	{"pushups", "Push-ups", envelope.ElbowY, rep.Rise, 0.15, 300, fixed(0.35, 0.65), "Lower your chest", "Push back up"},
	{"squats", "Squats", envelope.HipY, rep.Fall, 0.15, 400, fixed(0.5, 0.75), "Sit back and down", "Stand up tall"},
	{"lunges", "Lunges", envelope.HipY, rep.Fall, 0.12, 500, fixed(0.5, 0.7), "Step and drop your knee", "Drive back up"},
	{"jumping_jacks", "Jumping jacks", envelope.WristY, rep.Rise, 0.2, 250, fixed(0.15, 0.6), "Arms overhead", "Arms down"},
	{"burpees", "Burpees", envelope.ShoulderY, rep.Fall, 0.2, 800, nil, "Drop to the floor", "Jump back up"},
	{"situps", "Sit-ups", envelope.ShoulderY, rep.Rise, 0.15, 500, nil, "Curl up", "Lower down slowly"},
	{"crunches", "Crunches", envelope.ShoulderY, rep.Rise, 0.1, 400, nil, "Lift your shoulders", "Lower down"},
	{"mountain_climbers", "Mountain climbers", envelope.KneeY, rep.Rise, 0.1, 200, nil, "Drive a knee forward", "Switch legs"},
	{"high_knees", "High knees", envelope.KneeY, rep.Rise, 0.12, 200, fixed(0.55, 0.75), "Knees up", "Keep going"},
	{"shoulder_press", "Shoulder press", envelope.WristY, rep.Rise, 0.15, 400, fixed(0.1, 0.35), "Press overhead", "Lower to shoulders"},
	{"lateral_raises", "Lateral raises", envelope.ElbowY, rep.Rise, 0.15, 400, fixed(0.25, 0.4), "Raise your arms to the side", "Lower with control"},
	{"glute_bridges", "Glute bridges", envelope.HipY, rep.Rise, 0.12, 500, nil, "Lift your hips", "Lower your hips"},
	{"leg_raises", "Leg raises", envelope.KneeY, rep.Rise, 0.15, 500, nil, "Raise your legs", "Lower slowly"},
	{"tricep_dips", "Tricep dips", envelope.ShoulderY, rep.Fall, 0.12, 400, nil, "Bend your elbows", "Press back up"},
}

var stateMachines = []Config{
	{
		Name:  "bicep_curls",
		Label: "Bicep curls",
		Kind:  KindStateMachine,
		StateMachine: &rep.StateMachineConfig{
			States: []rep.StateSpec{
				{Name: "EXTENDED", Angles: map[string]rep.AngleRange{"leftElbow": {Min: 140, Max: 180}, "rightElbow": {Min: 140, Max: 180}}, Cue: "Lower the weights"},
				{Name: "CURLED", Angles: map[string]rep.AngleRange{"leftElbow": {Min: 0, Max: 70}, "rightElbow": {Min: 0, Max: 70}}, Cue: "Curl up"},
			},
			DebounceMs: 300,
		},
	},
	{
		Name:  "tricep_extensions",
		Label: "Tricep extensions",
		Kind:  KindStateMachine,
		StateMachine: &rep.StateMachineConfig{
			States: []rep.StateSpec{
				{Name: "EXTENDED", Angles: map[string]rep.AngleRange{"leftElbow": {Min: 150, Max: 180}}, Cue: "Straighten your arm"},
				{Name: "BENT", Angles: map[string]rep.AngleRange{"leftElbow": {Min: 20, Max: 100}}, Cue: "Lower behind your head"},
			},
			DebounceMs: 300,
		},
	},
	{
		Name:  "deep_squats",
		Label: "Deep squats",
		Kind:  KindStateMachine,
		StateMachine: &rep.StateMachineConfig{
			States: []rep.StateSpec{
				{Name: "STANDING", Angles: map[string]rep.AngleRange{"leftKnee": {Min: 160, Max: 180}, "rightKnee": {Min: 160, Max: 180}}, Cue: "Stand up fully"},
				{Name: "BOTTOM", Angles: map[string]rep.AngleRange{"leftKnee": {Min: 0, Max: 90}, "rightKnee": {Min: 0, Max: 90}}, Cue: "Squat below parallel"},
			},
			DebounceMs: 500,
		},
	},
}

var holds = []Config{
	{Name: "plank", Label: "Plank", Kind: KindIsometric},
	{Name: "wall_sit", Label: "Wall sit", Kind: KindIsometric},
}

func builtin() []Config {
	out := make([]Config, 0, len(movements)+len(stateMachines)+len(holds))
	for _, m := range movements {
		out = append(out, Config{
			Name:  m.name,
			Label: m.label,
			Kind:  KindHysteresis,
			Hysteresis: &rep.HysteresisConfig{
				Metric:      m.metric,
				Direction:   m.dir,
				Sensitivity: m.k,
				DebounceMs:  m.debounceMs,
				StartCue:    m.start,
				ReturnCue:   m.back,
			},
			FixedRange: m.fixed,
		})
	}
	out = append(out, stateMachines...)
	return append(out, holds...)
}
