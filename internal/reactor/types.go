package reactor

// #region action

// Action is one of the three control inputs the operator can apply.
type Action string

const (
	ActionSteady Action = "steady" // hold course
	ActionCool   Action = "cool"   // bleed stress, recover margin, lose output
	ActionPush   Action = "push"   // raise output at the cost of stress and margin
)

// Actions lists all control inputs in a fixed order.
var Actions = []Action{ActionSteady, ActionCool, ActionPush}

// #endregion action

// #region enums

// Mood is the qualitative crew disposition woven into observation text.
type Mood string

const (
	MoodCalm     Mood = "calm"
	MoodTense    Mood = "tense"
	MoodFrazzled Mood = "frazzled"
)

// Demand is the grid demand level driving the reward multiplier.
type Demand string

const (
	DemandLow    Demand = "low"
	DemandMedium Demand = "medium"
	DemandHigh   Demand = "high"
)

// demandLevels lists demand values for random shifts.
var demandLevels = []Demand{DemandLow, DemandMedium, DemandHigh}

// #endregion enums

// #region config

// Config holds the environment's tunable parameters.
type Config struct {
	Difficulty float64 // tightens meltdown thresholds linearly
	Noise      float64 // scales every random perturbation linearly
	MaxSteps   int

	// DemandFactors maps demand level → reward multiplier. Only the high
	// level (1.2) is pinned down by operator logs; the rest are tunable.
	DemandFactors map[Demand]float64
}

// DefaultConfig returns the standard simulation parameters.
func DefaultConfig() Config {
	return Config{
		Difficulty: 1.0,
		Noise:      1.0,
		MaxSteps:   20,
		DemandFactors: map[Demand]float64{
			DemandLow:    0.8,
			DemandMedium: 1.0,
			DemandHigh:   1.2,
		},
	}
}

// #endregion config

// #region step-result

// StepResult is the outcome of applying one action.
type StepResult struct {
	Observation string
	Reward      float64
	Done        bool
	Meltdown    bool
}

// #endregion step-result
