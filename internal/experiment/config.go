package experiment

import "github.com/danielpatrickdp/concept-control/internal/reactor"

// #region config

// Config holds every knob of one training run. YAML tags let cmd/trainer
// load it from a run file.
type Config struct {
	Episodes       int     `yaml:"episodes"`
	Gamma          float64 `yaml:"gamma"`
	MaxSteps       int     `yaml:"max_steps"`
	MaxNewConcepts int     `yaml:"max_new_concepts"`
	MaxConcepts    int     `yaml:"max_concepts"`
	EpsGreedy      float64 `yaml:"eps_greedy"`
	Difficulty     float64 `yaml:"difficulty"`
	Noise          float64 `yaml:"noise"`
	Seed           int64   `yaml:"seed"`

	// AnalyzeEvery batches this many episodes into one analysis pass; the
	// trace is discarded after each pass.
	AnalyzeEvery int `yaml:"analyze_every"`

	// DemandFactors overrides the reactor's reward multipliers when set.
	DemandFactors map[string]float64 `yaml:"demand_factors"`
}

// DefaultConfig returns the standard run parameters.
func DefaultConfig() Config {
	return Config{
		Episodes:       20,
		Gamma:          0.9,
		MaxSteps:       20,
		MaxNewConcepts: 2,
		MaxConcepts:    12,
		EpsGreedy:      0.1,
		Difficulty:     1.0,
		Noise:          1.0,
		Seed:           1,
		AnalyzeEvery:   1,
	}
}

// reactorConfig assembles the environment config from run-level knobs.
func (c Config) reactorConfig() reactor.Config {
	rc := reactor.DefaultConfig()
	rc.Difficulty = c.Difficulty
	rc.Noise = c.Noise
	rc.MaxSteps = c.MaxSteps
	for level, factor := range c.DemandFactors {
		rc.DemandFactors[reactor.Demand(level)] = factor
	}
	return rc
}

// #endregion config
