package reactor

import (
	"fmt"
	"math"
	"math/rand"
)

// #region env

// Env is the simulated process under control. It exclusively owns its
// numeric state; no other component ever writes it. Terminal once meltdown
// fires or the step budget is spent.
type Env struct {
	config Config
	rng    *rand.Rand

	stress   float64 // 0..100
	margin   float64 // 0..100
	output   float64 // >= 0
	glitches int
	mood     Mood
	demand   Demand
	stepIdx  int
	meltdown bool
}

// NewEnv creates an environment drawing randomness from the shared rng.
func NewEnv(config Config, rng *rand.Rand) *Env {
	e := &Env{config: config, rng: rng}
	e.Reset()
	return e
}

// Reset returns the plant to its start-of-episode condition.
func (e *Env) Reset() {
	e.stress = 50
	e.margin = 55
	e.output = 0.5
	e.glitches = 0
	e.mood = MoodCalm
	e.demand = demandLevels[e.rng.Intn(len(demandLevels))]
	e.stepIdx = 0
	e.meltdown = false
}

// Done reports whether the episode is terminal.
func (e *Env) Done() bool {
	return e.meltdown || e.stepIdx >= e.config.MaxSteps
}

// Meltdown reports whether the terminal failure state was reached.
func (e *Env) Meltdown() bool {
	return e.meltdown
}

// StepIdx returns the number of steps applied so far.
func (e *Env) StepIdx() int {
	return e.stepIdx
}

// #endregion env

// #region step

// Step applies one action, advances the hidden state stochastically, and
// evaluates meltdown. Meltdown carries a fixed −10 reward and ends the
// episode immediately.
func (e *Env) Step(action Action) (StepResult, error) {
	if e.Done() {
		return StepResult{}, fmt.Errorf("step: episode already terminal")
	}

	switch action {
	case ActionSteady:
		e.stress += e.jitter(2.0)
		e.margin += e.jitter(2.0)
		e.output += e.jitter(0.05)
	case ActionCool:
		e.stress += -6.0 + e.jitter(2.0)
		e.margin += 4.0 + e.jitter(2.0)
		e.output += -0.08 + e.jitter(0.03)
	case ActionPush:
		e.stress += 7.0 + e.jitter(2.0)
		e.margin += -5.0 + e.jitter(2.0)
		e.output += 0.15 + e.jitter(0.05)
	default:
		return StepResult{}, fmt.Errorf("step: unknown action %q", action)
	}
	e.clampState()

	// Glitch dynamics: more likely under stress, repairable by cooling.
	glitchP := 0.08 + 0.04*e.config.Difficulty
	if e.stress > 70 {
		glitchP += 0.10
	}
	if e.rng.Float64() < glitchP {
		e.glitches++
	}
	if e.glitches > 0 && action == ActionCool && e.rng.Float64() < 0.5 {
		e.glitches--
	}

	// Demand occasionally shifts mid-episode.
	if e.rng.Float64() < 0.10 {
		e.demand = demandLevels[e.rng.Intn(len(demandLevels))]
	}
	e.mood = e.moodFor()

	melted := e.checkMeltdown()
	reward := e.stepReward()
	if melted {
		reward = -10
	}
	e.stepIdx++

	return StepResult{
		Observation: e.Observe(),
		Reward:      reward,
		Done:        e.Done(),
		Meltdown:    melted,
	}, nil
}

// jitter draws one perturbation; its magnitude scales linearly with the
// configured noise factor.
func (e *Env) jitter(scale float64) float64 {
	return e.rng.NormFloat64() * scale * e.config.Noise
}

func (e *Env) clampState() {
	e.stress = clamp(e.stress, 0, 100)
	e.margin = clamp(e.margin, 0, 100)
	if e.output < 0 {
		e.output = 0
	}
}

func (e *Env) moodFor() Mood {
	switch {
	case e.stress > 80 || e.glitches >= 2:
		return MoodFrazzled
	case e.stress > 65 || e.glitches == 1:
		return MoodTense
	default:
		return MoodCalm
	}
}

// #endregion step

// #region meltdown

// stressThresh and marginThresh tighten linearly with difficulty: higher
// difficulty makes meltdown easier to trigger at the same readings.
func (e *Env) stressThresh() float64 {
	return 85 - 5*e.config.Difficulty
}

func (e *Env) marginThresh() float64 {
	return 30 + 5*e.config.Difficulty
}

func (e *Env) checkMeltdown() bool {
	if e.stress >= e.stressThresh() && e.margin <= e.marginThresh() && e.glitches >= 1 {
		e.meltdown = true
	}
	return e.meltdown
}

// riskyBand reports whether the plant is approaching the meltdown envelope,
// even if meltdown has not fired yet.
func (e *Env) riskyBand() bool {
	return e.stress >= e.stressThresh()-5 && e.margin <= e.marginThresh()+5 && e.glitches >= 1
}

// #endregion meltdown

// #region reward

// stepReward is the non-meltdown step reward: strictly increasing in output,
// scaled by episode progress and the demand multiplier.
func (e *Env) stepReward() float64 {
	factor := e.config.DemandFactors[e.demand]
	if factor == 0 {
		factor = 1.0
	}
	progress := 1 + float64(e.stepIdx)/float64(e.config.MaxSteps)
	return math.Exp(0.5*e.output*progress*factor) - 1
}

// #endregion reward

// #region observe

// Observe renders the operator note for the current state. It always embeds
// the exact numeric output to 3 decimals; the qualitative language shifts at
// output thresholds, and the warning phrase appears only in the risky band.
func (e *Env) Observe() string {
	var feel string
	switch {
	case e.output < 0.3:
		feel = "the turbines sound anemic and the steam pressure is thin"
	case e.output <= 1.0:
		feel = "steam flow feels normal and the turbines hum evenly"
	default:
		feel = "the turbines strain under heavy steam flow"
	}

	note := fmt.Sprintf(
		"measured reactor output=%.3f; %s; the crew is %s; grid demand is %s",
		e.output, feel, e.mood, e.demand,
	)
	if e.glitches > 0 {
		note += fmt.Sprintf("; %d instrument glitch(es) logged", e.glitches)
	}
	if e.riskyBand() {
		note += "; a red warning light blinks on the console"
	}
	return note + "."
}

// #endregion observe

// #region helpers

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
