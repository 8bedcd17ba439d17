package dataset

import (
	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region types

// Transition is one recorded step of an episode. Activations are kept keyed
// by concept id so the row can be resolved against whatever the universe
// looks like at analysis time.
type Transition struct {
	EpisodeID   string
	StepIdx     int
	Observation string
	ActionID    string // ACTION concept id chosen by the policy
	Activations concept.Activations
	Reward      float64
	Meltdown    bool
}

// Dataset accumulates per-step traces for one analysis pass. It is built
// incrementally during episodes and discarded after the pass; nothing here
// is persisted.
type Dataset struct {
	transitions  []Transition
	episodeOrder []string
	meltdownStep map[string]int
}

// #endregion types

// #region constructor

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{meltdownStep: make(map[string]int)}
}

// #endregion constructor

// #region append

// Append records one transition. Steps must arrive in order within an
// episode; episodes may interleave only by completing first.
func (d *Dataset) Append(t Transition) {
	if len(d.episodeOrder) == 0 || d.episodeOrder[len(d.episodeOrder)-1] != t.EpisodeID {
		d.episodeOrder = append(d.episodeOrder, t.EpisodeID)
	}
	if t.Meltdown {
		d.meltdownStep[t.EpisodeID] = t.StepIdx
	}
	d.transitions = append(d.transitions, t)
}

// #endregion append

// #region accessors

// Len returns the total recorded step count.
func (d *Dataset) Len() int {
	return len(d.transitions)
}

// Episodes returns episode ids in first-seen order.
func (d *Dataset) Episodes() []string {
	out := make([]string, len(d.episodeOrder))
	copy(out, d.episodeOrder)
	return out
}

// Transitions returns the recorded steps in order.
func (d *Dataset) Transitions() []Transition {
	return d.transitions
}

// MeltdownStep returns the step index at which the episode melted down.
func (d *Dataset) MeltdownStep(episodeID string) (int, bool) {
	s, ok := d.meltdownStep[episodeID]
	return s, ok
}

// #endregion accessors

// #region discounted-returns

// BuildDiscountedReturns computes G_t = r_t + gamma*G_{t+1} backward over
// each episode independently, then concatenates in transition order. Returns
// never propagate across an episode boundary: a meltdown's fixed penalty is
// already the recorded reward at its step, and no later steps exist for that
// episode.
func (d *Dataset) BuildDiscountedReturns(gamma float64) []float64 {
	returns := make([]float64, len(d.transitions))

	// Group transition indices per episode, preserving order.
	byEpisode := make(map[string][]int)
	for i, t := range d.transitions {
		byEpisode[t.EpisodeID] = append(byEpisode[t.EpisodeID], i)
	}

	for _, idxs := range byEpisode {
		g := 0.0
		for k := len(idxs) - 1; k >= 0; k-- {
			i := idxs[k]
			g = d.transitions[i].Reward + gamma*g
			returns[i] = g
		}
	}
	return returns
}

// #endregion discounted-returns

// #region matrices

// StateMatrix resolves the episode×step×K_state trace against the
// universe's current STATE concepts. Rows align with Transitions(); columns
// follow the current StateIndexMap order. Concepts registered after a row
// was recorded read as Unknown (0) for that row.
func (d *Dataset) StateMatrix(u *concept.Universe) [][]float64 {
	rows := make([][]float64, len(d.transitions))
	for i, t := range d.transitions {
		rows[i] = u.StateRow(t.Activations)
	}
	return rows
}

// FeatureMatrix builds the full concept-indexed feature matrix (state
// ternaries plus action one-hots) with one row per transition, and the
// concept id list defining its column order.
func (d *Dataset) FeatureMatrix(u *concept.Universe) ([][]float64, []string, error) {
	rows := make([][]float64, len(d.transitions))
	for i, t := range d.transitions {
		vec, err := u.FeatureVector(t.Activations, t.ActionID)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = vec
	}
	return rows, u.ConceptIDs(), nil
}

// #endregion matrices
