package policy

import (
	"fmt"
	"math/rand"

	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/reward"
)

// #region policy

// Policy selects actions greedily against the reward model's predictions,
// with optional epsilon exploration from the experiment-scoped rng.
type Policy struct {
	universe *concept.Universe
	model    *reward.Model
	rng      *rand.Rand
	epsilon  float64
}

// New creates a policy. epsilon 0 means fully greedy.
func New(u *concept.Universe, m *reward.Model, rng *rand.Rand, epsilon float64) *Policy {
	return &Policy{universe: u, model: m, rng: rng, epsilon: epsilon}
}

// #endregion policy

// #region greedy

// GreedyAction builds the full feature vector per ACTION concept (state
// ternaries plus that action's one-hot), scores each with the model, and
// returns the best action id plus the full prediction vector. Ties break
// toward the first-encountered action.
func (p *Policy) GreedyAction(acts concept.Activations) (string, []float64, error) {
	actions := p.universe.ActionConcepts()
	if len(actions) == 0 {
		return "", nil, fmt.Errorf("greedy action: universe has no action concepts")
	}

	preds := make([]float64, len(actions))
	bestIdx := 0
	for i, ac := range actions {
		vec, err := p.universe.FeatureVector(acts, ac.ID)
		if err != nil {
			return "", nil, fmt.Errorf("greedy action: %w", err)
		}
		preds[i] = p.model.PredictOne(vec)
		if preds[i] > preds[bestIdx] {
			bestIdx = i
		}
	}
	return actions[bestIdx].ID, preds, nil
}

// #endregion greedy

// #region epsilon-greedy

// EpsilonGreedy samples a uniformly random action with probability epsilon,
// otherwise acts greedily.
func (p *Policy) EpsilonGreedy(acts concept.Activations) (string, error) {
	actions := p.universe.ActionConcepts()
	if len(actions) == 0 {
		return "", fmt.Errorf("epsilon greedy: universe has no action concepts")
	}
	if p.rng.Float64() < p.epsilon {
		return actions[p.rng.Intn(len(actions))].ID, nil
	}
	id, _, err := p.GreedyAction(acts)
	return id, err
}

// #endregion epsilon-greedy
