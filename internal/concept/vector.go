package concept

import "fmt"

// #region feature-vector

// FeatureVector builds the full concept-indexed feature vector for one
// observation plus one chosen action: ternary state activations at STATE
// concept positions and a one-hot at the chosen ACTION concept position.
// Indices are resolved against the universe at call time, never cached.
func (u *Universe) FeatureVector(acts Activations, actionID string) ([]float64, error) {
	if !u.action[actionID] {
		return nil, fmt.Errorf("feature vector: %s is not an action concept", actionID)
	}
	vec := make([]float64, len(u.concepts))
	for i, c := range u.concepts {
		switch {
		case u.state[c.ID]:
			vec[i] = float64(acts.Value(c.ID))
		case c.ID == actionID:
			vec[i] = 1
		}
	}
	return vec, nil
}

// StateRow builds the K_state-length row of ternary activations ordered by
// the current StateIndexMap.
func (u *Universe) StateRow(acts Activations) []float64 {
	var row []float64
	for _, c := range u.concepts {
		if u.state[c.ID] {
			row = append(row, float64(acts.Value(c.ID)))
		}
	}
	return row
}

// #endregion feature-vector
