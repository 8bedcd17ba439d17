package reward

import (
	"fmt"
	"log"
	"math"
)

// #region config

// Config holds the linear fit parameters.
type Config struct {
	LearningRate float64
	Iterations   int
	L2           float64 // weight decay; never applied to the bias
}

// DefaultConfig returns the standard fit parameters.
func DefaultConfig() Config {
	return Config{
		LearningRate: 0.05,
		Iterations:   400,
		L2:           1e-3,
	}
}

// #endregion config

// #region model

// Model is the linear value function mapping a concept-indexed feature
// vector to a predicted discounted return. It remembers the schema size at
// last fit time and reconciles any later dimensionality drift inside
// Predict: extra trailing columns are dropped, missing ones read as zero.
type Model struct {
	config Config

	weights   []float64
	bias      float64
	nFeatures int
	fitted    bool

	importanceSum   map[string]float64
	importanceCount map[string]int
	zeroWeightCount map[string]int
}

// NewModel creates an unfitted model.
func NewModel(config Config) *Model {
	return &Model{
		config:          config,
		importanceSum:   make(map[string]float64),
		importanceCount: make(map[string]int),
		zeroWeightCount: make(map[string]int),
	}
}

// #endregion model

// #region fit

// Fit trains the linear regressor on X (columns aligned to conceptIDs) and
// targets g, then folds the fitted |weight| magnitudes into the per-concept
// importance accumulators. Fewer than two samples is an insufficient-data
// condition: the fit is skipped with a diagnostic, not an error. nFeatures
// is updated here and nowhere else.
func (m *Model) Fit(X [][]float64, g []float64, conceptIDs []string) error {
	if len(X) != len(g) {
		return fmt.Errorf("fit: %d rows vs %d targets", len(X), len(g))
	}
	if len(X) < 2 {
		log.Printf("[REWARD] skipping fit: only %d sample(s)", len(X))
		return nil
	}
	cols := len(conceptIDs)
	for i, row := range X {
		if len(row) != cols {
			return fmt.Errorf("fit: row %d has %d columns, want %d", i, len(row), cols)
		}
	}

	// Deterministic full-batch gradient descent from zero init. A column
	// that is zero in every row keeps an exactly-zero weight throughout.
	w := make([]float64, cols)
	bias := 0.0
	n := float64(len(X))

	grad := make([]float64, cols)
	for it := 0; it < m.config.Iterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		biasGrad := 0.0
		for i, row := range X {
			pred := bias
			for j, x := range row {
				pred += w[j] * x
			}
			err := pred - g[i]
			biasGrad += err
			for j, x := range row {
				grad[j] += err * x
			}
		}
		for j := range w {
			w[j] -= m.config.LearningRate * (grad[j]/n + m.config.L2*w[j])
		}
		bias -= m.config.LearningRate * biasGrad / n
	}

	m.weights = w
	m.bias = bias
	m.nFeatures = cols
	m.fitted = true

	for j, id := range conceptIDs {
		m.importanceSum[id] += math.Abs(w[j])
		m.importanceCount[id]++
		if w[j] == 0 {
			m.zeroWeightCount[id]++
		}
	}
	return nil
}

// #endregion fit

// #region predict

// Predict scores each row. A row whose length differs from nFeatures is
// reconciled exactly as if it had been truncated or zero-padded to
// nFeatures columns first. An unfitted model predicts zero.
func (m *Model) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = m.PredictOne(row)
	}
	return out
}

// PredictOne scores one feature vector under the pad/truncate contract.
func (m *Model) PredictOne(x []float64) float64 {
	if !m.fitted {
		return 0
	}
	n := m.nFeatures
	if len(x) < n {
		n = len(x)
	}
	sum := m.bias
	for j := 0; j < n; j++ {
		sum += m.weights[j] * x[j]
	}
	return sum
}

// #endregion predict

// #region stats

// Fitted reports whether Fit has completed at least once.
func (m *Model) Fitted() bool {
	return m.fitted
}

// NFeatures returns the schema size recorded at last fit time.
func (m *Model) NFeatures() int {
	return m.nFeatures
}

// Weights returns a copy of the fitted weight vector.
func (m *Model) Weights() []float64 {
	out := make([]float64, len(m.weights))
	copy(out, m.weights)
	return out
}

// Bias returns the fitted intercept.
func (m *Model) Bias() float64 {
	return m.bias
}

// Importance returns the running-average absolute weight magnitude for a
// concept id across fits. ok is false when the concept has never been fit.
func (m *Model) Importance(id string) (float64, bool) {
	count := m.importanceCount[id]
	if count == 0 {
		return 0, false
	}
	return m.importanceSum[id] / float64(count), true
}

// HasImportance reports whether any importance statistics exist yet.
func (m *Model) HasImportance() bool {
	return len(m.importanceCount) > 0
}

// ZeroWeightCount returns how many fits left the concept's weight at
// exactly zero.
func (m *Model) ZeroWeightCount(id string) int {
	return m.zeroWeightCount[id]
}

// #endregion stats
