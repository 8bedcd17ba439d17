package eval

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/concept-control/internal/reward"
)

// #region eval-harness
// EvalHarness runs lightweight post-fit validation on the reward model.
// Its verdicts are informational: the training loop logs them but never
// blocks on them.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run validates the freshly fitted model against its own training pass.
func (h *EvalHarness) Run(m *reward.Model, X [][]float64, g []float64) EvalResult {
	var metrics []EvalMetric
	passed := true
	var failReasons []string

	if !m.Fitted() {
		return EvalResult{Passed: true, Reason: "model not fitted yet, nothing to validate"}
	}

	// 1. Weight norm bound: runaway weights mean the fit diverged.
	wNorm := weightNorm(m.Weights())
	wNormPass := wNorm <= h.config.MaxWeightNorm
	metrics = append(metrics, EvalMetric{
		Name:  "weight_norm",
		Value: wNorm,
		Pass:  wNormPass,
	})
	if !wNormPass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("weight norm %.4f exceeds %.4f", wNorm, h.config.MaxWeightNorm))
	}

	// 2. Training R²: how much of the return variance the fit captures.
	r2 := rSquared(m, X, g)
	r2Pass := r2 >= h.config.MinR2
	metrics = append(metrics, EvalMetric{
		Name:  "train_r2",
		Value: r2,
		Pass:  r2Pass,
	})
	if !r2Pass {
		passed = false
		failReasons = append(failReasons, fmt.Sprintf("train r2 %.4f below %.4f", r2, h.config.MinR2))
	}

	// 3. Importance coverage: share of columns carrying any weight at all.
	// Informational; a low value just means most concepts are dead weight.
	metrics = append(metrics, EvalMetric{
		Name:  "importance_coverage",
		Value: importanceCoverage(m.Weights()),
		Pass:  true,
	})

	reason := "all checks passed"
	if !passed {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  passed,
		Metrics: metrics,
		Reason:  reason,
	}
}

// #endregion eval-harness

// #region helpers
// weightNorm computes the L2 norm of the weight vector.
func weightNorm(w []float64) float64 {
	var sum float64
	for _, x := range w {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// importanceCoverage is the fraction of weights that are nonzero.
func importanceCoverage(w []float64) float64 {
	if len(w) == 0 {
		return 0
	}
	nonzero := 0
	for _, x := range w {
		if x != 0 {
			nonzero++
		}
	}
	return float64(nonzero) / float64(len(w))
}

// rSquared computes 1 − SS_res/SS_tot over the training pass. A constant
// target yields 1 when residuals are zero, 0 otherwise.
func rSquared(m *reward.Model, X [][]float64, g []float64) float64 {
	if len(g) == 0 {
		return 0
	}
	preds := m.Predict(X)

	var mean float64
	for _, v := range g {
		mean += v
	}
	mean /= float64(len(g))

	var ssRes, ssTot float64
	for i, v := range g {
		d := v - preds[i]
		ssRes += d * d
		t := v - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// #endregion helpers
