package eval

// #region eval-config
// EvalConfig holds thresholds for post-fit model validation.
type EvalConfig struct {
	MaxWeightNorm float64 // warn if the fitted weight norm exceeds this
	MinR2         float64 // warn if training fit quality falls below this
}

// DefaultEvalConfig returns sensible defaults.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxWeightNorm: 50.0,
		MinR2:         0.0,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-fit validation.
type EvalResult struct {
	Passed  bool
	Metrics []EvalMetric
	Reason  string
}

// #endregion eval-result
