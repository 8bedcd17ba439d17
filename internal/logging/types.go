package logging

import "time"

// #region analysis-entry
// AnalysisEntry is a single row in the analysis_log table: one discovery or
// pruning decision with enough context to audit it later.
type AnalysisEntry struct {
	RunID       string
	Pass        int
	Decision    string // "created" | "pruned" | "skipped" | "rejected"
	ConceptID   string
	Reason      string
	SignalsJSON string
	CreatedAt   time.Time
}

// #endregion analysis-entry

// #region pair-signals
// PairSignals captures the evidence that fed one creation decision.
// Serialized as JSON into analysis_log.signals_json.
type PairSignals struct {
	SourceID   string  `json:"source_id"`
	TargetID   string  `json:"target_id"`
	Similarity float64 `json:"similarity"`
	TraceRows  int     `json:"trace_rows"`
}

// #endregion pair-signals
