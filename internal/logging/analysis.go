package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-analysis
// LogAnalysis writes one analysis decision to the analysis_log table.
func LogAnalysis(db *sql.DB, entry AnalysisEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO analysis_log (run_id, pass, decision, concept_id, reason, signals_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RunID,
		entry.Pass,
		entry.Decision,
		nullIfEmpty(entry.ConceptID),
		nullIfEmpty(entry.Reason),
		nullIfEmpty(entry.SignalsJSON),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log analysis: %w", err)
	}
	return nil
}

// #endregion log-analysis

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
