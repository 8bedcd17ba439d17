package logging

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	s, err := tracestore.NewStore(filepath.Join(t.TempDir(), "trace.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s.DB()
}

func TestLogAnalysisRoundtrip(t *testing.T) {
	db := newTestDB(t)

	signals, err := json.Marshal(PairSignals{
		SourceID:   "s1",
		TargetID:   "s2",
		Similarity: 0.87,
		TraceRows:  40,
	})
	if err != nil {
		t.Fatalf("marshal signals: %v", err)
	}

	entry := AnalysisEntry{
		RunID:       "run-1",
		Pass:        2,
		Decision:    "created",
		ConceptID:   "llm_strain",
		Reason:      "probe similarity 0.87 over threshold",
		SignalsJSON: string(signals),
	}
	if err := LogAnalysis(db, entry); err != nil {
		t.Fatalf("LogAnalysis: %v", err)
	}

	var decision, conceptID, reason, signalsJSON string
	var pass int
	err = db.QueryRow(
		`SELECT pass, decision, concept_id, reason, signals_json FROM analysis_log WHERE run_id = ?`,
		"run-1",
	).Scan(&pass, &decision, &conceptID, &reason, &signalsJSON)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if pass != 2 || decision != "created" || conceptID != "llm_strain" {
		t.Fatalf("row pass=%d decision=%q concept=%q", pass, decision, conceptID)
	}

	var back PairSignals
	if err := json.Unmarshal([]byte(signalsJSON), &back); err != nil {
		t.Fatalf("unmarshal signals: %v", err)
	}
	if back.Similarity != 0.87 || back.TraceRows != 40 {
		t.Fatalf("signals %+v", back)
	}
}

func TestLogAnalysisEmptyFieldsAreNull(t *testing.T) {
	db := newTestDB(t)

	entry := AnalysisEntry{RunID: "run-1", Pass: 1, Decision: "skipped"}
	if err := LogAnalysis(db, entry); err != nil {
		t.Fatalf("LogAnalysis: %v", err)
	}

	var conceptID, reason, signalsJSON sql.NullString
	err := db.QueryRow(
		`SELECT concept_id, reason, signals_json FROM analysis_log WHERE run_id = ?`, "run-1",
	).Scan(&conceptID, &reason, &signalsJSON)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if conceptID.Valid || reason.Valid || signalsJSON.Valid {
		t.Fatalf("empty fields should store NULL: %+v %+v %+v", conceptID, reason, signalsJSON)
	}
}
