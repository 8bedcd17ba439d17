package tracestore

import (
	"fmt"
	"time"
)

// #region types
// Edge records one analyzed concept pair: the cosine similarity of its
// future-occupancy probes and, when the pair produced a new concept, that
// concept's id.
type Edge struct {
	ID         int64
	RunID      string
	SourceID   string
	TargetID   string
	Similarity float64
	CreatedID  string
	CreatedAt  time.Time
}

// #endregion types

// #region record-edge

// RecordEdge upserts an analyzed pair edge. The pair is unique per run; a
// re-analysis updates similarity in place.
func (s *Store) RecordEdge(runID, sourceID, targetID string, similarity float64, createdID string) error {
	var createdPtr interface{}
	if createdID != "" {
		createdPtr = createdID
	}
	_, err := s.db.Exec(
		`INSERT INTO concept_edges (run_id, source_id, target_id, similarity, created_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id, source_id, target_id) DO UPDATE SET
		   similarity = excluded.similarity,
		   created_id = COALESCE(excluded.created_id, concept_edges.created_id)`,
		runID, sourceID, targetID, similarity, createdPtr,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record edge: %w", err)
	}
	return nil
}

// #endregion record-edge

// #region list-edges

// ListEdges returns a run's analyzed pair edges ordered by similarity.
func (s *Store) ListEdges(runID string) ([]Edge, error) {
	rows, err := s.db.Query(
		`SELECT id, run_id, source_id, target_id, similarity, created_id, created_at
		 FROM concept_edges WHERE run_id = ? ORDER BY similarity DESC`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []Edge
	for rows.Next() {
		var e Edge
		var createdID *string
		var createdStr string
		if err := rows.Scan(&e.ID, &e.RunID, &e.SourceID, &e.TargetID, &e.Similarity, &createdID, &createdStr); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		if createdID != nil {
			e.CreatedID = *createdID
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, e)
	}
	return out, rows.Err()
}

// #endregion list-edges
