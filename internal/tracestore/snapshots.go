package tracestore

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// #region types
// ModelSnapshot is one fitted weight vector with its column schema.
type ModelSnapshot struct {
	RunID      string
	Pass       int
	NFeatures  int
	Weights    []float64
	ConceptIDs []string
	CreatedAt  time.Time
}

// #endregion types

// #region save

// SaveModelSnapshot stores the fitted weights and their column ids.
func (s *Store) SaveModelSnapshot(snap ModelSnapshot) error {
	idsJSON, err := json.Marshal(snap.ConceptIDs)
	if err != nil {
		return fmt.Errorf("marshal concept ids: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO model_snapshots (run_id, pass, n_features, weights, concept_ids_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.Pass, snap.NFeatures, encodeWeights(snap.Weights), string(idsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save model snapshot: %w", err)
	}
	return nil
}

// #endregion save

// #region load

// LatestModelSnapshot returns the most recent snapshot for a run.
func (s *Store) LatestModelSnapshot(runID string) (ModelSnapshot, error) {
	var snap ModelSnapshot
	var blob []byte
	var idsJSON string
	var createdStr string

	err := s.db.QueryRow(
		`SELECT run_id, pass, n_features, weights, concept_ids_json, created_at
		 FROM model_snapshots WHERE run_id = ? ORDER BY id DESC LIMIT 1`, runID,
	).Scan(&snap.RunID, &snap.Pass, &snap.NFeatures, &blob, &idsJSON, &createdStr)
	if err != nil {
		return ModelSnapshot{}, fmt.Errorf("latest model snapshot: %w", err)
	}

	snap.Weights = decodeWeights(blob)
	if err := json.Unmarshal([]byte(idsJSON), &snap.ConceptIDs); err != nil {
		return ModelSnapshot{}, fmt.Errorf("unmarshal concept ids: %w", err)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return snap, nil
}

// #endregion load

// #region weight-encoding
// Weight vectors vary in length with the schema, so the blob is plain
// little-endian float32 with no header.
func encodeWeights(w []float64) []byte {
	buf := make([]byte, len(w)*4)
	for i, f := range w {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(f)))
	}
	return buf
}

func decodeWeights(b []byte) []float64 {
	w := make([]float64, len(b)/4)
	for i := range w {
		w[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:])))
	}
	return w
}

// #endregion weight-encoding
