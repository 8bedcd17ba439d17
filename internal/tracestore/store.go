package tracestore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	config_json  TEXT NOT NULL,
	created_at   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS episodes (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL,
	episode_id    TEXT NOT NULL,
	steps         INTEGER NOT NULL,
	total_reward  REAL NOT NULL,
	meltdown      INTEGER NOT NULL DEFAULT 0,
	meltdown_step INTEGER,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS transitions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	episode_id       TEXT NOT NULL,
	step_idx         INTEGER NOT NULL,
	observation      TEXT NOT NULL,
	action_id        TEXT NOT NULL,
	activations_json TEXT NOT NULL,
	reward           REAL NOT NULL,
	meltdown         INTEGER NOT NULL DEFAULT 0,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);
CREATE INDEX IF NOT EXISTS idx_transitions_episode ON transitions(run_id, episode_id, step_idx);

CREATE TABLE IF NOT EXISTS concept_versions (
	version_id    TEXT PRIMARY KEY,
	run_id        TEXT NOT NULL,
	pass          INTEGER NOT NULL,
	concepts_json TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS active_version (
	id          INTEGER PRIMARY KEY CHECK (id = 1),
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES concept_versions(version_id)
);

CREATE TABLE IF NOT EXISTS concept_edges (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	source_id   TEXT NOT NULL,
	target_id   TEXT NOT NULL,
	similarity  REAL NOT NULL,
	created_id  TEXT,
	created_at  TEXT NOT NULL,
	UNIQUE(run_id, source_id, target_id)
);
CREATE INDEX IF NOT EXISTS idx_edges_run ON concept_edges(run_id);

CREATE TABLE IF NOT EXISTS model_snapshots (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id           TEXT NOT NULL,
	pass             INTEGER NOT NULL,
	n_features       INTEGER NOT NULL,
	weights          BLOB NOT NULL,
	concept_ids_json TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	FOREIGN KEY (run_id) REFERENCES runs(run_id)
);

CREATE TABLE IF NOT EXISTS analysis_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id       TEXT NOT NULL,
	pass         INTEGER NOT NULL,
	decision     TEXT NOT NULL,
	concept_id   TEXT,
	reason       TEXT,
	signals_json TEXT,
	created_at   TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store persists run traces, concept registry versions, analyzed pair
// edges, and model snapshots in SQLite. The training loop works entirely
// in memory; the store is a write-behind record for inspection and replay.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region runs

// CreateRun registers a new run with its serialized configuration.
func (s *Store) CreateRun(runID, configJSON string) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (run_id, config_json, created_at) VALUES (?, ?, ?)`,
		runID, configJSON, time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// RunRecord is one row of the runs table.
type RunRecord struct {
	RunID      string
	ConfigJSON string
	CreatedAt  time.Time
}

// ListRuns returns the most recent runs.
func (s *Store) ListRuns(limit int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, config_json, created_at FROM runs ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var createdStr string
		if err := rows.Scan(&r.RunID, &r.ConfigJSON, &createdStr); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion runs

// #region episodes

// EpisodeRecord is one row of the episodes table.
type EpisodeRecord struct {
	RunID        string
	EpisodeID    string
	Steps        int
	TotalReward  float64
	Meltdown     bool
	MeltdownStep int // -1 when no meltdown
	CreatedAt    time.Time
}

// RecordEpisode persists one completed episode's aggregates.
func (s *Store) RecordEpisode(rec EpisodeRecord) error {
	meltdown := 0
	var meltdownStep interface{}
	if rec.Meltdown {
		meltdown = 1
		meltdownStep = rec.MeltdownStep
	}
	_, err := s.db.Exec(
		`INSERT INTO episodes (run_id, episode_id, steps, total_reward, meltdown, meltdown_step, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.EpisodeID, rec.Steps, rec.TotalReward, meltdown, meltdownStep,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

// ListEpisodes returns all episodes for a run in insertion order.
func (s *Store) ListEpisodes(runID string) ([]EpisodeRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, episode_id, steps, total_reward, meltdown, meltdown_step, created_at
		 FROM episodes WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		var rec EpisodeRecord
		var meltdown int
		var meltdownStep sql.NullInt64
		var createdStr string
		if err := rows.Scan(&rec.RunID, &rec.EpisodeID, &rec.Steps, &rec.TotalReward,
			&meltdown, &meltdownStep, &createdStr); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		rec.Meltdown = meltdown == 1
		rec.MeltdownStep = -1
		if meltdownStep.Valid {
			rec.MeltdownStep = int(meltdownStep.Int64)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion episodes

// #region transitions

// TransitionRecord is one row of the transitions table.
type TransitionRecord struct {
	RunID       string
	EpisodeID   string
	StepIdx     int
	Observation string
	ActionID    string
	Activations concept.Activations
	Reward      float64
	Meltdown    bool
}

// RecordTransition persists one step of an episode.
func (s *Store) RecordTransition(rec TransitionRecord) error {
	actsJSON, err := json.Marshal(rec.Activations)
	if err != nil {
		return fmt.Errorf("marshal activations: %w", err)
	}
	meltdown := 0
	if rec.Meltdown {
		meltdown = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO transitions (run_id, episode_id, step_idx, observation, action_id, activations_json, reward, meltdown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.EpisodeID, rec.StepIdx, rec.Observation, rec.ActionID,
		string(actsJSON), rec.Reward, meltdown,
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// ListTransitions returns a run's transitions in episode and step order.
func (s *Store) ListTransitions(runID string) ([]TransitionRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, episode_id, step_idx, observation, action_id, activations_json, reward, meltdown
		 FROM transitions WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		var actsJSON string
		var meltdown int
		if err := rows.Scan(&rec.RunID, &rec.EpisodeID, &rec.StepIdx, &rec.Observation,
			&rec.ActionID, &actsJSON, &rec.Reward, &meltdown); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if err := json.Unmarshal([]byte(actsJSON), &rec.Activations); err != nil {
			return nil, fmt.Errorf("unmarshal activations: %w", err)
		}
		rec.Meltdown = meltdown == 1
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion transitions

// #region concept-versions

// conceptRow is the JSON shape stored per concept in concepts_json.
type conceptRow struct {
	ID         string `json:"id"`
	Definition string `json:"definition"`
	Source     string `json:"source"`
	State      bool   `json:"state"`
}

// VersionRecord is one registry snapshot.
type VersionRecord struct {
	VersionID string
	RunID     string
	Pass      int
	CreatedAt time.Time
}

// SnapshotConcepts stores the universe's full registry as a new version and
// moves the active pointer to it atomically.
func (s *Store) SnapshotConcepts(runID string, pass int, u *concept.Universe) (string, error) {
	rowsOut := make([]conceptRow, 0, u.Size())
	for _, c := range u.Concepts() {
		rowsOut = append(rowsOut, conceptRow{
			ID:         c.ID,
			Definition: c.Definition,
			Source:     string(c.Source),
			State:      u.IsState(c.ID),
		})
	}
	blob, err := json.Marshal(rowsOut)
	if err != nil {
		return "", fmt.Errorf("marshal concepts: %w", err)
	}

	versionID := uuid.New().String()
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO concept_versions (version_id, run_id, pass, concepts_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		versionID, runID, pass, string(blob), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO active_version (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		versionID,
	)
	if err != nil {
		return "", fmt.Errorf("set active: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return versionID, nil
}

// GetVersionConcepts rebuilds a Universe from a stored registry snapshot.
func (s *Store) GetVersionConcepts(versionID string) (*concept.Universe, error) {
	var blob string
	err := s.db.QueryRow(
		`SELECT concepts_json FROM concept_versions WHERE version_id = ?`, versionID,
	).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("get version %s: %w", versionID, err)
	}

	var rowsIn []conceptRow
	if err := json.Unmarshal([]byte(blob), &rowsIn); err != nil {
		return nil, fmt.Errorf("unmarshal concepts: %w", err)
	}

	var stateConcepts, actionConcepts []concept.Concept
	for _, r := range rowsIn {
		c := concept.Concept{ID: r.ID, Definition: r.Definition, Source: concept.Source(r.Source)}
		if r.State {
			stateConcepts = append(stateConcepts, c)
		} else {
			actionConcepts = append(actionConcepts, c)
		}
	}
	return concept.NewUniverse(stateConcepts, actionConcepts)
}

// GetActiveConcepts rebuilds a Universe from the active snapshot.
func (s *Store) GetActiveConcepts() (*concept.Universe, error) {
	var versionID string
	err := s.db.QueryRow(`SELECT version_id FROM active_version WHERE id = 1`).Scan(&versionID)
	if err != nil {
		return nil, fmt.Errorf("get active version: %w", err)
	}
	return s.GetVersionConcepts(versionID)
}

// ListVersions returns the most recent registry snapshots.
func (s *Store) ListVersions(limit int) ([]VersionRecord, error) {
	rows, err := s.db.Query(
		`SELECT version_id, run_id, pass, created_at
		 FROM concept_versions ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	var out []VersionRecord
	for rows.Next() {
		var rec VersionRecord
		var createdStr string
		if err := rows.Scan(&rec.VersionID, &rec.RunID, &rec.Pass, &createdStr); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// #endregion concept-versions
