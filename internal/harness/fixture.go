package harness

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture: a recorded
// trace plus scripted creator outputs, enough to re-run one analysis pass
// deterministically with no model endpoint.
type Fixture struct {
	Description     string           `json:"description"`
	StateConcepts   []FixtureConcept `json:"state_concepts"`
	ActionConcepts  []FixtureConcept `json:"action_concepts"`
	Config          FixtureConfig    `json:"config"`
	Episodes        []FixtureEpisode `json:"episodes"`
	CreatedConcepts []FixtureConcept `json:"created_concepts"`
	Expected        *FixtureExpected `json:"expected,omitempty"`
}

// FixtureConcept is the JSON-serializable concept form.
type FixtureConcept struct {
	ID         string `json:"id"`
	Definition string `json:"definition"`
	Source     string `json:"source,omitempty"`
}

// FixtureConfig bundles the analysis knobs for a replay run.
type FixtureConfig struct {
	Gamma          float64 `json:"gamma"`
	CorrThreshold  float64 `json:"corr_threshold"`
	MaxNewConcepts int     `json:"max_new_concepts"`
	MaxConcepts    int     `json:"max_concepts"`
}

// FixtureEpisode is one recorded episode.
type FixtureEpisode struct {
	EpisodeID string        `json:"episode_id"`
	Steps     []FixtureStep `json:"steps"`
}

// FixtureStep is one recorded transition.
type FixtureStep struct {
	Observation string         `json:"observation"`
	ActionID    string         `json:"action_id"`
	Activations map[string]int `json:"activations"`
	Reward      float64        `json:"reward"`
	Meltdown    bool           `json:"meltdown,omitempty"`
}

// FixtureExpected captures the expected pass outcome.
type FixtureExpected struct {
	CreatedIDs []string `json:"created_ids"`
	PrunedIDs  []string `json:"pruned_ids"`
	Skipped    bool     `json:"skipped"`
}

// #endregion fixture-types

// #region load

// LoadFixture reads and validates a fixture file.
func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture: %w", err)
	}
	if len(f.StateConcepts) == 0 || len(f.ActionConcepts) == 0 {
		return Fixture{}, fmt.Errorf("fixture needs state and action concepts")
	}
	if len(f.Episodes) == 0 {
		return Fixture{}, fmt.Errorf("fixture has no episodes")
	}
	return f, nil
}

// SaveFixture writes a fixture as indented JSON.
func SaveFixture(path string, f Fixture) error {
	raw, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}
	return nil
}

// #endregion load

// #region conversion

func (fc FixtureConcept) toConcept(defaultSource concept.Source) concept.Concept {
	src := defaultSource
	if fc.Source != "" {
		src = concept.Source(fc.Source)
	}
	return concept.Concept{ID: fc.ID, Definition: fc.Definition, Source: src}
}

func (fs FixtureStep) activations() concept.Activations {
	acts := make(concept.Activations, len(fs.Activations))
	for id, v := range fs.Activations {
		acts[id] = concept.Activation(v)
	}
	return acts
}

// #endregion conversion
