package harness

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/concept-control/internal/concept"
)

// correlatedFixture builds a trace where s1 and s2 co-occur every step, so a
// replay discovers exactly the one scripted concept.
func correlatedFixture() Fixture {
	steps := make([]FixtureStep, 4)
	for i := range steps {
		steps[i] = FixtureStep{
			Observation: "both signals hold",
			ActionID:    "act_a",
			Activations: map[string]int{"s1": 1, "s2": 1},
			Reward:      1,
		}
	}
	return Fixture{
		Description: "correlated pair discovery",
		StateConcepts: []FixtureConcept{
			{ID: "s1", Definition: "first"},
			{ID: "s2", Definition: "second"},
		},
		ActionConcepts: []FixtureConcept{
			{ID: "act_a", Definition: "only action"},
		},
		Config:          FixtureConfig{Gamma: 0.9},
		Episodes:        []FixtureEpisode{{EpisodeID: "ep1", Steps: steps}},
		CreatedConcepts: []FixtureConcept{{ID: "llm_combo", Definition: "both at once"}},
	}
}

func TestReplayDiscoversScriptedConcept(t *testing.T) {
	result, err := Replay(correlatedFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.SkipReason)
	}
	if len(result.CreatedIDs) != 1 || result.CreatedIDs[0] != "llm_combo" {
		t.Fatalf("created %v, want [llm_combo]", result.CreatedIDs)
	}
	if result.FinalConcepts != 4 {
		t.Fatalf("final concepts %d, want 4", result.FinalConcepts)
	}
	if result.FitSamples != 4 {
		t.Fatalf("fit samples %d, want 4", result.FitSamples)
	}
}

func TestReplayReturnsDiscounted(t *testing.T) {
	result, err := Replay(correlatedFixture())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	want := []float64{3.439, 2.71, 1.9, 1.0}
	for i := range want {
		if math.Abs(result.Returns[i]-want[i]) > 1e-9 {
			t.Fatalf("returns %v, want %v", result.Returns, want)
		}
	}
}

func TestReplayGammaDefaultsWhenUnset(t *testing.T) {
	f := correlatedFixture()
	f.Config.Gamma = 0
	result, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	// Default gamma 0.9 produces the same discounting as the explicit value.
	if math.Abs(result.Returns[0]-3.439) > 1e-9 {
		t.Fatalf("returns %v with default gamma", result.Returns)
	}
}

func TestReplayHighThresholdCreatesNothing(t *testing.T) {
	f := correlatedFixture()
	f.Config.CorrThreshold = 1.1
	result, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(result.CreatedIDs) != 0 {
		t.Fatalf("created %v above an unreachable threshold", result.CreatedIDs)
	}
}

func TestCheckExpected(t *testing.T) {
	f := correlatedFixture()
	f.Expected = &FixtureExpected{CreatedIDs: []string{"llm_combo"}}
	result, err := Replay(f)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if mismatches := CheckExpected(result, f.Expected); len(mismatches) != 0 {
		t.Fatalf("unexpected mismatches: %v", mismatches)
	}

	f.Expected.CreatedIDs = []string{"llm_other"}
	if mismatches := CheckExpected(result, f.Expected); len(mismatches) == 0 {
		t.Fatal("mismatched expectation should be reported")
	}
	if mismatches := CheckExpected(result, nil); mismatches != nil {
		t.Fatalf("nil expected block should check nothing, got %v", mismatches)
	}
}

func TestScriptedCreatorExhaustionErrors(t *testing.T) {
	c := &ScriptedCreator{}
	parents := [2]concept.Concept{{ID: "a"}, {ID: "b"}}
	if _, err := c.Create(context.Background(), nil, parents, "", nil, nil); err == nil {
		t.Fatal("exhausted script should error")
	}
}

func TestScriptedCreatorDefaultsSource(t *testing.T) {
	c := &ScriptedCreator{Concepts: []concept.Concept{{ID: "llm_x", Definition: "d"}}}
	parents := [2]concept.Concept{{ID: "a"}, {ID: "b"}}
	out, err := c.Create(context.Background(), nil, parents, "", nil, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if out.Source != concept.SourceLLM {
		t.Fatalf("source %q, want llm", out.Source)
	}
}

func TestFixtureRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	f := correlatedFixture()
	f.Expected = &FixtureExpected{CreatedIDs: []string{"llm_combo"}}

	if err := SaveFixture(path, f); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	got, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if got.Description != f.Description || len(got.Episodes) != 1 || len(got.Episodes[0].Steps) != 4 {
		t.Fatalf("fixture lost shape: %+v", got)
	}
	if got.Episodes[0].Steps[0].Activations["s1"] != 1 {
		t.Fatal("activations lost in roundtrip")
	}
	if got.Expected == nil || got.Expected.CreatedIDs[0] != "llm_combo" {
		t.Fatalf("expected block lost: %+v", got.Expected)
	}
}

func TestLoadFixtureValidates(t *testing.T) {
	dir := t.TempDir()

	empty := correlatedFixture()
	empty.Episodes = nil
	path := filepath.Join(dir, "no-episodes.json")
	if err := SaveFixture(path, empty); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("fixture without episodes should fail validation")
	}

	noConcepts := correlatedFixture()
	noConcepts.StateConcepts = nil
	path = filepath.Join(dir, "no-concepts.json")
	if err := SaveFixture(path, noConcepts); err != nil {
		t.Fatalf("SaveFixture: %v", err)
	}
	if _, err := LoadFixture(path); err == nil {
		t.Fatal("fixture without state concepts should fail validation")
	}
}
