package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/dataset"
	"github.com/danielpatrickdp/concept-control/internal/gate"
	"github.com/danielpatrickdp/concept-control/internal/reward"
)

// fakeCreator pops scripted concepts in order and counts calls.
type fakeCreator struct {
	queue []concept.Concept
	calls int
}

func (f *fakeCreator) Create(
	_ context.Context,
	_ *concept.Universe,
	_ [2]concept.Concept,
	_ string,
	_ []string,
	_ []string,
) (concept.Concept, error) {
	f.calls++
	if len(f.queue) == 0 {
		return concept.Concept{}, errors.New("no scripted concepts left")
	}
	c := f.queue[0]
	f.queue = f.queue[1:]
	return c, nil
}

func analyzerUniverse(t *testing.T, states ...concept.Concept) *concept.Universe {
	t.Helper()
	u, err := concept.NewUniverse(states, []concept.Concept{
		{ID: "act_a", Definition: "action", Source: concept.SourceBase},
	})
	if err != nil {
		t.Fatalf("NewUniverse: %v", err)
	}
	return u
}

func baseState(id string) concept.Concept {
	return concept.Concept{ID: id, Definition: "base " + id, Source: concept.SourceBase}
}

func llmState(id string) concept.Concept {
	return concept.Concept{ID: id, Definition: "discovered " + id, Source: concept.SourceLLM}
}

// correlatedTrace records one episode where s1 and s2 are both present at
// every step, so their future-occupancy probes align perfectly.
func correlatedTrace(steps int) *dataset.Dataset {
	ds := dataset.New()
	for i := 0; i < steps; i++ {
		ds.Append(dataset.Transition{
			EpisodeID:   "ep1",
			StepIdx:     i,
			Observation: "both signals hold",
			ActionID:    "act_a",
			Activations: concept.Activations{"s1": concept.Present, "s2": concept.Present},
			Reward:      1,
		})
	}
	return ds
}

func newTestAnalyzer(u *concept.Universe, m *reward.Model, creator *fakeCreator, config Config) *Analyzer {
	return New(config, u, m, creator, gate.NewGate(gate.DefaultGateConfig()))
}

func TestAnalyzeCreatesFromCorrelatedPair(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	creator := &fakeCreator{queue: []concept.Concept{llmState("llm_combo")}}
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	result, err := a.Analyze(context.Background(), correlatedTrace(4))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Skipped {
		t.Fatalf("unexpected skip: %s", result.SkipReason)
	}
	if len(result.Created) != 1 || result.Created[0].ID != "llm_combo" {
		t.Fatalf("created %+v, want [llm_combo]", result.Created)
	}
	if !result.NewThisPass["llm_combo"] {
		t.Fatal("created concept missing from NewThisPass")
	}
	if !u.Has("llm_combo") || !u.IsState("llm_combo") {
		t.Fatal("created concept not appended to the universe")
	}
	if len(result.Edges) != 1 || result.Edges[0].CreatedID != "llm_combo" {
		t.Fatalf("edges %+v", result.Edges)
	}
	if result.Edges[0].Similarity <= 0 {
		t.Fatalf("identical targets should give positive probe cosine, got %v", result.Edges[0].Similarity)
	}
}

func TestAnalyzeTwiceCreatesOnce(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	creator := &fakeCreator{queue: []concept.Concept{llmState("llm_combo"), llmState("llm_extra")}}
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	ds := correlatedTrace(4)
	if _, err := a.Analyze(context.Background(), ds); err != nil {
		t.Fatalf("first Analyze: %v", err)
	}
	second, err := a.Analyze(context.Background(), ds)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if len(second.Created) != 0 {
		t.Fatalf("second pass created %+v, want none", second.Created)
	}
	if creator.calls != 1 {
		t.Fatalf("creator called %d times, want 1", creator.calls)
	}
}

func TestAnalyzeSkipsSingleConcept(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"))
	creator := &fakeCreator{}
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	result, err := a.Analyze(context.Background(), correlatedTrace(4))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Skipped {
		t.Fatal("single-concept universe should skip discovery")
	}
	if creator.calls != 0 {
		t.Fatal("creator must not run on a skipped pass")
	}
}

func TestAnalyzeSkipsEmptyTrace(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), &fakeCreator{}, DefaultConfig())

	result, err := a.Analyze(context.Background(), dataset.New())
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Skipped {
		t.Fatal("empty trace should skip discovery")
	}
}

func TestAnalyzeSkipsConstantTargets(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	creator := &fakeCreator{}
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	// Nothing is ever present, so every future-occupancy target is all zero.
	ds := dataset.New()
	for i := 0; i < 4; i++ {
		ds.Append(dataset.Transition{
			EpisodeID:   "ep1",
			StepIdx:     i,
			Observation: "quiet",
			ActionID:    "act_a",
			Activations: concept.Activations{},
			Reward:      0,
		})
	}

	result, err := a.Analyze(context.Background(), ds)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Skipped {
		t.Fatal("constant targets should skip discovery, not fabricate a concept")
	}
	if creator.calls != 0 {
		t.Fatal("creator must not run when skipping")
	}
}

func TestAnalyzeRespectsThreshold(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	creator := &fakeCreator{queue: []concept.Concept{llmState("llm_combo")}}
	config := DefaultConfig()
	config.CorrThreshold = 1.1 // beyond the cosine range, nothing correlates
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, config)

	result, err := a.Analyze(context.Background(), correlatedTrace(4))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Created) != 0 || creator.calls != 0 {
		t.Fatalf("below-threshold pair reached the creator: %+v", result.Created)
	}
	if len(result.Edges) != 1 || result.Edges[0].CreatedID != "" {
		t.Fatalf("edge should still be recorded without a created id: %+v", result.Edges)
	}
}

func TestGateVetoIsSwallowed(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	// The creator proposes a colliding id; the gate rejects it.
	creator := &fakeCreator{queue: []concept.Concept{llmState("s1")}}
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	result, err := a.Analyze(context.Background(), correlatedTrace(4))
	if err != nil {
		t.Fatalf("a gate veto must not fail the pass: %v", err)
	}
	if len(result.Created) != 0 {
		t.Fatalf("vetoed proposal still created %+v", result.Created)
	}
	if u.Size() != 3 {
		t.Fatalf("universe size %d changed by a vetoed proposal", u.Size())
	}

	// The pair counts as analyzed, so a retry does not re-propose it.
	if _, err := a.Analyze(context.Background(), correlatedTrace(4)); err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if creator.calls != 1 {
		t.Fatalf("creator called %d times, want 1", creator.calls)
	}
}

func TestCreatorErrorSurfaces(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"))
	creator := &fakeCreator{} // empty queue: every call errors
	a := newTestAnalyzer(u, reward.NewModel(reward.DefaultConfig()), creator, DefaultConfig())

	if _, err := a.Analyze(context.Background(), correlatedTrace(4)); err == nil {
		t.Fatal("creator failure should surface as an error")
	}
}

// fitWithImportance fits the model so llm_weak carries zero importance and
// llm_strong carries clear signal.
func fitWithImportance(t *testing.T, m *reward.Model, u *concept.Universe) {
	t.Helper()
	ids := u.ConceptIDs()
	strongIdx, _ := u.IndexOf("llm_strong")

	var X [][]float64
	var g []float64
	for i := 0; i < 6; i++ {
		row := make([]float64, len(ids))
		val := float64(i%2)*2 - 1
		row[strongIdx] = val
		X = append(X, row)
		g = append(g, 3*val)
	}
	if err := m.Fit(X, g, ids); err != nil {
		t.Fatalf("Fit: %v", err)
	}
}

func TestPruneRemovesWeakestLLMConcept(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), llmState("llm_weak"), llmState("llm_strong"))
	m := reward.NewModel(reward.DefaultConfig())
	fitWithImportance(t, m, u)

	config := DefaultConfig()
	config.MaxConcepts = 3 // universe holds 4
	a := newTestAnalyzer(u, m, &fakeCreator{}, config)

	removed := a.Prune(nil)
	if len(removed) != 1 || removed[0] != "llm_weak" {
		t.Fatalf("pruned %v, want [llm_weak]", removed)
	}
	if !u.Has("llm_strong") || u.Has("llm_weak") {
		t.Fatal("prune removed the wrong concept")
	}
}

func TestPruneProtectsNewThisPass(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), llmState("llm_weak"), llmState("llm_strong"))
	m := reward.NewModel(reward.DefaultConfig())
	fitWithImportance(t, m, u)

	config := DefaultConfig()
	config.MaxConcepts = 3
	a := newTestAnalyzer(u, m, &fakeCreator{}, config)

	removed := a.Prune(map[string]bool{"llm_weak": true})
	if len(removed) != 1 || removed[0] != "llm_strong" {
		t.Fatalf("pruned %v, want [llm_strong]", removed)
	}
	if !u.Has("llm_weak") {
		t.Fatal("newly created concept was pruned")
	}
}

func TestPruneSkipsWithoutImportanceStats(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), llmState("llm_a"), llmState("llm_b"))
	m := reward.NewModel(reward.DefaultConfig()) // never fitted

	config := DefaultConfig()
	config.MaxConcepts = 2
	a := newTestAnalyzer(u, m, &fakeCreator{}, config)

	if removed := a.Prune(nil); len(removed) != 0 {
		t.Fatalf("pruned %v without importance stats", removed)
	}
	if u.Size() != 4 {
		t.Fatal("universe changed despite the skip")
	}
}

func TestPruneNeverTouchesBaseConcepts(t *testing.T) {
	u := analyzerUniverse(t, baseState("s1"), baseState("s2"), baseState("s3"))
	m := reward.NewModel(reward.DefaultConfig())
	X := [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}}
	if err := m.Fit(X, []float64{1, 2, 3}, u.ConceptIDs()); err != nil {
		t.Fatalf("Fit: %v", err)
	}

	config := DefaultConfig()
	config.MaxConcepts = 2
	a := newTestAnalyzer(u, m, &fakeCreator{}, config)

	if removed := a.Prune(nil); len(removed) != 0 {
		t.Fatalf("pruned base concepts %v", removed)
	}
}

func TestFutureOccupancyTargets(t *testing.T) {
	states := []concept.Concept{baseState("s1")}
	ds := dataset.New()
	// s1 present only at step 1; episode has 3 steps.
	for i, act := range []concept.Activation{concept.Unknown, concept.Present, concept.Unknown} {
		ds.Append(dataset.Transition{
			EpisodeID:   "ep1",
			StepIdx:     i,
			ActionID:    "act_a",
			Activations: concept.Activations{"s1": act},
		})
	}
	// A second episode where s1 never shows keeps its own zeros.
	ds.Append(dataset.Transition{
		EpisodeID:   "ep2",
		StepIdx:     0,
		ActionID:    "act_a",
		Activations: concept.Activations{},
	})

	targets := futureOccupancy(ds, states)
	want := []float64{1, 0, 0, 0}
	for i := range want {
		if targets[0][i] != want[i] {
			t.Fatalf("targets %v, want %v", targets[0], want)
		}
	}
}

func TestCosineSimilarity(t *testing.T) {
	if s := cosineSimilarity([]float64{1, 0}, []float64{1, 0}); s != 1 {
		t.Fatalf("identical vectors cosine %v, want 1", s)
	}
	if s := cosineSimilarity([]float64{1, 0}, []float64{-1, 0}); s != -1 {
		t.Fatalf("opposite vectors cosine %v, want -1", s)
	}
	if s := cosineSimilarity([]float64{0, 0}, []float64{1, 0}); s != 0 {
		t.Fatalf("zero-norm cosine %v, want 0", s)
	}
	if s := cosineSimilarity([]float64{1}, []float64{1, 0}); s != 0 {
		t.Fatalf("mismatched-length cosine %v, want 0", s)
	}
}
