package harness

import (
	"context"
	"fmt"

	"github.com/danielpatrickdp/concept-control/internal/analyzer"
	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/dataset"
	"github.com/danielpatrickdp/concept-control/internal/gate"
	"github.com/danielpatrickdp/concept-control/internal/reward"
)

// #region types

// ReplayResult captures the outcome of replaying one fixture through the
// dataset → reward fit → discovery → pruning pipeline.
type ReplayResult struct {
	Returns       []float64
	FitSamples    int
	CreatedIDs    []string
	PrunedIDs     []string
	Skipped       bool
	SkipReason    string
	FinalConcepts int
}

// #endregion types

// #region scripted-creator

// ScriptedCreator replays a fixed sequence of concepts, one per Create
// call, in order. It satisfies oracle.ConceptCreator.
type ScriptedCreator struct {
	Concepts []concept.Concept
	next     int
}

// Create pops the next scripted concept. Running past the script is an
// error: the fixture under-specified the run.
func (c *ScriptedCreator) Create(
	_ context.Context,
	_ *concept.Universe,
	parents [2]concept.Concept,
	_ string,
	_ []string,
	_ []string,
) (concept.Concept, error) {
	if c.next >= len(c.Concepts) {
		return concept.Concept{}, fmt.Errorf("scripted creator exhausted after %d concepts (pair %s/%s)",
			len(c.Concepts), parents[0].ID, parents[1].ID)
	}
	out := c.Concepts[c.next]
	c.next++
	if out.Source == "" {
		out.Source = concept.SourceLLM
	}
	return out, nil
}

// #endregion scripted-creator

// #region replay

// Replay runs one full analysis pass over the fixture's recorded episodes.
// Operates entirely in memory.
func Replay(f Fixture) (ReplayResult, error) {
	var stateConcepts, actionConcepts []concept.Concept
	for _, fc := range f.StateConcepts {
		stateConcepts = append(stateConcepts, fc.toConcept(concept.SourceBase))
	}
	for _, fc := range f.ActionConcepts {
		actionConcepts = append(actionConcepts, fc.toConcept(concept.SourceBase))
	}
	universe, err := concept.NewUniverse(stateConcepts, actionConcepts)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("build universe: %w", err)
	}

	ds := dataset.New()
	for _, ep := range f.Episodes {
		for i, step := range ep.Steps {
			ds.Append(dataset.Transition{
				EpisodeID:   ep.EpisodeID,
				StepIdx:     i,
				Observation: step.Observation,
				ActionID:    step.ActionID,
				Activations: step.activations(),
				Reward:      step.Reward,
				Meltdown:    step.Meltdown,
			})
		}
	}

	gamma := f.Config.Gamma
	if gamma == 0 {
		gamma = 0.9
	}
	returns := ds.BuildDiscountedReturns(gamma)

	model := reward.NewModel(reward.DefaultConfig())
	X, ids, err := ds.FeatureMatrix(universe)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("feature matrix: %w", err)
	}
	if err := model.Fit(X, returns, ids); err != nil {
		return ReplayResult{}, fmt.Errorf("reward fit: %w", err)
	}

	var scripted []concept.Concept
	for _, fc := range f.CreatedConcepts {
		scripted = append(scripted, fc.toConcept(concept.SourceLLM))
	}
	creator := &ScriptedCreator{Concepts: scripted}

	anCfg := analyzer.DefaultConfig()
	anCfg.CorrThreshold = f.Config.CorrThreshold
	if f.Config.MaxNewConcepts > 0 {
		anCfg.MaxNewConcepts = f.Config.MaxNewConcepts
	}
	if f.Config.MaxConcepts > 0 {
		anCfg.MaxConcepts = f.Config.MaxConcepts
	}
	an := analyzer.New(anCfg, universe, model, creator, gate.NewGate(gate.DefaultGateConfig()))

	result, err := an.Analyze(context.Background(), ds)
	if err != nil {
		return ReplayResult{}, fmt.Errorf("analyze: %w", err)
	}
	pruned := an.Prune(result.NewThisPass)

	out := ReplayResult{
		Returns:       returns,
		FitSamples:    ds.Len(),
		PrunedIDs:     pruned,
		Skipped:       result.Skipped,
		SkipReason:    result.SkipReason,
		FinalConcepts: universe.Size(),
	}
	for _, c := range result.Created {
		out.CreatedIDs = append(out.CreatedIDs, c.ID)
	}
	return out, nil
}

// #endregion replay

// #region check

// CheckExpected compares a replay result against the fixture's expected
// block. Returns one message per mismatch; empty means all good.
func CheckExpected(result ReplayResult, expected *FixtureExpected) []string {
	if expected == nil {
		return nil
	}
	var mismatches []string
	if expected.Skipped != result.Skipped {
		mismatches = append(mismatches, fmt.Sprintf("skipped: want %v, got %v", expected.Skipped, result.Skipped))
	}
	if !sameStrings(expected.CreatedIDs, result.CreatedIDs) {
		mismatches = append(mismatches, fmt.Sprintf("created: want %v, got %v", expected.CreatedIDs, result.CreatedIDs))
	}
	if !sameStrings(expected.PrunedIDs, result.PrunedIDs) {
		mismatches = append(mismatches, fmt.Sprintf("pruned: want %v, got %v", expected.PrunedIDs, result.PrunedIDs))
	}
	return mismatches
}

func sameStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion check
