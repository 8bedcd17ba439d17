package analyzer

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/dataset"
	"github.com/danielpatrickdp/concept-control/internal/gate"
	"github.com/danielpatrickdp/concept-control/internal/oracle"
	"github.com/danielpatrickdp/concept-control/internal/reward"
)

// #region config

// Config holds discovery and pruning parameters.
type Config struct {
	// CorrThreshold is the cosine similarity above which a probe-weight
	// pair counts as correlated. 0 means any non-negative alignment.
	CorrThreshold float64
	// MaxNewConcepts caps concept creations per analysis pass.
	MaxNewConcepts int
	// MaxConcepts is the universe size budget enforced by pruning.
	MaxConcepts int

	// Probe fit parameters for the future-occupancy classifiers.
	ProbeLearningRate float64
	ProbeIterations   int
}

// DefaultConfig returns the standard analysis parameters.
func DefaultConfig() Config {
	return Config{
		CorrThreshold:     0.0,
		MaxNewConcepts:    2,
		MaxConcepts:       12,
		ProbeLearningRate: 0.1,
		ProbeIterations:   200,
	}
}

// #endregion config

// #region analyzer

// Analyzer grows the concept vocabulary from co-occurrence/future-occupancy
// structure in recorded traces, and prunes weak llm-sourced concepts when
// the universe exceeds its budget.
type Analyzer struct {
	config   Config
	universe *concept.Universe
	model    *reward.Model
	creator  oracle.ConceptCreator
	gate     *gate.Gate

	// analyzedPairs remembers every unordered parent pair that already
	// triggered a creation, for the lifetime of the universe.
	analyzedPairs map[string]bool
}

// New creates an analyzer bound to the universe and reward model it reads.
func New(config Config, u *concept.Universe, m *reward.Model, creator oracle.ConceptCreator, g *gate.Gate) *Analyzer {
	return &Analyzer{
		config:        config,
		universe:      u,
		model:         m,
		creator:       creator,
		gate:          g,
		analyzedPairs: make(map[string]bool),
	}
}

// #endregion analyzer

// #region result

// PairEdge records one analyzed concept pair and its probe-weight cosine.
type PairEdge struct {
	SourceID   string
	TargetID   string
	Similarity float64
	CreatedID  string // empty when the pair produced no concept
}

// Result is the outcome of one discovery pass.
type Result struct {
	Created     []concept.Concept
	NewThisPass map[string]bool
	Edges       []PairEdge
	Skipped     bool
	SkipReason  string
}

// #endregion result

// #region analyze

// Analyze runs one discovery pass over the accumulated trace: fit a
// future-occupancy probe per concept, compare probe weights pairwise, and
// forward correlated, never-before-proposed pairs to the concept creator.
// Re-running on the same trace never duplicates a pair's concept. A trace
// with no variation in any future-occupancy target skips discovery with a
// diagnostic instead of fabricating a concept.
func (a *Analyzer) Analyze(ctx context.Context, ds *dataset.Dataset) (Result, error) {
	result := Result{NewThisPass: make(map[string]bool)}

	states := a.universe.StateConcepts()
	if len(states) < 2 || ds.Len() == 0 {
		result.Skipped = true
		result.SkipReason = "not enough concepts or trace rows"
		log.Printf("[ANALYZER] skipping discovery: %s", result.SkipReason)
		return result, nil
	}

	Z := ds.StateMatrix(a.universe)
	targets := futureOccupancy(ds, states)

	// Fit one probe per concept with a non-constant target.
	probes := make(map[string][]float64, len(states))
	for j, sc := range states {
		if constantColumn(targets[j]) {
			continue
		}
		probes[sc.ID] = a.fitProbe(Z, targets[j])
	}
	if len(probes) == 0 {
		result.Skipped = true
		result.SkipReason = "every future-occupancy target is constant across the trace"
		log.Printf("[ANALYZER] skipping discovery: %s", result.SkipReason)
		return result, nil
	}

	// Pairwise cosine over probe weights, deterministic order.
	ids := make([]string, 0, len(probes))
	for _, sc := range states {
		if _, ok := probes[sc.ID]; ok {
			ids = append(ids, sc.ID)
		}
	}

	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			key := pairKey(ids[i], ids[j])
			if a.analyzedPairs[key] {
				continue
			}
			sim := cosineSimilarity(probes[ids[i]], probes[ids[j]])
			edge := PairEdge{SourceID: ids[i], TargetID: ids[j], Similarity: sim}
			if sim <= a.config.CorrThreshold {
				result.Edges = append(result.Edges, edge)
				continue
			}

			created, err := a.propose(ctx, ds, ids[i], ids[j], sim)
			if err != nil {
				result.Edges = append(result.Edges, edge)
				return result, err
			}
			a.analyzedPairs[key] = true
			if created != nil {
				edge.CreatedID = created.ID
				result.Created = append(result.Created, *created)
				result.NewThisPass[created.ID] = true
			}
			result.Edges = append(result.Edges, edge)

			if len(result.Created) >= a.config.MaxNewConcepts {
				return result, nil
			}
		}
	}
	return result, nil
}

// propose forwards one correlated pair to the creator and admits the result.
// A gate veto is logged and swallowed (the pair still counts as analyzed).
func (a *Analyzer) propose(ctx context.Context, ds *dataset.Dataset, idA, idB string, sim float64) (*concept.Concept, error) {
	ca, _ := a.universe.Get(idA)
	cb, _ := a.universe.Get(idB)
	pos, neg := exampleObservations(ds, idA, idB, 5)

	desc := fmt.Sprintf(
		"states where %q and %q hold tend toward the same near future (probe cosine %.3f)",
		idA, idB, sim,
	)

	created, err := a.creator.Create(ctx, a.universe, [2]concept.Concept{ca, cb}, desc, pos, neg)
	if err != nil {
		return nil, fmt.Errorf("concept creator for pair (%s, %s): %w", idA, idB, err)
	}

	decision := a.gate.Admit(a.universe, created)
	if decision.Vetoed {
		log.Printf("[ANALYZER] creator output for pair (%s, %s) rejected: %s", idA, idB, decision.Reason)
		return nil, nil
	}
	if err := a.universe.AddStateConcept(created); err != nil {
		return nil, fmt.Errorf("append created concept %s: %w", created.ID, err)
	}
	log.Printf("[ANALYZER] created concept %s from pair (%s, %s) sim=%.3f", created.ID, idA, idB, sim)
	return &created, nil
}

// #endregion analyze

// #region prune

// Prune removes llm-sourced STATE concepts with the lowest running-average
// importance, one at a time, until the universe is within budget. Concepts
// created in the current pass are never pruned; they get at least one full
// cycle to earn importance. Without importance statistics pruning is
// skipped entirely.
func (a *Analyzer) Prune(newThisPass map[string]bool) []string {
	var removed []string
	if !a.model.HasImportance() {
		if a.universe.Size() > a.config.MaxConcepts {
			log.Printf("[ANALYZER] over budget (%d > %d) but no importance stats yet, skipping prune",
				a.universe.Size(), a.config.MaxConcepts)
		}
		return removed
	}

	for a.universe.Size() > a.config.MaxConcepts {
		victim, ok := a.pruneCandidate(newThisPass)
		if !ok {
			break
		}
		if err := a.universe.Remove(victim); err != nil {
			log.Printf("[ANALYZER] prune %s: %v", victim, err)
			break
		}
		log.Printf("[ANALYZER] pruned concept %s (universe now %d)", victim, a.universe.Size())
		removed = append(removed, victim)
	}
	return removed
}

// pruneCandidate picks the eligible llm STATE concept with the lowest
// average importance. Ties break toward the earlier-registered concept.
func (a *Analyzer) pruneCandidate(newThisPass map[string]bool) (string, bool) {
	bestID := ""
	bestScore := 0.0
	for _, sc := range a.universe.StateConcepts() {
		if sc.Source != concept.SourceLLM || newThisPass[sc.ID] {
			continue
		}
		score, ok := a.model.Importance(sc.ID)
		if !ok {
			continue
		}
		if bestID == "" || score < bestScore {
			bestID = sc.ID
			bestScore = score
		}
	}
	return bestID, bestID != ""
}

// #endregion prune

// #region targets

// futureOccupancy builds, per STATE concept, the binary target "this
// concept is present at some later step of the same episode". Column order
// follows the given concept list.
func futureOccupancy(ds *dataset.Dataset, states []concept.Concept) [][]float64 {
	trans := ds.Transitions()
	targets := make([][]float64, len(states))
	for j := range states {
		targets[j] = make([]float64, len(trans))
	}

	// Scan each episode backward carrying "seen later" per concept.
	byEpisode := make(map[string][]int)
	var order []string
	for i, t := range trans {
		if _, ok := byEpisode[t.EpisodeID]; !ok {
			order = append(order, t.EpisodeID)
		}
		byEpisode[t.EpisodeID] = append(byEpisode[t.EpisodeID], i)
	}
	for _, ep := range order {
		idxs := byEpisode[ep]
		seenLater := make([]bool, len(states))
		for k := len(idxs) - 1; k >= 0; k-- {
			i := idxs[k]
			for j, sc := range states {
				if seenLater[j] {
					targets[j][i] = 1
				}
				if trans[i].Activations.Value(sc.ID) == concept.Present {
					seenLater[j] = true
				}
			}
		}
	}
	return targets
}

func constantColumn(col []float64) bool {
	for _, v := range col[1:] {
		if v != col[0] {
			return false
		}
	}
	return true
}

// #endregion targets

// #region probe

// fitProbe trains a small logistic classifier from the full state rows to a
// binary target via deterministic full-batch gradient descent. Only the
// weight direction matters downstream.
func (a *Analyzer) fitProbe(Z [][]float64, y []float64) []float64 {
	cols := 0
	if len(Z) > 0 {
		cols = len(Z[0])
	}
	w := make([]float64, cols)
	bias := 0.0
	n := float64(len(Z))

	grad := make([]float64, cols)
	for it := 0; it < a.config.ProbeIterations; it++ {
		for j := range grad {
			grad[j] = 0
		}
		biasGrad := 0.0
		for i, row := range Z {
			z := bias
			for j, x := range row {
				z += w[j] * x
			}
			err := sigmoid(z) - y[i]
			biasGrad += err
			for j, x := range row {
				grad[j] += err * x
			}
		}
		for j := range w {
			w[j] -= a.config.ProbeLearningRate * grad[j] / n
		}
		bias -= a.config.ProbeLearningRate * biasGrad / n
	}
	return w
}

// #endregion probe

// #region examples

// exampleObservations gathers up to limit observations where both concepts
// are explicitly present (matching) and where neither is (non-matching).
func exampleObservations(ds *dataset.Dataset, idA, idB string, limit int) (pos, neg []string) {
	for _, t := range ds.Transitions() {
		av := t.Activations.Value(idA)
		bv := t.Activations.Value(idB)
		switch {
		case av == concept.Present && bv == concept.Present:
			if len(pos) < limit {
				pos = append(pos, t.Observation)
			}
		case av != concept.Present && bv != concept.Present:
			if len(neg) < limit {
				neg = append(neg, t.Observation)
			}
		}
		if len(pos) >= limit && len(neg) >= limit {
			break
		}
	}
	return pos, neg
}

// #endregion examples

// #region helpers

func pairKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return ids[0] + "|" + ids[1]
}

// cosineSimilarity between two probe weight vectors. Zero for mismatched or
// zero-norm inputs.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// #endregion helpers
