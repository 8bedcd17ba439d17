package experiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/concept-control/internal/analyzer"
	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/dataset"
	"github.com/danielpatrickdp/concept-control/internal/eval"
	"github.com/danielpatrickdp/concept-control/internal/gate"
	"github.com/danielpatrickdp/concept-control/internal/logging"
	"github.com/danielpatrickdp/concept-control/internal/oracle"
	"github.com/danielpatrickdp/concept-control/internal/policy"
	"github.com/danielpatrickdp/concept-control/internal/reactor"
	"github.com/danielpatrickdp/concept-control/internal/reward"
	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

// #region experiment-struct

// Experiment composes the environment, concept universe, reward model,
// analyzer, and policy into the per-episode training loop. It exclusively
// owns all mutable state; a fixed seed reproduces a full run end to end.
type Experiment struct {
	config   Config
	rng      *rand.Rand
	env      *reactor.Env
	universe *concept.Universe
	model    *reward.Model
	analyzer *analyzer.Analyzer
	policy   *policy.Policy
	harness  *eval.EvalHarness
	tagger   oracle.ConceptTagger

	actionBinding map[string]reactor.Action

	store *tracestore.Store // nil = in-memory only
	runID string
	pass  int
}

// Summary aggregates a finished run.
type Summary struct {
	RunID         string
	Episodes      int
	Meltdowns     int
	AvgReward     float64
	FinalConcepts int
	Created       int
	Pruned        int
}

// #endregion experiment-struct

// #region constructor

// New wires a fully configured experiment. store may be nil; tagger and
// creator are the injected external collaborators.
func New(
	config Config,
	universe *concept.Universe,
	tagger oracle.ConceptTagger,
	creator oracle.ConceptCreator,
	store *tracestore.Store,
) (*Experiment, error) {
	if universe == nil {
		var err error
		universe, err = BaseUniverse()
		if err != nil {
			return nil, fmt.Errorf("base universe: %w", err)
		}
	}
	if tagger == nil || creator == nil {
		return nil, fmt.Errorf("experiment requires both a tagger and a creator")
	}

	binding := ActionBinding()
	for _, ac := range universe.ActionConcepts() {
		if _, ok := binding[ac.ID]; !ok {
			return nil, fmt.Errorf("action concept %s has no environment binding", ac.ID)
		}
	}

	if config.AnalyzeEvery <= 0 {
		config.AnalyzeEvery = 1
	}

	rng := rand.New(rand.NewSource(config.Seed))
	model := reward.NewModel(reward.DefaultConfig())

	anCfg := analyzer.DefaultConfig()
	anCfg.MaxNewConcepts = config.MaxNewConcepts
	anCfg.MaxConcepts = config.MaxConcepts

	return &Experiment{
		config:        config,
		rng:           rng,
		env:           reactor.NewEnv(config.reactorConfig(), rng),
		universe:      universe,
		model:         model,
		analyzer:      analyzer.New(anCfg, universe, model, creator, gate.NewGate(gate.DefaultGateConfig())),
		policy:        policy.New(universe, model, rng, config.EpsGreedy),
		harness:       eval.NewEvalHarness(eval.DefaultEvalConfig()),
		tagger:        tagger,
		actionBinding: binding,
		store:         store,
		runID:         uuid.New().String(),
	}, nil
}

// RunID returns the experiment's run identifier.
func (e *Experiment) RunID() string {
	return e.runID
}

// Universe exposes the live concept schema (for inspection after a run).
func (e *Experiment) Universe() *concept.Universe {
	return e.universe
}

// Model exposes the live reward model.
func (e *Experiment) Model() *reward.Model {
	return e.model
}

// #endregion constructor

// #region run

// Run executes the configured number of episodes. Tagger schema violations
// abort the run: the step's decision is never fabricated from a bad
// payload. Creator failures only skip that pass's discovery.
func (e *Experiment) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: e.runID}

	if e.store != nil {
		cfgJSON, _ := json.Marshal(e.config)
		if err := e.store.CreateRun(e.runID, string(cfgJSON)); err != nil {
			return summary, err
		}
	}

	ds := dataset.New()
	var totalReward float64

	for ep := 0; ep < e.config.Episodes; ep++ {
		episodeID := fmt.Sprintf("ep-%03d", ep)
		e.env.Reset()

		epReward, steps, err := e.runEpisode(ctx, ds, episodeID)
		if err != nil {
			return summary, fmt.Errorf("episode %s: %w", episodeID, err)
		}
		totalReward += epReward
		summary.Episodes++
		if e.env.Meltdown() {
			summary.Meltdowns++
		}
		e.recordEpisode(ds, episodeID, steps, epReward)

		if (ep+1)%e.config.AnalyzeEvery == 0 {
			created, pruned := e.analysisPass(ctx, ds)
			summary.Created += created
			summary.Pruned += pruned
			ds = dataset.New()
		}

		avg := totalReward / float64(summary.Episodes)
		log.Printf("[EXP] episode %s reward=%.3f avg=%.3f meltdown=%v concepts=%d",
			episodeID, epReward, avg, e.env.Meltdown(), e.universe.Size())
	}

	summary.AvgReward = totalReward / float64(summary.Episodes)
	summary.FinalConcepts = e.universe.Size()
	return summary, nil
}

// runEpisode drives one episode: tag → act → step → record.
func (e *Experiment) runEpisode(ctx context.Context, ds *dataset.Dataset, episodeID string) (float64, int, error) {
	var epReward float64
	steps := 0

	for !e.env.Done() {
		obs := e.env.Observe()

		acts, err := e.tagger.TagState(ctx, obs, e.universe)
		if err != nil {
			return epReward, steps, fmt.Errorf("tagger: %w", err)
		}

		actionID, err := e.policy.EpsilonGreedy(acts)
		if err != nil {
			return epReward, steps, err
		}

		res, err := e.env.Step(e.actionBinding[actionID])
		if err != nil {
			return epReward, steps, err
		}

		t := dataset.Transition{
			EpisodeID:   episodeID,
			StepIdx:     steps,
			Observation: obs,
			ActionID:    actionID,
			Activations: acts,
			Reward:      res.Reward,
			Meltdown:    res.Meltdown,
		}
		ds.Append(t)
		e.recordTransition(t)

		epReward += res.Reward
		steps++
	}
	return epReward, steps, nil
}

// #endregion run

// #region analysis-pass

// analysisPass refits the reward model on the accumulated trace, runs
// discovery, then prunes back to budget.
func (e *Experiment) analysisPass(ctx context.Context, ds *dataset.Dataset) (created, pruned int) {
	e.pass++

	returns := ds.BuildDiscountedReturns(e.config.Gamma)
	X, ids, err := ds.FeatureMatrix(e.universe)
	if err != nil {
		log.Printf("[EXP] feature matrix: %v", err)
		return 0, 0
	}
	if err := e.model.Fit(X, returns, ids); err != nil {
		log.Printf("[EXP] reward fit: %v", err)
		return 0, 0
	}

	if e.model.Fitted() {
		evalResult := e.harness.Run(e.model, X, returns)
		log.Printf("[EXP] pass %d model eval: passed=%v %s", e.pass, evalResult.Passed, evalResult.Reason)
	}

	result, err := e.analyzer.Analyze(ctx, ds)
	if err != nil {
		log.Printf("[EXP] discovery error, keeping schema unchanged: %v", err)
	}
	removed := e.analyzer.Prune(result.NewThisPass)

	e.recordAnalysis(ds, result, removed, ids)
	return len(result.Created), len(removed)
}

// #endregion analysis-pass

// #region trace-recording

func (e *Experiment) recordTransition(t dataset.Transition) {
	if e.store == nil {
		return
	}
	err := e.store.RecordTransition(tracestore.TransitionRecord{
		RunID:       e.runID,
		EpisodeID:   t.EpisodeID,
		StepIdx:     t.StepIdx,
		Observation: t.Observation,
		ActionID:    t.ActionID,
		Activations: t.Activations,
		Reward:      t.Reward,
		Meltdown:    t.Meltdown,
	})
	if err != nil {
		log.Printf("[EXP] record transition: %v", err)
	}
}

func (e *Experiment) recordEpisode(ds *dataset.Dataset, episodeID string, steps int, epReward float64) {
	if e.store == nil {
		return
	}
	meltdownStep, melted := ds.MeltdownStep(episodeID)
	if !melted {
		meltdownStep = -1
	}
	err := e.store.RecordEpisode(tracestore.EpisodeRecord{
		RunID:        e.runID,
		EpisodeID:    episodeID,
		Steps:        steps,
		TotalReward:  epReward,
		Meltdown:     melted,
		MeltdownStep: meltdownStep,
	})
	if err != nil {
		log.Printf("[EXP] record episode: %v", err)
	}
}

// recordAnalysis snapshots the registry and logs every pass decision.
func (e *Experiment) recordAnalysis(ds *dataset.Dataset, result analyzer.Result, removed []string, ids []string) {
	if e.store == nil {
		return
	}

	for _, edge := range result.Edges {
		if err := e.store.RecordEdge(e.runID, edge.SourceID, edge.TargetID, edge.Similarity, edge.CreatedID); err != nil {
			log.Printf("[EXP] record edge: %v", err)
		}
	}

	logDecision := func(decision, conceptID, reason, signalsJSON string) {
		err := logging.LogAnalysis(e.store.DB(), logging.AnalysisEntry{
			RunID:       e.runID,
			Pass:        e.pass,
			Decision:    decision,
			ConceptID:   conceptID,
			Reason:      reason,
			SignalsJSON: signalsJSON,
		})
		if err != nil {
			log.Printf("[EXP] analysis log: %v", err)
		}
	}

	if result.Skipped {
		logDecision("skipped", "", result.SkipReason, "")
	}
	for _, edge := range result.Edges {
		if edge.CreatedID == "" {
			continue
		}
		sig, _ := json.Marshal(logging.PairSignals{
			SourceID:   edge.SourceID,
			TargetID:   edge.TargetID,
			Similarity: edge.Similarity,
			TraceRows:  ds.Len(),
		})
		logDecision("created", edge.CreatedID, "", string(sig))
	}
	for _, id := range removed {
		logDecision("pruned", id, "lowest running-average importance over budget", "")
	}

	if len(result.Created) > 0 || len(removed) > 0 {
		if _, err := e.store.SnapshotConcepts(e.runID, e.pass, e.universe); err != nil {
			log.Printf("[EXP] snapshot concepts: %v", err)
		}
	}
	if e.model.Fitted() {
		err := e.store.SaveModelSnapshot(tracestore.ModelSnapshot{
			RunID:      e.runID,
			Pass:       e.pass,
			NFeatures:  e.model.NFeatures(),
			Weights:    e.model.Weights(),
			ConceptIDs: ids,
		})
		if err != nil {
			log.Printf("[EXP] model snapshot: %v", err)
		}
	}
}

// #endregion trace-recording
