package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/concept-control/internal/harness"
	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to concept_control.db")
	runID := flag.String("run", "", "run to export")
	outPath := flag.String("out", "", "output fixture JSON path")
	flag.Parse()

	if *dbPath == "" || *runID == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/db --run id --out path/to/fixture.json")
		os.Exit(2)
	}

	if err := run(*dbPath, *runID, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, runID, outPath string) error {
	store, err := tracestore.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	transitions, err := store.ListTransitions(runID)
	if err != nil {
		return err
	}
	if len(transitions) == 0 {
		return fmt.Errorf("run %s has no recorded transitions", runID)
	}

	universe, err := store.GetActiveConcepts()
	if err != nil {
		return fmt.Errorf("active concept registry: %w", err)
	}

	fixture := harness.Fixture{
		Description: fmt.Sprintf("exported from run %s", runID),
		Config: harness.FixtureConfig{
			Gamma: 0.9,
		},
	}
	for _, c := range universe.StateConcepts() {
		fixture.StateConcepts = append(fixture.StateConcepts, harness.FixtureConcept{
			ID: c.ID, Definition: c.Definition, Source: string(c.Source),
		})
	}
	for _, c := range universe.ActionConcepts() {
		fixture.ActionConcepts = append(fixture.ActionConcepts, harness.FixtureConcept{
			ID: c.ID, Definition: c.Definition, Source: string(c.Source),
		})
	}

	// Group transitions into episodes, preserving recorded order.
	var current *harness.FixtureEpisode
	for _, t := range transitions {
		if current == nil || current.EpisodeID != t.EpisodeID {
			if current != nil {
				fixture.Episodes = append(fixture.Episodes, *current)
			}
			current = &harness.FixtureEpisode{EpisodeID: t.EpisodeID}
		}
		acts := make(map[string]int, len(t.Activations))
		for id, v := range t.Activations {
			acts[id] = int(v)
		}
		current.Steps = append(current.Steps, harness.FixtureStep{
			Observation: t.Observation,
			ActionID:    t.ActionID,
			Activations: acts,
			Reward:      t.Reward,
			Meltdown:    t.Meltdown,
		})
	}
	if current != nil {
		fixture.Episodes = append(fixture.Episodes, *current)
	}

	if err := harness.SaveFixture(outPath, fixture); err != nil {
		return err
	}
	fmt.Printf("exported %d episodes (%d steps) to %s\n",
		len(fixture.Episodes), len(transitions), outPath)
	return nil
}

// #endregion export
