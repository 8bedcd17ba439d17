package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/concept-control/internal/concept"
	"github.com/danielpatrickdp/concept-control/internal/experiment"
	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

// #region seed-file

// seedFile is the YAML shape of a concept seed file.
type seedFile struct {
	State []struct {
		ID         string `yaml:"id"`
		Definition string `yaml:"definition"`
	} `yaml:"state"`
	Action []struct {
		ID         string `yaml:"id"`
		Definition string `yaml:"definition"`
	} `yaml:"action"`
}

// #endregion seed-file

// #region main

func main() {
	dbPath := flag.String("db", "concept_control.db", "path to concept_control.db")
	seedPath := flag.String("seed", "", "YAML concept seed file (default: built-in base vocabulary)")
	flag.Parse()

	fmt.Println("=== Concept Bootstrap Tool ===")
	fmt.Printf("  DB: %s\n", *dbPath)

	universe, err := buildUniverse(*seedPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	store, err := tracestore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.CreateRun("bootstrap", "{}"); err != nil {
		fmt.Fprintf(os.Stderr, "create bootstrap run: %v\n", err)
		os.Exit(1)
	}
	versionID, err := store.SnapshotConcepts("bootstrap", 0, universe)
	if err != nil {
		fmt.Fprintf(os.Stderr, "snapshot: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("seeded %d concepts (%d state, %d action) as version %s\n",
		universe.Size(), len(universe.StateConcepts()), len(universe.ActionConcepts()), versionID)
}

// #endregion main

// #region build-universe

func buildUniverse(seedPath string) (*concept.Universe, error) {
	if seedPath == "" {
		return experiment.BaseUniverse()
	}

	raw, err := os.ReadFile(seedPath)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	var stateConcepts, actionConcepts []concept.Concept
	for _, c := range seed.State {
		stateConcepts = append(stateConcepts, concept.Concept{
			ID: c.ID, Definition: c.Definition, Source: concept.SourceBase,
		})
	}
	for _, c := range seed.Action {
		actionConcepts = append(actionConcepts, concept.Concept{
			ID: c.ID, Definition: c.Definition, Source: concept.SourceBase,
		})
	}
	return concept.NewUniverse(stateConcepts, actionConcepts)
}

// #endregion build-universe
