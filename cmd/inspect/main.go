package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to concept_control.db")
	runID := flag.String("run", "", "inspect one run: episodes, edges, model")
	last := flag.Int("last", 20, "show N most recent runs/versions")
	versions := flag.Bool("versions", false, "list concept registry versions")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/concept_control.db [--run id] [--versions] [--last N] [--json]")
		os.Exit(2)
	}

	store, err := tracestore.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *runID != "":
		err = runDetailMode(store, *runID, *jsonOut)
	case *versions:
		err = runVersionsMode(store, *last, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

func runListMode(store *tracestore.Store, last int, jsonOut bool) error {
	runs, err := store.ListRuns(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(runs)
	}

	fmt.Printf("%-38s %-25s %s\n", "RUN", "CREATED", "CONFIG")
	for _, r := range runs {
		cfg := r.ConfigJSON
		if len(cfg) > 60 {
			cfg = cfg[:60] + "..."
		}
		fmt.Printf("%-38s %-25s %s\n", r.RunID, r.CreatedAt.Format("2006-01-02 15:04:05"), cfg)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

func runDetailMode(store *tracestore.Store, runID string, jsonOut bool) error {
	episodes, err := store.ListEpisodes(runID)
	if err != nil {
		return err
	}
	edges, err := store.ListEdges(runID)
	if err != nil {
		return err
	}

	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(map[string]interface{}{
			"episodes": episodes,
			"edges":    edges,
		})
	}

	fmt.Printf("=== Run %s ===\n\n", runID)
	fmt.Printf("%-10s %6s %12s %9s %s\n", "EPISODE", "STEPS", "REWARD", "MELTDOWN", "AT")
	for _, ep := range episodes {
		at := "-"
		if ep.Meltdown {
			at = fmt.Sprintf("%d", ep.MeltdownStep)
		}
		fmt.Printf("%-10s %6d %12.3f %9v %s\n", ep.EpisodeID, ep.Steps, ep.TotalReward, ep.Meltdown, at)
	}

	fmt.Printf("\n%-20s %-20s %10s %s\n", "SOURCE", "TARGET", "COSINE", "CREATED")
	for _, e := range edges {
		created := "-"
		if e.CreatedID != "" {
			created = e.CreatedID
		}
		fmt.Printf("%-20s %-20s %10.4f %s\n", e.SourceID, e.TargetID, e.Similarity, created)
	}

	snap, err := store.LatestModelSnapshot(runID)
	if err == nil {
		fmt.Printf("\nlatest model: pass=%d n_features=%d\n", snap.Pass, snap.NFeatures)
		for i, id := range snap.ConceptIDs {
			if i < len(snap.Weights) {
				fmt.Printf("  %-24s %+.4f\n", id, snap.Weights[i])
			}
		}
	}
	return nil
}

// #endregion detail-mode

// #region versions-mode

func runVersionsMode(store *tracestore.Store, last int, jsonOut bool) error {
	versions, err := store.ListVersions(last)
	if err != nil {
		return err
	}
	if jsonOut {
		return json.NewEncoder(os.Stdout).Encode(versions)
	}

	fmt.Printf("%-38s %-38s %5s %s\n", "VERSION", "RUN", "PASS", "CREATED")
	for _, v := range versions {
		fmt.Printf("%-38s %-38s %5d %s\n", v.VersionID, v.RunID, v.Pass, v.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

// #endregion versions-mode
