package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/concept-control/internal/harness"
)

// #region main

func main() {
	fixturePath := flag.String("fixture", "", "path to fixture JSON")
	verbose := flag.Bool("v", false, "print per-step discounted returns")
	flag.Parse()

	if *fixturePath == "" {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json [-v]")
		os.Exit(2)
	}

	os.Exit(run(*fixturePath, *verbose))
}

// #endregion main

// #region run

func run(fixturePath string, verbose bool) int {
	fixture, err := harness.LoadFixture(fixturePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	fmt.Printf("=== Replay: %s ===\n", fixture.Description)
	fmt.Printf("  episodes=%d state_concepts=%d scripted_creations=%d\n",
		len(fixture.Episodes), len(fixture.StateConcepts), len(fixture.CreatedConcepts))

	result, err := harness.Replay(fixture)
	if err != nil {
		fmt.Fprintf(os.Stderr, "replay failed: %v\n", err)
		return 1
	}

	if verbose {
		for i, g := range result.Returns {
			fmt.Printf("  step %3d  G=%.4f\n", i, g)
		}
	}

	fmt.Printf("\nfit_samples=%d skipped=%v\n", result.FitSamples, result.Skipped)
	if result.Skipped {
		fmt.Printf("skip_reason: %s\n", result.SkipReason)
	}
	fmt.Printf("created=%v pruned=%v final_concepts=%d\n",
		result.CreatedIDs, result.PrunedIDs, result.FinalConcepts)

	mismatches := harness.CheckExpected(result, fixture.Expected)
	if len(mismatches) > 0 {
		fmt.Println("\nEXPECTATION MISMATCHES:")
		for _, m := range mismatches {
			fmt.Printf("  ✗ %s\n", m)
		}
		return 1
	}
	if fixture.Expected != nil {
		fmt.Println("\nall expectations met ✓")
	}
	return 0
}

// #endregion run
