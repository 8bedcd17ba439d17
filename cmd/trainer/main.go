package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/concept-control/internal/experiment"
	"github.com/danielpatrickdp/concept-control/internal/oracle"
	"github.com/danielpatrickdp/concept-control/internal/tracestore"
)

// #region main
func main() {
	dbPath := envOr("CONCEPT_DB", "concept_control.db")
	apiKey := os.Getenv("ORACLE_API_KEY")
	baseURL := os.Getenv("ORACLE_BASE_URL")
	model := os.Getenv("ORACLE_MODEL")
	configPath := envOr("RUN_CONFIG", "")

	cfg := experiment.DefaultConfig()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			log.Fatalf("failed to read run config: %v", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			log.Fatalf("failed to parse run config: %v", err)
		}
	}

	store, err := tracestore.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open trace store: %v", err)
	}
	defer store.Close()

	oracleCfg := oracle.DefaultClientConfig(apiKey)
	if baseURL != "" {
		oracleCfg.BaseURL = baseURL
	}
	if model != "" {
		oracleCfg.Model = model
	}
	client := oracle.NewClient(oracleCfg)

	exp, err := experiment.New(cfg, nil, client, client, store)
	if err != nil {
		log.Fatalf("failed to build experiment: %v", err)
	}

	fmt.Println("Concept Control Trainer ready.")
	fmt.Printf("  DB: %s | Oracle: %s (%s)\n", dbPath, oracleCfg.BaseURL, oracleCfg.Model)
	fmt.Printf("  Episodes: %d | Difficulty: %.1f | Noise: %.1f | Seed: %d\n",
		cfg.Episodes, cfg.Difficulty, cfg.Noise, cfg.Seed)

	summary, err := exp.Run(context.Background())
	if err != nil {
		log.Fatalf("run aborted: %v", err)
	}

	fmt.Printf("\nRun %s complete.\n", summary.RunID)
	fmt.Printf("  episodes=%d meltdowns=%d avg_reward=%.3f\n",
		summary.Episodes, summary.Meltdowns, summary.AvgReward)
	fmt.Printf("  concepts: final=%d created=%d pruned=%d\n",
		summary.FinalConcepts, summary.Created, summary.Pruned)
}

// #endregion main

// #region helpers
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
