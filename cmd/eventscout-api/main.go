package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/curateworld/eventscout/internal/config"
	"github.com/curateworld/eventscout/internal/pipeline"
	"github.com/curateworld/eventscout/internal/providers"
	"github.com/curateworld/eventscout/internal/rules"
	"github.com/curateworld/eventscout/internal/server"
)

func main() {
	rulesPath := flag.String("rules", "", "Path to a YAML domain-rules file (default: built-in rules)")
	flag.Parse()

	cfg := config.Load()
	if *rulesPath != "" {
		cfg.RulesPath = *rulesPath
	}

	ruleSet := rules.Default()
	if cfg.RulesPath != "" {
		loaded, err := rules.Load(cfg.RulesPath)
		if err != nil {
			log.Fatalf("Failed to load rules from %s: %v", cfg.RulesPath, err)
		}
		ruleSet = loaded
		log.Printf("Using domain rules: %s", cfg.RulesPath)
	}

	provs := providers.Build(cfg.Providers)
	if len(provs) == 0 {
		log.Println("Warning: no providers enabled; set at least one EVENTSCOUT_*_API_KEY")
	}

	cache, err := pipeline.NewResultCache(cfg.Cache.Size, cfg.Cache.TTLNonEmpty, cfg.Cache.TTLEmpty)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}

	engine, err := pipeline.NewEngine(pipeline.EngineOptions{
		Providers:  provs,
		Scorer:     rules.NewScorer(ruleSet),
		Cache:      cache,
		Normalizer: pipeline.NewNormalizer(),
		Pipeline:   cfg.Pipeline,
		CostPerCall: map[string]float64{
			"perplexity": cfg.Providers.Perplexity.CostPerCall,
			"exa":        cfg.Providers.Exa.CostPerCall,
			"serpapi":    cfg.Providers.SerpAPI.CostPerCall,
			"predicthq":  cfg.Providers.PredictHQ.CostPerCall,
		},
	})
	if err != nil {
		log.Fatalf("Failed to initialize pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := server.Start(ctx, cfg.Server, engine)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
	log.Printf("eventscout API running at http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")
	cancel()
	time.Sleep(1 * time.Second) // Give in-flight requests time to finish
}
