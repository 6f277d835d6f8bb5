package providers

import (
	"log"

	"github.com/curateworld/eventscout/internal/config"
)

// Build constructs the enabled adapters from configuration, keyed by
// provider name. Disabled providers are skipped with a log line so a
// missing API key is visible at startup.
func Build(cfg config.ProvidersConfig) map[string]Provider {
	out := make(map[string]Provider, 4)

	add := func(name string, pc config.ProviderConfig, mk func(config.ProviderConfig) Provider) {
		if !pc.Enabled {
			log.Printf("[PROVIDERS] %s disabled (no API key)", name)
			return
		}
		out[name] = mk(pc)
		log.Printf("[PROVIDERS] %s enabled (base=%s)", name, pc.BaseURL)
	}

	add("perplexity", cfg.Perplexity, func(pc config.ProviderConfig) Provider { return NewPerplexityClient(pc) })
	add("exa", cfg.Exa, func(pc config.ProviderConfig) Provider { return NewExaClient(pc) })
	add("serpapi", cfg.SerpAPI, func(pc config.ProviderConfig) Provider { return NewSerpAPIClient(pc) })
	add("predicthq", cfg.PredictHQ, func(pc config.ProviderConfig) Provider { return NewPredictHQClient(pc) })

	return out
}
