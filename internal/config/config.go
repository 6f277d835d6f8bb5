// Package config loads service configuration from the environment.
// All variables use the EVENTSCOUT_ prefix; every field has a working
// default so the service starts with nothing but API keys set.
package config

import (
	"log"
	"os"
	"strconv"
	"time"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig
	Providers ProvidersConfig
	Pipeline  PipelineConfig
	Cache     CacheConfig

	// RulesPath points to a YAML domain-rules document. Empty means
	// the built-in default rule set.
	RulesPath string
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int
	RateLimitPerSec float64
	RateLimitBurst  int
	ShutdownTimeout time.Duration
}

// ProvidersConfig groups the per-provider settings.
type ProvidersConfig struct {
	Perplexity ProviderConfig
	Exa        ProviderConfig
	SerpAPI    ProviderConfig
	PredictHQ  ProviderConfig
}

// ProviderConfig configures one upstream search provider. A provider
// with an empty APIKey is disabled unless explicitly enabled.
type ProviderConfig struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	QPS         float64
	Timeout     time.Duration
	CostPerCall float64
	Enabled     bool
}

// PipelineConfig controls the collection pipeline.
type PipelineConfig struct {
	// MaxInFlight bounds concurrent provider calls.
	MaxInFlight int
	// ResultFloor is the minimum event count below which the next
	// provider tier is tried.
	ResultFloor int
	// DefaultLimit applies when a request specifies no limit.
	DefaultLimit int
	// ProviderTimeout bounds a single provider call.
	ProviderTimeout time.Duration
	// MinConfidence filters normalized events below this confidence.
	MinConfidence float64
}

// CacheConfig controls the in-process result cache.
type CacheConfig struct {
	Size        int
	TTLNonEmpty time.Duration
	TTLEmpty    time.Duration
}

// Load reads the configuration from the environment.
func Load() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvInt("EVENTSCOUT_PORT", 8765),
			RateLimitPerSec: getEnvFloat("EVENTSCOUT_RATE_LIMIT_PER_SEC", 10),
			RateLimitBurst:  getEnvInt("EVENTSCOUT_RATE_LIMIT_BURST", 20),
			ShutdownTimeout: getEnvDuration("EVENTSCOUT_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Providers: ProvidersConfig{
			Perplexity: loadProvider("PERPLEXITY", "https://api.perplexity.ai", 10, 0.005),
			Exa:        loadProvider("EXA", "https://api.exa.ai", 10, 0.0025),
			SerpAPI:    loadProvider("SERPAPI", "https://serpapi.com", 10, 0.01),
			PredictHQ:  loadProvider("PREDICTHQ", "https://api.predicthq.com", 20, 0),
		},
		Pipeline: PipelineConfig{
			MaxInFlight:     getEnvInt("EVENTSCOUT_MAX_IN_FLIGHT", 4),
			ResultFloor:     getEnvInt("EVENTSCOUT_RESULT_FLOOR", 5),
			DefaultLimit:    getEnvInt("EVENTSCOUT_DEFAULT_LIMIT", 20),
			ProviderTimeout: getEnvDuration("EVENTSCOUT_PROVIDER_TIMEOUT", 15*time.Second),
			MinConfidence:   getEnvFloat("EVENTSCOUT_MIN_CONFIDENCE", 0),
		},
		Cache: CacheConfig{
			Size:        getEnvInt("EVENTSCOUT_CACHE_SIZE", 256),
			TTLNonEmpty: getEnvDuration("EVENTSCOUT_CACHE_TTL", 5*time.Minute),
			TTLEmpty:    getEnvDuration("EVENTSCOUT_CACHE_TTL_EMPTY", 30*time.Second),
		},
		RulesPath: getEnv("EVENTSCOUT_RULES_PATH", ""),
	}
	return cfg
}

// loadProvider reads the settings for one provider. The Enabled flag
// defaults to whether an API key is present.
func loadProvider(name, defaultBaseURL string, defaultMaxResults int, defaultCost float64) ProviderConfig {
	apiKey := getEnv("EVENTSCOUT_"+name+"_API_KEY", "")
	return ProviderConfig{
		APIKey:      apiKey,
		BaseURL:     getEnv("EVENTSCOUT_"+name+"_BASE_URL", defaultBaseURL),
		MaxResults:  getEnvInt("EVENTSCOUT_"+name+"_MAX_RESULTS", defaultMaxResults),
		QPS:         getEnvFloat("EVENTSCOUT_"+name+"_QPS", 1),
		Timeout:     getEnvDuration("EVENTSCOUT_"+name+"_TIMEOUT", 15*time.Second),
		CostPerCall: getEnvFloat("EVENTSCOUT_"+name+"_COST_PER_CALL", defaultCost),
		Enabled:     getEnvBool("EVENTSCOUT_"+name+"_ENABLED", apiKey != ""),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %g", key, v, fallback)
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %t", key, v, fallback)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %s", key, v, fallback)
		return fallback
	}
	return d
}
