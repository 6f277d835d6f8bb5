// Package providers contains the upstream search adapters. Each
// adapter turns one provider's wire format into RawCandidates and
// hides the provider's auth, rate limiting, and failure handling.
package providers

import (
	"context"

	"github.com/curateworld/eventscout/pkg/types"
)

// CallStats is lifetime call accounting for one adapter.
type CallStats struct {
	Calls    uint64  `json:"calls"`
	Failures uint64  `json:"failures"`
	CostUSD  float64 `json:"costUsd"`
}

// Provider is the interface every upstream adapter implements.
type Provider interface {
	// Name returns the stable provider identifier (see types.Source*).
	Name() string

	// Fetch runs one search and returns raw candidates. Candidates are
	// unvalidated; parsing and scoring happen downstream.
	Fetch(ctx context.Context, q types.Query) ([]types.RawCandidate, error)

	// HealthCheck verifies the provider is reachable and authorized.
	HealthCheck(ctx context.Context) error
}

// StatsReporter is implemented by adapters that track call accounting.
type StatsReporter interface {
	Stats() CallStats
}
