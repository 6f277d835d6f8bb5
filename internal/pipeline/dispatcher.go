// Package pipeline runs the collection flow: tiered provider fan-out,
// parsing, scoring, deduplication, and response caching.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/curateworld/eventscout/internal/providers"
	"github.com/curateworld/eventscout/pkg/types"
)

// ItemResult is the outcome of one provider call made by Dispatch.
// Results keep the input ordering regardless of completion order.
type ItemResult struct {
	Provider   string
	Candidates []types.RawCandidate
	Err        error
	Elapsed    time.Duration
}

// Dispatch fans a query out to the given providers with at most
// maxInFlight calls running concurrently. Each call gets its own
// timeout; one provider failing or hanging never blocks the others
// past that timeout. A panicking adapter is converted into an error
// result instead of taking the process down.
func Dispatch(ctx context.Context, provs []providers.Provider, q types.Query, maxInFlight int, perCallTimeout time.Duration) []ItemResult {
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	results := make([]ItemResult, len(provs))
	sem := make(chan struct{}, maxInFlight)
	var wg sync.WaitGroup

	for i, p := range provs {
		wg.Add(1)
		go func(i int, p providers.Provider) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = ItemResult{Provider: p.Name(), Err: ctx.Err()}
				return
			}
			defer func() { <-sem }()

			callCtx := ctx
			if perCallTimeout > 0 {
				var cancel context.CancelFunc
				callCtx, cancel = context.WithTimeout(ctx, perCallTimeout)
				defer cancel()
			}

			start := time.Now()
			candidates, err := fetchSafe(callCtx, p, q)
			results[i] = ItemResult{
				Provider:   p.Name(),
				Candidates: candidates,
				Err:        err,
				Elapsed:    time.Since(start),
			}
			if err != nil {
				log.Printf("[DISPATCH] %s failed after %s: %v", p.Name(), results[i].Elapsed.Round(time.Millisecond), err)
			}
		}(i, p)
	}

	wg.Wait()
	return results
}

// fetchSafe calls the provider and converts a panic into an error.
func fetchSafe(ctx context.Context, p providers.Provider, q types.Query) (candidates []types.RawCandidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("provider %s panicked: %v", p.Name(), r)
		}
	}()
	return p.Fetch(ctx, q)
}
