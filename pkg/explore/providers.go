package explore

import (
	"context"
	"log/slog"
	"sync"
)

// Provider is one whole provider's exploration: a function that runs its
// own unit group(s) and returns the merged result, or a fatal error that
// invalidated the provider's contribution.
type Provider struct {
	Name string
	Run  func(ctx context.Context) (Result, error)
}

// RunProviders launches every provider concurrently and joins them all. A
// provider's fatal error discards only that provider's contribution and is
// recorded as a failure; the other providers keep running on their own
// contexts and are never cancelled by a sibling.
func RunProviders(ctx context.Context, logger *slog.Logger, providers []Provider) Result {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		mu     sync.Mutex
		merged Result
		wg     sync.WaitGroup
	)
	for _, p := range providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			result, err := p.Run(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("provider exploration aborted",
					"provider", p.Name, "error", err)
				merged.Failures = append(merged.Failures, Failure{
					Provider: p.Name,
					Unit:     "*",
					Err:      err,
					Message:  err.Error(),
				})
				return
			}
			merged.Resources = append(merged.Resources, result.Resources...)
			merged.Failures = append(merged.Failures, result.Failures...)
		}(p)
	}
	wg.Wait()
	return merged
}
