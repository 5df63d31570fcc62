// Package explore defines the explorer contract and the orchestrator that
// fans provider queries out and joins their results back into one list.
//
// An explorer is a named unit of collection work. Units belonging to one
// provider run as a Group: every unit is awaited, per-unit failures are
// recorded instead of cancelling siblings, and only fatal errors (bad scope,
// failed authentication) abort the group.
package explore

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/errors"
)

// UnitFunc produces zero or more resources for one scoped query.
type UnitFunc func(ctx context.Context) ([]discovery.Resource, error)

// Unit is a named explorer.
type Unit struct {
	Name string
	Run  UnitFunc
}

// Failure records one unit's unrecovered error.
type Failure struct {
	Provider string `json:"provider"`
	Unit     string `json:"unit"`
	Err      error  `json:"-"`
	Message  string `json:"message"`
}

// Result is a fan-in of every unit's outcome: collected resources plus the
// failures that did not stop the run.
type Result struct {
	Resources []discovery.Resource
	Failures  []Failure
}

// Group runs a set of units for a single provider.
type Group struct {
	provider   string
	units      []Unit
	maxWorkers int
	logger     *slog.Logger
	observe    func(provider, unit, outcome string, d time.Duration, count int)
}

// NewGroup builds an empty group for the named provider.
func NewGroup(provider string, logger *slog.Logger) *Group {
	if logger == nil {
		logger = slog.Default()
	}
	return &Group{provider: provider, logger: logger}
}

// WithMaxWorkers bounds concurrency; zero or negative means one worker per
// unit. Used when fan-out width is driven by discovered cardinality.
func (g *Group) WithMaxWorkers(n int) *Group {
	g.maxWorkers = n
	return g
}

// WithObserver installs a per-unit metrics callback.
func (g *Group) WithObserver(fn func(provider, unit, outcome string, d time.Duration, count int)) *Group {
	g.observe = fn
	return g
}

// Add registers a unit.
func (g *Group) Add(name string, fn UnitFunc) *Group {
	g.units = append(g.units, Unit{Name: name, Run: fn})
	return g
}

// Run launches every unit, waits for all of them, and returns the merged
// result. A unit returning a permission denial contributes an empty result
// and a warning. A fatal error cancels the group's remaining units and is
// returned; anything else is recorded as a Failure and siblings keep
// running.
func (g *Group) Run(ctx context.Context) (Result, error) {
	if len(g.units) == 0 {
		return Result{}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := g.maxWorkers
	if workers <= 0 || workers > len(g.units) {
		workers = len(g.units)
	}

	var (
		mu     sync.Mutex
		result Result
		fatal  error
		wg     sync.WaitGroup
	)

	queue := make(chan Unit)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for unit := range queue {
				g.runUnit(ctx, unit, &mu, &result, &fatal, cancel)
			}
		}()
	}

feed:
	for _, unit := range g.units {
		select {
		case queue <- unit:
		case <-ctx.Done():
			break feed
		}
	}
	close(queue)
	wg.Wait()

	if fatal != nil {
		return Result{}, fatal
	}
	return result, nil
}

func (g *Group) runUnit(ctx context.Context, unit Unit, mu *sync.Mutex, result *Result, fatal *error, cancel context.CancelFunc) {
	start := time.Now()
	resources, err := unit.Run(ctx)
	elapsed := time.Since(start)

	mu.Lock()
	defer mu.Unlock()

	switch {
	case err == nil:
		result.Resources = append(result.Resources, resources...)
		g.emit(unit.Name, "ok", elapsed, len(resources))
	case errors.IsWarning(err):
		g.logger.Warn("unit yielded no result, continuing",
			"provider", g.provider, "unit", unit.Name, "code", errors.Code(err))
		g.emit(unit.Name, "denied", elapsed, 0)
	case errors.IsFatal(err):
		if *fatal == nil {
			*fatal = err
		}
		g.emit(unit.Name, "fatal", elapsed, 0)
		cancel()
	default:
		result.Failures = append(result.Failures, Failure{
			Provider: g.provider,
			Unit:     unit.Name,
			Err:      err,
			Message:  err.Error(),
		})
		g.logger.Error("explorer unit failed",
			"provider", g.provider, "unit", unit.Name, "error", err)
		g.emit(unit.Name, "failed", elapsed, 0)
	}
}

func (g *Group) emit(unit, outcome string, d time.Duration, count int) {
	if g.observe != nil {
		g.observe(g.provider, unit, outcome, d, count)
	}
}

// Merge combines results from independently run groups. Order between
// groups carries no meaning; correlation downstream is order-independent.
func Merge(results ...Result) Result {
	var merged Result
	for _, r := range results {
		merged.Resources = append(merged.Resources, r.Resources...)
		merged.Failures = append(merged.Failures, r.Failures...)
	}
	return merged
}
