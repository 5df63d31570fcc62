package explore

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
)

func resources(ids ...string) []discovery.Resource {
	var out []discovery.Resource
	for _, id := range ids {
		out = append(out, discovery.Resource{ID: id, Meta: discovery.Meta{Name: id, Display: id, Kind: "thing"}})
	}
	return out
}

func TestGroupCollectsAllUnits(t *testing.T) {
	group := NewGroup("test", nil)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("r%d", i)
		group.Add(id, func(ctx context.Context) ([]discovery.Resource, error) {
			return resources(id), nil
		})
	}

	result, err := group.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Resources) != 5 {
		t.Fatalf("expected 5 resources, got %d", len(result.Resources))
	}
	if len(result.Failures) != 0 {
		t.Fatalf("expected no failures, got %d", len(result.Failures))
	}
}

func TestGroupIsolatesUnitFailure(t *testing.T) {
	group := NewGroup("test", nil)
	group.
		Add("ok-1", func(ctx context.Context) ([]discovery.Resource, error) {
			return resources("a"), nil
		}).
		Add("broken", func(ctx context.Context) ([]discovery.Resource, error) {
			return nil, atlaserr.NewExploreError("test", "broken", fmt.Errorf("connection reset"))
		}).
		Add("ok-2", func(ctx context.Context) ([]discovery.Resource, error) {
			return resources("b"), nil
		})

	result, err := group.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Resources) != 2 {
		t.Fatalf("expected 2 resources from surviving units, got %d", len(result.Resources))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("expected exactly 1 recorded failure, got %d", len(result.Failures))
	}
	if result.Failures[0].Unit != "broken" || result.Failures[0].Provider != "test" {
		t.Errorf("failure not attributed to (test, broken): %+v", result.Failures[0])
	}
}

func TestGroupTreatsDenialAsEmpty(t *testing.T) {
	group := NewGroup("test", nil)
	group.
		Add("denied", func(ctx context.Context) ([]discovery.Resource, error) {
			return nil, atlaserr.NewPermissionDeniedError("test", "denied")
		}).
		Add("ok", func(ctx context.Context) ([]discovery.Resource, error) {
			return resources("a"), nil
		})

	result, err := group.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(result.Resources) != 1 {
		t.Fatalf("expected 1 resource, got %d", len(result.Resources))
	}
	if len(result.Failures) != 0 {
		t.Fatalf("denial must not be recorded as failure, got %d", len(result.Failures))
	}
}

func TestGroupFatalAbortsProvider(t *testing.T) {
	group := NewGroup("test", nil).WithMaxWorkers(2)
	group.
		Add("fatal", func(ctx context.Context) ([]discovery.Resource, error) {
			return nil, atlaserr.NewAuthError("test", fmt.Errorf("token expired"))
		}).
		Add("slow", func(ctx context.Context) ([]discovery.Resource, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return resources("slow"), nil
			}
		}).
		Add("after", func(ctx context.Context) ([]discovery.Resource, error) {
			return resources("x"), nil
		})

	result, err := group.Run(context.Background())
	if !atlaserr.IsFatal(err) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(result.Resources) != 0 {
		t.Fatalf("fatal run must discard the provider contribution, got %d resources", len(result.Resources))
	}
}

func TestGroupBoundsWorkers(t *testing.T) {
	const limit = 3
	var inFlight, peak atomic.Int32

	group := NewGroup("test", nil).WithMaxWorkers(limit)
	for i := 0; i < 12; i++ {
		group.Add(fmt.Sprintf("u%d", i), func(ctx context.Context) ([]discovery.Resource, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			return nil, nil
		})
	}
	if _, err := group.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if peak.Load() > limit {
		t.Fatalf("worker bound exceeded: peak %d > %d", peak.Load(), limit)
	}
}

func TestRunProvidersContainsFatal(t *testing.T) {
	providers := []Provider{
		{Name: "healthy", Run: func(ctx context.Context) (Result, error) {
			return Result{Resources: resources("a", "b")}, nil
		}},
		{Name: "doomed", Run: func(ctx context.Context) (Result, error) {
			return Result{}, atlaserr.NewBadScopeError("doomed", "no such project")
		}},
	}

	merged := RunProviders(context.Background(), nil, providers)
	if len(merged.Resources) != 2 {
		t.Fatalf("sibling provider resources lost: got %d", len(merged.Resources))
	}
	if len(merged.Failures) != 1 || merged.Failures[0].Provider != "doomed" {
		t.Fatalf("expected one provider-level failure for doomed, got %+v", merged.Failures)
	}
}

func TestMerge(t *testing.T) {
	a := Result{Resources: resources("a")}
	b := Result{Resources: resources("b"), Failures: []Failure{{Provider: "p", Unit: "u"}}}
	merged := Merge(a, b)
	if len(merged.Resources) != 2 || len(merged.Failures) != 1 {
		t.Fatalf("unexpected merge result: %+v", merged)
	}
}
