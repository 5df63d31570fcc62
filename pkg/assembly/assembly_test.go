package assembly

import (
	"errors"
	"testing"

	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/explore"
)

func sampleResult() explore.Result {
	return explore.Result{
		Resources: []discovery.Resource{
			{
				ID:     "r-1",
				Meta:   discovery.Meta{Name: "web", Display: "web", Kind: "global-urlmap"},
				Struct: map[string]interface{}{},
			},
			{
				ID:     "r-2",
				Meta:   discovery.Meta{Name: "backend", Display: "backend", Kind: "global-backend-service"},
				Struct: map[string]interface{}{},
			},
		},
		Failures: []explore.Failure{
			{Provider: "gcp", Unit: "instances", Message: "listing timed out"},
		},
	}
}

func linkAll(kind string) Expander {
	return func(d *discovery.Discovery, doc map[string]interface{}) error {
		d.AddLink("r-1", discovery.Link{
			Direction: "out",
			Kind:      kind,
			Path:      "$.resources[1]",
			Pointer:   "/resources/1",
		})
		return nil
	}
}

func TestAssembleRunsEveryExpander(t *testing.T) {
	a := New(nil).
		Register("lb", linkAll("global-backend-service")).
		Register("sql", linkAll("database"))

	d, err := a.Assemble(sampleResult())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(d.Resources) != 2 {
		t.Fatalf("expected 2 resources, got %d", len(d.Resources))
	}
	if len(d.Links["r-1"]) != 2 {
		t.Fatalf("expected links from both expanders, got %v", d.Links["r-1"])
	}
}

func TestAssembleSkipsFailingExpander(t *testing.T) {
	boom := func(d *discovery.Discovery, doc map[string]interface{}) error {
		return errors.New("selector parse error")
	}
	a := New(nil).
		Register("broken", boom).
		Register("lb", linkAll("global-backend-service"))

	d, err := a.Assemble(sampleResult())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(d.Links["r-1"]) != 1 {
		t.Fatalf("expected the healthy expander to still run, got %v", d.Links["r-1"])
	}
}

func TestAssembleRegistrationOrderIrrelevant(t *testing.T) {
	forward := New(nil).
		Register("a", linkAll("database")).
		Register("b", linkAll("user"))
	backward := New(nil).
		Register("b", linkAll("user")).
		Register("a", linkAll("database"))

	d1, err := forward.Assemble(sampleResult())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	d2, err := backward.Assemble(sampleResult())
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}

	kinds := func(d *discovery.Discovery) map[string]bool {
		out := map[string]bool{}
		for _, l := range d.Links["r-1"] {
			out[l.Kind] = true
		}
		return out
	}
	k1, k2 := kinds(d1), kinds(d2)
	if len(k1) != 2 || len(k2) != 2 || !k1["database"] || !k2["database"] || !k1["user"] || !k2["user"] {
		t.Fatalf("permuted registration produced different links: %v vs %v", k1, k2)
	}
}

func TestAssembleEmptyResult(t *testing.T) {
	d, err := New(nil).Register("lb", linkAll("x")).Assemble(explore.Result{})
	if err != nil {
		t.Fatalf("assemble failed: %v", err)
	}
	if len(d.Resources) != 0 {
		t.Fatalf("expected empty graph, got %d resources", len(d.Resources))
	}
}
