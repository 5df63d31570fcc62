package gcp

import (
	"fmt"
	"testing"

	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/identity"
	"cloud-atlas/pkg/pathquery"
)

func res(kind, name string, payload map[string]interface{}, meta discovery.Meta) discovery.Resource {
	meta.Name = name
	meta.Display = name
	meta.Kind = kind
	return discovery.Resource{
		ID:     identity.MakeID(kind + "/" + name),
		Meta:   meta,
		Struct: payload,
	}
}

func lbFixture() []discovery.Resource {
	return []discovery.Resource{
		res("global-urlmap", "web", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/urlMaps/web",
		}, discovery.Meta{Project: "proj"}),
		res("global-backend-service", "web-backend", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/backendServices/web-backend",
			"usedBy": []interface{}{
				map[string]interface{}{"reference": "https://compute.googleapis.com/urlMaps/web"},
			},
			"backends": []interface{}{
				map[string]interface{}{"group": "https://compute.googleapis.com/negs/serverless"},
			},
		}, discovery.Meta{Project: "proj"}),
		res("regional-neg", "serverless", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/negs/serverless",
			"cloudRun": map[string]interface{}{"service": "checkout"},
		}, discovery.Meta{Project: "proj", Region: "us-east1"}),
		res("cloudrun", "projects/proj/locations/us-east1/services/checkout", map[string]interface{}{},
			discovery.Meta{Project: "proj", Region: "us-east1"}),
		res("service", "services/checkout-mon", map[string]interface{}{
			"cloudRun": map[string]interface{}{"serviceName": "checkout"},
		}, discovery.Meta{Project: "proj"}),
		res("slo", "services/checkout-mon/serviceLevelObjectives/availability", map[string]interface{}{},
			discovery.Meta{Project: "proj"}),
	}
}

func expand(t *testing.T, resources []discovery.Resource) (*discovery.Discovery, map[string]interface{}) {
	t.Helper()
	d := discovery.New(resources)
	doc, err := d.Serialize()
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}
	if err := ExpandLBLinks(d, doc); err != nil {
		t.Fatalf("lb expansion failed: %v", err)
	}
	if err := ExpandSQLLinks(d, doc); err != nil {
		t.Fatalf("sql expansion failed: %v", err)
	}
	return d, doc
}

func TestURLMapLinksToBackendService(t *testing.T) {
	d, doc := expand(t, lbFixture())

	urlmapID := identity.MakeID("global-urlmap/web")
	links := d.Links[urlmapID]
	if len(links) != 1 {
		t.Fatalf("expected exactly 1 link on the url map, got %d", len(links))
	}
	link := links[0]
	if link.Direction != "out" || link.Kind != "global-backend-service" {
		t.Errorf("unexpected link %+v", link)
	}
	target, ok := pathquery.ResolvePointer(doc, link.Pointer)
	if !ok {
		t.Fatalf("link pointer %q does not resolve", link.Pointer)
	}
	node, _ := target.(map[string]interface{})
	if node["id"] != identity.MakeID("global-backend-service/web-backend") {
		t.Errorf("link points at wrong resource: %v", node["id"])
	}
}

func TestCloudRunChain(t *testing.T) {
	d, _ := expand(t, lbFixture())

	besID := identity.MakeID("global-backend-service/web-backend")
	kinds := map[string]int{}
	for _, link := range d.Links[besID] {
		kinds[link.Kind]++
	}
	// exact-name and containment hops both resolve to the same cloudrun
	// resource; dedup keeps one edge
	if kinds["cloudrun"] != 1 {
		t.Errorf("expected 1 cloudrun link, got %d", kinds["cloudrun"])
	}
	if kinds["service"] != 1 {
		t.Errorf("expected 1 monitored service link, got %d", kinds["service"])
	}
	if kinds["slo"] != 1 {
		t.Errorf("expected 1 slo link three hops out, got %d", kinds["slo"])
	}
}

func TestSQLInstanceLinks(t *testing.T) {
	resources := []discovery.Resource{
		res("instance", "db1", map[string]interface{}{
			"selfLink": "https://sqladmin.googleapis.com/instances/db1",
		}, discovery.Meta{Project: "proj"}),
		res("user", "app", map[string]interface{}{"instance": "db1"}, discovery.Meta{Project: "proj"}),
		res("database", "orders", map[string]interface{}{"instance": "db1"}, discovery.Meta{Project: "proj"}),
	}
	d, _ := expand(t, resources)

	instanceID := identity.MakeID("instance/db1")
	links := d.Links[instanceID]
	if len(links) != 2 {
		t.Fatalf("expected exactly 2 outbound links on the instance, got %d", len(links))
	}
	kinds := map[string]bool{}
	for _, link := range links {
		if link.Direction != "out" {
			t.Errorf("unexpected direction %q", link.Direction)
		}
		kinds[link.Kind] = true
	}
	if !kinds["user"] || !kinds["database"] {
		t.Errorf("expected one user and one database link, got %v", kinds)
	}
}

func TestNEGNetworkLinks(t *testing.T) {
	resources := []discovery.Resource{
		res("zonal-neg", "workers", map[string]interface{}{
			"selfLink":   "https://compute.googleapis.com/negs/workers",
			"network":    "https://compute.googleapis.com/networks/prod-vpc",
			"subnetwork": "https://compute.googleapis.com/subnetworks/prod-subnet",
		}, discovery.Meta{Project: "proj", Zone: "us-east1-b"}),
		res("network", "prod-vpc", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/networks/prod-vpc",
		}, discovery.Meta{Project: "proj"}),
		res("subnet", "prod-subnet", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/subnetworks/prod-subnet",
		}, discovery.Meta{Project: "proj", Region: "us-east1"}),
	}
	d, doc := expand(t, resources)

	negID := identity.MakeID("zonal-neg/workers")
	links := d.Links[negID]
	if len(links) != 2 {
		t.Fatalf("expected network and subnet links on the NEG, got %d", len(links))
	}
	kinds := map[string]string{}
	for _, link := range links {
		target, ok := pathquery.ResolvePointer(doc, link.Pointer)
		if !ok {
			t.Fatalf("link pointer %q does not resolve", link.Pointer)
		}
		node := target.(map[string]interface{})
		kinds[link.Kind], _ = node["id"].(string)
	}
	if kinds["network"] != identity.MakeID("network/prod-vpc") {
		t.Errorf("network link points at %q", kinds["network"])
	}
	if kinds["subnet"] != identity.MakeID("subnet/prod-subnet") {
		t.Errorf("subnet link points at %q", kinds["subnet"])
	}
}

func TestSecurityPolicyLinks(t *testing.T) {
	resources := []discovery.Resource{
		res("global-backend-service", "web-backend", map[string]interface{}{
			"selfLink":       "https://compute.googleapis.com/backendServices/web-backend",
			"securityPolicy": "https://compute.googleapis.com/securityPolicies/edge-armor",
		}, discovery.Meta{Project: "proj"}),
		res("global-securities", "edge-armor", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/securityPolicies/edge-armor",
		}, discovery.Meta{Project: "proj"}),
	}
	d, doc := expand(t, resources)

	besID := identity.MakeID("global-backend-service/web-backend")
	links := d.Links[besID]
	if len(links) != 1 {
		t.Fatalf("expected exactly 1 security policy link, got %d", len(links))
	}
	link := links[0]
	if link.Direction != "out" || link.Kind != "global-securities" {
		t.Errorf("unexpected link %+v", link)
	}
	target, ok := pathquery.ResolvePointer(doc, link.Pointer)
	if !ok {
		t.Fatalf("link pointer %q does not resolve", link.Pointer)
	}
	node := target.(map[string]interface{})
	if node["id"] != identity.MakeID("global-securities/edge-armor") {
		t.Errorf("link points at wrong resource: %v", node["id"])
	}
}

func TestSQLPrivateNetworkLink(t *testing.T) {
	resources := []discovery.Resource{
		res("instance", "db1", map[string]interface{}{
			"selfLink": "https://sqladmin.googleapis.com/instances/db1",
			"settings": map[string]interface{}{
				"ipConfiguration": map[string]interface{}{
					"privateNetwork": "projects/proj/global/networks/prod-vpc",
				},
			},
		}, discovery.Meta{Project: "proj"}),
		res("network", "prod-vpc", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/networks/prod-vpc",
		}, discovery.Meta{Project: "proj"}),
	}
	d, doc := expand(t, resources)

	instanceID := identity.MakeID("instance/db1")
	links := d.Links[instanceID]
	if len(links) != 1 {
		t.Fatalf("expected exactly 1 network link on the instance, got %d", len(links))
	}
	link := links[0]
	if link.Kind != "network" {
		t.Errorf("unexpected link kind %q", link.Kind)
	}
	// the partial URL correlates by its trailing segment only
	target, ok := pathquery.ResolvePointer(doc, link.Pointer)
	if !ok {
		t.Fatalf("link pointer %q does not resolve", link.Pointer)
	}
	node := target.(map[string]interface{})
	if node["id"] != identity.MakeID("network/prod-vpc") {
		t.Errorf("link points at wrong resource: %v", node["id"])
	}
}

func TestExpansionIdempotent(t *testing.T) {
	d, doc := expand(t, lbFixture())
	before := countLinks(d)

	// run every rule again against the already linked discovery
	if err := ExpandLBLinks(d, doc); err != nil {
		t.Fatalf("second expansion failed: %v", err)
	}
	if err := ExpandSQLLinks(d, doc); err != nil {
		t.Fatalf("second expansion failed: %v", err)
	}
	if after := countLinks(d); after != before {
		t.Fatalf("expansion not idempotent: %d links became %d", before, after)
	}
}

func TestExpansionOrderIndependent(t *testing.T) {
	fixture := lbFixture()
	reversed := make([]discovery.Resource, len(fixture))
	for i, r := range fixture {
		reversed[len(fixture)-1-i] = r
	}

	first, firstDoc := expand(t, fixture)
	second, secondDoc := expand(t, reversed)

	if got, want := edgeSet(t, first, firstDoc), edgeSet(t, second, secondDoc); !sameSet(got, want) {
		t.Fatalf("edge sets differ between permutations:\n%v\nvs\n%v", got, want)
	}
}

func TestNoDanglingPointers(t *testing.T) {
	d, doc := expand(t, lbFixture())
	for owner, links := range d.Links {
		for _, link := range links {
			if _, ok := pathquery.ResolvePointer(doc, link.Pointer); !ok {
				t.Errorf("link %s -> %s has dangling pointer %q", owner, link.Kind, link.Pointer)
			}
		}
	}
}

func TestExpansionWithoutCandidatesIsNoOp(t *testing.T) {
	resources := []discovery.Resource{
		res("global-urlmap", "lonely", map[string]interface{}{
			"selfLink": "https://compute.googleapis.com/urlMaps/lonely",
		}, discovery.Meta{Project: "proj"}),
	}
	d, _ := expand(t, resources)
	if countLinks(d) != 0 {
		t.Fatalf("expected no links, got %d", countLinks(d))
	}
}

func countLinks(d *discovery.Discovery) int {
	total := 0
	for _, links := range d.Links {
		total += len(links)
	}
	return total
}

// edgeSet renders links as (owner, direction, kind, target resource id)
// tuples so permutations of the serialized document compare equal.
func edgeSet(t *testing.T, d *discovery.Discovery, doc map[string]interface{}) map[string]bool {
	t.Helper()
	set := map[string]bool{}
	for owner, links := range d.Links {
		for _, link := range links {
			node, ok := pathquery.ResolvePointer(doc, link.Pointer)
			if !ok {
				t.Fatalf("pointer %q does not resolve", link.Pointer)
			}
			targetID := targetResourceID(node)
			set[fmt.Sprintf("%s|%s|%s|%s", owner, link.Direction, link.Kind, targetID)] = true
		}
	}
	return set
}

func targetResourceID(node interface{}) string {
	if m, ok := node.(map[string]interface{}); ok {
		if id, ok := m["id"].(string); ok {
			return id
		}
	}
	return fmt.Sprintf("%v", node)
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}
