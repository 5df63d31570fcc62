package gcp

import (
	"fmt"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	"cloud-atlas/pkg/pathquery"
)

// ExpandLBLinks correlates load-balancing resources: url maps to the
// backend services that reference them, NEGs to their networks and subnets,
// security policies, and the backend -> NEG -> Cloud Run -> service -> SLO
// chain. Rules only attach links whose target was found in this snapshot,
// and re-running them is a no-op.
func ExpandLBLinks(d *discovery.Discovery, doc map[string]interface{}) error {
	if err := linkURLMapsToBackendServices(d, doc); err != nil {
		return err
	}
	if err := linkNEGNetworks(d, doc); err != nil {
		return err
	}
	if err := linkBackendGroups(d, doc); err != nil {
		return err
	}
	if err := linkSecurityPolicies(d, doc); err != nil {
		return err
	}
	return linkCloudRunChain(d, doc)
}

// Each urlMap names the backend services using it through usedBy
// references; the link is attached to the url map.
func linkURLMapsToBackendServices(d *discovery.Discovery, doc map[string]interface{}) error {
	services, err := pathquery.Query(doc, "$.resources[?@.meta.kind=='global-backend-service']")
	if err != nil {
		return err
	}
	for _, svc := range services {
		payload, _ := svc.Resource()["struct"].(map[string]interface{})
		usedBy, _ := payload["usedBy"].([]interface{})
		for _, entry := range usedBy {
			used, _ := entry.(map[string]interface{})
			ref, _ := used["reference"].(string)
			if ref == "" {
				continue
			}
			sel := fmt.Sprintf("$.resources[?@.meta.kind=='global-urlmap' && @.struct.selfLink=='%s'].id", ref)
			urlmaps, err := pathquery.Query(doc, sel)
			if err != nil {
				return err
			}
			for _, urlmap := range urlmaps {
				attach(d, urlmap.Str(), "global-backend-service", svc)
			}
		}
	}
	return nil
}

// NEGs point at their VPC network and subnetwork by self link.
func linkNEGNetworks(d *discovery.Discovery, doc map[string]interface{}) error {
	rules := []struct {
		source     string
		field      string
		targetKind string
	}{
		{"global-neg", "subnetwork", "subnet"},
		{"zonal-neg", "network", "network"},
		{"zonal-neg", "subnetwork", "subnet"},
		{"regional-neg", "network", "network"},
	}
	for _, rule := range rules {
		sources, err := pathquery.Query(doc,
			fmt.Sprintf("$.resources[?@.meta.kind=='%s'].struct.%s", rule.source, rule.field))
		if err != nil {
			return err
		}
		for _, src := range sources {
			sel := fmt.Sprintf("$.resources[?@.meta.kind=='%s' && @.struct.selfLink=='%s']",
				rule.targetKind, src.Str())
			targets, err := pathquery.Query(doc, sel)
			if err != nil {
				return err
			}
			for _, target := range targets {
				attach(d, src.ResourceID(), rule.targetKind, target)
			}
		}
	}
	return nil
}

// Backend services reference NEGs through backends[].group self links.
func linkBackendGroups(d *discovery.Discovery, doc map[string]interface{}) error {
	groups, err := pathquery.Query(doc,
		"$.resources[?@.meta.kind=='global-backend-service'].struct.backends.*.group")
	if err != nil {
		return err
	}
	for _, group := range groups {
		ownerID := group.ResourceID()

		sel := fmt.Sprintf("$.resources[?@.meta.kind=='zonal-neg' && @.struct.selfLink=='%s']", group.Str())
		zonalNEGs, err := pathquery.Query(doc, sel)
		if err != nil {
			return err
		}
		for _, neg := range zonalNEGs {
			attach(d, ownerID, "zonal-neg", neg)
		}

		// Serverless NEGs resolve to a Cloud Run service by its full
		// resource name, derived from the NEG's project and region.
		sel = fmt.Sprintf("$.resources[?@.meta.kind=='regional-neg' && @.struct.selfLink=='%s'].struct.cloudRun.service", group.Str())
		services, err := pathquery.Query(doc, sel)
		if err != nil {
			return err
		}
		for _, service := range services {
			negMeta := service.ResourceMeta()
			fullName := fmt.Sprintf("projects/%s/locations/%s/services/%s",
				negMeta["project"], negMeta["region"], service.Str())
			sel := fmt.Sprintf("$.resources[?@.meta.kind=='cloudrun' && @.meta.name=='%s']", fullName)
			runs, err := pathquery.Query(doc, sel)
			if err != nil {
				return err
			}
			for _, run := range runs {
				attach(d, ownerID, "cloudrun", run)
			}
		}
	}
	return nil
}

// Backend services carry at most one Cloud Armor policy self link.
func linkSecurityPolicies(d *discovery.Discovery, doc map[string]interface{}) error {
	rules := []struct {
		source      string
		targetKinds []string
	}{
		{"global-backend-service", []string{"global-securities", "regional-securities"}},
		{"regional-backend-service", []string{"regional-securities"}},
	}
	for _, rule := range rules {
		policies, err := pathquery.Query(doc,
			fmt.Sprintf("$.resources[?@.meta.kind=='%s'].struct.securityPolicy", rule.source))
		if err != nil {
			return err
		}
		for _, policy := range policies {
			for _, kind := range rule.targetKinds {
				sel := fmt.Sprintf("$.resources[?@.meta.kind=='%s' && @.struct.selfLink=='%s']",
					kind, policy.Str())
				targets, err := pathquery.Query(doc, sel)
				if err != nil {
					return err
				}
				for _, target := range targets {
					attach(d, policy.ResourceID(), kind, target)
				}
			}
		}
	}
	return nil
}

// linkCloudRunChain walks three hops: a backend's serverless NEG resolves
// to a Cloud Run service name, which resolves (by loose containment) to the
// cloudrun resource, to the monitored service wrapping it, and finally to
// that service's objectives.
func linkCloudRunChain(d *discovery.Discovery, doc map[string]interface{}) error {
	groups, err := pathquery.Query(doc,
		"$.resources[?@.meta.kind=='global-backend-service'].struct.backends.*.group")
	if err != nil {
		return err
	}
	for _, group := range groups {
		ownerID := group.ResourceID()
		sel := fmt.Sprintf("$.resources[?@.meta.kind=='regional-neg' && @.struct.selfLink=='%s'].struct.cloudRun.service", group.Str())
		names, err := pathquery.Query(doc, sel)
		if err != nil {
			return err
		}
		for _, name := range names {
			svcName := name.Str()
			if svcName == "" {
				continue
			}
			sel := fmt.Sprintf("$.resources[?@.meta.kind=='cloudrun' && @.meta.name contains '%s']", svcName)
			runs, err := pathquery.Query(doc, sel)
			if err != nil {
				return err
			}
			for _, run := range runs {
				attach(d, ownerID, "cloudrun", run)

				sel := fmt.Sprintf("$.resources[?@.meta.kind=='service' && @.struct.cloudRun.serviceName=='%s']", svcName)
				monitored, err := pathquery.Query(doc, sel)
				if err != nil {
					return err
				}
				for _, svc := range monitored {
					attach(d, ownerID, "service", svc)

					meta, _ := svc.Resource()["meta"].(map[string]interface{})
					fullName, _ := meta["name"].(string)
					sel := fmt.Sprintf("$.resources[?@.meta.kind=='slo' && match(@.meta.name, '%s/serviceLevelObjectives/.*')]", fullName)
					slos, err := pathquery.Query(doc, sel)
					if err != nil {
						return err
					}
					for _, slo := range slos {
						attach(d, ownerID, "slo", slo)
					}
				}
			}
		}
	}
	return nil
}

// attach records an outbound link from the owning resource to the matched
// target. Empty owners (a match outside any resource) attach nothing, and
// deduplicated links are not counted.
func attach(d *discovery.Discovery, ownerID, kind string, target pathquery.Match) {
	if ownerID == "" {
		return
	}
	inserted := d.AddLink(ownerID, discovery.Link{
		Direction: "out",
		Kind:      kind,
		Path:      target.Path(),
		Pointer:   target.Pointer(),
	})
	if inserted {
		metrics.CountLink(providerName)
	}
}
