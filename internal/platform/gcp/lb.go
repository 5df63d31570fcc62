package gcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/platform"
)

const computeBaseURL = "https://compute.googleapis.com"

// zonal NEG fan-out is one worker per zone, capped against the API
const zoneFanOutCap = 16

var partialSuccess = url.Values{"returnPartialSuccess": {"true"}}

// ExploreLB collects load-balancing components for a project: url maps,
// backend services, and network endpoint groups. Without a location the
// global and zonal variants are explored; with one, the regional variants.
func ExploreLB(ctx context.Context, project, location string, logger *slog.Logger) (explore.Result, error) {
	if project == "" {
		return explore.Result{}, atlaserr.NewBadScopeError(providerName, "project is required for load balancer exploration")
	}

	c, err := newClient(ctx, computeBaseURL)
	if err != nil {
		return explore.Result{}, err
	}

	group := explore.NewGroup(providerName, logger).WithObserver(metrics.ObserveUnit)
	if location == "" {
		group.
			Add("global-urlmaps", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreGlobalURLMaps(ctx, c, project)
			}).
			Add("global-backend-services", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreGlobalBackendServices(ctx, c, project)
			}).
			Add("global-negs", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreGlobalBackendGroups(ctx, c, project)
			})
	} else {
		group.
			Add("regional-urlmaps", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreRegionalURLMaps(ctx, c, project, location)
			}).
			Add("regional-backend-services", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreRegionalBackendServices(ctx, c, project, location)
			}).
			Add("regional-negs", func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreRegionalBackendGroups(ctx, c, project, location)
			})
	}

	result, err := group.Run(ctx)
	if err != nil {
		return explore.Result{}, err
	}
	if location != "" {
		return result, nil
	}

	zonal, err := exploreZonalBackendGroups(ctx, c, project, logger)
	if err != nil {
		return explore.Result{}, err
	}
	return explore.Merge(result, zonal), nil
}

func exploreGlobalURLMaps(ctx context.Context, c *platform.HTTPClient, project string) ([]discovery.Resource, error) {
	const unit = "global-urlmaps"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/global/urlMaps", project), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		if r, ok := resourceFrom(item, "id", "global-urlmap", discovery.Meta{Project: project}); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreGlobalBackendServices(ctx context.Context, c *platform.HTTPClient, project string) ([]discovery.Resource, error) {
	const unit = "global-backend-services"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/global/backendServices", project), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		if r, ok := resourceFrom(item, "id", "global-backend-service", discovery.Meta{Project: project}); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreGlobalBackendGroups(ctx context.Context, c *platform.HTTPClient, project string) ([]discovery.Resource, error) {
	const unit = "global-negs"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/global/networkEndpointGroups", project), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		meta := discovery.Meta{
			Project: project,
			Region:  stringField(item, "region"),
			Zone:    lastPathSegment(stringField(item, "zone")),
		}
		if r, ok := resourceFrom(item, "id", "global-neg", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreRegionalURLMaps(ctx context.Context, c *platform.HTTPClient, project, location string) ([]discovery.Resource, error) {
	const unit = "regional-urlmaps"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/regions/%s/urlMaps", project, location), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		if r, ok := resourceFrom(item, "id", "regional-urlmap", discovery.Meta{Project: project, Region: location}); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreRegionalBackendServices(ctx context.Context, c *platform.HTTPClient, project, location string) ([]discovery.Resource, error) {
	const unit = "regional-backend-services"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/regions/%s/backendServices", project, location), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		meta := discovery.Meta{Project: project, Region: stringField(item, "region")}
		if meta.Region == "" {
			meta.Region = location
		}
		if r, ok := resourceFrom(item, "id", "regional-backend-service", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreRegionalBackendGroups(ctx context.Context, c *platform.HTTPClient, project, location string) ([]discovery.Resource, error) {
	const unit = "regional-negs"
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/regions/%s/networkEndpointGroups", project, location), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		meta := discovery.Meta{
			Project: project,
			Region:  location,
			Zone:    lastPathSegment(stringField(item, "zone")),
		}
		if r, ok := resourceFrom(item, "id", "regional-neg", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

// exploreZonalBackendGroups resolves the project's zones first, then fans
// one unit out per zone.
func exploreZonalBackendGroups(ctx context.Context, c *platform.HTTPClient, project string, logger *slog.Logger) (explore.Result, error) {
	zones, err := listProjectZones(ctx, c, project)
	if err != nil {
		if atlaserr.IsDenied(err) {
			logger.Warn("zone listing denied, skipping zonal NEGs", "provider", providerName, "project", project)
			return explore.Result{}, nil
		}
		return explore.Result{}, err
	}

	group := explore.NewGroup(providerName, logger).
		WithMaxWorkers(min(len(zones), zoneFanOutCap)).
		WithObserver(metrics.ObserveUnit)
	for _, zone := range zones {
		group.Add("zonal-negs/"+zone, func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreZoneBackendGroups(ctx, c, project, zone)
		})
	}
	return group.Run(ctx)
}

func exploreZoneBackendGroups(ctx context.Context, c *platform.HTTPClient, project, zone string) ([]discovery.Resource, error) {
	unit := "zonal-negs/" + zone
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/zones/%s/networkEndpointGroups", project, zone), partialSuccess)
	if err != nil {
		return nil, classify(unit, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		meta := discovery.Meta{
			Project: project,
			Region:  lastPathSegment(stringField(item, "region")),
			Zone:    zone,
		}
		if r, ok := resourceFrom(item, "id", "zonal-neg", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func listProjectZones(ctx context.Context, c *platform.HTTPClient, project string) ([]string, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/compute/v1/projects/%s/zones", project), nil)
	if err != nil {
		return nil, classify("zones", err)
	}

	var zones []string
	for _, item := range itemsOf(payload, "items") {
		if name := stringField(item, "name"); name != "" {
			zones = append(zones, name)
		}
	}
	return zones, nil
}

func lastPathSegment(s string) string {
	if s == "" {
		return ""
	}
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
