package gcp

import (
	"context"
	"fmt"
	"log/slog"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/platform"
)

const connectorsBaseURL = "https://connectors.googleapis.com"

const connectorFanOutCap = 16

// ExploreConnector collects the Integration Connectors fabric for one
// project location: providers, connections, and per-provider connectors.
func ExploreConnector(ctx context.Context, project, location string, logger *slog.Logger) (explore.Result, error) {
	if project == "" || location == "" {
		return explore.Result{}, atlaserr.NewBadScopeError(providerName, "project and location are required for connector exploration")
	}

	c, err := newClient(ctx, connectorsBaseURL)
	if err != nil {
		return explore.Result{}, err
	}

	group := explore.NewGroup(providerName, logger).WithObserver(metrics.ObserveUnit)
	var providers []discovery.Resource
	group.
		Add("connector-providers", func(ctx context.Context) ([]discovery.Resource, error) {
			found, err := exploreConnectorProviders(ctx, c, project, location)
			providers = found
			return found, err
		}).
		Add("connector-connections", func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreConnections(ctx, c, project, location)
		})
	result, err := group.Run(ctx)
	if err != nil {
		return explore.Result{}, err
	}
	if len(providers) == 0 {
		return result, nil
	}

	stage2 := explore.NewGroup(providerName, logger).
		WithMaxWorkers(min(len(providers), connectorFanOutCap)).
		WithObserver(metrics.ObserveUnit)
	for _, p := range providers {
		// provider names come back fully qualified; the list URL wants
		// the bare id
		name := lastPathSegment(p.Meta.Name)
		stage2.Add("connectors/"+name, func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreConnectors(ctx, c, project, location, name)
		})
	}
	connectors, err := stage2.Run(ctx)
	if err != nil {
		return explore.Result{}, err
	}
	return explore.Merge(result, connectors), nil
}

func exploreConnectorProviders(ctx context.Context, c *platform.HTTPClient, project, location string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/locations/%s/providers", project, location), nil)
	if err != nil {
		return nil, classify("connector-providers", err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "providers") {
		meta := discovery.Meta{
			Display: stringField(item, "displayName"),
			Project: project,
			Region:  location,
		}
		if r, ok := resourceFrom(item, "name", "connector-provider", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreConnectors(ctx context.Context, c *platform.HTTPClient, project, location, provider string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/locations/%s/providers/%s/connectors", project, location, provider), nil)
	if err != nil {
		return nil, classify("connectors/"+provider, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "connectors") {
		meta := discovery.Meta{
			Display: stringField(item, "displayName"),
			Project: project,
			Region:  location,
		}
		if r, ok := resourceFrom(item, "name", "connector", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreConnections(ctx context.Context, c *platform.HTTPClient, project, location string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/locations/%s/connections", project, location), nil)
	if err != nil {
		return nil, classify("connector-connections", err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "connections") {
		meta := discovery.Meta{Project: project, Region: location}
		if r, ok := resourceFrom(item, "name", "connector-connection", meta); ok {
			results = append(results, r)
		}
	}
	return results, nil
}
