package gcp

import (
	"context"
	"fmt"
	"log/slog"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/identity"
	"cloud-atlas/pkg/pathquery"
	"cloud-atlas/pkg/platform"
)

const sqlAdminBaseURL = "https://sqladmin.googleapis.com"

// per-instance fan-out: one users unit and one databases unit per instance
const instanceFanOutCap = 16

// ExploreSQL collects Cloud SQL instances, then their users and databases.
func ExploreSQL(ctx context.Context, project string, logger *slog.Logger) (explore.Result, error) {
	if project == "" {
		return explore.Result{}, atlaserr.NewBadScopeError(providerName, "project is required for Cloud SQL exploration")
	}

	c, err := newClient(ctx, sqlAdminBaseURL)
	if err != nil {
		return explore.Result{}, err
	}

	instances, err := exploreInstances(ctx, c, project)
	if err != nil {
		if atlaserr.IsWarning(err) {
			logger.Warn("instance listing yielded nothing", "provider", providerName, "project", project, "code", atlaserr.Code(err))
			return explore.Result{}, nil
		}
		if atlaserr.IsFatal(err) {
			return explore.Result{}, err
		}
		return explore.Result{Failures: []explore.Failure{{
			Provider: providerName, Unit: "sql-instances", Err: err, Message: err.Error(),
		}}}, nil
	}

	result := explore.Result{Resources: instances}
	if len(instances) == 0 {
		return result, nil
	}

	group := explore.NewGroup(providerName, logger).
		WithMaxWorkers(min(2*len(instances), instanceFanOutCap)).
		WithObserver(metrics.ObserveUnit)
	for _, inst := range instances {
		name := inst.Meta.Name
		group.
			Add("sql-users/"+name, func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreUsers(ctx, c, project, name)
			}).
			Add("sql-databases/"+name, func(ctx context.Context) ([]discovery.Resource, error) {
				return exploreDatabases(ctx, c, project, name)
			})
	}
	children, err := group.Run(ctx)
	if err != nil {
		return explore.Result{}, err
	}
	return explore.Merge(result, children), nil
}

func exploreInstances(ctx context.Context, c *platform.HTTPClient, project string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/instances", project), nil)
	if err != nil {
		return nil, classify("sql-instances", err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		if r, ok := resourceFrom(item, "selfLink", "instance", discovery.Meta{Project: project, Category: "database"}); ok {
			results = append(results, r)
		}
	}
	return results, nil
}

func exploreUsers(ctx context.Context, c *platform.HTTPClient, project, instance string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/instances/%s/users", project, instance), nil)
	if err != nil {
		return nil, classify("sql-users/"+instance, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		name := stringField(item, "name")
		results = append(results, discovery.Resource{
			ID: identity.MakeID(fmt.Sprintf("%s-%s", stringField(item, "instance"), name)),
			Meta: discovery.Meta{
				Name:     name,
				Display:  name,
				Kind:     "user",
				Platform: providerName,
				Category: "database",
				Project:  project,
			},
			Struct: item,
		})
	}
	return results, nil
}

func exploreDatabases(ctx context.Context, c *platform.HTTPClient, project, instance string) ([]discovery.Resource, error) {
	payload, err := c.GetJSON(ctx, fmt.Sprintf("/v1/projects/%s/instances/%s/databases", project, instance), nil)
	if err != nil {
		return nil, classify("sql-databases/"+instance, err)
	}

	var results []discovery.Resource
	for _, item := range itemsOf(payload, "items") {
		name := stringField(item, "name")
		results = append(results, discovery.Resource{
			ID: identity.MakeID(fmt.Sprintf("%s-%s", stringField(item, "instance"), name)),
			Meta: discovery.Meta{
				Name:     name,
				Display:  name,
				Kind:     "database",
				Platform: providerName,
				Category: "database",
				Project:  project,
			},
			Struct: item,
		})
	}
	return results, nil
}

// ExpandSQLLinks correlates the database domain: every instance points at
// the users and databases declaring it as theirs, and at the VPC network
// its private IP configuration names.
func ExpandSQLLinks(d *discovery.Discovery, doc map[string]interface{}) error {
	instances, err := pathquery.Query(doc, "$.resources[?@.meta.kind=='instance'].meta.name")
	if err != nil {
		return err
	}
	for _, inst := range instances {
		ownerID := inst.ResourceID()
		for _, kind := range []string{"user", "database"} {
			sel := fmt.Sprintf("$.resources[?@.meta.kind=='%s' && @.struct.instance=='%s']", kind, inst.Str())
			targets, err := pathquery.Query(doc, sel)
			if err != nil {
				return err
			}
			for _, target := range targets {
				attach(d, ownerID, kind, target)
			}
		}
	}

	networks, err := pathquery.Query(doc,
		"$.resources[?@.meta.kind=='instance'].struct.settings.ipConfiguration.privateNetwork")
	if err != nil {
		return err
	}
	for _, network := range networks {
		// privateNetwork is a partial URL; only its trailing segment names
		// the network resource.
		name := lastPathSegment(network.Str())
		sel := fmt.Sprintf("$.resources[?@.meta.kind=='network' && @.meta.name=='%s']", name)
		targets, err := pathquery.Query(doc, sel)
		if err != nil {
			return err
		}
		for _, target := range targets {
			attach(d, network.ResourceID(), "network", target)
		}
	}
	return nil
}
