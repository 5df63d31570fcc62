// Package aws explores AWS resources. ECR is covered today: repositories
// first, then one unit per repository enumerating its images.
package aws

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/smithy-go"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/identity"
)

const providerName = "aws"

// stage-2 fan-out is one worker per repository, capped against the API
const imageFanOutCap = 16

// ExploreECR collects ECR repositories and their images for one region.
func ExploreECR(ctx context.Context, region string, logger *slog.Logger) (explore.Result, error) {
	if region == "" {
		return explore.Result{}, atlaserr.NewBadScopeError(providerName, "region is required for ECR exploration")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return explore.Result{}, atlaserr.NewAuthError(providerName, err)
	}
	client := ecr.NewFromConfig(cfg)

	repositories, err := exploreRepositories(ctx, client)
	if err != nil {
		if classified := classify("repositories", err); atlaserr.IsWarning(classified) {
			logger.Warn("repository listing denied", "provider", providerName, "region", region)
			return explore.Result{}, nil
		} else if atlaserr.IsFatal(classified) {
			return explore.Result{}, classified
		}
		return explore.Result{Failures: []explore.Failure{{
			Provider: providerName, Unit: "repositories", Err: err, Message: err.Error(),
		}}}, nil
	}

	result := explore.Result{Resources: repositories}
	if len(repositories) == 0 {
		return result, nil
	}

	group := explore.NewGroup(providerName, logger).
		WithMaxWorkers(min(len(repositories), imageFanOutCap)).
		WithObserver(metrics.ObserveUnit)
	for _, repo := range repositories {
		registryID, _ := repo.Struct["registryId"].(string)
		repositoryName, _ := repo.Struct["repositoryName"].(string)
		group.Add("images/"+repositoryName, func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreImages(ctx, client, registryID, repositoryName)
		})
	}
	images, err := group.Run(ctx)
	if err != nil {
		return explore.Result{}, err
	}
	return explore.Merge(result, images), nil
}

func exploreRepositories(ctx context.Context, client *ecr.Client) ([]discovery.Resource, error) {
	var results []discovery.Resource

	paginator := ecr.NewDescribeRepositoriesPaginator(client, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, repo := range page.Repositories {
			payload, err := discovery.StructOf(repo)
			if err != nil {
				return nil, err
			}
			name := aws.ToString(repo.RepositoryName)
			results = append(results, discovery.Resource{
				ID: identity.MakeID(aws.ToString(repo.RepositoryArn)),
				Meta: discovery.Meta{
					Name:     name,
					Display:  name,
					Kind:     "repository",
					Platform: providerName,
					Category: "registry",
				},
				Struct: payload,
			})
		}
	}
	return results, nil
}

func exploreImages(ctx context.Context, client *ecr.Client, registryID, repositoryName string) ([]discovery.Resource, error) {
	input := &ecr.DescribeImagesInput{RepositoryName: &repositoryName}
	if registryID != "" {
		input.RegistryId = &registryID
	}

	var results []discovery.Resource
	paginator := ecr.NewDescribeImagesPaginator(client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify("images/"+repositoryName, err)
		}
		for _, image := range page.ImageDetails {
			payload, err := discovery.StructOf(image)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("%s/%s", aws.ToString(image.RegistryId), aws.ToString(image.RepositoryName))
			results = append(results, discovery.Resource{
				ID: identity.MakeID(aws.ToString(image.ImageDigest)),
				Meta: discovery.Meta{
					Name:     name,
					Display:  name,
					Kind:     "image",
					Platform: providerName,
					Category: "registry",
				},
				Struct: payload,
			})
		}
	}
	return results, nil
}

// classify maps AWS API errors onto the discovery error taxonomy.
func classify(unit string, err error) error {
	var apiErr smithy.APIError
	if stderrors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDeniedException", "AccessDenied":
			return atlaserr.NewPermissionDeniedError(providerName, unit)
		case "ExpiredTokenException", "UnrecognizedClientException", "InvalidClientTokenId":
			return atlaserr.NewAuthError(providerName, err)
		}
	}
	return atlaserr.NewExploreError(providerName, unit, err)
}
