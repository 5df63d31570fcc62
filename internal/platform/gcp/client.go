// Package gcp explores Google Cloud resources over the REST APIs: load
// balancing components, Cloud SQL, and Integration Connectors. It also
// carries the link expansion rules for those domains.
package gcp

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/identity"
	"cloud-atlas/pkg/platform"
)

const providerName = "gcp"

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// newClient builds an authorized retrying client against one API host,
// using application default credentials.
func newClient(ctx context.Context, baseURL string) (*platform.HTTPClient, error) {
	authorized, err := google.DefaultClient(ctx, cloudPlatformScope)
	if err != nil {
		return nil, atlaserr.NewAuthError(providerName, err)
	}
	return platform.NewHTTPClient(authorized, baseURL, 2, 30*time.Second), nil
}

// classify maps REST failures onto the discovery error taxonomy.
func classify(unit string, err error) error {
	var status *platform.StatusError
	if stderrors.As(err, &status) {
		switch status.StatusCode {
		case http.StatusForbidden:
			return atlaserr.NewPermissionDeniedError(providerName, unit)
		case http.StatusUnauthorized:
			return atlaserr.NewAuthError(providerName, err)
		case http.StatusBadRequest, http.StatusNotFound:
			return atlaserr.NewBadScopeError(providerName, err.Error())
		}
	}
	return atlaserr.NewExploreError(providerName, unit, err)
}

// itemsOf extracts a list field from an API payload. Providers omit the
// field entirely when a scope has no results, so absence is an empty list,
// never an error.
func itemsOf(payload map[string]interface{}, key string) []map[string]interface{} {
	raw, ok := payload[key].([]interface{})
	if !ok {
		return nil
	}
	items := make([]map[string]interface{}, 0, len(raw))
	for _, entry := range raw {
		if item, ok := entry.(map[string]interface{}); ok {
			items = append(items, item)
		}
	}
	return items
}

func stringField(item map[string]interface{}, key string) string {
	s, _ := item[key].(string)
	return s
}

// resourceFrom assembles a Resource from one API list item keyed by the
// given provider-native unique field.
func resourceFrom(item map[string]interface{}, idField, kind string, meta discovery.Meta) (discovery.Resource, bool) {
	key := stringField(item, idField)
	if key == "" {
		return discovery.Resource{}, false
	}
	if meta.Name == "" {
		meta.Name = stringField(item, "name")
	}
	if meta.Display == "" {
		meta.Display = meta.Name
	}
	meta.Kind = kind
	meta.Platform = providerName
	return discovery.Resource{
		ID:     identity.MakeID(key),
		Meta:   meta,
		Struct: item,
	}, true
}
