// Package k8s explores a Kubernetes cluster: nodes, pods, services, and
// ingresses across all namespaces. Payloads are stored in their generic
// JSON form so selectors can reach into labels and specs regardless of
// object kind.
package k8s

import (
	"context"
	"fmt"
	"log/slog"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"cloud-atlas/internal/metrics"
	"cloud-atlas/pkg/discovery"
	atlaserr "cloud-atlas/pkg/errors"
	"cloud-atlas/pkg/explore"
	"cloud-atlas/pkg/identity"
	"cloud-atlas/pkg/pathquery"
)

const providerName = "k8s"

// Explore lists cluster resources using the given kubeconfig path, falling
// back to in-cluster configuration when the path is empty.
func Explore(ctx context.Context, kubeconfig string, logger *slog.Logger) (explore.Result, error) {
	cfg, err := buildConfig(kubeconfig)
	if err != nil {
		return explore.Result{}, atlaserr.NewAuthError(providerName, err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return explore.Result{}, atlaserr.NewAuthError(providerName, err)
	}

	group := explore.NewGroup(providerName, logger).WithObserver(metrics.ObserveUnit)
	group.
		Add("nodes", func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreNodes(ctx, clientset)
		}).
		Add("pods", func(ctx context.Context) ([]discovery.Resource, error) {
			return explorePods(ctx, clientset)
		}).
		Add("services", func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreServices(ctx, clientset)
		}).
		Add("ingresses", func(ctx context.Context) ([]discovery.Resource, error) {
			return exploreIngresses(ctx, clientset)
		})
	return group.Run(ctx)
}

func buildConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig != "" {
		return clientcmd.BuildConfigFromFlags("", kubeconfig)
	}
	return rest.InClusterConfig()
}

func exploreNodes(ctx context.Context, clientset kubernetes.Interface) ([]discovery.Resource, error) {
	list, err := clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("nodes", err)
	}

	var results []discovery.Resource
	for i := range list.Items {
		r, err := resourceFor(&list.Items[i], "k8s/node", &list.Items[i].ObjectMeta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func explorePods(ctx context.Context, clientset kubernetes.Interface) ([]discovery.Resource, error) {
	list, err := clientset.CoreV1().Pods(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("pods", err)
	}

	var results []discovery.Resource
	for i := range list.Items {
		r, err := resourceFor(&list.Items[i], "k8s/pod", &list.Items[i].ObjectMeta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func exploreServices(ctx context.Context, clientset kubernetes.Interface) ([]discovery.Resource, error) {
	list, err := clientset.CoreV1().Services(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("services", err)
	}

	var results []discovery.Resource
	for i := range list.Items {
		r, err := resourceFor(&list.Items[i], "k8s/service", &list.Items[i].ObjectMeta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func exploreIngresses(ctx context.Context, clientset kubernetes.Interface) ([]discovery.Resource, error) {
	list, err := clientset.NetworkingV1().Ingresses(metav1.NamespaceAll).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, classify("ingresses", err)
	}

	var results []discovery.Resource
	for i := range list.Items {
		r, err := resourceFor(&list.Items[i], "k8s/ingress", &list.Items[i].ObjectMeta)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

func resourceFor(obj interface{}, kind string, meta *metav1.ObjectMeta) (discovery.Resource, error) {
	payload, err := discovery.StructOf(obj)
	if err != nil {
		return discovery.Resource{}, err
	}
	return discovery.Resource{
		ID: identity.MakeID(string(meta.UID)),
		Meta: discovery.Meta{
			Name:     meta.Name,
			Display:  meta.Name,
			Kind:     kind,
			Platform: providerName,
		},
		Struct: payload,
	}, nil
}

func classify(unit string, err error) error {
	switch {
	case apierrors.IsForbidden(err):
		return atlaserr.NewPermissionDeniedError(providerName, unit)
	case apierrors.IsUnauthorized(err):
		return atlaserr.NewAuthError(providerName, err)
	default:
		return atlaserr.NewExploreError(providerName, unit, err)
	}
}

// ExpandLinks correlates cluster nodes with the GKE node pools that manage
// them, matched through the well-known node pool label.
func ExpandLinks(d *discovery.Discovery, doc map[string]interface{}) error {
	pools, err := pathquery.Query(doc, "$.resources[?@.meta.kind=='nodepool'].meta.name")
	if err != nil {
		return err
	}
	for _, pool := range pools {
		sel := fmt.Sprintf(
			"$.resources[?@.meta.kind=='k8s/node' && @.struct.metadata.labels.['cloud.google.com/gke-nodepool']=='%s']",
			pool.Str())
		nodes, err := pathquery.Query(doc, sel)
		if err != nil {
			return err
		}
		for _, node := range nodes {
			inserted := d.AddLink(pool.ResourceID(), discovery.Link{
				Direction: "out",
				Kind:      "k8s/node",
				Path:      node.Path(),
				Pointer:   node.Pointer(),
			})
			if inserted {
				metrics.CountLink(providerName)
			}
		}
	}
	return nil
}
