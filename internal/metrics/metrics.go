// Package metrics exposes Prometheus instrumentation for discovery runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "atlas",
		Name:      "explorer_unit_duration_seconds",
		Help:      "Wall time of one explorer unit, by provider and outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"provider", "outcome"})

	resourcesDiscovered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "resources_discovered_total",
		Help:      "Resources collected, by provider.",
	}, []string{"provider"})

	unitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "explorer_unit_failures_total",
		Help:      "Explorer units that failed or were denied, by provider and outcome.",
	}, []string{"provider", "outcome"})

	linksExpanded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "atlas",
		Name:      "links_expanded_total",
		Help:      "Links attached during expansion, by domain.",
	}, []string{"domain"})
)

// ObserveUnit records one explorer unit's outcome. Shaped to plug into
// explore.Group.WithObserver.
func ObserveUnit(provider, unit, outcome string, d time.Duration, count int) {
	_ = unit // per-unit label cardinality is unbounded; tracked by provider only
	unitDuration.WithLabelValues(provider, outcome).Observe(d.Seconds())
	if count > 0 {
		resourcesDiscovered.WithLabelValues(provider).Add(float64(count))
	}
	if outcome == "failed" || outcome == "denied" || outcome == "fatal" {
		unitFailures.WithLabelValues(provider, outcome).Inc()
	}
}

// CountLink records one attached link for a correlation domain.
func CountLink(domain string) {
	linksExpanded.WithLabelValues(domain).Inc()
}
