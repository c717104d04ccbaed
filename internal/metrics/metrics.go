// Package metrics holds the Prometheus collectors updated by the matcher.
// Collectors are created unregistered; call Register with the registry of your choice.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "addrmatcher_queries_total",
		Help: "Total match queries by kind (address, coordinates) and outcome (match, empty, error)",
	}, []string{"kind", "outcome"})
	QueryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addrmatcher_query_duration_seconds",
		Help:    "Match query duration in seconds",
		Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"kind"})
	ShardLoadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "addrmatcher_shard_loads_total",
		Help: "Total shard files decoded from disk",
	})
	ShardCacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "addrmatcher_shard_cache_hits_total",
		Help: "Total shard lookups served from the decoded shard cache",
	})
	IndexFallbacksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "addrmatcher_index_fallbacks_total",
		Help: "Total address queries whose key missed the index and fell back to nearest-key scoring",
	})
	RadiusSteps = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addrmatcher_radius_steps",
		Help:    "Radius adjustments per coordinate query by direction (grow, shrink)",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
	}, []string{"direction"})
	CandidateRows = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "addrmatcher_candidate_rows",
		Help:    "Rows scored (address) or indexed (coordinates) per query",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	}, []string{"kind"})
)

// Collectors returns every collector of this package.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		QueriesTotal,
		QueryDuration,
		ShardLoadsTotal,
		ShardCacheHitsTotal,
		IndexFallbacksTotal,
		RadiusSteps,
		CandidateRows,
	}
}

// Register registers all collectors with reg. Collectors already registered with reg
// are left in place, so several matchers may share one registry.
func Register(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveQuery records one finished query.
func ObserveQuery(kind, outcome string, started time.Time) {
	QueriesTotal.WithLabelValues(kind, outcome).Inc()
	QueryDuration.WithLabelValues(kind).Observe(time.Since(started).Seconds())
}

// Handler exposes reg over HTTP for scraping.
func Handler(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
