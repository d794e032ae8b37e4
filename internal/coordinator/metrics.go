package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamware/scatter/internal/search"
)

// Metrics holds the coordinator's Prometheus instrumentation. A nil *Metrics
// is valid and turns every observation into a no-op, which keeps tests and
// embedded uses free of a registry.
type Metrics struct {
	searchesTotal   prometheus.Counter
	partialTotal    prometheus.Counter
	shardFailures   prometheus.Counter
	allShardsFailed prometheus.Counter
	scrollsTotal    prometheus.Counter
	expandFailures  prometheus.Counter
	searchDuration  prometheus.Histogram
}

// NewMetrics registers the coordinator metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		searchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_searches_total",
			Help: "Completed searches, successful or partial.",
		}),
		partialTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_partial_searches_total",
			Help: "Searches that completed with at least one failed shard.",
		}),
		shardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_shard_failures_total",
			Help: "Shard-level failures after replica exhaustion.",
		}),
		allShardsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_all_shards_failed_total",
			Help: "Requests aborted because every shard in a phase failed.",
		}),
		scrollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_scroll_rounds_total",
			Help: "Completed scroll continuation rounds.",
		}),
		expandFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scatter_expand_failures_total",
			Help: "Requests aborted by a failed field-collapse expansion.",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scatter_search_duration_seconds",
			Help:    "End-to-end search latency, all phases included.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.searchesTotal,
		m.partialTotal,
		m.shardFailures,
		m.allShardsFailed,
		m.scrollsTotal,
		m.expandFailures,
		m.searchDuration,
	)
	return m
}

// SearchCompleted records a finished search and its shard failure count.
func (m *Metrics) SearchCompleted(resp *search.Response) {
	if m == nil {
		return
	}
	m.searchesTotal.Inc()
	if resp.FailedShards > 0 {
		m.partialTotal.Inc()
		m.shardFailures.Add(float64(resp.FailedShards))
	}
	m.searchDuration.Observe(float64(resp.TookMillis) / 1000)
}

// AllShardsFailed records a request aborted by total shard failure.
func (m *Metrics) AllShardsFailed() {
	if m == nil {
		return
	}
	m.allShardsFailed.Inc()
}

// ScrollContinued records a completed scroll round.
func (m *Metrics) ScrollContinued() {
	if m == nil {
		return
	}
	m.scrollsTotal.Inc()
}

// ExpandFailed records a request aborted by the expand phase.
func (m *Metrics) ExpandFailed() {
	if m == nil {
		return
	}
	m.expandFailures.Inc()
}
