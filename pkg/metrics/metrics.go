// Package metrics exposes pgraph's Prometheus instrumentation:
// package-level gauge/counter/histogram vars registered in init(), plus a
// Timer helper, covering pgraph's card/link/transaction/query/raft
// surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Graph-store gauges.
	VerticesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_vertices_total",
			Help: "Total number of cards resident in the graph store",
		},
	)

	EdgesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_edges_total",
			Help: "Total number of links resident in the graph store",
		},
	)

	FragmentCacheSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_fragment_cache_entries",
			Help: "Number of resident entries in the vertex fragment cache",
		},
	)

	VertexLRUSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_vertex_lru_entries",
			Help: "Number of resident entries in the full-vertex LRU",
		},
	)

	// Transaction counters/histograms.
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgraph_transactions_total",
			Help: "Total number of transactions by outcome (committed, rolled_back, conflict)",
		},
		[]string{"outcome"},
	)

	TransactionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgraph_transaction_duration_seconds",
			Help:    "Transaction lifetime from Begin to Commit/Rollback, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Query runtime metrics.
	QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgraph_queries_total",
			Help: "Total number of queries executed by kind (run, count, card_ids, count_by_group)",
		},
		[]string{"kind"},
	)

	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgraph_query_duration_seconds",
			Help:    "Query execution duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	QueryCandidatesScanned = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgraph_query_candidates_scanned",
			Help:    "Number of scope candidates evaluated per query",
			Buckets: []float64{10, 100, 1000, 10000, 100000, 1000000},
		},
	)

	// Raft metrics.
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftPeers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_raft_peers_total",
			Help: "Total number of Raft peers in the cluster",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgraph_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	RaftApplyDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgraph_raft_apply_duration_seconds",
			Help:    "Time taken to apply a Raft log entry in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RaftSnapshotDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pgraph_raft_snapshot_duration_seconds",
			Help:    "Time taken to build a Raft snapshot (checkpoint + meta) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Wire-protocol metrics.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgraph_requests_total",
			Help: "Total number of wire requests by response status code",
		},
		[]string{"status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgraph_request_duration_seconds",
			Help:    "Wire request duration in seconds by status code",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func init() {
	prometheus.MustRegister(
		VerticesTotal,
		EdgesTotal,
		FragmentCacheSize,
		VertexLRUSize,
		TransactionsTotal,
		TransactionDuration,
		QueriesTotal,
		QueryDuration,
		QueryCandidatesScanned,
		RaftLeader,
		RaftPeers,
		RaftLogIndex,
		RaftAppliedIndex,
		RaftApplyDuration,
		RaftSnapshotDuration,
		RequestsTotal,
		RequestDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for recording into a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time into a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
