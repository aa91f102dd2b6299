package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Routing metrics
	TasksRoutedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterrouter_tasks_routed_total",
			Help: "Total number of tasks routed by destination node",
		},
		[]string{"node_id"},
	)

	TasksFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterrouter_tasks_failed_total",
			Help: "Total number of tasks that reached a failed or timeout terminal state",
		},
		[]string{"status"},
	)

	RoutingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_routing_latency_seconds",
			Help:    "Time taken to choose a target node for a task",
			Buckets: prometheus.DefBuckets,
		},
	)

	TaskExecutionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_task_execution_duration_seconds",
			Help:    "Time taken to execute a task, local or remote",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"}, // "local" or "remote"
	)

	// Resolver metrics
	ResolverCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterrouter_resolver_cache_hits_total",
			Help: "Total number of address resolutions served from cache",
		},
	)

	ResolverCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterrouter_resolver_cache_misses_total",
			Help: "Total number of address resolutions that missed the cache",
		},
	)

	ResolverLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_resolver_latency_seconds",
			Help:    "Time taken to resolve a node's address, by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"}, // "dns", "mdns", "hosts", "ping"
	)

	// SSH transport metrics
	SSHProbeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_ssh_probe_latency_seconds",
			Help:    "Time taken for a reachability probe to complete",
			Buckets: prometheus.DefBuckets,
		},
	)

	SSHProbeFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterrouter_ssh_probe_failures_total",
			Help: "Total number of failed reachability probes by probed address",
		},
		[]string{"address"},
	)

	// Cluster aggregator metrics
	ClusterStatusLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_cluster_status_latency_seconds",
			Help:    "Time taken to assemble a full cluster status snapshot",
			Buckets: prometheus.DefBuckets,
		},
	)

	NodesReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "clusterrouter_nodes_reachable",
			Help: "Number of configured nodes, the local node included, reachable in the last cluster status snapshot",
		},
	)

	// Task store metrics
	StoreOperationLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "clusterrouter_store_operation_latency_seconds",
			Help:    "Time taken for a task store operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"}, // "insert_assigned", "update_terminal", "read", "wait_for_terminal", "aggregate_distribution"
	)

	StoreOperationFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "clusterrouter_store_operation_failures_total",
			Help: "Total number of task store operations that returned an error",
		},
		[]string{"op"},
	)

	// Task queue gauge, refreshed periodically by Collector
	TasksByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "clusterrouter_tasks_by_status",
			Help: "Number of tasks in the store by assigned node and status",
		},
		[]string{"node_id", "status"},
	)

	// Fan-out metrics
	FanoutCommandsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "clusterrouter_fanout_commands_total",
			Help: "Total number of commands dispatched via parallel fan-out",
		},
	)
)

func init() {
	prometheus.MustRegister(TasksRoutedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(RoutingLatency)
	prometheus.MustRegister(TaskExecutionDuration)
	prometheus.MustRegister(ResolverCacheHitsTotal)
	prometheus.MustRegister(ResolverCacheMissesTotal)
	prometheus.MustRegister(ResolverLatency)
	prometheus.MustRegister(SSHProbeLatency)
	prometheus.MustRegister(SSHProbeFailuresTotal)
	prometheus.MustRegister(ClusterStatusLatency)
	prometheus.MustRegister(NodesReachable)
	prometheus.MustRegister(StoreOperationLatency)
	prometheus.MustRegister(StoreOperationFailuresTotal)
	prometheus.MustRegister(TasksByStatus)
	prometheus.MustRegister(FanoutCommandsTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
