/*
Package metrics provides Prometheus metrics collection and exposition for
the cluster router.

Metrics are registered at package init and exposed via Handler() for
scraping. Categories:

  - Routing: tasks routed/failed, routing latency, per-mode execution duration.
  - Resolver: cache hit/miss counts, per-method resolution latency.
  - Transport: SSH reachability probe latency and failure counts.
  - Aggregator: cluster-status snapshot latency, reachable-peer gauge.
  - Store: per-operation latency and failure counts, task distribution gauge.

Collector refreshes the gauges that no single call site owns (task
distribution, reachable-peer count) on a fixed interval; counters and
histograms are updated inline by the owning component.

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	target := router.Route(task, "", cfg.Nodes, cfg.NodeOrder, cfg.LocalNodeID)
	timer.ObserveDuration(metrics.RoutingLatency)
*/
package metrics
