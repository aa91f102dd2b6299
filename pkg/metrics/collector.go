package metrics

import (
	"context"
	"time"
)

// DistributionSource is satisfied by the task store; it reports how many
// tasks are currently sitting in each (node, status) bucket.
type DistributionSource interface {
	AggregateDistribution(ctx context.Context) (map[string]map[string]int, error)
}

// ReachabilitySource is satisfied by the cluster aggregator; it reports how
// many configured nodes were reachable in the last status snapshot.
type ReachabilitySource interface {
	ReachableCount(ctx context.Context) (int, error)
}

// Collector periodically refreshes gauges that can't be updated inline by
// the component that owns the underlying state (task counts by status,
// peer reachability).
type Collector struct {
	store      DistributionSource
	aggregator ReachabilitySource
	interval   time.Duration
	stopCh     chan struct{}
}

// NewCollector builds a Collector. aggregator may be nil if reachability
// gauges are not wanted (e.g. in tests that only exercise the store).
func NewCollector(store DistributionSource, aggregator ReachabilitySource) *Collector {
	return &Collector{
		store:      store,
		aggregator: aggregator,
		interval:   15 * time.Second,
		stopCh:     make(chan struct{}),
	}
}

// Start begins periodic collection in a background goroutine.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop halts periodic collection.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c.collectTaskDistribution(ctx)
	c.collectReachability(ctx)
}

func (c *Collector) collectTaskDistribution(ctx context.Context) {
	if c.store == nil {
		return
	}
	dist, err := c.store.AggregateDistribution(ctx)
	if err != nil {
		return
	}
	for nodeID, statuses := range dist {
		for status, count := range statuses {
			TasksByStatus.WithLabelValues(nodeID, status).Set(float64(count))
		}
	}
}

func (c *Collector) collectReachability(ctx context.Context) {
	if c.aggregator == nil {
		return
	}
	count, err := c.aggregator.ReachableCount(ctx)
	if err != nil {
		return
	}
	NodesReachable.Set(float64(count))
}
