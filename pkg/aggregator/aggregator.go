/*
Package aggregator collects a live cluster-wide load snapshot: a local
/proc-based sample for this host plus concurrent SSH probes of every
configured peer, each bounded by a short per-peer timeout. It satisfies
metrics.ReachabilitySource for the periodic gauge collector.
*/
package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/policy"
	"github.com/cuemby/clusterrouter/pkg/types"
)

// Snapshot is a point-in-time view of every configured node's load.
type Snapshot struct {
	LocalNodeID string
	Samples     map[string]types.NodeSample
}

// Aggregator assembles cluster-status snapshots.
type Aggregator struct {
	resolver    AddressResolver
	runner      RemoteRunner
	cfg         *config.Config
	peerTimeout time.Duration

	mu       sync.RWMutex
	lastSnap Snapshot
}

// New builds an Aggregator. peerTimeout bounds each individual remote probe.
func New(resolver AddressResolver, runner RemoteRunner, cfg *config.Config, peerTimeout time.Duration) *Aggregator {
	return &Aggregator{resolver: resolver, runner: runner, cfg: cfg, peerTimeout: peerTimeout}
}

// Status gathers the local sample and every peer's remote sample in
// parallel, classifying each as overloaded against the configured
// thresholds, and returns once every peer has reported or timed out.
func (a *Aggregator) Status(ctx context.Context) Snapshot {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ClusterStatusLatency)

	samples := make(map[string]types.NodeSample, len(a.cfg.NodeOrder))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, id := range a.cfg.NodeOrder {
		node := a.cfg.Nodes[id]
		wg.Add(1)
		go func(node *types.Node) {
			defer wg.Done()
			var sample types.NodeSample

			if node.ID == a.cfg.LocalNodeID {
				sample = a.localSample(node.ID)
			} else {
				sample = remoteSample(ctx, a.resolver, a.runner, a.cfg.SSH, node, a.peerTimeout)
			}
			sample.Overloaded = policy.LoadSample{
				CPUPercent: sample.CPUPercent,
				LoadAvg1:   sample.LoadAvg1,
				MemPercent: sample.MemPercent,
			}.Overloaded(a.cfg.Thresholds)

			mu.Lock()
			samples[node.ID] = sample
			mu.Unlock()
		}(node)
	}
	wg.Wait()

	reachable := 0
	for _, s := range samples {
		if s.Reachable {
			reachable++
		}
	}
	metrics.NodesReachable.Set(float64(reachable))

	snap := Snapshot{LocalNodeID: a.cfg.LocalNodeID, Samples: samples}
	a.mu.Lock()
	a.lastSnap = snap
	a.mu.Unlock()
	return snap
}

func (a *Aggregator) localSample(nodeID string) types.NodeSample {
	cpu, mem, load, err := LocalSample()
	sample := types.NodeSample{
		NodeID:     nodeID,
		Reachable:  true,
		CPUPercent: cpu,
		MemPercent: mem,
		LoadAvg1:   load,
		SampledAt:  time.Now(),
	}
	if err != nil {
		sample.Error = err.Error()
	}
	return sample
}

// ReachableCount satisfies metrics.ReachabilitySource, reporting how many
// configured nodes were reachable in the most recent Status call. The local
// node is sampled without a probe and always counts as reachable.
func (a *Aggregator) ReachableCount(ctx context.Context) (int, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	count := 0
	for _, s := range a.lastSnap.Samples {
		if s.Reachable {
			count++
		}
	}
	return count, nil
}
