/*
Package fanout dispatches a batch of commands across the cluster
concurrently, one goroutine per command, assigning peers by round-robin
over the configured node order. Results preserve the caller's input order
regardless of completion order.
*/
package fanout

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/policy"
	"github.com/cuemby/clusterrouter/pkg/types"
)

// Executor runs a single command against a target node and returns its
// result. Satisfied by pkg/taskrouter.FanoutAdapter, which wraps
// pkg/executor.Executor (local or remote, decided by whether target is the
// local node).
type Executor interface {
	Dispatch(ctx context.Context, command string, target *types.Node, timeout time.Duration) *types.ExecutionResult
}

// Dispatcher fans commands out across peers round-robin.
type Dispatcher struct {
	executor  Executor
	nodes     map[string]*types.Node
	nodeOrder []string
}

// New builds a Dispatcher over the given node registry and stable order.
func New(executor Executor, nodes map[string]*types.Node, nodeOrder []string) *Dispatcher {
	return &Dispatcher{executor: executor, nodes: nodes, nodeOrder: nodeOrder}
}

// Dispatch validates every command first (fail-fast: a single invalid
// command short-circuits the whole batch with a length-one result), then
// runs all commands concurrently, one per peer in round-robin order, and
// returns results in the same order as the input.
func (d *Dispatcher) Dispatch(ctx context.Context, commands []string, perCommandTimeout time.Duration) []*types.ExecutionResult {
	for _, cmd := range commands {
		if ok, reason := policy.Validate(cmd); !ok {
			return []*types.ExecutionResult{{ExitCode: -1, Stderr: reason}}
		}
	}

	metrics.FanoutCommandsTotal.Add(float64(len(commands)))

	results := make([]*types.ExecutionResult, len(commands))
	var wg sync.WaitGroup

	for i, cmd := range commands {
		target := d.nodes[d.nodeOrder[i%len(d.nodeOrder)]]
		wg.Add(1)
		go func(i int, cmd string, target *types.Node) {
			defer wg.Done()
			results[i] = d.executor.Dispatch(ctx, cmd, target, perCommandTimeout)
		}(i, cmd, target)
	}
	wg.Wait()

	return results
}
