/*
Package toolsurface implements the four operations callers invoke over the
tool-call boundary: routed bash execution, explicit single-node offload,
cluster-wide status, and parallel fan-out. Each returns a plain result
struct — no task-router or store types leak across this boundary.
*/
package toolsurface

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/clusterrouter/pkg/aggregator"
	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/fanout"
	"github.com/cuemby/clusterrouter/pkg/policy"
	"github.com/cuemby/clusterrouter/pkg/taskrouter"
	"github.com/cuemby/clusterrouter/pkg/types"
)

// BashResult is returned by ClusterBash and OffloadTo.
type BashResult struct {
	Success    bool
	ExecutedOn string
	Stdout     string
	Stderr     string
	ReturnCode int
	AutoRouted bool
	TaskID     string
	Error      string
}

// ParallelResult is one entry of ParallelExecute's result slice.
type ParallelResult struct {
	Command    string
	Success    bool
	ExecutedOn string
	Stdout     string
	Stderr     string
	TaskID     string
}

// LocalExecutor runs a command directly on this host, bypassing the task
// store entirely. Satisfied by pkg/executor.Executor.ExecuteLocal.
type LocalExecutor interface {
	ExecuteLocal(ctx context.Context, task *types.Task, nodeID string, timeout time.Duration) *types.ExecutionResult
}

// Submitter is the slice of pkg/taskrouter.TaskRouter the tool surface
// depends on.
type Submitter interface {
	Submit(ctx context.Context, req taskrouter.Request) (*types.Task, error)
}

// Fanout is the slice of pkg/fanout.Dispatcher the tool surface depends on.
type Fanout interface {
	Dispatch(ctx context.Context, commands []string, perCommandTimeout time.Duration) []*types.ExecutionResult
}

// Surface wires the router, executor, aggregator, and fan-out dispatcher
// into the four external operations.
type Surface struct {
	cfg          *config.Config
	submitter    Submitter
	local        LocalExecutor
	aggregator   *aggregator.Aggregator
	dispatcher   Fanout
	localTimeout time.Duration
	waitTimeout  time.Duration
}

// New builds a Surface.
func New(cfg *config.Config, submitter Submitter, local LocalExecutor, agg *aggregator.Aggregator, dispatcher Fanout, localTimeout, waitTimeout time.Duration) *Surface {
	return &Surface{cfg: cfg, submitter: submitter, local: local, aggregator: agg, dispatcher: dispatcher, localTimeout: localTimeout, waitTimeout: waitTimeout}
}

// Aggregator exposes the underlying cluster aggregator so a resident
// process can wire it into the periodic metrics collector.
func (s *Surface) Aggregator() *aggregator.Aggregator {
	return s.aggregator
}

// ClusterBash executes a bash command with cluster-aware routing. When
// autoRoute is true and the command policy classifies the command as a
// candidate for offload, it is submitted through the full router/store
// pipeline. Otherwise it runs directly on the local host without ever
// touching the task store.
func (s *Surface) ClusterBash(ctx context.Context, command, requiresOS, requiresArch string, autoRoute bool) BashResult {
	if autoRoute && s.shouldOffload(command) {
		ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
		defer cancel()

		task, err := s.submitter.Submit(ctx, taskrouter.Request{
			TaskType:     "bash",
			Command:      command,
			RequiresOS:   requiresOS,
			RequiresArch: requiresArch,
			Priority:     5,
			Metadata:     map[string]string{"source": "cluster-execution", "auto_routed": "true"},
		})
		if err != nil {
			return BashResult{Success: false, AutoRouted: true, Error: err.Error(), ReturnCode: -1}
		}
		return BashResult{
			Success:    task.Status == types.TaskCompleted,
			ExecutedOn: task.AssignedTo,
			Stdout:     task.Result,
			Stderr:     task.Error,
			ReturnCode: task.ExitCode,
			AutoRouted: true,
			TaskID:     task.TaskID,
		}
	}

	task := &types.Task{TaskType: "bash", Command: command, RequiresOS: requiresOS, RequiresArch: requiresArch}
	result := s.local.ExecuteLocal(ctx, task, s.cfg.LocalNodeID, s.localTimeout)
	return BashResult{
		Success:    result.ExitCode == 0 && !result.TimedOut,
		ExecutedOn: s.cfg.LocalNodeID,
		Stdout:     result.Stdout,
		Stderr:     result.Stderr,
		ReturnCode: result.ExitCode,
		AutoRouted: false,
	}
}

// OffloadTo explicitly routes command to a named node, bypassing the
// scoring router entirely. It fails fast if nodeID is not configured.
func (s *Surface) OffloadTo(ctx context.Context, command, nodeID string) BashResult {
	if _, ok := s.cfg.Nodes[nodeID]; !ok {
		return BashResult{
			Success:    false,
			Error:      fmt.Sprintf("Unknown node: %s. Available: %v", nodeID, s.cfg.NodeOrder),
			ReturnCode: -1,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.waitTimeout)
	defer cancel()

	task, err := s.submitter.Submit(ctx, taskrouter.Request{
		TaskType:  "bash",
		Command:   command,
		Priority:  5,
		ForceNode: nodeID,
	})
	if err != nil {
		return BashResult{Success: false, ExecutedOn: nodeID, Error: err.Error(), ReturnCode: -1}
	}
	return BashResult{
		Success:    task.Status == types.TaskCompleted,
		ExecutedOn: task.AssignedTo,
		Stdout:     task.Result,
		Stderr:     task.Error,
		ReturnCode: task.ExitCode,
		TaskID:     task.TaskID,
	}
}

// ClusterStatus reports a live load-and-reachability snapshot of every
// configured node.
func (s *Surface) ClusterStatus(ctx context.Context) aggregator.Snapshot {
	return s.aggregator.Status(ctx)
}

// ParallelExecute runs every command concurrently across the cluster,
// round-robin over the configured node order, and returns one result per
// command in input order.
func (s *Surface) ParallelExecute(ctx context.Context, commands []string, perCommandTimeout time.Duration) []ParallelResult {
	raw := s.dispatcher.Dispatch(ctx, commands, perCommandTimeout)
	out := make([]ParallelResult, len(raw))
	for i, r := range raw {
		cmd := ""
		if i < len(commands) {
			cmd = commands[i]
		}
		out[i] = ParallelResult{
			Command:    cmd,
			Success:    r.ExitCode == 0 && !r.TimedOut,
			ExecutedOn: r.NodeID,
			Stdout:     r.Stdout,
			Stderr:     r.Stderr,
		}
	}
	return out
}

func (s *Surface) shouldOffload(command string) bool {
	cpu, mem, load, err := aggregator.LocalSample()
	if err != nil {
		cpu, mem, load = 0, 0, 0
	}
	sample := policy.LoadSample{CPUPercent: cpu, MemPercent: mem, LoadAvg1: load}
	return policy.ShouldOffload(command, s.cfg.Patterns, sample, s.cfg.Thresholds)
}
