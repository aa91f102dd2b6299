/*
Package taskrouter is the glue that ties the router, task store, and
executor into the submit entry point: mint an identifier, validate,
route, persist an assigned record, dispatch, and persist the terminal
outcome.
*/
package taskrouter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/policy"
	"github.com/cuemby/clusterrouter/pkg/router"
	"github.com/cuemby/clusterrouter/pkg/types"
)

const noCommandOrScriptError = "task has neither a command nor a script"

// Store is the slice of pkg/store.Store the task router depends on.
type Store interface {
	InsertAssigned(ctx context.Context, task *types.Task) error
	UpdateTerminal(ctx context.Context, taskID string, status types.TaskStatus, result string, exitCode int, errMsg string) error
	Read(ctx context.Context, taskID string) (*types.Task, error)
	WaitForTerminal(ctx context.Context, taskID string) (*types.Task, error)
}

// Executor is the slice of pkg/executor.Executor the task router depends on.
type Executor interface {
	ExecuteLocal(ctx context.Context, task *types.Task, nodeID string, timeout time.Duration) *types.ExecutionResult
	ExecuteRemote(ctx context.Context, task *types.Task, target *types.Node, timeout time.Duration, verifyReachability bool) *types.ExecutionResult
}

// Request describes a caller's submission; it is translated into a
// types.Task record once an identifier has been minted.
type Request struct {
	TaskType      string
	Command       string
	Script        string
	RequiresOS    string
	RequiresArch  string
	RequiresCaps  []string
	Priority      int
	Metadata      map[string]string
	SubmittedFrom string
	ForceNode     string
}

// TaskRouter submits tasks: validate, route, persist, execute, persist.
type TaskRouter struct {
	cfg      *config.Config
	store    Store
	executor Executor
}

// New builds a TaskRouter.
func New(cfg *config.Config, store Store, executor Executor) *TaskRouter {
	return &TaskRouter{cfg: cfg, store: store, executor: executor}
}

// Submit runs a task to completion and returns its final record. It blocks
// until the task reaches a terminal state.
func (tr *TaskRouter) Submit(ctx context.Context, req Request) (*types.Task, error) {
	task, err := tr.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if task.Status.Terminal() {
		return task, nil
	}

	tr.run(ctx, task)
	return tr.store.Read(ctx, task.TaskID)
}

// SubmitAsync validates, routes, and persists an assigned record, then
// dispatches execution in the background and returns the task identifier
// immediately. Callers observe progress via Store.WaitForTerminal.
func (tr *TaskRouter) SubmitAsync(ctx context.Context, req Request) (string, error) {
	task, err := tr.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	if task.Status.Terminal() {
		return task.TaskID, nil
	}

	go tr.run(context.Background(), task)
	return task.TaskID, nil
}

// prepare mints an identifier, validates the command, routes to a target,
// and persists the assigned (or immediately-failed) record.
func (tr *TaskRouter) prepare(ctx context.Context, req Request) (*types.Task, error) {
	if req.ForceNode != "" {
		if _, ok := tr.cfg.Nodes[req.ForceNode]; !ok {
			return nil, fmt.Errorf("taskrouter: unknown node %q", req.ForceNode)
		}
	}

	if req.Command != "" {
		if ok, reason := policy.Validate(req.Command); !ok {
			return nil, fmt.Errorf("taskrouter: command rejected: %s", reason)
		}
	}

	task := &types.Task{
		TaskID:        uuid.New().String(),
		TaskType:      req.TaskType,
		Command:       req.Command,
		Script:        req.Script,
		RequiresOS:    req.RequiresOS,
		RequiresArch:  req.RequiresArch,
		RequiresCaps:  req.RequiresCaps,
		Priority:      req.Priority,
		Metadata:      req.Metadata,
		SubmittedFrom: req.SubmittedFrom,
		SubmittedAt:   time.Now().UTC(),
	}
	if task.Metadata == nil {
		task.Metadata = map[string]string{}
	}

	if task.Command == "" && task.Script == "" {
		task.AssignedTo = tr.cfg.LocalNodeID
		task.AssignedAt = task.SubmittedAt
		task.Status = types.TaskFailed
		task.Error = noCommandOrScriptError
		task.ExitCode = -1
		task.CompletedAt = task.SubmittedAt
		if err := tr.store.InsertAssigned(ctx, task); err != nil {
			return nil, fmt.Errorf("taskrouter: persist failed task: %w", err)
		}
		return task, nil
	}

	timer := metrics.NewTimer()
	targetID := router.Route(task, req.ForceNode, tr.cfg.Nodes, tr.cfg.NodeOrder, tr.cfg.LocalNodeID)
	timer.ObserveDuration(metrics.RoutingLatency)

	task.AssignedTo = targetID
	task.AssignedAt = time.Now().UTC()
	task.Status = types.TaskAssigned

	if err := tr.store.InsertAssigned(ctx, task); err != nil {
		return nil, fmt.Errorf("taskrouter: persist assigned task: %w", err)
	}
	metrics.TasksRoutedTotal.WithLabelValues(targetID).Inc()
	return task, nil
}

// run dispatches an assigned task to its target and persists the terminal
// outcome exactly once.
func (tr *TaskRouter) run(ctx context.Context, task *types.Task) {
	logger := log.WithComponent("taskrouter").With().Str("task_id", task.TaskID).Str("assigned_to", task.AssignedTo).Logger()

	timeout := tr.cfg.CmdTimeout
	var result *types.ExecutionResult
	if task.AssignedTo == tr.cfg.LocalNodeID {
		result = tr.executor.ExecuteLocal(ctx, task, task.AssignedTo, timeout)
	} else {
		target, ok := tr.cfg.Nodes[task.AssignedTo]
		if !ok {
			logger.Error().Msg("assigned node vanished from configuration before dispatch")
			tr.finish(ctx, task.TaskID, types.TaskFailed, "", -1, fmt.Sprintf("unknown node %q", task.AssignedTo))
			return
		}
		result = tr.executor.ExecuteRemote(ctx, task, target, timeout, false)
	}

	status := types.TaskCompleted
	errMsg := ""
	switch {
	case result.TimedOut:
		status = types.TaskTimeout
		errMsg = result.Stderr
	case result.ExitCode < 0:
		status = types.TaskFailed
		errMsg = result.Stderr
	case result.ExitCode != 0:
		errMsg = result.Stderr
	}

	resultBlob := result.Stdout
	tr.finish(ctx, task.TaskID, status, resultBlob, result.ExitCode, errMsg)
	if status != types.TaskCompleted {
		metrics.TasksFailedTotal.WithLabelValues(string(status)).Inc()
	}
}

func (tr *TaskRouter) finish(ctx context.Context, taskID string, status types.TaskStatus, result string, exitCode int, errMsg string) {
	if err := tr.store.UpdateTerminal(ctx, taskID, status, result, exitCode, errMsg); err != nil {
		log.WithComponent("taskrouter").Error().Err(err).Str("task_id", taskID).Msg("failed to persist terminal state")
	}
}

// FanoutAdapter adapts Executor's local/remote split into pkg/fanout's
// single-method Dispatch contract, branching on whether target is the
// local node.
type FanoutAdapter struct {
	Executor    Executor
	LocalNodeID string
}

// Dispatch runs command against target, locally or over the remote-shell
// transport depending on whether target is the local node.
func (a FanoutAdapter) Dispatch(ctx context.Context, command string, target *types.Node, timeout time.Duration) *types.ExecutionResult {
	task := &types.Task{TaskType: "bash", Command: command}
	if target.ID == a.LocalNodeID {
		return a.Executor.ExecuteLocal(ctx, task, target.ID, timeout)
	}
	return a.Executor.ExecuteRemote(ctx, task, target, timeout, false)
}
