package taskrouter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu     sync.Mutex
	tasks  map[string]*types.Task
	insErr error
	updErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{tasks: map[string]*types.Task{}}
}

func (f *fakeStore) InsertAssigned(ctx context.Context, task *types.Task) error {
	if f.insErr != nil {
		return f.insErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *task
	f.tasks[task.TaskID] = &cp
	return nil
}

func (f *fakeStore) UpdateTerminal(ctx context.Context, taskID string, status types.TaskStatus, result string, exitCode int, errMsg string) error {
	if f.updErr != nil {
		return f.updErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return ErrGeneric
	}
	t.Status = status
	t.Result = result
	t.ExitCode = exitCode
	t.Error = errMsg
	t.CompletedAt = time.Now().UTC()
	return nil
}

func (f *fakeStore) Read(ctx context.Context, taskID string) (*types.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[taskID]
	if !ok {
		return nil, ErrGeneric
	}
	cp := *t
	return &cp, nil
}

func (f *fakeStore) WaitForTerminal(ctx context.Context, taskID string) (*types.Task, error) {
	return f.Read(ctx, taskID)
}

// ErrGeneric stands in for a not-found sentinel in these tests; the real
// store returns its own ErrNotFound, which callers wrap rather than compare.
var ErrGeneric = assertErr("no such task")

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeExecutor struct {
	localCalls  int
	remoteCalls int
	result      *types.ExecutionResult
}

func (f *fakeExecutor) ExecuteLocal(ctx context.Context, task *types.Task, nodeID string, timeout time.Duration) *types.ExecutionResult {
	f.localCalls++
	return f.result
}

func (f *fakeExecutor) ExecuteRemote(ctx context.Context, task *types.Task, target *types.Node, timeout time.Duration, verifyReachability bool) *types.ExecutionResult {
	f.remoteCalls++
	return f.result
}

func testConfig() *config.Config {
	return &config.Config{
		Nodes: map[string]*types.Node{
			"local":  {ID: "local"},
			"remote": {ID: "remote", Specialties: []string{"build"}},
		},
		NodeOrder:   []string{"local", "remote"},
		LocalNodeID: "local",
		CmdTimeout:  time.Second,
	}
}

func TestSubmitRoutesAndPersistsCompletedResult(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: 0, Stdout: "ok"}}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{TaskType: "bash", Command: "echo hi", Priority: 5})

	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, task.Status)
	assert.Equal(t, "ok", task.Result)
	assert.Equal(t, 0, task.ExitCode)
}

func TestSubmitForceNodeBypassesRouting(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: 0, Stdout: "done"}}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{Command: "echo hi", ForceNode: "remote"})

	require.NoError(t, err)
	assert.Equal(t, "remote", task.AssignedTo)
	assert.Equal(t, 1, exec.remoteCalls)
	assert.Equal(t, 0, exec.localCalls)
}

func TestSubmitUnknownForceNodeErrors(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{}
	tr := New(testConfig(), store, exec)

	_, err := tr.Submit(context.Background(), Request{Command: "echo hi", ForceNode: "ghost"})

	assert.Error(t, err)
}

func TestSubmitRejectsBlockedCommand(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{}
	tr := New(testConfig(), store, exec)

	_, err := tr.Submit(context.Background(), Request{Command: "rm -rf /"})

	assert.Error(t, err)
	assert.Empty(t, store.tasks)
}

func TestSubmitWithNeitherCommandNorScriptFailsImmediately(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{TaskType: "bash"})

	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, -1, task.ExitCode)
	assert.Equal(t, 0, exec.localCalls)
	assert.Equal(t, 0, exec.remoteCalls)
}

func TestSubmitMarksTimeoutStatus(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{result: &types.ExecutionResult{TimedOut: true, Stderr: "killed after timeout"}}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{Command: "sleep 100"})

	require.NoError(t, err)
	assert.Equal(t, types.TaskTimeout, task.Status)
}

func TestSubmitMarksTransportFailureAsFailed(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: -1, Stderr: "ssh: connection refused"}}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{Command: "echo hi"})

	require.NoError(t, err)
	assert.Equal(t, types.TaskFailed, task.Status)
	assert.Equal(t, -1, task.ExitCode)
}

func TestSubmitNonZeroExitStillCompletes(t *testing.T) {
	store := newFakeStore()
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: 1, Stderr: "not found"}}
	tr := New(testConfig(), store, exec)

	task, err := tr.Submit(context.Background(), Request{Command: "false"})

	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, task.Status)
	assert.Equal(t, "not found", task.Error)
	assert.Equal(t, 1, task.ExitCode)
}

func TestSubmitAsyncReturnsIDBeforeCompletion(t *testing.T) {
	store := newFakeStore()
	block := make(chan struct{})
	exec := &blockingExecutor{result: &types.ExecutionResult{ExitCode: 0}, release: block}
	tr := New(testConfig(), store, exec)

	id, err := tr.SubmitAsync(context.Background(), Request{Command: "echo hi"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	close(block)
	deadline := time.After(time.Second)
	for {
		task, _ := store.Read(context.Background(), id)
		if task != nil && task.Status.Terminal() {
			break
		}
		select {
		case <-deadline:
			t.Fatal("task never reached a terminal state")
		case <-time.After(time.Millisecond):
		}
	}
}

type blockingExecutor struct {
	result  *types.ExecutionResult
	release chan struct{}
}

func (b *blockingExecutor) ExecuteLocal(ctx context.Context, task *types.Task, nodeID string, timeout time.Duration) *types.ExecutionResult {
	<-b.release
	return b.result
}

func (b *blockingExecutor) ExecuteRemote(ctx context.Context, task *types.Task, target *types.Node, timeout time.Duration, verifyReachability bool) *types.ExecutionResult {
	<-b.release
	return b.result
}

func TestFanoutAdapterDispatchesLocalNodeDirectly(t *testing.T) {
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: 0, Stdout: "ok"}}
	adapter := FanoutAdapter{Executor: exec, LocalNodeID: "local"}

	res := adapter.Dispatch(context.Background(), "echo hi", &types.Node{ID: "local"}, time.Second)

	assert.Equal(t, "ok", res.Stdout)
	assert.Equal(t, 1, exec.localCalls)
	assert.Equal(t, 0, exec.remoteCalls)
}

func TestFanoutAdapterDispatchesRemoteNodeOverTransport(t *testing.T) {
	exec := &fakeExecutor{result: &types.ExecutionResult{ExitCode: 0, Stdout: "ok"}}
	adapter := FanoutAdapter{Executor: exec, LocalNodeID: "local"}

	adapter.Dispatch(context.Background(), "echo hi", &types.Node{ID: "remote"}, time.Second)

	assert.Equal(t, 0, exec.localCalls)
	assert.Equal(t, 1, exec.remoteCalls)
}
