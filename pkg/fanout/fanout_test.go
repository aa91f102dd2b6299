package fanout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/clusterrouter/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeExecutor) Dispatch(ctx context.Context, command string, target *types.Node, timeout time.Duration) *types.ExecutionResult {
	f.mu.Lock()
	f.calls = append(f.calls, target.ID+":"+command)
	f.mu.Unlock()
	return &types.ExecutionResult{NodeID: target.ID, ExitCode: 0, Stdout: command}
}

func threeNodes() (map[string]*types.Node, []string) {
	nodes := map[string]*types.Node{
		"builder":      {ID: "builder"},
		"orchestrator": {ID: "orchestrator"},
		"researcher":   {ID: "researcher"},
	}
	return nodes, []string{"builder", "orchestrator", "researcher"}
}

func TestDispatchRoundRobinsAcrossPeers(t *testing.T) {
	exec := &fakeExecutor{}
	nodes, order := threeNodes()
	d := New(exec, nodes, order)

	results := d.Dispatch(context.Background(), []string{"echo a", "echo b", "echo c", "echo d"}, time.Second)

	require.Len(t, results, 4)
	assert.Equal(t, "builder", results[0].NodeID)
	assert.Equal(t, "orchestrator", results[1].NodeID)
	assert.Equal(t, "researcher", results[2].NodeID)
	assert.Equal(t, "builder", results[3].NodeID, "round-robin wraps back to the first peer")
}

func TestDispatchPreservesInputOrder(t *testing.T) {
	exec := &fakeExecutor{}
	nodes, order := threeNodes()
	d := New(exec, nodes, order)

	results := d.Dispatch(context.Background(), []string{"echo 1", "echo 2", "echo 3"}, time.Second)

	for i, r := range results {
		assert.Equal(t, []string{"echo 1", "echo 2", "echo 3"}[i], r.Stdout)
	}
}

func TestDispatchFailsFastOnInvalidCommand(t *testing.T) {
	exec := &fakeExecutor{}
	nodes, order := threeNodes()
	d := New(exec, nodes, order)

	results := d.Dispatch(context.Background(), []string{"echo ok", "rm -rf /"}, time.Second)

	require.Len(t, results, 1)
	assert.NotEqual(t, 0, results[0].ExitCode)
	assert.Empty(t, exec.calls, "no command should dispatch once validation fails")
}

func TestDispatchEmptyListReturnsEmptyResults(t *testing.T) {
	exec := &fakeExecutor{}
	nodes, order := threeNodes()
	d := New(exec, nodes, order)

	results := d.Dispatch(context.Background(), nil, time.Second)

	assert.Empty(t, results)
}
