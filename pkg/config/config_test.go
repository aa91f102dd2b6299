package config

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	clearClusterEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "cluster", cfg.SSH.User)
	assert.Equal(t, 2, cfg.SSH.Retries)
	assert.Equal(t, float64(40), cfg.Thresholds.CPUPercent)
	assert.Len(t, cfg.NodeOrder, 4)
	assert.Contains(t, cfg.Nodes, "builder")
	assert.Equal(t, "192.0.2.237", cfg.Nodes["builder"].FallbackAddr)
}

func TestLoadNodeOverride(t *testing.T) {
	clearClusterEnv(t)
	t.Setenv("CLUSTER_BUILDER_HOST", "builder2.cluster.local")
	t.Setenv("CLUSTER_BUILDER_IP", "203.0.113.10")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "builder2.cluster.local", cfg.Nodes["builder"].Hostname)
	assert.Equal(t, "203.0.113.10", cfg.Nodes["builder"].FallbackAddr)
}

func TestDetectLocalNodeMatchesID(t *testing.T) {
	nodes, order := defaultNodes()
	id := DetectLocalNode(nodes, order, "my-builder-box")
	assert.Equal(t, "builder", id)
}

func TestDetectLocalNodeMatchesHostnamePrefix(t *testing.T) {
	nodes, order := defaultNodes()
	id := DetectLocalNode(nodes, order, "researcher.cluster.local")
	assert.Equal(t, "researcher", id)
}

func TestDetectLocalNodeFallsBackToFirst(t *testing.T) {
	nodes, order := defaultNodes()
	id := DetectLocalNode(nodes, order, "unrelated-host")
	assert.Equal(t, order[0], id)
}

func TestResolveAlias(t *testing.T) {
	nodes, order := defaultNodes()
	nodes["builder"].Aliases = []string{"linux-box"}
	cfg := &Config{Nodes: nodes, NodeOrder: order, Aliases: buildAliases(nodes)}

	canonical, ok := cfg.ResolveAlias("linux-box")
	require.True(t, ok)
	assert.Equal(t, "builder", canonical)

	_, ok = cfg.ResolveAlias("nonexistent")
	assert.False(t, ok)
}

func TestApplyTopologyFileOverridesAndAdds(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/topology.yaml"
	content := `
nodes:
  - id: builder
    priority: 9
  - id: edge-gpu
    hostname: edge-gpu.cluster.local
    os: linux
    arch: arm64
    capabilities: ["gpu"]
    specialties: ["inference"]
    max_tasks: 2
    priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	nodes, order := defaultNodes()
	cfg := &Config{Nodes: nodes, NodeOrder: order}

	require.NoError(t, applyTopologyFile(cfg, path))

	assert.Equal(t, 9, cfg.Nodes["builder"].Priority)
	require.Contains(t, cfg.Nodes, "edge-gpu")
	assert.Equal(t, []string{"gpu"}, cfg.Nodes["edge-gpu"].Capabilities)
	assert.Contains(t, cfg.NodeOrder, "edge-gpu")
}

func TestApplyTopologyFileMissingID(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/topology.yaml"
	require.NoError(t, os.WriteFile(path, []byte("nodes:\n  - hostname: x\n"), 0o644))

	nodes, order := defaultNodes()
	cfg := &Config{Nodes: nodes, NodeOrder: order}

	err := applyTopologyFile(cfg, path)
	assert.Error(t, err)
}

// clearClusterEnv unsets any CLUSTER_*/AGENTIC_SYSTEM_PATH variables for the
// duration of the test, restoring their prior values on cleanup.
func clearClusterEnv(t *testing.T) {
	t.Helper()
	var toRestore []string
	for _, e := range os.Environ() {
		key, _, found := strings.Cut(e, "=")
		if !found {
			continue
		}
		if strings.HasPrefix(key, "CLUSTER_") || key == "AGENTIC_SYSTEM_PATH" {
			toRestore = append(toRestore, key)
		}
	}
	for _, key := range toRestore {
		val := os.Getenv(key)
		os.Unsetenv(key)
		t.Cleanup(func(k, v string) func() {
			return func() { os.Setenv(k, v) }
		}(key, val))
	}
}
