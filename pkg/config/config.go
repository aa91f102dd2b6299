// Package config builds the router's runtime configuration: SSH transport
// parameters, overload thresholds, timeouts, the node registry, and local
// node detection. Everything is derived from environment variables and
// code-defined defaults, with an optional YAML topology overlay.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/clusterrouter/pkg/types"
)

// Thresholds are the CPU/memory/load-average levels past which a node is
// classified as overloaded by the command policy.
type Thresholds struct {
	CPUPercent float64
	LoadAvg1   float64
	MemPercent float64
}

// SSH bundles the remote-shell transport's timing and identity parameters.
type SSH struct {
	User           string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	Retries        int
}

// Patterns are the command-classification lists consulted by the command
// policy's ShouldOffload check.
type Patterns struct {
	Heavy   []string
	Trivial []string
}

// Config is the fully-resolved configuration for one router process.
type Config struct {
	SSH        SSH
	Thresholds Thresholds
	Patterns   Patterns

	CmdTimeout    time.Duration
	StatusTimeout time.Duration
	IPCacheTTL    time.Duration

	Gateway string
	DNS     string

	StorePath string // <root>/databases/cluster/task_queue.db

	Nodes       map[string]*types.Node
	NodeOrder   []string // stable iteration order, set at load time
	Aliases     map[string]string
	LocalNodeID string
}

func defaultThresholds() Thresholds {
	return Thresholds{CPUPercent: 40, LoadAvg1: 4, MemPercent: 85}
}

func defaultPatterns() Patterns {
	return Patterns{
		Heavy: []string{
			"make", "cargo", "npm", "yarn", "pnpm",
			"pytest", "jest", "mocha", "test",
			"build", "compile", "gcc", "g++", "clang",
			"docker", "podman", "kubectl",
			"rsync", "scp", "tar", "zip", "unzip",
			"find", "grep -r", "rg",
		},
		Trivial: []string{"ls", "pwd", "cd", "echo", "cat"},
	}
}

// defaultNodes is the code-defined node registry, generalized from the
// original deployment's hardcoded cluster topology.
func defaultNodes() (map[string]*types.Node, []string) {
	order := []string{"builder", "orchestrator", "researcher", "inference"}
	nodes := map[string]*types.Node{
		"builder": {
			ID:           "builder",
			Hostname:     "builder.cluster.local",
			FallbackAddr: "192.0.2.237",
			OS:           "linux",
			Arch:         "x86_64",
			Capabilities: []string{"docker", "podman", "raid", "nvme", "compilation", "testing"},
			Specialties:  []string{"compilation", "testing", "containerization", "benchmarking"},
			MaxTasks:     10,
			Priority:     3,
		},
		"orchestrator": {
			ID:           "orchestrator",
			Hostname:     "orchestrator.cluster.local",
			FallbackAddr: "192.0.2.5",
			OS:           "macos",
			Arch:         "arm64",
			Capabilities: []string{"orchestration", "coordination", "temporal", "mlx-gpu", "arduino"},
			Specialties:  []string{"orchestration", "coordination", "monitoring", "temporal-workflows"},
			MaxTasks:     5,
			Priority:     1,
		},
		"researcher": {
			ID:           "researcher",
			Hostname:     "researcher.cluster.local",
			FallbackAddr: "192.0.2.65",
			OS:           "macos",
			Arch:         "arm64",
			Capabilities: []string{"research", "documentation", "analysis"},
			Specialties:  []string{"research", "documentation", "analysis", "mobile-operations"},
			MaxTasks:     3,
			Priority:     2,
		},
		"inference": {
			ID:           "inference",
			Hostname:     "inference.cluster.local",
			FallbackAddr: "192.0.2.130",
			OS:           "macos",
			Arch:         "arm64",
			Capabilities: []string{"ollama", "inference", "model-serving", "llm-api"},
			Specialties:  []string{"ollama-inference", "model-serving", "api-endpoints"},
			MaxTasks:     8,
			Priority:     2,
		},
	}
	return nodes, order
}

// Load reads environment variables, builds the node registry (code defaults
// overridden by per-node env vars and an optional YAML topology file), and
// detects the local node.
func Load() (*Config, error) {
	nodes, order := defaultNodes()

	for _, id := range order {
		n := nodes[id]
		envKey := strings.ToUpper(id)
		if host := os.Getenv("CLUSTER_" + envKey + "_HOST"); host != "" {
			n.Hostname = host
		}
		if ip := os.Getenv("CLUSTER_" + envKey + "_IP"); ip != "" {
			n.FallbackAddr = ip
		}
	}

	cfg := &Config{
		SSH: SSH{
			User:           getEnvString("CLUSTER_SSH_USER", "cluster"),
			Timeout:        getEnvSeconds("CLUSTER_SSH_TIMEOUT", 10*time.Second),
			ConnectTimeout: getEnvSeconds("CLUSTER_SSH_CONNECT_TIMEOUT", 5*time.Second),
			Retries:        getEnvInt("CLUSTER_SSH_RETRIES", 2),
		},
		Thresholds: Thresholds{
			CPUPercent: getEnvFloat("CLUSTER_CPU_THRESHOLD", defaultThresholds().CPUPercent),
			LoadAvg1:   getEnvFloat("CLUSTER_LOAD_THRESHOLD", defaultThresholds().LoadAvg1),
			MemPercent: getEnvFloat("CLUSTER_MEMORY_THRESHOLD", defaultThresholds().MemPercent),
		},
		Patterns:      defaultPatterns(),
		CmdTimeout:    getEnvSeconds("CLUSTER_CMD_TIMEOUT", 300*time.Second),
		StatusTimeout: getEnvSeconds("CLUSTER_STATUS_TIMEOUT", 5*time.Second),
		IPCacheTTL:    getEnvSeconds("CLUSTER_IP_CACHE_TTL", 300*time.Second),
		Gateway:       getEnvString("CLUSTER_GATEWAY", "192.0.2.1"),
		DNS:           getEnvString("CLUSTER_DNS", "192.0.2.1"),
		Nodes:         nodes,
		NodeOrder:     order,
	}

	if topoFile := os.Getenv("CLUSTER_TOPOLOGY_FILE"); topoFile != "" {
		if err := applyTopologyFile(cfg, topoFile); err != nil {
			return nil, fmt.Errorf("config: loading topology file %s: %w", topoFile, err)
		}
	}

	cfg.Aliases = buildAliases(cfg.Nodes)

	root := getEnvString("AGENTIC_SYSTEM_PATH", defaultAgenticSystemPath())
	cfg.StorePath = filepath.Join(root, "databases", "cluster", "task_queue.db")

	cfg.LocalNodeID = DetectLocalNode(cfg.Nodes, cfg.NodeOrder, "")

	return cfg, nil
}

func defaultAgenticSystemPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "agentic-system"
	}
	return filepath.Join(home, "agentic-system")
}

func buildAliases(nodes map[string]*types.Node) map[string]string {
	aliases := make(map[string]string)
	for id, n := range nodes {
		aliases[strings.ToLower(id)] = id
		for _, a := range n.Aliases {
			aliases[strings.ToLower(a)] = id
		}
	}
	return aliases
}

// ResolveAlias maps a role name or node identifier to its canonical node ID.
func (c *Config) ResolveAlias(id string) (string, bool) {
	canonical, ok := c.Aliases[strings.ToLower(id)]
	return canonical, ok
}

// DetectLocalNode generalizes the original deployment's hostname-substring
// heuristic: match the running host's hostname against each configured
// node's hostname and alias set. overrideHostname is used by tests; pass ""
// in production to use os.Hostname().
func DetectLocalNode(nodes map[string]*types.Node, order []string, overrideHostname string) string {
	hostname := overrideHostname
	if hostname == "" {
		if h, err := os.Hostname(); err == nil {
			hostname = h
		}
	}
	hostname = strings.ToLower(hostname)

	for _, id := range order {
		n := nodes[id]
		if hostname != "" && strings.Contains(hostname, strings.ToLower(id)) {
			return id
		}
		if n.Hostname != "" && strings.Contains(hostname, strings.ToLower(strings.SplitN(n.Hostname, ".", 2)[0])) {
			return id
		}
		for _, alias := range n.Aliases {
			if alias != "" && strings.Contains(hostname, strings.ToLower(alias)) {
				return id
			}
		}
	}

	if len(order) > 0 {
		return order[0]
	}
	return ""
}

func getEnvString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil {
			return time.Duration(secs * float64(time.Second))
		}
	}
	return def
}
