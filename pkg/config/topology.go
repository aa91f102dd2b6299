package config

import (
	"fmt"
	"os"

	"github.com/cuemby/clusterrouter/pkg/types"
	"gopkg.in/yaml.v3"
)

// topologyFile is the shape of an optional operator-supplied overlay that
// adds nodes or overrides fields of the code-defined registry without a
// recompile.
type topologyFile struct {
	Nodes []topologyNode `yaml:"nodes"`
}

type topologyNode struct {
	ID           string   `yaml:"id"`
	Aliases      []string `yaml:"aliases"`
	Hostname     string   `yaml:"hostname"`
	FallbackAddr string   `yaml:"fallback_addr"`
	OS           string   `yaml:"os"`
	Arch         string   `yaml:"arch"`
	Capabilities []string `yaml:"capabilities"`
	Specialties  []string `yaml:"specialties"`
	MaxTasks     int      `yaml:"max_tasks"`
	Priority     int      `yaml:"priority"`
}

// applyTopologyFile loads a YAML overlay and merges it into cfg.Nodes:
// an entry whose id matches an existing node overrides that node's
// non-zero fields; an unrecognized id adds a brand-new node, appended to
// NodeOrder so it participates in routing.
func applyTopologyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading topology file: %w", err)
	}

	var doc topologyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing topology file: %w", err)
	}

	for _, tn := range doc.Nodes {
		if tn.ID == "" {
			return fmt.Errorf("topology file: node entry missing id")
		}

		existing, ok := cfg.Nodes[tn.ID]
		if !ok {
			cfg.Nodes[tn.ID] = &types.Node{
				ID:           tn.ID,
				Aliases:      tn.Aliases,
				Hostname:     tn.Hostname,
				FallbackAddr: tn.FallbackAddr,
				OS:           tn.OS,
				Arch:         tn.Arch,
				Capabilities: tn.Capabilities,
				Specialties:  tn.Specialties,
				MaxTasks:     tn.MaxTasks,
				Priority:     tn.Priority,
			}
			cfg.NodeOrder = append(cfg.NodeOrder, tn.ID)
			continue
		}

		mergeNode(existing, tn)
	}

	return nil
}

func mergeNode(n *types.Node, tn topologyNode) {
	if len(tn.Aliases) > 0 {
		n.Aliases = tn.Aliases
	}
	if tn.Hostname != "" {
		n.Hostname = tn.Hostname
	}
	if tn.FallbackAddr != "" {
		n.FallbackAddr = tn.FallbackAddr
	}
	if tn.OS != "" {
		n.OS = tn.OS
	}
	if tn.Arch != "" {
		n.Arch = tn.Arch
	}
	if len(tn.Capabilities) > 0 {
		n.Capabilities = tn.Capabilities
	}
	if len(tn.Specialties) > 0 {
		n.Specialties = tn.Specialties
	}
	if tn.MaxTasks != 0 {
		n.MaxTasks = tn.MaxTasks
	}
	if tn.Priority != 0 {
		n.Priority = tn.Priority
	}
}
