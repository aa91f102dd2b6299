// Package router implements the scoring router: it filters the configured
// node set down to those satisfying a task's hard requirements, scores the
// survivors by specialty match, node priority, and an anti-local penalty,
// and picks the maximum.
package router

import (
	"strings"

	"github.com/cuemby/clusterrouter/pkg/types"
)

const (
	specialtyBonus   = 100
	priorityWeight   = 20
	localNodePenalty = 1000
)

// Route selects a target node for task among nodes, iterating in the
// stable order given by order. localNodeID is penalized to bias selection
// toward remote peers. If forceNode is non-empty and names a node present
// in nodes, it is used verbatim regardless of requirements.
func Route(task *types.Task, forceNode string, nodes map[string]*types.Node, order []string, localNodeID string) string {
	if forceNode != "" {
		if _, ok := nodes[forceNode]; ok {
			return forceNode
		}
	}

	req := types.Requirements{
		OS:           task.RequiresOS,
		Arch:         task.RequiresArch,
		Capabilities: task.RequiresCaps,
	}

	best := ""
	bestScore := 0
	haveBest := false

	for _, id := range order {
		node, ok := nodes[id]
		if !ok {
			continue
		}
		if !satisfies(node, req) {
			continue
		}

		score := score(node, task.TaskType, id == localNodeID)
		if !haveBest || score > bestScore {
			best = id
			bestScore = score
			haveBest = true
		}
	}

	if !haveBest {
		return localNodeID
	}
	return best
}

func satisfies(node *types.Node, req types.Requirements) bool {
	if !node.MatchesOS(req.OS) {
		return false
	}
	if req.Arch != "" && !strings.EqualFold(node.Arch, req.Arch) {
		return false
	}
	for _, c := range req.Capabilities {
		if !node.HasCapability(c) {
			return false
		}
	}
	return true
}

func score(node *types.Node, taskType string, isLocal bool) int {
	s := 0
	if node.HasSpecialty(taskType) {
		s += specialtyBonus
	}
	s += (5 - node.Priority) * priorityWeight
	if isLocal {
		s -= localNodePenalty
	}
	return s
}
