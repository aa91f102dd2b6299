package aggregator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/types"
)

const probeStartMarker = "__CLUSTER_PROBE_START__"
const probeEndMarker = "__CLUSTER_PROBE_END__"

// probeScript is run on the peer. It prints the start marker, the three
// numeric samples, and the end marker, so the local side can locate the
// payload even if the remote login shell writes a banner around it.
const probeScript = `echo ` + probeStartMarker + `; ` +
	`awk '/^cpu /{u=$2+$3+$4+$6+$7+$8; t=u+$5; print (t>0)?(u/t*100):0}' /proc/stat 2>/dev/null || echo 0; ` +
	`awk '/MemTotal/{t=$2} /MemAvailable/{a=$2} END{print (t>0)?((t-a)/t*100):0}' /proc/meminfo 2>/dev/null || echo 0; ` +
	`awk '{print $1}' /proc/loadavg 2>/dev/null || echo 0; ` +
	`echo ` + probeEndMarker

// RemoteRunner runs a single argv-list remote-shell invocation, returning
// its stdout.
type RemoteRunner interface {
	Run(ctx context.Context, args []string) (stdout string, exitCode int, err error)
}

// AddressResolver is the narrow slice of pkg/resolver.Resolver the
// aggregator needs.
type AddressResolver interface {
	Resolve(ctx context.Context, node *types.Node, isLocal, verifyReachability bool) (string, bool)
}

func remoteSample(ctx context.Context, resolver AddressResolver, runner RemoteRunner, ssh config.SSH, node *types.Node, timeout time.Duration) types.NodeSample {
	sample := types.NodeSample{NodeID: node.ID, SampledAt: time.Now()}

	address, ok := resolver.Resolve(ctx, node, false, false)
	if !ok {
		sample.Error = fmt.Sprintf("could not resolve address for node %s", node.ID)
		return sample
	}

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(ssh.ConnectTimeout.Seconds())),
		fmt.Sprintf("%s@%s", ssh.User, address),
		probeScript,
	}

	out, exitCode, err := runner.Run(probeCtx, args)
	if err != nil || exitCode != 0 {
		sample.Error = fmt.Sprintf("probe failed: %v", err)
		return sample
	}

	cpu, mem, load, ok := parseProbeOutput(out)
	if !ok {
		sample.Error = "probe output did not contain three numeric samples"
		return sample
	}

	sample.Reachable = true
	sample.CPUPercent = cpu
	sample.MemPercent = mem
	sample.LoadAvg1 = load
	return sample
}

// parseProbeOutput extracts the three numeric lines between the start/end
// markers. Any non-numeric line in between (banners, MOTD) is skipped.
func parseProbeOutput(out string) (cpu, mem, load float64, ok bool) {
	start := strings.Index(out, probeStartMarker)
	end := strings.Index(out, probeEndMarker)
	if start == -1 || end == -1 || end < start {
		return 0, 0, 0, false
	}
	payload := out[start+len(probeStartMarker) : end]

	var values []float64
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			continue
		}
		values = append(values, v)
		if len(values) == 3 {
			break
		}
	}
	if len(values) != 3 {
		return 0, 0, 0, false
	}
	return values[0], values[1], values[2], true
}
