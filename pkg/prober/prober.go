/*
Package prober verifies that a cluster peer will accept a real remote-shell
login before the router commits a task to it. It shells out to the system
ssh client in batch mode, running the trivial "true" no-op, and reports
success iff any attempt exits 0 within its budget.
*/
package prober

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
)

// Runner executes an external command with an argv list and reports whether
// it exited 0. Every probe attempt goes through this interface — never a
// shell string — both for the injection-safety invariant and so tests can
// fake ssh without touching the real system.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
}

// Backoff separates successive probe attempts. A package-level var so tests
// can shrink it.
var Backoff = 500 * time.Millisecond

// Prober implements the SSH reachability check and satisfies
// resolver.Prober.
type Prober struct {
	runner  Runner
	ssh     config.SSH
	retries int
}

// New builds a Prober. ssh.Retries is the maximum number of login attempts
// (values below 1 count as 1); ssh also carries the user/timeout settings
// shared with pkg/executor.
func New(runner Runner, ssh config.SSH) *Prober {
	retries := ssh.Retries
	if retries < 1 {
		retries = 1
	}
	return &Prober{runner: runner, ssh: ssh, retries: retries}
}

// Probe attempts up to Prober.retries logins to address, separated by a
// short backoff, returning true on the first that succeeds.
func (p *Prober) Probe(ctx context.Context, address string) bool {
	logger := log.WithComponent("prober").With().Str("address", address).Logger()
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SSHProbeLatency)

	for attempt := 1; attempt <= p.retries; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.ssh.ConnectTimeout)
		err := p.runner.Run(attemptCtx, "ssh",
			"-o", "BatchMode=yes",
			"-o", "StrictHostKeyChecking=accept-new",
			"-o", fmt.Sprintf("ConnectTimeout=%d", int(p.ssh.ConnectTimeout.Seconds())),
			fmt.Sprintf("%s@%s", p.ssh.User, address),
			"true",
		)
		cancel()
		if err == nil {
			return true
		}

		logger.Debug().Int("attempt", attempt).Err(err).Msg("probe attempt failed")
		if attempt < p.retries {
			select {
			case <-ctx.Done():
				metrics.SSHProbeFailuresTotal.WithLabelValues(address).Inc()
				return false
			case <-time.After(Backoff):
			}
		}
	}

	metrics.SSHProbeFailuresTotal.WithLabelValues(address).Inc()
	return false
}
