package prober

import (
	"context"
	"os/exec"
)

// ExecRunner is the production Runner: it shells out via exec.CommandContext
// with an explicit argv list, never a shell string.
type ExecRunner struct{}

// Run executes name with args and reports only whether it exited 0; ssh's
// own stdout/stderr are irrelevant to a reachability probe.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Run()
}
