package resolver

import (
	"context"
	"os/exec"
)

// ExecRunner is the production Runner: it shells out via exec.CommandContext
// with an explicit argv list, never a shell string.
type ExecRunner struct{}

// Run executes name with args and returns its stdout; stderr is not
// returned. Exit
// failures are reported as a non-nil error; callers treat that as "method
// unavailable" and fall through to the next resolution method.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}
