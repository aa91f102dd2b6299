package aggregator

import (
	"bytes"
	"context"
	"os/exec"
)

// SSHRunner is the production RemoteRunner: it shells out to ssh with an
// explicit argv list, the probe script arriving as the single final
// element, and folds stdout and exit code into the three-value shape the
// aggregator consumes; ssh's stderr is discarded.
type SSHRunner struct{}

// Run executes `ssh <args...>` and returns its stdout plus exit code.
func (SSHRunner) Run(ctx context.Context, args []string) (string, int, error) {
	cmd := exec.CommandContext(ctx, "ssh", args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	err := cmd.Run()
	if err == nil {
		return out.String(), 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return out.String(), exitErr.ExitCode(), nil
	}
	return out.String(), -1, err
}
