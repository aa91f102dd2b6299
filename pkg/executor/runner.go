package executor

import (
	"bytes"
	"context"
	"os/exec"
)

// SSHRunner is the production RemoteRunner: ssh for command execution, scp
// for script upload, both invoked with an explicit argv list.
type SSHRunner struct{}

// Run executes `ssh <args...>` and captures stdout/stderr/exit code.
func (SSHRunner) Run(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "ssh", args...)
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if runErr == nil {
		return out.String(), errBuf.String(), 0, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		return out.String(), errBuf.String(), exitErr.ExitCode(), nil
	}
	return out.String(), errBuf.String(), -1, runErr
}

// Copy executes `scp <localPath> <remoteSpec>`.
func (SSHRunner) Copy(ctx context.Context, localPath, remoteSpec string) error {
	cmd := exec.CommandContext(ctx, "scp", localPath, remoteSpec)
	var errBuf bytes.Buffer
	cmd.Stderr = &errBuf

	if err := cmd.Run(); err != nil {
		if errBuf.Len() > 0 {
			return fmtError(errBuf.String())
		}
		return err
	}
	return nil
}

func fmtError(stderr string) error {
	return &copyError{stderr: stderr}
}

type copyError struct{ stderr string }

func (e *copyError) Error() string { return e.stderr }
