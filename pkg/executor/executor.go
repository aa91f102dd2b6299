/*
Package executor runs a task's command or script, either on this host or on
a remote peer over the shell transport, and reports a types.ExecutionResult.
Persisting the result to the task store is the caller's job (pkg/taskrouter)
so this package stays free of storage concerns and easy to test.
*/
package executor

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"

	"github.com/cuemby/clusterrouter/pkg/config"
	"github.com/cuemby/clusterrouter/pkg/log"
	"github.com/cuemby/clusterrouter/pkg/metrics"
	"github.com/cuemby/clusterrouter/pkg/types"
)

const timeoutMessage = "execution exceeded its time budget"

// shellMetaPattern matches the operators that force a command through a
// shell interpreter instead of direct argv exec.
var shellMetaPattern = regexp.MustCompile("[|&;`]|\\$\\(")

// AddressResolver is the narrow slice of pkg/resolver.Resolver that the
// remote executor needs.
type AddressResolver interface {
	Resolve(ctx context.Context, node *types.Node, isLocal, verifyReachability bool) (string, bool)
}

// RemoteRunner executes a single remote-shell invocation and a single
// remote-copy invocation, both via an explicit argv list. The production
// implementation (SSHRunner) shells out to ssh/scp; tests inject a fake.
type RemoteRunner interface {
	Run(ctx context.Context, args []string) (stdout, stderr string, exitCode int, err error)
	Copy(ctx context.Context, localPath, remoteSpec string) error
}

// Executor runs tasks locally or over the remote-shell transport.
type Executor struct {
	resolver AddressResolver
	remote   RemoteRunner
	ssh      config.SSH
}

// New builds an Executor.
func New(resolver AddressResolver, remote RemoteRunner, ssh config.SSH) *Executor {
	return &Executor{resolver: resolver, remote: remote, ssh: ssh}
}

// ExecuteLocal runs task.Command or task.Script on this host and returns
// its result. Exactly one of Command/Script must be set; callers validate
// that invariant before calling in (a task with neither never reaches the
// executor).
func (e *Executor) ExecuteLocal(ctx context.Context, task *types.Task, nodeID string, timeout time.Duration) *types.ExecutionResult {
	started := time.Now()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.TaskExecutionDuration, "local")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var cmd *exec.Cmd
	var cleanup func()

	if task.Script != "" {
		path, err := materializeScript(task.Script, task.TaskID)
		if err != nil {
			return errorResult(nodeID, started, fmt.Sprintf("materialize script: %v", err))
		}
		cleanup = func() { os.Remove(path) }
		cmd = exec.CommandContext(runCtx, path)
	} else {
		if shellMetaPattern.MatchString(task.Command) {
			cmd = exec.CommandContext(runCtx, "sh", "-c", task.Command)
		} else {
			argv, err := shellwords.Parse(task.Command)
			if err != nil || len(argv) == 0 {
				return errorResult(nodeID, started, fmt.Sprintf("tokenize command: %v", err))
			}
			cmd = exec.CommandContext(runCtx, argv[0], argv[1:]...)
		}
	}
	if cleanup != nil {
		defer cleanup()
	}

	result := runCmd(cmd, runCtx, nodeID, started)
	return result
}

// ExecuteRemote runs task.Command or task.Script on target over the remote
// shell transport. verifyReachability forces a real login check before
// resolving the address used for the subsequent run.
func (e *Executor) ExecuteRemote(ctx context.Context, task *types.Task, target *types.Node, timeout time.Duration, verifyReachability bool) *types.ExecutionResult {
	started := time.Now()
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.TaskExecutionDuration, "remote")

	address, ok := e.resolver.Resolve(ctx, target, false, verifyReachability)
	if !ok {
		return errorResult(target.ID, started, fmt.Sprintf("could not resolve address for node %s", target.ID))
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if task.Script != "" {
		return e.executeRemoteScript(runCtx, task, target.ID, address, timeout, started)
	}
	return e.executeRemoteCommand(runCtx, task, target.ID, address, timeout, started)
}

func (e *Executor) executeRemoteCommand(ctx context.Context, task *types.Task, nodeID, address string, timeout time.Duration, started time.Time) *types.ExecutionResult {
	wrapped := wrapWithTimeout(task.Command, timeout)
	args := e.sshArgs(address, wrapped)

	stdout, stderr, exitCode, err := e.remote.Run(ctx, args)
	return fromRemoteRun(nodeID, started, stdout, stderr, exitCode, err, ctx)
}

func (e *Executor) executeRemoteScript(ctx context.Context, task *types.Task, nodeID, address string, timeout time.Duration, started time.Time) *types.ExecutionResult {
	localPath, err := materializeScript(task.Script, task.TaskID)
	if err != nil {
		return errorResult(nodeID, started, fmt.Sprintf("materialize script: %v", err))
	}
	defer os.Remove(localPath)

	remotePath := fmt.Sprintf("/tmp/task_%s.sh", task.TaskID)
	remoteSpec := fmt.Sprintf("%s@%s:%s", e.ssh.User, address, remotePath)
	if err := e.remote.Copy(ctx, localPath, remoteSpec); err != nil {
		return errorResult(nodeID, started, fmt.Sprintf("copy script to %s: %v", nodeID, err))
	}

	runCommand := fmt.Sprintf("chmod +x %s && %s ; rm -f %s", remotePath, remotePath, remotePath)
	wrapped := wrapWithTimeout(runCommand, timeout)
	args := e.sshArgs(address, wrapped)

	stdout, stderr, exitCode, err := e.remote.Run(ctx, args)
	return fromRemoteRun(nodeID, started, stdout, stderr, exitCode, err, ctx)
}

// sshArgs builds the argv for a single remote-shell invocation. The command
// string is passed as one final argv element — never concatenated into a
// local shell string — so it is the remote shell, not this process, that
// interprets it.
func (e *Executor) sshArgs(address, command string) []string {
	return []string{
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", fmt.Sprintf("ConnectTimeout=%d", int(e.ssh.ConnectTimeout.Seconds())),
		fmt.Sprintf("%s@%s", e.ssh.User, address),
		command,
	}
}

// wrapWithTimeout wraps command with the peer-side timeout utility so a
// runaway process self-terminates even if the local SSH session drops. The
// whole command runs under `sh -c`, single-quoted, so a compound command is
// covered in full rather than only its first simple command.
func wrapWithTimeout(command string, timeout time.Duration) string {
	seconds := int(timeout.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	quoted := "'" + strings.ReplaceAll(command, "'", `'\''`) + "'"
	return fmt.Sprintf("timeout %ds sh -c %s", seconds, quoted)
}

func materializeScript(body, taskID string) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf("task_%s_*.sh", taskID))
	if err != nil {
		return "", err
	}
	path := f.Name()
	if _, err := f.WriteString(body); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", err
	}
	if err := os.Chmod(path, 0o700); err != nil {
		os.Remove(path)
		return "", err
	}
	return filepath.Clean(path), nil
}

func runCmd(cmd *exec.Cmd, ctx context.Context, nodeID string, started time.Time) *types.ExecutionResult {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	finished := time.Now()

	if ctx.Err() == context.DeadlineExceeded {
		logTimeout(nodeID)
		return &types.ExecutionResult{
			NodeID: nodeID, ExitCode: -1, Stdout: stdout.String(), Stderr: timeoutMessage,
			Duration: finished.Sub(started), TimedOut: true, StartedAt: started, FinishedAt: finished,
		}
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return errorResult(nodeID, started, err.Error())
		}
	}

	return &types.ExecutionResult{
		NodeID: nodeID, ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String(),
		Duration: finished.Sub(started), StartedAt: started, FinishedAt: finished,
	}
}

func fromRemoteRun(nodeID string, started time.Time, stdout, stderr string, exitCode int, err error, ctx context.Context) *types.ExecutionResult {
	finished := time.Now()
	if ctx.Err() == context.DeadlineExceeded {
		logTimeout(nodeID)
		return &types.ExecutionResult{
			NodeID: nodeID, ExitCode: -1, Stdout: stdout, Stderr: timeoutMessage,
			Duration: finished.Sub(started), TimedOut: true, StartedAt: started, FinishedAt: finished,
		}
	}
	if err != nil {
		// The transport itself failed (login/copy), not the user command.
		return errorResult(nodeID, started, err.Error())
	}
	return &types.ExecutionResult{
		NodeID: nodeID, ExitCode: exitCode, Stdout: stdout, Stderr: stderr,
		Duration: finished.Sub(started), StartedAt: started, FinishedAt: finished,
	}
}

func errorResult(nodeID string, started time.Time, message string) *types.ExecutionResult {
	finished := time.Now()
	return &types.ExecutionResult{
		NodeID: nodeID, ExitCode: -1, Stderr: message,
		Duration: finished.Sub(started), StartedAt: started, FinishedAt: finished,
	}
}

func logTimeout(nodeID string) {
	log.WithComponent("executor").Warn().Str("node_id", nodeID).Msg("execution timed out")
}
