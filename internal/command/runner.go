// Package command exposes the narrow subprocess capability the audio and
// bluetooth components need. Nothing outside this package touches os/exec.
package command

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Result holds the outcome of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Handle controls a detached background process.
type Handle interface {
	// Running reports whether the process is still alive.
	Running() bool
	// Terminate asks the process to stop (SIGTERM).
	Terminate() error
	// Wait blocks until the process exits or the timeout elapses.
	Wait(timeout time.Duration) error
}

// Runner runs external commands. A non-zero exit is reported through
// Result.ExitCode, not an error; errors mean the command could not run at
// all (missing binary, timeout).
type Runner interface {
	// Run executes args and waits for completion. A zero timeout means no
	// bound.
	Run(args []string, timeout time.Duration) (Result, error)
	// LookPath reports whether name resolves to an executable.
	LookPath(name string) (string, bool)
	// Spawn starts args as a detached process and returns a handle to it.
	Spawn(args []string) (Handle, error)
}

// ErrTimeout is returned by Run when the command exceeded its bound.
var ErrTimeout = errors.New("command timed out")

// ExecRunner is the production Runner backed by os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

func (r *ExecRunner) Run(args []string, timeout time.Duration) (Result, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if ctx.Err() == context.DeadlineExceeded {
		return result, ErrTimeout
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	if err != nil {
		return result, err
	}
	return result, nil
}

func (r *ExecRunner) LookPath(name string) (string, bool) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", false
	}
	return path, true
}

func (r *ExecRunner) Spawn(args []string) (Handle, error) {
	cmd := exec.Command(args[0], args[1:]...)
	// Own process group so a Terminate does not ripple back to us.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	h := &execHandle{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()
	return h, nil
}

type execHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
}

func (h *execHandle) Running() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (h *execHandle) Terminate() error {
	if !h.Running() {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

func (h *execHandle) Wait(timeout time.Duration) error {
	select {
	case <-h.done:
		return nil
	case <-time.After(timeout):
		return ErrTimeout
	}
}
