package sys

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Upper bound on draining a killed child's output pipes.
const waitDelay = 5 * time.Second

// Command is a single subprocess invocation with an explicit argument list.
type Command struct {
	Path string
	Args []string
	Dir  string

	// Env is passed to the child verbatim. Nil inherits the current
	// environment; an empty, non-nil slice clears it.
	Env []string

	Stdout io.Writer
	Stderr io.Writer

	// Timeout of zero means unbounded.
	Timeout time.Duration
}

type Result struct {
	ExitCode int
	TimedOut bool
}

// Run executes the command and waits for it. A non-zero exit status is not an
// error; the caller decides what it means. On timeout the child's whole
// process group is killed.
func (c Command) Run(ctx context.Context) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return Result{}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		res := Result{ExitCode: -1, TimedOut: errors.Is(ctxErr, context.DeadlineExceeded)}
		return res, Fail(ctxErr, "run", c.Path)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return Result{ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{ExitCode: -1}, Fail(err, "run", c.Path)
}

// Output runs the command and returns its trimmed stdout.
func (c Command) Output(ctx context.Context) (string, Result, error) {
	stdout := &bytes.Buffer{}
	c.Stdout = stdout
	res, err := c.Run(ctx)
	return strings.TrimSpace(stdout.String()), res, err
}

// Run executes name with arg, returning trimmed stdout. Any non-zero exit is
// reported as an error carrying stderr.
func Run(ctx context.Context, name string, arg ...string) (string, error) {
	stderr := &bytes.Buffer{}
	out, res, err := Command{Path: name, Args: arg, Stderr: stderr}.Output(ctx)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("%s failed: exit status %d\n%s", name, res.ExitCode, stderr.String())
	}
	return out, nil
}
