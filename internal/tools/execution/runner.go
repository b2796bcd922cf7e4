// Package execution provides the run_cmd tool and the command runner behind
// it.
package execution

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// Result is the outcome of one command execution.
type Result struct {
	Code     int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Runner runs a command in a working directory with a hard timeout. The
// interface exists so tests can substitute a fake.
type Runner interface {
	RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error)
}

// HostRunner executes commands directly on the host.
type HostRunner struct{}

func NewHostRunner() *HostRunner { return &HostRunner{} }

func (*HostRunner) RunCmd(ctx context.Context, dir, name string, args []string, timeout time.Duration) (Result, error) {
	cctx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, name, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		TimedOut: errors.Is(cctx.Err(), context.DeadlineExceeded),
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		res.Code = -1
		return res, err
	}
	return res, nil
}
