package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/dukex/conveyor/pkg/models"
)

// cancelGracePeriod bounds how long a command may keep running after
// cancellation before it is forcibly terminated.
const cancelGracePeriod = 10 * time.Second

// runCommand executes a shell command in the job workspace with the job's
// merged environment. Cancellation is cooperative: the process first receives
// SIGTERM and is killed once the grace period elapses.
func (e *Executor) runCommand(ctx context.Context, env *Environment, step *models.Step) (string, error) {
	if step.TimeoutSeconds > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(step.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", step.Command)
	cmd.Dir = env.WorkDir
	cmd.Env = env.Env
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = cancelGracePeriod

	var buf bytes.Buffer

	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()

	if ctx.Err() != nil {
		return output, fmt.Errorf("command cancelled: %w", ctx.Err())
	}

	if err != nil {
		return output, fmt.Errorf("command failed: %w", err)
	}

	return output, nil
}
