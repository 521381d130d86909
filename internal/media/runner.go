// Package media adapts external transcoding and transcription tools. It
// owns subprocess execution, diagnostic capture, and the parsing of tool
// output into structured metadata; nothing outside this package depends on
// the tools' text formats.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// CommandLog captures one external command invocation result.
type CommandLog struct {
	Command  string   `json:"command"`
	Args     []string `json:"args"`
	ExitCode int      `json:"exitCode"`
	Stdout   string   `json:"stdout"`
	Stderr   string   `json:"stderr"`
}

// Runner abstracts process execution for testability.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (CommandLog, error)
}

// execRunner executes commands via os/exec with a bounded lifetime. A tool
// that outlives the timeout is killed and reported as a failure.
type execRunner struct {
	timeout time.Duration
}

// NewExecRunner builds the production runner. A zero timeout disables the
// per-invocation bound.
func NewExecRunner(timeout time.Duration) Runner {
	return &execRunner{timeout: timeout}
}

// Run executes one command and captures stdout/stderr and exit code.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (CommandLog, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: 0,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
	if err != nil {
		log.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			err = fmt.Errorf("%s timed out after %s: %w", name, r.timeout, err)
		}
		return log, err
	}

	return log, nil
}
