package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

const DefaultTimeout = 3 * time.Second

var (
	ErrTimedOut        = errors.New("command timed out")
	ErrToolUnavailable = errors.New("tool not available")
)

// SpawnError reports that a process could not be started at all.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, c.Name)
	for _, arg := range c.Args {
		if arg == "" || strings.ContainsAny(arg, " \t\"'") {
			arg = fmt.Sprintf("%q", arg)
		}
		parts = append(parts, arg)
	}
	return strings.Join(parts, " ")
}

type Result struct {
	ExitedZero bool
	Stdout     string
	Stderr     string
}

// Runner executes a single external command bounded by timeout. A timed out
// command returns ErrTimedOut; a command that cannot be located returns
// ErrToolUnavailable; any other start failure is a *SpawnError. A non-zero
// exit is not an error.
type Runner interface {
	Execute(ctx context.Context, cmd Command, timeout time.Duration) (Result, error)
}

type Options struct {
	Logger    *zap.Logger
	LookPath  func(file string) (string, error)
	WaitDelay time.Duration
}

type ExecRunner struct {
	opts Options
}

func New(opts Options) *ExecRunner {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}
	if opts.WaitDelay == 0 {
		opts.WaitDelay = 500 * time.Millisecond
	}
	return &ExecRunner{opts: opts}
}

func (r *ExecRunner) Execute(ctx context.Context, cmd Command, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	path, err := r.opts.LookPath(cmd.Name)
	if err != nil {
		r.opts.Logger.Debug("tool not found", zap.String("tool", cmd.Name), zap.Error(err))
		return Result{}, fmt.Errorf("%s: %w", cmd.Name, ErrToolUnavailable)
	}

	// Caller cancellation does not reach a started process; only its own
	// timeout stops it.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	proc := exec.CommandContext(ctx, path, cmd.Args...)
	var stdout, stderr bytes.Buffer
	proc.Stdout = &stdout
	proc.Stderr = &stderr
	proc.WaitDelay = r.opts.WaitDelay

	start := time.Now()
	err = proc.Run()
	elapsed := time.Since(start)

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if timedOut(ctx, err) {
		r.opts.Logger.Debug("command timed out",
			zap.String("command", cmd.String()),
			zap.Duration("timeout", timeout),
		)
		return result, fmt.Errorf("%s after %s: %w", cmd.Name, timeout, ErrTimedOut)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			r.opts.Logger.Debug("command exited non-zero",
				zap.String("command", cmd.String()),
				zap.Int("exit_code", exitErr.ExitCode()),
				zap.Duration("elapsed", elapsed),
			)
			return result, nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			return Result{}, fmt.Errorf("%s: %w", cmd.Name, ErrToolUnavailable)
		}
		return Result{}, &SpawnError{Command: cmd.String(), Err: err}
	}

	result.ExitedZero = true
	r.opts.Logger.Debug("command completed",
		zap.String("command", cmd.String()),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

// timedOut reports whether a failed run was stopped by its deadline. A run
// that completed cleanly is never a timeout, even if the deadline has since
// passed.
func timedOut(ctx context.Context, runErr error) bool {
	return runErr != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)
}
