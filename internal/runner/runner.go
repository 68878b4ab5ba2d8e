// Package runner executes external commands with timeouts, bounded
// concurrency and sanitized output capture. All failures are returned as
// data; a non-zero exit is never an error.
package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	// ExitTimeout is reported when the process was killed on deadline.
	ExitTimeout = 124
	// ExitNotFound is reported when the binary could not be launched.
	ExitNotFound = 127
	// ExitInternal is reported for unexpected launch failures.
	ExitInternal = 1
)

// Spec describes a single command invocation.
type Spec struct {
	Argv    []string
	Stdin   string
	Timeout time.Duration
	Env     map[string]string
	// TTY attaches the process to a pseudo-terminal. Some CLI subcommands
	// refuse to run without one. Output is combined into Stdout.
	TTY bool
}

// Result is the structured outcome of a command invocation.
type Result struct {
	Command    string
	ExitCode   int
	Stdout     string
	Stderr     string
	StartedAt  time.Time
	FinishedAt time.Time
}

// TimedOut reports whether the command was killed on deadline.
func (r Result) TimedOut() bool { return r.ExitCode == ExitTimeout }

// Runner runs external commands.
type Runner interface {
	Run(ctx context.Context, spec Spec) Result
}

// ExecRunner is the os/exec-backed Runner. A fixed-size semaphore bounds
// overall subprocess concurrency across all jobs.
type ExecRunner struct {
	sem       chan struct{}
	maxOutput int
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithMaxOutput overrides the per-stream output cap in bytes.
func WithMaxOutput(n int) Option {
	return func(r *ExecRunner) { r.maxOutput = n }
}

// New creates an ExecRunner allowing at most concurrency subprocesses.
func New(concurrency int, opts ...Option) *ExecRunner {
	if concurrency <= 0 {
		concurrency = 1
	}
	r := &ExecRunner{
		sem:       make(chan struct{}, concurrency),
		maxOutput: 8000,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes the command described by spec. It blocks for a concurrency
// slot, then runs the process with the spec timeout. The process group is
// killed on deadline so child processes don't linger.
func (r *ExecRunner) Run(ctx context.Context, spec Spec) Result {
	res := Result{
		Command:   strings.Join(spec.Argv, " "),
		StartedAt: time.Now().UTC(),
	}
	if len(spec.Argv) == 0 {
		res.ExitCode = ExitInternal
		res.Stderr = "empty command"
		res.FinishedAt = time.Now().UTC()
		return res
	}

	select {
	case r.sem <- struct{}{}:
		defer func() { <-r.sem }()
	case <-ctx.Done():
		res.ExitCode = ExitInternal
		res.Stderr = "cancelled while waiting for an execution slot"
		res.FinishedAt = time.Now().UTC()
		return res
	}

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	if spec.TTY {
		r.runTTY(ctx, spec, timeout, &res)
	} else {
		r.runPipes(ctx, spec, timeout, &res)
	}

	res.Stdout = Truncate(StripANSI(res.Stdout), r.maxOutput)
	res.Stderr = Truncate(StripANSI(res.Stderr), r.maxOutput)
	res.FinishedAt = time.Now().UTC()
	return res
}

func (r *ExecRunner) runPipes(ctx context.Context, spec Spec, timeout time.Duration, res *Result) {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Env = mergedEnv(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	if err := cmd.Start(); err != nil {
		res.ExitCode = launchExitCode(err)
		res.Stderr = "failed to start command: " + err.Error()
		return
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()
		res.ExitCode = waitExitCode(err)
	case <-deadline(ctx, timeout):
		killGroup(cmd)
		<-done
		res.ExitCode = ExitTimeout
		res.Stderr = "command timed out after " + timeout.String()
	}
}

func (r *ExecRunner) runTTY(ctx context.Context, spec Spec, timeout time.Duration, res *Result) {
	cmd := exec.Command(spec.Argv[0], spec.Argv[1:]...)
	cmd.Env = mergedEnv(spec.Env)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	f, err := pty.Start(cmd)
	if err != nil {
		res.ExitCode = launchExitCode(err)
		res.Stderr = "failed to start command on pty: " + err.Error()
		return
	}
	defer f.Close()

	// Combined stdout+stderr comes back over the pty master.
	var buf bytes.Buffer
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		chunk := make([]byte, 4096)
		for {
			n, rerr := f.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
			}
			if rerr != nil {
				return
			}
		}
	}()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		<-readDone
		res.Stdout = buf.String()
		res.ExitCode = waitExitCode(err)
	case <-deadline(ctx, timeout):
		killGroup(cmd)
		<-done
		<-readDone
		res.Stdout = buf.String()
		res.ExitCode = ExitTimeout
		res.Stderr = "command timed out after " + timeout.String()
	}
}

func deadline(ctx context.Context, timeout time.Duration) <-chan time.Time {
	t := time.NewTimer(timeout)
	out := make(chan time.Time, 1)
	go func() {
		defer t.Stop()
		select {
		case v := <-t.C:
			out <- v
		case <-ctx.Done():
			out <- time.Now()
		}
	}()
	return out
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid signals the whole process group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		cmd.Process.Kill()
	}
}

func waitExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return ExitInternal
}

func launchExitCode(err error) int {
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return ExitNotFound
	}
	return ExitInternal
}

func mergedEnv(extra map[string]string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}
