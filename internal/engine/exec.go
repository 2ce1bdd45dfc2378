package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

// termGrace is how long a child gets between SIGTERM and SIGKILL.
const termGrace = 5 * time.Second

// ProcessEngine runs the CLI engine as a raw OS child process: argv vector,
// no shell interpretation, scrubbed environment.
type ProcessEngine struct{}

// NewProcessEngine creates a new process-based engine.
func NewProcessEngine() *ProcessEngine {
	return &ProcessEngine{}
}

// Start implements Engine.Start using os/exec. The context passed here
// governs the invocation's deadline: on expiry the child receives SIGTERM,
// then SIGKILL after the grace period.
func (e *ProcessEngine) Start(ctx context.Context, opts StartOptions) (Handle, error) {
	if opts.Binary == "" {
		return nil, fmt.Errorf("engine binary not configured")
	}
	if len(opts.Argv) == 0 {
		return nil, fmt.Errorf("empty argv")
	}

	stdout := newBoundedBuffer(opts.MaxOutputBytes)
	stderr := newBoundedBuffer(opts.MaxOutputBytes)

	cmd := exec.CommandContext(ctx, opts.Binary, opts.Argv...)
	cmd.Dir = opts.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Allowlist environment: only what the engine needs, nothing from the
	// host session leaks through.
	cmd.Env = []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=" + opts.WorkDir,
		"TMPDIR=" + opts.WorkDir,
		"MAGICK_TEMPORARY_PATH=" + opts.WorkDir,
		"LC_ALL=C",
	}

	// Own process group, so signals reach engine subprocesses too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd, syscall.SIGTERM)
	}
	cmd.WaitDelay = termGrace

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine process: %w", err)
	}

	h := &processHandle{
		cmd:    cmd,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}
	go h.reap()
	return h, nil
}

type processHandle struct {
	cmd    *exec.Cmd
	stdout *boundedBuffer
	stderr *boundedBuffer
	res    ExitResult
	done   chan struct{}
}

func (h *processHandle) reap() {
	err := h.cmd.Wait()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		h.res = ExitResult{ExitCode: 0}
	case errors.As(err, &exitErr):
		h.res = ExitResult{ExitCode: exitErr.ExitCode()}
	default:
		h.res = ExitResult{ExitCode: -1, Error: err}
	}
	close(h.done)
}

func (h *processHandle) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return h.res, nil
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *processHandle) Stop(ctx context.Context) error {
	if err := signalGroup(h.cmd, syscall.SIGTERM); err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(termGrace):
		return signalGroup(h.cmd, syscall.SIGKILL)
	case <-ctx.Done():
		return signalGroup(h.cmd, syscall.SIGKILL)
	}
}

func (h *processHandle) Output() (stdout, stderr []byte) {
	return h.stdout.Bytes(), h.stderr.Bytes()
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative pid targets the whole process group.
	err := syscall.Kill(-cmd.Process.Pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
