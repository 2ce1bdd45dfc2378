// Package executor runs compiled commands under resource supervision and
// maps failures to a small set of stable reasons.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"imageforge/internal/compiler"
	"imageforge/internal/engine"
	"imageforge/internal/guard"
)

// FailureReason classifies why an execution failed. Reasons are part of the
// API surface: job items persist them and clients branch on them.
type FailureReason string

const (
	ReasonTimeout          FailureReason = "timeout"
	ReasonResourceExceeded FailureReason = "resource_exceeded"
	ReasonEngineError      FailureReason = "engine_error"
	ReasonInternal         FailureReason = "internal_error"
)

// Error carries the failure classification alongside the underlying cause.
// Detail is safe to persist and return to callers; the cause stays on Err
// for unwrapping and server logs only, so engine diagnostics that name
// server paths never travel in the message.
type Error struct {
	Reason FailureReason
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// ReasonOf extracts the failure reason from an execution error. Unclassified
// errors report as internal.
func ReasonOf(err error) FailureReason {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Reason
	}
	return ReasonInternal
}

// Result describes a successful execution.
type Result struct {
	OutputPath string
	OutputSize int64
	Duration   time.Duration
	Log        []byte
}

// Executor dispatches compiled commands to the CLI or inference engine and
// enforces the guard's limits while they run.
type Executor struct {
	cli       engine.Engine
	inference engine.Engine
	gd        *guard.Guard
	binary    string
	logger    *slog.Logger

	// diskPoll is how often the scratch directory is measured against the
	// disk limit while a command runs.
	diskPoll time.Duration
}

// Options configures an Executor. Inference may be nil when no collaborator
// is deployed; inference commands then fail with an engine error.
type Options struct {
	CLI       engine.Engine
	Inference engine.Engine
	Guard     *guard.Guard
	Binary    string
	Logger    *slog.Logger
	DiskPoll  time.Duration
}

func New(opts Options) *Executor {
	if opts.Binary == "" {
		opts.Binary = "magick"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.DiskPoll <= 0 {
		opts.DiskPoll = 500 * time.Millisecond
	}
	return &Executor{
		cli:       opts.CLI,
		inference: opts.Inference,
		gd:        opts.Guard,
		binary:    opts.Binary,
		logger:    opts.Logger,
		diskPoll:  opts.DiskPoll,
	}
}

// Execute runs a compiled command to completion. Paths are re-checked against
// the guard immediately before spawning so that a file removed or replaced
// since compile time cannot slip through.
func (x *Executor) Execute(ctx context.Context, cmd *compiler.CompiledCommand) (*Result, error) {
	if _, err := x.gd.Resolve(cmd.InputPath, guard.PurposeInput); err != nil {
		return nil, &Error{Reason: ReasonInternal, Detail: "input no longer valid", Err: err}
	}
	if _, err := x.gd.Resolve(cmd.OutputPath, guard.PurposeOutput); err != nil {
		return nil, &Error{Reason: ReasonInternal, Detail: "output path rejected", Err: err}
	}

	eng := x.cli
	if cmd.Inference {
		eng = x.inference
	}
	if eng == nil {
		return nil, &Error{Reason: ReasonEngineError, Detail: "no engine configured for command"}
	}

	runCtx, cancel := context.WithTimeout(ctx, cmd.Limits.MaxDuration)
	defer cancel()

	start := time.Now()
	h, err := eng.Start(runCtx, engine.StartOptions{
		Binary:      x.binary,
		Argv:        cmd.Argv,
		WorkDir:     x.gd.TempDir(),
		MemoryBytes: cmd.Limits.MaxMemoryBytes,
	})
	if err != nil {
		return nil, &Error{Reason: ReasonEngineError, Detail: "start failed", Err: err}
	}

	var diskTripped atomic.Bool
	watchDone := make(chan struct{})
	watchCtx, stopWatch := context.WithCancel(context.Background())
	go x.watchDisk(watchCtx, watchDone, h, cmd, &diskTripped)

	res, waitErr := h.Wait(runCtx)
	stopWatch()
	<-watchDone
	elapsed := time.Since(start)

	// The captured streams are read only after the invocation has fully
	// settled. On the abnormal paths Stop waits out the teardown first.
	switch {
	case diskTripped.Load():
		h.Stop(context.Background())
		return nil, &Error{Reason: ReasonResourceExceeded,
			Detail: fmt.Sprintf("disk usage exceeded %d bytes", cmd.Limits.MaxDiskBytes)}
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		h.Stop(context.Background())
		return nil, &Error{Reason: ReasonTimeout,
			Detail: fmt.Sprintf("exceeded %s", cmd.Limits.MaxDuration)}
	case waitErr != nil:
		h.Stop(context.Background())
		return nil, &Error{Reason: ReasonInternal, Detail: "wait failed", Err: waitErr}
	}

	stdout, stderr := h.Output()
	logTail := stderr
	if len(logTail) == 0 {
		logTail = stdout
	}

	if res.ExitCode != 0 {
		// Engine stderr can quote server-side paths, so it stays here in
		// the log and out of the returned error.
		x.logger.Warn("engine exited with an error",
			"exit_code", res.ExitCode,
			"stderr", string(logTail),
		)
		return nil, &Error{Reason: ReasonEngineError,
			Detail: fmt.Sprintf("engine exited with code %d", res.ExitCode), Err: res.Error}
	}

	info, err := os.Stat(cmd.OutputPath)
	if err != nil || info.Size() == 0 {
		x.logger.Warn("engine produced no output",
			"stderr", string(logTail),
			"error", err,
		)
		return nil, &Error{Reason: ReasonEngineError, Detail: "command produced no output", Err: err}
	}

	x.logger.Debug("execution finished",
		"output", cmd.OutputPath,
		"size", info.Size(),
		"duration", elapsed,
	)
	return &Result{
		OutputPath: cmd.OutputPath,
		OutputSize: info.Size(),
		Duration:   elapsed,
		Log:        logTail,
	}, nil
}

// watchDisk periodically measures scratch plus output usage and stops the
// command when it crosses the disk limit.
func (x *Executor) watchDisk(ctx context.Context, done chan<- struct{}, h engine.Handle, cmd *compiler.CompiledCommand, tripped *atomic.Bool) {
	defer close(done)
	if cmd.Limits.MaxDiskBytes <= 0 {
		return
	}
	ticker := time.NewTicker(x.diskPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			used := dirSize(x.gd.TempDir())
			if info, err := os.Stat(cmd.OutputPath); err == nil {
				used += info.Size()
			}
			if used > cmd.Limits.MaxDiskBytes {
				tripped.Store(true)
				h.Stop(context.Background())
				return
			}
		}
	}
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}
