// Package engine provides the Engine interface for image processing
// backends: the CLI engine run as a direct child process or inside a
// container, and the AI inference collaborator behind the same contract.
package engine

import (
	"context"
	"sync"
)

// DefaultMaxOutputBytes bounds captured stdout/stderr per stream so a
// pathological engine cannot blow up worker memory.
const DefaultMaxOutputBytes = 1 << 20

// StartOptions contains the parameters for starting one invocation.
type StartOptions struct {
	// Binary is the CLI engine executable ("magick"). Ignored by the
	// inference backend.
	Binary string

	// Argv is the compiled vector: input path first, output path last.
	// It is passed as-is, never through a shell.
	Argv []string

	// WorkDir restricts the child to a guard-approved directory.
	WorkDir string

	// MemoryBytes is enforced by the container backend; the process
	// backend relies on the engine-level directives inside Argv.
	MemoryBytes int64

	// MaxOutputBytes bounds captured output per stream. Zero means
	// DefaultMaxOutputBytes.
	MaxOutputBytes int64
}

// ExitResult is the outcome reported by Handle.Wait.
type ExitResult struct {
	ExitCode int
	Error    error
}

// Handle represents one running invocation.
type Handle interface {
	// Wait blocks until the invocation completes.
	Wait(ctx context.Context) (ExitResult, error)

	// Stop terminates the invocation: graceful first, forced after a
	// short grace period.
	Stop(ctx context.Context) error

	// Output returns the captured (bounded) stdout and stderr. Safe to
	// call while the invocation runs; complete once it has exited.
	Output() (stdout, stderr []byte)
}

// Engine starts invocations. Implementations: process, docker, inference.
type Engine interface {
	Start(ctx context.Context, opts StartOptions) (Handle, error)
}

// boundedBuffer captures up to limit bytes and drops the rest, remembering
// how much was discarded. Writes come from the engine's copier goroutines
// while Bytes may be called by the supervising goroutine, hence the lock.
type boundedBuffer struct {
	mu      sync.Mutex
	limit   int64
	buf     []byte
	dropped int64
}

func newBoundedBuffer(limit int64) *boundedBuffer {
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.limit - int64(len(b.buf))
	if room > 0 {
		take := int64(len(p))
		if take > room {
			take = room
		}
		b.buf = append(b.buf, p[:take]...)
		b.dropped += int64(len(p)) - take
	} else {
		b.dropped += int64(len(p))
	}
	return len(p), nil
}

func (b *boundedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	if b.dropped > 0 {
		out = append(out, []byte("\n[output truncated]")...)
	}
	return out
}
