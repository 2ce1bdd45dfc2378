// Package worker contains the worker-side pull loop for job item execution.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"imageforge/internal/catalog"
	"imageforge/internal/compiler"
	"imageforge/internal/executor"
	"imageforge/internal/guard"
	"imageforge/internal/observability"
	"imageforge/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AgentConfig holds configuration for the worker agent.
type AgentConfig struct {
	ID           string
	Concurrency  int
	PollInterval time.Duration
	MaxBackoff   time.Duration // Maximum backoff when queue is empty (default: 30s)
}

// Agent is the main worker agent that runs the pull-loop for item execution.
type Agent struct {
	queue    store.Queue
	compiler *compiler.Compiler
	exec     *executor.Executor
	config   AgentConfig
	metrics  *observability.WorkerMetrics // nil disables recording
	done     chan struct{}
}

// SetMetrics attaches the worker instruments. Must be called before Run.
func (a *Agent) SetMetrics(m *observability.WorkerMetrics) {
	a.metrics = m
}

// New creates a new worker agent.
func New(q store.Queue, comp *compiler.Compiler, exec *executor.Executor, config AgentConfig) *Agent {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}

	if config.PollInterval <= 0 {
		config.PollInterval = 1 * time.Second
	}

	if config.MaxBackoff <= 0 {
		config.MaxBackoff = 30 * time.Second
	}

	return &Agent{
		queue:    q,
		compiler: comp,
		exec:     exec,
		config:   config,
		done:     make(chan struct{}),
	}
}

// Run starts the main pull-loop. It blocks until the context is cancelled.
// On SIGTERM, it stops dequeuing new work and allows in-flight items to finish.
func (a *Agent) Run(ctx context.Context) error {
	log.Printf("Agent %s starting with concurrency %d", a.config.ID, a.config.Concurrency)

	// Semaphore to limit concurrency
	sem := make(chan struct{}, a.config.Concurrency)
	var wg sync.WaitGroup

	// Channel to signal when a slot becomes available (adaptive polling)
	pollNow := make(chan struct{}, 1)

	// Current backoff duration (increases on empty queue, resets on work found)
	currentBackoff := a.config.PollInterval

	// Helper to trigger immediate non-blocking re-poll
	triggerPoll := func() {
		select {
		case pollNow <- struct{}{}:
		default:
			// Already a poll pending
		}
	}

	// Initial poll
	triggerPoll()

	for {
		select {
		case <-ctx.Done():
			log.Println("Context cancelled, waiting for running items to finish...")
			wg.Wait()
			close(a.done)
			return ctx.Err()

		case <-time.After(currentBackoff):
			// Timer-based poll (with backoff)
			triggerPoll()

		case <-pollNow:
			// Count available slots
			availableSlots := a.config.Concurrency - len(sem)
			if availableSlots <= 0 {
				continue
			}

			// Batch dequeue up to available slots
			items, err := a.queue.DequeueBatch(ctx, availableSlots)
			if err != nil {
				log.Printf("DequeueBatch error: %v", err)
				continue
			}

			if len(items) == 0 {
				// Empty queue - increase backoff (exponential, capped at MaxBackoff)
				currentBackoff = currentBackoff * 2
				if currentBackoff > a.config.MaxBackoff {
					currentBackoff = a.config.MaxBackoff
				}
				continue
			}

			// Found work - reset backoff to minimum
			currentBackoff = a.config.PollInterval

			log.Printf("Claimed %d items", len(items))

			// Dispatch each item to a worker goroutine
			for _, item := range items {
				// Acquire semaphore slot
				sem <- struct{}{}

				wg.Add(1)
				go func(item store.QueueItem) {
					defer wg.Done()
					defer func() {
						<-sem
						// Signal that a slot is now available - trigger immediate re-poll
						triggerPoll()
					}()
					a.processItem(ctx, item)
				}(item)
			}

			// If we got items and there are still slots available, poll again immediately
			if len(items) > 0 && len(items) < availableSlots {
				triggerPoll()
			}
		}
	}
}

// Done returns a channel that is closed when the agent has fully stopped.
func (a *Agent) Done() <-chan struct{} {
	return a.done
}

// processItem compiles and executes a single claimed item, then settles it
// and rolls the owning job up if it was the last one in flight.
func (a *Agent) processItem(ctx context.Context, item store.QueueItem) {
	tracer := otel.Tracer("worker-agent")
	spanCtx, span := tracer.Start(ctx, "process_item",
		trace.WithAttributes(
			attribute.String("item.id", item.ItemID.String()),
			attribute.String("job.id", item.JobID.String()),
			attribute.Int("item.seq", item.Seq),
		),
		trace.WithSpanKind(trace.SpanKindConsumer),
	)
	defer span.End()

	log.Printf("Processing item %s (job %s, seq %d)", item.ItemID, item.JobID, item.Seq)

	cmd, err := a.compile(item)
	if err != nil {
		span.RecordError(err)
		a.metrics.RecordItem(spanCtx, string(executor.ReasonInternal), 0, 0)
		log.Printf("Compile failed for item %s: %v", item.ItemID, err)
		a.settleFailure(item, executor.ReasonInternal, compileMessage(err))
		return
	}

	// Execution gets its own context derived from the span so the item
	// finishes even when SIGTERM arrives (graceful drain). The executor
	// applies the command's own duration limit.
	execCtx := context.WithoutCancel(spanCtx)

	start := time.Now()
	result, err := a.exec.Execute(execCtx, cmd)
	if err != nil {
		span.RecordError(err)
		reason := executor.ReasonOf(err)
		span.SetAttributes(attribute.String("failure.reason", string(reason)))
		a.metrics.RecordItem(execCtx, string(reason), time.Since(start), 0)
		log.Printf("Item %s failed: %v", item.ItemID, err)
		a.settleFailure(item, reason, err.Error())
		return
	}

	a.metrics.RecordItem(execCtx, "done", result.Duration, result.OutputSize)
	span.SetAttributes(attribute.Int64("output.size", result.OutputSize))
	log.Printf("Item %s completed (%d bytes in %s)", item.ItemID, result.OutputSize, result.Duration)

	if err := a.queue.CompleteItem(context.Background(), nil, item.ItemID, result.OutputPath, result.OutputSize); err != nil {
		log.Printf("CompleteItem failed for %s: %v", item.ItemID, err)
	}
	a.finalize(item.JobID)
}

// compile turns the queue payload back into an executable command. Raw jobs
// go through the terminal-mode vetting path, structured jobs through the
// catalog renderers.
func (a *Agent) compile(item store.QueueItem) (*compiler.CompiledCommand, error) {
	opts := compiler.Options{OutputFormat: item.OutputFormat, Quality: item.Quality}

	if item.RawCommand != nil {
		return a.compiler.CompileRaw(*item.RawCommand, item.InputPath, opts)
	}

	var reqs []catalog.Request
	if err := json.Unmarshal(item.Pipeline, &reqs); err != nil {
		return nil, fmt.Errorf("invalid pipeline payload: %w", err)
	}
	return a.compiler.Compile(reqs, item.InputPath, opts)
}

// compileMessage is the persisted form of a compile failure. Rejected paths
// surface in the job API, so their detail stays in the worker log.
func compileMessage(err error) string {
	var pe *guard.PathError
	if errors.As(err, &pe) {
		return "compile failed: input path no longer valid"
	}
	return fmt.Sprintf("compile failed: %v", err)
}

func (a *Agent) settleFailure(item store.QueueItem, reason executor.FailureReason, msg string) {
	if err := a.queue.FailItem(context.Background(), nil, item.ItemID, string(reason), msg); err != nil {
		log.Printf("FailItem failed for %s: %v", item.ItemID, err)
	}
	a.finalize(item.JobID)
}

func (a *Agent) finalize(jobID uuid.UUID) {
	status, final, err := a.queue.FinalizeJob(context.Background(), jobID)
	if err != nil {
		log.Printf("FinalizeJob failed for %s: %v", jobID, err)
		return
	}
	if final {
		log.Printf("Job %s finished with status %s", jobID, status)
	}
}
