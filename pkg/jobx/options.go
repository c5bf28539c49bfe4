package jobx

import (
	"context"
	"time"

	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"go.opentelemetry.io/otel/trace"
)

// DeadLetterRecorder receives jobs that reached a terminal failure.
// Record must not fail the caller.
type DeadLetterRecorder interface {
	Record(ctx context.Context, entry dlqx.Entry)
}

// WorkerOptions configures the job processing client.
type WorkerOptions struct {
	PollInterval    time.Duration
	ShutdownTimeout time.Duration
	DequeueTimeout  time.Duration
	MaxBackoff      time.Duration
	DeadLetters     DeadLetterRecorder
	Tracer          trace.Tracer
}

func defaultWorkerOptions() WorkerOptions {
	return WorkerOptions{
		PollInterval:    time.Second,
		ShutdownTimeout: 30 * time.Second,
		DequeueTimeout:  5 * time.Second,
		MaxBackoff:      10 * time.Minute,
	}
}

// WorkerOption is a functional option for configuring the client.
type WorkerOption func(*WorkerOptions)

// WithPollInterval sets how often scheduled jobs are promoted and how long
// a worker waits after a store error.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.PollInterval = d
		}
	}
}

// WithShutdownTimeout sets the maximum time to wait for workers to finish on shutdown.
func WithShutdownTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.ShutdownTimeout = d
	}
}

// WithDequeueTimeout sets the timeout passed to the blocking dequeue call.
func WithDequeueTimeout(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		if d > 0 {
			o.DequeueTimeout = d
		}
	}
}

// WithMaxBackoff caps retry delays of jobs whose Backoff has no MaxDelay.
func WithMaxBackoff(d time.Duration) WorkerOption {
	return func(o *WorkerOptions) {
		o.MaxBackoff = d
	}
}

// WithDeadLetters sets the sink for terminally failed jobs of queues
// registered with DeadLetter enabled.
func WithDeadLetters(r DeadLetterRecorder) WorkerOption {
	return func(o *WorkerOptions) {
		o.DeadLetters = r
	}
}

// WithTracer overrides the tracer used for job spans.
func WithTracer(t trace.Tracer) WorkerOption {
	return func(o *WorkerOptions) {
		o.Tracer = t
	}
}

// EnqueueOptions tune a single enqueue call.
type EnqueueOptions struct {
	Attempts  int
	Backoff   *Backoff
	Delay     time.Duration
	RequestID string
}

// EnqueueOption is a functional option for Enqueue.
type EnqueueOption func(*EnqueueOptions)

// WithAttempts overrides the queue's max attempts.
func WithAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) { o.Attempts = n }
}

// WithBackoff overrides the queue's retry policy.
func WithBackoff(b Backoff) EnqueueOption {
	return func(o *EnqueueOptions) { o.Backoff = &b }
}

// WithDelay makes the job available only after d.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.Delay = d }
}

// WithRequestID sets the correlating request id. By default it is taken
// from the enqueuing context.
func WithRequestID(id string) EnqueueOption {
	return func(o *EnqueueOptions) { o.RequestID = id }
}
