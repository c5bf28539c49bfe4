package jobx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Abraxas-365/remodel/pkg/jobx"

// JobEnqueuer enqueues jobs for processing.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	EnqueueDelayed(ctx context.Context, job Job, delay time.Duration) (string, error)
}

// JobStatusReader reads job status.
type JobStatusReader interface {
	GetJob(ctx context.Context, jobID string) (*JobInfo, error)
}

// JobProcessor provides backend operations for the worker loop.
type JobProcessor interface {
	// Dequeue blocks up to timeout for a job of queue and marks it active.
	// It returns nil, nil when the timeout expires.
	Dequeue(ctx context.Context, queue string, timeout time.Duration) (*JobInfo, error)
	Complete(ctx context.Context, jobID string) error
	// Fail records a failed attempt. With retry false the job becomes terminal.
	Fail(ctx context.Context, jobID string, attemptsMade int, errMsg string, retry bool) error
	Retry(ctx context.Context, jobID string, delay time.Duration) error
	PromoteScheduled(ctx context.Context, queue string) error
}

// Queue combines all backend operations.
type Queue interface {
	JobEnqueuer
	JobStatusReader
	JobProcessor
}

// Client is the main entry point for enqueuing and processing jobs.
type Client struct {
	queue   Queue
	opts    WorkerOptions
	tracer  trace.Tracer
	defs    map[string]Definition
	mu      sync.RWMutex
	running bool
}

// NewClient creates a new job processing client.
func NewClient(queue Queue, options ...WorkerOption) *Client {
	opts := defaultWorkerOptions()
	for _, o := range options {
		o(&opts)
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Client{
		queue:  queue,
		opts:   opts,
		tracer: tracer,
		defs:   make(map[string]Definition),
	}
}

// Register binds queue to def. A definition without a handler only sets
// enqueue defaults, which is what producer-only processes need.
func (c *Client) Register(queue string, def Definition) {
	if def.Concurrency <= 0 {
		def.Concurrency = 1
	}
	if def.Attempts <= 0 {
		def.Attempts = 3
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[queue] = def
}

// Queues returns the registered queue names.
func (c *Client) Queues() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.defs))
	for name := range c.defs {
		names = append(names, name)
	}
	return names
}

// Enqueue serializes payload and adds it to queue. payload may already be
// encoded as json.RawMessage.
func (c *Client) Enqueue(ctx context.Context, queue string, payload any, options ...EnqueueOption) (string, error) {
	var eo EnqueueOptions
	for _, o := range options {
		o(&eo)
	}

	raw, err := encodePayload(payload)
	if err != nil {
		return "", jobxErrors.NewWithCause(ErrEnqueueFailed, err).WithDetail("queue", queue)
	}

	c.mu.RLock()
	def, ok := c.defs[queue]
	c.mu.RUnlock()

	job := Job{
		Queue:       queue,
		Payload:     raw,
		MaxAttempts: 3,
		RequestID:   eo.RequestID,
	}
	if ok {
		job.MaxAttempts = def.Attempts
		job.Backoff = def.Backoff
	}
	if eo.Attempts > 0 {
		job.MaxAttempts = eo.Attempts
	}
	if eo.Backoff != nil {
		job.Backoff = *eo.Backoff
	}
	if job.RequestID == "" {
		job.RequestID = logx.RequestIDFromContext(ctx)
	}

	var id string
	if eo.Delay > 0 {
		id, err = c.queue.EnqueueDelayed(ctx, job, eo.Delay)
	} else {
		id, err = c.queue.Enqueue(ctx, job)
	}
	if err != nil {
		return "", err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id": id,
		"queue":  queue,
	}).Debug("jobx: job enqueued")
	return id, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return p, nil
	case []byte:
		if !json.Valid(p) {
			return nil, fmt.Errorf("payload is not valid JSON")
		}
		return json.RawMessage(p), nil
	default:
		return json.Marshal(payload)
	}
}

// GetJob returns the current state of a job.
func (c *Client) GetJob(ctx context.Context, jobID string) (*JobInfo, error) {
	return c.queue.GetJob(ctx, jobID)
}

// Start begins processing every registered queue. It blocks until ctx is
// cancelled and in-flight jobs have finished or ShutdownTimeout elapsed.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return jobxErrors.New(ErrAlreadyRunning)
	}
	defs := make(map[string]Definition, len(c.defs))
	for name, def := range c.defs {
		if def.Handler != nil {
			defs[name] = def
		}
	}
	if len(defs) == 0 {
		c.mu.Unlock()
		return jobxErrors.New(ErrNoHandlers)
	}
	c.running = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	var wg sync.WaitGroup

	for name, def := range defs {
		logx.Infof("jobx: starting %d workers on queue %s", def.Concurrency, name)

		// Scheduler goroutine: promotes delayed jobs to the ready queue.
		wg.Add(1)
		go func(queue string) {
			defer wg.Done()
			c.schedulerLoop(ctx, queue)
		}(name)

		for i := range def.Concurrency {
			wg.Add(1)
			go func(queue string, def Definition, id int) {
				defer wg.Done()
				c.workerLoop(ctx, queue, def, id)
			}(name, def, i)
		}
	}

	<-ctx.Done()
	logx.Info("jobx: shutting down workers...")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logx.Info("jobx: all workers stopped")
	case <-time.After(c.opts.ShutdownTimeout):
		logx.Warn("jobx: shutdown timed out, some jobs may not have completed")
	}

	return nil
}

// RunOnce promotes due jobs of queue, then dequeues and processes at most
// one job. It reports whether a job was processed.
func (c *Client) RunOnce(ctx context.Context, queue string, timeout time.Duration) (bool, error) {
	c.mu.RLock()
	def, ok := c.defs[queue]
	c.mu.RUnlock()
	if !ok || def.Handler == nil {
		return false, jobxErrors.New(ErrUnknownQueue).WithDetail("queue", queue)
	}

	if err := c.queue.PromoteScheduled(ctx, queue); err != nil {
		return false, err
	}
	job, err := c.queue.Dequeue(ctx, queue, timeout)
	if err != nil || job == nil {
		return false, err
	}
	c.processJob(ctx, queue, def, job)
	return true, nil
}

func (c *Client) schedulerLoop(ctx context.Context, queue string) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.queue.PromoteScheduled(ctx, queue); err != nil {
				if ctx.Err() != nil {
					return
				}
				logx.WithError(err).WithField("queue", queue).Warn("jobx: failed to promote scheduled jobs")
			}
		}
	}
}

func (c *Client) workerLoop(ctx context.Context, queue string, def Definition, id int) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := c.queue.Dequeue(ctx, queue, c.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logx.WithError(err).Warnf("jobx: worker %s/%d dequeue error", queue, id)
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.opts.PollInterval):
			}
			continue
		}
		if job == nil {
			continue
		}

		// A started job runs to completion even when shutdown begins.
		c.processJob(context.WithoutCancel(ctx), queue, def, job)
	}
}

func (c *Client) processJob(ctx context.Context, queue string, def Definition, job *JobInfo) {
	if job.RequestID != "" {
		ctx = logx.ContextWithRequestID(ctx, job.RequestID)
	}

	ctx, span := c.tracer.Start(ctx, "jobx.process "+queue,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("jobx.job_id", job.ID),
			attribute.String("jobx.queue", queue),
			attribute.Int("jobx.attempt", job.AttemptsMade+1),
			attribute.Int("jobx.max_attempts", job.MaxAttempts),
		),
	)
	defer span.End()

	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":       job.ID,
		"queue":        queue,
		"attempt":      job.AttemptsMade + 1,
		"max_attempts": job.MaxAttempts,
	})

	payload, err := def.Handler.Decode(job.Payload)
	if err != nil {
		rejected := err
		if !IsPermanent(err) {
			rejected = jobxErrors.NewWithCause(ErrInvalidPayload, err)
		}
		span.RecordError(rejected)
		span.SetStatus(codes.Error, "invalid payload")
		log.WithError(rejected).Warn("jobx: payload rejected")

		if def.OnRejected != nil {
			def.OnRejected(ctx, job, rejected)
		}
		// Nothing ran, so the attempt counter stays where it was.
		c.terminate(ctx, queue, def, job, job.AttemptsMade, rejected)
		return
	}

	err = c.run(ctx, def, job, payload)
	if err == nil {
		if cErr := c.queue.Complete(ctx, job.ID); cErr != nil {
			log.WithError(cErr).Error("jobx: failed to complete job")
		}
		span.SetStatus(codes.Ok, "")
		log.Debug("jobx: job completed")
		return
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	attempts := job.AttemptsMade + 1
	class := Classify(err)
	span.SetAttributes(attribute.String("jobx.error_class", class.String()))

	switch {
	case class == ClassPermanent:
		log.WithError(err).Warn("jobx: job failed permanently")
		c.terminate(ctx, queue, def, job, attempts, err)

	case attempts >= job.MaxAttempts:
		exhausted := jobxErrors.NewWithCause(ErrExhaustedRetries, err).
			WithDetail("attempts", attempts)
		log.WithError(err).Warn("jobx: job exhausted its attempts")
		c.terminate(ctx, queue, def, job, attempts, exhausted)

	default:
		delay := job.Backoff.Next(job.AttemptsMade)
		if job.Backoff.MaxDelay == 0 && c.opts.MaxBackoff > 0 && delay > c.opts.MaxBackoff {
			delay = c.opts.MaxBackoff
		}
		log.WithError(err).WithField("retry_in", delay.String()).Warn("jobx: job failed, retrying")

		if fErr := c.queue.Fail(ctx, job.ID, attempts, err.Error(), true); fErr != nil {
			log.WithError(fErr).Error("jobx: failed to record failed attempt")
			return
		}
		if rErr := c.queue.Retry(ctx, job.ID, delay); rErr != nil {
			// The job is in no ready or scheduled set; fail it rather than lose it.
			log.WithError(rErr).Error("jobx: failed to schedule retry")
			unscheduled := jobxErrors.NewWithCause(ErrRetryUnscheduled, err).
				WithDetail("retry_error", rErr.Error())
			c.terminate(ctx, queue, def, job, attempts, unscheduled)
		}
	}
}

func (c *Client) run(ctx context.Context, def Definition, job *JobInfo, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = jobxErrors.New(ErrHandlerPanic).WithDetail("panic", fmt.Sprint(r))
		}
	}()
	return def.Handler.Run(ctx, job, payload)
}

// terminate moves the job to failed and hands it to the dead letter sink
// when the queue has one. Called at most once per job.
func (c *Client) terminate(ctx context.Context, queue string, def Definition, job *JobInfo, attempts int, cause error) {
	if attempts > job.MaxAttempts {
		attempts = job.MaxAttempts
	}
	if err := c.queue.Fail(ctx, job.ID, attempts, cause.Error(), false); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("job_id", job.ID).Error("jobx: failed to mark job as failed")
	}

	if !def.DeadLetter || c.opts.DeadLetters == nil {
		return
	}
	c.opts.DeadLetters.Record(ctx, dlqx.Entry{
		OriginalJobID: job.ID,
		SourceQueue:   queue,
		Reason:        cause.Error(),
		Payload:       job.Payload,
		AttemptsMade:  attempts,
		RequestID:     job.RequestID,
		FailedAt:      time.Now().UTC(),
	})
}
