package jobx_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/dlqx"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/jobx/jobxmemory"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type renderPayload struct {
	SessionID string `json:"sessionId" validate:"required"`
	AssetID   string `json:"assetId" validate:"required"`
}

type harness struct {
	queue *jobxmemory.Queue
	sink  *dlqx.MemorySink
	dlq   *dlqx.DeadLetters
	jobs  *jobx.Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{queue: jobxmemory.New(), sink: dlqx.NewMemorySink(0)}
	h.dlq = dlqx.New(dlqx.MemoryFactory(h.sink))
	h.jobs = jobx.NewClient(h.queue,
		jobx.WithDeadLetters(h.dlq),
		jobx.WithPollInterval(5*time.Millisecond),
		jobx.WithDequeueTimeout(20*time.Millisecond),
		jobx.WithShutdownTimeout(time.Second),
	)
	return h
}

// drain runs the queue one job at a time until nothing is left.
func (h *harness) drain(t *testing.T, queue string) {
	t.Helper()
	for i := 0; i < 50; i++ {
		processed, err := h.jobs.RunOnce(context.Background(), queue, 10*time.Millisecond)
		require.NoError(t, err)
		if !processed {
			return
		}
	}
	t.Fatal("queue did not drain")
}

func (h *harness) deadLetters(t *testing.T, queue string) []dlqx.Entry {
	t.Helper()
	entries, err := h.dlq.List(context.Background(), queue, 100)
	require.NoError(t, err)
	return entries
}

func immediateRetry() jobx.Backoff {
	return jobx.Backoff{Type: jobx.BackoffFixed}
}

func TestClient_CompletesJob(t *testing.T) {
	h := newHarness(t)
	var got renderPayload
	h.jobs.Register("render:generate", jobx.Definition{
		Attempts: 3,
		Handler: jobx.Handle(func(ctx context.Context, job *jobx.JobInfo, p renderPayload) error {
			got = p
			return nil
		}),
	})

	id, err := h.jobs.Enqueue(context.Background(), "render:generate", renderPayload{SessionID: "s1", AssetID: "a1"})
	require.NoError(t, err)
	h.drain(t, "render:generate")

	info, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusCompleted, info.Status)
	assert.Equal(t, 0, info.AttemptsMade)
	assert.Equal(t, "a1", got.AssetID)
}

func TestClient_RetriableFailureExhaustsAttempts(t *testing.T) {
	h := newHarness(t)
	var calls int
	var finals []bool
	h.jobs.Register("render:generate", jobx.Definition{
		Attempts:   3,
		Backoff:    immediateRetry(),
		DeadLetter: true,
		Handler: jobx.Handle(func(ctx context.Context, job *jobx.JobInfo, p renderPayload) error {
			calls++
			finals = append(finals, job.IsFinalAttempt())
			return errors.New("provider returned 503")
		}),
	})

	id, err := h.jobs.Enqueue(context.Background(), "render:generate", renderPayload{SessionID: "s1", AssetID: "a1"})
	require.NoError(t, err)
	h.drain(t, "render:generate")

	assert.Equal(t, 3, calls)
	assert.Equal(t, []bool{false, false, true}, finals)

	info, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusFailed, info.Status)
	assert.Equal(t, 3, info.AttemptsMade)

	entries := h.deadLetters(t, "render:generate")
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].OriginalJobID)
	assert.Equal(t, 3, entries[0].AttemptsMade)
	assert.Contains(t, entries[0].Reason, "provider returned 503")
}

func TestClient_PermanentFailureNeverRetries(t *testing.T) {
	h := newHarness(t)
	var calls int
	h.jobs.Register("email:send-notification", jobx.Definition{
		Attempts:   5,
		Backoff:    immediateRetry(),
		DeadLetter: true,
		Handler: jobx.HandlerFunc(func(ctx context.Context, job *jobx.JobInfo) error {
			calls++
			return jobx.Permanent(errors.New("recipient rejected"))
		}),
	})

	id, err := h.jobs.Enqueue(context.Background(), "email:send-notification", map[string]string{"to": "x@example.com"})
	require.NoError(t, err)
	h.drain(t, "email:send-notification")

	assert.Equal(t, 1, calls)
	info, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusFailed, info.Status)
	assert.Equal(t, 1, info.AttemptsMade)
	assert.Len(t, h.deadLetters(t, "email:send-notification"), 1)
}

func TestClient_InvalidPayloadSkipsHandler(t *testing.T) {
	h := newHarness(t)
	var calls int
	var rejected error
	h.jobs.Register("render:generate", jobx.Definition{
		Attempts:   3,
		DeadLetter: true,
		Handler: jobx.Handle(func(ctx context.Context, job *jobx.JobInfo, p renderPayload) error {
			calls++
			return nil
		}),
		OnRejected: func(ctx context.Context, job *jobx.JobInfo, err error) {
			rejected = err
		},
	})

	id, err := h.jobs.Enqueue(context.Background(), "render:generate", json.RawMessage(`{"sessionId":"s1"}`))
	require.NoError(t, err)
	h.drain(t, "render:generate")

	assert.Zero(t, calls)
	require.Error(t, rejected)
	assert.True(t, jobx.IsPermanent(rejected))

	info, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusFailed, info.Status)
	assert.Equal(t, 0, info.AttemptsMade)
	assert.Len(t, h.deadLetters(t, "render:generate"), 1)
}

func TestClient_NoDeadLetterWithoutSink(t *testing.T) {
	h := newHarness(t)
	h.jobs.Register("image:optimize", jobx.Definition{
		Attempts: 1,
		Handler: jobx.HandlerFunc(func(ctx context.Context, job *jobx.JobInfo) error {
			return errors.New("decode failed")
		}),
	})

	_, err := h.jobs.Enqueue(context.Background(), "image:optimize", map[string]string{"assetId": "a1"})
	require.NoError(t, err)
	h.drain(t, "image:optimize")

	assert.False(t, h.dlq.Initialized())
}

// retryFails is a queue whose Retry always errors.
type retryFails struct {
	*jobxmemory.Queue
}

func (retryFails) Retry(context.Context, string, time.Duration) error {
	return errors.New("READONLY You can't write against a read only replica.")
}

func TestClient_UnschedulableRetryIsDeadLettered(t *testing.T) {
	sink := dlqx.NewMemorySink(0)
	dlq := dlqx.New(dlqx.MemoryFactory(sink))
	client := jobx.NewClient(retryFails{jobxmemory.New()}, jobx.WithDeadLetters(dlq))

	var calls int
	client.Register("render:generate", jobx.Definition{
		Attempts:   3,
		Backoff:    immediateRetry(),
		DeadLetter: true,
		Handler: jobx.Handle(func(ctx context.Context, job *jobx.JobInfo, p renderPayload) error {
			calls++
			return errors.New("provider returned 503")
		}),
	})

	id, err := client.Enqueue(context.Background(), "render:generate", renderPayload{SessionID: "s1", AssetID: "a1"})
	require.NoError(t, err)
	processed, err := client.RunOnce(context.Background(), "render:generate", 10*time.Millisecond)
	require.NoError(t, err)
	require.True(t, processed)
	processed, err = client.RunOnce(context.Background(), "render:generate", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, processed)
	assert.Equal(t, 1, calls)

	info, err := client.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusFailed, info.Status)
	assert.Equal(t, 1, info.AttemptsMade)

	entries, err := dlq.List(context.Background(), "render:generate", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].OriginalJobID)
	assert.Contains(t, entries[0].Reason, "provider returned 503")
}

func TestClient_PanicIsRetried(t *testing.T) {
	h := newHarness(t)
	var calls int
	h.jobs.Register("doc:generate-plan", jobx.Definition{
		Attempts: 2,
		Backoff:  immediateRetry(),
		Handler: jobx.HandlerFunc(func(ctx context.Context, job *jobx.JobInfo) error {
			calls++
			if calls == 1 {
				panic("nil map")
			}
			return nil
		}),
	})

	id, err := h.jobs.Enqueue(context.Background(), "doc:generate-plan", map[string]string{"roomId": "r1"})
	require.NoError(t, err)
	h.drain(t, "doc:generate-plan")

	info, err := h.jobs.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, jobx.JobStatusCompleted, info.Status)
	assert.Equal(t, 1, info.AttemptsMade)
	assert.Equal(t, 2, calls)
}

func TestClient_EnqueueAppliesDefaultsAndRequestID(t *testing.T) {
	h := newHarness(t)
	backoff := jobx.Backoff{Type: jobx.BackoffExponential, Delay: time.Second}
	h.jobs.Register("email:send-notification", jobx.Definition{Attempts: 5, Backoff: backoff})

	ctx := logx.ContextWithRequestID(context.Background(), "req-7")
	id, err := h.jobs.Enqueue(ctx, "email:send-notification", map[string]string{"to": "a@b.co"})
	require.NoError(t, err)

	info, err := h.jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 5, info.MaxAttempts)
	assert.Equal(t, backoff, info.Backoff)
	assert.Equal(t, "req-7", info.RequestID)
	assert.Equal(t, jobx.JobStatusWaiting, info.Status)

	id, err = h.jobs.Enqueue(ctx, "email:send-notification", map[string]string{"to": "a@b.co"},
		jobx.WithAttempts(2), jobx.WithRequestID("req-8"), jobx.WithDelay(time.Hour))
	require.NoError(t, err)
	info, err = h.jobs.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, info.MaxAttempts)
	assert.Equal(t, "req-8", info.RequestID)
	assert.Equal(t, 1, h.queue.Len("email:send-notification"))
}

func TestClient_EnqueueRejectsInvalidJSON(t *testing.T) {
	h := newHarness(t)
	_, err := h.jobs.Enqueue(context.Background(), "q", []byte("{not json"))
	assert.Error(t, err)
}

func TestClient_StartRespectsConcurrency(t *testing.T) {
	h := newHarness(t)

	var active, peak, done int32
	var mu sync.Mutex
	h.jobs.Register("email:send-notification", jobx.Definition{
		Concurrency: 2,
		Attempts:    1,
		Handler: jobx.HandlerFunc(func(ctx context.Context, job *jobx.JobInfo) error {
			n := atomic.AddInt32(&active, 1)
			mu.Lock()
			if n > peak {
				peak = n
			}
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			atomic.AddInt32(&done, 1)
			return nil
		}),
	})

	for i := 0; i < 6; i++ {
		_, err := h.jobs.Enqueue(context.Background(), "email:send-notification", map[string]int{"n": i})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- h.jobs.Start(ctx) }()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&done) == 6 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-errCh)

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, int32(2))
}

func TestClient_StartWithoutHandlers(t *testing.T) {
	h := newHarness(t)
	h.jobs.Register("email:send-notification", jobx.Definition{Attempts: 5})
	err := h.jobs.Start(context.Background())
	require.Error(t, err)
}

func TestClient_RunOnceUnknownQueue(t *testing.T) {
	h := newHarness(t)
	_, err := h.jobs.RunOnce(context.Background(), "nope", time.Millisecond)
	assert.Error(t, err)
}
