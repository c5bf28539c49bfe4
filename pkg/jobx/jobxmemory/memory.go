// Package jobxmemory is an in-process jobx.Queue for tests and single-process
// development. Jobs do not survive a restart.
package jobxmemory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/google/uuid"
)

var memoryErrors = errx.NewRegistry("JOBX_MEMORY")

var ErrNotFound = memoryErrors.Register("NOT_FOUND", errx.TypeNotFound, 404, "Job not found")

type scheduled struct {
	id  string
	due time.Time
}

// Queue implements jobx.Queue in memory.
type Queue struct {
	mu        sync.Mutex
	jobs      map[string]*jobx.JobInfo
	ready     map[string][]string
	scheduled map[string][]scheduled
	wake      chan struct{}
	now       func() time.Time
}

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{
		jobs:      make(map[string]*jobx.JobInfo),
		ready:     make(map[string][]string),
		scheduled: make(map[string][]scheduled),
		wake:      make(chan struct{}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// signal wakes every blocked Dequeue. Callers hold mu.
func (q *Queue) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *Queue) Enqueue(_ context.Context, job jobx.Job) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	q.jobs[id] = jobx.NewJobInfo(id, job, q.now())
	q.ready[job.Queue] = append(q.ready[job.Queue], id)
	q.signal()
	return id, nil
}

func (q *Queue) EnqueueDelayed(_ context.Context, job jobx.Job, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := uuid.NewString()
	now := q.now()
	q.jobs[id] = jobx.NewJobInfo(id, job, now)
	q.scheduled[job.Queue] = append(q.scheduled[job.Queue], scheduled{id: id, due: now.Add(delay)})
	return id, nil
}

// GetJob returns a copy of the job.
func (q *Queue) GetJob(_ context.Context, jobID string) (*jobx.JobInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return nil, memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	cp := *info
	return &cp, nil
}

func (q *Queue) Dequeue(ctx context.Context, queue string, timeout time.Duration) (*jobx.JobInfo, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		q.mu.Lock()
		if ids := q.ready[queue]; len(ids) > 0 {
			id := ids[0]
			q.ready[queue] = ids[1:]
			info := q.jobs[id]
			info.Status = jobx.JobStatusActive
			info.UpdatedAt = q.now()
			cp := *info
			q.mu.Unlock()
			return &cp, nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, nil
		case <-timer.C:
			return nil, nil
		case <-wake:
		}
	}
}

func (q *Queue) Complete(_ context.Context, jobID string) error {
	return q.update(jobID, func(info *jobx.JobInfo) {
		info.Status = jobx.JobStatusCompleted
		info.Error = ""
	})
}

func (q *Queue) Fail(_ context.Context, jobID string, attemptsMade int, errMsg string, retry bool) error {
	return q.update(jobID, func(info *jobx.JobInfo) {
		if attemptsMade > info.AttemptsMade {
			info.AttemptsMade = min(attemptsMade, info.MaxAttempts)
		}
		info.Error = errMsg
		if retry {
			info.Status = jobx.JobStatusWaiting
		} else {
			info.Status = jobx.JobStatusFailed
		}
	})
}

// Retry makes the job ready again after delay; a non-positive delay makes
// it ready immediately.
func (q *Queue) Retry(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	if delay <= 0 {
		q.ready[info.Queue] = append(q.ready[info.Queue], jobID)
		q.signal()
		return nil
	}
	q.scheduled[info.Queue] = append(q.scheduled[info.Queue], scheduled{id: jobID, due: q.now().Add(delay)})
	return nil
}

func (q *Queue) PromoteScheduled(_ context.Context, queue string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	pending := q.scheduled[queue]
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].due.Before(pending[j].due) })

	var keep []scheduled
	promoted := 0
	for _, s := range pending {
		if s.due.After(now) {
			keep = append(keep, s)
			continue
		}
		q.ready[queue] = append(q.ready[queue], s.id)
		promoted++
	}
	q.scheduled[queue] = keep
	if promoted > 0 {
		q.signal()
	}
	return nil
}

// Len returns the number of ready jobs of queue.
func (q *Queue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready[queue])
}

func (q *Queue) update(jobID string, fn func(*jobx.JobInfo)) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	info, ok := q.jobs[jobID]
	if !ok {
		return memoryErrors.New(ErrNotFound).WithDetail("job_id", jobID)
	}
	fn(info)
	info.UpdatedAt = q.now()
	return nil
}
