// Package dlqx records jobs that failed for good, for later inspection.
//
// DeadLetters is built once by the composition root with a SinkFactory and
// shared by every worker. The sink is created on first use, so processes
// that never dead-letter anything never open a connection.
package dlqx

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/google/uuid"
)

// Entry is an immutable record of a terminally failed job.
type Entry struct {
	ID            string          `json:"id"`
	OriginalJobID string          `json:"original_job_id"`
	SourceQueue   string          `json:"source_queue"`
	Reason        string          `json:"reason"`
	Payload       json.RawMessage `json:"payload"`
	AttemptsMade  int             `json:"attempts_made"`
	RequestID     string          `json:"request_id,omitempty"`
	FailedAt      time.Time       `json:"failed_at"`
}

// Sink stores dead letter entries.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
	List(ctx context.Context, queue string, limit int) ([]Entry, error)
	Close() error
}

// SinkFactory creates the sink on first use.
type SinkFactory func(ctx context.Context) (Sink, error)

// DeadLetters is the process-wide dead letter service.
type DeadLetters struct {
	factory SinkFactory

	mu     sync.Mutex
	sink   Sink
	closed bool
}

// New creates a dead letter service. No sink exists until the first Record or List.
func New(factory SinkFactory) *DeadLetters {
	return &DeadLetters{factory: factory}
}

// Record stores entry. It never fails the caller: every problem is logged
// and the entry dropped. A nil service discards entries.
func (d *DeadLetters) Record(ctx context.Context, entry Entry) {
	if d == nil {
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.FailedAt.IsZero() {
		entry.FailedAt = time.Now().UTC()
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"original_job_id": entry.OriginalJobID,
		"queue":           entry.SourceQueue,
		"attempts_made":   entry.AttemptsMade,
	})

	sink, err := d.acquire(ctx)
	if err != nil {
		log.WithError(err).Error("dlqx: dropping dead letter")
		return
	}
	if err := sink.Write(ctx, entry); err != nil {
		log.WithError(err).Error("dlqx: failed to write dead letter")
		return
	}
	log.WithField("reason", entry.Reason).Warn("dlqx: job dead-lettered")
}

// List returns the newest entries of queue, newest first.
func (d *DeadLetters) List(ctx context.Context, queue string, limit int) ([]Entry, error) {
	sink, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return sink.List(ctx, queue, limit)
}

// Initialized reports whether the sink has been created.
func (d *DeadLetters) Initialized() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sink != nil
}

// Close releases the sink. Calling it more than once, or before the sink
// was ever created, is a no-op.
func (d *DeadLetters) Close() error {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.closed = true
	if d.sink == nil {
		return nil
	}
	sink := d.sink
	d.sink = nil
	return sink.Close()
}

// Reset closes the sink and returns the service to its initial state.
func (d *DeadLetters) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.sink != nil {
		if err := d.sink.Close(); err != nil {
			logx.WithError(err).Warn("dlqx: closing sink on reset")
		}
	}
	d.sink = nil
	d.closed = false
}

func (d *DeadLetters) acquire(ctx context.Context) (Sink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, dlqErrors.New(ErrClosed)
	}
	if d.sink != nil {
		return d.sink, nil
	}
	if d.factory == nil {
		return nil, dlqErrors.NewWithMessage(ErrSinkUnavailable, "no sink factory configured")
	}
	sink, err := d.factory(ctx)
	if err != nil {
		return nil, dlqErrors.NewWithCause(ErrSinkUnavailable, err)
	}
	d.sink = sink
	return sink, nil
}
