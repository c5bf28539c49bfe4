package jobx

import (
	"context"
	"encoding/json"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Handler executes jobs of one queue. Decode runs before every attempt; an
// error from it rejects the job without invoking Run.
type Handler interface {
	Decode(raw json.RawMessage) (any, error)
	Run(ctx context.Context, job *JobInfo, payload any) error
}

// HandlerFunc processes a job with its raw payload. Return nil on success,
// an error to trigger retry/fail.
type HandlerFunc func(ctx context.Context, job *JobInfo) error

func (f HandlerFunc) Decode(raw json.RawMessage) (any, error) { return raw, nil }

func (f HandlerFunc) Run(ctx context.Context, job *JobInfo, _ any) error { return f(ctx, job) }

type typedHandler[P any] struct {
	fn func(ctx context.Context, job *JobInfo, payload P) error
}

// Handle binds a handler to the payload type P. The payload is decoded from
// JSON and checked against P's `validate` struct tags before fn runs.
func Handle[P any](fn func(ctx context.Context, job *JobInfo, payload P) error) Handler {
	return typedHandler[P]{fn: fn}
}

func (h typedHandler[P]) Decode(raw json.RawMessage) (any, error) {
	return DecodePayload[P](raw)
}

func (h typedHandler[P]) Run(ctx context.Context, job *JobInfo, payload any) error {
	return h.fn(ctx, job, payload.(P))
}

// DecodePayload unmarshals raw into P and validates it.
func DecodePayload[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 {
		return p, jobxErrors.NewWithMessage(ErrInvalidPayload, "Job payload is empty")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, jobxErrors.NewWithCause(ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		return p, jobxErrors.NewWithCause(ErrInvalidPayload, err)
	}
	return p, nil
}

// Definition binds a queue to its handler and operational policy.
type Definition struct {
	Concurrency int
	Attempts    int
	Backoff     Backoff
	DeadLetter  bool
	Handler     Handler

	// OnRejected is called when a job's payload fails validation. It runs
	// instead of the handler, which never sees the job.
	OnRejected func(ctx context.Context, job *JobInfo, err error)
}
