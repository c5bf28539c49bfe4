package jobx

import "github.com/Abraxas-365/remodel/pkg/errx"

var jobxErrors = errx.NewRegistry("JOBX")

var (
	ErrJobNotFound      = jobxErrors.Register("JOB_NOT_FOUND", errx.TypeNotFound, 404, "Job not found")
	ErrEnqueueFailed    = jobxErrors.Register("ENQUEUE_FAILED", errx.TypeExternal, 500, "Failed to enqueue job")
	ErrInvalidPayload   = jobxErrors.Register("INVALID_PAYLOAD", errx.TypeValidation, 400, "Job payload failed schema validation")
	ErrUnknownQueue     = jobxErrors.Register("UNKNOWN_QUEUE", errx.TypeValidation, 400, "No definition registered for queue")
	ErrAlreadyRunning   = jobxErrors.Register("ALREADY_RUNNING", errx.TypeConflict, 409, "Worker is already running")
	ErrNoHandlers       = jobxErrors.Register("NO_HANDLERS", errx.TypeInternal, 500, "No queue handlers registered")
	ErrExhaustedRetries = jobxErrors.Register("EXHAUSTED_RETRIES", errx.TypeExternal, 500, "Job failed on its final attempt")
	ErrHandlerPanic     = jobxErrors.Register("HANDLER_PANIC", errx.TypeInternal, 500, "Job handler panicked")
	ErrRetryUnscheduled = jobxErrors.Register("RETRY_UNSCHEDULED", errx.TypeInternal, 500, "Job retry could not be scheduled")
)
