package dlqx

import "github.com/Abraxas-365/remodel/pkg/errx"

var dlqErrors = errx.NewRegistry("DLQX")

var (
	ErrSinkUnavailable = dlqErrors.Register("SINK_UNAVAILABLE", errx.TypeExternal, 503, "Dead letter sink could not be initialised")
	ErrClosed          = dlqErrors.Register("CLOSED", errx.TypeConflict, 409, "Dead letter service is closed")
)
