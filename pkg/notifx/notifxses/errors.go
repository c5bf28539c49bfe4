package notifxses

import "github.com/Abraxas-365/remodel/pkg/errx"

var sesErrors = errx.NewRegistry("NOTIFX_SES")

var (
	ErrSendFailed = sesErrors.Register("SEND_FAILED", errx.TypeExternal, 502, "SES send email failed")
	ErrRejected   = sesErrors.Register("REJECTED", errx.TypeValidation, 422, "SES rejected the message")
	ErrThrottled  = sesErrors.Register("THROTTLED", errx.TypeExternal, 429, "SES sending rate exceeded")
)
