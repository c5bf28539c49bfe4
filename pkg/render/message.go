package render

import (
	"context"
	"errors"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/jobx"
)

// User-facing failure messages. Provider errors never reach users verbatim.
const (
	MsgRejectedContent = "This description can't be rendered. Try rewording it."
	MsgInvalidRequest  = "The rendering request was incomplete."
	MsgTimeout         = "Rendering took too long. Please try again."
	MsgUnavailable     = "Rendering is temporarily unavailable. Please try again later."
	MsgGeneric         = "We couldn't create this rendering. Please try again."
)

// UserMessage maps a render failure to a message safe to show users.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return MsgGeneric
	case errx.HasType(err, errx.TypeBusiness):
		return MsgRejectedContent
	case errx.HasCode(err, jobx.ErrInvalidPayload),
		errx.HasCode(err, imagegen.ErrEmptyPrompt),
		errx.HasCode(err, ErrAssetMismatch):
		return MsgInvalidRequest
	case errx.HasType(err, errx.TypeAuthorization):
		return MsgUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return MsgTimeout
	}
	return MsgGeneric
}
