package broadcastx

import "github.com/Abraxas-365/remodel/pkg/errx"

var broadcastErrors = errx.NewRegistry("BROADCASTX")

var (
	ErrMarshal     = broadcastErrors.Register("MARSHAL", errx.TypeInternal, 500, "Failed to encode event payload")
	ErrPublish     = broadcastErrors.Register("PUBLISH", errx.TypeExternal, 502, "Failed to publish event")
	ErrSubscribe   = broadcastErrors.Register("SUBSCRIBE", errx.TypeExternal, 502, "Failed to subscribe to channel")
	ErrNoTransport = broadcastErrors.Register("NO_TRANSPORT", errx.TypeInternal, 503, "Broadcaster has no transport")
)
