// Package broadcastx pushes job outcomes to the clients of a session.
//
// Delivery is at most once to subscribers connected at publish time; there
// is no replay. Emitting never fails the caller: a missing transport makes
// EmitToChannel a no-op and transport errors are logged.
package broadcastx

import (
	"context"
	"encoding/json"

	"github.com/Abraxas-365/remodel/pkg/logx"
)

// Transport moves events between publishers and subscribers.
type Transport interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// Subscription is a live feed of one channel.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

// Broadcaster emits events over a Transport.
type Broadcaster struct {
	transport Transport
}

// New creates a broadcaster. A nil transport yields a broadcaster that drops everything.
func New(t Transport) *Broadcaster {
	return &Broadcaster{transport: t}
}

// Enabled reports whether events are actually delivered.
func (b *Broadcaster) Enabled() bool {
	return b != nil && b.transport != nil
}

// EmitToChannel publishes an event. It is safe to call on a nil Broadcaster.
func (b *Broadcaster) EmitToChannel(ctx context.Context, channel, eventType string, payload any) {
	if !b.Enabled() {
		return
	}

	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"channel":    channel,
		"event_type": eventType,
	})

	raw, err := encode(payload)
	if err != nil {
		log.WithError(broadcastErrors.NewWithCause(ErrMarshal, err)).Warn("broadcastx: dropping event")
		return
	}

	if err := b.transport.Publish(ctx, Event{Channel: channel, Type: eventType, Payload: raw}); err != nil {
		log.WithError(err).Warn("broadcastx: publish failed")
		return
	}
	log.Debug("broadcastx: event emitted")
}

// EmitToSession publishes an event on the channel of sessionID.
func (b *Broadcaster) EmitToSession(ctx context.Context, sessionID, eventType string, payload any) {
	b.EmitToChannel(ctx, SessionChannel(sessionID), eventType, payload)
}

// Subscribe opens a feed of channel.
func (b *Broadcaster) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	if !b.Enabled() {
		return nil, broadcastErrors.New(ErrNoTransport)
	}
	return b.transport.Subscribe(ctx, channel)
}

// Close releases the transport. Safe on a nil or disabled Broadcaster.
func (b *Broadcaster) Close() error {
	if !b.Enabled() {
		return nil
	}
	return b.transport.Close()
}

func encode(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(payload)
	}
}
