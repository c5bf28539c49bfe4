// Package bxredis carries broadcast events over Redis Pub/Sub so workers and
// HTTP servers in different processes share session channels.
package bxredis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/redis/go-redis/v9"
)

var redisErrors = errx.NewRegistry("BROADCASTX_REDIS")

var (
	ErrPublish   = redisErrors.Register("PUBLISH", errx.TypeExternal, 502, "Redis publish failed")
	ErrSubscribe = redisErrors.Register("SUBSCRIBE", errx.TypeExternal, 502, "Redis subscribe failed")
	ErrMarshal   = redisErrors.Register("MARSHAL", errx.TypeInternal, 500, "Failed to marshal event")
)

// Transport implements broadcastx.Transport with PUBLISH/SUBSCRIBE.
type Transport struct {
	rdb *redis.Client
}

// NewTransport wraps a client owned by the caller.
func NewTransport(rdb *redis.Client) *Transport {
	return &Transport{rdb: rdb}
}

func (t *Transport) Publish(ctx context.Context, event broadcastx.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err)
	}
	if err := t.rdb.Publish(ctx, event.Channel, data).Err(); err != nil {
		return redisErrors.NewWithCause(ErrPublish, err).WithDetail("channel", event.Channel)
	}
	return nil
}

func (t *Transport) Subscribe(ctx context.Context, channel string) (broadcastx.Subscription, error) {
	ps := t.rdb.Subscribe(ctx, channel)
	// Wait for the confirmation so events published after Subscribe returns are seen.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, redisErrors.NewWithCause(ErrSubscribe, err).WithDetail("channel", channel)
	}

	sub := &subscription{ps: ps, ch: make(chan broadcastx.Event, 64)}
	go sub.pump(ctx)
	return sub, nil
}

// Close is a no-op: the client belongs to the caller.
func (t *Transport) Close() error { return nil }

type subscription struct {
	ps   *redis.PubSub
	ch   chan broadcastx.Event
	once sync.Once
}

func (s *subscription) Events() <-chan broadcastx.Event { return s.ch }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() { err = s.ps.Close() })
	return err
}

func (s *subscription) pump(ctx context.Context) {
	defer close(s.ch)
	defer s.Close()

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := decode(msg)
			if err != nil {
				logx.WithError(err).WithField("channel", msg.Channel).Warn("bxredis: skipping undecodable event")
				continue
			}
			select {
			case s.ch <- ev:
			default:
				logx.WithField("channel", msg.Channel).Warn("bxredis: dropping event for slow subscriber")
			}
		}
	}
}

func decode(msg *redis.Message) (broadcastx.Event, error) {
	var ev broadcastx.Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		return ev, err
	}
	if ev.Channel == "" {
		ev.Channel = msg.Channel
	}
	return ev, nil
}

// Source follows one channel and reports every (re)subscription as a
// connect. go-redis re-issues SUBSCRIBE after a dropped connection, and the
// confirmation of each one is surfaced to onConnect.
type Source struct {
	rdb     *redis.Client
	channel string
}

// NewSource creates a source for channel.
func NewSource(rdb *redis.Client, channel string) *Source {
	return &Source{rdb: rdb, channel: channel}
}

const reconnectPause = 500 * time.Millisecond

// Run blocks until ctx ends.
func (s *Source) Run(ctx context.Context, onConnect func(), onEvent func(broadcastx.Event)) error {
	ps := s.rdb.Subscribe(ctx, s.channel)
	defer ps.Close()

	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return nil
			}
			logx.WithError(err).WithField("channel", s.channel).Warn("bxredis: subscription interrupted, reconnecting")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(reconnectPause):
			}
			continue
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" {
				onConnect()
			}
		case *redis.Message:
			ev, err := decode(m)
			if err != nil {
				logx.WithError(err).WithField("channel", m.Channel).Warn("bxredis: skipping undecodable event")
				continue
			}
			onEvent(ev)
		}
	}
}
