package broadcastx

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Abraxas-365/remodel/pkg/logx"
)

const hubBuffer = 64

// Hub is an in-process Transport. Each subscriber gets a buffered feed; an
// event that does not fit is dropped for that subscriber only.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*hubSubscription]struct{}
	closed bool

	// watchers counts the goroutines tying subscriptions to their context.
	watchers atomic.Int32
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*hubSubscription]struct{})}
}

func (h *Hub) Publish(ctx context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[event.Channel] {
		select {
		case sub.ch <- event:
		default:
			logx.WithContext(ctx).WithFields(logx.Fields{
				"channel":    event.Channel,
				"event_type": event.Type,
			}).Warn("broadcastx: dropping event for slow subscriber")
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, channel string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &hubSubscription{hub: h, channel: channel, ch: make(chan Event, hubBuffer), stop: make(chan struct{})}
	if h.closed {
		sub.end()
		return sub, nil
	}
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[*hubSubscription]struct{})
	}
	h.subs[channel][sub] = struct{}{}

	h.watchers.Add(1)
	go func() {
		defer h.watchers.Add(-1)
		select {
		case <-ctx.Done():
			_ = sub.Close()
		case <-sub.stop:
		}
	}()
	return sub, nil
}

// Source returns a feed of channel in the shape expected by consumers that
// track connection state. The hub never disconnects, so connect fires once.
func (h *Hub) Source(channel string) *HubSource {
	return &HubSource{hub: h, channel: channel}
}

// Subscribers returns the number of live subscriptions on channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}

// Close ends every subscription.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true
	for channel, subs := range h.subs {
		for sub := range subs {
			sub.end()
		}
		delete(h.subs, channel)
	}
	return nil
}

type hubSubscription struct {
	hub     *Hub
	channel string
	ch      chan Event
	stop    chan struct{}
	done    bool
}

func (s *hubSubscription) Events() <-chan Event { return s.ch }

func (s *hubSubscription) Close() error {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()

	if s.done {
		return nil
	}
	delete(s.hub.subs[s.channel], s)
	s.end()
	return nil
}

// end closes the feed and releases the watcher. Callers hold hub.mu.
func (s *hubSubscription) end() {
	s.done = true
	close(s.ch)
	close(s.stop)
}

// HubSource adapts a hub channel to a connect/event callback pair.
type HubSource struct {
	hub     *Hub
	channel string
}

// Run delivers events until ctx ends or the hub closes.
func (s *HubSource) Run(ctx context.Context, onConnect func(), onEvent func(Event)) error {
	sub, err := s.hub.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	defer sub.Close()

	onConnect()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			onEvent(ev)
		}
	}
}
