// Package cachesync keeps a client-side cache consistent with job outcomes
// pushed over a session channel.
//
// Two problems are handled. An event can arrive before the write it
// announces is visible to readers, so affected keys are invalidated after a
// per-event delay instead of immediately. This is a heuristic: a write
// slower than the delay is still missed until the next invalidation. And
// events published while disconnected are lost, so every reconnect after the
// first connection invalidates the whole session after a settle delay.
package cachesync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/jonboulle/clockwork"
)

// DefaultSettleDelay is the wait between a reconnect and the session-wide invalidation.
const DefaultSettleDelay = 250 * time.Millisecond

// Rule describes how one event type affects the cache.
type Rule struct {
	Delay time.Duration
	Keys  func(sessionID string, ev broadcastx.Event) []string
}

// Source delivers connection signals and events of one channel.
type Source interface {
	Run(ctx context.Context, onConnect func(), onEvent func(broadcastx.Event)) error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithClock sets the clock used for delays.
func WithClock(c clockwork.Clock) Option {
	return func(b *Bridge) { b.clock = c }
}

// WithRule sets the rule of eventType, replacing the default.
func WithRule(eventType string, r Rule) Option {
	return func(b *Bridge) { b.rules[eventType] = r }
}

// WithSettleDelay sets the reconnect settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(b *Bridge) { b.settle = d }
}

// WithInvalidationHook registers fn to receive the keys of every
// invalidation the bridge performs.
func WithInvalidationHook(fn func(keys []string)) Option {
	return func(b *Bridge) { b.onInvalidate = fn }
}

// Bridge reconciles a Cache with the events of one session.
type Bridge struct {
	cache     *Cache
	sessionID string
	clock     clockwork.Clock
	rules     map[string]Rule
	settle    time.Duration

	onInvalidate func(keys []string)

	mu            sync.Mutex
	connectedOnce bool
	closed        bool
	nextTimer     uint64
	pending       map[uint64]clockwork.Timer
	nextHandler   uint64
	handlers      map[string]map[uint64]func(broadcastx.Event)
}

// NewBridge creates a bridge for sessionID.
func NewBridge(cache *Cache, sessionID string, opts ...Option) *Bridge {
	b := &Bridge{
		cache:     cache,
		sessionID: sessionID,
		clock:     clockwork.NewRealClock(),
		rules:     DefaultRules(),
		settle:    DefaultSettleDelay,
		pending:   make(map[uint64]clockwork.Timer),
		handlers:  make(map[string]map[uint64]func(broadcastx.Event)),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// DefaultRules returns the invalidation rules of the session events.
func DefaultRules() map[string]Rule {
	return map[string]Rule{
		broadcastx.EventRenderComplete: {
			Delay: 300 * time.Millisecond,
			Keys:  assetAndRoomKeys,
		},
		broadcastx.EventRenderFailed: {
			Delay: 100 * time.Millisecond,
			Keys:  assetAndRoomKeys,
		},
		broadcastx.EventDocGenerated: {
			Delay: 300 * time.Millisecond,
			Keys: func(sid string, ev broadcastx.Event) []string {
				keys := []string{Key(sid, "documents")}
				if roomID := field(ev, "roomId"); roomID != "" {
					keys = append(keys, Key(sid, "rooms", roomID, "documents"))
				}
				return keys
			},
		},
		broadcastx.EventSessionRoomsUpdated: {
			Delay: 150 * time.Millisecond,
			Keys: func(sid string, _ broadcastx.Event) []string {
				return []string{Key(sid, "rooms")}
			},
		},
		broadcastx.EventSessionPhaseChanged: {
			Delay: 150 * time.Millisecond,
			Keys: func(sid string, _ broadcastx.Event) []string {
				return []string{Key(sid, "session")}
			},
		},
	}
}

func assetAndRoomKeys(sid string, ev broadcastx.Event) []string {
	keys := []string{Key(sid, "assets")}
	if roomID := field(ev, "roomId"); roomID != "" {
		keys = append(keys, Key(sid, "rooms", roomID))
	}
	return keys
}

func field(ev broadcastx.Event, name string) string {
	var m map[string]any
	if err := json.Unmarshal(ev.Payload, &m); err != nil {
		return ""
	}
	s, _ := m[name].(string)
	return s
}

// OnEvent registers handler for eventType and returns a function removing it.
func (b *Bridge) OnEvent(eventType string, handler func(broadcastx.Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextHandler++
	id := b.nextHandler
	if b.handlers[eventType] == nil {
		b.handlers[eventType] = make(map[uint64]func(broadcastx.Event))
	}
	b.handlers[eventType][id] = handler

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[eventType], id)
	}
}

// On registers a handler receiving the decoded payload of eventType.
// Events whose payload does not decode into P are skipped.
func On[P any](b *Bridge, eventType string, handler func(P)) func() {
	return b.OnEvent(eventType, func(ev broadcastx.Event) {
		var p P
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logx.WithError(err).WithField("event_type", eventType).Warn("cachesync: undecodable payload")
			return
		}
		handler(p)
	})
}

// Run feeds the bridge from src until ctx ends.
func (b *Bridge) Run(ctx context.Context, src Source) error {
	return src.Run(ctx, b.HandleConnect, b.HandleEvent)
}

// HandleConnect processes a (re)connection of the event stream.
func (b *Bridge) HandleConnect() {
	b.mu.Lock()
	first := !b.connectedOnce
	b.connectedOnce = true
	b.mu.Unlock()

	if first {
		return
	}

	prefix := SessionPrefix(b.sessionID)
	b.schedule(b.settle, func() {
		keys := b.cache.InvalidatePrefix(prefix)
		logx.WithFields(logx.Fields{"session_id": b.sessionID, "keys": len(keys)}).Debug("cachesync: session invalidated after reconnect")
		b.notify(keys)
	})
}

// HandleEvent processes one event of the session channel.
func (b *Bridge) HandleEvent(ev broadcastx.Event) {
	if ev.Channel != "" {
		if sid, ok := broadcastx.SessionID(ev.Channel); !ok || sid != b.sessionID {
			return
		}
	}

	b.mu.Lock()
	handlers := make([]func(broadcastx.Event), 0, len(b.handlers[ev.Type]))
	for _, h := range b.handlers[ev.Type] {
		handlers = append(handlers, h)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}

	rule, ok := b.rules[ev.Type]
	if !ok || rule.Keys == nil {
		return
	}
	keys := rule.Keys(b.sessionID, ev)
	if len(keys) == 0 {
		return
	}
	b.schedule(rule.Delay, func() {
		b.cache.Invalidate(keys...)
		b.notify(keys)
	})
}

func (b *Bridge) notify(keys []string) {
	if b.onInvalidate != nil && len(keys) > 0 {
		b.onInvalidate(keys)
	}
}

func (b *Bridge) schedule(delay time.Duration, fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.nextTimer++
	id := b.nextTimer
	b.pending[id] = b.clock.AfterFunc(delay, func() {
		b.mu.Lock()
		_, live := b.pending[id]
		delete(b.pending, id)
		b.mu.Unlock()
		if live {
			fn()
		}
	})
}

// Pending returns the number of scheduled invalidations.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Close cancels every scheduled invalidation. The bridge ignores later events.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for id, t := range b.pending {
		t.Stop()
		delete(b.pending, id)
	}
}
