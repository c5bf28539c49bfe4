package cachesync

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	wait = 500 * time.Millisecond
	tick = 5 * time.Millisecond
)

type fixture struct {
	clock  *clockwork.FakeClock
	cache  *Cache
	bridge *Bridge
	loads  atomic.Int32
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{clock: clockwork.NewFakeClock()}
	f.cache = NewCache(func(ctx context.Context, key string) (any, error) {
		f.loads.Add(1)
		return "value of " + key, nil
	}, f.clock)
	f.bridge = NewBridge(f.cache, "s1", WithClock(f.clock))
	t.Cleanup(f.bridge.Close)
	return f
}

func (f *fixture) warm(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		_, err := f.cache.Get(context.Background(), k)
		require.NoError(t, err)
	}
}

func event(t *testing.T, typ string, payload any) broadcastx.Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return broadcastx.Event{Channel: broadcastx.SessionChannel("s1"), Type: typ, Payload: raw}
}

func cached(c *Cache, key string) func() bool {
	return func() bool {
		_, ok := c.Peek(key)
		return ok
	}
}

func TestBridge_InvalidatesAfterDelayExactlyOnce(t *testing.T) {
	f := newFixture(t)
	f.warm(t, Key("s1", "assets"), Key("s1", "rooms", "r1"), Key("s1", "rooms", "r2"))

	f.bridge.HandleEvent(event(t, broadcastx.EventRenderComplete, broadcastx.RenderComplete{AssetID: "a1", RoomID: "r1"}))
	assert.Equal(t, 1, f.bridge.Pending())

	f.clock.Advance(299 * time.Millisecond)
	assert.Never(t, func() bool { return !cached(f.cache, Key("s1", "assets"))() }, 50*time.Millisecond, tick)

	f.clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return f.cache.Stats().Invalidations == 2 }, wait, tick)
	assert.False(t, cached(f.cache, Key("s1", "rooms", "r1"))())
	assert.True(t, cached(f.cache, Key("s1", "rooms", "r2"))())

	f.clock.Advance(time.Second)
	assert.Never(t, func() bool { return f.cache.Stats().Invalidations != 2 }, 50*time.Millisecond, tick)
	assert.Zero(t, f.bridge.Pending())

	v, err := f.cache.Get(context.Background(), Key("s1", "assets"))
	require.NoError(t, err)
	assert.Equal(t, "value of s1/assets", v)
	entry, ok := f.cache.Peek(Key("s1", "assets"))
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(-time.Second), entry.LastInvalidatedAt)
}

func TestBridge_PerEventDelays(t *testing.T) {
	cases := []struct {
		eventType string
		delay     time.Duration
		key       string
	}{
		{broadcastx.EventRenderFailed, 100 * time.Millisecond, Key("s1", "assets")},
		{broadcastx.EventDocGenerated, 300 * time.Millisecond, Key("s1", "documents")},
		{broadcastx.EventSessionRoomsUpdated, 150 * time.Millisecond, Key("s1", "rooms")},
		{broadcastx.EventSessionPhaseChanged, 150 * time.Millisecond, Key("s1", "session")},
	}
	for _, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			f := newFixture(t)
			f.warm(t, tc.key)

			f.bridge.HandleEvent(event(t, tc.eventType, map[string]string{"roomId": "r1"}))
			f.clock.Advance(tc.delay - time.Millisecond)
			assert.Never(t, func() bool { return !cached(f.cache, tc.key)() }, 30*time.Millisecond, tick)

			f.clock.Advance(time.Millisecond)
			assert.Eventually(t, func() bool { return !cached(f.cache, tc.key)() }, wait, tick)
		})
	}
}

func TestBridge_FirstConnectDoesNotInvalidate(t *testing.T) {
	f := newFixture(t)
	f.warm(t, Key("s1", "rooms"))

	f.bridge.HandleConnect()
	assert.Zero(t, f.bridge.Pending())
	f.clock.Advance(time.Second)
	assert.Never(t, func() bool { return f.cache.Stats().Invalidations > 0 }, 50*time.Millisecond, tick)
}

func TestBridge_ReconnectInvalidatesSessionKeys(t *testing.T) {
	f := newFixture(t)
	f.warm(t, Key("s1", "rooms"), Key("s1", "assets"), Key("s2", "rooms"))

	f.bridge.HandleConnect()
	f.bridge.HandleConnect()

	f.clock.Advance(DefaultSettleDelay - time.Millisecond)
	assert.Never(t, func() bool { return f.cache.Stats().Invalidations > 0 }, 50*time.Millisecond, tick)

	f.clock.Advance(time.Millisecond)
	assert.Eventually(t, func() bool { return f.cache.Stats().Invalidations == 2 }, wait, tick)
	assert.True(t, cached(f.cache, Key("s2", "rooms"))())
}

func TestBridge_IgnoresOtherSessions(t *testing.T) {
	f := newFixture(t)
	ev := event(t, broadcastx.EventSessionRoomsUpdated, nil)
	ev.Channel = broadcastx.SessionChannel("s2")

	f.bridge.HandleEvent(ev)
	assert.Zero(t, f.bridge.Pending())
}

func TestBridge_CloseCancelsPendingTimers(t *testing.T) {
	f := newFixture(t)
	f.warm(t, Key("s1", "rooms"))

	f.bridge.HandleEvent(event(t, broadcastx.EventSessionRoomsUpdated, nil))
	require.Equal(t, 1, f.bridge.Pending())

	f.bridge.Close()
	assert.Zero(t, f.bridge.Pending())

	f.clock.Advance(time.Second)
	assert.Never(t, func() bool { return f.cache.Stats().Invalidations > 0 }, 50*time.Millisecond, tick)

	f.bridge.HandleEvent(event(t, broadcastx.EventSessionRoomsUpdated, nil))
	assert.Zero(t, f.bridge.Pending())
}

func TestBridge_TypedHandlers(t *testing.T) {
	f := newFixture(t)

	var got []broadcastx.RenderFailed
	unsubscribe := On(f.bridge, broadcastx.EventRenderFailed, func(p broadcastx.RenderFailed) {
		got = append(got, p)
	})

	f.bridge.HandleEvent(event(t, broadcastx.EventRenderFailed, broadcastx.RenderFailed{AssetID: "a1", RoomID: "r1", Error: "Rendering failed"}))
	unsubscribe()
	f.bridge.HandleEvent(event(t, broadcastx.EventRenderFailed, broadcastx.RenderFailed{AssetID: "a2"}))

	require.Len(t, got, 1)
	assert.Equal(t, "a1", got[0].AssetID)
	assert.Equal(t, "Rendering failed", got[0].Error)
}

func TestBridge_RunWithHubSource(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewCache(func(ctx context.Context, key string) (any, error) { return key, nil }, clock)
	bridge := NewBridge(cache, "s1", WithClock(clock))
	defer bridge.Close()

	_, err := cache.Get(context.Background(), Key("s1", "rooms"))
	require.NoError(t, err)

	hub := broadcastx.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = bridge.Run(ctx, hub.Source(broadcastx.SessionChannel("s1"))) }()

	require.Eventually(t, func() bool { return hub.Subscribers("session:s1") == 1 }, wait, tick)
	broadcastx.New(hub).EmitToSession(ctx, "s1", broadcastx.EventSessionRoomsUpdated, nil)

	require.Eventually(t, func() bool { return bridge.Pending() == 1 }, wait, tick)
	clock.Advance(150 * time.Millisecond)
	assert.Eventually(t, func() bool { return !cached(cache, Key("s1", "rooms"))() }, wait, tick)
}

func TestBridge_InvalidationHookReceivesKeys(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cache := NewCache(func(ctx context.Context, key string) (any, error) { return key, nil }, clock)

	var mu sync.Mutex
	var got [][]string
	bridge := NewBridge(cache, "s1", WithClock(clock), WithInvalidationHook(func(keys []string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, keys)
	}))
	defer bridge.Close()
	snapshot := func() [][]string {
		mu.Lock()
		defer mu.Unlock()
		return append([][]string(nil), got...)
	}

	_, err := cache.Get(context.Background(), Key("s1", "assets"))
	require.NoError(t, err)

	bridge.HandleEvent(event(t, broadcastx.EventSessionRoomsUpdated, nil))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(snapshot()) == 1 }, wait, tick)
	assert.Equal(t, []string{Key("s1", "rooms")}, snapshot()[0])

	bridge.HandleConnect()
	bridge.HandleConnect()
	clock.Advance(DefaultSettleDelay)
	require.Eventually(t, func() bool { return len(snapshot()) == 2 }, wait, tick)
	assert.Equal(t, []string{Key("s1", "assets")}, snapshot()[1])
}
