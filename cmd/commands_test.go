package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchSession_PrintsEventsAndInvalidatedKeys(t *testing.T) {
	hub := broadcastx.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- watchSession(ctx, &out, "s1", hub.Source(broadcastx.SessionChannel("s1"))) }()

	require.Eventually(t, func() bool { return hub.Subscribers("session:s1") == 1 }, time.Second, 5*time.Millisecond)
	broadcastx.New(hub).EmitToSession(ctx, "s1", broadcastx.EventRenderFailed, broadcastx.RenderFailed{AssetID: "a1", RoomID: "r1"})

	// render:failed invalidates after 100ms.
	time.Sleep(400 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], broadcastx.EventRenderFailed)
	assert.Contains(t, lines[1], "invalidated")
	for _, key := range []string{"s1/assets", "s1/rooms/r1"} {
		assert.Contains(t, lines[1], key)
	}
	assert.Equal(t, "invalidations: 2", lines[2])
}
