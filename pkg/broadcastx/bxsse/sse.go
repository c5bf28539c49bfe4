// Package bxsse relays a broadcastx subscription to a Server-Sent Events stream.
package bxsse

import (
	"bufio"
	"context"
	"fmt"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/logx"
)

// DefaultHeartbeat is the interval of keep-alive comments.
const DefaultHeartbeat = 15 * time.Second

// reconnectDelay is the retry hint sent to EventSource clients.
const reconnectDelay = 3 * time.Second

// WriteEvent writes ev as one SSE message and flushes it.
func WriteEvent(w *bufio.Writer, ev broadcastx.Event) error {
	data := ev.Payload
	if len(data) == 0 {
		data = []byte("{}")
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	return w.Flush()
}

// Stream copies events of sub to w until ctx ends, the subscription
// closes or a write fails. A write failure means the client went away.
func Stream(ctx context.Context, w *bufio.Writer, sub broadcastx.Subscription, heartbeat time.Duration) error {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	if _, err := fmt.Fprintf(w, "retry: %d\n: connected\n\n", reconnectDelay.Milliseconds()); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			if err := WriteEvent(w, ev); err != nil {
				logx.WithError(err).WithField("channel", ev.Channel).Debug("bxsse: client gone")
				return err
			}
		case <-ticker.C:
			if _, err := w.WriteString(": ping\n\n"); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}
