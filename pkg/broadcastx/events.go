package broadcastx

import (
	"encoding/json"
	"strings"
)

// Event types pushed to session channels.
const (
	EventRenderStarted       = "render:started"
	EventRenderProgress      = "render:progress"
	EventRenderComplete      = "render:complete"
	EventRenderFailed        = "render:failed"
	EventDocGenerated        = "doc:generated"
	EventSessionRoomsUpdated = "session:rooms_updated"
	EventSessionPhaseChanged = "session:phase_changed"
)

const sessionPrefix = "session:"

// Event is a message delivered to subscribers of a channel.
type Event struct {
	Channel string          `json:"channel"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SessionChannel returns the channel of a planning session.
func SessionChannel(sessionID string) string {
	return sessionPrefix + sessionID
}

// SessionID extracts the session id from a session channel.
func SessionID(channel string) (string, bool) {
	if !strings.HasPrefix(channel, sessionPrefix) || len(channel) == len(sessionPrefix) {
		return "", false
	}
	return channel[len(sessionPrefix):], true
}

// RenderStarted is the payload of render:started.
type RenderStarted struct {
	AssetID string `json:"assetId"`
	RoomID  string `json:"roomId"`
}

// RenderProgress is the payload of render:progress.
type RenderProgress struct {
	AssetID  string `json:"assetId"`
	Progress int    `json:"progress"`
	Stage    string `json:"stage"`
}

// RenderComplete is the payload of render:complete.
type RenderComplete struct {
	AssetID     string `json:"assetId"`
	RoomID      string `json:"roomId"`
	ContentType string `json:"contentType"`
	SizeBytes   int    `json:"sizeBytes"`
	Model       string `json:"model,omitempty"`
	URL         string `json:"url,omitempty"`
}

// RenderFailed is the payload of render:failed. Error is safe to show users.
type RenderFailed struct {
	AssetID string `json:"assetId"`
	RoomID  string `json:"roomId"`
	Error   string `json:"error"`
}

// DocGenerated is the payload of doc:generated.
type DocGenerated struct {
	SessionID string `json:"sessionId"`
	RoomID    string `json:"roomId"`
	Format    string `json:"format"`
	URL       string `json:"url,omitempty"`
}
