// Package jobs is the catalog of background queues and their payloads.
// Producers and handlers share these types so a payload that leaves one
// side is exactly what the other side validates.
package jobs

import "encoding/json"

// Queue names.
const (
	QueueImageOptimize   = "image:optimize"
	QueueEmailSend       = "email:send-notification"
	QueueDocGeneratePlan = "doc:generate-plan"
	QueueRenderGenerate  = "render:generate"
)

// Queues lists every known queue.
var Queues = []string{QueueImageOptimize, QueueEmailSend, QueueDocGeneratePlan, QueueRenderGenerate}

// Known reports whether queue is in the catalog.
func Known(queue string) bool {
	for _, q := range Queues {
		if q == queue {
			return true
		}
	}
	return false
}

// ImageOptimize re-encodes an uploaded or rendered image.
type ImageOptimize struct {
	AssetID   string `json:"assetId" validate:"required"`
	SessionID string `json:"sessionId" validate:"required"`
	Width     *int   `json:"width,omitempty" validate:"omitempty,min=1,max=8192"`
	Quality   *int   `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
}

// SendNotification delivers a templated email.
type SendNotification struct {
	To       string                 `json:"to" validate:"required,email"`
	Subject  string                 `json:"subject" validate:"required"`
	Template string                 `json:"template" validate:"required"`
	Data     map[string]interface{} `json:"data"`
}

// Plan document formats.
const (
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// GeneratePlan builds the renovation plan document of a room.
type GeneratePlan struct {
	SessionID string `json:"sessionId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	Format    string `json:"format" validate:"required,oneof=pdf html"`
}

// RenderGenerate produces an AI rendering of a room.
type RenderGenerate struct {
	SessionID string `json:"sessionId" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	Prompt    string `json:"prompt" validate:"required,min=1,max=5000"`
	AssetID   string `json:"assetId" validate:"required"`
}

// Validate checks raw against the payload schema of queue.
func Validate(queue string, raw json.RawMessage) error {
	switch queue {
	case QueueImageOptimize:
		return validateAs[ImageOptimize](raw)
	case QueueEmailSend:
		return validateAs[SendNotification](raw)
	case QueueDocGeneratePlan:
		return validateAs[GeneratePlan](raw)
	case QueueRenderGenerate:
		return validateAs[RenderGenerate](raw)
	default:
		return jobsErrors.New(ErrUnknownQueue).WithDetail("queue", queue)
	}
}
