// Package plandoc builds the renovation plan document of a room.
//
// A plan gathers the room brief and its ready renderings, optionally asks
// a language model for a short narrative, and is written to file storage
// as PDF or HTML. Generation runs on the doc:generate-plan queue.
package plandoc

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

var plandocErrors = errx.NewRegistry("PLANDOC")

var (
	ErrRoomNotFound      = plandocErrors.Register("ROOM_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Room not found")
	ErrUnsupportedFormat = plandocErrors.Register("UNSUPPORTED_FORMAT", errx.TypeValidation, http.StatusBadRequest, "Unsupported plan format")
	ErrRenderDocument    = plandocErrors.Register("RENDER_DOCUMENT_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to render plan document")
	ErrReadFailed        = plandocErrors.Register("READ_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to read plan data")
)

// Room is the brief of one room of a planning session.
type Room struct {
	ID          string
	SessionID   string
	Name        string
	Kind        string
	Style       string
	BudgetCents int64
	Notes       string
}

// RenderRef is a ready rendering shown in the plan.
type RenderRef struct {
	AssetID   string
	Prompt    string
	URL       string
	Model     string
	CreatedAt time.Time
}

// Plan is the content of one plan document.
type Plan struct {
	Room        Room
	Renders     []RenderRef
	Narrative   string
	GeneratedAt time.Time
}

// Reader loads the data a plan is built from.
type Reader interface {
	GetRoom(ctx context.Context, sessionID, roomID string) (*Room, error)
	ListRenders(ctx context.Context, sessionID, roomID string) ([]RenderRef, error)
}

// Narrator writes free text from a system instruction and a prompt.
type Narrator interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// RoomNotFound returns the error readers use for a missing room.
func RoomNotFound(sessionID, roomID string) *errx.Error {
	return plandocErrors.New(ErrRoomNotFound).
		WithDetail("session_id", sessionID).
		WithDetail("room_id", roomID)
}

// ReadError wraps a storage failure of a reader.
func ReadError(op string, err error) *errx.Error {
	return plandocErrors.NewWithCause(ErrReadFailed, err).WithDetail("op", op)
}
