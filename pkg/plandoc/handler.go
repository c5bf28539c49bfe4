package plandoc

import (
	"context"
	"strings"
	"time"

	"github.com/Abraxas-365/remodel/pkg/asyncx"
	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
)

// Handler runs doc:generate-plan jobs.
//
// The narrative is best effort: when the narrator fails or is absent the
// document is produced without it. Documents are written to a fixed path
// per room and format, so a retried job overwrites its own output.
type Handler struct {
	reader   Reader
	narrator Narrator
	files    fsx.FileSystem
	events   *broadcastx.Broadcaster
	timeout  time.Duration
	now      func() time.Time
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithNarrator enables the generated narrative.
func WithNarrator(n Narrator) HandlerOption {
	return func(h *Handler) { h.narrator = n }
}

// WithNarrativeTimeout bounds the narrator call.
func WithNarrativeTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.timeout = d }
}

// WithClock sets the time source of GeneratedAt.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// NewHandler creates a plan handler. events may be nil.
func NewHandler(reader Reader, files fsx.FileSystem, events *broadcastx.Broadcaster, opts ...HandlerOption) *Handler {
	h := &Handler{
		reader:  reader,
		files:   files,
		events:  events,
		timeout: 60 * time.Second,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Definition binds the handler to the plan queue with the given policy.
func (h *Handler) Definition(concurrency, attempts int, backoff jobx.Backoff, deadLetter bool) jobx.Definition {
	return jobx.Definition{
		Concurrency: concurrency,
		Attempts:    attempts,
		Backoff:     backoff,
		DeadLetter:  deadLetter,
		Handler:     jobx.Handle(h.Handle),
	}
}

// Handle builds, stores and announces one plan document.
func (h *Handler) Handle(ctx context.Context, job *jobx.JobInfo, p jobs.GeneratePlan) error {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":     job.ID,
		"session_id": p.SessionID,
		"room_id":    p.RoomID,
		"format":     p.Format,
	})

	room, err := h.reader.GetRoom(ctx, p.SessionID, p.RoomID)
	if err != nil {
		if errx.HasCode(err, ErrRoomNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}
	renders, err := h.reader.ListRenders(ctx, p.SessionID, p.RoomID)
	if err != nil {
		return err
	}

	plan := Plan{Room: *room, Renders: renders, GeneratedAt: h.now()}
	plan.Narrative = h.narrate(ctx, plan)

	doc, err := Render(plan, p.Format)
	if err != nil {
		return err
	}

	path := fsx.SessionPath(p.SessionID, "documents", p.RoomID+"-plan"+doc.Extension)
	if err := h.files.WriteFile(ctx, path, doc.Bytes, doc.ContentType); err != nil {
		return err
	}
	url := h.files.URL(path)

	h.events.EmitToSession(ctx, p.SessionID, broadcastx.EventDocGenerated, broadcastx.DocGenerated{
		SessionID: p.SessionID,
		RoomID:    p.RoomID,
		Format:    p.Format,
		URL:       url,
	})
	log.WithFields(logx.Fields{
		"path":       path,
		"size_bytes": len(doc.Bytes),
		"renders":    len(renders),
		"narrative":  plan.Narrative != "",
	}).Info("plandoc: document generated")
	return nil
}

func (h *Handler) narrate(ctx context.Context, plan Plan) string {
	if h.narrator == nil {
		return ""
	}
	prompt := narrativePrompt(plan)
	text, err := asyncx.WithTimeout(ctx, h.timeout, func(ctx context.Context) (string, error) {
		return h.narrator.Complete(ctx, narrativeSystem, prompt)
	})
	if err != nil {
		logx.WithContext(ctx).WithError(err).WithField("room_id", plan.Room.ID).Warn("plandoc: narrative unavailable, continuing without it")
		return ""
	}
	return strings.TrimSpace(text)
}
