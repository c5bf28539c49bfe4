package render

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Abraxas-365/remodel/pkg/ai/imagegen"
	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
)

// Progress stages reported with render:progress.
const (
	StageGenerating = "generating"
	StageStoring    = "storing"
)

// Handler runs render:generate jobs.
//
// The asset goes processing at pickup and settles exactly once: ready on
// success, failed when the job will not run again (final attempt or a
// permanent error). Failed attempts that will be retried leave the asset
// processing and emit nothing.
type Handler struct {
	assets    AssetRepository
	generator imagegen.Generator
	files     fsx.FileSystem
	events    *broadcastx.Broadcaster
	timeout   time.Duration
	width     int
	height    int
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithTimeout bounds one generation call.
func WithTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) { h.timeout = d }
}

// WithSize sets the requested image dimensions.
func WithSize(width, height int) HandlerOption {
	return func(h *Handler) {
		h.width = width
		h.height = height
	}
}

// NewHandler creates a render handler. events may be nil.
func NewHandler(assets AssetRepository, generator imagegen.Generator, files fsx.FileSystem, events *broadcastx.Broadcaster, opts ...HandlerOption) *Handler {
	h := &Handler{
		assets:    assets,
		generator: generator,
		files:     files,
		events:    events,
		timeout:   90 * time.Second,
		width:     1536,
		height:    1024,
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Definition binds the handler to the render queue with the given policy.
func (h *Handler) Definition(concurrency, attempts int, backoff jobx.Backoff, deadLetter bool) jobx.Definition {
	return jobx.Definition{
		Concurrency: concurrency,
		Attempts:    attempts,
		Backoff:     backoff,
		DeadLetter:  deadLetter,
		Handler:     jobx.Handle(h.Handle),
		OnRejected:  h.Reject,
	}
}

// Handle executes one attempt of a render job.
func (h *Handler) Handle(ctx context.Context, job *jobx.JobInfo, p jobs.RenderGenerate) error {
	log := logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":     job.ID,
		"asset_id":   p.AssetID,
		"session_id": p.SessionID,
	})

	asset, err := h.assets.Get(ctx, p.AssetID)
	if err != nil {
		if errx.HasCode(err, ErrAssetNotFound) {
			return jobx.Permanent(err)
		}
		return h.fail(ctx, job, p, err)
	}
	if asset.SessionID != p.SessionID {
		return renderErrors.New(ErrAssetMismatch).
			WithDetail("asset_id", p.AssetID).
			WithDetail("session_id", p.SessionID)
	}
	if asset.Status.Settled() {
		// Redelivered after the asset already settled.
		log.WithField("status", string(asset.Status)).Info("render: asset already settled, skipping")
		return nil
	}

	if err := h.generate(ctx, log, p); err != nil {
		return h.fail(ctx, job, p, err)
	}
	return nil
}

// generate runs the attempt from processing to ready. A panic anywhere in
// it is returned as ErrGeneratorPanic so the asset still settles.
func (h *Handler) generate(ctx context.Context, log *logx.Entry, p jobs.RenderGenerate) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = renderErrors.New(ErrGeneratorPanic).WithDetail("panic", fmt.Sprint(r))
		}
	}()

	if err := h.assets.MarkProcessing(ctx, p.AssetID); err != nil {
		return err
	}
	h.events.EmitToSession(ctx, p.SessionID, broadcastx.EventRenderStarted, broadcastx.RenderStarted{
		AssetID: p.AssetID,
		RoomID:  p.RoomID,
	})
	h.progress(ctx, p, 10, StageGenerating)

	genCtx, cancel := context.WithTimeout(ctx, h.timeout)
	result, err := h.generator.Generate(genCtx, p.Prompt, imagegen.WithSize(h.width, h.height))
	cancel()
	if err != nil {
		return err
	}

	h.progress(ctx, p, 70, StageStoring)

	path := fsx.SessionPath(p.SessionID, "renders", p.AssetID+fsx.ExtensionFor(result.ContentType))
	if err := h.files.WriteFile(ctx, path, result.Bytes, result.ContentType); err != nil {
		return err
	}

	rendition := Rendition{
		Path:        path,
		URL:         h.files.URL(path),
		ContentType: result.ContentType,
		SizeBytes:   int64(len(result.Bytes)),
		Model:       result.Model,
		Provider:    result.Provider,
	}
	if err := h.assets.MarkReady(ctx, p.AssetID, rendition); err != nil {
		return err
	}

	h.events.EmitToSession(ctx, p.SessionID, broadcastx.EventRenderComplete, broadcastx.RenderComplete{
		AssetID:     p.AssetID,
		RoomID:      p.RoomID,
		ContentType: rendition.ContentType,
		SizeBytes:   int(rendition.SizeBytes),
		Model:       rendition.Model,
		URL:         rendition.URL,
	})
	log.WithFields(logx.Fields{
		"provider":   result.Provider,
		"size_bytes": rendition.SizeBytes,
	}).Info("render: asset ready")
	return nil
}

// fail settles the asset as failed when the job will not run again and
// returns err for the runtime to classify.
func (h *Handler) fail(ctx context.Context, job *jobx.JobInfo, p jobs.RenderGenerate, err error) error {
	if !job.IsFinalAttempt() && !jobx.IsPermanent(err) {
		return err
	}
	h.settleFailed(ctx, p.SessionID, p.AssetID, p.RoomID, err)
	return err
}

// Reject settles the asset of a job whose payload failed validation. The
// payload is read leniently: whatever identifiers it carries are used.
func (h *Handler) Reject(ctx context.Context, job *jobx.JobInfo, cause error) {
	var ids struct {
		SessionID string `json:"sessionId"`
		RoomID    string `json:"roomId"`
		AssetID   string `json:"assetId"`
	}
	if err := json.Unmarshal(job.Payload, &ids); err != nil || ids.AssetID == "" {
		return
	}
	h.settleFailed(ctx, ids.SessionID, ids.AssetID, ids.RoomID, cause)
}

func (h *Handler) settleFailed(ctx context.Context, sessionID, assetID, roomID string, cause error) {
	msg := UserMessage(cause)
	if err := h.assets.MarkFailed(ctx, assetID, msg); err != nil {
		logx.WithContext(ctx).WithError(err).WithField("asset_id", assetID).Error("render: failed to mark asset failed")
	}
	if sessionID == "" {
		return
	}
	h.events.EmitToSession(ctx, sessionID, broadcastx.EventRenderFailed, broadcastx.RenderFailed{
		AssetID: assetID,
		RoomID:  roomID,
		Error:   msg,
	})
}

func (h *Handler) progress(ctx context.Context, p jobs.RenderGenerate, pct int, stage string) {
	h.events.EmitToSession(ctx, p.SessionID, broadcastx.EventRenderProgress, broadcastx.RenderProgress{
		AssetID:  p.AssetID,
		Progress: pct,
		Stage:    stage,
	})
}
