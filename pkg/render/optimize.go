package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/fsx"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/ptrx"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultQuality is the JPEG quality used when the job does not set one.
const DefaultQuality = 82

// OptimizeHandler runs image:optimize jobs: it re-encodes a ready asset as
// JPEG, downscaled to the requested width, and records the variant.
type OptimizeHandler struct {
	assets AssetRepository
	files  fsx.FileSystem
}

// NewOptimizeHandler creates an optimize handler.
func NewOptimizeHandler(assets AssetRepository, files fsx.FileSystem) *OptimizeHandler {
	return &OptimizeHandler{assets: assets, files: files}
}

// Definition binds the handler to the image:optimize queue with the given policy.
func (h *OptimizeHandler) Definition(concurrency, attempts int, backoff jobx.Backoff, deadLetter bool) jobx.Definition {
	return jobx.Definition{
		Concurrency: concurrency,
		Attempts:    attempts,
		Backoff:     backoff,
		DeadLetter:  deadLetter,
		Handler:     jobx.Handle(h.Handle),
	}
}

// Handle executes one attempt of an optimize job.
func (h *OptimizeHandler) Handle(ctx context.Context, job *jobx.JobInfo, p jobs.ImageOptimize) error {
	asset, err := h.assets.Get(ctx, p.AssetID)
	if err != nil {
		if errx.HasCode(err, ErrAssetNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}
	if asset.SessionID != p.SessionID {
		return renderErrors.New(ErrAssetMismatch).WithDetail("asset_id", p.AssetID)
	}
	switch asset.Status {
	case AssetFailed:
		return jobx.Permanent(renderErrors.New(ErrAssetNotReady).WithDetail("status", string(asset.Status)))
	case AssetReady:
	default:
		// Rendering still running; the retry backoff waits for it.
		return renderErrors.New(ErrAssetNotReady).WithDetail("status", string(asset.Status))
	}

	src, err := h.files.ReadFile(ctx, asset.StoragePath)
	if err != nil {
		if errx.HasCode(err, fsx.ErrNotFound) {
			return jobx.Permanent(err)
		}
		return err
	}

	width := ptrx.ValueOr(p.Width, 0)
	quality := ptrx.ValueOr(p.Quality, DefaultQuality)

	out, bounds, err := Optimize(src, width, quality)
	if err != nil {
		return err
	}

	path := fsx.SessionPath(p.SessionID, "optimized", fmt.Sprintf("%s-w%d.jpg", p.AssetID, bounds.Dx()))
	if err := h.files.WriteFile(ctx, path, out, "image/jpeg"); err != nil {
		return err
	}
	if err := h.assets.SetOptimized(ctx, p.AssetID, path, h.files.URL(path)); err != nil {
		return err
	}

	logx.WithContext(ctx).WithFields(logx.Fields{
		"job_id":   job.ID,
		"asset_id": p.AssetID,
		"width":    bounds.Dx(),
		"size_in":  len(src),
		"size_out": len(out),
		"quality":  quality,
	}).Info("render: image optimized")
	return nil
}

// Optimize decodes src (PNG, JPEG or WebP), scales it down to maxWidth
// keeping the aspect ratio, and encodes it as JPEG. A maxWidth of zero or
// one not smaller than the source keeps the original size.
func Optimize(src []byte, maxWidth, quality int) ([]byte, image.Rectangle, error) {
	img, _, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, image.Rectangle{}, renderErrors.NewWithCause(ErrUndecodableImage, err)
	}

	b := img.Bounds()
	if maxWidth > 0 && maxWidth < b.Dx() {
		height := b.Dy() * maxWidth / b.Dx()
		if height < 1 {
			height = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, image.Rectangle{}, renderErrors.NewWithCause(ErrUndecodableImage, err)
	}
	return buf.Bytes(), img.Bounds(), nil
}
