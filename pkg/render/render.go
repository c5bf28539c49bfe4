// Package render turns room descriptions into AI renderings and keeps the
// asset record of each rendering in step with its job.
package render

import (
	"context"
	"net/http"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

var renderErrors = errx.NewRegistry("RENDER")

var (
	ErrAssetNotFound     = renderErrors.Register("ASSET_NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "Render asset not found")
	ErrAssetMismatch     = renderErrors.Register("ASSET_MISMATCH", errx.TypeValidation, http.StatusBadRequest, "Render asset belongs to another session")
	ErrInvalidTransition = renderErrors.Register("INVALID_TRANSITION", errx.TypeConflict, http.StatusConflict, "Asset status cannot change")
	ErrAssetNotReady     = renderErrors.Register("ASSET_NOT_READY", errx.TypeConflict, http.StatusConflict, "Asset has no stored image yet")
	ErrUndecodableImage  = renderErrors.Register("UNDECODABLE_IMAGE", errx.TypeValidation, http.StatusUnprocessableEntity, "Stored image cannot be decoded")
	ErrRepository        = renderErrors.Register("REPOSITORY_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Asset repository operation failed")
	ErrGeneratorPanic    = renderErrors.Register("GENERATOR_PANIC", errx.TypeInternal, http.StatusInternalServerError, "Render attempt panicked")
)

// AssetStatus is the lifecycle state of a render asset.
type AssetStatus string

const (
	AssetPending    AssetStatus = "pending"
	AssetProcessing AssetStatus = "processing"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
)

// Settled reports whether s is final. A settled asset never changes status again.
func (s AssetStatus) Settled() bool {
	return s == AssetReady || s == AssetFailed
}

// Asset is the record of one rendering request.
type Asset struct {
	ID            string
	SessionID     string
	RoomID        string
	Status        AssetStatus
	Prompt        string
	StoragePath   string
	URL           string
	ContentType   string
	SizeBytes     int64
	Model         string
	Provider      string
	Error         string
	OptimizedPath string
	OptimizedURL  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Rendition describes stored image bytes.
type Rendition struct {
	Path        string
	URL         string
	ContentType string
	SizeBytes   int64
	Model       string
	Provider    string
}

// AssetRepository persists render assets. The job subsystem only moves
// status and result fields; creation happens in the request path.
type AssetRepository interface {
	Get(ctx context.Context, id string) (*Asset, error)
	// MarkProcessing moves a pending or processing asset to processing.
	MarkProcessing(ctx context.Context, id string) error
	// MarkReady settles the asset as ready with its stored rendition.
	MarkReady(ctx context.Context, id string, r Rendition) error
	// MarkFailed settles the asset as failed with a user-safe message.
	MarkFailed(ctx context.Context, id string, message string) error
	// SetOptimized records the optimized variant of a ready asset.
	SetOptimized(ctx context.Context, id string, path, url string) error
}

// NotFound builds the error returned for a missing asset.
func NotFound(id string) *errx.Error {
	return renderErrors.New(ErrAssetNotFound).WithDetail("asset_id", id)
}

// InvalidTransition builds the error returned when a settled asset would change.
func InvalidTransition(id string, from, to AssetStatus) *errx.Error {
	return renderErrors.New(ErrInvalidTransition).
		WithDetail("asset_id", id).
		WithDetail("from", string(from)).
		WithDetail("to", string(to))
}

// RepositoryError wraps a storage failure of op.
func RepositoryError(op string, err error) *errx.Error {
	return renderErrors.NewWithCause(ErrRepository, err).WithDetail("op", op)
}
