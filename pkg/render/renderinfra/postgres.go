package renderinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/remodel/pkg/render"
	"github.com/jmoiron/sqlx"
)

// PostgresAssetRepository implements render.AssetRepository on the
// render_assets table.
type PostgresAssetRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresAssetRepository creates the repository.
func NewPostgresAssetRepository(db *sqlx.DB) *PostgresAssetRepository {
	return &PostgresAssetRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

type assetRow struct {
	ID            string         `db:"id"`
	SessionID     string         `db:"session_id"`
	RoomID        string         `db:"room_id"`
	Status        string         `db:"status"`
	Prompt        string         `db:"prompt"`
	StoragePath   sql.NullString `db:"storage_path"`
	URL           sql.NullString `db:"url"`
	ContentType   sql.NullString `db:"content_type"`
	SizeBytes     sql.NullInt64  `db:"size_bytes"`
	Model         sql.NullString `db:"model"`
	Provider      sql.NullString `db:"provider"`
	Error         sql.NullString `db:"error"`
	OptimizedPath sql.NullString `db:"optimized_path"`
	OptimizedURL  sql.NullString `db:"optimized_url"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r assetRow) toDomain() *render.Asset {
	return &render.Asset{
		ID:            r.ID,
		SessionID:     r.SessionID,
		RoomID:        r.RoomID,
		Status:        render.AssetStatus(r.Status),
		Prompt:        r.Prompt,
		StoragePath:   r.StoragePath.String,
		URL:           r.URL.String,
		ContentType:   r.ContentType.String,
		SizeBytes:     r.SizeBytes.Int64,
		Model:         r.Model.String,
		Provider:      r.Provider.String,
		Error:         r.Error.String,
		OptimizedPath: r.OptimizedPath.String,
		OptimizedURL:  r.OptimizedURL.String,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

const selectAsset = `
	SELECT id, session_id, room_id, status, prompt, storage_path, url, content_type,
	       size_bytes, model, provider, error, optimized_path, optimized_url,
	       created_at, updated_at
	FROM render_assets
	WHERE id = $1`

// Get loads an asset by id.
func (r *PostgresAssetRepository) Get(ctx context.Context, id string) (*render.Asset, error) {
	var row assetRow
	if err := r.db.GetContext(ctx, &row, selectAsset, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, render.NotFound(id)
		}
		return nil, render.RepositoryError("get", err).WithDetail("asset_id", id)
	}
	return row.toDomain(), nil
}

// MarkProcessing moves an unsettled asset to processing.
func (r *PostgresAssetRepository) MarkProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE render_assets SET status = 'processing', updated_at = $2
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, r.now())
	if err != nil {
		return render.RepositoryError("mark_processing", err).WithDetail("asset_id", id)
	}
	return r.checkTransition(ctx, res, id, render.AssetProcessing)
}

// MarkReady settles an unsettled asset as ready.
func (r *PostgresAssetRepository) MarkReady(ctx context.Context, id string, rd render.Rendition) error {
	res, err := r.db.NamedExecContext(ctx, `
		UPDATE render_assets SET
			status = 'ready',
			storage_path = :storage_path,
			url = :url,
			content_type = :content_type,
			size_bytes = :size_bytes,
			model = :model,
			provider = :provider,
			error = NULL,
			updated_at = :updated_at
		WHERE id = :id AND status IN ('pending', 'processing')`,
		map[string]any{
			"id":           id,
			"storage_path": rd.Path,
			"url":          rd.URL,
			"content_type": rd.ContentType,
			"size_bytes":   rd.SizeBytes,
			"model":        rd.Model,
			"provider":     rd.Provider,
			"updated_at":   r.now(),
		})
	if err != nil {
		return render.RepositoryError("mark_ready", err).WithDetail("asset_id", id)
	}
	return r.checkTransition(ctx, res, id, render.AssetReady)
}

// MarkFailed settles an unsettled asset as failed.
func (r *PostgresAssetRepository) MarkFailed(ctx context.Context, id string, message string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE render_assets SET status = 'failed', error = $2, updated_at = $3
		WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, message, r.now())
	if err != nil {
		return render.RepositoryError("mark_failed", err).WithDetail("asset_id", id)
	}
	return r.checkTransition(ctx, res, id, render.AssetFailed)
}

// SetOptimized records the optimized variant of a ready asset.
func (r *PostgresAssetRepository) SetOptimized(ctx context.Context, id string, path, url string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE render_assets SET optimized_path = $2, optimized_url = $3, updated_at = $4
		WHERE id = $1 AND status = 'ready'`,
		id, path, url, r.now())
	if err != nil {
		return render.RepositoryError("set_optimized", err).WithDetail("asset_id", id)
	}
	return r.checkTransition(ctx, res, id, render.AssetReady)
}

// checkTransition tells a missing asset from a settled one when an update matched no row.
func (r *PostgresAssetRepository) checkTransition(ctx context.Context, res sql.Result, id string, to render.AssetStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return render.RepositoryError("rows_affected", err).WithDetail("asset_id", id)
	}
	if n > 0 {
		return nil
	}

	var status string
	if err := r.db.GetContext(ctx, &status, `SELECT status FROM render_assets WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return render.NotFound(id)
		}
		return render.RepositoryError("get_status", err).WithDetail("asset_id", id)
	}
	return render.InvalidTransition(id, render.AssetStatus(status), to)
}
