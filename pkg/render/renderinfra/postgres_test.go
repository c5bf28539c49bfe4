package renderinfra

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/render"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var assetColumns = []string{
	"id", "session_id", "room_id", "status", "prompt", "storage_path", "url", "content_type",
	"size_bytes", "model", "provider", "error", "optimized_path", "optimized_url",
	"created_at", "updated_at",
}

func newRepo(t *testing.T) (*PostgresAssetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewPostgresAssetRepository(sqlx.NewDb(db, "postgres"))
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	return repo, mock
}

func TestGet_MapsNullableColumns(t *testing.T) {
	repo, mock := newRepo(t)
	created := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, session_id, room_id, status`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows(assetColumns).AddRow(
			"a1", "s1", "r1", "processing", "warm oak kitchen", nil, nil, nil,
			nil, nil, nil, nil, nil, nil, created, created,
		))

	a, err := repo.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, render.AssetProcessing, a.Status)
	assert.Equal(t, "s1", a.SessionID)
	assert.Empty(t, a.StoragePath)
	assert.Zero(t, a.SizeBytes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGet_NotFound(t *testing.T) {
	repo, mock := newRepo(t)
	mock.ExpectQuery(`SELECT id, session_id`).WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "nope")
	assert.True(t, errx.HasCode(err, render.ErrAssetNotFound))
}

func TestMarkReady_UpdatesUnsettledAsset(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE render_assets SET\s+status = 'ready'`).
		WithArgs("sessions/s1/renders/a1.png", "/uploads/sessions/s1/renders/a1.png", "image/png",
			int64(2048), "gemini-2.5-flash-image", "gemini", repo.now(), "a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkReady(context.Background(), "a1", render.Rendition{
		Path:        "sessions/s1/renders/a1.png",
		URL:         "/uploads/sessions/s1/renders/a1.png",
		ContentType: "image/png",
		SizeBytes:   2048,
		Model:       "gemini-2.5-flash-image",
		Provider:    "gemini",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkFailed_SettledAssetIsInvalidTransition(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE render_assets SET status = 'failed'`).
		WithArgs("a1", "boom", repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM render_assets`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("ready"))

	err := repo.MarkFailed(context.Background(), "a1", "boom")
	require.True(t, errx.HasCode(err, render.ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkProcessing_MissingAsset(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE render_assets SET status = 'processing'`).
		WithArgs("a9", repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT status FROM render_assets`).
		WithArgs("a9").
		WillReturnError(sql.ErrNoRows)

	err := repo.MarkProcessing(context.Background(), "a9")
	assert.True(t, errx.HasCode(err, render.ErrAssetNotFound))
}

func TestSetOptimized(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`UPDATE render_assets SET optimized_path`).
		WithArgs("a1", "sessions/s1/optimized/a1-w800.jpg", "/u/a1-w800.jpg", repo.now()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetOptimized(context.Background(), "a1", "sessions/s1/optimized/a1-w800.jpg", "/u/a1-w800.jpg"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
