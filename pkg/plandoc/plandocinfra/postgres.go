package plandocinfra

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Abraxas-365/remodel/pkg/plandoc"
	"github.com/jmoiron/sqlx"
)

// PostgresReader implements plandoc.Reader on session_rooms and render_assets.
type PostgresReader struct {
	db *sqlx.DB
}

// NewPostgresReader creates the reader.
func NewPostgresReader(db *sqlx.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

type roomRow struct {
	ID          string         `db:"id"`
	SessionID   string         `db:"session_id"`
	Name        string         `db:"name"`
	Kind        sql.NullString `db:"room_type"`
	Style       sql.NullString `db:"style"`
	BudgetCents sql.NullInt64  `db:"budget_cents"`
	Notes       sql.NullString `db:"notes"`
}

type renderRow struct {
	ID        string         `db:"id"`
	Prompt    string         `db:"prompt"`
	URL       sql.NullString `db:"url"`
	Model     sql.NullString `db:"model"`
	CreatedAt time.Time      `db:"created_at"`
}

func (r *PostgresReader) GetRoom(ctx context.Context, sessionID, roomID string) (*plandoc.Room, error) {
	query := `
		SELECT id, session_id, name, room_type, style, budget_cents, notes
		FROM session_rooms
		WHERE session_id = $1 AND id = $2`

	var row roomRow
	if err := r.db.GetContext(ctx, &row, query, sessionID, roomID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, plandoc.RoomNotFound(sessionID, roomID)
		}
		return nil, plandoc.ReadError("get_room", err)
	}

	return &plandoc.Room{
		ID:          row.ID,
		SessionID:   row.SessionID,
		Name:        row.Name,
		Kind:        row.Kind.String,
		Style:       row.Style.String,
		BudgetCents: row.BudgetCents.Int64,
		Notes:       row.Notes.String,
	}, nil
}

// ListRenders returns the ready renderings of a room, oldest first.
func (r *PostgresReader) ListRenders(ctx context.Context, sessionID, roomID string) ([]plandoc.RenderRef, error) {
	query := `
		SELECT id, prompt, COALESCE(optimized_url, url) AS url, model, created_at
		FROM render_assets
		WHERE session_id = $1 AND room_id = $2 AND status = 'ready'
		ORDER BY created_at`

	var rows []renderRow
	if err := r.db.SelectContext(ctx, &rows, query, sessionID, roomID); err != nil {
		return nil, plandoc.ReadError("list_renders", err)
	}

	refs := make([]plandoc.RenderRef, 0, len(rows))
	for _, row := range rows {
		refs = append(refs, plandoc.RenderRef{
			AssetID:   row.ID,
			Prompt:    row.Prompt,
			URL:       row.URL.String,
			Model:     row.Model.String,
			CreatedAt: row.CreatedAt,
		})
	}
	return refs, nil
}
