package plandocinfra

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
	"github.com/Abraxas-365/remodel/pkg/plandoc"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T) (*PostgresReader, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresReader(sqlx.NewDb(db, "postgres")), mock
}

func TestGetRoom(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`FROM session_rooms`).
		WithArgs("s1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "name", "room_type", "style", "budget_cents", "notes"}).
			AddRow("r1", "s1", "Kitchen", "kitchen", nil, int64(1500000), "Keep the window"))

	room, err := r.GetRoom(context.Background(), "s1", "r1")
	require.NoError(t, err)
	assert.Equal(t, "Kitchen", room.Name)
	assert.Empty(t, room.Style)
	assert.Equal(t, int64(1500000), room.BudgetCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRoom_NotFound(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`FROM session_rooms`).WithArgs("s1", "nope").WillReturnError(sql.ErrNoRows)

	_, err := r.GetRoom(context.Background(), "s1", "nope")
	assert.True(t, errx.HasCode(err, plandoc.ErrRoomNotFound))
}

func TestGetRoom_DatabaseError(t *testing.T) {
	r, mock := newReader(t)
	mock.ExpectQuery(`FROM session_rooms`).WillReturnError(errors.New("connection refused"))

	_, err := r.GetRoom(context.Background(), "s1", "r1")
	assert.True(t, errx.HasCode(err, plandoc.ErrReadFailed))
}

func TestListRenders_OnlyReady(t *testing.T) {
	r, mock := newReader(t)
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM render_assets\s+WHERE session_id = \$1 AND room_id = \$2 AND status = 'ready'`).
		WithArgs("s1", "r1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "prompt", "url", "model", "created_at"}).
			AddRow("a1", "warm oak", "/uploads/a1.png", "gemini", at).
			AddRow("a2", "white marble", nil, nil, at.Add(time.Minute)))

	refs, err := r.ListRenders(context.Background(), "s1", "r1")
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "/uploads/a1.png", refs[0].URL)
	assert.Empty(t, refs[1].URL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
