package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock
}

func TestNextPending_ReturnsOldest(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewQueueRepository(db, zap.NewNop())

	created := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "btrim", "created_at"}).
		AddRow(int64(17), "F0ADD-192.168.0.222-100005", created)

	mock.ExpectQuery(`SELECT id, btrim\(inbound\), created_at`).
		WillReturnRows(rows)

	cmd, err := repo.NextPending(context.Background())
	require.NoError(t, err)
	require.NotNil(t, cmd)
	assert.Equal(t, int64(17), cmd.ID)
	assert.Equal(t, "F0ADD-192.168.0.222-100005", cmd.Payload)
	assert.Equal(t, created, cmd.CreatedAt)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextPending_EmptyQueue(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewQueueRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT id, btrim\(inbound\), created_at`).
		WillReturnError(sql.ErrNoRows)

	cmd, err := repo.NextPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cmd)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_RemovesRow(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewQueueRepository(db, zap.NewNop())

	mock.ExpectExec(`DELETE FROM sync_queue WHERE id = \$1`).
		WithArgs(int64(17)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Delete(context.Background(), 17))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_MissingRowIsNotAnError(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewQueueRepository(db, zap.NewNop())

	mock.ExpectExec(`DELETE FROM sync_queue WHERE id = \$1`).
		WithArgs(int64(99)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Delete(context.Background(), 99))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertLogEntry(t *testing.T) {
	db, mock := setupMockDB(t)
	defer db.Close()
	repo := NewQueueRepository(db, zap.NewNop())

	mock.ExpectExec(`INSERT INTO sync_queue \(outbound\) VALUES \(\$1\)`).
		WithArgs("F575-1.2.3.4-20240501T100000-42").
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.InsertLogEntry(context.Background(), "F575-1.2.3.4-20240501T100000-42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
