package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for unit tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

// The batch count must hit the database exactly once regardless of page
// size; per-post COUNT loops are what it exists to replace.
func TestCountByPosts_SingleQuery(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewCommentRepository(db)

	rows := sqlmock.NewRows([]string{"post_id", "cnt"}).
		AddRow(1, 3).
		AddRow(3, 1)
	mock.ExpectQuery(`SELECT post_id, COUNT\(\*\) AS cnt FROM "comments" WHERE post_id IN \(\$1,\$2,\$3\) GROUP BY "post_id"`).
		WithArgs(1, 2, 3).
		WillReturnRows(rows)

	counts, err := repo.CountByPosts(context.Background(), []uint{1, 2, 3})
	require.NoError(t, err)

	assert.EqualValues(t, 3, counts[1])
	assert.EqualValues(t, 1, counts[3])
	_, present := counts[2]
	assert.False(t, present)

	require.NoError(t, mock.ExpectationsWereMet())
}
