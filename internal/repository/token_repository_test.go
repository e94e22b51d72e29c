package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestTokenCreateReturnsRowID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	exp := time.Now().Add(7 * 24 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?,?,?)")).
		WithArgs(uint64(7), "", exp).
		WillReturnResult(sqlmock.NewResult(33, 1))

	id, err := repo.Create(context.Background(), 7, exp)
	require.NoError(t, err)
	require.Equal(t, uint64(33), id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenSetTokenBackfills(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE refresh_tokens SET token=? WHERE id=?")).
		WithArgs("signed.jwt.here", uint64(33)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetToken(context.Background(), 33, "signed.jwt.here"))
}

func TestTokenSetTokenMissingRow(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec("UPDATE refresh_tokens SET token=").
		WithArgs("signed.jwt.here", uint64(404)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetToken(context.Background(), 404, "signed.jwt.here")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenFindByTokenAndID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens WHERE id=? AND token=? LIMIT 1")).
		WithArgs(uint64(33), "signed.jwt.here").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at"}).
			AddRow(33, 7, "signed.jwt.here", now.Add(time.Hour), now))

	rt, err := repo.FindByTokenAndID(context.Background(), "signed.jwt.here", 33)
	require.NoError(t, err)
	require.Equal(t, uint64(33), rt.ID)
	require.Equal(t, uint64(7), rt.UserID)
}

func TestTokenFindRotatedTokenMisses(t *testing.T) {
	// After rotation the row is gone; a replayed token must not resolve.
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectQuery("SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens").
		WithArgs(uint64(33), "stale.jwt").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByTokenAndID(context.Background(), "stale.jwt", 33)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestTokenDeleteByIDReportsWinner(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE id=?")).
		WithArgs(uint64(33)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE id=?")).
		WithArgs(uint64(33)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.DeleteByID(context.Background(), 33)
	require.NoError(t, err)
	require.True(t, won)

	// The losing side of a rotation race sees zero rows.
	won, err = repo.DeleteByID(context.Background(), 33)
	require.NoError(t, err)
	require.False(t, won)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenDeleteByTokenAndID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE id=? AND token=?")).
		WithArgs(uint64(33), "signed.jwt.here").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteByTokenAndID(context.Background(), "signed.jwt.here", 33)
	require.NoError(t, err)
	require.True(t, deleted)
}

func TestTokenDeleteExpiredCounts(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE expires_at < NOW()")).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.DeleteExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(4), n)
}

func TestTokenDeleteAllForUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewTokenRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM refresh_tokens WHERE user_id=?")).
		WithArgs(uint64(7)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, repo.DeleteAllForUser(context.Background(), 7))
}
