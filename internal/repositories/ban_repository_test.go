package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestream-chat/internal/models"
)

func TestCreateBan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)
	reason := "spam"

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO livestream_bans")).
		WithArgs("ls-1", "u-2", "mod-1", "spam").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.CreateBan(context.Background(), models.Ban{LivestreamID: "ls-1", UserID: "u-2", BannedBy: "mod-1", Reason: &reason})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateBanDuplicateRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (livestream_id, user_id) DO NOTHING")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.CreateBan(context.Background(), models.Ban{LivestreamID: "ls-1", UserID: "u-2", BannedBy: "mod-1"})
	require.ErrorIs(t, err, ErrAlreadyBanned)
}

func TestCreateBanUniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO livestream_bans")).
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.CreateBan(context.Background(), models.Ban{LivestreamID: "ls-1", UserID: "u-2", BannedBy: "mod-1"})
	require.ErrorIs(t, err, ErrAlreadyBanned)
}

func TestDeleteBan(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM livestream_bans")).
		WithArgs("ls-1", "u-2").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.DeleteBan(context.Background(), "ls-1", "u-2"))

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM livestream_bans")).
		WithArgs("ls-1", "u-3").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.DeleteBan(context.Background(), "ls-1", "u-3"), ErrBanNotFound)
}

func TestIsBanned(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("ls-1", "u-2").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	banned, err := repo.IsBanned(context.Background(), "ls-1", "u-2")
	require.NoError(t, err)
	assert.True(t, banned)
}

func TestListBans(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBanRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM livestream_bans WHERE livestream_id=$1")).
		WithArgs("ls-1").
		WillReturnRows(sqlmock.NewRows([]string{"livestream_id", "user_id", "banned_by", "reason", "created_at"}).
			AddRow("ls-1", "u-2", "mod-1", nil, time.Now()))

	bans, err := repo.ListBans(context.Background(), "ls-1")
	require.NoError(t, err)
	require.Len(t, bans, 1)
	assert.Nil(t, bans[0].Reason)
}
