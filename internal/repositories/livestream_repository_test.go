package repositories

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLivestream(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLivestreamRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, channel_id, chat_enabled FROM livestreams WHERE id=$1")).
		WithArgs("ls-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_id", "chat_enabled"}).AddRow("ls-1", "ch-1", false))

	ls, err := repo.GetLivestream(context.Background(), "ls-1")
	require.NoError(t, err)
	assert.Equal(t, "ch-1", ls.ChannelID)
	assert.False(t, ls.ChatEnabled)
}

func TestGetLivestreamNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLivestreamRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM livestreams")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"id", "channel_id", "chat_enabled"}))

	_, err := repo.GetLivestream(context.Background(), "nope")
	require.ErrorIs(t, err, ErrLivestreamNotFound)
}
