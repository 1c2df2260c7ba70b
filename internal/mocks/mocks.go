package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"livestream-chat/internal/models"
	"livestream-chat/internal/presence"
	"livestream-chat/internal/repositories"
)

type LivestreamRepositoryMock struct {
	mock.Mock
}

func (m *LivestreamRepositoryMock) GetLivestream(ctx context.Context, livestreamID string) (models.Livestream, error) {
	args := m.Called(ctx, livestreamID)
	var ls models.Livestream
	if val := args.Get(0); val != nil {
		ls = val.(models.Livestream)
	}
	return ls, args.Error(1)
}

type CommentRepositoryMock struct {
	mock.Mock
}

func (m *CommentRepositoryMock) CreateComment(ctx context.Context, in models.NewComment) (models.Comment, error) {
	args := m.Called(ctx, in)
	var c models.Comment
	if val := args.Get(0); val != nil {
		c = val.(models.Comment)
	}
	return c, args.Error(1)
}

func (m *CommentRepositoryMock) GetComment(ctx context.Context, commentID string) (models.Comment, error) {
	args := m.Called(ctx, commentID)
	var c models.Comment
	if val := args.Get(0); val != nil {
		c = val.(models.Comment)
	}
	return c, args.Error(1)
}

func (m *CommentRepositoryMock) ListRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error) {
	args := m.Called(ctx, livestreamID, limit)
	var list []models.Comment
	if val := args.Get(0); val != nil {
		list = val.([]models.Comment)
	}
	return list, args.Error(1)
}

func (m *CommentRepositoryMock) SoftDeleteComment(ctx context.Context, commentID string) error {
	args := m.Called(ctx, commentID)
	return args.Error(0)
}

type BanRepositoryMock struct {
	mock.Mock
}

func (m *BanRepositoryMock) CreateBan(ctx context.Context, ban models.Ban) error {
	args := m.Called(ctx, ban)
	return args.Error(0)
}

func (m *BanRepositoryMock) DeleteBan(ctx context.Context, livestreamID, userID string) error {
	args := m.Called(ctx, livestreamID, userID)
	return args.Error(0)
}

func (m *BanRepositoryMock) IsBanned(ctx context.Context, livestreamID, userID string) (bool, error) {
	args := m.Called(ctx, livestreamID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *BanRepositoryMock) ListBans(ctx context.Context, livestreamID string) ([]models.Ban, error) {
	args := m.Called(ctx, livestreamID)
	var list []models.Ban
	if val := args.Get(0); val != nil {
		list = val.([]models.Ban)
	}
	return list, args.Error(1)
}

type PresenceStoreMock struct {
	mock.Mock
}

func (m *PresenceStoreMock) Add(ctx context.Context, livestreamID, userID string) (int64, error) {
	args := m.Called(ctx, livestreamID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PresenceStoreMock) Remove(ctx context.Context, livestreamID, userID string) (int64, error) {
	args := m.Called(ctx, livestreamID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PresenceStoreMock) Count(ctx context.Context, livestreamID string) (int64, error) {
	args := m.Called(ctx, livestreamID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PresenceStoreMock) Clear(ctx context.Context, livestreamID string) error {
	args := m.Called(ctx, livestreamID)
	return args.Error(0)
}

func (m *PresenceStoreMock) Touch(ctx context.Context, livestreamID string) (bool, error) {
	args := m.Called(ctx, livestreamID)
	return args.Bool(0), args.Error(1)
}

var (
	_ repositories.LivestreamRepository = (*LivestreamRepositoryMock)(nil)
	_ repositories.CommentRepository    = (*CommentRepositoryMock)(nil)
	_ repositories.BanRepository        = (*BanRepositoryMock)(nil)
	_ presence.Store                    = (*PresenceStoreMock)(nil)
)
