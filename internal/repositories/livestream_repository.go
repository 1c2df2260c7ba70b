package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"livestream-chat/internal/models"
)

var ErrLivestreamNotFound = errors.New("livestream not found")

// LivestreamRepository looks up livestreams owned by the catalog service.
type LivestreamRepository interface {
	GetLivestream(ctx context.Context, livestreamID string) (models.Livestream, error)
}

// LivestreamRepo is a sqlx implementation of LivestreamRepository.
type LivestreamRepo struct {
	db *sqlx.DB
}

// NewLivestreamRepo constructs a LivestreamRepo.
func NewLivestreamRepo(db *sqlx.DB) *LivestreamRepo {
	return &LivestreamRepo{db: db}
}

// GetLivestream fetches a livestream by id.
func (r *LivestreamRepo) GetLivestream(ctx context.Context, livestreamID string) (models.Livestream, error) {
	var ls models.Livestream
	err := r.db.GetContext(ctx, &ls, `SELECT id, channel_id, chat_enabled FROM livestreams WHERE id=$1`, livestreamID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Livestream{}, ErrLivestreamNotFound
	}
	return ls, err
}
