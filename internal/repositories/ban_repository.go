package repositories

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"livestream-chat/internal/models"
)

var (
	ErrAlreadyBanned = errors.New("user already banned")
	ErrBanNotFound   = errors.New("ban not found")
)

const uniqueViolation = pq.ErrorCode("23505")

// BanRepository manages per-livestream bans.
type BanRepository interface {
	CreateBan(ctx context.Context, ban models.Ban) error
	DeleteBan(ctx context.Context, livestreamID, userID string) error
	IsBanned(ctx context.Context, livestreamID, userID string) (bool, error)
	ListBans(ctx context.Context, livestreamID string) ([]models.Ban, error)
}

// BanRepo is a sqlx implementation of BanRepository.
type BanRepo struct {
	db *sqlx.DB
}

// NewBanRepo constructs BanRepo.
func NewBanRepo(db *sqlx.DB) *BanRepo {
	return &BanRepo{db: db}
}

// CreateBan inserts a ban. A concurrent or repeated ban reports ErrAlreadyBanned.
func (r *BanRepo) CreateBan(ctx context.Context, ban models.Ban) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO livestream_bans (livestream_id, user_id, banned_by, reason)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (livestream_id, user_id) DO NOTHING`, ban.LivestreamID, ban.UserID, ban.BannedBy, ban.Reason)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyBanned
		}
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrAlreadyBanned
	}
	return nil
}

// DeleteBan removes a ban.
func (r *BanRepo) DeleteBan(ctx context.Context, livestreamID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM livestream_bans WHERE livestream_id=$1 AND user_id=$2`, livestreamID, userID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrBanNotFound
	}
	return nil
}

// IsBanned is a primary-key lookup on (livestream_id, user_id).
func (r *BanRepo) IsBanned(ctx context.Context, livestreamID, userID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM livestream_bans WHERE livestream_id=$1 AND user_id=$2)`, livestreamID, userID)
	return exists, err
}

// ListBans returns bans for a livestream, newest first.
func (r *BanRepo) ListBans(ctx context.Context, livestreamID string) ([]models.Ban, error) {
	bans := []models.Ban{}
	err := r.db.SelectContext(ctx, &bans, `SELECT livestream_id, user_id, banned_by, reason, created_at
        FROM livestream_bans WHERE livestream_id=$1 ORDER BY created_at DESC`, livestreamID)
	return bans, err
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
