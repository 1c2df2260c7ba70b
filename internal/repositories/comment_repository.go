package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"livestream-chat/internal/models"
)

var ErrCommentNotFound = errors.New("comment not found")

// CommentRepository persists livestream chat messages.
type CommentRepository interface {
	CreateComment(ctx context.Context, in models.NewComment) (models.Comment, error)
	GetComment(ctx context.Context, commentID string) (models.Comment, error)
	ListRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error)
	SoftDeleteComment(ctx context.Context, commentID string) error
}

// CommentRepo is a sqlx-backed repository.
type CommentRepo struct {
	db *sqlx.DB
}

// NewCommentRepo constructs CommentRepo.
func NewCommentRepo(db *sqlx.DB) *CommentRepo {
	return &CommentRepo{db: db}
}

const commentColumns = `m.id, m.livestream_id, m.user_id, COALESCE(u.full_name, '') AS author_name, m.content, m.parent_id, m.status, m.created_at`

// CreateComment stores a comment and returns it with the author's display name.
func (r *CommentRepo) CreateComment(ctx context.Context, in models.NewComment) (models.Comment, error) {
	var c models.Comment
	query := `WITH m AS (
            INSERT INTO chat_messages (id, livestream_id, user_id, content, parent_id, status)
            VALUES ($1, $2, $3, $4, $5, $6)
            RETURNING id, livestream_id, user_id, content, parent_id, status, created_at
        )
        SELECT ` + commentColumns + ` FROM m LEFT JOIN users u ON u.id = m.user_id`
	err := r.db.GetContext(ctx, &c, query, in.ID, in.LivestreamID, in.UserID, in.Content, in.ParentID, models.CommentActive)
	return c, err
}

// GetComment retrieves a single comment regardless of status.
func (r *CommentRepo) GetComment(ctx context.Context, commentID string) (models.Comment, error) {
	var c models.Comment
	err := r.db.GetContext(ctx, &c, `SELECT `+commentColumns+` FROM chat_messages m LEFT JOIN users u ON u.id = m.user_id WHERE m.id=$1`, commentID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Comment{}, ErrCommentNotFound
	}
	return c, err
}

// ListRecentComments returns the newest active comments, newest first. seq
// breaks ties between comments stored within the same clock tick.
func (r *CommentRepo) ListRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error) {
	query := `SELECT ` + commentColumns + `
        FROM chat_messages m
        LEFT JOIN users u ON u.id = m.user_id
        WHERE m.livestream_id=$1 AND m.status=$2
        ORDER BY m.created_at DESC, m.seq DESC
        LIMIT $3`
	comments := []models.Comment{}
	err := r.db.SelectContext(ctx, &comments, query, livestreamID, models.CommentActive, limit)
	return comments, err
}

// SoftDeleteComment marks a comment deleted. Replies are left untouched.
func (r *CommentRepo) SoftDeleteComment(ctx context.Context, commentID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_messages SET status=$1 WHERE id=$2`, models.CommentDeleted, commentID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrCommentNotFound
	}
	return nil
}
