package models

import "time"

// CommentStatus is the moderation state of a chat message.
type CommentStatus string

const (
	CommentActive  CommentStatus = "active"
	CommentDeleted CommentStatus = "deleted"
)

// Comment is a persisted livestream chat message.
type Comment struct {
	ID           string        `db:"id" json:"id"`
	LivestreamID string        `db:"livestream_id" json:"livestream_id"`
	UserID       string        `db:"user_id" json:"user_id"`
	AuthorName   string        `db:"author_name" json:"author_name"`
	Content      string        `db:"content" json:"content"`
	ParentID     *string       `db:"parent_id" json:"parent_id,omitempty"`
	Status       CommentStatus `db:"status" json:"status"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
}

// IsDeleted reports whether the comment was removed by moderation.
func (c Comment) IsDeleted() bool {
	return c.Status == CommentDeleted
}

// IsReply reports whether the comment has a parent.
func (c Comment) IsReply() bool {
	return c.ParentID != nil && *c.ParentID != ""
}

// NewComment is the input for persisting a comment.
type NewComment struct {
	ID           string
	LivestreamID string
	UserID       string
	Content      string
	ParentID     *string
}
