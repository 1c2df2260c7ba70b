package models

import "time"

// Ban blocks one user from one livestream's chat.
type Ban struct {
	LivestreamID string    `db:"livestream_id" json:"livestream_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	BannedBy     string    `db:"banned_by" json:"banned_by"`
	Reason       *string   `db:"reason" json:"reason,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
