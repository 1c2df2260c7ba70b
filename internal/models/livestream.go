package models

// Livestream is the read-only view of a livestream owned by the catalog service.
type Livestream struct {
	ID          string `db:"id" json:"id"`
	ChannelID   string `db:"channel_id" json:"channel_id"`
	ChatEnabled bool   `db:"chat_enabled" json:"chat_enabled"`
}

// LivestreamStatus answers whether a livestream accepts chat.
type LivestreamStatus struct {
	Exists      bool
	ChatEnabled bool
	ChannelID   string
}
