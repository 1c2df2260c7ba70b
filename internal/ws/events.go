package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"livestream-chat/internal/errs"
	"livestream-chat/internal/models"
)

// Client to server event types.
const (
	EventJoinLivestream  = "joinLivestream"
	EventLeaveLivestream = "leaveLivestream"
	EventSendComment     = "sendComment"
	EventDeleteComment   = "deleteComment"
	EventBanUser         = "banUser"
	EventUnbanUser       = "unbanUser"
	EventPing            = "ping"
)

// Server to client event types.
const (
	EventNewComment     = "newComment"
	EventCommentDeleted = "commentDeleted"
	EventViewerCount    = "viewerCount"
	EventCommentHistory = "commentHistory"
	EventUserBanned     = "userBanned"
	EventError          = "error"
	EventPong           = "pong"
)

// Frame is the wire envelope for every message in both directions.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ClientEvent is the closed set of events a client may send.
type ClientEvent interface {
	EventType() string
	validate() error
}

type JoinLivestream struct {
	LivestreamID string `json:"livestreamId"`
}

type LeaveLivestream struct {
	LivestreamID string `json:"livestreamId"`
}

type SendComment struct {
	LivestreamID    string  `json:"livestreamId"`
	Content         string  `json:"content"`
	ParentCommentID *string `json:"parentCommentId,omitempty"`
}

type DeleteComment struct {
	CommentID string `json:"commentId"`
}

type BanUser struct {
	LivestreamID string  `json:"livestreamId"`
	UserID       string  `json:"userId"`
	Reason       *string `json:"reason,omitempty"`
}

type UnbanUser struct {
	LivestreamID string `json:"livestreamId"`
	UserID       string `json:"userId"`
}

type Ping struct{}

func (JoinLivestream) EventType() string  { return EventJoinLivestream }
func (LeaveLivestream) EventType() string { return EventLeaveLivestream }
func (SendComment) EventType() string     { return EventSendComment }
func (DeleteComment) EventType() string   { return EventDeleteComment }
func (BanUser) EventType() string         { return EventBanUser }
func (UnbanUser) EventType() string       { return EventUnbanUser }
func (Ping) EventType() string            { return EventPing }

func (e JoinLivestream) validate() error  { return required("livestreamId", e.LivestreamID) }
func (e LeaveLivestream) validate() error { return required("livestreamId", e.LivestreamID) }
func (e SendComment) validate() error     { return required("livestreamId", e.LivestreamID) }
func (e DeleteComment) validate() error   { return required("commentId", e.CommentID) }
func (e BanUser) validate() error {
	if err := required("livestreamId", e.LivestreamID); err != nil {
		return err
	}
	return required("userId", e.UserID)
}
func (e UnbanUser) validate() error {
	if err := required("livestreamId", e.LivestreamID); err != nil {
		return err
	}
	return required("userId", e.UserID)
}
func (Ping) validate() error { return nil }

func required(field, value string) error {
	if value == "" {
		return errs.BadRequest(field + " is required")
	}
	return nil
}

// DecodeClientEvent parses one frame. Unknown types, unknown fields and
// missing required fields are rejected.
func DecodeClientEvent(raw []byte) (ClientEvent, error) {
	var frame Frame
	if err := decodeStrict(raw, &frame); err != nil {
		return nil, errs.BadRequest("malformed frame")
	}

	var ev ClientEvent
	switch frame.Type {
	case EventJoinLivestream:
		ev = &JoinLivestream{}
	case EventLeaveLivestream:
		ev = &LeaveLivestream{}
	case EventSendComment:
		ev = &SendComment{}
	case EventDeleteComment:
		ev = &DeleteComment{}
	case EventBanUser:
		ev = &BanUser{}
	case EventUnbanUser:
		ev = &UnbanUser{}
	case EventPing:
		return Ping{}, nil
	case "":
		return nil, errs.BadRequest("missing event type")
	default:
		return nil, errs.BadRequest(fmt.Sprintf("unknown event type %q", frame.Type))
	}

	if len(frame.Data) == 0 {
		return nil, errs.BadRequest(frame.Type + " requires data")
	}
	if err := decodeStrict(frame.Data, ev); err != nil {
		return nil, errs.BadRequest("invalid " + frame.Type + " payload")
	}

	ev = deref(ev)
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

func deref(ev ClientEvent) ClientEvent {
	switch e := ev.(type) {
	case *JoinLivestream:
		return *e
	case *LeaveLivestream:
		return *e
	case *SendComment:
		return *e
	case *DeleteComment:
		return *e
	case *BanUser:
		return *e
	case *UnbanUser:
		return *e
	}
	return ev
}

func decodeStrict(raw []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after frame")
	}
	return nil
}

type UserRef struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
}

type CommentPayload struct {
	ID              string    `json:"id"`
	LivestreamID    string    `json:"livestreamId"`
	Content         string    `json:"content"`
	User            UserRef   `json:"user"`
	ParentCommentID *string   `json:"parentCommentId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

type CommentDeletedPayload struct {
	CommentID string `json:"commentId"`
}

type ViewerCountPayload struct {
	LivestreamID string `json:"livestreamId"`
	Count        int64  `json:"count"`
}

type CommentHistoryPayload struct {
	LivestreamID string           `json:"livestreamId"`
	Comments     []CommentPayload `json:"comments"`
}

type UserBannedPayload struct {
	LivestreamID string `json:"livestreamId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func commentPayload(c models.Comment) CommentPayload {
	return CommentPayload{
		ID:              c.ID,
		LivestreamID:    c.LivestreamID,
		Content:         c.Content,
		User:            UserRef{ID: c.UserID, FullName: c.AuthorName},
		ParentCommentID: c.ParentID,
		CreatedAt:       c.CreatedAt,
	}
}

func historyPayload(livestreamID string, comments []models.Comment) CommentHistoryPayload {
	out := make([]CommentPayload, 0, len(comments))
	for _, c := range comments {
		out = append(out, commentPayload(c))
	}
	return CommentHistoryPayload{LivestreamID: livestreamID, Comments: out}
}

// EncodeFrame marshals a server event.
func EncodeFrame(eventType string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Frame{Type: eventType, Data: data})
}
