package ws

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestream-chat/internal/errs"
	"livestream-chat/internal/models"
)

func TestDecodeClientEvents(t *testing.T) {
	parent := "p-1"
	reason := "spam"
	cases := []struct {
		raw  string
		want ClientEvent
	}{
		{`{"type":"joinLivestream","data":{"livestreamId":"ls-1"}}`, JoinLivestream{LivestreamID: "ls-1"}},
		{`{"type":"leaveLivestream","data":{"livestreamId":"ls-1"}}`, LeaveLivestream{LivestreamID: "ls-1"}},
		{`{"type":"sendComment","data":{"livestreamId":"ls-1","content":"hi"}}`, SendComment{LivestreamID: "ls-1", Content: "hi"}},
		{`{"type":"sendComment","data":{"livestreamId":"ls-1","content":"re","parentCommentId":"p-1"}}`, SendComment{LivestreamID: "ls-1", Content: "re", ParentCommentID: &parent}},
		{`{"type":"deleteComment","data":{"commentId":"c-1"}}`, DeleteComment{CommentID: "c-1"}},
		{`{"type":"banUser","data":{"livestreamId":"ls-1","userId":"u-2","reason":"spam"}}`, BanUser{LivestreamID: "ls-1", UserID: "u-2", Reason: &reason}},
		{`{"type":"unbanUser","data":{"livestreamId":"ls-1","userId":"u-2"}}`, UnbanUser{LivestreamID: "ls-1", UserID: "u-2"}},
		{`{"type":"ping"}`, Ping{}},
	}
	for _, tc := range cases {
		t.Run(tc.want.EventType(), func(t *testing.T) {
			got, err := DecodeClientEvent([]byte(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeRejectsMalformedFrames(t *testing.T) {
	cases := map[string]string{
		"not json":        `{"type":`,
		"unknown type":    `{"type":"shout","data":{}}`,
		"missing type":    `{"data":{}}`,
		"unknown field":   `{"type":"joinLivestream","data":{"livestreamId":"ls-1","room":"x"}}`,
		"envelope field":  `{"type":"ping","extra":1}`,
		"missing data":    `{"type":"joinLivestream"}`,
		"null data":       `{"type":"joinLivestream","data":null}`,
		"missing id":      `{"type":"joinLivestream","data":{}}`,
		"ban without uid": `{"type":"banUser","data":{"livestreamId":"ls-1"}}`,
		"wrong type":      `{"type":"sendComment","data":{"livestreamId":1,"content":"hi"}}`,
		"trailing":        `{"type":"ping"} {"type":"ping"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeClientEvent([]byte(raw))
			require.Error(t, err)
			assert.Equal(t, errs.CodeBadRequest, errs.As(err).Code)
		})
	}
}

func TestEncodeFrame(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	frame, err := EncodeFrame(EventNewComment, commentPayload(models.Comment{
		ID: "c-1", LivestreamID: "ls-1", UserID: "u-1", AuthorName: "Ada", Content: "hi", CreatedAt: created,
	}))
	require.NoError(t, err)

	var decoded struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(frame, &decoded))
	assert.Equal(t, EventNewComment, decoded.Type)
	assert.Equal(t, map[string]any{"id": "u-1", "fullName": "Ada"}, decoded.Data["user"])
	assert.Equal(t, "2024-05-01T12:00:00Z", decoded.Data["createdAt"])
	_, hasParent := decoded.Data["parentCommentId"]
	assert.False(t, hasParent)

	pong, err := EncodeFrame(EventPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(pong))
}
