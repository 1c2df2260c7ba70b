package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livestream-chat/internal/auth"
	"livestream-chat/internal/errs"
)

const e2eSecret = "e2e-secret"

func startServer(t *testing.T, f *gatewayFixture) string {
	t.Helper()
	f.gw.verifier = auth.NewJWTVerifier(e2eSecret, "")

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", f.gw.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.Sign(e2eSecret, auth.Claims{
		Name: "User " + userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	require.NoError(t, err)
	return tok
}

func readFrame(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var r received
	require.NoError(t, conn.ReadJSON(&r))
	return r
}

func TestWebsocketJoinAndDisconnect(t *testing.T) {
	f := newGatewayFixture(t)
	f.open("L1")
	f.notBanned("L1", "alice")
	url := startServer(t, f)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token(t, "alice"), nil)
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": EventJoinLivestream, "data": map[string]string{"livestreamId": "L1"}}))
	assert.Equal(t, EventViewerCount, readFrame(t, conn).Type)
	assert.Equal(t, EventCommentHistory, readFrame(t, conn).Type)
	assert.EqualValues(t, 1, f.count(t, "L1"))

	// Abrupt close without leaveLivestream.
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		n, err := f.store.Count(context.Background(), "L1")
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, f.gw.Hub().RoomCount())
}

func TestWebsocketSubprotocolToken(t *testing.T) {
	f := newGatewayFixture(t)
	url := startServer(t, f)

	dialer := websocket.Dialer{Subprotocols: []string{auth.SubprotocolBearer, token(t, "alice")}}
	conn, resp, err := dialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, auth.SubprotocolBearer, resp.Header.Get("Sec-WebSocket-Protocol"))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": EventPing}))
	assert.Equal(t, EventPong, readFrame(t, conn).Type)
}

func TestWebsocketRejectsBadToken(t *testing.T) {
	f := newGatewayFixture(t)
	url := startServer(t, f)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token=garbage", nil)
	require.NoError(t, err)
	defer conn.Close()

	frame := readFrame(t, conn)
	assert.Equal(t, EventError, frame.Type)
	assert.Contains(t, string(frame.Data), errs.CodeUnauthenticated)

	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation))
}

func TestWebsocketOverlongCommentKeepsConnection(t *testing.T) {
	f := newGatewayFixture(t)
	url := startServer(t, f)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token(t, "alice"), nil)
	require.NoError(t, err)
	defer conn.Close()

	content := strings.Repeat("x", 5000)
	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": EventSendComment,
		"data": map[string]string{"livestreamId": "L1", "content": content},
	}))

	frame := readFrame(t, conn)
	assert.Equal(t, EventError, frame.Type)
	assert.Contains(t, string(frame.Data), errs.CodeInvalidContent)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": EventPing}))
	assert.Equal(t, EventPong, readFrame(t, conn).Type)
}
