package ws

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"livestream-chat/internal/auth"
)

// Client is one authenticated gateway connection.
type Client struct {
	id        string
	principal auth.Principal
	info      ConnInfo
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       zerolog.Logger

	mu   sync.Mutex
	room string
}

func newClient(conn *websocket.Conn, principal auth.Principal, info ConnInfo, buffer int, log zerolog.Logger) *Client {
	if info.ConnID == "" {
		info.ConnID = newConnID()
	}
	return &Client{
		id:        info.ConnID,
		principal: principal,
		info:      info,
		conn:      conn,
		send:      make(chan []byte, buffer),
		done:      make(chan struct{}),
		log:       log,
	}
}

func (c *Client) ID() string                { return c.id }
func (c *Client) UserID() string            { return c.principal.UserID }
func (c *Client) Principal() auth.Principal { return c.principal }

// Room returns the livestream the connection is joined to, or "".
func (c *Client) Room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(roomID string) {
	c.mu.Lock()
	c.room = roomID
	c.mu.Unlock()
}

// clearRoom forgets roomID if it is still the current room.
func (c *Client) clearRoom(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.room != roomID {
		return false
	}
	c.room = ""
	return true
}

// Enqueue queues a frame without blocking. A full queue means the peer is
// not keeping up, so the connection is closed.
func (c *Client) Enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		c.log.Warn().Msg("send queue full, closing connection")
		c.Close()
		return false
	}
}

// Close stops the write pump, which closes the socket and unblocks the reader.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Done is closed once the connection is shutting down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

type pumpConfig struct {
	pingInterval   time.Duration
	pongWait       time.Duration
	writeWait      time.Duration
	maxMessageSize int64
}

// readPump delivers every inbound text frame to handle until the socket fails.
func (c *Client) readPump(cfg pumpConfig, handle func([]byte)) error {
	c.conn.SetReadLimit(cfg.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.pongWait))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		if msgType != websocket.TextMessage {
			continue
		}
		handle(data)
	}
}

// writePump is the only writer on the socket.
func (c *Client) writePump(cfg pumpConfig) {
	ticker := time.NewTicker(cfg.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug().Err(err).Msg("websocket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			c.drain(cfg)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.writeWait))
			return
		}
	}
}

// drain flushes frames queued before Close.
func (c *Client) drain(cfg pumpConfig) {
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(cfg.writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}
