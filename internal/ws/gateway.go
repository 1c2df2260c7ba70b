package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"livestream-chat/internal/auth"
	"livestream-chat/internal/chat"
	"livestream-chat/internal/errs"
	"livestream-chat/internal/logging"
	"livestream-chat/internal/models"
	"livestream-chat/internal/observability"
	"livestream-chat/internal/presence"
	"livestream-chat/internal/telemetry"
)

// ChatService is what the gateway needs from the chat and moderation layer.
type ChatService interface {
	CheckParticipation(ctx context.Context, livestreamID, userID string) error
	IsUserBanned(ctx context.Context, livestreamID, userID string) (bool, error)
	CreateComment(ctx context.Context, in chat.CreateCommentInput) (models.Comment, error)
	GetRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error)
	DeleteComment(ctx context.Context, commentID string) (models.Comment, error)
	BanUser(ctx context.Context, livestreamID, userID, bannedBy string, reason *string) error
	UnbanUser(ctx context.Context, livestreamID, userID string) error
	HistoryLimit() int
}

var _ ChatService = (*chat.Service)(nil)

// Options controls connection liveness and per-event store deadlines.
type Options struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	OpTimeout      time.Duration
	// PresenceRefresh is how often the viewer sets of locally held rooms
	// get their expiry slid forward. It must be shorter than the store TTL.
	PresenceRefresh time.Duration
}

func (o Options) withDefaults() Options {
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingInterval <= 0 || o.PingInterval >= o.PongWait {
		o.PingInterval = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 16384
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 10 * time.Second
	}
	if o.PresenceRefresh <= 0 {
		o.PresenceRefresh = 15 * time.Minute
	}
	return o
}

// Gateway owns every client connection and is the only place chat and
// presence mutations are authorized.
type Gateway struct {
	hub      *Hub
	chat     ChatService
	presence presence.Store
	verifier auth.Verifier
	audit    *telemetry.AuditEmitter
	opts     Options
	upgrader websocket.Upgrader
}

// NewGateway builds a Gateway. audit may be nil.
func NewGateway(hub *Hub, chatSvc ChatService, store presence.Store, verifier auth.Verifier, audit *telemetry.AuditEmitter, opts Options) *Gateway {
	return &Gateway{
		hub:      hub,
		chat:     chatSvc,
		presence: store,
		verifier: verifier,
		audit:    audit,
		opts:     opts.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			Subprotocols:    []string{auth.SubprotocolBearer},
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Hub exposes the membership index.
func (g *Gateway) Hub() *Hub {
	return g.hub
}

func (g *Gateway) pumpConfig() pumpConfig {
	return pumpConfig{
		pingInterval:   g.opts.PingInterval,
		pongWait:       g.opts.PongWait,
		writeWait:      g.opts.WriteWait,
		maxMessageSize: g.opts.MaxMessageSize,
	}
}

// Handle authenticates and upgrades a websocket handshake.
func (g *Gateway) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("livestream-chat/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	principal, authErr := g.verifier.Verify(auth.TokenFromRequest(c.Request))

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if authErr != nil {
		span.RecordError(authErr)
		span.SetStatus(codes.Error, "unauthenticated")
		observability.IncWSEvent("ws_auth_failed")
		g.rejectUnauthenticated(conn, authErr)
		return
	}

	requestID := c.GetString(logging.RequestIDContextKey)
	if requestID == "" {
		requestID = observability.RequestIDFromRequest(c.Request)
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      principal.UserID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	log := logging.Ctx(ctx).With().
		Str(logging.FieldConnID, info.ConnID).
		Str(logging.FieldUserID, info.UserID).
		Logger()
	client := newClient(conn, principal, info, g.opts.SendBuffer, log)

	// The request context ends when this handler returns, so the
	// connection gets its own, keeping the logger and trace.
	connCtx := logging.WithLogger(context.Background(), log)
	connCtx = observability.WithRequestID(connCtx, requestID)
	connCtx = trace.ContextWithSpanContext(connCtx, span.SpanContext())

	go g.serve(connCtx, client)
}

func (g *Gateway) rejectUnauthenticated(conn *websocket.Conn, cause error) {
	defer conn.Close()
	e := errs.As(cause)
	deadline := time.Now().Add(g.opts.WriteWait)
	if frame, err := EncodeFrame(EventError, ErrorPayload{Message: e.Message, Code: e.Code}); err == nil {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.WriteMessage(websocket.TextMessage, frame)
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, e.Message), deadline)
}

func (g *Gateway) serve(ctx context.Context, c *Client) {
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	g.publishLifecycle(ctx, c, "ws_connect", "")
	c.log.Info().Msg("websocket connected")

	cfg := g.pumpConfig()
	go c.writePump(cfg)

	readErr := c.readPump(cfg, func(data []byte) {
		g.HandleMessage(ctx, c, data)
	})

	reason := ""
	if readErr != nil {
		reason = readErr.Error()
		if !websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			observability.IncWSEvent("ws_error")
			g.publishLifecycle(ctx, c, "ws_error", reason)
		}
	}
	c.Close()

	cleanupCtx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	g.Disconnect(cleanupCtx, c)
	cancel()

	observability.DecWSActive()
	observability.IncWSEvent("ws_disconnect")
	g.publishLifecycle(ctx, c, "ws_disconnect", reason)
	c.log.Info().Str("reason", reason).Msg("websocket disconnected")
}

// HandleMessage decodes and dispatches one inbound frame. Any failure is
// reported to c only.
func (g *Gateway) HandleMessage(ctx context.Context, c *Client, data []byte) {
	ev, err := DecodeClientEvent(data)
	if err != nil {
		observability.IncWSEvent("invalid")
		g.sendError(ctx, c, err)
		return
	}
	observability.IncWSEvent(ev.EventType())

	opCtx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
	defer cancel()
	if err := g.Dispatch(opCtx, c, ev); err != nil {
		g.sendError(ctx, c, err)
	}
}

// Dispatch routes a decoded event to its handler.
func (g *Gateway) Dispatch(ctx context.Context, c *Client, ev ClientEvent) error {
	switch e := ev.(type) {
	case JoinLivestream:
		return g.JoinLivestream(ctx, c, e.LivestreamID)
	case LeaveLivestream:
		return g.LeaveLivestream(ctx, c, e.LivestreamID)
	case SendComment:
		return g.SendComment(ctx, c, e)
	case DeleteComment:
		return g.DeleteComment(ctx, c, e.CommentID)
	case BanUser:
		return g.BanUser(ctx, c, e)
	case UnbanUser:
		return g.UnbanUser(ctx, c, e)
	case Ping:
		g.sendTo(c, EventPong, nil)
		return nil
	default:
		return errs.BadRequest("unsupported event")
	}
}

// JoinLivestream moves c into livestreamID's room, updates presence and
// replays recent history to c alone.
func (g *Gateway) JoinLivestream(ctx context.Context, c *Client, livestreamID string) error {
	userID := c.UserID()
	if err := g.chat.CheckParticipation(ctx, livestreamID, userID); err != nil {
		return err
	}
	if current := c.Room(); current != "" && current != livestreamID {
		_ = g.LeaveLivestream(ctx, c, current)
	}

	unlock := g.hub.lockUser(livestreamID, userID)
	g.hub.Join(livestreamID, c)
	c.setRoom(livestreamID)
	count, presenceErr := g.presence.Add(ctx, livestreamID, userID)
	unlock()

	// A ban committed between the check above and the hub insert would
	// otherwise miss this connection.
	banned, err := g.chat.IsUserBanned(ctx, livestreamID, userID)
	if err != nil {
		c.log.Warn().Err(err).Str(logging.FieldLivestreamID, livestreamID).Msg("ban recheck failed")
	} else if banned {
		g.evict(ctx, livestreamID, userID)
		return nil
	}

	if presenceErr != nil {
		g.presenceFailed(ctx, "add", livestreamID, presenceErr)
	} else {
		g.broadcastViewerCount(ctx, livestreamID, count)
	}

	// The join already took effect, so a history failure sends an empty
	// history rather than an error.
	comments, err := g.chat.GetRecentComments(ctx, livestreamID, g.chat.HistoryLimit())
	if err != nil {
		c.log.Warn().Err(err).Str(logging.FieldLivestreamID, livestreamID).Msg("history load failed")
		comments = nil
	}
	g.sendTo(c, EventCommentHistory, historyPayload(livestreamID, comments))
	return nil
}

// LeaveLivestream removes c from the room. Leaving a room c is not in is a
// no-op, which also makes it safe after a disconnect or an eviction.
func (g *Gateway) LeaveLivestream(ctx context.Context, c *Client, livestreamID string) error {
	userID := c.UserID()
	unlock := g.hub.lockUser(livestreamID, userID)
	removed, last := g.hub.Leave(livestreamID, c)
	c.clearRoom(livestreamID)
	if !removed || !last {
		unlock()
		return nil
	}
	count, err := g.presence.Remove(ctx, livestreamID, userID)
	unlock()

	if err != nil {
		g.presenceFailed(ctx, "remove", livestreamID, err)
		return nil
	}
	g.broadcastViewerCount(ctx, livestreamID, count)
	return nil
}

// SendComment persists a comment and broadcasts it. Nothing is broadcast
// unless the write succeeded.
func (g *Gateway) SendComment(ctx context.Context, c *Client, ev SendComment) error {
	comment, err := g.chat.CreateComment(ctx, chat.CreateCommentInput{
		LivestreamID: ev.LivestreamID,
		UserID:       c.UserID(),
		Content:      ev.Content,
		ParentID:     ev.ParentCommentID,
	})
	if err != nil {
		return err
	}
	if comment.LivestreamID == "" {
		comment.LivestreamID = ev.LivestreamID
	}
	g.touchPresence(ctx, ev.LivestreamID)

	g.broadcast(ctx, ev.LivestreamID, EventNewComment, commentPayload(comment))
	observability.PublishDomainEvent(ctx, observability.RoutingCommentCreated, "comment_created", map[string]interface{}{
		"livestream_id": ev.LivestreamID,
		"comment_id":    comment.ID,
		"user_id":       comment.UserID,
		"parent_id":     comment.ParentID,
	})
	return nil
}

// DeleteComment soft-deletes a comment and notifies its livestream's room.
func (g *Gateway) DeleteComment(ctx context.Context, c *Client, commentID string) error {
	if !c.Principal().IsModerator() {
		return errs.ErrForbidden
	}
	comment, err := g.chat.DeleteComment(ctx, commentID)
	if err != nil {
		return err
	}

	g.broadcast(ctx, comment.LivestreamID, EventCommentDeleted, CommentDeletedPayload{CommentID: comment.ID})
	observability.PublishDomainEvent(ctx, observability.RoutingCommentDeleted, "comment_deleted", map[string]interface{}{
		"livestream_id": comment.LivestreamID,
		"comment_id":    comment.ID,
		"deleted_by":    c.UserID(),
	})
	g.audit.Record(ctx, telemetry.AuditEntry{
		Text:         "comment deleted",
		Action:       "delete_comment",
		LivestreamID: comment.LivestreamID,
		TargetID:     comment.ID,
		RequestID:    observability.RequestIDFromContext(ctx),
		UserID:       c.UserID(),
	})
	return nil
}

// BanUser stores the ban and ejects every connection of the target from
// the room. Repeating a ban still ejects stragglers.
func (g *Gateway) BanUser(ctx context.Context, c *Client, ev BanUser) error {
	if !c.Principal().IsModerator() {
		return errs.ErrForbidden
	}
	err := g.chat.BanUser(ctx, ev.LivestreamID, ev.UserID, c.UserID(), ev.Reason)
	alreadyBanned := errors.Is(err, errs.ErrAlreadyBanned)
	if err != nil && !alreadyBanned {
		return err
	}

	g.evict(ctx, ev.LivestreamID, ev.UserID)
	if alreadyBanned {
		return nil
	}

	observability.PublishDomainEvent(ctx, observability.RoutingUserBanned, "user_banned", map[string]interface{}{
		"livestream_id": ev.LivestreamID,
		"user_id":       ev.UserID,
		"banned_by":     c.UserID(),
		"reason":        ev.Reason,
	})
	g.audit.Record(ctx, telemetry.AuditEntry{
		Text:         "user banned",
		Action:       "ban_user",
		LivestreamID: ev.LivestreamID,
		TargetID:     ev.UserID,
		RequestID:    observability.RequestIDFromContext(ctx),
		UserID:       c.UserID(),
	})
	return nil
}

// UnbanUser lifts a ban. The user may join again immediately.
func (g *Gateway) UnbanUser(ctx context.Context, c *Client, ev UnbanUser) error {
	if !c.Principal().IsModerator() {
		return errs.ErrForbidden
	}
	if err := g.chat.UnbanUser(ctx, ev.LivestreamID, ev.UserID); err != nil {
		return err
	}

	observability.PublishDomainEvent(ctx, observability.RoutingUserUnbanned, "user_unbanned", map[string]interface{}{
		"livestream_id": ev.LivestreamID,
		"user_id":       ev.UserID,
		"unbanned_by":   c.UserID(),
	})
	g.audit.Record(ctx, telemetry.AuditEntry{
		Text:         "user unbanned",
		Action:       "unban_user",
		LivestreamID: ev.LivestreamID,
		TargetID:     ev.UserID,
		RequestID:    observability.RequestIDFromContext(ctx),
		UserID:       c.UserID(),
	})
	return nil
}

// Disconnect runs the leave cleanup for the connection's last room.
func (g *Gateway) Disconnect(ctx context.Context, c *Client) {
	if room := c.Room(); room != "" {
		_ = g.LeaveLivestream(ctx, c, room)
	}
}

// ResetViewers clears a livestream's presence set, e.g. when the stream ends.
func (g *Gateway) ResetViewers(ctx context.Context, livestreamID string) error {
	if err := g.presence.Clear(ctx, livestreamID); err != nil {
		g.presenceFailed(ctx, "clear", livestreamID, err)
		return errs.Transient("failed to clear viewers", err)
	}
	g.broadcastViewerCount(ctx, livestreamID, 0)
	return nil
}

// RefreshPresence slides the expiry of every viewer set this process has
// connections for, so long sessions never outlive the TTL. A set that is
// already gone (cleared when the stream ended) is not recreated.
func (g *Gateway) RefreshPresence(ctx context.Context) {
	for _, roomID := range g.hub.Rooms() {
		g.touchPresence(ctx, roomID)
	}
}

// RunPresenceRefresher calls RefreshPresence every PresenceRefresh until ctx ends.
func (g *Gateway) RunPresenceRefresher(ctx context.Context) {
	ticker := time.NewTicker(g.opts.PresenceRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, g.opts.OpTimeout)
			g.RefreshPresence(opCtx)
			cancel()
		}
	}
}

func (g *Gateway) touchPresence(ctx context.Context, livestreamID string) {
	if _, err := g.presence.Touch(ctx, livestreamID); err != nil {
		g.presenceFailed(ctx, "touch", livestreamID, err)
	}
}

// evict removes all of userID's connections from the room, tells each one
// it was banned and updates presence once for the user.
func (g *Gateway) evict(ctx context.Context, livestreamID, userID string) {
	unlock := g.hub.lockUser(livestreamID, userID)
	evicted := g.hub.EvictUser(livestreamID, userID)
	if len(evicted) == 0 {
		unlock()
		return
	}

	frame, err := EncodeFrame(EventUserBanned, UserBannedPayload{LivestreamID: livestreamID})
	for _, ec := range evicted {
		ec.clearRoom(livestreamID)
		if err == nil {
			ec.Enqueue(frame)
		}
	}
	count, presenceErr := g.presence.Remove(ctx, livestreamID, userID)
	unlock()

	logging.Ctx(ctx).Info().
		Str(logging.FieldLivestreamID, livestreamID).
		Str("target_user_id", userID).
		Int("connections", len(evicted)).
		Msg("evicted banned user")

	if presenceErr != nil {
		g.presenceFailed(ctx, "remove", livestreamID, presenceErr)
		return
	}
	g.broadcastViewerCount(ctx, livestreamID, count)
}

func (g *Gateway) broadcastViewerCount(ctx context.Context, livestreamID string, count int64) {
	g.broadcast(ctx, livestreamID, EventViewerCount, ViewerCountPayload{LivestreamID: livestreamID, Count: count})
	observability.PublishDomainEvent(ctx, observability.RoutingViewerCount, "viewer_count", map[string]interface{}{
		"livestream_id": livestreamID,
		"count":         count,
	})
}

func (g *Gateway) broadcast(ctx context.Context, livestreamID, eventType string, payload any) {
	frame, err := EncodeFrame(eventType, payload)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Str(logging.FieldEvent, eventType).Msg("encode broadcast")
		return
	}
	g.hub.Broadcast(livestreamID, frame)
}

func (g *Gateway) sendTo(c *Client, eventType string, payload any) {
	frame, err := EncodeFrame(eventType, payload)
	if err != nil {
		c.log.Error().Err(err).Str(logging.FieldEvent, eventType).Msg("encode frame")
		return
	}
	c.Enqueue(frame)
}

func (g *Gateway) sendError(ctx context.Context, c *Client, err error) {
	e := errs.As(err)
	switch e.Kind {
	case errs.KindInternal:
		logging.Ctx(ctx).Error().Err(err).Msg("event failed")
	case errs.KindTransient:
		logging.Ctx(ctx).Warn().Err(err).Msg("event failed on store")
	default:
		logging.Ctx(ctx).Debug().Str("code", e.Code).Msg("event rejected")
	}
	g.sendTo(c, EventError, ErrorPayload{Message: e.Message, Code: e.Code})
}

// presenceFailed degrades to a stale count instead of failing the event.
func (g *Gateway) presenceFailed(ctx context.Context, op, livestreamID string, err error) {
	observability.IncPresenceError(op)
	logging.Ctx(ctx).Warn().Err(err).
		Str("op", op).
		Str(logging.FieldLivestreamID, livestreamID).
		Msg("presence update failed")
}

func (g *Gateway) publishLifecycle(ctx context.Context, c *Client, event, reason string) {
	payload := map[string]interface{}{
		"ws": map[string]interface{}{
			"event":         event,
			"conn_id":       c.info.ConnID,
			"livestream_id": c.Room(),
			"duration_ms":   time.Since(c.info.ConnectedAt).Milliseconds(),
			"reason":        reason,
		},
		"identity": map[string]interface{}{
			"user_id":   c.info.UserID,
			"device_id": c.info.DeviceID,
			"ip":        c.info.IP,
		},
	}
	_ = observability.PublishEvent(ctx, observability.RoutingWSEvents, observability.EventEnvelope{
		EventType: "ws_events",
		EventName: event,
		Payload:   payload,
	}, observability.BuildHeaders(c.info.RequestID, c.info.TraceID))
}
