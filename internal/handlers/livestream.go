package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"livestream-chat/internal/chat"
	"livestream-chat/internal/errs"
	"livestream-chat/internal/logging"
	"livestream-chat/internal/models"
)

// LivestreamChat is the read side of the chat service used by REST.
type LivestreamChat interface {
	IsLivestreamValid(ctx context.Context, livestreamID string) (models.LivestreamStatus, error)
	GetRecentComments(ctx context.Context, livestreamID string, limit int) ([]models.Comment, error)
	ListBans(ctx context.Context, livestreamID string) ([]models.Ban, error)
	HistoryLimit() int
}

// ViewerCounter reads presence counts.
type ViewerCounter interface {
	Count(ctx context.Context, livestreamID string) (int64, error)
}

// ViewerResetter clears presence and notifies the room.
type ViewerResetter interface {
	ResetViewers(ctx context.Context, livestreamID string) error
}

// LivestreamHandler serves stats, history and moderation lookups.
type LivestreamHandler struct {
	chat     LivestreamChat
	viewers  ViewerCounter
	resetter ViewerResetter
}

// NewLivestreamHandler builds a LivestreamHandler.
func NewLivestreamHandler(chatSvc LivestreamChat, viewers ViewerCounter, resetter ViewerResetter) *LivestreamHandler {
	return &LivestreamHandler{chat: chatSvc, viewers: viewers, resetter: resetter}
}

// GetViewers returns the distinct viewer count.
func (h *LivestreamHandler) GetViewers(c *gin.Context) {
	livestreamID := c.Param("id")
	count, err := h.viewers.Count(c.Request.Context(), livestreamID)
	if err != nil {
		writeError(c, errs.Transient("failed to load viewer count", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"livestream_id": livestreamID, "count": count})
}

// ResetViewers wipes the viewer set when a stream ends.
func (h *LivestreamHandler) ResetViewers(c *gin.Context) {
	livestreamID := c.Param("id")
	if err := h.resetter.ResetViewers(c.Request.Context(), livestreamID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"livestream_id": livestreamID, "count": 0})
}

// GetComments returns recent active comments in chronological order.
func (h *LivestreamHandler) GetComments(c *gin.Context) {
	livestreamID := c.Param("id")

	limit := h.chat.HistoryLimit()
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > chat.MaxHistoryLimit {
			writeError(c, errs.BadRequest("limit must be between 1 and "+strconv.Itoa(chat.MaxHistoryLimit)))
			return
		}
		limit = parsed
	}

	if !h.requireLivestream(c, livestreamID) {
		return
	}

	comments, err := h.chat.GetRecentComments(c.Request.Context(), livestreamID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

// ListBans returns the bans of a livestream.
func (h *LivestreamHandler) ListBans(c *gin.Context) {
	livestreamID := c.Param("id")
	if !h.requireLivestream(c, livestreamID) {
		return
	}

	bans, err := h.chat.ListBans(c.Request.Context(), livestreamID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bans": bans})
}

func (h *LivestreamHandler) requireLivestream(c *gin.Context, livestreamID string) bool {
	status, err := h.chat.IsLivestreamValid(c.Request.Context(), livestreamID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !status.Exists {
		writeError(c, errs.ErrLivestreamNotFound)
		return false
	}
	return true
}

func writeError(c *gin.Context, err error) {
	e := errs.As(err)
	status := statusFor(e.Kind)
	if status >= http.StatusInternalServerError {
		l := logging.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": e.Message, "code": e.Code})
}

func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindAuthentication:
		return http.StatusUnauthorized
	case errs.KindAuthorization:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindPolicy:
		return http.StatusConflict
	case errs.KindInvalid:
		return http.StatusBadRequest
	case errs.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
