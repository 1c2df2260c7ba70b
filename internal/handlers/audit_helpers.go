package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"livestream-chat/internal/logging"
	"livestream-chat/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if id := c.GetString(logging.RequestIDContextKey); id != "" {
		return id
	}

	requestID := c.GetHeader(logging.HeaderRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(logging.RequestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if principal, ok := middleware.PrincipalFrom(c); ok && principal.UserID != "" {
		return &principal.UserID
	}
	if header := c.GetHeader("X-User-ID"); header != "" {
		return &header
	}
	return nil
}
