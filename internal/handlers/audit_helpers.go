package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"room-chat-service/internal/middleware"
	"room-chat-service/internal/observability"
)

const requestIDContextKey = "request_id"

// RequestIDMiddleware assigns every request an id, echoes it back and puts it
// on the request context for downstream events.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := requestIDFromContext(c)
		c.Header("X-Request-ID", requestID)
		c.Request = c.Request.WithContext(observability.WithRequestID(c.Request.Context(), requestID))
		c.Next()
	}
}

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(requestIDContextKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDContextKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	if userID, ok := middleware.UserID(c); ok {
		return &userID
	}
	return nil
}
