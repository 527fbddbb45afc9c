package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"room-chat-service/internal/apperrors"
)

func statusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindInvalidArgument:
		return http.StatusBadRequest
	case apperrors.KindInvalidState, apperrors.KindConflict:
		return http.StatusConflict
	case apperrors.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error", "kind"} with the status its kind maps to.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	status := statusForKind(kind)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("route", c.FullPath()).Str("request_id", requestIDFromContext(c)).Msg("request failed")
		if kind == apperrors.KindUnknown {
			message = "internal error"
		}
	}
	c.JSON(status, gin.H{"error": message, "kind": kind.String()})
}

func parseIDParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func requireUser(c *gin.Context) (int64, bool) {
	userID := userIDFromContext(c)
	if userID == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return 0, false
	}
	return *userID, true
}
