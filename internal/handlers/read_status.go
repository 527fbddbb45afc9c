package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// ReadStatusHandler serves read cursors and unread counts.
type ReadStatusHandler struct {
	reads ReadService
}

func NewReadStatusHandler(reads ReadService) *ReadStatusHandler {
	return &ReadStatusHandler{reads: reads}
}

// MarkRead moves the caller's cursor to the newest message. The body is null
// when the room has no messages yet.
func (h *ReadStatusHandler) MarkRead(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	event, err := h.reads.MarkRead(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

func (h *ReadStatusHandler) UnreadCount(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	n, err := h.reads.UnreadCountFor(c.Request.Context(), userID, roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "unread_count": n})
}

// UnreadMapping maps each unread tally to the newest message id carrying it.
func (h *ReadStatusHandler) UnreadMapping(c *gin.Context) {
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	mapping, err := h.reads.UnreadMapping(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make(map[string]int64, len(mapping))
	for tally, id := range mapping {
		out[strconv.Itoa(tally)] = id
	}
	c.JSON(http.StatusOK, gin.H{"mapping": out})
}

// AllUnreadCounts returns the caller's unread count for every open room they belong to.
func (h *ReadStatusHandler) AllUnreadCounts(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	counts, err := h.reads.AllUnreadCounts(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	out := make(map[string]int, len(counts))
	for roomID, n := range counts {
		out[strconv.FormatInt(roomID, 10)] = n
	}
	c.JSON(http.StatusOK, gin.H{"unread_counts": out})
}
