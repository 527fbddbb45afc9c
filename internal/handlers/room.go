package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"room-chat-service/internal/telemetry"
)

// RoomHandler serves room lifecycle, membership and presence endpoints.
type RoomHandler struct {
	rooms RoomService
	audit *telemetry.AuditEmitter
}

func NewRoomHandler(rooms RoomService, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, audit: audit}
}

type roomRequest struct {
	Name     string `json:"name" binding:"required"`
	ImageRef string `json:"image_ref"`
}

type presenceRequest struct {
	Online *bool `json:"online" binding:"required"`
}

func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.CreateRoom(c.Request.Context(), userID, req.Name, req.ImageRef)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("room %q created", room.Name), room.ID, &userID)
	c.JSON(http.StatusCreated, room)
}

// ListRooms returns the active rooms, enriched for the caller when one is known.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context(), userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	room, err := h.rooms.GetRoom(c.Request.Context(), roomID, userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) UpdateRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	var req roomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	room, err := h.rooms.UpdateRoom(c.Request.Context(), roomID, userID, req.Name, req.ImageRef)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("room renamed to %q", room.Name), roomID, &userID)
	c.JSON(http.StatusOK, room)
}

func (h *RoomHandler) DeactivateRoom(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.DeactivateRoom(c.Request.Context(), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "room deactivated", roomID, &userID)
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Join(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	result, err := h.rooms.Join(c.Request.Context(), roomID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("room join: %s", result.Outcome), roomID, &userID)
	c.JSON(http.StatusOK, result)
}

func (h *RoomHandler) Leave(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.Leave(c.Request.Context(), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "room left", roomID, &userID)
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) ListMembers(c *gin.Context) {
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	members, err := h.rooms.ListActiveMembers(c.Request.Context(), roomID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

// UpdatePresence is the REST fallback for clients without a websocket.
func (h *RoomHandler) UpdatePresence(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	var req presenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.rooms.UpdateMemberPresence(c.Request.Context(), roomID, userID, *req.Online); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RoomHandler) Heartbeat(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	if err := h.rooms.Heartbeat(c.Request.Context(), roomID, userID); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
