package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"room-chat-service/internal/models"
	"room-chat-service/internal/telemetry"
)

// MessageHandler serves sending, listing, searching and deleting room messages.
type MessageHandler struct {
	messages MessageService
	audit    *telemetry.AuditEmitter
}

func NewMessageHandler(messages MessageService, audit *telemetry.AuditEmitter) *MessageHandler {
	return &MessageHandler{messages: messages, audit: audit}
}

type sendMessageRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	FileName string `json:"file_name"`
	Payload  string `json:"payload"`
}

func (r sendMessageRequest) body() (models.MessageBody, bool) {
	switch models.MessageType(strings.ToUpper(r.Type)) {
	case "", models.MessageTypeText:
		return models.TextBody{Text: r.Content}, true
	case models.MessageTypeImage:
		return models.ImageBody{FileName: r.FileName, Payload: r.Payload}, true
	case models.MessageTypeSticker:
		return models.StickerBody{Payload: r.Payload}, true
	default:
		return nil, false
	}
}

func (h *MessageHandler) SendMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	body, ok := req.body()
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported message type " + req.Type})
		return
	}

	msg, err := h.messages.SendMessage(c.Request.Context(), roomID, userID, body)
	if err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", fmt.Sprintf("message %d sent", msg.ID), roomID, &userID)
	c.JSON(http.StatusCreated, msg)
}

// ListMessages returns the messages the caller may see, oldest first.
func (h *MessageHandler) ListMessages(c *gin.Context) {
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	msgs, err := h.messages.ListMessages(c.Request.Context(), roomID, userIDFromContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) SearchMessages(c *gin.Context) {
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	msgs, err := h.messages.SearchMessages(c.Request.Context(), roomID, c.Query("keyword"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	roomID, ok := parseIDParam(c, "room_id")
	if !ok {
		return
	}
	messageID, ok := parseIDParam(c, "message_id")
	if !ok {
		return
	}
	if err := h.messages.DeleteMessage(c.Request.Context(), roomID, messageID, userID); err != nil {
		respondError(c, err)
		return
	}
	h.audit.Emit(c.Request.Context(), "INFO", "message deleted", roomID, &userID)
	c.Status(http.StatusNoContent)
}
