package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"

	"room-chat-service/internal/middleware"
	"room-chat-service/internal/observability"
	"room-chat-service/internal/services"
)

const maxFrameBytes = 64 * 1024

// MembershipChecker authorizes room subscriptions.
type MembershipChecker interface {
	IsActiveMember(ctx context.Context, roomID, userID int64) (bool, error)
}

// PresenceUpdater records member presence driven by the session.
type PresenceUpdater interface {
	UpdateMemberPresence(ctx context.Context, roomID, userID int64, online bool) error
	Heartbeat(ctx context.Context, roomID, userID int64) error
}

// ReadMarker handles read frames.
type ReadMarker interface {
	MarkRead(ctx context.Context, userID, roomID int64) (*services.ReadStatusEvent, error)
}

// clientFrame is a message sent by the browser.
type clientFrame struct {
	Type string `json:"type"`
}

// RoomWebSocketHandler serves room sessions: one connection subscribes to the
// room's message and read-status topics and reports presence.
type RoomWebSocketHandler struct {
	hub      *Hub
	members  MembershipChecker
	presence PresenceUpdater
	reads    ReadMarker
}

func NewRoomWebSocketHandler(hub *Hub, members MembershipChecker, presence PresenceUpdater, reads ReadMarker) *RoomWebSocketHandler {
	return &RoomWebSocketHandler{hub: hub, members: members, presence: presence, reads: reads}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session until the client leaves.
func (h *RoomWebSocketHandler) Handle(c *gin.Context) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing user"})
		return
	}

	ctx, span := otel.Tracer("room-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	member, err := h.members.IsActiveMember(ctx, roomID, userID)
	if err != nil {
		log.Error().Err(err).Int64("room_id", roomID).Msg("ws membership check failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	info := ConnInfo{
		ConnID:      newConnID(),
		RoomID:      roomID,
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	// the session outlives the upgrade request
	sessionCtx := observability.WithRequestID(context.WithoutCancel(ctx), info.RequestID)
	cl := &client{conn: conn, info: info}
	h.hub.subscribe(services.RoomTopic(roomID), cl)
	h.hub.subscribe(services.ReadStatusTopic(roomID), cl)

	if err := h.presence.UpdateMemberPresence(sessionCtx, roomID, userID, true); err != nil {
		log.Warn().Err(err).Int64("room_id", roomID).Int64("user_id", userID).Msg("ws presence update failed")
	}
	observability.IncWSActive(wsKind)
	h.hub.publishLifecycle(sessionCtx, "ws_connect", info, "")

	go h.serve(sessionCtx, cl)
}

func (h *RoomWebSocketHandler) serve(ctx context.Context, cl *client) {
	info := cl.info
	var closeReason string
	defer func() {
		cl.close()
		h.hub.unsubscribeAll(cl)
		observability.DecWSActive(wsKind)
		if !h.hub.userConnected(services.RoomTopic(info.RoomID), info.UserID) {
			if err := h.presence.UpdateMemberPresence(ctx, info.RoomID, info.UserID, false); err != nil {
				log.Warn().Err(err).Int64("room_id", info.RoomID).Int64("user_id", info.UserID).Msg("ws presence update failed")
			}
		}
		h.hub.publishLifecycle(ctx, "ws_disconnect", info, closeReason)
	}()

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if reason := cl.evictReason(); reason != "" {
				closeReason = reason
				return
			}
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.hub.publishLifecycle(ctx, "ws_error", info, closeReason)
			}
			return
		}
		h.handleFrame(ctx, info, data)
	}
}

func (h *RoomWebSocketHandler) handleFrame(ctx context.Context, info ConnInfo, data []byte) {
	var frame clientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Debug().Err(err).Str("conn_id", info.ConnID).Msg("ignoring malformed ws frame")
		return
	}
	var err error
	switch frame.Type {
	case "heartbeat":
		err = h.presence.Heartbeat(ctx, info.RoomID, info.UserID)
	case "read":
		_, err = h.reads.MarkRead(ctx, info.UserID, info.RoomID)
	default:
		log.Debug().Str("type", frame.Type).Str("conn_id", info.ConnID).Msg("ignoring unknown ws frame")
		return
	}
	if err != nil {
		log.Warn().Err(err).Str("frame", frame.Type).Int64("room_id", info.RoomID).Int64("user_id", info.UserID).Msg("ws frame failed")
	}
}
