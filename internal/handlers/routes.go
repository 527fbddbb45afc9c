package handlers

import (
	"github.com/gin-gonic/gin"

	"room-chat-service/internal/middleware"
)

// Router groups the HTTP handlers behind their authentication requirements.
type Router struct {
	Auth      *middleware.Authenticator
	Users     *UserHandler
	Rooms     *RoomHandler
	Messages  *MessageHandler
	Reads     *ReadStatusHandler
	WebSocket gin.HandlerFunc
}

// Register mounts every route on r. Reads accept anonymous callers; anything
// acting as a user requires one.
func (rt Router) Register(r gin.IRouter) {
	r.POST("/users/login", rt.Users.Login)
	r.GET("/users/nickname/:nickname/available", rt.Users.NicknameAvailable)

	public := r.Group("", rt.Auth.Optional())
	public.GET("/users/:user_id", rt.Users.GetUser)
	public.GET("/rooms", rt.Rooms.ListRooms)
	public.GET("/rooms/:room_id", rt.Rooms.GetRoom)
	public.GET("/rooms/:room_id/members", rt.Rooms.ListMembers)
	public.GET("/rooms/:room_id/messages", rt.Messages.ListMessages)
	public.GET("/rooms/:room_id/messages/search", rt.Messages.SearchMessages)
	public.GET("/rooms/:room_id/unread-mapping", rt.Reads.UnreadMapping)

	private := r.Group("", rt.Auth.Required())
	private.POST("/rooms", rt.Rooms.CreateRoom)
	private.PUT("/rooms/:room_id", rt.Rooms.UpdateRoom)
	private.DELETE("/rooms/:room_id", rt.Rooms.DeactivateRoom)
	private.POST("/rooms/:room_id/join", rt.Rooms.Join)
	private.POST("/rooms/:room_id/leave", rt.Rooms.Leave)
	private.PUT("/rooms/:room_id/members/status", rt.Rooms.UpdatePresence)
	private.POST("/rooms/:room_id/members/heartbeat", rt.Rooms.Heartbeat)
	private.POST("/rooms/:room_id/messages", rt.Messages.SendMessage)
	private.DELETE("/rooms/:room_id/messages/:message_id", rt.Messages.DeleteMessage)
	private.POST("/rooms/:room_id/read", rt.Reads.MarkRead)
	private.GET("/rooms/:room_id/unread-count", rt.Reads.UnreadCount)
	private.GET("/unread-counts", rt.Reads.AllUnreadCounts)
	if rt.WebSocket != nil {
		private.GET("/ws/rooms/:room_id", rt.WebSocket)
	}
}
