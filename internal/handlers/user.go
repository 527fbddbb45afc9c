package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"room-chat-service/internal/models"
	"room-chat-service/internal/services"
)

// UserHandler serves nickname login and profile lookups.
type UserHandler struct {
	users  UserService
	tokens TokenIssuer
}

func NewUserHandler(users UserService, tokens TokenIssuer) *UserHandler {
	return &UserHandler{users: users, tokens: tokens}
}

type loginRequest struct {
	Nickname     string `json:"nickname" binding:"required"`
	ProfileColor string `json:"profile_color"`
	ProfileImage string `json:"profile_image"`
}

type loginResponse struct {
	User    models.User `json:"user"`
	Created bool        `json:"created"`
	Token   string      `json:"token,omitempty"`
}

// Login returns the user with the nickname, registering it on first use.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, created, err := h.users.Login(c.Request.Context(), services.LoginRequest{
		Nickname:     req.Nickname,
		ProfileColor: req.ProfileColor,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	resp := loginResponse{User: user, Created: created}
	if h.tokens != nil {
		if resp.Token, err = h.tokens.IssueToken(user.ID, time.Now()); err != nil {
			respondError(c, err)
			return
		}
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, resp)
}

func (h *UserHandler) GetUser(c *gin.Context) {
	userID, ok := parseIDParam(c, "user_id")
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *UserHandler) NicknameAvailable(c *gin.Context) {
	available, err := h.users.NicknameAvailable(c.Request.Context(), c.Param("nickname"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": available})
}
