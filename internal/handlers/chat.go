package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"roomchat-service/internal/chat"
	"roomchat-service/internal/middleware"
	"roomchat-service/internal/models"
	"roomchat-service/internal/observability"
	"roomchat-service/internal/repositories"
	"roomchat-service/internal/ws"
)

// ChatHandler serves the REST surface of the room chat. It is the fallback
// transport; the websocket gateway converges on the same chat.Service.
type ChatHandler struct {
	service *chat.Service
	hub     *ws.Hub
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service *chat.Service, hub *ws.Hub) *ChatHandler {
	return &ChatHandler{service: service, hub: hub}
}

// GetRoomChannel returns the channel descriptor for the caller's room.
func (h *ChatHandler) GetRoomChannel(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	ch, err := h.service.GetChannelForUser(c.Request.Context(), principal.UserID)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ch)
}

// GetRoomMessages returns one newest-first page of the caller's room chat.
func (h *ChatHandler) GetRoomMessages(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	limit := chat.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	var cursor *int64
	if raw := c.Query("cursor"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cursor"})
			return
		}
		cursor = &parsed
	}

	page, err := h.service.GetMessages(c.Request.Context(), principal.UserID, limit, cursor)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// PostRoomMessage stores a message via the synchronous fallback path and
// broadcasts it to live subscribers.
func (h *ChatHandler) PostRoomMessage(c *gin.Context) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing principal"})
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, msg, err := h.service.SendMessage(c.Request.Context(), principal.UserID, req.Content)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	observability.IncMessageSent("rest")

	// Broadcast immediately after the append so per-channel delivery order
	// matches the store's append order. The sender's own live connections
	// receive the echo too; clients reconcile rather than suppress.
	h.hub.Broadcast(ch.ID, models.ChatEvent{Type: models.EventNewMessage, Message: &msg})

	c.JSON(http.StatusCreated, gin.H{"channelId": ch.ID, "message": msg})
}

func writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyContent), errors.Is(err, chat.ErrContentTooLong):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrNotChannelMember):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, repositories.ErrUserNotFound),
		errors.Is(err, repositories.ErrChannelNotFound),
		errors.Is(err, chat.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
