package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

type ChatHandler struct {
	chatService services.IChatService
}

func NewChatHandler(chatService services.IChatService) *ChatHandler {
	return &ChatHandler{chatService: chatService}
}

// Conversations handles GET /api/chat
func (h *ChatHandler) Conversations(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	convs, err := h.chatService.Conversations(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err, "Failed to load conversations")
		return
	}
	c.JSON(http.StatusOK, convs)
}

// UnreadCount handles GET /api/chat/unread/count
func (h *ChatHandler) UnreadCount(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	n, err := h.chatService.UnreadCount(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err, "Failed to count unread messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadCount": n})
}

// History handles GET /api/chat/:userId
func (h *ChatHandler) History(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	other, ok := objectIDParam(c, "userId", "user")
	if !ok {
		return
	}
	page, err := h.chatService.History(c.Request.Context(), actor.UserID, other, queryInt(c, "page", 1), queryInt(c, "limit", 50))
	if err != nil {
		respondError(c, err, "Failed to load messages")
		return
	}
	c.JSON(http.StatusOK, page)
}

// Send handles POST /api/chat
func (h *ChatHandler) Send(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var input models.SendMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	msg, err := h.chatService.Send(c.Request.Context(), actor.UserID, input)
	if err != nil {
		respondError(c, err, "Failed to send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// MarkRead handles PUT /api/chat/:userId/read
func (h *ChatHandler) MarkRead(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	other, ok := objectIDParam(c, "userId", "user")
	if !ok {
		return
	}
	n, err := h.chatService.MarkRead(c.Request.Context(), actor.UserID, other)
	if err != nil {
		respondError(c, err, "Failed to mark messages read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}
