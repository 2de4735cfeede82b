package handlers_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/api/handlers"
	"furadapt/api/internal/api/middleware"
	"furadapt/api/internal/models"
	"furadapt/api/internal/services"
)

func chatRouter(svc *MockChatService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := handlers.NewChatHandler(svc)
	r := gin.New()
	g := r.Group("/api/chat", middleware.AuthMiddleware(testSecret))
	g.GET("", h.Conversations)
	g.GET("/unread/count", h.UnreadCount)
	g.GET("/:userId", h.History)
	g.POST("", h.Send)
	g.PUT("/:userId/read", h.MarkRead)
	return r
}

func TestChatHandler_Conversations(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	svc.On("Conversations", mock.Anything, me.UserID).Return([]models.ConversationSummary{{OtherUserID: primitive.NewObjectID(), LastMessage: "hi", UnreadCount: 2}}, nil)

	w := perform(t, r, http.MethodGet, "/api/chat", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unreadCount":2`)
}

func TestChatHandler_UnreadCount(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	svc.On("UnreadCount", mock.Anything, me.UserID).Return(int64(7), nil)

	w := perform(t, r, http.MethodGet, "/api/chat/unread/count", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 7, decodeBody(t, w)["unreadCount"])
}

func TestChatHandler_History(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	other := primitive.NewObjectID()
	page := &models.MessagePage{Messages: []models.ChatMessage{{Message: "hello"}}, CurrentPage: 2, HasMore: true}
	svc.On("History", mock.Anything, me.UserID, other, 2, 20).Return(page, nil)
	svc.On("History", mock.Anything, me.UserID, other, 1, 50).Return(nil, serviceErr(services.ErrNotFound, "User not found"))

	w := perform(t, r, http.MethodGet, "/api/chat/"+other.Hex()+"?page=2&limit=20", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["hasMore"])
	assert.EqualValues(t, 2, body["currentPage"])

	w = perform(t, r, http.MethodGet, "/api/chat/"+other.Hex(), tokenFor(t, me), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = perform(t, r, http.MethodGet, "/api/chat/nobody", tokenFor(t, me), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestChatHandler_Send(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	other := primitive.NewObjectID()
	input := models.SendMessageInput{ReceiverID: other.Hex(), Message: "hi there", MessageType: models.MessageTypeText}
	sent := &models.ChatMessage{ID: primitive.NewObjectID(), SenderID: me.UserID, ReceiverID: other, Message: "hi there"}
	svc.On("Send", mock.Anything, me.UserID, input).Return(sent, nil).Once()

	w := perform(t, r, http.MethodPost, "/api/chat", tokenFor(t, me), input)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "hi there", decodeBody(t, w)["message"])

	rejected := models.SendMessageInput{ReceiverID: other.Hex(), Message: "x"}
	svc.On("Send", mock.Anything, me.UserID, rejected).Return(nil, serviceErr(services.ErrValidation, "Receiver cannot be yourself")).Once()
	w = perform(t, r, http.MethodPost, "/api/chat", tokenFor(t, me), rejected)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = perform(t, r, http.MethodPost, "/api/chat", tokenFor(t, me), gin.H{"message": "no receiver"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNumberOfCalls(t, "Send", 2)
}

func TestChatHandler_MarkRead(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	other := primitive.NewObjectID()
	svc.On("MarkRead", mock.Anything, me.UserID, other).Return(int64(3), nil).Once()
	svc.On("MarkRead", mock.Anything, me.UserID, other).Return(int64(0), nil).Once()

	w := perform(t, r, http.MethodPut, "/api/chat/"+other.Hex()+"/read", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decodeBody(t, w)["updated"])

	w = perform(t, r, http.MethodPut, "/api/chat/"+other.Hex()+"/read", tokenFor(t, me), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decodeBody(t, w)["updated"])
}

func TestChatHandler_StoreFailureIsHidden(t *testing.T) {
	svc := new(MockChatService)
	r := chatRouter(svc)
	me := newActor(models.RoleUser)
	svc.On("UnreadCount", mock.Anything, me.UserID).Return(int64(0), errors.New("socket closed"))

	w := perform(t, r, http.MethodGet, "/api/chat/unread/count", tokenFor(t, me), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to count unread messages", decodeBody(t, w)["error"])
}
