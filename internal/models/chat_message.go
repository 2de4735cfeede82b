package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MessageType classifies the body of a chat message.
type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeFile  MessageType = "file"
)

// MaxMessageLength is the longest accepted body, counted in characters.
const MaxMessageLength = 1000

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeFile:
		return true
	}
	return false
}

// ChatMessage is a persisted point-to-point message. Only Read/ReadAt ever change.
type ChatMessage struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	SenderID      primitive.ObjectID `bson:"sender" json:"sender"`
	ReceiverID    primitive.ObjectID `bson:"receiver" json:"receiver"`
	Message       string             `bson:"message" json:"message"`
	MessageType   MessageType        `bson:"messageType" json:"messageType"`
	AttachmentURL string             `bson:"attachmentUrl,omitempty" json:"attachmentUrl,omitempty"`
	Read          bool               `bson:"read" json:"read"`
	ReadAt        *time.Time         `bson:"readAt" json:"readAt"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
}

// SendMessageInput is the REST payload for sending a message.
type SendMessageInput struct {
	ReceiverID  string      `json:"receiverId" binding:"required"`
	Message     string      `json:"message"`
	MessageType MessageType `json:"messageType"`
}

// ConversationSummary is one row of a user's inbox.
type ConversationSummary struct {
	OtherUserID     primitive.ObjectID `bson:"_id" json:"otherUserId"`
	LastMessage     string             `bson:"lastMessage" json:"lastMessage"`
	LastMessageTime time.Time          `bson:"lastMessageTime" json:"lastMessageTime"`
	LastMessageType MessageType        `bson:"lastMessageType" json:"lastMessageType"`
	UnreadCount     int64              `bson:"unreadCount" json:"unreadCount"`
	OtherUser       UserSummary        `bson:"otherUser" json:"otherUser"`
}

// MessagePage is a slice of a thread ordered oldest-first.
type MessagePage struct {
	Messages    []ChatMessage `json:"messages"`
	OtherUser   *UserSummary  `json:"otherUser"`
	CurrentPage int           `json:"currentPage"`
	HasMore     bool          `json:"hasMore"`
}
