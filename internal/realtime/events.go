package realtime

import (
	"encoding/json"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"furadapt/api/internal/models"
)

// Client to server events.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventStopTyping  = "stop_typing"
	EventUserOnline  = "user_online"
)

// Server to client events.
const (
	EventReceiveMessage = "receive_message"
	EventMessageSent    = "message_sent"
	EventRoomJoined     = "room_joined"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stop_typing"
	EventError          = "error"
)

// Event is the frame exchanged with a session. Payload is interpreted by Type.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope carries an event to every session in a room, possibly across
// processes. Origin, when set, is the session that must not receive it.
type Envelope struct {
	Room   string `json:"room"`
	Origin string `json:"origin,omitempty"`
	Event  Event  `json:"event"`
}

type JoinRoomPayload struct {
	OtherUserID string `json:"otherUserId"`
}

type RoomPayload struct {
	Room string `json:"room"`
}

type SendMessagePayload struct {
	ReceiverID  string             `json:"receiverId"`
	Message     string             `json:"message"`
	MessageType models.MessageType `json:"messageType,omitempty"`
}

type TypingPayload struct {
	UserID string `json:"userId"`
	Room   string `json:"room"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

func newEvent(eventType string, payload interface{}) (Event, error) {
	if payload == nil {
		return Event{Type: eventType}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Payload: raw}, nil
}

// RoomID names the room shared by two participants. Argument order does not matter.
func RoomID(a, b primitive.ObjectID) string {
	x, y := a.Hex(), b.Hex()
	if x > y {
		x, y = y, x
	}
	return x + "_" + y
}
