package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"furadapt/api/internal/models"
	"furadapt/api/internal/monitoring"
	"furadapt/api/internal/services"
)

const sendTimeout = 10 * time.Second

// MessageSender persists a message sent over a live session.
type MessageSender interface {
	Send(ctx context.Context, senderID primitive.ObjectID, input models.SendMessageInput) (*models.ChatMessage, error)
}

type originKey struct{}

// withOrigin marks ctx as carrying a message sent by session id, so the
// resulting room broadcast skips that session.
func withOrigin(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, originKey{}, id)
}

func originFrom(ctx context.Context) string {
	id, _ := ctx.Value(originKey{}).(string)
	return id
}

// Hub owns the live sessions of this process and the rooms they sit in.
type Hub struct {
	registry    *SessionRegistry
	rooms       *roomTable
	broadcaster Broadcaster
	sender      MessageSender
}

// NewHub creates a hub. A nil broadcaster means in-process delivery only.
func NewHub(b Broadcaster) *Hub {
	if b == nil {
		b = NewLocalBroadcaster()
	}
	return &Hub{
		registry:    NewSessionRegistry(),
		rooms:       newRoomTable(),
		broadcaster: b,
	}
}

// SetMessageSender allows setting the persistence side after initialization to break a cycle.
func (h *Hub) SetMessageSender(sender MessageSender) {
	h.sender = sender
}

func (h *Hub) Registry() *SessionRegistry {
	return h.registry
}

// Start subscribes the hub to room traffic until ctx is done.
func (h *Hub) Start(ctx context.Context) error {
	return h.broadcaster.Subscribe(ctx, h.deliver)
}

// Attach registers a freshly upgraded connection and starts its pumps.
func (h *Hub) Attach(conn *websocket.Conn, userID primitive.ObjectID) *Session {
	s := newSession(h, conn, userID)
	h.register(s)
	go s.writePump()
	go s.readPump()
	return s
}

// Close drops every session. Their write pumps send a close frame on the way out.
func (h *Hub) Close() {
	for _, s := range h.registry.all() {
		h.unregister(s)
	}
}

func (h *Hub) register(s *Session) {
	h.registry.Add(s)
	monitoring.WSSessions.Inc()
	s.log.Info("session connected")
}

// unregister drops s from the registry before its room so a concurrent
// join_room always observes the removal.
func (h *Hub) unregister(s *Session) {
	removed := h.registry.Remove(s)
	h.rooms.leave(s)
	if removed {
		s.close()
		monitoring.WSSessions.Dec()
		s.log.Info("session disconnected")
	}
}

// PublishMessage broadcasts a stored message to the room of its two participants.
func (h *Hub) PublishMessage(ctx context.Context, msg *models.ChatMessage) error {
	ev, err := newEvent(EventReceiveMessage, msg)
	if err != nil {
		return err
	}
	return h.broadcaster.Publish(ctx, Envelope{
		Room:   RoomID(msg.SenderID, msg.ReceiverID),
		Origin: originFrom(ctx),
		Event:  ev,
	})
}

// deliver hands an envelope to the local members of its room.
func (h *Hub) deliver(env Envelope) {
	frame, err := json.Marshal(env.Event)
	if err != nil {
		zap.L().Error("failed to encode room event", zap.String("room", env.Room), zap.Error(err))
		return
	}
	for _, s := range h.rooms.sessionsIn(env.Room) {
		if s.id == env.Origin {
			continue
		}
		// The room snapshot may include a session that has since disconnected.
		if _, live := h.registry.Lookup(s.id); !live {
			continue
		}
		if s.enqueue(frame) {
			monitoring.RelayedEvents.WithLabelValues(env.Event.Type).Inc()
		}
	}
}

func (h *Hub) handle(s *Session, raw []byte) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		s.sendError("invalid message format")
		return
	}

	switch ev.Type {
	case EventJoinRoom:
		var p JoinRoomPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			s.sendError("invalid join_room payload")
			return
		}
		other, err := primitive.ObjectIDFromHex(p.OtherUserID)
		if err != nil {
			s.sendError("invalid otherUserId")
			return
		}
		room := RoomID(s.userID, other)
		h.rooms.join(s, room)
		if _, live := h.registry.Lookup(s.id); !live {
			h.rooms.leave(s)
			return
		}
		s.sendEvent(EventRoomJoined, RoomPayload{Room: room})

	case EventLeaveRoom:
		h.rooms.leave(s)

	case EventSendMessage:
		h.handleSend(s, ev.Payload)

	case EventTyping, EventStopTyping:
		room := h.rooms.roomOf(s)
		if room == "" {
			s.sendError("join a room first")
			return
		}
		outType := EventUserTyping
		if ev.Type == EventStopTyping {
			outType = EventUserStopTyping
		}
		out, err := newEvent(outType, TypingPayload{UserID: s.userID.Hex(), Room: room})
		if err != nil {
			return
		}
		if err := h.broadcaster.Publish(context.Background(), Envelope{Room: room, Origin: s.id, Event: out}); err != nil {
			s.log.Debug("typing broadcast failed", zap.Error(err))
		}

	case EventUserOnline:
		// Presence is recorded when the session is registered.

	default:
		s.sendError("unknown event type")
	}
}

func (h *Hub) handleSend(s *Session, payload json.RawMessage) {
	if h.sender == nil {
		s.sendError("messaging is not available")
		return
	}
	var p SendMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.sendError("invalid send_message payload")
		return
	}

	ctx, cancel := context.WithTimeout(withOrigin(context.Background(), s.id), sendTimeout)
	defer cancel()
	msg, err := h.sender.Send(ctx, s.userID, models.SendMessageInput{
		ReceiverID:  p.ReceiverID,
		Message:     p.Message,
		MessageType: p.MessageType,
	})
	if err != nil {
		s.sendError(services.ErrorMessage(err, "failed to send message"))
		return
	}
	s.sendEvent(EventMessageSent, msg)
}
