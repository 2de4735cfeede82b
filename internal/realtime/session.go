package realtime

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 256
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Session is one live connection of an authenticated user.
type Session struct {
	id     string
	userID primitive.ObjectID
	hub    *Hub
	conn   *websocket.Conn
	log    *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func newSession(hub *Hub, conn *websocket.Conn, userID primitive.ObjectID) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		userID: userID,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		log:    zap.L().With(zap.String("session_id", id), zap.String("user_id", userID.Hex())),
	}
}

func (s *Session) ID() string                 { return s.id }
func (s *Session) UserID() primitive.ObjectID { return s.userID }

// enqueue queues a frame without blocking. A full or closed session drops it.
func (s *Session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.log.Warn("send buffer full, dropping frame")
		return false
	}
}

func (s *Session) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}

func (s *Session) sendEvent(eventType string, payload interface{}) {
	ev, err := newEvent(eventType, payload)
	if err != nil {
		s.log.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}
	frame, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("failed to encode frame", zap.String("type", eventType), zap.Error(err))
		return
	}
	s.enqueue(frame)
}

func (s *Session) sendError(message string) {
	s.sendEvent(EventError, ErrorPayload{Message: message})
}

func (s *Session) readPump() {
	defer func() {
		s.hub.unregister(s)
		_ = s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("read error", zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		message = bytes.TrimSpace(bytes.Replace(message, newline, space, -1))
		s.hub.handle(s, message)
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
