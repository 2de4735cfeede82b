package services

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"furadapt/api/internal/db"
	"furadapt/api/internal/models"
)

const defaultHistoryPageSize = 20

// MessagePublisher delivers a persisted message to whoever is listening live.
// Delivery is best-effort; the stored message is the source of truth.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, msg *models.ChatMessage) error
}

// IChatService defines the interface for point-to-point messaging.
type IChatService interface {
	Send(ctx context.Context, senderID primitive.ObjectID, input models.SendMessageInput) (*models.ChatMessage, error)
	History(ctx context.Context, me, other primitive.ObjectID, page, limit int) (*models.MessagePage, error)
	MarkRead(ctx context.Context, reader, other primitive.ObjectID) (int64, error)
	Conversations(ctx context.Context, me primitive.ObjectID) ([]models.ConversationSummary, error)
	UnreadCount(ctx context.Context, me primitive.ObjectID) (int64, error)
	SetMessagePublisher(p MessagePublisher)
}

type chatService struct {
	db        *mongo.Database
	users     IUserService
	publisher MessagePublisher
}

// NewChatService creates a new ChatService.
func NewChatService(db *mongo.Database, users IUserService) IChatService {
	return &chatService{db: db, users: users}
}

// SetMessagePublisher allows setting the live publisher after initialization to break a cycle.
func (s *chatService) SetMessagePublisher(p MessagePublisher) {
	s.publisher = p
}

func (s *chatService) collection() *mongo.Collection {
	return s.db.Collection(db.ChatMessagesCollection)
}

// Send persists a message and then publishes it to the pair's room. Invalid
// bodies are refused before anything is looked up or stored.
func (s *chatService) Send(ctx context.Context, senderID primitive.ObjectID, input models.SendMessageInput) (*models.ChatMessage, error) {
	body := strings.TrimSpace(input.Message)
	if body == "" {
		return nil, validationError("message cannot be empty")
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		return nil, validationError("message cannot exceed %d characters", models.MaxMessageLength)
	}
	msgType := input.MessageType
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	if !msgType.Valid() {
		return nil, validationError("messageType must be one of [text image file]")
	}
	receiverID, err := primitive.ObjectIDFromHex(input.ReceiverID)
	if err != nil {
		return nil, validationError("invalid receiver id")
	}
	if receiverID == senderID {
		return nil, validationError("cannot send a message to yourself")
	}

	if _, err := s.users.FindByID(ctx, receiverID); err != nil {
		return nil, err
	}

	msg := &models.ChatMessage{
		ID:          primitive.NewObjectID(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Message:     body,
		MessageType: msgType,
		Read:        false,
		CreatedAt:   time.Now().UTC(),
	}
	if _, err := s.collection().InsertOne(ctx, msg); err != nil {
		return nil, fmt.Errorf("error inserting chat message: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishMessage(ctx, msg); err != nil {
			zap.L().Warn("live delivery failed, message stored",
				zap.String("message_id", msg.ID.Hex()), zap.Error(err))
		}
	}
	return msg, nil
}

// History returns one page of the thread between me and other, oldest first,
// and marks other's messages to me as read.
func (s *chatService) History(ctx context.Context, me, other primitive.ObjectID, page, limit int) (*models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultHistoryPageSize
	}

	otherUser, err := s.users.FindByID(ctx, other)
	if err != nil {
		return nil, err
	}

	filter := bson.M{"$or": bson.A{
		bson.M{"sender": me, "receiver": other},
		bson.M{"sender": other, "receiver": me},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := s.collection().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("error loading messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := []models.ChatMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("error decoding messages: %w", err)
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	if _, err := s.MarkRead(ctx, me, other); err != nil {
		zap.L().Warn("failed to mark messages read", zap.String("reader", me.Hex()), zap.Error(err))
	}

	return &models.MessagePage{
		Messages:    messages,
		OtherUser:   otherUser.Summary(),
		CurrentPage: page,
		HasMore:     len(messages) == limit,
	}, nil
}

// MarkRead flips every unread message from other to reader. Already-read
// messages are never touched, so a repeat call returns 0.
func (s *chatService) MarkRead(ctx context.Context, reader, other primitive.ObjectID) (int64, error) {
	filter := bson.M{"sender": other, "receiver": reader, "read": false}
	update := bson.M{"$set": bson.M{"read": true, "readAt": time.Now().UTC()}}
	res, err := s.collection().UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("error marking messages read: %w", err)
	}
	return res.ModifiedCount, nil
}

// Conversations lists one row per counterpart, most recent first.
func (s *chatService) Conversations(ctx context.Context, me primitive.ObjectID) ([]models.ConversationSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"$or": bson.A{bson.M{"sender": me}, bson.M{"receiver": me}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id": bson.M{"$cond": bson.A{
				bson.M{"$eq": bson.A{"$sender", me}}, "$receiver", "$sender",
			}},
			"lastMessage":     bson.M{"$first": "$message"},
			"lastMessageTime": bson.M{"$first": "$createdAt"},
			"lastMessageType": bson.M{"$first": "$messageType"},
			"unreadCount": bson.M{"$sum": bson.M{"$cond": bson.A{
				bson.M{"$and": bson.A{
					bson.M{"$eq": bson.A{"$receiver", me}},
					bson.M{"$eq": bson.A{"$read", false}},
				}},
				1, 0,
			}}},
		}}},
		{{Key: "$lookup", Value: bson.M{
			"from": db.UsersCollection, "localField": "_id", "foreignField": "_id", "as": "otherUser",
		}}},
		{{Key: "$unwind", Value: "$otherUser"}},
		{{Key: "$project", Value: bson.M{"otherUser.password": 0}}},
		{{Key: "$sort", Value: bson.D{{Key: "lastMessageTime", Value: -1}}}},
	}

	cursor, err := s.collection().Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("error aggregating conversations: %w", err)
	}
	defer cursor.Close(ctx)

	convs := []models.ConversationSummary{}
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, fmt.Errorf("error decoding conversations: %w", err)
	}
	return convs, nil
}

func (s *chatService) UnreadCount(ctx context.Context, me primitive.ObjectID) (int64, error) {
	n, err := s.collection().CountDocuments(ctx, bson.M{"receiver": me, "read": false})
	if err != nil {
		return 0, fmt.Errorf("error counting unread messages: %w", err)
	}
	return n, nil
}
